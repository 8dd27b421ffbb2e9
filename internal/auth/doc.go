// Package auth provides API key authentication middleware for the HTTP API.
package auth
