// Package api implements the HTTP JSON API: engine status and history reads
// plus the rule test, test-notification and force-evaluation operations.
package api
