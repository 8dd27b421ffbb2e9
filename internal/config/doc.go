// Package config loads and validates the YAML configuration file and watches
// it for changes. Secrets (database URL, API keys, push tokens) are never
// stored in the file itself; the file names the environment variables that
// hold them.
package config
