// Package readings answers one question: the most recent sample for a
// sensor selector within the recency window. It consults the Redis
// latest-value cache written by the ingest pipeline first and falls back to
// the Postgres time-series point query.
package readings
