// Package store is the Postgres-backed persistence layer: rule definitions
// (read-mostly — the engine only touches the two trigger-state columns),
// append-only alert history, and the point query against the sensor_readings
// time series used as the fallback behind the Redis hot cache.
package store
