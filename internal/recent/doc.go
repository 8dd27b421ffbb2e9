// Package recent keeps a bounded, TTL-evicted in-memory buffer of the latest
// evaluation outcomes. The live surfaces (REST history endpoint, WebSocket
// feed) read from it instead of polling the database on every tick; the
// database history table remains the durable record.
package recent
