// Package rules holds the core alerting domain types — Rule, Reading,
// HistoryEntry — and the pure threshold condition evaluator shared by the
// engine and the notification layer.
package rules
