package api

import "github.com/coldsnap-io/coldsnap/internal/rules"

// StatusResponse is the body of GET /api/v1/status.
type StatusResponse struct {
	Running         bool     `json:"running"`
	Initialized     bool     `json:"initialized"`
	CheckIntervalMS int64    `json:"check_interval_ms"`
	LastCheck       string   `json:"last_check,omitempty"`
	Providers       []string `json:"providers"`
}

// HistoryResponse is the body of GET /api/v1/history.
type HistoryResponse struct {
	Entries []rules.HistoryEntry `json:"entries"`
	Count   int                  `json:"count"`
}

// NotifyResponse is the body of POST /api/v1/rules/{id}/notify.
type NotifyResponse struct {
	Success   bool   `json:"success"`
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}
