package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/coldsnap-io/coldsnap/internal/engine"
	"github.com/coldsnap-io/coldsnap/internal/notify"
	"github.com/coldsnap-io/coldsnap/internal/rules"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// RuleStore is the slice of the relational store the API reads from.
type RuleStore interface {
	Rule(ctx context.Context, id string) (rules.Rule, error)
	RecentHistory(ctx context.Context, limit int) ([]rules.HistoryEntry, error)
}

// Handler is the HTTP handler for all /api/v1/* endpoints.
type Handler struct {
	store      RuleStore
	engine     *engine.Engine
	dispatcher *notify.Dispatcher
	mux        *http.ServeMux
}

// New creates a Handler wired to the store, engine and dispatcher, and
// registers all routes.
func New(st RuleStore, e *engine.Engine, d *notify.Dispatcher) http.Handler {
	h := &Handler{store: st, engine: e, dispatcher: d, mux: http.NewServeMux()}

	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/status", h.status)
	h.mux.HandleFunc("/api/v1/history", h.history)
	h.mux.HandleFunc("/api/v1/rules/", h.ruleActions) // subtree — extracts {id}/{action}
	h.mux.HandleFunc("/api/v1/evaluate", h.evaluate)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health — a liveness probe.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, map[string]string{"status": "ok"})
}

// status returns GET /api/v1/status — the engine health snapshot.
func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	s := h.engine.Status()
	resp := StatusResponse{
		Running:         s.Running,
		Initialized:     s.Initialized,
		CheckIntervalMS: s.CheckInterval.Milliseconds(),
		Providers:       h.dispatcher.Names(),
	}
	if !s.LastCheck.IsZero() {
		resp.LastCheck = s.LastCheck.UTC().Format(time.RFC3339)
	}
	jsonResp(w, http.StatusOK, resp)
}

// history returns GET /api/v1/history — the newest history rows, newest
// first. ?limit= caps the page size.
func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			jsonErr(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	entries, err := h.store.RecentHistory(r.Context(), limit)
	if err != nil {
		jsonErr(w, http.StatusInternalServerError, "history unavailable")
		return
	}
	if entries == nil {
		entries = []rules.HistoryEntry{}
	}
	jsonResp(w, http.StatusOK, HistoryResponse{Entries: entries, Count: len(entries)})
}

// ruleActions dispatches POST /api/v1/rules/{id}/test and
// POST /api/v1/rules/{id}/notify.
func (h *Handler) ruleActions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/rules/")
	id, action, ok := strings.Cut(rest, "/")
	if !ok || id == "" {
		jsonErr(w, http.StatusNotFound, "not found")
		return
	}

	rule, err := h.store.Rule(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			jsonErr(w, http.StatusNotFound, "rule not found")
			return
		}
		jsonErr(w, http.StatusInternalServerError, "rule lookup failed")
		return
	}

	switch action {
	case "test":
		jsonResp(w, http.StatusOK, h.engine.TestRule(r.Context(), rule))
	case "notify":
		res := h.engine.TestNotification(r.Context(), rule)
		jsonResp(w, http.StatusOK, NotifyResponse{
			Success:   res.Success,
			MessageID: res.MessageID,
			Error:     res.Error,
		})
	default:
		jsonErr(w, http.StatusNotFound, "not found")
	}
}

// evaluate runs POST /api/v1/evaluate — one out-of-band evaluation cycle,
// synchronously.
func (h *Handler) evaluate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	h.engine.ForceEvaluation(r.Context())
	jsonResp(w, http.StatusOK, map[string]string{"status": "evaluated"})
}

// --- helpers ----------------------------------------------------------------

func jsonResp(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
