package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAPIKeyMiddleware(t *testing.T) {
	const header = "x-api-key"

	cases := []struct {
		name     string
		mode     string
		key      string
		sent     string
		wantCode int
	}{
		{"mode none passes through", "none", "secret", "", http.StatusOK},
		{"empty key passes through", "apikey", "", "", http.StatusOK},
		{"correct key", "apikey", "secret", "secret", http.StatusOK},
		{"missing key", "apikey", "secret", "", http.StatusUnauthorized},
		{"wrong key", "apikey", "secret", "nope", http.StatusUnauthorized},
		{"prefix is not enough", "apikey", "secret", "secre", http.StatusUnauthorized},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := APIKeyMiddleware(tc.mode, header, tc.key, okHandler())
			req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
			if tc.sent != "" {
				req.Header.Set(header, tc.sent)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tc.wantCode {
				t.Errorf("status: got %d, want %d", rec.Code, tc.wantCode)
			}
		})
	}
}

func TestAPIKeyMiddleware_HeaderCaseInsensitive(t *testing.T) {
	h := APIKeyMiddleware("apikey", "x-api-key", "secret", okHandler())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Api-Key", "secret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status: got %d, want 200", rec.Code)
	}
}
