package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/coldsnap-io/coldsnap/internal/rules"
)

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

// publicResolver stubs DNS to a public address so tests exercise the stages
// after resolution.
func publicResolver(context.Context, string) ([]netip.Addr, error) {
	return []netip.Addr{netip.MustParseAddr("93.184.216.34")}, nil
}

// newTestWebhook returns a provider whose DNS and transport are stubbed.
// rt == nil installs a transport that fails the test if any request escapes.
func newTestWebhook(t *testing.T, rt roundTripperFunc) *WebhookProvider {
	t.Helper()
	w := NewWebhookProvider()
	w.resolve = publicResolver
	if rt == nil {
		rt = func(r *http.Request) (*http.Response, error) {
			t.Fatalf("unexpected HTTP request to %s", r.URL)
			return nil, nil
		}
	}
	w.client.Transport = rt
	return w
}

func respond(status int) roundTripperFunc {
	return func(*http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: status,
			Body:       io.NopCloser(strings.NewReader("")),
			Header:     make(http.Header),
		}, nil
	}
}

func TestWebhook_ValidateTarget(t *testing.T) {
	w := NewWebhookProvider()
	cases := []struct {
		target string
		want   bool
	}{
		{"https://example.com/hook", true},
		{"https://hooks.example.com:8443/a/b", true},
		{"http://example.com/hook", false}, // plaintext scheme
		{"ftp://example.com", false},
		{"https://localhost/hook", false},
		{"https://redis/hook", false},
		{"https://Postgres./hook", false}, // case + trailing dot normalised
		{"https://db.cluster.internal/hook", false},
		{"https://printer.local/hook", false},
		{"https://", false},
		{"not a url", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := w.ValidateTarget(tc.target); got != tc.want {
			t.Errorf("ValidateTarget(%q) = %v, want %v", tc.target, got, tc.want)
		}
	}
}

func TestWebhook_RejectsPlaintextScheme(t *testing.T) {
	w := newTestWebhook(t, nil)
	w.resolve = func(context.Context, string) ([]netip.Addr, error) {
		t.Fatal("resolve called for a target that fails static checks")
		return nil, nil
	}

	res := w.Send(context.Background(), Payload{Target: "http://example.com/hook"})
	if res.Success {
		t.Fatal("http target: want failure")
	}
	if !strings.Contains(res.Error, "https") {
		t.Errorf("Error: got %q, want scheme rejection", res.Error)
	}
}

func TestWebhook_RejectsLoopbackResolution(t *testing.T) {
	w := newTestWebhook(t, nil) // transport fails the test if reached
	w.resolve = func(context.Context, string) ([]netip.Addr, error) {
		return []netip.Addr{netip.MustParseAddr("127.0.0.1")}, nil
	}

	res := w.Send(context.Background(), Payload{Target: "https://rebind.example.com/hook"})
	if res.Success {
		t.Fatal("loopback resolution: want failure")
	}
	if !strings.Contains(res.Error, "private or reserved") {
		t.Errorf("Error: got %q", res.Error)
	}
}

// A hostname resolving to one public and one internal address is rejected:
// a mixed answer is the DNS-rebinding shape.
func TestWebhook_RejectsMixedResolution(t *testing.T) {
	w := newTestWebhook(t, nil)
	w.resolve = func(context.Context, string) ([]netip.Addr, error) {
		return []netip.Addr{
			netip.MustParseAddr("93.184.216.34"),
			netip.MustParseAddr("10.0.0.5"),
		}, nil
	}

	if res := w.Send(context.Background(), Payload{Target: "https://evil.example.com/"}); res.Success {
		t.Fatal("mixed public/private resolution: want failure")
	}
}

func TestWebhook_RejectsPrivateRanges(t *testing.T) {
	private := []string{
		"127.0.0.1", "10.1.2.3", "172.16.0.1", "172.31.255.255", "192.168.1.1",
		"169.254.169.254", "100.64.0.1", "0.0.0.0",
		"::1", "fe80::1", "fc00::1", "fd12::1",
		"::ffff:192.168.1.1", // IPv4-mapped
	}
	for _, ip := range private {
		if !isPrivateAddr(netip.MustParseAddr(ip)) {
			t.Errorf("isPrivateAddr(%s) = false, want true", ip)
		}
	}
	public := []string{"93.184.216.34", "8.8.8.8", "172.32.0.1", "2606:4700::1111"}
	for _, ip := range public {
		if isPrivateAddr(netip.MustParseAddr(ip)) {
			t.Errorf("isPrivateAddr(%s) = true, want false", ip)
		}
	}
}

func TestWebhook_RejectsIPLiteralTargets(t *testing.T) {
	w := newTestWebhook(t, nil)
	w.resolve = func(context.Context, string) ([]netip.Addr, error) {
		t.Fatal("IP literals must not hit DNS")
		return nil, nil
	}
	if res := w.Send(context.Background(), Payload{Target: "https://192.168.1.10/hook"}); res.Success {
		t.Fatal("private IP literal: want failure")
	}
}

func TestWebhook_FailsClosedOnEmptyResolution(t *testing.T) {
	w := newTestWebhook(t, nil)
	w.resolve = func(context.Context, string) ([]netip.Addr, error) {
		return nil, nil
	}
	if res := w.Send(context.Background(), Payload{Target: "https://gone.example.com/"}); res.Success {
		t.Fatal("empty resolution: want failure")
	}
}

func TestWebhook_MethodWhitelist(t *testing.T) {
	w := newTestWebhook(t, nil)
	res := w.Send(context.Background(), Payload{
		Target: "https://example.com/hook",
		Meta:   Meta{Method: "DELETE"},
	})
	if res.Success {
		t.Fatal("DELETE: want failure")
	}
	if !strings.Contains(res.Error, "DELETE") {
		t.Errorf("Error: got %q, want method named", res.Error)
	}
}

func TestWebhook_BodyCapPreflight(t *testing.T) {
	w := newTestWebhook(t, nil) // no request may leave
	res := w.Send(context.Background(), Payload{
		Target: "https://example.com/hook",
		Meta:   Meta{RawBody: `{"pad":"` + strings.Repeat("x", maxWebhookBody) + `"}`},
	})
	if res.Success {
		t.Fatal("oversized body: want failure")
	}
	if !strings.Contains(res.Error, "byte limit") {
		t.Errorf("Error: got %q", res.Error)
	}
}

func TestWebhook_RedirectIsFailure(t *testing.T) {
	w := newTestWebhook(t, respond(http.StatusMovedPermanently))
	res := w.Send(context.Background(), Payload{Target: "https://example.com/hook"})
	if res.Success {
		t.Fatal("301 response: want failure")
	}
	if !strings.Contains(res.Error, "redirect") {
		t.Errorf("Error: got %q", res.Error)
	}
}

func TestWebhook_Non2xxIsFailure(t *testing.T) {
	w := newTestWebhook(t, respond(http.StatusBadGateway))
	res := w.Send(context.Background(), Payload{Target: "https://example.com/hook"})
	if res.Success {
		t.Fatal("502 response: want failure")
	}
	if !strings.Contains(res.Error, "502") {
		t.Errorf("Error: got %q, want status carried", res.Error)
	}
}

func TestWebhook_SuccessSendsEnvelope(t *testing.T) {
	var got *http.Request
	var body []byte
	w := newTestWebhook(t, func(r *http.Request) (*http.Response, error) {
		got = r
		body, _ = io.ReadAll(r.Body)
		return respond(http.StatusOK)(r)
	})

	ts := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	res := w.Send(context.Background(), Payload{
		Target:  "https://example.com/hook",
		Title:   "⚠ Freezer warm",
		Message: "temperature exceeded 30",
		Meta: Meta{
			RuleID:      "r-1",
			TriggeredAt: ts,
			AuthHeader:  "s3cret",
			Sensor:      rules.Reading{SensorID: "box1", SensorType: "temperature", Value: 31.2, Timestamp: ts},
		},
	})
	if !res.Success {
		t.Fatalf("Send: %s", res.Error)
	}
	if res.MessageID == "" {
		t.Error("MessageID: want non-empty")
	}

	if got.Method != http.MethodPost {
		t.Errorf("method: got %s, want POST", got.Method)
	}
	if ct := got.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q", ct)
	}
	if ah := got.Header.Get("Authorization"); ah != "Bearer s3cret" {
		t.Errorf("Authorization: got %q, want bearer wrap", ah)
	}

	var env webhookEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		t.Fatalf("envelope: %v", err)
	}
	if env.Event != "alert.triggered" || env.RuleID != "r-1" {
		t.Errorf("envelope: %+v", env)
	}
	if env.Sensor.Value != 31.2 || env.TriggeredAt != "2026-08-24T10:00:00Z" {
		t.Errorf("envelope sensor/timestamp: %+v", env)
	}
}

func TestWebhook_RawBodyVerbatim(t *testing.T) {
	var body []byte
	w := newTestWebhook(t, func(r *http.Request) (*http.Response, error) {
		body, _ = io.ReadAll(r.Body)
		return respond(http.StatusOK)(r)
	})

	raw := `{"custom":true}`
	res := w.Send(context.Background(), Payload{
		Target: "https://example.com/hook",
		Meta:   Meta{RawBody: raw, Method: "put"},
	})
	if !res.Success {
		t.Fatalf("Send: %s", res.Error)
	}
	if string(body) != raw {
		t.Errorf("body: got %q, want verbatim override", body)
	}
}

func TestSplitAuthHeader(t *testing.T) {
	cases := []struct {
		in          string
		name, value string
		ok          bool
	}{
		{"", "", "", false},
		{"   ", "", "", false},
		{"tok123", "Authorization", "Bearer tok123", true},
		{"X-Api-Key: abc", "X-Api-Key", "abc", true},
		{"X-Thing: a:b:c", "X-Thing", "a:b:c", true},
	}
	for _, tc := range cases {
		name, value, ok := splitAuthHeader(tc.in)
		if name != tc.name || value != tc.value || ok != tc.ok {
			t.Errorf("splitAuthHeader(%q) = (%q, %q, %v), want (%q, %q, %v)",
				tc.in, name, value, ok, tc.name, tc.value, tc.ok)
		}
	}
}
