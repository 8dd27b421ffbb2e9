package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/coldsnap-io/coldsnap/internal/rules"
)

const (
	webhookTimeout = 10 * time.Second

	// maxWebhookBody caps the serialized request body. Enforced before the
	// network call so an oversized payload never leaves the process.
	maxWebhookBody = 32 * 1024

	// maxWebhookResponse bounds how much of the target's response is read.
	maxWebhookResponse = 4 * 1024
)

// blockedHosts lists known-internal service hostnames of the surrounding
// deployment. Matching is exact, after lowercasing and trailing-dot removal,
// and runs before DNS resolution so trivially-named pivots fail early.
var blockedHosts = map[string]struct{}{
	"localhost":   {},
	"postgres":    {},
	"timescaledb": {},
	"redis":       {},
	"valkey":      {},
	"mosquitto":   {},
	"rabbitmq":    {},
	"nginx":       {},
	"traefik":     {},
}

// blockedSuffixes rejects whole internal naming zones.
var blockedSuffixes = []string{".local", ".internal"}

// privateRanges are the address ranges an outbound webhook must never reach:
// loopback, RFC1918, link-local, unique-local IPv6, CGNAT, and 0.0.0.0/8.
var privateRanges = []netip.Prefix{
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("169.254.0.0/16"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("::1/128"),
	netip.MustParsePrefix("fe80::/10"),
	netip.MustParsePrefix("fc00::/7"),
}

// Validation chain rejections. Stable human-readable texts: they end up in
// history rows and dry-run responses.
var (
	errMalformedURL   = errors.New("target URL is malformed")
	errSchemeNotHTTPS = errors.New("only https targets are allowed")
	errHostBlocked    = errors.New("target hostname is on the internal blocklist")
	errResolveFailed  = errors.New("target hostname did not resolve")
	errResolveEmpty   = errors.New("target hostname resolved to no addresses")
	errAddrPrivate    = errors.New("target resolves to a private or reserved address")
)

var allowedMethods = map[string]struct{}{
	http.MethodGet:   {},
	http.MethodPost:  {},
	http.MethodPut:   {},
	http.MethodPatch: {},
}

// webhookEnvelope is the auto-built request body used when the rule does not
// supply a raw JSON override.
type webhookEnvelope struct {
	Event       string        `json:"event"`
	RuleID      string        `json:"rule_id"`
	Title       string        `json:"title"`
	Message     string        `json:"message"`
	Sensor      rules.Reading `json:"sensor"`
	TriggeredAt string        `json:"triggered_at"`
}

// WebhookProvider delivers alerts to arbitrary user-supplied HTTPS endpoints.
//
// Because targets are attacker-controllable strings, every send walks a
// fail-closed validation chain: URL parse, HTTPS-only scheme, internal
// hostname blocklist, DNS resolution with a private/reserved range check on
// every resolved address, method whitelist, and a body size cap. Redirects
// are never followed. The policy is fixed, not configurable.
type WebhookProvider struct {
	client *http.Client

	// resolve is the DNS hook; replaced in tests.
	resolve func(ctx context.Context, host string) ([]netip.Addr, error)
}

// NewWebhookProvider creates the provider with its fixed security policy.
func NewWebhookProvider() *WebhookProvider {
	return &WebhookProvider{
		client: &http.Client{
			Timeout: webhookTimeout,
			// Surface 3xx responses instead of following them. A redirect
			// after validation passed is the classic SSRF bypass.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		resolve: func(ctx context.Context, host string) ([]netip.Addr, error) {
			return net.DefaultResolver.LookupNetIP(ctx, "ip", host)
		},
	}
}

// Name implements Provider.
func (w *WebhookProvider) Name() string { return "webhook" }

// ValidateTarget performs the static subset of the send-time chain: scheme
// and hostname blocklist. No DNS or network I/O, so the rule-authoring path
// can call it synchronously. DNS-dependent checks re-run on every send.
func (w *WebhookProvider) ValidateTarget(target string) bool {
	_, err := parseTarget(target)
	return err == nil
}

// Send implements Provider. See the type doc for the validation chain.
func (w *WebhookProvider) Send(ctx context.Context, p Payload) Result {
	u, err := parseTarget(p.Target)
	if err != nil {
		return failure("webhook: %v", err)
	}

	// DNS runs at send time, not only at rule creation: the name can be
	// re-pointed at an internal address between the two (DNS rebinding).
	if err := w.resolveAndCheck(ctx, u.Hostname()); err != nil {
		return failure("webhook: %v", err)
	}

	method := strings.ToUpper(p.Meta.Method)
	if method == "" {
		method = http.MethodPost
	}
	if _, ok := allowedMethods[method]; !ok {
		return failure("webhook: method %q not allowed (want GET, POST, PUT or PATCH)", method)
	}

	body, err := buildWebhookBody(p)
	if err != nil {
		return failure("webhook: %v", err)
	}
	if len(body) > maxWebhookBody {
		return failure("webhook: body of %d bytes exceeds %d byte limit", len(body), maxWebhookBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), strings.NewReader(string(body)))
	if err != nil {
		return failure("webhook: build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if name, value, ok := splitAuthHeader(p.Meta.AuthHeader); ok {
		req.Header.Set(name, value)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return failure("webhook: request failed: %v", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxWebhookResponse)) //nolint:errcheck

	switch {
	case resp.StatusCode >= 300 && resp.StatusCode < 400:
		return failure("webhook: redirect suppressed (HTTP %d)", resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return failure("webhook: target returned HTTP %d", resp.StatusCode)
	}

	return Result{Success: true, MessageID: uuid.NewString()}
}

// parseTarget runs the static checks: URL parse, HTTPS scheme, hostname
// blocklist. Returns the parsed URL on success.
func parseTarget(target string) (*url.URL, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, errMalformedURL
	}
	if u.Scheme != "https" {
		return nil, errSchemeNotHTTPS
	}
	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if host == "" {
		return nil, errMalformedURL
	}
	if _, ok := blockedHosts[host]; ok {
		return nil, errHostBlocked
	}
	for _, suffix := range blockedSuffixes {
		if strings.HasSuffix(host, suffix) {
			return nil, errHostBlocked
		}
	}
	return u, nil
}

// resolveAndCheck resolves host to all of its addresses and rejects the send
// if resolution fails, yields nothing, or any address is private/reserved.
// "Any" rather than "all": a mixed public/internal answer is exactly what a
// rebinding attack looks like.
func (w *WebhookProvider) resolveAndCheck(ctx context.Context, host string) error {
	if addr, err := netip.ParseAddr(host); err == nil {
		if isPrivateAddr(addr) {
			return errAddrPrivate
		}
		return nil
	}

	addrs, err := w.resolve(ctx, host)
	if err != nil {
		return errResolveFailed
	}
	if len(addrs) == 0 {
		return errResolveEmpty
	}
	for _, addr := range addrs {
		if isPrivateAddr(addr) {
			return errAddrPrivate
		}
	}
	return nil
}

func isPrivateAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, p := range privateRanges {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// buildWebhookBody returns either the rule's raw JSON override verbatim or
// the auto-built structured envelope.
func buildWebhookBody(p Payload) ([]byte, error) {
	if p.Meta.RawBody != "" {
		return []byte(p.Meta.RawBody), nil
	}
	return json.Marshal(webhookEnvelope{
		Event:       "alert.triggered",
		RuleID:      p.Meta.RuleID,
		Title:       p.Title,
		Message:     p.Message,
		Sensor:      p.Meta.Sensor,
		TriggeredAt: p.Meta.TriggeredAt.UTC().Format(time.RFC3339),
	})
}

// splitAuthHeader interprets the operator-configured auth string either as a
// "Header-Name: value" pair (split on the first colon) or, with no colon, as
// a bearer token for the Authorization header.
func splitAuthHeader(s string) (name, value string, ok bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", "", false
	}
	if n, v, found := strings.Cut(s, ":"); found {
		return strings.TrimSpace(n), strings.TrimSpace(v), true
	}
	return "Authorization", "Bearer " + s, true
}
