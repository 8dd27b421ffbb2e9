package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	pushTimeout = 5 * time.Second

	// pushMinPriority..pushMaxPriority is the relay's priority scale;
	// rule priorities are clamped into it.
	pushMinPriority     = 1
	pushMaxPriority     = 5
	pushDefaultPriority = 3
)

// pushTopicRe is the topic syntax accepted by ntfy-compatible relays.
var pushTopicRe = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// PushProvider posts to an ntfy-compatible push relay, public or self-hosted.
// The target is the topic name; title, priority, tags and click action travel
// as request headers, the message as the body.
type PushProvider struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewPushProvider creates a provider for the relay at baseURL. token is the
// optional access token for protected topics; empty disables auth.
func NewPushProvider(baseURL, token string) *PushProvider {
	return &PushProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: pushTimeout},
	}
}

// Name implements Provider.
func (p *PushProvider) Name() string { return "push" }

// ValidateTarget implements Provider: the target must be a syntactically
// valid topic name.
func (p *PushProvider) ValidateTarget(target string) bool {
	return pushTopicRe.MatchString(target)
}

// Send implements Provider.
func (p *PushProvider) Send(ctx context.Context, pl Payload) Result {
	if !p.ValidateTarget(pl.Target) {
		return failure("push: invalid topic %q", pl.Target)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/"+pl.Target, strings.NewReader(pl.Message))
	if err != nil {
		return failure("push: build request: %v", err)
	}

	req.Header.Set("Title", pl.Title)
	req.Header.Set("Priority", strconv.Itoa(clampPriority(pl.Priority)))
	if len(pl.Meta.Tags) > 0 {
		req.Header.Set("Tags", strings.Join(pl.Meta.Tags, ","))
	}
	if pl.Meta.ClickURL != "" {
		req.Header.Set("Click", pl.Meta.ClickURL)
	}
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return failure("push: request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return failure("push: relay returned HTTP %d", resp.StatusCode)
	}

	// The relay answers with a JSON message descriptor; its id becomes the
	// delivery MessageID. A decode failure is not a delivery failure.
	var desc struct {
		ID string `json:"id"`
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
	_ = json.Unmarshal(body, &desc)

	return Result{Success: true, MessageID: desc.ID}
}

func clampPriority(p int) int {
	switch {
	case p == 0:
		return pushDefaultPriority
	case p < pushMinPriority:
		return pushMinPriority
	case p > pushMaxPriority:
		return pushMaxPriority
	default:
		return p
	}
}
