package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/coldsnap-io/coldsnap/internal/rules"
)

// Provider is a delivery channel. Implementations must be safe for
// concurrent use.
type Provider interface {
	// Name is the stable identifier persisted in rule definitions and used
	// for registry lookup. Case-sensitive.
	Name() string

	// ValidateTarget is a cheap, synchronous syntactic check on a target
	// string. It performs no network I/O, so it is safe to call from the
	// rule-authoring path. A passing target may still be rejected at send
	// time by checks that require resolution.
	ValidateTarget(target string) bool

	// Send delivers the payload. It never returns a Go error: all failure
	// modes are reported through the Result.
	Send(ctx context.Context, p Payload) Result
}

// Result is the uniform outcome of one delivery attempt.
type Result struct {
	Success   bool   `json:"success"`
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

func failure(format string, args ...any) Result {
	return Result{Success: false, Error: fmt.Sprintf(format, args...)}
}

// Payload is one notification, constructed per dispatch and discarded after.
type Payload struct {
	Target   string
	Title    string
	Message  string
	Priority int
	Meta     Meta
}

// Meta carries provider-specific extension data alongside the common fields.
// Providers read only the fields they understand.
type Meta struct {
	RuleID      string
	TriggeredAt time.Time

	// Push extensions.
	Tags     []string
	ClickURL string

	// Webhook extensions.
	Method     string
	RawBody    string // verbatim JSON body override; empty means auto-build
	AuthHeader string
	Sensor     rules.Reading // snapshot of the triggering reading
}
