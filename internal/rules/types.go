package rules

import (
	"fmt"
	"time"
)

// Operator is one of the six comparison operators a rule may use.
type Operator string

// The closed operator set. Anything else never fires.
const (
	OpGreater      Operator = ">"
	OpLess         Operator = "<"
	OpGreaterEqual Operator = ">="
	OpLessEqual    Operator = "<="
	OpEqual        Operator = "=="
	OpNotEqual     Operator = "!="
)

// SensorAny is the wildcard sensor selector: the rule matches the most recent
// reading of its sensor type across all sensors.
const SensorAny = "*"

// Valid reports whether op is a member of the closed operator set.
func (op Operator) Valid() bool {
	switch op {
	case OpGreater, OpLess, OpGreaterEqual, OpLessEqual, OpEqual, OpNotEqual:
		return true
	}
	return false
}

// ParseOperator converts an untrusted string into a member of the closed
// operator set.
func ParseOperator(s string) (Operator, error) {
	op := Operator(s)
	if !op.Valid() {
		return "", fmt.Errorf("unknown operator %q", s)
	}
	return op, nil
}

// Rule is a persisted user-authored threshold definition. The engine treats
// it as read-only except for LastTriggeredAt and TriggerCount, which are
// updated through the store after a successful delivery.
type Rule struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	SensorID   string `json:"sensor_id"` // specific sensor, or SensorAny
	SensorType string `json:"sensor_type"`

	Operator  Operator `json:"operator"`
	Threshold float64  `json:"threshold"`

	Provider string `json:"provider"`
	Target   string `json:"target"`
	Priority int    `json:"priority"`

	// Title and Message are optional templates. Empty means the dispatcher
	// builds a default text. See notify.BuildPayload for the placeholder set.
	Title   string `json:"title,omitempty"`
	Message string `json:"message,omitempty"`

	// Webhook-specific extensions, ignored by other providers.
	Method          string `json:"method,omitempty"`
	PayloadTemplate string `json:"payload_template,omitempty"` // raw JSON body override
	AuthHeader      string `json:"auth_header,omitempty"`

	CooldownSeconds int  `json:"cooldown_seconds"`
	Enabled         bool `json:"enabled"`

	LastTriggeredAt *time.Time `json:"last_triggered_at,omitempty"`
	TriggerCount    int64      `json:"trigger_count"`
}

// Cooldown returns the rule's minimum spacing between two deliveries.
func (r Rule) Cooldown() time.Duration {
	return time.Duration(r.CooldownSeconds) * time.Second
}

// InCooldown reports whether a delivery at now would still fall inside the
// cooldown window opened by the last successful trigger.
func (r Rule) InCooldown(now time.Time) bool {
	if r.LastTriggeredAt == nil || r.CooldownSeconds <= 0 {
		return false
	}
	return now.Sub(*r.LastTriggeredAt) < r.Cooldown()
}

// Reading is a single timestamped numeric sample for one sensor. Readings are
// produced by the time-series store and live only for one evaluation.
type Reading struct {
	SensorID   string    `json:"sensor_id"`
	SensorType string    `json:"sensor_type"`
	Value      float64   `json:"value"`
	Timestamp  time.Time `json:"timestamp"`
}

// Outcome classifies one evaluation that produced a history entry.
type Outcome string

const (
	OutcomeSent            Outcome = "sent"
	OutcomeFailed          Outcome = "failed"
	OutcomeCooldownSkipped Outcome = "cooldown_skipped"
)

// HistoryEntry is one append-only audit row: an evaluation that either fired
// a delivery attempt or was suppressed by cooldown. Never updated.
type HistoryEntry struct {
	ID         string    `json:"id"`
	RuleID     string    `json:"rule_id"`
	RuleName   string    `json:"rule_name"`
	SensorID   string    `json:"sensor_id"`
	SensorType string    `json:"sensor_type"`
	Value      float64   `json:"value"`
	Outcome    Outcome   `json:"outcome"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
