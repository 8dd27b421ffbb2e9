package notify

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/coldsnap-io/coldsnap/internal/rules"
)

// BuildPayload constructs the notification payload for a rule firing on a
// reading. Custom title/message templates take precedence over the built-in
// defaults; both paths never fail.
func BuildPayload(r rules.Rule, rd rules.Reading) Payload {
	title := fmt.Sprintf("⚠ %s", r.Name)
	if r.Title != "" {
		title = interpolate(r.Title, r, rd)
	}

	message := defaultMessage(r, rd)
	if r.Message != "" {
		message = interpolate(r.Message, r, rd)
	}

	return Payload{
		Target:   r.Target,
		Title:    title,
		Message:  message,
		Priority: r.Priority,
		Meta: Meta{
			RuleID:      r.ID,
			TriggeredAt: rd.Timestamp,
			Tags:        TagsFor(rd.SensorType),
			Method:      r.Method,
			RawBody:     r.PayloadTemplate,
			AuthHeader:  r.AuthHeader,
			Sensor:      rd,
		},
	}
}

// defaultMessage renders the built-in human-readable text, e.g.
// "temperature exceeded 30: 31.2 on sensor box1 at 2026-08-24T10:00:00Z".
func defaultMessage(r rules.Rule, rd rules.Reading) string {
	return fmt.Sprintf("%s %s %s: %s on sensor %s at %s",
		rd.SensorType,
		operatorVerb(r.Operator),
		formatValue(r.Threshold),
		formatValue(rd.Value),
		rd.SensorID,
		rd.Timestamp.UTC().Format(time.RFC3339),
	)
}

// interpolate substitutes the six known placeholders. Substitution is a
// fixed, ordered replace chain; placeholders outside the known set pass
// through untouched. A missing value substitutes to the empty string.
func interpolate(tmpl string, r rules.Rule, rd rules.Reading) string {
	repl := strings.NewReplacer(
		"{{sensor_type}}", rd.SensorType,
		"{{sensor_id}}", rd.SensorID,
		"{{value}}", formatValue(rd.Value),
		"{{threshold}}", formatValue(r.Threshold),
		"{{condition}}", string(r.Operator),
		"{{name}}", r.Name,
	)
	return repl.Replace(tmpl)
}

// operatorVerb maps a comparison operator to the action verb used in the
// default message.
func operatorVerb(op rules.Operator) string {
	switch op {
	case rules.OpGreater:
		return "exceeded"
	case rules.OpGreaterEqual:
		return "reached"
	case rules.OpLess:
		return "dropped below"
	case rules.OpLessEqual:
		return "fell to"
	case rules.OpEqual:
		return "hit exactly"
	case rules.OpNotEqual:
		return "deviated from"
	default:
		return "crossed"
	}
}

// formatValue renders a float without a trailing ".0" for whole numbers,
// so "{{value}}" with 42.0 interpolates as "42".
func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// sensorTags maps well-known sensor types to the visual tags push relays
// render as emoji.
var sensorTags = map[string][]string{
	"temperature": {"thermometer"},
	"humidity":    {"droplet"},
	"pressure":    {"level_slider"},
	"battery":     {"battery"},
	"motion":      {"eyes"},
	"door":        {"door"},
	"leak":        {"sweat_drops"},
}

// TagsFor derives semantic tags from a sensor type for providers that
// support visual tagging. Unrecognised types get the generic "alert" tag.
func TagsFor(sensorType string) []string {
	if tags, ok := sensorTags[strings.ToLower(sensorType)]; ok {
		return tags
	}
	return []string{"alert"}
}
