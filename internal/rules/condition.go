package rules

import (
	"log/slog"
	"math"
)

// Evaluate applies op to (value, threshold) and reports whether the condition
// holds. It never panics: a NaN or infinite operand returns false (a
// malformed threshold simply never fires), and an operator outside the closed
// set logs a warning and returns false.
func Evaluate(value float64, op Operator, threshold float64) bool {
	if !isFinite(value) || !isFinite(threshold) {
		return false
	}

	switch op {
	case OpGreater:
		return value > threshold
	case OpLess:
		return value < threshold
	case OpGreaterEqual:
		return value >= threshold
	case OpLessEqual:
		return value <= threshold
	case OpEqual:
		return value == threshold
	case OpNotEqual:
		return value != threshold
	default:
		slog.Warn("rules: unknown operator — condition treated as false", "operator", string(op))
		return false
	}
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
