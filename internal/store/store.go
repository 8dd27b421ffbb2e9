package store

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coldsnap-io/coldsnap/internal/rules"
)

//go:embed schema.sql
var schema string

const ruleColumns = `id, name, sensor_id, sensor_type, operator, threshold,
	provider, target, priority, title, message, method, payload_template,
	auth_header, cooldown_seconds, enabled, last_triggered_at, trigger_count`

// Store wraps a pgx connection pool. It is safe for concurrent use; the pool
// is shared with the rest of the process.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to the database at url and verifies the connection.
func New(ctx context.Context, url string) (*Store, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("store: configure pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// EnsureSchema applies the embedded bootstrap DDL. All statements are
// idempotent, so running it on every start is safe.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("store: apply schema: %w", err)
	}
	return nil
}

// ListEnabled returns all enabled rules in a stable order.
func (s *Store) ListEnabled(ctx context.Context) ([]rules.Rule, error) {
	q := `SELECT ` + ruleColumns + ` FROM alert_rules WHERE enabled = TRUE ORDER BY created_at, id`
	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("store: list enabled rules: %w", err)
	}
	defer rows.Close()

	var out []rules.Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan rule: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Rule returns a single rule by id, enabled or not.
func (s *Store) Rule(ctx context.Context, id string) (rules.Rule, error) {
	q := `SELECT ` + ruleColumns + ` FROM alert_rules WHERE id = $1`
	r, err := scanRule(s.pool.QueryRow(ctx, q, id))
	if err != nil {
		return rules.Rule{}, fmt.Errorf("store: rule %s: %w", id, err)
	}
	return r, nil
}

// RecordTrigger marks a successful delivery: last_triggered_at is set to at
// and trigger_count is incremented. Called only after the provider reported
// success — a failed send must leave the cooldown clock untouched.
func (s *Store) RecordTrigger(ctx context.Context, id string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE alert_rules SET last_triggered_at = $2, trigger_count = trigger_count + 1 WHERE id = $1`,
		id, at)
	if err != nil {
		return fmt.Errorf("store: record trigger for %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("store: record trigger: rule %s not found", id)
	}
	return nil
}

// AppendHistory inserts one append-only history row.
func (s *Store) AppendHistory(ctx context.Context, e rules.HistoryEntry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO alert_history (id, rule_id, rule_name, sensor_id, sensor_type, value, outcome, error, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.RuleID, e.RuleName, e.SensorID, e.SensorType, e.Value, string(e.Outcome), e.Error, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("store: append history for rule %s: %w", e.RuleID, err)
	}
	return nil
}

// RecentHistory returns the newest history rows, newest first.
func (s *Store) RecentHistory(ctx context.Context, limit int) ([]rules.HistoryEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, rule_id, rule_name, sensor_id, sensor_type, value, outcome, error, created_at
		 FROM alert_history ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: recent history: %w", err)
	}
	defer rows.Close()

	var out []rules.HistoryEntry
	for rows.Next() {
		var e rules.HistoryEntry
		var outcome string
		if err := rows.Scan(&e.ID, &e.RuleID, &e.RuleName, &e.SensorID, &e.SensorType,
			&e.Value, &outcome, &e.Error, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan history: %w", err)
		}
		e.Outcome = rules.Outcome(outcome)
		out = append(out, e)
	}
	return out, rows.Err()
}

// LatestReading is the time-series point query: the most recent sample since
// the given cutoff for a sensor type and, unless sensorID is the wildcard, a
// specific sensor. Returns pgx.ErrNoRows wrapped when no sample matches.
func (s *Store) LatestReading(ctx context.Context, sensorID, sensorType string, since time.Time) (rules.Reading, error) {
	q := `SELECT sensor_id, sensor_type, value, time FROM sensor_readings
	      WHERE sensor_type = $1 AND time >= $2`
	args := []any{sensorType, since}
	if sensorID != rules.SensorAny {
		q += ` AND sensor_id = $3`
		args = append(args, sensorID)
	}
	q += ` ORDER BY time DESC LIMIT 1`

	var rd rules.Reading
	err := s.pool.QueryRow(ctx, q, args...).Scan(&rd.SensorID, &rd.SensorType, &rd.Value, &rd.Timestamp)
	if err != nil {
		return rules.Reading{}, fmt.Errorf("store: latest reading %s/%s: %w", sensorType, sensorID, err)
	}
	return rd, nil
}

// scanRule maps one alert_rules row onto the domain type.
func scanRule(row pgx.Row) (rules.Rule, error) {
	var r rules.Rule
	var op string
	err := row.Scan(&r.ID, &r.Name, &r.SensorID, &r.SensorType, &op, &r.Threshold,
		&r.Provider, &r.Target, &r.Priority, &r.Title, &r.Message, &r.Method,
		&r.PayloadTemplate, &r.AuthHeader, &r.CooldownSeconds, &r.Enabled,
		&r.LastTriggeredAt, &r.TriggerCount)
	if err != nil {
		return rules.Rule{}, err
	}
	r.Operator = rules.Operator(op)
	return r, nil
}
