package readings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"

	"github.com/coldsnap-io/coldsnap/internal/rules"
)

// Window is the fixed recency bound: a sample older than this is treated as
// absent. Matches the staleness horizon of the ingest pipeline.
const Window = 5 * time.Minute

// ErrNoReading reports that neither the cache nor the time-series store has
// a fresh sample for the selector. Not an error condition for the engine —
// the rule is silently skipped.
var ErrNoReading = errors.New("no recent reading")

// pointQuerier is the narrow time-series contract consumed here, satisfied
// by *store.Store.
type pointQuerier interface {
	LatestReading(ctx context.Context, sensorID, sensorType string, since time.Time) (rules.Reading, error)
}

// Source resolves the latest reading for a rule's sensor selector.
//
// The hot path is the Redis key "reading:last:<type>:<id>" holding the
// JSON-encoded latest sample per sensor (the ingest pipeline overwrites it on
// every point). Wildcard selectors, cache misses, stale cache hits and Redis
// outages all fall through to Postgres.
type Source struct {
	rdb   *redis.Client // nil disables the cache
	query pointQuerier
	now   func() time.Time // injectable for deterministic tests
}

// New creates a Source. rdb may be nil, leaving Postgres as the only path.
func New(rdb *redis.Client, query pointQuerier) *Source {
	return &Source{rdb: rdb, query: query, now: time.Now}
}

// Latest returns the most recent sample within Window for the selector, or
// ErrNoReading. sensorID may be rules.SensorAny.
func (s *Source) Latest(ctx context.Context, sensorID, sensorType string) (rules.Reading, error) {
	now := s.now()

	// The per-sensor cache cannot answer "newest across all sensors".
	if s.rdb != nil && sensorID != rules.SensorAny {
		if rd, ok := s.fromCache(ctx, sensorID, sensorType, now); ok {
			return rd, nil
		}
	}

	rd, err := s.query.LatestReading(ctx, sensorID, sensorType, now.Add(-Window))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return rules.Reading{}, ErrNoReading
		}
		return rules.Reading{}, fmt.Errorf("readings: %w", err)
	}
	return rd, nil
}

// fromCache tries the Redis hot path. Any miss, decode problem or stale
// timestamp returns ok=false so the caller falls through to Postgres.
func (s *Source) fromCache(ctx context.Context, sensorID, sensorType string, now time.Time) (rules.Reading, bool) {
	raw, err := s.rdb.Get(ctx, cacheKey(sensorID, sensorType)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Warn("readings: cache lookup failed — falling back to store",
				"sensor_id", sensorID, "sensor_type", sensorType, "err", err)
		}
		return rules.Reading{}, false
	}

	var rd rules.Reading
	if err := json.Unmarshal([]byte(raw), &rd); err != nil {
		slog.Warn("readings: undecodable cache entry — falling back to store",
			"sensor_id", sensorID, "err", err)
		return rules.Reading{}, false
	}
	if now.Sub(rd.Timestamp) > Window {
		return rules.Reading{}, false
	}
	return rd, true
}

func cacheKey(sensorID, sensorType string) string {
	return "reading:last:" + sensorType + ":" + sensorID
}
