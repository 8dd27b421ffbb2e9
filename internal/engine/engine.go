package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/coldsnap-io/coldsnap/internal/metrics"
	"github.com/coldsnap-io/coldsnap/internal/notify"
	"github.com/coldsnap-io/coldsnap/internal/readings"
	"github.com/coldsnap-io/coldsnap/internal/recent"
	"github.com/coldsnap-io/coldsnap/internal/rules"
)

// DefaultCheckInterval is used when the configuration does not set one.
const DefaultCheckInterval = 60 * time.Second

// RuleSource is the slice of the relational store the engine consumes.
type RuleSource interface {
	ListEnabled(ctx context.Context) ([]rules.Rule, error)
	RecordTrigger(ctx context.Context, id string, at time.Time) error
	AppendHistory(ctx context.Context, e rules.HistoryEntry) error
}

// ReadingSource answers the latest-sample point query, satisfied by
// *readings.Source.
type ReadingSource interface {
	Latest(ctx context.Context, sensorID, sensorType string) (rules.Reading, error)
}

// Status is the engine's health snapshot for external reporting.
type Status struct {
	Running       bool          `json:"running"`
	Initialized   bool          `json:"initialized"`
	CheckInterval time.Duration `json:"-"`
	LastCheck     time.Time     `json:"last_check"`
}

// TestResult is the outcome of a dry-run evaluation: what a real cycle would
// have done for the rule, without dispatching or persisting anything.
type TestResult struct {
	Success      bool           `json:"success"`
	Reading      *rules.Reading `json:"sensor_data,omitempty"`
	ConditionMet bool           `json:"condition_met"`
	InCooldown   bool           `json:"in_cooldown"`
	WouldTrigger bool           `json:"would_trigger"`
	Message      string         `json:"message"`
}

// Engine is the evaluation scheduler. States: uninitialized → idle →
// running. All exported methods are safe for concurrent use.
type Engine struct {
	mu          sync.Mutex
	interval    time.Duration
	initialized bool
	running     bool
	lastCheck   time.Time
	stop        chan struct{}

	store      RuleSource
	readings   ReadingSource
	dispatcher *notify.Dispatcher
	buffer     *recent.Buffer // optional live-surface feed; nil disables

	now   func() time.Time // injectable for deterministic tests
	newID func() string
}

// New creates an uninitialized engine. A non-positive interval falls back to
// DefaultCheckInterval.
func New(interval time.Duration) *Engine {
	if interval <= 0 {
		interval = DefaultCheckInterval
	}
	return &Engine{
		interval: interval,
		stop:     make(chan struct{}),
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Initialize binds the collaborators. It must be called exactly once before
// Start; a second call is rejected.
func (e *Engine) Initialize(store RuleSource, rds ReadingSource, d *notify.Dispatcher, buf *recent.Buffer) error {
	if store == nil || rds == nil || d == nil {
		return errors.New("engine: initialize requires store, readings and dispatcher")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.initialized {
		return errors.New("engine: already initialized")
	}
	e.store = store
	e.readings = rds
	e.dispatcher = d
	e.buffer = buf
	e.initialized = true
	return nil
}

// Start runs one evaluation cycle immediately, then evaluates on the
// configured interval until Stop is called or ctx is cancelled. Starting a
// running engine is a no-op with a logged warning.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if !e.initialized {
		e.mu.Unlock()
		return errors.New("engine: start before initialize")
	}
	if e.running {
		e.mu.Unlock()
		slog.Warn("engine: already running — start ignored")
		return nil
	}
	e.running = true
	stop := e.stop
	e.mu.Unlock()

	slog.Info("engine: starting", "interval", e.Interval())

	go func() {
		e.EvaluateRules(ctx)

		timer := time.NewTimer(e.Interval())
		defer timer.Stop()
		for {
			select {
			case <-ctx.Done():
				e.markStopped()
				return
			case <-stop:
				return
			case <-timer.C:
				// Stop may have raced the tick; never run a cycle after it.
				select {
				case <-stop:
					return
				default:
				}
				e.EvaluateRules(ctx)
				// Re-arm after the cycle returns: two ticks never overlap,
				// a long cycle just delays the next one.
				timer.Reset(e.Interval())
			}
		}
	}()
	return nil
}

// Stop cancels future scheduled ticks. An in-flight cycle finishes.
// Idempotent.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return
	}
	close(e.stop)
	e.stop = make(chan struct{}) // allow a later restart
	e.running = false
	slog.Info("engine: stopped")
}

func (e *Engine) markStopped() {
	e.mu.Lock()
	e.running = false
	e.mu.Unlock()
}

// Interval returns the current evaluation interval.
func (e *Engine) Interval() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.interval
}

// SetInterval changes the evaluation interval. A running engine picks the
// new value up when the current timer fires. Non-positive values are ignored.
func (e *Engine) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	e.mu.Lock()
	changed := d != e.interval
	e.interval = d
	e.mu.Unlock()
	if changed {
		slog.Info("engine: check interval updated", "interval", d)
	}
}

// Status returns the health snapshot.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Status{
		Running:       e.running,
		Initialized:   e.initialized,
		CheckInterval: e.interval,
		LastCheck:     e.lastCheck,
	}
}

// EvaluateRules runs one evaluation cycle: list enabled rules, then evaluate
// each sequentially. Only the rule-list failure aborts the cycle; every
// other failure is contained to its rule. The last-check time is recorded
// regardless of outcome.
func (e *Engine) EvaluateRules(ctx context.Context) {
	started := e.now()
	defer func() {
		e.mu.Lock()
		e.lastCheck = e.now()
		e.mu.Unlock()
		metrics.EvaluationCyclesTotal.Inc()
		metrics.EvaluationCycleDuration.Observe(e.now().Sub(started).Seconds())
	}()

	list, err := e.store.ListEnabled(ctx)
	if err != nil {
		metrics.StoreErrorsTotal.Inc()
		slog.Error("engine: listing rules failed — skipping cycle", "err", err)
		return
	}

	for _, r := range list {
		if err := e.evaluateRule(ctx, r); err != nil {
			slog.Error("engine: rule evaluation failed",
				"rule", r.ID, "name", r.Name, "err", err)
		}
	}
}

// ForceEvaluation runs one out-of-band cycle immediately, bypassing the
// timer.
func (e *Engine) ForceEvaluation(ctx context.Context) {
	e.EvaluateRules(ctx)
}

// evaluateRule is one pass of the per-rule pipeline: fetch, evaluate,
// cooldown, dispatch, record.
func (e *Engine) evaluateRule(ctx context.Context, r rules.Rule) error {
	metrics.RulesEvaluatedTotal.Inc()

	rd, err := e.readings.Latest(ctx, r.SensorID, r.SensorType)
	if errors.Is(err, readings.ErrNoReading) {
		// Nothing to report: only potential triggers produce history.
		return nil
	}
	if err != nil {
		return fmt.Errorf("fetch reading: %w", err)
	}

	if !rules.Evaluate(rd.Value, r.Operator, r.Threshold) {
		return nil
	}

	now := e.now()
	if r.InCooldown(now) {
		metrics.CooldownSkipsTotal.Inc()
		e.record(ctx, r, rd, rules.OutcomeCooldownSkipped, "")
		return nil
	}

	res := e.dispatcher.Send(ctx, r.Provider, notify.BuildPayload(r, rd))
	if !res.Success {
		metrics.NotificationsTotal.WithLabelValues(r.Provider, "failed").Inc()
		slog.Warn("engine: delivery failed",
			"rule", r.ID, "provider", r.Provider, "err", res.Error)
		// Cooldown state deliberately untouched: the next tick retries
		// instead of going silent for the whole window.
		e.record(ctx, r, rd, rules.OutcomeFailed, res.Error)
		return nil
	}

	metrics.NotificationsTotal.WithLabelValues(r.Provider, "sent").Inc()
	slog.Info("engine: alert sent",
		"rule", r.ID, "name", r.Name, "provider", r.Provider,
		"value", rd.Value, "message_id", res.MessageID)

	if err := e.store.RecordTrigger(ctx, r.ID, now); err != nil {
		slog.Error("engine: recording trigger failed", "rule", r.ID, "err", err)
	}
	e.record(ctx, r, rd, rules.OutcomeSent, "")
	return nil
}

// record appends one history row and feeds the live buffer. History-write
// failures are logged, never propagated: losing an audit row must not abort
// the rule or the cycle.
func (e *Engine) record(ctx context.Context, r rules.Rule, rd rules.Reading, outcome rules.Outcome, errText string) {
	entry := rules.HistoryEntry{
		ID:         e.newID(),
		RuleID:     r.ID,
		RuleName:   r.Name,
		SensorID:   rd.SensorID,
		SensorType: rd.SensorType,
		Value:      rd.Value,
		Outcome:    outcome,
		Error:      errText,
		CreatedAt:  e.now(),
	}
	if err := e.store.AppendHistory(ctx, entry); err != nil {
		slog.Error("engine: appending history failed", "rule", r.ID, "err", err)
	}
	if e.buffer != nil {
		e.buffer.Add(entry)
	}
}

// TestRule performs the read-only half of the pipeline — fetch, evaluate,
// cooldown check — and reports what a real cycle would have done. It never
// dispatches and never persists, so callers may invoke it freely.
func (e *Engine) TestRule(ctx context.Context, r rules.Rule) TestResult {
	rd, err := e.readings.Latest(ctx, r.SensorID, r.SensorType)
	if errors.Is(err, readings.ErrNoReading) {
		return TestResult{
			Success: true,
			Message: fmt.Sprintf("no %s reading for sensor %q in the last %s",
				r.SensorType, r.SensorID, readings.Window),
		}
	}
	if err != nil {
		return TestResult{Success: false, Message: err.Error()}
	}

	res := TestResult{
		Success:      true,
		Reading:      &rd,
		ConditionMet: rules.Evaluate(rd.Value, r.Operator, r.Threshold),
		InCooldown:   r.InCooldown(e.now()),
	}
	res.WouldTrigger = res.ConditionMet && !res.InCooldown

	switch {
	case !res.ConditionMet:
		res.Message = fmt.Sprintf("condition not met: %s %s %s is false",
			formatFloat(rd.Value), r.Operator, formatFloat(r.Threshold))
	case res.InCooldown:
		res.Message = "condition met but rule is cooling down"
	default:
		res.Message = "rule would trigger a notification"
	}
	return res
}

// TestNotification exercises the delivery pipeline with a synthetic reading
// chosen to satisfy the condition (threshold nudged by one in the firing
// direction). The send is real; trigger state and history are not touched.
func (e *Engine) TestNotification(ctx context.Context, r rules.Rule) notify.Result {
	rd := syntheticReading(r, e.now())
	return e.dispatcher.Send(ctx, r.Provider, notify.BuildPayload(r, rd))
}

// syntheticReading builds a reading that satisfies the rule's condition.
func syntheticReading(r rules.Rule, now time.Time) rules.Reading {
	value := r.Threshold
	switch r.Operator {
	case rules.OpGreater, rules.OpNotEqual:
		value = r.Threshold + 1
	case rules.OpLess:
		value = r.Threshold - 1
	}

	sensorID := r.SensorID
	if sensorID == rules.SensorAny {
		sensorID = "test"
	}
	return rules.Reading{
		SensorID:   sensorID,
		SensorType: r.SensorType,
		Value:      value,
		Timestamp:  now,
	}
}

func formatFloat(v float64) string {
	return fmt.Sprintf("%g", v)
}
