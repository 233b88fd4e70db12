// Package correlation implements the windowed rule-evaluation engine:
// filter/condition/aggregation/having semantics over a buffered
// window of normalized events, threat synthesis, deduplication, and
// sequential action dispatch.
package correlation

import (
	"context"
	"sync"
	"time"

	"github.com/iff-guardian/fusion/internal/domain"
	"github.com/iff-guardian/fusion/internal/eventbuffer"
	"github.com/iff-guardian/fusion/pkg/database"
	"github.com/iff-guardian/fusion/pkg/logger"
	"github.com/iff-guardian/fusion/pkg/metrics"
)

// ActionExecutor dispatches one rule action against a synthesized
// threat. Implemented by *dispatcher.Dispatcher; kept as an interface
// here so the engine can be tested without constructing a real
// dispatcher.
type ActionExecutor interface {
	Execute(ctx context.Context, action domain.Action, threat *domain.UnifiedThreat) error
}

// OutputPublisher fans a synthesized threat out to one configured
// destination from CorrelationConfig.OutputDestinations (kafka or
// websocket), independent of any rule's own actions list. A publish
// failure is logged and never blocks persistence or action dispatch.
type OutputPublisher interface {
	Publish(ctx context.Context, threat *domain.UnifiedThreat) error
}

// Engine evaluates correlation rules against a sliding window of
// buffered events on a fixed tick, and on demand.
type Engine struct {
	buffer     *eventbuffer.Buffer
	repo       *database.Repository
	dispatcher ActionExecutor
	metrics    *metrics.Collector
	log        logger.Logger
	cfg        domain.CorrelationConfig

	rulesMu sync.RWMutex
	rules   []domain.CorrelationRule

	outputsMu sync.RWMutex
	outputs   []OutputPublisher
}

// SetOutputs replaces the set of output destinations every synthesized
// threat is published to, alongside its persistence and rule actions.
func (e *Engine) SetOutputs(outputs []OutputPublisher) {
	e.outputsMu.Lock()
	defer e.outputsMu.Unlock()
	e.outputs = outputs
}

func (e *Engine) activeOutputs() []OutputPublisher {
	e.outputsMu.RLock()
	defer e.outputsMu.RUnlock()
	out := make([]OutputPublisher, len(e.outputs))
	copy(out, e.outputs)
	return out
}

// New builds an Engine.
func New(buffer *eventbuffer.Buffer, repo *database.Repository, dispatcher ActionExecutor, m *metrics.Collector, log logger.Logger, cfg domain.CorrelationConfig) *Engine {
	return &Engine{buffer: buffer, repo: repo, dispatcher: dispatcher, metrics: m, log: log, cfg: cfg}
}

// SetRules replaces the active rule set.
func (e *Engine) SetRules(rules []domain.CorrelationRule) {
	e.rulesMu.Lock()
	defer e.rulesMu.Unlock()
	e.rules = rules
}

func (e *Engine) activeRules() []domain.CorrelationRule {
	e.rulesMu.RLock()
	defer e.rulesMu.RUnlock()
	out := make([]domain.CorrelationRule, len(e.rules))
	copy(out, e.rules)
	return out
}

// Run starts the fixed-interval tick loop, blocking until ctx is
// canceled. A tick's soft deadline is the tick interval: exceeding it
// logs a warning but the tick still completes, and the next tick is
// not skipped.
func (e *Engine) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			deadline := now.Add(interval)
			e.tick(ctx, now)
			if time.Now().After(deadline) {
				e.log.Warn("correlation tick exceeded its soft deadline")
			}
		}
	}
}

func (e *Engine) tick(ctx context.Context, now time.Time) {
	start := now.Add(-time.Duration(e.cfg.CorrelationWindowMinutes) * time.Minute)
	threats, err := e.CorrelateEvents(ctx, start, now)
	if err != nil {
		e.log.Error("correlation tick failed", "error", err)
		return
	}
	e.log.Debug("correlation tick complete", "threatsProduced", len(threats))
}

// CorrelateEvents runs every enabled rule against the window
// [start, end), synthesizes and dedupes threats, persists them, and
// dispatches their actions. Concurrent calls are independent and
// share no mutable state beyond the read-through buffer.
func (e *Engine) CorrelateEvents(ctx context.Context, start, end time.Time) ([]*domain.UnifiedThreat, error) {
	events, err := e.buffer.Window(ctx, start, end)
	if err != nil {
		return nil, err
	}

	sourceTypesInWindow := make(map[domain.ToolType]struct{})
	for _, ev := range events {
		sourceTypesInWindow[ev.SourceType] = struct{}{}
	}

	now := time.Now()
	var threats []*domain.UnifiedThreat
	for _, rule := range e.activeRules() {
		if !rule.Enabled || !intersects(rule.SourceTypes, sourceTypesInWindow) {
			continue
		}
		if t := e.evaluateRule(rule, events, now); t != nil {
			threats = append(threats, t)
		}
	}

	threats = deduplicate(threats, e.cfg)

	persisted := make([]*domain.UnifiedThreat, 0, len(threats))
	for _, t := range threats {
		final, err := e.persistThreat(ctx, t)
		if err != nil {
			e.log.Error("persist threat failed", "correlationId", t.CorrelationID, "error", err)
			continue
		}
		persisted = append(persisted, final)
		if e.metrics != nil {
			e.metrics.RecordThreatDetected(final.CorrelationID, string(final.Severity))
		}
		for _, out := range e.activeOutputs() {
			if err := out.Publish(ctx, final); err != nil {
				e.log.Warn("output publish failed", "correlationId", final.CorrelationID, "error", err)
			}
		}
	}
	threats = persisted

	// Dispatch per rule: action failures are logged per-action and do
	// not abort subsequent actions or other rules' dispatch.
	rulesByID := make(map[string]domain.CorrelationRule)
	for _, r := range e.activeRules() {
		rulesByID[r.ID] = r
	}
	for _, t := range threats {
		rule, ok := rulesByID[domain.RuleIDFromCorrelationID(t.CorrelationID)]
		if !ok {
			continue
		}
		for _, action := range rule.Actions {
			if err := e.dispatcher.Execute(ctx, action, t); err != nil {
				e.log.Error("action dispatch failed", "action", action.Type, "correlationId", t.CorrelationID, "error", err)
			}
		}
	}

	return threats, nil
}

// persistThreat writes t to the store, merging into an already
// persisted threat with the same dedup key instead of inserting a
// duplicate when one is found — this is what collapses the same
// correlation surfacing across separate ticks, not just within one.
// Returns the row that now reflects what's in the store: t itself on
// a fresh insert, or the merged survivor on a collapse.
func (e *Engine) persistThreat(ctx context.Context, t *domain.UnifiedThreat) (*domain.UnifiedThreat, error) {
	if t.DedupKey != "" {
		existing, err := e.repo.FindThreatByDedupKey(ctx, t.DedupKey)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			merge(existing, t)
			if err := e.repo.MergeThreat(ctx, existing); err != nil {
				return nil, err
			}
			return existing, nil
		}
	}
	if err := e.repo.CreateThreat(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (e *Engine) evaluateRule(rule domain.CorrelationRule, events []*domain.NormalizedEvent, now time.Time) *domain.UnifiedThreat {
	survivors := filterBySourceType(events, rule.SourceTypes)
	survivors = filterByConditions(survivors, rule.Conditions)

	for _, agg := range rule.Aggregations {
		if len(survivors) == 0 {
			return nil
		}
		survivors = applyAggregation(survivors, agg)
	}

	if len(survivors) == 0 {
		return nil
	}
	return synthesize(rule, survivors, now)
}

func filterBySourceType(events []*domain.NormalizedEvent, sourceTypes []domain.ToolType) []*domain.NormalizedEvent {
	if len(sourceTypes) == 0 {
		return events
	}
	allowed := make(map[domain.ToolType]struct{}, len(sourceTypes))
	for _, t := range sourceTypes {
		allowed[t] = struct{}{}
	}
	var out []*domain.NormalizedEvent
	for _, e := range events {
		if _, ok := allowed[e.SourceType]; ok {
			out = append(out, e)
		}
	}
	return out
}

func filterByConditions(events []*domain.NormalizedEvent, conditions []domain.Condition) []*domain.NormalizedEvent {
	if len(conditions) == 0 {
		return events
	}
	var out []*domain.NormalizedEvent
	for _, e := range events {
		match := true
		for _, c := range conditions {
			if !evaluateCondition(e, c) {
				match = false
				break
			}
		}
		if match {
			out = append(out, e)
		}
	}
	return out
}

func intersects(ruleSourceTypes []domain.ToolType, windowSourceTypes map[domain.ToolType]struct{}) bool {
	if len(ruleSourceTypes) == 0 {
		return len(windowSourceTypes) > 0
	}
	for _, t := range ruleSourceTypes {
		if _, ok := windowSourceTypes[t]; ok {
			return true
		}
	}
	return false
}

