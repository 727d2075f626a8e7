package oraclesdk

import (
	"time"
)

// ──────────────────────────────────────────────
// Safety Evaluator — worst-case aggregation of distress metrics
// ──────────────────────────────────────────────

// SafetyAction is the intervention a turn's safety metrics demand,
// ordered monitor < gentle_mode < fallback_stage1 < crisis_protocol.
type SafetyAction string

const (
	ActionMonitor        SafetyAction = "monitor"
	ActionGentleMode     SafetyAction = "gentle_mode"
	ActionFallbackStage1 SafetyAction = "fallback_stage1"
	ActionCrisisProtocol SafetyAction = "crisis_protocol"
)

var actionRank = map[SafetyAction]int{
	ActionMonitor:        0,
	ActionGentleMode:     1,
	ActionFallbackStage1: 2,
	ActionCrisisProtocol: 3,
}

// Exceeds reports whether a demands a stronger intervention than b.
func (a SafetyAction) Exceeds(b SafetyAction) bool {
	return actionRank[a] > actionRank[b]
}

// actionFloorForSeverity is the monotonic severity-to-action mapping.
// Critical always demands at least crisis_protocol, regardless of stage.
func actionFloorForSeverity(severity MetricSeverity) SafetyAction {
	switch severity {
	case SeverityCritical:
		return ActionCrisisProtocol
	case SeverityHigh:
		return ActionFallbackStage1
	case SeverityMedium:
		return ActionGentleMode
	default:
		return ActionMonitor
	}
}

func escalate(action SafetyAction) SafetyAction {
	switch action {
	case ActionMonitor:
		return ActionGentleMode
	case ActionGentleMode:
		return ActionFallbackStage1
	default:
		return ActionCrisisProtocol
	}
}

// DefaultSafetyRecency is the window inside which a metric still counts.
const DefaultSafetyRecency = 24 * time.Hour

// SafetyResult is the evaluator's decision for one turn.
type SafetyResult struct {
	Action           SafetyAction  `json:"action"`
	TriggeringMetric *SafetyMetric `json:"triggering_metric,omitempty"`
}

// SafetyEvaluator aggregates recent safety metrics into an intervention
// decision. It runs unconditionally every turn, before readiness is even
// considered: safety gates before growth gates.
type SafetyEvaluator struct {
	recency time.Duration
}

// NewSafetyEvaluator creates an evaluator. The optional recency window
// defaults to DefaultSafetyRecency.
func NewSafetyEvaluator(recency ...time.Duration) *SafetyEvaluator {
	rec := DefaultSafetyRecency
	if len(recency) > 0 && recency[0] > 0 {
		rec = recency[0]
	}
	return &SafetyEvaluator{recency: rec}
}

// Evaluate takes the maximum action across all qualifying metrics — never
// an average. Safety is a worst-case aggregation, not a consensus.
//
// A metric qualifies when it was observed inside the recency window and
// its kind appears in the profile's fallback triggers. When a qualifying
// metric's implied score exceeds the profile intervention threshold, the
// mapped action is escalated one level.
func (e *SafetyEvaluator) Evaluate(metrics []SafetyMetric, profile *StageProfile, now time.Time) SafetyResult {
	result := SafetyResult{Action: ActionMonitor}
	if profile == nil {
		return result
	}

	triggers := make(map[SafetyMetricKind]bool, len(profile.Safety.FallbackTriggers))
	for _, kind := range profile.Safety.FallbackTriggers {
		triggers[kind] = true
	}

	horizon := now.Add(-e.recency)
	for i := range metrics {
		m := &metrics[i]
		if m.ObservedAt.Before(horizon) || m.ObservedAt.After(now) {
			continue
		}
		if !triggers[m.Kind] {
			continue
		}

		action := actionFloorForSeverity(m.Severity)
		if m.Severity.ImpliedScore() > profile.Safety.InterventionThreshold {
			action = escalate(action)
		}

		if action.Exceeds(result.Action) {
			result.Action = action
			result.TriggeringMetric = m
		}
	}

	return result
}
