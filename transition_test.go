package oraclesdk

import (
	"testing"
	"time"
)

// ══════════════════════════════════════════════
// TransitionController tests
// ══════════════════════════════════════════════

// stateAtStage builds a valid state occupying the given stage.
func stateAtStage(stage Stage, sessionCount int, at time.Time) *RelationshipState {
	state := NewRelationshipState("u1", at.Add(-90*24*time.Hour))
	state.enterStage(stage, ReasonAdvancement, at.Add(-60*24*time.Hour))
	state.Metrics.SessionCount = sessionCount
	return state
}

func dailyCapacitySignals(at time.Time) []CapacitySignal {
	return []CapacitySignal{
		capSignal(SignalCoherence, 0.8, at),
		capSignal(SignalIntegration, 0.75, at),
		capSignal(SignalEngagement, 0.7, at),
	}
}

func TestTransition_AdvancementAfterFullStabilityWindow(t *testing.T) {
	c := NewTransitionController(nil)
	t0 := testNow
	state := stateAtStage(StageDialogicalCompanion, 12, t0)

	// 14 days of steady coherence/integration/engagement, no safety
	// metrics. The pending transition opens on the first turn and commits
	// once the 14-day stability window has elapsed.
	for day := 0; day <= 14; day++ {
		now := t0.Add(time.Duration(day) * 24 * time.Hour)
		result, err := c.AdvanceTurn(state, dailyCapacitySignals(now), nil, now)
		if err != nil {
			t.Fatalf("day %d: %v", day, err)
		}

		switch {
		case day == 0:
			if state.Pending == nil {
				t.Fatal("pending transition should open on the first qualifying turn")
			}
			if state.Pending.TargetStage != StageCocreativePartner {
				t.Fatalf("pending should target next stage, got %s", state.Pending.TargetStage)
			}
		case day < 14:
			if state.Pending == nil {
				t.Fatalf("day %d: pending should still be open", day)
			}
			if state.CurrentStage != StageDialogicalCompanion {
				t.Fatalf("day %d: no advancement before the window elapses", day)
			}
		case day == 14:
			if !result.StageChanged {
				t.Fatal("transition should commit once the window has elapsed")
			}
			if state.CurrentStage != StageCocreativePartner {
				t.Fatalf("expected cocreative_partner, got %s", state.CurrentStage)
			}
			if state.Pending != nil {
				t.Fatal("pending should clear on commit")
			}
			last := state.StageHistory[len(state.StageHistory)-1]
			if last.Reason != ReasonAdvancement {
				t.Fatalf("expected advancement history entry, got %s", last.Reason)
			}
		}
	}
}

func TestTransition_CriticalMetricInterruptsPendingWindow(t *testing.T) {
	c := NewTransitionController(nil)
	t0 := testNow
	state := stateAtStage(StageDialogicalCompanion, 12, t0)

	for day := 0; day <= 10; day++ {
		now := t0.Add(time.Duration(day) * 24 * time.Hour)

		var metrics []SafetyMetric
		if day == 10 {
			metrics = []SafetyMetric{
				safetyMetric(MetricParanoidIdeation, SeverityCritical, now),
			}
		}

		result, err := c.AdvanceTurn(state, dailyCapacitySignals(now), metrics, now)
		if err != nil {
			t.Fatalf("day %d: %v", day, err)
		}

		if day == 10 {
			if state.CurrentStage != StageStructuredGuide {
				t.Fatalf("crisis must force structured_guide, got %s", state.CurrentStage)
			}
			if !state.Overrides.CrisisMode {
				t.Fatal("crisis mode should be set")
			}
			if state.Pending != nil {
				t.Fatal("10 days of accumulated readiness must not survive a crisis")
			}
			if !result.StageChanged {
				t.Fatal("stage change should be reported")
			}
			last := state.StageHistory[len(state.StageHistory)-1]
			if last.Reason != ReasonCrisis {
				t.Fatalf("expected crisis history entry, got %s", last.Reason)
			}
		}
	}
}

func TestTransition_DipAbortsPendingWithoutFallback(t *testing.T) {
	c := NewTransitionController(nil, ControllerConfig{ReadinessHalfLife: 24 * time.Hour})
	t0 := testNow
	state := stateAtStage(StageDialogicalCompanion, 12, t0)

	// Open the pending on day 0.
	if _, err := c.AdvanceTurn(state, dailyCapacitySignals(t0), nil, t0); err != nil {
		t.Fatal(err)
	}
	if state.Pending == nil {
		t.Fatal("pending should be open")
	}

	// Day 1: hard dip in every required signal.
	day1 := t0.Add(24 * time.Hour)
	dip := []CapacitySignal{
		capSignal(SignalCoherence, 0.05, day1),
		capSignal(SignalIntegration, 0.05, day1),
		capSignal(SignalEngagement, 0.05, day1),
	}
	if _, err := c.AdvanceTurn(state, dip, nil, day1); err != nil {
		t.Fatal(err)
	}

	if state.Pending != nil {
		t.Fatal("dip below threshold should abort the pending transition")
	}
	if state.CurrentStage != StageDialogicalCompanion {
		t.Fatalf("a readiness dip is not a safety event; stage should hold, got %s", state.CurrentStage)
	}
}

func TestTransition_FallbackClearsPendingAndStops(t *testing.T) {
	c := NewTransitionController(nil)
	t0 := testNow
	state := stateAtStage(StageCocreativePartner, 30, t0)
	state.Pending = &PendingTransition{TargetStage: StageTransparentPrism}

	metrics := []SafetyMetric{
		safetyMetric(MetricOverwhelmDetected, SeverityHigh, t0),
	}
	result, err := c.AdvanceTurn(state, nil, metrics, t0)
	if err != nil {
		t.Fatal(err)
	}

	if state.CurrentStage != StageStructuredGuide {
		t.Fatalf("fallback should land on structured_guide, got %s", state.CurrentStage)
	}
	if state.Overrides.CrisisMode {
		t.Fatal("fallback is not crisis")
	}
	if state.Pending != nil {
		t.Fatal("fallback clears pending")
	}
	last := state.StageHistory[len(state.StageHistory)-1]
	if last.Reason != ReasonFallback {
		t.Fatalf("expected fallback history entry, got %s", last.Reason)
	}
	if result.SafetyAction != ActionFallbackStage1 {
		t.Fatalf("expected fallback_stage1, got %s", result.SafetyAction)
	}
}

func TestTransition_GentleModeDoesNotChangeStage(t *testing.T) {
	c := NewTransitionController(nil)
	t0 := testNow
	state := stateAtStage(StageCocreativePartner, 30, t0)

	metrics := []SafetyMetric{
		safetyMetric(MetricOverwhelmDetected, SeverityMedium, t0),
	}
	if _, err := c.AdvanceTurn(state, nil, metrics, t0); err != nil {
		t.Fatal(err)
	}

	if !state.Overrides.TemporaryGentleMode {
		t.Fatal("gentle mode should be set")
	}
	if state.CurrentStage != StageCocreativePartner {
		t.Fatalf("gentle mode must not change stage, got %s", state.CurrentStage)
	}
}

func TestTransition_GentleModeClearsWhenSafetyClears(t *testing.T) {
	c := NewTransitionController(nil)
	t0 := testNow
	state := stateAtStage(StageCocreativePartner, 30, t0)

	metrics := []SafetyMetric{
		safetyMetric(MetricOverwhelmDetected, SeverityMedium, t0),
	}
	if _, err := c.AdvanceTurn(state, nil, metrics, t0); err != nil {
		t.Fatal(err)
	}

	// Two days later the metric is stale; gentle mode is re-derived.
	later := t0.Add(48 * time.Hour)
	if _, err := c.AdvanceTurn(state, nil, nil, later); err != nil {
		t.Fatal(err)
	}
	if state.Overrides.TemporaryGentleMode {
		t.Fatal("gentle mode should clear once the metric ages out")
	}
}

func TestTransition_CrisisRecoveryAndResumedAdvancement(t *testing.T) {
	c := NewTransitionController(nil)
	t0 := testNow
	state := stateAtStage(StageDialogicalCompanion, 12, t0)

	// Day 0: critical metric forces crisis.
	crisis := []SafetyMetric{safetyMetric(MetricDissociationConfusion, SeverityCritical, t0)}
	if _, err := c.AdvanceTurn(state, nil, crisis, t0); err != nil {
		t.Fatal(err)
	}
	if !state.Overrides.CrisisMode || state.CurrentStage != StageStructuredGuide {
		t.Fatal("crisis setup failed")
	}

	// Daily turns with healthy structured_guide signals. Stability under
	// the fallback stage must reach the recovery requirement (0.5 of the
	// 7-day window) before crisis clears.
	recovered := -1
	for day := 1; day <= 10; day++ {
		now := t0.Add(time.Duration(day) * 24 * time.Hour)
		signals := []CapacitySignal{
			capSignal(SignalEngagement, 0.85, now),
			capSignal(SignalWellbeing, 0.85, now),
			capSignal(SignalTrust, 0.85, now),
		}
		if _, err := c.AdvanceTurn(state, signals, nil, now); err != nil {
			t.Fatal(err)
		}
		if !state.Overrides.CrisisMode && recovered == -1 {
			recovered = day
		}
	}

	if recovered == -1 {
		t.Fatal("crisis mode should clear once stability is re-established")
	}
	if recovered < 2 {
		t.Fatalf("crisis should not clear before stability accumulates, cleared on day %d", recovered)
	}
	if state.Pending == nil {
		t.Fatal("advancement should resume after recovery: pending transition expected")
	}
	if state.Pending.TargetStage != StageDialogicalCompanion {
		t.Fatalf("pending should target the next stage up, got %s", state.Pending.TargetStage)
	}
}

func TestTransition_NoAdvancementOnSameTurnAsRecovery(t *testing.T) {
	c := NewTransitionController(nil)
	t0 := testNow
	state := stateAtStage(StageStructuredGuide, 12, t0)
	state.Overrides.CrisisMode = true

	// Plenty of good signal history so stability is already high.
	var signals []CapacitySignal
	for day := 0; day <= 7; day++ {
		signals = append(signals,
			capSignal(SignalEngagement, 0.9, t0.Add(-time.Duration(day)*24*time.Hour)),
			capSignal(SignalWellbeing, 0.9, t0.Add(-time.Duration(day)*24*time.Hour)),
			capSignal(SignalTrust, 0.9, t0.Add(-time.Duration(day)*24*time.Hour)),
		)
	}
	if _, err := c.AdvanceTurn(state, signals, nil, t0); err != nil {
		t.Fatal(err)
	}
	if state.Overrides.CrisisMode {
		t.Fatal("crisis should clear")
	}
	if state.Pending != nil {
		t.Fatal("advancement must not resume on the recovery turn itself")
	}

	// Next turn: advancement logic runs again.
	day1 := t0.Add(24 * time.Hour)
	if _, err := c.AdvanceTurn(state, dailySignalsFor(StageStructuredGuide, day1), nil, day1); err != nil {
		t.Fatal(err)
	}
	if state.Pending == nil {
		t.Fatal("advancement should resume on the following turn")
	}
}

func dailySignalsFor(stage Stage, at time.Time) []CapacitySignal {
	profile := DefaultStageProfiles()[stage]
	signals := make([]CapacitySignal, 0, len(profile.Advancement.RequiredCapacitySignals))
	for _, kind := range profile.Advancement.RequiredCapacitySignals {
		signals = append(signals, capSignal(kind, 0.85, at))
	}
	return signals
}

func TestTransition_SessionCountGatesPending(t *testing.T) {
	c := NewTransitionController(nil)
	t0 := testNow
	state := stateAtStage(StageDialogicalCompanion, 3, t0) // minimum is 10

	if _, err := c.AdvanceTurn(state, dailyCapacitySignals(t0), nil, t0); err != nil {
		t.Fatal(err)
	}
	if state.Pending != nil {
		t.Fatal("pending must not open below the session count minimum")
	}
}

func TestTransition_UserRequestHonoredWhenOverridePossible(t *testing.T) {
	c := NewTransitionController(nil)
	t0 := testNow
	state := stateAtStage(StageDialogicalCompanion, 12, t0)
	target := StageCocreativePartner // override_possible at the target
	state.Overrides.UserRequestedStage = &target

	result, err := c.AdvanceTurn(state, nil, nil, t0)
	if err != nil {
		t.Fatal(err)
	}
	if !result.StageChanged || state.CurrentStage != StageCocreativePartner {
		t.Fatalf("request should be honored immediately, got %s", state.CurrentStage)
	}
	last := state.StageHistory[len(state.StageHistory)-1]
	if last.Reason != ReasonUserRequest {
		t.Fatalf("expected user_request history entry, got %s", last.Reason)
	}
	if state.Overrides.UserRequestedStage != nil {
		t.Fatal("request should be consumed")
	}
}

func TestTransition_UserRequestBlockedWhenOverrideNotPermitted(t *testing.T) {
	c := NewTransitionController(nil)
	t0 := testNow
	state := stateAtStage(StageStructuredGuide, 12, t0)
	target := StageDialogicalCompanion // override not possible at the target
	state.Overrides.UserRequestedStage = &target

	result, err := c.AdvanceTurn(state, nil, nil, t0)
	if err != nil {
		t.Fatal(err)
	}
	if state.CurrentStage != StageStructuredGuide {
		t.Fatalf("blocked request must not change stage, got %s", state.CurrentStage)
	}
	if len(result.Blockers) == 0 {
		t.Fatal("blocker should be surfaced to the caller")
	}
}

func TestTransition_UserRequestDownIsAlwaysAllowed(t *testing.T) {
	c := NewTransitionController(nil)
	t0 := testNow
	state := stateAtStage(StageCocreativePartner, 30, t0)
	target := StageStructuredGuide
	state.Overrides.UserRequestedStage = &target

	result, err := c.AdvanceTurn(state, nil, nil, t0)
	if err != nil {
		t.Fatal(err)
	}
	if !result.StageChanged || state.CurrentStage != StageStructuredGuide {
		t.Fatalf("moving to a safer stage is always allowed, got %s", state.CurrentStage)
	}
}

func TestTransition_HistoryAppendOnlyWithOneOpenEntry(t *testing.T) {
	c := NewTransitionController(nil)
	t0 := testNow
	state := stateAtStage(StageDialogicalCompanion, 12, t0)

	prevLen := len(state.StageHistory)
	for day := 0; day <= 20; day++ {
		now := t0.Add(time.Duration(day) * 24 * time.Hour)

		var metrics []SafetyMetric
		if day == 5 {
			metrics = []SafetyMetric{safetyMetric(MetricOverwhelmDetected, SeverityHigh, now)}
		}
		if _, err := c.AdvanceTurn(state, dailySignalsFor(state.CurrentStage, now), metrics, now); err != nil {
			t.Fatalf("day %d: %v", day, err)
		}

		if len(state.StageHistory) < prevLen {
			t.Fatalf("day %d: history shrank from %d to %d", day, prevLen, len(state.StageHistory))
		}
		prevLen = len(state.StageHistory)

		open := 0
		for _, entry := range state.StageHistory {
			if entry.ExitedAt == nil {
				open++
			}
		}
		if open != 1 {
			t.Fatalf("day %d: %d open history entries, want 1", day, open)
		}
	}
}

func TestTransition_UnknownStageIsFatal(t *testing.T) {
	c := NewTransitionController(nil)
	state := stateAtStage(StageDialogicalCompanion, 12, testNow)
	state.CurrentStage = Stage("astral_projection")

	if _, err := c.AdvanceTurn(state, nil, nil, testNow); err == nil {
		t.Fatal("unknown stage must abort the turn")
	}
}

func TestTransition_TerminalStageNeverOpensPending(t *testing.T) {
	c := NewTransitionController(nil)
	t0 := testNow
	state := stateAtStage(StageTransparentPrism, 100, t0)

	if _, err := c.AdvanceTurn(state, nil, nil, t0); err != nil {
		t.Fatal(err)
	}
	if state.Pending != nil {
		t.Fatal("terminal stage has nowhere to go")
	}
	if state.ReadinessScore != 1.0 {
		t.Fatalf("terminal readiness is defined as 1.0, got %f", state.ReadinessScore)
	}
}
