package oraclesdk

import (
	"errors"
	"fmt"
	"time"
)

// ──────────────────────────────────────────────
// RelationshipState — the mutable per-user aggregate
// ──────────────────────────────────────────────

// ErrUnknownStage signals a stage tag with no profile: a configuration
// bug upstream. The turn should abort rather than guess.
var ErrUnknownStage = errors.New("unknown stage")

// ErrCorruptState signals a RelationshipState that violates its own
// invariants. Detected at the storage boundary, never self-healed.
var ErrCorruptState = errors.New("corrupt relationship state")

// DefaultSignalRetention bounds the rolling signal windows kept on state.
const DefaultSignalRetention = 30 * 24 * time.Hour

// RelationshipMetrics are slow-moving aggregates over the whole
// relationship, updated once per turn.
type RelationshipMetrics struct {
	SessionCount           int     `json:"session_count"`
	TrustLevel             float64 `json:"trust_level"`
	ChallengeComfort       float64 `json:"challenge_comfort"`
	IntegrationConsistency float64 `json:"integration_consistency"`
	AuthenticityDetection  float64 `json:"authenticity_detection"`
	CollectiveFieldComfort float64 `json:"collective_field_comfort"`
}

// Overrides hold user- and safety-driven deviations from the profile table.
type Overrides struct {
	UserRequestedStage  *Stage         `json:"user_requested_stage,omitempty"`
	TemporaryGentleMode bool           `json:"temporary_gentle_mode"`
	CrisisMode          bool           `json:"crisis_mode"`
	Customizations      map[string]any `json:"customizations,omitempty"`
}

// PendingTransition tracks an advancement that has met readiness but is
// still inside its stability window.
type PendingTransition struct {
	TargetStage          Stage      `json:"target_stage"`
	ReadinessMet         bool       `json:"readiness_met"`
	StabilityPeriodStart *time.Time `json:"stability_period_start,omitempty"`
	Blockers             []string   `json:"blockers,omitempty"`
}

// RelationshipState is the full mutable engine state for one user.
// It is created on first contact, mutated exactly once per turn by the
// transition controller, and persisted by the caller after each turn.
type RelationshipState struct {
	UserID              string              `json:"user_id"`
	CurrentStage        Stage               `json:"current_stage"`
	StageHistory        []StageHistoryEntry `json:"stage_history"`
	RecentSignals       []CapacitySignal    `json:"recent_signals"`
	RecentSafetyMetrics []SafetyMetric      `json:"recent_safety_metrics"`
	ReadinessScore      float64             `json:"readiness_score"`
	StabilityScore      float64             `json:"stability_score"`
	Metrics             RelationshipMetrics `json:"metrics"`
	Overrides           Overrides           `json:"overrides"`
	Pending             *PendingTransition  `json:"pending_transition,omitempty"`
	LastTurnAt          time.Time           `json:"last_turn_at"`

	// RecoveryHoldTurns counts clean turns still owed after crisis mode
	// clears before advancement logic resumes.
	RecoveryHoldTurns int `json:"recovery_hold_turns,omitempty"`
}

// NewRelationshipState creates the state for a first-time user:
// structured_guide with an initial history entry.
func NewRelationshipState(userID string, now time.Time) *RelationshipState {
	return &RelationshipState{
		UserID:       userID,
		CurrentStage: StageStructuredGuide,
		StageHistory: []StageHistoryEntry{
			newHistoryEntry(StageStructuredGuide, ReasonInitial, now),
		},
	}
}

// TouchSession increments the session count. The caller invokes this once
// per session, typically on the first message of the session.
func (s *RelationshipState) TouchSession() {
	s.Metrics.SessionCount++
}

// enterStage closes the open history entry and appends a new one.
// No-op when the stage is unchanged.
func (s *RelationshipState) enterStage(stage Stage, reason TransitionReason, at time.Time) bool {
	if stage == s.CurrentStage {
		return false
	}
	for i := range s.StageHistory {
		if s.StageHistory[i].ExitedAt == nil {
			exited := at
			s.StageHistory[i].ExitedAt = &exited
		}
	}
	s.StageHistory = append(s.StageHistory, newHistoryEntry(stage, reason, at))
	s.CurrentStage = stage
	return true
}

// appendSignals adds new observations and trims both windows to the
// retention horizon so persisted state stays bounded.
func (s *RelationshipState) appendSignals(signals []CapacitySignal, metrics []SafetyMetric, now time.Time, retention time.Duration) {
	s.RecentSignals = append(s.RecentSignals, signals...)
	s.RecentSafetyMetrics = append(s.RecentSafetyMetrics, metrics...)

	horizon := now.Add(-retention)
	s.RecentSignals = trimSignals(s.RecentSignals, horizon)
	s.RecentSafetyMetrics = trimMetrics(s.RecentSafetyMetrics, horizon)
}

// absorbSignals folds this turn's capacity signals into the slow-moving
// relationship metrics with a small exponential step. Only the metrics
// that have a direct signal counterpart drift here; the rest are set by
// external assessors.
func (s *RelationshipState) absorbSignals(signals []CapacitySignal) {
	const alpha = 0.1
	for _, sig := range signals {
		switch sig.Kind {
		case SignalTrust:
			s.Metrics.TrustLevel += alpha * (clamp01(sig.Value) - s.Metrics.TrustLevel)
		case SignalIntegration:
			s.Metrics.IntegrationConsistency += alpha * (clamp01(sig.Value) - s.Metrics.IntegrationConsistency)
		}
	}
}

func trimSignals(signals []CapacitySignal, horizon time.Time) []CapacitySignal {
	kept := signals[:0]
	for _, sig := range signals {
		if !sig.ObservedAt.Before(horizon) {
			kept = append(kept, sig)
		}
	}
	return kept
}

func trimMetrics(metrics []SafetyMetric, horizon time.Time) []SafetyMetric {
	kept := metrics[:0]
	for _, m := range metrics {
		if !m.ObservedAt.Before(horizon) {
			kept = append(kept, m)
		}
	}
	return kept
}

// ValidateState checks the structural invariants a freshly loaded state
// must satisfy. The storage boundary runs this after deserialization; the
// engine core assumes a valid state on entry.
func ValidateState(s *RelationshipState) error {
	if s == nil {
		return fmt.Errorf("%w: nil state", ErrCorruptState)
	}
	if !s.CurrentStage.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownStage, s.CurrentStage)
	}
	if len(s.StageHistory) == 0 {
		return fmt.Errorf("%w: empty stage history", ErrCorruptState)
	}

	open := 0
	var openStage Stage
	for i := range s.StageHistory {
		entry := &s.StageHistory[i]
		if !entry.Stage.Valid() {
			return fmt.Errorf("%w: history entry %d: %q", ErrUnknownStage, i, entry.Stage)
		}
		if entry.ExitedAt == nil {
			open++
			openStage = entry.Stage
		} else if entry.ExitedAt.Before(entry.EnteredAt) {
			return fmt.Errorf("%w: history entry %d exits before it enters", ErrCorruptState, i)
		}
	}
	if open != 1 {
		return fmt.Errorf("%w: %d open history entries, want 1", ErrCorruptState, open)
	}
	if openStage != s.CurrentStage {
		return fmt.Errorf("%w: open history entry %q does not match current stage %q",
			ErrCorruptState, openStage, s.CurrentStage)
	}

	if s.Overrides.CrisisMode && s.CurrentStage != StageStructuredGuide {
		return fmt.Errorf("%w: crisis mode with stage %q", ErrCorruptState, s.CurrentStage)
	}
	if s.Pending != nil && !s.Pending.TargetStage.Valid() {
		return fmt.Errorf("%w: pending transition: %q", ErrUnknownStage, s.Pending.TargetStage)
	}
	return nil
}
