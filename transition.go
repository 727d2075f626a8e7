package oraclesdk

import (
	"fmt"
	"time"
)

// ──────────────────────────────────────────────
// Transition Controller — the per-turn state machine
// ──────────────────────────────────────────────

// ControllerConfig tunes the transition controller. Zero values fall back
// to the package defaults.
type ControllerConfig struct {
	ReadinessHalfLife time.Duration // signal age decay, default 7 days
	SafetyRecency     time.Duration // safety metric window, default 24h
	SignalRetention   time.Duration // rolling window bound, default 30 days
	// RecoveryCleanTurns is how many clean turns must pass after crisis
	// mode clears before advancement logic resumes. Default 1. Tunable
	// pending product sign-off.
	RecoveryCleanTurns int
}

// TurnResult summarizes what one turn decided.
type TurnResult struct {
	State            *RelationshipState
	SafetyAction     SafetyAction
	TriggeringMetric *SafetyMetric
	Readiness        ReadinessResult
	PreviousStage    Stage
	StageChanged     bool
	Blockers         []string
}

// TransitionController holds the stage profile table and the two
// evaluators, and runs the per-turn transition algorithm. It is stateless
// across users: all mutable state lives on the RelationshipState passed in.
type TransitionController struct {
	profiles           map[Stage]*StageProfile
	readiness          *ReadinessEvaluator
	safety             *SafetyEvaluator
	retention          time.Duration
	recoveryCleanTurns int
}

// NewTransitionController creates a controller over the given profile
// table. Pass nil to use DefaultStageProfiles.
func NewTransitionController(profiles map[Stage]*StageProfile, config ...ControllerConfig) *TransitionController {
	cfg := ControllerConfig{}
	if len(config) > 0 {
		cfg = config[0]
	}
	if profiles == nil {
		profiles = DefaultStageProfiles()
	}
	retention := cfg.SignalRetention
	if retention <= 0 {
		retention = DefaultSignalRetention
	}
	cleanTurns := cfg.RecoveryCleanTurns
	if cleanTurns <= 0 {
		cleanTurns = 1
	}
	return &TransitionController{
		profiles:           profiles,
		readiness:          NewReadinessEvaluator(cfg.ReadinessHalfLife),
		safety:             NewSafetyEvaluator(cfg.SafetyRecency),
		retention:          retention,
		recoveryCleanTurns: cleanTurns,
	}
}

func (c *TransitionController) profileFor(stage Stage) (*StageProfile, error) {
	profile, ok := c.profiles[stage]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStage, stage)
	}
	return profile, nil
}

// AdvanceTurn runs exactly one turn of the transition algorithm, mutating
// and returning the given state. The precedence order is deliberate and
// asymmetric: safety strictly dominates growth, fallback is immediate
// while advancement requires sustained readiness. Reordering the steps
// changes the safety guarantees.
//
// The caller must uphold at-most-one in-flight turn per user; the
// controller itself holds no per-user locks.
func (c *TransitionController) AdvanceTurn(state *RelationshipState, signals []CapacitySignal, metrics []SafetyMetric, now time.Time) (*TurnResult, error) {
	profile, err := c.profileFor(state.CurrentStage)
	if err != nil {
		return nil, err
	}

	wasCrisis := state.Overrides.CrisisMode
	state.appendSignals(signals, metrics, now, c.retention)
	state.absorbSignals(signals)
	state.LastTurnAt = now

	// Gentle mode is a per-turn evaluation, re-derived from this turn's
	// safety result.
	state.Overrides.TemporaryGentleMode = false

	result := &TurnResult{State: state, PreviousStage: state.CurrentStage}

	safety := c.safety.Evaluate(state.RecentSafetyMetrics, profile, now)
	result.SafetyAction = safety.Action
	result.TriggeringMetric = safety.TriggeringMetric

	// Step 1: crisis protocol. Everything else stops.
	if safety.Action == ActionCrisisProtocol {
		state.Overrides.CrisisMode = true
		result.StageChanged = state.enterStage(StageStructuredGuide, ReasonCrisis, now)
		state.Pending = nil
		return c.finishTurn(result, state, now)
	}

	// Step 2: immediate fallback. No stability requirement on the way
	// down — under-reacting to a safety signal costs more than
	// over-reacting.
	if safety.Action == ActionFallbackStage1 && !state.Overrides.CrisisMode {
		result.StageChanged = state.enterStage(StageStructuredGuide, ReasonFallback, now)
		state.Pending = nil
		return c.finishTurn(result, state, now)
	}

	// Step 3: gentle mode softens the profile but does not change stage.
	if safety.Action == ActionGentleMode {
		state.Overrides.TemporaryGentleMode = true
	}

	readiness := c.readiness.Evaluate(state.RecentSignals, profile, state.Metrics, now)
	state.ReadinessScore = readiness.ReadinessScore
	state.StabilityScore = readiness.StabilityScore
	result.Readiness = readiness

	// Step 4: crisis recovery. Clearing the flag takes effect for
	// advancement on the *next* turn, to avoid thrashing.
	if state.Overrides.CrisisMode {
		if wasCrisis && safety.Action == ActionMonitor &&
			readiness.StabilityScore >= profile.Safety.RecoveryRequirement {
			state.Overrides.CrisisMode = false
			state.RecoveryHoldTurns = c.recoveryCleanTurns - 1
		}
		return result, nil
	}
	if state.RecoveryHoldTurns > 0 {
		state.RecoveryHoldTurns--
		return result, nil
	}

	// Step 5: open a pending transition once readiness and session count
	// are both met.
	if state.Pending == nil &&
		!profile.Terminal() &&
		readiness.ReadinessScore >= profile.Advancement.MinimumThreshold &&
		state.Metrics.SessionCount >= profile.Advancement.SessionCountMinimum {
		if next, ok := state.CurrentStage.Next(); ok {
			start := now
			state.Pending = &PendingTransition{
				TargetStage:          next,
				ReadinessMet:         true,
				StabilityPeriodStart: &start,
			}
		}
	} else if state.Pending != nil && state.Pending.StabilityPeriodStart != nil {
		// Step 6: the stability window. A dip below threshold aborts the
		// pending transition — the user simply stays at the current stage.
		switch {
		case readiness.ReadinessScore < profile.Advancement.MinimumThreshold:
			state.Pending = nil
		case now.Sub(*state.Pending.StabilityPeriodStart) >= profile.StabilityWindow():
			result.StageChanged = state.enterStage(state.Pending.TargetStage, ReasonAdvancement, now)
			state.Pending = nil
			return c.finishTurn(result, state, now)
		}
	}

	// Step 7: explicit user request.
	if state.Overrides.UserRequestedStage != nil {
		if err := c.handleUserRequest(result, state, now); err != nil {
			return nil, err
		}
	}

	return result, nil
}

// handleUserRequest honors an explicit stage request immediately when the
// target profile permits override; moving to an earlier stage is always
// permitted. A blocked request is recorded on the pending transition and
// surfaced to the caller, but not acted on.
func (c *TransitionController) handleUserRequest(result *TurnResult, state *RelationshipState, now time.Time) error {
	target := *state.Overrides.UserRequestedStage
	state.Overrides.UserRequestedStage = nil

	targetProfile, err := c.profileFor(target)
	if err != nil {
		return err
	}
	if target == state.CurrentStage {
		return nil
	}

	if target.Before(state.CurrentStage) || targetProfile.Advancement.OverridePossible {
		result.StageChanged = state.enterStage(target, ReasonUserRequest, now)
		state.Pending = nil
		_, err = c.finishTurn(result, state, now)
		return err
	}

	// Blocked: record, surface, do not act. Only an existing pending
	// transition carries the blocker, so a refused request can never
	// wedge the readiness path.
	blocker := fmt.Sprintf("user_override_not_permitted:%s", target)
	if state.Pending != nil {
		state.Pending.Blockers = append(state.Pending.Blockers, blocker)
	}
	result.Blockers = append(result.Blockers, blocker)
	return nil
}

// finishTurn recomputes the derived scores under the stage the turn ended
// on. Scores are derived data, never independently settable.
func (c *TransitionController) finishTurn(result *TurnResult, state *RelationshipState, now time.Time) (*TurnResult, error) {
	profile, err := c.profileFor(state.CurrentStage)
	if err != nil {
		return nil, err
	}
	readiness := c.readiness.Evaluate(state.RecentSignals, profile, state.Metrics, now)
	state.ReadinessScore = readiness.ReadinessScore
	state.StabilityScore = readiness.StabilityScore
	result.Readiness = readiness
	return result, nil
}
