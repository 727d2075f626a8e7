package oraclesdk

import (
	"log"
	"time"

	"go.uber.org/atomic"
)

// ──────────────────────────────────────────────
// Engine — the three entry points the orchestrator calls
// ──────────────────────────────────────────────

// EngineConfig tunes the engine facade.
type EngineConfig struct {
	Controller          ControllerConfig
	SessionGap          time.Duration
	ProfileOverridePath string // optional YAML file of per-stage gate overrides
}

// EngineStats are process-lifetime counters, safe to read from any
// goroutine while turns run in parallel across users.
type EngineStats struct {
	Turns        int64 `json:"turns"`
	Advancements int64 `json:"advancements"`
	Fallbacks    int64 `json:"fallbacks"`
	Crises       int64 `json:"crises"`
}

// Engine bundles the profile table, evaluators, and controller behind the
// three calls the conversation orchestrator makes each turn: ingest,
// advance, resolve. The engine holds no per-user state; each user's
// RelationshipState is passed in and returned, so turns for different
// users are embarrassingly parallel. At-most-one in-flight turn per user
// is the caller's invariant to uphold.
type Engine struct {
	profiles   map[Stage]*StageProfile
	controller *TransitionController
	sessions   *SessionTracker
	clock      func() time.Time

	turns        atomic.Int64
	advancements atomic.Int64
	fallbacks    atomic.Int64
	crises       atomic.Int64
}

// NewEngine creates an engine over the given profile table. Pass nil to
// use DefaultStageProfiles.
func NewEngine(profiles map[Stage]*StageProfile, config ...EngineConfig) (*Engine, error) {
	cfg := EngineConfig{}
	if len(config) > 0 {
		cfg = config[0]
	}
	if profiles == nil {
		profiles = DefaultStageProfiles()
	}
	if cfg.ProfileOverridePath != "" {
		if err := LoadProfileOverrides(cfg.ProfileOverridePath, profiles); err != nil {
			return nil, err
		}
	}
	return &Engine{
		profiles:   profiles,
		controller: NewTransitionController(profiles, cfg.Controller),
		sessions:   NewSessionTracker(cfg.SessionGap),
		clock:      time.Now,
	}, nil
}

// IngestSignals normalizes the caller's raw observations into typed
// capacity signals and safety metrics. Never errors.
func (e *Engine) IngestSignals(raw []RawObservation) ([]CapacitySignal, []SafetyMetric) {
	return IngestSignals(raw, e.clock())
}

// AdvanceTurn runs the full per-turn algorithm and returns the updated,
// still-in-memory state. The caller persists it afterward.
func (e *Engine) AdvanceTurn(state *RelationshipState, signals []CapacitySignal, metrics []SafetyMetric) (*RelationshipState, error) {
	now := e.clock()
	e.sessions.Observe(state, now)

	result, err := e.controller.AdvanceTurn(state, signals, metrics, now)
	if err != nil {
		return nil, err
	}

	e.turns.Inc()
	if result.StageChanged {
		open := state.StageHistory[len(state.StageHistory)-1]
		switch open.Reason {
		case ReasonAdvancement, ReasonUserRequest:
			e.advancements.Inc()
		case ReasonFallback:
			e.fallbacks.Inc()
		case ReasonCrisis:
			e.crises.Inc()
		}
		log.Printf("[Engine] user=%s stage %s → %s (%s)", state.UserID, result.PreviousStage, state.CurrentStage, open.Reason)
	} else if result.SafetyAction == ActionGentleMode {
		log.Printf("[Engine] user=%s gentle mode on %s", state.UserID, state.CurrentStage)
	}

	return state, nil
}

// ResolveConfig produces the effective stage config for the current state.
// Called immediately before the external response-generation call.
func (e *Engine) ResolveConfig(state *RelationshipState) (*OracleStageConfig, error) {
	return ResolveConfig(state, e.profiles)
}

// NewState creates the state for a first-time user.
func (e *Engine) NewState(userID string) *RelationshipState {
	return NewRelationshipState(userID, e.clock())
}

// Stats returns a snapshot of the engine counters.
func (e *Engine) Stats() EngineStats {
	return EngineStats{
		Turns:        e.turns.Load(),
		Advancements: e.advancements.Load(),
		Fallbacks:    e.fallbacks.Load(),
		Crises:       e.crises.Load(),
	}
}

// SetClock replaces the time source. Tests use this to replay histories
// deterministically.
func (e *Engine) SetClock(clock func() time.Time) {
	if clock != nil {
		e.clock = clock
	}
}
