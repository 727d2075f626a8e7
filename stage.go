package oraclesdk

import (
	"time"

	"github.com/google/uuid"
)

// ──────────────────────────────────────────────
// Stage — the four ordered relationship stages
// ──────────────────────────────────────────────

// Stage identifies one of the four ordered relationship stages.
// Advancement moves strictly forward; fallback and crisis may jump
// to any earlier stage.
type Stage string

const (
	StageStructuredGuide     Stage = "structured_guide"
	StageDialogicalCompanion Stage = "dialogical_companion"
	StageCocreativePartner   Stage = "cocreative_partner"
	StageTransparentPrism    Stage = "transparent_prism"
)

// stageOrder defines the total order used for advancement.
var stageOrder = []Stage{
	StageStructuredGuide,
	StageDialogicalCompanion,
	StageCocreativePartner,
	StageTransparentPrism,
}

// Index returns the position of the stage in the advancement order,
// or -1 for an unknown tag.
func (s Stage) Index() int {
	for i, st := range stageOrder {
		if st == s {
			return i
		}
	}
	return -1
}

// Valid reports whether the tag is one of the four known stages.
func (s Stage) Valid() bool {
	return s.Index() >= 0
}

// Next returns the stage after s, and false if s is terminal or unknown.
func (s Stage) Next() (Stage, bool) {
	i := s.Index()
	if i < 0 || i >= len(stageOrder)-1 {
		return s, false
	}
	return stageOrder[i+1], true
}

// Before reports whether s comes strictly before other in the order.
func (s Stage) Before(other Stage) bool {
	return s.Index() < other.Index()
}

// AllStages returns the four stages in advancement order.
func AllStages() []Stage {
	out := make([]Stage, len(stageOrder))
	copy(out, stageOrder)
	return out
}

// ──────────────────────────────────────────────
// Stage history
// ──────────────────────────────────────────────

// TransitionReason records why a stage was entered.
type TransitionReason string

const (
	ReasonInitial     TransitionReason = "initial"
	ReasonAdvancement TransitionReason = "advancement"
	ReasonFallback    TransitionReason = "fallback"
	ReasonUserRequest TransitionReason = "user_request"
	ReasonCrisis      TransitionReason = "crisis"
)

// StageHistoryEntry is one append-only record of a stage occupancy.
// Exactly one entry per state has no ExitedAt: the current stage.
type StageHistoryEntry struct {
	ID        string           `json:"id"`
	Stage     Stage            `json:"stage"`
	EnteredAt time.Time        `json:"entered_at"`
	ExitedAt  *time.Time       `json:"exited_at,omitempty"`
	Reason    TransitionReason `json:"reason"`
}

func newHistoryEntry(stage Stage, reason TransitionReason, at time.Time) StageHistoryEntry {
	return StageHistoryEntry{
		ID:        uuid.NewString(),
		Stage:     stage,
		EnteredAt: at,
		Reason:    reason,
	}
}
