package oraclesdk

import (
	"time"
)

// ──────────────────────────────────────────────
// Session Tracker — turn cadence to session boundaries
// ──────────────────────────────────────────────

// DefaultSessionGap is the inactivity gap that separates two sessions.
const DefaultSessionGap = 4 * time.Hour

// SessionTracker derives session boundaries from turn timestamps so the
// advancement session-count minimums have something real to count. A turn
// arriving after the inactivity gap opens a new session.
type SessionTracker struct {
	gap time.Duration
}

// NewSessionTracker creates a tracker. The optional gap defaults to
// DefaultSessionGap.
func NewSessionTracker(gap ...time.Duration) *SessionTracker {
	g := DefaultSessionGap
	if len(gap) > 0 && gap[0] > 0 {
		g = gap[0]
	}
	return &SessionTracker{gap: g}
}

// Observe inspects the time since the previous turn and bumps the session
// count when this turn starts a new session. Returns true on a session
// boundary. The very first turn of a relationship is always a boundary.
func (t *SessionTracker) Observe(state *RelationshipState, now time.Time) bool {
	last := state.LastTurnAt
	if last.IsZero() || now.Sub(last) >= t.gap {
		state.TouchSession()
		return true
	}
	return false
}

// DaysSinceLast returns whole days since the previous turn, or -1 when
// this is the first turn ever.
func (t *SessionTracker) DaysSinceLast(state *RelationshipState, now time.Time) int {
	if state.LastTurnAt.IsZero() {
		return -1
	}
	days := int(now.Sub(state.LastTurnAt).Hours() / 24)
	if days < 0 {
		days = 0
	}
	return days
}
