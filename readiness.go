package oraclesdk

import (
	"math"
	"time"
)

// ──────────────────────────────────────────────
// Readiness Evaluator — aggregated evidence for advancement
// ──────────────────────────────────────────────

// DefaultReadinessHalfLife is the signal-age decay half-life: a signal
// this old counts half as much as a fresh one.
const DefaultReadinessHalfLife = 7 * 24 * time.Hour

// ReadinessResult holds the two derived scores for the current stage.
type ReadinessResult struct {
	ReadinessScore float64 `json:"readiness_score"`
	StabilityScore float64 `json:"stability_score"`
}

// ReadinessEvaluator aggregates recent capacity signals into a readiness
// score and a stability score. Pure over its inputs: malformed or empty
// input degrades to score 0, never errors.
type ReadinessEvaluator struct {
	halfLife time.Duration
}

// NewReadinessEvaluator creates an evaluator. The optional half-life
// defaults to DefaultReadinessHalfLife.
func NewReadinessEvaluator(halfLife ...time.Duration) *ReadinessEvaluator {
	hl := DefaultReadinessHalfLife
	if len(halfLife) > 0 && halfLife[0] > 0 {
		hl = halfLife[0]
	}
	return &ReadinessEvaluator{halfLife: hl}
}

// Evaluate computes readiness and stability for the given stage profile.
//
// Readiness is the age-decayed weighted mean of the signals whose kind the
// profile requires. An empty required set marks the terminal stage, where
// readiness is defined as 1.0.
//
// Stability is the fraction of the stability window, ending now, during
// which the per-day readiness held at or above the advancement threshold
// *continuously*. A single dip resets the run: stability must be held, not
// merely averaged, so noisy spikes cannot advance the stage.
func (e *ReadinessEvaluator) Evaluate(signals []CapacitySignal, profile *StageProfile, metrics RelationshipMetrics, now time.Time) ReadinessResult {
	if profile == nil {
		return ReadinessResult{}
	}
	if profile.Terminal() {
		return ReadinessResult{ReadinessScore: 1.0, StabilityScore: 1.0}
	}

	required := make(map[CapacitySignalKind]bool, len(profile.Advancement.RequiredCapacitySignals))
	for _, kind := range profile.Advancement.RequiredCapacitySignals {
		required[kind] = true
	}

	filtered := make([]CapacitySignal, 0, len(signals))
	for _, sig := range signals {
		if required[sig.Kind] && !sig.ObservedAt.After(now) {
			filtered = append(filtered, sig)
		}
	}

	readiness := e.decayedMean(filtered, now)
	stability := e.stability(filtered, profile, now)

	return ReadinessResult{
		ReadinessScore: readiness,
		StabilityScore: stability,
	}
}

// decayedMean is the exponentially age-weighted mean of signal values at
// evaluation time at. Stale signals matter less without being discarded.
func (e *ReadinessEvaluator) decayedMean(signals []CapacitySignal, at time.Time) float64 {
	var weighted, total float64
	for _, sig := range signals {
		age := at.Sub(sig.ObservedAt)
		if age < 0 {
			continue
		}
		w := math.Pow(0.5, age.Hours()/e.halfLife.Hours())
		weighted += clamp01(sig.Value) * w
		total += w
	}
	if total == 0 {
		return 0
	}
	return weighted / total
}

// stability replays the decayed mean at daily evaluation points across the
// stability window and counts the trailing run of days at or above the
// threshold. The run ends at now; any dip inside it zeroes the progress
// accumulated before the dip.
func (e *ReadinessEvaluator) stability(signals []CapacitySignal, profile *StageProfile, now time.Time) float64 {
	windowDays := profile.Advancement.StabilityWindowDays
	if windowDays <= 0 {
		return 1.0
	}
	threshold := profile.Advancement.MinimumThreshold

	run := 0
	for day := 0; day < windowDays; day++ {
		at := now.Add(-time.Duration(day) * 24 * time.Hour)
		visible := signalsObservedBy(signals, at)
		if e.decayedMean(visible, at) >= threshold {
			run++
			continue
		}
		break
	}
	return clamp01(float64(run) / float64(windowDays))
}

func signalsObservedBy(signals []CapacitySignal, at time.Time) []CapacitySignal {
	visible := make([]CapacitySignal, 0, len(signals))
	for _, sig := range signals {
		if !sig.ObservedAt.After(at) {
			visible = append(visible, sig)
		}
	}
	return visible
}
