package oraclesdk

import (
	"time"
)

// ──────────────────────────────────────────────
// Signal Ingest — typed capacity signals and safety metrics
// ──────────────────────────────────────────────

// CapacitySignalKind classifies a capacity observation.
type CapacitySignalKind string

const (
	SignalEngagement  CapacitySignalKind = "engagement"
	SignalCoherence   CapacitySignalKind = "coherence"
	SignalWellbeing   CapacitySignalKind = "wellbeing"
	SignalTrust       CapacitySignalKind = "trust"
	SignalIntegration CapacitySignalKind = "integration"
)

var knownSignalKinds = map[CapacitySignalKind]bool{
	SignalEngagement:  true,
	SignalCoherence:   true,
	SignalWellbeing:   true,
	SignalTrust:       true,
	SignalIntegration: true,
}

// SignalSource identifies where an observation came from.
type SignalSource string

const (
	SourceConversation SignalSource = "conversation"
	SourceUserFeedback SignalSource = "user_feedback"
	SourceMonitor      SignalSource = "wellbeing_monitor"
)

// CapacitySignal is a single normalized observation of user capacity.
// Created by ingest, retained in a rolling window, never mutated.
type CapacitySignal struct {
	Kind       CapacitySignalKind `json:"kind"`
	Value      float64            `json:"value"` // clamped to [0,1]
	ObservedAt time.Time          `json:"observed_at"`
	Source     SignalSource       `json:"source"`
}

// SafetyMetricKind classifies a detected distress pattern.
type SafetyMetricKind string

const (
	MetricMeaningVelocitySpike  SafetyMetricKind = "meaning_velocity_spike"
	MetricParanoidIdeation      SafetyMetricKind = "paranoid_ideation"
	MetricSleepDeprivation      SafetyMetricKind = "sleep_deprivation"
	MetricDissociationConfusion SafetyMetricKind = "dissociation_confusion"
	MetricOverwhelmDetected     SafetyMetricKind = "overwhelm_detected"
)

var knownMetricKinds = map[SafetyMetricKind]bool{
	MetricMeaningVelocitySpike:  true,
	MetricParanoidIdeation:      true,
	MetricSleepDeprivation:      true,
	MetricDissociationConfusion: true,
	MetricOverwhelmDetected:     true,
}

// MetricSeverity grades how serious a safety metric is.
type MetricSeverity string

const (
	SeverityLow      MetricSeverity = "low"
	SeverityMedium   MetricSeverity = "medium"
	SeverityHigh     MetricSeverity = "high"
	SeverityCritical MetricSeverity = "critical"
)

// severityRank orders severities for worst-case aggregation.
var severityRank = map[MetricSeverity]int{
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// ImpliedScore is the inverse of severity on [0,1]: low severity implies a
// high residual-capacity score. Used against the profile intervention
// threshold for escalation.
func (s MetricSeverity) ImpliedScore() float64 {
	rank, ok := severityRank[s]
	if !ok {
		return 0
	}
	return 1 - float64(rank)/4.0
}

// SafetyMetric is a single severity-graded distress observation.
type SafetyMetric struct {
	Kind              SafetyMetricKind `json:"kind"`
	Severity          MetricSeverity   `json:"severity"`
	ObservedAt        time.Time        `json:"observed_at"`
	Description       string           `json:"description,omitempty"`
	RecommendedAction SafetyAction     `json:"recommended_action"`
}

// ──────────────────────────────────────────────
// Ingest
// ──────────────────────────────────────────────

// RawObservation is the loose record handed in by the caller's feature
// extractors. Exactly one of CapacityKind or MetricKind should be set.
type RawObservation struct {
	CapacityKind string    `json:"capacity_kind,omitempty"`
	Value        float64   `json:"value,omitempty"`
	Source       string    `json:"source,omitempty"`
	MetricKind   string    `json:"metric_kind,omitempty"`
	Severity     string    `json:"severity,omitempty"`
	Description  string    `json:"description,omitempty"`
	ObservedAt   time.Time `json:"observed_at,omitempty"`
}

// IngestSignals normalizes raw observations into typed records.
// Values are clamped to [0,1], missing timestamps default to now, and
// records with unknown kinds are dropped. Never errors.
func IngestSignals(raw []RawObservation, now time.Time) ([]CapacitySignal, []SafetyMetric) {
	var signals []CapacitySignal
	var metrics []SafetyMetric

	for _, obs := range raw {
		at := obs.ObservedAt
		if at.IsZero() {
			at = now
		}

		if obs.CapacityKind != "" {
			kind := CapacitySignalKind(obs.CapacityKind)
			if !knownSignalKinds[kind] {
				continue
			}
			source := SignalSource(obs.Source)
			if source == "" {
				source = SourceConversation
			}
			signals = append(signals, CapacitySignal{
				Kind:       kind,
				Value:      clamp01(obs.Value),
				ObservedAt: at,
				Source:     source,
			})
			continue
		}

		if obs.MetricKind != "" {
			kind := SafetyMetricKind(obs.MetricKind)
			if !knownMetricKinds[kind] {
				continue
			}
			severity := MetricSeverity(obs.Severity)
			if _, ok := severityRank[severity]; !ok {
				severity = SeverityLow
			}
			metrics = append(metrics, SafetyMetric{
				Kind:              kind,
				Severity:          severity,
				ObservedAt:        at,
				Description:       obs.Description,
				RecommendedAction: actionFloorForSeverity(severity),
			})
		}
	}

	return signals, metrics
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
