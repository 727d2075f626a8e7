package oraclesdk

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ──────────────────────────────────────────────
// Stage Profile Table — behavior as data, one profile per stage
// ──────────────────────────────────────────────

// ToneProfile holds the five tonal scalars, all in [0,1].
type ToneProfile struct {
	Warmth           float64 `json:"warmth" yaml:"warmth"`
	Directness       float64 `json:"directness" yaml:"directness"`
	ChallengeComfort float64 `json:"challenge_comfort" yaml:"challenge_comfort"`
	Formality        float64 `json:"formality" yaml:"formality"`
	Playfulness      float64 `json:"playfulness" yaml:"playfulness"`
}

// DisclosureProfile controls how much of itself the oracle reveals.
type DisclosureProfile struct {
	SelfDisclosureDepth    float64 `json:"self_disclosure_depth" yaml:"self_disclosure_depth"`
	UncertaintyAdmission   float64 `json:"uncertainty_admission" yaml:"uncertainty_admission"`
	InnerProcessVisibility float64 `json:"inner_process_visibility" yaml:"inner_process_visibility"`
	SourceTransparency     float64 `json:"source_transparency" yaml:"source_transparency"`
	AdmitsLimitations      bool    `json:"admits_limitations" yaml:"admits_limitations"`
	SharesReasoning        bool    `json:"shares_reasoning" yaml:"shares_reasoning"`
}

// CooperationMode describes who leads the conversation.
type CooperationMode string

const (
	CooperationDirective     CooperationMode = "directive"
	CooperationCollaborative CooperationMode = "collaborative"
	CooperationEmergent      CooperationMode = "emergent"
	CooperationTransparent   CooperationMode = "transparent"
)

// ResponseLength classifies target response size.
type ResponseLength string

const (
	LengthBrief     ResponseLength = "brief"
	LengthModerate  ResponseLength = "moderate"
	LengthExpansive ResponseLength = "expansive"
)

// InteractionMode describes the structural shape of a turn.
type InteractionMode string

const (
	InteractionGuided     InteractionMode = "guided"
	InteractionDialogical InteractionMode = "dialogical"
	InteractionCocreative InteractionMode = "cocreative"
	InteractionPrism      InteractionMode = "prism"
)

// OrchestrationProfile controls response structure and complexity.
type OrchestrationProfile struct {
	CooperationMode      CooperationMode `json:"cooperation_mode" yaml:"cooperation_mode"`
	ResponseLength       ResponseLength  `json:"response_length" yaml:"response_length"`
	InteractionMode      InteractionMode `json:"interaction_mode" yaml:"interaction_mode"`
	ComplexityLevel      float64         `json:"complexity_level" yaml:"complexity_level"`
	PersonalizationLevel float64         `json:"personalization_level" yaml:"personalization_level"`
}

// VoiceProfile holds voice rendering parameters.
type VoiceProfile struct {
	Register    string  `json:"register" yaml:"register"` // guiding|companionable|peer|crystalline
	WarmthLevel float64 `json:"warmth_level" yaml:"warmth_level"`
	PacingWPM   int     `json:"pacing_wpm" yaml:"pacing_wpm"`
}

// AdvancementCriteria gate the transition out of a stage.
// An empty RequiredCapacitySignals set marks the terminal stage.
type AdvancementCriteria struct {
	RequiredCapacitySignals []CapacitySignalKind `json:"required_capacity_signals" yaml:"required_capacity_signals"`
	MinimumThreshold        float64              `json:"minimum_threshold" yaml:"minimum_threshold"`
	SessionCountMinimum     int                  `json:"session_count_minimum" yaml:"session_count_minimum"`
	StabilityWindowDays     int                  `json:"stability_window_days" yaml:"stability_window_days"`
	OverridePossible        bool                 `json:"override_possible" yaml:"override_possible"`
}

// MonitoringIntensity grades how closely a stage watches for distress.
type MonitoringIntensity string

const (
	MonitoringIntensive MonitoringIntensity = "intensive"
	MonitoringActive    MonitoringIntensity = "active"
	MonitoringAmbient   MonitoringIntensity = "ambient"
)

// SafetySettings hold the per-stage safety posture.
type SafetySettings struct {
	FallbackTriggers      []SafetyMetricKind  `json:"fallback_triggers" yaml:"fallback_triggers"`
	MonitoringIntensity   MonitoringIntensity `json:"monitoring_intensity" yaml:"monitoring_intensity"`
	InterventionThreshold float64             `json:"intervention_threshold" yaml:"intervention_threshold"`
	RecoveryRequirement   float64             `json:"recovery_requirement" yaml:"recovery_requirement"`
}

// MasteryProfile is the terminal-stage simplification mode.
type MasteryProfile struct {
	Enabled           bool `json:"enabled" yaml:"enabled"`
	SimplifyResponses bool `json:"simplify_responses" yaml:"simplify_responses"`
	DistillParadox    bool `json:"distill_paradox" yaml:"distill_paradox"`
}

// StageProfile bundles everything that differs between stages.
// Profiles are built once at startup and never mutated.
type StageProfile struct {
	Stage         Stage                `json:"stage" yaml:"stage"`
	Tone          ToneProfile          `json:"tone" yaml:"tone"`
	Disclosure    DisclosureProfile    `json:"disclosure" yaml:"disclosure"`
	Orchestration OrchestrationProfile `json:"orchestration" yaml:"orchestration"`
	Voice         VoiceProfile         `json:"voice" yaml:"voice"`
	Advancement   AdvancementCriteria  `json:"advancement" yaml:"advancement"`
	Safety        SafetySettings       `json:"safety" yaml:"safety"`
	Mastery       MasteryProfile       `json:"mastery" yaml:"mastery"`
}

// StabilityWindow returns the stability window as a duration.
func (p *StageProfile) StabilityWindow() time.Duration {
	return time.Duration(p.Advancement.StabilityWindowDays) * 24 * time.Hour
}

// Terminal reports whether no further advancement is possible from p.
func (p *StageProfile) Terminal() bool {
	return len(p.Advancement.RequiredCapacitySignals) == 0
}

// DefaultStageProfiles returns the built-in profile table.
// Earlier stages carry shorter stability windows and lower intervention
// thresholds: safety reacts faster when the relationship is young.
func DefaultStageProfiles() map[Stage]*StageProfile {
	return map[Stage]*StageProfile{
		StageStructuredGuide: {
			Stage: StageStructuredGuide,
			Tone: ToneProfile{
				Warmth: 0.8, Directness: 0.7, ChallengeComfort: 0.2,
				Formality: 0.5, Playfulness: 0.3,
			},
			Disclosure: DisclosureProfile{
				SelfDisclosureDepth: 0.1, UncertaintyAdmission: 0.3,
				InnerProcessVisibility: 0.1, SourceTransparency: 0.4,
				AdmitsLimitations: true, SharesReasoning: false,
			},
			Orchestration: OrchestrationProfile{
				CooperationMode: CooperationDirective, ResponseLength: LengthModerate,
				InteractionMode: InteractionGuided, ComplexityLevel: 0.3,
				PersonalizationLevel: 0.2,
			},
			Voice: VoiceProfile{Register: "guiding", WarmthLevel: 0.8, PacingWPM: 140},
			Advancement: AdvancementCriteria{
				RequiredCapacitySignals: []CapacitySignalKind{
					SignalEngagement, SignalWellbeing, SignalTrust,
				},
				MinimumThreshold:    0.6,
				SessionCountMinimum: 5,
				StabilityWindowDays: 7,
				OverridePossible:    false,
			},
			Safety: SafetySettings{
				FallbackTriggers: []SafetyMetricKind{
					MetricOverwhelmDetected, MetricSleepDeprivation,
					MetricParanoidIdeation, MetricDissociationConfusion,
				},
				MonitoringIntensity:   MonitoringIntensive,
				InterventionThreshold: 0.3,
				RecoveryRequirement:   0.5,
			},
		},
		StageDialogicalCompanion: {
			Stage: StageDialogicalCompanion,
			Tone: ToneProfile{
				Warmth: 0.85, Directness: 0.6, ChallengeComfort: 0.4,
				Formality: 0.35, Playfulness: 0.5,
			},
			Disclosure: DisclosureProfile{
				SelfDisclosureDepth: 0.4, UncertaintyAdmission: 0.6,
				InnerProcessVisibility: 0.3, SourceTransparency: 0.6,
				AdmitsLimitations: true, SharesReasoning: true,
			},
			Orchestration: OrchestrationProfile{
				CooperationMode: CooperationCollaborative, ResponseLength: LengthModerate,
				InteractionMode: InteractionDialogical, ComplexityLevel: 0.5,
				PersonalizationLevel: 0.5,
			},
			Voice: VoiceProfile{Register: "companionable", WarmthLevel: 0.85, PacingWPM: 150},
			Advancement: AdvancementCriteria{
				RequiredCapacitySignals: []CapacitySignalKind{
					SignalEngagement, SignalCoherence, SignalIntegration,
				},
				MinimumThreshold:    0.65,
				SessionCountMinimum: 10,
				StabilityWindowDays: 14,
				OverridePossible:    false,
			},
			Safety: SafetySettings{
				FallbackTriggers: []SafetyMetricKind{
					MetricOverwhelmDetected, MetricSleepDeprivation,
					MetricParanoidIdeation, MetricDissociationConfusion,
					MetricMeaningVelocitySpike,
				},
				MonitoringIntensity:   MonitoringActive,
				InterventionThreshold: 0.4,
				RecoveryRequirement:   0.6,
			},
		},
		StageCocreativePartner: {
			Stage: StageCocreativePartner,
			Tone: ToneProfile{
				Warmth: 0.8, Directness: 0.75, ChallengeComfort: 0.7,
				Formality: 0.25, Playfulness: 0.65,
			},
			Disclosure: DisclosureProfile{
				SelfDisclosureDepth: 0.7, UncertaintyAdmission: 0.8,
				InnerProcessVisibility: 0.6, SourceTransparency: 0.8,
				AdmitsLimitations: true, SharesReasoning: true,
			},
			Orchestration: OrchestrationProfile{
				CooperationMode: CooperationEmergent, ResponseLength: LengthExpansive,
				InteractionMode: InteractionCocreative, ComplexityLevel: 0.75,
				PersonalizationLevel: 0.8,
			},
			Voice: VoiceProfile{Register: "peer", WarmthLevel: 0.8, PacingWPM: 155},
			Advancement: AdvancementCriteria{
				RequiredCapacitySignals: []CapacitySignalKind{
					SignalCoherence, SignalIntegration, SignalTrust, SignalWellbeing,
				},
				MinimumThreshold:    0.75,
				SessionCountMinimum: 25,
				StabilityWindowDays: 21,
				OverridePossible:    true,
			},
			Safety: SafetySettings{
				FallbackTriggers: []SafetyMetricKind{
					MetricOverwhelmDetected, MetricSleepDeprivation,
					MetricParanoidIdeation, MetricDissociationConfusion,
					MetricMeaningVelocitySpike,
				},
				MonitoringIntensity:   MonitoringActive,
				InterventionThreshold: 0.5,
				RecoveryRequirement:   0.7,
			},
		},
		StageTransparentPrism: {
			Stage: StageTransparentPrism,
			Tone: ToneProfile{
				Warmth: 0.75, Directness: 0.85, ChallengeComfort: 0.8,
				Formality: 0.15, Playfulness: 0.6,
			},
			Disclosure: DisclosureProfile{
				SelfDisclosureDepth: 0.9, UncertaintyAdmission: 0.95,
				InnerProcessVisibility: 0.9, SourceTransparency: 0.95,
				AdmitsLimitations: true, SharesReasoning: true,
			},
			Orchestration: OrchestrationProfile{
				CooperationMode: CooperationTransparent, ResponseLength: LengthExpansive,
				InteractionMode: InteractionPrism, ComplexityLevel: 0.9,
				PersonalizationLevel: 0.95,
			},
			Voice: VoiceProfile{Register: "crystalline", WarmthLevel: 0.75, PacingWPM: 150},
			Advancement: AdvancementCriteria{
				// Terminal: no further advancement.
				RequiredCapacitySignals: nil,
				MinimumThreshold:        0.85,
				SessionCountMinimum:     50,
				StabilityWindowDays:     30,
				OverridePossible:        true,
			},
			Safety: SafetySettings{
				FallbackTriggers: []SafetyMetricKind{
					MetricOverwhelmDetected, MetricSleepDeprivation,
					MetricParanoidIdeation, MetricDissociationConfusion,
					MetricMeaningVelocitySpike,
				},
				MonitoringIntensity:   MonitoringAmbient,
				InterventionThreshold: 0.5,
				RecoveryRequirement:   0.75,
			},
			Mastery: MasteryProfile{
				Enabled:           true,
				SimplifyResponses: true,
				DistillParadox:    true,
			},
		},
	}
}

// ──────────────────────────────────────────────
// Profile overrides and persistence
// ──────────────────────────────────────────────

// ProfileOverride tunes the numeric gates of one stage without replacing
// the whole profile. Nil pointer fields keep the built-in value.
type ProfileOverride struct {
	MinimumThreshold      *float64 `yaml:"minimum_threshold"`
	SessionCountMinimum   *int     `yaml:"session_count_minimum"`
	StabilityWindowDays   *int     `yaml:"stability_window_days"`
	InterventionThreshold *float64 `yaml:"intervention_threshold"`
	RecoveryRequirement   *float64 `yaml:"recovery_requirement"`
}

// LoadProfileOverrides reads a YAML file keyed by stage name and applies
// the overrides on top of the given profile table. Unknown stage keys are
// an error: they signal a configuration bug, not user noise.
func LoadProfileOverrides(path string, profiles map[Stage]*StageProfile) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read profile overrides: %w", err)
	}
	var raw map[string]ProfileOverride
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse profile overrides: %w", err)
	}
	for name, ov := range raw {
		stage := Stage(name)
		profile, ok := profiles[stage]
		if !ok {
			return fmt.Errorf("profile overrides: %w: %q", ErrUnknownStage, name)
		}
		if ov.MinimumThreshold != nil {
			profile.Advancement.MinimumThreshold = clamp01(*ov.MinimumThreshold)
		}
		if ov.SessionCountMinimum != nil && *ov.SessionCountMinimum >= 0 {
			profile.Advancement.SessionCountMinimum = *ov.SessionCountMinimum
		}
		if ov.StabilityWindowDays != nil && *ov.StabilityWindowDays > 0 {
			profile.Advancement.StabilityWindowDays = *ov.StabilityWindowDays
		}
		if ov.InterventionThreshold != nil {
			profile.Safety.InterventionThreshold = clamp01(*ov.InterventionThreshold)
		}
		if ov.RecoveryRequirement != nil {
			profile.Safety.RecoveryRequirement = clamp01(*ov.RecoveryRequirement)
		}
	}
	return nil
}

// SaveProfiles writes the profile table as indented JSON, one file per
// stage, for inspection and external tooling.
func SaveProfiles(dir string, profiles map[Stage]*StageProfile) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create profile dir: %w", err)
	}
	for stage, profile := range profiles {
		data, err := json.MarshalIndent(profile, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal profile %s: %w", stage, err)
		}
		path := filepath.Join(dir, string(stage)+".json")
		if err := os.WriteFile(path, data, 0644); err != nil {
			return fmt.Errorf("write profile %s: %w", stage, err)
		}
	}
	return nil
}
