package oraclesdk

import (
	"fmt"
	"strings"
)

// ──────────────────────────────────────────────
// Effective Configuration Resolver — profile + overrides → snapshot
// ──────────────────────────────────────────────

// GentleModeDamping is the fraction by which gentle mode reduces tone
// directness and challenge comfort.
const GentleModeDamping = 0.5

// OracleStageConfig is the resolved, immutable behavioral snapshot handed
// to the response generator for one turn.
type OracleStageConfig struct {
	Stage         Stage                `json:"stage"`
	Tone          ToneProfile          `json:"tone"`
	Disclosure    DisclosureProfile    `json:"disclosure"`
	Orchestration OrchestrationProfile `json:"orchestration"`
	Voice         VoiceProfile         `json:"voice"`
	GentleMode    bool                 `json:"gentle_mode"`
	CrisisMode    bool                 `json:"crisis_mode"`
	MasteryVoice  bool                 `json:"mastery_voice"`
}

// ResolveConfig merges the active stage's static profile with the state's
// overrides into the single config consumed downstream. Pure and
// idempotent: identical state yields identical output, no side effects.
//
// Merge order, later wins: profile → gentle mode damping → mastery
// simplification → user customizations. Explicit user customization always
// beats computed defaults.
func ResolveConfig(state *RelationshipState, profiles map[Stage]*StageProfile) (*OracleStageConfig, error) {
	if profiles == nil {
		profiles = DefaultStageProfiles()
	}
	profile, ok := profiles[state.CurrentStage]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStage, state.CurrentStage)
	}

	config := &OracleStageConfig{
		Stage:         profile.Stage,
		Tone:          profile.Tone,
		Disclosure:    profile.Disclosure,
		Orchestration: profile.Orchestration,
		Voice:         profile.Voice,
		GentleMode:    state.Overrides.TemporaryGentleMode,
		CrisisMode:    state.Overrides.CrisisMode,
	}

	if state.Overrides.TemporaryGentleMode {
		config.Tone.Directness *= 1 - GentleModeDamping
		config.Tone.ChallengeComfort *= 1 - GentleModeDamping
		config.Orchestration.ResponseLength = LengthBrief
	}

	if state.CurrentStage == StageTransparentPrism && profile.Mastery.Enabled {
		config.MasteryVoice = true
		if profile.Mastery.SimplifyResponses {
			config.Orchestration.ComplexityLevel *= 0.5
			config.Orchestration.ResponseLength = LengthBrief
		}
		if profile.Mastery.DistillParadox {
			// Simplest expression of disclosure: everything visible, said
			// plainly.
			config.Disclosure.InnerProcessVisibility = 1.0
			config.Disclosure.SourceTransparency = 1.0
			config.Disclosure.SelfDisclosureDepth *= 0.5
		}
	}

	applyCustomizations(config, state.Overrides.Customizations)

	return config, nil
}

// applyCustomizations is a shallow field-level override keyed by dotted
// field path. Unknown keys and mistyped values are ignored: user
// customization is preference data, not configuration.
func applyCustomizations(config *OracleStageConfig, customizations map[string]any) {
	for key, raw := range customizations {
		switch key {
		case "tone.warmth":
			if v, ok := toFloat(raw); ok {
				config.Tone.Warmth = clamp01(v)
			}
		case "tone.directness":
			if v, ok := toFloat(raw); ok {
				config.Tone.Directness = clamp01(v)
			}
		case "tone.challenge_comfort":
			if v, ok := toFloat(raw); ok {
				config.Tone.ChallengeComfort = clamp01(v)
			}
		case "tone.formality":
			if v, ok := toFloat(raw); ok {
				config.Tone.Formality = clamp01(v)
			}
		case "tone.playfulness":
			if v, ok := toFloat(raw); ok {
				config.Tone.Playfulness = clamp01(v)
			}
		case "orchestration.response_length":
			if v, ok := raw.(string); ok {
				switch ResponseLength(v) {
				case LengthBrief, LengthModerate, LengthExpansive:
					config.Orchestration.ResponseLength = ResponseLength(v)
				}
			}
		case "orchestration.complexity_level":
			if v, ok := toFloat(raw); ok {
				config.Orchestration.ComplexityLevel = clamp01(v)
			}
		case "orchestration.personalization_level":
			if v, ok := toFloat(raw); ok {
				config.Orchestration.PersonalizationLevel = clamp01(v)
			}
		case "voice.register":
			if v, ok := raw.(string); ok && v != "" {
				config.Voice.Register = v
			}
		case "voice.pacing_wpm":
			if v, ok := toFloat(raw); ok && v > 0 {
				config.Voice.PacingWPM = int(v)
			}
		}
	}
}

func toFloat(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	}
	return 0, false
}

// FormatForPrompt renders the config as a compact instruction block the
// caller can splice into the response generator's system instructions.
func (c *OracleStageConfig) FormatForPrompt() string {
	var lines []string
	lines = append(lines, fmt.Sprintf("[oracle stage] %s", c.Stage))
	lines = append(lines, fmt.Sprintf("- tone: warmth %.2f, directness %.2f, challenge %.2f, formality %.2f, playfulness %.2f",
		c.Tone.Warmth, c.Tone.Directness, c.Tone.ChallengeComfort, c.Tone.Formality, c.Tone.Playfulness))
	lines = append(lines, fmt.Sprintf("- disclosure: depth %.2f, uncertainty %.2f, inner process %.2f, sources %.2f",
		c.Disclosure.SelfDisclosureDepth, c.Disclosure.UncertaintyAdmission,
		c.Disclosure.InnerProcessVisibility, c.Disclosure.SourceTransparency))
	lines = append(lines, fmt.Sprintf("- orchestration: %s, %s responses, %s mode, complexity %.2f",
		c.Orchestration.CooperationMode, c.Orchestration.ResponseLength,
		c.Orchestration.InteractionMode, c.Orchestration.ComplexityLevel))
	lines = append(lines, fmt.Sprintf("- voice: %s register", c.Voice.Register))
	if c.GentleMode {
		lines = append(lines, "- gentle mode: keep responses brief, soften challenge, prioritize steadiness")
	}
	if c.CrisisMode {
		lines = append(lines, "- crisis protocol: maximum care, structured grounding, no depth work")
	}
	if c.MasteryVoice {
		lines = append(lines, "- mastery voice: fewest words, plainest expression")
	}
	return strings.Join(lines, "\n")
}
