package core

import "time"

// AffectiveState is the agent's VAD+intensity emotional representation.
// Valence is within [-1,1]; arousal, dominance and intensity within [0,1].
// Every write goes through Clamp so the ranges hold no matter the source.
type AffectiveState struct {
	Valence   float64 `json:"valence"`
	Arousal   float64 `json:"arousal"`
	Dominance float64 `json:"dominance"`
	Intensity float64 `json:"intensity"`

	Primary   string `json:"primary,omitempty"`
	Secondary string `json:"secondary,omitempty"`

	// Slow-moving mood baseline, updated by maintenance, not by epochs.
	MoodValence float64 `json:"mood_valence"`
	MoodArousal float64 `json:"mood_arousal"`

	Source    string    `json:"source,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DefaultAffect is the neutral starting state.
func DefaultAffect() AffectiveState {
	return AffectiveState{
		Valence:   0,
		Arousal:   0.3,
		Dominance: 0.5,
		Intensity: 0.2,
		Primary:   "calm",
	}
}

// AffectPatch carries a partial update. Nil fields keep the current value.
type AffectPatch struct {
	Valence     *float64 `json:"valence,omitempty"`
	Arousal     *float64 `json:"arousal,omitempty"`
	Dominance   *float64 `json:"dominance,omitempty"`
	Intensity   *float64 `json:"intensity,omitempty"`
	Primary     *string  `json:"primary,omitempty"`
	Secondary   *string  `json:"secondary,omitempty"`
	MoodValence *float64 `json:"mood_valence,omitempty"`
	MoodArousal *float64 `json:"mood_arousal,omitempty"`
	Source      *string  `json:"source,omitempty"`
}

// Apply merges the patch into the state and clamps the result.
func (a *AffectiveState) Apply(p AffectPatch) {
	if p.Valence != nil {
		a.Valence = *p.Valence
	}
	if p.Arousal != nil {
		a.Arousal = *p.Arousal
	}
	if p.Dominance != nil {
		a.Dominance = *p.Dominance
	}
	if p.Intensity != nil {
		a.Intensity = *p.Intensity
	}
	if p.Primary != nil {
		a.Primary = *p.Primary
	}
	if p.Secondary != nil {
		a.Secondary = *p.Secondary
	}
	if p.MoodValence != nil {
		a.MoodValence = *p.MoodValence
	}
	if p.MoodArousal != nil {
		a.MoodArousal = *p.MoodArousal
	}
	if p.Source != nil {
		a.Source = *p.Source
	}
	a.Clamp()
}

// Clamp forces every numeric field into its valid range.
func (a *AffectiveState) Clamp() {
	a.Valence = ClampRange(a.Valence, -1, 1)
	a.Arousal = ClampRange(a.Arousal, 0, 1)
	a.Dominance = ClampRange(a.Dominance, 0, 1)
	a.Intensity = ClampRange(a.Intensity, 0, 1)
	a.MoodValence = ClampRange(a.MoodValence, -1, 1)
	a.MoodArousal = ClampRange(a.MoodArousal, 0, 1)
}

// ClampRange limits v to [lo, hi].
func ClampRange(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
