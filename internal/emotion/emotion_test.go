package emotion

import (
	"math"
	"testing"

	"github.com/animus-hq/animus/internal/core"
)

func almost(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestRegulateSuppress(t *testing.T) {
	a := &core.AffectiveState{Valence: -0.8, Arousal: 0.9, Dominance: 0.5, Intensity: 0.8}
	if err := Regulate(a, RegulateSuppress, ""); err != nil {
		t.Fatalf("regulate: %v", err)
	}
	if !almost(a.Valence, -0.24) {
		t.Errorf("valence = %v, want -0.24", a.Valence)
	}
	if !almost(a.Arousal, 0.6) {
		t.Errorf("arousal = %v, want 0.6", a.Arousal)
	}
	if !almost(a.Intensity, 0.24) {
		t.Errorf("intensity = %v, want 0.24", a.Intensity)
	}
}

func TestRegulateReduce(t *testing.T) {
	a := &core.AffectiveState{Valence: 0.5, Arousal: 0.5, Intensity: 0.5}
	if err := Regulate(a, RegulateReduce, ""); err != nil {
		t.Fatalf("regulate: %v", err)
	}
	if !almost(a.Valence, 0.35) || !almost(a.Arousal, 0.4) || !almost(a.Intensity, 0.3) {
		t.Errorf("got v=%v a=%v i=%v", a.Valence, a.Arousal, a.Intensity)
	}
}

func TestRegulateAmplifyCaps(t *testing.T) {
	a := &core.AffectiveState{Valence: 0.9, Arousal: 0.95, Intensity: 0.9}
	if err := Regulate(a, RegulateAmplify, ""); err != nil {
		t.Fatalf("regulate: %v", err)
	}
	if a.Valence != 1.0 {
		t.Errorf("valence = %v, want clamped 1.0", a.Valence)
	}
	if a.Arousal != 1.0 {
		t.Errorf("arousal = %v, want capped 1.0", a.Arousal)
	}
	if a.Intensity != 1.0 {
		t.Errorf("intensity = %v, want capped 1.0", a.Intensity)
	}
}

func TestRegulateReframe(t *testing.T) {
	t.Run("approach target flips valence positive", func(t *testing.T) {
		a := &core.AffectiveState{Valence: -0.6, Arousal: 0.5, Intensity: 0.5}
		if err := Regulate(a, RegulateReframe, "curiosity"); err != nil {
			t.Fatalf("regulate: %v", err)
		}
		if !almost(a.Valence, 0.2) {
			t.Errorf("valence = %v, want 0.2", a.Valence)
		}
	})
	t.Run("other target halves valence", func(t *testing.T) {
		a := &core.AffectiveState{Valence: -0.6, Arousal: 0.5, Intensity: 0.5}
		if err := Regulate(a, RegulateReframe, "loss"); err != nil {
			t.Fatalf("regulate: %v", err)
		}
		if !almost(a.Valence, -0.3) {
			t.Errorf("valence = %v, want -0.3", a.Valence)
		}
	})
}

func TestRegulateUnknownType(t *testing.T) {
	a := &core.AffectiveState{Valence: 0.4}
	if err := Regulate(a, "ventilate", ""); err != core.ErrInvalidInput {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
	if a.Valence != 0.4 {
		t.Error("state mutated on unknown type")
	}
}

func TestBlendAfterEpochDecaysAndAdjusts(t *testing.T) {
	a := &core.AffectiveState{Valence: 0.5, Arousal: 0.5, Dominance: 0.5}

	BlendAfterEpoch(a, EpochOutcome{BoundaryRefusals: 1}, nil)

	// 0.5*0.8 - 0.4 = 0.0 valence; 0.5*0.8 + 0.3 = 0.7 arousal.
	if !almost(a.Valence, 0.0) {
		t.Errorf("valence = %v, want 0.0", a.Valence)
	}
	if !almost(a.Arousal, 0.7) {
		t.Errorf("arousal = %v, want 0.7", a.Arousal)
	}
	if !almost(a.Intensity, 0.6*0.0+0.4*0.7) {
		t.Errorf("intensity = %v", a.Intensity)
	}
	if a.Primary == "" {
		t.Error("expected derived primary label")
	}
}

func TestBlendAfterEpochExternalAssessment(t *testing.T) {
	a := &core.AffectiveState{Valence: 0.0, Arousal: 0.5, Dominance: 0.5}
	v, ar := 1.0, 0.0

	BlendAfterEpoch(a, EpochOutcome{}, &Assessment{
		Valence: &v, Arousal: &ar, Primary: "hopeful",
	})

	// valence: 0.6*0 + 0.4*1 = 0.4; arousal: 0.6*0.4 + 0.4*0 = 0.24.
	if !almost(a.Valence, 0.4) {
		t.Errorf("valence = %v, want 0.4", a.Valence)
	}
	if !almost(a.Arousal, 0.24) {
		t.Errorf("arousal = %v, want 0.24", a.Arousal)
	}
	if a.Primary != "hopeful" {
		t.Errorf("primary = %q, want supplied label", a.Primary)
	}
}

func TestBlendAfterEpochRest(t *testing.T) {
	a := &core.AffectiveState{Valence: 0.0, Arousal: 0.8}
	BlendAfterEpoch(a, EpochOutcome{Rested: true}, nil)
	if !almost(a.Valence, 0.1) {
		t.Errorf("valence = %v, want 0.1", a.Valence)
	}
	if !almost(a.Arousal, 0.8*0.8-0.2) {
		t.Errorf("arousal = %v, want %v", a.Arousal, 0.8*0.8-0.2)
	}
}

func TestQuadrantLabel(t *testing.T) {
	cases := []struct {
		valence, arousal float64
		want             string
	}{
		{0.0, 0.2, "calm"},
		{0.6, 0.8, "excited"},
		{0.6, 0.2, "content"},
		{-0.6, 0.8, "distressed"},
		{-0.6, 0.2, "melancholy"},
	}
	for _, c := range cases {
		if got := QuadrantLabel(c.valence, c.arousal); got != c.want {
			t.Errorf("QuadrantLabel(%v, %v) = %q, want %q", c.valence, c.arousal, got, c.want)
		}
	}
}

func TestUpdateMood(t *testing.T) {
	a := &core.AffectiveState{MoodValence: 0.0, MoodArousal: 0.3, Arousal: 0.5}
	recent := []*core.Memory{
		{Source: "self", EmotionalValence: 0.8},
		{Source: "self", EmotionalValence: 0.4},
		{Source: "user", EmotionalValence: -1.0}, // ignored
	}

	UpdateMood(a, recent, 0.1)

	// avg of self valences = 0.6; mood = 0.9*0 + 0.1*0.6.
	if !almost(a.MoodValence, 0.06) {
		t.Errorf("mood valence = %v, want 0.06", a.MoodValence)
	}
}

func TestUpdateMoodNoSelfMemories(t *testing.T) {
	a := &core.AffectiveState{MoodValence: 0.5}
	UpdateMood(a, []*core.Memory{{Source: "user"}}, 0.1)
	if a.MoodValence != 0.5 {
		t.Error("mood should not move without self-attributed memories")
	}
}
