// Package emotion implements the emotional state engine: deterministic
// regulation operators, the post-epoch blend, and the slow mood baseline.
package emotion

import (
	"math"
	"time"

	"github.com/animus-hq/animus/internal/core"
)

// RegulateType selects one of the four regulation operators.
type RegulateType string

const (
	RegulateSuppress RegulateType = "suppress"
	RegulateReduce   RegulateType = "reduce"
	RegulateAmplify  RegulateType = "amplify"
	RegulateReframe  RegulateType = "reframe"
)

// approachTargets are reframe targets that flip valence mildly positive.
var approachTargets = map[string]bool{
	"curiosity":   true,
	"opportunity": true,
	"growth":      true,
	"challenge":   true,
}

// Regulate applies one deterministic operator to the state and reclamps.
// Unknown types return ErrInvalidInput and leave the state untouched.
func Regulate(a *core.AffectiveState, typ RegulateType, target string) error {
	switch typ {
	case RegulateSuppress:
		a.Valence *= 0.3
		a.Arousal = a.Arousal*0.5 + 0.15
		a.Intensity *= 0.3
	case RegulateReduce:
		a.Valence *= 0.7
		a.Arousal *= 0.8
		a.Intensity *= 0.6
	case RegulateAmplify:
		a.Valence *= 1.3
		a.Arousal = math.Min(1.0, a.Arousal*1.2)
		a.Intensity = math.Min(1.0, a.Intensity*1.5)
	case RegulateReframe:
		if approachTargets[target] {
			a.Valence = 0.2
		} else {
			a.Valence *= 0.5
		}
		a.Arousal *= 0.8
		a.Intensity *= 0.7
	default:
		return core.ErrInvalidInput
	}
	a.Source = "regulate_" + string(typ)
	a.UpdatedAt = time.Now().UTC()
	a.Clamp()
	return nil
}

// EpochOutcome summarizes what happened during an epoch for the post-epoch
// blend heuristics.
type EpochOutcome struct {
	BoundaryRefusals int
	FailedActions    int
	OutreachSuccess  int
	Rested           bool
	GoalsCompleted   int
	GoalsAbandoned   int
}

// Assessment is an externally supplied emotional reading of the epoch.
type Assessment struct {
	Valence   *float64 `json:"valence,omitempty"`
	Arousal   *float64 `json:"arousal,omitempty"`
	Primary   string   `json:"primary,omitempty"`
	Secondary string   `json:"secondary,omitempty"`
}

// BlendAfterEpoch folds the epoch's outcome into the state: decay 20%
// toward neutral, apply outcome heuristics, blend 60/40 with the external
// assessment when present, clamp, and re-derive labels and intensity.
func BlendAfterEpoch(a *core.AffectiveState, outcome EpochOutcome, assess *Assessment) {
	a.Valence *= 0.8
	a.Arousal *= 0.8

	if outcome.BoundaryRefusals > 0 {
		a.Valence -= 0.4
		a.Arousal += 0.3
	}
	if outcome.FailedActions > 0 {
		a.Valence -= 0.1
		a.Arousal += 0.1
	}
	if outcome.OutreachSuccess > 0 {
		a.Valence += 0.2
		a.Arousal += 0.1
	}
	if outcome.Rested {
		a.Valence += 0.1
		a.Arousal -= 0.2
	}
	if outcome.GoalsCompleted > 0 {
		a.Valence += 0.3
		a.Arousal += 0.1
	}
	if outcome.GoalsAbandoned > 0 {
		a.Valence -= 0.2
		a.Arousal -= 0.1
	}

	if assess != nil {
		if assess.Valence != nil {
			a.Valence = 0.6*a.Valence + 0.4*(*assess.Valence)
		}
		if assess.Arousal != nil {
			a.Arousal = 0.6*a.Arousal + 0.4*(*assess.Arousal)
		}
	}

	a.Clamp()

	if assess != nil && assess.Primary != "" {
		a.Primary = assess.Primary
		a.Secondary = assess.Secondary
	} else {
		a.Primary = QuadrantLabel(a.Valence, a.Arousal)
		a.Secondary = ""
	}
	a.Intensity = core.ClampRange(0.6*math.Abs(a.Valence)+0.4*a.Arousal, 0, 1)
	a.Source = "epoch_blend"
	a.UpdatedAt = time.Now().UTC()
}

// QuadrantLabel names the valence/arousal quadrant.
func QuadrantLabel(valence, arousal float64) string {
	const calmBand = 0.15
	if math.Abs(valence) < calmBand && arousal < 0.35 {
		return "calm"
	}
	switch {
	case valence >= 0 && arousal >= 0.5:
		return "excited"
	case valence >= 0:
		return "content"
	case arousal >= 0.5:
		return "distressed"
	default:
		return "melancholy"
	}
}

// UpdateMood exponentially blends the slow mood baseline toward the average
// valence of recent self-attributed episodic memories. Runs on the
// maintenance cadence, decoupled from heartbeats.
func UpdateMood(a *core.AffectiveState, recent []*core.Memory, alpha float64) {
	if len(recent) == 0 {
		return
	}
	var sum float64
	n := 0
	for _, m := range recent {
		if m.Source != "self" {
			continue
		}
		sum += m.EmotionalValence
		n++
	}
	if n == 0 {
		return
	}
	avg := sum / float64(n)
	a.MoodValence = core.ClampRange((1-alpha)*a.MoodValence+alpha*avg, -1, 1)
	a.MoodArousal = core.ClampRange((1-alpha)*a.MoodArousal+alpha*a.Arousal, 0, 1)
	a.UpdatedAt = time.Now().UTC()
}
