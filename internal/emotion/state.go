package emotion

import (
	"sync"
)

// VAD is a valence/arousal/dominance affect point. Valence ranges -1..1,
// arousal and dominance 0..1.
type VAD struct {
	Valence   float64 `json:"valence"`
	Arousal   float64 `json:"arousal"`
	Dominance float64 `json:"dominance"`
}

// Baseline is the resting affect the target drifts back to between events.
var Baseline = VAD{Valence: 0.1, Arousal: 0.3, Dominance: 0.5}

// Emotion dynamics constants.
const (
	DefaultTransitionSpeed = 0.1  // units per second current moves toward target
	DriftRate              = 0.02 // units per second target drifts toward baseline
	PublishThreshold       = 0.05 // minimum per-tick movement that triggers a broadcast
)

// EventEffects maps event types to VAD deltas applied to the target state.
// Deltas are scaled by event intensity before application.
var EventEffects = map[string]VAD{
	"user.positive_feedback": {Valence: +0.3, Arousal: +0.1, Dominance: +0.1},
	"user.negative_feedback": {Valence: -0.2, Arousal: +0.2, Dominance: -0.1},
	"user.greeting":          {Valence: +0.2, Arousal: +0.2, Dominance: 0.0},
	"user.farewell":          {Valence: +0.1, Arousal: -0.2, Dominance: 0.0},
	"task.completed":         {Valence: +0.2, Arousal: +0.1, Dominance: +0.2},
	"task.failed":            {Valence: -0.1, Arousal: +0.1, Dominance: -0.1},
	"user.input":             {Valence: +0.05, Arousal: +0.1, Dominance: 0.0},
	"language.response":      {Valence: 0.0, Arousal: -0.05, Dominance: 0.0},
}

// Personality is a Big Five profile.
type Personality map[string]float64

// DefaultPersonality is the companion's factory profile.
var DefaultPersonality = Personality{
	"openness":          0.8,
	"conscientiousness": 0.7,
	"extraversion":      0.5,
	"agreeableness":     0.8,
	"neuroticism":       0.2,
}

// clone so callers can't mutate shared state through the returned map.
func (p Personality) clone() Personality {
	out := make(Personality, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// State is the mutable affect state: a current point chasing a target point,
// the target itself drifting back to baseline. Safe for concurrent use.
type State struct {
	mu              sync.Mutex
	current         VAD
	target          VAD
	personality     Personality
	transitionSpeed float64
}

// NewState creates a state resting at baseline with the default personality.
// transitionSpeed <= 0 selects the default.
func NewState(transitionSpeed float64) *State {
	if transitionSpeed <= 0 {
		transitionSpeed = DefaultTransitionSpeed
	}
	return &State{
		current:         Baseline,
		target:          Baseline,
		personality:     DefaultPersonality.clone(),
		transitionSpeed: transitionSpeed,
	}
}

// ApplyEvent shifts the target by the event's scaled effect. Returns false
// for unknown event types, which are ignored.
func (s *State) ApplyEvent(eventType string, intensity float64) bool {
	effect, ok := EventEffects[eventType]
	if !ok {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.target.Valence = clamp(s.target.Valence+effect.Valence*intensity, -1, 1)
	s.target.Arousal = clamp(s.target.Arousal+effect.Arousal*intensity, 0, 1)
	s.target.Dominance = clamp(s.target.Dominance+effect.Dominance*intensity, 0, 1)
	return true
}

// Step advances the dynamics by dt seconds: current moves toward target at
// the transition speed, target drifts toward baseline at the drift rate.
// Returns true when any current dimension moved more than PublishThreshold.
func (s *State) Step(dt float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.current
	step := s.transitionSpeed * dt
	drift := DriftRate * dt

	s.current.Valence = approach(s.current.Valence, s.target.Valence, step)
	s.current.Arousal = approach(s.current.Arousal, s.target.Arousal, step)
	s.current.Dominance = approach(s.current.Dominance, s.target.Dominance, step)

	s.target.Valence = approach(s.target.Valence, Baseline.Valence, drift)
	s.target.Arousal = approach(s.target.Arousal, Baseline.Arousal, drift)
	s.target.Dominance = approach(s.target.Dominance, Baseline.Dominance, drift)

	s.current.Valence = clamp(s.current.Valence, -1, 1)
	s.current.Arousal = clamp(s.current.Arousal, 0, 1)
	s.current.Dominance = clamp(s.current.Dominance, 0, 1)

	return maxDelta(prev, s.current) > PublishThreshold
}

// Snapshot returns the current and target points.
func (s *State) Snapshot() (current, target VAD) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, s.target
}

// Label derives the display label from the current point and openness.
func (s *State) Label() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deriveLabel(s.current, s.personality["openness"])
}

// Personality returns a copy of the active profile.
func (s *State) Personality() Personality {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.personality.clone()
}

// SetPersonality merges trait updates into the active profile.
func (s *State) SetPersonality(updates Personality) Personality {
	s.mu.Lock()
	defer s.mu.Unlock()
	for trait, value := range updates {
		s.personality[trait] = value
	}
	return s.personality.clone()
}

// deriveLabel maps a VAD point to one of eight display labels. The neutral
// region splits on openness: open personalities read as curious, others calm.
func deriveLabel(p VAD, openness float64) string {
	switch {
	case p.Valence > 0.3 && p.Arousal > 0.5:
		return "excited"
	case p.Valence > 0.3:
		if p.Valence > 0.6 {
			return "happy"
		}
		return "content"
	case p.Valence < -0.2 && p.Arousal > 0.5:
		if p.Dominance < 0.4 {
			return "anxious"
		}
		return "frustrated"
	case p.Valence < -0.2:
		return "sad"
	case openness > 0.7:
		return "curious"
	default:
		return "calm"
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// approach moves from toward to by at most step.
func approach(from, to, step float64) float64 {
	diff := to - from
	if diff > step {
		return from + step
	}
	if diff < -step {
		return from - step
	}
	return to
}

func maxDelta(a, b VAD) float64 {
	max := abs(a.Valence - b.Valence)
	if d := abs(a.Arousal - b.Arousal); d > max {
		max = d
	}
	if d := abs(a.Dominance - b.Dominance); d > max {
		max = d
	}
	return max
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
