package emotion

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplyEvent(t *testing.T) {
	t.Run("shifts the target, not the current point", func(t *testing.T) {
		s := NewState(0)
		assert.True(t, s.ApplyEvent("user.greeting", 1.0))

		current, target := s.Snapshot()
		assert.Equal(t, Baseline, current)
		assert.InDelta(t, Baseline.Valence+0.2, target.Valence, 1e-9)
		assert.InDelta(t, Baseline.Arousal+0.2, target.Arousal, 1e-9)
		assert.InDelta(t, Baseline.Dominance, target.Dominance, 1e-9)
	})

	t.Run("intensity scales the effect", func(t *testing.T) {
		s := NewState(0)
		s.ApplyEvent("user.positive_feedback", 2.0)

		_, target := s.Snapshot()
		assert.InDelta(t, Baseline.Valence+0.6, target.Valence, 1e-9)
	})

	t.Run("unknown events are ignored", func(t *testing.T) {
		s := NewState(0)
		assert.False(t, s.ApplyEvent("no.such.event", 1.0))

		_, target := s.Snapshot()
		assert.Equal(t, Baseline, target)
	})

	t.Run("targets are clamped to their ranges", func(t *testing.T) {
		s := NewState(0)
		for i := 0; i < 20; i++ {
			s.ApplyEvent("user.positive_feedback", 2.0)
		}
		_, target := s.Snapshot()
		assert.Equal(t, 1.0, target.Valence)
		assert.Equal(t, 1.0, target.Arousal)
		assert.Equal(t, 1.0, target.Dominance)

		for i := 0; i < 40; i++ {
			s.ApplyEvent("user.negative_feedback", 2.0)
		}
		_, target = s.Snapshot()
		assert.Equal(t, -1.0, target.Valence)
		assert.Equal(t, 0.0, target.Dominance)
	})
}

func TestStep(t *testing.T) {
	t.Run("current approaches target at the transition speed", func(t *testing.T) {
		s := NewState(0.1)
		s.ApplyEvent("user.positive_feedback", 1.0) // target valence 0.4

		s.Step(1.0)
		current, _ := s.Snapshot()
		assert.InDelta(t, Baseline.Valence+0.1, current.Valence, 1e-9)
	})

	t.Run("current snaps to target within one step", func(t *testing.T) {
		s := NewState(0.1)
		s.ApplyEvent("user.input", 1.0) // target valence +0.05, within one 0.1 step

		s.Step(1.0)
		current, target := s.Snapshot()
		assert.InDelta(t, target.Valence, current.Valence, DriftRate+1e-9)
	})

	t.Run("target drifts back to baseline", func(t *testing.T) {
		s := NewState(0.1)
		s.ApplyEvent("user.positive_feedback", 1.0)

		// 0.3 of displacement at 0.02 per second is 15 seconds.
		for i := 0; i < 20; i++ {
			s.Step(1.0)
		}
		_, target := s.Snapshot()
		assert.InDelta(t, Baseline.Valence, target.Valence, 1e-9)
		assert.InDelta(t, Baseline.Arousal, target.Arousal, 1e-9)
	})

	t.Run("whole system settles at baseline", func(t *testing.T) {
		s := NewState(0.1)
		s.ApplyEvent("user.negative_feedback", 1.5)

		for i := 0; i < 60; i++ {
			s.Step(1.0)
		}
		current, target := s.Snapshot()
		assert.Equal(t, Baseline, target)
		assert.InDelta(t, Baseline.Valence, current.Valence, 1e-9)
		assert.InDelta(t, Baseline.Arousal, current.Arousal, 1e-9)
		assert.InDelta(t, Baseline.Dominance, current.Dominance, 1e-9)
	})

	t.Run("movement above threshold reports a change", func(t *testing.T) {
		s := NewState(0.1)
		s.ApplyEvent("user.positive_feedback", 1.0)
		assert.True(t, s.Step(1.0), "0.1 step exceeds the 0.05 threshold")
	})

	t.Run("resting state reports no change", func(t *testing.T) {
		s := NewState(0.1)
		assert.False(t, s.Step(1.0))
	})
}

func TestDeriveLabel(t *testing.T) {
	tests := []struct {
		name     string
		point    VAD
		openness float64
		label    string
	}{
		{"excited", VAD{Valence: 0.5, Arousal: 0.7, Dominance: 0.5}, 0.8, "excited"},
		{"happy", VAD{Valence: 0.7, Arousal: 0.3, Dominance: 0.5}, 0.8, "happy"},
		{"content", VAD{Valence: 0.4, Arousal: 0.3, Dominance: 0.5}, 0.8, "content"},
		{"anxious", VAD{Valence: -0.5, Arousal: 0.7, Dominance: 0.2}, 0.8, "anxious"},
		{"frustrated", VAD{Valence: -0.5, Arousal: 0.7, Dominance: 0.6}, 0.8, "frustrated"},
		{"sad", VAD{Valence: -0.5, Arousal: 0.2, Dominance: 0.5}, 0.8, "sad"},
		{"curious when open", VAD{Valence: 0.1, Arousal: 0.3, Dominance: 0.5}, 0.8, "curious"},
		{"calm when not open", VAD{Valence: 0.1, Arousal: 0.3, Dominance: 0.5}, 0.5, "calm"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.label, deriveLabel(tt.point, tt.openness))
		})
	}
}

func TestPersonality(t *testing.T) {
	s := NewState(0)

	t.Run("defaults", func(t *testing.T) {
		p := s.Personality()
		assert.Equal(t, 0.8, p["openness"])
		assert.Equal(t, 0.2, p["neuroticism"])
	})

	t.Run("updates merge", func(t *testing.T) {
		merged := s.SetPersonality(Personality{"neuroticism": 0.9})
		assert.Equal(t, 0.9, merged["neuroticism"])
		assert.Equal(t, 0.8, merged["openness"], "untouched traits survive")
	})

	t.Run("returned copies do not alias state", func(t *testing.T) {
		p := s.Personality()
		p["openness"] = 0.0
		assert.Equal(t, 0.8, s.Personality()["openness"])
	})
}
