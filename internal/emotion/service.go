package emotion

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/bodhi-ai/bodhi/pkg/bus"
)

// WorkerName is the liveness identity announced on the heartbeat channel.
const WorkerName = "emotion-regulator"

// TransitionInterval is the dynamics tick period.
const TransitionInterval = time.Second

// Service runs the affect loop: bus events shift the target, the tick moves
// the current point, and meaningful movement is broadcast on
// emotion.state_changed.
type Service struct {
	bus   *bus.Client
	state *State
}

// NewService creates an emotion service over the given bus client and state.
func NewService(busClient *bus.Client, state *State) *Service {
	return &Service{bus: busClient, state: state}
}

// State returns the underlying affect state.
func (s *Service) State() *State {
	return s.state
}

// Run subscribes to stimulus channels and runs the transition tick until the
// context is cancelled. Incoming requests nudge arousal up; replies going
// back out relax it.
func (s *Service) Run(ctx context.Context) error {
	instance := s.bus.InstanceName()
	sub, err := s.bus.Subscribe(ctx,
		[]string{bus.UserInputChannel(instance)},
		[]string{bus.ReplyPattern(instance)})
	if err != nil {
		return err
	}
	defer sub.Close()

	log.Printf("[Emotion] Listening for stimuli on %s and replies", bus.UserInputChannel(instance))

	ticker := time.NewTicker(TransitionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if s.state.Step(TransitionInterval.Seconds()) {
				s.publishState(ctx)
			}
		case msg, ok := <-sub.Messages():
			if !ok {
				return nil
			}
			s.handleMessage(ctx, msg)
		}
	}
}

// handleMessage maps a bus message to an event effect. Reply traffic (any
// channel matching the reply pattern) counts as a language response.
func (s *Service) handleMessage(ctx context.Context, msg bus.Message) {
	instance := s.bus.InstanceName()

	eventType := "user.input"
	if _, ok := bus.RequestIDFromReplyChannel(instance, msg.Channel); ok {
		eventType = "language.response"
	}

	intensity := 1.0
	var body struct {
		Intensity *float64 `json:"intensity"`
	}
	if err := json.Unmarshal([]byte(msg.Payload), &body); err == nil && body.Intensity != nil {
		intensity = *body.Intensity
	}

	if s.state.ApplyEvent(eventType, intensity) {
		s.publishState(ctx)
	}
}

// ApplyEvent applies one event (from the HTTP surface) and broadcasts the
// resulting state. Returns false for unknown event types.
func (s *Service) ApplyEvent(ctx context.Context, eventType string, intensity float64) bool {
	if !s.state.ApplyEvent(eventType, intensity) {
		return false
	}
	s.publishState(ctx)
	return true
}

// statePayload is the emotion.state_changed wire shape.
type statePayload struct {
	Valence   float64 `json:"valence"`
	Arousal   float64 `json:"arousal"`
	Dominance float64 `json:"dominance"`
	Label     string  `json:"label"`
}

func (s *Service) publishState(ctx context.Context) {
	current, _ := s.state.Snapshot()
	payload, err := json.Marshal(statePayload{
		Valence:   current.Valence,
		Arousal:   current.Arousal,
		Dominance: current.Dominance,
		Label:     s.state.Label(),
	})
	if err != nil {
		return
	}
	channel := bus.EmotionStateChannel(s.bus.InstanceName())
	if err := s.bus.Publish(ctx, channel, payload); err != nil && ctx.Err() == nil {
		log.Printf("[Emotion] Failed to broadcast state: %v", err)
	}
}
