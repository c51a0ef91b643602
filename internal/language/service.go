package language

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/bodhi-ai/bodhi/pkg/bus"
)

// WorkerName is the liveness identity announced on the heartbeat channel.
const WorkerName = "language-center"

// Service is the conversational worker: it owns every user request, turning
// input into a reply on the request's reply channel. It tracks the latest
// broadcast emotion state so generated text reflects current affect.
type Service struct {
	bus *bus.Client

	mu          sync.Mutex
	emotion     EmotionState
	personality Personality
}

// NewService creates a language service over the given bus client.
func NewService(busClient *bus.Client) *Service {
	return &Service{
		bus:         busClient,
		personality: Personality{},
	}
}

// SetPersonality replaces the personality profile used for generation.
func (s *Service) SetPersonality(p Personality) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.personality = p
}

func (s *Service) snapshot() (EmotionState, Personality) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.emotion, s.personality
}

// Run subscribes to user.input and the emotion broadcast and answers requests
// until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	instance := s.bus.InstanceName()
	sub, err := s.bus.Subscribe(ctx, []string{
		bus.UserInputChannel(instance),
		bus.EmotionStateChannel(instance),
	}, nil)
	if err != nil {
		return err
	}
	defer sub.Close()

	log.Printf("[Language] Listening on %s", bus.UserInputChannel(instance))

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-sub.Messages():
			if !ok {
				return nil
			}
			switch msg.Channel {
			case bus.EmotionStateChannel(instance):
				s.updateEmotion([]byte(msg.Payload))
			default:
				s.answer(ctx, []byte(msg.Payload))
			}
		}
	}
}

func (s *Service) updateEmotion(payload []byte) {
	var state EmotionState
	if err := json.Unmarshal(payload, &state); err != nil {
		log.Printf("[Language] Malformed emotion state payload: %v", err)
		return
	}
	s.mu.Lock()
	s.emotion = state
	s.mu.Unlock()
}

// answer services one user request: classify, extract, generate, publish the
// reply to the request's own channel. Malformed requests are logged and
// dropped; the gateway times the request out.
func (s *Service) answer(ctx context.Context, payload []byte) {
	var req bus.RequestEnvelope
	if err := json.Unmarshal(payload, &req); err != nil || req.RequestID == "" {
		log.Printf("[Language] Skipping unparsable user input message")
		return
	}

	intent, confidence := ClassifyIntent(req.Text)
	entities := ExtractEntities(req.Text)
	sentiment, sentimentScore := AnalyzeSentiment(req.Text)

	emotion, personality := s.snapshot()
	response := Generate(req.Text, intent, emotion, personality)

	reply := bus.ReplyEnvelope{
		RequestID:        req.RequestID,
		SessionID:        req.SessionID,
		Response:         response,
		Intent:           intent,
		IntentConfidence: confidence,
		Entities:         entities,
		Sentiment:        sentiment,
		SentimentScore:   sentimentScore,
	}
	replyPayload, err := json.Marshal(&reply)
	if err != nil {
		log.Printf("[Language] Failed to marshal reply for %s: %v", req.RequestID, err)
		return
	}

	channel := bus.ReplyChannel(s.bus.InstanceName(), req.RequestID)
	if err := s.bus.Publish(ctx, channel, replyPayload); err != nil {
		log.Printf("[Language] Failed to publish reply for %s: %v", req.RequestID, err)
		return
	}
	log.Printf("[Language] Answered %s (intent=%s)", req.RequestID, intent)
}
