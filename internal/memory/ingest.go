package memory

import (
	"context"
	"encoding/json"
	"log"

	"github.com/bodhi-ai/bodhi/pkg/bus"
)

// ingestImportance is the default importance of a raw user utterance. Low
// enough that unremarkable chatter expires from working memory untouched;
// upstream services re-store notable content with higher importance.
const ingestImportance = 0.5

// Ingestor captures every user request as a working memory so conversation
// context survives across requests without any explicit store call.
type Ingestor struct {
	bus     *bus.Client
	working *WorkingStore
}

// NewIngestor creates an ingestor writing to the given working store.
func NewIngestor(busClient *bus.Client, working *WorkingStore) *Ingestor {
	return &Ingestor{bus: busClient, working: working}
}

// Run subscribes to user.input and stores each message until the context is
// cancelled. Malformed messages are logged and skipped.
func (i *Ingestor) Run(ctx context.Context) error {
	channel := bus.UserInputChannel(i.bus.InstanceName())
	sub, err := i.bus.Subscribe(ctx, []string{channel}, nil)
	if err != nil {
		return err
	}
	defer sub.Close()

	log.Printf("[Memory] Ingesting user input from %s", channel)

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-sub.Messages():
			if !ok {
				return nil
			}
			i.ingest(ctx, []byte(msg.Payload))
		}
	}
}

func (i *Ingestor) ingest(ctx context.Context, payload []byte) {
	var env bus.RequestEnvelope
	if err := json.Unmarshal(payload, &env); err != nil || env.Text == "" {
		log.Printf("[Memory] Skipping unparsable user input message")
		return
	}

	key, err := i.working.Store(ctx, Entry{
		Content:    env.Text,
		Importance: ingestImportance,
		SessionID:  env.SessionID,
	})
	if err != nil {
		log.Printf("[Memory] Failed to store user input as working memory: %v", err)
		return
	}
	log.Printf("[Memory] Stored user input as %s", key)
}
