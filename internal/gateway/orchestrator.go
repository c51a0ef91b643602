package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/bodhi-ai/bodhi/pkg/bus"
)

// User-visible error categories. Publish timeout and response timeout are
// distinct outcomes: the first means the bus connection stalled, the second
// means no downstream worker answered in time.
const (
	ErrorTimeout        = "timeout"
	ErrorPublishTimeout = "publish timeout"
	ErrorUnavailable    = "unavailable"
	ErrorInternal       = "internal error"
)

// Default per-operation deadlines. The memory fetch deadline is strictly
// shorter than the response deadline: contextual enrichment is an
// optimization, never a blocking dependency.
const (
	DefaultResponseTimeout    = 5 * time.Second
	DefaultPublishTimeout     = 2 * time.Second
	DefaultMemoryFetchTimeout = 1 * time.Second
)

// Publisher is the bus surface the orchestrator needs. *bus.Client satisfies
// it in production; tests use fakes to exercise failure classification.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// ContextRetriever fetches contextual memory snippets for a query.
// Implementations talk to the memory manager; failures degrade to no context.
type ContextRetriever interface {
	Retrieve(ctx context.Context, query, sessionID string) ([]string, error)
}

// InputResponse is the terminal outcome of one request: exactly one of
// Response or Error is set, never both, never neither.
type InputResponse struct {
	RequestID string `json:"request_id"`
	Response  string `json:"response,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Orchestrator services the gateway's synchronous-facing API over the
// asynchronous bus: enrich, register a correlation slot, publish, await the
// reply, and always clean the slot up on the way out.
type Orchestrator struct {
	publisher Publisher
	instance  string
	table     *Table
	retriever ContextRetriever

	responseTimeout    time.Duration
	publishTimeout     time.Duration
	memoryFetchTimeout time.Duration
}

// NewOrchestrator creates an orchestrator with the default deadlines.
// retriever may be nil, in which case requests carry no memory context.
func NewOrchestrator(publisher Publisher, instance string, table *Table, retriever ContextRetriever) *Orchestrator {
	return &Orchestrator{
		publisher:          publisher,
		instance:           instance,
		table:              table,
		retriever:          retriever,
		responseTimeout:    DefaultResponseTimeout,
		publishTimeout:     DefaultPublishTimeout,
		memoryFetchTimeout: DefaultMemoryFetchTimeout,
	}
}

// SetTimeouts overrides the per-operation deadlines. Zero values keep the
// current setting.
func (o *Orchestrator) SetTimeouts(response, publish, memoryFetch time.Duration) {
	if response > 0 {
		o.responseTimeout = response
	}
	if publish > 0 {
		o.publishTimeout = publish
	}
	if memoryFetch > 0 {
		o.memoryFetchTimeout = memoryFetch
	}
}

// Handle services one user request end to end, generating a fresh request id.
// Inputs must already be validated by the transport layer.
func (o *Orchestrator) Handle(ctx context.Context, text, sessionID string) InputResponse {
	return o.HandleWithRequestID(ctx, uuid.New().String(), text, sessionID)
}

// HandleWithRequestID is Handle with a caller-supplied request id, used by the
// duplex transport where clients may correlate by their own id.
func (o *Orchestrator) HandleWithRequestID(ctx context.Context, requestID, text, sessionID string) InputResponse {
	// Best-effort enrichment, strictly before publish (sequential by design;
	// see the consolidated notes in DESIGN.md).
	memoryContext := o.fetchContext(ctx, text, sessionID)

	slot, err := o.table.Register(requestID)
	if err != nil {
		log.Printf("[Gateway] Slot registration failed for %s: %v", requestID, err)
		return InputResponse{RequestID: requestID, Error: ErrorInternal}
	}
	defer o.table.Remove(requestID)

	envelope := bus.RequestEnvelope{
		RequestID:     requestID,
		SessionID:     sessionID,
		Text:          text,
		MemoryContext: memoryContext,
	}
	payload, err := json.Marshal(&envelope)
	if err != nil {
		return InputResponse{RequestID: requestID, Error: ErrorInternal}
	}

	pubCtx, cancelPublish := context.WithTimeout(ctx, o.publishTimeout)
	defer cancelPublish()

	if err := o.publisher.Publish(pubCtx, bus.UserInputChannel(o.instance), payload); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			log.Printf("[Gateway] Publish timeout for request %s", requestID)
			return InputResponse{RequestID: requestID, Error: ErrorPublishTimeout}
		}
		log.Printf("[Gateway] Publish failed for request %s: %v", requestID, err)
		return InputResponse{RequestID: requestID, Error: ErrorUnavailable}
	}

	awaitCtx, cancelAwait := context.WithTimeout(ctx, o.responseTimeout)
	defer cancelAwait()

	response, err := slot.Await(awaitCtx)
	if err != nil {
		log.Printf("[Gateway] Response timeout for request %s", requestID)
		return InputResponse{RequestID: requestID, Error: ErrorTimeout}
	}

	return InputResponse{RequestID: requestID, Response: response}
}

// fetchContext retrieves up to MaxMemoryContext relevant memories under its
// own short deadline. Any failure degrades to empty context; it can never
// fail the request.
func (o *Orchestrator) fetchContext(ctx context.Context, query, sessionID string) []string {
	if o.retriever == nil {
		return nil
	}

	fetchCtx, cancel := context.WithTimeout(ctx, o.memoryFetchTimeout)
	defer cancel()

	snippets, err := o.retriever.Retrieve(fetchCtx, query, sessionID)
	if err != nil {
		log.Printf("[Gateway] Memory context fetch failed (continuing without): %v", err)
		return nil
	}
	if len(snippets) > bus.MaxMemoryContext {
		snippets = snippets[:bus.MaxMemoryContext]
	}
	return snippets
}
