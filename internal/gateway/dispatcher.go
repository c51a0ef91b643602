package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/bodhi-ai/bodhi/pkg/bus"
)

// BroadcastHandler consumes one broadcast message. Handlers run on the
// dispatcher goroutine and must not block for long.
type BroadcastHandler func(channel string, payload []byte)

// Dispatcher is the gateway's single background event consumer. It owns one
// subscription connection carrying the reply.* pattern, the heartbeat.*
// pattern, and the fixed broadcast channels, and demultiplexes inbound
// messages by channel shape:
//
//   - reply channels resolve the correlation slot named by the channel suffix
//   - heartbeat channels feed the liveness tracker
//   - broadcast channels fan out to registered handlers
//
// A malformed message or a panicking handler is logged and skipped; nothing
// terminates the loop short of context cancellation.
type Dispatcher struct {
	bus      *bus.Client
	table    *Table
	liveness *LivenessTracker

	mu       sync.Mutex
	handlers map[string][]BroadcastHandler
}

// NewDispatcher creates a dispatcher routing replies into table and
// heartbeats into liveness.
func NewDispatcher(busClient *bus.Client, table *Table, liveness *LivenessTracker) *Dispatcher {
	return &Dispatcher{
		bus:      busClient,
		table:    table,
		liveness: liveness,
		handlers: make(map[string][]BroadcastHandler),
	}
}

// OnBroadcast registers a handler for an exact broadcast channel.
// Must be called before Run; the subscription set is fixed at startup.
func (d *Dispatcher) OnBroadcast(channel string, handler BroadcastHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[channel] = append(d.handlers[channel], handler)
}

// Run subscribes and processes events until the context is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	instance := d.bus.InstanceName()

	d.mu.Lock()
	channels := make([]string, 0, len(d.handlers))
	for channel := range d.handlers {
		channels = append(channels, channel)
	}
	d.mu.Unlock()

	patterns := []string{
		bus.ReplyPattern(instance),
		bus.HeartbeatPattern(instance),
	}

	sub, err := d.bus.Subscribe(ctx, channels, patterns)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	defer sub.Close()

	log.Printf("[Gateway] Dispatcher subscribed: %d broadcast channels, patterns %v", len(channels), patterns)

	for {
		select {
		case <-ctx.Done():
			log.Printf("[Gateway] Dispatcher shutting down...")
			return nil

		case msg, ok := <-sub.Messages():
			if !ok {
				log.Printf("[Gateway] Dispatcher subscription closed")
				return nil
			}
			d.dispatch(msg)
		}
	}
}

// dispatch classifies one message by channel shape and routes it.
func (d *Dispatcher) dispatch(msg bus.Message) {
	instance := d.bus.InstanceName()

	if requestID, ok := bus.RequestIDFromReplyChannel(instance, msg.Channel); ok {
		d.table.Resolve(requestID, responseText(msg.Payload))
		return
	}

	if worker, ok := bus.WorkerFromHeartbeatChannel(instance, msg.Channel); ok {
		d.liveness.Heartbeat(worker)
		return
	}

	d.mu.Lock()
	handlers := d.handlers[msg.Channel]
	d.mu.Unlock()

	if len(handlers) == 0 {
		log.Printf("[Gateway] No handler for channel '%s', dropping message", msg.Channel)
		return
	}

	// One handler panicking must not prevent the others from running.
	for _, handler := range handlers {
		d.invoke(handler, msg)
	}
}

func (d *Dispatcher) invoke(handler BroadcastHandler, msg bus.Message) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Gateway] Broadcast handler panicked on '%s': %v", msg.Channel, r)
		}
	}()
	handler(msg.Channel, []byte(msg.Payload))
}

// responseText extracts the response string from a reply payload. A reply is
// never dropped merely because it is not well-formed: if the body fails to
// parse as JSON or carries no response field, the raw payload is the response.
func responseText(payload string) string {
	var reply struct {
		Response *string `json:"response"`
	}
	if err := json.Unmarshal([]byte(payload), &reply); err != nil || reply.Response == nil {
		return payload
	}
	return *reply.Response
}
