package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/bodhi-ai/bodhi/pkg/bus"
)

// Engine wires the gateway together: the event dispatcher, the liveness
// tracker, the connection registry, the request orchestrator and the HTTP
// server, all sharing one bus client.
type Engine struct {
	busClient  *bus.Client
	dispatcher *Dispatcher
	server     *Server
	registry   *ConnectionRegistry
}

// Options configures the gateway engine.
type Options struct {
	ListenAddr       string        // HTTP listen address, e.g. ":8000"
	MemoryManagerURL string        // base URL of the memory manager; empty disables enrichment
	ResponseTimeout  time.Duration // zero means default
	PublishTimeout   time.Duration
	MemoryTimeout    time.Duration
	Staleness        time.Duration // worker staleness threshold; zero means default
}

// NewEngine creates a gateway engine around an existing bus client.
func NewEngine(busClient *bus.Client, opts Options) *Engine {
	table := NewTable()
	liveness := NewLivenessTracker(opts.Staleness)
	registry := NewConnectionRegistry()

	var memoryClient *MemoryClient
	var retriever ContextRetriever
	if opts.MemoryManagerURL != "" {
		memoryClient = NewMemoryClient(opts.MemoryManagerURL)
		retriever = memoryClient
	}

	orchestrator := NewOrchestrator(busClient, busClient.InstanceName(), table, retriever)
	orchestrator.SetTimeouts(opts.ResponseTimeout, opts.PublishTimeout, opts.MemoryTimeout)

	dispatcher := NewDispatcher(busClient, table, liveness)

	instance := busClient.InstanceName()

	// Emotion state changes fan out to every connected websocket client.
	dispatcher.OnBroadcast(bus.EmotionStateChannel(instance), func(channel string, payload []byte) {
		var state struct {
			Valence float64 `json:"valence"`
			Arousal float64 `json:"arousal"`
			Label   string  `json:"label"`
		}
		if err := json.Unmarshal(payload, &state); err != nil {
			log.Printf("[Gateway] Malformed emotion state payload: %v", err)
			return
		}
		registry.Broadcast(wsFrame{
			Type:    "emotion.update",
			Valence: state.Valence,
			Arousal: state.Arousal,
			Label:   state.Label,
		}, "")
	})

	// Memory store confirmations are observational only.
	dispatcher.OnBroadcast(bus.MemoryStoredChannel(instance), func(channel string, payload []byte) {
		log.Printf("[Gateway] Memory stored: %s", payload)
	})

	return &Engine{
		busClient:  busClient,
		dispatcher: dispatcher,
		server:     NewServer(opts.ListenAddr, busClient, orchestrator, liveness, registry, memoryClient),
		registry:   registry,
	}
}

// Run starts the HTTP server and the dispatcher and blocks until the context
// is cancelled. The dispatcher crashing is logged, not fatal: the synchronous
// surface keeps answering (with timeouts) while Redis recovers.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.server.Start(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	defer e.server.Shutdown(context.Background())

	log.Printf("[Gateway] Starting for instance '%s'", e.busClient.InstanceName())

	dispatcherDone := make(chan error, 1)
	go func() {
		dispatcherDone <- e.dispatcher.Run(ctx)
	}()

	select {
	case <-ctx.Done():
		log.Printf("[Gateway] Shutting down...")
		<-dispatcherDone
		return nil
	case err := <-dispatcherDone:
		if err != nil {
			log.Printf("[Gateway] Dispatcher stopped: %v", err)
		}
		// Keep serving HTTP until shutdown even without a dispatcher.
		<-ctx.Done()
		return err
	}
}
