package memory

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bodhi-ai/bodhi/pkg/bus"
)

// Engine wires the memory manager together: the three stores, the
// consolidation sweeper, the user input ingestor and the HTTP server.
type Engine struct {
	busClient    *bus.Client
	server       *Server
	consolidator *Consolidator
	ingestor     *Ingestor
}

// Options configures the memory engine.
type Options struct {
	ListenAddr            string        // HTTP listen address, e.g. ":8001"
	ConsolidationInterval time.Duration // zero means default (30m)
	EmbedWorkers          int           // embedding worker pool size; zero means default
}

// NewEngine creates a memory engine. db and index may be nil when their
// backends are not configured: the working store and sweep still run,
// long-term promotion degrades accordingly.
func NewEngine(busClient *bus.Client, rdb *redis.Client, db DB, index VectorIndex, opts Options) *Engine {
	instance := busClient.InstanceName()

	working := NewWorkingStore(rdb, instance, busClient)

	var episodic *EpisodicStore
	if db != nil {
		episodic = NewEpisodicStore(db, instance, busClient)
	}

	var semantic *SemanticStore
	if index != nil {
		embedder := NewPooledEmbedder(LocalEmbedder{}, opts.EmbedWorkers)
		var fallback SemanticFallback
		if episodic != nil {
			fallback = episodic
		}
		semantic = NewSemanticStore(embedder, index, fallback, instance, busClient)
	}

	// The sweeper needs plain writer views; nil interfaces must stay nil
	// rather than wrapping nil pointers.
	var episodicWriter, semanticWriter MemoryWriter
	if episodic != nil {
		episodicWriter = episodic
	}
	if semantic != nil {
		semanticWriter = semantic
	}
	consolidator := NewConsolidator(rdb, instance, working, episodicWriter, semanticWriter, opts.ConsolidationInterval)

	return &Engine{
		busClient:    busClient,
		server:       NewServer(opts.ListenAddr, working, episodic, semantic, consolidator),
		consolidator: consolidator,
		ingestor:     NewIngestor(busClient, working),
	}
}

// Run starts the HTTP server, the ingestor and the consolidation loop and
// blocks until the context is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.server.Start(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	defer e.server.Shutdown(context.Background())

	log.Printf("[Memory] Starting for instance '%s'", e.busClient.InstanceName())

	ingestorDone := make(chan error, 1)
	go func() {
		ingestorDone <- e.ingestor.Run(ctx)
	}()
	go e.consolidator.Run(ctx)

	select {
	case <-ctx.Done():
		log.Printf("[Memory] Shutting down...")
		<-ingestorDone
		return nil
	case err := <-ingestorDone:
		if err != nil {
			log.Printf("[Memory] Ingestor stopped: %v", err)
		}
		// Keep serving HTTP until shutdown even without an ingestor.
		<-ctx.Done()
		return err
	}
}
