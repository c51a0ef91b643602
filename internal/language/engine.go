package language

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/bodhi-ai/bodhi/pkg/bus"
)

// Engine wires the language worker together: the bus subscriber, the
// heartbeat publisher and the HTTP server.
type Engine struct {
	busClient *bus.Client
	service   *Service
	server    *Server
	heartbeat time.Duration
}

// Options configures the language engine.
type Options struct {
	ListenAddr        string
	HeartbeatInterval time.Duration // zero means default
	Personality       Personality   // may be nil
}

// NewEngine creates a language engine around an existing bus client.
func NewEngine(busClient *bus.Client, opts Options) *Engine {
	service := NewService(busClient)
	if opts.Personality != nil {
		service.SetPersonality(opts.Personality)
	}
	return &Engine{
		busClient: busClient,
		service:   service,
		server:    NewServer(opts.ListenAddr, service),
		heartbeat: opts.HeartbeatInterval,
	}
}

// Run starts the HTTP server, the heartbeat publisher and the subscriber and
// blocks until the context is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.server.Start(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	defer e.server.Shutdown(context.Background())

	log.Printf("[Language] Starting for instance '%s'", e.busClient.InstanceName())

	go bus.RunHeartbeat(ctx, e.busClient, WorkerName, e.heartbeat)

	serviceDone := make(chan error, 1)
	go func() {
		serviceDone <- e.service.Run(ctx)
	}()

	select {
	case <-ctx.Done():
		log.Printf("[Language] Shutting down...")
		<-serviceDone
		return nil
	case err := <-serviceDone:
		if err != nil {
			log.Printf("[Language] Subscriber stopped: %v", err)
		}
		<-ctx.Done()
		return err
	}
}
