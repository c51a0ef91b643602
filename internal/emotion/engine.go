package emotion

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/bodhi-ai/bodhi/pkg/bus"
)

// Engine wires the emotion worker together: affect state, the bus service,
// the heartbeat publisher and the HTTP server.
type Engine struct {
	busClient *bus.Client
	service   *Service
	server    *Server
	settings  *SettingsStore
	heartbeat time.Duration
}

// Options configures the emotion engine.
type Options struct {
	ListenAddr        string
	TransitionSpeed   float64       // zero means default
	HeartbeatInterval time.Duration // zero means default
}

// NewEngine creates an emotion engine. db may be nil; personality then
// neither loads nor persists.
func NewEngine(busClient *bus.Client, db DB, opts Options) *Engine {
	state := NewState(opts.TransitionSpeed)
	service := NewService(busClient, state)

	var settings *SettingsStore
	if db != nil {
		settings = NewSettingsStore(db)
	}

	return &Engine{
		busClient: busClient,
		service:   service,
		server:    NewServer(opts.ListenAddr, service, settings),
		settings:  settings,
		heartbeat: opts.HeartbeatInterval,
	}
}

// Run loads the persisted personality, starts the HTTP server, the heartbeat
// publisher and the affect loop, and blocks until the context is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	if e.settings != nil {
		if personality, err := e.settings.LoadPersonality(ctx); err != nil {
			log.Printf("[Emotion] Personality load failed, using defaults: %v", err)
		} else {
			e.service.State().SetPersonality(personality)
		}
	}

	if err := e.server.Start(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	defer e.server.Shutdown(context.Background())

	log.Printf("[Emotion] Starting for instance '%s'", e.busClient.InstanceName())

	go bus.RunHeartbeat(ctx, e.busClient, WorkerName, e.heartbeat)

	serviceDone := make(chan error, 1)
	go func() {
		serviceDone <- e.service.Run(ctx)
	}()

	select {
	case <-ctx.Done():
		log.Printf("[Emotion] Shutting down...")
		<-serviceDone
		return nil
	case err := <-serviceDone:
		if err != nil {
			log.Printf("[Emotion] Affect loop stopped: %v", err)
		}
		<-ctx.Done()
		return err
	}
}
