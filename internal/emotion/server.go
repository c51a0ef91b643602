package emotion

import (
	"context"
	"encoding/json"
	"log"
	"math"
	"net/http"
	"time"
)

// Version is the emotion service version reported by /health.
const Version = "0.1.0"

// Server exposes affect state and personality over HTTP.
type Server struct {
	service  *Service
	settings *SettingsStore // may be nil; personality updates then fail

	server *http.Server
}

// NewServer creates the emotion HTTP server listening on addr.
func NewServer(addr string, service *Service, settings *SettingsStore) *Server {
	s := &Server{service: service, settings: settings}

	mux := http.NewServeMux()
	mux.HandleFunc("/state", s.handleState)
	mux.HandleFunc("/update", s.handleUpdate)
	mux.HandleFunc("/personality", s.handlePersonality)
	mux.HandleFunc("/health", s.handleHealth)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return s
}

// Start starts the HTTP server in a background goroutine.
func (s *Server) Start() error {
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[Emotion] HTTP server error: %v", err)
		}
	}()
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// handleState handles GET /state: current, target, label and per-dimension
// transition progress.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	current, target := s.service.State().Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"current": current,
		"target":  target,
		"label":   s.service.State().Label(),
		"transition_progress": map[string]float64{
			"valence":   transitionProgress(current.Valence, target.Valence, Baseline.Valence),
			"arousal":   transitionProgress(current.Arousal, target.Arousal, Baseline.Arousal),
			"dominance": transitionProgress(current.Dominance, target.Dominance, Baseline.Dominance),
		},
	})
}

// transitionProgress estimates how far current has travelled toward target,
// measured against the target's distance from baseline.
func transitionProgress(current, target, baseline float64) float64 {
	span := math.Abs(target - baseline)
	if span < 1e-6 {
		span = 1e-6
	}
	progress := 1.0 - math.Abs(target-current)/span
	return math.Round(progress*10000) / 10000
}

// updateRequest is the POST /update body.
type updateRequest struct {
	EventType string   `json:"event_type"`
	Intensity *float64 `json:"intensity"`
}

// handleUpdate handles POST /update: apply one event effect directly.
func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	intensity := 1.0
	if req.Intensity != nil {
		intensity = *req.Intensity
	}
	if intensity < 0 || intensity > 2 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "intensity must be between 0 and 2"})
		return
	}
	if !s.service.ApplyEvent(r.Context(), req.EventType, intensity) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown event_type: " + req.EventType})
		return
	}

	current, _ := s.service.State().Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"label":   s.service.State().Label(),
		"current": current,
	})
}

// bigFiveTraits are the accepted personality fields.
var bigFiveTraits = []string{"openness", "conscientiousness", "extraversion", "agreeableness", "neuroticism"}

// handlePersonality handles GET and PUT /personality.
func (s *Server) handlePersonality(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{
			"profile_name": "bodhi_default",
			"personality":  s.service.State().Personality(),
		})

	case http.MethodPut:
		var body map[string]float64
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}

		updates := Personality{}
		for _, trait := range bigFiveTraits {
			if value, ok := body[trait]; ok {
				if value < 0 || value > 1 {
					writeJSON(w, http.StatusBadRequest, map[string]string{"error": trait + " must be between 0 and 1"})
					return
				}
				updates[trait] = value
			}
		}
		if len(updates) == 0 {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "no personality fields provided"})
			return
		}

		// Persist first: an unpersisted trait change silently reverting on
		// restart is worse than rejecting the update.
		merged := s.service.State().Personality()
		for trait, value := range updates {
			merged[trait] = value
		}
		if s.settings == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "personality persistence not configured"})
			return
		}
		if err := s.settings.SavePersonality(r.Context(), merged); err != nil {
			log.Printf("[Emotion] Personality save failed: %v", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "failed to persist personality"})
			return
		}

		applied := s.service.State().SetPersonality(updates)
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "personality": applied})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"agent":   WorkerName,
		"version": Version,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[Emotion] Failed to encode response: %v", err)
	}
}
