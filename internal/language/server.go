package language

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/bodhi-ai/bodhi/pkg/bus"
)

// Version is the language service version reported by /health.
const Version = "0.1.0"

// Server exposes understanding and generation over HTTP for callers outside
// the bus (tooling, other services probing interpretation directly).
type Server struct {
	service *Service
	server  *http.Server
}

// NewServer creates the language HTTP server listening on addr.
func NewServer(addr string, service *Service) *Server {
	s := &Server{service: service}

	mux := http.NewServeMux()
	mux.HandleFunc("/understand", s.handleUnderstand)
	mux.HandleFunc("/generate", s.handleGenerate)
	mux.HandleFunc("/sentiment", s.handleSentiment)
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
			log.Printf("[Language] HTTP server error: %v", err)
		}
	}()
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

type understandRequest struct {
	Text      string `json:"text"`
	SessionID string `json:"session_id"`
}

type understandResponse struct {
	Intent           string       `json:"intent"`
	IntentConfidence float64      `json:"intent_confidence"`
	Entities         []bus.Entity `json:"entities"`
	Sentiment        string       `json:"sentiment"`
	SentimentScore   float64      `json:"sentiment_score"`
}

func (s *Server) handleUnderstand(w http.ResponseWriter, r *http.Request) {
	var req understandRequest
	if !decodePost(w, r, &req) {
		return
	}

	intent, confidence := ClassifyIntent(req.Text)
	sentiment, score := AnalyzeSentiment(req.Text)
	entities := ExtractEntities(req.Text)
	if entities == nil {
		entities = []bus.Entity{}
	}

	writeJSON(w, http.StatusOK, understandResponse{
		Intent:           intent,
		IntentConfidence: confidence,
		Entities:         entities,
		Sentiment:        sentiment,
		SentimentScore:   score,
	})
}

type generateRequest struct {
	Prompt      string       `json:"prompt"`
	Intent      string       `json:"intent"`
	Emotion     EmotionState `json:"emotion"`
	Personality Personality  `json:"personality"`
}

type generateResponse struct {
	Text      string `json:"text"`
	TokensUsed int   `json:"tokens_used"`
	LatencyMS int    `json:"latency_ms"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if !decodePost(w, r, &req) {
		return
	}
	if req.Intent == "" {
		req.Intent = "chitchat"
	}

	started := time.Now()
	text := Generate(req.Prompt, req.Intent, req.Emotion, req.Personality)

	writeJSON(w, http.StatusOK, generateResponse{
		Text:       text,
		TokensUsed: len(strings.Fields(text)),
		LatencyMS:  int(time.Since(started).Milliseconds()),
	})
}

type sentimentRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleSentiment(w http.ResponseWriter, r *http.Request) {
	var req sentimentRequest
	if !decodePost(w, r, &req) {
		return
	}

	label, score := AnalyzeSentiment(req.Text)
	writeJSON(w, http.StatusOK, map[string]any{"label": label, "score": score})
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

// decodePost enforces POST with a JSON body; writes the error response itself.
func decodePost(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[Language] Failed to encode response: %v", err)
	}
}
