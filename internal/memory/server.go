package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"regexp"
	"strconv"
	"time"
)

// Version is the memory manager service version reported by /health.
const Version = "0.1.0"

// maxContentLength bounds stored content; memory entries are snippets, not
// documents.
const maxContentLength = 10_000

var storeSessionIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]*$`)

// Server exposes the memory manager's HTTP API: store, retrieve, recent,
// consolidate and health.
type Server struct {
	working      *WorkingStore
	episodic     *EpisodicStore
	semantic     *SemanticStore
	consolidator *Consolidator

	server *http.Server
}

// NewServer creates the memory manager HTTP server listening on addr.
// episodic and semantic may be nil when their backends are not configured;
// the matching endpoints then report failure.
func NewServer(addr string, working *WorkingStore, episodic *EpisodicStore, semantic *SemanticStore, consolidator *Consolidator) *Server {
	s := &Server{
		working:      working,
		episodic:     episodic,
		semantic:     semantic,
		consolidator: consolidator,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/store", s.handleStore)
	mux.HandleFunc("/retrieve", s.handleRetrieve)
	mux.HandleFunc("/recent", s.handleRecent)
	mux.HandleFunc("/consolidate", s.handleConsolidate)
	mux.HandleFunc("/health", s.handleHealth)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 90 * time.Second, // /consolidate legitimately runs long
	}

	return s
}

// Start starts the HTTP server in a background goroutine.
func (s *Server) Start() error {
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[Memory] HTTP server error: %v", err)
		}
	}()
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// storeRequest is the POST /store body.
type storeRequest struct {
	Content    string         `json:"content"`
	MemoryType string         `json:"memory_type"`
	Importance *float64       `json:"importance"`
	SessionID  string         `json:"session_id"`
	Metadata   map[string]any `json:"metadata"`
}

func (r *storeRequest) validate() error {
	if len(r.Content) == 0 || len(r.Content) > maxContentLength {
		return fmt.Errorf("content must be 1-%d characters", maxContentLength)
	}
	switch r.MemoryType {
	case "working", "episodic", "semantic":
	default:
		return fmt.Errorf("memory_type must be working, episodic or semantic")
	}
	if r.Importance != nil && (*r.Importance < 0 || *r.Importance > 1) {
		return fmt.Errorf("importance must be between 0 and 1")
	}
	if !storeSessionIDPattern.MatchString(r.SessionID) {
		return fmt.Errorf("session_id must contain only alphanumerics, underscores and hyphens")
	}
	return nil
}

// handleStore handles POST /store for all three memory types.
func (s *Server) handleStore(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req storeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if err := req.validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	importance := 0.5
	if req.Importance != nil {
		importance = *req.Importance
	}

	var id string
	var err error
	switch req.MemoryType {
	case "working":
		id, err = s.working.Store(r.Context(), Entry{
			Content:    req.Content,
			Importance: importance,
			SessionID:  req.SessionID,
			Metadata:   req.Metadata,
		})
	case "episodic":
		if s.episodic == nil {
			err = fmt.Errorf("episodic storage not configured")
		} else {
			id, err = s.episodic.Store(r.Context(), req.Content, req.SessionID, importance, req.Metadata)
		}
	case "semantic":
		if s.semantic == nil {
			err = fmt.Errorf("semantic storage not configured")
		} else {
			id, err = s.semantic.Store(r.Context(), req.Content, req.SessionID, importance, req.Metadata)
		}
	}
	if err != nil {
		log.Printf("[Memory] Store failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"id": id, "memory_type": req.MemoryType})
}

// retrieveRequest is the POST /retrieve body.
type retrieveRequest struct {
	Query      string  `json:"query"`
	Limit      int     `json:"limit"`
	MinScore   float64 `json:"min_score"`
	MemoryType string  `json:"memory_type"`
	SessionID  string  `json:"session_id"`
}

// handleRetrieve handles POST /retrieve: similarity search over the semantic
// index, with a best-effort access count bump for returned hits.
func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.semantic == nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "semantic storage not configured"})
		return
	}

	var req retrieveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if req.Query == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query must not be empty"})
		return
	}
	if req.Limit <= 0 {
		req.Limit = 5
	}
	if req.Limit > 100 {
		req.Limit = 100
	}

	hits, err := s.semantic.Retrieve(r.Context(), req.Query, req.Limit, req.MinScore, req.MemoryType, req.SessionID)
	if err != nil {
		log.Printf("[Memory] Retrieve failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	if len(hits) > 0 && s.episodic != nil {
		ids := make([]string, 0, len(hits))
		for _, hit := range hits {
			ids = append(ids, hit.ID)
		}
		s.episodic.BumpAccess(r.Context(), ids)
	}

	if hits == nil {
		hits = []Hit{}
	}
	writeJSON(w, http.StatusOK, hits)
}

// handleRecent handles GET /recent?limit=&session_id=.
func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.episodic == nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "episodic storage not configured"})
		return
	}

	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = parsed
	}

	records, err := s.episodic.Recent(r.Context(), r.URL.Query().Get("session_id"), limit)
	if err != nil {
		log.Printf("[Memory] Recent query failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if records == nil {
		records = []Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

// handleConsolidate handles POST /consolidate: a manual sweep trigger.
func (s *Server) handleConsolidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	consolidated, err := s.consolidator.RunOnce(r.Context())
	if err != nil {
		log.Printf("[Memory] Manual consolidation failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "consolidated": consolidated})
}

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"agent":   "memory-manager",
		"version": Version,
	})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[Memory] Failed to encode response: %v", err)
	}
}
