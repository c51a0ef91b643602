package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/bodhi-ai/bodhi/pkg/bus"
)

// Version is the gateway service version reported by /health.
const Version = "0.1.0"

// Server exposes the gateway's synchronous HTTP surface and the duplex
// websocket surface. Both transports drive the same orchestrator.
type Server struct {
	busClient    *bus.Client
	orchestrator *Orchestrator
	liveness     *LivenessTracker
	registry     *ConnectionRegistry
	memoryClient *MemoryClient // may be nil

	server   *http.Server
	upgrader websocket.Upgrader
}

// NewServer creates the gateway HTTP server listening on addr.
func NewServer(addr string, busClient *bus.Client, orchestrator *Orchestrator, liveness *LivenessTracker, registry *ConnectionRegistry, memoryClient *MemoryClient) *Server {
	s := &Server{
		busClient:    busClient,
		orchestrator: orchestrator,
		liveness:     liveness,
		registry:     registry,
		memoryClient: memoryClient,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/input", s.handleInput)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/ws/chat", s.handleWebSocket)

	s.server = &http.Server{
		Addr:        addr,
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
		// No WriteTimeout: /input legitimately holds the connection for the
		// full response deadline, and websockets are long-lived.
	}

	return s
}

// Start starts the HTTP server in a background goroutine.
func (s *Server) Start() error {
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[Gateway] HTTP server error: %v", err)
		}
	}()
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// inputRequest is the POST /input body.
type inputRequest struct {
	Text      string `json:"text"`
	SessionID string `json:"session_id"`
}

// handleInput handles POST /input: the synchronous transport.
func (s *Server) handleInput(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req inputRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if err := bus.ValidateText(req.Text); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := bus.ValidateSessionID(req.SessionID); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	result := s.orchestrator.Handle(r.Context(), req.Text, req.SessionID)
	writeJSON(w, http.StatusOK, result)
}

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"agent":   "gateway",
		"version": Version,
	})
}

// statusResponse is the GET /status body.
type statusResponse struct {
	MemoryMB      float64         `json:"memory_mb"`
	ActiveWorkers []string        `json:"active_workers"`
	Sessions      int             `json:"ws_sessions"`
	Connections   map[string]bool `json:"connections"`
}

// handleStatus handles GET /status: process memory, worker membership and
// collaborator connectivity flags.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	connections := map[string]bool{
		"redis": s.busClient.Ping(ctx) == nil,
	}
	if s.memoryClient != nil {
		connections["memory_manager"] = s.memoryClient.Healthy(ctx)
	}

	writeJSON(w, http.StatusOK, statusResponse{
		MemoryMB:      float64(memStats.Alloc) / 1024 / 1024,
		ActiveWorkers: s.liveness.ActiveWorkers(),
		Sessions:      s.registry.Sessions(),
		Connections:   connections,
	})
}

// wsFrame is the outbound websocket message shape. Type is one of
// animation.command, response.text, emotion.update, error.
type wsFrame struct {
	Type      string  `json:"type"`
	RequestID string  `json:"request_id,omitempty"`
	Action    string  `json:"action,omitempty"`
	Text      string  `json:"text,omitempty"`
	Detail    string  `json:"detail,omitempty"`
	Valence   float64 `json:"valence,omitempty"`
	Arousal   float64 `json:"arousal,omitempty"`
	Label     string  `json:"label,omitempty"`
}

// inboundMessage is the inbound websocket message shape.
type inboundMessage struct {
	Type      string `json:"type"`
	Text      string `json:"text"`
	RequestID string `json:"request_id"`
}

// clientConn serializes writes to one websocket connection. Gorilla permits
// only one concurrent writer, and both the reader loop and broadcasts write.
type clientConn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *clientConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(v)
}

func (c *clientConn) Close() error {
	return c.ws.Close()
}

// handleWebSocket handles the duplex surface at GET /ws/chat?session_id=.
// Each inbound user.message runs the same enrich/publish/await sequence as
// POST /input, wrapped in progress notifications.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if err := bus.ValidateSessionID(sessionID); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[Gateway] WebSocket upgrade failed: %v", err)
		return
	}

	conn := &clientConn{ws: ws}
	s.registry.Register(sessionID, conn)
	log.Printf("[Gateway] WebSocket client connected: session=%s", sessionID)

	defer func() {
		s.registry.Deregister(sessionID, conn)
		conn.Close()
		log.Printf("[Gateway] WebSocket client disconnected: session=%s", sessionID)
	}()

	for {
		var msg inboundMessage
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("[Gateway] WebSocket read error: session=%s: %v", sessionID, err)
			}
			return
		}
		s.handleUserMessage(r.Context(), conn, sessionID, msg)
	}
}

// handleUserMessage services one inbound websocket message. Malformed
// messages produce an error frame on the same connection; the loop continues.
func (s *Server) handleUserMessage(ctx context.Context, conn *clientConn, sessionID string, msg inboundMessage) {
	if msg.Type != "user.message" {
		conn.WriteJSON(wsFrame{Type: "error", Detail: fmt.Sprintf("unknown type: %s", msg.Type)})
		return
	}
	if err := bus.ValidateText(msg.Text); err != nil {
		conn.WriteJSON(wsFrame{Type: "error", Detail: "text must be 1-2000 chars"})
		return
	}

	requestID := msg.RequestID
	if requestID == "" {
		requestID = uuid.New().String()
	}

	conn.WriteJSON(wsFrame{Type: "animation.command", Action: "thinking", RequestID: requestID})

	result := s.orchestrator.HandleWithRequestID(ctx, requestID, msg.Text, sessionID)
	if result.Error != "" {
		conn.WriteJSON(wsFrame{Type: "error", RequestID: requestID, Detail: result.Error})
		return
	}

	conn.WriteJSON(wsFrame{Type: "animation.command", Action: "talking", RequestID: requestID})
	conn.WriteJSON(wsFrame{Type: "response.text", RequestID: requestID, Text: result.Response})
	conn.WriteJSON(wsFrame{Type: "animation.command", Action: "idle", RequestID: requestID})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[Gateway] Failed to encode response: %v", err)
	}
}
