package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupServer(t *testing.T) (*Server, *WorkingStore) {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	working := NewWorkingStore(rdb, testInstance, nil)
	consolidator := NewConsolidator(rdb, testInstance, working, &fakeWriter{}, nil, time.Minute)
	return NewServer(":0", working, nil, nil, consolidator), working
}

func postJSON(t *testing.T, handler http.HandlerFunc, body any) *httptest.ResponseRecorder {
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestServerStoreWorking(t *testing.T) {
	server, working := setupServer(t)

	rec := postJSON(t, server.handleStore, storeRequest{
		Content:    "remember me",
		MemoryType: "working",
		SessionID:  "alice",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "working", resp["memory_type"])

	entry, ok, err := working.Get(context.Background(), resp["id"])
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "remember me", entry.Content)
	assert.Equal(t, 0.5, entry.Importance, "importance defaults to 0.5")
}

func TestServerStoreValidation(t *testing.T) {
	server, _ := setupServer(t)

	tests := []struct {
		name string
		req  storeRequest
	}{
		{"empty content", storeRequest{Content: "", MemoryType: "working"}},
		{"unknown memory type", storeRequest{Content: "x", MemoryType: "procedural"}},
		{"importance above one", storeRequest{Content: "x", MemoryType: "working", Importance: ptr(1.5)}},
		{"importance below zero", storeRequest{Content: "x", MemoryType: "working", Importance: ptr(-0.1)}},
		{"bad session id", storeRequest{Content: "x", MemoryType: "working", SessionID: "no spaces"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postJSON(t, server.handleStore, tt.req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestServerStoreUnconfiguredBackend(t *testing.T) {
	server, _ := setupServer(t)

	rec := postJSON(t, server.handleStore, storeRequest{Content: "x", MemoryType: "episodic"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestServerConsolidate(t *testing.T) {
	server, working := setupServer(t)

	_, err := working.Store(context.Background(), Entry{Content: "promote", Importance: 0.9})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/consolidate", nil)
	rec := httptest.NewRecorder()
	server.handleConsolidate(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
	assert.Equal(t, float64(1), resp["consolidated"])
}

func TestServerHealth(t *testing.T) {
	server, _ := setupServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	server.handleHealth(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp["status"])
	assert.Equal(t, "memory-manager", resp["agent"])
}

func ptr(f float64) *float64 { return &f }
