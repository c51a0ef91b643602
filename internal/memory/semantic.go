package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/bodhi-ai/bodhi/pkg/bus"
)

// SemanticFallback is the durable store used when the vector index is down.
// *EpisodicStore satisfies it.
type SemanticFallback interface {
	StoreSemanticFallback(ctx context.Context, content, sessionID string, importance float64, metadata map[string]any) (string, error)
}

// SemanticStore embeds content and writes it to the vector index, falling
// back to Postgres when the index is unavailable so writes are never lost.
type SemanticStore struct {
	embedder  Embedder
	index     VectorIndex
	fallback  SemanticFallback // may be nil
	instance  string
	publisher Publisher // may be nil
}

// NewSemanticStore creates a semantic store.
func NewSemanticStore(embedder Embedder, index VectorIndex, fallback SemanticFallback, instance string, publisher Publisher) *SemanticStore {
	return &SemanticStore{
		embedder:  embedder,
		index:     index,
		fallback:  fallback,
		instance:  instance,
		publisher: publisher,
	}
}

// Store embeds and upserts one semantic memory, announcing it on
// memory.stored. When the index write fails the record goes to the fallback
// store instead; only a double failure returns an error.
func (s *SemanticStore) Store(ctx context.Context, content, sessionID string, importance float64, metadata map[string]any) (string, error) {
	if metadata == nil {
		metadata = map[string]any{}
	}

	pointID := uuid.New().String()
	indexErr := s.upsert(ctx, pointID, content, sessionID, importance, metadata)
	if indexErr == nil {
		s.announce(ctx, map[string]string{"point_id": pointID, "memory_type": "semantic"})
		return pointID, nil
	}

	log.Printf("[Memory] Vector index store failed, falling back to Postgres: %v", indexErr)
	if s.fallback == nil {
		return "", indexErr
	}
	memoryID, err := s.fallback.StoreSemanticFallback(ctx, content, sessionID, importance, metadata)
	if err != nil {
		return "", fmt.Errorf("semantic store failed on both paths (index: %v): %w", indexErr, err)
	}
	return memoryID, nil
}

func (s *SemanticStore) upsert(ctx context.Context, pointID, content, sessionID string, importance float64, metadata map[string]any) error {
	vector, err := s.embedder.Embed(ctx, content)
	if err != nil {
		return fmt.Errorf("failed to embed content: %w", err)
	}
	return s.index.Upsert(ctx, pointID, vector, map[string]any{
		"content":     content,
		"session_id":  sessionID,
		"importance":  importance,
		"memory_type": "semantic",
		"metadata":    metadata,
	})
}

// Retrieve embeds the query and searches the index.
func (s *SemanticStore) Retrieve(ctx context.Context, query string, limit int, minScore float64, memoryType, sessionID string) ([]Hit, error) {
	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	return s.index.Search(ctx, vector, limit, minScore, memoryType, sessionID)
}

func (s *SemanticStore) announce(ctx context.Context, fields map[string]string) {
	if s.publisher == nil {
		return
	}
	payload, err := json.Marshal(fields)
	if err != nil {
		return
	}
	if err := s.publisher.Publish(ctx, bus.MemoryStoredChannel(s.instance), payload); err != nil {
		log.Printf("[Memory] Failed to publish store confirmation: %v", err)
	}
}
