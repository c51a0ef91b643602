package memory

import (
	"context"
	"fmt"
	"log"

	"github.com/qdrant/go-client/qdrant"
)

// Hit is one vector search result.
type Hit struct {
	ID         string         `json:"id"`
	Content    string         `json:"content"`
	Similarity float64        `json:"similarity"`
	SessionID  string         `json:"session_id"`
	Importance float64        `json:"importance"`
	Metadata   map[string]any `json:"metadata"`
}

// VectorIndex is the vector store surface the semantic layer needs.
// QdrantIndex implements it; tests use in-memory fakes.
type VectorIndex interface {
	Upsert(ctx context.Context, id string, vector []float32, payload map[string]any) error
	Search(ctx context.Context, vector []float32, limit int, minScore float64, memoryType, sessionID string) ([]Hit, error)
}

// QdrantIndex is the Qdrant-backed vector index.
type QdrantIndex struct {
	client     *qdrant.Client
	collection string
}

// NewQdrantIndex creates an index over an existing Qdrant client.
func NewQdrantIndex(client *qdrant.Client, collection string) *QdrantIndex {
	return &QdrantIndex{client: client, collection: collection}
}

// EnsureCollection creates the collection if it does not exist yet.
// Cosine distance over VectorDim dimensions.
func (q *QdrantIndex) EnsureCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection %s: %w", q.collection, err)
	}
	if exists {
		return nil
	}

	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     VectorDim,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection %s: %w", q.collection, err)
	}
	log.Printf("[Memory] Created Qdrant collection '%s'", q.collection)
	return nil
}

// Upsert writes one point.
func (q *QdrantIndex) Upsert(ctx context.Context, id string, vector []float32, payload map[string]any) error {
	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewID(id),
			Vectors: qdrant.NewVectors(vector...),
			Payload: qdrant.NewValueMap(payload),
		}},
	})
	if err != nil {
		return fmt.Errorf("failed to upsert point %s: %w", id, err)
	}
	return nil
}

// Search runs a similarity query with optional memory type and session
// filters and a score threshold.
func (q *QdrantIndex) Search(ctx context.Context, vector []float32, limit int, minScore float64, memoryType, sessionID string) ([]Hit, error) {
	var must []*qdrant.Condition
	if memoryType != "" && memoryType != "all" {
		must = append(must, qdrant.NewMatch("memory_type", memoryType))
	}
	if sessionID != "" {
		must = append(must, qdrant.NewMatch("session_id", sessionID))
	}
	var filter *qdrant.Filter
	if len(must) > 0 {
		filter = &qdrant.Filter{Must: must}
	}

	points, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(limit)),
		ScoreThreshold: qdrant.PtrOf(float32(minScore)),
		Filter:         filter,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query collection %s: %w", q.collection, err)
	}

	hits := make([]Hit, 0, len(points))
	for _, point := range points {
		hit := Hit{
			ID:         point.GetId().GetUuid(),
			Similarity: float64(point.GetScore()),
			Metadata:   map[string]any{},
		}
		payload := point.GetPayload()
		if v, ok := payload["content"]; ok {
			hit.Content = v.GetStringValue()
		}
		if v, ok := payload["session_id"]; ok {
			hit.SessionID = v.GetStringValue()
		}
		if v, ok := payload["importance"]; ok {
			hit.Importance = v.GetDoubleValue()
		} else {
			hit.Importance = 0.5
		}
		if v, ok := payload["metadata"]; ok {
			if m, ok := valueToAny(v).(map[string]any); ok {
				hit.Metadata = m
			}
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// valueToAny converts a qdrant payload value into plain Go data.
func valueToAny(v *qdrant.Value) any {
	switch kind := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	case *qdrant.Value_StructValue:
		m := make(map[string]any, len(kind.StructValue.GetFields()))
		for key, val := range kind.StructValue.GetFields() {
			m[key] = valueToAny(val)
		}
		return m
	case *qdrant.Value_ListValue:
		values := kind.ListValue.GetValues()
		list := make([]any, 0, len(values))
		for _, val := range values {
			list = append(list, valueToAny(val))
		}
		return list
	default:
		return nil
	}
}
