package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeIndex is an in-memory VectorIndex.
type fakeIndex struct {
	points map[string]map[string]any
	err    error
	hits   []Hit
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{points: map[string]map[string]any{}}
}

func (f *fakeIndex) Upsert(ctx context.Context, id string, vector []float32, payload map[string]any) error {
	if f.err != nil {
		return f.err
	}
	f.points[id] = payload
	return nil
}

func (f *fakeIndex) Search(ctx context.Context, vector []float32, limit int, minScore float64, memoryType, sessionID string) ([]Hit, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.hits, nil
}

// fakeFallback records semantic fallback inserts.
type fakeFallback struct {
	stored []string
	err    error
}

func (f *fakeFallback) StoreSemanticFallback(ctx context.Context, content, sessionID string, importance float64, metadata map[string]any) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.stored = append(f.stored, content)
	return "pg-id", nil
}

func TestSemanticStoreWritesIndex(t *testing.T) {
	index := newFakeIndex()
	fallback := &fakeFallback{}
	store := NewSemanticStore(LocalEmbedder{}, index, fallback, testInstance, nil)

	id, err := store.Store(context.Background(), "the sky is blue", "alice", 0.8, nil)
	require.NoError(t, err)
	require.Len(t, index.points, 1)

	payload := index.points[id]
	assert.Equal(t, "the sky is blue", payload["content"])
	assert.Equal(t, "alice", payload["session_id"])
	assert.Equal(t, 0.8, payload["importance"])
	assert.Equal(t, "semantic", payload["memory_type"])
	assert.Empty(t, fallback.stored, "fallback untouched when the index works")
}

func TestSemanticStoreFallsBackToPostgres(t *testing.T) {
	index := newFakeIndex()
	index.err = errors.New("qdrant unreachable")
	fallback := &fakeFallback{}
	store := NewSemanticStore(LocalEmbedder{}, index, fallback, testInstance, nil)

	id, err := store.Store(context.Background(), "remember this", "alice", 0.9, nil)
	require.NoError(t, err)
	assert.Equal(t, "pg-id", id)
	assert.Equal(t, []string{"remember this"}, fallback.stored)
}

func TestSemanticStoreDoubleFailure(t *testing.T) {
	index := newFakeIndex()
	index.err = errors.New("qdrant unreachable")
	fallback := &fakeFallback{err: errors.New("postgres down")}
	store := NewSemanticStore(LocalEmbedder{}, index, fallback, testInstance, nil)

	_, err := store.Store(context.Background(), "lost", "alice", 0.9, nil)
	assert.Error(t, err)
}

func TestSemanticStoreRetrieve(t *testing.T) {
	index := newFakeIndex()
	index.hits = []Hit{{ID: "h1", Content: "found", Similarity: 0.92}}
	store := NewSemanticStore(LocalEmbedder{}, index, nil, testInstance, nil)

	hits, err := store.Retrieve(context.Background(), "find me", 3, 0.4, "", "alice")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "found", hits[0].Content)
}

func TestLocalEmbedder(t *testing.T) {
	embedder := LocalEmbedder{}
	ctx := context.Background()

	a, err := embedder.Embed(ctx, "I like green tea")
	require.NoError(t, err)
	require.Len(t, a, VectorDim)

	t.Run("deterministic", func(t *testing.T) {
		b, err := embedder.Embed(ctx, "I like green tea")
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})

	t.Run("normalized", func(t *testing.T) {
		var norm float64
		for _, v := range a {
			norm += float64(v) * float64(v)
		}
		assert.InDelta(t, 1.0, norm, 1e-5)
	})

	t.Run("overlapping texts are more similar than disjoint ones", func(t *testing.T) {
		similar, err := embedder.Embed(ctx, "I like black tea")
		require.NoError(t, err)
		unrelated, err := embedder.Embed(ctx, "quarterly revenue projections")
		require.NoError(t, err)

		assert.Greater(t, cosine(a, similar), cosine(a, unrelated))
	})

	t.Run("empty text embeds to the zero vector", func(t *testing.T) {
		zero, err := embedder.Embed(ctx, "")
		require.NoError(t, err)
		for _, v := range zero {
			assert.Zero(t, v)
		}
	})
}

func TestPooledEmbedder(t *testing.T) {
	pooled := NewPooledEmbedder(LocalEmbedder{}, 2)
	ctx := context.Background()

	vec, err := pooled.Embed(ctx, "hello")
	require.NoError(t, err)
	assert.Len(t, vec, VectorDim)

	t.Run("expired context is refused", func(t *testing.T) {
		// Occupy the only slot so the next call has to wait.
		blocked := NewPooledEmbedder(blockingEmbedder{}, 1)
		occupyCtx, releaseSlot := context.WithCancel(ctx)
		defer releaseSlot()
		go blocked.Embed(occupyCtx, "occupies the only slot")

		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		_, err := blocked.Embed(cancelled, "never runs")
		assert.ErrorIs(t, err, context.Canceled)
	})
}

type blockingEmbedder struct{}

func (blockingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func cosine(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}
