package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bodhi-ai/bodhi/pkg/bus"
)

// fakeWriter records stores and can be told to fail.
type fakeWriter struct {
	mu     sync.Mutex
	stored []Entry
	err    error
}

func (f *fakeWriter) Store(ctx context.Context, content, sessionID string, importance float64, metadata map[string]any) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.stored = append(f.stored, Entry{Content: content, SessionID: sessionID, Importance: importance, Metadata: metadata})
	return "fake-id", nil
}

func (f *fakeWriter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.stored)
}

func setupConsolidator(t *testing.T, episodic, semantic MemoryWriter) (*Consolidator, *WorkingStore, *miniredis.Miniredis) {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	working := NewWorkingStore(rdb, testInstance, nil)
	return NewConsolidator(rdb, testInstance, working, episodic, semantic, time.Minute), working, mr
}

func TestConsolidatorPromotesAboveThreshold(t *testing.T) {
	episodic := &fakeWriter{}
	semantic := &fakeWriter{}
	c, working, _ := setupConsolidator(t, episodic, semantic)
	ctx := context.Background()

	promoted, err := working.Store(ctx, Entry{Content: "important", Importance: 0.71, SessionID: "alice"})
	require.NoError(t, err)
	kept, err := working.Store(ctx, Entry{Content: "borderline", Importance: 0.70})
	require.NoError(t, err)

	consolidated, err := c.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, consolidated)

	// Strictly-above entry reached both long-term stores and is gone from
	// working memory.
	require.Equal(t, 1, episodic.count())
	assert.Equal(t, "important", episodic.stored[0].Content)
	assert.Equal(t, 0.71, episodic.stored[0].Importance)
	assert.Equal(t, 1, semantic.count())
	_, ok, err := working.Get(ctx, promoted)
	require.NoError(t, err)
	assert.False(t, ok)

	// The exactly-at-threshold entry is untouched.
	_, ok, err = working.Get(ctx, kept)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestConsolidatorEpisodicFailureKeepsEntry(t *testing.T) {
	episodic := &fakeWriter{err: errors.New("postgres down")}
	semantic := &fakeWriter{}
	c, working, _ := setupConsolidator(t, episodic, semantic)
	ctx := context.Background()

	key, err := working.Store(ctx, Entry{Content: "must survive", Importance: 0.9})
	require.NoError(t, err)

	consolidated, err := c.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, consolidated)

	// Entry stays for the next sweep; semantic was never attempted.
	_, ok, err := working.Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 0, semantic.count())

	// Backend recovers: the very next sweep promotes it.
	episodic.err = nil
	consolidated, err = c.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, consolidated)
	_, ok, err = working.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConsolidatorSemanticFailureStillRemovesEntry(t *testing.T) {
	episodic := &fakeWriter{}
	semantic := &fakeWriter{err: errors.New("qdrant down")}
	c, working, _ := setupConsolidator(t, episodic, semantic)
	ctx := context.Background()

	key, err := working.Store(ctx, Entry{Content: "promote me", Importance: 0.8})
	require.NoError(t, err)

	consolidated, err := c.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, consolidated)

	// Episodic is the source of truth; the entry must not linger or it would
	// be promoted again and duplicate the episodic row.
	assert.Equal(t, 1, episodic.count())
	_, ok, err := working.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConsolidatorWithoutSemanticStore(t *testing.T) {
	episodic := &fakeWriter{}
	c, working, _ := setupConsolidator(t, episodic, nil)
	ctx := context.Background()

	_, err := working.Store(ctx, Entry{Content: "episodic only", Importance: 0.9})
	require.NoError(t, err)

	consolidated, err := c.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, consolidated)
	assert.Equal(t, 1, episodic.count())
}

func TestConsolidatorLock(t *testing.T) {
	t.Run("held lock skips the sweep", func(t *testing.T) {
		episodic := &fakeWriter{}
		c, working, mr := setupConsolidator(t, episodic, nil)
		ctx := context.Background()

		_, err := working.Store(ctx, Entry{Content: "blocked", Importance: 0.9})
		require.NoError(t, err)
		mr.Set(bus.ConsolidationLockKey(testInstance), "1")

		consolidated, err := c.RunOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, consolidated)
		assert.Equal(t, 0, episodic.count())
	})

	t.Run("lock released after sweep", func(t *testing.T) {
		c, _, mr := setupConsolidator(t, &fakeWriter{}, nil)

		_, err := c.RunOnce(context.Background())
		require.NoError(t, err)
		assert.False(t, mr.Exists(bus.ConsolidationLockKey(testInstance)))
	})

	t.Run("concurrent sweeps promote exactly once", func(t *testing.T) {
		episodic := &fakeWriter{}
		c, working, _ := setupConsolidator(t, episodic, nil)
		ctx := context.Background()

		_, err := working.Store(ctx, Entry{Content: "once", Importance: 0.9})
		require.NoError(t, err)

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = c.RunOnce(ctx)
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, episodic.count(), "lock must serialize promotion")
	})
}
