package memory

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bodhi-ai/bodhi/pkg/bus"
)

const testInstance = "test-instance"

func setupWorkingStore(t *testing.T) (*WorkingStore, *miniredis.Miniredis, *redis.Client) {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	return NewWorkingStore(rdb, testInstance, nil), mr, rdb
}

func TestWorkingStoreRoundTrip(t *testing.T) {
	store, mr, _ := setupWorkingStore(t)
	ctx := context.Background()

	key, err := store.Store(ctx, Entry{Content: "likes green tea", Importance: 0.8, SessionID: "alice"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "bodhi:test-instance:working_memory:"))

	entry, ok, err := store.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "likes green tea", entry.Content)
	assert.Equal(t, "working", entry.MemoryType)
	assert.Equal(t, 0.8, entry.Importance)
	assert.Equal(t, "alice", entry.SessionID)

	// Entries carry the working memory TTL.
	assert.InDelta(t, WorkingMemoryTTL.Seconds(), mr.TTL(key).Seconds(), 1)
}

func TestWorkingStoreGetMissing(t *testing.T) {
	store, _, _ := setupWorkingStore(t)

	_, ok, err := store.Get(context.Background(), bus.WorkingMemoryKey(testInstance, "nope"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWorkingStoreGetUnparsable(t *testing.T) {
	store, mr, _ := setupWorkingStore(t)
	key := bus.WorkingMemoryKey(testInstance, "bad")
	mr.Set(key, "not-json")

	_, ok, err := store.Get(context.Background(), key)
	require.NoError(t, err)
	assert.False(t, ok, "unparsable entries are skipped, not fatal")
}

func TestWorkingStoreKeys(t *testing.T) {
	store, mr, _ := setupWorkingStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := store.Store(ctx, Entry{Content: "entry", Importance: 0.5})
		require.NoError(t, err)
	}
	// Keys from other instances and entities must not appear.
	mr.Set("bodhi:other-instance:working_memory:x", "{}")
	mr.Set("bodhi:test-instance:lock:consolidation", "1")

	keys, err := store.Keys(ctx)
	require.NoError(t, err)
	assert.Len(t, keys, 5)
	for _, key := range keys {
		assert.True(t, strings.HasPrefix(key, "bodhi:test-instance:working_memory:"))
	}
}

func TestWorkingStoreDeleteAndExpire(t *testing.T) {
	store, mr, _ := setupWorkingStore(t)
	ctx := context.Background()

	key, err := store.Store(ctx, Entry{Content: "gone soon", Importance: 0.5})
	require.NoError(t, err)

	require.NoError(t, store.ExpireSoon(ctx, key))
	assert.InDelta(t, (5 * time.Minute).Seconds(), mr.TTL(key).Seconds(), 1)

	require.NoError(t, store.Delete(ctx, key))
	_, ok, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWorkingStoreAnnouncesStore(t *testing.T) {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	busClient, err := bus.NewClient(&redis.Options{Addr: mr.Addr()}, testInstance)
	require.NoError(t, err)
	t.Cleanup(func() { busClient.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	sub, err := busClient.Subscribe(ctx, []string{bus.MemoryStoredChannel(testInstance)}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { sub.Close() })
	time.Sleep(50 * time.Millisecond)

	store := NewWorkingStore(rdb, testInstance, busClient)
	key, err := store.Store(ctx, Entry{Content: "announced", Importance: 0.5})
	require.NoError(t, err)

	select {
	case msg := <-sub.Messages():
		var confirmation map[string]string
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &confirmation))
		assert.Equal(t, key, confirmation["key"])
		assert.Equal(t, "working", confirmation["memory_type"])
	case <-time.After(2 * time.Second):
		t.Fatal("no store confirmation published")
	}
}
