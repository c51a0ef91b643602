package bus

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestClient creates a test client connected to a miniredis instance
func setupTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	mr := miniredis.NewMiniRedis()
	err := mr.Start()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := NewClient(&redis.Options{Addr: mr.Addr()}, "test-instance")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return client, mr
}

func TestNewClient(t *testing.T) {
	t.Run("creates client successfully", func(t *testing.T) {
		client, _ := setupTestClient(t)
		assert.NotNil(t, client)
		assert.Equal(t, "test-instance", client.InstanceName())
	})

	t.Run("rejects empty instance name", func(t *testing.T) {
		_, err := NewClient(&redis.Options{Addr: "localhost:6379"}, "")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "instance name cannot be empty")
	})
}

func TestPing(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	err := client.Ping(ctx)
	assert.NoError(t, err)
}

func TestSubscribeExactChannel(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	sub, err := client.Subscribe(ctx, []string{EmotionStateChannel("test-instance")}, nil)
	require.NoError(t, err)
	defer sub.Close()

	err = client.Publish(ctx, EmotionStateChannel("test-instance"), []byte(`{"valence":0.5}`))
	require.NoError(t, err)

	select {
	case msg := <-sub.Messages():
		assert.Equal(t, EmotionStateChannel("test-instance"), msg.Channel)
		assert.Equal(t, `{"valence":0.5}`, msg.Payload)
		assert.Empty(t, msg.Pattern)
	case <-time.After(1 * time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestSubscribePattern(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	sub, err := client.Subscribe(ctx, nil, []string{ReplyPattern("test-instance")})
	require.NoError(t, err)
	defer sub.Close()

	err = client.Publish(ctx, ReplyChannel("test-instance", "abc123"), []byte(`{"response":"hi"}`))
	require.NoError(t, err)

	select {
	case msg := <-sub.Messages():
		assert.Equal(t, ReplyChannel("test-instance", "abc123"), msg.Channel)
		assert.Equal(t, ReplyPattern("test-instance"), msg.Pattern)
	case <-time.After(1 * time.Second):
		t.Fatal("timeout waiting for pattern message")
	}
}

func TestSubscribeMixed(t *testing.T) {
	// One connection carrying both an exact channel and a wildcard pattern
	// must demultiplex both message kinds.
	client, _ := setupTestClient(t)
	ctx := context.Background()

	sub, err := client.Subscribe(ctx,
		[]string{MemoryStoredChannel("test-instance")},
		[]string{HeartbeatPattern("test-instance")})
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, client.Publish(ctx, MemoryStoredChannel("test-instance"), []byte(`{}`)))
	require.NoError(t, client.Publish(ctx, HeartbeatChannel("test-instance", "language-center"), []byte(``)))

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case msg := <-sub.Messages():
			seen[msg.Channel] = true
		case <-time.After(1 * time.Second):
			t.Fatal("timeout waiting for messages")
		}
	}
	assert.True(t, seen[MemoryStoredChannel("test-instance")])
	assert.True(t, seen[HeartbeatChannel("test-instance", "language-center")])
}

func TestSubscribeRequiresTopics(t *testing.T) {
	client, _ := setupTestClient(t)

	_, err := client.Subscribe(context.Background(), nil, nil)
	assert.Error(t, err)
}

func TestSubscriptionClose(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	sub, err := client.Subscribe(ctx, []string{MemoryStoredChannel("test-instance")}, nil)
	require.NoError(t, err)

	// Close is idempotent
	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())

	// Messages channel drains and closes
	select {
	case _, ok := <-sub.Messages():
		assert.False(t, ok)
	case <-time.After(1 * time.Second):
		t.Fatal("messages channel not closed after Close")
	}
}

func TestSubscriptionContextCancel(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx, cancel := context.WithCancel(context.Background())

	sub, err := client.Subscribe(ctx, []string{MemoryStoredChannel("test-instance")}, nil)
	require.NoError(t, err)
	defer sub.Close()

	cancel()

	select {
	case _, ok := <-sub.Messages():
		assert.False(t, ok)
	case <-time.After(1 * time.Second):
		t.Fatal("messages channel not closed after context cancel")
	}
}
