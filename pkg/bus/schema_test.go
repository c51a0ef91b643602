package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChannelNames(t *testing.T) {
	assert.Equal(t, "bodhi:default:user.input", UserInputChannel("default"))
	assert.Equal(t, "bodhi:default:reply.abc123", ReplyChannel("default", "abc123"))
	assert.Equal(t, "bodhi:default:reply.*", ReplyPattern("default"))
	assert.Equal(t, "bodhi:default:heartbeat.language-center", HeartbeatChannel("default", "language-center"))
	assert.Equal(t, "bodhi:default:heartbeat.*", HeartbeatPattern("default"))
	assert.Equal(t, "bodhi:default:emotion.state_changed", EmotionStateChannel("default"))
	assert.Equal(t, "bodhi:default:memory.stored", MemoryStoredChannel("default"))
}

func TestKeyNames(t *testing.T) {
	assert.Equal(t, "bodhi:default:working_memory:id-1", WorkingMemoryKey("default", "id-1"))
	assert.Equal(t, "bodhi:default:working_memory:*", WorkingMemoryPattern("default"))
	assert.Equal(t, "bodhi:default:lock:consolidation", ConsolidationLockKey("default"))
}

func TestRequestIDFromReplyChannel(t *testing.T) {
	tests := []struct {
		name     string
		channel  string
		wantID   string
		wantOK   bool
	}{
		{"valid reply channel", "bodhi:default:reply.abc123", "abc123", true},
		{"uuid request id", "bodhi:default:reply.550e8400-e29b-41d4-a716-446655440000", "550e8400-e29b-41d4-a716-446655440000", true},
		{"empty suffix", "bodhi:default:reply.", "", false},
		{"wrong instance", "bodhi:other:reply.abc123", "", false},
		{"unrelated channel", "bodhi:default:user.input", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := RequestIDFromReplyChannel("default", tt.channel)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantID, id)
		})
	}
}

func TestWorkerFromHeartbeatChannel(t *testing.T) {
	worker, ok := WorkerFromHeartbeatChannel("default", "bodhi:default:heartbeat.emotion-regulator")
	assert.True(t, ok)
	assert.Equal(t, "emotion-regulator", worker)

	_, ok = WorkerFromHeartbeatChannel("default", "bodhi:default:heartbeat.")
	assert.False(t, ok)

	_, ok = WorkerFromHeartbeatChannel("default", "bodhi:default:reply.x")
	assert.False(t, ok)
}
