package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLivenessFirstHeartbeat(t *testing.T) {
	lt := NewLivenessTracker(60 * time.Second)

	assert.Empty(t, lt.ActiveWorkers())

	lt.Heartbeat("language-center")
	assert.Equal(t, []string{"language-center"}, lt.ActiveWorkers())
}

func TestLivenessSortedMembership(t *testing.T) {
	lt := NewLivenessTracker(60 * time.Second)

	lt.Heartbeat("memory-manager")
	lt.Heartbeat("emotion-regulator")
	lt.Heartbeat("language-center")

	assert.Equal(t, []string{"emotion-regulator", "language-center", "memory-manager"}, lt.ActiveWorkers())
}

func TestLivenessEviction(t *testing.T) {
	lt := NewLivenessTracker(60 * time.Second)
	now := time.Now()
	lt.now = func() time.Time { return now }

	lt.Heartbeat("language-center")

	// 61 seconds later another worker heartbeats; the stale one is swept.
	now = now.Add(61 * time.Second)
	lt.Heartbeat("emotion-regulator")

	assert.Equal(t, []string{"emotion-regulator"}, lt.ActiveWorkers())
}

func TestLivenessRegularHeartbeatsSurvive(t *testing.T) {
	// A worker heartbeating every 30s stays in the membership set indefinitely.
	lt := NewLivenessTracker(60 * time.Second)
	now := time.Now()
	lt.now = func() time.Time { return now }

	for i := 0; i < 10; i++ {
		lt.Heartbeat("language-center")
		now = now.Add(30 * time.Second)
	}

	assert.Equal(t, []string{"language-center"}, lt.ActiveWorkers())
}

func TestLivenessReentryAfterEviction(t *testing.T) {
	lt := NewLivenessTracker(60 * time.Second)
	now := time.Now()
	lt.now = func() time.Time { return now }

	lt.Heartbeat("language-center")
	now = now.Add(2 * time.Minute)
	lt.Heartbeat("emotion-regulator")
	assert.NotContains(t, lt.ActiveWorkers(), "language-center")

	// Fresh heartbeat re-admits the worker.
	lt.Heartbeat("language-center")
	assert.Contains(t, lt.ActiveWorkers(), "language-center")
}
