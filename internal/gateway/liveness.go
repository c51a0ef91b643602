package gateway

import (
	"log"
	"sort"
	"sync"
	"time"
)

// DefaultStalenessThreshold is how long a worker may go without a heartbeat
// before it is evicted from the membership set.
const DefaultStalenessThreshold = 60 * time.Second

// LivenessTracker maintains the membership set of downstream workers from
// their heartbeat broadcasts. Eviction happens inline on every heartbeat
// receipt rather than on a separate timer: a stale worker disappears the next
// time any worker heartbeats.
type LivenessTracker struct {
	mu        sync.Mutex
	lastSeen  map[string]time.Time
	staleness time.Duration
	now       func() time.Time
}

// NewLivenessTracker creates a tracker with the given staleness threshold.
// A zero threshold falls back to DefaultStalenessThreshold.
func NewLivenessTracker(staleness time.Duration) *LivenessTracker {
	if staleness <= 0 {
		staleness = DefaultStalenessThreshold
	}
	return &LivenessTracker{
		lastSeen:  make(map[string]time.Time),
		staleness: staleness,
		now:       time.Now,
	}
}

// Heartbeat records a heartbeat for the worker and sweeps stale entries.
// First heartbeat moves a worker Unknown -> Active; later heartbeats refresh
// last-seen. There is no re-entry path other than a fresh heartbeat.
func (lt *LivenessTracker) Heartbeat(workerName string) {
	now := lt.now()

	lt.mu.Lock()
	defer lt.mu.Unlock()

	lt.lastSeen[workerName] = now

	for name, seen := range lt.lastSeen {
		if now.Sub(seen) > lt.staleness {
			delete(lt.lastSeen, name)
			log.Printf("[Gateway] Worker '%s' evicted: no heartbeat for %s", name, now.Sub(seen).Round(time.Second))
		}
	}
}

// ActiveWorkers returns the current membership set, sorted for deterministic
// observation. The result is a snapshot copy; callers never see the live map.
func (lt *LivenessTracker) ActiveWorkers() []string {
	lt.mu.Lock()
	workers := make([]string, 0, len(lt.lastSeen))
	for name := range lt.lastSeen {
		workers = append(workers, name)
	}
	lt.mu.Unlock()

	sort.Strings(workers)
	return workers
}
