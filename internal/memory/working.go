package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/bodhi-ai/bodhi/pkg/bus"
)

// WorkingMemoryTTL is the lifetime of an unconsolidated working memory entry.
const WorkingMemoryTTL = time.Hour

// Scan bounds for enumerating working memory keys. SCAN is non-blocking but a
// pathological keyspace (or a Redis stall) must not hold the consolidation
// lock indefinitely, so the sweep is bounded both by iteration count and wall
// clock and proceeds with whatever it collected.
const (
	scanBatchSize     = 1000
	maxScanIterations = 500
	scanWallClock     = 60 * time.Second
)

// Publisher is the bus surface the stores need to announce writes.
// *bus.Client satisfies it.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// Entry is one working memory record as stored in Redis.
type Entry struct {
	Content    string         `json:"content"`
	MemoryType string         `json:"memory_type"`
	Importance float64        `json:"importance"`
	SessionID  string         `json:"session_id"`
	Metadata   map[string]any `json:"metadata"`
}

// WorkingStore holds short-lived memories in Redis under TTL'd keys.
// Entries either get promoted by the consolidation sweep or silently expire.
type WorkingStore struct {
	rdb       *redis.Client
	instance  string
	publisher Publisher // may be nil; store confirmations are then skipped
	ttl       time.Duration
}

// NewWorkingStore creates a working memory store for the given instance.
func NewWorkingStore(rdb *redis.Client, instance string, publisher Publisher) *WorkingStore {
	return &WorkingStore{
		rdb:       rdb,
		instance:  instance,
		publisher: publisher,
		ttl:       WorkingMemoryTTL,
	}
}

// Store writes an entry under a fresh key with the working memory TTL and
// announces it on memory.stored. Returns the full Redis key as the entry id.
func (s *WorkingStore) Store(ctx context.Context, entry Entry) (string, error) {
	entry.MemoryType = "working"
	if entry.Metadata == nil {
		entry.Metadata = map[string]any{}
	}

	payload, err := json.Marshal(&entry)
	if err != nil {
		return "", fmt.Errorf("failed to marshal working memory entry: %w", err)
	}

	key := bus.WorkingMemoryKey(s.instance, uuid.New().String())
	if err := s.rdb.SetEx(ctx, key, payload, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("failed to store working memory: %w", err)
	}

	s.announce(ctx, map[string]string{"key": key, "memory_type": "working"})
	return key, nil
}

// Get reads one entry by its full key. The second return is false when the
// key is missing or holds an unparsable payload.
func (s *WorkingStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	raw, err := s.rdb.Get(ctx, key).Result()
	if bus.IsNotFound(err) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("failed to read working memory %s: %w", key, err)
	}

	var entry Entry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		log.Printf("[Memory] Skipping unparsable working memory %s: %v", key, err)
		return Entry{}, false, nil
	}
	return entry, true, nil
}

// Delete removes one entry.
func (s *WorkingStore) Delete(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete working memory %s: %w", key, err)
	}
	return nil
}

// ExpireSoon shortens an entry's TTL to five minutes. Used when a delete
// fails mid-sweep: the key then expires well before the next sweep would
// promote it again.
func (s *WorkingStore) ExpireSoon(ctx context.Context, key string) error {
	return s.rdb.Expire(ctx, key, 5*time.Minute).Err()
}

// Keys enumerates all working memory keys via bounded SCAN. The result is
// deduplicated: SCAN may return a key twice when the keyspace changes
// mid-scan. On hitting a bound, the keys collected so far are returned.
func (s *WorkingStore) Keys(ctx context.Context) ([]string, error) {
	scanCtx, cancel := context.WithTimeout(ctx, scanWallClock)
	defer cancel()

	seen := make(map[string]struct{})
	var cursor uint64
	for iteration := 0; ; iteration++ {
		if iteration >= maxScanIterations {
			log.Printf("[Memory] Working memory scan truncated after %d iterations (%d keys); unscanned entries wait for the next sweep", iteration, len(seen))
			break
		}

		batch, next, err := s.rdb.Scan(scanCtx, cursor, bus.WorkingMemoryPattern(s.instance), scanBatchSize).Result()
		if err != nil {
			if scanCtx.Err() != nil {
				log.Printf("[Memory] Working memory scan timed out with %d keys collected", len(seen))
				break
			}
			return nil, fmt.Errorf("failed to scan working memory keys: %w", err)
		}
		for _, key := range batch {
			seen[key] = struct{}{}
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	keys := make([]string, 0, len(seen))
	for key := range seen {
		keys = append(keys, key)
	}
	return keys, nil
}

// announce publishes a store confirmation, best-effort.
func (s *WorkingStore) announce(ctx context.Context, fields map[string]string) {
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
