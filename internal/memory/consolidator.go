package memory

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bodhi-ai/bodhi/pkg/bus"
)

// DefaultConsolidationInterval is how often the sweep promotes important
// working memories to long-term storage.
const DefaultConsolidationInterval = 30 * time.Minute

// consolidationLockGrace pads the lock TTL past the sweep interval so a
// crashed holder's lock expires before the next scheduled run needs it.
const consolidationLockGrace = 5 * time.Minute

// promotionThreshold is the importance above which (strictly) a working
// memory is promoted.
const promotionThreshold = 0.7

// MemoryWriter persists one long-term memory. Both *EpisodicStore and
// *SemanticStore satisfy it.
type MemoryWriter interface {
	Store(ctx context.Context, content, sessionID string, importance float64, metadata map[string]any) (string, error)
}

// Consolidator sweeps working memory and promotes important entries:
// episodic first (failure keeps the entry for the next run), semantic second
// (failure is logged only), then the working entry is removed. A Redis lock
// keeps concurrent sweeps from double-promoting across replicas.
type Consolidator struct {
	rdb      *redis.Client
	instance string
	working  *WorkingStore
	episodic MemoryWriter
	semantic MemoryWriter // may be nil
	interval time.Duration
}

// NewConsolidator creates a consolidation sweeper.
func NewConsolidator(rdb *redis.Client, instance string, working *WorkingStore, episodic, semantic MemoryWriter, interval time.Duration) *Consolidator {
	if interval <= 0 {
		interval = DefaultConsolidationInterval
	}
	return &Consolidator{
		rdb:      rdb,
		instance: instance,
		working:  working,
		episodic: episodic,
		semantic: semantic,
		interval: interval,
	}
}

// Run sweeps every interval until the context is cancelled. The first sweep
// happens after one full interval, matching the store's TTL economics: fresh
// entries get time to accumulate importance updates before promotion.
func (c *Consolidator) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.RunOnce(ctx); err != nil {
				log.Printf("[Memory] Consolidation failed: %v", err)
			}
		}
	}
}

// RunOnce performs a single sweep, returning the number of promoted entries.
// When another sweep holds the lock this is a silent no-op returning 0.
func (c *Consolidator) RunOnce(ctx context.Context) (int, error) {
	lockKey := bus.ConsolidationLockKey(c.instance)
	acquired, err := c.rdb.SetNX(ctx, lockKey, "1", c.interval+consolidationLockGrace).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to acquire consolidation lock: %w", err)
	}
	if !acquired {
		log.Printf("[Memory] Consolidation already running elsewhere, skipping")
		return 0, nil
	}
	// Release with a fresh context: the sweep's own context may already be
	// cancelled, and a leaked lock blocks every sweep until the TTL expires.
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.rdb.Del(releaseCtx, lockKey).Err(); err != nil {
			log.Printf("[Memory] Failed to release consolidation lock (expires in %s): %v", c.interval+consolidationLockGrace, err)
		}
	}()

	started := time.Now()
	keys, err := c.working.Keys(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to enumerate working memory: %w", err)
	}

	consolidated := 0
	for _, key := range keys {
		if promoted := c.promote(ctx, key); promoted {
			consolidated++
		}
	}

	log.Printf("[Memory] Consolidation complete: %d promoted of %d scanned in %s", consolidated, len(keys), time.Since(started).Round(time.Millisecond))
	return consolidated, nil
}

// promote handles one working memory key. Returns true when the entry was
// promoted to episodic storage (semantic success not required).
func (c *Consolidator) promote(ctx context.Context, key string) bool {
	entry, ok, err := c.working.Get(ctx, key)
	if err != nil {
		log.Printf("[Memory] Failed to read %s during sweep: %v", key, err)
		return false
	}
	if !ok || entry.Importance <= promotionThreshold {
		return false
	}
	if c.episodic == nil {
		log.Printf("[Memory] No episodic store configured, %s stays in working memory", key)
		return false
	}

	// Episodic first. On failure the entry stays in working memory and the
	// next sweep retries.
	if _, err := c.episodic.Store(ctx, entry.Content, entry.SessionID, entry.Importance, entry.Metadata); err != nil {
		log.Printf("[Memory] Episodic promotion failed for %s (kept for next sweep): %v", key, err)
		return false
	}

	// Episodic is the source of truth; a semantic failure must not keep the
	// entry around, or the next sweep would insert a duplicate episodic row.
	if c.semantic != nil {
		if _, err := c.semantic.Store(ctx, entry.Content, entry.SessionID, entry.Importance, entry.Metadata); err != nil {
			log.Printf("[Memory] Semantic promotion failed for %s: %v", key, err)
		}
	}

	if err := c.working.Delete(ctx, key); err != nil {
		log.Printf("[Memory] Failed to delete %s after promotion, setting short expiry: %v", key, err)
		if err := c.working.ExpireSoon(ctx, key); err != nil {
			log.Printf("[Memory] Failed to expire %s: %v", key, err)
		}
	}
	return true
}
