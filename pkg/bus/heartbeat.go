package bus

import (
	"context"
	"log"
	"time"
)

// DefaultHeartbeatInterval is how often workers announce liveness. It must be
// comfortably below the gateway's staleness threshold (60s) so a single
// dropped beat does not evict the worker.
const DefaultHeartbeatInterval = 30 * time.Second

// RunHeartbeat publishes an empty payload to the worker's heartbeat channel
// every interval until the context is cancelled. The first beat is sent
// immediately so the gateway registers the worker without waiting a full
// interval. Publish failures are logged and retried on the next tick.
func RunHeartbeat(ctx context.Context, c *Client, workerName string, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	channel := HeartbeatChannel(c.instanceName, workerName)

	beat := func() {
		if err := c.Publish(ctx, channel, nil); err != nil && ctx.Err() == nil {
			log.Printf("[Bus] Heartbeat publish failed for %s: %v", workerName, err)
		}
	}

	beat()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			beat()
		}
	}
}
