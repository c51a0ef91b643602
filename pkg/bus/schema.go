package bus

import (
	"fmt"
	"strings"
)

// Redis channel and key pattern helpers
//
// All Pub/Sub channels and Redis keys are namespaced by instance name so that
// multiple Bodhi instances can safely coexist on a single Redis server.
//
// Channel pattern: bodhi:{instance_name}:{topic}
// Key pattern:     bodhi:{instance_name}:{entity}:{uuid}

// UserInputChannel returns the ingress channel every user request is published to.
// Pattern: bodhi:{instance_name}:user.input
func UserInputChannel(instanceName string) string {
	return fmt.Sprintf("bodhi:%s:user.input", instanceName)
}

// ReplyChannel returns the per-request reply channel.
// Pattern: bodhi:{instance_name}:reply.{request_id}
func ReplyChannel(instanceName, requestID string) string {
	return fmt.Sprintf("bodhi:%s:reply.%s", instanceName, requestID)
}

// ReplyPattern returns the wildcard pattern matching every reply channel.
// Pattern: bodhi:{instance_name}:reply.*
func ReplyPattern(instanceName string) string {
	return fmt.Sprintf("bodhi:%s:reply.*", instanceName)
}

// RequestIDFromReplyChannel extracts the request id from a reply channel name.
// Returns ("", false) if the channel is not a reply channel for this instance.
func RequestIDFromReplyChannel(instanceName, channel string) (string, bool) {
	prefix := fmt.Sprintf("bodhi:%s:reply.", instanceName)
	if !strings.HasPrefix(channel, prefix) {
		return "", false
	}
	id := channel[len(prefix):]
	if id == "" {
		return "", false
	}
	return id, true
}

// HeartbeatChannel returns the per-worker heartbeat channel.
// Pattern: bodhi:{instance_name}:heartbeat.{worker_name}
func HeartbeatChannel(instanceName, workerName string) string {
	return fmt.Sprintf("bodhi:%s:heartbeat.%s", instanceName, workerName)
}

// HeartbeatPattern returns the wildcard pattern matching every heartbeat channel.
// Pattern: bodhi:{instance_name}:heartbeat.*
func HeartbeatPattern(instanceName string) string {
	return fmt.Sprintf("bodhi:%s:heartbeat.*", instanceName)
}

// WorkerFromHeartbeatChannel extracts the worker name from a heartbeat channel.
// Returns ("", false) if the channel is not a heartbeat channel for this instance.
func WorkerFromHeartbeatChannel(instanceName, channel string) (string, bool) {
	prefix := fmt.Sprintf("bodhi:%s:heartbeat.", instanceName)
	if !strings.HasPrefix(channel, prefix) {
		return "", false
	}
	name := channel[len(prefix):]
	if name == "" {
		return "", false
	}
	return name, true
}

// EmotionStateChannel returns the broadcast channel for affect state changes.
// Pattern: bodhi:{instance_name}:emotion.state_changed
func EmotionStateChannel(instanceName string) string {
	return fmt.Sprintf("bodhi:%s:emotion.state_changed", instanceName)
}

// MemoryStoredChannel returns the broadcast channel for memory store confirmations.
// Pattern: bodhi:{instance_name}:memory.stored
func MemoryStoredChannel(instanceName string) string {
	return fmt.Sprintf("bodhi:%s:memory.stored", instanceName)
}

// WorkingMemoryKey returns the Redis key for a working memory entry.
// Pattern: bodhi:{instance_name}:working_memory:{uuid}
func WorkingMemoryKey(instanceName, entryID string) string {
	return fmt.Sprintf("bodhi:%s:working_memory:%s", instanceName, entryID)
}

// WorkingMemoryPattern returns the SCAN match pattern for working memory keys.
func WorkingMemoryPattern(instanceName string) string {
	return fmt.Sprintf("bodhi:%s:working_memory:*", instanceName)
}

// ConsolidationLockKey returns the cluster-wide consolidation lock key.
// Pattern: bodhi:{instance_name}:lock:consolidation
func ConsolidationLockKey(instanceName string) string {
	return fmt.Sprintf("bodhi:%s:lock:consolidation", instanceName)
}
