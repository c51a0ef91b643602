// Package bus provides the Pub/Sub primitive and wire envelopes shared by
// every Bodhi service.
//
// # Overview
//
// Bodhi is a constellation of companion services (gateway, memory manager,
// language center, emotion regulator) that coordinate exclusively through
// Redis Pub/Sub. The bus supports three narrow patterns and nothing more:
//
//   - exact-channel broadcast (emotion.state_changed, memory.stored)
//   - pattern subscription with a wildcard suffix (reply.*, heartbeat.*)
//   - publish to an exact channel (user.input, reply.{request_id})
//
// There is no ordering guarantee across channels; within one subscription
// connection, delivery is in receipt order.
//
// # Request/reply correlation
//
// Synchronous callers are serviced asynchronously: the gateway publishes a
// RequestEnvelope to user.input, a downstream worker publishes exactly one
// ReplyEnvelope to reply.{request_id}, and the gateway's dispatcher routes the
// reply back to the waiting caller by channel suffix. Duplicate and late
// replies are expected and harmless; first-writer-wins at the correlation slot
// is the only deduplication mechanism.
//
// # Multi-instance support
//
// All channels and keys are namespaced by instance name
// (bodhi:{instance_name}:...) so multiple Bodhi instances can coexist on a
// single Redis server with complete isolation, following the same scheme for
// every entity:
//
//	bodhi:{instance}:user.input
//	bodhi:{instance}:reply.{request_id}
//	bodhi:{instance}:heartbeat.{worker_name}
//	bodhi:{instance}:emotion.state_changed
//	bodhi:{instance}:memory.stored
//	bodhi:{instance}:working_memory:{uuid}
//	bodhi:{instance}:lock:consolidation
package bus
