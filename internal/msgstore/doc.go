// Package msgstore implements the persistent offline message store: durable
// retention of in-flight publications for disconnected or slow subscribers,
// with payload deduplication by reference counting.
//
// # Architecture
//
// The store is a set of N independent buckets. Each bucket owns one embedded
// ordered key-value database, one in-memory refcount table, and a worker
// goroutine that serializes all requests for that bucket. A message reference
// routes to exactly one bucket by hash, so all fan-out index entries for a
// payload land next to the payload itself.
//
// M staging tables, shared across buckets and selected by subscriber hash,
// act as the rendezvous for cross-bucket subscriber scans: buckets deposit
// (scan-id, subscriber, timestamp, ref) entries, and the find coordinator
// harvests them in timestamp order. The reserved init scan-id carries the
// entries discovered during startup recovery.
//
// # Keyspace
//
// On-disk keys are order-preserving byte encodings. "idx/" and "msg/" tagged
// keys sort disjointly; within "idx/" keys sort by (mountpoint, client_id,
// msg_ref) so one forward iterator drains a subscriber's backlog.
package msgstore
