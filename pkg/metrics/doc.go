// Package metrics provides Prometheus collectors for the message store's
// storage backend. StoreMetrics satisfies the backend's observation hook
// and exposes write/read/commit latency histograms and byte counters under
// the vernemq_msgstore namespace.
package metrics
