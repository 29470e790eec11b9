// Package runtime wires config, logging, metrics, and the message store
// into a single-node instance. It exposes Open/Close, a health check over
// bucket states, and accessors used by the server command.
//
// Example:
//
//	cfg := config.Default()
//	rt, _ := runtime.Open(ctx, runtime.Options{Config: cfg})
//	defer rt.Close()
//	_ = rt.CheckHealth(ctx)
//	refs, _ := rt.Store().Find(sub, msgstore.FindQueueInit)
package runtime
