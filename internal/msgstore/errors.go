package msgstore

import "errors"

var (
	// ErrNotFound means the payload record for a ref does not exist.
	ErrNotFound = errors.New("msgstore: message not found")

	// ErrIndexNotFound means the payload exists but the subscriber's index
	// entry does not. Another subscriber may have deleted its reference, or
	// the caller is reading an index it never wrote. Not a corruption.
	ErrIndexNotFound = errors.New("msgstore: index value not found")

	// ErrBucketNotReady means the registry slot for a ref has no registered
	// bucket yet. Buckets register only after their recovery scan completes.
	ErrBucketNotReady = errors.New("msgstore: bucket not ready")

	// ErrMountpointMismatch rejects a write whose message mountpoint differs
	// from the subscriber's mountpoint.
	ErrMountpointMismatch = errors.New("msgstore: message mountpoint does not match subscriber")

	// ErrStoreClosed is returned by operations after Close.
	ErrStoreClosed = errors.New("msgstore: store closed")

	// errRefNotFound reports a refcount decrement on an absent counter.
	errRefNotFound = errors.New("msgstore: refcount entry not found")
)
