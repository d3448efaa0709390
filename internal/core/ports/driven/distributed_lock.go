package driven

import (
	"context"
	"time"
)

// DistributedLock serialises ingestion runs for the same origin across
// processes.
type DistributedLock interface {
	// Acquire takes a named lock for ttl. Returns false if another holder has it.
	Acquire(ctx context.Context, name string, ttl time.Duration) (acquired bool, err error)

	// Release drops the lock if this instance still holds it.
	Release(ctx context.Context, name string) error

	// Ping checks if the lock backend is healthy.
	Ping(ctx context.Context) error
}
