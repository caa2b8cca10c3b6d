package lock

import "context"

// DistributedLockManager grants process-wide exclusive locks identified by an
// integer id. TryAcquire never blocks: false means another holder has the lock
// and the caller should skip its work.
type DistributedLockManager interface {
	TryAcquire(ctx context.Context, lockID int) (bool, error)
	Release(ctx context.Context, lockID int) error
}
