package constants

import "time"

// Advisory lock identifiers. Values are stable across releases because other
// instances of the service must agree on them.
const (
	MigrationLock = iota + 7100
	ProcessLock
	AutoResolveLock
	StuckRecoveryLock
)

var Locks = []int{
	MigrationLock,
	ProcessLock,
	AutoResolveLock,
	StuckRecoveryLock,
}

const (
	DefaultMaxAttempts        = 3
	DefaultBatchSize          = 10
	DefaultProcessingBudget   = 60 * time.Second
	DefaultBackoffCap         = 24 * time.Hour
	DefaultAutoResolveWindow  = 24 * time.Hour
	DefaultStuckThreshold     = 10 * time.Minute
	DefaultMaxStuckRecoveries = 3
	DefaultErrorRateWindow    = 24 * time.Hour
	DefaultPageSize           = 15

	SystemActor = "system"
)
