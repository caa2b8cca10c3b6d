package processor

import (
	"time"

	"github.com/RezaEskandarii/workflowq/internal/constants"
)

const backoffBase = 5

// ExponentialBackoff returns 5^attempts minutes, capped at max (24h when max is
// not positive).
func ExponentialBackoff(attempts int, max time.Duration) time.Duration {
	if max <= 0 {
		max = constants.DefaultBackoffCap
	}
	delay := time.Minute
	for i := 0; i < attempts; i++ {
		if delay > max/backoffBase {
			return max
		}
		delay *= backoffBase
	}
	if delay > max {
		return max
	}
	return delay
}
