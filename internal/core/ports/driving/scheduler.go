package driving

import "context"

// Scheduler runs maintenance jobs such as the stale-task sweep and the
// periodic local directory scan.
type Scheduler interface {
	// Start begins running scheduled jobs.
	// Blocks until context is cancelled or Stop is called.
	Start(ctx context.Context) error

	// Stop gracefully stops all running jobs.
	Stop() error
}
