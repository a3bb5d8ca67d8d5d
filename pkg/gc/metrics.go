package gc

import "time"

// Metrics receives reclamation outcomes. Implementations must be safe for
// concurrent use. A nil Metrics in Options disables reporting.
type Metrics interface {
	// PassCompleted is called once per Reclaim run with the aggregate
	// stats and the wall-clock duration of the run.
	PassCompleted(stats Stats, duration time.Duration)
}
