// Package condition defines the inhibiting-condition contract and the runner
// harness that executes checks on their configured periods.
//
// A Condition is a predicate whose truth should prevent system sleep. Checks
// are periodic and bounded; a misbehaving check is retried per policy and
// eventually disabled rather than taking down the client.
package condition

import (
	"context"
	"time"
)

// Condition is one inhibiting-condition predicate. Implementations must be
// re-entrant across successive polls, but are never invoked concurrently with
// themselves.
type Condition interface {
	// Name identifies the condition in logs and schedule entries
	Name() string
	// Period is the interval between checks, fixed at startup
	Period() time.Duration
	// Check reports whether sleep should currently be inhibited. It must
	// honor ctx cancellation and return within the configured timeout.
	Check(ctx context.Context) (bool, error)
}
