package condition

import (
	"context"
	"fmt"
	"time"

	"github.com/ericghara/no-doze/internal/config"
	"github.com/ericghara/no-doze/internal/errors"
	"github.com/ericghara/no-doze/internal/logger"
)

// Result is the outcome of one check execution
type Result struct {
	// Value is the predicate result; only meaningful when Err is nil
	Value bool
	// Err is set when the check failed or timed out
	Err error
	// Disabled reports that the condition exceeded its failure budget and
	// must not be scheduled again
	Disabled bool
	// Next is the delay until the check should run again; zero when Disabled
	Next time.Duration
}

// Runner executes a single condition's checks, applying its timeout and
// failure policy. A Runner is owned by one dispatching goroutine; it is not
// safe for concurrent use.
type Runner struct {
	cond     Condition
	policy   config.FailurePolicy
	timeout  time.Duration
	failures int
	disabled bool
}

// NewRunner creates a runner for one condition
func NewRunner(cond Condition, policy config.FailurePolicy, timeout time.Duration) *Runner {
	return &Runner{
		cond:    cond,
		policy:  policy,
		timeout: timeout,
	}
}

// Name returns the underlying condition's name
func (r *Runner) Name() string {
	return r.cond.Name()
}

// Period returns the underlying condition's period
func (r *Runner) Period() time.Duration {
	return r.cond.Period()
}

// Disabled reports whether the condition has been permanently disabled
func (r *Runner) Disabled() bool {
	return r.disabled
}

// Run executes one check. On failure the retry delay is returned instead of
// the period; after MaxFailures consecutive failures the condition is
// disabled and excluded from future scheduling.
func (r *Runner) Run(ctx context.Context) Result {
	if r.disabled {
		return Result{Disabled: true}
	}

	value, err := r.check(ctx)
	if err == nil {
		r.failures = 0
		return Result{Value: value, Next: r.cond.Period()}
	}

	r.failures++
	logger.WithCondition(r.cond.Name()).WithError(err).
		WithField("consecutive_failures", r.failures).
		Warn("Condition check failed")

	if r.failures >= r.policy.MaxFailures {
		r.disabled = true
		logger.WithCondition(r.cond.Name()).
			Error(errors.ErrConditionDisabled(r.cond.Name(), r.failures).Error())
		return Result{Err: err, Disabled: true}
	}
	return Result{Err: err, Next: r.policy.RetryDelay}
}

// Probe executes one check without failure accounting or rescheduling. Used
// for unscheduled passes under an externally imposed deadline, where a
// timeout says nothing about the condition's health.
func (r *Runner) Probe(ctx context.Context) Result {
	if r.disabled {
		return Result{Disabled: true}
	}
	value, err := r.check(ctx)
	if err != nil {
		return Result{Err: err}
	}
	return Result{Value: value}
}

// check invokes the predicate on its own goroutine so a check that ignores
// ctx cannot stall the caller past the timeout. A panicking predicate is
// reported as a check failure.
func (r *Runner) check(ctx context.Context) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	type outcome struct {
		value bool
		err   error
	}
	ch := make(chan outcome, 1)

	go func() {
		defer func() {
			if p := recover(); p != nil {
				ch <- outcome{err: fmt.Errorf("check panicked: %v", p)}
			}
		}()
		v, err := r.cond.Check(ctx)
		ch <- outcome{value: v, err: err}
	}()

	select {
	case <-ctx.Done():
		return false, errors.ErrCheckTimeout(r.cond.Name())
	case o := <-ch:
		if o.err != nil {
			return false, errors.ErrCheckFailed(r.cond.Name(), o.err)
		}
		return o.value, nil
	}
}
