package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/ericghara/no-doze/internal/logger"
)

// Scheduler owns a Queue and delivers entries on their due times. It sleeps
// until the earliest entry is due or the schedule changes; an empty queue
// suspends it until a registration arrives.
type Scheduler struct {
	mu   sync.Mutex
	q    *Queue
	wake chan struct{}
	due  chan Entry
}

// NewScheduler creates a scheduler with an empty queue
func NewScheduler() *Scheduler {
	return &Scheduler{
		q:    NewQueue(),
		wake: make(chan struct{}, 1),
		due:  make(chan Entry),
	}
}

// Schedule registers a check for the named condition at the given time. Any
// outstanding entry for the name is replaced; a condition has at most one
// pending check.
func (s *Scheduler) Schedule(name string, due time.Time) {
	s.mu.Lock()
	s.q.Remove(name)
	s.q.Push(name, due)
	s.mu.Unlock()
	s.wakeup()
}

// Remove cancels all outstanding entries for the named condition
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	removed := s.q.Remove(name)
	s.mu.Unlock()
	if removed > 0 {
		s.wakeup()
	}
}

// Due returns the channel on which due entries are delivered, earliest first
func (s *Scheduler) Due() <-chan Entry {
	return s.due
}

// Len returns the number of outstanding entries
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.Len()
}

// wakeup nudges the run loop to recompute its wait. Non-blocking; a pending
// nudge is enough.
func (s *Scheduler) wakeup() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run delivers due entries until the context is cancelled. All entries due at
// wakeup are delivered before the next wait is computed.
func (s *Scheduler) Run(ctx context.Context) {
	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		s.mu.Lock()
		next, ok := s.q.Peek()
		s.mu.Unlock()

		if !ok {
			// empty queue, suspend until something is scheduled
			select {
			case <-ctx.Done():
				return
			case <-s.wake:
				continue
			}
		}

		wait := time.Until(next.Due)
		if wait > 0 {
			timer.Reset(wait)
			select {
			case <-ctx.Done():
				if !timer.Stop() {
					<-timer.C
				}
				return
			case <-s.wake:
				if !timer.Stop() {
					<-timer.C
				}
				continue
			case <-timer.C:
			}
		}

		s.mu.Lock()
		batch := s.q.PopDue(time.Now())
		s.mu.Unlock()

		for _, e := range batch {
			select {
			case <-ctx.Done():
				return
			case s.due <- e:
			}
		}

		if len(batch) == 0 {
			logger.Debug("Scheduler woke with nothing due")
		}
	}
}
