package schedule

import (
	"context"
	"testing"
	"time"
)

func collect(t *testing.T, s *Scheduler, n int, timeout time.Duration) []Entry {
	t.Helper()
	var got []Entry
	deadline := time.After(timeout)
	for len(got) < n {
		select {
		case e := <-s.Due():
			got = append(got, e)
		case <-deadline:
			t.Fatalf("Timed out waiting for entries, got %d of %d", len(got), n)
		}
	}
	return got
}

func TestSchedulerDeliversInOrder(t *testing.T) {
	s := NewScheduler()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	now := time.Now()
	s.Schedule("second", now.Add(40*time.Millisecond))
	s.Schedule("first", now.Add(10*time.Millisecond))

	got := collect(t, s, 2, time.Second)
	if got[0].Name != "first" || got[1].Name != "second" {
		t.Errorf("Expected [first second], got [%s %s]", got[0].Name, got[1].Name)
	}
}

func TestSchedulerBatchesSimultaneousEntries(t *testing.T) {
	s := NewScheduler()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	due := time.Now().Add(20 * time.Millisecond)
	s.Schedule("a", due)
	s.Schedule("b", due)
	s.Schedule("c", due)

	got := collect(t, s, 3, time.Second)
	want := []string{"a", "b", "c"}
	for i, e := range got {
		if e.Name != want[i] {
			t.Errorf("Position %d: expected %s, got %s", i, want[i], e.Name)
		}
	}
}

func TestSchedulerEmptyQueueSuspends(t *testing.T) {
	s := NewScheduler()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	select {
	case e := <-s.Due():
		t.Fatalf("Nothing scheduled, but received %v", e)
	case <-time.After(50 * time.Millisecond):
	}

	// a late registration must still wake the loop
	s.Schedule("late", time.Now())
	got := collect(t, s, 1, time.Second)
	if got[0].Name != "late" {
		t.Errorf("Expected late, got %s", got[0].Name)
	}
}

func TestSchedulerEarlierEntryPreemptsWait(t *testing.T) {
	s := NewScheduler()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	s.Schedule("slow", time.Now().Add(10*time.Second))
	s.Schedule("fast", time.Now().Add(20*time.Millisecond))

	select {
	case e := <-s.Due():
		if e.Name != "fast" {
			t.Errorf("Expected fast, got %s", e.Name)
		}
	case <-time.After(time.Second):
		t.Fatal("Scheduler did not preempt its wait for an earlier entry")
	}
}

func TestSchedulerRemoveCancelsEntry(t *testing.T) {
	s := NewScheduler()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	s.Schedule("cancelled", time.Now().Add(30*time.Millisecond))
	s.Schedule("kept", time.Now().Add(60*time.Millisecond))
	s.Remove("cancelled")

	got := collect(t, s, 1, time.Second)
	if got[0].Name != "kept" {
		t.Errorf("Expected kept, got %s", got[0].Name)
	}
	if s.Len() != 0 {
		t.Errorf("Expected empty schedule, len=%d", s.Len())
	}
}

func TestSchedulerScheduleReplacesExistingEntry(t *testing.T) {
	s := NewScheduler()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	s.Schedule("cond", time.Now().Add(time.Hour))
	s.Schedule("cond", time.Now().Add(20*time.Millisecond))
	if s.Len() != 1 {
		t.Fatalf("Expected one entry per name, len=%d", s.Len())
	}

	got := collect(t, s, 1, time.Second)
	if got[0].Name != "cond" {
		t.Errorf("Expected cond, got %s", got[0].Name)
	}
	if s.Len() != 0 {
		t.Errorf("Expected empty schedule after delivery, len=%d", s.Len())
	}
}

func TestSchedulerStopsOnContextCancel(t *testing.T) {
	s := NewScheduler()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	s.Schedule("pending", time.Now().Add(time.Hour))
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
