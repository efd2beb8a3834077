// ABOUTME: Tests for the callback scheduler
// ABOUTME: Covers firing order, cancellation, and the single-goroutine dispatch guarantee
package transport

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestSchedulerFiresAfterDelay(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()

	var fired atomic.Bool
	s.Schedule(5*time.Millisecond, func() { fired.Store(true) })

	time.Sleep(100 * time.Millisecond)
	if !fired.Load() {
		t.Error("expected callback to fire")
	}
	if s.PendingCount() != 0 {
		t.Errorf("expected empty queue, got %d", s.PendingCount())
	}
	firedCount, _, _ := s.GetStats()
	if firedCount != 1 {
		t.Errorf("expected 1 fired, got %d", firedCount)
	}
}

func TestSchedulerCancelPreventsFiring(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()

	var fired atomic.Bool
	h := s.Schedule(30*time.Millisecond, func() { fired.Store(true) })

	if !s.Cancel(h) {
		t.Fatal("expected cancel to succeed")
	}
	if s.Cancel(h) {
		t.Error("expected second cancel to report already gone")
	}

	time.Sleep(100 * time.Millisecond)
	if fired.Load() {
		t.Error("canceled callback fired")
	}
}

func TestSchedulerCancelAllDropsEverything(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()

	var count atomic.Int32
	for i := 0; i < 5; i++ {
		s.Schedule(50*time.Millisecond, func() { count.Add(1) })
	}

	if n := s.CancelAll(); n != 5 {
		t.Errorf("expected 5 canceled, got %d", n)
	}
	if s.PendingCount() != 0 {
		t.Errorf("expected empty queue, got %d", s.PendingCount())
	}

	time.Sleep(120 * time.Millisecond)
	if count.Load() != 0 {
		t.Errorf("expected no callbacks, %d fired", count.Load())
	}
	_, canceled, _ := s.GetStats()
	if canceled != 5 {
		t.Errorf("expected canceled stat 5, got %d", canceled)
	}
}

func TestSchedulerFiresInDeadlineOrder(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()

	done := make(chan int, 3)
	// Scheduled out of order; must fire by deadline.
	s.Schedule(30*time.Millisecond, func() { done <- 3 })
	s.Schedule(10*time.Millisecond, func() { done <- 1 })
	s.Schedule(20*time.Millisecond, func() { done <- 2 })

	var order []int
	for i := 0; i < 3; i++ {
		select {
		case v := <-done:
			order = append(order, v)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for callbacks")
		}
	}
	for i, v := range order {
		if v != i+1 {
			t.Fatalf("expected deadline order [1 2 3], got %v", order)
		}
	}
}

func TestSchedulerCallbacksNeverOverlap(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()

	// All callbacks share one dispatch goroutine, so unsynchronized writes
	// here are safe; the race detector verifies that claim.
	var values []int
	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		v := i
		s.Schedule(5*time.Millisecond, func() {
			values = append(values, v)
			if len(values) == 10 {
				close(done)
			}
		})
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for callbacks")
	}
	if len(values) != 10 {
		t.Errorf("expected 10 values, got %d", len(values))
	}
}

func TestSchedulerStopSilencesPending(t *testing.T) {
	s := NewScheduler()
	var fired atomic.Bool
	s.Schedule(30*time.Millisecond, func() { fired.Store(true) })
	s.Stop()

	time.Sleep(80 * time.Millisecond)
	if fired.Load() {
		t.Error("callback fired after Stop")
	}
}
