// ABOUTME: Deadline scheduler running all transport callbacks on one goroutine
// ABOUTME: A heap orders pending callbacks; CancelAll clears them before transitions
package transport

import (
	"container/heap"
	"context"
	"log"
	"sync"
	"time"
)

const (
	schedTick = 2 * time.Millisecond
	// Callbacks firing this far past their deadline are counted as late.
	lateThreshold = 50 * time.Millisecond
)

// Handle identifies a scheduled callback for cancellation.
type Handle uint64

type schedEntry struct {
	fireAt time.Time
	seq    Handle
	fn     func()
	index  int
}

type schedHeap []*schedEntry

func (h schedHeap) Len() int { return len(h) }

func (h schedHeap) Less(i, j int) bool {
	if h[i].fireAt.Equal(h[j].fireAt) {
		return h[i].seq < h[j].seq
	}
	return h[i].fireAt.Before(h[j].fireAt)
}

func (h schedHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *schedHeap) Push(x any) {
	e := x.(*schedEntry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *schedHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Scheduler dispatches timed callbacks from a single goroutine, so callbacks
// never run concurrently with each other. Everything the transport defers
// goes through here, which is what makes CancelAll a complete teardown.
type Scheduler struct {
	mu       sync.Mutex
	heap     schedHeap
	byID     map[Handle]*schedEntry
	nextSeq  Handle
	fired    int
	canceled int
	late     int

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewScheduler starts the dispatch goroutine.
func NewScheduler() *Scheduler {
	s := &Scheduler{byID: make(map[Handle]*schedEntry)}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.wg.Add(1)
	go s.run()
	return s
}

// Stop halts dispatch; pending callbacks never fire.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.cancel()
		s.wg.Wait()
	})
}

// Schedule queues fn to run after d on the dispatch goroutine.
func (s *Scheduler) Schedule(d time.Duration, fn func()) Handle {
	return s.ScheduleAt(time.Now().Add(d), fn)
}

// ScheduleAt queues fn for an absolute deadline.
func (s *Scheduler) ScheduleAt(at time.Time, fn func()) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSeq++
	e := &schedEntry{fireAt: at, seq: s.nextSeq, fn: fn}
	heap.Push(&s.heap, e)
	s.byID[e.seq] = e
	return e.seq
}

// Cancel removes one pending callback; false if it already fired or was
// canceled.
func (s *Scheduler) Cancel(h Handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byID[h]
	if !ok {
		return false
	}
	heap.Remove(&s.heap, e.index)
	delete(s.byID, h)
	s.canceled++
	return true
}

// CancelAll drops every pending callback and returns how many were dropped.
func (s *Scheduler) CancelAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.heap)
	s.heap = s.heap[:0]
	s.byID = make(map[Handle]*schedEntry)
	s.canceled += n
	return n
}

// PendingCount reports how many callbacks are queued.
func (s *Scheduler) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.heap)
}

// GetStats returns lifetime dispatch counters.
func (s *Scheduler) GetStats() (fired, canceled, late int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fired, s.canceled, s.late
}

func (s *Scheduler) run() {
	defer s.wg.Done()
	ticker := time.NewTicker(schedTick)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case now := <-ticker.C:
			s.fireDue(now)
		}
	}
}

// fireDue pops everything due under the lock, then invokes outside it so
// callbacks can schedule or cancel freely.
func (s *Scheduler) fireDue(now time.Time) {
	s.mu.Lock()
	var due []func()
	for len(s.heap) > 0 && !s.heap[0].fireAt.After(now) {
		e := heap.Pop(&s.heap).(*schedEntry)
		delete(s.byID, e.seq)
		if lateBy := now.Sub(e.fireAt); lateBy > lateThreshold {
			s.late++
			log.Printf("[sched] callback fired %.1fms late", lateBy.Seconds()*1000)
		}
		s.fired++
		due = append(due, e.fn)
	}
	s.mu.Unlock()

	for _, fn := range due {
		fn()
	}
}
