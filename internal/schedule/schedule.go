// Package schedule implements an earliest-deadline-first timer wheel
// driving every periodic and one-shot deadline in the control core: the
// 250ms controller tick, the 5s/10s query timeouts, the 500ms
// force-stop wait, and the post-program idle detector (spec.md §5).
//
// It generalizes the teacher's task scheduler
// (internal/engine/priority_queue.go + internal/engine/scheduler.go):
// the same container/heap.Interface plus a mutex-guarded dispatch loop
// (woken through a channel rather than a sync.Cond), but the heap orders by soonest deadline instead of highest
// Product.Priority, and firing a timer runs its callback instead of
// handing a *types.Product to a worker-pool slot.
package schedule

import (
	"container/heap"
	"context"
	"log/slog"
	"sync"
	"time"
)

// entry is one scheduled callback, ordered by Deadline.
type entry struct {
	id       string
	deadline time.Time
	interval time.Duration // zero for one-shot
	fn       func()
	index    int
	canceled bool
}

type entryHeap []*entry

func (h entryHeap) Len() int            { return len(h) }
func (h entryHeap) Less(i, j int) bool  { return h[i].deadline.Before(h[j].deadline) }
func (h entryHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *entryHeap) Push(x interface{}) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *entryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// TickScheduler dispatches callbacks at their scheduled deadline from a
// single background goroutine. Each callback runs on a goroutine of its
// own, so two callbacks of the same TickScheduler can run concurrently.
type TickScheduler struct {
	mu      sync.Mutex
	heap    entryHeap
	byID    map[string]*entry
	wake    chan struct{}
	logger  *slog.Logger
	running bool
}

// New creates an idle TickScheduler; call Start to begin dispatch.
func New(logger *slog.Logger) *TickScheduler {
	return &TickScheduler{
		byID:   make(map[string]*entry),
		wake:   make(chan struct{}, 1),
		logger: logger.With("component", "scheduler"),
	}
}

// notify wakes the dispatch loop without blocking; a pending
// unconsumed wake already covers the next wakeup.
func (s *TickScheduler) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// After schedules fn to run once, no earlier than d from now.
// A prior entry registered under the same id is replaced.
func (s *TickScheduler) After(id string, d time.Duration, fn func()) {
	s.schedule(id, time.Now().Add(d), 0, fn)
}

// Every schedules fn to run repeatedly, first after d and then every d
// thereafter, until Cancel(id) is called. A prior entry registered
// under the same id is replaced.
func (s *TickScheduler) Every(id string, d time.Duration, fn func()) {
	s.schedule(id, time.Now().Add(d), d, fn)
}

func (s *TickScheduler) schedule(id string, deadline time.Time, interval time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.byID[id]; ok {
		old.canceled = true
		heap.Remove(&s.heap, old.index)
	}
	e := &entry{id: id, deadline: deadline, interval: interval, fn: fn}
	s.byID[id] = e
	heap.Push(&s.heap, e)
	s.notify()
}

// Cancel removes a pending or recurring entry. It is a no-op if id is
// unknown or already fired (one-shot, non-recurring).
func (s *TickScheduler) Cancel(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byID[id]
	if !ok {
		return
	}
	e.canceled = true
	if e.index >= 0 {
		heap.Remove(&s.heap, e.index)
	}
	delete(s.byID, id)
	s.notify()
}

// Pending reports whether id still has a scheduled entry.
func (s *TickScheduler) Pending(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.byID[id]
	return ok
}

// Start runs the dispatch loop until ctx is canceled. Callbacks fire on
// their own goroutine so a slow one never delays the next deadline.
func (s *TickScheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	for {
		s.mu.Lock()
		if s.heap.Len() == 0 {
			s.mu.Unlock()
			select {
			case <-ctx.Done():
				return
			case <-s.wake:
			}
			continue
		}

		wait := time.Until(s.heap[0].deadline)
		if wait <= 0 {
			e := heap.Pop(&s.heap).(*entry)
			delete(s.byID, e.id)
			s.mu.Unlock()

			if e.canceled {
				continue
			}
			fn := e.fn
			go func() {
				defer func() {
					if r := recover(); r != nil {
						s.logger.Error("scheduled callback panicked", "id", e.id, "recover", r)
					}
				}()
				fn()
			}()
			if e.interval > 0 {
				s.schedule(e.id, time.Now().Add(e.interval), e.interval, e.fn)
			}
			continue
		}
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		case <-s.wake:
		}
	}
}
