// Package feeder implements the ad-hoc command queue described in
// spec.md §4.3: a FIFO of jog/macro lines emitted one at a time, driven
// by the Controller's next() calls and gated by hold/unhold.
package feeder

import (
	"sync"

	"github.com/cheton/cnc/internal/exprctx"
	"github.com/cheton/cnc/internal/types"
)

// Feeder is not safe for concurrent use from multiple goroutines; it is
// owned by exactly one Controller's single-threaded event loop, per
// spec.md §5.
type Feeder struct {
	mu    sync.Mutex
	items []types.FeederItem

	hold   bool
	reason types.HoldReason

	OnData   func(line string, ctx types.ExpressionContext)
	OnHold   func(reason types.HoldReason)
	OnUnhold func()
}

// New creates an empty Feeder.
func New() *Feeder {
	return &Feeder{}
}

// Feed appends lines to the queue, each carrying the same context.
func (f *Feeder) Feed(lines []string, ctx types.ExpressionContext) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, line := range lines {
		f.items = append(f.items, types.FeederItem{Line: line, Context: ctx})
	}
}

// Size returns the number of queued (not yet consumed) items.
func (f *Feeder) Size() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items)
}

// Peek reports whether there is a pending item, regardless of hold.
func (f *Feeder) Peek() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items) > 0
}

// IsPending reports whether the feeder has work it would emit if asked.
func (f *Feeder) IsPending() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items) > 0 && !f.hold
}

// Reset drops all queued items and clears any hold. It does not itself
// fire OnUnhold; callers that need the unhold side effect should call
// Unhold() separately, matching spec.md §4.5's resume sequence
// (Feeder.reset() then Sender.unhold() then Sender.next()).
func (f *Feeder) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = nil
	f.hold = false
	f.reason = types.HoldReason{}
}

// Hold stops further emission until Unhold is called.
func (f *Feeder) Hold(reason types.HoldReason) {
	f.mu.Lock()
	f.hold = true
	f.reason = reason
	cb := f.OnHold
	f.mu.Unlock()
	if cb != nil {
		cb(reason)
	}
}

// Unhold clears a hold raised by Hold or by a pause word encountered
// during translation.
func (f *Feeder) Unhold() {
	f.mu.Lock()
	wasHeld := f.hold
	f.hold = false
	f.reason = types.HoldReason{}
	cb := f.OnUnhold
	f.mu.Unlock()
	if wasHeld && cb != nil {
		cb()
	}
}

// Next translates and emits the head item, per spec.md §4.3's
// dataFilter: comments stripped, `%...` evaluated with no emission,
// `[expr]` substituted, and M0/M1/M6/`%wait` detected. A line that
// reduces to empty text does not fire OnData; per §4.3 "the next poll
// is expected", so Next keeps draining the queue internally until it
// either emits something, hits a hold, or empties the queue. The
// context a line leaves behind (including any `%` assignment) is merged
// into the next queued item's context.
func (f *Feeder) Next() (bool, error) {
	for {
		f.mu.Lock()
		if f.hold || len(f.items) == 0 {
			f.mu.Unlock()
			return false, nil
		}
		item := f.items[0]
		f.items = f.items[1:]
		f.mu.Unlock()

		result, err := exprctx.Translate(item.Line, item.Context)
		if err != nil {
			return false, err
		}

		f.mu.Lock()
		if len(f.items) > 0 && len(result.Context) > 0 {
			carried := f.items[0].Context.Clone()
			for k, v := range result.Context {
				carried[k] = v
			}
			f.items[0].Context = carried
		}
		f.mu.Unlock()

		if result.Sentinel == exprctx.SentinelHold {
			if result.Emitted != "" && f.OnData != nil {
				f.OnData(result.Emitted, result.Context)
			}
			f.Hold(result.Reason)
			return result.Emitted != "", nil
		}

		if result.Emitted == "" {
			continue
		}

		if f.OnData != nil {
			f.OnData(result.Emitted, result.Context)
		}
		return true, nil
	}
}

// Status returns the JSON-serializable snapshot echoed as `feeder:status`.
func (f *Feeder) Status() types.FeederStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return types.FeederStatus{
		Size:    len(f.items),
		Hold:    f.hold,
		Pending: len(f.items) > 0 && !f.hold,
	}
}
