// Package sender implements the program streamer described in
// spec.md §4.4: it walks a loaded program line by line under one of
// three flow-control strategies (send-response, character-counting, or
// TinyG/g2core's queue-report window) while keeping
// `received <= sent <= len(lines)` at all times.
//
// Character-counting bookkeeping is grounded on jes-pugsender's Grbl
// type, which tracks `SerialFree` the same way: subtract a line's
// length when it goes out, add it back when the matching response
// comes in (there: Grbl.Command / Grbl.SendResponse).
package sender

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/cheton/cnc/internal/exprctx"
	"github.com/cheton/cnc/internal/types"
)

var commentRe = regexp.MustCompile(`\s*;.*$`)

// waitLine is appended to every loaded program's content, per
// spec.md §6: "sender:load appends `\n%wait ; Wait for the planner to
// empty` to program content so the terminal dwell triggers the finish
// detector."
const waitLine = "%wait ; Wait for the planner to empty"

// Sender streams one loaded program. It is owned by a single
// Controller goroutine (spec.md §5) and is not safe for concurrent use.
type Sender struct {
	mu sync.Mutex

	name    string
	content string
	lines   []string

	sent, received int
	sp             types.StreamingDescriptor
	context        types.ExpressionContext

	hold       bool
	holdReason types.HoldReason
	paused     bool // set by the Controller when Workflow leaves Running

	startTime, finishTime int64

	// pendingLens holds, in send order, the on-wire byte length
	// (including the trailing LF) of every line sent but not yet
	// acked. Only used by CharCounting; QueueReport tracks a plain
	// outstanding count instead since g2core's window isn't
	// byte-sized.
	pendingLens []int
	dataLength  int // sum(pendingLens); mirrors Grbl's SerialFree accounting
	outstanding int // QueueReport: lines sent, not yet acked or windowed back

	OnData          func(line string, ctx types.ExpressionContext)
	OnStart         func(t int64)
	OnEnd           func(t int64)
	OnHold          func(reason types.HoldReason)
	OnUnhold        func()
	OnWorkflowPause func(reason types.HoldReason)
}

// New creates an empty, unloaded Sender for the given streaming
// descriptor.
func New(sp types.StreamingDescriptor) *Sender {
	return &Sender{sp: sp, context: types.ExpressionContext{}}
}

// Load splits content into lines[] after stripping `; ...` comments and
// dropping blank lines, appends the terminal %wait sentinel, and resets
// all counters. It does not itself start streaming; the Controller
// calls Workflow.Start(), whose callback invokes Next().
func (s *Sender) Load(name, content string, ctx types.ExpressionContext) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ctx == nil {
		ctx = types.ExpressionContext{}
	}

	full := content + "\n" + waitLine
	var lines []string
	for _, raw := range strings.Split(full, "\n") {
		stripped := strings.TrimSpace(commentRe.ReplaceAllString(raw, ""))
		if stripped == "" {
			continue
		}
		lines = append(lines, stripped)
	}

	s.name = name
	s.content = content
	s.lines = lines
	s.context = ctx
	s.resetCountersLocked()
	return nil
}

// Unload clears the loaded program entirely.
func (s *Sender) Unload() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.name = ""
	s.content = ""
	s.lines = nil
	s.resetCountersLocked()
}

// Rewind resets sent/received/hold/finishTime for a fresh run of the
// already-loaded program, per spec.md §4.5 (Workflow start/stop both
// call Sender.rewind()).
func (s *Sender) Rewind() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetCountersLocked()
}

func (s *Sender) resetCountersLocked() {
	s.sent, s.received = 0, 0
	s.hold = false
	s.holdReason = types.HoldReason{}
	s.pendingLens = nil
	s.dataLength = 0
	s.outstanding = 0
	s.startTime, s.finishTime = 0, 0
}

// SetPaused tells the Sender whether Workflow is currently Paused. The
// Controller calls this from the Workflow's pause/resume callbacks.
// While paused, Next() advances no further lines even though acks keep
// draining counters (spec.md §4.4 tie-break: "On ack() during Paused:
// counters advance but no new data is emitted").
func (s *Sender) SetPaused(paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = paused
}

// Hold stops Next from emitting until Unhold is called.
func (s *Sender) Hold(reason types.HoldReason) {
	s.mu.Lock()
	s.hold = true
	s.holdReason = reason
	cb := s.OnHold
	s.mu.Unlock()
	if cb != nil {
		cb(reason)
	}
}

// Unhold clears an explicit or %wait-raised hold.
func (s *Sender) Unhold() {
	s.mu.Lock()
	wasHeld := s.hold
	s.hold = false
	s.holdReason = types.HoldReason{}
	cb := s.OnUnhold
	s.mu.Unlock()
	if wasHeld && cb != nil {
		cb()
	}
}

// Peek reports whether the Sender has a loaded program with lines left
// to send.
func (s *Sender) Peek() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent < len(s.lines)
}

// Next drains as many lines as the active streaming protocol currently
// allows onto the wire (OnData), translating each with exprctx.
// Lines that translate to nothing (a bare `%expr` assignment) are
// immediately counted as both sent and received without consuming any
// flow-control budget, mirroring Feeder.Next()'s "no data emitted, but
// the next poll is expected" rule.
//
// All state mutation happens under s.mu; every callback is collected
// while locked and only invoked after s.mu is released, in the order
// it was raised (OnStart, then OnData, then OnHold/OnWorkflowPause).
// This mirrors Feeder.Next()'s unlock-then-call pattern instead of
// spawning a goroutine per callback: a bare `go` would let OnData
// calls interleave and reorder outbound writes, and would let
// OnWorkflowPause's re-entrant call into Sender.SetPaused race the
// Controller's own mutex-guarded event loop instead of serializing
// through it, breaking spec.md §5's single-threaded model.
func (s *Sender) Next() error {
	s.mu.Lock()

	if s.hold || s.paused {
		s.mu.Unlock()
		return nil
	}

	var fire []func()
	for s.sent < len(s.lines) {
		line := s.lines[s.sent]
		result, err := exprctx.Translate(line, s.context)
		if err != nil {
			s.mu.Unlock()
			return fmt.Errorf("sender: translate line %d: %w", s.sent, err)
		}
		s.context = result.Context

		if result.Emitted == "" && result.Sentinel == exprctx.SentinelNone {
			// Assignment-only line: consumes an index but nothing was
			// ever transmitted, so it can't be waited on for an ack.
			s.sent++
			s.received++
			continue
		}

		switch result.Sentinel {
		case exprctx.SentinelWait:
			if !s.admit(len(result.Emitted)) {
				s.mu.Unlock()
				fireAll(fire)
				return nil
			}
			fire = append(fire, s.emitLocked(result.Emitted)...)
			s.sent++
			s.hold = true
			s.holdReason = types.HoldReason{Data: "wait"}
			if s.OnHold != nil {
				reason := s.holdReason
				fire = append(fire, func() { s.OnHold(reason) })
			}
			s.mu.Unlock()
			fireAll(fire)
			return nil

		case exprctx.SentinelHold:
			if !s.admit(len(result.Emitted)) {
				s.mu.Unlock()
				fireAll(fire)
				return nil
			}
			fire = append(fire, s.emitLocked(result.Emitted)...)
			s.sent++
			s.paused = true
			if s.OnWorkflowPause != nil {
				reason := result.Reason
				fire = append(fire, func() { s.OnWorkflowPause(reason) })
			}
			s.mu.Unlock()
			fireAll(fire)
			return nil

		default:
			if !s.admit(len(result.Emitted)) {
				s.mu.Unlock()
				fireAll(fire)
				return nil
			}
			fire = append(fire, s.emitLocked(result.Emitted)...)
			s.sent++
		}
	}
	s.mu.Unlock()
	fireAll(fire)
	return nil
}

// fireAll invokes callbacks collected while s.mu was held, in order,
// after it has been released.
func fireAll(fns []func()) {
	for _, fn := range fns {
		fn()
	}
}

// admit reports whether a transmitted line of byteLen bytes (before the
// trailing LF this package always appends) fits under the active
// streaming protocol's flow-control budget, per spec.md invariant 3
// (char-counting) and invariant 4 (send-response).
func (s *Sender) admit(byteLen int) bool {
	wireLen := byteLen + 1 // + LF
	switch s.sp.Protocol {
	case types.SendResponse:
		return s.sent-s.received == 0
	case types.CharCounting:
		return s.dataLength+wireLen <= s.sp.BufferSize
	case types.QueueReport:
		return s.outstanding < s.sp.WindowSize
	default:
		return true
	}
}

// emitLocked updates the outstanding-byte/window bookkeeping for the
// line just admitted and returns the OnStart/OnData callbacks it
// raised, for the caller to invoke once s.mu is released. Caller holds
// s.mu.
func (s *Sender) emitLocked(emitted string) []func() {
	var fns []func()
	if s.sent == 0 && s.received == 0 && s.startTime == 0 {
		s.startTime = types.NowMillis()
		if s.OnStart != nil {
			t := s.startTime
			fns = append(fns, func() { s.OnStart(t) })
		}
	}
	switch s.sp.Protocol {
	case types.CharCounting:
		wireLen := len(emitted) + 1
		s.pendingLens = append(s.pendingLens, wireLen)
		s.dataLength += wireLen
	case types.QueueReport:
		s.outstanding++
	}
	if s.OnData != nil {
		ctx := s.context
		fns = append(fns, func() { s.OnData(emitted, ctx) })
	}
	return fns
}

// Ack credits one outstanding line, per the active protocol, then
// advances toward finish detection. It is a no-op past
// received == sent, per the boundary rule "an ok received while
// received == sent must not advance received past sent". Like Next(),
// any OnUnhold/OnEnd callback raised fires only after s.mu is
// released.
func (s *Sender) Ack() {
	s.mu.Lock()
	fns := s.ackLocked()
	s.mu.Unlock()
	fireAll(fns)
}

func (s *Sender) ackLocked() []func() {
	if s.received >= s.sent {
		return nil
	}
	switch s.sp.Protocol {
	case types.CharCounting:
		if len(s.pendingLens) > 0 {
			s.dataLength -= s.pendingLens[0]
			s.pendingLens = s.pendingLens[1:]
		}
	case types.QueueReport:
		if s.outstanding > 0 {
			s.outstanding--
		}
	}
	s.received++

	var fns []func()

	// The %wait hold is released once every outstanding ack has
	// drained, per spec.md §4.4.
	if s.hold && s.holdReason.Data == "wait" && s.received >= s.sent {
		s.hold = false
		s.holdReason = types.HoldReason{}
		if s.OnUnhold != nil {
			fns = append(fns, s.OnUnhold)
		}
	}

	if s.received == s.sent && s.sent == len(s.lines) && s.finishTime == 0 {
		s.finishTime = types.NowMillis()
		if s.OnEnd != nil {
			t := s.finishTime
			fns = append(fns, func() { s.OnEnd(t) })
		}
	}
	return fns
}

// ApplyQueueReport replenishes a QueueReport-protocol window from a
// TinyG/g2core `qr` event: the firmware's own report of free queue
// slots authoritatively sets how much room is left, rather than the
// host inferring it purely from ack counting. Per spec.md §9, full
// g2core queue-report semantics are only approximated here.
func (s *Sender) ApplyQueueReport(freeSlots int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	used := s.sp.WindowSize - freeSlots
	if used < 0 {
		used = 0
	}
	s.outstanding = used
}

// FinishedSince reports whether the program has fully drained
// (received == sent == len(lines)) and, if so, how many milliseconds
// ago that happened. ok is false if the program hasn't finished.
func (s *Sender) FinishedSince() (ms int64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finishTime == 0 {
		return 0, false
	}
	return types.NowMillis() - s.finishTime, true
}

// ToJSON returns the serializable snapshot echoed as `sender:status`.
func (s *Sender) ToJSON() types.SenderStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	status := types.SenderStatus{
		Name:       s.name,
		Size:       len(s.content),
		Total:      len(s.lines),
		Sent:       s.sent,
		Received:   s.received,
		Hold:       s.hold,
		SP:         s.sp,
		Context:    s.context,
		StartTime:  s.startTime,
		FinishTime: s.finishTime,
	}
	if s.hold {
		reason := s.holdReason
		status.HoldReason = &reason
	}
	return status
}
