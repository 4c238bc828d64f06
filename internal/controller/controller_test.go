package controller

import (
	"context"
	"io"
	"log/slog"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/cheton/cnc/internal/dialect"
	"github.com/cheton/cnc/internal/event"
	"github.com/cheton/cnc/internal/schedule"
	"github.com/cheton/cnc/internal/transport"
	"github.com/cheton/cnc/internal/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeTransport is an in-memory transport.Transport double: writes are
// recorded instead of hitting a wire. Tests feed inbound lines by
// calling Controller.handleLine directly rather than through Lines(),
// since Open is never called here and there is no read-loop goroutine
// to race against test assertions.
type fakeTransport struct {
	ident string

	mu      sync.Mutex
	written [][]byte

	lines chan string
	errs  chan error
}

func newFakeTransport(ident string) *fakeTransport {
	return &fakeTransport{
		ident: ident,
		lines: make(chan string, 16),
		errs:  make(chan error, 4),
	}
}

func (t *fakeTransport) Open(cb func(error))                  { cb(nil) }
func (t *fakeTransport) Close() error                          { return nil }
func (t *fakeTransport) Lines() <-chan string                  { return t.lines }
func (t *fakeTransport) Errors() <-chan error                  { return t.errs }
func (t *fakeTransport) SetWriteFilter(transport.WriteFilter) {}
func (t *fakeTransport) Ident() string                         { return t.ident }

func (t *fakeTransport) Write(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.written = append(t.written, append([]byte(nil), data...))
	return nil
}

func (t *fakeTransport) writes() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.written))
	for i, w := range t.written {
		out[i] = string(w)
	}
	return out
}

func (t *fakeTransport) lastWrite() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.written) == 0 {
		return ""
	}
	return string(t.written[len(t.written)-1])
}

// newTestController builds a Controller wired to a fakeTransport and a
// real, running TickScheduler, without invoking Open — tests drive
// handleLine/tick/Dispatch directly from the test goroutine, matching
// spec.md §5's single-threaded model without needing a live read loop.
func newTestController(t *testing.T, d dialect.Dialect, ignoreErrors bool) (*Controller, *fakeTransport) {
	t.Helper()
	bus := event.NewBus()
	sched := schedule.New(testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go sched.Start(ctx)

	tr := newFakeTransport("test-" + string(d.Name))
	c := New("test-"+string(d.Name), d, tr, bus, sched, nil, nil, ignoreErrors, testLogger())
	return c, tr
}

// forceReadyForTest drives the controller ready without going through the real
// Transport.Open/handshake path, since Open is never called in these
// tests.
func (c *Controller) forceReadyForTest() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.markReadyLocked()
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !cond() {
		t.Fatalf("condition not met within %s", timeout)
	}
}

// TestStreamingHappyPath covers seed test #1. Grbl streams under the
// character-counting protocol, not one line per ack: a short program
// fits entirely under the 127-byte RX buffer, so sender:start drains it
// onto the wire in a single Next() call, including the appended %wait
// sentinel. Each `ok` afterward only advances received until the
// wait's hold clears and the program is reported finished.
func TestStreamingHappyPath(t *testing.T) {
	c, tr := newTestController(t, dialect.Grbl, false)
	c.forceReadyForTest()

	if err := c.Dispatch("sender:load", "prog.nc", "G0 X0\nG0 X1"); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := c.Dispatch("sender:start"); err != nil {
		t.Fatalf("start: %v", err)
	}

	want := []string{"G0 X0\n", "G0 X1\n", "G4 P0.5\n"}
	if got := tr.writes(); !reflect.DeepEqual(got, want) {
		t.Fatalf("writes after start = %v, want %v", got, want)
	}

	c.handleLine("ok")
	c.handleLine("ok")
	c.handleLine("ok")

	if got := tr.writes(); !reflect.DeepEqual(got, want) {
		t.Fatalf("writes after acks = %v, want no further writes beyond %v", got, want)
	}

	_, _, status := c.State()
	if status.Received != status.Sent || status.Sent != status.Total {
		t.Fatalf("status = %+v, want Received == Sent == Total", status)
	}
}

// TestM6RaisesHoldAndResume covers seed test #2: an M6 line's
// parenthesized emission pauses the Workflow immediately (before any
// ack arrives, since M6 fits comfortably under the char-counting
// budget alongside the line ahead of it), and sender:resume drains the
// remainder of the program, including the trailing %wait, in one shot.
func TestM6RaisesHoldAndResume(t *testing.T) {
	c, tr := newTestController(t, dialect.Grbl, false)
	c.forceReadyForTest()

	if err := c.Dispatch("sender:load", "prog.nc", "G0 X0\nM6\nG0 X1"); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := c.Dispatch("sender:start"); err != nil {
		t.Fatalf("start: %v", err)
	}

	want := []string{"G0 X0\n", "(M6)\n"}
	if got := tr.writes(); !reflect.DeepEqual(got, want) {
		t.Fatalf("writes after start = %v, want %v", got, want)
	}
	if state, _, _ := c.State(); state != types.WorkflowPaused {
		t.Fatalf("workflow state = %v, want Paused", state)
	}

	c.handleLine("ok")
	c.handleLine("ok")
	if got := tr.writes(); !reflect.DeepEqual(got, want) {
		t.Fatalf("acks while paused advanced the wire: %v", got)
	}

	if err := c.Dispatch("sender:resume"); err != nil {
		t.Fatalf("resume: %v", err)
	}
	want = append(want, string([]byte{'~'}), "G0 X1\n", "G4 P0.5\n")
	if got := tr.writes(); !reflect.DeepEqual(got, want) {
		t.Fatalf("writes after resume = %v, want %v", got, want)
	}
	if state, _, _ := c.State(); state != types.WorkflowRunning {
		t.Fatalf("workflow state = %v, want Running", state)
	}
}

// TestQueriesSuppressedUntilReady covers invariant 6: tick issues no
// outbound query bytes before the open handshake has completed.
func TestQueriesSuppressedUntilReady(t *testing.T) {
	c, tr := newTestController(t, dialect.Grbl, false)

	c.tick()
	if writes := tr.writes(); len(writes) != 0 {
		t.Fatalf("writes before ready = %v, want none", writes)
	}

	c.forceReadyForTest()
	c.tick()
	if got := tr.writes(); len(got) == 0 || got[0] != "?" {
		t.Fatalf("writes after ready = %v, want status query %q first", got, "?")
	}
}

// TestParserStateQueryOnlyWhenIdle covers §4.6's tick description: the
// parser-state (`$G`) query is only issued while the Workflow is Idle,
// even once the connection is ready.
func TestParserStateQueryOnlyWhenIdle(t *testing.T) {
	c, tr := newTestController(t, dialect.Grbl, false)
	c.forceReadyForTest()

	c.tick()
	found := false
	for _, w := range tr.writes() {
		if w == "$G\n" {
			found = true
		}
	}
	if !found {
		t.Fatalf("writes = %v, want a $G query while Idle", tr.writes())
	}

	if err := c.Dispatch("sender:load", "prog.nc", "G0 X0"); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := c.Dispatch("sender:start"); err != nil {
		t.Fatalf("start: %v", err)
	}

	before := len(tr.writes())
	c.tick()
	for _, w := range tr.writes()[before:] {
		if w == "$G\n" {
			t.Fatalf("$G queried while Workflow Running")
		}
	}
}

// TestMarlinStatusQueryFeedsM114 confirms Marlin's line-oriented
// status-query fallback: since Marlin has no realtime status byte, the
// periodic status query is queued through the Feeder as M114 instead.
func TestMarlinStatusQueryFeedsM114(t *testing.T) {
	c, tr := newTestController(t, dialect.Marlin, false)
	c.forceReadyForTest()

	c.tick()
	if got := tr.lastWrite(); got != "M114\n" {
		t.Fatalf("status query = %q, want %q", got, "M114\n")
	}
}

// TestForceStopWritesFeedHoldThenSoftReset covers seed test #4:
// sender:stop({force:true}) writes the feed-hold byte immediately, and
// if the firmware is still reporting a Hold state 500ms later, follows
// up with a soft-reset.
func TestForceStopWritesFeedHoldThenSoftReset(t *testing.T) {
	c, tr := newTestController(t, dialect.Grbl, false)
	c.forceReadyForTest()

	c.handleLine("<Run|MPos:0.000,0.000,0.000>")

	if err := c.Dispatch("sender:stop", map[string]interface{}{"force": true}); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if got := tr.lastWrite(); got != "!" {
		t.Fatalf("immediate write = %q, want feed-hold byte", got)
	}

	c.handleLine("<Hold:0|MPos:0.000,0.000,0.000>")

	waitFor(t, 2*time.Second, func() bool {
		return tr.lastWrite() == string([]byte{0x18})
	})
}

// TestForceStopSkipsSoftResetWhenNotHolding confirms the soft-reset
// follow-up is skipped when the machine has already left Hold by the
// time the grace period elapses.
func TestForceStopSkipsSoftResetWhenNotHolding(t *testing.T) {
	c, tr := newTestController(t, dialect.Grbl, false)
	c.forceReadyForTest()

	if err := c.Dispatch("sender:stop", map[string]interface{}{"force": true}); err != nil {
		t.Fatalf("stop: %v", err)
	}
	c.handleLine("<Idle|MPos:0.000,0.000,0.000>")

	time.Sleep(700 * time.Millisecond)
	for _, w := range tr.writes() {
		if w == string([]byte{0x18}) {
			t.Fatalf("soft-reset written while machine reported Idle")
		}
	}
}

// TestOverrideFeedClampsToGrblRange covers seed test #5: an
// out-of-range override request is clamped to the dialect's accepted
// range before the event is published, and still drives a realtime
// byte onto the wire.
func TestOverrideFeedClampsToGrblRange(t *testing.T) {
	c, tr := newTestController(t, dialect.Grbl, false)

	var mu sync.Mutex
	var got map[string]interface{}
	c.bus.Subscribe(event.OverrideChange, func(e event.Event) {
		mu.Lock()
		got = e.Payload.(map[string]interface{})
		mu.Unlock()
	})

	if err := c.Dispatch("override:feed", 500); err != nil {
		t.Fatalf("override: %v", err)
	}

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return got != nil
	})

	mu.Lock()
	defer mu.Unlock()
	if got["value"].(int) != 200 {
		t.Fatalf("clamped value = %v, want 200", got["value"])
	}
	if len(tr.writes()) == 0 {
		t.Fatal("override:feed wrote nothing to the transport")
	}
}

// TestOverrideFeedWritesGrblIncrement10Byte covers seed test #5
// exactly: override:feed(10) writes the single byte 0x91.
func TestOverrideFeedWritesGrblIncrement10Byte(t *testing.T) {
	c, tr := newTestController(t, dialect.Grbl, false)

	if err := c.Dispatch("override:feed", 10); err != nil {
		t.Fatalf("override: %v", err)
	}

	got := tr.writes()
	want := []string{string([]byte{0x91})}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("writes = %v, want %v", got, want)
	}
}

// TestOverrideFeedWritesGrblResetByte covers seed test #5's other
// half: override:feed(0) writes the reset-to-100%% byte 0x90.
func TestOverrideFeedWritesGrblResetByte(t *testing.T) {
	c, tr := newTestController(t, dialect.Grbl, false)

	if err := c.Dispatch("override:feed", 0); err != nil {
		t.Fatalf("override: %v", err)
	}

	got := tr.writes()
	want := []string{string([]byte{0x90})}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("writes = %v, want %v", got, want)
	}
}

// TestOverrideSpindleFallsBackToMcodeOnMarlin covers the M220/M221
// fallback for dialects with no realtime override channel.
func TestOverrideSpindleFallsBackToMcodeOnMarlin(t *testing.T) {
	c, tr := newTestController(t, dialect.Marlin, false)

	if err := c.Dispatch("override:spindle", 150); err != nil {
		t.Fatalf("override: %v", err)
	}

	got := tr.writes()
	want := []string{"M221 S150\n"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("writes = %v, want %v", got, want)
	}
}

// TestReplyFlagGatesStatusEcho covers comment #3's boundary test: a
// bare `?` write arms replyStatusReport, so the very next status line
// is echoed to clients, and the flag then clears so a subsequent
// unsolicited status report goes unechoed.
func TestReplyFlagGatesStatusEcho(t *testing.T) {
	c, _ := newTestController(t, dialect.Grbl, false)
	c.forceReadyForTest()

	var mu sync.Mutex
	var reads []string
	c.bus.Subscribe(event.ConnectionRead, func(e event.Event) {
		mu.Lock()
		reads = append(reads, e.Payload.(string))
		mu.Unlock()
	})

	if err := c.Write([]byte("?")); err != nil {
		t.Fatalf("write: %v", err)
	}
	c.handleLine("<Idle|MPos:0.000,0.000,0.000>")

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(reads) == 1
	})

	c.handleLine("<Idle|MPos:0.000,0.000,0.000>")
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(reads) != 1 {
		t.Fatalf("reads = %v, want exactly one echoed status report", reads)
	}
}

// TestErrorPausesRunningWorkflow covers comment #4: a Grbl error reply
// while Running pauses the Workflow unless ignoreErrors is set.
func TestErrorPausesRunningWorkflow(t *testing.T) {
	c, _ := newTestController(t, dialect.Grbl, false)
	c.forceReadyForTest()

	if err := c.Dispatch("sender:load", "prog.nc", "G0 X0"); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := c.Dispatch("sender:start"); err != nil {
		t.Fatalf("start: %v", err)
	}

	c.handleLine("error:20")

	if state, _, _ := c.State(); state != types.WorkflowPaused {
		t.Fatalf("workflow state = %v, want Paused after error", state)
	}
}

// TestIgnoreErrorsKeepsWorkflowRunning confirms the ignoreErrors escape
// hatch: the same error reply leaves a Running Workflow untouched.
func TestIgnoreErrorsKeepsWorkflowRunning(t *testing.T) {
	c, _ := newTestController(t, dialect.Grbl, true)
	c.forceReadyForTest()

	if err := c.Dispatch("sender:load", "prog.nc", "G0 X0\nG0 X1"); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := c.Dispatch("sender:start"); err != nil {
		t.Fatalf("start: %v", err)
	}

	c.handleLine("error:20")

	if state, _, _ := c.State(); state != types.WorkflowRunning {
		t.Fatalf("workflow state = %v, want still Running with ignoreErrors set", state)
	}
}

// TestForceStopFalseIsNoop confirms sender:stop without force never
// touches the transport beyond settling the Workflow.
func TestForceStopFalseIsNoop(t *testing.T) {
	c, tr := newTestController(t, dialect.Grbl, false)
	c.forceReadyForTest()

	before := len(tr.writes())
	if err := c.Dispatch("sender:stop", false); err != nil {
		t.Fatalf("stop: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if len(tr.writes()) != before {
		t.Fatalf("writes after non-forced stop = %v, want none added", tr.writes()[before:])
	}
}

// TestSenderLoadStopsRunningWorkflow covers the concrete failure
// scenario from the review: loading a new program mid-run must not
// leave the Workflow in Running, or the next firmware `ok` would start
// auto-streaming the freshly loaded program with no sender:start ever
// issued.
func TestSenderLoadStopsRunningWorkflow(t *testing.T) {
	c, _ := newTestController(t, dialect.Grbl, false)
	c.forceReadyForTest()

	if err := c.Dispatch("sender:load", "prog.nc", "G0 X0\nG0 X1"); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := c.Dispatch("sender:start"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if state, _, _ := c.State(); state != types.WorkflowRunning {
		t.Fatalf("workflow state = %v, want Running before reload", state)
	}

	if err := c.Dispatch("sender:load", "prog2.nc", "G0 Y0"); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if state, _, _ := c.State(); state != types.WorkflowIdle {
		t.Fatalf("workflow state = %v, want Idle after loading a new program", state)
	}
}

// TestSenderUnloadStopsWorkflow covers the same requirement for unload.
func TestSenderUnloadStopsWorkflow(t *testing.T) {
	c, _ := newTestController(t, dialect.Grbl, false)
	c.forceReadyForTest()

	if err := c.Dispatch("sender:load", "prog.nc", "G0 X0"); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := c.Dispatch("sender:start"); err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := c.Dispatch("sender:unload"); err != nil {
		t.Fatalf("unload: %v", err)
	}
	if state, _, _ := c.State(); state != types.WorkflowIdle {
		t.Fatalf("workflow state = %v, want Idle after unload", state)
	}
}

// TestSenderStartResetsPendingFeederQueue covers the concrete failure
// scenario for the missing Feeder.Reset() on sender:start: an ad-hoc
// jog line queued before the run must not leak onto the wire once the
// program starts streaming.
func TestSenderStartResetsPendingFeederQueue(t *testing.T) {
	c, tr := newTestController(t, dialect.Grbl, false)
	c.forceReadyForTest()

	c.feeder.Feed([]string{"G0 Z5"}, types.ExpressionContext{})
	if c.feeder.Size() != 1 {
		t.Fatalf("feeder size = %d, want 1 before start", c.feeder.Size())
	}

	if err := c.Dispatch("sender:load", "prog.nc", "G0 X0"); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := c.Dispatch("sender:start"); err != nil {
		t.Fatalf("start: %v", err)
	}

	if c.feeder.Size() != 0 {
		t.Fatalf("feeder size = %d, want 0 after sender:start", c.feeder.Size())
	}
	want := []string{"G0 X0\n", "G4 P0.5\n"}
	if got := tr.writes(); !reflect.DeepEqual(got, want) {
		t.Fatalf("writes = %v, want %v (stale jog line must not interleave)", got, want)
	}
}

// TestSenderPauseWritesFeedHold covers "sender:pause — Workflow pause;
// Grbl/Smoothie also send !."
func TestSenderPauseWritesFeedHold(t *testing.T) {
	c, tr := newTestController(t, dialect.Grbl, false)
	c.forceReadyForTest()

	if err := c.Dispatch("sender:load", "prog.nc", "G0 X0\nG0 X1"); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := c.Dispatch("sender:start"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := c.Dispatch("sender:pause"); err != nil {
		t.Fatalf("pause: %v", err)
	}

	if tr.lastWrite() != string([]byte{'!'}) {
		t.Fatalf("last write = %q, want feed-hold byte", tr.lastWrite())
	}
	if state, _, _ := c.State(); state != types.WorkflowPaused {
		t.Fatalf("workflow state = %v, want Paused", state)
	}
}

// TestFeedholdPublishesEventAndWritesByte covers "feedhold /
// cyclestart — fire event trigger; Grbl/Smoothie send !/~.", the gap
// EventTrigger's feedhold/cyclestart reactions depend on.
func TestFeedholdPublishesEventAndWritesByte(t *testing.T) {
	c, tr := newTestController(t, dialect.Grbl, false)

	var mu sync.Mutex
	var fired bool
	c.bus.Subscribe(event.FeedHold, func(event.Event) {
		mu.Lock()
		fired = true
		mu.Unlock()
	})

	if err := c.Dispatch("feedhold"); err != nil {
		t.Fatalf("feedhold: %v", err)
	}

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return fired
	})
	if tr.lastWrite() != string([]byte{'!'}) {
		t.Fatalf("last write = %q, want feed-hold byte", tr.lastWrite())
	}
}

// TestCyclestartPublishesEventAndWritesByte mirrors
// TestFeedholdPublishesEventAndWritesByte for cyclestart/~.
func TestCyclestartPublishesEventAndWritesByte(t *testing.T) {
	c, tr := newTestController(t, dialect.Grbl, false)

	var mu sync.Mutex
	var fired bool
	c.bus.Subscribe(event.CycleStart, func(event.Event) {
		mu.Lock()
		fired = true
		mu.Unlock()
	})

	if err := c.Dispatch("cyclestart"); err != nil {
		t.Fatalf("cyclestart: %v", err)
	}

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return fired
	})
	if tr.lastWrite() != string([]byte{'~'}) {
		t.Fatalf("last write = %q, want cycle-start byte", tr.lastWrite())
	}
}

// TestHomingPublishesEvent covers the same gap for homing.
func TestHomingPublishesEvent(t *testing.T) {
	c, tr := newTestController(t, dialect.Grbl, false)

	var mu sync.Mutex
	var fired bool
	c.bus.Subscribe(event.Homing, func(event.Event) {
		mu.Lock()
		fired = true
		mu.Unlock()
	})

	if err := c.Dispatch("homing"); err != nil {
		t.Fatalf("homing: %v", err)
	}

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return fired
	})
	if tr.lastWrite() != "$H\n" {
		t.Fatalf("last write = %q, want $H", tr.lastWrite())
	}
}

// TestSleepPublishesEvent covers the same gap for sleep, on a dialect
// (Marlin) that actually supports it.
func TestSleepPublishesEvent(t *testing.T) {
	c, tr := newTestController(t, dialect.Marlin, false)

	var mu sync.Mutex
	var fired bool
	c.bus.Subscribe(event.Sleep, func(event.Event) {
		mu.Lock()
		fired = true
		mu.Unlock()
	})

	if err := c.Dispatch("sleep"); err != nil {
		t.Fatalf("sleep: %v", err)
	}

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return fired
	})
	if tr.lastWrite() != "M18\n" {
		t.Fatalf("last write = %q, want M18", tr.lastWrite())
	}
}

// TestResetStopsWorkflowAndWritesSoftReset covers "reset — Workflow
// stop, Feeder reset; Grbl/Smoothie send 0x18."
func TestResetStopsWorkflowAndWritesSoftReset(t *testing.T) {
	c, tr := newTestController(t, dialect.Grbl, false)
	c.forceReadyForTest()

	if err := c.Dispatch("sender:load", "prog.nc", "G0 X0\nG0 X1"); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := c.Dispatch("sender:start"); err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := c.Dispatch("reset"); err != nil {
		t.Fatalf("reset: %v", err)
	}

	if state, _, _ := c.State(); state != types.WorkflowIdle {
		t.Fatalf("workflow state = %v, want Idle after reset", state)
	}
	if tr.lastWrite() != string([]byte{0x18}) {
		t.Fatalf("last write = %q, want soft-reset byte", tr.lastWrite())
	}
}

// TestResetFallsBackToM112OnMarlin covers "Marlin send M112" for
// reset, since Marlin.Realtime is all-zero and has no soft-reset byte.
func TestResetFallsBackToM112OnMarlin(t *testing.T) {
	c, tr := newTestController(t, dialect.Marlin, false)
	c.forceReadyForTest()

	if err := c.Dispatch("reset"); err != nil {
		t.Fatalf("reset: %v", err)
	}

	if tr.lastWrite() != "M112\n" {
		t.Fatalf("last write = %q, want M112", tr.lastWrite())
	}
}
