// Package controller implements Controller<Dialect>: the composition
// of Transport, LineRunner, Feeder, Sender, Workflow, and query
// dedup described in spec.md §4.6, generalized across all four
// firmware dialects instead of one controller type per firmware. Its
// single-threaded event loop (spec.md §5) is grounded on
// mastercactapus-cncgui/spjs's Controller+Port composition (one
// mutex-guarded struct wrapping a driver-specific command set), pushed
// further toward a single owning goroutine per the spec's own
// concurrency notes.
package controller

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cheton/cnc/internal/audit"
	"github.com/cheton/cnc/internal/dialect"
	"github.com/cheton/cnc/internal/event"
	"github.com/cheton/cnc/internal/exprctx"
	"github.com/cheton/cnc/internal/feeder"
	"github.com/cheton/cnc/internal/fsm"
	"github.com/cheton/cnc/internal/runner"
	"github.com/cheton/cnc/internal/schedule"
	"github.com/cheton/cnc/internal/sender"
	"github.com/cheton/cnc/internal/transport"
	"github.com/cheton/cnc/internal/types"
)

const (
	tickInterval          = 250 * time.Millisecond
	statusQueryTimeout    = 5 * time.Second
	parserStateTimeout    = 10 * time.Second
	forceStopWait         = 500 * time.Millisecond
	postProgramIdleWindow = 500 * time.Millisecond
)

// Controller owns one open connection to a firmware and everything
// that streams commands to it. All exported methods are safe to call
// from any goroutine; internally they serialize onto the event loop
// mutex so Feeder/Sender/Workflow mutation happens from one logical
// thread, per spec.md §5.
type Controller struct {
	mu sync.Mutex

	Ident   string
	Dialect dialect.Dialect

	transport transport.Transport
	runner    runner.LineRunner
	feeder    *feeder.Feeder
	sender    *sender.Sender
	workflow  *fsm.Workflow

	bus    *event.Bus
	sched  *schedule.TickScheduler
	audit  *audit.Log
	logger *slog.Logger

	query *queryState

	ready        bool
	settings     map[int]float64
	feederLast   types.FeederStatus
	senderLast   types.SenderStatus
	macros       map[string][]string
	ignoreErrors bool

	machineState string
	lastStatus   *runner.StatusReport

	// replyStatusReport/replyParserState are set by Write/Writeln when
	// the client explicitly asks for `?`/`$G`; the next matching status
	// or parser-state event is echoed to the client and the flag
	// cleared. The periodic polling tick's own queries still go out on
	// the wire, but their replies are not echoed (spec.md §4.6).
	replyStatusReport bool
	replyParserState  bool
}

// New builds a Controller for one connection. Open must be called
// before any command is dispatched.
func New(ident string, d dialect.Dialect, t transport.Transport, bus *event.Bus, sched *schedule.TickScheduler, auditLog *audit.Log, macros map[string][]string, ignoreErrors bool, logger *slog.Logger) *Controller {
	c := &Controller{
		Ident:        ident,
		Dialect:      d,
		transport:    t,
		runner:       d.NewRunner(),
		feeder:       feeder.New(),
		sender:       sender.New(d.Streaming),
		workflow:     fsm.New(ident),
		bus:          bus,
		sched:        sched,
		audit:        auditLog,
		settings:     make(map[int]float64),
		macros:       macros,
		ignoreErrors: ignoreErrors,
		logger:       logger.With("component", "controller", "ident", ident, "dialect", string(d.Name)),
	}
	c.query = newQueryState(c)
	c.wire()
	return c
}

// wire connects Feeder/Sender callbacks to the wire and to the bus,
// and registers Workflow transition callbacks that arrange the
// Feeder/Sender side effects spec.md §4.5 assigns to the Controller.
func (c *Controller) wire() {
	c.feeder.OnData = func(line string, _ types.ExpressionContext) { c.writeLine(line, "feeder") }
	c.feeder.OnHold = func(reason types.HoldReason) {
		c.publish(event.FeedHold, reason)
	}
	c.feeder.OnUnhold = func() {}

	c.sender.OnData = func(line string, _ types.ExpressionContext) { c.writeLine(line, "sender") }
	c.sender.OnStart = func(t int64) { c.publish(event.SenderStart, t) }
	c.sender.OnEnd = func(t int64) {
		c.publish(event.SenderStop, t)
		c.logger.Info("program finished")
	}
	c.sender.OnHold = func(reason types.HoldReason) { c.publish(event.SenderPause, reason) }
	c.sender.OnUnhold = func() { c.publish(event.SenderResume, nil) }
	c.sender.OnWorkflowPause = func(reason types.HoldReason) {
		if err := c.workflow.Pause(reason); err != nil {
			c.logger.Warn("workflow pause from sender rejected", "error", err)
		}
	}

	c.workflow.RegisterCallback(types.WorkflowRunning, func(ident string, _ types.HoldReason) {
		c.sender.SetPaused(false)
		c.publishWorkflowState()
		_ = c.sender.Next()
	})
	c.workflow.RegisterCallback(types.WorkflowPaused, func(ident string, reason types.HoldReason) {
		c.sender.SetPaused(true)
		c.publishWorkflowState()
	})
	c.workflow.RegisterCallback(types.WorkflowIdle, func(ident string, _ types.HoldReason) {
		c.sender.Rewind()
		c.feeder.Reset()
		c.sender.SetPaused(false)
		c.publishWorkflowState()
	})
}

func (c *Controller) publishWorkflowState() {
	c.publish(event.WorkflowStateEvt, c.workflow.State())
}

func (c *Controller) publish(t event.Type, payload interface{}) {
	c.bus.Publish(event.Event{Type: t, Ident: c.Ident, Payload: payload})
}

// writeLine writes one line plus its LF to the transport, and records
// it to the audit log. source is "feeder" or "sender", used only for
// error-log and audit labeling.
func (c *Controller) writeLine(line, source string) {
	if err := c.transport.Write([]byte(line + "\n")); err != nil {
		c.logger.Error("write failed", "error", err, "source", source)
		return
	}
	c.publish(event.ConnectionWrite, line)
	if c.audit != nil {
		_ = c.audit.Record(c.Ident, audit.KindCommand, "", map[string]string{"line": line, "source": source})
	}
}

// Open starts the transport and the read/tick loops. cb fires once
// with the outcome of the initial connect.
func (c *Controller) Open(cb func(error)) {
	c.transport.Open(func(err error) {
		if err != nil {
			cb(err)
			return
		}
		go c.readLoop()
		c.sched.Every(c.tickID(), tickInterval, c.tick)
		c.publish(event.ConnectionOpen, nil)
		if c.audit != nil {
			_ = c.audit.Record(c.Ident, audit.KindConnectionOpen, "", nil)
		}
		if c.Dialect.OpenHandshakeTimeout > 0 {
			c.sched.After(c.readyID(), c.Dialect.OpenHandshakeTimeout, c.markReady)
		}
		cb(nil)
	})
}

func (c *Controller) tickID() string  { return "tick:" + c.Ident }
func (c *Controller) readyID() string { return "ready:" + c.Ident }

// Close stops the tick loop and closes the transport.
func (c *Controller) Close() error {
	c.sched.Cancel(c.tickID())
	c.sched.Cancel(c.readyID())
	c.query.cancelAll()
	err := c.transport.Close()
	c.publish(event.ConnectionClose, nil)
	if c.audit != nil {
		_ = c.audit.Record(c.Ident, audit.KindConnectionClose, "", nil)
	}
	return err
}

func (c *Controller) readLoop() {
	for {
		select {
		case line, ok := <-c.transport.Lines():
			if !ok {
				return
			}
			c.handleLine(line)
		case err, ok := <-c.transport.Errors():
			if !ok {
				return
			}
			c.publish(event.ConnectionError, err.Error())
			c.logger.Error("transport error", "error", err)
			return
		}
	}
}

// handleLine parses one inbound line and applies the ack-correlation
// logic of spec.md §4.6.
func (c *Controller) handleLine(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ev := c.runner.Parse(line)

	// A `?`/`$G` reply is only echoed to clients when a client
	// explicitly asked for one via Write/Writeln; replies to the periodic
	// polling tick's own queries are not echoed (spec.md §4.6). Every other
	// inbound line is echoed unconditionally.
	echo := true
	switch ev.Kind {
	case runner.KindStatus, runner.KindSR:
		echo = c.replyStatusReport
		c.replyStatusReport = false
	case runner.KindParserState:
		echo = c.replyParserState
		c.replyParserState = false
	}
	if echo {
		c.publish(event.ConnectionRead, line)
	}

	switch ev.Kind {
	case runner.KindOK:
		c.markReadyLocked()
		c.onOk()
	case runner.KindError:
		c.markReadyLocked()
		if c.audit != nil {
			_ = c.audit.Record(c.Ident, audit.KindError, "", ev.Error)
		}
		if c.workflow.State() == types.WorkflowRunning && !c.ignoreErrors {
			reason := types.HoldReason{Err: "error"}
			if ev.Error != nil {
				reason.Err = ev.Error.Raw
			}
			_ = c.workflow.Pause(reason)
		}
		c.onOk() // an error still frees the slot an ok would have
	case runner.KindAlarm:
		if c.audit != nil {
			_ = c.audit.Record(c.Ident, audit.KindAlarm, "", ev.Alarm)
		}
	case runner.KindSettings:
		c.settings[ev.Setting.Name] = ev.Setting.Value
		c.publish(event.ControllerSettings, c.settingsSnapshot())
	case runner.KindStatus:
		c.query.resolve(queryStatus)
		c.machineState = ev.Status.MachineState
		c.lastStatus = ev.Status
		c.publish(event.ControllerState, ev.Status)
	case runner.KindSR:
		c.query.resolve(queryStatus)
		c.machineState = ev.Status.MachineState
		c.lastStatus = ev.Status
		c.publish(event.ControllerState, ev.Status)
	case runner.KindParserState:
		c.query.resolve(queryParserState)
	case runner.KindQR:
		c.sender.ApplyQueueReport(ev.QueueReport.QR)
	case runner.KindStartup, runner.KindMarlinStart:
		c.markReadyLocked()
		c.publish(event.ControllerReady, nil)
	}
}

// onOk implements the Grbl/Smoothie/TinyG ack correlation table:
// during Running it releases a hold once the last outstanding line is
// acked and advances the Sender; during Paused it still drains
// counters but Sender.Next is a no-op while paused (spec.md §4.6).
func (c *Controller) onOk() {
	switch c.workflow.State() {
	case types.WorkflowRunning, types.WorkflowPaused:
		c.sender.Ack()
		_ = c.sender.Next()
	default:
		_, _ = c.feeder.Next()
	}
}

func (c *Controller) markReady() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.markReadyLocked()
}

func (c *Controller) markReadyLocked() {
	if c.ready {
		return
	}
	c.ready = true
	c.publish(event.ControllerType, c.Dialect.Name)
	c.publish(event.ControllerReady, nil)
}

func (c *Controller) settingsSnapshot() map[int]float64 {
	out := make(map[int]float64, len(c.settings))
	for k, v := range c.settings {
		out[k] = v
	}
	return out
}

// tick runs every 250ms: it throttles status/parser-state queries
// through the mini query FSM, republishes feeder/sender status on
// change, and detects post-program idle (spec.md §5).
func (c *Controller) tick() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ready {
		c.query.poll(statusQueryTimeout, parserStateTimeout, c.workflow.State() == types.WorkflowIdle)
	}

	if fs := c.feeder.Status(); fs != c.feederLast {
		c.feederLast = fs
		c.publish(event.FeederStatus, fs)
	}
	if ss := c.sender.ToJSON(); !senderStatusEqual(ss, c.senderLast) {
		c.senderLast = ss
		c.publish(event.SenderStatus, ss)
	}

	if ms, ok := c.sender.FinishedSince(); ok && ms >= postProgramIdleWindow.Milliseconds() && c.workflow.State() == types.WorkflowRunning {
		_ = c.workflow.Stop()
	}
}

func senderStatusEqual(a, b types.SenderStatus) bool {
	return a.Sent == b.Sent && a.Received == b.Received && a.Hold == b.Hold && a.Name == b.Name
}

// Write sends data straight to the transport, bypassing Feeder and
// Sender entirely, per spec.md §6's `write` client op. A bare `?` or
// `$G` arms the matching reply flag so handleLine echoes the very next
// status/parser-state report instead of staying silent for it.
func (c *Controller) Write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.armReplyFlag(string(data))
	if err := c.transport.Write(data); err != nil {
		return err
	}
	c.publish(event.ConnectionWrite, string(data))
	return nil
}

// Writeln is Write with an appended LF, per spec.md §6's `writeln`
// client op, except when data is itself one of the dialect's realtime
// command bytes — those are single-byte, unterminated commands, and
// appending an LF would queue it as a bogus empty line behind it.
func (c *Controller) Writeln(data string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.armReplyFlag(data)
	payload := data
	if !c.isRealtimeByte(data) {
		payload += "\n"
	}
	if err := c.transport.Write([]byte(payload)); err != nil {
		return err
	}
	c.publish(event.ConnectionWrite, data)
	return nil
}

func (c *Controller) armReplyFlag(data string) {
	switch data {
	case "?":
		c.replyStatusReport = true
	case "$G":
		c.replyParserState = true
	}
}

func (c *Controller) isRealtimeByte(data string) bool {
	if len(data) != 1 {
		return false
	}
	b := data[0]
	if b == 0 {
		return false
	}
	rt := c.Dialect.Realtime
	switch b {
	case rt.FeedHold, rt.CycleStart, rt.StatusReport, rt.SoftReset,
		rt.FeedOvReset, rt.FeedOvInc1, rt.FeedOvDec1, rt.FeedOvInc10, rt.FeedOvDec10,
		rt.SpindleOvReset, rt.SpindleOvInc1, rt.SpindleOvDec1, rt.SpindleOvInc10, rt.SpindleOvDec10,
		rt.RapidOvLow, rt.RapidOvMedium, rt.RapidOvFull:
		return true
	default:
		return false
	}
}

// Command feeds gcode lines through the Feeder. It implements
// trigger.GCodeSink so EventTrigger's "gcode" reactions can call back
// into the controller without holding a full reference to it.
func (c *Controller) Command(ident string, lines []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.feeder.Feed(lines, types.ExpressionContext{})
	_, err := c.feeder.Next()
	return err
}

// Dispatch executes one client-protocol command verb against this
// controller, per spec.md §6's command table.
func (c *Controller) Dispatch(cmd string, args ...interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch cmd {
	case "gcode":
		lines, _ := args[0].([]string)
		c.feeder.Feed(lines, types.ExpressionContext{})
		_, err := c.feeder.Next()
		return err

	case "sender:load":
		name, _ := args[0].(string)
		content, _ := args[1].(string)
		if err := c.sender.Load(name, content, types.ExpressionContext{}); err != nil {
			return err
		}
		_ = c.workflow.Stop()
		c.publish(event.SenderLoad, name)
		return nil

	case "sender:unload":
		_ = c.workflow.Stop()
		c.sender.Unload()
		c.publish(event.SenderUnload, nil)
		return nil

	case "sender:start":
		c.feeder.Reset()
		if err := c.workflow.Start(); err != nil {
			return err
		}
		return nil

	case "sender:stop":
		force := argForce(args)
		if err := c.workflow.Stop(); err != nil {
			return err
		}
		return c.forceStop(force)

	case "sender:pause":
		if err := c.workflow.Pause(types.HoldReason{Data: "user"}); err != nil {
			return err
		}
		if c.Dialect.Realtime.FeedHold != 0 {
			return c.writeRealtime(c.Dialect.Realtime.FeedHold)
		}
		return nil

	case "sender:resume":
		if c.Dialect.Realtime.CycleStart != 0 {
			if err := c.writeRealtime(c.Dialect.Realtime.CycleStart); err != nil {
				return err
			}
		}
		if err := c.workflow.Resume(); err != nil {
			return err
		}
		_ = c.sender.Next()
		return nil

	case "feedhold":
		c.publish(event.FeedHold, nil)
		if c.Dialect.Realtime.FeedHold != 0 {
			return c.writeRealtime(c.Dialect.Realtime.FeedHold)
		}
		return nil

	case "cyclestart":
		c.publish(event.CycleStart, nil)
		if c.Dialect.Realtime.CycleStart != 0 {
			return c.writeRealtime(c.Dialect.Realtime.CycleStart)
		}
		return nil

	case "homing":
		if !c.Dialect.SupportsHoming {
			return fmt.Errorf("controller %s: dialect %s does not support homing", c.Ident, c.Dialect.Name)
		}
		c.publish(event.Homing, nil)
		c.feeder.Feed([]string{"$H"}, types.ExpressionContext{})
		_, err := c.feeder.Next()
		return err

	case "unlock":
		if !c.Dialect.SupportsUnlock {
			return fmt.Errorf("controller %s: dialect %s does not support unlock", c.Ident, c.Dialect.Name)
		}
		c.feeder.Feed([]string{"$X"}, types.ExpressionContext{})
		_, err := c.feeder.Next()
		return err

	case "reset":
		_ = c.workflow.Stop()
		if c.Dialect.Realtime.SoftReset != 0 {
			return c.writeRealtime(c.Dialect.Realtime.SoftReset)
		}
		c.feeder.Feed([]string{"M112"}, types.ExpressionContext{})
		_, err := c.feeder.Next()
		return err

	case "sleep":
		if !c.Dialect.SupportsSleep {
			return fmt.Errorf("controller %s: dialect %s does not support sleep", c.Ident, c.Dialect.Name)
		}
		c.publish(event.Sleep, nil)
		c.feeder.Feed([]string{"M18"}, types.ExpressionContext{})
		_, err := c.feeder.Next()
		return err

	case "override:feed", "override:spindle", "override:rapid":
		kind := dialect.OverrideKind(strings.TrimPrefix(cmd, "override:"))
		requested, _ := args[0].(int)
		var clamped int
		switch {
		case requested == 0:
			clamped = 100
		case c.Dialect.ClampOverride != nil:
			clamped = c.Dialect.ClampOverride(kind, requested)
		default:
			clamped = requested
		}
		if err := c.writeOverride(kind, requested, clamped); err != nil {
			return err
		}
		c.publish(event.OverrideChange, map[string]interface{}{"kind": kind, "value": clamped})
		return nil

	case "lasertest":
		power, _ := args[0].(float64)
		duration, _ := args[1].(float64)
		c.feeder.Feed([]string{
			fmt.Sprintf("M3 S%g", power),
			fmt.Sprintf("G4 P%g", duration),
			"M5",
		}, types.ExpressionContext{})
		_, err := c.feeder.Next()
		return err

	case "macro:run":
		name, _ := args[0].(string)
		lines, ok := c.macros[name]
		if !ok {
			return fmt.Errorf("controller %s: unknown macro %q", c.Ident, name)
		}
		c.publish(event.MacroRun, name)
		c.feeder.Feed(lines, types.ExpressionContext{})
		_, err := c.feeder.Next()
		return err

	default:
		return fmt.Errorf("controller %s: unknown command %q", c.Ident, cmd)
	}
}

func (c *Controller) writeRealtime(b byte) error {
	if b == 0 {
		return fmt.Errorf("controller %s: dialect %s has no realtime byte for this command", c.Ident, c.Dialect.Name)
	}
	return c.transport.Write([]byte{b})
}

// writeRealtimeOptional writes b if the dialect defines one for this
// slot, and silently does nothing otherwise. Used for override bytes
// that only some dialects (Grbl/Smoothie) carry a realtime encoding
// for at all.
func (c *Controller) writeRealtimeOptional(b byte) error {
	if b == 0 {
		return nil
	}
	return c.transport.Write([]byte{b})
}

// writeOverride emits the wire command for an override request, per
// spec.md §4.6's per-dialect override encoding. requested is treated
// as a percentage delta (Grbl/Smoothie step it out in 10s and 1s of
// realtime bytes, grounded on jes-pugsender's SendOverrideDelta);
// clamped is the already-range-checked absolute value published in
// the override:change event and, on dialects with no realtime channel,
// sent directly as an M220/M221 argument.
func (c *Controller) writeOverride(kind dialect.OverrideKind, requested, clamped int) error {
	rt := c.Dialect.Realtime
	switch kind {
	case dialect.OverrideRapid:
		switch clamped {
		case 100:
			return c.writeRealtimeOptional(rt.RapidOvFull)
		case 50:
			return c.writeRealtimeOptional(rt.RapidOvMedium)
		default:
			return c.writeRealtimeOptional(rt.RapidOvLow)
		}
	case dialect.OverrideSpindle:
		return c.writeOverrideDelta(requested, clamped, "M221",
			rt.SpindleOvReset, rt.SpindleOvInc10, rt.SpindleOvDec10, rt.SpindleOvInc1, rt.SpindleOvDec1)
	default:
		return c.writeOverrideDelta(requested, clamped, "M220",
			rt.FeedOvReset, rt.FeedOvInc10, rt.FeedOvDec10, rt.FeedOvInc1, rt.FeedOvDec1)
	}
}

// writeOverrideDelta drives the realtime step bytes for a feed/spindle
// override, or falls back to a line-oriented M220/M221 for a dialect
// with no realtime override channel (Marlin, TinyG).
func (c *Controller) writeOverrideDelta(delta, clamped int, mcode string, reset, inc10, dec10, inc1, dec1 byte) error {
	if reset == 0 && inc10 == 0 && dec10 == 0 && inc1 == 0 && dec1 == 0 {
		c.feeder.Feed([]string{fmt.Sprintf("%s S%d", mcode, clamped)}, types.ExpressionContext{})
		_, err := c.feeder.Next()
		return err
	}
	if delta == 0 {
		return c.writeRealtime(reset)
	}
	if delta > 200 {
		delta = 200
	} else if delta < -200 {
		delta = -200
	}
	for delta >= 10 {
		if err := c.writeRealtime(inc10); err != nil {
			return err
		}
		delta -= 10
	}
	for delta <= -10 {
		if err := c.writeRealtime(dec10); err != nil {
			return err
		}
		delta += 10
	}
	for delta >= 1 {
		if err := c.writeRealtime(inc1); err != nil {
			return err
		}
		delta--
	}
	for delta <= -1 {
		if err := c.writeRealtime(dec1); err != nil {
			return err
		}
		delta++
	}
	return nil
}

// argForce extracts the optional `force` flag from sender:stop's args,
// which the client sends either as a bare bool or as {force: bool}.
func argForce(args []interface{}) bool {
	if len(args) == 0 {
		return false
	}
	switch v := args[0].(type) {
	case bool:
		return v
	case map[string]interface{}:
		b, _ := v["force"].(bool)
		return b
	}
	return false
}

// forceStop implements the bounded wait of spec.md §4.5/§4.6: a plain
// stop() just lets the Workflow settle on Idle, but stop({force:true})
// additionally writes the dialect's feed-hold byte immediately (in case
// the firmware is still Running) and, after a 500ms grace period for
// the planner to flush, writes a soft-reset if the firmware is still
// reporting Hold.
func (c *Controller) forceStop(force bool) error {
	if !force {
		return nil
	}
	if b := c.Dialect.Realtime.FeedHold; b != 0 {
		_ = c.transport.Write([]byte{b})
	}
	c.sched.After("forcestop:"+c.Ident, forceStopWait, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if strings.HasPrefix(c.machineState, "Hold") {
			_ = c.writeRealtime(c.Dialect.Realtime.SoftReset)
		}
	})
	return nil
}

// State returns a client-facing snapshot for controller:state.
func (c *Controller) State() (types.WorkflowState, types.FeederStatus, types.SenderStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.workflow.State(), c.feeder.Status(), c.sender.ToJSON()
}

// Settings returns the most recently reported `$N=value` snapshot, for
// a newly subscribed client's controller:settings replay.
func (c *Controller) Settings() map[int]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settingsSnapshot()
}

// MachineState returns the last reported firmware machine state (e.g.
// "Idle", "Run", "Hold"), or "" before the first status report.
func (c *Controller) MachineState() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.machineState
}

// Ready reports whether the open handshake has completed.
func (c *Controller) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

// LastStatus returns the most recently reported status report, or nil
// before the firmware has sent one, for a newly subscribed client's
// controller:state replay.
func (c *Controller) LastStatus() *runner.StatusReport {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastStatus
}

// Translate exposes exprctx.Translate so callers building a %expr
// preview (e.g. a client "evaluate" affordance) share the exact
// semantics the Feeder/Sender use, without duplicating the parser.
func Translate(line string, ctx types.ExpressionContext) (exprctx.Result, error) {
	return exprctx.Translate(line, ctx)
}
