// Package trigger implements EventTrigger: named machine events
// (startup, connection open/close, sender lifecycle, feedhold,
// cyclestart, homing, sleep, macro run/load) mapped to configured
// reactions, either a shell command or a batch of G-code re-fed into
// the controller. Shell-command spawning follows
// sa6mwa-centaurx/internal/codex/runner.go's
// exec.CommandContext(ctx, bin, args...) shape; it spawns commands
// with the standard library's os/exec rather than a pack dependency,
// since none of the retrieved repos wire a process
// supervisor (like creack/pty) worth adopting for a single fire-and-
// forget command per event.
package trigger

import (
	"context"
	"log/slog"
	"os/exec"
	"time"

	"github.com/cheton/cnc/internal/event"
)

// Name identifies a triggerable machine event.
type Name string

const (
	Startup         Name = "startup"
	ControllerReady Name = "controller:ready"
	ConnectionOpen  Name = "connection:open"
	ConnectionClose Name = "connection:close"
	SenderLoad      Name = "sender:load"
	SenderUnload    Name = "sender:unload"
	SenderStart     Name = "sender:start"
	SenderStop      Name = "sender:stop"
	SenderPause     Name = "sender:pause"
	SenderResume    Name = "sender:resume"
	FeedHold        Name = "feedhold"
	CycleStart      Name = "cyclestart"
	Homing          Name = "homing"
	Sleep           Name = "sleep"
	MacroRun        Name = "macro:run"
	MacroLoad       Name = "macro:load"
)

// Reaction is one configured response to a Name firing.
type Reaction struct {
	Event   Name     `mapstructure:"event"`
	Trigger string   `mapstructure:"trigger"` // "system" or "gcode"
	Command string   `mapstructure:"command"` // shell command, when Trigger == "system"
	GCode   []string `mapstructure:"gcode"`   // lines to feed, when Trigger == "gcode"
}

// GCodeSink is the narrow interface a Controller exposes so a
// gcode-type reaction can feed lines back in without EventTrigger
// holding a full Controller reference (spec.md's Redesign Flags call
// for no parent pointers anywhere in this graph).
type GCodeSink interface {
	Command(ident string, lines []string) error
}

// EventTrigger dispatches configured reactions when its subscribed
// events fire on the bus.
type EventTrigger struct {
	reactions map[Name][]Reaction
	sink      GCodeSink
	logger    *slog.Logger
	timeout   time.Duration
}

// New builds an EventTrigger scoped to one connection ident: it groups
// reactions by event name and subscribes to bus for every event type
// that appears in reactions, filtering to events concerning ident so a
// trigger configured against one connection never fires its sink
// against another connection's Feeder.
func New(bus *event.Bus, ident string, reactions []Reaction, sink GCodeSink, logger *slog.Logger) *EventTrigger {
	t := &EventTrigger{
		reactions: make(map[Name][]Reaction),
		sink:      sink,
		logger:    logger.With("component", "trigger", "ident", ident),
		timeout:   10 * time.Second,
	}
	for _, r := range reactions {
		t.reactions[r.Event] = append(t.reactions[r.Event], r)
	}

	for _, pair := range nameToBusType {
		if _, ok := t.reactions[pair.name]; !ok {
			continue
		}
		name := pair.name
		bus.Subscribe(pair.busType, func(e event.Event) {
			if e.Ident == ident {
				t.fire(name, e.Ident)
			}
		})
	}
	return t
}

var nameToBusType = []struct {
	name    Name
	busType event.Type
}{
	{Startup, event.Startup},
	{ControllerReady, event.ControllerReady},
	{ConnectionOpen, event.ConnectionOpen},
	{ConnectionClose, event.ConnectionClose},
	{SenderLoad, event.SenderLoad},
	{SenderUnload, event.SenderUnload},
	{SenderStart, event.SenderStart},
	{SenderStop, event.SenderStop},
	{SenderPause, event.SenderPause},
	{SenderResume, event.SenderResume},
	{FeedHold, event.FeedHold},
	{CycleStart, event.CycleStart},
	{Homing, event.Homing},
	{Sleep, event.Sleep},
	{MacroRun, event.MacroRun},
	{MacroLoad, event.MacroLoad},
}

func (t *EventTrigger) fire(name Name, ident string) {
	for _, r := range t.reactions[name] {
		r := r
		switch r.Trigger {
		case "system":
			go t.runShell(ident, r.Command)
		default:
			if err := t.sink.Command(ident, r.GCode); err != nil {
				t.logger.Error("trigger gcode reaction failed", "event", name, "ident", ident, "error", err)
			}
		}
	}
}

func (t *EventTrigger) runShell(ident, command string) {
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.logger.Error("trigger shell command failed", "ident", ident, "command", command, "error", err, "output", string(out))
		return
	}
	t.logger.Info("trigger shell command ran", "ident", ident, "command", command)
}
