package trigger

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/cheton/cnc/internal/event"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeSink records every Command call a gcode-type reaction makes.
type fakeSink struct {
	mu    sync.Mutex
	calls [][]string
}

func (f *fakeSink) Command(ident string, lines []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, lines)
	return nil
}

func (f *fakeSink) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
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

func TestGCodeReactionFiresOnMatchingEvent(t *testing.T) {
	bus := event.NewBus()
	sink := &fakeSink{}
	reactions := []Reaction{
		{Event: ConnectionOpen, Trigger: "gcode", GCode: []string{"G28"}},
	}
	New(bus, "ident-a", reactions, sink, testLogger())

	bus.Publish(event.Event{Type: event.ConnectionOpen, Ident: "ident-a"})

	waitUntil(t, time.Second, func() bool { return sink.callCount() == 1 })

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.calls[0]) != 1 || sink.calls[0][0] != "G28" {
		t.Fatalf("call = %v, want [G28]", sink.calls[0])
	}
}

func TestReactionScopedToItsOwnIdent(t *testing.T) {
	bus := event.NewBus()
	sink := &fakeSink{}
	reactions := []Reaction{
		{Event: ConnectionOpen, Trigger: "gcode", GCode: []string{"G28"}},
	}
	New(bus, "ident-a", reactions, sink, testLogger())

	bus.Publish(event.Event{Type: event.ConnectionOpen, Ident: "ident-b"})

	time.Sleep(50 * time.Millisecond)
	if sink.callCount() != 0 {
		t.Fatalf("call count = %d, want 0 for a different ident", sink.callCount())
	}
}

func TestUnconfiguredEventNeverSubscribed(t *testing.T) {
	bus := event.NewBus()
	sink := &fakeSink{}
	New(bus, "ident-a", nil, sink, testLogger())

	bus.Publish(event.Event{Type: event.ConnectionOpen, Ident: "ident-a"})

	time.Sleep(50 * time.Millisecond)
	if sink.callCount() != 0 {
		t.Fatalf("call count = %d, want 0 with no reactions configured", sink.callCount())
	}
}

func TestSystemReactionRunsShellCommand(t *testing.T) {
	bus := event.NewBus()
	sink := &fakeSink{}
	reactions := []Reaction{
		{Event: ConnectionOpen, Trigger: "system", Command: "true"},
	}
	New(bus, "ident-a", reactions, sink, testLogger())

	bus.Publish(event.Event{Type: event.ConnectionOpen, Ident: "ident-a"})

	// The shell reaction runs in its own goroutine and never calls the
	// sink; this only confirms it doesn't also fire the gcode path.
	time.Sleep(100 * time.Millisecond)
	if sink.callCount() != 0 {
		t.Fatalf("system reaction unexpectedly called the gcode sink")
	}
}
