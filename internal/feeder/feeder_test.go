package feeder

import (
	"testing"

	"github.com/cheton/cnc/internal/types"
)

func TestFeederEmitsQueuedLine(t *testing.T) {
	f := New()
	var got string
	f.OnData = func(line string, _ types.ExpressionContext) { got = line }

	f.Feed([]string{"G0 X10"}, nil)
	ok, err := f.Next()
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if !ok {
		t.Fatal("expected Next to report it emitted something")
	}
	if got != "G0 X10" {
		t.Fatalf("emitted = %q, want %q", got, "G0 X10")
	}
	if f.Size() != 0 {
		t.Fatalf("size = %d, want 0", f.Size())
	}
}

func TestFeederSkipsAssignmentOnlyLines(t *testing.T) {
	f := New()
	var calls int
	f.OnData = func(line string, _ types.ExpressionContext) { calls++ }

	f.Feed([]string{"%speed = 100", "G1 F[speed]"}, nil)
	ok, err := f.Next()
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if !ok {
		t.Fatal("expected Next to drain past the assignment and emit the next line")
	}
	if calls != 1 {
		t.Fatalf("OnData called %d times, want 1", calls)
	}
}

func TestFeederM0RaisesHold(t *testing.T) {
	f := New()
	var held types.HoldReason
	f.OnHold = func(reason types.HoldReason) { held = reason }

	f.Feed([]string{"M0", "G0 X0"}, nil)
	ok, err := f.Next()
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if !ok {
		t.Fatal("expected M0 line itself to be emitted")
	}
	if held.Data != "M0" {
		t.Fatalf("held reason = %+v, want Data=M0", held)
	}

	// While held, Next must not drain further.
	ok, err = f.Next()
	if err != nil {
		t.Fatalf("next while held: %v", err)
	}
	if ok {
		t.Fatal("expected Next to be a no-op while held")
	}
	if f.Size() != 1 {
		t.Fatalf("size while held = %d, want 1 (queue untouched)", f.Size())
	}

	f.Unhold()
	ok, err = f.Next()
	if err != nil {
		t.Fatalf("next after unhold: %v", err)
	}
	if !ok {
		t.Fatal("expected the remaining line to emit after unhold")
	}
}

func TestFeederResetClearsQueueAndHold(t *testing.T) {
	f := New()
	f.Feed([]string{"M0", "G0 X0"}, nil)
	f.Next()
	if !f.Status().Hold {
		t.Fatal("expected feeder to be held after M0")
	}
	f.Reset()
	st := f.Status()
	if st.Hold || st.Size != 0 {
		t.Fatalf("status after reset = %+v, want zero", st)
	}
}
