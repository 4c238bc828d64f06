package sender

import (
	"testing"
	"time"

	"github.com/cheton/cnc/internal/types"
)

func recvLine(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case line := <-ch:
		return line
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for emitted line")
		return ""
	}
}

func TestSenderSendResponseAllowsOneOutstanding(t *testing.T) {
	s := New(types.StreamingDescriptor{Protocol: types.SendResponse})
	lines := make(chan string, 8)
	s.OnData = func(line string, _ types.ExpressionContext) { lines <- line }

	if err := s.Load("job.nc", "G0 X10\nG0 Y10", nil); err != nil {
		t.Fatalf("load: %v", err)
	}

	if err := s.Next(); err != nil {
		t.Fatalf("next: %v", err)
	}
	if got := recvLine(t, lines); got != "G0 X10" {
		t.Fatalf("first emitted = %q, want %q", got, "G0 X10")
	}
	select {
	case extra := <-lines:
		t.Fatalf("unexpected second emission before ack: %q", extra)
	case <-time.After(50 * time.Millisecond):
	}

	s.Ack()
	if err := s.Next(); err != nil {
		t.Fatalf("next after ack: %v", err)
	}
	if got := recvLine(t, lines); got != "G0 Y10" {
		t.Fatalf("second emitted = %q, want %q", got, "G0 Y10")
	}

	s.Ack()
	if err := s.Next(); err != nil {
		t.Fatalf("next after second ack: %v", err)
	}
	if got := recvLine(t, lines); got != "G4 P0.5" {
		t.Fatalf("terminal wait line emitted = %q, want %q", got, "G4 P0.5")
	}

	status := s.ToJSON()
	if !status.Hold || status.HoldReason == nil || status.HoldReason.Data != "wait" {
		t.Fatalf("status after wait line = %+v, want a wait hold", status)
	}

	finished := make(chan int64, 1)
	s.OnEnd = func(t int64) { finished <- t }
	s.Ack()

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for OnEnd")
	}

	final := s.ToJSON()
	if final.Hold {
		t.Fatal("expected the wait hold to clear once the last ack drains")
	}
	if final.Sent != final.Received || final.Received != final.Total {
		t.Fatalf("final status = %+v, want sent == received == total", final)
	}
}

func TestSenderCharCountingRespectsBufferSize(t *testing.T) {
	s := New(types.StreamingDescriptor{Protocol: types.CharCounting, BufferSize: 10})
	lines := make(chan string, 8)
	s.OnData = func(line string, _ types.ExpressionContext) { lines <- line }

	// Each of these 5-byte lines is 6 bytes on the wire including its
	// LF; two of them (12 bytes) don't fit under a 10-byte buffer, so
	// only one may be outstanding at a time.
	if err := s.Load("job.nc", "G0 X1\nG0 X2", nil); err != nil {
		t.Fatalf("load: %v", err)
	}

	if err := s.Next(); err != nil {
		t.Fatalf("next: %v", err)
	}
	recvLine(t, lines)

	select {
	case <-lines:
		t.Fatal("second line should not fit before the first is acked")
	case <-time.After(50 * time.Millisecond):
	}

	s.Ack()
	if err := s.Next(); err != nil {
		t.Fatalf("next after ack: %v", err)
	}
	recvLine(t, lines)
}

func TestSenderAssignmentOnlyLineConsumesNoBudget(t *testing.T) {
	s := New(types.StreamingDescriptor{Protocol: types.SendResponse})
	lines := make(chan string, 8)
	s.OnData = func(line string, _ types.ExpressionContext) { lines <- line }

	if err := s.Load("job.nc", "%feed = 500\nG1 F[feed]", nil); err != nil {
		t.Fatalf("load: %v", err)
	}

	if err := s.Next(); err != nil {
		t.Fatalf("next: %v", err)
	}
	// The assignment line consumes no wire budget, so Next should drain
	// straight through it to the first real line.
	if got := recvLine(t, lines); got != "G1 F500" {
		t.Fatalf("emitted = %q, want %q", got, "G1 F500")
	}
}

func TestSenderQueueReportWindow(t *testing.T) {
	s := New(types.StreamingDescriptor{Protocol: types.QueueReport, WindowSize: 1})
	lines := make(chan string, 8)
	s.OnData = func(line string, _ types.ExpressionContext) { lines <- line }

	if err := s.Load("job.nc", "G0 X1\nG0 X2", nil); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := s.Next(); err != nil {
		t.Fatalf("next: %v", err)
	}
	recvLine(t, lines)

	select {
	case <-lines:
		t.Fatal("window of 1 should block a second outstanding line")
	case <-time.After(50 * time.Millisecond):
	}

	// A qr report freeing one slot should let the next line through.
	s.ApplyQueueReport(1)
	if err := s.Next(); err != nil {
		t.Fatalf("next after queue report: %v", err)
	}
	recvLine(t, lines)
}

func TestSenderRewindResetsCounters(t *testing.T) {
	s := New(types.StreamingDescriptor{Protocol: types.SendResponse})
	s.OnData = func(line string, _ types.ExpressionContext) {}
	if err := s.Load("job.nc", "G0 X1", nil); err != nil {
		t.Fatalf("load: %v", err)
	}
	s.Next()
	time.Sleep(20 * time.Millisecond)

	s.Rewind()
	status := s.ToJSON()
	if status.Sent != 0 || status.Received != 0 {
		t.Fatalf("status after rewind = %+v, want sent=received=0", status)
	}
}
