// Package types holds the data model shared across the CNC control core:
// connection identity, per-connection controller state, and the small
// value types Feeder/Sender pass between each other.
package types

import "time"

// TransportKind selects the byte-level transport a connection uses.
type TransportKind string

const (
	TransportSerial TransportKind = "serial"
	TransportTCP    TransportKind = "tcp"
)

// FirmwareKind identifies which dialect a controller speaks.
type FirmwareKind string

const (
	Grbl       FirmwareKind = "Grbl"
	Smoothie   FirmwareKind = "Smoothie"
	TinyG      FirmwareKind = "TinyG"
	Marlin     FirmwareKind = "Marlin"
	UnknownFW  FirmwareKind = ""
)

// ConnectionDescriptor identifies one open connection. Ident is derived
// deterministically from Kind+Options and is the handle clients pass
// back on every subsequent operation.
type ConnectionDescriptor struct {
	Kind    TransportKind
	Ident   string
	Path    string // serial device path, e.g. /dev/ttyUSB0
	Baud    int    // serial baud rate
	Host    string // tcp host
	Port    int    // tcp port
}

// WorkflowState is the three-state program lifecycle FSM state.
type WorkflowState string

const (
	WorkflowIdle    WorkflowState = "Idle"
	WorkflowRunning WorkflowState = "Running"
	WorkflowPaused  WorkflowState = "Paused"
)

// StreamingProtocol names the flow-control strategy a Sender uses to
// keep a firmware's input buffer from overflowing.
type StreamingProtocol string

const (
	SendResponse  StreamingProtocol = "send-response"  // Marlin
	CharCounting  StreamingProtocol = "char-counting"   // Grbl, Smoothie
	QueueReport   StreamingProtocol = "queue-report"    // TinyG/g2core
)

// StreamingDescriptor parameterizes a Sender's flow-control strategy.
type StreamingDescriptor struct {
	Protocol   StreamingProtocol
	BufferSize int // firmware input buffer size in bytes (char-counting)
	WindowSize int // max outstanding lines/packets (queue-report)
}

// HoldReason tags why a Feeder or Sender stopped emitting data.
type HoldReason struct {
	Data string // e.g. "M0", "M1", "M6"
	Err  string // set when the hold was raised by a protocol error
}

func (r HoldReason) IsZero() bool { return r.Data == "" && r.Err == "" }

// ExpressionContext is the immutable snapshot of identifiers exposed to
// inline `[expr]` substitution and `%expr` assignment. Callers build a
// fresh copy per translate() call; translate never mutates its input.
type ExpressionContext map[string]interface{}

// Clone returns a shallow copy safe for a callee to extend.
func (c ExpressionContext) Clone() ExpressionContext {
	out := make(ExpressionContext, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// FeederItem is one queued ad-hoc command line together with the
// expression context it was fed with.
type FeederItem struct {
	Line    string
	Context ExpressionContext
}

// SenderStatus is the JSON-serializable snapshot returned by
// Sender.ToJSON and echoed to clients as `sender:status`.
type SenderStatus struct {
	Name       string               `json:"name"`
	Size       int                  `json:"size"`
	Total      int                  `json:"total"`
	Sent       int                  `json:"sent"`
	Received   int                  `json:"received"`
	Hold       bool                 `json:"hold"`
	HoldReason *HoldReason          `json:"holdReason,omitempty"`
	SP         StreamingDescriptor  `json:"sp"`
	Context    ExpressionContext    `json:"context,omitempty"`
	StartTime  int64                `json:"startTime,omitempty"`
	FinishTime int64                `json:"finishTime,omitempty"`
}

// FeederStatus is the JSON-serializable snapshot echoed as `feeder:status`.
type FeederStatus struct {
	Size    int  `json:"size"`
	Hold    bool `json:"hold"`
	Pending bool `json:"pending"`
}

// NowMillis is the wall-clock helper used for finishTime bookkeeping.
func NowMillis() int64 { return time.Now().UnixMilli() }
