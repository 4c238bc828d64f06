// Package runner implements the per-firmware LineRunner: a stateless
// line tokenizer with a small mutable model of last-known settings,
// modal state, and position. Grbl's status-line parsing is grounded on
// jes-pugsender's Grbl.ParseStatus (regex-split key:value pairs,
// V4d position tracking); TinyG's queue-report framing is grounded on
// johnlauer-serial-port-json-server's BufferflowTinygPktMode (JSON
// packet-counter regexes over an accumulated read buffer).
package runner

import "github.com/cheton/cnc/internal/types"

// Kind identifies which typed event a parsed line produced.
type Kind string

const (
	KindOK          Kind = "ok"
	KindError       Kind = "error"
	KindAlarm       Kind = "alarm"
	KindOthers      Kind = "others"
	KindStatus      Kind = "status"
	KindParserState Kind = "parserstate"
	KindParameters  Kind = "parameters"
	KindSettings    Kind = "settings"
	KindStartup     Kind = "startup"
	KindQR          Kind = "qr"
	KindSR          Kind = "sr"
	KindRX          Kind = "rx"
	KindMarlinStart Kind = "start"
	KindFirmware    Kind = "firmware"
	KindPosition    Kind = "pos"
	KindTemperature Kind = "temperature"
	KindEcho        Kind = "echo"
)

// Position is a 4-axis machine or work position.
type Position struct {
	X, Y, Z, A float64
}

func (p Position) Sub(o Position) Position {
	return Position{p.X - o.X, p.Y - o.Y, p.Z - o.Z, p.A - o.A}
}

func (p Position) Add(o Position) Position {
	return Position{p.X + o.X, p.Y + o.Y, p.Z + o.Z, p.A + o.A}
}

// StatusReport is the Grbl/Smoothie `<...>` real-time status line.
type StatusReport struct {
	MachineState string
	MPos, WPos   Position
	WCO          Position
	Buf          struct{ Planner, RX int }
	Overrides    struct{ Feed, Rapid, Spindle float64 }
	FeedRate     float64
	SpindleSpeed float64
	Pins         string
	Probe        bool
}

// ErrorInfo is a parsed `error:<code>` line.
type ErrorInfo struct {
	Code    int
	Message string
	Raw     string
}

// AlarmInfo is a parsed `ALARM:<code>` line.
type AlarmInfo struct {
	Code int
	Raw  string
}

// SettingLine is one `$N=value` line.
type SettingLine struct {
	Name  int
	Value float64
}

// StartupInfo is Grbl/Smoothie's banner line.
type StartupInfo struct {
	Firmware string
	Version  string
	Message  string
}

// QueueReport is TinyG/g2core's `qr` queue-depth report.
type QueueReport struct {
	QR, QI, QO int
}

// TemperatureReport is Marlin's `M105` reply.
type TemperatureReport struct {
	Extruder struct {
		Deg, DegTarget float64
		Power          int
	}
	HeatedBed struct {
		Deg, DegTarget float64
	}
	Wait bool
}

// FirmwareInfo is Marlin's `M115` reply.
type FirmwareInfo struct {
	FirmwareName    string
	ProtocolVersion string
	MachineType     string
	ExtruderCount   int
	UUID            string
}

// Event is the typed result of parsing one inbound line.
type Event struct {
	Kind        Kind
	Raw         string
	Status      *StatusReport
	Error       *ErrorInfo
	Alarm       *AlarmInfo
	Setting     *SettingLine
	Startup     *StartupInfo
	QueueReport *QueueReport
	Position    *Position
	Temperature *TemperatureReport
	Firmware    *FirmwareInfo
	ParserState string // raw modal-state text; parsing beyond grouping is out of scope
}

// ModalGroup is the currently-active set of G-code modes tracked from
// parserstate/firmware replies. Only fields the core reasons about
// (M0/M1/M6 detection lives in exprctx, not here) are kept.
type ModalGroup struct {
	Motion    string
	WCS       string
	Plane     string
	Units     string
	Distance  string
	Feedrate  string
	Program   string
	Spindle   string
	Coolant   string
	Tool      string
}

// LineRunner tokenizes inbound lines for one firmware dialect and keeps
// the last-known settings/modal-state/position model.
type LineRunner interface {
	Parse(line string) Event

	IsIdle() bool
	IsAlarm() bool
	ModalGroup() ModalGroup
	MachinePosition() Position
	WorkPosition() Position
	Tool() string
}

// firmwareKind implemented by each dialect's runner for logging/tagging.
type firmwareKind interface {
	Kind() types.FirmwareKind
}
