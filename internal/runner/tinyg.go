package runner

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/cheton/cnc/internal/types"
)

// tinygQrRe / tinygSrRe etc. pick fields out of TinyG/g2core's JSON status lines
// without a full JSON decode, the same shortcut
// johnlauer-serial-port-json-server's BufferflowTinygPktMode takes
// (regex over the raw line rather than unmarshalling into a struct) so
// a runner never has to guess at TinyG's full JSON schema.
var (
	tinygQrRe  = regexp.MustCompile(`"qr":(\d+)`)
	tinygQiRe  = regexp.MustCompile(`"qi":(\d+)`)
	tinygQoRe  = regexp.MustCompile(`"qo":(\d+)`)
	tinygRxRe  = regexp.MustCompile(`"rx":(\d+)`)
	tinygSrRe  = regexp.MustCompile(`"sr":\{`)
	tinygPosRe = regexp.MustCompile(`"pos([xyza])":(-?[0-9.]+)`)
	tinygStatRe = regexp.MustCompile(`"stat":(\d+)`)
	tinygRRe   = regexp.MustCompile(`"r":\{`)
	tinygFooterRe = regexp.MustCompile(`"f":\[(\d+),(\d+),(\d+)`)
)

// tinygStateNames maps g2core's numeric `stat` field to a name so
// IsIdle/IsAlarm read the same way as Grbl's text machine state.
var tinygStateNames = map[int]string{
	0: "Init", 1: "Ready", 2: "Alarm", 3: "Stop", 4: "End",
	5: "Run", 6: "Hold", 7: "Probe", 8: "Cycle", 9: "Homing", 10: "Jog",
}

// TinyGRunner parses TinyG/g2core's JSON-framed lines.
type TinyGRunner struct {
	lastState string
	mpos      Position
	modal     ModalGroup
}

func NewTinyG() *TinyGRunner { return &TinyGRunner{lastState: "Ready"} }

func (r *TinyGRunner) Kind() types.FirmwareKind { return types.TinyG }

func (r *TinyGRunner) Parse(line string) Event {
	trimmed := strings.TrimSpace(line)

	switch {
	case tinygQrRe.MatchString(trimmed):
		return r.parseQueueReport(trimmed)
	case tinygSrRe.MatchString(trimmed):
		return r.parseStatusReport(trimmed)
	case tinygRxRe.MatchString(trimmed):
		return Event{Kind: KindRX, Raw: trimmed}
	case tinygFooterRe.MatchString(trimmed):
		return r.parseFooter(trimmed)
	case strings.Contains(trimmed, `"er":`):
		return r.parseError(trimmed)
	case tinygRRe.MatchString(trimmed):
		return Event{Kind: KindOK, Raw: trimmed}
	default:
		return Event{Kind: KindOthers, Raw: trimmed}
	}
}

func (r *TinyGRunner) parseQueueReport(line string) Event {
	qr := &QueueReport{}
	if m := tinygQrRe.FindStringSubmatch(line); m != nil {
		qr.QR, _ = strconv.Atoi(m[1])
	}
	if m := tinygQiRe.FindStringSubmatch(line); m != nil {
		qr.QI, _ = strconv.Atoi(m[1])
	}
	if m := tinygQoRe.FindStringSubmatch(line); m != nil {
		qr.QO, _ = strconv.Atoi(m[1])
	}
	return Event{Kind: KindQR, Raw: line, QueueReport: qr}
}

// parseFooter reads g2core's response footer `"f":[protocol,status,count]`
// which every reply line ends with; a nonzero status field there is a
// terser error signal than a JSON body's "er" object.
func (r *TinyGRunner) parseFooter(line string) Event {
	m := tinygFooterRe.FindStringSubmatch(line)
	statusCode, _ := strconv.Atoi(m[2])
	if statusCode != 0 {
		return Event{Kind: KindError, Raw: line, Error: &ErrorInfo{Code: statusCode, Message: "g2core status " + m[2], Raw: line}}
	}
	return Event{Kind: KindOK, Raw: line}
}

func (r *TinyGRunner) parseStatusReport(line string) Event {
	status := &StatusReport{}
	for _, m := range tinygPosRe.FindAllStringSubmatch(line, -1) {
		v, _ := strconv.ParseFloat(m[2], 64)
		switch m[1] {
		case "x":
			status.MPos.X = v
		case "y":
			status.MPos.Y = v
		case "z":
			status.MPos.Z = v
		case "a":
			status.MPos.A = v
		}
	}
	status.WPos = status.MPos
	if m := tinygStatRe.FindStringSubmatch(line); m != nil {
		code, _ := strconv.Atoi(m[1])
		if name, ok := tinygStateNames[code]; ok {
			status.MachineState = name
			r.lastState = name
		}
	}
	r.mpos = status.MPos
	return Event{Kind: KindSR, Raw: line, Status: status}
}

func (r *TinyGRunner) parseError(line string) Event {
	r.lastState = "Alarm"
	return Event{Kind: KindAlarm, Raw: line, Alarm: &AlarmInfo{Raw: line}}
}

func (r *TinyGRunner) IsIdle() bool             { return r.lastState == "Ready" || r.lastState == "Stop" || r.lastState == "End" }
func (r *TinyGRunner) IsAlarm() bool            { return r.lastState == "Alarm" }
func (r *TinyGRunner) ModalGroup() ModalGroup   { return r.modal }
func (r *TinyGRunner) MachinePosition() Position { return r.mpos }
func (r *TinyGRunner) WorkPosition() Position   { return r.mpos }
func (r *TinyGRunner) Tool() string             { return "" }
