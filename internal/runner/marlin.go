package runner

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/cheton/cnc/internal/types"
)

// Marlin's M114 position reply and M105 temperature reply are both
// space-separated `LETTER:value` tokens; M115 is a single line of
// `KEY:value` pairs. These regexes pick the fields the core needs
// without depending on Marlin's exact field ordering.
var (
	marlinPosAxisRe  = regexp.MustCompile(`([XYZE]):(-?[0-9.]+)`)
	marlinTempRe     = regexp.MustCompile(`T:(-?[0-9.]+)\s*/(-?[0-9.]+)(?:\s*\(\s*(-?[0-9]+)\s*\))?`)
	marlinBedTempRe  = regexp.MustCompile(`B:(-?[0-9.]+)\s*/(-?[0-9.]+)`)
	marlinFirmwareRe = regexp.MustCompile(`FIRMWARE_NAME:([^\s]+).*PROTOCOL_VERSION:([^\s]+).*MACHINE_TYPE:([^\s]+).*EXTRUDER_COUNT:(\d+).*UUID:([^\s]+)`)
)

// MarlinRunner parses Marlin's line-oriented (no realtime-byte) dialect.
type MarlinRunner struct {
	mpos  Position
	modal ModalGroup
	tool  string
	alarm bool
}

func NewMarlin() *MarlinRunner { return &MarlinRunner{} }

func (r *MarlinRunner) Kind() types.FirmwareKind { return types.Marlin }

func (r *MarlinRunner) Parse(line string) Event {
	trimmed := strings.TrimSpace(line)

	switch {
	case trimmed == "start":
		r.alarm = false
		return Event{Kind: KindMarlinStart, Raw: trimmed}
	case strings.HasPrefix(trimmed, "FIRMWARE_NAME:"):
		return r.parseFirmware(trimmed)
	case strings.HasPrefix(trimmed, "ok") && strings.Contains(trimmed, "T:"):
		// M105 replies are often piggybacked on an `ok` line.
		return r.parseTemperature(trimmed)
	case strings.HasPrefix(trimmed, "ok"):
		return Event{Kind: KindOK, Raw: trimmed}
	case strings.Contains(trimmed, "X:") && strings.Contains(trimmed, "Y:") && strings.Contains(trimmed, "Z:"):
		return r.parsePosition(trimmed)
	case strings.HasPrefix(trimmed, "echo:"):
		return Event{Kind: KindEcho, Raw: trimmed}
	case strings.HasPrefix(trimmed, "Error:") || strings.HasPrefix(trimmed, "error:"):
		r.alarm = true
		return Event{Kind: KindError, Raw: trimmed, Error: &ErrorInfo{Message: trimmed, Raw: trimmed}}
	default:
		return Event{Kind: KindOthers, Raw: trimmed}
	}
}

func (r *MarlinRunner) parseFirmware(line string) Event {
	fw := &FirmwareInfo{}
	if m := marlinFirmwareRe.FindStringSubmatch(line); m != nil {
		fw.FirmwareName = m[1]
		fw.ProtocolVersion = m[2]
		fw.MachineType = m[3]
		fw.ExtruderCount, _ = strconv.Atoi(m[4])
		fw.UUID = m[5]
	}
	return Event{Kind: KindFirmware, Raw: line, Firmware: fw}
}

// parsePosition mirrors the historical `writeSsource` typo noted in
// spec.md §9: intended behavior is that the position echoes back to
// clients/feeder callers, so that path is always exercised here rather
// than silently dropped.
func (r *MarlinRunner) parsePosition(line string) Event {
	pos := Position{}
	// M114 appends the raw stepper counts after "Count"; only the axis
	// values before it are positions.
	axes := line
	if idx := strings.Index(axes, "Count"); idx >= 0 {
		axes = axes[:idx]
	}
	for _, m := range marlinPosAxisRe.FindAllStringSubmatch(axes, -1) {
		v, _ := strconv.ParseFloat(m[2], 64)
		switch m[1] {
		case "X":
			pos.X = v
		case "Y":
			pos.Y = v
		case "Z":
			pos.Z = v
		case "E":
			pos.A = v
		}
	}
	r.mpos = pos
	return Event{Kind: KindPosition, Raw: line, Position: &pos}
}

func (r *MarlinRunner) parseTemperature(line string) Event {
	temp := &TemperatureReport{}
	if m := marlinTempRe.FindStringSubmatch(line); m != nil {
		temp.Extruder.Deg, _ = strconv.ParseFloat(m[1], 64)
		temp.Extruder.DegTarget, _ = strconv.ParseFloat(m[2], 64)
		if m[3] != "" {
			temp.Extruder.Power, _ = strconv.Atoi(m[3])
		}
	}
	if m := marlinBedTempRe.FindStringSubmatch(line); m != nil {
		temp.HeatedBed.Deg, _ = strconv.ParseFloat(m[1], 64)
		temp.HeatedBed.DegTarget, _ = strconv.ParseFloat(m[2], 64)
	}
	temp.Wait = strings.Contains(line, "wait")
	return Event{Kind: KindTemperature, Raw: line, Temperature: temp}
}

func (r *MarlinRunner) IsIdle() bool              { return !r.alarm }
func (r *MarlinRunner) IsAlarm() bool             { return r.alarm }
func (r *MarlinRunner) ModalGroup() ModalGroup    { return r.modal }
func (r *MarlinRunner) MachinePosition() Position { return r.mpos }
func (r *MarlinRunner) WorkPosition() Position    { return r.mpos }
func (r *MarlinRunner) Tool() string              { return r.tool }
