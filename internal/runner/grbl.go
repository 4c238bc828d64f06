package runner

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/cheton/cnc/internal/types"
)

// configLineRe matches a Grbl/Smoothie `$N=value` settings line, e.g.
// "$120=25.000". Grounded verbatim on jes-pugsender's Grbl.Monitor loop.
var configLineRe = regexp.MustCompile(`^\$(\d+)=(-?[0-9.]+)$`)

// GrblRunner parses Grbl/Smoothie-dialect lines. Smoothie's line
// grammar is close enough to Grbl's (shared status-report format,
// shared `ok`/`error`/`ALARM` framing) that one runner serves both,
// selected by kind at construction.
type GrblRunner struct {
	kind types.FirmwareKind

	lastState string
	mpos      Position
	wpos      Position
	wco       Position
	modal     ModalGroup
	tool      string
}

// NewGrbl builds a runner for Grbl. NewSmoothie builds the same runner
// tagged as Smoothie so log lines and dispatch stay dialect-accurate.
func NewGrbl() *GrblRunner     { return &GrblRunner{kind: types.Grbl, lastState: "Idle"} }
func NewSmoothie() *GrblRunner { return &GrblRunner{kind: types.Smoothie, lastState: "Idle"} }

func (r *GrblRunner) Kind() types.FirmwareKind { return r.kind }

func (r *GrblRunner) Parse(line string) Event {
	trimmed := strings.TrimSpace(line)

	switch {
	case strings.HasPrefix(trimmed, "<") && strings.HasSuffix(trimmed, ">"):
		return r.parseStatus(trimmed)
	case strings.HasPrefix(trimmed, "[GC:"):
		r.modal = parseGCLine(trimmed)
		return Event{Kind: KindParserState, Raw: trimmed, ParserState: trimmed}
	case strings.HasPrefix(trimmed, "["):
		return Event{Kind: KindParameters, Raw: trimmed}
	case configLineRe.MatchString(trimmed):
		return r.parseSetting(trimmed)
	case strings.HasPrefix(trimmed, "Grbl ") || strings.HasPrefix(trimmed, "Smoothie"):
		return r.parseStartup(trimmed)
	case strings.HasPrefix(trimmed, "ok"):
		return Event{Kind: KindOK, Raw: trimmed}
	case strings.HasPrefix(trimmed, "error"):
		return r.parseError(trimmed)
	case strings.HasPrefix(trimmed, "ALARM"):
		return r.parseAlarm(trimmed)
	default:
		return Event{Kind: KindOthers, Raw: trimmed}
	}
}

// parseStatus mirrors jes-pugsender's Grbl.ParseStatus: split on `|`,
// then each `key:value` segment on `:`, tracking mpos/wpos/wco so the
// two positions stay reconciled the way real Grbl reports them (it
// only ever sends one of the two per report).
func (r *GrblRunner) parseStatus(line string) Event {
	body := strings.Trim(line, "<>")
	parts := strings.Split(body, "|")
	if len(parts) == 0 {
		return Event{Kind: KindOthers, Raw: line}
	}

	status := &StatusReport{MachineState: parts[0]}
	r.lastState = parts[0]

	givenMpos, givenWpos := false, false

	for _, part := range parts[1:] {
		kv := strings.SplitN(part, ":", 2)
		if len(kv) != 2 {
			continue
		}
		key, val := strings.ToLower(kv[0]), kv[1]

		switch key {
		case "mpos":
			status.MPos = parsePosition(val)
			givenMpos = true
		case "wpos":
			status.WPos = parsePosition(val)
			givenWpos = true
		case "wco":
			status.WCO = parsePosition(val)
		case "ov":
			nums := parseFloats(val)
			if len(nums) >= 3 {
				status.Overrides.Feed = nums[0]
				status.Overrides.Rapid = nums[1]
				status.Overrides.Spindle = nums[2]
			}
		case "bf":
			nums := parseFloats(val)
			if len(nums) >= 2 {
				status.Buf.Planner = int(nums[0])
				status.Buf.RX = int(nums[1])
			}
		case "fs":
			nums := parseFloats(val)
			if len(nums) >= 2 {
				status.FeedRate = nums[0]
				status.SpindleSpeed = nums[1]
			}
		case "f":
			nums := parseFloats(val)
			if len(nums) >= 1 {
				status.FeedRate = nums[0]
			}
		case "pn":
			status.Pins = val
			status.Probe = strings.Contains(val, "P")
		}
	}

	if givenMpos {
		status.WPos = status.MPos.Sub(status.WCO)
		r.mpos, r.wpos = status.MPos, status.WPos
	} else if givenWpos {
		status.MPos = status.WPos.Add(status.WCO)
		r.mpos, r.wpos = status.MPos, status.WPos
	}
	if status.WCO != (Position{}) {
		r.wco = status.WCO
	}

	return Event{Kind: KindStatus, Raw: line, Status: status}
}

func (r *GrblRunner) parseSetting(line string) Event {
	m := configLineRe.FindStringSubmatch(line)
	name, _ := strconv.Atoi(m[1])
	value, _ := strconv.ParseFloat(m[2], 64)
	return Event{Kind: KindSettings, Raw: line, Setting: &SettingLine{Name: name, Value: value}}
}

func (r *GrblRunner) parseStartup(line string) Event {
	fields := strings.SplitN(line, " ", 2)
	firmware := fields[0]
	rest := ""
	if len(fields) > 1 {
		rest = fields[1]
	}
	version := rest
	if idx := strings.Index(rest, " "); idx >= 0 {
		version = rest[:idx]
	}
	return Event{Kind: KindStartup, Raw: line, Startup: &StartupInfo{Firmware: firmware, Version: version, Message: line}}
}

func (r *GrblRunner) parseError(line string) Event {
	code := 0
	if parts := strings.SplitN(line, ":", 2); len(parts) == 2 {
		code, _ = strconv.Atoi(strings.TrimSpace(parts[1]))
	}
	return Event{Kind: KindError, Raw: line, Error: &ErrorInfo{Code: code, Message: grblErrorMessage(code), Raw: line}}
}

func (r *GrblRunner) parseAlarm(line string) Event {
	code := 0
	if parts := strings.SplitN(line, ":", 2); len(parts) == 2 {
		code, _ = strconv.Atoi(strings.TrimSpace(parts[1]))
	}
	r.lastState = "Alarm"
	return Event{Kind: KindAlarm, Raw: line, Alarm: &AlarmInfo{Code: code, Raw: line}}
}

func (r *GrblRunner) IsIdle() bool  { return r.lastState == "Idle" }
func (r *GrblRunner) IsAlarm() bool { return r.lastState == "Alarm" }

func (r *GrblRunner) ModalGroup() ModalGroup    { return r.modal }
func (r *GrblRunner) MachinePosition() Position { return r.mpos }
func (r *GrblRunner) WorkPosition() Position    { return r.wpos }
func (r *GrblRunner) Tool() string              { return r.tool }

func parsePosition(csv string) Position {
	nums := parseFloats(csv)
	p := Position{}
	if len(nums) > 0 {
		p.X = nums[0]
	}
	if len(nums) > 1 {
		p.Y = nums[1]
	}
	if len(nums) > 2 {
		p.Z = nums[2]
	}
	if len(nums) > 3 {
		p.A = nums[3]
	}
	return p
}

func parseFloats(csv string) []float64 {
	fields := strings.Split(csv, ",")
	out := make([]float64, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			continue
		}
		out = append(out, v)
	}
	return out
}

// parseGCLine turns a `[GC:G0 G54 G17 G21 G90 G94 M5 M9 T0 F0 S0]` line
// into a ModalGroup by taking the well-known modal word prefixes.
func parseGCLine(line string) ModalGroup {
	body := strings.TrimSuffix(strings.TrimPrefix(line, "[GC:"), "]")
	var m ModalGroup
	for _, word := range strings.Fields(body) {
		switch {
		case strings.HasPrefix(word, "G5") && len(word) <= 3:
			m.WCS = word
		case word == "G17" || word == "G18" || word == "G19":
			m.Plane = word
		case word == "G20" || word == "G21":
			m.Units = word
		case word == "G90" || word == "G91":
			m.Distance = word
		case word == "G93" || word == "G94":
			m.Feedrate = word
		case strings.HasPrefix(word, "G0") || strings.HasPrefix(word, "G1") || strings.HasPrefix(word, "G2") || strings.HasPrefix(word, "G3"):
			m.Motion = word
		case word == "M3" || word == "M4" || word == "M5":
			m.Spindle = word
		case word == "M7" || word == "M8" || word == "M9":
			m.Coolant = word
		case strings.HasPrefix(word, "T"):
			m.Tool = word
		case strings.HasPrefix(word, "M0") || strings.HasPrefix(word, "M1") || strings.HasPrefix(word, "M2"):
			m.Program = word
		}
	}
	return m
}

// grblErrorMessage maps a small subset of Grbl v1.1 numeric error codes
// to human text; unknown codes fall back to the bare number.
func grblErrorMessage(code int) string {
	messages := map[int]string{
		1:  "Expected command letter",
		2:  "Bad number format",
		3:  "Invalid statement",
		9:  "G-code locked out during alarm or jog state",
		20: "Unsupported or invalid g-code command",
		22: "Feed rate has not yet been set or is undefined",
	}
	if msg, ok := messages[code]; ok {
		return msg
	}
	return "error:" + strconv.Itoa(code)
}
