// Package dialect generalizes the four firmware-specific controllers
// (Grbl, Smoothie, TinyG/g2core, Marlin) into one capability struct a
// single Controller<Dialect> type consumes, per spec.md's own Design
// Notes/Redesign Flags: rather than four near-duplicate controllers,
// one Controller is parameterized by a Dialect naming its LineRunner,
// realtime override bytes, streaming protocol, open handshake, and
// override-value clamping.
package dialect

import (
	"time"

	"github.com/cheton/cnc/internal/runner"
	"github.com/cheton/cnc/internal/types"
)

// RealtimeBytes names the single-byte immediate commands a dialect
// recognizes; TCP/serial writes of these bypass the Sender/Feeder
// queues entirely, per spec.md §4.6.
type RealtimeBytes struct {
	FeedHold     byte
	CycleStart   byte
	StatusReport byte
	SoftReset    byte

	FeedOvReset byte // present only on Grbl/Smoothie
	FeedOvInc1  byte
	FeedOvDec1  byte
	FeedOvInc10 byte
	FeedOvDec10 byte

	SpindleOvReset byte
	SpindleOvInc1  byte
	SpindleOvDec1  byte
	SpindleOvInc10 byte
	SpindleOvDec10 byte

	RapidOvLow    byte
	RapidOvMedium byte
	RapidOvFull   byte
}

// OverrideKind names a single override channel a dialect can accept.
type OverrideKind string

const (
	OverrideFeed    OverrideKind = "feed"
	OverrideSpindle OverrideKind = "spindle"
	OverrideRapid   OverrideKind = "rapid"
)

// ClampOverride restricts a requested override percentage to the range
// the firmware accepts, per spec.md §4.6 (e.g. Grbl clamps feed/spindle
// to 10-200%, rapid to one of 25/50/100).
type ClampOverride func(kind OverrideKind, requested int) int

// Dialect bundles everything a Controller needs that varies by
// firmware: how to parse inbound lines, which bytes are realtime
// commands, how the Sender should flow-control writes, what an open
// handshake looks like, and how override requests are clamped.
type Dialect struct {
	Name types.FirmwareKind

	NewRunner func() runner.LineRunner

	Realtime RealtimeBytes
	Streaming types.StreamingDescriptor

	// OpenHandshakeTimeout is how long a Controller waits after
	// Transport.Open before treating silence as "no banner, but still
	// alive" (Marlin often doesn't reprint its startup banner unless
	// reset). A zero duration schedules no such fallback: the Controller
	// then goes ready only once the firmware answers with a banner or ok.
	OpenHandshakeTimeout time.Duration

	ClampOverride ClampOverride

	// SupportsHoming/SupportsSleep/SupportsUnlock gate which
	// Controller.Dispatch verbs are legal for this dialect, per
	// spec.md §4.6's per-firmware command table.
	SupportsHoming bool
	SupportsSleep  bool
	SupportsUnlock bool
}

// clampRange clamps v into [lo, hi].
func clampRange(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// nearestOf snaps v to whichever of options is closest.
func nearestOf(v int, options ...int) int {
	best := options[0]
	for _, o := range options[1:] {
		if abs(v-o) < abs(v-best) {
			best = o
		}
	}
	return best
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// Grbl is the Dialect for Grbl controllers: character-counting flow
// control against a 127-byte RX buffer (the classic AVR Grbl default),
// full realtime override byte set, and a $H/homing-capable command set.
var Grbl = Dialect{
	Name:      types.Grbl,
	NewRunner: func() runner.LineRunner { return runner.NewGrbl() },
	Realtime: RealtimeBytes{
		FeedHold: '!', CycleStart: '~', StatusReport: '?', SoftReset: 0x18,
		FeedOvReset: 0x90, FeedOvInc10: 0x91, FeedOvDec10: 0x92, FeedOvInc1: 0x93, FeedOvDec1: 0x94,
		SpindleOvReset: 0x99, SpindleOvInc10: 0x9A, SpindleOvDec10: 0x9B, SpindleOvInc1: 0x9C, SpindleOvDec1: 0x9D,
		RapidOvLow: 0x97, RapidOvMedium: 0x96, RapidOvFull: 0x95,
	},
	Streaming:      types.StreamingDescriptor{Protocol: types.CharCounting, BufferSize: 127},
	SupportsHoming: true,
	SupportsUnlock: true,
	ClampOverride: func(kind OverrideKind, requested int) int {
		switch kind {
		case OverrideRapid:
			return nearestOf(requested, 25, 50, 100)
		default:
			return clampRange(requested, 10, 200)
		}
	},
}

// Smoothie shares Grbl's realtime bytes and char-counting protocol but
// ships a larger 128-byte RX buffer in the common configuration.
var Smoothie = Dialect{
	Name:      types.Smoothie,
	NewRunner: func() runner.LineRunner { return runner.NewSmoothie() },
	Realtime:  Grbl.Realtime,
	Streaming: types.StreamingDescriptor{Protocol: types.CharCounting, BufferSize: 128},
	SupportsHoming: true,
	SupportsUnlock: true,
	ClampOverride:  Grbl.ClampOverride,
}

// TinyG streams under a bounded-window queue-report protocol: g2core's
// "qr" replies report free planner-buffer slots directly instead of the
// host inferring free space from byte counts.
var TinyG = Dialect{
	Name:      types.TinyG,
	NewRunner: func() runner.LineRunner { return runner.NewTinyG() },
	Realtime: RealtimeBytes{
		FeedHold: '!', CycleStart: '~', StatusReport: '?', SoftReset: 0x18,
	},
	Streaming:      types.StreamingDescriptor{Protocol: types.QueueReport, WindowSize: 4},
	SupportsHoming: true,
	ClampOverride: func(kind OverrideKind, requested int) int {
		return clampRange(requested, 10, 200)
	},
}

// Marlin has no realtime byte channel at all; every command, including
// overrides, is a line-oriented M-code waiting on the same one-line
// send-response protocol as G-code.
var Marlin = Dialect{
	Name:                 types.Marlin,
	NewRunner:            func() runner.LineRunner { return runner.NewMarlin() },
	Realtime:             RealtimeBytes{},
	Streaming:            types.StreamingDescriptor{Protocol: types.SendResponse},
	OpenHandshakeTimeout: 2 * time.Second,
	SupportsSleep:        true,
	ClampOverride: func(kind OverrideKind, requested int) int {
		return clampRange(requested, 10, 500)
	},
}

// ByName resolves a FirmwareKind to its Dialect. ok is false for an
// unrecognized or empty kind.
func ByName(kind types.FirmwareKind) (Dialect, bool) {
	switch kind {
	case types.Grbl:
		return Grbl, true
	case types.Smoothie:
		return Smoothie, true
	case types.TinyG:
		return TinyG, true
	case types.Marlin:
		return Marlin, true
	default:
		return Dialect{}, false
	}
}
