// Package transport implements the byte-level duplex link between the
// core and a firmware: serial (go.bug.st/serial, grounded on the
// pack's buckleypaul-gust and juster-dripp3r examples) and TCP. Both
// variants share the WriteFilter hook described in spec.md §4.1.
package transport

import (
	"bufio"
	"fmt"
)

// WriteFilter is invoked on every outgoing buffer before it reaches the
// wire. It returns the (possibly rewritten) bytes; it may also update
// controller-observable state as a side effect (e.g. Grbl's writeFilter
// parses `$13=N` to reconcile reporting units).
type WriteFilter func(data []byte) []byte

// Transport is a duplex byte channel. Reads are delivered line-oriented
// by Lines(); writes are best-effort and non-blocking from the caller's
// perspective (backpressure is the flow-control protocol's job, not
// the OS buffer, per spec.md §5).
type Transport interface {
	// Open starts the connection and the background read pump. cb
	// fires exactly once with the outcome; later transport failures
	// arrive as errors on the Errors() channel instead.
	Open(cb func(error))
	Close() error
	Write(data []byte) error
	// Lines delivers each inbound line (CRLF or LF terminated, both
	// stripped) in the order the transport produced them.
	Lines() <-chan string
	// Errors delivers asynchronous transport failures; a value here
	// means the transport is no longer usable and Close should follow.
	Errors() <-chan error
	// SetWriteFilter installs (or replaces) the outgoing write filter.
	SetWriteFilter(f WriteFilter)
	Ident() string
}

// base holds the fields common to both transport variants: the write
// filter, and the channels feeding the controller.
type base struct {
	ident       string
	writeFilter WriteFilter
	lines       chan string
	errs        chan error
}

func newBase(ident string) base {
	return base{
		ident: ident,
		lines: make(chan string, 256),
		errs:  make(chan error, 4),
	}
}

func (b *base) Ident() string             { return b.ident }
func (b *base) Lines() <-chan string      { return b.lines }
func (b *base) Errors() <-chan error      { return b.errs }
func (b *base) SetWriteFilter(f WriteFilter) { b.writeFilter = f }

func (b *base) filtered(data []byte) []byte {
	if b.writeFilter == nil {
		return data
	}
	return b.writeFilter(data)
}

// pump reads lines from r until it returns an error or EOF, delivering
// each to b.lines and reporting the terminal error (if any) on b.errs.
func (b *base) pump(scanner *bufio.Scanner) {
	for scanner.Scan() {
		b.lines <- scanner.Text()
	}
	if err := scanner.Err(); err != nil {
		select {
		case b.errs <- err:
		default:
		}
	} else {
		select {
		case b.errs <- fmt.Errorf("transport %s: closed", b.ident):
		default:
		}
	}
}
