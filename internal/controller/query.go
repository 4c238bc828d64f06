package controller

import "time"

// queryKind names one of the two periodic queries the tick loop keeps
// deduplicated: a status report and a parser-state report.
type queryKind int

const (
	queryStatus queryKind = iota
	queryParserState
)

// queryEntry tracks one in-flight (or idle) query's mini state
// machine: idle -> pending -> idle (on reply) or idle (on timeout).
// This replaces the boolean actionMask flags a naive port would carry
// per spec.md's Redesign Flags: each query owns its own timeout
// instead of one shared flag bag the tick loop has to reason about.
type queryEntry struct {
	pending bool
	sentAt  time.Time
}

// queryState holds both query mini-FSMs for one Controller and knows
// how to issue each one, dialect-dependent.
type queryState struct {
	c       *Controller
	entries [2]queryEntry
}

func newQueryState(c *Controller) *queryState {
	return &queryState{c: c}
}

// resolve marks kind's query answered, allowing the next tick to issue
// a fresh one immediately rather than waiting out the timeout.
func (q *queryState) resolve(kind queryKind) {
	q.entries[kind] = queryEntry{}
}

// cancelAll clears in-flight state on Close, so a stale reply arriving
// after reopen can't be mistaken for the new connection's own query.
func (q *queryState) cancelAll() {
	q.entries = [2]queryEntry{}
}

// poll is called once per tick, and only while the connection is
// ready (spec.md §3 invariant 6: outbound queries are suppressed until
// then). For each query kind: if no query is pending, or the pending
// one has timed out, issue a fresh one and mark it pending; otherwise
// leave it alone (dedup). The parser-state query additionally only
// fires while the Workflow is Idle, per §4.6's tick description; a
// running or paused program owns the wire.
func (q *queryState) poll(statusTimeout, parserTimeout time.Duration, workflowIdle bool) {
	q.pollOne(queryStatus, statusTimeout, q.issueStatus)
	if workflowIdle {
		q.pollOne(queryParserState, parserTimeout, q.issueParserState)
	}
}

func (q *queryState) pollOne(kind queryKind, timeout time.Duration, issue func()) {
	e := &q.entries[kind]
	if e.pending && time.Since(e.sentAt) < timeout {
		return
	}
	issue()
	e.pending = true
	e.sentAt = time.Now()
}

func (q *queryState) issueStatus() {
	if b := q.c.Dialect.Realtime.StatusReport; b != 0 {
		_ = q.c.transport.Write([]byte{b})
		return
	}
	// Marlin has no realtime status byte; M114 is the line-oriented
	// equivalent, queued through the Feeder like any other command.
	q.c.feeder.Feed([]string{"M114"}, nil)
	_, _ = q.c.feeder.Next()
}

func (q *queryState) issueParserState() {
	if !q.c.Dialect.SupportsUnlock || !q.c.Dialect.SupportsHoming {
		// TinyG/Marlin: no `$G`-equivalent modal dump wired yet
		// (spec.md §9 marks full TinyG/Marlin parser-state parity as
		// an implementer follow-up); skip rather than send a command
		// the firmware won't recognize.
		return
	}
	q.c.feeder.Feed([]string{"$G"}, nil)
	_, _ = q.c.feeder.Next()
}
