// Package event implements the in-process publish/subscribe bus that
// fans out controller-observed state changes to subscribed clients and
// to the EventTrigger. It keeps the teacher's Bus shape (Subscribe by
// type, Publish to all matching handlers without blocking the
// publisher) but gives each handler its own serial mailbox goroutine
// instead of spawning one goroutine per event: spec.md §5's ordering
// guarantee #3 requires per-subscriber delivery order, which a
// fire-and-forget goroutine per Publish call cannot promise once two
// events for the same handler race to be scheduled.
package event

import "sync"

// Type names a published event kind. The core reuses the same set the
// client protocol exposes (§6) plus a few internal-only types used
// between Controller and Router.
type Type string

const (
	Startup            Type = "startup"
	ControllerType     Type = "controller:type"
	ControllerSettings Type = "controller:settings"
	ControllerState    Type = "controller:state"
	ControllerReady    Type = "controller:ready"
	ConnectionOpen     Type = "connection:open"
	ConnectionClose    Type = "connection:close"
	ConnectionChange   Type = "connection:change"
	ConnectionRead     Type = "connection:read"
	ConnectionWrite    Type = "connection:write"
	ConnectionError    Type = "connection:error"
	FeederStatus       Type = "feeder:status"
	SenderStatus       Type = "sender:status"
	SenderLoad         Type = "sender:load"
	SenderUnload       Type = "sender:unload"
	SenderStart        Type = "sender:start"
	SenderStop         Type = "sender:stop"
	SenderPause        Type = "sender:pause"
	SenderResume       Type = "sender:resume"
	WorkflowStateEvt   Type = "workflow:state"
	TaskStart          Type = "task:start"
	TaskFinish         Type = "task:finish"
	TaskError          Type = "task:error"
	ConfigChange       Type = "config:change"
	FeedHold           Type = "feedhold"
	CycleStart         Type = "cyclestart"
	Homing             Type = "homing"
	Sleep              Type = "sleep"
	MacroRun           Type = "macro:run"
	MacroLoad          Type = "macro:load"
	OverrideChange     Type = "override:change"
	ProgramList        Type = "watchdir:list"
)

// Event is the payload carried through the bus. Ident identifies the
// connection the event concerns; Payload is the type-specific body
// (e.g. a types.SenderStatus for SenderStatus events).
type Event struct {
	Type    Type
	Ident   string
	Payload interface{}
}

// Handler processes one event. It must not call Publish on the same
// Bus synchronously from within itself if doing so could deadlock a
// caller waiting on the mailbox to drain; Publish itself never blocks.
type Handler func(e Event)

type mailbox struct {
	ch chan Event
}

// Bus is an in-memory, ordered-per-subscriber publish/subscribe bus.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Type][]*mailbox
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[Type][]*mailbox)}
}

// Subscribe registers handler for eventType. Each subscription gets a
// buffered mailbox and a dedicated goroutine so a slow handler cannot
// stall Publish or other subscribers, while still processing its own
// events strictly in publish order.
func (b *Bus) Subscribe(eventType Type, handler Handler) {
	m := &mailbox{ch: make(chan Event, 256)}
	go func() {
		for e := range m.ch {
			handler(e)
		}
	}()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], m)
}

// Publish delivers e to every handler subscribed to e.Type. It never
// blocks on a slow handler; a mailbox at capacity drops the event
// rather than stalling the controller's single-threaded event loop.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, m := range b.handlers[e.Type] {
		select {
		case m.ch <- e:
		default:
		}
	}
}
