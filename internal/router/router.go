// Package router implements the Engine/Router described in spec.md's
// Redesign Flags: a single owner of the controllers registry (no
// controller ever holds a pointer back to it), exposing exactly the
// operations the client protocol in §6 needs — open/close/command/
// write, getPorts/getBaudRates, and per-connection subscription with
// state replay. It plays the role the teacher's Hub
// (internal/web/hub.go) plays for WebSocket fan-out, generalized from
// "one global broadcast" to "one event.Bus per Router, filtered
// per-connection at Subscribe time".
package router

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/cheton/cnc/internal/audit"
	"github.com/cheton/cnc/internal/config"
	"github.com/cheton/cnc/internal/controller"
	"github.com/cheton/cnc/internal/dialect"
	"github.com/cheton/cnc/internal/event"
	"github.com/cheton/cnc/internal/metrics"
	"github.com/cheton/cnc/internal/schedule"
	"github.com/cheton/cnc/internal/transport"
	"github.com/cheton/cnc/internal/trigger"
	"github.com/cheton/cnc/internal/types"
	"github.com/cheton/cnc/internal/watchdir"
)

// Router owns every open Controller for the lifetime of the daemon.
type Router struct {
	mu          sync.RWMutex
	controllers map[string]*controller.Controller
	triggers    map[string]*trigger.EventTrigger

	bus     *event.Bus
	sched   *schedule.TickScheduler
	audit   *audit.Log
	cfg     *config.Config
	logger  *slog.Logger
	watcher *watchdir.Watcher
}

// SetWatcher attaches the directory watcher backing `watchdir:load`.
// It's optional; a Router built without one simply has no local
// program library to browse.
func (r *Router) SetWatcher(w *watchdir.Watcher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.watcher = w
}

// LoadProgram reads name from the watched program directory and loads
// it into ident's Sender, backing the `watchdir:load` client command.
func (r *Router) LoadProgram(ident, name string) error {
	r.mu.RLock()
	w := r.watcher
	r.mu.RUnlock()
	if w == nil {
		return fmt.Errorf("router: no program directory configured")
	}
	content, err := w.Load(name)
	if err != nil {
		return fmt.Errorf("router: load program %s: %w", name, err)
	}
	return r.Command(ident, "sender:load", name, content)
}

// New builds an empty Router.
func New(bus *event.Bus, sched *schedule.TickScheduler, auditLog *audit.Log, cfg *config.Config, logger *slog.Logger) *Router {
	return &Router{
		controllers: make(map[string]*controller.Controller),
		triggers:    make(map[string]*trigger.EventTrigger),
		bus:         bus,
		sched:       sched,
		audit:       auditLog,
		cfg:         cfg,
		logger:      logger.With("component", "router"),
	}
}

// GetPorts lists serial ports currently visible on the host.
func (r *Router) GetPorts() ([]transport.PortInfo, error) {
	return transport.EnumeratePorts()
}

// GetBaudRates returns the configured list of selectable baud rates.
func (r *Router) GetBaudRates() []int {
	return r.cfg.BaudRates
}

// macrosByName flattens config.yaml's macro map into the line-list
// shape controller.New expects.
func (r *Router) macrosByName() map[string][]string {
	out := make(map[string][]string, len(r.cfg.Macros))
	for name, body := range r.cfg.Macros {
		out[name] = splitLines(body)
	}
	return out
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i, r := range s {
		if r == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}

// Open creates and opens a Controller for desc, speaking dialectKind.
// The connection's ident (spec.md §3) becomes its registry key and the
// handle every later Command/Close/Subscribe call uses.
func (r *Router) Open(desc types.ConnectionDescriptor, dialectKind types.FirmwareKind) (string, error) {
	d, ok := dialect.ByName(dialectKind)
	if !ok {
		return "", fmt.Errorf("router: unknown firmware dialect %q", dialectKind)
	}

	var t transport.Transport
	switch desc.Kind {
	case types.TransportSerial:
		t = transport.NewSerial(desc.Path, desc.Baud)
	case types.TransportTCP:
		t = transport.NewTCP(desc.Host, desc.Port)
	default:
		return "", fmt.Errorf("router: unknown transport kind %q", desc.Kind)
	}

	ident := t.Ident()

	r.mu.Lock()
	if _, exists := r.controllers[ident]; exists {
		r.mu.Unlock()
		return "", fmt.Errorf("router: connection %s already open", ident)
	}
	c := controller.New(ident, d, t, r.bus, r.sched, r.audit, r.macrosByName(), r.cfg.IgnoreErrors, r.logger)
	r.controllers[ident] = c
	r.mu.Unlock()

	errCh := make(chan error, 1)
	c.Open(func(err error) { errCh <- err })
	if err := <-errCh; err != nil {
		r.mu.Lock()
		delete(r.controllers, ident)
		r.mu.Unlock()
		return "", err
	}

	metrics.ConnectionsOpen.WithLabelValues(string(dialectKind)).Inc()
	r.bus.Publish(event.Event{Type: event.TaskStart, Ident: ident, Payload: "connection open"})

	et := trigger.New(r.bus, ident, r.cfg.Reactions, c, r.logger)
	r.mu.Lock()
	r.triggers[ident] = et
	r.mu.Unlock()

	return ident, nil
}

// Close closes and forgets the controller for ident.
func (r *Router) Close(ident string) error {
	r.mu.Lock()
	c, ok := r.controllers[ident]
	if ok {
		delete(r.controllers, ident)
		delete(r.triggers, ident)
	}
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("router: connection %s not open", ident)
	}
	metrics.ConnectionsOpen.WithLabelValues(string(c.Dialect.Name)).Dec()
	return c.Close()
}

// Command dispatches one client-protocol verb against ident's
// controller.
func (r *Router) Command(ident, cmd string, args ...interface{}) error {
	c, ok := r.get(ident)
	if !ok {
		return fmt.Errorf("router: connection %s not open", ident)
	}
	err := c.Dispatch(cmd, args...)
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.CommandsProcessedTotal.WithLabelValues(cmd, status).Inc()
	if err != nil {
		r.bus.Publish(event.Event{Type: event.TaskError, Ident: ident, Payload: err.Error()})
	}
	return err
}

// Write sends raw bytes to ident's transport, bypassing Feeder/Sender
// entirely, per spec.md §6's `write` client op.
func (r *Router) Write(ident string, data []byte) error {
	c, ok := r.get(ident)
	if !ok {
		return fmt.Errorf("router: connection %s not open", ident)
	}
	return c.Write(data)
}

// Writeln is Write with an appended newline, per spec.md §6's
// `writeln` client op. The newline is applied by Controller.Writeln,
// which knows to withhold it for single-byte realtime commands.
func (r *Router) Writeln(ident, line string) error {
	c, ok := r.get(ident)
	if !ok {
		return fmt.Errorf("router: connection %s not open", ident)
	}
	return c.Writeln(line)
}

func (r *Router) get(ident string) (*controller.Controller, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.controllers[ident]
	return c, ok
}

// Subscribe registers handler for every event concerning ident and
// immediately replays the connection's current state so a client
// joining mid-session sees where things stand without waiting for the
// next natural state change: controller:type, connection:open,
// controller:settings, controller:state, feeder:status, sender:status,
// sender:load (if a program is loaded), workflow:state — the order
// spec.md §4.6 and its subscriber-replay boundary test both specify.
// Replay happens synchronously before Subscribe returns, so the
// caller's mailbox is guaranteed to see replay before any live event
// the bus delivers afterward.
func (r *Router) Subscribe(ident string, handler event.Handler) error {
	c, ok := r.get(ident)
	if !ok {
		return fmt.Errorf("router: connection %s not open", ident)
	}

	for _, t := range subscribedTypes {
		r.bus.Subscribe(t, func(e event.Event) {
			if e.Ident == ident {
				handler(e)
			}
		})
	}

	workflowState, feederStatus, senderStatus := c.State()

	handler(event.Event{Type: event.ControllerType, Ident: ident, Payload: c.Dialect.Name})
	if c.Ready() {
		handler(event.Event{Type: event.ConnectionOpen, Ident: ident, Payload: nil})
	}
	handler(event.Event{Type: event.ControllerSettings, Ident: ident, Payload: c.Settings()})
	if status := c.LastStatus(); status != nil {
		handler(event.Event{Type: event.ControllerState, Ident: ident, Payload: status})
	}
	handler(event.Event{Type: event.FeederStatus, Ident: ident, Payload: feederStatus})
	handler(event.Event{Type: event.SenderStatus, Ident: ident, Payload: senderStatus})
	if senderStatus.Name != "" {
		handler(event.Event{Type: event.SenderLoad, Ident: ident, Payload: senderStatus.Name})
	}
	handler(event.Event{Type: event.WorkflowStateEvt, Ident: ident, Payload: workflowState})
	return nil
}

var subscribedTypes = []event.Type{
	event.ControllerType, event.ControllerSettings, event.ControllerState, event.ControllerReady,
	event.ConnectionOpen, event.ConnectionClose, event.ConnectionChange, event.ConnectionRead,
	event.ConnectionWrite, event.ConnectionError,
	event.FeederStatus, event.SenderStatus,
	event.SenderLoad, event.SenderUnload, event.SenderStart, event.SenderStop, event.SenderPause, event.SenderResume,
	event.WorkflowStateEvt, event.TaskStart, event.TaskFinish, event.TaskError,
	event.FeedHold, event.CycleStart, event.Homing, event.Sleep, event.MacroRun, event.MacroLoad, event.OverrideChange,
}

// Idents lists every currently open connection's identifier.
func (r *Router) Idents() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.controllers))
	for ident := range r.controllers {
		out = append(out, ident)
	}
	return out
}
