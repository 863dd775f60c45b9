// Package intr emulates hardware interrupt lines in user space.
//
// Drivers register handlers for virtual IRQ lines with RequestIRQ and assert
// a line with RaiseIRQ. A single dedicated interrupt thread receives raised
// lines and invokes every matching handler in registry order, so handlers run
// as ordinary Go code instead of inside an asynchronous signal context.
package intr

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
)

// IRQ identifies a virtual interrupt line.
type IRQ uint

const (
	// TerminateIRQ is reserved for stopping the interrupt thread. It matches
	// SIGHUP when lines are bridged to POSIX signals.
	TerminateIRQ IRQ = 1
	// IRQBase is the first line available to drivers (SIGRTMIN+1 on Linux).
	IRQBase IRQ = 35
)

// Flags describe how a line may be shared between handlers.
type Flags uint16

const (
	FlagExclusive Flags = 0x0000
	FlagShared    Flags = 0x0001
)

func (f Flags) String() string {
	if f&FlagShared != 0 {
		return "shared"
	}
	return "exclusive"
}

// nameSize mirrors the fixed-size label of a registered entry.
const nameSize = 16

// Handler services an interrupt. owner is the value passed to RequestIRQ.
type Handler func(irq IRQ, owner any) error

// Entry is a registered interrupt handler.
type Entry struct {
	IRQ     IRQ
	Handler Handler
	Flags   Flags
	Name    string
	Owner   any
}

// Observer receives one call per handler invocation.
type Observer interface {
	ObserveDispatch(irq IRQ, name string, err error)
}

// State is the lifecycle state of the interrupt thread.
type State int32

const (
	StateStopped State = iota
	StateAwaitingReady
	StateRunning
	StateTerminating
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateAwaitingReady:
		return "awaiting-ready"
	case StateRunning:
		return "running"
	case StateTerminating:
		return "terminating"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Option configures a Registry.
type Option func(*Registry)

// WithSignals routes lines through real POSIX signals: RaiseIRQ sends the
// line's signal number to the process and the interrupt thread receives it
// through os/signal. Pending signals of the same number may coalesce.
func WithSignals() Option {
	return func(r *Registry) { r.signals = true }
}

// WithLateRegistration permits RequestIRQ while the interrupt thread runs.
func WithLateRegistration() Option {
	return func(r *Registry) { r.allowLate = true }
}

// WithObserver reports every handler invocation to o.
func WithObserver(o Observer) Option {
	return func(r *Registry) { r.observer = o }
}

// Registry owns the registered IRQ entries and the interrupt thread.
type Registry struct {
	log       *slog.Logger
	observer  Observer
	signals   bool
	allowLate bool

	mu      sync.Mutex
	entries []*Entry // most recently registered first
	lines   map[IRQ]struct{}
	th      *thread

	state atomic.Int32
}

// New returns an empty Registry. A nil logger uses slog.Default.
func New(logger *slog.Logger, opts ...Option) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		log:   logger.With("component", "intr"),
		lines: make(map[IRQ]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RequestIRQ registers handler for irq. Several handlers may share a line
// only if all of them are registered with FlagShared.
func (r *Registry) RequestIRQ(irq IRQ, handler Handler, flags Flags, name string, owner any) error {
	if handler == nil {
		return fmt.Errorf("intr: nil handler for irq=%d", irq)
	}
	if len(name) > nameSize-1 {
		name = name[:nameSize-1]
	}
	r.log.Debug("request irq", "irq", irq, "flags", flags, "name", name)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.th != nil && !r.allowLate {
		return ErrRegistrationClosed
	}
	if irq == TerminateIRQ {
		r.log.Error("irq is reserved for termination", "irq", irq, "name", name)
		return fmt.Errorf("%w: irq=%d is reserved", ErrIRQConflict, irq)
	}
	for _, entry := range r.entries {
		if entry.IRQ != irq {
			continue
		}
		if entry.Flags&FlagShared == 0 || flags&FlagShared == 0 {
			r.log.Error("conflicts with already registered IRQs", "irq", irq, "name", name, "existing", entry.Name)
			return fmt.Errorf("%w: irq=%d name=%s existing=%s", ErrIRQConflict, irq, name, entry.Name)
		}
	}

	if r.th != nil && r.signals {
		if err := r.th.subscribe(irq); err != nil {
			return err
		}
	}
	entry := &Entry{
		IRQ:     irq,
		Handler: handler,
		Flags:   flags,
		Name:    name,
		Owner:   owner,
	}
	r.entries = append([]*Entry{entry}, r.entries...)
	r.lines[irq] = struct{}{}
	r.log.Debug("registered", "irq", irq, "name", name)
	return nil
}

// RaiseIRQ asserts irq. It returns once the line has been handed to the
// interrupt thread; handlers run asynchronously.
func (r *Registry) RaiseIRQ(irq IRQ) error {
	if irq == TerminateIRQ {
		return fmt.Errorf("%w: irq=%d is reserved", ErrIRQConflict, irq)
	}
	r.mu.Lock()
	th := r.th
	r.mu.Unlock()
	if th == nil {
		return ErrThreadUnavailable
	}
	if r.signals {
		return raiseSignal(irq)
	}
	th.queue.push(irq)
	return nil
}

// Start spawns the interrupt thread and returns once it is ready to receive
// raised lines.
func (r *Registry) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.th != nil {
		return fmt.Errorf("%w: already running", ErrThreadSpawn)
	}

	th := newThread(r.signals)
	if r.signals {
		for irq := range r.lines {
			if err := th.subscribe(irq); err != nil {
				th.unsubscribe()
				r.log.Error("signal mask setup failed", "irq", irq, "error", err)
				return err
			}
		}
	}

	ready := make(chan struct{})
	r.state.Store(int32(StateAwaitingReady))
	go r.run(th, ready)
	<-ready

	r.th = th
	return nil
}

// Shutdown stops the interrupt thread and waits for it to exit. It does
// nothing if the thread is not running. Called from a handler on Linux, it
// returns without stopping the thread.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	th := r.th
	if th != nil && onThread(th.tid) {
		r.mu.Unlock()
		r.log.Warn("shutdown called on the interrupt thread, ignored", "tid", th.tid)
		return
	}
	r.th = nil
	r.mu.Unlock()
	if th == nil {
		return
	}
	th.queue.push(TerminateIRQ)
	<-th.done
	th.unsubscribe()
}

// Running reports whether the interrupt thread has been started and not
// yet shut down.
func (r *Registry) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.th != nil
}

// State returns the interrupt thread's lifecycle state.
func (r *Registry) State() State {
	return State(r.state.Load())
}

// ThreadID returns the OS thread id of the interrupt thread, or 0.
func (r *Registry) ThreadID() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.th == nil {
		return 0
	}
	return r.th.tid
}

// Lines returns the tracked lines, including the termination line.
func (r *Registry) Lines() []IRQ {
	r.mu.Lock()
	defer r.mu.Unlock()
	lines := []IRQ{TerminateIRQ}
	for irq := range r.lines {
		lines = append(lines, irq)
	}
	return lines
}

// Entries returns a copy of the registered entries in dispatch order.
func (r *Registry) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, 0, len(r.entries))
	for _, entry := range r.entries {
		out = append(out, *entry)
	}
	return out
}

// run is the body of the interrupt thread.
func (r *Registry) run(th *thread, ready chan<- struct{}) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(th.done)

	th.tid = threadID()
	r.log.Debug("start", "tid", th.tid)
	r.state.Store(int32(StateRunning))
	close(ready)

	for {
		irq := th.next()
		if irq == TerminateIRQ {
			r.state.Store(int32(StateTerminating))
			break
		}
		r.dispatch(irq)
	}
	r.log.Debug("terminated", "tid", th.tid)
	r.state.Store(int32(StateStopped))
}

func (r *Registry) dispatch(irq IRQ) {
	r.mu.Lock()
	matched := make([]*Entry, 0, 1)
	for _, entry := range r.entries {
		if entry.IRQ == irq {
			matched = append(matched, entry)
		}
	}
	r.mu.Unlock()

	if len(matched) == 0 {
		r.log.Debug("no handler for irq", "irq", irq)
		return
	}
	for _, entry := range matched {
		r.log.Debug("dispatch", "irq", entry.IRQ, "name", entry.Name)
		err := entry.Handler(entry.IRQ, entry.Owner)
		if err != nil {
			r.log.Error("handler() failed", "irq", entry.IRQ, "name", entry.Name, "error", err)
		}
		if r.observer != nil {
			r.observer.ObserveDispatch(entry.IRQ, entry.Name, err)
		}
	}
}
