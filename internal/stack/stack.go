// Package stack brings the interrupt subsystem and the registered network
// devices up and down as one unit.
package stack

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/tinyrange/ustack/internal/intr"
	"github.com/tinyrange/ustack/internal/netdev"
)

// Option configures a Stack.
type Option func(*options)

type options struct {
	intr   []intr.Option
	netdev []netdev.Option
}

// WithInterruptOptions passes opts to the interrupt registry.
func WithInterruptOptions(opts ...intr.Option) Option {
	return func(o *options) { o.intr = append(o.intr, opts...) }
}

// WithDeviceOptions passes opts to the device registry.
func WithDeviceOptions(opts ...netdev.Option) Option {
	return func(o *options) { o.netdev = append(o.netdev, opts...) }
}

// Stack owns one interrupt registry and one device registry. Drivers
// register with both before Run.
type Stack struct {
	base *slog.Logger
	log  *slog.Logger
	irqs *intr.Registry
	devs *netdev.Registry

	initOnce sync.Once

	mu      sync.Mutex
	running bool
}

// New returns a Stack. A nil logger uses slog.Default.
func New(logger *slog.Logger, opts ...Option) *Stack {
	if logger == nil {
		logger = slog.Default()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return &Stack{
		base: logger,
		log:  logger.With("component", "stack"),
		irqs: intr.New(logger, o.intr...),
		devs: netdev.New(logger, o.netdev...),
	}
}

// Interrupts returns the interrupt registry.
func (s *Stack) Interrupts() *intr.Registry {
	return s.irqs
}

// Devices returns the device registry.
func (s *Stack) Devices() *netdev.Registry {
	return s.devs
}

// Logger returns the logger drivers should derive theirs from.
func (s *Stack) Logger() *slog.Logger {
	return s.base
}

// Init prepares the stack. Calling it more than once has no further effect.
func (s *Stack) Init() error {
	s.initOnce.Do(func() {
		s.log.Info("initialized")
	})
	return nil
}

// Run starts the interrupt thread and then opens every device. Failing to
// start the interrupt thread is fatal; devices that fail to open are logged
// and left down.
func (s *Stack) Run() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("stack: already running")
	}
	if err := s.irqs.Start(); err != nil {
		s.log.Error("intr start failed", "error", err)
		return fmt.Errorf("stack: start interrupts: %w", err)
	}
	if err := s.devs.Run(); err != nil {
		s.log.Warn("some devices failed to open", "error", err)
	}
	s.running = true
	s.log.Debug("running...")
	return nil
}

// Shutdown closes every device and then stops the interrupt thread. It does
// nothing if the stack is not running.
func (s *Stack) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	if err := s.devs.Shutdown(); err != nil {
		s.log.Warn("some devices failed to close", "error", err)
	}
	s.irqs.Shutdown()
	s.running = false
	s.log.Debug("shutdown complete")
}
