// Package netdev keeps the registry of network devices and dispatches
// lifecycle and transmit requests to the driver capability tables.
package netdev

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/tinyrange/ustack/internal/pcap"
)

var (
	ErrAlreadyUp          = errors.New("netdev: device already opened")
	ErrNotUp              = errors.New("netdev: device not opened")
	ErrOpenFailed         = errors.New("netdev: open failed")
	ErrCloseFailed        = errors.New("netdev: close failed")
	ErrMTUExceeded        = errors.New("netdev: payload exceeds mtu")
	ErrTransmitFailed     = errors.New("netdev: transmit failed")
	ErrNoDevice           = errors.New("netdev: no such device")
	ErrRegistrationClosed = errors.New("netdev: registration closed after run")
)

// InputFunc receives payloads handed up by drivers. It is the attachment
// point for a protocol demultiplexer.
type InputFunc func(etherType uint16, payload []byte, dev *Device)

// Observer receives per-device traffic counts.
type Observer interface {
	ObserveTransmit(dev string, bytes int, err error)
	ObserveReceive(dev string, bytes int)
}

// Option configures a Registry.
type Option func(*Registry)

// WithObserver reports traffic to o.
func WithObserver(o Observer) Option {
	return func(r *Registry) { r.observer = o }
}

// WithCapture records every transmitted and received payload to c.
func WithCapture(c *pcap.Capture) Option {
	return func(r *Registry) { r.capture = c }
}

// WithInput forwards received payloads to fn after they have been logged.
func WithInput(fn InputFunc) Option {
	return func(r *Registry) { r.input = fn }
}

// WithLateRegistration permits Register after Run.
func WithLateRegistration() Option {
	return func(r *Registry) { r.allowLate = true }
}

// Registry owns every registered device. Devices are never removed.
type Registry struct {
	log       *slog.Logger
	observer  Observer
	capture   *pcap.Capture
	input     InputFunc
	allowLate bool

	mu      sync.RWMutex
	arena   []*Device // indexed by Device.Index
	devices []*Device // most recently registered first
	running bool
}

// New returns an empty Registry. A nil logger uses slog.Default.
func New(logger *slog.Logger, opts ...Option) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{log: logger.With("component", "netdev")}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Alloc returns a zeroed device for a driver to fill in before Register.
func (r *Registry) Alloc() *Device {
	return &Device{}
}

// Register assigns dev the next index and its "net<index>" name and takes
// ownership of it.
func (r *Registry) Register(dev *Device) (Handle, error) {
	if dev == nil {
		return 0, fmt.Errorf("netdev: register nil device")
	}
	if dev.Ops == nil {
		return 0, fmt.Errorf("netdev: register device without ops")
	}

	r.mu.Lock()
	if r.running && !r.allowLate {
		r.mu.Unlock()
		return 0, ErrRegistrationClosed
	}
	dev.Index = uint(len(r.arena))
	dev.Name = "net" + strconv.FormatUint(uint64(dev.Index), 10)
	r.arena = append(r.arena, dev)
	r.devices = append([]*Device{dev}, r.devices...)
	r.mu.Unlock()

	r.log.Info("registered", "dev", dev.Name, "type", fmt.Sprintf("0x%04x", uint16(dev.Type)))
	return dev.Handle(), nil
}

// Lookup returns the device behind h.
func (r *Registry) Lookup(h Handle) (*Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if uint(h) >= uint(len(r.arena)) {
		return nil, fmt.Errorf("%w: handle %d", ErrNoDevice, h)
	}
	return r.arena[h], nil
}

// ByName returns the device called name.
func (r *Registry) ByName(name string) (*Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, dev := range r.arena {
		if dev.Name == name {
			return dev, true
		}
	}
	return nil, false
}

// Devices returns the registered devices, most recently registered first.
func (r *Registry) Devices() []*Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Device(nil), r.devices...)
}

// Open brings the device up.
func (r *Registry) Open(h Handle) error {
	dev, err := r.Lookup(h)
	if err != nil {
		return err
	}
	return r.open(dev)
}

func (r *Registry) open(dev *Device) error {
	dev.life.Lock()
	defer dev.life.Unlock()

	if dev.IsUp() {
		r.log.Error("already opened", "dev", dev.Name)
		return fmt.Errorf("%w: dev=%s", ErrAlreadyUp, dev.Name)
	}
	if opener, ok := dev.Ops.(Opener); ok {
		if err := opener.Open(dev); err != nil {
			r.log.Error("open() failed", "dev", dev.Name, "error", err)
			return fmt.Errorf("%w: dev=%s: %w", ErrOpenFailed, dev.Name, err)
		}
	}
	dev.setUp(true)
	r.log.Info("opened", "dev", dev.Name, "state", dev.State())
	return nil
}

// Close brings the device down.
func (r *Registry) Close(h Handle) error {
	dev, err := r.Lookup(h)
	if err != nil {
		return err
	}
	return r.close(dev)
}

func (r *Registry) close(dev *Device) error {
	dev.life.Lock()
	defer dev.life.Unlock()

	if !dev.IsUp() {
		r.log.Error("not opened", "dev", dev.Name)
		return fmt.Errorf("%w: dev=%s", ErrNotUp, dev.Name)
	}
	if closer, ok := dev.Ops.(Closer); ok {
		if err := closer.Close(dev); err != nil {
			r.log.Error("close() failed", "dev", dev.Name, "error", err)
			return fmt.Errorf("%w: dev=%s: %w", ErrCloseFailed, dev.Name, err)
		}
	}
	dev.setUp(false)
	r.log.Info("closed", "dev", dev.Name, "state", dev.State())
	return nil
}

// Output hands payload to the device's transmit capability. The caller is
// responsible for fitting payload into the device MTU. Output waits for an
// Open or Close of the same device in progress.
func (r *Registry) Output(h Handle, etherType uint16, payload []byte, dst []byte) error {
	dev, err := r.Lookup(h)
	if err != nil {
		return err
	}
	dev.life.RLock()
	defer dev.life.RUnlock()

	if !dev.IsUp() {
		r.log.Error("not opened", "dev", dev.Name)
		return fmt.Errorf("%w: dev=%s", ErrNotUp, dev.Name)
	}
	if len(payload) > int(dev.MTU) {
		r.log.Error("too large packet", "dev", dev.Name, "len", len(payload), "mtu", dev.MTU)
		return fmt.Errorf("%w: dev=%s len=%d mtu=%d", ErrMTUExceeded, dev.Name, len(payload), dev.MTU)
	}

	r.trace("output", dev, etherType, payload)
	r.record(dev, payload)

	err = dev.Ops.Transmit(dev, etherType, payload, dst)
	if r.observer != nil {
		r.observer.ObserveTransmit(dev.Name, len(payload), err)
	}
	if err != nil {
		r.log.Error("transmit() failed", "dev", dev.Name, "len", len(payload), "error", err)
		return fmt.Errorf("%w: dev=%s: %w", ErrTransmitFailed, dev.Name, err)
	}
	return nil
}

// InputHandler accepts a payload received by dev. Drivers call it from
// their interrupt handlers.
func (r *Registry) InputHandler(etherType uint16, payload []byte, dev *Device) error {
	r.trace("input", dev, etherType, payload)
	r.record(dev, payload)
	if r.observer != nil {
		r.observer.ObserveReceive(dev.Name, len(payload))
	}
	if r.input != nil {
		r.input(etherType, payload, dev)
	}
	return nil
}

// Run opens every device. A device that fails to open is logged and
// skipped; the failures are returned joined.
func (r *Registry) Run() error {
	r.log.Debug("open all devices...")
	var errs []error
	for _, dev := range r.Devices() {
		if err := r.open(dev); err != nil {
			r.log.Error("open device failed", "dev", dev.Name, "error", err)
			errs = append(errs, err)
		}
	}
	r.mu.Lock()
	r.running = true
	r.mu.Unlock()
	r.log.Debug("running...")
	return errors.Join(errs...)
}

// Shutdown closes every device, continuing past failures.
func (r *Registry) Shutdown() error {
	r.log.Debug("close all devices...")
	var errs []error
	for _, dev := range r.Devices() {
		if err := r.close(dev); err != nil {
			r.log.Error("close device failed", "dev", dev.Name, "error", err)
			errs = append(errs, err)
		}
	}
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()
	r.log.Debug("shutting down...")
	return errors.Join(errs...)
}

func (r *Registry) trace(op string, dev *Device, etherType uint16, payload []byte) {
	if !r.log.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	r.log.Debug(op,
		"dev", dev.Name,
		"type", fmt.Sprintf("0x%04x", etherType),
		"len", len(payload),
		"summary", Describe(etherType, payload),
	)
	r.log.Debug(op+" dump", "dev", dev.Name, "data", "\n"+hex.Dump(payload))
}

func (r *Registry) record(dev *Device, payload []byte) {
	if r.capture == nil {
		return
	}
	if err := r.capture.Record(payload); err != nil {
		r.log.Warn("capture failed", "dev", dev.Name, "error", err)
	}
}
