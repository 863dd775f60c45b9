// Package loopback implements a device that delivers every transmitted
// payload back to the input handler from its interrupt handler.
package loopback

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/tinyrange/ustack/internal/driver"
	"github.com/tinyrange/ustack/internal/intr"
	"github.com/tinyrange/ustack/internal/netdev"
)

const (
	MTU = math.MaxUint16
	IRQ = intr.IRQBase + 1
	// QueueLimit bounds the payloads waiting for the interrupt handler.
	QueueLimit = 16
)

var ErrQueueFull = errors.New("loopback: queue is full")

type queueEntry struct {
	etherType uint16
	payload   []byte
}

type loopback struct {
	log  *slog.Logger
	irqs *intr.Registry
	devs *netdev.Registry

	mu    sync.Mutex
	queue []queueEntry
}

// Transmit queues a copy of payload and raises the device interrupt. When
// the interrupt cannot be raised the payload is not kept.
func (l *loopback) Transmit(dev *netdev.Device, etherType uint16, payload []byte, dst []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.queue) >= QueueLimit {
		l.log.Error("queue is full", "dev", dev.Name)
		return ErrQueueFull
	}
	l.queue = append(l.queue, queueEntry{
		etherType: etherType,
		payload:   append([]byte(nil), payload...),
	})
	l.log.Debug("queue pushed", "dev", dev.Name, "num", len(l.queue), "type", fmt.Sprintf("0x%04x", etherType), "len", len(payload))

	// The interrupt thread pops under l.mu, so the entry is still last.
	if err := l.irqs.RaiseIRQ(IRQ); err != nil {
		l.queue[len(l.queue)-1] = queueEntry{}
		l.queue = l.queue[:len(l.queue)-1]
		return fmt.Errorf("loopback: raise irq: %w", err)
	}
	return nil
}

func (l *loopback) pop() (queueEntry, int, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return queueEntry{}, 0, false
	}
	entry := l.queue[0]
	l.queue[0] = queueEntry{}
	l.queue = l.queue[1:]
	return entry, len(l.queue), true
}

func (l *loopback) isr(irq intr.IRQ, owner any) error {
	dev, ok := owner.(*netdev.Device)
	if !ok {
		return fmt.Errorf("loopback: unexpected interrupt owner %T", owner)
	}
	for {
		entry, remaining, ok := l.pop()
		if !ok {
			return nil
		}
		l.log.Debug("queue popped", "dev", dev.Name, "num", remaining, "type", fmt.Sprintf("0x%04x", entry.etherType), "len", len(entry.payload))
		if err := l.devs.InputHandler(entry.etherType, entry.payload, dev); err != nil {
			return fmt.Errorf("loopback: input: %w", err)
		}
	}
}

// Init registers a loopback device and its shared interrupt with host.
func Init(host driver.Host) (*netdev.Device, error) {
	l := &loopback{
		log:  host.Logger().With("driver", "loopback"),
		irqs: host.Interrupts(),
		devs: host.Devices(),
	}

	dev := host.Devices().Alloc()
	dev.Type = netdev.TypeLoopback
	dev.MTU = MTU
	dev.HeaderLen = 0
	dev.AddrLen = 0
	dev.SetFlags(netdev.FlagLoopback)
	dev.Ops = l
	dev.Priv = l
	if _, err := host.Devices().Register(dev); err != nil {
		return nil, fmt.Errorf("loopback: register device: %w", err)
	}
	if err := l.irqs.RequestIRQ(IRQ, l.isr, intr.FlagShared, dev.Name, dev); err != nil {
		return nil, fmt.Errorf("loopback: request irq: %w", err)
	}
	l.log.Debug("initialized", "dev", dev.Name)
	return dev, nil
}
