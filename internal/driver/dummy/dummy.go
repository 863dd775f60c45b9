// Package dummy implements a device that drops everything it transmits and
// never receives.
package dummy

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/tinyrange/ustack/internal/driver"
	"github.com/tinyrange/ustack/internal/intr"
	"github.com/tinyrange/ustack/internal/netdev"
)

const (
	// MTU is the largest IP datagram.
	MTU = math.MaxUint16
	IRQ = intr.IRQBase
)

type dummy struct {
	log  *slog.Logger
	irqs *intr.Registry
}

// Transmit drops the payload and raises the device interrupt.
func (d *dummy) Transmit(dev *netdev.Device, etherType uint16, payload []byte, dst []byte) error {
	d.log.Debug("transmit", "dev", dev.Name, "type", fmt.Sprintf("0x%04x", etherType), "len", len(payload))
	if err := d.irqs.RaiseIRQ(IRQ); err != nil {
		d.log.Warn("raise irq failed", "dev", dev.Name, "irq", IRQ, "error", err)
	}
	return nil
}

func (d *dummy) isr(irq intr.IRQ, owner any) error {
	dev, ok := owner.(*netdev.Device)
	if !ok {
		return fmt.Errorf("dummy: unexpected interrupt owner %T", owner)
	}
	d.log.Debug("isr", "irq", irq, "dev", dev.Name)
	return nil
}

// Init registers a dummy device and its shared interrupt with host.
func Init(host driver.Host) (*netdev.Device, error) {
	d := &dummy{
		log:  host.Logger().With("driver", "dummy"),
		irqs: host.Interrupts(),
	}

	dev := host.Devices().Alloc()
	dev.Type = netdev.TypeDummy
	dev.MTU = MTU
	dev.HeaderLen = 0
	dev.AddrLen = 0
	dev.Ops = d
	dev.Priv = d
	if _, err := host.Devices().Register(dev); err != nil {
		return nil, fmt.Errorf("dummy: register device: %w", err)
	}
	if err := d.irqs.RequestIRQ(IRQ, d.isr, intr.FlagShared, dev.Name, dev); err != nil {
		return nil, fmt.Errorf("dummy: request irq: %w", err)
	}
	d.log.Debug("initialized", "dev", dev.Name)
	return dev, nil
}
