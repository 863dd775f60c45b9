package netdev

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Type identifies the kind of driver behind a device.
type Type uint16

const (
	TypeDummy    Type = 0x0000
	TypeLoopback Type = 0x0001
	TypeEthernet Type = 0x0002
)

func (t Type) String() string {
	switch t {
	case TypeDummy:
		return "dummy"
	case TypeLoopback:
		return "loopback"
	case TypeEthernet:
		return "ethernet"
	}
	return fmt.Sprintf("type(0x%04x)", uint16(t))
}

// Flags is the device flag set. FlagUp is the only flag the registry
// changes; drivers set the others before registration.
type Flags uint16

const (
	FlagUp           Flags = 0x0001
	FlagLoopback     Flags = 0x0010
	FlagBroadcast    Flags = 0x0020
	FlagPointToPoint Flags = 0x0040
	FlagNeedARP      Flags = 0x0100
)

// AddrLen is the capacity of a device's hardware address buffers.
const AddrLen = 16

// AuxKind selects how the auxiliary address of a device is interpreted.
type AuxKind uint8

const (
	AuxNone AuxKind = iota
	AuxPeer
	AuxBroadcast
)

// Ops is the capability table a driver supplies. Transmit is mandatory;
// drivers may additionally implement Opener and Closer.
type Ops interface {
	Transmit(dev *Device, etherType uint16, payload []byte, dst []byte) error
}

// Opener is the optional open capability.
type Opener interface {
	Open(dev *Device) error
}

// Closer is the optional close capability.
type Closer interface {
	Close(dev *Device) error
}

// Handle refers to a registered device.
type Handle uint

// Device is a network device. Index and Name are assigned by Register and
// must not be changed afterwards.
type Device struct {
	Index uint
	Name  string

	Type      Type
	MTU       uint16
	AddrLen   uint16
	HeaderLen uint16
	Addr      [AddrLen]byte

	Ops  Ops
	Priv any

	aux     [AddrLen]byte
	auxKind AuxKind

	flags atomic.Uint32

	// life is held exclusively by Open and Close and shared by Output, so
	// Transmit never runs while a driver open or close callback does.
	life sync.RWMutex
}

// Handle returns the handle of a registered device.
func (d *Device) Handle() Handle {
	return Handle(d.Index)
}

// Flags returns the current flag set.
func (d *Device) Flags() Flags {
	return Flags(d.flags.Load())
}

// SetFlags replaces the flag set. FlagUp in f is ignored.
func (d *Device) SetFlags(f Flags) {
	for {
		old := d.flags.Load()
		next := uint32(f&^FlagUp) | old&uint32(FlagUp)
		if d.flags.CompareAndSwap(old, next) {
			return
		}
	}
}

func (d *Device) setUp(up bool) {
	for {
		old := d.flags.Load()
		next := old &^ uint32(FlagUp)
		if up {
			next |= uint32(FlagUp)
		}
		if d.flags.CompareAndSwap(old, next) {
			return
		}
	}
}

// IsUp reports whether the device is open.
func (d *Device) IsUp() bool {
	return d.Flags()&FlagUp != 0
}

// State returns "UP" or "DOWN".
func (d *Device) State() string {
	if d.IsUp() {
		return "UP"
	}
	return "DOWN"
}

// SetPeer stores addr as the peer address of a point-to-point device.
func (d *Device) SetPeer(addr []byte) {
	d.setAux(AuxPeer, addr)
}

// SetBroadcast stores addr as the link-layer broadcast address.
func (d *Device) SetBroadcast(addr []byte) {
	d.setAux(AuxBroadcast, addr)
}

func (d *Device) setAux(kind AuxKind, addr []byte) {
	d.aux = [AddrLen]byte{}
	copy(d.aux[:], addr)
	d.auxKind = kind
}

// Peer returns the peer address if the device carries one.
func (d *Device) Peer() ([]byte, bool) {
	return d.auxAddr(AuxPeer)
}

// Broadcast returns the broadcast address if the device carries one.
func (d *Device) Broadcast() ([]byte, bool) {
	return d.auxAddr(AuxBroadcast)
}

func (d *Device) auxAddr(kind AuxKind) ([]byte, bool) {
	if d.auxKind != kind {
		return nil, false
	}
	return d.aux[:d.addrLen()], true
}

// HardwareAddr returns the significant bytes of Addr.
func (d *Device) HardwareAddr() []byte {
	return d.Addr[:d.addrLen()]
}

func (d *Device) addrLen() int {
	return min(int(d.AddrLen), AddrLen)
}

func (d *Device) String() string {
	return fmt.Sprintf("%s(%s, mtu=%d, %s)", d.Name, d.Type, d.MTU, d.State())
}
