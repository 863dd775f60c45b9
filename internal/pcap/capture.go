// Package pcap records device traffic as a classic libpcap stream.
package pcap

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"time"
)

// Link-layer (DLT) identifiers written in the global header. The values match
// the tcpdump/libpcap definitions.
const (
	LinkTypeEthernet uint32 = 1
	// LinkTypeRaw marks records that start directly with an IPv4 or IPv6
	// header, which is what header-less devices carry.
	LinkTypeRaw uint32 = 101
)

// DefaultSnapLen is large enough for any frame a device can accept.
const DefaultSnapLen uint32 = math.MaxUint16

const (
	fileHeaderLen   = 24
	recordHeaderLen = 16
	magic           = 0xa1b2c3d4
	versionMajor    = 2
	versionMinor    = 4
)

// ErrClosed is returned when recording into a closed Capture.
var ErrClosed = errors.New("pcap: capture closed")

// Capture appends packet records to a pcap stream. It is safe for concurrent
// use; records are written whole and in call order.
type Capture struct {
	mu      sync.Mutex
	w       io.Writer
	snapLen uint32
	now     func() time.Time
	packets uint64
	closed  bool
}

// NewCapture writes the global header to w and returns a Capture ready to
// record. A zero snapLen selects DefaultSnapLen.
func NewCapture(w io.Writer, snapLen uint32, linkType uint32) (*Capture, error) {
	if snapLen == 0 {
		snapLen = DefaultSnapLen
	}

	var hdr [fileHeaderLen]byte
	binary.LittleEndian.PutUint32(hdr[0:4], magic)
	binary.LittleEndian.PutUint16(hdr[4:6], versionMajor)
	binary.LittleEndian.PutUint16(hdr[6:8], versionMinor)
	// thiszone and sigfigs stay zero.
	binary.LittleEndian.PutUint32(hdr[16:20], snapLen)
	binary.LittleEndian.PutUint32(hdr[20:24], linkType)
	if _, err := w.Write(hdr[:]); err != nil {
		return nil, fmt.Errorf("pcap: write header: %w", err)
	}

	return &Capture{
		w:       w,
		snapLen: snapLen,
		now:     time.Now,
	}, nil
}

// Record appends data as one packet. Data longer than the snap length is
// truncated; the original length is preserved in the record header.
func (c *Capture) Record(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if uint64(len(data)) > math.MaxUint32 {
		return fmt.Errorf("pcap: packet length %d overflows uint32", len(data))
	}

	ts := c.now()
	sec := ts.Unix()
	if sec < 0 || sec > math.MaxUint32 {
		return fmt.Errorf("pcap: timestamp seconds %d out of range", sec)
	}
	captured := data
	if uint32(len(captured)) > c.snapLen {
		captured = captured[:c.snapLen]
	}

	rec := make([]byte, recordHeaderLen+len(captured))
	binary.LittleEndian.PutUint32(rec[0:4], uint32(sec))
	binary.LittleEndian.PutUint32(rec[4:8], uint32(ts.Nanosecond()/1_000))
	binary.LittleEndian.PutUint32(rec[8:12], uint32(len(captured)))
	binary.LittleEndian.PutUint32(rec[12:16], uint32(len(data)))
	copy(rec[recordHeaderLen:], captured)

	if _, err := c.w.Write(rec); err != nil {
		return fmt.Errorf("pcap: write record: %w", err)
	}
	c.packets++
	return nil
}

// Packets returns the number of records written.
func (c *Capture) Packets() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.packets
}

// Close stops recording and closes the underlying writer if it is an
// io.Closer.
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if closer, ok := c.w.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
