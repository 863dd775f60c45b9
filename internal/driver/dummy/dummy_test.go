package dummy_test

import (
	"sync"
	"testing"
	"time"

	"github.com/tinyrange/ustack/internal/driver/dummy"
	"github.com/tinyrange/ustack/internal/intr"
	"github.com/tinyrange/ustack/internal/netdev"
	"github.com/tinyrange/ustack/internal/stack"
)

type dispatchLog struct {
	mu    sync.Mutex
	names []string
	errs  int
}

func (d *dispatchLog) ObserveDispatch(irq intr.IRQ, name string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if irq == dummy.IRQ {
		d.names = append(d.names, name)
	}
	if err != nil {
		d.errs++
	}
}

func (d *dispatchLog) snapshot() ([]string, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.names...), d.errs
}

func TestTransmitRaisesSharedInterrupt(t *testing.T) {
	log := &dispatchLog{}
	s := stack.New(nil, stack.WithInterruptOptions(intr.WithObserver(log)))
	t.Cleanup(s.Shutdown)

	first, err := dummy.Init(s)
	if err != nil {
		t.Fatalf("init first: %v", err)
	}
	second, err := dummy.Init(s)
	if err != nil {
		t.Fatalf("init second: %v", err)
	}
	if first.Type != netdev.TypeDummy || first.MTU != dummy.MTU || second.Name != "net1" {
		t.Fatalf("devices = %s, %s", first, second)
	}
	if err := s.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := s.Devices().Output(first.Handle(), 0x0800, []byte{0x45}, nil); err != nil {
		t.Fatalf("output: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		names, errs := log.snapshot()
		if len(names) == 2 {
			if names[0] != "net1" || names[1] != "net0" || errs != 0 {
				t.Fatalf("dispatch = %v errs=%d, want [net1 net0]", names, errs)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("dispatch = %v, want both shared handlers", names)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestTransmitWithoutInterruptThreadStillDrops(t *testing.T) {
	s := stack.New(nil)
	dev, err := dummy.Init(s)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := s.Devices().Open(dev.Handle()); err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Devices().Output(dev.Handle(), 0x0800, make([]byte, dummy.MTU), nil); err != nil {
		t.Fatalf("output: %v", err)
	}
}
