package intr

import (
	"os"
	"os/signal"
	"sync"
)

// lineQueue is an unbounded FIFO of raised lines. Every raise is kept, so a
// line raised N times is dispatched N times.
type lineQueue struct {
	mu      sync.Mutex
	pending []IRQ
	wake    chan struct{}
}

func newLineQueue() *lineQueue {
	return &lineQueue{wake: make(chan struct{}, 1)}
}

func (q *lineQueue) push(irq IRQ) {
	q.mu.Lock()
	q.pending = append(q.pending, irq)
	q.mu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *lineQueue) pop() (IRQ, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return 0, false
	}
	irq := q.pending[0]
	q.pending[0] = 0
	q.pending = q.pending[1:]
	return irq, true
}

type thread struct {
	queue *lineQueue
	done  chan struct{}
	tid   int

	// signals stays nil unless lines are bridged to POSIX signals; a nil
	// channel never becomes ready in next.
	signals    chan os.Signal
	subscribed []os.Signal
}

func newThread(signals bool) *thread {
	t := &thread{
		queue: newLineQueue(),
		done:  make(chan struct{}),
	}
	if signals {
		t.signals = make(chan os.Signal, 64)
	}
	return t
}

// next blocks until a line is delivered.
func (t *thread) next() IRQ {
	for {
		if irq, ok := t.queue.pop(); ok {
			return irq
		}
		select {
		case <-t.queue.wake:
		case sig := <-t.signals:
			if irq, ok := irqFromSignal(sig); ok {
				return irq
			}
		}
	}
}

func (t *thread) subscribe(irq IRQ) error {
	sig, err := signalFor(irq)
	if err != nil {
		return err
	}
	signal.Notify(t.signals, sig)
	t.subscribed = append(t.subscribed, sig)
	return nil
}

// unsubscribe leaves the subscribed signals ignored rather than restoring
// their default action, which terminates the process for real-time signals.
// A raise racing with Shutdown is then dropped.
func (t *thread) unsubscribe() {
	if t.signals == nil {
		return
	}
	if len(t.subscribed) > 0 {
		signal.Ignore(t.subscribed...)
	}
	signal.Stop(t.signals)
	t.subscribed = nil
}
