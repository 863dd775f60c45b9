//go:build unix

package intr

import (
	"fmt"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// maxSignal bounds the signal numbers usable as lines.
const maxSignal = 64

func signalFor(irq IRQ) (os.Signal, error) {
	sig := unix.Signal(irq)
	switch {
	case irq == TerminateIRQ:
		return nil, fmt.Errorf("%w: irq=%d is reserved", ErrMaskConfig, irq)
	case irq == 0 || irq > maxSignal:
		return nil, fmt.Errorf("%w: irq=%d is not a signal number", ErrMaskConfig, irq)
	case sig == unix.SIGKILL || sig == unix.SIGSTOP:
		return nil, fmt.Errorf("%w: irq=%d (%s) cannot be caught", ErrMaskConfig, irq, unix.SignalName(sig))
	}
	return syscall.Signal(sig), nil
}

func irqFromSignal(sig os.Signal) (IRQ, bool) {
	s, ok := sig.(syscall.Signal)
	if !ok {
		return 0, false
	}
	return IRQ(s), true
}

func raiseSignal(irq IRQ) error {
	if _, err := signalFor(irq); err != nil {
		return err
	}
	if err := unix.Kill(unix.Getpid(), unix.Signal(irq)); err != nil {
		return fmt.Errorf("intr: raise irq=%d: %w", irq, err)
	}
	return nil
}
