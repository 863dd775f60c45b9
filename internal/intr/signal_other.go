//go:build !unix

package intr

import (
	"fmt"
	"os"
)

func signalFor(irq IRQ) (os.Signal, error) {
	return nil, fmt.Errorf("%w: signal lines are not supported on this platform", ErrMaskConfig)
}

func irqFromSignal(os.Signal) (IRQ, bool) {
	return 0, false
}

func raiseSignal(irq IRQ) error {
	_, err := signalFor(irq)
	return err
}
