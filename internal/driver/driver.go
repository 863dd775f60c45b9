// Package driver holds what concrete device drivers need from the stack.
package driver

import (
	"log/slog"

	"github.com/tinyrange/ustack/internal/intr"
	"github.com/tinyrange/ustack/internal/netdev"
)

// Host is implemented by *stack.Stack.
type Host interface {
	Interrupts() *intr.Registry
	Devices() *netdev.Registry
	Logger() *slog.Logger
}
