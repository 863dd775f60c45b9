// Package metrics exports device traffic and interrupt dispatch counters to
// Prometheus.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tinyrange/ustack/internal/intr"
)

const namespace = "ustack"

// Collector implements netdev.Observer and intr.Observer and exposes the
// observed counts as a prometheus.Collector.
type Collector struct {
	txPackets *prometheus.CounterVec
	txBytes   *prometheus.CounterVec
	txErrors  *prometheus.CounterVec
	rxPackets *prometheus.CounterVec
	rxBytes   *prometheus.CounterVec
	dispatch  *prometheus.CounterVec
	failures  *prometheus.CounterVec
}

// New returns a Collector with all counters at zero.
func New() *Collector {
	deviceCounter := func(name, help string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "device",
			Name:      name,
			Help:      help,
		}, []string{"device"})
	}
	irqCounter := func(name, help string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "irq",
			Name:      name,
			Help:      help,
		}, []string{"irq", "name"})
	}
	return &Collector{
		txPackets: deviceCounter("tx_packets_total", "Payloads handed to a device's transmit capability."),
		txBytes:   deviceCounter("tx_bytes_total", "Bytes handed to a device's transmit capability."),
		txErrors:  deviceCounter("tx_errors_total", "Transmit calls that returned an error."),
		rxPackets: deviceCounter("rx_packets_total", "Payloads delivered to the input handler."),
		rxBytes:   deviceCounter("rx_bytes_total", "Bytes delivered to the input handler."),
		dispatch:  irqCounter("dispatch_total", "Interrupt handler invocations."),
		failures:  irqCounter("handler_errors_total", "Interrupt handler invocations that returned an error."),
	}
}

func (c *Collector) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.txPackets, c.txBytes, c.txErrors,
		c.rxPackets, c.rxBytes,
		c.dispatch, c.failures,
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, col := range c.collectors() {
		col.Describe(ch)
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, col := range c.collectors() {
		col.Collect(ch)
	}
}

// ObserveTransmit records one transmit attempt.
func (c *Collector) ObserveTransmit(dev string, bytes int, err error) {
	if err != nil {
		c.txErrors.WithLabelValues(dev).Inc()
		return
	}
	c.txPackets.WithLabelValues(dev).Inc()
	c.txBytes.WithLabelValues(dev).Add(float64(bytes))
}

// ObserveReceive records one payload handed to the input handler.
func (c *Collector) ObserveReceive(dev string, bytes int) {
	c.rxPackets.WithLabelValues(dev).Inc()
	c.rxBytes.WithLabelValues(dev).Add(float64(bytes))
}

// ObserveDispatch records one interrupt handler invocation.
func (c *Collector) ObserveDispatch(irq intr.IRQ, name string, err error) {
	line := strconv.FormatUint(uint64(irq), 10)
	c.dispatch.WithLabelValues(line, name).Inc()
	if err != nil {
		c.failures.WithLabelValues(line, name).Inc()
	}
}
