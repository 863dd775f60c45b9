package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tinyrange/ustack/internal/config"
	"github.com/tinyrange/ustack/internal/driver/dummy"
	"github.com/tinyrange/ustack/internal/driver/loopback"
	"github.com/tinyrange/ustack/internal/intr"
	"github.com/tinyrange/ustack/internal/logging"
	"github.com/tinyrange/ustack/internal/metrics"
	"github.com/tinyrange/ustack/internal/netdev"
	"github.com/tinyrange/ustack/internal/pcap"
	"github.com/tinyrange/ustack/internal/stack"
)

type runFlags struct {
	debug    bool
	capture  string
	listen   string
	interval time.Duration
	signals  bool
	count    int
}

// apply overrides cfg with the flags given on the command line.
func (f *runFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if f.debug {
		cfg.Log.Level = "debug"
	}
	if flags.Changed("capture") {
		cfg.Capture.Path = f.capture
	}
	if flags.Changed("metrics-listen") {
		cfg.Metrics.Listen = f.listen
	}
	if flags.Changed("interval") {
		cfg.Traffic.Interval = f.interval
	}
	if flags.Changed("signals") {
		cfg.Interrupts.Signals = f.signals
	}
}

func newRunCommand() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Bring up the configured devices and send a test packet periodically",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			f.apply(cmd, cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}
			logger, err := logging.New(logging.Options{
				Level:  cfg.Log.Level,
				Format: cfg.Log.Format,
				Output: cmd.ErrOrStderr(),
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, logger, f.count)
		},
	}
	flags := cmd.Flags()
	flags.BoolVar(&f.debug, "debug", false, "Enable debug logging")
	flags.StringVar(&f.capture, "capture", "", "Write all device traffic to this pcap file")
	flags.StringVar(&f.listen, "metrics-listen", "", "Serve Prometheus metrics on this address")
	flags.DurationVar(&f.interval, "interval", time.Second, "Interval between test packets")
	flags.BoolVar(&f.signals, "signals", false, "Deliver interrupts as POSIX signals")
	flags.IntVar(&f.count, "count", 0, "Stop after sending this many packets (0 runs until interrupted)")
	return cmd
}

func initDriver(st *stack.Stack, driver string) (*netdev.Device, error) {
	switch driver {
	case config.DriverDummy:
		return dummy.Init(st)
	case config.DriverLoopback:
		return loopback.Init(st)
	}
	return nil, fmt.Errorf("unknown driver %q", driver)
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, count int) error {
	collector := metrics.New()
	reg := prometheus.NewRegistry()
	reg.MustRegister(collector, collectors.NewGoCollector())

	intrOpts := []intr.Option{intr.WithObserver(collector)}
	devOpts := []netdev.Option{netdev.WithObserver(collector)}
	if cfg.Interrupts.Signals {
		intrOpts = append(intrOpts, intr.WithSignals())
	}
	if cfg.Interrupts.LateRegistration {
		intrOpts = append(intrOpts, intr.WithLateRegistration())
		devOpts = append(devOpts, netdev.WithLateRegistration())
	}
	if cfg.Capture.Path != "" {
		f, err := os.Create(cfg.Capture.Path)
		if err != nil {
			return fmt.Errorf("create capture file: %w", err)
		}
		capture, err := pcap.NewCapture(f, cfg.Capture.SnapLen, pcap.LinkTypeRaw)
		if err != nil {
			f.Close()
			return err
		}
		defer capture.Close()
		devOpts = append(devOpts, netdev.WithCapture(capture))
	}

	st := stack.New(logger, stack.WithInterruptOptions(intrOpts...), stack.WithDeviceOptions(devOpts...))
	if err := st.Init(); err != nil {
		return fmt.Errorf("init: %w", err)
	}
	for _, dc := range cfg.Devices {
		if _, err := initDriver(st, dc.Driver); err != nil {
			return fmt.Errorf("%s init: %w", dc.Driver, err)
		}
	}
	if err := st.Run(); err != nil {
		return fmt.Errorf("run: %w", err)
	}
	defer st.Shutdown()

	target := cfg.Traffic.Device
	if target == "" {
		target = "net0"
	}
	dev, ok := st.Devices().ByName(target)
	if !ok {
		return fmt.Errorf("traffic device %q is not registered", target)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	if cfg.Metrics.Listen != "" {
		srv := &http.Server{
			Addr:              cfg.Metrics.Listen,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info("serving metrics", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		defer cancel()
		return generate(ctx, logger, st.Devices(), dev, cfg.Traffic, count)
	})
	return g.Wait()
}

// generate writes an ICMP echo request to dev every interval until ctx is done or
// count packets have been sent.
func generate(ctx context.Context, logger *slog.Logger, devs *netdev.Registry, dev *netdev.Device, traffic config.TrafficConfig, count int) error {
	ticker := time.NewTicker(traffic.Interval)
	defer ticker.Stop()

	for sent := 0; count == 0 || sent < count; sent++ {
		pkt, err := echoRequest(0x80, sent+1)
		if err != nil {
			return err
		}
		if err := devs.Output(dev.Handle(), traffic.EtherType, pkt, nil); err != nil {
			logger.Error("output failed", "dev", dev.Name, "error", err)
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
	return nil
}
