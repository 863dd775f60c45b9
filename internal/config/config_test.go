package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestParseOverridesDefaults(t *testing.T) {
	doc := `
log:
  level: debug
interrupts:
  signals: true
devices:
  - driver: dummy
  - driver: loopback
capture:
  path: /tmp/ustack.pcap
  snapLen: 128
metrics:
  listen: 127.0.0.1:9100
traffic:
  interval: 250ms
  device: net1
`
	cfg, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "auto" {
		t.Fatalf("log = %+v", cfg.Log)
	}
	if !cfg.Interrupts.Signals || cfg.Interrupts.LateRegistration {
		t.Fatalf("interrupts = %+v", cfg.Interrupts)
	}
	if len(cfg.Devices) != 2 || cfg.Devices[0].Driver != DriverDummy || cfg.Devices[1].Driver != DriverLoopback {
		t.Fatalf("devices = %+v", cfg.Devices)
	}
	if cfg.Capture.Path != "/tmp/ustack.pcap" || cfg.Capture.SnapLen != 128 {
		t.Fatalf("capture = %+v", cfg.Capture)
	}
	if cfg.Metrics.Listen != "127.0.0.1:9100" {
		t.Fatalf("metrics = %+v", cfg.Metrics)
	}
	if cfg.Traffic.Interval != 250*time.Millisecond || cfg.Traffic.EtherType != 0x0800 || cfg.Traffic.Device != "net1" {
		t.Fatalf("traffic = %+v", cfg.Traffic)
	}
}

func TestParseEmptyDocumentYieldsDefaults(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(cfg.Devices) != 1 || cfg.Devices[0].Driver != DriverLoopback {
		t.Fatalf("devices = %+v", cfg.Devices)
	}
}

func TestParseRejectsInvalidDocuments(t *testing.T) {
	tests := map[string]string{
		"unknown key":    "bogus: true\n",
		"unknown driver": "devices:\n  - driver: ethernet\n",
		"no devices":     "devices: []\n",
		"bad level":      "log:\n  level: loud\n",
		"zero interval":  "traffic:\n  interval: 0s\n",
		"bad format":     "log:\n  format: xml\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(doc)); err == nil {
				t.Fatalf("parse succeeded for %q", doc)
			}
		})
	}
}

func TestLoadReportsPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ustack.yaml")
	if err := os.WriteFile(path, []byte("devices:\n  - driver: nope\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), path) {
		t.Fatalf("load error = %v, want mention of %s", err, path)
	}

	if err := os.WriteFile(path, []byte("devices:\n  - driver: dummy\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Devices[0].Driver != DriverDummy {
		t.Fatalf("devices = %+v", cfg.Devices)
	}
}
