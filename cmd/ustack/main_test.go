package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("USTACK_LOG_LEVEL", "")
	var stdout, stderr bytes.Buffer
	root := newRootCommand()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func TestConfigCommandPrintsDefaults(t *testing.T) {
	out, _, err := execute(t, "config")
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	for _, want := range []string{"driver: loopback", "interval: 1s"} {
		if !strings.Contains(out, want) {
			t.Fatalf("config output missing %q:\n%s", want, out)
		}
	}
}

func TestRunLoopbackCapturesTrafficBothWays(t *testing.T) {
	dir := t.TempDir()
	capturePath := filepath.Join(dir, "out.pcap")
	_, logs, err := execute(t, "run", "--count", "3", "--interval", "1ms", "--capture", capturePath)
	if err != nil {
		t.Fatalf("run: %v\n%s", err, logs)
	}

	data, err := os.ReadFile(capturePath)
	if err != nil {
		t.Fatalf("read capture: %v", err)
	}
	// Three transmitted and three looped-back 48-byte echo requests.
	want := 24 + 6*(16+48)
	if len(data) != want {
		t.Fatalf("capture is %d bytes, want %d", len(data), want)
	}
	if !strings.Contains(logs, "opened") || !strings.Contains(logs, "closed") {
		t.Fatalf("lifecycle not logged:\n%s", logs)
	}
}

func TestRunRejectsUnknownTrafficDevice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ustack.yaml")
	doc := "devices:\n  - driver: dummy\ntraffic:\n  device: net7\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	_, _, err := execute(t, "run", "--config", path, "--count", "1")
	if err == nil || !strings.Contains(err.Error(), "net7") {
		t.Fatalf("run error = %v, want unknown device net7", err)
	}
}

func TestRunDummyDevice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ustack.yaml")
	doc := "devices:\n  - driver: dummy\n  - driver: loopback\ntraffic:\n  interval: 1ms\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, logs, err := execute(t, "run", "--config", path, "--count", "2"); err != nil {
		t.Fatalf("run: %v\n%s", err, logs)
	}
}
