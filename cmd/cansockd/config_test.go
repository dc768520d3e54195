package main

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kstaniek/go-cansock/internal/can"
)

func validConfig() *appConfig {
	return &appConfig{
		canIf:        "can0",
		listenAddr:   ":20100",
		logFormat:    "text",
		logLevel:     "info",
		hubBuffer:    8,
		hubPolicy:    "drop",
		handshakeTO:  time.Second,
		clientReadTO: time.Second,
		rxTimeout:    200 * time.Millisecond,
		openAttempts: 1,
	}
}

func TestConfigValidate_OK(t *testing.T) {
	if err := validConfig().validate(); err != nil {
		t.Fatalf("expected ok got %v", err)
	}
}

func TestConfigValidate_Errors(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*appConfig)
	}{
		{"badFormat", func(c *appConfig) { c.logFormat = "xx" }},
		{"badLevel", func(c *appConfig) { c.logLevel = "nope" }},
		{"badPolicy", func(c *appConfig) { c.hubPolicy = "x" }},
		{"emptyIf", func(c *appConfig) { c.canIf = "" }},
		{"longIf", func(c *appConfig) { c.canIf = "averyverylongcan0" }},
		{"badHubBuf", func(c *appConfig) { c.hubBuffer = 0 }},
		{"badHandshakeTO", func(c *appConfig) { c.handshakeTO = 0 }},
		{"badClientReadTO", func(c *appConfig) { c.clientReadTO = 0 }},
		{"badRxTO", func(c *appConfig) { c.rxTimeout = 0 }},
		{"badAttempts", func(c *appConfig) { c.openAttempts = 0 }},
		{"badMaxClients", func(c *appConfig) { c.maxClients = -1 }},
		{"badMetricsInterval", func(c *appConfig) { c.logMetricsEvery = -time.Second }},
	}
	for _, tc := range tests {
		c := validConfig()
		tc.mod(c)
		if err := c.validate(); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}

func TestParseArgsDefaults(t *testing.T) {
	cfg, showVersion, err := parseArgs(nil, io.Discard)
	if err != nil {
		t.Fatalf("parseArgs: %v", err)
	}
	if showVersion {
		t.Fatal("unexpected version request")
	}
	if cfg.canIf != "can0" || cfg.hubPolicy != "drop" || !cfg.loopback || cfg.recvOwn {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestParseArgsVersion(t *testing.T) {
	_, showVersion, err := parseArgs([]string{"-version"}, io.Discard)
	if err != nil || !showVersion {
		t.Fatalf("showVersion=%v err=%v", showVersion, err)
	}
}

func TestParseArgsInvalid(t *testing.T) {
	if _, _, err := parseArgs([]string{"-hub-policy", "block"}, io.Discard); err == nil {
		t.Fatal("expected validation error")
	}
}

const sampleYAML = `
can-if: vcan1
listen: 127.0.0.1:9999
hub-policy: kick
rx-timeout: 50ms
recv-own: true
filters:
  - id: 0x123
    mask: 0x7FF
  - id: 0x80000000
    mask: 0x80000000
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "cansockd.yaml")
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestConfigFile(t *testing.T) {
	p := writeConfig(t, sampleYAML)
	cfg, _, err := parseArgs([]string{"-config", p}, io.Discard)
	if err != nil {
		t.Fatalf("parseArgs: %v", err)
	}
	if cfg.canIf != "vcan1" || cfg.listenAddr != "127.0.0.1:9999" || cfg.hubPolicy != "kick" {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.rxTimeout != 50*time.Millisecond || !cfg.recvOwn {
		t.Fatalf("rxTimeout=%v recvOwn=%v", cfg.rxTimeout, cfg.recvOwn)
	}
	want := []can.Filter{{ID: 0x123, Mask: 0x7FF}, {ID: can.CAN_EFF_FLAG, Mask: can.CAN_EFF_FLAG}}
	if len(cfg.filters) != len(want) {
		t.Fatalf("filters=%v", cfg.filters)
	}
	for i := range want {
		if cfg.filters[i] != want[i] {
			t.Fatalf("filter %d = %+v want %+v", i, cfg.filters[i], want[i])
		}
	}
	// untouched keys keep flag defaults
	if cfg.hubBuffer != 512 || !cfg.loopback {
		t.Fatalf("defaults lost: hubBuffer=%d loopback=%v", cfg.hubBuffer, cfg.loopback)
	}
}

func TestConfigFilePrecedence(t *testing.T) {
	p := writeConfig(t, sampleYAML)
	t.Setenv("CANSOCK_LISTEN", ":7000")
	t.Setenv("CANSOCK_HUB_POLICY", "drop")
	cfg, _, err := parseArgs([]string{"-config", p, "-hub-policy", "kick"}, io.Discard)
	if err != nil {
		t.Fatalf("parseArgs: %v", err)
	}
	if cfg.listenAddr != ":7000" {
		t.Fatalf("env should beat file, got %q", cfg.listenAddr)
	}
	if cfg.hubPolicy != "kick" {
		t.Fatalf("flag should beat env, got %q", cfg.hubPolicy)
	}
	if cfg.canIf != "vcan1" {
		t.Fatalf("file should beat default, got %q", cfg.canIf)
	}
}

func TestConfigFileErrors(t *testing.T) {
	if _, _, err := parseArgs([]string{"-config", filepath.Join(t.TempDir(), "missing.yaml")}, io.Discard); err == nil {
		t.Fatal("expected error for missing file")
	}
	p := writeConfig(t, "rx-timeout: [1, 2]\n")
	if _, _, err := parseArgs([]string{"-config", p}, io.Discard); err == nil {
		t.Fatal("expected error for malformed file")
	}
}
