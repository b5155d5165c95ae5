package config

import (
	"strings"
	"testing"
	"time"
)

func TestParseEnvFileOverridesDefaults(t *testing.T) {
	cfg := &ProxyConfig{Port: "22222", ConnectTimeout: defaultConnectTimeout}
	content := strings.Join([]string{
		"# comment",
		"USBPROXY_HOST=usb-host.local",
		"USBPROXY_PORT=7000",
		"USBPROXY_CONNECT_TIMEOUT_MS=1500",
		"USBPROXY_QUIET=true",
	}, "\n")

	parseEnvFile(content, cfg)

	if cfg.Host != "usb-host.local" {
		t.Errorf("Host = %q, want usb-host.local", cfg.Host)
	}
	if cfg.Port != "7000" {
		t.Errorf("Port = %q, want 7000", cfg.Port)
	}
	if cfg.ConnectTimeout != 1500*time.Millisecond {
		t.Errorf("ConnectTimeout = %v, want 1500ms", cfg.ConnectTimeout)
	}
	if !cfg.Quiet {
		t.Error("Quiet = false, want true")
	}
}

func TestParseEnvFileIgnoresMalformedLines(t *testing.T) {
	cfg := &ProxyConfig{}
	parseEnvFile("not a valid line\nUSBPROXY_HOST=ok\n", cfg)
	if cfg.Host != "ok" {
		t.Errorf("Host = %q, want ok", cfg.Host)
	}
}
