// Package config loads proxy settings the way the teacher loads device
// settings: a .env file found by walking up from the working directory to
// the module root, then environment variables overriding whatever the file
// set.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ProxyConfig holds the settings the client and server executables share
// beyond their own CLI flags (§6's CLI contract covers the flags
// themselves).
type ProxyConfig struct {
	Host           string
	Port           string
	SSHAuthToken   string
	SSHPassword    string
	LibraryPath    string
	ConnectTimeout time.Duration
	AdminAddr      string
	Quiet          bool
}

var (
	proxyConfig  *ProxyConfig
	configLoaded bool
)

const defaultConnectTimeout = 5 * time.Second

// LoadProxyConfig loads (and caches) the proxy configuration.
func LoadProxyConfig() (*ProxyConfig, error) {
	if proxyConfig != nil && configLoaded {
		return proxyConfig, nil
	}

	cfg := &ProxyConfig{
		Port:           "22222",
		ConnectTimeout: defaultConnectTimeout,
		AdminAddr:      ":22223",
	}

	// Try to load from .env file in project root
	projectRoot := findProjectRoot()
	envPath := filepath.Join(projectRoot, ".env")

	data, err := os.ReadFile(envPath)
	if err == nil {
		parseEnvFile(string(data), cfg)
	}

	// Override with environment variables if set
	if host := os.Getenv("USBPROXY_HOST"); host != "" {
		cfg.Host = host
	}
	if port := os.Getenv("USBPROXY_PORT"); port != "" {
		cfg.Port = port
	}
	if token := os.Getenv("USBPROXY_SSH_TOKEN"); token != "" {
		cfg.SSHAuthToken = token
	}
	if pass := os.Getenv("USBPROXY_SSH_PASSWORD"); pass != "" {
		cfg.SSHPassword = pass
	}
	if lib := os.Getenv("USBPROXY_LIBRARY_PATH"); lib != "" {
		cfg.LibraryPath = lib
	}
	if admin := os.Getenv("USBPROXY_ADMIN_ADDR"); admin != "" {
		cfg.AdminAddr = admin
	}
	if timeout := os.Getenv("USBPROXY_CONNECT_TIMEOUT_MS"); timeout != "" {
		if ms, err := strconv.Atoi(timeout); err == nil {
			cfg.ConnectTimeout = time.Duration(ms) * time.Millisecond
		}
	}
	if quiet := os.Getenv("USBPROXY_QUIET"); quiet != "" {
		cfg.Quiet = quiet == "1" || strings.EqualFold(quiet, "true")
	}

	proxyConfig = cfg
	configLoaded = true
	return cfg, nil
}

func parseEnvFile(content string, cfg *ProxyConfig) {
	lines := strings.Split(content, "\n")
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		switch key {
		case "USBPROXY_HOST":
			cfg.Host = value
		case "USBPROXY_PORT":
			cfg.Port = value
		case "USBPROXY_SSH_TOKEN":
			cfg.SSHAuthToken = value
		case "USBPROXY_SSH_PASSWORD":
			cfg.SSHPassword = value
		case "USBPROXY_LIBRARY_PATH":
			cfg.LibraryPath = value
		case "USBPROXY_ADMIN_ADDR":
			cfg.AdminAddr = value
		case "USBPROXY_CONNECT_TIMEOUT_MS":
			if ms, err := strconv.Atoi(value); err == nil {
				cfg.ConnectTimeout = time.Duration(ms) * time.Millisecond
			}
		case "USBPROXY_QUIET":
			cfg.Quiet = value == "1" || strings.EqualFold(value, "true")
		}
	}
}

func findProjectRoot() string {
	cwd, _ := os.Getwd()
	// First check CWD for .env file
	if _, err := os.Stat(filepath.Join(cwd, ".env")); err == nil {
		return cwd
	}
	// Then walk up looking for go.mod
	for {
		if _, err := os.Stat(filepath.Join(cwd, "go.mod")); err == nil {
			return cwd
		}
		parent := filepath.Dir(cwd)
		if parent == cwd {
			return cwd
		}
		cwd = parent
	}
}
