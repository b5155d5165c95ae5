// Command usbproxy-client connects to usbproxy-server (directly or over an
// SSH tunnel), publishes the connected socket to a hand-off channel, then
// execs a command with the proxy shim preloaded so that command's USB calls
// travel over the RPC connection instead of touching local hardware.
// Per spec §6's client CLI contract.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"os/exec"
	"time"

	"github.com/vavrusa/usbproxy/internal/config"
	"github.com/vavrusa/usbproxy/internal/frame"
	"github.com/vavrusa/usbproxy/internal/handoff"
	"github.com/vavrusa/usbproxy/internal/tunnel"
)

var (
	host        = flag.String("host", "", "usbproxy-server address (host[:port]), overrides USBPROXY_HOST")
	sshToken    = flag.String("ssh", "", "user@host[:port] to reach the server over an SSH tunnel")
	libraryPath = flag.String("library", "", "path to the preload shim, overrides USBPROXY_LIBRARY_PATH")
	timeoutMs   = flag.Int("timeout", 0, "connection timeout in milliseconds, overrides USBPROXY_CONNECT_TIMEOUT_MS")
	quiet       = flag.Bool("quiet", false, "suppress non-error log output")
)

func main() {
	flag.Usage = usage
	flag.Parse()

	cmdArgs := flag.Args()
	if len(cmdArgs) == 0 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.LoadProxyConfig()
	if err != nil {
		fatal("load config: %v", err)
	}
	applyFlagOverrides(cfg)
	log.SetFlags(0)
	if cfg.Quiet {
		log.SetOutput(io.Discard)
	}

	conn, cleanup, err := connect(cfg)
	if err != nil {
		fatal("connect: %v", err)
	}
	defer cleanup()

	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		fatal("connect: underlying socket is not a real descriptor")
	}
	sockFile, err := tcpConn.File()
	if err != nil {
		fatal("connect: extract descriptor: %v", err)
	}
	defer sockFile.Close()

	const childFD = 3 // first entry of ExtraFiles, after stdin/stdout/stderr
	publisher := handoff.NewPublisher(handoff.WellKnownKey)
	if err := publisher.Publish(childFD); err != nil {
		fatal("publish handoff: %v", err)
	}
	defer publisher.Destroy()

	exitCode, err := runChild(cfg, sockFile, cmdArgs)
	if err != nil {
		fatal("run %s: %v", cmdArgs[0], err)
	}
	os.Exit(exitCode)
}

func applyFlagOverrides(cfg *config.ProxyConfig) {
	if *host != "" {
		h, p, err := net.SplitHostPort(*host)
		if err != nil {
			cfg.Host = *host
		} else {
			cfg.Host, cfg.Port = h, p
		}
	}
	if *sshToken != "" {
		cfg.SSHAuthToken = *sshToken
	}
	if *libraryPath != "" {
		cfg.LibraryPath = *libraryPath
	}
	if *timeoutMs > 0 {
		cfg.ConnectTimeout = time.Duration(*timeoutMs) * time.Millisecond
	}
	if *quiet {
		cfg.Quiet = true
	}
}

// connect dials the server, directly or through an SSH tunnel, and returns
// the socket the shim will be handed plus a cleanup func tearing everything
// down in reverse order.
func connect(cfg *config.ProxyConfig) (net.Conn, func(), error) {
	if cfg.SSHAuthToken == "" {
		conn, err := frame.DialTCP(net.JoinHostPort(cfg.Host, cfg.Port))
		if err != nil {
			return nil, nil, err
		}
		return conn, func() { conn.Close() }, nil
	}

	target, err := tunnel.ParseTarget(cfg.SSHAuthToken)
	if err != nil {
		return nil, nil, err
	}
	remoteAddr := net.JoinHostPort("127.0.0.1", cfg.Port)
	channel, client, err := tunnel.Dial(target, remoteAddr, cfg.SSHPassword, cfg.ConnectTimeout)
	if err != nil {
		return nil, nil, err
	}
	local, err := tunnel.BridgeLocal(channel)
	if err != nil {
		tunnel.Close(channel, client)
		return nil, nil, err
	}
	return local, func() { local.Close(); tunnel.Close(channel, client) }, nil
}

func runChild(cfg *config.ProxyConfig, sockFile *os.File, cmdArgs []string) (int, error) {
	cmd := exec.Command(cmdArgs[0], cmdArgs[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.ExtraFiles = []*os.File{sockFile}
	cmd.Env = append(os.Environ(), "LD_PRELOAD="+cfg.LibraryPath)

	log.Printf("usbproxy-client: exec %v with %s preloaded", cmdArgs, cfg.LibraryPath)
	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return exitErr.ExitCode(), nil
		}
		return 1, err
	}
	return 0, nil
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "usbproxy-client: "+format+"\n", args...)
	os.Exit(1)
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: usbproxy-client [flags] -- command [args...]\n\n")
	flag.PrintDefaults()
}
