// Package tunnel implements the optional out-of-band SSH port-forward (§4.7,
// expansion): instead of a raw net.Dial, the client opens a direct-tcpip
// channel over an SSH connection and hands that channel to the transport as
// its byte-stream socket.
package tunnel

import (
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"

	"github.com/vavrusa/usbproxy/internal/rpc"
)

// Target is a parsed "user@host[:port]" auth token, per §6's CLI contract.
type Target struct {
	User string
	Host string
	Port string
}

// ParseTarget splits a "user@host[:port]" token. Port defaults to 22.
func ParseTarget(token string) (Target, error) {
	at := strings.IndexByte(token, '@')
	if at < 0 {
		return Target{}, fmt.Errorf("tunnel: %q is not of the form user@host[:port]", token)
	}
	user := token[:at]
	hostport := token[at+1:]
	host, port, err := net.SplitHostPort(hostport)
	if err != nil {
		host, port = hostport, "22"
	}
	return Target{User: user, Host: host, Port: port}, nil
}

// Dial opens an SSH connection to target and returns a direct-tcpip channel
// to remoteAddr (the server's RPC listener, from the SSH server's point of
// view) that satisfies internal/frame.Conn. Authentication prefers a
// reachable SSH agent and falls back to password, matching the teacher's
// password-first pattern but trying the agent first since that is the
// common case for an operator running this by hand.
func Dial(target Target, remoteAddr string, password string, timeout time.Duration) (net.Conn, *ssh.Client, error) {
	auths := []ssh.AuthMethod{}
	if sock, ok := agentSocket(); ok {
		auths = append(auths, ssh.PublicKeysCallback(sock.Signers))
	}
	if password != "" {
		auths = append(auths, ssh.Password(password))
	}

	config := &ssh.ClientConfig{
		User:            target.User,
		Auth:            auths,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         timeout,
	}

	addr := net.JoinHostPort(target.Host, target.Port)
	client, err := ssh.Dial("tcp", addr, config)
	if err != nil {
		return nil, nil, fmt.Errorf("tunnel: %w: dial %s: %w", rpc.ErrTunnel, addr, err)
	}

	conn, err := client.Dial("tcp", remoteAddr)
	if err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("tunnel: %w: open direct-tcpip channel to %s: %w", rpc.ErrTunnel, remoteAddr, err)
	}
	return conn, client, nil
}

// Close tears the tunnel down: the channel first, then the SSH client,
// per §4.7.
func Close(conn net.Conn, client *ssh.Client) {
	if conn != nil {
		conn.Close()
	}
	if client != nil {
		client.Close()
	}
}

// BridgeLocal gives an SSH direct-tcpip channel a real kernel socket fd to
// stand in for, since a channel is not itself backed by one and the
// hand-off (§4.4) needs a descriptor it can publish to a child process. It
// opens a loopback TCP pair and splices the accepted side against channel,
// returning the dialed side for the caller to hand off.
func BridgeLocal(channel net.Conn) (*net.TCPConn, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("tunnel: bridge listen: %w", err)
	}
	defer ln.Close()

	local, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		return nil, fmt.Errorf("tunnel: bridge dial: %w", err)
	}
	accepted, err := ln.Accept()
	if err != nil {
		local.Close()
		return nil, fmt.Errorf("tunnel: bridge accept: %w", err)
	}

	go func() {
		io.Copy(accepted, channel)
		accepted.Close()
	}()
	go func() {
		io.Copy(channel, accepted)
		channel.Close()
	}()

	return local.(*net.TCPConn), nil
}

func agentSocket() (agent.ExtendedAgent, bool) {
	sockPath := os.Getenv("SSH_AUTH_SOCK")
	if sockPath == "" {
		return nil, false
	}
	conn, err := net.Dial("unix", sockPath)
	if err != nil {
		return nil, false
	}
	return agent.NewClient(conn), true
}
