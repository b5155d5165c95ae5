package rpc

import "errors"

// Error taxonomy shared by the client stub and the server dispatcher, per §7.
var (
	// ErrProtocolMismatch is returned when a reply's opcode does not match
	// the request that elicited it.
	ErrProtocolMismatch = errors.New("rpc: reply opcode does not match request")
	// ErrSessionLost is returned when the client's cached remote socket
	// fails peer validation; recovery is not possible, per §7.
	ErrSessionLost = errors.New("rpc: session lost, cached descriptor invalid")
	// ErrNotFound names the unknown-handle case. The dispatcher does not
	// return it: a request that references an unknown client-visible handle
	// gets a negative return code in its reply and the session stays open.
	ErrNotFound = errors.New("rpc: handle not found")
	// ErrTunnel is returned when the optional SSH tunnel fails during
	// setup, before any frame is sent (§7, expansion).
	ErrTunnel = errors.New("rpc: ssh tunnel error")
)
