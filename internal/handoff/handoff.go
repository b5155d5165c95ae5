// Package handoff publishes an already-connected socket descriptor from a
// parent process to a child process it is about to exec with the proxy
// shim preloaded, per §4.4: the parent owns the TCP session under its own
// identity, and the preloaded child must find that already-open socket
// without ever calling connect() itself.
package handoff

import (
	"fmt"
	"syscall"

	"github.com/vavrusa/usbproxy/internal/rpc"
)

// WellKnownKey is the fixed 32-bit key the legacy build used to name the
// hand-off region; kept for wire/behavioural compatibility even though this
// implementation is free to use any OS mechanism (§4.4).
const WellKnownKey int32 = 0x2a2a2a2a

// EnvSocketFD is the fallback hand-off channel on platforms without a
// shared-memory segment wired up (see env_other.go): the parent advertises
// the inherited descriptor number through this environment variable before
// exec'ing the child.
const EnvSocketFD = "USBPROXY_SOCKET_FD"

// Publisher is held by the parent process. It is responsible for making
// the connected socket's descriptor visible to the child and for tearing
// the hand-off channel down again on exit.
type Publisher interface {
	// Publish makes fd visible to a to-be-exec'd direct child.
	Publish(fd int) error
	// Destroy releases the hand-off channel. Idempotent.
	Destroy() error
}

// Receiver is held by the preloaded shim running inside the child. It
// retrieves the descriptor published by the parent, caching it for the
// lifetime of the process as §4.5 requires.
type Receiver interface {
	// Retrieve returns the published descriptor, attaching to the hand-off
	// channel on first call and serving the cached value thereafter.
	Retrieve() (int, error)
}

// ValidateSocket performs the inexpensive peer-name query the shim must run
// before trusting a cached descriptor (§4.4): if the socket has been closed
// or reused for something else, getpeername fails and the caller should
// abort per §7's SessionLost policy.
func ValidateSocket(fd int) error {
	if _, err := syscall.Getpeername(fd); err != nil {
		return fmt.Errorf("handoff: %w: descriptor %d failed peer validation: %w", rpc.ErrSessionLost, fd, err)
	}
	return nil
}
