//go:build !linux

package handoff

import (
	"fmt"
	"os"
	"strconv"
	"sync"
)

// envPublisher is the fallback hand-off channel for platforms without the
// System V shared-memory path wired up: the descriptor number is exported
// through EnvSocketFD before the parent exec's the child, per §4.4's
// "or equivalent" clause.
type envPublisher struct{}

// NewPublisher returns a Publisher that advertises fd through the process
// environment rather than a shared-memory segment.
func NewPublisher(_ int32) Publisher {
	return &envPublisher{}
}

func (p *envPublisher) Publish(fd int) error {
	return os.Setenv(EnvSocketFD, strconv.Itoa(fd))
}

// Destroy clears the environment variable. Idempotent: unsetting an already
// absent variable is a no-op.
func (p *envPublisher) Destroy() error {
	return os.Unsetenv(EnvSocketFD)
}

// envReceiver reads the descriptor number the parent exported before exec,
// caching it for the process lifetime like the shared-memory receiver does.
type envReceiver struct {
	once sync.Once
	fd   int
	err  error
}

// NewReceiver returns a Receiver backed by the environment variable channel.
func NewReceiver(_ int32) Receiver {
	return &envReceiver{}
}

func (r *envReceiver) Retrieve() (int, error) {
	r.once.Do(func() {
		raw, ok := os.LookupEnv(EnvSocketFD)
		if !ok {
			r.err = fmt.Errorf("handoff: %s not set in environment", EnvSocketFD)
			return
		}
		fd, err := strconv.Atoi(raw)
		if err != nil {
			r.err = fmt.Errorf("handoff: invalid %s value %q: %w", EnvSocketFD, raw, err)
			return
		}
		r.fd = fd
	})
	return r.fd, r.err
}
