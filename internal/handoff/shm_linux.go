//go:build linux

package handoff

import (
	"fmt"
	"sync"
	"syscall"
	"unsafe"
)

// shmSize is one machine word, padded up to the kernel's minimum segment
// size (a single page is always safe).
const shmSize = 4096

const (
	ipcCreat = 0x200 // IPC_CREAT
	ipcRMID  = 0      // IPC_RMID, as passed to shmctl's cmd argument
	perm0666 = 0x1B6
)

// shmPublisher is the parent side: it owns the region for the lifetime of
// the proxy session and destroys it on exit.
type shmPublisher struct {
	key int32
	id  uintptr
}

// NewPublisher creates (or attaches to) the shared-memory region named by
// key, world-readable so any direct child can attach regardless of uid.
func NewPublisher(key int32) Publisher {
	return &shmPublisher{key: key}
}

func (p *shmPublisher) segment() (uintptr, error) {
	id, _, errno := syscall.Syscall(syscall.SYS_SHMGET, uintptr(p.key), uintptr(shmSize), uintptr(ipcCreat|perm0666))
	if errno != 0 {
		return 0, fmt.Errorf("handoff: shmget: %w", errno)
	}
	return id, nil
}

// Publish attaches the region, writes fd as the region's sole payload, and
// detaches again; there is no ongoing synchronisation past this point.
func (p *shmPublisher) Publish(fd int) error {
	id, err := p.segment()
	if err != nil {
		return err
	}
	p.id = id

	addr, _, errno := syscall.Syscall(syscall.SYS_SHMAT, id, 0, 0)
	if errno != 0 {
		return fmt.Errorf("handoff: shmat: %w", errno)
	}
	*(*int32)(unsafe.Pointer(addr)) = int32(fd)
	if _, _, errno := syscall.Syscall(syscall.SYS_SHMDT, addr, 0, 0); errno != 0 {
		return fmt.Errorf("handoff: shmdt: %w", errno)
	}
	return nil
}

// Destroy removes the region. Safe to call more than once: each call looks
// the key up again with IPC_CREAT (so a call after an earlier removal
// creates an empty segment) and then removes it, leaving no region behind.
// An EINVAL from shmctl(IPC_RMID) is ignored.
func (p *shmPublisher) Destroy() error {
	id, err := p.segment()
	if err != nil {
		return err
	}
	_, _, errno := syscall.Syscall(syscall.SYS_SHMCTL, id, ipcRMID, 0)
	if errno != 0 && errno != syscall.EINVAL {
		return fmt.Errorf("handoff: shmctl(IPC_RMID): %w", errno)
	}
	return nil
}

// shmReceiver is the shim side running inside the preloaded child. It
// attaches lazily on first use and caches the result for the process
// lifetime, per §4.5.
type shmReceiver struct {
	key int32

	once sync.Once
	fd   int
	err  error
}

// NewReceiver returns a Receiver that attaches to the region named by key
// on its first Retrieve call.
func NewReceiver(key int32) Receiver {
	return &shmReceiver{key: key}
}

func (r *shmReceiver) Retrieve() (int, error) {
	r.once.Do(func() {
		id, _, errno := syscall.Syscall(syscall.SYS_SHMGET, uintptr(r.key), uintptr(shmSize), 0)
		if errno != 0 {
			r.err = fmt.Errorf("handoff: shmget: %w", errno)
			return
		}
		addr, _, errno := syscall.Syscall(syscall.SYS_SHMAT, id, 0, 0)
		if errno != 0 {
			r.err = fmt.Errorf("handoff: shmat: %w", errno)
			return
		}
		r.fd = int(*(*int32)(unsafe.Pointer(addr)))
		_, _, _ = syscall.Syscall(syscall.SYS_SHMDT, addr, 0, 0)
	})
	return r.fd, r.err
}
