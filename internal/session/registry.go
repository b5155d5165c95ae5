// Package session implements the server-side accept loop and per-packet
// dispatch (§4.6): each accepted session socket is read by its own
// goroutine with blocking reads (there is no readiness poll), each frame is
// routed by opcode under one server-wide dispatch mutex, and each session
// keeps a registry of open device handles.
package session

import (
	"sync"
	"time"
)

// NativeHandle is whatever the Backend uses to identify an open device
// internally (a *gousb.Device in production, a fake in tests).
type NativeHandle any

// OpenHandleEntry is one successful device open: the client-visible integer
// handle and the native device. The handle is a value from the dispatcher's
// own counter, not the underlying native fd; the owning session is the
// Registry the entry is stored in, not a field of the entry.
type OpenHandleEntry struct {
	Handle int32
	Device NativeHandle
}

// Registry is a session's collection of open handle entries, keyed by the
// client-visible handle. No two entries in one registry share a handle
// (§3's Session invariant).
type Registry struct {
	mu      sync.RWMutex
	entries map[int32]*OpenHandleEntry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[int32]*OpenHandleEntry)}
}

// Insert records a newly opened handle, replacing any entry already stored
// under the same handle value.
func (r *Registry) Insert(handle int32, dev NativeHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[handle] = &OpenHandleEntry{Handle: handle, Device: dev}
}

// Lookup returns the entry for handle, or (nil, false) on a miss — the
// dispatcher turns a miss into a negative return code, not a session close
// (§4.6 step 3, §7 NotFound).
func (r *Registry) Lookup(handle int32) (*OpenHandleEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[handle]
	return e, ok
}

// Remove drops handle from the registry. Called once the underlying close
// has been acknowledged, preserving close-ack-precedes-reuse (§9).
func (r *Registry) Remove(handle int32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, handle)
}

// Len reports the number of live handles, used by the admin surface (C8).
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Handles returns a snapshot of the live client-visible handles.
func (r *Registry) Handles() []int32 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]int32, 0, len(r.entries))
	for h := range r.entries {
		out = append(out, h)
	}
	return out
}

// DrainCloser is the narrow interface the registry needs from a backend to
// close every still-open entry on session teardown.
type DrainCloser interface {
	CloseDevice(dev NativeHandle) int32
}

// Drain closes every still-open entry via backend and empties the registry,
// per §4.6's "on session close, iterates the registry and calls the
// library's close for each still-open entry, then empties the collection."
func (r *Registry) Drain(backend DrainCloser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		backend.CloseDevice(e.Device)
	}
	r.entries = make(map[int32]*OpenHandleEntry)
}

// Info is the admin-surface-visible summary of one session (C8).
type Info struct {
	ID          string
	RemoteAddr  string
	OpenedAt    time.Time
	OpenHandles int
}
