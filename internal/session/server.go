package session

import (
	"log"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vavrusa/usbproxy/internal/frame"
	"github.com/vavrusa/usbproxy/internal/rpc"
)

// Metrics are the server-wide counters the admin surface (C8) exposes
// read-only.
type Metrics struct {
	mu              sync.RWMutex
	FramesReceived  uint64
	FramesReplied   uint64
	SessionsTotal   uint64
	DispatchErrors  uint64
}

func (m *Metrics) addReceived()  { m.mu.Lock(); m.FramesReceived++; m.mu.Unlock() }
func (m *Metrics) addReplied()   { m.mu.Lock(); m.FramesReplied++; m.mu.Unlock() }
func (m *Metrics) addSession()   { m.mu.Lock(); m.SessionsTotal++; m.mu.Unlock() }
func (m *Metrics) addDispatchErr() { m.mu.Lock(); m.DispatchErrors++; m.mu.Unlock() }

// Snapshot is a point-in-time, lock-free copy of Metrics for JSON encoding.
type Snapshot struct {
	FramesReceived uint64 `json:"frames_received"`
	FramesReplied  uint64 `json:"frames_replied"`
	SessionsTotal  uint64 `json:"sessions_total"`
	SessionsActive int    `json:"sessions_active"`
	DispatchErrors uint64 `json:"dispatch_errors"`
}

// Session is one accepted TCP connection and its server-side state (§3).
// ID is a process-local identifier distinct from RemoteAddr, which can
// repeat across reconnects from behind the same NAT; the admin surface
// uses it to tell consecutive sessions from the same address apart.
type Session struct {
	conn       net.Conn
	Registry   *Registry
	ID         string
	RemoteAddr string
	OpenedAt   time.Time
}

// Info summarises a session for the admin surface.
func (s *Session) Info() Info {
	return Info{ID: s.ID, RemoteAddr: s.RemoteAddr, OpenedAt: s.OpenedAt, OpenHandles: s.Registry.Len()}
}

// Server owns the listener and every accepted session, and serialises all
// calls into the wrapped USB library behind one dispatch mutex, per §5's
// "the wrapped library is not thread-safe and holds global state" rationale
// — each session still gets its own goroutine for blocking socket I/O, but
// only one goroutine at a time is ever inside Dispatcher.Dispatch.
type Server struct {
	listener   net.Listener
	dispatcher *Dispatcher
	dispatchMu sync.Mutex

	mu       sync.RWMutex
	sessions map[*Session]struct{}

	Metrics Metrics
}

// NewServer wraps an already-bound listener and dispatches against backend.
func NewServer(listener net.Listener, backend Backend) *Server {
	return &Server{
		listener:   listener,
		dispatcher: NewDispatcher(backend),
		sessions:   make(map[*Session]struct{}),
	}
}

// Serve runs the accept loop until the listener is closed, per §5's
// termination-signal-closes-the-listener contract (the caller installs the
// signal handler; Serve only needs the listener to return an error on
// Accept once closed).
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return err
		}
		if tcpConn, ok := conn.(*net.TCPConn); ok {
			_ = tcpConn.SetNoDelay(true)
		}
		sess := &Session{conn: conn, Registry: NewRegistry(), ID: uuid.NewString(), RemoteAddr: conn.RemoteAddr().String(), OpenedAt: timeNow()}
		s.mu.Lock()
		s.sessions[sess] = struct{}{}
		s.mu.Unlock()
		s.Metrics.addSession()

		go s.serveSession(sess)
	}
}

// timeNow is a thin indirection so tests can stub session open timestamps if
// needed later; kept trivial for now.
func timeNow() time.Time { return time.Now() }

func (s *Server) serveSession(sess *Session) {
	defer s.closeSession(sess)

	for {
		opcode, payload, err := frame.RecvFrame(sess.conn)
		if err != nil {
			return
		}
		s.Metrics.addReceived()

		s.dispatchMu.Lock()
		reply, sendReply, err := s.dispatcher.Dispatch(sess.Registry, opcode, payload)
		s.dispatchMu.Unlock()

		if err != nil {
			log.Printf("session: %s: dispatch %s: %v", sess.RemoteAddr, rpc.Name(opcode), err)
			s.Metrics.addDispatchErr()
			return
		}
		if !sendReply {
			continue
		}
		if err := frame.SendFrame(sess.conn, opcode, reply); err != nil {
			return
		}
		s.Metrics.addReplied()
	}
}

func (s *Server) closeSession(sess *Session) {
	s.dispatchMu.Lock()
	sess.Registry.Drain(s.dispatcher.backend)
	s.dispatchMu.Unlock()

	sess.conn.Close()

	s.mu.Lock()
	delete(s.sessions, sess)
	s.mu.Unlock()
}

// Sessions returns a point-in-time snapshot of every active session's
// admin-visible info.
func (s *Server) Sessions() []Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Info, 0, len(s.sessions))
	for sess := range s.sessions {
		out = append(out, sess.Info())
	}
	return out
}

// MetricsSnapshot returns a copy of the live counters plus the current
// active-session count.
func (s *Server) MetricsSnapshot() Snapshot {
	s.Metrics.mu.RLock()
	snap := Snapshot{
		FramesReceived: s.Metrics.FramesReceived,
		FramesReplied:  s.Metrics.FramesReplied,
		SessionsTotal:  s.Metrics.SessionsTotal,
		DispatchErrors: s.Metrics.DispatchErrors,
	}
	s.Metrics.mu.RUnlock()

	s.mu.RLock()
	snap.SessionsActive = len(s.sessions)
	s.mu.RUnlock()
	return snap
}

// Close stops accepting new connections. Existing sessions drain as their
// goroutines observe the next recv error.
func (s *Server) Close() error {
	return s.listener.Close()
}
