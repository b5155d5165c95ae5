// Package stub implements the client-side RPC stub (§4.5): for every
// function the shim replaces, it marshals arguments into the shared frame,
// sends and receives via the transport, and unmarshals the reply, under one
// process-wide mutex that serialises every caller.
package stub

import (
	"fmt"
	"sync"

	"github.com/vavrusa/usbproxy/internal/frame"
	"github.com/vavrusa/usbproxy/internal/rpc"
	"github.com/vavrusa/usbproxy/pkg/tlv"
)

// Stub is the process-wide client runtime. One Stub wraps one connection;
// host programs intercepted by the preload shim all route through the same
// instance, per §5's "one shared socket, one shared frame".
type Stub struct {
	mu     sync.Mutex
	conn   frame.Conn
	shared *tlv.Packet
	tree   Tree

	torndown bool
}

// New wraps an already-connected transport. conn is typically a
// *net.TCPConn from frame.DialTCP or an SSH direct-tcpip channel from
// internal/tunnel.
func New(conn frame.Conn) *Stub {
	return &Stub{conn: conn, shared: tlv.NewPacket(0)}
}

// call performs one full marshal/send/recv/unmarshal round trip under the
// call mutex (§4.5 steps 1-7) and returns an iterator over the reply
// payload. build may be nil for requests with an empty payload.
func (s *Stub) call(opcode byte, build func(p *tlv.Packet) error) (*tlv.Iterator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.shared.Reset(opcode)
	if build != nil {
		if err := build(s.shared); err != nil {
			return nil, err
		}
	}
	if err := frame.SendFrame(s.conn, opcode, s.shared.Payload()); err != nil {
		return nil, err
	}
	replyOp, payload, err := frame.RecvFrame(s.conn)
	if err != nil {
		return nil, err
	}
	if replyOp != opcode {
		return nil, fmt.Errorf("%w: sent %#x, got %#x", rpc.ErrProtocolMismatch, opcode, replyOp)
	}
	return tlv.NewIteratorBytes(payload), nil
}

// callNoReply is Init: the request is sent but no reply is awaited (§6).
func (s *Stub) callNoReply(opcode byte, build func(p *tlv.Packet) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.shared.Reset(opcode)
	if build != nil {
		if err := build(s.shared); err != nil {
			return err
		}
	}
	return frame.SendFrame(s.conn, opcode, s.shared.Payload())
}

func readRC(it *tlv.Iterator) (int32, error) {
	ok, err := it.Advance()
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("stub: missing return code")
	}
	v, err := it.AsInt(true)
	return int32(v), err
}

// Init sends the Init request and returns immediately, per §6 ("empty, no
// reply").
func (s *Stub) Init() error {
	return s.callNoReply(rpc.Init, nil)
}

// FindBusses returns the bus count reported by the server.
func (s *Stub) FindBusses() (int, error) {
	it, err := s.call(rpc.FindBusses, nil)
	if err != nil {
		return 0, err
	}
	ok, err := it.Advance()
	if err != nil || !ok {
		return 0, fmt.Errorf("stub: FindBusses: missing count")
	}
	count, err := it.AsInt(true)
	return int(count), err
}

// FindDevices issues a full enumeration and reconciles the client's virtual
// bus tree against the reply, per §4.5's reconciliation rules.
func (s *Stub) FindDevices() (int, *Tree, error) {
	it, err := s.call(rpc.FindDevices, nil)
	if err != nil {
		return 0, nil, err
	}
	ok, err := it.Advance()
	if err != nil || !ok {
		return 0, nil, fmt.Errorf("stub: FindDevices: missing count")
	}
	count, err := it.AsInt(true)
	if err != nil {
		return 0, nil, err
	}
	if err := Reconcile(&s.tree, it); err != nil {
		return 0, nil, err
	}
	return int(count), &s.tree, nil
}

// Open opens the device at bus/devnum and returns the underlying rc plus
// its client-visible handle.
func (s *Stub) Open(busLoc, devnum uint32) (rc int32, handle int32, err error) {
	it, err := s.call(rpc.Open, func(p *tlv.Packet) error {
		if err := p.AppendInteger(tlv.TagUnsignedInt, 4, int64(busLoc)); err != nil {
			return err
		}
		return p.AppendInteger(tlv.TagUnsignedInt, 4, int64(devnum))
	})
	if err != nil {
		return 0, 0, err
	}
	if rc, err = readRC(it); err != nil {
		return 0, 0, err
	}
	ok, err := it.Advance()
	if err != nil || !ok {
		return rc, 0, fmt.Errorf("stub: Open: missing handle")
	}
	h, err := it.AsInt(true)
	return rc, int32(h), err
}

// Close closes a previously opened handle.
func (s *Stub) Close(handle int32) (int32, error) {
	it, err := s.call(rpc.Close, func(p *tlv.Packet) error {
		return p.AppendInteger(tlv.TagInteger, 4, int64(handle))
	})
	if err != nil {
		return 0, err
	}
	return readRC(it)
}

// ControlMsg issues a control transfer.
func (s *Stub) ControlMsg(handle int32, reqtype, request, value, index int32, buf []byte, timeout int32) (rc int32, back []byte, err error) {
	it, err := s.call(rpc.ControlMsg, func(p *tlv.Packet) error {
		for _, v := range []int64{int64(handle), int64(reqtype), int64(request), int64(value), int64(index)} {
			if err := p.AppendInteger(tlv.TagInteger, 4, v); err != nil {
				return err
			}
		}
		if err := p.AppendTLV(tlv.TagOctets, buf); err != nil {
			return err
		}
		return p.AppendInteger(tlv.TagInteger, 4, int64(timeout))
	})
	if err != nil {
		return 0, nil, err
	}
	if rc, err = readRC(it); err != nil {
		return 0, nil, err
	}
	ok, err := it.Advance()
	if err != nil || !ok {
		return rc, nil, nil
	}
	return rc, it.AsBytes(), nil
}

// ClaimInterface claims interface ifnum on handle.
func (s *Stub) ClaimInterface(handle, ifnum int32) (int32, error) {
	return s.handleIfaceCall(rpc.ClaimInterface, handle, ifnum)
}

// ReleaseInterface releases interface ifnum on handle.
func (s *Stub) ReleaseInterface(handle, ifnum int32) (int32, error) {
	return s.handleIfaceCall(rpc.ReleaseInterface, handle, ifnum)
}

func (s *Stub) handleIfaceCall(opcode byte, handle, ifnum int32) (int32, error) {
	it, err := s.call(opcode, func(p *tlv.Packet) error {
		if err := p.AppendInteger(tlv.TagInteger, 4, int64(handle)); err != nil {
			return err
		}
		return p.AppendInteger(tlv.TagInteger, 4, int64(ifnum))
	})
	if err != nil {
		return 0, err
	}
	return readRC(it)
}

// GetKernelDriver queries the kernel driver name bound to ifnum.
func (s *Stub) GetKernelDriver(handle, ifnum int32, buflen uint32) (rc int32, name string, err error) {
	it, err := s.call(rpc.GetKernelDriver, func(p *tlv.Packet) error {
		if err := p.AppendInteger(tlv.TagInteger, 4, int64(handle)); err != nil {
			return err
		}
		if err := p.AppendInteger(tlv.TagInteger, 4, int64(ifnum)); err != nil {
			return err
		}
		return p.AppendInteger(tlv.TagUnsignedInt, 4, int64(buflen))
	})
	if err != nil {
		return 0, "", err
	}
	if rc, err = readRC(it); err != nil {
		return 0, "", err
	}
	ok, err := it.Advance()
	if err != nil || !ok {
		return rc, "", nil
	}
	return rc, it.AsStr(), nil
}

// DetachKernelDriver detaches the kernel driver bound to ifnum.
func (s *Stub) DetachKernelDriver(handle, ifnum int32) (int32, error) {
	return s.handleIfaceCall(rpc.DetachKernelDriver, handle, ifnum)
}

// BulkRead reads up to size bytes from endpoint ep.
func (s *Stub) BulkRead(handle, ep, size, timeout int32) (rc int32, data []byte, err error) {
	return s.readTransfer(rpc.BulkRead, handle, ep, size, timeout)
}

// InterruptRead reads up to size bytes from interrupt endpoint ep.
func (s *Stub) InterruptRead(handle, ep, size, timeout int32) (rc int32, data []byte, err error) {
	return s.readTransfer(rpc.InterruptRead, handle, ep, size, timeout)
}

func (s *Stub) readTransfer(opcode byte, handle, ep, size, timeout int32) (rc int32, data []byte, err error) {
	it, err := s.call(opcode, func(p *tlv.Packet) error {
		for _, v := range []int64{int64(handle), int64(ep), int64(size), int64(timeout)} {
			if err := p.AppendInteger(tlv.TagInteger, 4, v); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, nil, err
	}
	if rc, err = readRC(it); err != nil {
		return 0, nil, err
	}
	ok, err := it.Advance()
	if err != nil || !ok {
		return rc, nil, nil
	}
	return rc, it.AsBytes(), nil
}

// BulkWrite writes data to endpoint ep.
func (s *Stub) BulkWrite(handle, ep int32, data []byte, timeout int32) (int32, error) {
	return s.writeTransfer(rpc.BulkWrite, handle, ep, data, timeout)
}

// InterruptWrite writes data to interrupt endpoint ep.
func (s *Stub) InterruptWrite(handle, ep int32, data []byte, timeout int32) (int32, error) {
	return s.writeTransfer(rpc.InterruptWrite, handle, ep, data, timeout)
}

func (s *Stub) writeTransfer(opcode byte, handle, ep int32, data []byte, timeout int32) (int32, error) {
	it, err := s.call(opcode, func(p *tlv.Packet) error {
		if err := p.AppendInteger(tlv.TagInteger, 4, int64(handle)); err != nil {
			return err
		}
		if err := p.AppendInteger(tlv.TagInteger, 4, int64(ep)); err != nil {
			return err
		}
		if err := p.AppendTLV(tlv.TagOctets, data); err != nil {
			return err
		}
		return p.AppendInteger(tlv.TagInteger, 4, int64(timeout))
	})
	if err != nil {
		return 0, err
	}
	return readRC(it)
}

// SetConfiguration sets the active configuration and echoes back the value
// the server applied.
func (s *Stub) SetConfiguration(handle, cfg int32) (rc int32, cfgEcho int32, err error) {
	it, err := s.call(rpc.SetConfiguration, func(p *tlv.Packet) error {
		if err := p.AppendInteger(tlv.TagInteger, 4, int64(handle)); err != nil {
			return err
		}
		return p.AppendInteger(tlv.TagInteger, 4, int64(cfg))
	})
	if err != nil {
		return 0, 0, err
	}
	if rc, err = readRC(it); err != nil {
		return 0, 0, err
	}
	ok, err := it.Advance()
	if err != nil || !ok {
		return rc, 0, fmt.Errorf("stub: SetConfiguration: missing echo")
	}
	v, err := it.AsInt(true)
	return rc, int32(v), err
}

// SetAltInterface sets the active alternate setting and echoes back the
// value the server applied.
func (s *Stub) SetAltInterface(handle, alt int32) (rc int32, altEcho int32, err error) {
	it, err := s.call(rpc.SetAltInterface, func(p *tlv.Packet) error {
		if err := p.AppendInteger(tlv.TagInteger, 4, int64(handle)); err != nil {
			return err
		}
		return p.AppendInteger(tlv.TagInteger, 4, int64(alt))
	})
	if err != nil {
		return 0, 0, err
	}
	if rc, err = readRC(it); err != nil {
		return 0, 0, err
	}
	ok, err := it.Advance()
	if err != nil || !ok {
		return rc, 0, fmt.Errorf("stub: SetAltInterface: missing echo")
	}
	v, err := it.AsInt(true)
	return rc, int32(v), err
}

// ResetEp clears the halt/stall condition on ep by resetting it.
func (s *Stub) ResetEp(handle int32, ep uint32) (int32, error) {
	return s.handleUnsignedEpCall(rpc.ResetEp, handle, ep)
}

// ClearHalt clears the halt/stall condition on ep.
func (s *Stub) ClearHalt(handle int32, ep uint32) (int32, error) {
	return s.handleUnsignedEpCall(rpc.ClearHalt, handle, ep)
}

func (s *Stub) handleUnsignedEpCall(opcode byte, handle int32, ep uint32) (int32, error) {
	it, err := s.call(opcode, func(p *tlv.Packet) error {
		if err := p.AppendInteger(tlv.TagInteger, 4, int64(handle)); err != nil {
			return err
		}
		return p.AppendInteger(tlv.TagUnsignedInt, 4, int64(ep))
	})
	if err != nil {
		return 0, err
	}
	return readRC(it)
}

// Reset issues a bus reset on the device behind handle.
func (s *Stub) Reset(handle int32) (int32, error) {
	it, err := s.call(rpc.Reset, func(p *tlv.Packet) error {
		return p.AppendInteger(tlv.TagInteger, 4, int64(handle))
	})
	if err != nil {
		return 0, err
	}
	return readRC(it)
}

// Teardown drops the virtual bus tree and records that teardown has run, so
// a second call is a no-op (idempotent, per §4.5). It does not close the
// connection, and calls made on the stub afterwards still go out over it.
func (s *Stub) Teardown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.torndown {
		return
	}
	s.tree = Tree{}
	s.torndown = true
}
