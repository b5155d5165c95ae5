package session

import (
	"errors"
	"fmt"
	"log"

	"github.com/vavrusa/usbproxy/internal/rpc"
	"github.com/vavrusa/usbproxy/pkg/tlv"
)

// ErrMalformedRequest is returned for a request frame that fails the
// dispatcher's own structural checks (wrong tag where one is required, an
// argument missing); per §4.6/§7 this closes the session without a reply.
var ErrMalformedRequest = errors.New("session: malformed request")

// Dispatcher routes one received frame to the wrapped USB library and
// composes the reply, per §4.6. Server runs one goroutine per session but
// holds its dispatch mutex around every Dispatch call, so nextHandle needs
// no locking of its own.
type Dispatcher struct {
	backend    Backend
	nextHandle int32
}

// NewDispatcher wraps backend for dispatch.
func NewDispatcher(backend Backend) *Dispatcher {
	return &Dispatcher{backend: backend}
}

// allocHandle hands out the next client-visible handle. Real fd reuse after
// close is the wrapped library's business (§9's opaque-handle-indirection
// note); the dispatcher only needs handle values that are unique among
// currently-open entries, which a monotonic counter guarantees trivially.
func (d *Dispatcher) allocHandle() int32 {
	d.nextHandle++
	return d.nextHandle
}

// Dispatch handles one frame already read off the wire. It returns the
// reply payload (nil for opcodes with no reply), whether a reply should be
// sent at all, and an error that, if non-nil, means the caller must close
// the session without sending anything (§4.6's dispatcher steps, §7).
func (d *Dispatcher) Dispatch(sess *Registry, opcode byte, payload []byte) (reply []byte, sendReply bool, err error) {
	if !isKnownOpcode(opcode) {
		log.Printf("session: dropping unknown opcode %#x", opcode)
		return nil, false, nil
	}
	if len(payload) == 0 && needsPayload(opcode) {
		return nil, false, fmt.Errorf("%w: empty payload for opcode %s", ErrMalformedRequest, rpc.Name(opcode))
	}
	it := tlv.NewIteratorBytes(payload)

	switch opcode {
	case rpc.Init:
		if err := d.backend.Init(); err != nil {
			return nil, false, nil
		}
		return nil, false, nil

	case rpc.FindBusses:
		n, err := d.backend.FindBusses()
		if err != nil {
			n = 0
		}
		p := tlv.NewPacket(opcode)
		_ = p.AppendInteger(tlv.TagInteger, 4, int64(n))
		return p.Payload(), true, nil

	case rpc.FindDevices:
		buses, err := d.backend.FindDevices()
		if err != nil {
			buses = nil
		}
		p := tlv.NewPacket(opcode)
		count := 0
		for _, b := range buses {
			count += len(b.Devices)
		}
		if err := p.AppendInteger(tlv.TagInteger, 4, int64(count)); err != nil {
			return nil, false, err
		}
		if err := composeEnumerationReply(p, buses); err != nil {
			return nil, false, err
		}
		return p.Payload(), true, nil

	case rpc.Open:
		busLoc, devnum, err := readTwoUints(it)
		if err != nil {
			return nil, false, err
		}
		rc, native, openErr := d.backend.Open(busLoc, devnum)
		p := tlv.NewPacket(opcode)
		_ = p.AppendInteger(tlv.TagInteger, 4, int64(rc))
		handle := int32(-1)
		if openErr == nil && rc >= 0 {
			handle = d.allocHandle()
			sess.Insert(handle, native)
		}
		_ = p.AppendInteger(tlv.TagInteger, 4, int64(handle))
		return p.Payload(), true, nil

	case rpc.Close:
		handle, err := readInt(it)
		if err != nil {
			return nil, false, err
		}
		entry, ok := sess.Lookup(int32(handle))
		rc := int32(-1)
		if ok {
			rc = d.backend.CloseDevice(entry.Device)
			sess.Remove(int32(handle))
		}
		p := tlv.NewPacket(opcode)
		_ = p.AppendInteger(tlv.TagInteger, 4, int64(rc))
		return p.Payload(), true, nil

	case rpc.ControlMsg:
		return d.dispatchControlMsg(sess, it)

	case rpc.ClaimInterface:
		return d.dispatchHandleIface(sess, opcode, it, d.backend.ClaimInterface)

	case rpc.ReleaseInterface:
		return d.dispatchHandleIface(sess, opcode, it, d.backend.ReleaseInterface)

	case rpc.GetKernelDriver:
		return d.dispatchGetKernelDriver(sess, it)

	case rpc.DetachKernelDriver:
		return d.dispatchHandleIface(sess, opcode, it, d.backend.DetachKernelDriver)

	case rpc.BulkRead:
		return d.dispatchRead(sess, opcode, it, d.backend.BulkRead)

	case rpc.InterruptRead:
		return d.dispatchRead(sess, opcode, it, d.backend.InterruptRead)

	case rpc.BulkWrite:
		return d.dispatchWrite(sess, opcode, it, d.backend.BulkWrite)

	case rpc.InterruptWrite:
		return d.dispatchWrite(sess, opcode, it, d.backend.InterruptWrite)

	case rpc.SetConfiguration:
		return d.dispatchSetSomething(sess, opcode, it, d.backend.SetConfiguration)

	case rpc.SetAltInterface:
		return d.dispatchSetSomething(sess, opcode, it, d.backend.SetAltInterface)

	case rpc.ResetEp:
		return d.dispatchUnsignedEp(sess, opcode, it, d.backend.ResetEp)

	case rpc.ClearHalt:
		return d.dispatchUnsignedEp(sess, opcode, it, d.backend.ClearHalt)

	case rpc.Reset:
		handle, err := readInt(it)
		if err != nil {
			return nil, false, err
		}
		rc := lookupAndCall1(sess, int32(handle), d.backend.Reset)
		p := tlv.NewPacket(opcode)
		_ = p.AppendInteger(tlv.TagInteger, 4, int64(rc))
		return p.Payload(), true, nil

	default:
		// Unreachable: isKnownOpcode already filtered out anything not
		// listed above. Kept as a safety net in case the two lists drift.
		log.Printf("session: dropping unknown opcode %#x", opcode)
		return nil, false, nil
	}
}

// isKnownOpcode reports whether opcode is one Dispatch handles. Per §4.6
// step 2, anything else is logged and dropped with no reply and the session
// stays open — it is not a protocol error.
func isKnownOpcode(opcode byte) bool {
	switch opcode {
	case rpc.Init, rpc.FindBusses, rpc.FindDevices, rpc.Open, rpc.Close,
		rpc.ControlMsg, rpc.ClaimInterface, rpc.ReleaseInterface,
		rpc.GetKernelDriver, rpc.DetachKernelDriver, rpc.BulkRead,
		rpc.BulkWrite, rpc.SetConfiguration, rpc.SetAltInterface,
		rpc.ResetEp, rpc.ClearHalt, rpc.Reset, rpc.InterruptRead,
		rpc.InterruptWrite:
		return true
	default:
		return false
	}
}

// needsPayload reports whether opcode's request carries arguments; only
// FindBusses/FindDevices/Init have empty request payloads. Only called for
// opcodes isKnownOpcode has already accepted.
func needsPayload(opcode byte) bool {
	switch opcode {
	case rpc.Init, rpc.FindBusses, rpc.FindDevices:
		return false
	default:
		return true
	}
}

func lookupAndCall1(sess *Registry, handle int32, fn func(NativeHandle) int32) int32 {
	e, ok := sess.Lookup(handle)
	if !ok {
		return -1
	}
	return fn(e.Device)
}

func (d *Dispatcher) dispatchHandleIface(sess *Registry, opcode byte, it *tlv.Iterator, fn func(NativeHandle, int32) int32) ([]byte, bool, error) {
	handle, ifnum, err := readTwoInts(it)
	if err != nil {
		return nil, false, err
	}
	rc := int32(-1)
	if e, ok := sess.Lookup(int32(handle)); ok {
		rc = fn(e.Device, int32(ifnum))
	}
	p := tlv.NewPacket(opcode)
	_ = p.AppendInteger(tlv.TagInteger, 4, int64(rc))
	return p.Payload(), true, nil
}

func (d *Dispatcher) dispatchGetKernelDriver(sess *Registry, it *tlv.Iterator) ([]byte, bool, error) {
	handle, ifnum, err := readTwoInts(it)
	if err != nil {
		return nil, false, err
	}
	ok, err := it.Advance()
	if err != nil || !ok {
		return nil, false, fmt.Errorf("%w: GetKernelDriver missing buflen", ErrMalformedRequest)
	}
	buflen, err := it.AsUint()
	if err != nil {
		return nil, false, err
	}
	rc := int32(-1)
	name := ""
	if e, found := sess.Lookup(int32(handle)); found {
		rc, name = d.backend.GetKernelDriver(e.Device, int32(ifnum), uint32(buflen))
	}
	p := tlv.NewPacket(rpc.GetKernelDriver)
	_ = p.AppendInteger(tlv.TagInteger, 4, int64(rc))
	_ = p.AppendString(name)
	return p.Payload(), true, nil
}

func (d *Dispatcher) dispatchRead(sess *Registry, opcode byte, it *tlv.Iterator, fn func(NativeHandle, int32, int32, int32) (int32, []byte)) ([]byte, bool, error) {
	handle, ep, size, timeout, err := readFourInts(it)
	if err != nil {
		return nil, false, err
	}
	rc := int32(-1)
	var data []byte
	if e, ok := sess.Lookup(int32(handle)); ok {
		rc, data = fn(e.Device, int32(ep), int32(size), int32(timeout))
	}
	p := tlv.NewPacket(opcode)
	_ = p.AppendInteger(tlv.TagInteger, 4, int64(rc))
	_ = p.AppendTLV(tlv.TagOctets, data)
	return p.Payload(), true, nil
}

func (d *Dispatcher) dispatchWrite(sess *Registry, opcode byte, it *tlv.Iterator, fn func(NativeHandle, int32, []byte, int32) int32) ([]byte, bool, error) {
	ok, err := it.Advance()
	if err != nil || !ok {
		return nil, false, fmt.Errorf("%w: missing handle", ErrMalformedRequest)
	}
	handle, err := it.AsInt(true)
	if err != nil {
		return nil, false, err
	}
	ok, err = it.Advance()
	if err != nil || !ok {
		return nil, false, fmt.Errorf("%w: missing ep", ErrMalformedRequest)
	}
	ep, err := it.AsInt(true)
	if err != nil {
		return nil, false, err
	}
	ok, err = it.Advance()
	if err != nil || !ok {
		return nil, false, fmt.Errorf("%w: missing data", ErrMalformedRequest)
	}
	data := it.AsBytes()
	ok, err = it.Advance()
	if err != nil || !ok {
		return nil, false, fmt.Errorf("%w: missing timeout", ErrMalformedRequest)
	}
	timeout, err := it.AsInt(true)
	if err != nil {
		return nil, false, err
	}
	rc := int32(-1)
	if e, found := sess.Lookup(int32(handle)); found {
		rc = fn(e.Device, int32(ep), data, int32(timeout))
	}
	p := tlv.NewPacket(opcode)
	_ = p.AppendInteger(tlv.TagInteger, 4, int64(rc))
	return p.Payload(), true, nil
}

func (d *Dispatcher) dispatchSetSomething(sess *Registry, opcode byte, it *tlv.Iterator, fn func(NativeHandle, int32) (int32, int32)) ([]byte, bool, error) {
	handle, value, err := readTwoInts(it)
	if err != nil {
		return nil, false, err
	}
	rc, echo := int32(-1), int32(0)
	if e, ok := sess.Lookup(int32(handle)); ok {
		rc, echo = fn(e.Device, int32(value))
	}
	p := tlv.NewPacket(opcode)
	_ = p.AppendInteger(tlv.TagInteger, 4, int64(rc))
	_ = p.AppendInteger(tlv.TagInteger, 4, int64(echo))
	return p.Payload(), true, nil
}

func (d *Dispatcher) dispatchUnsignedEp(sess *Registry, opcode byte, it *tlv.Iterator, fn func(NativeHandle, uint32) int32) ([]byte, bool, error) {
	ok, err := it.Advance()
	if err != nil || !ok {
		return nil, false, fmt.Errorf("%w: missing handle", ErrMalformedRequest)
	}
	handle, err := it.AsInt(true)
	if err != nil {
		return nil, false, err
	}
	ok, err = it.Advance()
	if err != nil || !ok {
		return nil, false, fmt.Errorf("%w: missing ep", ErrMalformedRequest)
	}
	ep, err := it.AsUint()
	if err != nil {
		return nil, false, err
	}
	rc := int32(-1)
	if e, found := sess.Lookup(int32(handle)); found {
		rc = fn(e.Device, uint32(ep))
	}
	p := tlv.NewPacket(opcode)
	_ = p.AppendInteger(tlv.TagInteger, 4, int64(rc))
	return p.Payload(), true, nil
}

func (d *Dispatcher) dispatchControlMsg(sess *Registry, it *tlv.Iterator) ([]byte, bool, error) {
	vals := make([]int64, 5)
	for i := range vals {
		ok, err := it.Advance()
		if err != nil || !ok {
			return nil, false, fmt.Errorf("%w: ControlMsg missing argument %d", ErrMalformedRequest, i)
		}
		v, err := it.AsInt(true)
		if err != nil {
			return nil, false, err
		}
		vals[i] = v
	}
	ok, err := it.Advance()
	if err != nil || !ok {
		return nil, false, fmt.Errorf("%w: ControlMsg missing buf", ErrMalformedRequest)
	}
	buf := it.AsBytes()
	ok, err = it.Advance()
	if err != nil || !ok {
		return nil, false, fmt.Errorf("%w: ControlMsg missing timeout", ErrMalformedRequest)
	}
	timeout, err := it.AsInt(true)
	if err != nil {
		return nil, false, err
	}

	handle := vals[0]
	rc := int32(-1)
	var back []byte
	if e, found := sess.Lookup(int32(handle)); found {
		rc, back = d.backend.ControlMsg(e.Device, int32(vals[1]), int32(vals[2]), int32(vals[3]), int32(vals[4]), buf, int32(timeout))
	}
	p := tlv.NewPacket(rpc.ControlMsg)
	_ = p.AppendInteger(tlv.TagInteger, 4, int64(rc))
	_ = p.AppendTLV(tlv.TagOctets, back)
	return p.Payload(), true, nil
}

func readInt(it *tlv.Iterator) (int64, error) {
	ok, err := it.Advance()
	if err != nil || !ok {
		return 0, fmt.Errorf("%w: missing integer argument", ErrMalformedRequest)
	}
	return it.AsInt(true)
}

func readTwoUints(it *tlv.Iterator) (uint32, uint32, error) {
	a, err := readUint(it)
	if err != nil {
		return 0, 0, err
	}
	b, err := readUint(it)
	if err != nil {
		return 0, 0, err
	}
	return a, b, nil
}

func readUint(it *tlv.Iterator) (uint32, error) {
	ok, err := it.Advance()
	if err != nil || !ok {
		return 0, fmt.Errorf("%w: missing unsigned argument", ErrMalformedRequest)
	}
	v, err := it.AsUint()
	return uint32(v), err
}

func readTwoInts(it *tlv.Iterator) (int64, int64, error) {
	a, err := readInt(it)
	if err != nil {
		return 0, 0, err
	}
	b, err := readInt(it)
	if err != nil {
		return 0, 0, err
	}
	return a, b, nil
}

func readFourInts(it *tlv.Iterator) (int64, int64, int64, int64, error) {
	vals := make([]int64, 4)
	for i := range vals {
		v, err := readInt(it)
		if err != nil {
			return 0, 0, 0, 0, err
		}
		vals[i] = v
	}
	return vals[0], vals[1], vals[2], vals[3], nil
}

// composeEnumerationReply serialises buses into p following §4.6's
// enumeration layout, finalising containers bottom-up. It does not touch the
// session registry: Open re-probes the bus itself (§4.6 step 3), so nothing
// found here is cached.
func composeEnumerationReply(p *tlv.Packet, buses []BusInfo) error {
	for _, bus := range buses {
		busHandle := p.BeginContainer(tlv.TagStructure)
		if err := p.AppendString(bus.Dirname); err != nil {
			return err
		}
		if err := p.AppendInteger(tlv.TagUnsignedInt, 4, int64(bus.Location)); err != nil {
			return err
		}
		for _, dev := range bus.Devices {
			if err := composeDeviceSequence(p, dev); err != nil {
				return err
			}
		}
		if err := p.FinalizeContainer(busHandle); err != nil {
			return err
		}
	}
	return nil
}

func composeDeviceSequence(p *tlv.Packet, dev DeviceInfo) error {
	devHandle := p.BeginContainer(tlv.TagSequence)
	if err := p.AppendString(dev.Filename); err != nil {
		return err
	}
	if err := p.AppendInteger(tlv.TagUnsignedInt, 4, int64(dev.Devnum)); err != nil {
		return err
	}
	if err := p.AppendTLV(tlv.TagRaw, rpc.EncodeDeviceDescriptor(dev.Descriptor)); err != nil {
		return err
	}
	for _, cfg := range dev.Configs {
		if err := p.AppendTLV(tlv.TagRaw, rpc.EncodeConfigDescriptor(cfg.Descriptor)); err != nil {
			return err
		}
		for _, iface := range cfg.Interfaces {
			if err := p.AppendInteger(tlv.TagInteger, 4, int64(len(iface.AltSettings))); err != nil {
				return err
			}
			for _, alt := range iface.AltSettings {
				if err := p.AppendTLV(tlv.TagRaw, rpc.EncodeInterfaceDescriptor(alt.Descriptor)); err != nil {
					return err
				}
				for _, ep := range alt.Endpoints {
					if err := p.AppendTLV(tlv.TagRaw, rpc.EncodeEndpointDescriptor(ep)); err != nil {
						return err
					}
				}
				if err := p.AppendInteger(tlv.TagInteger, 4, int64(len(alt.Extra))); err != nil {
					return err
				}
				if len(alt.Extra) > 0 {
					if err := p.AppendTLV(tlv.TagRaw, alt.Extra); err != nil {
						return err
					}
				}
			}
		}
	}
	return p.FinalizeContainer(devHandle)
}
