package session

import "github.com/vavrusa/usbproxy/internal/rpc"

// BusInfo, DeviceInfo, ConfigInfo, InterfaceInfo and AltInfo are the
// dispatcher's view of one enumeration result, independent of which real
// USB library produced it. Backend.FindDevices returns a tree of these;
// composeEnumerationReply (dispatch.go) walks it to build the wire reply.
type BusInfo struct {
	Dirname  string
	Location uint32
	Devices  []DeviceInfo
}

type DeviceInfo struct {
	Filename   string
	Devnum     uint32
	Descriptor rpc.DeviceDescriptor
	Native     NativeHandle // passed back to Open/Close unmodified
	Configs    []ConfigInfo
}

type ConfigInfo struct {
	Descriptor rpc.ConfigDescriptor
	Interfaces []InterfaceInfo
}

type InterfaceInfo struct {
	AltSettings []AltInfo
}

type AltInfo struct {
	Descriptor rpc.InterfaceDescriptor
	Endpoints  []rpc.EndpointDescriptor
	Extra      []byte
}

// Backend is the real USB library the dispatcher calls into, taken as given
// per spec.md §1 ("the actual USB library being wrapped ... is taken as
// given"). One production implementation wraps google/gousb
// (backend_gousb.go); tests use a hand-rolled fake.
type Backend interface {
	Init() error
	FindBusses() (int, error)
	FindDevices() ([]BusInfo, error)
	Open(busLoc, devnum uint32) (rc int32, native NativeHandle, err error)
	CloseDevice(dev NativeHandle) int32
	ControlMsg(dev NativeHandle, reqtype, request, value, index int32, buf []byte, timeout int32) (rc int32, back []byte)
	ClaimInterface(dev NativeHandle, ifnum int32) int32
	ReleaseInterface(dev NativeHandle, ifnum int32) int32
	GetKernelDriver(dev NativeHandle, ifnum int32, buflen uint32) (rc int32, name string)
	DetachKernelDriver(dev NativeHandle, ifnum int32) int32
	BulkRead(dev NativeHandle, ep, size, timeout int32) (rc int32, data []byte)
	BulkWrite(dev NativeHandle, ep int32, data []byte, timeout int32) int32
	SetConfiguration(dev NativeHandle, cfg int32) (rc int32, cfgEcho int32)
	SetAltInterface(dev NativeHandle, alt int32) (rc int32, altEcho int32)
	ResetEp(dev NativeHandle, ep uint32) int32
	ClearHalt(dev NativeHandle, ep uint32) int32
	Reset(dev NativeHandle) int32
	InterruptRead(dev NativeHandle, ep, size, timeout int32) (rc int32, data []byte)
	InterruptWrite(dev NativeHandle, ep int32, data []byte, timeout int32) int32
}
