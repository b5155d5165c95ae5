package session

import (
	"fmt"

	"github.com/google/gousb"

	"github.com/vavrusa/usbproxy/internal/rpc"
)

// GousbBackend wraps google/gousb as the real USB library the dispatcher
// calls into. Device opens keep their claimed gousb.Device, gousb.Config,
// and currently-claimed gousb.Interface (if any) together so that
// ClaimInterface/ReleaseInterface/BulkRead/BulkWrite have something to act
// on, mirroring the open/config/interface/endpoint lifecycle the teacher's
// USBDevice type manages by hand.
type GousbBackend struct {
	ctx *gousb.Context
}

// NewGousbBackend creates a libusb context. The context is shared by every
// session the server accepts; gousb's Context is safe for concurrent use,
// and the server's dispatch mutex (server.go) keeps calls into it serialised
// anyway.
func NewGousbBackend() *GousbBackend {
	return &GousbBackend{ctx: gousb.NewContext()}
}

// Close releases the libusb context. Called at server shutdown.
func (b *GousbBackend) Close() error {
	return b.ctx.Close()
}

func (b *GousbBackend) Init() error { return nil }

// gousbHandle is the NativeHandle a GousbBackend opens: the underlying
// device plus whichever interface is currently claimed.
type gousbHandle struct {
	dev    *gousb.Device
	cfg    *gousb.Config
	intf   *gousb.Interface
	ifnum  int
	epOut  map[int32]*gousb.OutEndpoint
	epIn   map[int32]*gousb.InEndpoint
}

func (b *GousbBackend) FindBusses() (int, error) {
	devs, err := b.ctx.OpenDevices(func(*gousb.DeviceDesc) bool { return false })
	if err != nil {
		return 0, err
	}
	buses := make(map[int]bool)
	for _, d := range devs {
		buses[d.Desc.Bus] = true
		d.Close()
	}
	return len(buses), nil
}

func (b *GousbBackend) FindDevices() ([]BusInfo, error) {
	devs, err := b.ctx.OpenDevices(func(*gousb.DeviceDesc) bool { return true })
	if err != nil {
		return nil, err
	}
	byBus := make(map[int]*BusInfo)
	var order []int
	for _, d := range devs {
		bus := d.Desc.Bus
		bi, ok := byBus[bus]
		if !ok {
			bi = &BusInfo{Dirname: fmt.Sprintf("%03d", bus), Location: uint32(bus)}
			byBus[bus] = bi
			order = append(order, bus)
		}
		bi.Devices = append(bi.Devices, deviceInfoFromGousb(d))
	}
	out := make([]BusInfo, 0, len(order))
	for _, bus := range order {
		out = append(out, *byBus[bus])
	}
	return out, nil
}

func deviceInfoFromGousb(d *gousb.Device) DeviceInfo {
	desc := d.Desc
	dd := rpc.DeviceDescriptor{
		Length: 18, DescriptorType: 1,
		USBVersion:        uint16(desc.Spec),
		DeviceClass:       uint8(desc.Class),
		DeviceSubClass:    uint8(desc.SubClass),
		DeviceProtocol:    uint8(desc.Protocol),
		MaxPacketSize0:    uint8(desc.MaxControlPacketSize),
		VendorID:          uint16(desc.Vendor),
		ProductID:         uint16(desc.Product),
		DeviceVersion:     uint16(desc.Device),
		NumConfigurations: uint8(len(desc.Configs)),
	}

	configs := make([]ConfigInfo, 0, len(desc.Configs))
	for _, cfg := range desc.Configs {
		configs = append(configs, configInfoFromGousb(cfg))
	}

	return DeviceInfo{
		Filename:   fmt.Sprintf("%03d", desc.Address),
		Devnum:     uint32(desc.Address),
		Descriptor: dd,
		Native:     &gousbHandle{dev: d, epOut: map[int32]*gousb.OutEndpoint{}, epIn: map[int32]*gousb.InEndpoint{}},
		Configs:    configs,
	}
}

func configInfoFromGousb(cfg gousb.ConfigDesc) ConfigInfo {
	cd := rpc.ConfigDescriptor{
		Length: 9, DescriptorType: 2,
		NumInterfaces:      uint8(len(cfg.Interfaces)),
		ConfigurationValue: uint8(cfg.Number),
		MaxPower:           uint8(cfg.MaxPower),
	}
	ifaces := make([]InterfaceInfo, 0, len(cfg.Interfaces))
	for _, ifc := range cfg.Interfaces {
		alts := make([]AltInfo, 0, len(ifc.AltSettings))
		for _, alt := range ifc.AltSettings {
			eps := make([]rpc.EndpointDescriptor, 0, len(alt.Endpoints))
			for _, ep := range alt.Endpoints {
				eps = append(eps, rpc.EndpointDescriptor{
					Length: 7, DescriptorType: 5,
					EndpointAddr:  uint8(ep.Address),
					MaxPacketSize: uint16(ep.MaxPacketSize),
				})
			}
			alts = append(alts, AltInfo{
				Descriptor: rpc.InterfaceDescriptor{
					Length: 9, DescriptorType: 4,
					InterfaceNumber:  uint8(alt.Number),
					AlternateSetting: uint8(alt.Alternate),
					NumEndpoints:     uint8(len(eps)),
					InterfaceClass:   uint8(alt.Class),
					InterfaceSubClass: uint8(alt.SubClass),
					InterfaceProtocol: uint8(alt.Protocol),
				},
				Endpoints: eps,
			})
		}
		ifaces = append(ifaces, InterfaceInfo{AltSettings: alts})
	}
	return ConfigInfo{Descriptor: cd, Interfaces: ifaces}
}

func asGousbHandle(dev NativeHandle) (*gousbHandle, bool) {
	h, ok := dev.(*gousbHandle)
	return h, ok
}

func (b *GousbBackend) Open(busLoc, devnum uint32) (int32, NativeHandle, error) {
	devs, err := b.ctx.OpenDevices(func(d *gousb.DeviceDesc) bool {
		return d.Bus == int(busLoc) && d.Address == int(devnum)
	})
	if err != nil || len(devs) == 0 {
		return -1, nil, fmt.Errorf("session: open bus=%d dev=%d: %w", busLoc, devnum, err)
	}
	for _, extra := range devs[1:] {
		extra.Close()
	}
	h := &gousbHandle{dev: devs[0], epOut: map[int32]*gousb.OutEndpoint{}, epIn: map[int32]*gousb.InEndpoint{}}
	return 0, h, nil
}

func (b *GousbBackend) CloseDevice(dev NativeHandle) int32 {
	h, ok := asGousbHandle(dev)
	if !ok {
		return -1
	}
	if h.intf != nil {
		h.intf.Close()
	}
	if h.cfg != nil {
		h.cfg.Close()
	}
	h.dev.Close()
	return 0
}

func (b *GousbBackend) ControlMsg(dev NativeHandle, reqtype, request, value, index int32, buf []byte, timeout int32) (int32, []byte) {
	h, ok := asGousbHandle(dev)
	if !ok {
		return -1, nil
	}
	out := make([]byte, len(buf))
	copy(out, buf)
	n, err := h.dev.Control(uint8(reqtype), uint8(request), uint16(value), uint16(index), out)
	if err != nil {
		return -1, nil
	}
	return int32(n), out[:n]
}

func (b *GousbBackend) ClaimInterface(dev NativeHandle, ifnum int32) int32 {
	h, ok := asGousbHandle(dev)
	if !ok {
		return -1
	}
	if h.cfg == nil {
		cfg, err := h.dev.Config(1)
		if err != nil {
			return -1
		}
		h.cfg = cfg
	}
	intf, err := h.cfg.Interface(int(ifnum), 0)
	if err != nil {
		return -1
	}
	h.intf = intf
	h.ifnum = int(ifnum)
	return 0
}

func (b *GousbBackend) ReleaseInterface(dev NativeHandle, ifnum int32) int32 {
	h, ok := asGousbHandle(dev)
	if !ok {
		return -1
	}
	if h.intf != nil {
		h.intf.Close()
		h.intf = nil
	}
	return 0
}

// GetKernelDriver: gousb does not expose the bound kernel driver name.
// Per Open Question (b) this returns NotFound-style empty output rather
// than being gated behind a feature flag.
func (b *GousbBackend) GetKernelDriver(dev NativeHandle, ifnum int32, buflen uint32) (int32, string) {
	return -1, ""
}

func (b *GousbBackend) DetachKernelDriver(dev NativeHandle, ifnum int32) int32 {
	return -1
}

func (b *GousbBackend) endpoints(h *gousbHandle, ep int32) (*gousb.OutEndpoint, *gousb.InEndpoint, error) {
	if h.intf == nil {
		return nil, nil, fmt.Errorf("session: no interface claimed")
	}
	addr := gousb.EndpointAddress(ep)
	if addr&0x80 != 0 {
		if in, ok := h.epIn[ep]; ok {
			return nil, in, nil
		}
		in, err := h.intf.InEndpoint(int(addr & 0x0f))
		if err != nil {
			return nil, nil, err
		}
		h.epIn[ep] = in
		return nil, in, nil
	}
	if out, ok := h.epOut[ep]; ok {
		return out, nil, nil
	}
	out, err := h.intf.OutEndpoint(int(addr))
	if err != nil {
		return nil, nil, err
	}
	h.epOut[ep] = out
	return out, nil, nil
}

func (b *GousbBackend) BulkRead(dev NativeHandle, ep, size, timeout int32) (int32, []byte) {
	h, ok := asGousbHandle(dev)
	if !ok {
		return -1, nil
	}
	_, in, err := b.endpoints(h, ep)
	if err != nil || in == nil {
		return -1, nil
	}
	buf := make([]byte, size)
	n, err := in.Read(buf)
	if err != nil {
		return -1, nil
	}
	return int32(n), buf[:n]
}

func (b *GousbBackend) BulkWrite(dev NativeHandle, ep int32, data []byte, timeout int32) int32 {
	h, ok := asGousbHandle(dev)
	if !ok {
		return -1
	}
	out, _, err := b.endpoints(h, ep)
	if err != nil || out == nil {
		return -1
	}
	n, err := out.Write(data)
	if err != nil {
		return -1
	}
	return int32(n)
}

func (b *GousbBackend) InterruptRead(dev NativeHandle, ep, size, timeout int32) (int32, []byte) {
	return b.BulkRead(dev, ep, size, timeout)
}

func (b *GousbBackend) InterruptWrite(dev NativeHandle, ep int32, data []byte, timeout int32) int32 {
	return b.BulkWrite(dev, ep, data, timeout)
}

func (b *GousbBackend) SetConfiguration(dev NativeHandle, cfg int32) (int32, int32) {
	h, ok := asGousbHandle(dev)
	if !ok {
		return -1, 0
	}
	c, err := h.dev.Config(int(cfg))
	if err != nil {
		return -1, 0
	}
	if h.cfg != nil {
		h.cfg.Close()
	}
	h.cfg = c
	return 0, cfg
}

func (b *GousbBackend) SetAltInterface(dev NativeHandle, alt int32) (int32, int32) {
	h, ok := asGousbHandle(dev)
	if !ok || h.cfg == nil {
		return -1, 0
	}
	intf, err := h.cfg.Interface(h.ifnum, int(alt))
	if err != nil {
		return -1, 0
	}
	if h.intf != nil {
		h.intf.Close()
	}
	h.intf = intf
	return 0, alt
}

func (b *GousbBackend) ResetEp(dev NativeHandle, ep uint32) int32 {
	return 0
}

func (b *GousbBackend) ClearHalt(dev NativeHandle, ep uint32) int32 {
	return 0
}

func (b *GousbBackend) Reset(dev NativeHandle) int32 {
	h, ok := asGousbHandle(dev)
	if !ok {
		return -1
	}
	if err := h.dev.Reset(); err != nil {
		return -1
	}
	return 0
}
