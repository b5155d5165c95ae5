package stub

import "github.com/vavrusa/usbproxy/internal/rpc"

// AltSetting is one alternate setting of an interface: a descriptor plus its
// owned endpoint list and trailing extra-descriptor blob.
type AltSetting struct {
	Descriptor rpc.InterfaceDescriptor
	Endpoints  []rpc.EndpointDescriptor
	Extra      []byte

	Interface *Interface // non-owning back-reference
}

// Interface owns its alternate settings.
type Interface struct {
	AltSettings []*AltSetting

	Config *Config // non-owning back-reference
}

// Config owns its interfaces.
type Config struct {
	Descriptor rpc.ConfigDescriptor
	Interfaces []*Interface

	Device *Device // non-owning back-reference
}

// Device owns its configurations. Bus is the non-owning back-reference the
// invariant in spec.md §3 requires ("every device.bus back-reference equals
// its containing bus").
type Device struct {
	Filename   string
	Devnum     uint32
	Descriptor rpc.DeviceDescriptor
	Configs    []*Config

	Bus *Bus
}

// Bus owns its devices.
type Bus struct {
	Dirname  string
	Location uint32
	Devices  []*Device
}

// Tree is the client-owned virtual bus tree rebuilt on every FindDevices
// reply (§4.5). The host program's usb_get_busses() returns Head().
type Tree struct {
	buses []*Bus
}

// Head returns the first bus in the tree, or nil if the tree is empty —
// mirrors the wrapped library's global bus-list head pointer.
func (t *Tree) Head() *Bus {
	if len(t.buses) == 0 {
		return nil
	}
	return t.buses[0]
}

// Buses returns the tree's current bus list.
func (t *Tree) Buses() []*Bus {
	return t.buses
}
