package stub

import (
	"fmt"

	"github.com/vavrusa/usbproxy/internal/rpc"
	"github.com/vavrusa/usbproxy/pkg/tlv"
)

// Reconcile walks a FindDevices reply (positioned just past the leading
// Integer:count) and reconciles tree against it per §4.5: nodes are matched
// by position, excess trailing nodes at every level are dropped, and new
// ones are appended in-order.
func Reconcile(tree *Tree, it *tlv.Iterator) error {
	buses := make([]*Bus, 0, len(tree.buses))

	idx := 0
	for {
		ok, err := it.Advance()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		if it.Tag() != tlv.TagStructure {
			return fmt.Errorf("stub: bus entry %d: want Structure, got tag %#x", idx, it.Tag())
		}
		bus := reuseBus(tree, idx)
		if err := reconcileBus(bus, it.Enter()); err != nil {
			return fmt.Errorf("stub: bus entry %d: %w", idx, err)
		}
		buses = append(buses, bus)
		idx++
	}
	tree.buses = buses
	return nil
}

func reuseBus(tree *Tree, idx int) *Bus {
	if idx < len(tree.buses) {
		return tree.buses[idx]
	}
	return &Bus{}
}

func reconcileBus(bus *Bus, busIt *tlv.Iterator) error {
	if ok, err := busIt.Advance(); err != nil || !ok {
		return fmt.Errorf("missing dirname")
	}
	bus.Dirname = busIt.AsStr()

	if ok, err := busIt.Advance(); err != nil || !ok {
		return fmt.Errorf("missing location")
	}
	loc, err := busIt.AsUint()
	if err != nil {
		return err
	}
	bus.Location = uint32(loc)

	devices := make([]*Device, 0, len(bus.Devices))
	idx := 0
	for {
		ok, err := busIt.Advance()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		if busIt.Tag() != tlv.TagSequence {
			return fmt.Errorf("device entry %d: want Sequence, got tag %#x", idx, busIt.Tag())
		}
		dev := reuseDevice(bus, idx)
		dev.Bus = bus
		if err := reconcileDevice(dev, busIt.Enter()); err != nil {
			return fmt.Errorf("device entry %d: %w", idx, err)
		}
		devices = append(devices, dev)
		idx++
	}
	bus.Devices = devices
	return nil
}

func reuseDevice(bus *Bus, idx int) *Device {
	if idx < len(bus.Devices) {
		return bus.Devices[idx]
	}
	return &Device{}
}

func reconcileDevice(dev *Device, devIt *tlv.Iterator) error {
	if ok, err := devIt.Advance(); err != nil || !ok {
		return fmt.Errorf("missing filename")
	}
	dev.Filename = devIt.AsStr()

	if ok, err := devIt.Advance(); err != nil || !ok {
		return fmt.Errorf("missing devnum")
	}
	devnum, err := devIt.AsUint()
	if err != nil {
		return err
	}
	dev.Devnum = uint32(devnum)

	if ok, err := devIt.Advance(); err != nil || !ok {
		return fmt.Errorf("missing device descriptor")
	}
	desc, err := rpc.DecodeDeviceDescriptor(devIt.AsBytes())
	if err != nil {
		return err
	}
	dev.Descriptor = desc

	configs := make([]*Config, 0, desc.NumConfigurations)
	for c := 0; c < int(desc.NumConfigurations); c++ {
		if ok, err := devIt.Advance(); err != nil || !ok {
			return fmt.Errorf("missing config descriptor %d", c)
		}
		cdesc, err := rpc.DecodeConfigDescriptor(devIt.AsBytes())
		if err != nil {
			return err
		}
		cfg := &Config{Descriptor: cdesc, Device: dev}

		ifaces := make([]*Interface, 0, cdesc.NumInterfaces)
		for ifn := 0; ifn < int(cdesc.NumInterfaces); ifn++ {
			if ok, err := devIt.Advance(); err != nil || !ok {
				return fmt.Errorf("config %d: missing altsetting count for interface %d", c, ifn)
			}
			altCount, err := devIt.AsInt(false)
			if err != nil {
				return err
			}
			iface := &Interface{Config: cfg}

			alts := make([]*AltSetting, 0, altCount)
			for a := 0; a < int(altCount); a++ {
				if ok, err := devIt.Advance(); err != nil || !ok {
					return fmt.Errorf("interface %d: missing alt descriptor %d", ifn, a)
				}
				ifaceDesc, err := rpc.DecodeInterfaceDescriptor(devIt.AsBytes())
				if err != nil {
					return err
				}
				alt := &AltSetting{Descriptor: ifaceDesc, Interface: iface}

				eps := make([]rpc.EndpointDescriptor, 0, ifaceDesc.NumEndpoints)
				for e := 0; e < int(ifaceDesc.NumEndpoints); e++ {
					if ok, err := devIt.Advance(); err != nil || !ok {
						return fmt.Errorf("alt %d: missing endpoint descriptor %d", a, e)
					}
					ep, err := rpc.DecodeEndpointDescriptor(devIt.AsBytes())
					if err != nil {
						return err
					}
					eps = append(eps, ep)
				}
				alt.Endpoints = eps

				if ok, err := devIt.Advance(); err != nil || !ok {
					return fmt.Errorf("alt %d: missing extra-length", a)
				}
				extraLen, err := devIt.AsInt(false)
				if err != nil {
					return err
				}
				if extraLen > 0 {
					if ok, err := devIt.Advance(); err != nil || !ok {
						return fmt.Errorf("alt %d: missing extras blob", a)
					}
					alt.Extra = devIt.AsBytes()
				}
				alts = append(alts, alt)
			}
			iface.AltSettings = alts
			ifaces = append(ifaces, iface)
		}
		cfg.Interfaces = ifaces
		configs = append(configs, cfg)
	}
	dev.Configs = configs
	return nil
}
