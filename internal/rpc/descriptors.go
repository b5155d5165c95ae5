package rpc

import (
	"encoding/binary"
	"fmt"
)

// DeviceDescriptor mirrors the USB device descriptor's 18-byte layout.
// Field names follow the USB spec rather than any Go library's naming, since
// this is the wire shape both ends must agree on byte-for-byte.
type DeviceDescriptor struct {
	Length            uint8
	DescriptorType    uint8
	USBVersion        uint16
	DeviceClass       uint8
	DeviceSubClass    uint8
	DeviceProtocol    uint8
	MaxPacketSize0    uint8
	VendorID          uint16
	ProductID         uint16
	DeviceVersion     uint16
	ManufacturerIndex uint8
	ProductIndex      uint8
	SerialNumberIndex uint8
	NumConfigurations uint8
}

const deviceDescriptorLen = 18

// ConfigDescriptor mirrors the USB configuration descriptor's 9-byte layout.
type ConfigDescriptor struct {
	Length             uint8
	DescriptorType     uint8
	TotalLength        uint16
	NumInterfaces      uint8
	ConfigurationValue uint8
	ConfigurationIndex uint8
	Attributes         uint8
	MaxPower           uint8
}

const configDescriptorLen = 9

// InterfaceDescriptor mirrors the USB interface descriptor's 9-byte layout.
type InterfaceDescriptor struct {
	Length            uint8
	DescriptorType    uint8
	InterfaceNumber   uint8
	AlternateSetting  uint8
	NumEndpoints      uint8
	InterfaceClass    uint8
	InterfaceSubClass uint8
	InterfaceProtocol uint8
	InterfaceIndex    uint8
}

const interfaceDescriptorLen = 9

// EndpointDescriptor mirrors the USB endpoint descriptor's 7-byte layout.
type EndpointDescriptor struct {
	Length         uint8
	DescriptorType uint8
	EndpointAddr   uint8
	Attributes     uint8
	MaxPacketSize  uint16
	Interval       uint8
}

const endpointDescriptorLen = 7

// Multi-byte fields travel big-endian on the RPC wire (§3, expansion); the
// USB descriptor itself stores them little-endian. Encode swaps
// native->wire, Decode swaps wire->native; the swap is its own inverse.

// EncodeDeviceDescriptor packs d into its Raw wire form.
func EncodeDeviceDescriptor(d DeviceDescriptor) []byte {
	b := make([]byte, deviceDescriptorLen)
	b[0] = d.Length
	b[1] = d.DescriptorType
	binary.BigEndian.PutUint16(b[2:4], d.USBVersion)
	b[4] = d.DeviceClass
	b[5] = d.DeviceSubClass
	b[6] = d.DeviceProtocol
	b[7] = d.MaxPacketSize0
	binary.BigEndian.PutUint16(b[8:10], d.VendorID)
	binary.BigEndian.PutUint16(b[10:12], d.ProductID)
	binary.BigEndian.PutUint16(b[12:14], d.DeviceVersion)
	b[14] = d.ManufacturerIndex
	b[15] = d.ProductIndex
	b[16] = d.SerialNumberIndex
	b[17] = d.NumConfigurations
	return b
}

// DecodeDeviceDescriptor unpacks a Raw wire value into a DeviceDescriptor.
func DecodeDeviceDescriptor(b []byte) (DeviceDescriptor, error) {
	if len(b) != deviceDescriptorLen {
		return DeviceDescriptor{}, fmt.Errorf("rpc: device descriptor: want %d bytes, got %d", deviceDescriptorLen, len(b))
	}
	return DeviceDescriptor{
		Length:            b[0],
		DescriptorType:    b[1],
		USBVersion:        binary.BigEndian.Uint16(b[2:4]),
		DeviceClass:       b[4],
		DeviceSubClass:    b[5],
		DeviceProtocol:    b[6],
		MaxPacketSize0:    b[7],
		VendorID:          binary.BigEndian.Uint16(b[8:10]),
		ProductID:         binary.BigEndian.Uint16(b[10:12]),
		DeviceVersion:     binary.BigEndian.Uint16(b[12:14]),
		ManufacturerIndex: b[14],
		ProductIndex:      b[15],
		SerialNumberIndex: b[16],
		NumConfigurations: b[17],
	}, nil
}

// EncodeConfigDescriptor packs c into its Raw wire form.
func EncodeConfigDescriptor(c ConfigDescriptor) []byte {
	b := make([]byte, configDescriptorLen)
	b[0] = c.Length
	b[1] = c.DescriptorType
	binary.BigEndian.PutUint16(b[2:4], c.TotalLength)
	b[4] = c.NumInterfaces
	b[5] = c.ConfigurationValue
	b[6] = c.ConfigurationIndex
	b[7] = c.Attributes
	b[8] = c.MaxPower
	return b
}

// DecodeConfigDescriptor unpacks a Raw wire value into a ConfigDescriptor.
func DecodeConfigDescriptor(b []byte) (ConfigDescriptor, error) {
	if len(b) != configDescriptorLen {
		return ConfigDescriptor{}, fmt.Errorf("rpc: config descriptor: want %d bytes, got %d", configDescriptorLen, len(b))
	}
	return ConfigDescriptor{
		Length:             b[0],
		DescriptorType:     b[1],
		TotalLength:        binary.BigEndian.Uint16(b[2:4]),
		NumInterfaces:      b[4],
		ConfigurationValue: b[5],
		ConfigurationIndex: b[6],
		Attributes:         b[7],
		MaxPower:           b[8],
	}, nil
}

// EncodeInterfaceDescriptor packs i into its Raw wire form.
func EncodeInterfaceDescriptor(i InterfaceDescriptor) []byte {
	return []byte{
		i.Length, i.DescriptorType, i.InterfaceNumber, i.AlternateSetting,
		i.NumEndpoints, i.InterfaceClass, i.InterfaceSubClass,
		i.InterfaceProtocol, i.InterfaceIndex,
	}
}

// DecodeInterfaceDescriptor unpacks a Raw wire value into an
// InterfaceDescriptor. No multi-byte fields, so no swap is needed.
func DecodeInterfaceDescriptor(b []byte) (InterfaceDescriptor, error) {
	if len(b) != interfaceDescriptorLen {
		return InterfaceDescriptor{}, fmt.Errorf("rpc: interface descriptor: want %d bytes, got %d", interfaceDescriptorLen, len(b))
	}
	return InterfaceDescriptor{
		Length: b[0], DescriptorType: b[1], InterfaceNumber: b[2],
		AlternateSetting: b[3], NumEndpoints: b[4], InterfaceClass: b[5],
		InterfaceSubClass: b[6], InterfaceProtocol: b[7], InterfaceIndex: b[8],
	}, nil
}

// EncodeEndpointDescriptor packs e into its Raw wire form.
func EncodeEndpointDescriptor(e EndpointDescriptor) []byte {
	b := make([]byte, endpointDescriptorLen)
	b[0] = e.Length
	b[1] = e.DescriptorType
	b[2] = e.EndpointAddr
	b[3] = e.Attributes
	binary.BigEndian.PutUint16(b[4:6], e.MaxPacketSize)
	b[6] = e.Interval
	return b
}

// DecodeEndpointDescriptor unpacks a Raw wire value into an
// EndpointDescriptor.
func DecodeEndpointDescriptor(b []byte) (EndpointDescriptor, error) {
	if len(b) != endpointDescriptorLen {
		return EndpointDescriptor{}, fmt.Errorf("rpc: endpoint descriptor: want %d bytes, got %d", endpointDescriptorLen, len(b))
	}
	return EndpointDescriptor{
		Length: b[0], DescriptorType: b[1], EndpointAddr: b[2], Attributes: b[3],
		MaxPacketSize: binary.BigEndian.Uint16(b[4:6]), Interval: b[6],
	}, nil
}
