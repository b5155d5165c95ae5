package rpc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeviceDescriptorRoundTrip(t *testing.T) {
	want := DeviceDescriptor{
		Length: 18, DescriptorType: 1, USBVersion: 0x0200,
		DeviceClass: 0, DeviceSubClass: 0, DeviceProtocol: 0, MaxPacketSize0: 64,
		VendorID: 0x1d6b, ProductID: 0x0002, DeviceVersion: 0x0100,
		ManufacturerIndex: 1, ProductIndex: 2, SerialNumberIndex: 0, NumConfigurations: 1,
	}
	wire := EncodeDeviceDescriptor(want)
	require.Len(t, wire, deviceDescriptorLen)

	got, err := DecodeDeviceDescriptor(wire)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestConfigDescriptorRoundTrip(t *testing.T) {
	want := ConfigDescriptor{
		Length: 9, DescriptorType: 2, TotalLength: 0x0020,
		NumInterfaces: 1, ConfigurationValue: 1, ConfigurationIndex: 0,
		Attributes: 0x80, MaxPower: 50,
	}
	got, err := DecodeConfigDescriptor(EncodeConfigDescriptor(want))
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestInterfaceDescriptorRoundTrip(t *testing.T) {
	want := InterfaceDescriptor{
		Length: 9, DescriptorType: 4, InterfaceNumber: 0, AlternateSetting: 0,
		NumEndpoints: 2, InterfaceClass: 8, InterfaceSubClass: 6, InterfaceProtocol: 80,
		InterfaceIndex: 0,
	}
	got, err := DecodeInterfaceDescriptor(EncodeInterfaceDescriptor(want))
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestEndpointDescriptorRoundTrip(t *testing.T) {
	want := EndpointDescriptor{
		Length: 7, DescriptorType: 5, EndpointAddr: 0x81, Attributes: 2,
		MaxPacketSize: 512, Interval: 0,
	}
	got, err := DecodeEndpointDescriptor(EncodeEndpointDescriptor(want))
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestDescriptorWrongLengthRejected(t *testing.T) {
	_, err := DecodeDeviceDescriptor(make([]byte, 10))
	require.Error(t, err)
}
