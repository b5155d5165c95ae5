package session

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vavrusa/usbproxy/internal/rpc"
	"github.com/vavrusa/usbproxy/pkg/tlv"
)

func TestDispatchFindBussesOnEmptyHost(t *testing.T) {
	d := NewDispatcher(&fakeBackend{})
	reply, sendReply, err := d.Dispatch(NewRegistry(), rpc.FindBusses, nil)
	require.NoError(t, err)
	require.True(t, sendReply)

	it := tlv.NewIteratorBytes(reply)
	ok, err := it.Advance()
	require.NoError(t, err)
	require.True(t, ok)
	v, err := it.AsInt(true)
	require.NoError(t, err)
	require.EqualValues(t, 0, v)
}

func TestDispatchOpenCloseLifecycle(t *testing.T) {
	backend := &fakeBackend{}
	d := NewDispatcher(backend)
	reg := NewRegistry()

	reqPacket := tlv.NewPacket(rpc.Open)
	require.NoError(t, reqPacket.AppendInteger(tlv.TagUnsignedInt, 4, 1))
	require.NoError(t, reqPacket.AppendInteger(tlv.TagUnsignedInt, 4, 2))
	reply, sendReply, err := d.Dispatch(reg, rpc.Open, reqPacket.Payload())
	require.NoError(t, err)
	require.True(t, sendReply)

	it := tlv.NewIteratorBytes(reply)
	ok, _ := it.Advance()
	require.True(t, ok)
	rc, _ := it.AsInt(true)
	require.EqualValues(t, 0, rc)
	ok, _ = it.Advance()
	require.True(t, ok)
	handle, _ := it.AsInt(true)
	require.Equal(t, 1, reg.Len())

	closeReq := tlv.NewPacket(rpc.Close)
	require.NoError(t, closeReq.AppendInteger(tlv.TagInteger, 4, handle))
	reply, sendReply, err = d.Dispatch(reg, rpc.Close, closeReq.Payload())
	require.NoError(t, err)
	require.True(t, sendReply)

	it = tlv.NewIteratorBytes(reply)
	ok, _ = it.Advance()
	require.True(t, ok)
	rc, _ = it.AsInt(true)
	require.EqualValues(t, 0, rc)
	require.Equal(t, 0, reg.Len())
	require.Equal(t, 1, backend.closedCount)
}

func TestDispatchUnknownOpcodeIsDroppedSessionStaysOpen(t *testing.T) {
	d := NewDispatcher(&fakeBackend{})
	reply, sendReply, err := d.Dispatch(NewRegistry(), 0x30+99, nil)
	require.NoError(t, err)
	require.False(t, sendReply)
	require.Nil(t, reply)
}

func TestDispatchCloseUnknownHandleReturnsNegativeRC(t *testing.T) {
	d := NewDispatcher(&fakeBackend{})
	req := tlv.NewPacket(rpc.Close)
	require.NoError(t, req.AppendInteger(tlv.TagInteger, 4, 999))
	reply, sendReply, err := d.Dispatch(NewRegistry(), rpc.Close, req.Payload())
	require.NoError(t, err)
	require.True(t, sendReply)

	it := tlv.NewIteratorBytes(reply)
	ok, _ := it.Advance()
	require.True(t, ok)
	rc, _ := it.AsInt(true)
	require.Less(t, rc, int64(0))
}

func TestDispatchEnumerationRoundTrip(t *testing.T) {
	backend := &fakeBackend{buses: []BusInfo{
		{
			Dirname:  "001",
			Location: 1,
			Devices: []DeviceInfo{
				{
					Filename:   "001",
					Devnum:     2,
					Descriptor: rpc.DeviceDescriptor{Length: 18, DescriptorType: 1, NumConfigurations: 0},
				},
			},
		},
	}}
	d := NewDispatcher(backend)
	reply, sendReply, err := d.Dispatch(NewRegistry(), rpc.FindDevices, nil)
	require.NoError(t, err)
	require.True(t, sendReply)

	it := tlv.NewIteratorBytes(reply)
	ok, _ := it.Advance()
	require.True(t, ok)
	count, _ := it.AsInt(true)
	require.EqualValues(t, 1, count)

	ok, _ = it.Advance()
	require.True(t, ok)
	require.Equal(t, tlv.TagStructure, it.Tag())

	busIt := it.Enter()
	ok, _ = busIt.Advance()
	require.True(t, ok)
	require.Equal(t, "001", busIt.AsStr())

	ok, _ = busIt.Advance()
	require.True(t, ok)
	loc, _ := busIt.AsUint()
	require.EqualValues(t, 1, loc)

	ok, _ = busIt.Advance()
	require.True(t, ok)
	require.Equal(t, tlv.TagSequence, busIt.Tag())

	devIt := busIt.Enter()
	ok, _ = devIt.Advance()
	require.True(t, ok)
	require.Equal(t, "001", devIt.AsStr())
	ok, _ = devIt.Advance()
	require.True(t, ok)
	devnum, _ := devIt.AsUint()
	require.EqualValues(t, 2, devnum)
}
