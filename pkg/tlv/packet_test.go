package tlv

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPacketAppendAndIterate(t *testing.T) {
	p := NewPacket(byte(TagCall) + 2)
	require.NoError(t, p.AppendInteger(TagInteger, 4, 7))
	require.NoError(t, p.AppendString("hello"))

	it := NewIterator(p)

	ok, err := it.Advance()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, TagInteger, it.Tag())
	v, err := it.AsInt(true)
	require.NoError(t, err)
	require.EqualValues(t, 7, v)

	ok, err = it.Advance()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, TagOctets, it.Tag())
	require.Equal(t, "hello", it.AsStr())

	ok, err = it.Advance()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPacketNestedContainers(t *testing.T) {
	p := NewPacket(byte(TagCall) + 3)
	require.NoError(t, p.AppendInteger(TagInteger, 4, 1))

	outer := p.BeginContainer(TagStructure)
	require.NoError(t, p.AppendString("001"))
	inner := p.BeginContainer(TagSequence)
	require.NoError(t, p.AppendString("dev1"))
	require.NoError(t, p.AppendInteger(TagUnsignedInt, 1, 2))
	require.NoError(t, p.FinalizeContainer(inner))
	require.NoError(t, p.FinalizeContainer(outer))

	it := NewIterator(p)
	ok, err := it.Advance()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, TagInteger, it.Tag())

	ok, err = it.Advance()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, TagStructure, it.Tag())

	structIt := it.Enter()
	ok, err = structIt.Advance()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "001", structIt.AsStr())

	ok, err = structIt.Advance()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, TagSequence, structIt.Tag())

	devIt := structIt.Enter()
	ok, err = devIt.Advance()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "dev1", devIt.AsStr())

	ok, err = devIt.Advance()
	require.NoError(t, err)
	require.True(t, ok)
	u, err := devIt.AsUint()
	require.NoError(t, err)
	require.EqualValues(t, 2, u)

	ok, err = devIt.Advance()
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = structIt.Advance()
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = it.Advance()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestIteratorEnterOnLeafIsEmpty(t *testing.T) {
	p := NewPacket(1)
	require.NoError(t, p.AppendInteger(TagInteger, 4, 9))
	it := NewIterator(p)
	ok, err := it.Advance()
	require.NoError(t, err)
	require.True(t, ok)

	leaf := it.Enter()
	ok, err = leaf.Advance()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestIteratorTruncatedContainer(t *testing.T) {
	// Hand-craft a Structure claiming more bytes than the buffer holds.
	p := &Packet{Opcode: 1, payload: []byte{byte(TagStructure), 0x05, 0x01}}
	it := NewIterator(p)
	_, err := it.Advance()
	require.ErrorIs(t, err, ErrTruncated)
}

func TestPacketWalkVisitsEveryLeafOnce(t *testing.T) {
	p := NewPacket(1)
	outer := p.BeginContainer(TagStructure)
	for i := 0; i < 3; i++ {
		require.NoError(t, p.AppendInteger(TagInteger, 1, int64(i)))
	}
	require.NoError(t, p.FinalizeContainer(outer))

	var leaves []int64
	var walk func(it *Iterator)
	walk = func(it *Iterator) {
		for {
			ok, err := it.Advance()
			require.NoError(t, err)
			if !ok {
				return
			}
			if it.Tag().IsContainer() {
				walk(it.Enter())
				continue
			}
			v, err := it.AsInt(true)
			require.NoError(t, err)
			leaves = append(leaves, v)
		}
	}
	walk(NewIterator(p))
	require.Equal(t, []int64{0, 1, 2}, leaves)
}
