package tlv

// Iterator is a cursor over a byte range holding a packed TLV sequence: a
// packet's payload, or a container item's value bytes. At any moment either
// the cursor points at a valid TLV header within [begin, end) or the cursor
// is at end, signifying end of sequence.
type Iterator struct {
	buf   []byte
	pos   int
	end   int
	tag   Tag
	vpos  int
	vlen  int
	valid bool
}

// NewIterator returns an iterator over pkt's payload.
func NewIterator(pkt *Packet) *Iterator {
	return &Iterator{buf: pkt.payload, pos: 0, end: len(pkt.payload)}
}

// iteratorOver builds an iterator over an arbitrary byte range of buf,
// used internally by Enter to descend into a container's value bytes.
func iteratorOver(buf []byte, start, end int) *Iterator {
	return &Iterator{buf: buf, pos: start, end: end}
}

// NewIteratorBytes returns an iterator over a raw TLV-sequence byte slice,
// for callers (the client stub and the server dispatcher) that never built
// a Packet around bytes they received off the wire.
func NewIteratorBytes(buf []byte) *Iterator {
	return iteratorOver(buf, 0, len(buf))
}

// Tag returns the current item's type tag. Only valid after Advance
// returns true.
func (it *Iterator) Tag() Tag { return it.tag }

// Len returns the current item's value length in bytes.
func (it *Iterator) Len() int { return it.vlen }

// Value returns the current item's raw value bytes.
func (it *Iterator) Value() []byte {
	if !it.valid {
		return nil
	}
	return it.buf[it.vpos : it.vpos+it.vlen]
}

// Done reports whether the cursor has reached the end of its range.
func (it *Iterator) Done() bool { return it.pos >= it.end }

// Advance moves to the next sibling item, recording its tag, length, and
// value slice. It returns false at end of sequence, and an error if the
// bytes at the cursor are not a well-formed TLV header or the declared
// value length runs past the iterator's end.
func (it *Iterator) Advance() (bool, error) {
	it.valid = false
	if it.pos >= it.end {
		return false, nil
	}
	if it.pos+1 > it.end {
		return false, ErrTruncated
	}
	tag := Tag(it.buf[it.pos])
	lenBytes := it.buf[it.pos+1 : it.end]
	length, consumed, err := UnpackLength(lenBytes)
	if err != nil {
		return false, err
	}
	valStart := it.pos + 1 + consumed
	valEnd := valStart + int(length)
	if valEnd > it.end {
		return false, ErrTruncated
	}
	it.tag = tag
	it.vpos = valStart
	it.vlen = int(length)
	it.pos = valEnd
	it.valid = true
	return true, nil
}

// Enter descends into the current item's value bytes, which must be a
// container tag (Sequence, Set, or Structure); the returned iterator's
// first Advance() yields the container's first child. Calling Enter on a
// non-container item yields an iterator over an empty range.
func (it *Iterator) Enter() *Iterator {
	if !it.valid || !it.tag.IsContainer() {
		return iteratorOver(it.buf, it.vpos, it.vpos)
	}
	return iteratorOver(it.buf, it.vpos, it.vpos+it.vlen)
}

// AsInt decodes the current item's value as a signed or unsigned integer of
// its declared length (which must be 1, 2, or 4 bytes).
func (it *Iterator) AsInt(signed bool) (int64, error) {
	if !it.valid {
		return 0, ErrTruncated
	}
	return UnpackInteger(it.Value(), it.vlen, signed)
}

// AsUint is AsInt(false) with a uint64 return, for callers that need the
// full unsigned range of a 4-byte field.
func (it *Iterator) AsUint() (uint64, error) {
	v, err := it.AsInt(false)
	if err != nil {
		return 0, err
	}
	return uint64(v), nil
}

// AsStr returns the value up to (but not including) the first NUL byte, or
// the full value if none is present.
func (it *Iterator) AsStr() string {
	v := it.Value()
	for i, b := range v {
		if b == 0 {
			return string(v[:i])
		}
	}
	return string(v)
}

// AsBytes returns the raw value bytes.
func (it *Iterator) AsBytes() []byte { return it.Value() }
