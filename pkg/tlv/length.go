package tlv

import "encoding/binary"

// Long-form length prefixes. A leading byte of 0x82 introduces a 2-byte
// big-endian length; 0x84 introduces a 4-byte big-endian length. Any other
// leading byte above the short-form ceiling is invalid.
const (
	shortFormMax  = 0x80
	longForm2     = 0x82
	longForm4     = 0x84
	maxEncodable  = 0xFFFFFFFF
)

// PackLength encodes v as a short or long form size field, matching the
// original protocol's pkt_addsize: values up to 0x80 encode as themselves,
// values up to 0xFFFF use the 0x82 form, everything else up to 32 bits uses
// the 0x84 form.
func PackLength(v uint64) ([]byte, error) {
	switch {
	case v <= shortFormMax:
		return []byte{byte(v)}, nil
	case v <= 0xFFFF:
		buf := make([]byte, 3)
		buf[0] = longForm2
		binary.BigEndian.PutUint16(buf[1:], uint16(v))
		return buf, nil
	case v <= maxEncodable:
		buf := make([]byte, 5)
		buf[0] = longForm4
		binary.BigEndian.PutUint32(buf[1:], uint32(v))
		return buf, nil
	default:
		return nil, ErrEncodingLimit
	}
}

// UnpackLength decodes a size field from the front of b, returning the value
// and the number of bytes it consumed.
func UnpackLength(b []byte) (v uint64, consumed int, err error) {
	if len(b) == 0 {
		return 0, 0, ErrTruncated
	}
	lead := b[0]
	switch {
	case lead <= shortFormMax:
		return uint64(lead), 1, nil
	case lead == longForm2:
		if len(b) < 3 {
			return 0, 0, ErrTruncated
		}
		return uint64(binary.BigEndian.Uint16(b[1:3])), 3, nil
	case lead == longForm4:
		if len(b) < 5 {
			return 0, 0, ErrTruncated
		}
		return uint64(binary.BigEndian.Uint32(b[1:5])), 5, nil
	default:
		return 0, 0, ErrMalformedLength
	}
}

// PackInteger encodes value in the given width (1, 2, or 4 bytes), big-endian
// for widths above one.
func PackInteger(value int64, width int) ([]byte, error) {
	switch width {
	case 1:
		return []byte{byte(value)}, nil
	case 2:
		buf := make([]byte, 2)
		binary.BigEndian.PutUint16(buf, uint16(value))
		return buf, nil
	case 4:
		buf := make([]byte, 4)
		binary.BigEndian.PutUint32(buf, uint32(value))
		return buf, nil
	default:
		return nil, ErrEncodingLimit
	}
}

// UnpackInteger decodes a big-endian (or single-byte) integer of the given
// width from b, sign-extending when signed is true.
func UnpackInteger(b []byte, width int, signed bool) (int64, error) {
	if len(b) < width {
		return 0, ErrTruncated
	}
	var u uint64
	switch width {
	case 1:
		u = uint64(b[0])
	case 2:
		u = uint64(binary.BigEndian.Uint16(b[:2]))
	case 4:
		u = uint64(binary.BigEndian.Uint32(b[:4]))
	default:
		return 0, ErrEncodingLimit
	}
	if !signed {
		return int64(u), nil
	}
	switch width {
	case 1:
		return int64(int8(u)), nil
	case 2:
		return int64(int16(u)), nil
	case 4:
		return int64(int32(u)), nil
	default:
		return 0, ErrEncodingLimit
	}
}
