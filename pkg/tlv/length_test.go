package tlv

import (
	"bytes"
	"testing"
)

func TestPackLengthBoundaries(t *testing.T) {
	cases := []struct {
		v    uint64
		want []byte
	}{
		{0x80, []byte{0x80}},
		{0x81, []byte{0x82, 0x00, 0x81}},
		{0x10000, []byte{0x84, 0x00, 0x01, 0x00, 0x00}},
	}
	for _, c := range cases {
		got, err := PackLength(c.v)
		if err != nil {
			t.Fatalf("PackLength(0x%x): %v", c.v, err)
		}
		if !bytes.Equal(got, c.want) {
			t.Errorf("PackLength(0x%x) = % x, want % x", c.v, got, c.want)
		}
	}
}

func TestPackLengthOverflow(t *testing.T) {
	if _, err := PackLength(uint64(maxEncodable) + 1); err != ErrEncodingLimit {
		t.Fatalf("expected ErrEncodingLimit, got %v", err)
	}
}

func TestUnpackLengthRoundTrip(t *testing.T) {
	values := []uint64{0, 1, 0x80, 0x81, 0xFF, 0x100, 0xFFFF, 0x10000, 0xFFFFFFFF}
	for _, v := range values {
		packed, err := PackLength(v)
		if err != nil {
			t.Fatalf("PackLength(%d): %v", v, err)
		}
		got, consumed, err := UnpackLength(packed)
		if err != nil {
			t.Fatalf("UnpackLength(% x): %v", packed, err)
		}
		if got != v || consumed != len(packed) {
			t.Errorf("UnpackLength(% x) = (%d, %d), want (%d, %d)", packed, got, consumed, v, len(packed))
		}
	}
}

func TestUnpackLengthInvalidLeadByte(t *testing.T) {
	// Any first byte strictly between 0x80 and 0x82 is invalid.
	_, _, err := UnpackLength([]byte{0x81, 0x00, 0x00})
	if err != ErrMalformedLength {
		t.Fatalf("expected ErrMalformedLength, got %v", err)
	}
}

func TestUnpackLengthTruncated(t *testing.T) {
	if _, _, err := UnpackLength(nil); err != ErrTruncated {
		t.Fatalf("expected ErrTruncated on empty input, got %v", err)
	}
	if _, _, err := UnpackLength([]byte{0x82, 0x01}); err != ErrTruncated {
		t.Fatalf("expected ErrTruncated on short long-form, got %v", err)
	}
}

func TestPackUnpackIntegerRoundTrip(t *testing.T) {
	widths := []int{1, 2, 4}
	for _, w := range widths {
		for _, signed := range []bool{true, false} {
			var values []int64
			if signed {
				values = []int64{0, 1, -1, 42, -42}
			} else {
				values = []int64{0, 1, 42}
			}
			for _, v := range values {
				packed, err := PackInteger(v, w)
				if err != nil {
					t.Fatalf("PackInteger(%d, %d): %v", v, w, err)
				}
				got, err := UnpackInteger(packed, w, signed)
				if err != nil {
					t.Fatalf("UnpackInteger(% x, %d, %v): %v", packed, w, signed, err)
				}
				// Every value above fits in each width, so it must come back unchanged.
				want := v
				if got != want {
					t.Errorf("round trip mismatch for %d width %d signed %v: got %d", v, w, signed, got)
				}
			}
		}
	}
}

func TestPackIntegerInvalidWidth(t *testing.T) {
	if _, err := PackInteger(1, 3); err != ErrEncodingLimit {
		t.Fatalf("expected ErrEncodingLimit, got %v", err)
	}
}

func TestUnpackIntegerSignExtension(t *testing.T) {
	got, err := UnpackInteger([]byte{0xFF}, 1, true)
	if err != nil {
		t.Fatal(err)
	}
	if got != -1 {
		t.Errorf("expected -1, got %d", got)
	}
	got, err = UnpackInteger([]byte{0xFF}, 1, false)
	if err != nil {
		t.Fatal(err)
	}
	if got != 0xFF {
		t.Errorf("expected 255, got %d", got)
	}
}
