// Package tlv implements the self-describing, length-prefixed binary wire
// format used for every request and reply frame: a one-byte opcode, a
// variable-length size field, and a payload of nestable type-length-value
// items.
package tlv

import "errors"

// Error taxonomy shared by the codec, the packet/iterator layer, and the
// transport built on top of them.
var (
	// ErrEncodingLimit is returned when a value exceeds the 32-bit range the
	// wire format can carry.
	ErrEncodingLimit = errors.New("tlv: value exceeds encoding limit")
	// ErrMalformedLength is returned when a length field's leading byte is
	// not one of the recognised forms.
	ErrMalformedLength = errors.New("tlv: malformed length field")
	// ErrTruncated is returned when fewer bytes are available than a
	// declared length requires.
	ErrTruncated = errors.New("tlv: truncated input")
)
