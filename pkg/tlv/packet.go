package tlv

// placeholderWidth is how many bytes Packet reserves for a container's
// length field while its content is still being written. It is always wide
// enough for the largest long form (0x84 + 4 bytes) and shrunk to the
// encoding PackLength actually needs once the content length is known.
const placeholderWidth = 5

// Packet is a typed buffer under construction: an opcode plus a payload of
// zero or more TLV items. Payload bytes are always a well-formed TLV
// sequence once an append completes.
type Packet struct {
	Opcode  byte
	payload []byte
}

// NewPacket starts a packet with the given opcode and an empty payload.
func NewPacket(opcode byte) *Packet {
	return &Packet{Opcode: opcode}
}

// Payload returns the packet's current payload bytes.
func (p *Packet) Payload() []byte { return p.payload }

// Reset reinitialises the packet in place with a new opcode and an empty
// payload, reusing the backing array. This is what lets the client stub's
// shared frame (§3, §4.5) avoid a fresh allocation per call.
func (p *Packet) Reset(opcode byte) {
	p.Opcode = opcode
	p.payload = p.payload[:0]
}

// Len returns the current payload size.
func (p *Packet) Len() int { return len(p.payload) }

// AppendTLV appends tag, a packed length of len(value), then value itself.
func (p *Packet) AppendTLV(tag Tag, value []byte) error {
	lenBytes, err := PackLength(uint64(len(value)))
	if err != nil {
		return err
	}
	p.payload = append(p.payload, byte(tag))
	p.payload = append(p.payload, lenBytes...)
	p.payload = append(p.payload, value...)
	return nil
}

// AppendInteger wraps PackInteger and appends it as tag.
func (p *Packet) AppendInteger(tag Tag, width int, value int64) error {
	b, err := PackInteger(value, width)
	if err != nil {
		return err
	}
	return p.AppendTLV(tag, b)
}

// AppendString appends the bytes of s plus a terminating NUL, tagged Octets
// by default.
func (p *Packet) AppendString(s string) error {
	return p.AppendTLV(TagOctets, append([]byte(s), 0))
}

// AppendStringTag is AppendString with an explicit tag, used where the
// caller needs something other than plain Octets (none of the opcodes in
// this protocol currently do, kept for symmetry with AppendTLV).
func (p *Packet) AppendStringTag(tag Tag, s string) error {
	return p.AppendTLV(tag, append([]byte(s), 0))
}

// ContainerHandle identifies an open, not-yet-finalized container started by
// BeginContainer.
type ContainerHandle struct {
	tagPos           int
	placeholderStart int
}

// BeginContainer reserves a container header whose length is back-patched
// when FinalizeContainer is called. Containers may nest; the caller must
// finalize in the same LIFO order they were begun (innermost first), per
// §4.6's "containers are finalised bottom-up".
func (p *Packet) BeginContainer(tag Tag) ContainerHandle {
	h := ContainerHandle{tagPos: len(p.payload)}
	p.payload = append(p.payload, byte(tag))
	h.placeholderStart = len(p.payload)
	p.payload = append(p.payload, make([]byte, placeholderWidth)...)
	return h
}

// FinalizeContainer back-patches h's length field with the number of bytes
// written since BeginContainer, shrinking the reserved placeholder down to
// whatever encoding PackLength actually needs.
func (p *Packet) FinalizeContainer(h ContainerHandle) error {
	contentStart := h.placeholderStart + placeholderWidth
	contentLen := len(p.payload) - contentStart
	lenBytes, err := PackLength(uint64(contentLen))
	if err != nil {
		return err
	}
	patched := make([]byte, 0, len(p.payload)-placeholderWidth+len(lenBytes))
	patched = append(patched, p.payload[:h.placeholderStart]...)
	patched = append(patched, lenBytes...)
	patched = append(patched, p.payload[contentStart:]...)
	p.payload = patched
	return nil
}
