package frame

import (
	"bytes"
	"io"
	"testing"
)

func TestSendRecvFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte("hello world")
	if err := SendFrame(&buf, 0x33, payload); err != nil {
		t.Fatalf("SendFrame: %v", err)
	}

	op, got, err := RecvFrame(&buf)
	if err != nil {
		t.Fatalf("RecvFrame: %v", err)
	}
	if op != 0x33 {
		t.Errorf("opcode = %#x, want 0x33", op)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("payload = %q, want %q", got, payload)
	}
}

func TestSendRecvFrameEmptyPayload(t *testing.T) {
	var buf bytes.Buffer
	if err := SendFrame(&buf, 0x31, nil); err != nil {
		t.Fatalf("SendFrame: %v", err)
	}
	op, got, err := RecvFrame(&buf)
	if err != nil {
		t.Fatalf("RecvFrame: %v", err)
	}
	if op != 0x31 || len(got) != 0 {
		t.Errorf("got (%#x, %v), want (0x31, empty)", op, got)
	}
}

func TestSendRecvFrameLongForm(t *testing.T) {
	var buf bytes.Buffer
	payload := bytes.Repeat([]byte{0xAB}, 70000)
	if err := SendFrame(&buf, 0x3C, payload); err != nil {
		t.Fatalf("SendFrame: %v", err)
	}
	_, got, err := RecvFrame(&buf)
	if err != nil {
		t.Fatalf("RecvFrame: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("payload mismatch, got %d bytes, want %d", len(got), len(payload))
	}
}

// truncatedReader returns n bytes then EOF, modelling a peer that closes
// mid-frame.
type truncatedReader struct {
	data []byte
}

func (t *truncatedReader) Read(p []byte) (int, error) {
	if len(t.data) == 0 {
		return 0, io.EOF
	}
	n := copy(p, t.data)
	t.data = t.data[n:]
	return n, nil
}

func TestRecvFrameTruncated(t *testing.T) {
	var buf bytes.Buffer
	if err := SendFrame(&buf, 0x3C, bytes.Repeat([]byte{1}, 10)); err != nil {
		t.Fatalf("SendFrame: %v", err)
	}
	full := buf.Bytes()
	r := &truncatedReader{data: full[:len(full)-4]}

	_, _, err := RecvFrame(r)
	if err == nil {
		t.Fatal("expected error on truncated frame")
	}
}
