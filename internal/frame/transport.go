// Package frame implements blocking length-delimited send and receive over
// a byte-stream socket, giving every RPC frame an atomic boundary from the
// application's point of view.
package frame

import (
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/vavrusa/usbproxy/pkg/tlv"
)

// ErrIO wraps a non-recoverable error returned by the underlying socket.
var ErrIO = errors.New("frame: io error")

// Conn is the minimal byte-stream contract the transport needs; *net.TCPConn
// and the SSH direct-tcpip channel (internal/tunnel) both satisfy it.
type Conn interface {
	io.Reader
	io.Writer
}

// DialTCP connects to addr and disables Nagle's algorithm so that small RPC
// frames ship immediately instead of waiting for more data to coalesce.
func DialTCP(addr string) (*net.TCPConn, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("frame: dial %s: %w", addr, err)
	}
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		conn.Close()
		return nil, fmt.Errorf("frame: dial %s: not a TCP connection", addr)
	}
	if err := tcpConn.SetNoDelay(true); err != nil {
		tcpConn.Close()
		return nil, fmt.Errorf("frame: set nodelay: %w", err)
	}
	return tcpConn, nil
}

// SendFrame writes opcode, the packed length of payload, then payload
// itself, retrying on partial writes until the OS accepts every byte or
// returns a non-recoverable error.
func SendFrame(w io.Writer, opcode byte, payload []byte) error {
	lenBytes, err := tlv.PackLength(uint64(len(payload)))
	if err != nil {
		return err
	}
	buf := make([]byte, 0, 1+len(lenBytes)+len(payload))
	buf = append(buf, opcode)
	buf = append(buf, lenBytes...)
	buf = append(buf, payload...)
	return writeFull(w, buf)
}

func writeFull(w io.Writer, buf []byte) error {
	for len(buf) > 0 {
		n, err := w.Write(buf)
		if n > 0 {
			buf = buf[n:]
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrIO, err)
		}
		if n == 0 {
			return fmt.Errorf("%w: short write", ErrIO)
		}
	}
	return nil
}

// RecvFrame reads exactly one frame: two bytes (opcode + length prefix
// lead byte), as many further length bytes as that lead byte calls for,
// then exactly that many payload bytes. Any short read fails with
// ErrTruncated; no partial frame is ever handed to the caller.
func RecvFrame(r io.Reader) (opcode byte, payload []byte, err error) {
	head := make([]byte, 2)
	if _, err := io.ReadFull(r, head); err != nil {
		return 0, nil, truncatedOrIO(err)
	}
	opcode = head[0]

	var lenBuf []byte
	switch lead := head[1]; {
	case lead <= 0x80:
		lenBuf = head[1:2]
	case lead == 0x82:
		lenBuf = make([]byte, 3)
		lenBuf[0] = lead
		if _, err := io.ReadFull(r, lenBuf[1:]); err != nil {
			return 0, nil, truncatedOrIO(err)
		}
	case lead == 0x84:
		lenBuf = make([]byte, 5)
		lenBuf[0] = lead
		if _, err := io.ReadFull(r, lenBuf[1:]); err != nil {
			return 0, nil, truncatedOrIO(err)
		}
	default:
		return 0, nil, tlv.ErrMalformedLength
	}

	size, _, err := tlv.UnpackLength(lenBuf)
	if err != nil {
		return 0, nil, err
	}

	payload = make([]byte, size)
	if size > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return 0, nil, truncatedOrIO(err)
		}
	}
	return opcode, payload, nil
}

func truncatedOrIO(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return tlv.ErrTruncated
	}
	return fmt.Errorf("%w: %v", ErrIO, err)
}
