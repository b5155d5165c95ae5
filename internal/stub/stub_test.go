package stub

import (
	"net"
	"testing"

	"github.com/vavrusa/usbproxy/internal/frame"
	"github.com/vavrusa/usbproxy/internal/rpc"
)

// pairedConn wires two in-memory pipes together so a test can drive a stub
// against a handwritten server loop without touching the network.
func pairedConn(t *testing.T) (client, server net.Conn) {
	t.Helper()
	client, server = net.Pipe()
	return client, server
}

func TestFindBusses(t *testing.T) {
	client, server := pairedConn(t)
	defer client.Close()
	defer server.Close()

	go func() {
		op, _, err := frame.RecvFrame(server)
		if err != nil || op != rpc.FindBusses {
			return
		}
		reply := []byte{0x02, 0x01, 0x03} // Integer(3)
		_ = frame.SendFrame(server, rpc.FindBusses, reply)
	}()

	s := New(client)
	n, err := s.FindBusses()
	if err != nil {
		t.Fatalf("FindBusses: %v", err)
	}
	if n != 3 {
		t.Errorf("FindBusses() = %d, want 3", n)
	}
}

func TestOpenCloseRoundTrip(t *testing.T) {
	client, server := pairedConn(t)
	defer client.Close()
	defer server.Close()

	go func() {
		op, _, err := frame.RecvFrame(server)
		if err != nil || op != rpc.Open {
			return
		}
		// Integer(0), Integer(42)
		_ = frame.SendFrame(server, rpc.Open, []byte{0x02, 0x01, 0x00, 0x02, 0x01, 0x2A})

		op, _, err = frame.RecvFrame(server)
		if err != nil || op != rpc.Close {
			return
		}
		_ = frame.SendFrame(server, rpc.Close, []byte{0x02, 0x01, 0x00})
	}()

	s := New(client)
	rc, handle, err := s.Open(1, 2)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if rc != 0 || handle != 42 {
		t.Fatalf("Open() = (%d, %d), want (0, 42)", rc, handle)
	}

	rc, err = s.Close(handle)
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	if rc != 0 {
		t.Errorf("Close() rc = %d, want 0", rc)
	}
}

func TestProtocolMismatchSurfaces(t *testing.T) {
	client, server := pairedConn(t)
	defer client.Close()
	defer server.Close()

	go func() {
		if _, _, err := frame.RecvFrame(server); err != nil {
			return
		}
		_ = frame.SendFrame(server, rpc.Close, nil) // wrong opcode for a FindBusses request
	}()

	s := New(client)
	_, err := s.FindBusses()
	if err == nil {
		t.Fatal("expected protocol mismatch error")
	}
}

func TestTeardownIsIdempotent(t *testing.T) {
	client, server := pairedConn(t)
	defer server.Close()
	s := New(client)
	s.Teardown()
	s.Teardown()
	client.Close()
}
