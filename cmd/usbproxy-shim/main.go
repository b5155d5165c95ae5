// Command usbproxy-shim is not an executable: it is built with
// `go build -buildmode=c-shared` into a shared object that an LD_PRELOAD'd
// host process loads in place of the real USB library (spec §1's
// interception mechanism). The host's USB calls land on the //export'd
// functions below, which forward to the client stub (C5) over the socket
// published by the launcher (C4) instead of touching local hardware.
//
// The wrapped library's exact function signatures and bus-tree struct
// layout are taken as given and out of scope (spec.md §1's Non-goals);
// this shim exposes the same operation set the RPC substrate defines
// (§6's opcode table) under libusb-0.1-style names with integer-only
// argument lists rather than reproducing libusb's struct ABI byte for
// byte.
package main

/*
#include <stdlib.h>
#include <string.h>

// usb_dev_handle is opaque to C callers; its pointer value is never
// dereferenced by this shim or by the host that loaded it.
typedef void usb_dev_handle;
*/
import "C"

import (
	"fmt"
	"log"
	"net"
	"os"
	"sync"
	"unsafe"

	"github.com/vavrusa/usbproxy/internal/handoff"
	"github.com/vavrusa/usbproxy/internal/stub"
)

var (
	initOnce sync.Once
	client   *stub.Stub
	initErr  error
)

// ensureClient performs the hand-off retrieval and stub construction once
// per process, caching the result for the process's lifetime (§4.5).
func ensureClient() (*stub.Stub, error) {
	initOnce.Do(func() {
		receiver := handoff.NewReceiver(handoff.WellKnownKey)
		fd, err := receiver.Retrieve()
		if err != nil {
			initErr = fmt.Errorf("usbproxy-shim: retrieve handed-off socket: %w", err)
			return
		}
		if err := handoff.ValidateSocket(fd); err != nil {
			initErr = fmt.Errorf("usbproxy-shim: %w", err)
			return
		}
		file := os.NewFile(uintptr(fd), "usbproxy-socket")
		conn, err := net.FileConn(file)
		file.Close()
		if err != nil {
			initErr = fmt.Errorf("usbproxy-shim: wrap descriptor %d: %w", fd, err)
			return
		}
		client = stub.New(conn)
		if err := client.Init(); err != nil {
			initErr = fmt.Errorf("usbproxy-shim: init: %w", err)
		}
	})
	return client, initErr
}

// cBytes copies a C buffer into a Go-owned slice. The caller-provided
// pointer may live in the host's stack frame, so the copy must happen
// before any call that could let the Go runtime observe it past the
// lifetime of the cgo call.
func cBytes(data *C.char, size C.int) []byte {
	if size <= 0 || data == nil {
		return nil
	}
	return append([]byte(nil), unsafe.Slice((*byte)(unsafe.Pointer(data)), int(size))...)
}

func writeBack(data *C.char, capacity C.int, src []byte) {
	if data == nil || capacity <= 0 || len(src) == 0 {
		return
	}
	n := len(src)
	if n > int(capacity) {
		n = int(capacity)
	}
	dst := unsafe.Slice((*byte)(unsafe.Pointer(data)), int(capacity))
	copy(dst, src[:n])
}

//export usb_init
func usb_init() {
	if _, err := ensureClient(); err != nil {
		log.Printf("usbproxy-shim: usb_init: %v", err)
	}
}

//export usb_find_busses
func usb_find_busses() C.int {
	c, err := ensureClient()
	if err != nil {
		return -1
	}
	n, err := c.FindBusses()
	if err != nil {
		return -1
	}
	return C.int(n)
}

//export usb_find_devices
func usb_find_devices() C.int {
	c, err := ensureClient()
	if err != nil {
		return -1
	}
	n, _, err := c.FindDevices()
	if err != nil {
		return -1
	}
	return C.int(n)
}

//export usb_open
func usb_open(busLoc, devnum C.uint) unsafe.Pointer {
	c, err := ensureClient()
	if err != nil {
		return nil
	}
	rc, handle, err := c.Open(uint32(busLoc), uint32(devnum))
	if err != nil || rc < 0 {
		return nil
	}
	return unsafe.Pointer(uintptr(handle) + 1) // +1: never return a real nil
}

func handleOf(h unsafe.Pointer) int32 {
	if h == nil {
		return -1
	}
	return int32(uintptr(h) - 1)
}

//export usb_close
func usb_close(h unsafe.Pointer) C.int {
	c, err := ensureClient()
	if err != nil {
		return -1
	}
	rc, err := c.Close(handleOf(h))
	if err != nil {
		return -1
	}
	return C.int(rc)
}

//export usb_control_msg
func usb_control_msg(h unsafe.Pointer, reqtype, request, value, index C.int, data *C.char, size, timeout C.int) C.int {
	c, err := ensureClient()
	if err != nil {
		return -1
	}
	rc, back, err := c.ControlMsg(handleOf(h), int32(reqtype), int32(request), int32(value), int32(index), cBytes(data, size), int32(timeout))
	if err != nil {
		return -1
	}
	writeBack(data, size, back)
	return C.int(rc)
}

//export usb_claim_interface
func usb_claim_interface(h unsafe.Pointer, ifnum C.int) C.int {
	c, err := ensureClient()
	if err != nil {
		return -1
	}
	rc, err := c.ClaimInterface(handleOf(h), int32(ifnum))
	if err != nil {
		return -1
	}
	return C.int(rc)
}

//export usb_release_interface
func usb_release_interface(h unsafe.Pointer, ifnum C.int) C.int {
	c, err := ensureClient()
	if err != nil {
		return -1
	}
	rc, err := c.ReleaseInterface(handleOf(h), int32(ifnum))
	if err != nil {
		return -1
	}
	return C.int(rc)
}

//export usb_get_driver_np
func usb_get_driver_np(h unsafe.Pointer, ifnum C.int, name *C.char, buflen C.uint) C.int {
	c, err := ensureClient()
	if err != nil {
		return -1
	}
	rc, driverName, err := c.GetKernelDriver(handleOf(h), int32(ifnum), uint32(buflen))
	if err != nil {
		return -1
	}
	writeBack(name, C.int(buflen), append([]byte(driverName), 0))
	return C.int(rc)
}

//export usb_detach_kernel_driver_np
func usb_detach_kernel_driver_np(h unsafe.Pointer, ifnum C.int) C.int {
	c, err := ensureClient()
	if err != nil {
		return -1
	}
	rc, err := c.DetachKernelDriver(handleOf(h), int32(ifnum))
	if err != nil {
		return -1
	}
	return C.int(rc)
}

//export usb_bulk_read
func usb_bulk_read(h unsafe.Pointer, ep C.int, data *C.char, size, timeout C.int) C.int {
	c, err := ensureClient()
	if err != nil {
		return -1
	}
	rc, out, err := c.BulkRead(handleOf(h), int32(ep), int32(size), int32(timeout))
	if err != nil {
		return -1
	}
	writeBack(data, size, out)
	return C.int(rc)
}

//export usb_bulk_write
func usb_bulk_write(h unsafe.Pointer, ep C.int, data *C.char, size, timeout C.int) C.int {
	c, err := ensureClient()
	if err != nil {
		return -1
	}
	rc, err := c.BulkWrite(handleOf(h), int32(ep), cBytes(data, size), int32(timeout))
	if err != nil {
		return -1
	}
	return C.int(rc)
}

//export usb_interrupt_read
func usb_interrupt_read(h unsafe.Pointer, ep C.int, data *C.char, size, timeout C.int) C.int {
	c, err := ensureClient()
	if err != nil {
		return -1
	}
	rc, out, err := c.InterruptRead(handleOf(h), int32(ep), int32(size), int32(timeout))
	if err != nil {
		return -1
	}
	writeBack(data, size, out)
	return C.int(rc)
}

//export usb_interrupt_write
func usb_interrupt_write(h unsafe.Pointer, ep C.int, data *C.char, size, timeout C.int) C.int {
	c, err := ensureClient()
	if err != nil {
		return -1
	}
	rc, err := c.InterruptWrite(handleOf(h), int32(ep), cBytes(data, size), int32(timeout))
	if err != nil {
		return -1
	}
	return C.int(rc)
}

//export usb_set_configuration
func usb_set_configuration(h unsafe.Pointer, cfg C.int) C.int {
	c, err := ensureClient()
	if err != nil {
		return -1
	}
	rc, _, err := c.SetConfiguration(handleOf(h), int32(cfg))
	if err != nil {
		return -1
	}
	return C.int(rc)
}

//export usb_set_altinterface
func usb_set_altinterface(h unsafe.Pointer, alt C.int) C.int {
	c, err := ensureClient()
	if err != nil {
		return -1
	}
	rc, _, err := c.SetAltInterface(handleOf(h), int32(alt))
	if err != nil {
		return -1
	}
	return C.int(rc)
}

//export usb_resetep
func usb_resetep(h unsafe.Pointer, ep C.uint) C.int {
	c, err := ensureClient()
	if err != nil {
		return -1
	}
	rc, err := c.ResetEp(handleOf(h), uint32(ep))
	if err != nil {
		return -1
	}
	return C.int(rc)
}

//export usb_clear_halt
func usb_clear_halt(h unsafe.Pointer, ep C.uint) C.int {
	c, err := ensureClient()
	if err != nil {
		return -1
	}
	rc, err := c.ClearHalt(handleOf(h), uint32(ep))
	if err != nil {
		return -1
	}
	return C.int(rc)
}

//export usb_reset
func usb_reset(h unsafe.Pointer) C.int {
	c, err := ensureClient()
	if err != nil {
		return -1
	}
	rc, err := c.Reset(handleOf(h))
	if err != nil {
		return -1
	}
	return C.int(rc)
}

func main() {}
