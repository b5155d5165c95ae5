// Package rpc defines the opcode table and descriptor wire layouts shared by
// the client stub (internal/stub) and the server dispatcher
// (internal/session), per §6 of the wire protocol.
package rpc

import "github.com/vavrusa/usbproxy/pkg/tlv"

// base is the Call tag itself; every opcode in the table is base+N.
const base = byte(tlv.TagCall)

// Opcode values, base+1 through base+20; base+4 is unassigned.
const (
	Init                = base + 1
	FindBusses          = base + 2
	FindDevices         = base + 3
	Open                = base + 5
	Close               = base + 6
	ControlMsg          = base + 7
	ClaimInterface      = base + 8
	ReleaseInterface    = base + 9
	GetKernelDriver     = base + 10
	DetachKernelDriver  = base + 11
	BulkRead            = base + 12
	BulkWrite           = base + 13
	SetConfiguration    = base + 14
	SetAltInterface     = base + 15
	ResetEp             = base + 16
	ClearHalt           = base + 17
	Reset               = base + 18
	InterruptRead       = base + 19
	InterruptWrite      = base + 20
)

// Name returns a human-readable name for an opcode, for logging; unknown
// opcodes return a generic label rather than panicking.
func Name(op byte) string {
	switch op {
	case Init:
		return "Init"
	case FindBusses:
		return "FindBusses"
	case FindDevices:
		return "FindDevices"
	case Open:
		return "Open"
	case Close:
		return "Close"
	case ControlMsg:
		return "ControlMsg"
	case ClaimInterface:
		return "ClaimInterface"
	case ReleaseInterface:
		return "ReleaseInterface"
	case GetKernelDriver:
		return "GetKernelDriver"
	case DetachKernelDriver:
		return "DetachKernelDriver"
	case BulkRead:
		return "BulkRead"
	case BulkWrite:
		return "BulkWrite"
	case SetConfiguration:
		return "SetConfiguration"
	case SetAltInterface:
		return "SetAltInterface"
	case ResetEp:
		return "ResetEp"
	case ClearHalt:
		return "ClearHalt"
	case Reset:
		return "Reset"
	case InterruptRead:
		return "InterruptRead"
	case InterruptWrite:
		return "InterruptWrite"
	default:
		return "Unknown"
	}
}
