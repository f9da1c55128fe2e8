// Package zedrv is the boundary to the vendor debug library: the opaque
// dependency that exposes attach, event-queue, thread-control,
// register-set, and memory primitives for a GPU. Everything above this
// package talks only to the Driver/Session interfaces; the real
// implementation is a cgo binding supplied at link time (not part of
// this module), and faketarget supplies a scriptable fake for tests.
package zedrv

import (
	"errors"
	"fmt"
)

// ErrNotReady is returned by Session.PollEvent when the event queue is
// currently empty; it is not a failure.
var ErrNotReady = errors.New("zedrv: not ready")

// PCISlot identifies a device's location on the PCI bus.
type PCISlot struct {
	Domain   uint32
	Bus      uint8
	Device   uint8
	Function uint8
}

// String formats a PCI slot as "dddd:bb:dd.f", the same layout used for
// the wire-facing id_str.
func (s PCISlot) String() string {
	return fmt.Sprintf("%04x:%02x:%02x.%x", s.Domain, s.Bus, s.Device, s.Function)
}

// Topology describes a GPU's EU-thread addressing space.
type Topology struct {
	Slices         uint32
	SubslicesPerSlice uint32
	EUsPerSubslice uint32
	ThreadsPerEU   uint32
}

// ThreadCount returns the total number of EU threads implied by the
// topology.
func (t Topology) ThreadCount() uint64 {
	return uint64(t.Slices) * uint64(t.SubslicesPerSlice) * uint64(t.EUsPerSubslice) * uint64(t.ThreadsPerEU)
}

// DeviceProperties describes one attachable device or sub-device.
type DeviceProperties struct {
	Name        string
	VendorID    uint32
	DeviceID    uint32
	PCISlot     PCISlot
	Topology    Topology
	IsSubdevice bool
	SubdeviceID uint32 // valid only when IsSubdevice
}

// RegsetDescriptor describes one named register set exposed by the
// driver as a flat vector with uniform element size.
type RegsetDescriptor struct {
	Name     string
	Type     uint32
	ByteSize uint32 // size in bytes of a single element
	BitSize  uint32 // width in bits of a single element
	Count    uint32 // number of elements in this regset
	Writable bool
	// Fields names individual named sub-fields within an element, keyed
	// by field name to its element index (the SBA regset must expose a
	// field named "isabase" at index 4).
	Fields map[string]uint32
}

// AttachResult classifies the outcome of attaching to a device.
type AttachResult int

const (
	AttachSuccess AttachResult = iota
	AttachNotReady
	AttachUnsupportedFeature
	AttachNotAvailable
	AttachOtherError
)

func (r AttachResult) String() string {
	switch r {
	case AttachSuccess:
		return "success"
	case AttachNotReady:
		return "not_ready"
	case AttachUnsupportedFeature:
		return "unsupported_feature"
	case AttachNotAvailable:
		return "not_available"
	default:
		return "other_error"
	}
}

// DeviceNode is one node in the driver -> device -> sub-device enumeration
// tree returned by Driver.Enumerate.
type DeviceNode struct {
	Properties DeviceProperties
	Regsets    []RegsetDescriptor
	Subdevices []DeviceNode

	attach func() (Session, AttachResult, error)
}

// Attach attaches to this node (leaf or parent); see the device manager
// for the leaf-only attach policy.
func (n DeviceNode) Attach() (Session, AttachResult, error) {
	if n.attach == nil {
		return nil, AttachOtherError, errors.New("zedrv: device node has no attach implementation")
	}
	return n.attach()
}

// NewDeviceNode constructs a DeviceNode; used by real driver bindings and
// by faketarget to build synthetic enumeration trees.
func NewDeviceNode(props DeviceProperties, regsets []RegsetDescriptor, subdevices []DeviceNode, attach func() (Session, AttachResult, error)) DeviceNode {
	return DeviceNode{Properties: props, Regsets: regsets, Subdevices: subdevices, attach: attach}
}

// Driver is the top-level vendor debug library handle: enumerate
// devices attached to one backend driver instance, from the driver
// level down through devices to sub-devices.
type Driver interface {
	Name() string
	Enumerate() ([]DeviceNode, error)
}

// Session is a live debug-session handle on one leaf device, obtained
// from a successful DeviceNode.Attach call.
type Session interface {
	// PollEvent returns the next queued event, or ErrNotReady if the
	// queue is currently empty.
	PollEvent() (Event, error)

	// AckEvent acknowledges an event that reported NeedsAck() == true.
	AckEvent(evt Event) error

	// Interrupt requests that tid (or every thread, for the wildcard)
	// stop as soon as possible. Idempotent while an interrupt is
	// outstanding.
	Interrupt(tid ThreadID) error

	// Resume resumes tid (or every thread, for the wildcard).
	Resume(tid ThreadID) error

	// ReadRegisters reads count consecutive elements of regsetType
	// starting at index.
	ReadRegisters(tid ThreadID, regsetType uint32, index, count uint32) ([]byte, error)

	// WriteRegisters writes data (a whole number of elements) to
	// regsetType starting at index.
	WriteRegisters(tid ThreadID, regsetType uint32, index uint32, data []byte) error

	// ReadMemory reads length bytes at addr in the given address space,
	// as observed by tid (or the device's default context if tid is the
	// wildcard and addrSpace is 0).
	ReadMemory(tid ThreadID, addrSpace uint32, addr uint64, length int) ([]byte, error)

	// WriteMemory writes data at addr in the given address space.
	WriteMemory(tid ThreadID, addrSpace uint32, addr uint64, data []byte) error

	// Detach ends the debug session. The driver may continue delivering
	// a final DetachedEvent afterwards.
	Detach() error
}

// ThreadRegsetQuerier is an optional Session capability mirroring the
// vendor library's zetDebugGetThreadRegisterSetProperties entry point,
// which is not guaranteed to be present in every driver build. A
// session that implements it can report a specific thread's observed
// register-set layout, which may differ from the device's default; a
// session that does not is assumed to expose the same layout to every
// thread (there is always at least the device's default tdesc from
// attach time).
type ThreadRegsetQuerier interface {
	ThreadRegsets(tid ThreadID) ([]RegsetDescriptor, error)
}
