// Package faketarget is a scriptable fake implementation of the
// internal/zedrv Driver/Session interfaces, used by package tests in
// place of the real vendor driver binding.
package faketarget

import (
	"errors"
	"sync"

	"github.com/intel/intelgt-dbgstub/internal/zedrv"
)

// Driver is a fake zedrv.Driver backed by a fixed set of device nodes.
type Driver struct {
	name  string
	nodes []zedrv.DeviceNode
}

// NewDriver builds a fake driver that enumerates nodes.
func NewDriver(name string, nodes []zedrv.DeviceNode) *Driver {
	return &Driver{name: name, nodes: nodes}
}

func (d *Driver) Name() string { return d.name }

func (d *Driver) Enumerate() ([]zedrv.DeviceNode, error) {
	return d.nodes, nil
}

// RegsetBuffer is one scripted register set: a flat byte buffer plus the
// element size used to slice it for ReadRegisters/WriteRegisters.
type RegsetBuffer struct {
	ElemSize int
	Data     []byte
}

// Session is a fake zedrv.Session. Tests drive it by queuing events with
// PushEvent and pre-seeding Regs/Mem; production code under test drives
// it through the zedrv.Session interface.
type Session struct {
	mu sync.Mutex

	events []zedrv.Event
	acked  []zedrv.Event

	Regs map[uint32]*RegsetBuffer
	Mem  map[uint64][]byte

	InterruptCalls []zedrv.ThreadID
	ResumeCalls    []zedrv.ThreadID
	Detached       bool

	FailReadRegisters  map[uint32]bool
	FailWriteRegisters map[uint32]bool

	// ThreadRegsetsByThread scripts zedrv.ThreadRegsetQuerier: a thread
	// with no entry reports "not scripted" rather than guessing a
	// default, so tests that never populate it exercise the same code
	// path as a driver build without the optional query.
	ThreadRegsetsByThread map[zedrv.ThreadID][]zedrv.RegsetDescriptor
}

// NewSession builds an empty fake session ready to be scripted.
func NewSession() *Session {
	return &Session{
		Regs: map[uint32]*RegsetBuffer{},
		Mem:  map[uint64][]byte{},

		FailReadRegisters:     map[uint32]bool{},
		FailWriteRegisters:    map[uint32]bool{},
		ThreadRegsetsByThread: map[zedrv.ThreadID][]zedrv.RegsetDescriptor{},
	}
}

// ThreadRegsets implements zedrv.ThreadRegsetQuerier.
func (s *Session) ThreadRegsets(tid zedrv.ThreadID) ([]zedrv.RegsetDescriptor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	descs, ok := s.ThreadRegsetsByThread[tid]
	if !ok {
		return nil, errors.New("faketarget: no scripted regsets for thread")
	}
	return descs, nil
}

// PushEvent queues evt to be returned by a future PollEvent call.
func (s *Session) PushEvent(evt zedrv.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
}

// Acked returns every event that has been acknowledged so far, in order.
func (s *Session) Acked() []zedrv.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]zedrv.Event, len(s.acked))
	copy(out, s.acked)
	return out
}

func (s *Session) PollEvent() (zedrv.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) == 0 {
		return nil, zedrv.ErrNotReady
	}
	evt := s.events[0]
	s.events = s.events[1:]
	return evt, nil
}

func (s *Session) AckEvent(evt zedrv.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acked = append(s.acked, evt)
	return nil
}

func (s *Session) Interrupt(tid zedrv.ThreadID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.InterruptCalls = append(s.InterruptCalls, tid)
	return nil
}

func (s *Session) Resume(tid zedrv.ThreadID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ResumeCalls = append(s.ResumeCalls, tid)
	return nil
}

func (s *Session) ReadRegisters(tid zedrv.ThreadID, regsetType uint32, index, count uint32) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailReadRegisters[regsetType] {
		return nil, errors.New("faketarget: scripted read failure")
	}
	buf, ok := s.Regs[regsetType]
	if !ok {
		return nil, errors.New("faketarget: unknown regset type")
	}
	lo := int(index) * buf.ElemSize
	hi := lo + int(count)*buf.ElemSize
	if lo < 0 || hi > len(buf.Data) {
		return nil, errors.New("faketarget: register range out of bounds")
	}
	out := make([]byte, hi-lo)
	copy(out, buf.Data[lo:hi])
	return out, nil
}

func (s *Session) WriteRegisters(tid zedrv.ThreadID, regsetType uint32, index uint32, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWriteRegisters[regsetType] {
		return errors.New("faketarget: scripted write failure")
	}
	buf, ok := s.Regs[regsetType]
	if !ok {
		return errors.New("faketarget: unknown regset type")
	}
	lo := int(index) * buf.ElemSize
	if lo < 0 || lo+len(data) > len(buf.Data) {
		return errors.New("faketarget: register range out of bounds")
	}
	copy(buf.Data[lo:], data)
	return nil
}

func (s *Session) ReadMemory(tid zedrv.ThreadID, addrSpace uint32, addr uint64, length int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.Mem[addr]
	if !ok || len(data) < length {
		return nil, errors.New("faketarget: no memory mapped at address")
	}
	out := make([]byte, length)
	copy(out, data[:length])
	return out, nil
}

func (s *Session) WriteMemory(tid zedrv.ThreadID, addrSpace uint32, addr uint64, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	s.Mem[addr] = buf
	return nil
}

func (s *Session) Detach() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Detached = true
	return nil
}

// NewLeafDeviceNode builds a DeviceNode that attaches to a pre-built
// session; used to script Manager.Attach in tests.
func NewLeafDeviceNode(props zedrv.DeviceProperties, regsets []zedrv.RegsetDescriptor, session *Session) zedrv.DeviceNode {
	return zedrv.NewDeviceNode(props, regsets, nil, func() (zedrv.Session, zedrv.AttachResult, error) {
		return session, zedrv.AttachSuccess, nil
	})
}

// NewFailingDeviceNode builds a DeviceNode whose Attach always reports
// result (e.g. AttachNotAvailable), for exercising attach-failure paths.
func NewFailingDeviceNode(props zedrv.DeviceProperties, result zedrv.AttachResult, err error) zedrv.DeviceNode {
	return zedrv.NewDeviceNode(props, nil, nil, func() (zedrv.Session, zedrv.AttachResult, error) {
		return nil, result, err
	})
}
