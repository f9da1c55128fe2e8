package memorybridge

import (
	"errors"
	"testing"

	"github.com/intel/intelgt-dbgstub/internal/zedrv"
)

func TestSelectContextStoppedThreadUsesItsOwnTuple(t *testing.T) {
	thread := zedrv.ThreadID{Slice: 1, Subslice: 2, EU: 3, Thread: 4}
	wildcard := zedrv.All
	tid, space, err := SelectContext(true, thread, wildcard, 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tid != thread || space != 7 {
		t.Errorf("got (%+v, %d), want (%+v, 7)", tid, space, thread)
	}
}

func TestSelectContextNotStoppedDefaultSpaceUsesWildcard(t *testing.T) {
	thread := zedrv.ThreadID{Slice: 1, Subslice: 2, EU: 3, Thread: 4}
	wildcard := zedrv.All
	tid, space, err := SelectContext(false, thread, wildcard, DefaultAddrSpace)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tid != wildcard || space != DefaultAddrSpace {
		t.Errorf("got (%+v, %d), want (%+v, %d)", tid, space, wildcard, DefaultAddrSpace)
	}
}

func TestSelectContextNotStoppedNonDefaultSpaceFails(t *testing.T) {
	thread := zedrv.ThreadID{Slice: 1, Subslice: 2, EU: 3, Thread: 4}
	wildcard := zedrv.All
	if _, _, err := SelectContext(false, thread, wildcard, 1); err == nil {
		t.Fatal("expected error for non-default address space on a non-stopped thread")
	}
}

type scriptedSession struct {
	zedrv.Session
	lastTid   zedrv.ThreadID
	lastSpace uint32
	lastAddr  uint64
	lastLen   int
	lastData  []byte
	readErr   error
}

func (s *scriptedSession) ReadMemory(tid zedrv.ThreadID, addrSpace uint32, addr uint64, length int) ([]byte, error) {
	s.lastTid, s.lastSpace, s.lastAddr, s.lastLen = tid, addrSpace, addr, length
	if s.readErr != nil {
		return nil, s.readErr
	}
	return make([]byte, length), nil
}

func (s *scriptedSession) WriteMemory(tid zedrv.ThreadID, addrSpace uint32, addr uint64, data []byte) error {
	s.lastTid, s.lastSpace, s.lastAddr, s.lastData = tid, addrSpace, addr, data
	return nil
}

func TestReadForwardsResolvedContext(t *testing.T) {
	sess := &scriptedSession{}
	thread := zedrv.ThreadID{Slice: 1, Subslice: 1, EU: 1, Thread: 1}
	if _, err := Read(sess, true, thread, zedrv.All, 0, 0x1000, 16); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sess.lastTid != thread || sess.lastAddr != 0x1000 || sess.lastLen != 16 {
		t.Errorf("unexpected forwarded call: %+v addr=%#x len=%d", sess.lastTid, sess.lastAddr, sess.lastLen)
	}
}

func TestReadRejectsInvalidContextWithoutCallingSession(t *testing.T) {
	sess := &scriptedSession{readErr: errors.New("should not be called")}
	thread := zedrv.ThreadID{Slice: 1, Subslice: 1, EU: 1, Thread: 1}
	if _, err := Read(sess, false, thread, zedrv.All, 3, 0x1000, 16); err == nil {
		t.Fatal("expected error before the session was ever called")
	}
	if sess.lastLen != 0 {
		t.Error("session should not have been invoked")
	}
}

func TestWriteForwardsResolvedContext(t *testing.T) {
	sess := &scriptedSession{}
	thread := zedrv.ThreadID{Slice: 1, Subslice: 1, EU: 1, Thread: 1}
	data := []byte{1, 2, 3, 4}
	if err := Write(sess, true, thread, zedrv.All, 0, 0x2000, data); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sess.lastTid != thread || sess.lastAddr != 0x2000 || len(sess.lastData) != 4 {
		t.Errorf("unexpected forwarded call: %+v addr=%#x data=%v", sess.lastTid, sess.lastAddr, sess.lastData)
	}
}
