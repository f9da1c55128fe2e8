package regcache

import (
	"errors"
	"testing"

	"github.com/intel/intelgt-dbgstub/internal/zedrv"
)

const (
	regsetGRF = 1
	regsetCR  = 2
)

func testInfo() *Info {
	return NewInfo([]zedrv.RegsetDescriptor{
		{Name: "grf", Type: regsetGRF, ByteSize: 4, BitSize: 32, Count: 4, Writable: true},
		{Name: "cr", Type: regsetCR, ByteSize: 4, BitSize: 32, Count: 3, Writable: true},
	})
}

// fakeSession is a minimal scripted zedrv.Session for cache tests.
type fakeSession struct {
	zedrv.Session
	regs       map[uint32][]byte // regsetType -> packed elements
	failRegset map[uint32]bool
	writes     []writeCall
}

type writeCall struct {
	regsetType uint32
	index      uint32
	data       []byte
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		regs: map[uint32][]byte{
			regsetGRF: {0, 0, 0, 0, 1, 0, 0, 0, 2, 0, 0, 0, 3, 0, 0, 0},
			regsetCR:  {10, 0, 0, 0, 20, 0, 0, 0, 30, 0, 0, 0},
		},
		failRegset: map[uint32]bool{},
	}
}

func (f *fakeSession) ReadRegisters(tid zedrv.ThreadID, regsetType uint32, index, count uint32) ([]byte, error) {
	if f.failRegset[regsetType] {
		return nil, errors.New("simulated read failure")
	}
	data, ok := f.regs[regsetType]
	if !ok {
		return nil, errors.New("unknown regset")
	}
	elemSize := 4
	lo := int(index) * elemSize
	hi := lo + int(count)*elemSize
	if hi > len(data) {
		return nil, errors.New("out of range")
	}
	out := make([]byte, hi-lo)
	copy(out, data[lo:hi])
	return out, nil
}

func (f *fakeSession) WriteRegisters(tid zedrv.ThreadID, regsetType uint32, index uint32, data []byte) error {
	f.writes = append(f.writes, writeCall{regsetType, index, append([]byte{}, data...)})
	return nil
}

func TestCacheLazyFetch(t *testing.T) {
	sess := newFakeSession()
	c := New(sess, zedrv.ThreadID{}, testInfo())

	got, err := c.Get(1) // grf[1] == 1
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got[0] != 1 {
		t.Errorf("got %v, want [1,0,0,0]", got)
	}
	if c.slots[1] != Valid {
		t.Errorf("slot state = %v, want Valid", c.slots[1])
	}
	if c.slots[0] != Unknown {
		t.Errorf("unrelated slot should remain Unknown, got %v", c.slots[0])
	}
}

func TestCacheSetThenGetReturnsStagedValue(t *testing.T) {
	sess := newFakeSession()
	c := New(sess, zedrv.ThreadID{}, testInfo())

	if err := c.Set(2, []byte{9, 9, 9, 9}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.slots[2] != Dirty {
		t.Errorf("slot state = %v, want Dirty", c.slots[2])
	}
	got, err := c.Get(2)
	if err != nil || got[0] != 9 {
		t.Errorf("got %v err=%v, want staged [9,9,9,9]", got, err)
	}
}

func TestCacheSetReadOnlyRegisterFails(t *testing.T) {
	info := NewInfo([]zedrv.RegsetDescriptor{
		{Name: "ro", Type: regsetGRF, ByteSize: 4, Count: 1, Writable: false},
	})
	c := New(newFakeSession(), zedrv.ThreadID{}, info)
	if err := c.Set(0, []byte{1, 2, 3, 4}); err == nil {
		t.Fatal("expected error writing to read-only register")
	}
}

func TestCacheFetchAllFlushesDirtyFirst(t *testing.T) {
	sess := newFakeSession()
	c := New(sess, zedrv.ThreadID{}, testInfo())

	if err := c.Set(4, []byte{99, 0, 0, 0}); err != nil { // cr[0]
		t.Fatalf("unexpected error: %v", err)
	}
	if err := c.FetchAll(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sess.writes) != 1 {
		t.Fatalf("expected 1 flush write, got %d", len(sess.writes))
	}
	if sess.writes[0].regsetType != regsetCR || sess.writes[0].index != 0 {
		t.Errorf("unexpected flush target: %+v", sess.writes[0])
	}

	for regno := 0; regno < c.info.NumRegnos(); regno++ {
		if c.slots[regno] != Valid {
			t.Errorf("regno %d: slot = %v, want Valid after FetchAll", regno, c.slots[regno])
		}
	}
	if !c.fullyFetched {
		t.Error("expected fullyFetched == true")
	}
}

func TestCacheFetchAllMarksFailedRegsetUnavailable(t *testing.T) {
	sess := newFakeSession()
	sess.failRegset[regsetCR] = true
	c := New(sess, zedrv.ThreadID{}, testInfo())

	if err := c.FetchAll(); err == nil {
		t.Fatal("expected error reporting the failed regset")
	}
	for regno := 4; regno < 7; regno++ {
		if c.slots[regno] != Unavailable {
			t.Errorf("regno %d: slot = %v, want Unavailable", regno, c.slots[regno])
		}
	}
	if _, err := c.Get(4); !errors.Is(err, zedrv.ErrNotReady) {
		t.Errorf("Get on unavailable register: err = %v, want ErrNotReady", err)
	}
}

func TestCacheFetchAllIsNoopWhenAlreadyFetched(t *testing.T) {
	sess := newFakeSession()
	c := New(sess, zedrv.ThreadID{}, testInfo())
	if err := c.FetchAll(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	reads := len(sess.writes)
	if err := c.FetchAll(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sess.writes) != reads {
		t.Error("second FetchAll should not have issued additional writes")
	}
}

func TestCacheFlushResetsSlots(t *testing.T) {
	sess := newFakeSession()
	c := New(sess, zedrv.ThreadID{}, testInfo())
	if err := c.Set(0, []byte{5, 0, 0, 0}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := c.Flush(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.slots[0] != Unknown {
		t.Errorf("slot state = %v, want Unknown after Flush", c.slots[0])
	}
	if len(sess.writes) != 1 {
		t.Fatalf("expected the dirty register to be written back, got %d writes", len(sess.writes))
	}
}

func TestCacheGetOutOfRange(t *testing.T) {
	c := New(newFakeSession(), zedrv.ThreadID{}, testInfo())
	if _, err := c.Get(999); err == nil {
		t.Fatal("expected out-of-range error")
	}
}

func TestRegsetInfoLookupAndRegnoOf(t *testing.T) {
	info := testInfo()
	entry, index, ok := info.Lookup(5)
	if !ok || entry.Name != "cr" || index != 1 {
		t.Fatalf("Lookup(5) = %+v, %d, %v", entry, index, ok)
	}
	regno, ok := info.RegnoOf(regsetCR, 1)
	if !ok || regno != 5 {
		t.Fatalf("RegnoOf(cr, 1) = %d, %v, want 5, true", regno, ok)
	}
	if _, _, ok := info.Lookup(100); ok {
		t.Error("Lookup(100) should fail, out of range")
	}
}

func TestRegsetInfoByNameLookups(t *testing.T) {
	info := testInfo()
	entry, ok := info.EntryByName("CR") // case-insensitive
	if !ok || entry.Name != "cr" {
		t.Fatalf("EntryByName(CR) = %+v, %v", entry, ok)
	}
	regno, ok := info.RegnoOfNamed("cr", 1)
	if !ok || regno != 5 {
		t.Fatalf("RegnoOfNamed(cr, 1) = %d, %v, want 5, true", regno, ok)
	}
	if _, ok := info.EntryByName("nope"); ok {
		t.Error("EntryByName(nope) should fail")
	}
}

func TestCacheAllConcatenatesEveryRegisterInOrder(t *testing.T) {
	sess := newFakeSession()
	c := New(sess, zedrv.ThreadID{}, testInfo())

	data, err := c.All()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := append(append([]byte{}, sess.regs[regsetGRF]...), sess.regs[regsetCR]...)
	if string(data) != string(want) {
		t.Fatalf("All() = %v, want %v", data, want)
	}
	if !c.fullyFetched {
		t.Error("All() should leave the cache fully fetched")
	}
}

func TestCacheAllZeroFillsUnavailableRegisters(t *testing.T) {
	sess := newFakeSession()
	sess.failRegset[regsetCR] = true
	c := New(sess, zedrv.ThreadID{}, testInfo())

	data, err := c.All()
	if err == nil {
		t.Fatal("expected the failed regset's error to surface")
	}
	if len(data) != 7*4 {
		t.Fatalf("All() returned %d bytes, want %d (zero-filled for the failed regset)", len(data), 7*4)
	}
	for _, b := range data[4*4:] {
		if b != 0 {
			t.Fatalf("expected zero-filled tail for unavailable cr registers, got %v", data[4*4:])
		}
	}
}
