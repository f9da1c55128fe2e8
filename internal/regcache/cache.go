package regcache

import (
	"fmt"

	"github.com/intel/intelgt-dbgstub/internal/zedrv"
)

// SlotState is the lifecycle state of one cached logical register.
type SlotState int

const (
	Unknown SlotState = iota
	Valid
	Dirty
	Unavailable
)

func (s SlotState) String() string {
	switch s {
	case Unknown:
		return "unknown"
	case Valid:
		return "valid"
	case Dirty:
		return "dirty"
	case Unavailable:
		return "unavailable"
	default:
		return "invalid"
	}
}

// Cache is one thread's lazy register cache. Nothing is fetched from the
// driver until a register is actually read, and writes are buffered until
// the next fetch-all or explicit Flush.
type Cache struct {
	session zedrv.Session
	tid     zedrv.ThreadID
	info    *Info

	slots        []SlotState
	buf          [][]byte
	fullyFetched bool
}

// New builds a cache for tid backed by session, using the register layout
// described by info.
func New(session zedrv.Session, tid zedrv.ThreadID, info *Info) *Cache {
	return &Cache{
		session: session,
		tid:     tid,
		info:    info,
		slots:   make([]SlotState, info.NumRegnos()),
		buf:     make([][]byte, info.NumRegnos()),
	}
}

// Info returns the register layout this cache was built with.
func (c *Cache) Info() *Info { return c.info }

func (c *Cache) inRange(regno int) bool {
	return regno >= 0 && regno < len(c.slots)
}

// Get returns the bytes for regno, fetching it lazily from the driver on
// first access.
func (c *Cache) Get(regno int) ([]byte, error) {
	if !c.inRange(regno) {
		return nil, fmt.Errorf("regcache: register %d out of range", regno)
	}
	switch c.slots[regno] {
	case Valid, Dirty:
		return c.buf[regno], nil
	case Unavailable:
		return nil, zedrv.ErrNotReady
	}

	entry, index, ok := c.info.Lookup(regno)
	if !ok {
		return nil, fmt.Errorf("regcache: register %d has no regset mapping", regno)
	}
	data, err := c.session.ReadRegisters(c.tid, entry.Type, uint32(index), 1)
	if err != nil {
		c.slots[regno] = Unavailable
		return nil, fmt.Errorf("regcache: fetch register %d (regset %q): %w", regno, entry.Name, err)
	}
	c.buf[regno] = data
	c.slots[regno] = Valid
	return data, nil
}

// Set stages a write to regno; it takes effect on the next flush. Writes
// promote a slot straight to dirty regardless of its prior state.
func (c *Cache) Set(regno int, data []byte) error {
	if !c.inRange(regno) {
		return fmt.Errorf("regcache: register %d out of range", regno)
	}
	entry, _, ok := c.info.Lookup(regno)
	if !ok {
		return fmt.Errorf("regcache: register %d has no regset mapping", regno)
	}
	if !entry.Writable {
		return fmt.Errorf("regcache: register %d (regset %q) is read-only", regno, entry.Name)
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	c.buf[regno] = buf
	c.slots[regno] = Dirty
	return nil
}

// FetchAll ensures every register has been read at least once, writing
// back any pending dirty registers first. It is a no-op once the cache
// is already fully fetched; call Invalidate first to force a re-fetch.
func (c *Cache) FetchAll() error {
	if c.fullyFetched {
		return nil
	}
	if err := c.flushDirtyLocked(); err != nil {
		return err
	}
	c.resetSlotsLocked()

	var firstErr error
	for _, e := range c.info.entries {
		data, err := c.session.ReadRegisters(c.tid, e.Type, 0, uint32(e.Count))
		if err != nil {
			for i := 0; i < e.Count; i++ {
				c.slots[e.StartRegno+i] = Unavailable
			}
			if firstErr == nil {
				firstErr = fmt.Errorf("regcache: fetch regset %q: %w", e.Name, err)
			}
			continue
		}
		elemSize := int(e.ElemSize)
		for i := 0; i < e.Count; i++ {
			regno := e.StartRegno + i
			if c.slots[regno] == Unavailable {
				continue
			}
			lo, hi := i*elemSize, (i+1)*elemSize
			if hi > len(data) {
				c.slots[regno] = Unavailable
				continue
			}
			c.buf[regno] = data[lo:hi]
			c.slots[regno] = Valid
		}
	}
	c.fullyFetched = true
	return firstErr
}

// All fetches every register (if not already fully fetched) and
// concatenates them in ascending regno order into one flat buffer,
// matching the driver's raw register-set layout. A register left
// Unavailable after the fetch is zero-filled so the buffer's length
// stays stable; the first fetch error, if any, is still returned
// alongside the partial buffer.
func (c *Cache) All() ([]byte, error) {
	err := c.FetchAll()

	var out []byte
	for _, e := range c.info.entries {
		for i := 0; i < e.Count; i++ {
			regno := e.StartRegno + i
			if c.slots[regno] == Valid || c.slots[regno] == Dirty {
				out = append(out, c.buf[regno]...)
			} else {
				out = append(out, make([]byte, e.ElemSize)...)
			}
		}
	}
	return out, err
}

// Flush writes back every dirty register and then invalidates the
// cache, matching the driver-facing "flush on resume" behavior.
func (c *Cache) Flush() error {
	if err := c.flushDirtyLocked(); err != nil {
		return err
	}
	c.resetSlotsLocked()
	return nil
}

// Invalidate discards all cached state without writing dirty registers
// back; used when the driver reports the thread changed out from under
// us.
func (c *Cache) Invalidate() {
	c.resetSlotsLocked()
}

func (c *Cache) resetSlotsLocked() {
	for i := range c.slots {
		c.slots[i] = Unknown
		c.buf[i] = nil
	}
	c.fullyFetched = false
}

func (c *Cache) flushDirtyLocked() error {
	var firstErr error
	for regno, state := range c.slots {
		if state != Dirty {
			continue
		}
		entry, index, ok := c.info.Lookup(regno)
		if !ok {
			continue
		}
		if err := c.session.WriteRegisters(c.tid, entry.Type, uint32(index), c.buf[regno]); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("regcache: flush register %d (regset %q): %w", regno, entry.Name, err)
			}
			continue
		}
		c.slots[regno] = Valid
	}
	return firstErr
}
