package zedrv

// Event is the driver's tagged union over everything that can be
// observed on a device's event queue. Implemented as a sum type with one
// concrete variant per event kind, decoded at the driver boundary.
type Event interface {
	isEvent()
	// NeedsAck reports whether this event must be acknowledged back to the
	// driver before it is considered delivered.
	NeedsAck() bool
}

type base struct {
	needAck bool
}

func (base) isEvent() {}

func (b base) NeedsAck() bool { return b.needAck }

// DetachedEvent signals that the driver has detached the device out from
// under us (forced detach, device hot-unplug, or similar).
type DetachedEvent struct {
	base
	Reason int32
}

// ProcessEntryEvent signals the modelled process becoming visible.
type ProcessEntryEvent struct{ base }

// ProcessExitEvent signals the modelled process becoming hidden.
type ProcessExitEvent struct{ base }

// ModuleLoadEvent reports an in-memory module mapping. Begin/End/Load are
// device virtual addresses; an empty range (Begin == End) carries no
// payload and is dropped by the event loop.
type ModuleLoadEvent struct {
	base
	Begin, End, Load uint64
	Format           uint32
}

// ModuleUnloadEvent reports a module mapping going away.
type ModuleUnloadEvent struct {
	base
	Begin, End uint64
}

// ThreadStoppedEvent reports that Thread (or every thread, if Thread is
// the wildcard) has stopped.
type ThreadStoppedEvent struct {
	base
	Thread ThreadID
}

// ThreadUnavailableEvent reports that Thread (or every thread) became
// unavailable, e.g. because it responded to an interrupt while running
// code that cannot be preempted mid-dispatch.
type ThreadUnavailableEvent struct {
	base
	Thread ThreadID
}

// PageFaultEvent reports a device-wide page fault; it is a process-level
// event and never touches thread state directly.
type PageFaultEvent struct {
	base
	Address uint64
	Mask    uint64
	Reason  uint32
}

func NewDetached(reason int32) *DetachedEvent { return &DetachedEvent{Reason: reason} }
func NewProcessEntry(needAck bool) *ProcessEntryEvent {
	return &ProcessEntryEvent{base{needAck}}
}
func NewProcessExit(needAck bool) *ProcessExitEvent { return &ProcessExitEvent{base{needAck}} }
func NewModuleLoad(begin, end, load uint64, format uint32, needAck bool) *ModuleLoadEvent {
	return &ModuleLoadEvent{base{needAck}, begin, end, load, format}
}
func NewModuleUnload(begin, end uint64, needAck bool) *ModuleUnloadEvent {
	return &ModuleUnloadEvent{base{needAck}, begin, end}
}
func NewThreadStopped(tid ThreadID) *ThreadStoppedEvent { return &ThreadStoppedEvent{Thread: tid} }
func NewThreadUnavailable(tid ThreadID) *ThreadUnavailableEvent {
	return &ThreadUnavailableEvent{Thread: tid}
}
func NewPageFault(addr, mask uint64, reason uint32) *PageFaultEvent {
	return &PageFaultEvent{Address: addr, Mask: mask, Reason: reason}
}
