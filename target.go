package intelgtdbg

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/intel/intelgt-dbgstub/internal/devicemgr"
	"github.com/intel/intelgt-dbgstub/internal/gtbackend"
	"github.com/intel/intelgt-dbgstub/internal/logging"
	"github.com/intel/intelgt-dbgstub/internal/memorybridge"
	"github.com/intel/intelgt-dbgstub/internal/threadstate"
	"github.com/intel/intelgt-dbgstub/internal/wakepipe"
	"github.com/intel/intelgt-dbgstub/internal/zedrv"
)

// Re-exported devicemgr types so callers of this package never need to
// import internal/devicemgr directly.
type (
	Ptid          = devicemgr.Ptid
	ResumeRequest = devicemgr.ResumeRequest
	ResumeKind    = devicemgr.ResumeKind
	WaitOptions   = devicemgr.WaitOptions
	WaitResult    = devicemgr.WaitResult
)

const (
	ResumeContinue = devicemgr.ResumeContinue
	ResumeStep     = devicemgr.ResumeStep
	ResumeStop     = devicemgr.ResumeStop
)

// Params configures a Target at attach time.
type Params struct {
	Logger   *logging.Logger
	NonStop  bool
	WakePipe *wakepipe.Pipe
}

// Target is one live debug session: every attached device, multiplexed
// behind the target-ops surface consumed by the RSP dispatcher.
type Target struct {
	manager   *devicemgr.Manager
	log       *logging.Logger
	sessionID uuid.UUID
}

// Attach enumerates every driver's device tree and attaches to every
// suitable leaf device, returning the pid of an arbitrary attached
// device for the dispatcher to bootstrap its handshake with. Zero
// devices attached is a fatal condition (there is nothing left for this
// stub to serve) and aborts via Fatalf rather than returning an error.
func Attach(drivers []zedrv.Driver, params Params) (target *Target, pid uint32) {
	log := params.Logger
	if log == nil {
		log = logging.Default()
	}
	sessionID := uuid.New()
	log = log.WithSession(sessionID.String())

	opts := []devicemgr.Option{devicemgr.WithNonStop(params.NonStop)}
	if params.WakePipe != nil {
		opts = append(opts, devicemgr.WithWakePipe(params.WakePipe))
	}

	mgr := devicemgr.NewManager(drivers, gtbackend.NewGT(), log, opts...)
	if err := mgr.Attach(); err != nil {
		Fatalf("attach", "%v", err)
	}

	t := &Target{manager: mgr, log: log, sessionID: sessionID}
	return t, mgr.Devices()[0].Ordinal
}

// DeviceIDs returns the pid of every currently attached device.
func (t *Target) DeviceIDs() []uint32 {
	var ids []uint32
	for _, d := range t.manager.Devices() {
		if d.Session != nil {
			ids = append(ids, d.Ordinal)
		}
	}
	return ids
}

// Detach clears pending events, resumes, and detaches from pid. It
// never fails; driver-level detach errors are logged and swallowed.
func (t *Target) Detach(pid uint32) error {
	d := t.manager.DeviceByOrdinal(pid)
	if d == nil {
		return nil
	}
	_ = t.manager.Detach(d)
	return nil
}

// Resume applies requests across every attached device.
func (t *Target) Resume(requests []ResumeRequest) {
	t.manager.Resume(requests)
}

// Wait runs the wait() search loop for ptid.
func (t *Target) Wait(ptid Ptid, opts WaitOptions) (WaitResult, bool) {
	return t.manager.Wait(ptid, opts)
}

func (t *Target) lookupThread(pid, threadSeq uint32) (*devicemgr.Device, *threadstate.Thread, error) {
	d := t.manager.DeviceByOrdinal(pid)
	if d == nil {
		return nil, nil, NewDeviceError("lookup", pid, ErrCodeDeviceNotFound, "no such device")
	}
	th := d.ThreadBySequentialID(threadSeq)
	if th == nil {
		return nil, nil, NewDeviceError("lookup", pid, ErrCodeThreadNotFound, fmt.Sprintf("no such thread %d", threadSeq))
	}
	return d, th, nil
}

// FetchRegisters reads one register (regno >= 0) or every register
// concatenated in ascending regno order (regno == -1).
func (t *Target) FetchRegisters(pid, threadSeq uint32, regno int) ([]byte, error) {
	_, th, err := t.lookupThread(pid, threadSeq)
	if err != nil {
		return nil, err
	}
	if regno == -1 {
		data, err := th.Regs.All()
		if err != nil {
			return data, WrapError("fetch_registers", err)
		}
		return data, nil
	}
	data, err := th.Regs.Get(regno)
	if err != nil {
		return nil, WrapError("fetch_registers", err)
	}
	return data, nil
}

// StoreRegisters writes one register's bytes; regno == -1 is invalid
// for a store.
func (t *Target) StoreRegisters(pid, threadSeq uint32, regno int, data []byte) error {
	if regno < 0 {
		return NewDeviceError("store_registers", pid, ErrCodeUnsupported, "store_registers requires an explicit register number")
	}
	_, th, err := t.lookupThread(pid, threadSeq)
	if err != nil {
		return err
	}
	if err := th.Regs.Set(regno, data); err != nil {
		return WrapError("store_registers", err)
	}
	return nil
}

// ReadMemory resolves the memory access context and reads length bytes
// at addr. threadSeq == 0 means "no specific thread" (process-wide
// context); in that case only addrSpace == 0 is permitted.
func (t *Target) ReadMemory(pid, threadSeq uint32, addrSpace uint32, addr uint64, length int) ([]byte, error) {
	d := t.manager.DeviceByOrdinal(pid)
	if d == nil {
		return nil, NewDeviceError("read_memory", pid, ErrCodeDeviceNotFound, "no such device")
	}
	if d.Session == nil {
		return nil, NewDeviceError("read_memory", pid, ErrCodeNotAttached, "device is detached")
	}
	th, stopped := t.threadContext(d, threadSeq)
	data, err := memorybridge.Read(d.Session, stopped, th, d.WildcardThread(), addrSpace, addr, length)
	if err != nil {
		return nil, NewDeviceError("read_memory", pid, ErrCodeMemoryContext, err.Error())
	}
	return data, nil
}

// WriteMemory is the write counterpart of ReadMemory.
func (t *Target) WriteMemory(pid, threadSeq uint32, addrSpace uint32, addr uint64, data []byte) error {
	d := t.manager.DeviceByOrdinal(pid)
	if d == nil {
		return NewDeviceError("write_memory", pid, ErrCodeDeviceNotFound, "no such device")
	}
	if d.Session == nil {
		return NewDeviceError("write_memory", pid, ErrCodeNotAttached, "device is detached")
	}
	th, stopped := t.threadContext(d, threadSeq)
	if err := memorybridge.Write(d.Session, stopped, th, d.WildcardThread(), addrSpace, addr, data); err != nil {
		return NewDeviceError("write_memory", pid, ErrCodeMemoryContext, err.Error())
	}
	return nil
}

func (t *Target) threadContext(d *devicemgr.Device, threadSeq uint32) (zedrv.ThreadID, bool) {
	if threadSeq == 0 {
		return zedrv.ThreadID{}, false
	}
	th := d.ThreadBySequentialID(threadSeq)
	if th == nil {
		return zedrv.ThreadID{}, false
	}
	return th.Hardware, th.IsStoppedLike()
}

// RequestInterrupt wildcard-interrupts pid; no wait is required before
// the effect becomes visible through Wait.
func (t *Target) RequestInterrupt(pid uint32) error {
	d := t.manager.DeviceByOrdinal(pid)
	if d == nil {
		return NewDeviceError("request_interrupt", pid, ErrCodeDeviceNotFound, "no such device")
	}
	if d.Session == nil {
		return NewDeviceError("request_interrupt", pid, ErrCodeNotAttached, "device is detached")
	}
	if err := d.Session.Interrupt(d.WildcardThread()); err != nil {
		return WrapError("request_interrupt", err)
	}
	t.manager.WakeUp()
	return nil
}

// PauseAll toggles the freeze counter, recovering any internal fatal
// panic (freeze counter overflow) through this package's own Fatalf so
// it still aborts the stub, just under the public FatalError type.
func (t *Target) PauseAll(freeze bool) {
	defer recoverFatal("pause_all")
	t.manager.PauseAll(freeze)
}

// UnpauseAll is the inverse of PauseAll.
func (t *Target) UnpauseAll(unfreeze bool) {
	defer recoverFatal("unpause_all")
	t.manager.UnpauseAll(unfreeze)
}

// AckInMemoryLibrary acknowledges a previously reported module_load.
func (t *Target) AckInMemoryLibrary(pid uint32, begin, end uint64) error {
	d := t.manager.DeviceByOrdinal(pid)
	if d == nil {
		return NewDeviceError("ack_in_memory_library", pid, ErrCodeDeviceNotFound, "no such device")
	}
	if err := t.manager.AckInMemoryLibrary(d, begin, end); err != nil {
		return WrapError("ack_in_memory_library", err)
	}
	return nil
}

// ThreadIDStr formats a thread's hardware address as "ZE s.ss.eu.t".
func (t *Target) ThreadIDStr(pid, threadSeq uint32) (string, error) {
	_, th, err := t.lookupThread(pid, threadSeq)
	if err != nil {
		return "", err
	}
	hw := th.Hardware
	return fmt.Sprintf("ZE %d.%d.%d.%d", hw.Slice, hw.Subslice, hw.EU, hw.Thread), nil
}

// ThreadChanged reports whether pid/threadSeq's target description was
// reselected since this was last checked, clearing the flag as it is
// read. The wire layer calls this once per reported stop to decide
// whether a fresh tdesc needs to be sent down before the next register
// access.
func (t *Target) ThreadChanged(pid, threadSeq uint32) (bool, error) {
	_, th, err := t.lookupThread(pid, threadSeq)
	if err != nil {
		return false, err
	}
	changed := th.ThreadChanged
	th.ThreadChanged = false
	return changed, nil
}

// AttachDiagnostics returns the last retained attach failure for every
// device that has one, keyed by PCI slot. A device that has never
// failed to attach, or whose most recent attempt succeeded, is absent.
func (t *Target) AttachDiagnostics() map[string]string {
	return t.manager.AttachDiagnostics()
}

// IDStr formats a device's PCI location as "device [dddd:bb:dd.f]",
// appending ".subId" when it is a sub-device.
func (t *Target) IDStr(pid uint32) (string, error) {
	d := t.manager.DeviceByOrdinal(pid)
	if d == nil {
		return "", NewDeviceError("id_str", pid, ErrCodeDeviceNotFound, "no such device")
	}
	s := fmt.Sprintf("device [%s]", d.Props.PCISlot)
	if d.Props.IsSubdevice {
		s = fmt.Sprintf("%s.%d", s, d.Props.SubdeviceID)
	}
	return s, nil
}

// recoverFatal turns an internal fatal-error panic raised below this
// package into a public *FatalError panic under op, preserving fatal
// severity across the package boundary. Panics of any other shape are
// re-raised unchanged.
func recoverFatal(op string) {
	r := recover()
	if r == nil {
		return
	}
	if fe, ok := r.(interface {
		FatalOp() string
		FatalMsg() string
	}); ok {
		Fatalf(op, "%s: %s", fe.FatalOp(), fe.FatalMsg())
	}
	panic(r)
}
