package devicemgr

import (
	"errors"

	"github.com/intel/intelgt-dbgstub/internal/threadstate"
	"github.com/intel/intelgt-dbgstub/internal/zedrv"
)

// drainDeviceEvents pulls every currently queued event off d's session
// and applies it to the state machine, stopping once the driver reports
// ErrNotReady.
func (m *Manager) drainDeviceEvents(d *Device) error {
	if d.Session == nil {
		return nil
	}
	for {
		evt, err := d.Session.PollEvent()
		if err != nil {
			if errors.Is(err, zedrv.ErrNotReady) {
				return nil
			}
			return err
		}
		if err := m.applyEvent(d, evt); err != nil {
			return err
		}
		if d.Session == nil {
			return nil // detached mid-drain
		}
	}
}

func (m *Manager) applyEvent(d *Device, evt zedrv.Event) error {
	switch e := evt.(type) {
	case *zedrv.DetachedEvent:
		for _, t := range d.Threads {
			t.SetExited(e.Reason)
		}
		d.Session = nil
		return nil

	case *zedrv.ProcessEntryEvent:
		if err := d.ackIfNeeded(e); err != nil {
			return err
		}
		d.Process.Visible = true
		return nil

	case *zedrv.ProcessExitEvent:
		if err := d.ackIfNeeded(e); err != nil {
			return err
		}
		d.Process.Visible = false
		return nil

	case *zedrv.ModuleLoadEvent:
		return m.applyModuleLoad(d, e)

	case *zedrv.ModuleUnloadEvent:
		return d.ackIfNeeded(e)

	case *zedrv.ThreadStoppedEvent:
		return m.applyThreadStopped(d, e.Thread)

	case *zedrv.ThreadUnavailableEvent:
		return m.applyThreadUnavailable(d, e.Thread)

	case *zedrv.PageFaultEvent:
		if !d.Process.Pending.IsPriority() {
			d.Process.Pending = threadstate.WaitStatus{Kind: threadstate.WaitSignalled, Signal: int32(gtSegvSignal)}
		}
		return nil

	default:
		return nil
	}
}

// gtSegvSignal is the POSIX SIGSEGV value reported for page faults,
// which are recorded as a process-level signalled(SEGV) status.
const gtSegvSignal = 11

func (d *Device) ackIfNeeded(evt zedrv.Event) error {
	if !evt.NeedsAck() {
		return nil
	}
	return d.Session.AckEvent(evt)
}

// applyModuleLoad forwards a non-empty range to the loaded-dll
// collaborator's ack-pending list and sets the process's wait-status
// without clobbering a higher-priority one.
func (m *Manager) applyModuleLoad(d *Device, e *zedrv.ModuleLoadEvent) error {
	if e.Begin >= e.End {
		return d.ackIfNeeded(e)
	}
	if e.NeedsAck() {
		d.ackPending = append(d.ackPending, pendingModuleLoad{Begin: e.Begin, End: e.End})
	} else if err := d.ackIfNeeded(e); err != nil {
		return err
	}
	if !d.Process.Pending.IsPriority() {
		d.Process.Pending = threadstate.WaitStatus{Kind: threadstate.WaitUnavailable}
	}
	return nil
}

// AckInMemoryLibrary pops a matching pending module_load and
// acknowledges it to the driver.
func (m *Manager) AckInMemoryLibrary(d *Device, begin, end uint64) error {
	for i, p := range d.ackPending {
		if p.Begin == begin && p.End == end {
			d.ackPending = append(d.ackPending[:i], d.ackPending[i+1:]...)
			return d.Session.AckEvent(zedrv.NewModuleLoad(begin, end, 0, 0, true))
		}
	}
	return errors.New("devicemgr: no pending module_load matches that range")
}

// forEachMatching applies fn to every thread matching tid, where the
// wildcard hardware id (zedrv.All) matches every thread.
func forEachMatching(d *Device, tid zedrv.ThreadID, fn func(*threadstate.Thread)) {
	if tid == zedrv.All {
		for _, t := range d.Threads {
			fn(t)
		}
		return
	}
	if t := d.ThreadByHardware(tid); t != nil {
		fn(t)
	}
}

func (m *Manager) applyThreadStopped(d *Device, tid zedrv.ThreadID) error {
	forEachMatching(d, tid, func(t *threadstate.Thread) {
		if t.IsStoppedLike() {
			return
		}
		decrementSaturating(&d.NResumed)
		wasUnavailableWithStopIntent := t.ExecState == threadstate.ExecUnavailable && t.ResumeState == threadstate.ResumeStop

		if d.Session != nil {
			m.reselectThreadTdesc(d, t)
		}

		lastResumeWasStep := t.ResumeState == threadstate.ResumeStep
		reason, sig, err := d.Backend.GetStopReason(t.Regs, lastResumeWasStep)
		if err != nil {
			d.log.WithThread(t.Hardware.String()).Warnf("classifying stop reason: %v", err)
			t.SetUnavailable()
			return
		}

		if !m.nonStop && wasUnavailableWithStopIntent {
			t.SetHeld(reason, int32(sig))
			return
		}
		t.SetStopped(reason, int32(sig))
	})
	if tid == zedrv.All {
		decrementSaturating(&d.NInterrupts)
	}
	return nil
}

func (m *Manager) applyThreadUnavailable(d *Device, tid zedrv.ThreadID) error {
	forEachMatching(d, tid, func(t *threadstate.Thread) {
		if !t.IsStoppedLike() {
			decrementSaturating(&d.NResumed)
		}
		t.SetUnavailable()
	})
	if tid == zedrv.All {
		decrementSaturating(&d.NInterrupts)
	}
	return nil
}

func decrementSaturating(v *uint32) {
	if *v > 0 {
		*v--
	}
}
