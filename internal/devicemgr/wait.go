package devicemgr

import (
	"errors"
	"math/rand"

	"github.com/intel/intelgt-dbgstub/internal/gtbackend"
	"github.com/intel/intelgt-dbgstub/internal/threadstate"
)

type candidate struct {
	device *Device
	thread *threadstate.Thread
}

// Wait implements the wait() search loop. It returns ok == false only
// when opts.NoHang is set and nothing was ready.
func (m *Manager) Wait(ptid Ptid, opts WaitOptions) (WaitResult, bool) {
	for {
		if m.wake != nil {
			if err := m.wake.Drain(); err != nil {
				m.log.Warnf("wait: draining wake pipe: %v", err)
			}
		}

		for _, d := range m.devices {
			if err := m.drainDeviceEvents(d); err != nil {
				d.log.Warnf("wait: draining events: %v", err)
			}
		}

		if res, ok := m.findProcessEvent(ptid); ok {
			return res, true
		}

		if cand, ok := m.findThreadCandidate(ptid); ok {
			d, t := cand.device, cand.thread

			if t.WaitStatus.Kind == threadstate.WaitStopped && t.StopReason == threadstate.StopSingleStep {
				pc, err := d.Backend.ReadPC(t.Regs)
				if err == nil && t.InStepRange(pc) {
					m.silentlyResumeForStep(d, t)
					continue
				}
			}

			if t.WaitStatus.Kind == threadstate.WaitStopped && t.StopReason == threadstate.StopNone && t.WaitStatus.Signal == 0 {
				m.silentResume(d, t)
				continue
			}

			if !m.nonStop {
				// Quiesce every other resumed thread so the debugger sees a
				// consistent all-stop snapshot. They stay paused -- not
				// unpaused -- until the debugger's next resume request
				// reaches them.
				m.quiesceAll()
			}

			status := t.WaitStatus
			t.WaitStatus = threadstate.WaitStatus{Kind: threadstate.WaitNone}
			t.StepRangeStart, t.StepRangeEnd = 0, 0
			return WaitResult{Ptid: Ptid{Device: d.Ordinal, Thread: t.SequentialID}, Status: status}, true
		}

		if opts.NoHang {
			return WaitResult{}, false
		}
	}
}

// findProcessEvent implements step 2 of wait(): a pending process
// status is preferred, except that an unavailable process status
// piggybacks on a concurrent thread event if one exists.
func (m *Manager) findProcessEvent(ptid Ptid) (WaitResult, bool) {
	for _, d := range m.devices {
		if ptid.Device != 0 && ptid.Device != d.Ordinal {
			continue
		}
		if d.Process.Pending.Kind == threadstate.WaitNone {
			continue
		}
		if d.Process.Pending.Kind == threadstate.WaitUnavailable {
			if _, ok := m.findThreadCandidate(ptid); ok {
				continue
			}
		}
		status := d.Process.Pending
		d.Process.Pending = threadstate.WaitStatus{Kind: threadstate.WaitNone}
		return WaitResult{Ptid: Ptid{Device: d.Ordinal, Thread: 0}, Status: status}, true
	}
	return WaitResult{}, false
}

// findThreadCandidate implements step 3: search for an eligible thread
// matching ptid, preferring priority wait-statuses, then stopped events,
// then anything else, choosing uniformly at random within the winning
// class.
func (m *Manager) findThreadCandidate(ptid Ptid) (candidate, bool) {
	var priorityClass, stoppedClass, otherClass []candidate

	for _, d := range m.devices {
		if ptid.Device != 0 && ptid.Device != d.Ordinal {
			continue
		}
		for _, t := range d.Threads {
			if !ptid.matches(d.Ordinal, t.SequentialID) {
				continue
			}
			if t.ResumeState == threadstate.ResumeNone || t.ExecState == threadstate.ExecHeld {
				continue
			}
			if t.WaitStatus.Kind == threadstate.WaitNone {
				continue
			}
			c := candidate{device: d, thread: t}
			switch {
			case t.HasPriorityEvent():
				priorityClass = append(priorityClass, c)
			case t.WaitStatus.Kind == threadstate.WaitStopped:
				stoppedClass = append(stoppedClass, c)
			default:
				otherClass = append(otherClass, c)
			}
		}
	}

	for _, class := range [][]candidate{priorityClass, stoppedClass, otherClass} {
		if len(class) > 0 {
			return class[rand.Intn(len(class))], true
		}
	}
	return candidate{}, false
}

// silentlyResumeForStep implements the range-stepping fast path: ask
// the backend to prepare another step and resume without reporting
// anything to the debugger.
func (m *Manager) silentlyResumeForStep(d *Device, t *threadstate.Thread) {
	t.WaitStatus = threadstate.WaitStatus{Kind: threadstate.WaitNone}
	if d.Backend != nil && d.Session != nil {
		if err := d.Backend.PrepareThreadResume(t.Regs, d.Session, t.Hardware, true); err != nil {
			if errors.Is(err, gtbackend.ErrAtEndOfThread) {
				t.WaitStatus = threadstate.WaitStatus{Kind: threadstate.WaitUnavailable}
			} else {
				d.log.WithThread(t.Hardware.String()).Warnf("range-step resume: %v", err)
			}
		}
	}
	_ = t.Regs.Flush()
	d.NResumed++
	t.ExecState = threadstate.ExecRunning
	if d.Session != nil {
		if err := d.Session.Resume(t.Hardware); err != nil {
			d.log.WithThread(t.Hardware.String()).Warnf("range-step resume: %v", err)
		}
	}
}

// silentResume implements the spurious-wake fast path: a no-reason
// stopped(0) event is not a real stop and is silently resumed.
func (m *Manager) silentResume(d *Device, t *threadstate.Thread) {
	t.WaitStatus = threadstate.WaitStatus{Kind: threadstate.WaitNone}
	d.NResumed++
	t.ExecState = threadstate.ExecRunning
	if d.Session != nil {
		if err := d.Session.Resume(t.Hardware); err != nil {
			d.log.WithThread(t.Hardware.String()).Warnf("spurious-wake resume: %v", err)
		}
	}
}
