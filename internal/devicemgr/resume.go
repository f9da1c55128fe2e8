package devicemgr

import (
	"errors"

	"github.com/intel/intelgt-dbgstub/internal/gtbackend"
	"github.com/intel/intelgt-dbgstub/internal/threadstate"
)

// Resume applies requests to the attached devices, converting them into
// the minimum set of driver calls. It returns nothing; the effects are
// later observed through Wait.
func (m *Manager) Resume(requests []ResumeRequest) {
	requests = normalizeRequests(requests, m.log)

	if !m.nonStop {
		for _, d := range m.devices {
			for _, t := range d.Threads {
				t.ClearResumeState()
			}
		}
	}

	wildcardEligible := m.wildcardEligibleDevices(requests)
	handled := map[*threadstate.Thread]bool{}

	for _, req := range requests {
		for _, d := range m.devices {
			if d.Session == nil {
				continue
			}
			if req.Ptid.Device != 0 && req.Ptid.Device != d.Ordinal {
				continue
			}
			for _, t := range d.Threads {
				if !req.Ptid.matches(d.Ordinal, t.SequentialID) || handled[t] {
					continue
				}
				handled[t] = true
				m.applyResumeRequest(d, t, req, wildcardEligible[d])
			}
		}
	}

	for d, eligible := range wildcardEligible {
		if eligible && d.Session != nil {
			if err := d.Session.Resume(d.WildcardThread()); err != nil {
				d.log.Warnf("wildcard resume failed: %v", err)
			}
		}
	}

	m.wakeUp()
}

// normalizeRequests clears any non-zero signal, since signals are never
// forwarded to the driver.
func normalizeRequests(requests []ResumeRequest, log interface{ Warnf(string, ...any) }) []ResumeRequest {
	out := make([]ResumeRequest, len(requests))
	for i, r := range requests {
		if r.Signal != 0 {
			log.Warnf("resume request for %+v carried signal %d, which is never forwarded; clearing it", r.Ptid, r.Signal)
			r.Signal = 0
		}
		out[i] = r
	}
	return out
}

// wildcardEligibleDevices computes, for each device, whether every
// request touching it is wildcard/pid-only continue-or-step (never
// stop) -- such devices get one wildcard resume call instead of N
// targeted ones.
func (m *Manager) wildcardEligibleDevices(requests []ResumeRequest) map[*Device]bool {
	out := map[*Device]bool{}
	if m.nonStop {
		// Wildcard merging is an all-stop-only optimization: non-stop mode
		// always resumes thread by thread.
		return out
	}
	for _, d := range m.devices {
		eligible := false
		for _, r := range requests {
			if r.Ptid.Device != 0 && r.Ptid.Device != d.Ordinal {
				continue
			}
			if r.Ptid.Thread != 0 || r.Kind == ResumeStop {
				eligible = false
				break
			}
			eligible = true
		}
		if !eligible {
			continue
		}
		if m.deviceHasQualifyingPriorityEvent(d) {
			continue
		}
		out[d] = true
	}
	return out
}

// deviceHasQualifyingPriorityEvent reports whether any thread on d
// already holds a priority wait-status that a continue/step resume
// would need to suppress. A wildcard resume call physically resumes
// every thread on the device regardless of its internal model state, so
// a device in this condition must never be wildcard-collapsed -- doing
// so would resume hardware out from under a thread whose ExecState is
// being kept stopped/held for the debugger to observe, the same global
// abort ze_target::resume performs before merging any wildcard.
func (m *Manager) deviceHasQualifyingPriorityEvent(d *Device) bool {
	for _, t := range d.Threads {
		if m.hasQualifyingPriorityEvent(d, t) {
			return true
		}
	}
	return false
}

func (m *Manager) applyResumeRequest(d *Device, t *threadstate.Thread, req ResumeRequest, wildcardWillHandle bool) {
	if req.Kind != ResumeStop && m.hasQualifyingPriorityEvent(d, t) {
		// All-stop: the event will be reported by the next wait() instead
		// of calling the driver now. Non-stop: only this thread's resume
		// is suppressed. Either way, nothing more to do here.
		t.ResumeState = requestResumeState(req.Kind)
		return
	}

	switch req.Kind {
	case ResumeStop:
		t.ResumeState = threadstate.ResumeStop
		if t.ExecState == threadstate.ExecRunning || t.ExecState == threadstate.ExecUnavailable {
			if d.Session != nil {
				if err := d.Session.Interrupt(t.Hardware); err != nil {
					d.log.WithThread(t.Hardware.String()).Warnf("targeted interrupt failed: %v", err)
				}
			}
		}

	case ResumeStep:
		t.StepRangeStart, t.StepRangeEnd = req.RangeStart, req.RangeEnd
		t.ResumeState = threadstate.ResumeStep
		m.resumeThreadForContinue(d, t, true, wildcardWillHandle)

	case ResumeContinue:
		t.ResumeState = threadstate.ResumeRun
		m.resumeThreadForContinue(d, t, false, wildcardWillHandle)
	}
}

func requestResumeState(kind ResumeKind) threadstate.ResumeState {
	switch kind {
	case ResumeStep:
		return threadstate.ResumeStep
	case ResumeStop:
		return threadstate.ResumeStop
	default:
		return threadstate.ResumeRun
	}
}

// prepareForResuming moves a thread out of stopped/paused/unavailable
// into running, with the nresumed accounting a continue requires; it
// refuses to touch an already-running thread.
func prepareForResuming(d *Device, t *threadstate.Thread) bool {
	switch t.ExecState {
	case threadstate.ExecRunning:
		return false
	case threadstate.ExecStopped, threadstate.ExecPaused, threadstate.ExecUnavailable, threadstate.ExecHeld:
		d.NResumed++
		t.SetRunning()
		return true
	default:
		return false
	}
}

func (m *Manager) resumeThreadForContinue(d *Device, t *threadstate.Thread, step bool, wildcardWillHandle bool) {
	if !prepareForResuming(d, t) {
		return
	}
	if d.Backend != nil && d.Session != nil {
		if err := d.Backend.PrepareThreadResume(t.Regs, d.Session, t.Hardware, step); err != nil {
			if errors.Is(err, gtbackend.ErrAtEndOfThread) {
				t.WaitStatus = threadstate.WaitStatus{Kind: threadstate.WaitUnavailable}
			} else {
				d.log.WithThread(t.Hardware.String()).Warnf("prepare_thread_resume failed: %v", err)
			}
		}
	}
	if err := t.Regs.Flush(); err != nil {
		d.log.WithThread(t.Hardware.String()).Warnf("flushing register cache before resume: %v", err)
	}
	if wildcardWillHandle || d.Session == nil {
		return
	}
	if err := d.Session.Resume(t.Hardware); err != nil {
		d.log.WithThread(t.Hardware.String()).Warnf("targeted resume failed: %v", err)
	}
}

// hasQualifyingPriorityEvent reports whether t already holds a priority
// wait-status that should suppress this resume, re-validating stale
// conditions along the way: a breakpoint stop whose breakpoint has
// since been removed is invalidated rather than honored, and a
// single-step stop that occurred mid-range-step cancels the range
// instead of blocking the resume.
func (m *Manager) hasQualifyingPriorityEvent(d *Device, t *threadstate.Thread) bool {
	if !t.HasPriorityEvent() {
		return false
	}
	if t.StopReason == threadstate.StopSWBreakpoint && d.Backend != nil && d.Session != nil {
		atBP, err := d.Backend.IsAtBreakpoint(t.Regs, d.Session, t.Hardware)
		if err == nil && !atBP {
			t.WaitStatus = threadstate.WaitStatus{Kind: threadstate.WaitNone}
			return false
		}
	}
	if t.StopReason == threadstate.StopSingleStep {
		t.StepRangeStart, t.StepRangeEnd = 0, 0
	}
	return true
}
