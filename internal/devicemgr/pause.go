package devicemgr

import (
	"github.com/intel/intelgt-dbgstub/internal/threadstate"
)

// PauseAll quiesces every device with resumed threads and promotes their
// stopped-like threads to paused, keeping already-unavailable threads
// distinguishable from ones the debugger actually asked to stop. freeze
// selects whether this call also holds the freeze counter up: passing
// true marks an explicit pause that only a matching UnpauseAll(true)
// will lift; passing false just performs the quiesce itself (wait()'s
// all-stop snapshot uses this to settle every other thread without
// taking out a hold). Either way, the quiesce work is skipped whenever
// the counter reads above 1 after the (possible) increment: a call that
// lands while another hold is already in place is a no-op beyond the
// counter bump.
func (m *Manager) PauseAll(freeze bool) {
	if freeze {
		if m.freeze == ^uint32(0) {
			panic(&fatalError{Op: "pause_all", Msg: "freeze counter overflow"})
		}
		m.freeze++
	}
	if m.freeze > 1 {
		return
	}
	m.quiesceAll()
	m.wakeUp()
}

// quiesceAll is the freeze-counter-independent core of PauseAll: it
// interrupts every still-running device, drains events until nothing is
// resumed, and promotes stopped threads to paused. wait() reuses this
// directly (without touching m.freeze) to present a consistent all-stop
// snapshot for the threads it isn't reporting right now; they stay
// paused until the debugger's next resume request reaches them through
// prepareForResuming.
func (m *Manager) quiesceAll() {
	for _, d := range m.devices {
		if d.Session == nil || d.NResumed == 0 || d.wildcardInterruptOutstanding {
			continue
		}
		if err := d.Session.Interrupt(d.WildcardThread()); err != nil {
			d.log.Warnf("pause_all: wildcard interrupt failed: %v", err)
			continue
		}
		d.wildcardInterruptOutstanding = true
	}

	for {
		anyResumed := false
		for _, d := range m.devices {
			if err := m.drainDeviceEvents(d); err != nil {
				d.log.Warnf("pause_all: draining events: %v", err)
			}
			if d.NResumed > 0 {
				anyResumed = true
			}
		}
		if !anyResumed {
			break
		}
	}

	for _, d := range m.devices {
		for _, t := range d.Threads {
			if t.WaitStatus.Kind == threadstate.WaitNone || t.HasPriorityEvent() {
				continue
			}
			if t.ExecState == threadstate.ExecStopped || t.ExecState == threadstate.ExecHeld {
				t.WaitStatus = threadstate.WaitStatus{Kind: threadstate.WaitNone}
				if t.ExecState == threadstate.ExecStopped {
					_ = t.Pause()
				}
			}
		}
		d.wildcardInterruptOutstanding = false
	}
}

// UnpauseAll is the inverse of PauseAll: unfreeze selects whether this
// call releases an explicit hold taken by PauseAll(true), but the resume
// work below always runs whenever the freeze counter reads 0 or 1 after
// the (possible) decrement — a call that lands while still frozen by
// someone else is a no-op beyond the counter decrement. It resumes
// paused threads individually, leaves stopped/held threads alone (a stop
// the debugger still expects to observe blocks the whole unpause in
// all-stop mode), passes sticky-unavailable threads through
// prepareForResuming for accounting only, and wildcard-resumes the rest.
func (m *Manager) UnpauseAll(unfreeze bool) {
	if unfreeze {
		if m.freeze == 0 {
			panic(&fatalError{Op: "unpause_all", Msg: "freeze counter underflow"})
		}
		m.freeze--
	}
	if m.freeze > 1 {
		return
	}

	for _, d := range m.devices {
		if d.Session == nil {
			continue
		}

		// Classify first, without mutating anything: a stop the debugger
		// still expects to observe on any thread blocks the whole
		// unpause, and must do so before any other thread on the device
		// has been touched -- a thread found blocking late must leave
		// threads classified earlier (e.g. sticky-unavailable ones, whose
		// prepareForResuming already flips ExecState) just as untouched
		// as the ones found blocking first.
		blocked := false
		pausedThreads := map[*threadstate.Thread]bool{}
		stickyThreads := map[*threadstate.Thread]bool{}
		for _, t := range d.Threads {
			switch t.ExecState {
			case threadstate.ExecPaused:
				pausedThreads[t] = true
			case threadstate.ExecStopped, threadstate.ExecHeld:
				if !m.nonStop {
					blocked = true
				}
			case threadstate.ExecUnavailable:
				if t.ResumeState != threadstate.ResumeStop {
					stickyThreads[t] = true
				}
			}
		}
		if blocked {
			continue
		}

		for t := range pausedThreads {
			if err := t.Unpause(); err != nil {
				d.log.Warnf("unpause_all: %v", err)
				continue
			}
			d.NResumed++
			t.SetRunning()
			if err := d.Session.Resume(t.Hardware); err != nil {
				d.log.WithThread(t.Hardware.String()).Warnf("unpause_all: targeted resume failed: %v", err)
			}
		}
		for t := range stickyThreads {
			prepareForResuming(d, t)
		}

		if len(stickyThreads) == 0 {
			if err := d.Session.Resume(d.WildcardThread()); err != nil {
				d.log.Warnf("unpause_all: wildcard resume failed: %v", err)
			}
			continue
		}
		for t := range stickyThreads {
			if err := d.Session.Resume(t.Hardware); err != nil {
				d.log.WithThread(t.Hardware.String()).Warnf("unpause_all: targeted resume failed: %v", err)
			}
		}
	}

	m.wakeUp()
}

// fatalError mirrors the root package's FatalError shape without an
// import-cycle dependency on it; the root target-ops surface recovers
// this panic and re-raises it through the root package's Fatalf.
type fatalError struct {
	Op  string
	Msg string
}

func (e *fatalError) Error() string { return e.Op + ": " + e.Msg }

// FatalOp and FatalMsg let the root target-ops surface recover this panic
// without an import-cycle dependency on the concrete type.
func (e *fatalError) FatalOp() string { return e.Op }
func (e *fatalError) FatalMsg() string { return e.Msg }
