// Package threadstate implements the per-EU-thread state machine: resume
// intent, execution state, stop reason, and the bookkeeping the event
// loop and resume planner need to drive it.
package threadstate

import (
	"fmt"

	"github.com/intel/intelgt-dbgstub/internal/regcache"
	"github.com/intel/intelgt-dbgstub/internal/zedrv"
)

// ResumeState is what the debugger last asked of a thread.
type ResumeState int

const (
	ResumeNone ResumeState = iota
	ResumeStop
	ResumeRun
	ResumeStep
)

func (s ResumeState) String() string {
	switch s {
	case ResumeNone:
		return "none"
	case ResumeStop:
		return "stop"
	case ResumeRun:
		return "run"
	case ResumeStep:
		return "step"
	default:
		return "invalid"
	}
}

// ExecState is what the stub believes a thread is currently doing.
type ExecState int

const (
	ExecUnknown ExecState = iota
	ExecStopped
	ExecHeld
	ExecRunning
	ExecUnavailable
	ExecPaused
)

func (s ExecState) String() string {
	switch s {
	case ExecUnknown:
		return "unknown"
	case ExecStopped:
		return "stopped"
	case ExecHeld:
		return "held"
	case ExecRunning:
		return "running"
	case ExecUnavailable:
		return "unavailable"
	case ExecPaused:
		return "paused"
	default:
		return "invalid"
	}
}

// StopReason classifies why a stopped (or held) thread stopped. Only
// meaningful when ExecState is stopped, held, or (transitionally) paused.
type StopReason int

const (
	StopNone StopReason = iota
	StopSWBreakpoint
	StopSingleStep
)

func (r StopReason) String() string {
	switch r {
	case StopNone:
		return "none"
	case StopSWBreakpoint:
		return "sw_breakpoint"
	case StopSingleStep:
		return "single_step"
	default:
		return "invalid"
	}
}

// WaitKind is the kind of a pending wait-status.
type WaitKind int

const (
	WaitNone WaitKind = iota
	WaitStopped
	WaitUnavailable
	WaitExited
	WaitSignalled
)

// WaitStatus is at most one pending reportable event for a thread or
// process. WaitNone means no pending event.
type WaitStatus struct {
	Kind   WaitKind
	Signal int32 // valid for Stopped/Signalled
	Code   int32 // valid for Exited
}

// IsPriority is a coarse first-pass filter: it excludes unavailable
// outright but does not apply the stopped(TRAP)-needs-a-stop-intent
// refinement in Thread.HasPriorityEvent below.
func (w WaitStatus) IsPriority() bool {
	switch w.Kind {
	case WaitStopped, WaitExited, WaitSignalled:
		return true
	default:
		return false
	}
}

// trapSignal is the POSIX SIGTRAP value, needed here only to apply the
// priority refinement below without this package depending on the GPU
// backend's signal type.
const trapSignal = 5

// Thread is one hardware EU thread's full state-machine record.
// SequentialID is the externally visible 1-based thread id within its
// device; Hardware is the internal (slice, subslice, eu, thread) address.
type Thread struct {
	DeviceOrdinal uint32
	SequentialID  uint32
	Hardware      zedrv.ThreadID

	ResumeState ResumeState
	ExecState   ExecState
	StopReason  StopReason
	WaitStatus  WaitStatus

	StepRangeStart uint64
	StepRangeEnd   uint64

	ThreadChanged bool

	Regs *regcache.Cache
}

// NewThread creates a freshly-enumerated thread; threads start out
// running with no resume intent recorded yet.
func NewThread(deviceOrdinal, sequentialID uint32, hw zedrv.ThreadID, regs *regcache.Cache) *Thread {
	return &Thread{
		DeviceOrdinal: deviceOrdinal,
		SequentialID:  sequentialID,
		Hardware:      hw,
		ResumeState:   ResumeNone,
		ExecState:     ExecRunning,
		StopReason:    StopNone,
		Regs:          regs,
	}
}

// IsStoppedLike reports whether ExecState carries a meaningful
// StopReason: stopped, held, and paused always have one.
func (t *Thread) IsStoppedLike() bool {
	switch t.ExecState {
	case ExecStopped, ExecHeld, ExecPaused:
		return true
	default:
		return false
	}
}

// SetStopped transitions the thread into the stopped state with the
// given reason, discarding the register cache so it is refreshed on
// next access.
func (t *Thread) SetStopped(reason StopReason, signal int32) {
	t.ExecState = ExecStopped
	t.StopReason = reason
	t.WaitStatus = WaitStatus{Kind: WaitStopped, Signal: signal}
	if t.Regs != nil {
		t.Regs.Invalidate()
	}
}

// SetHeld transitions to held: an unavailable thread with an outstanding
// stop request that must not be surfaced until the debugger observes it.
func (t *Thread) SetHeld(reason StopReason, signal int32) {
	t.ExecState = ExecHeld
	t.StopReason = reason
	t.WaitStatus = WaitStatus{Kind: WaitStopped, Signal: signal}
}

// SetUnavailable transitions to unavailable and clears any stop reason.
func (t *Thread) SetUnavailable() {
	t.ExecState = ExecUnavailable
	t.StopReason = StopNone
	t.WaitStatus = WaitStatus{Kind: WaitUnavailable}
}

// SetRunning marks the thread running with no pending wait-status.
func (t *Thread) SetRunning() {
	t.ExecState = ExecRunning
	t.WaitStatus = WaitStatus{Kind: WaitNone}
}

// SetExited marks the thread exited with the given code, the terminal
// state reached only via detach.
func (t *Thread) SetExited(code int32) {
	t.ExecState = ExecUnknown
	t.WaitStatus = WaitStatus{Kind: WaitExited, Code: code}
}

// Pause transitions stopped or held into paused; only pause_all may
// call this, and only on a thread that was already stopped or held.
func (t *Thread) Pause() error {
	if t.ExecState != ExecStopped && t.ExecState != ExecHeld {
		return fmt.Errorf("threadstate: cannot pause thread in state %v", t.ExecState)
	}
	t.ExecState = ExecPaused
	return nil
}

// Unpause returns a paused thread to stopped; the inverse of Pause.
func (t *Thread) Unpause() error {
	if t.ExecState != ExecPaused {
		return fmt.Errorf("threadstate: cannot unpause thread in state %v", t.ExecState)
	}
	t.ExecState = ExecStopped
	return nil
}

// ClearResumeState clears the resume intent; used by the all-stop
// prelude before processing a fresh resume request.
func (t *Thread) ClearResumeState() {
	t.ResumeState = ResumeNone
}

// HasPriorityEvent applies the exact wait() priority rule: stopped(TRAP)
// with no stop_reason is priority only if the thread's resume intent was
// stop; stopped(0) with no reason is never priority; unavailable is
// never priority; anything else pending is priority.
func (t *Thread) HasPriorityEvent() bool {
	switch t.WaitStatus.Kind {
	case WaitNone, WaitUnavailable:
		return false
	case WaitStopped:
		if t.StopReason != StopNone {
			return true
		}
		if t.WaitStatus.Signal == trapSignal {
			return t.ResumeState == ResumeStop
		}
		return t.WaitStatus.Signal != 0
	default:
		return true
	}
}

// InStepRange reports whether pc lies inside [StepRangeStart,
// StepRangeEnd) — a non-empty range means range-stepping is active and
// the event should be dropped rather than reported.
func (t *Thread) InStepRange(pc uint64) bool {
	if t.StepRangeStart == t.StepRangeEnd {
		return false
	}
	return pc >= t.StepRangeStart && pc < t.StepRangeEnd
}
