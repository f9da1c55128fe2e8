package devicemgr

import "github.com/intel/intelgt-dbgstub/internal/threadstate"

// Ptid addresses a device/thread combination on the wire. Device == 0
// means "every attached device"; Thread == 0 means "every thread of the
// matched device(s)" (the wildcard).
type Ptid struct {
	Device uint32
	Thread uint32
}

// ResumeKind is what a resume request asks of the matched threads.
type ResumeKind int

const (
	ResumeContinue ResumeKind = iota
	ResumeStep
	ResumeStop
)

// ResumeRequest is one entry of the vector the resume planner accepts:
// a (ptid, kind, range, signal) tuple.
type ResumeRequest struct {
	Ptid       Ptid
	Kind       ResumeKind
	RangeStart uint64
	RangeEnd   uint64
	Signal     int32
}

func (p Ptid) matches(deviceOrdinal, threadSeq uint32) bool {
	if p.Device != 0 && p.Device != deviceOrdinal {
		return false
	}
	if p.Thread != 0 && p.Thread != threadSeq {
		return false
	}
	return true
}

// WaitOptions mirrors the flags accepted by wait().
type WaitOptions struct {
	NoHang bool
}

// WaitResult is what wait() returns: the thread or process that has an
// event, and its status.
type WaitResult struct {
	Ptid   Ptid
	Status threadstate.WaitStatus
}
