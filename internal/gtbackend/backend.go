package gtbackend

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/intel/intelgt-dbgstub/internal/regcache"
	"github.com/intel/intelgt-dbgstub/internal/threadstate"
	"github.com/intel/intelgt-dbgstub/internal/zedrv"
)

// requiredRegsets is the minimum regset set every supported device must
// expose: GRF, CE, CR, SR, and an SBA regset carrying a field named
// isabase at index 4.
var requiredRegsets = []string{"grf", "ce", "cr", "sr", "sba"}

const (
	nameCR  = "cr"
	nameSBA = "sba"
)

// ErrAtEndOfThread is returned by PrepareThreadResume when asked to step
// a thread that has reached end-of-thread. The caller still resumes the
// thread, whose dispatch then ends, and synthesizes an unavailable
// wait-status in place of the step completion that is never reported.
var ErrAtEndOfThread = errors.New("gtbackend: thread is at end-of-thread, cannot step")

// Backend is the device-family-specific half of the target-ops surface:
// everything that knows about CR0 layout, SBA-based PC computation, and
// breakpoint/EOT opcode decoding.
type Backend interface {
	IsDeviceSupported(descs []zedrv.RegsetDescriptor) error
	CreateTdesc(descs []zedrv.RegsetDescriptor) (*regcache.Info, error)
	ReadPC(cache *regcache.Cache) (uint64, error)
	WritePC(cache *regcache.Cache, pc uint64) error
	GetStopReason(cache *regcache.Cache, lastResumeWasStep bool) (threadstate.StopReason, Signal, error)
	PrepareThreadResume(cache *regcache.Cache, session zedrv.Session, tid zedrv.ThreadID, step bool) error
	IsAtBreakpoint(cache *regcache.Cache, session zedrv.Session, tid zedrv.ThreadID) (bool, error)
}

// GT implements Backend for Intel GT compute devices.
type GT struct{}

// NewGT constructs the GT backend. It is stateless; all state lives in
// the per-thread register cache passed to each call.
func NewGT() *GT { return &GT{} }

// IsDeviceSupported checks the minimum regset set and the SBA isabase
// field.
func (b *GT) IsDeviceSupported(descs []zedrv.RegsetDescriptor) error {
	byName := map[string]zedrv.RegsetDescriptor{}
	for _, d := range descs {
		byName[strings.ToLower(d.Name)] = d
	}
	for _, name := range requiredRegsets {
		if _, ok := byName[name]; !ok {
			return fmt.Errorf("gtbackend: device is missing required regset %q", name)
		}
	}
	sba := byName[nameSBA]
	idx, ok := sba.Fields["isabase"]
	if !ok {
		return fmt.Errorf("gtbackend: sba regset has no isabase field")
	}
	if idx != IsabaseIndex {
		return fmt.Errorf("gtbackend: sba isabase field is at index %d, want %d", idx, IsabaseIndex)
	}
	return nil
}

// CreateTdesc builds the regset-info layout for descs; the wire-facing
// target description itself (XML feature groups etc.) is assembled by
// the caller from this layout plus ElementType/FeatureName.
func (b *GT) CreateTdesc(descs []zedrv.RegsetDescriptor) (*regcache.Info, error) {
	return regcache.NewInfo(descs), nil
}

func readCRWord(cache *regcache.Cache, index uint32) (uint32, int, error) {
	regno, ok := cache.Info().RegnoOfNamed(nameCR, index)
	if !ok {
		return 0, 0, fmt.Errorf("gtbackend: cr regset has no element %d", index)
	}
	data, err := cache.Get(regno)
	if err != nil {
		return 0, regno, err
	}
	if len(data) < 4 {
		return 0, regno, fmt.Errorf("gtbackend: cr.%d is narrower than 4 bytes", index)
	}
	return binary.LittleEndian.Uint32(data), regno, nil
}

func readISABase(cache *regcache.Cache) (uint64, error) {
	regno, ok := cache.Info().RegnoOfNamed(nameSBA, IsabaseIndex)
	if !ok {
		return 0, fmt.Errorf("gtbackend: sba regset has no isabase element")
	}
	data, err := cache.Get(regno)
	if err != nil {
		return 0, err
	}
	if len(data) < 8 {
		return 0, fmt.Errorf("gtbackend: isabase is narrower than 8 bytes")
	}
	return binary.LittleEndian.Uint64(data), nil
}

// ReadPC returns isabase + CR0.2.
func (b *GT) ReadPC(cache *regcache.Cache) (uint64, error) {
	isabase, err := readISABase(cache)
	if err != nil {
		return 0, err
	}
	word2, _, err := readCRWord(cache, 2)
	if err != nil {
		return 0, err
	}
	return PC(isabase, word2), nil
}

// WritePC validates and stages a new CR0.2 value.
func (b *GT) WritePC(cache *regcache.Cache, pc uint64) error {
	isabase, err := readISABase(cache)
	if err != nil {
		return err
	}
	word2, err := EncodePC(isabase, pc)
	if err != nil {
		return err
	}
	regno, ok := cache.Info().RegnoOfNamed(nameCR, 2)
	if !ok {
		return fmt.Errorf("gtbackend: cr regset has no element 2")
	}
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, word2)
	return cache.Set(regno, buf)
}

// GetStopReason classifies and clears the CR0.1 status bits.
func (b *GT) GetStopReason(cache *regcache.Cache, lastResumeWasStep bool) (threadstate.StopReason, Signal, error) {
	word0, regno0, err := readCRWord(cache, 0)
	if err != nil {
		return threadstate.StopNone, SignalNone, err
	}
	word1, regno1, err := readCRWord(cache, 1)
	if err != nil {
		return threadstate.StopNone, SignalNone, err
	}
	word2, _, err := readCRWord(cache, 2)
	if err != nil {
		return threadstate.StopNone, SignalNone, err
	}

	out, kind, signal := ClassifyStop(CR0{word0, word1, word2})
	if out.Word1 != word1 {
		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, out.Word1)
		if err := cache.Set(regno1, buf); err != nil {
			return threadstate.StopNone, SignalNone, err
		}
	}
	_ = regno0

	switch kind {
	case ReasonBreakpointOrStep:
		if lastResumeWasStep {
			return threadstate.StopSingleStep, signal, nil
		}
		return threadstate.StopSWBreakpoint, signal, nil
	case ReasonIllegalOpcode, ReasonForceOrHalt:
		return threadstate.StopNone, signal, nil
	default:
		return threadstate.StopNone, SignalNone, nil
	}
}

func readInstructionAtPC(session zedrv.Session, tid zedrv.ThreadID, pc uint64) ([]byte, error) {
	instr, err := session.ReadMemory(tid, 0, pc, 16)
	if err == nil {
		return instr, nil
	}
	instr, err2 := session.ReadMemory(tid, 0, pc, 8)
	if err2 == nil {
		return instr, nil
	}
	return nil, err
}

// PrepareThreadResume encodes the continue/step request bits, reading
// the instruction at the current PC to determine breakpoint-suppress
// and end-of-thread handling.
func (b *GT) PrepareThreadResume(cache *regcache.Cache, session zedrv.Session, tid zedrv.ThreadID, step bool) error {
	pc, err := b.ReadPC(cache)
	if err != nil {
		return err
	}
	instr, err := readInstructionAtPC(session, tid, pc)
	atBreakpoint, atEOT := false, false
	if err == nil {
		atBreakpoint = IsAtBreakpoint(instr)
		atEOT = IsAtEOT(instr)
	}

	word0, regno0, err := readCRWord(cache, 0)
	if err != nil {
		return err
	}
	word1, regno1, err := readCRWord(cache, 1)
	if err != nil {
		return err
	}

	out, ok := PrepareResume(CR0{word0, word1, 0}, step, atBreakpoint, atEOT)
	if !ok {
		return ErrAtEndOfThread
	}

	buf0 := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf0, out.Word0)
	if err := cache.Set(regno0, buf0); err != nil {
		return err
	}
	buf1 := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf1, out.Word1)
	return cache.Set(regno1, buf1)
}

// IsAtBreakpoint reports whether the thread's current PC holds a
// software-breakpoint opcode; used to re-validate a breakpoint stop
// whose breakpoint may since have been removed.
func (b *GT) IsAtBreakpoint(cache *regcache.Cache, session zedrv.Session, tid zedrv.ThreadID) (bool, error) {
	pc, err := b.ReadPC(cache)
	if err != nil {
		return false, err
	}
	instr, err := readInstructionAtPC(session, tid, pc)
	if err != nil {
		return false, nil
	}
	return IsAtBreakpoint(instr), nil
}
