package devicemgr

import (
	"fmt"
	"os"
	"strings"

	"github.com/intel/intelgt-dbgstub/internal/gtbackend"
	"github.com/intel/intelgt-dbgstub/internal/logging"
	"github.com/intel/intelgt-dbgstub/internal/regcache"
	"github.com/intel/intelgt-dbgstub/internal/threadstate"
	"github.com/intel/intelgt-dbgstub/internal/wakepipe"
	"github.com/intel/intelgt-dbgstub/internal/zedrv"
)

const (
	envNoAttachDevice    = "ZE_GDB_DO_NOT_ATTACH_TO_DEVICE"
	envNoAttachSubdevice = "ZE_GDB_DO_NOT_ATTACH_TO_SUB_DEVICE"
)

// Manager owns every attached device and drives the attach, event, resume,
// pause/unpause, and wait algorithms behind a single target context.
type Manager struct {
	drivers []zedrv.Driver
	backend gtbackend.Backend
	devices []*Device

	nonStop bool
	wake    *wakepipe.Pipe

	freeze uint32

	// attachDiagnostics retains the last failed attach outcome per PCI
	// slot, surviving across Attach calls and cleared only when that
	// same device later attaches successfully.
	attachDiagnostics map[string]attachDiagnostic

	forbidDevice    bool
	forbidSubdevice bool

	nextOrdinal uint32
	log         *logging.Logger
}

// Option configures a Manager at construction time.
type Option func(*Manager)

// WithNonStop puts the manager in non-stop mode: the all-stop prelude
// and held-state behavior are skipped in this mode.
func WithNonStop(nonStop bool) Option {
	return func(m *Manager) { m.nonStop = nonStop }
}

// WithWakePipe registers an async wake pipe.
func WithWakePipe(p *wakepipe.Pipe) Option {
	return func(m *Manager) { m.wake = p }
}

// WakeUp pokes the async wake pipe, if one is registered, so a wait()
// loop blocked elsewhere rechecks its state instead of waiting for its
// next unrelated retry. Resume, pause_all, and unpause_all call this
// themselves; callers that act on a device outside those paths (e.g.
// request_interrupt) should call it explicitly once the driver call
// completes.
func (m *Manager) WakeUp() {
	if m.wake == nil {
		return
	}
	if err := m.wake.Poke(); err != nil {
		m.log.Warnf("wake pipe poke failed: %v", err)
	}
}

func (m *Manager) wakeUp() { m.WakeUp() }

// NewManager builds a Manager over drivers, reading the two attach-policy
// environment toggles.
func NewManager(drivers []zedrv.Driver, backend gtbackend.Backend, log *logging.Logger, opts ...Option) *Manager {
	m := &Manager{
		drivers:         drivers,
		backend:         backend,
		forbidDevice:    os.Getenv(envNoAttachDevice) != "",
		forbidSubdevice: os.Getenv(envNoAttachSubdevice) != "",
		nextOrdinal:     1,
		log:             log,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Devices returns every device attached so far, including ones since
// detached (those keep their threads but have a nil Session).
func (m *Manager) Devices() []*Device { return m.devices }

// DeviceByOrdinal finds an attached device by its wire-visible ordinal.
func (m *Manager) DeviceByOrdinal(ordinal uint32) *Device {
	for _, d := range m.devices {
		if d.Ordinal == ordinal {
			return d
		}
	}
	return nil
}

// Attach enumerates every driver's device tree, attaches to every leaf
// device or sub-device per the forbid-attach toggles, and (in all-stop
// mode) drains events until every attached device is quiescent.
func (m *Manager) Attach() error {
	var diagnostics []string

	for _, drv := range m.drivers {
		nodes, err := drv.Enumerate()
		if err != nil {
			diagnostics = append(diagnostics, fmt.Sprintf("%s: enumerate: %v", drv.Name(), err))
			continue
		}
		for _, node := range nodes {
			for _, leaf := range m.selectLeaves(node) {
				if err := m.attachLeaf(leaf); err != nil {
					if !errors_isSkip(err) {
						diagnostics = append(diagnostics, err.Error())
					}
				}
			}
		}
	}

	if len(m.devices) == 0 {
		if len(diagnostics) > 0 {
			return fmt.Errorf("devicemgr: attach failed on every device: %s", strings.Join(diagnostics, "; "))
		}
		return fmt.Errorf("devicemgr: no devices found")
	}

	if !m.nonStop {
		if err := m.settleAfterAttach(); err != nil {
			return err
		}
	}
	return nil
}

// skipError marks an unsupported_feature result, which is silently
// dropped rather than accumulated into the attach diagnostic.
type skipError struct{ err error }

func (s *skipError) Error() string { return s.err.Error() }
func (s *skipError) Unwrap() error { return s.err }

func errors_isSkip(err error) bool {
	_, ok := err.(*skipError)
	return ok
}

// selectLeaves applies the forbid-device/forbid-subdevice policy to
// decide which nodes under node are actually attached: if the device
// exposes sub-devices, attach to those instead of the parent -- only
// leaf devices are attached. Two environment toggles let the operator
// forbid attaching to devices or sub-devices.
func (m *Manager) selectLeaves(node zedrv.DeviceNode) []zedrv.DeviceNode {
	hasSubdevices := len(node.Subdevices) > 0
	switch {
	case hasSubdevices && !m.forbidSubdevice:
		return node.Subdevices
	case !hasSubdevices && !m.forbidDevice:
		return []zedrv.DeviceNode{node}
	case hasSubdevices && m.forbidSubdevice && !m.forbidDevice:
		return []zedrv.DeviceNode{node}
	default:
		return nil
	}
}

func (m *Manager) attachLeaf(node zedrv.DeviceNode) error {
	session, result, err := node.Attach()
	if result == zedrv.AttachSuccess {
		if err := m.registerDevice(node, session); err != nil {
			m.recordAttachFailure(node.Properties, zedrv.AttachOtherError, err.Error())
			return err
		}
		m.clearAttachDiagnostic(node.Properties)
		return nil
	}

	detail := "unknown error"
	if err != nil {
		detail = err.Error()
	}
	m.recordAttachFailure(node.Properties, result, detail)

	switch result {
	case zedrv.AttachUnsupportedFeature:
		return &skipError{fmt.Errorf("%s: unsupported device: %v", node.Properties.Name, err)}
	case zedrv.AttachNotReady:
		return fmt.Errorf("%s: driver not ready: %v", node.Properties.Name, err)
	case zedrv.AttachNotAvailable:
		return fmt.Errorf("%s: already attached elsewhere: %v", node.Properties.Name, err)
	default:
		return fmt.Errorf("%s: attach failed: %v", node.Properties.Name, err)
	}
}

func (m *Manager) registerDevice(node zedrv.DeviceNode, session zedrv.Session) error {
	if err := m.backend.IsDeviceSupported(node.Regsets); err != nil {
		return &skipError{err}
	}

	ordinal := m.nextOrdinal
	m.nextOrdinal++

	d := newDevice(ordinal, node.Properties, node.Regsets, session, m.backend, m.log)
	info, err := d.defaultInfo()
	if err != nil {
		return fmt.Errorf("device %d: building target description: %w", ordinal, err)
	}

	if err := m.enumerateThreads(d, info); err != nil {
		return fmt.Errorf("device %d: %w", ordinal, err)
	}

	d.Process.Visible = true
	m.devices = append(m.devices, d)
	return nil
}

// enumerateThreads assigns sequential 1-based thread ids over the
// slice x subslice x eu x thread space.
func (m *Manager) enumerateThreads(d *Device, info *regcache.Info) error {
	topo := d.Props.Topology
	seq := uint32(1)
	for slice := uint32(0); slice < topo.Slices; slice++ {
		for sub := uint32(0); sub < topo.SubslicesPerSlice; sub++ {
			for eu := uint32(0); eu < topo.EUsPerSubslice; eu++ {
				for thr := uint32(0); thr < topo.ThreadsPerEU; thr++ {
					if seq == 0 {
						return fmt.Errorf("thread id sequence overflowed")
					}
					hw := zedrv.ThreadID{Slice: slice, Subslice: sub, EU: eu, Thread: thr}
					cache := regcache.New(d.Session, hw, info)
					th := threadstate.NewThread(d.Ordinal, seq, hw, cache)
					d.Threads = append(d.Threads, th)
					seq++
				}
			}
		}
	}
	d.NThreads = uint32(len(d.Threads))
	return nil
}

// settleAfterAttach issues a wildcard interrupt on every device and
// drains events until nresumed == 0 everywhere, so the first wait() can
// report a stable stopped state.
func (m *Manager) settleAfterAttach() error {
	for _, d := range m.devices {
		if err := d.Session.Interrupt(d.WildcardThread()); err != nil {
			d.log.Warnf("wildcard interrupt after attach failed: %v", err)
			continue
		}
		d.wildcardInterruptOutstanding = true
	}
	for {
		anyResumed := false
		for _, d := range m.devices {
			if err := m.drainDeviceEvents(d); err != nil {
				d.log.Warnf("draining events after attach: %v", err)
			}
			if d.NResumed > 0 {
				anyResumed = true
			}
		}
		if !anyResumed {
			for _, d := range m.devices {
				d.wildcardInterruptOutstanding = false
			}
			return nil
		}
	}
}

// Detach clears pending wait-statuses, resumes every thread, detaches
// from the driver, and marks every thread exited.
func (m *Manager) Detach(d *Device) error {
	for _, t := range d.Threads {
		t.WaitStatus = threadstate.WaitStatus{Kind: threadstate.WaitNone}
	}
	d.Process.Pending = threadstate.WaitStatus{Kind: threadstate.WaitNone}

	if d.Session != nil {
		if err := d.Session.Resume(d.WildcardThread()); err != nil {
			d.log.Warnf("resume-all before detach failed: %v", err)
		}
		if err := d.Session.Detach(); err != nil {
			d.log.Warnf("driver detach failed: %v", err)
		}
	}

	for _, t := range d.Threads {
		t.SetExited(0)
	}
	d.Session = nil
	return nil
}
