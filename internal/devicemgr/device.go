// Package devicemgr is the multi-device core: device/process lifecycle,
// event translation, the resume planner, pause_all/unpause_all, and the
// wait() search loop. It is the "generic multi-device core" half of the
// two-layer target-ops design; internal/gtbackend supplies the
// device-family-specific half.
package devicemgr

import (
	"github.com/intel/intelgt-dbgstub/internal/gtbackend"
	"github.com/intel/intelgt-dbgstub/internal/logging"
	"github.com/intel/intelgt-dbgstub/internal/regcache"
	"github.com/intel/intelgt-dbgstub/internal/threadstate"
	"github.com/intel/intelgt-dbgstub/internal/zedrv"
)

// pendingModuleLoad is one module_load event awaiting acknowledgement by
// the loaded-dll collaborator.
type pendingModuleLoad struct {
	Begin, End uint64
}

// Device is one attached leaf GPU (or GPU sub-device).
type Device struct {
	Ordinal uint32
	Props   zedrv.DeviceProperties
	Regsets []zedrv.RegsetDescriptor

	Session zedrv.Session // nil once detached
	Backend gtbackend.Backend

	tdescCache map[string]*regcache.Info

	Threads []*threadstate.Thread
	Process *Process

	NThreads    uint32
	NResumed    uint32
	NInterrupts uint32

	ackPending []pendingModuleLoad

	wildcardInterruptOutstanding bool

	log *logging.Logger
}

// Process is the single process modelled for one device. The device
// ordinal doubles as the wire-visible process id.
type Process struct {
	Device  *Device
	Visible bool
	Pending threadstate.WaitStatus
}

func newDevice(ordinal uint32, props zedrv.DeviceProperties, regsets []zedrv.RegsetDescriptor, session zedrv.Session, backend gtbackend.Backend, log *logging.Logger) *Device {
	d := &Device{
		Ordinal:    ordinal,
		Props:      props,
		Regsets:    regsets,
		Session:    session,
		Backend:    backend,
		tdescCache: map[string]*regcache.Info{},
		log:        log.WithDevice(ordinal),
	}
	d.Process = &Process{Device: d, Visible: false}
	return d
}

// regsetInfoFor returns the cached regcache.Info for descs, building it
// once per distinct descriptor set: a device keeps a small cache mapping
// descriptor-set -> (tdesc, regset-info).
func (d *Device) regsetInfoFor(descs []zedrv.RegsetDescriptor) (*regcache.Info, error) {
	key := regsetSignature(descs)
	if info, ok := d.tdescCache[key]; ok {
		return info, nil
	}
	info, err := d.Backend.CreateTdesc(descs)
	if err != nil {
		return nil, err
	}
	d.tdescCache[key] = info
	return info, nil
}

func regsetSignature(descs []zedrv.RegsetDescriptor) string {
	sig := ""
	for _, d := range descs {
		sig += d.Name + ":" + itoa(d.Type) + ":" + itoa(d.Count) + ";"
	}
	return sig
}

func itoa(v uint32) string {
	if v == 0 {
		return "0"
	}
	var buf [10]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

// defaultInfo is the device's "any" target description used for newly
// enumerated threads before their first stop.
func (d *Device) defaultInfo() (*regcache.Info, error) {
	return d.regsetInfoFor(d.Regsets)
}

// ThreadByHardware finds the thread with the given internal address.
func (d *Device) ThreadByHardware(hw zedrv.ThreadID) *threadstate.Thread {
	for _, t := range d.Threads {
		if t.Hardware == hw {
			return t
		}
	}
	return nil
}

// ThreadBySequentialID finds the thread with the given externally
// visible 1-based id.
func (d *Device) ThreadBySequentialID(id uint32) *threadstate.Thread {
	for _, t := range d.Threads {
		if t.SequentialID == id {
			return t
		}
	}
	return nil
}

// WildcardThread is the thread identity used to address "every thread"
// on this device when talking to the driver.
func (d *Device) WildcardThread() zedrv.ThreadID {
	return zedrv.All
}
