package devicemgr

import (
	"github.com/intel/intelgt-dbgstub/internal/regcache"
	"github.com/intel/intelgt-dbgstub/internal/threadstate"
	"github.com/intel/intelgt-dbgstub/internal/zedrv"
)

// reselectThreadTdesc runs the optional per-thread register-set query
// each time a thread is observed to stop, mirroring
// ze_target::update_thread_tdesc / select_thread_tdesc: the device's
// tdesc cache is looked up (or populated) by the full descriptor set
// the thread actually reports, and thread_changed is set whenever that
// differs from whatever the thread was carrying before. A session that
// doesn't implement the query leaves the thread on the device's default
// tdesc, which it is already using.
func (m *Manager) reselectThreadTdesc(d *Device, t *threadstate.Thread) {
	querier, ok := d.Session.(zedrv.ThreadRegsetQuerier)
	if !ok {
		return
	}
	regsets, err := querier.ThreadRegsets(t.Hardware)
	if err != nil {
		d.log.WithThread(t.Hardware.String()).Warnf("thread regset query failed: %v", err)
		return
	}

	info, err := d.regsetInfoFor(regsets)
	if err != nil {
		d.log.WithThread(t.Hardware.String()).Warnf("selecting thread tdesc: %v", err)
		return
	}
	if t.Regs != nil && t.Regs.Info() == info {
		return
	}
	t.Regs = regcache.New(d.Session, t.Hardware, info)
	t.ThreadChanged = true
}
