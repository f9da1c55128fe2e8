package devicemgr

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/intel/intelgt-dbgstub/internal/threadstate"
	"github.com/intel/intelgt-dbgstub/internal/zedrv"
)

func TestModuleLoadSetsPendingAndAckInMemoryLibraryAcksIt(t *testing.T) {
	mgr, sess := newAttachedManager(t)
	d := mgr.Devices()[0]

	sess.PushEvent(zedrv.NewModuleLoad(0x1000, 0x2000, 0x1000, 0, true))
	require.NoError(t, mgr.drainDeviceEvents(d))

	require.Equal(t, threadstate.WaitUnavailable, d.Process.Pending.Kind)
	require.Empty(t, sess.Acked(), "module_load isn't acked until AckInMemoryLibrary is called")

	require.NoError(t, mgr.AckInMemoryLibrary(d, 0x1000, 0x2000))
	acked := sess.Acked()
	require.Len(t, acked, 1)

	require.Error(t, mgr.AckInMemoryLibrary(d, 0x1000, 0x2000), "already popped, can't ack twice")
}

func TestModuleLoadWithEmptyRangeCarriesNoPending(t *testing.T) {
	mgr, sess := newAttachedManager(t)
	d := mgr.Devices()[0]

	sess.PushEvent(zedrv.NewModuleLoad(0x1000, 0x1000, 0, 0, true))
	require.NoError(t, mgr.drainDeviceEvents(d))

	require.Equal(t, threadstate.WaitNone, d.Process.Pending.Kind)
	require.Len(t, sess.Acked(), 1, "an empty-range module_load is still acked immediately")
}

func TestPageFaultSetsProcessSignalled(t *testing.T) {
	mgr, sess := newAttachedManager(t)
	d := mgr.Devices()[0]

	sess.PushEvent(zedrv.NewPageFault(0xdead0000, 0xfff, 1))
	require.NoError(t, mgr.drainDeviceEvents(d))

	require.Equal(t, threadstate.WaitSignalled, d.Process.Pending.Kind)
	require.EqualValues(t, 11, d.Process.Pending.Signal)
}

func TestPageFaultDoesNotClobberHigherPriorityPending(t *testing.T) {
	mgr, sess := newAttachedManager(t)
	d := mgr.Devices()[0]
	d.Process.Pending = threadstate.WaitStatus{Kind: threadstate.WaitExited, Code: 1}

	sess.PushEvent(zedrv.NewPageFault(0xdead0000, 0xfff, 1))
	require.NoError(t, mgr.drainDeviceEvents(d))

	require.Equal(t, threadstate.WaitExited, d.Process.Pending.Kind)
}

func TestDetachedEventMarksEveryThreadExited(t *testing.T) {
	mgr, sess := newAttachedManager(t)
	d := mgr.Devices()[0]

	sess.PushEvent(zedrv.NewDetached(7))
	require.NoError(t, mgr.drainDeviceEvents(d))

	require.Nil(t, d.Session)
	for _, th := range d.Threads {
		require.Equal(t, threadstate.WaitExited, th.WaitStatus.Kind)
		require.EqualValues(t, 7, th.WaitStatus.Code)
	}
}

func TestThreadStoppedReselectsPerThreadTdescWhenDriverReportsDifferentRegsets(t *testing.T) {
	mgr, sess := newAttachedManager(t)
	d := mgr.Devices()[0]
	target := d.Threads[0]
	other := d.Threads[1]

	target.ExecState = threadstate.ExecRunning
	d.NResumed = 1

	narrowed := []zedrv.RegsetDescriptor{
		{Name: "grf", Type: typeGRF, ByteSize: 4, BitSize: 32, Count: 4, Writable: true},
	}
	sess.ThreadRegsetsByThread[target.Hardware] = narrowed

	sess.PushEvent(zedrv.NewThreadStopped(target.Hardware))
	require.NoError(t, mgr.drainDeviceEvents(d))

	require.True(t, target.ThreadChanged, "a thread whose reported regsets differ from the device default must be flagged changed")
	require.Equal(t, 4, target.Regs.Info().NumRegnos())
	require.False(t, other.ThreadChanged, "a thread the query was never scripted for keeps its existing tdesc untouched")
}

func TestThreadUnavailableEventMarksUnavailable(t *testing.T) {
	mgr, sess := newAttachedManager(t)
	d := mgr.Devices()[0]
	target := d.Threads[0]
	target.ExecState = threadstate.ExecRunning
	d.NResumed = 1

	sess.PushEvent(zedrv.NewThreadUnavailable(target.Hardware))
	require.NoError(t, mgr.drainDeviceEvents(d))

	require.Equal(t, threadstate.ExecUnavailable, target.ExecState)
	require.Equal(t, threadstate.WaitUnavailable, target.WaitStatus.Kind)
	require.Equal(t, uint32(0), d.NResumed)
}
