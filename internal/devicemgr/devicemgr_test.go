package devicemgr

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/intel/intelgt-dbgstub/faketarget"
	"github.com/intel/intelgt-dbgstub/internal/gtbackend"
	"github.com/intel/intelgt-dbgstub/internal/logging"
	"github.com/intel/intelgt-dbgstub/internal/zedrv"
)

// Regset type codes shared by every test in this package.
const (
	typeGRF = 1
	typeCE  = 2
	typeCR  = 3
	typeSR  = 4
	typeSBA = 5
)

func testRegsets() []zedrv.RegsetDescriptor {
	return []zedrv.RegsetDescriptor{
		{Name: "grf", Type: typeGRF, ByteSize: 4, BitSize: 32, Count: 8, Writable: true},
		{Name: "ce", Type: typeCE, ByteSize: 4, BitSize: 32, Count: 1, Writable: true},
		{Name: "cr", Type: typeCR, ByteSize: 4, BitSize: 32, Count: 3, Writable: true},
		{Name: "sr", Type: typeSR, ByteSize: 4, BitSize: 32, Count: 1, Writable: true},
		{
			Name: "sba", Type: typeSBA, ByteSize: 8, BitSize: 64, Count: 10, Writable: false,
			Fields: map[string]uint32{"isabase": gtbackend.IsabaseIndex},
		},
	}
}

// testTopology is small enough to enumerate by hand in test assertions:
// one slice, one subslice, two EUs, one thread each -- two threads total.
func testTopology() zedrv.Topology {
	return zedrv.Topology{Slices: 1, SubslicesPerSlice: 1, EUsPerSubslice: 2, ThreadsPerEU: 1}
}

func newTestSession() *faketarget.Session {
	sess := faketarget.NewSession()
	for _, rs := range testRegsets() {
		sess.Regs[rs.Type] = &faketarget.RegsetBuffer{
			ElemSize: int(rs.ByteSize),
			Data:     make([]byte, int(rs.ByteSize)*int(rs.Count)),
		}
	}
	binary.LittleEndian.PutUint64(sess.Regs[typeSBA].Data[gtbackend.IsabaseIndex*8:], 0x1000_0000)
	return sess
}

func testDeviceProps() zedrv.DeviceProperties {
	return zedrv.DeviceProperties{
		Name:     "test-gt",
		VendorID: 0x8086,
		DeviceID: 0x5690,
		PCISlot:  zedrv.PCISlot{Bus: 1},
		Topology: testTopology(),
	}
}

func testLogger() *logging.Logger {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.LevelError // keep test output quiet
	return logging.NewLogger(cfg)
}

// newUnattachedManager builds a Manager over a single device backed by
// sess, without calling Attach -- tests pre-script sess's event queue to
// cover the attach-time settle sequence themselves.
func newUnattachedManager(sess *faketarget.Session, opts ...Option) *Manager {
	node := faketarget.NewLeafDeviceNode(testDeviceProps(), testRegsets(), sess)
	driver := faketarget.NewDriver("test", []zedrv.DeviceNode{node})
	return NewManager([]zedrv.Driver{driver}, gtbackend.NewGT(), testLogger(), opts...)
}

// setCRWord1 sets bit within CR0.1 (the status word) in sess's register
// buffer for every thread the test cares about (the fake session is
// shared across all hardware thread ids, matching the real driver's
// per-thread register file being addressed by tid).
func setCRWord1Bit(sess *faketarget.Session, bit uint) {
	buf := sess.Regs[typeCR].Data
	word1 := binary.LittleEndian.Uint32(buf[4:8])
	binary.LittleEndian.PutUint32(buf[4:8], word1|(1<<bit))
}

const bitBreakpointStatus = 31

// newAttachedManager attaches with a wildcard ThreadStoppedEvent already
// queued, so every thread settles into stopped(0) -- the steady state a
// real attach reaches once the driver responds to the settle interrupt.
func newAttachedManager(t *testing.T, opts ...Option) (*Manager, *faketarget.Session) {
	t.Helper()
	sess := newTestSession()
	sess.PushEvent(zedrv.NewThreadStopped(zedrv.All))
	mgr := newUnattachedManager(sess, opts...)
	require.NoError(t, mgr.Attach())
	require.Len(t, mgr.Devices(), 1)
	return mgr, sess
}
