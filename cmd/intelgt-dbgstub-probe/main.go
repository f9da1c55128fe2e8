// Command intelgt-dbgstub-probe is a smoke-test harness for the target-ops
// surface: it attaches to a synthesized set of devices, prints what it
// enumerated, and detaches. It stands in for the out-of-scope RSP wire
// dispatcher; real debug sessions are driven by that dispatcher, not by
// this CLI.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/intel/intelgt-dbgstub/faketarget"
	intelgtdbg "github.com/intel/intelgt-dbgstub"
	"github.com/intel/intelgt-dbgstub/internal/logging"
	"github.com/intel/intelgt-dbgstub/internal/zedrv"
)

func main() {
	var (
		devices   = flag.Int("devices", 1, "number of synthetic devices to attach to")
		slices    = flag.Uint("slices", 1, "slices per device")
		subslices = flag.Uint("subslices", 2, "subslices per slice")
		eus       = flag.Uint("eus", 4, "EUs per subslice")
		threads   = flag.Uint("threads", 8, "hardware threads per EU")
		nonStop   = flag.Bool("non-stop", false, "attach in non-stop mode")
		verbose   = flag.Bool("v", false, "verbose logging")
	)
	flag.Parse()

	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	topo := zedrv.Topology{
		Slices:            uint32(*slices),
		SubslicesPerSlice: uint32(*subslices),
		EUsPerSubslice:    uint32(*eus),
		ThreadsPerEU:      uint32(*threads),
	}
	driver := faketarget.NewDriver("probe", syntheticNodes(*devices, topo))

	target, pid := intelgtdbg.Attach([]zedrv.Driver{driver}, intelgtdbg.Params{
		Logger:  logger,
		NonStop: *nonStop,
	})
	fmt.Printf("attached, bootstrap pid=%d\n", pid)

	for _, d := range target.DeviceIDs() {
		idStr, err := target.IDStr(d)
		if err != nil {
			fmt.Fprintf(os.Stderr, "id_str(%d): %v\n", d, err)
			continue
		}
		desc, err := target.DescribeDevice(d)
		if err != nil {
			fmt.Fprintf(os.Stderr, "target_description(%d): %v\n", d, err)
			continue
		}
		fmt.Printf("device %d: %s, %d threads, %d regsets\n", d, idStr, desc.Attributes.TotalThreads, len(desc.Regsets))
	}

	for slot, diag := range target.AttachDiagnostics() {
		fmt.Printf("attach diagnostic [%s]: %s\n", slot, diag)
	}

	if err := target.Detach(pid); err != nil {
		fmt.Fprintf(os.Stderr, "detach: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("detached")
}

// syntheticNodes builds n leaf device nodes, each exposing the minimum
// regset set the backend requires and topo's thread layout.
func syntheticNodes(n int, topo zedrv.Topology) []zedrv.DeviceNode {
	nodes := make([]zedrv.DeviceNode, 0, n)
	for i := 0; i < n; i++ {
		props := zedrv.DeviceProperties{
			Name:     fmt.Sprintf("synthetic-gt-%d", i),
			VendorID: 0x8086,
			DeviceID: uint32(0x5690 + i),
			PCISlot:  zedrv.PCISlot{Domain: 0, Bus: uint8(i), Device: 0, Function: 0},
			Topology: topo,
		}
		regsets := []zedrv.RegsetDescriptor{
			{Name: "grf", Type: 1, ByteSize: 4, BitSize: 32, Count: 128, Writable: true},
			{Name: "ce", Type: 2, ByteSize: 4, BitSize: 32, Count: 1, Writable: true},
			{Name: "cr", Type: 3, ByteSize: 4, BitSize: 32, Count: 3, Writable: true},
			{Name: "sr", Type: 4, ByteSize: 4, BitSize: 32, Count: 1, Writable: false},
			{
				Name: "sba", Type: 5, ByteSize: 8, BitSize: 64, Count: 10, Writable: false,
				Fields: map[string]uint32{"isabase": 4},
			},
		}

		session := faketarget.NewSession()
		for _, rs := range regsets {
			session.Regs[rs.Type] = &faketarget.RegsetBuffer{
				ElemSize: int(rs.ByteSize),
				Data:     make([]byte, int(rs.ByteSize)*int(rs.Count)),
			}
		}

		nodes = append(nodes, faketarget.NewLeafDeviceNode(props, regsets, session))
	}
	return nodes
}
