package intelgtdbg

import "github.com/intel/intelgt-dbgstub/internal/gtbackend"

// TargetDescription is the in-memory record shipped to the debugger
// describing one device's architecture and register layout.
type TargetDescription struct {
	Architecture string
	OSABI        string
	Attributes   DeviceAttributes
	Regsets      []RegsetFeature
}

// DeviceAttributes is the fixed set of device-identifying attributes
// carried in a TargetDescription.
type DeviceAttributes struct {
	VendorID     uint32
	TargetID     uint32
	SubdeviceID  *uint32
	PCISlot      string
	TotalCores   uint64
	TotalThreads uint64
	DeviceName   string
}

// RegsetFeature is one named register-set feature block.
type RegsetFeature struct {
	FeatureName string
	ElementType string
	Count       uint32
	Writable    bool
}

// DescribeDevice assembles the target description for pid's current
// regset layout.
func (t *Target) DescribeDevice(pid uint32) (*TargetDescription, error) {
	d := t.manager.DeviceByOrdinal(pid)
	if d == nil {
		return nil, NewDeviceError("target_description", pid, ErrCodeDeviceNotFound, "no such device")
	}

	idStr, err := t.IDStr(pid)
	if err != nil {
		return nil, err
	}

	var subID *uint32
	if d.Props.IsSubdevice {
		v := d.Props.SubdeviceID
		subID = &v
	}

	desc := &TargetDescription{
		Architecture: "intelgt",
		OSABI:        "GNU/Linux",
		Attributes: DeviceAttributes{
			VendorID:     d.Props.VendorID,
			TargetID:     d.Props.DeviceID,
			SubdeviceID:  subID,
			PCISlot:      idStr,
			TotalCores:   uint64(d.Props.Topology.Slices) * uint64(d.Props.Topology.SubslicesPerSlice) * uint64(d.Props.Topology.EUsPerSubslice),
			TotalThreads: d.Props.Topology.ThreadCount(),
			DeviceName:   d.Props.Name,
		},
	}

	for _, rs := range d.Regsets {
		kind, ok := gtbackend.RegsetKindByName(rs.Name)
		if !ok {
			continue
		}
		featureName, ok := gtbackend.FeatureName(kind)
		if !ok {
			continue
		}
		elemType, err := gtbackend.ElementType(rs.BitSize)
		if err != nil {
			t.log.Warnf("target_description: regset %q: %v", rs.Name, err)
			continue
		}
		desc.Regsets = append(desc.Regsets, RegsetFeature{
			FeatureName: featureName,
			ElementType: elemType,
			Count:       rs.Count,
			Writable:    rs.Writable,
		})
	}

	return desc, nil
}
