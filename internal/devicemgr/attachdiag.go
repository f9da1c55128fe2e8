package devicemgr

import "github.com/intel/intelgt-dbgstub/internal/zedrv"

// attachDiagnostic is one device's last unsuccessful attach outcome,
// kept around after Attach returns so a caller can ask "why didn't
// device X show up" without having to re-parse the aggregated error
// Attach itself returned.
type attachDiagnostic struct {
	DeviceName string
	Result     zedrv.AttachResult
	Detail     string
}

// recordAttachFailure remembers the outcome of a failed leaf attach,
// keyed by PCI slot (the one part of a device's identity that survives
// across repeated Attach calls even though ordinals are only assigned
// on success).
func (m *Manager) recordAttachFailure(props zedrv.DeviceProperties, result zedrv.AttachResult, detail string) {
	if m.attachDiagnostics == nil {
		m.attachDiagnostics = map[string]attachDiagnostic{}
	}
	m.attachDiagnostics[props.PCISlot.String()] = attachDiagnostic{
		DeviceName: props.Name,
		Result:     result,
		Detail:     detail,
	}
}

// clearAttachDiagnostic drops a device's retained diagnostic the moment
// it attaches successfully; a diagnostic from a previous, unsuccessful
// Attach call must not linger once the device it describes is healthy.
func (m *Manager) clearAttachDiagnostic(props zedrv.DeviceProperties) {
	delete(m.attachDiagnostics, props.PCISlot.String())
}

// AttachDiagnostics returns a snapshot of every device's last retained
// attach failure, keyed by PCI slot. Devices that have never failed to
// attach, or whose most recent attempt succeeded, are absent.
func (m *Manager) AttachDiagnostics() map[string]string {
	out := make(map[string]string, len(m.attachDiagnostics))
	for key, diag := range m.attachDiagnostics {
		out[key] = diag.Result.String() + ": " + diag.Detail
	}
	return out
}
