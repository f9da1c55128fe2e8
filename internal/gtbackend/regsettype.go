package gtbackend

import (
	"fmt"
	"strings"
)

// powersOfTwo is the ladder of element widths the target description
// format understands.
var powersOfTwo = []uint32{8, 16, 32, 64, 128, 256, 512, 1024, 2048, 4096, 8192}

// ElementType rounds bitWidth up to the next power of two in the
// supported ladder and returns the unsigned-integer type name the
// target description exposes for it (e.g. "uint32" for 32 bits).
func ElementType(bitWidth uint32) (string, error) {
	for _, w := range powersOfTwo {
		if bitWidth <= w {
			return fmt.Sprintf("uint%d", w), nil
		}
	}
	return "", fmt.Errorf("gtbackend: bit width %d exceeds the maximum supported element size", bitWidth)
}

// RegsetKind is a known GPU register set identity; the target
// description names each with a fixed feature/group name.
type RegsetKind int

const (
	RegsetGRF RegsetKind = iota
	RegsetADDR
	RegsetFLAG
	RegsetCE
	RegsetSR
	RegsetCR
	RegsetTDR
	RegsetACC
	RegsetMME
	RegsetSP
	RegsetSBA
	RegsetDBG
	RegsetFC
)

var regsetFeatureNames = map[RegsetKind]string{
	RegsetGRF:  "org.gnu.gdb.intelgt.grf",
	RegsetADDR: "org.gnu.gdb.intelgt.addr",
	RegsetFLAG: "org.gnu.gdb.intelgt.flag",
	RegsetCE:   "org.gnu.gdb.intelgt.ce",
	RegsetSR:   "org.gnu.gdb.intelgt.sr",
	RegsetCR:   "org.gnu.gdb.intelgt.cr",
	RegsetTDR:  "org.gnu.gdb.intelgt.tdr",
	RegsetACC:  "org.gnu.gdb.intelgt.acc",
	RegsetMME:  "org.gnu.gdb.intelgt.mme",
	RegsetSP:   "org.gnu.gdb.intelgt.sp",
	RegsetSBA:  "org.gnu.gdb.intelgt.sba",
	RegsetDBG:  "org.gnu.gdb.intelgt.dbg",
	RegsetFC:   "org.gnu.gdb.intelgt.fc",
}

// FeatureName returns the fixed target-description feature name for a
// known regset kind.
func FeatureName(kind RegsetKind) (string, bool) {
	name, ok := regsetFeatureNames[kind]
	return name, ok
}

var regsetKindByName = map[string]RegsetKind{
	"grf": RegsetGRF, "addr": RegsetADDR, "flag": RegsetFLAG, "ce": RegsetCE,
	"sr": RegsetSR, "cr": RegsetCR, "tdr": RegsetTDR, "acc": RegsetACC,
	"mme": RegsetMME, "sp": RegsetSP, "sba": RegsetSBA, "dbg": RegsetDBG, "fc": RegsetFC,
}

// RegsetKindByName finds the RegsetKind matching a device-reported regset
// name, case-insensitively.
func RegsetKindByName(name string) (RegsetKind, bool) {
	kind, ok := regsetKindByName[strings.ToLower(name)]
	return kind, ok
}

// sbaFieldsV0 is the fixed version-0 field ordering of the SBA regset:
// genstbase, sustbase, dynbase, iobase, isabase, blsustbase, blsastbase,
// btbase, scrbase, scrbase2. isabase is at index 4, the field every
// device must expose.
var sbaFieldsV0 = []string{
	"genstbase", "sustbase", "dynbase", "iobase", "isabase",
	"blsustbase", "blsastbase", "btbase", "scrbase", "scrbase2",
}

// SBAFields returns the fixed SBA field ordering for the given target
// description version. Only version 0 is currently defined.
func SBAFields(version int) ([]string, error) {
	if version != 0 {
		return nil, fmt.Errorf("gtbackend: unsupported SBA layout version %d", version)
	}
	out := make([]string, len(sbaFieldsV0))
	copy(out, sbaFieldsV0)
	return out, nil
}

// IsabaseIndex is the fixed element index of the isabase field within
// the version-0 SBA regset.
const IsabaseIndex = 4
