// Package regcache implements the lazy per-thread register cache that
// sits between the wire layer and the vendor driver, translating logical
// register numbers into (regset-type, index) driver calls.
package regcache

import (
	"sort"
	"strings"

	"github.com/intel/intelgt-dbgstub/internal/zedrv"
)

// Entry describes one regset's placement in the flat logical-register
// numbering space.
type Entry struct {
	StartRegno int
	Count      int
	Type       uint32
	ElemSize   uint32
	Writable   bool
	Name       string
	Fields     map[string]uint32
}

// Info binary-searches a thread's regset_info vector for the entry
// containing a given logical register number. It is immutable after
// construction and safe to share across threads with the same
// register-set layout.
type Info struct {
	entries   []Entry
	numRegnos int
}

// NewInfo lays descs out contiguously in declaration order, assigning
// each regset a contiguous block of logical register numbers.
func NewInfo(descs []zedrv.RegsetDescriptor) *Info {
	info := &Info{}
	regno := 0
	for _, d := range descs {
		info.entries = append(info.entries, Entry{
			StartRegno: regno,
			Count:      int(d.Count),
			Type:       d.Type,
			ElemSize:   d.ByteSize,
			Writable:   d.Writable,
			Name:       d.Name,
			Fields:     d.Fields,
		})
		regno += int(d.Count)
	}
	info.numRegnos = regno
	return info
}

// NumRegnos returns the total number of logical registers in this layout.
func (info *Info) NumRegnos() int { return info.numRegnos }

// Lookup finds the regset entry containing regno and the element index
// within that regset.
func (info *Info) Lookup(regno int) (entry Entry, index int, ok bool) {
	i := sort.Search(len(info.entries), func(i int) bool {
		return info.entries[i].StartRegno+info.entries[i].Count > regno
	})
	if i >= len(info.entries) || regno < info.entries[i].StartRegno {
		return Entry{}, 0, false
	}
	e := info.entries[i]
	return e, regno - e.StartRegno, true
}

// RegsetByType returns the entry for a given regset type code, if present.
func (info *Info) RegsetByType(regsetType uint32) (Entry, bool) {
	for _, e := range info.entries {
		if e.Type == regsetType {
			return e, true
		}
	}
	return Entry{}, false
}

// RegnoOf returns the logical register number for element index within
// the regset identified by regsetType (the reverse of Lookup); used by
// the GPU backend to address specific CR0/SBA sub-registers by name.
func (info *Info) RegnoOf(regsetType uint32, index uint32) (int, bool) {
	e, ok := info.RegsetByType(regsetType)
	if !ok || int(index) >= e.Count {
		return 0, false
	}
	return e.StartRegno + int(index), true
}

// EntryByName finds a regset entry by its device-reported name,
// case-insensitively; the GPU backend identifies known regset kinds
// (grf, cr, sba, ...) by name rather than by the driver's opaque type
// code.
func (info *Info) EntryByName(name string) (Entry, bool) {
	for _, e := range info.entries {
		if strings.EqualFold(e.Name, name) {
			return e, true
		}
	}
	return Entry{}, false
}

// RegnoOfNamed is RegnoOf keyed by regset name instead of type code.
func (info *Info) RegnoOfNamed(name string, index uint32) (int, bool) {
	e, ok := info.EntryByName(name)
	if !ok || int(index) >= e.Count {
		return 0, false
	}
	return e.StartRegno + int(index), true
}
