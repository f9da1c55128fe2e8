package zedrv

import "fmt"

// ThreadID identifies one hardware EU thread within a device by its
// internal (slice, subslice, eu, thread) coordinates.
type ThreadID struct {
	Slice    uint32
	Subslice uint32
	EU       uint32
	Thread   uint32
}

// wildcardComponent is the all-ones sentinel used in each field of the
// wildcard thread id.
const wildcardComponent = ^uint32(0)

// All is the wildcard thread id: "every thread on this device".
var All = ThreadID{Slice: wildcardComponent, Subslice: wildcardComponent, EU: wildcardComponent, Thread: wildcardComponent}

// IsWildcard reports whether t is the all-UINT32_MAX wildcard tuple.
func (t ThreadID) IsWildcard() bool {
	return t == All
}

func (t ThreadID) String() string {
	if t.IsWildcard() {
		return "*.*.*.*"
	}
	return fmt.Sprintf("%d.%d.%d.%d", t.Slice, t.Subslice, t.EU, t.Thread)
}
