// Package memorybridge selects the (thread, address-space) context used
// by read_memory/write_memory and forwards to the driver session.
package memorybridge

import (
	"fmt"

	"github.com/intel/intelgt-dbgstub/internal/zedrv"
)

// DefaultAddrSpace is the vendor's "default" memory_space_type code;
// the bridge never translates address-space codes, it only passes them
// through.
const DefaultAddrSpace = 0

// SelectContext resolves which (thread, address-space) pair a memory
// access should use. If the thread is stopped, its own tuple is used
// regardless of address space. Otherwise only the default address space
// is permitted, serviced through the device's wildcard thread id. Any
// other combination fails with an error.
func SelectContext(threadStopped bool, thread, deviceWildcard zedrv.ThreadID, addrSpace uint32) (zedrv.ThreadID, uint32, error) {
	if threadStopped {
		return thread, addrSpace, nil
	}
	if addrSpace != DefaultAddrSpace {
		return zedrv.ThreadID{}, 0, fmt.Errorf("memorybridge: thread is not stopped, only address space %d is allowed (got %d)", DefaultAddrSpace, addrSpace)
	}
	return deviceWildcard, DefaultAddrSpace, nil
}

// Read resolves context and reads length bytes at addr.
func Read(session zedrv.Session, threadStopped bool, thread, deviceWildcard zedrv.ThreadID, addrSpace uint32, addr uint64, length int) ([]byte, error) {
	tid, space, err := SelectContext(threadStopped, thread, deviceWildcard, addrSpace)
	if err != nil {
		return nil, err
	}
	return session.ReadMemory(tid, space, addr, length)
}

// Write resolves context and writes data at addr.
func Write(session zedrv.Session, threadStopped bool, thread, deviceWildcard zedrv.ThreadID, addrSpace uint32, addr uint64, data []byte) error {
	tid, space, err := SelectContext(threadStopped, thread, deviceWildcard, addrSpace)
	if err != nil {
		return err
	}
	return session.WriteMemory(tid, space, addr, data)
}
