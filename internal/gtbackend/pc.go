package gtbackend

import "fmt"

// PC computes the program counter from the 64-bit SBA isabase register
// and the 32-bit CR0.2 offset: isabase + CR0.2.
func PC(isabase uint64, cr0Word2 uint32) uint64 {
	return isabase + uint64(cr0Word2)
}

// EncodePC validates and splits a requested PC into the CR0.2 value to
// write back, rejecting PCs below isabase or that don't fit in 32 bits
// after subtraction.
func EncodePC(isabase uint64, pc uint64) (uint32, error) {
	if pc < isabase {
		return 0, fmt.Errorf("gtbackend: pc %#x is below isabase %#x", pc, isabase)
	}
	off := pc - isabase
	if off > 0xffffffff {
		return 0, fmt.Errorf("gtbackend: pc %#x does not fit in 32 bits past isabase %#x", pc, isabase)
	}
	return uint32(off), nil
}
