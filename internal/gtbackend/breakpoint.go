package gtbackend

// breakpointBit locates the software-breakpoint marker bit
// within a decoded instruction word; the encoding is vendor-specific and
// opaque beyond "bit 0 of byte 0 of the compact form", matching how the
// reference debugger treats it as a single flag bit rather than a full
// opcode decode.
const breakpointBit = 0

// IsAtBreakpoint reports whether the instruction bytes read from PC
// encode a software breakpoint. The caller is expected to have already
// attempted a 16-byte read and fallen back to 8 bytes; this function
// only inspects whatever was successfully read.
func IsAtBreakpoint(instr []byte) bool {
	if len(instr) == 0 {
		return false
	}
	return instr[0]&(1<<breakpointBit) != 0
}

// sendOpcode/sendcOpcode are the sub-6-bit opcodes that indicate a
// thread-dispatch-terminating message send.
const (
	sendOpcode  = 0x31
	sendcOpcode = 0x32
	eotBit      = 34
)

// opcodeWord decodes the low 64 bits of an instruction as little-endian,
// which is all IsAtEOT needs to inspect opcode bits [5:0] and bit 34.
func opcodeWord(instr []byte) uint64 {
	var w uint64
	for i := 0; i < len(instr) && i < 8; i++ {
		w |= uint64(instr[i]) << (8 * i)
	}
	return w
}

// IsAtEOT reports whether the instruction at PC is an end-of-thread
// send: opcode bits [5:0] are send(0x31) or sendc(0x32) and bit 34 (the
// EOT flag) is set.
func IsAtEOT(instr []byte) bool {
	if len(instr) < 5 {
		return false
	}
	w := opcodeWord(instr)
	opcode := w & 0x3f
	if opcode != sendOpcode && opcode != sendcOpcode {
		return false
	}
	return w&(1<<eotBit) != 0
}
