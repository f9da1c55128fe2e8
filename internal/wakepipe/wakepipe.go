// Package wakepipe implements the async wake pipe that lets any
// operation ask a blocked wait() loop to recheck its state.
package wakepipe

import (
	"errors"

	"golang.org/x/sys/unix"
)

// Pipe is a non-blocking self-pipe registered with the outer event loop.
// Poke writes a single byte (EAGAIN-tolerant, since a pending byte
// already suffices to wake a waiter); Drain empties it at the start of
// each wait retry.
type Pipe struct {
	readFD  int
	writeFD int
	closed  bool
}

// New opens the pipe pair with both ends non-blocking. Both ends come
// from a single Pipe2 call, so a failure leaves nothing open.
func New() (*Pipe, error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return nil, err
	}
	return &Pipe{readFD: fds[0], writeFD: fds[1]}, nil
}

// ReadFD is the descriptor the outer event loop should poll for
// readability.
func (p *Pipe) ReadFD() int { return p.readFD }

// Poke writes one byte, waking any waiter blocked reading ReadFD. EAGAIN
// (the pipe already has a pending byte) is not an error.
func (p *Pipe) Poke() error {
	_, err := unix.Write(p.writeFD, []byte{0})
	if errors.Is(err, unix.EAGAIN) {
		return nil
	}
	return err
}

// Drain empties the pipe; call at the start of each wait retry so a
// stale wake byte doesn't cause a spurious immediate return on the next
// blocking read.
func (p *Pipe) Drain() error {
	buf := make([]byte, 64)
	for {
		_, err := unix.Read(p.readFD, buf)
		if err == nil {
			continue
		}
		if errors.Is(err, unix.EAGAIN) {
			return nil
		}
		return err
	}
}

// Close closes both ends. Safe to call more than once.
func (p *Pipe) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	err1 := unix.Close(p.readFD)
	err2 := unix.Close(p.writeFD)
	if err1 != nil {
		return err1
	}
	return err2
}
