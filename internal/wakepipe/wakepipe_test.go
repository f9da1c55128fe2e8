package wakepipe

import (
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

func TestPokeAndDrain(t *testing.T) {
	p, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close()

	if err := p.Poke(); err != nil {
		t.Fatalf("Poke: %v", err)
	}

	fds := []unix.PollFd{{Fd: int32(p.ReadFD()), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, int(time.Second.Milliseconds()))
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if n != 1 || fds[0].Revents&unix.POLLIN == 0 {
		t.Fatal("expected the read end to be readable after Poke")
	}

	if err := p.Drain(); err != nil {
		t.Fatalf("Drain: %v", err)
	}

	fds[0].Revents = 0
	n, err = unix.Poll(fds, 10)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if n != 0 {
		t.Error("expected the pipe to be empty after Drain")
	}
}

func TestPokeIsIdempotentUnderEAGAIN(t *testing.T) {
	p, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close()

	for i := 0; i < 1000; i++ {
		if err := p.Poke(); err != nil {
			t.Fatalf("Poke #%d: %v", i, err)
		}
	}
}

func TestDrainOnEmptyPipeIsNoop(t *testing.T) {
	p, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close()

	if err := p.Drain(); err != nil {
		t.Fatalf("Drain on empty pipe: %v", err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	p, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("second Close should be a no-op: %v", err)
	}
}
