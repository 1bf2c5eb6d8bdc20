package multiplex

import (
	"io"
	"os"
	"testing"
	"time"

	"github.com/bastionhq/sessiongate/internal/logger"
)

func newTestMultiplexer() *Multiplexer {
	return New(logger.New(logger.LevelError, io.Discard))
}

func TestRegisterFiresOnReadability(t *testing.T) {
	m := newTestMultiplexer()

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	defer r.Close()
	defer w.Close()

	fired := make(chan int, 1)
	m.Register(int(r.Fd()), func(fd int) { fired <- fd })

	if _, err := w.Write([]byte("x")); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case fd := <-fired:
		if fd != int(r.Fd()) {
			t.Fatalf("handler fired for fd %d, want %d", fd, r.Fd())
		}
	case <-time.After(3 * time.Second):
		t.Fatal("handler did not fire within 3s")
	}

	m.Unregister(int(r.Fd()))
}

func TestWorkerExitsWhenRegistryEmpties(t *testing.T) {
	m := newTestMultiplexer()

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	defer r.Close()
	defer w.Close()

	m.Register(int(r.Fd()), func(fd int) {})

	m.mu.Lock()
	running := m.running
	m.mu.Unlock()
	if !running {
		t.Fatal("expected worker to be running after first registration")
	}

	m.Unregister(int(r.Fd()))

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		m.mu.Lock()
		running = m.running
		m.mu.Unlock()
		if !running {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("worker did not exit after registry emptied")
}

func TestHandlerPanicDoesNotKillWorker(t *testing.T) {
	m := newTestMultiplexer()

	r1, w1, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	defer r1.Close()
	defer w1.Close()

	r2, w2, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	defer r2.Close()
	defer w2.Close()

	fired := make(chan int, 1)
	m.Register(int(r1.Fd()), func(fd int) { panic("boom") })
	m.Register(int(r2.Fd()), func(fd int) { fired <- fd })

	if _, err := w1.Write([]byte("x")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := w2.Write([]byte("y")); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case fd := <-fired:
		if fd != int(r2.Fd()) {
			t.Fatalf("handler fired for fd %d, want %d", fd, r2.Fd())
		}
	case <-time.After(3 * time.Second):
		t.Fatal("surviving handler did not fire after sibling panicked")
	}

	m.Unregister(int(r1.Fd()))
	m.Unregister(int(r2.Fd()))
}
