// Package multiplex implements the process-wide readiness multiplexer
// described in spec §4.5: a single background worker that waits for
// read-readiness across every registered Guacamole backend socket and
// dispatches each ready event to its owning session's handler.
//
// It is grounded on purpleidea-mgmt/util/socketset's unix.Select-based
// fixed two-descriptor set, generalized here to a dynamic, arbitrarily
// sized registry since a gateway may host many concurrent GuacSessions
// rather than one fixed netlink/pipe pair.
package multiplex

import (
	"sync"
	"time"

	"github.com/bastionhq/sessiongate/internal/logger"
	"golang.org/x/sys/unix"
)

// Handler is invoked when fd becomes readable. A handler that panics
// is recovered and logged; it does not abort the worker.
type Handler func(fd int)

// Multiplexer is a ref-counted, lazily-started readiness loop. The
// zero value is not usable; construct with New.
type Multiplexer struct {
	log *logger.Logger

	mu       sync.Mutex
	handlers map[int]Handler
	running  bool
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func New(log *logger.Logger) *Multiplexer {
	return &Multiplexer{log: log, handlers: make(map[int]Handler)}
}

// Register adds fd to the registry and starts the worker if this is
// the first registration. Idempotent under concurrent callers: only
// one worker goroutine is ever started.
func (m *Multiplexer) Register(fd int, h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.handlers[fd] = h
	if !m.running {
		m.running = true
		m.stopCh = make(chan struct{})
		m.doneCh = make(chan struct{})
		go m.run(m.stopCh, m.doneCh)
	}
}

// Unregister removes fd from the registry. If fd is not present (the
// backend client rotated its descriptor across a reconnect), it
// sweeps the registry for entries whose fd no longer refers to a live
// socket and evicts them; this sweep is best-effort, not race-free.
func (m *Multiplexer) Unregister(fd int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.handlers[fd]; ok {
		delete(m.handlers, fd)
		return
	}

	for candidate := range m.handlers {
		if !fdIsLive(candidate) {
			delete(m.handlers, candidate)
		}
	}
}

func (m *Multiplexer) run(stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	for {
		fdSet, nfd, empty := m.snapshotAndMaybeStop()
		if empty {
			return
		}

		select {
		case <-stopCh:
			return
		default:
		}

		timeout := &unix.Timeval{Sec: 1}
		n, err := unix.Select(nfd, fdSet, nil, nil, timeout)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			if err == unix.EBADF {
				// a registered fd was closed out from under us; its
				// entry stays registered until an Unregister removes
				// or sweeps it, and the loop selects again meanwhile.
				continue
			}
			m.log.Error("multiplexer select failed", map[string]interface{}{"error": err.Error()})
			continue
		}
		if n == 0 {
			continue
		}

		m.dispatch(fdSet)
	}
}

// snapshotAndMaybeStop builds the fd_set to select() on. If the
// registry is empty, it also flips running to false before releasing
// the lock, in the same critical section as the emptiness check — a
// Register arriving between the check and the flip must not be able
// to see running == true and skip starting a new worker (that would
// orphan its handler with no worker left to service it).
func (m *Multiplexer) snapshotAndMaybeStop() (set *unix.FdSet, nfd int, empty bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.handlers) == 0 {
		m.running = false
		return nil, 0, true
	}

	set = &unix.FdSet{}
	for fd := range m.handlers {
		set.Bits[fd/64] |= 1 << uint(fd%64)
		if fd+1 > nfd {
			nfd = fd + 1
		}
	}
	return set, nfd, false
}

func (m *Multiplexer) dispatch(ready *unix.FdSet) {
	m.mu.Lock()
	var fire []struct {
		fd int
		h  Handler
	}
	for fd, h := range m.handlers {
		if ready.Bits[fd/64]&(1<<uint(fd%64)) != 0 {
			fire = append(fire, struct {
				fd int
				h  Handler
			}{fd, h})
		}
	}
	m.mu.Unlock()

	for _, f := range fire {
		m.invoke(f.fd, f.h)
	}
}

func (m *Multiplexer) invoke(fd int, h Handler) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("multiplexer handler panicked", map[string]interface{}{"fd": fd, "panic": r})
		}
	}()
	h(fd)
}

// Stop halts the worker immediately, regardless of registry state. It
// is intended for process shutdown, not per-session teardown (use
// Unregister for that).
func (m *Multiplexer) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	stopCh, doneCh := m.stopCh, m.doneCh
	m.mu.Unlock()

	close(stopCh)
	select {
	case <-doneCh:
	case <-time.After(2 * time.Second):
	}
}

func fdIsLive(fd int) bool {
	_, err := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0)
	return err == nil
}
