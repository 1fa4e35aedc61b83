// Package engine is the readiness notification core of the server. It keeps a bounded
// registry of descriptors and, once per tick, delivers read, write and error events
// to their handlers.
//
// The engine isn't safe for concurrent use: registration, re-arming and dispatching
// all happen on the event loop goroutine.
package engine

import (
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

type Event uint8

const (
	EventRead Event = iota + 1
	EventWrite
	EventError
)

func (e Event) String() string {
	switch e {
	case EventRead:
		return "read"
	case EventWrite:
		return "write"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Handler is an owner of a descriptor registered in the engine.
type Handler interface {
	Fd() int
	// HandleEvent is called once per fired condition. err is set only for EventError
	// and holds the pending socket error.
	HandleEvent(ev Event, err error)
}

// readiness is a platform-independent representation of a fired descriptor.
type readiness struct {
	fd                  int
	read, write, broken bool
	hangup              bool
}

// poller is the platform-specific readiness notification mechanism.
type poller interface {
	add(fd int) error
	// mod sets read and write interest of the descriptor. Errors and hangups are
	// reported regardless.
	mod(fd int, read, write bool) error
	del(fd int) error
	// wait blocks for at most timeout, filling ready. Interrupted waits are reported
	// as unix.EINTR.
	wait(ready []readiness, timeout time.Duration) (int, error)
	close() error
}

var ErrClosed = errors.New("engine is closed")

type Engine struct {
	poller   poller
	handlers []Handler
	writes   []bool
	muted    []bool
	ready    []readiness
	count    int
	closed   bool
}

// New returns an engine capable of tracking descriptors in range [0, maxFds).
func New(maxFds int) (*Engine, error) {
	if maxFds <= 0 {
		return nil, errors.Errorf("engine: bad descriptor capacity %d", maxFds)
	}

	p, err := newPoller(maxFds)
	if err != nil {
		return nil, errors.Wrap(err, "creating poller")
	}

	return &Engine{
		poller:   p,
		handlers: make([]Handler, maxFds),
		writes:   make([]bool, maxFds),
		muted:    make([]bool, maxFds),
		ready:    make([]readiness, min(maxFds, 1024)),
	}, nil
}

// AddFd registers the handler's descriptor with read interest. It fails if the engine
// is full, the descriptor is out of the trackable range or already registered.
func (e *Engine) AddFd(h Handler) bool {
	fd := h.Fd()
	if e.closed || !e.inRange(fd) || e.handlers[fd] != nil || e.count >= len(e.handlers) {
		return false
	}

	if err := e.poller.add(fd); err != nil {
		return false
	}

	e.handlers[fd] = h
	e.writes[fd] = false
	e.muted[fd] = false
	e.count++

	return true
}

// DelFd removes the handler from the engine. Removing a handler which isn't registered
// is a no-op returning false. The registration is always dropped; force makes the call
// succeed even if the kernel refused to forget the descriptor, which happens when it's
// already closed.
func (e *Engine) DelFd(h Handler, force bool) bool {
	fd := h.Fd()
	if !e.inRange(fd) || e.handlers[fd] != h {
		return false
	}

	e.handlers[fd] = nil
	e.writes[fd] = false
	e.muted[fd] = false
	e.count--

	if e.closed {
		return true
	}

	return e.poller.del(fd) == nil || force
}

// WantWrite arms a single write readiness notification for the handler. After it fires,
// the interest is dropped and must be armed again, if needed.
func (e *Engine) WantWrite(h Handler) {
	fd := h.Fd()
	if !e.inRange(fd) || e.handlers[fd] != h || e.writes[fd] {
		return
	}

	if err := e.poller.mod(fd, !e.muted[fd], true); err == nil {
		e.writes[fd] = true
	}
}

// PauseRead stops read readiness notifications for the handler until ResumeRead. Data sent
// by the peer meanwhile stays in the socket buffer. Errors are still delivered.
func (e *Engine) PauseRead(h Handler) {
	e.setRead(h, false)
}

// ResumeRead restores read readiness notifications for the handler.
func (e *Engine) ResumeRead(h Handler) {
	e.setRead(h, true)
}

// ReadPaused reports whether read notifications of the handler are paused.
func (e *Engine) ReadPaused(h Handler) bool {
	return e.HasFd(h) && e.muted[h.Fd()]
}

func (e *Engine) setRead(h Handler, on bool) {
	fd := h.Fd()
	if !e.inRange(fd) || e.handlers[fd] != h || e.muted[fd] != on {
		return
	}

	if err := e.poller.mod(fd, on, e.writes[fd]); err == nil {
		e.muted[fd] = !on
	}
}

// HasFd reports whether the handler is currently registered.
func (e *Engine) HasFd(h Handler) bool {
	fd := h.Fd()
	return e.inRange(fd) && e.handlers[fd] == h
}

// DispatchEvents waits for readiness for at most timeout and delivers fired events. It
// returns the number of descriptors that had something fired. Nothing is delivered to
// a handler which was removed earlier during the same dispatch.
func (e *Engine) DispatchEvents(timeout time.Duration) (int, error) {
	if e.closed {
		return 0, ErrClosed
	}

	n, err := e.poller.wait(e.ready, timeout)
	for err == unix.EINTR {
		n, err = e.poller.wait(e.ready, timeout)
	}

	if err != nil {
		return 0, errors.Wrap(err, "waiting for events")
	}

	for _, r := range e.ready[:n] {
		h := e.handlers[r.fd]
		if h == nil {
			continue
		}

		if r.broken || (r.hangup && !r.read) {
			h.HandleEvent(EventError, socketError(r.fd))
			continue
		}

		if r.read && !e.muted[r.fd] {
			h.HandleEvent(EventRead, nil)
		}

		if r.write && e.handlers[r.fd] == h && e.writes[r.fd] {
			e.writes[r.fd] = false
			_ = e.poller.mod(r.fd, !e.muted[r.fd], false)
			h.HandleEvent(EventWrite, nil)
		}
	}

	return n, nil
}

// MaxFds returns the exclusive upper bound of descriptors the engine can track.
func (e *Engine) MaxFds() int {
	return len(e.handlers)
}

// Count returns the number of registered descriptors.
func (e *Engine) Count() int {
	return e.count
}

// Close releases the poller. Handlers are forgotten, but their descriptors stay open.
func (e *Engine) Close() error {
	if e.closed {
		return nil
	}

	e.closed = true
	clear(e.handlers)
	clear(e.writes)
	clear(e.muted)
	e.count = 0

	return e.poller.close()
}

func (e *Engine) inRange(fd int) bool {
	return fd >= 0 && fd < len(e.handlers)
}

func socketError(fd int) error {
	errno, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	switch {
	case err != nil:
		return err
	case errno != 0:
		return unix.Errno(errno)
	default:
		return unix.ECONNRESET
	}
}
