package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

type recorder struct {
	fd     int
	events []Event
	errs   []error
	onRead func()
}

func (r *recorder) Fd() int {
	return r.fd
}

func (r *recorder) HandleEvent(ev Event, err error) {
	r.events = append(r.events, ev)
	r.errs = append(r.errs, err)
	if ev == EventRead && r.onRead != nil {
		r.onRead()
	}
}

func socketpair(t *testing.T) (a, b int) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	require.NoError(t, unix.SetNonblock(fds[0], true))
	require.NoError(t, unix.SetNonblock(fds[1], true))
	t.Cleanup(func() {
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
	})

	return fds[0], fds[1]
}

func newEngine(t *testing.T, maxFds int) *Engine {
	e, err := New(maxFds)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, e.Close())
	})

	return e
}

func TestEngine(t *testing.T) {
	t.Run("read readiness", func(t *testing.T) {
		e := newEngine(t, 1024)
		a, b := socketpair(t)
		r := &recorder{fd: a}
		require.True(t, e.AddFd(r))

		n, err := e.DispatchEvents(10 * time.Millisecond)
		require.NoError(t, err)
		require.Zero(t, n)
		require.Empty(t, r.events)

		_, err = unix.Write(b, []byte("ping"))
		require.NoError(t, err)
		n, err = e.DispatchEvents(time.Second)
		require.NoError(t, err)
		require.Equal(t, 1, n)
		require.Equal(t, []Event{EventRead}, r.events)
	})

	t.Run("level triggered", func(t *testing.T) {
		e := newEngine(t, 1024)
		a, b := socketpair(t)
		r := &recorder{fd: a}
		require.True(t, e.AddFd(r))

		_, err := unix.Write(b, []byte("ping"))
		require.NoError(t, err)

		for range 3 {
			_, err = e.DispatchEvents(time.Second)
			require.NoError(t, err)
		}

		require.Equal(t, []Event{EventRead, EventRead, EventRead}, r.events)
	})

	t.Run("one-shot write interest", func(t *testing.T) {
		e := newEngine(t, 1024)
		a, _ := socketpair(t)
		r := &recorder{fd: a}
		require.True(t, e.AddFd(r))

		e.WantWrite(r)
		_, err := e.DispatchEvents(time.Second)
		require.NoError(t, err)
		require.Equal(t, []Event{EventWrite}, r.events)

		n, err := e.DispatchEvents(10 * time.Millisecond)
		require.NoError(t, err)
		require.Zero(t, n)
		require.Len(t, r.events, 1)
	})

	t.Run("paused reads", func(t *testing.T) {
		e := newEngine(t, 1024)
		a, b := socketpair(t)
		r := &recorder{fd: a}
		require.True(t, e.AddFd(r))

		e.PauseRead(r)
		require.True(t, e.ReadPaused(r))
		_, err := unix.Write(b, []byte("ping"))
		require.NoError(t, err)

		n, err := e.DispatchEvents(10 * time.Millisecond)
		require.NoError(t, err)
		require.Zero(t, n)
		require.Empty(t, r.events)

		// write interest doesn't bring reads back
		e.WantWrite(r)
		_, err = e.DispatchEvents(time.Second)
		require.NoError(t, err)
		require.Equal(t, []Event{EventWrite}, r.events)
		require.True(t, e.ReadPaused(r))

		e.ResumeRead(r)
		require.False(t, e.ReadPaused(r))
		_, err = e.DispatchEvents(time.Second)
		require.NoError(t, err)
		require.Equal(t, []Event{EventWrite, EventRead}, r.events)
	})

	t.Run("duplicate and out of range", func(t *testing.T) {
		e := newEngine(t, 1024)
		a, _ := socketpair(t)
		r := &recorder{fd: a}
		require.True(t, e.AddFd(r))
		require.False(t, e.AddFd(r))
		require.False(t, e.AddFd(&recorder{fd: a}))
		require.False(t, e.AddFd(&recorder{fd: -1}))
		require.False(t, e.AddFd(&recorder{fd: e.MaxFds()}))
		require.Equal(t, 1, e.Count())
	})

	t.Run("capacity", func(t *testing.T) {
		a, b := socketpair(t)
		low, high := min(a, b), max(a, b)
		e := newEngine(t, low+1)

		require.True(t, e.AddFd(&recorder{fd: low}))
		require.False(t, e.AddFd(&recorder{fd: high}))
		require.Equal(t, 1, e.Count())
		require.Equal(t, low+1, e.MaxFds())
	})

	t.Run("idempotent removal", func(t *testing.T) {
		e := newEngine(t, 1024)
		a, _ := socketpair(t)
		r := &recorder{fd: a}
		require.False(t, e.DelFd(r, false))
		require.True(t, e.AddFd(r))
		require.True(t, e.DelFd(r, false))
		require.False(t, e.DelFd(r, false))
		require.False(t, e.DelFd(r, true))
		require.Zero(t, e.Count())
	})

	t.Run("removal of closed descriptor", func(t *testing.T) {
		e := newEngine(t, 1024)
		fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
		require.NoError(t, err)
		defer unix.Close(fds[1])

		r := &recorder{fd: fds[0]}
		require.True(t, e.AddFd(r))
		require.NoError(t, unix.Close(fds[0]))
		require.True(t, e.DelFd(r, true))
		require.False(t, e.HasFd(r))
	})

	t.Run("nothing delivered after removal in the same tick", func(t *testing.T) {
		e := newEngine(t, 1024)
		a, b := socketpair(t)
		c, d := socketpair(t)
		first := &recorder{fd: a}
		second := &recorder{fd: c}
		// whichever fires first removes the other one
		first.onRead = func() { e.DelFd(second, false) }
		second.onRead = func() { e.DelFd(first, false) }
		require.True(t, e.AddFd(first))
		require.True(t, e.AddFd(second))

		_, err := unix.Write(b, []byte("x"))
		require.NoError(t, err)
		_, err = unix.Write(d, []byte("x"))
		require.NoError(t, err)

		// both must be ready before dispatching, otherwise a single one may fire
		time.Sleep(10 * time.Millisecond)
		_, err = e.DispatchEvents(time.Second)
		require.NoError(t, err)
		require.Equal(t, 1, len(first.events)+len(second.events))
	})

	t.Run("hangup", func(t *testing.T) {
		e := newEngine(t, 1024)
		fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
		require.NoError(t, err)
		defer unix.Close(fds[0])

		r := &recorder{fd: fds[0]}
		require.True(t, e.AddFd(r))
		require.NoError(t, unix.Close(fds[1]))

		_, err = e.DispatchEvents(time.Second)
		require.NoError(t, err)
		require.NotEmpty(t, r.events)
		// the peer is gone: either a read of zero bytes or an error must follow
		require.Contains(t, []Event{EventRead, EventError}, r.events[0])
	})

	t.Run("closed engine", func(t *testing.T) {
		e, err := New(16)
		require.NoError(t, err)
		require.NoError(t, e.Close())
		_, err = e.DispatchEvents(0)
		require.ErrorIs(t, err, ErrClosed)
		require.False(t, e.AddFd(&recorder{fd: 1}))
	})

	t.Run("bad capacity", func(t *testing.T) {
		_, err := New(0)
		require.Error(t, err)
	})
}
