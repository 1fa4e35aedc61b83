package tcp

import (
	"github.com/go-logr/logr"
	"github.com/indigo-web/httpd/internal/address"
	"github.com/indigo-web/httpd/internal/engine"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// admitFunc takes the ownership over an accepted descriptor. Returning false stops
// the accept loop until the next readiness notification.
type admitFunc func(fd int, sa unix.Sockaddr) bool

// Listener is a non-blocking listening socket driven by the engine.
type Listener struct {
	fd     int
	addr   address.Address
	family int
	admit  admitFunc
	logger logr.Logger
}

// Listen binds a non-blocking close-on-exec socket. network is one of tcp, tcp4 or tcp6,
// the latter two are enforced against the resolved address family. Zero port picks
// an ephemeral one, which is reported by Addr.
func Listen(network, addr string, backlog int) (*Listener, error) {
	parsed, err := address.Parse(addr)
	if err != nil {
		return nil, errors.Wrap(err, "parsing listen address")
	}

	sa, family, err := parsed.Sockaddr()
	if err != nil {
		return nil, err
	}

	switch {
	case network == "tcp":
	case network == "tcp4" && family == unix.AF_INET:
	case network == "tcp6" && family == unix.AF_INET6:
	default:
		return nil, errors.Errorf("network %s is incompatible with address %s", network, addr)
	}

	fd, err := unix.Socket(family, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, errors.Wrap(err, "creating socket")
	}

	l := &Listener{fd: fd, family: family, logger: logr.Discard()}
	if err = l.setup(sa, backlog); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}

	bound, err := unix.Getsockname(fd)
	if err != nil {
		_ = unix.Close(fd)
		return nil, errors.Wrap(err, "getsockname")
	}

	l.addr = parsed
	switch bound := bound.(type) {
	case *unix.SockaddrInet4:
		l.addr.Port = uint16(bound.Port)
	case *unix.SockaddrInet6:
		l.addr.Port = uint16(bound.Port)
	}

	return l, nil
}

func (l *Listener) setup(sa unix.Sockaddr, backlog int) error {
	unix.CloseOnExec(l.fd)

	if err := unix.SetNonblock(l.fd, true); err != nil {
		return errors.Wrap(err, "setting non-blocking mode")
	}

	if err := unix.SetsockoptInt(l.fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return errors.Wrap(err, "setting SO_REUSEADDR")
	}

	if err := unix.Bind(l.fd, sa); err != nil {
		return errors.Wrap(err, "binding listener")
	}

	return errors.Wrap(unix.Listen(l.fd, backlog), "listen")
}

func (l *Listener) Fd() int {
	return l.fd
}

// Addr returns the bound address, with the actual port.
func (l *Listener) Addr() address.Address {
	return l.addr
}

func (l *Listener) Family() int {
	return l.family
}

// HandleEvent accepts pending connections until the queue is exhausted or a connection
// is refused.
func (l *Listener) HandleEvent(ev engine.Event, err error) {
	if ev == engine.EventError {
		l.logger.Error(err, "listener failure", "addr", l.addr.String())
		return
	}

	for {
		fd, sa, err := accept(l.fd)
		switch err {
		case nil:
		case unix.EAGAIN:
			return
		case unix.EINTR, unix.ECONNABORTED:
			continue
		default:
			// EMFILE and friends. The connection stays in the queue and will be
			// retried on the next tick
			l.logger.Error(err, "accept failed", "addr", l.addr.String())
			return
		}

		if l.admit == nil || !l.admit(fd, sa) {
			return
		}
	}
}

func (l *Listener) Close() error {
	return unix.Close(l.fd)
}
