//go:build linux

package engine

import (
	"time"

	"golang.org/x/sys/unix"
)

const readEvents = unix.EPOLLIN | unix.EPOLLRDHUP

type epoll struct {
	fd     int
	events []unix.EpollEvent
}

func newPoller(maxFds int) (poller, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}

	return &epoll{
		fd:     fd,
		events: make([]unix.EpollEvent, min(maxFds, 1024)),
	}, nil
}

func (p *epoll) add(fd int) error {
	return unix.EpollCtl(p.fd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{
		Events: readEvents,
		Fd:     int32(fd),
	})
}

func (p *epoll) mod(fd int, read, write bool) error {
	var events uint32
	if read {
		events |= readEvents
	}

	if write {
		events |= unix.EPOLLOUT
	}

	return unix.EpollCtl(p.fd, unix.EPOLL_CTL_MOD, fd, &unix.EpollEvent{
		Events: events,
		Fd:     int32(fd),
	})
}

func (p *epoll) del(fd int) error {
	return unix.EpollCtl(p.fd, unix.EPOLL_CTL_DEL, fd, nil)
}

func (p *epoll) wait(ready []readiness, timeout time.Duration) (int, error) {
	events := p.events[:min(len(p.events), len(ready))]
	n, err := unix.EpollWait(p.fd, events, millis(timeout))
	if err != nil {
		return 0, err
	}

	for i, ev := range events[:n] {
		ready[i] = readiness{
			fd:     int(ev.Fd),
			read:   ev.Events&(unix.EPOLLIN|unix.EPOLLRDHUP) != 0,
			write:  ev.Events&unix.EPOLLOUT != 0,
			broken: ev.Events&unix.EPOLLERR != 0,
			hangup: ev.Events&unix.EPOLLHUP != 0,
		}
	}

	return n, nil
}

func (p *epoll) close() error {
	return unix.Close(p.fd)
}

func millis(timeout time.Duration) int {
	if timeout < 0 {
		return -1
	}

	// round up, so a tiny positive timeout doesn't turn into a busy loop
	return int((timeout + time.Millisecond - 1) / time.Millisecond)
}
