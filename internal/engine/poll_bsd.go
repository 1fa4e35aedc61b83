//go:build darwin || dragonfly || freebsd || netbsd || openbsd

package engine

import (
	"time"

	"golang.org/x/sys/unix"
)

// pollfds is a poll(2) based poller for platforms without epoll. It's O(n) per wait,
// which is fine for the connection counts those platforms are used with.
type pollfds struct {
	fds   []unix.PollFd
	index map[int]int
}

func newPoller(maxFds int) (poller, error) {
	return &pollfds{
		fds:   make([]unix.PollFd, 0, min(maxFds, 1024)),
		index: make(map[int]int),
	}, nil
}

func (p *pollfds) add(fd int) error {
	if _, found := p.index[fd]; found {
		return unix.EEXIST
	}

	p.index[fd] = len(p.fds)
	p.fds = append(p.fds, unix.PollFd{Fd: int32(fd), Events: unix.POLLIN})

	return nil
}

func (p *pollfds) mod(fd int, read, write bool) error {
	i, found := p.index[fd]
	if !found {
		return unix.ENOENT
	}

	p.fds[i].Events = 0
	if read {
		p.fds[i].Events |= unix.POLLIN
	}

	if write {
		p.fds[i].Events |= unix.POLLOUT
	}

	return nil
}

func (p *pollfds) del(fd int) error {
	i, found := p.index[fd]
	if !found {
		return unix.ENOENT
	}

	last := len(p.fds) - 1
	p.fds[i] = p.fds[last]
	p.index[int(p.fds[i].Fd)] = i
	p.fds = p.fds[:last]
	delete(p.index, fd)

	return nil
}

func (p *pollfds) wait(ready []readiness, timeout time.Duration) (int, error) {
	if _, err := unix.Poll(p.fds, millis(timeout)); err != nil {
		return 0, err
	}

	n := 0
	for i := range p.fds {
		revents := p.fds[i].Revents
		if revents == 0 {
			continue
		}

		p.fds[i].Revents = 0
		if n == len(ready) {
			continue
		}

		ready[n] = readiness{
			fd:     int(p.fds[i].Fd),
			read:   revents&unix.POLLIN != 0,
			write:  revents&unix.POLLOUT != 0,
			broken: revents&(unix.POLLERR|unix.POLLNVAL) != 0,
			hangup: revents&unix.POLLHUP != 0,
		}
		n++
	}

	return n, nil
}

func (p *pollfds) close() error {
	p.fds = nil
	clear(p.index)
	return nil
}

func millis(timeout time.Duration) int {
	if timeout < 0 {
		return -1
	}

	return int((timeout + time.Millisecond - 1) / time.Millisecond)
}
