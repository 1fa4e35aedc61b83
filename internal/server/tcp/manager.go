// Package tcp owns the transport layer of the server: listening sockets, admission
// of accepted connections and their bookkeeping.
package tcp

import (
	"time"

	"github.com/go-logr/logr"
	"github.com/indigo-web/httpd/internal/address"
	"github.com/indigo-web/httpd/internal/cull"
	"github.com/indigo-web/httpd/internal/engine"
	"golang.org/x/sys/unix"
)

// Client is a connection owned by the Manager.
type Client interface {
	engine.Handler
	cull.Item
	Peer() string
	Created() time.Time
	LastActive() time.Time
}

// Factory constructs a client for the freshly accepted descriptor. It must not perform
// any I/O on it.
type Factory func(fd int, peer string) Client

type Limits struct {
	// Soft is the number of connections the server is willing to keep.
	Soft int
	// Hard is the absolute ceiling. The effective limit is the lowest of both.
	Hard         int
	IdleTimeout  time.Duration
	TotalTimeout time.Duration
}

type Stats struct {
	Accepted, Rejected, Timeouts uint64
}

type Manager struct {
	engine    *engine.Engine
	cull      *cull.List
	logger    logr.Logger
	factory   Factory
	limits    Limits
	clients   map[int]Client
	listeners []*Listener
	stats     Stats
	// OnConnect is fired after a client was successfully admitted.
	OnConnect func(Client)
}

func NewManager(
	e *engine.Engine, c *cull.List, logger logr.Logger, limits Limits, factory Factory,
) *Manager {
	return &Manager{
		engine:  e,
		cull:    c,
		logger:  logger,
		factory: factory,
		limits:  limits,
		clients: make(map[int]Client),
	}
}

// Listen opens a listener and registers it in the engine.
func (m *Manager) Listen(network, addr string, backlog int) (*Listener, error) {
	l, err := Listen(network, addr, backlog)
	if err != nil {
		return nil, err
	}

	l.admit = m.Admit
	l.logger = m.logger.WithName("listener")
	if !m.engine.AddFd(l) {
		_ = l.Close()
		return nil, unix.EMFILE
	}

	m.listeners = append(m.listeners, l)
	m.logger.Info("listening", "addr", l.Addr().String(), "family", familyName(l.Family()))

	return l, nil
}

func (m *Manager) Listeners() []*Listener {
	return m.listeners
}

// Admit decides over the fate of an accepted descriptor. A rejected descriptor is closed
// right away, nothing is ever read from it.
func (m *Manager) Admit(fd int, sa unix.Sockaddr) bool {
	peer := address.Format(sa)
	client := m.factory(fd, peer)

	switch {
	case len(m.clients) >= m.limit():
		m.reject(fd, peer, "connection limit reached")
		return false
	case fd >= m.engine.MaxFds():
		m.reject(fd, peer, "descriptor out of range")
		return false
	case !m.engine.AddFd(client):
		m.reject(fd, peer, "engine refused the descriptor")
		return false
	}

	m.clients[fd] = client
	m.stats.Accepted++
	m.logger.V(2).Info("connection accepted", "peer", peer, "fd", fd)

	if m.OnConnect != nil {
		m.OnConnect(client)
	}

	return true
}

func (m *Manager) limit() int {
	limit := m.limits.Soft
	if m.limits.Hard > 0 && (limit <= 0 || m.limits.Hard < limit) {
		limit = m.limits.Hard
	}

	if limit <= 0 {
		limit = m.engine.MaxFds()
	}

	return limit
}

func (m *Manager) reject(fd int, peer, reason string) {
	_ = unix.Close(fd)
	m.stats.Rejected++
	m.logger.V(1).Info("connection rejected", "peer", peer, "fd", fd, "reason", reason)
}

// Remove forgets the client. It's called by the client itself when culled.
func (m *Manager) Remove(client Client) {
	fd := client.Fd()
	if m.clients[fd] == client {
		delete(m.clients, fd)
	}
}

// Sweep schedules destruction of clients exceeding their idle or total lifetime,
// returning how many were found.
func (m *Manager) Sweep(now time.Time) int {
	var timedOut int

	for _, client := range m.clients {
		idle := m.limits.IdleTimeout > 0 && now.Sub(client.LastActive()) > m.limits.IdleTimeout
		total := m.limits.TotalTimeout > 0 && now.Sub(client.Created()) > m.limits.TotalTimeout
		if !idle && !total {
			continue
		}

		m.logger.V(1).Info("connection timed out", "peer", client.Peer(), "idle", idle)
		m.cull.AddItem(client)
		timedOut++
	}

	m.stats.Timeouts += uint64(timedOut)

	return timedOut
}

// CloseAll closes every listener and schedules every client for destruction.
func (m *Manager) CloseAll() {
	for _, l := range m.listeners {
		m.engine.DelFd(l, true)
		if err := l.Close(); err != nil {
			m.logger.Error(err, "closing listener", "addr", l.Addr().String())
		}
	}

	m.listeners = nil

	for _, client := range m.clients {
		m.cull.AddItem(client)
	}
}

func (m *Manager) Count() int {
	return len(m.clients)
}

func (m *Manager) Stats() Stats {
	return m.stats
}

func familyName(family int) string {
	if family == unix.AF_INET6 {
		return "ipv6"
	}

	return "ipv4"
}
