// Package httpd is a single-threaded static file HTTP/1.x server. A single event loop
// drives every socket, hence no locks anywhere.
package httpd

import (
	"context"

	"github.com/benbjohnson/clock"
	"github.com/go-logr/logr"
	"github.com/indigo-web/httpd/config"
	"github.com/indigo-web/httpd/http"
	"github.com/indigo-web/httpd/internal/cull"
	"github.com/indigo-web/httpd/internal/engine"
	httpserver "github.com/indigo-web/httpd/internal/server/http"
	"github.com/indigo-web/httpd/internal/server/tcp"
	"github.com/pkg/errors"
)

// App glues the listeners, the connections and the event loop together.
type App struct {
	cfg       *config.Config
	logger    logr.Logger
	clock     clock.Clock
	responder http.Responder
	hooks     hooks
	engine    *engine.Engine
	cull      *cull.List
	manager   *tcp.Manager
	server    *httpserver.Server
	addrs     []string
}

// New returns a new App instance. Nil config stands for config.Default().
func New(cfg *config.Config) *App {
	if cfg == nil {
		cfg = config.Default()
	}

	return &App{
		cfg:    cfg,
		logger: logr.Discard(),
		clock:  clock.New(),
	}
}

// Logger replaces the default discarding logger.
func (a *App) Logger(logger logr.Logger) *App {
	a.logger = logger
	return a
}

// Clock replaces the wall clock. Useful mostly in tests.
func (a *App) Clock(clk clock.Clock) *App {
	a.clock = clk
	return a
}

// Responder installs a collaborator which may take over requests to existing files.
func (a *App) Responder(r http.Responder) *App {
	a.responder = r
	return a
}

// NotifyOnStart calls the callback right before the event loop starts. All the listeners
// are bound at this moment.
func (a *App) NotifyOnStart(cb func()) *App {
	a.hooks.OnStart = cb
	return a
}

// NotifyOnStop calls the callback after every listener and connection is closed.
func (a *App) NotifyOnStop(cb func()) *App {
	a.hooks.OnStop = cb
	return a
}

// NotifyOnConnect calls the callback on every admitted connection. It's called from within
// the event loop, so it must not block.
func (a *App) NotifyOnConnect(cb func(peer string)) *App {
	a.hooks.OnConnect = cb
	return a
}

// Bind initializes the server and binds every listener. Run calls it implicitly, but
// binding in advance allows learning the actual addresses via Addrs.
func (a *App) Bind() error {
	if a.engine != nil {
		return nil
	}

	if err := a.cfg.Validate(); err != nil {
		return err
	}

	if err := a.initialize(); err != nil {
		return err
	}

	for _, addr := range a.cfg.Server.Listen {
		l, err := a.manager.Listen("tcp", addr, a.cfg.Server.Backlog)
		if err != nil {
			a.teardown()
			a.engine, a.addrs = nil, nil
			return errors.Wrapf(err, "listening on %s", addr)
		}

		a.addrs = append(a.addrs, l.Addr().String())
	}

	return nil
}

// Addrs returns the bound addresses, with actual ports. It's empty until bound.
func (a *App) Addrs() []string {
	return a.addrs
}

// Run serves until the context is done. Every connection is closed before returning.
func (a *App) Run(ctx context.Context) error {
	if err := a.Bind(); err != nil {
		return err
	}

	netCfg := a.cfg.NET
	lastSweep := a.clock.Now()
	a.logger.Info("serving", "root", a.server.Root(), "backend", a.cfg.Files.Backend)
	callIfNotNil(a.hooks.OnStart)

	for {
		select {
		case <-ctx.Done():
			a.shutdown()
			return nil
		default:
		}

		if _, err := a.engine.DispatchEvents(netCfg.PollInterval.Std()); err != nil {
			a.shutdown()
			return errors.Wrap(err, "event loop")
		}

		a.cull.Apply()

		if now := a.clock.Now(); now.Sub(lastSweep) >= netCfg.SweepInterval.Std() {
			lastSweep = now
			a.manager.Sweep(now)
		}
	}
}

func (a *App) shutdown() {
	culled := a.teardown()
	stats := a.manager.Stats()
	a.logger.Info("stopped",
		"closed", culled,
		"accepted", stats.Accepted,
		"rejected", stats.Rejected,
		"timeouts", stats.Timeouts,
	)
	callIfNotNil(a.hooks.OnStop)
}

// teardown closes every listener and connection, returning the number of the latter.
func (a *App) teardown() int {
	a.manager.CloseAll()
	culled := a.cull.Apply()

	if err := a.engine.Close(); err != nil {
		a.logger.Error(err, "closing engine")
	}

	return culled
}

type hooks struct {
	OnStart, OnStop func()
	OnConnect       func(peer string)
}

func callIfNotNil(f func()) {
	if f != nil {
		f()
	}
}
