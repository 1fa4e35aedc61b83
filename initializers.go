package httpd

import (
	"github.com/benbjohnson/clock"
	"github.com/indigo-web/httpd/config"
	"github.com/indigo-web/httpd/http/mime"
	"github.com/indigo-web/httpd/internal/backend"
	"github.com/indigo-web/httpd/internal/cull"
	"github.com/indigo-web/httpd/internal/engine"
	httpserver "github.com/indigo-web/httpd/internal/server/http"
	"github.com/indigo-web/httpd/internal/server/tcp"
	"github.com/indigo-web/httpd/internal/statcache"
	"github.com/pkg/errors"
)

func (a *App) initialize() error {
	cfg := a.cfg

	e, err := engine.New(cfg.Limits.Hard)
	if err != nil {
		return err
	}

	b, err := backend.New(cfg.Files.Backend, cfg.Files.BufferedChunk)
	if err != nil {
		_ = e.Close()
		return err
	}

	a.engine = e
	a.cull = cull.New()

	server, err := httpserver.NewServer(httpserver.Deps{
		Config:    cfg,
		Engine:    e,
		Cull:      a.cull,
		Stat:      newStatCache(cfg, a.clock),
		Backend:   b,
		MIME:      mime.NewTable(cfg.Files.MIME),
		Clock:     a.clock,
		Logger:    a.logger.WithName("http"),
		Responder: a.responder,
		Release: func(conn *httpserver.Conn) {
			a.manager.Remove(conn)
		},
	})
	if err != nil {
		_ = e.Close()
		a.engine = nil
		return errors.Wrap(err, "initializing http server")
	}

	a.server = server
	a.manager = tcp.NewManager(e, a.cull, a.logger.WithName("tcp"), newLimits(cfg), func(fd int, peer string) tcp.Client {
		return server.NewConn(fd, peer)
	})

	if a.hooks.OnConnect != nil {
		a.manager.OnConnect = func(client tcp.Client) {
			a.hooks.OnConnect(client.Peer())
		}
	}

	return nil
}

func newStatCache(cfg *config.Config, clk clock.Clock) *statcache.Cache {
	return statcache.New(statcache.Options{
		TTL:            cfg.StatCache.TTL.Positive.Std(),
		NegativeTTL:    cfg.StatCache.TTL.Negative.Std(),
		MaxEntries:     cfg.StatCache.MaxEntries,
		FollowSymlinks: cfg.Files.FollowSymlinks,
	}, clk)
}

func newLimits(cfg *config.Config) tcp.Limits {
	return tcp.Limits{
		Soft:         cfg.Limits.Soft,
		Hard:         cfg.Limits.Hard,
		IdleTimeout:  cfg.NET.IdleTimeout.Std(),
		TotalTimeout: cfg.NET.TotalTimeout.Std(),
	}
}
