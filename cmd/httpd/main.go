package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-logr/stdr"
	"github.com/indigo-web/httpd"
	"github.com/indigo-web/httpd/config"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to a JSON config file")
		root       = flag.String("root", "", "document root, overrides the config")
		addr       = flag.String("addr", "", "listen address, overrides the config")
		backend    = flag.String("backend", "", "response backend: mmap, sendfile or buffered")
		verbosity  = flag.Int("v", 0, "log verbosity. 1 logs every request, 2 every connection")
	)
	flag.Parse()

	stdr.SetVerbosity(*verbosity)
	logger := stdr.New(log.New(os.Stderr, "", log.LstdFlags)).WithName("httpd")

	cfg := config.Default()
	if len(*configPath) > 0 {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			logger.Error(err, "loading config", "path", *configPath)
			os.Exit(1)
		}
	}

	if len(*root) > 0 {
		cfg.Files.Root = *root
	}

	if len(*addr) > 0 {
		cfg.Server.Listen = []string{*addr}
	}

	if len(*backend) > 0 {
		cfg.Files.Backend = *backend
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := httpd.New(cfg).Logger(logger)
	if err := app.Bind(); err != nil {
		logger.Error(err, "starting")
		os.Exit(1)
	}

	for _, bound := range app.Addrs() {
		logger.Info("bound", "addr", bound)
	}

	if err := app.Run(ctx); err != nil {
		logger.Error(err, "serving")
		os.Exit(1)
	}
}
