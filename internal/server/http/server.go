// Package http implements the per-connection HTTP/1.x protocol state machine serving
// static files.
package http

import (
	"os"
	"strings"

	"github.com/benbjohnson/clock"
	"github.com/go-logr/logr"
	"github.com/indigo-web/httpd/config"
	"github.com/indigo-web/httpd/http"
	"github.com/indigo-web/httpd/http/mime"
	"github.com/indigo-web/httpd/http/status"
	"github.com/indigo-web/httpd/internal/backend"
	"github.com/indigo-web/httpd/internal/cull"
	"github.com/indigo-web/httpd/internal/engine"
	"github.com/indigo-web/httpd/internal/protocol/http1"
	"github.com/indigo-web/httpd/internal/statcache"
	"github.com/indigo-web/httpd/internal/timer"
	"github.com/indigo-web/httpd/kv"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Deps are the collaborators shared by all the connections.
type Deps struct {
	Config    *config.Config
	Engine    *engine.Engine
	Cull      *cull.List
	Stat      *statcache.Cache
	Backend   backend.Backend
	MIME      *mime.Table
	Clock     clock.Clock
	Logger    logr.Logger
	Responder http.Responder
	// Release is called when a connection is destroyed, so the owner can forget it.
	Release func(*Conn)
}

// Server holds everything connections have in common. As all the connections are driven
// by a single event loop, their scratch read buffer is shared as well.
type Server struct {
	Deps
	root        string
	parser      *http1.Parser
	serializer  *http1.Serializer
	scratch     []byte
	head        []byte
	htmlHeaders *kv.Storage
}

func NewServer(deps Deps) (*Server, error) {
	cfg := deps.Config
	root, err := resolveRoot(cfg.Files.Root)
	if err != nil {
		return nil, err
	}

	if deps.Logger.GetSink() == nil {
		deps.Logger = logr.Discard()
	}

	return &Server{
		Deps:        deps,
		root:        root,
		parser:      http1.NewParser(cfg.Headers.Number.Maximal),
		serializer:  http1.NewSerializer(cfg.Server.Name, timer.NewDate(deps.Clock)),
		scratch:     make([]byte, cfg.NET.ReadBufferSize),
		head:        make([]byte, 0, 512),
		htmlHeaders: kv.New().Set("Content-Type", htmlContentType),
	}, nil
}

// Root returns the absolute document root without trailing slash.
func (s *Server) Root() string {
	return s.root
}

func resolveRoot(root string) (string, error) {
	if len(root) == 0 {
		root = "."
	}

	if !strings.HasPrefix(root, "/") {
		wd, err := os.Getwd()
		if err != nil {
			return "", errors.Wrap(err, "resolving document root")
		}

		root = wd + "/" + root
	}

	var st unix.Stat_t
	if err := unix.Stat(root, &st); err != nil {
		return "", errors.Wrapf(err, "document root %s", root)
	}

	if st.Mode&unix.S_IFMT != unix.S_IFDIR {
		return "", errors.Errorf("document root %s is not a directory", root)
	}

	return strings.TrimRight(root, "/"), nil
}

// codeOfErrno maps a filesystem failure to a response status.
func codeOfErrno(err error) status.Code {
	var errno unix.Errno
	if !errors.As(err, &errno) {
		return status.InternalServerError
	}

	switch errno {
	case unix.ENOENT, unix.ELOOP, unix.ENAMETOOLONG, unix.ENOTDIR:
		return status.NotFound
	case unix.EACCES, unix.EPERM:
		return status.Forbidden
	default:
		return status.InternalServerError
	}
}
