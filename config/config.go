package config

import (
	"os"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

type (
	HeadersNumber struct {
		Default, Maximal int
	}

	StatCacheTTL struct {
		// Positive is how long a successful stat result is trusted.
		Positive Duration
		// Negative is how long a failed stat result (e.g. ENOENT) is trusted. Usually
		// shorter, so newly created files appear quickly.
		Negative Duration
	}
)

type (
	Server struct {
		// Name is sent in the Server header of every response.
		Name string
		// Listen holds the addresses to bind, e.g. ":8080" or "[::1]:80".
		Listen []string
		// Backlog is passed to listen(2).
		Backlog int
	}

	Files struct {
		// Root is the document root. Every request path is resolved strictly inside it.
		Root string
		// IndexFile is served for request paths ending with a slash.
		IndexFile string
		// Backend selects the response body transmission strategy: mmap, sendfile or buffered.
		Backend string
		// BufferedChunk is the scratch buffer size of the buffered backend.
		BufferedChunk int
		// UpdateAtime disables O_NOATIME when opening files, if set.
		UpdateAtime bool
		// FollowSymlinks permits serving files reached through symbolic links.
		FollowSymlinks bool
		// MIME extends the built-in extension to content type table.
		MIME map[string]string `json:",omitempty"`
	}

	Headers struct {
		// Number limits the number of request header fields. Default is the
		// pre-allocation size.
		Number HeadersNumber
		// MaxSize limits the size of a request line and headers block altogether.
		// Exceeding it without a terminating empty line is a protocol error.
		MaxSize int
	}

	Body struct {
		// MaxSize describes the maximal size of a POST body, that can be accepted.
		MaxSize int64
	}

	KeepAlive struct {
		// Max is a number of requests served over a single connection, after which
		// it's closed.
		Max int
	}

	Limits struct {
		// Soft is the number of simultaneous clients, after which newly accepted
		// connections are closed immediately.
		Soft int
		// Hard is the capacity of the socket engine. Descriptors beyond it are never tracked.
		Hard int
	}

	StatCache struct {
		TTL StatCacheTTL
		// MaxEntries bounds the number of cached paths. The least recently used
		// entry is evicted on overflow.
		MaxEntries int
	}

	NET struct {
		// ReadBufferSize is a size of buffer in bytes which will be used to read from
		// socket
		ReadBufferSize int
		// IdleTimeout controls the maximal lifetime of IDLE connections. If no data was
		// transferred in this period of time, it'll be closed.
		IdleTimeout Duration
		// TotalTimeout limits the whole lifetime of a connection, regardless of activity.
		TotalTimeout Duration
		// SweepInterval controls how often connections are checked against timeouts.
		SweepInterval Duration
		// PollInterval is the maximal time a single event loop tick waits for readiness.
		PollInterval Duration
	}
)

// Config holds settings used across various parts of httpd, mainly restrictions, limitations
// and pre-allocations.
//
// You must ALWAYS modify defaults (returned via Default()) and NEVER try to initialize the
// config manually, because most likely this will result in ambiguous errors.
type Config struct {
	Server    Server
	Files     Files
	Headers   Headers
	Body      Body
	KeepAlive KeepAlive
	Limits    Limits
	StatCache StatCache
	NET       NET
}

// Default returns default config. Those are initially well-balanced, however maximal defaults
// are pretty permitting.
func Default() *Config {
	return &Config{
		Server: Server{
			Name:    "httpd",
			Listen:  []string{":8080"},
			Backlog: 128,
		},
		Files: Files{
			Root:           ".",
			IndexFile:      "index.html",
			Backend:        "mmap",
			BufferedChunk:  64 * 1024,
			UpdateAtime:    false,
			FollowSymlinks: true,
		},
		Headers: Headers{
			Number: HeadersNumber{
				Default: 10,
				Maximal: 50,
			},
			// request line plus headers. Most of web-entities limit it to 8kb.
			MaxSize: 8 * 1024,
		},
		Body: Body{
			MaxSize: 8 * 1024 * 1024,
		},
		KeepAlive: KeepAlive{
			Max: 100,
		},
		Limits: Limits{
			Soft: 1000,
			Hard: 4096,
		},
		StatCache: StatCache{
			TTL: StatCacheTTL{
				Positive: Duration(5 * time.Second),
				Negative: Duration(1 * time.Second),
			},
			MaxEntries: 4096,
		},
		NET: NET{
			ReadBufferSize: 4 * 1024,
			IdleTimeout:    Duration(30 * time.Second),
			TotalTimeout:   Duration(10 * time.Minute),
			SweepInterval:  Duration(1 * time.Second),
			PollInterval:   Duration(500 * time.Millisecond),
		},
	}
}

// Load reads a JSON document at the path over the defaults. Fields absent in the
// document keep their default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading config")
	}

	return Parse(data)
}

// Parse decodes the JSON document over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "decoding config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate reports the first setting which makes no sense.
func (c *Config) Validate() error {
	switch {
	case len(c.Files.Root) == 0:
		return errors.New("config: Files.Root must not be empty")
	case len(c.Server.Listen) == 0:
		return errors.New("config: Server.Listen must contain at least one address")
	case c.Headers.MaxSize <= 0:
		return errors.New("config: Headers.MaxSize must be positive")
	case c.Headers.Number.Maximal <= 0:
		return errors.New("config: Headers.Number.Maximal must be positive")
	case c.Body.MaxSize < 0:
		return errors.New("config: Body.MaxSize must not be negative")
	case c.KeepAlive.Max <= 0:
		return errors.New("config: KeepAlive.Max must be positive")
	case c.Limits.Soft <= 0 || c.Limits.Hard <= 0:
		return errors.New("config: connection limits must be positive")
	case c.Limits.Soft > c.Limits.Hard:
		return errors.New("config: Limits.Soft must not exceed Limits.Hard")
	case c.StatCache.MaxEntries <= 0:
		return errors.New("config: StatCache.MaxEntries must be positive")
	case c.NET.ReadBufferSize <= 0:
		return errors.New("config: NET.ReadBufferSize must be positive")
	case c.NET.PollInterval <= 0 || c.NET.SweepInterval <= 0:
		return errors.New("config: NET intervals must be positive")
	case c.Files.BufferedChunk <= 0:
		return errors.New("config: Files.BufferedChunk must be positive")
	}

	switch c.Files.Backend {
	case "mmap", "sendfile", "buffered":
	default:
		return errors.Errorf("config: unknown Files.Backend %q", c.Files.Backend)
	}

	return nil
}
