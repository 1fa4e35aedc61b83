package httpd

import (
	"bufio"
	"context"
	"io"
	"net"
	stdhttp "net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/indigo-web/httpd/config"
	"github.com/indigo-web/httpd/http"
	"github.com/indigo-web/httpd/http/status"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type running struct {
	app  *App
	addr string
	stop func() error
}

func getConfig(t *testing.T) *config.Config {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "index.html"), []byte("Hello World\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "style.css"), []byte("body{}"), 0o644))

	cfg := config.Default()
	cfg.Files.Root = root
	cfg.Server.Listen = []string{"127.0.0.1:0"}
	cfg.NET.PollInterval = config.Duration(10 * time.Millisecond)

	return cfg
}

func run(t *testing.T, app *App) *running {
	require.NoError(t, app.Bind())
	require.Len(t, app.Addrs(), 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- app.Run(ctx)
	}()

	r := &running{
		app:  app,
		addr: app.Addrs()[0],
	}

	var stopped bool
	r.stop = func() error {
		if stopped {
			return nil
		}

		stopped = true
		cancel()

		select {
		case err := <-done:
			return err
		case <-time.After(5 * time.Second):
			return context.DeadlineExceeded
		}
	}

	t.Cleanup(func() {
		require.NoError(t, r.stop())
	})

	return r
}

type client struct {
	t      *testing.T
	conn   net.Conn
	reader *bufio.Reader
}

func dial(t *testing.T, addr string) *client {
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = conn.Close()
	})

	return &client{
		t:      t,
		conn:   conn,
		reader: bufio.NewReader(conn),
	}
}

func (c *client) do(request string) (*stdhttp.Response, string) {
	require.NoError(c.t, c.conn.SetDeadline(time.Now().Add(5*time.Second)))
	_, err := c.conn.Write([]byte(request))
	require.NoError(c.t, err)

	return c.read()
}

func (c *client) read() (*stdhttp.Response, string) {
	resp, err := stdhttp.ReadResponse(c.reader, nil)
	require.NoError(c.t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)
	require.NoError(c.t, resp.Body.Close())

	return resp, string(body)
}

func (c *client) requireClosed() {
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, err := c.reader.ReadByte()
	require.ErrorIs(c.t, err, io.EOF)
}

func TestApp(t *testing.T) {
	t.Run("index", func(t *testing.T) {
		r := run(t, New(getConfig(t)))
		resp, body := dial(t, r.addr).do("GET / HTTP/1.1\r\nHost: localhost\r\n\r\n")
		require.Equal(t, 200, resp.StatusCode)
		require.Equal(t, "Hello World\n", body)
		require.Equal(t, int64(12), resp.ContentLength)
		require.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))
	})

	t.Run("keep-alive", func(t *testing.T) {
		r := run(t, New(getConfig(t)))
		c := dial(t, r.addr)

		for range 5 {
			resp, _ := c.do("GET /style.css HTTP/1.1\r\n\r\n")
			require.Equal(t, 200, resp.StatusCode)
			require.Equal(t, "text/css; charset=utf-8", resp.Header.Get("Content-Type"))
		}

		resp, _ := c.do("GET /style.css HTTP/1.0\r\n\r\n")
		require.Equal(t, "close", resp.Header.Get("Connection"))
		c.requireClosed()
	})

	t.Run("many clients", func(t *testing.T) {
		r := run(t, New(getConfig(t)))
		clients := make([]*client, 20)
		for i := range clients {
			clients[i] = dial(t, r.addr)
		}

		for _, c := range clients {
			resp, _ := c.do("GET /missing HTTP/1.1\r\n\r\n")
			require.Equal(t, 404, resp.StatusCode)
		}
	})

	t.Run("soft limit", func(t *testing.T) {
		cfg := getConfig(t)
		cfg.Limits.Soft = 1
		var connected int
		r := run(t, New(cfg).NotifyOnConnect(func(string) {
			connected++
		}))

		first := dial(t, r.addr)
		resp, _ := first.do("GET / HTTP/1.1\r\n\r\n")
		require.Equal(t, 200, resp.StatusCode)

		second := dial(t, r.addr)
		second.requireClosed()

		resp, _ = first.do("GET / HTTP/1.1\r\n\r\n")
		require.Equal(t, 200, resp.StatusCode)

		require.NoError(t, r.stop())
		require.Equal(t, 1, connected)
	})

	t.Run("idle timeout", func(t *testing.T) {
		cfg := getConfig(t)
		cfg.NET.IdleTimeout = config.Duration(time.Minute)
		cfg.NET.SweepInterval = config.Duration(time.Second)
		clk := clock.NewMock()
		clk.Set(time.Now())
		r := run(t, New(cfg).Clock(clk))

		c := dial(t, r.addr)
		resp, _ := c.do("GET / HTTP/1.1\r\n\r\n")
		require.Equal(t, 200, resp.StatusCode)

		clk.Add(2 * time.Minute)
		c.requireClosed()
	})

	t.Run("responder", func(t *testing.T) {
		cfg := getConfig(t)
		responder := http.ResponderFunc(func(req *http.Request, file string, w http.ResponseWriter) bool {
			if !strings.HasSuffix(file, ".css") {
				return false
			}

			w.SendHeaders(0, status.NoContent, "", nil)
			return true
		})
		r := run(t, New(cfg).Responder(responder))
		c := dial(t, r.addr)

		resp, _ := c.do("GET /style.css HTTP/1.1\r\n\r\n")
		require.Equal(t, 204, resp.StatusCode)
		resp, body := c.do("GET /index.html HTTP/1.1\r\n\r\n")
		require.Equal(t, 200, resp.StatusCode)
		require.Equal(t, "Hello World\n", body)
	})

	t.Run("shutdown", func(t *testing.T) {
		var started, stopped bool
		r := run(t, New(getConfig(t)).
			NotifyOnStart(func() { started = true }).
			NotifyOnStop(func() { stopped = true }),
		)

		c := dial(t, r.addr)
		resp, _ := c.do("GET / HTTP/1.1\r\n\r\n")
		require.Equal(t, 200, resp.StatusCode)

		require.NoError(t, r.stop())
		require.True(t, started)
		require.True(t, stopped)
		c.requireClosed()

		_, err := net.Dial("tcp", r.addr)
		require.Error(t, err)
	})
}

func TestBind(t *testing.T) {
	t.Run("invalid config", func(t *testing.T) {
		cfg := getConfig(t)
		cfg.Files.Backend = "carrier-pigeon"
		require.Error(t, New(cfg).Bind())
	})

	t.Run("missing root", func(t *testing.T) {
		cfg := getConfig(t)
		cfg.Files.Root = filepath.Join(cfg.Files.Root, "nope")
		require.Error(t, New(cfg).Bind())
	})

	t.Run("address in use", func(t *testing.T) {
		first := New(getConfig(t))
		require.NoError(t, first.Bind())
		defer first.teardown()

		cfg := getConfig(t)
		cfg.Server.Listen = first.Addrs()
		second := New(cfg)
		require.Error(t, second.Bind())
		require.Empty(t, second.Addrs())
	})

	t.Run("multiple listeners", func(t *testing.T) {
		cfg := getConfig(t)
		cfg.Server.Listen = []string{"127.0.0.1:0", "127.0.0.1:0"}
		app := New(cfg)
		require.NoError(t, app.Bind())
		defer app.teardown()
		require.Len(t, app.Addrs(), 2)
		require.NotEqual(t, app.Addrs()[0], app.Addrs()[1])
	})
}
