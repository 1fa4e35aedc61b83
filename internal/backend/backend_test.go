package backend

import (
	"bytes"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func getSocketpair(t *testing.T) (server, client int) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	require.NoError(t, unix.SetNonblock(fds[0], true))
	require.NoError(t, unix.SetNonblock(fds[1], true))
	t.Cleanup(func() {
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
	})

	return fds[0], fds[1]
}

func getFile(t *testing.T, content []byte) *os.File {
	path := filepath.Join(t.TempDir(), "payload.bin")
	require.NoError(t, os.WriteFile(path, content, 0o644))
	file, err := os.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = file.Close()
	})

	return file
}

func drain(t *testing.T, fd int, into *bytes.Buffer) {
	buff := make([]byte, 32*1024)
	for {
		n, err := unix.Read(fd, buff)
		if err == unix.EAGAIN {
			return
		}

		require.NoError(t, err)
		if n == 0 {
			return
		}

		into.Write(buff[:n])
	}
}

func getBackends() []Backend {
	return []Backend{NewMmap(), NewSendfile(), NewBuffered(4096)}
}

func TestBackends(t *testing.T) {
	payload := make([]byte, 3*1024*1024+17)
	rand.New(rand.NewSource(42)).Read(payload)

	for _, b := range getBackends() {
		t.Run(b.Name(), func(t *testing.T) {
			t.Run("whole file", func(t *testing.T) {
				server, client := getSocketpair(t)
				file := getFile(t, payload)
				var (
					sent     int64
					received bytes.Buffer
				)

				for sent < int64(len(payload)) {
					_, err := b.ServeFile(server, file, &sent, int64(len(payload)))
					require.NoError(t, err)
					drain(t, client, &received)
				}

				drain(t, client, &received)
				require.Equal(t, int64(len(payload)), sent)
				require.True(t, bytes.Equal(payload, received.Bytes()))
			})

			t.Run("tiny file", func(t *testing.T) {
				server, client := getSocketpair(t)
				content := []byte("hello, world")
				file := getFile(t, content)
				var sent int64

				n, err := b.ServeFile(server, file, &sent, int64(len(content)))
				require.NoError(t, err)
				require.Equal(t, len(content), n)
				require.Equal(t, int64(len(content)), sent)

				var received bytes.Buffer
				drain(t, client, &received)
				require.Equal(t, content, received.Bytes())
			})

			t.Run("nothing left", func(t *testing.T) {
				server, _ := getSocketpair(t)
				file := getFile(t, []byte("abc"))
				sent := int64(3)
				n, err := b.ServeFile(server, file, &sent, 3)
				require.NoError(t, err)
				require.Zero(t, n)
			})

			t.Run("would block", func(t *testing.T) {
				server, _ := getSocketpair(t)
				file := getFile(t, payload)
				var sent int64

				for {
					n, err := b.ServeFile(server, file, &sent, int64(len(payload)))
					require.NoError(t, err)
					if n == 0 {
						break
					}
				}

				require.Less(t, sent, int64(len(payload)))
			})

			t.Run("peer gone", func(t *testing.T) {
				fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
				require.NoError(t, err)
				defer unix.Close(fds[0])
				require.NoError(t, unix.Close(fds[1]))

				file := getFile(t, payload)
				var sent int64
				_, err = b.ServeFile(fds[0], file, &sent, int64(len(payload)))
				require.Error(t, err)
				require.Zero(t, sent)
			})
		})
	}
}

func TestNew(t *testing.T) {
	for _, name := range []string{NameMmap, NameSendfile, NameBuffered} {
		b, err := New(name, 0)
		require.NoError(t, err)
		require.Equal(t, name, b.Name())
	}

	b, err := New("", 0)
	require.NoError(t, err)
	require.Equal(t, NameMmap, b.Name())

	_, err = New("carrier-pigeon", 0)
	require.ErrorIs(t, err, ErrUnknownBackend)
}
