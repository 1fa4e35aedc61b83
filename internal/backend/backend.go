// Package backend implements strategies of transmitting a file's content into a
// non-blocking socket.
package backend

import (
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Backend transmits a file into a socket. ServeFile sends as much as the socket
// accepts of file[*sent:size] and advances *sent by the amount written. It returns
// a positive number of bytes if something was sent, zero with nil error if the socket
// would block, and a non-nil error if the connection must be dropped.
type Backend interface {
	ServeFile(sock int, file *os.File, sent *int64, size int64) (int, error)
	Name() string
}

const (
	NameMmap     = "mmap"
	NameSendfile = "sendfile"
	NameBuffered = "buffered"
)

var ErrUnknownBackend = errors.New("unknown response backend")

// New returns a backend by its name. chunk sets the scratch buffer size of the
// buffered backend and is ignored by the others.
func New(name string, chunk int) (Backend, error) {
	switch name {
	case NameMmap, "":
		return NewMmap(), nil
	case NameSendfile:
		return NewSendfile(), nil
	case NameBuffered:
		return NewBuffered(chunk), nil
	default:
		return nil, errors.Wrap(ErrUnknownBackend, name)
	}
}

// write performs a single non-blocking write, translating transient conditions into
// a zero-length result.
func write(sock int, data []byte) (int, error) {
	n, err := unix.Write(sock, data)
	switch err {
	case nil:
		return n, nil
	case unix.EAGAIN, unix.EINTR:
		return 0, nil
	default:
		return 0, err
	}
}

// Mmap maps the remaining part of the file on every call, writes from it and unmaps
// it right away.
type Mmap struct {
	window int64
	page   int64
}

const mmapWindow = 4 << 20

func NewMmap() *Mmap {
	return &Mmap{
		window: mmapWindow,
		page:   int64(unix.Getpagesize()),
	}
}

func (*Mmap) Name() string {
	return NameMmap
}

func (m *Mmap) ServeFile(sock int, file *os.File, sent *int64, size int64) (int, error) {
	if *sent >= size {
		return 0, nil
	}

	// mmap offsets must be page-aligned
	base := *sent &^ (m.page - 1)
	length := min(size-base, m.window)
	data, err := unix.Mmap(int(file.Fd()), base, int(length), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return 0, errors.Wrap(err, "mmap")
	}

	n, err := write(sock, data[*sent-base:])
	if uerr := unix.Munmap(data); uerr != nil && err == nil {
		err = errors.Wrap(uerr, "munmap")
	}

	if err != nil {
		return 0, err
	}

	*sent += int64(n)
	return n, nil
}

// Sendfile lets the kernel copy the file into the socket.
type Sendfile struct{}

func NewSendfile() Sendfile {
	return Sendfile{}
}

func (Sendfile) Name() string {
	return NameSendfile
}

func (Sendfile) ServeFile(sock int, file *os.File, sent *int64, size int64) (int, error) {
	if *sent >= size {
		return 0, nil
	}

	offset := *sent
	n, err := unix.Sendfile(sock, int(file.Fd()), &offset, int(min(size-*sent, 1<<30)))
	if n > 0 {
		// some platforms report a partial transfer together with EAGAIN
		*sent += int64(n)
		return n, nil
	}

	switch err {
	case nil:
		// the file shrank under our feet
		return 0, errors.Wrap(unix.EIO, "sendfile: unexpected end of file")
	case unix.EAGAIN, unix.EINTR:
		return 0, nil
	default:
		return 0, err
	}
}

// Buffered reads the file chunk by chunk into an owned buffer and writes it out. Bytes
// the socket didn't accept are read again on the next call.
type Buffered struct {
	buff []byte
}

const DefaultChunk = 64 * 1024

func NewBuffered(chunk int) *Buffered {
	if chunk <= 0 {
		chunk = DefaultChunk
	}

	return &Buffered{buff: make([]byte, chunk)}
}

func (*Buffered) Name() string {
	return NameBuffered
}

func (b *Buffered) ServeFile(sock int, file *os.File, sent *int64, size int64) (int, error) {
	if *sent >= size {
		return 0, nil
	}

	chunk := b.buff[:min(int64(len(b.buff)), size-*sent)]
	n, err := unix.Pread(int(file.Fd()), chunk, *sent)
	switch {
	case err == unix.EINTR:
		return 0, nil
	case err != nil:
		return 0, errors.Wrap(err, "pread")
	case n == 0:
		return 0, errors.Wrap(unix.EIO, "pread: unexpected end of file")
	}

	written, err := write(sock, chunk[:n])
	if err != nil {
		return 0, err
	}

	*sent += int64(written)
	return written, nil
}
