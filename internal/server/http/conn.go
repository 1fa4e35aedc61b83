package http

import (
	"bytes"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/indigo-web/httpd/http"
	"github.com/indigo-web/httpd/http/mime"
	"github.com/indigo-web/httpd/http/status"
	"github.com/indigo-web/httpd/internal/buffer"
	"github.com/indigo-web/httpd/internal/engine"
	"github.com/indigo-web/httpd/internal/protocol/http1"
	"github.com/indigo-web/httpd/internal/strutil"
	"github.com/indigo-web/httpd/internal/uri"
	"github.com/indigo-web/httpd/kv"
	"golang.org/x/sys/unix"
)

// pumpRounds limits how many backend calls a single write readiness may take, so one
// fast client can't starve the rest of the tick.
const pumpRounds = 16

var headEnd = []byte("\r\n\r\n")

// Conn is a single client connection. It's driven exclusively by the event loop.
type Conn struct {
	srv        *Server
	fd         int
	peer       string
	state      State
	request    *http.Request
	response   *kv.Storage
	keepAlive  bool
	recv       buffer.Queue
	send       buffer.Queue
	file       *os.File
	filePath   string
	sent       int64
	size       int64
	code       status.Code
	completed  int
	created    time.Time
	active     time.Time
	quitting   bool
	processing bool
}

// NewConn wraps the accepted non-blocking descriptor. No I/O is performed until the
// connection is registered in the engine.
func (s *Server) NewConn(fd int, peer string) *Conn {
	cfg := s.Config
	now := s.Clock.Now()

	return &Conn{
		srv:      s,
		fd:       fd,
		peer:     peer,
		request:  http.NewRequest(kv.NewPrealloc(cfg.Headers.Number.Default), peer),
		response: kv.NewPrealloc(8),
		recv:     buffer.New(cfg.NET.ReadBufferSize, 2*cfg.Headers.MaxSize+cfg.NET.ReadBufferSize),
		send:     buffer.New(cfg.NET.ReadBufferSize, 0),
		created:  now,
		active:   now,
	}
}

func (c *Conn) Fd() int {
	return c.fd
}

func (c *Conn) Peer() string {
	return c.peer
}

func (c *Conn) Created() time.Time {
	return c.created
}

func (c *Conn) LastActive() time.Time {
	return c.active
}

func (c *Conn) State() State {
	return c.state
}

// Completed returns the number of requests served over the connection.
func (c *Conn) Completed() int {
	return c.completed
}

func (c *Conn) KeepAlive() bool {
	return c.keepAlive
}

func (c *Conn) Quitting() bool {
	return c.quitting
}

func (c *Conn) HandleEvent(ev engine.Event, err error) {
	if c.quitting {
		return
	}

	switch ev {
	case engine.EventRead:
		c.onReadable()
	case engine.EventWrite:
		c.advance()
	case engine.EventError:
		c.srv.Logger.V(1).Info("connection failure", "peer", c.peer, "err", err)
		c.quit()
	}
}

func (c *Conn) onReadable() {
	if c.busy() && c.recv.Room() < len(c.srv.scratch) {
		// pipelined requests wait in the socket buffer until the current response is done
		c.srv.Engine.PauseRead(c)
		return
	}

	n, err := unix.Read(c.fd, c.srv.scratch)
	switch {
	case err == unix.EAGAIN || err == unix.EINTR:
		return
	case err != nil:
		c.srv.Logger.V(1).Info("read failed", "peer", c.peer, "err", err)
		c.quit()
		return
	case n == 0:
		c.quit()
		return
	}

	c.active = c.srv.Clock.Now()

	if !c.recv.Append(c.srv.scratch[:n]) {
		if c.state == WaitRequest {
			c.fail(status.ErrHeaderFieldsTooLarge)
		} else {
			c.srv.Logger.V(1).Info("receive queue overflow", "peer", c.peer, "state", c.state.String())
			c.quit()
		}

		return
	}

	c.process()
}

// process consumes buffered requests one after another. It's guarded against re-entrance,
// so completing a request from within doesn't grow the stack. Instead, the loop picks up
// the next pipelined request.
func (c *Conn) process() {
	if c.processing {
		return
	}

	c.processing = true
	defer func() {
		c.processing = false
	}()

	for !c.quitting {
		var progressed bool

		switch c.state {
		case WaitRequest:
			progressed = c.detectRequest()
		case RecvReqBody:
			progressed = c.receiveBody()
		}

		if !progressed {
			return
		}
	}
}

func (c *Conn) detectRequest() bool {
	data := c.recv.Bytes()
	for len(data) >= 2 && data[0] == '\r' && data[1] == '\n' {
		// empty lines preceding the request line are ignored
		c.recv.Consume(2)
		data = c.recv.Bytes()
	}

	maxSize := c.srv.Config.Headers.MaxSize
	end := bytes.Index(data, headEnd)
	if end == -1 {
		if len(data) > maxSize {
			c.fail(status.ErrHeaderFieldsTooLarge)
		}

		return false
	}

	if end+len(headEnd) > maxSize {
		c.fail(status.ErrHeaderFieldsTooLarge)
		return false
	}

	err := c.srv.parser.Parse(data[:end], c.request)
	c.recv.Consume(end + len(headEnd))
	if err != nil {
		c.fail(err)
		return false
	}

	c.keepAlive = c.negotiateKeepAlive()

	switch length := c.request.ContentLength; {
	case length == 0:
		c.dispatch()
	case !c.request.Method.AcceptsBody():
		c.fail(status.ErrUnexpectedBody)
		return false
	case length > c.srv.Config.Body.MaxSize:
		c.fail(status.ErrBodyTooLarge)
		return false
	default:
		c.state = RecvReqBody
	}

	return true
}

func (c *Conn) negotiateKeepAlive() bool {
	keepAlive := c.request.Protocol.KeepAliveByDefault()
	if value, found := c.request.Headers.Get("Connection"); found {
		switch {
		case strutil.HasToken(value, "close"):
			keepAlive = false
		case strutil.HasToken(value, "keep-alive"):
			keepAlive = true
		}
	}

	if limit := c.srv.Config.KeepAlive.Max; limit > 0 && c.completed+1 >= limit {
		keepAlive = false
	}

	return keepAlive
}

func (c *Conn) receiveBody() bool {
	need := c.request.ContentLength - int64(len(c.request.Body))
	data := c.recv.Bytes()
	take := int(min(need, int64(len(data))))
	c.request.Body = append(c.request.Body, data[:take]...)
	c.recv.Consume(take)

	if int64(len(c.request.Body)) < c.request.ContentLength {
		return false
	}

	c.dispatch()
	return true
}

func (c *Conn) dispatch() {
	request := c.request
	if !request.Method.Served() {
		c.respondError(status.NotImplemented)
		return
	}

	path := c.srv.root + request.Path
	st, err := c.srv.Stat.Stat(path)
	if err != nil {
		c.respondError(codeOfErrno(err))
		return
	}

	if isDir(&st) {
		if !strings.HasSuffix(request.Path, "/") {
			c.redirect(uri.Escape(request.Path) + "/")
			return
		}

		path += c.srv.Config.Files.IndexFile
		if st, err = c.srv.Stat.Stat(path); err != nil {
			c.respondError(codeOfErrno(err))
			return
		}
	}

	if !isRegular(&st) {
		c.respondError(status.Forbidden)
		return
	}

	c.filePath = path
	c.state = SendHeaders
	if c.srv.Responder != nil && c.srv.Responder.Respond(request, path, c) {
		return
	}

	file, size, err := c.open(path)
	if err != nil {
		// the file might have been changed since it was cached
		c.srv.Stat.Forget(path)
		c.respondError(codeOfErrno(err))
		return
	}

	c.file, c.sent = file, 0
	c.SendHeaders(size, status.OK, "", nil)
}

func (c *Conn) open(path string) (*os.File, int64, error) {
	flags := unix.O_RDONLY | unix.O_CLOEXEC
	if !c.srv.Config.Files.FollowSymlinks {
		flags |= unix.O_NOFOLLOW
	}

	if !c.srv.Config.Files.UpdateAtime {
		flags |= noatime
	}

	fd, err := openFile(path, flags)
	if err == unix.EPERM && flags&noatime != 0 {
		// O_NOATIME is permitted only to the file owner
		fd, err = openFile(path, flags&^noatime)
	}

	if err != nil {
		return nil, 0, err
	}

	var st unix.Stat_t
	if err = unix.Fstat(fd, &st); err != nil {
		_ = unix.Close(fd)
		return nil, 0, err
	}

	if !isRegular(&st) {
		_ = unix.Close(fd)
		return nil, 0, unix.EACCES
	}

	return os.NewFile(uintptr(fd), path), st.Size, nil
}

func openFile(path string, flags int) (int, error) {
	for {
		fd, err := unix.Open(path, flags, 0)
		if err != unix.EINTR {
			return fd, err
		}
	}
}

// SendHeaders queues the response head. Date, Server, Content-Length and Connection fields
// are always set by the connection itself. Content-Type is inferred from the resolved file
// if not set, and removed for empty responses. Zero size completes the request right away.
func (c *Conn) SendHeaders(size int64, code status.Code, text string, extra *kv.Storage) {
	if c.quitting {
		return
	}

	headers := c.response.Clear()
	if extra != nil {
		for key, value := range extra.Pairs() {
			headers.Set(key, value)
		}
	}

	if value, found := headers.Get("Connection"); found && strutil.HasToken(value, "close") {
		c.keepAlive = false
	}

	headers.Set("Content-Length", strconv.FormatInt(size, 10))
	switch {
	case size == 0:
		headers.Delete("Content-Type")
	case !headers.Has("Content-Type") && len(c.filePath) > 0:
		headers.Set("Content-Type", c.srv.MIME.ByPath(c.filePath))
	}

	if c.keepAlive {
		headers.Set("Connection", "keep-alive")
	} else {
		headers.Set("Connection", "close")
	}

	c.code, c.size = code, size
	c.srv.head = c.srv.serializer.AppendHead(c.srv.head[:0], c.request.Protocol, code, text, headers)
	c.send.Append(c.srv.head)

	switch {
	case size == 0:
		c.EndRequest()
	case c.file != nil:
		c.state = SendData
		c.advance()
	default:
		c.state = SendHeaders
	}
}

// AddWriteBuf queues the data. Nothing is written until FlushWriteBuf.
func (c *Conn) AddWriteBuf(data []byte) {
	if c.quitting {
		return
	}

	c.send.Append(data)
}

// FlushWriteBuf writes the send queue until the socket would block, in which case the
// write readiness is requested. It reports whether the queue was drained.
func (c *Conn) FlushWriteBuf() bool {
	for !c.quitting && !c.send.Empty() {
		n, err := unix.Write(c.fd, c.send.Bytes())
		switch err {
		case nil:
			c.send.Consume(n)
			c.active = c.srv.Clock.Now()
		case unix.EINTR:
		case unix.EAGAIN:
			c.srv.Engine.WantWrite(c)
			return false
		default:
			c.srv.Logger.V(1).Info("write failed", "peer", c.peer, "err", err)
			c.quit()
			return false
		}
	}

	return !c.quitting
}

// advance pushes the response forward as far as the socket allows.
func (c *Conn) advance() {
	if !c.FlushWriteBuf() {
		return
	}

	switch c.state {
	case SendData:
		c.pump()
	case Finished:
		c.quit()
	}
}

func (c *Conn) pump() {
	for range pumpRounds {
		if c.sent >= c.size {
			c.EndRequest()
			return
		}

		n, err := c.srv.Backend.ServeFile(c.fd, c.file, &c.sent, c.size)
		if err != nil {
			c.srv.Logger.V(1).Info("sending file failed",
				"peer", c.peer, "path", c.filePath, "backend", c.srv.Backend.Name(), "err", err,
			)
			c.quit()
			return
		}

		if n == 0 {
			c.srv.Engine.WantWrite(c)
			return
		}

		c.active = c.srv.Clock.Now()
	}

	c.srv.Engine.WantWrite(c)
}

// EndRequest completes the current response. Either the connection is closed as soon as
// the send queue drains, or it's reset to wait for the next request, which might already
// be buffered.
func (c *Conn) EndRequest() {
	if c.quitting || c.state == Finished {
		return
	}

	c.completed++
	c.srv.Logger.V(1).Info("request",
		"peer", c.peer,
		"method", c.request.RawMethod,
		"path", c.request.Path,
		"status", int(c.code),
		"bytes", c.size,
	)
	c.closeFile()

	if !c.keepAlive {
		c.state = Finished
		c.advance()
		return
	}

	c.request.Reset()
	c.filePath = ""
	c.code = 0
	c.sent, c.size = 0, 0
	c.state = WaitRequest
	c.srv.Engine.ResumeRead(c)
	c.advance()
	c.process()
}

func (c *Conn) redirect(location string) {
	if len(c.request.Query) > 0 {
		location += "?" + c.request.Query
	}

	page := http1.ErrorPage(status.MovedPermanently)
	headers := kv.NewPrealloc(2).
		Set("Location", location).
		Set("Content-Type", htmlContentType)
	c.SendHeaders(int64(len(page)), status.MovedPermanently, "", headers)
	c.AddWriteBuf(page)
	c.EndRequest()
}

var htmlContentType = mime.HTML + "; charset=" + mime.UTF8

// fail responds with the error and closes the connection afterward.
func (c *Conn) fail(err error) {
	c.srv.Logger.V(1).Info("malformed request", "peer", c.peer, "err", err)
	c.keepAlive = false
	c.respondError(status.CodeOf(err))
}

func (c *Conn) respondError(code status.Code) {
	page := http1.ErrorPage(code)
	c.SendHeaders(int64(len(page)), code, "", c.srv.htmlHeaders)
	c.AddWriteBuf(page)
	c.EndRequest()
}

func (c *Conn) closeFile() {
	if c.file == nil {
		return
	}

	if err := c.file.Close(); err != nil {
		c.srv.Logger.Error(err, "closing file", "path", c.filePath)
	}

	c.file = nil
}

func (c *Conn) quit() {
	c.srv.Cull.AddItem(c)
}

// MarkQuitting flags the connection for destruction, returning false if it was already
// flagged.
func (c *Conn) MarkQuitting() bool {
	if c.quitting {
		return false
	}

	c.quitting = true
	return true
}

// Cull releases every resource held by the connection.
func (c *Conn) Cull() {
	c.srv.Engine.DelFd(c, true)
	c.closeFile()

	if err := unix.Close(c.fd); err != nil {
		c.srv.Logger.Error(err, "closing connection", "peer", c.peer)
	}

	c.recv.Release()
	c.send.Release()
	c.state = Finished

	if c.srv.Release != nil {
		c.srv.Release(c)
	}

	c.srv.Logger.V(2).Info("connection closed", "peer", c.peer, "requests", c.completed)
}

// busy reports whether incoming data can't be consumed until the current response is done.
func (c *Conn) busy() bool {
	return c.state != WaitRequest && c.state != RecvReqBody
}

func isDir(st *unix.Stat_t) bool {
	return st.Mode&unix.S_IFMT == unix.S_IFDIR
}

func isRegular(st *unix.Stat_t) bool {
	return st.Mode&unix.S_IFMT == unix.S_IFREG
}
