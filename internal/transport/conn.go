// Package transport owns the byte-stream side of a chat connection:
// dialing, newline framing, and the one-way authorization flag.
package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/minechat/internal/logging"
)

// MessageTerminator ends every application message on the wire.
const MessageTerminator = "\n\n"

// Options defines per-connection timeouts. Zero disables a timeout.
type Options struct {
	Role           string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
}

func DefaultOptions() Options {
	return Options{
		ConnectTimeout: 10 * time.Second,
		WriteTimeout:   15 * time.Second,
	}
}

// Conn is one line-oriented stream to the chat server.
type Conn struct {
	raw    net.Conn
	reader *bufio.Reader
	writer *bufio.Writer
	addr   string
	opts   Options

	authorized atomic.Bool
	closed     atomic.Bool
	closeOnce  sync.Once
}

// Dial opens a TCP stream to host:port. Resolver and socket failures are
// returned as *ConnectError; context cancellation is returned as is.
func Dial(ctx context.Context, opts Options, host string, port int) (*Conn, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	dialer := net.Dialer{Timeout: opts.ConnectTimeout}
	raw, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &ConnectError{Addr: addr, Err: err}
	}
	logging.Debugf("transport.Dial role=%s addr=%q connected", opts.Role, addr)
	return NewConn(raw, opts), nil
}

// NewConn wraps an established stream.
func NewConn(raw net.Conn, opts Options) *Conn {
	addr := ""
	if ra := raw.RemoteAddr(); ra != nil {
		addr = ra.String()
	}
	return &Conn{
		raw:    raw,
		reader: bufio.NewReader(raw),
		writer: bufio.NewWriter(raw),
		addr:   addr,
		opts:   opts,
	}
}

func (c *Conn) Addr() string {
	return c.addr
}

func (c *Conn) Role() string {
	return c.opts.Role
}

func (c *Conn) Authorized() bool {
	return c.authorized.Load()
}

// MarkAuthorized flips the connection to authorized. It reports true only for
// the call that performed the transition.
func (c *Conn) MarkAuthorized() bool {
	return c.authorized.CompareAndSwap(false, true)
}

// ReadLine blocks until one newline-terminated frame arrives and returns it
// without the terminator.
func (c *Conn) ReadLine(ctx context.Context) (string, error) {
	if err := c.setReadDeadline(ctx); err != nil {
		return "", c.ioErr(ctx, err)
	}
	line, err := c.reader.ReadString('\n')
	if err != nil {
		return "", c.ioErr(ctx, err)
	}
	line = strings.TrimRight(line, "\r\n")
	logging.Tracef("transport.ReadLine role=%s line=%q", c.opts.Role, line)
	return line, nil
}

// WriteLine writes text in message wire form (see EncodeMessage).
func (c *Conn) WriteLine(ctx context.Context, text string, flush bool) error {
	return c.write(ctx, EncodeMessage(text), flush)
}

// WriteRaw writes line followed by a single newline, unmodified. It is used
// for handshake frames which must reach the server verbatim.
func (c *Conn) WriteRaw(ctx context.Context, line string, flush bool) error {
	if strings.ContainsAny(line, "\r\n") {
		return ErrInvalidLine
	}
	return c.write(ctx, []byte(line+"\n"), flush)
}

// Flush drains buffered writes.
func (c *Conn) Flush(ctx context.Context) error {
	if err := c.setWriteDeadline(ctx); err != nil {
		return c.ioErr(ctx, err)
	}
	if err := c.writer.Flush(); err != nil {
		return c.ioErr(ctx, err)
	}
	return nil
}

func (c *Conn) write(ctx context.Context, payload []byte, flush bool) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}
	if err := c.setWriteDeadline(ctx); err != nil {
		return c.ioErr(ctx, err)
	}
	if _, err := c.writer.Write(payload); err != nil {
		return c.ioErr(ctx, err)
	}
	if flush {
		if err := c.writer.Flush(); err != nil {
			return c.ioErr(ctx, err)
		}
	}
	logging.Tracef("transport.write role=%s bytes=%d flush=%t", c.opts.Role, len(payload), flush)
	return nil
}

// Watch closes the connection once ctx is done. The returned func detaches
// the watcher and reports whether it did so before firing.
func (c *Conn) Watch(ctx context.Context) (stop func() bool) {
	return context.AfterFunc(ctx, func() {
		_ = c.Close()
	})
}

// Close releases the stream. Calls after the first return nil.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		err = c.raw.Close()
		logging.Debugf("transport.Close role=%s addr=%q", c.opts.Role, c.addr)
	})
	return err
}

func (c *Conn) setReadDeadline(ctx context.Context) error {
	return c.raw.SetReadDeadline(deadlineFor(ctx, c.opts.ReadTimeout))
}

func (c *Conn) setWriteDeadline(ctx context.Context) error {
	return c.raw.SetWriteDeadline(deadlineFor(ctx, c.opts.WriteTimeout))
}

func deadlineFor(ctx context.Context, timeout time.Duration) time.Time {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	if ctxDeadline, ok := ctx.Deadline(); ok && (deadline.IsZero() || ctxDeadline.Before(deadline)) {
		deadline = ctxDeadline
	}
	return deadline
}

func (c *Conn) ioErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		if d, ok := ctx.Deadline(); ok && !time.Now().Before(d) {
			return context.DeadlineExceeded
		}
	}
	if errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, net.ErrClosed) ||
		c.closed.Load() {
		return fmt.Errorf("%w: role=%s addr=%s", ErrConnectionClosed, c.opts.Role, c.addr)
	}
	return err
}
