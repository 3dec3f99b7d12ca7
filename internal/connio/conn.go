// Package connio drives one accepted TCP connection: it owns the raw
// receive/send buffers, feeds them to an internal/handler.Handler, and
// performs the socket I/O the handler's parse loop asks for.
package connio

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/shardcached/shardcached/internal/handler"
	"github.com/shardcached/shardcached/internal/wire"
)

// ErrShutdown is returned by Serve when the client issued "shutdown".
var ErrShutdown = errors.New("client requested shutdown")

const readChunk = 4096

// Conn owns one accepted connection's lifecycle: read, parse, dispatch,
// write, until quit/shutdown/error/close.
type Conn struct {
	raw net.Conn
	h   *handler.Handler
	log *slog.Logger

	idleTimeout time.Duration

	mu     sync.Mutex
	closed bool

	rbuf []byte
	sbuf []byte
}

// New wraps an accepted connection. idleTimeout of 0 disables read
// deadlines.
func New(raw net.Conn, h *handler.Handler, idleTimeout time.Duration, log *slog.Logger) *Conn {
	if log == nil {
		log = slog.Default()
	}
	return &Conn{
		raw: raw,
		h:   h,
		log: log.With(
			slog.String("remote", raw.RemoteAddr().String()),
			slog.String("conn_id", uuid.NewString()),
		),
		idleTimeout: idleTimeout,
		rbuf:        make([]byte, 0, readChunk),
	}
}

// Serve runs the connection's read-parse-dispatch-write loop until the
// client disconnects, asks to quit or shut down, ctx is cancelled while
// it waits on an outstanding Request, or an I/O error occurs. ctx is not
// watched during a socket Read; closing the connection unblocks that.
// It always closes the connection before returning.
func (c *Conn) Serve(ctx context.Context) error {
	defer c.Close()
	c.log.Debug("connection accepted")

	tmp := make([]byte, readChunk)

	for {
		if err := c.flush(); err != nil {
			return err
		}

		consumed, verdict := c.h.Feed(c.rbuf, &c.sbuf)
		c.slide(consumed)

		switch verdict {
		case wire.VerdictComplex:
			if err := c.awaitCompletion(ctx); err != nil {
				c.h.Abandon()
				return err
			}
			continue
		case wire.VerdictQuit:
			return c.flush()
		case wire.VerdictShutdown:
			_ = c.flush()
			return ErrShutdown
		default:
			// VerdictPartial: need more bytes before parsing can
			// make further progress.
		}

		if c.idleTimeout > 0 {
			if err := c.raw.SetReadDeadline(time.Now().Add(c.idleTimeout)); err != nil {
				return errors.Wrap(err, "set read deadline")
			}
		}

		n, err := c.raw.Read(tmp)
		if n > 0 {
			c.rbuf = append(c.rbuf, tmp[:n]...)
		}
		if err != nil {
			return err
		}
	}
}

// awaitCompletion blocks on the handler's outstanding Request,
// appending its eventual reply to sbuf. If ctx is cancelled first
// (server shutting down), the caller is responsible for calling
// Abandon so the Request's WorkItems are drained instead of leaked.
func (c *Conn) awaitCompletion(ctx context.Context) error {
	for {
		select {
		case item, ok := <-c.h.Completions():
			if !ok {
				return nil
			}
			reply, done := c.h.Advance(item)
			if done {
				c.sbuf = append(c.sbuf, reply...)
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Conn) flush() error {
	if len(c.sbuf) == 0 {
		return nil
	}
	if _, err := c.raw.Write(c.sbuf); err != nil {
		return errors.Wrap(err, "write reply")
	}
	c.sbuf = c.sbuf[:0]
	return nil
}

// slide discards the leading n consumed bytes of rbuf, keeping the
// remainder (if any) for the next parse attempt.
func (c *Conn) slide(n int) {
	if n == 0 {
		return
	}
	remaining := copy(c.rbuf, c.rbuf[n:])
	c.rbuf = c.rbuf[:remaining]
}

// Close closes the underlying socket. Safe to call more than once.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.raw.Close()
}
