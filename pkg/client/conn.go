package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"github.com/pzhenzhou/respcli/pkg/common"
	"github.com/pzhenzhou/respcli/pkg/metrics"
	"github.com/pzhenzhou/respcli/pkg/respio"
	"golang.org/x/sys/unix"
)

const (
	DefaultDialTimeout = 5 * time.Second
)

var (
	logger = common.InitLogger().WithName("client")

	// ErrClosed is returned by every call on a closed connection. A connection
	// is also closed after a transport or protocol error.
	ErrClosed = errors.New("respcli: connection is closed")
)

type options struct {
	dialTimeout time.Duration
	middleware  *metrics.ClientMetricsMiddleware
}

type Option func(*options)

func WithDialTimeout(timeout time.Duration) Option {
	return func(o *options) {
		o.dialTimeout = timeout
	}
}

// WithMetrics records every command of the connection through middleware.
func WithMetrics(middleware *metrics.ClientMetricsMiddleware) Option {
	return func(o *options) {
		o.middleware = middleware
	}
}

// Conn is a single RESP connection. Calls are half-duplex: one command is
// written and its reply fully read before the next command starts. Conn may be
// shared by goroutines, their calls are serialized.
type Conn struct {
	Id         string
	conn       net.Conn
	reader     *respio.RespReader
	writer     *respio.RespWriter
	mu         sync.Mutex
	closed     atomic.Bool
	created    time.Time
	usedAt     int64
	middleware *metrics.ClientMetricsMiddleware
}

func Dial(ctx context.Context, addr string, opts ...Option) (*Conn, error) {
	o := &options{dialTimeout: DefaultDialTimeout}
	for _, opt := range opts {
		opt(o)
	}
	dialer := &net.Dialer{
		Timeout: o.dialTimeout,
		Control: func(network, address string, c syscall.RawConn) error {
			var ctrlErr error
			err := c.Control(func(fd uintptr) {
				// Set SO_REUSEADDR so short-lived CLI runs do not exhaust local ports in TIME_WAIT
				if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
					ctrlErr = fmt.Errorf("failed to set SO_REUSEADDR: %w", err)
				}
			})
			if err != nil {
				return err
			}
			return ctrlErr
		},
	}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		logger.Error(err, "Failed to connect", "Addr", addr)
		return nil, err
	}
	c := newConn(conn, o)
	logger.V(1).Info("Connection established", "connId", c.Id, "Addr", addr)
	return c, nil
}

// NewConn wraps an established stream, e.g. a net.Pipe end or a TLS conn.
func NewConn(conn net.Conn, opts ...Option) *Conn {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	return newConn(conn, o)
}

func newConn(conn net.Conn, o *options) *Conn {
	now := time.Now()
	c := &Conn{
		Id:         shortuuid.New(),
		conn:       conn,
		reader:     respio.NewRespReader(conn),
		writer:     respio.NewRespWriter(conn),
		created:    now,
		usedAt:     now.Unix(),
		middleware: o.middleware,
	}
	if c.middleware != nil {
		c.middleware.OnConnectionOpen()
	}
	return c
}

// Do sends one command and returns its reply. A top-level error reply is
// returned as *respio.ServerError and leaves the connection usable. Protocol
// and transport errors are returned as they are and close the connection.
// A deadline on ctx bounds the whole exchange.
func (c *Conn) Do(ctx context.Context, cmd string, args ...any) (respio.Reply, error) {
	if c.middleware == nil {
		return c.do(ctx, cmd, args...)
	}
	var reply respio.Reply
	err := c.middleware.WrapCommand(cmd, func() error {
		var doErr error
		reply, doErr = c.do(ctx, cmd, args...)
		return doErr
	})
	return reply, err
}

func (c *Conn) do(ctx context.Context, cmd string, args ...any) (respio.Reply, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed.Load() {
		return nil, ErrClosed
	}
	if deadline, ok := ctx.Deadline(); ok {
		if err := c.conn.SetDeadline(deadline); err != nil {
			c.abort(err)
			return nil, err
		}
		defer func() {
			_ = c.conn.SetDeadline(time.Time{})
		}()
	}
	if err := c.writer.WriteCommand(cmd, args...); err != nil {
		c.abort(err)
		return nil, err
	}
	reply, err := c.reader.Read()
	if err != nil {
		c.abort(err)
		return nil, err
	}
	c.SetUsedAt(time.Now())
	if errReply, ok := reply.(respio.ErrorReply); ok {
		return nil, errReply.Err()
	}
	return reply, nil
}

// abort closes a connection whose stream position can no longer be trusted.
func (c *Conn) abort(err error) {
	if common.IsConnUnavailable(err) {
		logger.Info("Connection lost", "connId", c.Id, "error", err)
	} else {
		logger.Error(err, "Closing connection after failed exchange", "connId", c.Id)
	}
	_ = c.close()
}

// Close releases the socket. It does not wait for an in-flight Do, which
// fails with a transport error.
func (c *Conn) Close() error {
	return c.close()
}

func (c *Conn) close() error {
	if c.closed.Swap(true) {
		return nil
	}
	if c.middleware != nil {
		c.middleware.OnConnectionClose()
	}
	closeErr := c.conn.Close()
	logger.V(1).Info("Connection closed", "connId", c.Id, "error", closeErr)
	return closeErr
}

func (c *Conn) IsClosed() bool {
	return c.closed.Load()
}

func (c *Conn) Created() time.Time {
	return c.created
}

func (c *Conn) UsedAt() time.Time {
	sec := atomic.LoadInt64(&c.usedAt)
	return time.Unix(sec, 0)
}

func (c *Conn) SetUsedAt(inTime time.Time) {
	atomic.StoreInt64(&c.usedAt, inTime.Unix())
}

func (c *Conn) RemoteAddr() net.Addr {
	if c.conn != nil {
		return c.conn.RemoteAddr()
	}
	return nil
}

func (c *Conn) String() string {
	return fmt.Sprintf("Conn(%s -> %v)", c.Id, c.RemoteAddr())
}
