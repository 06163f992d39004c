package mockserver

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/panjf2000/gnet/v2"
	"github.com/pzhenzhou/respcli/pkg/client"
	"github.com/pzhenzhou/respcli/pkg/common"
	"github.com/pzhenzhou/respcli/pkg/metrics"
	"github.com/pzhenzhou/respcli/pkg/respio"
)

const (
	Banner = `
  _ __ ___  ___ _ __   ___| (_)
 | '__/ _ \/ __| '_ \ / __| | |
 | | |  __/\__ \ |_) | (__| | |
 |_|  \___||___/ .__/ \___|_|_|  mock server
               |_|
`
)

var (
	logger = common.InitLogger().WithName("mock-srv")

	ErrNotStarted = errors.New("mock server is not running")

	defaultReadyTimeout = 10 * time.Second
)

type Stats struct {
	Connections int64 `json:"connections"`
	Commands    int64 `json:"commands"`
	Keys        int   `json:"keys"`
}

// Server is an in-memory RESP2 server for the string commands the client
// exercises. Each event loop parses whatever is buffered on a connection,
// answers every complete command and leaves a partial one for the next event.
type Server struct {
	gnet.BuiltinEventEngine
	eng         atomic.Pointer[gnet.Engine]
	config      *common.ServerConfig
	keyspace    *Keyspace
	connections atomic.Int64
	commands    atomic.Int64
	middleware  *metrics.ClientMetricsMiddleware
}

func NewServer(config *common.ServerConfig) *Server {
	return &Server{
		config:   config,
		keyspace: NewKeyspace(),
	}
}

// Start runs the event loops and blocks until the server stops.
func (s *Server) Start() error {
	opts := s.config.GNetOptions()
	opts = append(opts,
		gnet.WithReuseAddr(true),
		gnet.WithLogger(common.RawZapLogger().Sugar()),
	)
	logger.Info("Starting mock server", "address", s.config.Addr())
	return gnet.Run(s, s.config.Addr(), opts...)
}

// SetMetricsMiddleware records every served command through middleware.
// Error replies are counted as server errors.
func (s *Server) SetMetricsMiddleware(middleware *metrics.ClientMetricsMiddleware) {
	s.middleware = middleware
}

func (s *Server) Addr() string {
	return s.config.ListenAddr()
}

func (s *Server) Keyspace() *Keyspace {
	return s.keyspace
}

func (s *Server) Stats() Stats {
	return Stats{
		Connections: s.connections.Load(),
		Commands:    s.commands.Load(),
		Keys:        s.keyspace.Len(),
	}
}

func (s *Server) OnBoot(eng gnet.Engine) gnet.Action {
	s.eng.Store(&eng)
	logger.Info("Mock server booted", "address", s.config.Addr())
	return gnet.None
}

func (s *Server) OnOpen(c gnet.Conn) (out []byte, action gnet.Action) {
	s.connections.Add(1)
	if s.middleware != nil {
		s.middleware.OnConnectionOpen()
	}
	logger.V(1).Info("Connection opened", "remote", c.RemoteAddr())
	return nil, gnet.None
}

func (s *Server) OnClose(c gnet.Conn, err error) gnet.Action {
	s.connections.Add(-1)
	if s.middleware != nil {
		s.middleware.OnConnectionClose()
	}
	logger.V(1).Info("Connection closed", "remote", c.RemoteAddr(), "err", err)
	return gnet.None
}

func (s *Server) OnTraffic(c gnet.Conn) gnet.Action {
	buf, err := c.Peek(-1)
	if err != nil || len(buf) == 0 {
		return gnet.None
	}
	out, consumed, action := s.serve(buf)
	if _, err := c.Discard(consumed); err != nil {
		logger.Error(err, "Failed to discard inbound bytes", "remote", c.RemoteAddr())
		return gnet.Close
	}
	if len(out) > 0 {
		if _, err := c.Write(out); err != nil {
			logger.Error(err, "Failed to write replies", "remote", c.RemoteAddr())
			return gnet.Close
		}
	}
	return action
}

// serve answers every complete command in buf. It returns the encoded
// replies and how many bytes of buf they consumed.
func (s *Server) serve(buf []byte) ([]byte, int, gnet.Action) {
	src := bytes.NewReader(buf)
	reader := respio.NewRespReader(src)
	var out bytes.Buffer
	writer := respio.NewRespWriter(&out)
	consumed := 0
	action := gnet.None
	for consumed < len(buf) {
		request, err := reader.Read()
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			break
		}
		if err == nil {
			consumed = len(buf) - src.Len() - reader.Buffered()
		}
		var args [][]byte
		if err == nil {
			args, err = commandArgs(request)
		}
		if err != nil {
			logger.Info("Closing connection on malformed request", "error", err)
			_ = writer.WriteError("ERR Protocol error: " + protocolDetail(err))
			consumed = len(buf)
			action = gnet.Close
			break
		}
		if len(args) == 0 {
			continue
		}
		s.commands.Add(1)
		reply, quit := s.execute(args)
		_ = writer.Write(reply)
		if quit {
			action = gnet.Close
			break
		}
	}
	_ = writer.Flush()
	return out.Bytes(), consumed, action
}

func (s *Server) execute(args [][]byte) (respio.Reply, bool) {
	if s.middleware == nil {
		return execute(s.keyspace, args)
	}
	var (
		reply respio.Reply
		quit  bool
	)
	_ = s.middleware.WrapCommand(string(args[0]), func() error {
		reply, quit = execute(s.keyspace, args)
		if errReply, ok := reply.(respio.ErrorReply); ok {
			return errReply.Err()
		}
		return nil
	})
	return reply, quit
}

func protocolDetail(err error) string {
	var protoErr *respio.ProtocolError
	if errors.As(err, &protoErr) && protoErr.Detail != "" {
		return protoErr.Detail
	}
	return err.Error()
}

func (s *Server) OnShutdown(eng gnet.Engine) {
	logger.Info("Mock server is shutting down", "keys", s.keyspace.Len())
}

func (s *Server) Shutdown(ctx context.Context) error {
	eng := s.eng.Load()
	if eng == nil {
		return ErrNotStarted
	}
	if err := eng.Stop(ctx); err != nil {
		logger.Error(err, "Failed to stop mock server")
		return err
	}
	logger.Info("Mock server stopped")
	return nil
}

// WaitReady blocks until a PING on addr is answered or ctx is done.
func WaitReady(ctx context.Context, addr string) error {
	probe := backoff.NewExponentialBackOff()
	probe.InitialInterval = 10 * time.Millisecond
	probe.MaxInterval = 500 * time.Millisecond
	_, err := backoff.Retry(ctx, func() (string, error) {
		conn, err := client.Dial(ctx, addr, client.WithDialTimeout(time.Second))
		if err != nil {
			return "", err
		}
		defer conn.Close()
		return conn.Ping(ctx)
	}, backoff.WithBackOff(probe), backoff.WithMaxElapsedTime(defaultReadyTimeout))
	return err
}

// Serve starts the server in the background and returns once it answers
// PING. A zero port is replaced by a free one.
func Serve(ctx context.Context, config *common.ServerConfig) (*Server, error) {
	if config.Port == 0 {
		port, err := freePort(config.Host)
		if err != nil {
			return nil, err
		}
		config.Port = port
	}
	srv := NewServer(config)
	readyCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Error(err, "Mock server exited")
			cancel(err)
		}
	}()
	if err := WaitReady(readyCtx, srv.Addr()); err != nil {
		if cause := context.Cause(readyCtx); cause != nil && !errors.Is(cause, context.Canceled) {
			return nil, cause
		}
		return nil, err
	}
	return srv, nil
}

func freePort(host string) (int, error) {
	l, err := net.Listen("tcp", net.JoinHostPort(host, "0"))
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
