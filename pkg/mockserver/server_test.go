package mockserver

import (
	"bufio"
	"context"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/panjf2000/gnet/v2"
	"github.com/pzhenzhou/respcli/pkg/common"
	"github.com/pzhenzhou/respcli/pkg/metrics"
	"github.com/redis/go-redis/v9"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startTestServer(t *testing.T) *Server {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	srv, err := Serve(ctx, &common.ServerConfig{Host: "127.0.0.1"})
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, srv.Shutdown(ctx))
	})
	return srv
}

func TestServeBuffer(t *testing.T) {
	srv := NewServer(&common.ServerConfig{})
	tests := []struct {
		name     string
		input    string
		output   string
		consumed int
		action   gnet.Action
	}{
		{
			name:     "single command",
			input:    "*1\r\n$4\r\nPING\r\n",
			output:   "+PONG\r\n",
			consumed: 14,
		},
		{
			name:     "pipelined commands",
			input:    "*3\r\n$3\r\nSET\r\n$1\r\nk\r\n$1\r\nv\r\n*2\r\n$3\r\nGET\r\n$1\r\nk\r\n",
			output:   "+OK\r\n$1\r\nv\r\n",
			consumed: 47,
		},
		{
			name:     "partial command waits",
			input:    "*2\r\n$4\r\nECHO\r\n$5\r\nhel",
			consumed: 0,
		},
		{
			name:     "complete command before a partial one",
			input:    "*1\r\n$4\r\nPING\r\n*1\r\n$4\r\nPI",
			output:   "+PONG\r\n",
			consumed: 14,
		},
		{
			name:     "empty array is ignored",
			input:    "*0\r\n",
			consumed: 4,
		},
		{
			name:     "quit closes after reply",
			input:    "*1\r\n$4\r\nQUIT\r\n*1\r\n$4\r\nPING\r\n",
			output:   "+OK\r\n",
			consumed: 14,
			action:   gnet.Close,
		},
		{
			name:     "malformed request",
			input:    "*1\r\n:1\r\n",
			output:   "-ERR Protocol error: expected non-null bulk string argument\r\n",
			consumed: 8,
			action:   gnet.Close,
		},
		{
			name:     "inline commands are rejected",
			input:    "+PING\r\n",
			output:   "-ERR Protocol error: expected '*', got '+'\r\n",
			consumed: 7,
			action:   gnet.Close,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, consumed, action := srv.serve([]byte(tt.input))
			assert.Equal(t, tt.output, string(out))
			assert.Equal(t, tt.consumed, consumed)
			assert.Equal(t, tt.action, action)
		})
	}
}

func TestServeBadFraming(t *testing.T) {
	srv := NewServer(&common.ServerConfig{})
	out, consumed, action := srv.serve([]byte("*1\r\n$4\r\nPINGXX\r\n"))
	assert.True(t, strings.HasPrefix(string(out), "-ERR Protocol error: "), string(out))
	assert.Equal(t, 16, consumed)
	assert.Equal(t, gnet.Close, action)
}

func TestServeRecordsMetrics(t *testing.T) {
	collector, err := metrics.NewMetricsCollector(metrics.NewInMemoryConfig("mock-test"))
	require.NoError(t, err)
	defer collector.Shutdown()
	srv := NewServer(&common.ServerConfig{})
	srv.SetMetricsMiddleware(metrics.NewClientMetricsMiddleware(collector))

	_, _, _ = srv.serve([]byte("*2\r\n$3\r\nget\r\n$1\r\nk\r\n*1\r\n$3\r\nGET\r\n"))

	keys := strings.Join(lo.Map(collector.Samples(), func(s metrics.SampleSummary, _ int) string {
		return s.Key
	}), "\n")
	assert.Contains(t, keys, "command=GET")
	assert.Equal(t, int64(2), srv.Stats().Commands)
}

func TestServerWithRedisClient(t *testing.T) {
	srv := startTestServer(t)
	rdb := redis.NewClient(&redis.Options{Addr: srv.Addr(), Protocol: 2})
	defer rdb.Close()
	ctx := context.Background()

	require.Equal(t, "PONG", rdb.Ping(ctx).Val())
	require.NoError(t, rdb.Set(ctx, "greeting", "héllo wörld", 0).Err())
	assert.Equal(t, "héllo wörld", rdb.Get(ctx, "greeting").Val())
	assert.ErrorIs(t, rdb.Get(ctx, "missing").Err(), redis.Nil)
	assert.Equal(t, "hi", rdb.Echo(ctx, "hi").Val())

	assert.Equal(t, int64(1), rdb.Incr(ctx, "counter").Val())
	assert.Equal(t, int64(2), rdb.Incr(ctx, "counter").Val())
	err := rdb.Incr(ctx, "greeting").Err()
	require.Error(t, err)
	assert.Equal(t, "ERR value is not an integer or out of range", err.Error())

	require.NoError(t, rdb.MSet(ctx, "a", "1", "b", "2").Err())
	values, err := rdb.MGet(ctx, "a", "missing", "b").Result()
	require.NoError(t, err)
	assert.Equal(t, []any{"1", nil, "2"}, values)

	assert.Equal(t, int64(2), rdb.Exists(ctx, "a", "b", "missing").Val())
	assert.Equal(t, int64(1), rdb.Del(ctx, "a", "missing").Val())

	require.NoError(t, rdb.Set(ctx, "session", "x", 10*time.Second).Err())
	ttl := rdb.TTL(ctx, "session").Val()
	assert.InDelta(t, float64(10*time.Second), float64(ttl), float64(time.Second))
	assert.True(t, rdb.Expire(ctx, "counter", time.Minute).Val())
	assert.False(t, rdb.Expire(ctx, "missing", time.Minute).Val())
	assert.Equal(t, time.Duration(-2), rdb.TTL(ctx, "missing").Val())

	assert.Equal(t, int64(srv.Keyspace().Len()), rdb.DBSize(ctx).Val())
	require.NoError(t, rdb.FlushDB(ctx).Err())
	assert.Equal(t, int64(0), rdb.DBSize(ctx).Val())
	assert.Positive(t, srv.Stats().Commands)
}

func TestServerErrorReplies(t *testing.T) {
	srv := startTestServer(t)
	rdb := redis.NewClient(&redis.Options{Addr: srv.Addr(), Protocol: 2})
	defer rdb.Close()
	ctx := context.Background()

	err := rdb.Do(ctx, "NOPE", "x").Err()
	require.Error(t, err)
	assert.Equal(t, "ERR unknown command 'NOPE'", err.Error())

	err = rdb.Do(ctx, "GET").Err()
	require.Error(t, err)
	assert.Equal(t, "ERR wrong number of arguments for 'get' command", err.Error())

	err = rdb.Do(ctx, "SET", "k", "v", "EX", "0").Err()
	require.Error(t, err)
	assert.Equal(t, "ERR invalid expire time in 'set' command", err.Error())

	err = rdb.Do(ctx, "SET", "k", "v", "NX").Err()
	require.Error(t, err)
	assert.Equal(t, "ERR syntax error", err.Error())

	err = rdb.Do(ctx, "MSET", "a", "1", "b").Err()
	require.Error(t, err)
	assert.Equal(t, "ERR wrong number of arguments for 'mset' command", err.Error())
}

func TestServerProtocolErrorClosesConnection(t *testing.T) {
	srv := startTestServer(t)
	conn, err := net.Dial("tcp", srv.Addr())
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))

	_, err = conn.Write([]byte("*1\r\n$x\r\n"))
	require.NoError(t, err)
	rd := bufio.NewReader(conn)
	line, err := rd.ReadString('\n')
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(line, "-ERR Protocol error: "), line)
	_, err = rd.ReadByte()
	assert.ErrorIs(t, err, io.EOF)
}

func TestServerSplitWrites(t *testing.T) {
	srv := startTestServer(t)
	conn, err := net.Dial("tcp", srv.Addr())
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))

	cmd := "*2\r\n$4\r\nECHO\r\n$5\r\nhello\r\n"
	for i := 0; i < len(cmd); i++ {
		_, err := conn.Write([]byte{cmd[i]})
		require.NoError(t, err)
		time.Sleep(time.Millisecond)
	}
	reply := make([]byte, len("$5\r\nhello\r\n"))
	_, err = io.ReadFull(conn, reply)
	require.NoError(t, err)
	assert.Equal(t, "$5\r\nhello\r\n", string(reply))
}

func TestShutdownBeforeStart(t *testing.T) {
	srv := NewServer(&common.ServerConfig{})
	assert.ErrorIs(t, srv.Shutdown(context.Background()), ErrNotStarted)
}
