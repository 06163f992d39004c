package bench

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/buraksezer/consistent"
	"github.com/cespare/xxhash/v2"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/pzhenzhou/respcli/pkg/client"
	"github.com/pzhenzhou/respcli/pkg/common"
	"github.com/pzhenzhou/respcli/pkg/metrics"
)

var (
	logger = common.InitLogger().WithName("bench")

	consistentCfg = consistent.Config{
		PartitionCount:    271,
		ReplicationFactor: 20,
		Load:              1.25,
		Hasher:            memberHash{},
	}
)

type Member struct {
	key string
}

func (m Member) String() string {
	return m.key
}

type memberHash struct{}

func (h memberHash) Sum64(key []byte) uint64 {
	return xxhash.Sum64(key)
}

type Report struct {
	Requests  int64
	Errors    int64
	Elapsed   time.Duration
	OpsPerSec float64
	// PerConn counts requests routed to each connection of the ring.
	PerConn map[string]int64
	Samples []metrics.SampleSummary
}

func (r *Report) Print(w io.Writer) {
	_, _ = fmt.Fprintf(w, "requests:   %d\n", r.Requests)
	_, _ = fmt.Fprintf(w, "errors:     %d\n", r.Errors)
	_, _ = fmt.Fprintf(w, "elapsed:    %s\n", r.Elapsed.Round(time.Millisecond))
	_, _ = fmt.Fprintf(w, "throughput: %.0f ops/sec\n", r.OpsPerSec)
	ids := make([]string, 0, len(r.PerConn))
	for id := range r.PerConn {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		_, _ = fmt.Fprintf(w, "conn %s: %d\n", id, r.PerConn[id])
	}
	for _, s := range r.Samples {
		if !strings.Contains(s.Key, "latency") {
			continue
		}
		_, _ = fmt.Fprintf(w, "%s count=%d mean=%.1fus min=%.1fus max=%.1fus\n",
			s.Key, s.Count, s.Mean, s.Min, s.Max)
	}
}

// runner places every connection on a consistent hash ring so that each key
// is always sent on the same connection.
type runner struct {
	addr       string
	cfg        *common.BenchConfig
	ring       *consistent.Consistent
	conns      *xsync.MapOf[string, *client.Conn]
	routed     *xsync.MapOf[string, *atomic.Int64]
	middleware *metrics.ClientMetricsMiddleware
	value      string
	completed  atomic.Int64
	errors     atomic.Int64
}

// Run drives cfg.Requests SET/GET/INCR commands against addr and reports
// throughput and latency.
func Run(ctx context.Context, addr string, cfg *common.BenchConfig) (*Report, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	collector, err := metrics.NewMetricsCollector(metrics.NewInMemoryConfig("bench"))
	if err != nil {
		return nil, err
	}
	defer collector.Shutdown()

	r := &runner{
		addr:       addr,
		cfg:        cfg,
		ring:       consistent.New(nil, consistentCfg),
		conns:      xsync.NewMapOf[string, *client.Conn](),
		routed:     xsync.NewMapOf[string, *atomic.Int64](),
		middleware: metrics.NewClientMetricsMiddleware(collector),
		value:      strings.Repeat("x", cfg.ValueSize),
	}
	defer r.close()
	for i := 0; i < cfg.Conns; i++ {
		conn, err := client.Dial(ctx, addr, client.WithMetrics(r.middleware))
		if err != nil {
			return nil, fmt.Errorf("bench dial %s: %w", addr, err)
		}
		member := Member{key: "conn-" + strconv.Itoa(i)}
		r.conns.Store(member.key, conn)
		r.routed.Store(member.key, &atomic.Int64{})
		r.ring.Add(member)
	}
	logger.Info("Bench started", "addr", addr, "conns", cfg.Conns, "workers", cfg.Workers,
		"requests", cfg.Requests)

	var (
		next int64
		wg   sync.WaitGroup
	)
	start := time.Now()
	for w := 0; w < cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				seq := atomic.AddInt64(&next, 1)
				if seq > int64(cfg.Requests) || ctx.Err() != nil {
					return
				}
				r.request(ctx, seq)
			}
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)

	done := r.completed.Load()
	report := &Report{
		Requests: done,
		Errors:   r.errors.Load(),
		Elapsed:  elapsed,
		PerConn:  make(map[string]int64),
		Samples:  collector.Samples(),
	}
	if elapsed > 0 {
		report.OpsPerSec = float64(done) / elapsed.Seconds()
	}
	r.routed.Range(func(id string, n *atomic.Int64) bool {
		report.PerConn[id] = n.Load()
		return true
	})
	logger.Info("Bench finished", "requests", report.Requests, "errors", report.Errors,
		"elapsed", elapsed)
	return report, ctx.Err()
}

func (r *runner) request(ctx context.Context, seq int64) {
	n := rand.IntN(r.cfg.Keyspace)
	var (
		key string
		op  func(conn *client.Conn) error
	)
	switch seq % 3 {
	case 0:
		key = r.cfg.KeyPrefix + "key:" + strconv.Itoa(n)
		op = func(conn *client.Conn) error { return conn.Set(ctx, key, r.value, 0) }
	case 1:
		key = r.cfg.KeyPrefix + "key:" + strconv.Itoa(n)
		op = func(conn *client.Conn) error {
			_, _, err := conn.Get(ctx, key)
			return err
		}
	default:
		key = r.cfg.KeyPrefix + "counter:" + strconv.Itoa(n)
		op = func(conn *client.Conn) error {
			_, err := conn.Incr(ctx, key)
			return err
		}
	}
	member := r.ring.LocateKey([]byte(key)).String()
	if counter, ok := r.routed.Load(member); ok {
		counter.Add(1)
	}
	conn, ok := r.conns.Load(member)
	if !ok {
		r.errors.Add(1)
		return
	}
	err := op(conn)
	r.completed.Add(1)
	if err != nil {
		r.errors.Add(1)
		if conn.IsClosed() && !errors.Is(err, context.Canceled) {
			r.reconnect(ctx, member, conn)
		}
	}
}

// reconnect replaces a closed ring member, unless another worker already did.
func (r *runner) reconnect(ctx context.Context, member string, dead *client.Conn) {
	r.conns.Compute(member, func(current *client.Conn, loaded bool) (*client.Conn, bool) {
		if loaded && current != dead {
			return current, false
		}
		conn, err := client.Dial(ctx, r.addr, client.WithMetrics(r.middleware))
		if err != nil {
			logger.Error(err, "Failed to replace bench connection", "member", member)
			return current, !loaded
		}
		logger.Info("Bench connection replaced", "member", member, "connId", conn.Id)
		return conn, false
	})
}

func (r *runner) close() {
	r.conns.Range(func(_ string, conn *client.Conn) bool {
		_ = conn.Close()
		return true
	})
}
