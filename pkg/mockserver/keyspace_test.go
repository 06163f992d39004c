package mockserver

import (
	"math"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestKeyspace() (*Keyspace, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	ks := NewKeyspace()
	ks.now = clock.Now
	return ks, clock
}

func TestKeyspaceSetGet(t *testing.T) {
	ks, _ := newTestKeyspace()
	_, ok := ks.Get("k")
	assert.False(t, ok)

	ks.Set("k", []byte("v"), 0)
	value, ok := ks.Get("k")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), value)

	ks.Set("empty", []byte{}, 0)
	value, ok = ks.Get("empty")
	require.True(t, ok)
	assert.Empty(t, value)
	assert.Equal(t, 2, ks.Len())
}

func TestKeyspaceLazyExpiry(t *testing.T) {
	ks, clock := newTestKeyspace()
	ks.Set("k", []byte("v"), 2*time.Second)
	assert.Equal(t, 2*time.Second, ks.TTL("k"))

	clock.Advance(time.Second)
	_, ok := ks.Get("k")
	assert.True(t, ok)

	clock.Advance(time.Second)
	_, ok = ks.Get("k")
	assert.False(t, ok)
	assert.Equal(t, time.Duration(-2), ks.TTL("k"))
	assert.Equal(t, int64(0), ks.Exists("k"))
	assert.Equal(t, 0, ks.Len())
}

func TestKeyspaceDelExists(t *testing.T) {
	ks, clock := newTestKeyspace()
	ks.Set("a", []byte("1"), 0)
	ks.Set("b", []byte("2"), 0)
	ks.Set("c", []byte("3"), time.Second)

	assert.Equal(t, int64(3), ks.Exists("a", "a", "b"))
	clock.Advance(time.Second)
	assert.Equal(t, int64(1), ks.Del("a", "c", "missing"))
	assert.Equal(t, int64(1), ks.Exists("a", "b", "c"))
}

func TestKeyspaceIncr(t *testing.T) {
	ks, clock := newTestKeyspace()
	n, err := ks.Incr("counter")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = ks.Incr("counter")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	ks.Set("text", []byte("abc"), 0)
	_, err = ks.Incr("text")
	assert.ErrorIs(t, err, ErrNotInteger)
	value, _ := ks.Get("text")
	assert.Equal(t, []byte("abc"), value)

	ks.Set("max", []byte(strconv.FormatInt(math.MaxInt64, 10)), 0)
	_, err = ks.Incr("max")
	assert.ErrorIs(t, err, ErrOverflow)

	t.Run("keeps expiry", func(t *testing.T) {
		ks.Set("ttl", []byte("10"), 5*time.Second)
		n, err := ks.Incr("ttl")
		require.NoError(t, err)
		assert.Equal(t, int64(11), n)
		assert.Equal(t, 5*time.Second, ks.TTL("ttl"))
	})

	t.Run("expired value restarts at zero", func(t *testing.T) {
		ks.Set("old", []byte("41"), time.Second)
		clock.Advance(time.Second)
		n, err := ks.Incr("old")
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		assert.Equal(t, time.Duration(-1), ks.TTL("old"))
	})
}

func TestKeyspaceIncrConcurrent(t *testing.T) {
	ks := NewKeyspace()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				_, err := ks.Incr("counter")
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()
	value, ok := ks.Get("counter")
	require.True(t, ok)
	assert.Equal(t, "4000", string(value))
}

func TestKeyspaceExpire(t *testing.T) {
	ks, clock := newTestKeyspace()
	assert.False(t, ks.Expire("missing", time.Second))

	ks.Set("k", []byte("v"), 0)
	assert.Equal(t, time.Duration(-1), ks.TTL("k"))
	assert.True(t, ks.Expire("k", 10*time.Second))
	clock.Advance(4 * time.Second)
	assert.Equal(t, 6*time.Second, ks.TTL("k"))

	assert.True(t, ks.Expire("k", 0))
	assert.Equal(t, int64(0), ks.Exists("k"))
}

func TestKeyspaceFlush(t *testing.T) {
	ks, _ := newTestKeyspace()
	ks.Set("a", []byte("1"), 0)
	ks.Set("b", []byte("2"), 0)
	ks.Flush()
	assert.Equal(t, 0, ks.Len())
}
