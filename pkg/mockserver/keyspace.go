package mockserver

import (
	"errors"
	"math"
	"strconv"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

var (
	ErrNotInteger = errors.New("value is not an integer or out of range")
	ErrOverflow   = errors.New("increment or decrement would overflow")
)

type entry struct {
	value    []byte
	expireAt time.Time
}

func (e *entry) expired(now time.Time) bool {
	return !e.expireAt.IsZero() && !now.Before(e.expireAt)
}

// Keyspace is the string keyspace of the mock server. Expired keys are
// removed lazily when they are touched.
type Keyspace struct {
	entries *xsync.MapOf[string, *entry]
	now     func() time.Time
}

func NewKeyspace() *Keyspace {
	return &Keyspace{
		entries: xsync.NewMapOf[string, *entry](),
		now:     time.Now,
	}
}

// load returns the live entry of key, dropping it first if it has expired.
func (k *Keyspace) load(key string) (*entry, bool) {
	e, ok := k.entries.Load(key)
	if !ok {
		return nil, false
	}
	now := k.now()
	if !e.expired(now) {
		return e, true
	}
	k.entries.Compute(key, func(old *entry, loaded bool) (*entry, bool) {
		// A concurrent SET may have replaced the entry already.
		return old, !loaded || old.expired(now)
	})
	return nil, false
}

func (k *Keyspace) Get(key string) ([]byte, bool) {
	e, ok := k.load(key)
	if !ok {
		return nil, false
	}
	return e.value, true
}

// Set stores value under key. A ttl <= 0 stores it without expiry.
func (k *Keyspace) Set(key string, value []byte, ttl time.Duration) {
	e := &entry{value: value}
	if ttl > 0 {
		e.expireAt = k.now().Add(ttl)
	}
	k.entries.Store(key, e)
}

func (k *Keyspace) Del(keys ...string) int64 {
	var n int64
	for _, key := range keys {
		if _, ok := k.load(key); !ok {
			continue
		}
		if _, ok := k.entries.LoadAndDelete(key); ok {
			n++
		}
	}
	return n
}

// Exists counts keys that exist, a key given twice is counted twice.
func (k *Keyspace) Exists(keys ...string) int64 {
	var n int64
	for _, key := range keys {
		if _, ok := k.load(key); ok {
			n++
		}
	}
	return n
}

// Incr increments the integer stored at key by one. A missing key counts as 0.
func (k *Keyspace) Incr(key string) (int64, error) {
	var (
		result int64
		err    error
	)
	now := k.now()
	k.entries.Compute(key, func(old *entry, loaded bool) (*entry, bool) {
		var current int64
		if loaded && !old.expired(now) {
			current, err = strconv.ParseInt(string(old.value), 10, 64)
			if err != nil {
				err = ErrNotInteger
				return old, false
			}
		}
		if current == math.MaxInt64 {
			err = ErrOverflow
			return old, false
		}
		result = current + 1
		next := &entry{value: strconv.AppendInt(nil, result, 10)}
		if loaded && !old.expired(now) {
			next.expireAt = old.expireAt
		}
		return next, false
	})
	return result, err
}

// Expire sets a timeout on an existing key. A ttl <= 0 deletes the key.
func (k *Keyspace) Expire(key string, ttl time.Duration) bool {
	var found bool
	now := k.now()
	k.entries.Compute(key, func(old *entry, loaded bool) (*entry, bool) {
		if !loaded || old.expired(now) {
			return old, true
		}
		found = true
		if ttl <= 0 {
			return old, true
		}
		return &entry{value: old.value, expireAt: now.Add(ttl)}, false
	})
	return found
}

// TTL returns the remaining time to live of key, or -1 for a key without
// expiry and -2 for a missing key.
func (k *Keyspace) TTL(key string) time.Duration {
	e, ok := k.load(key)
	if !ok {
		return -2
	}
	if e.expireAt.IsZero() {
		return -1
	}
	return e.expireAt.Sub(k.now())
}

// Len returns the number of live keys.
func (k *Keyspace) Len() int {
	now := k.now()
	n := 0
	k.entries.Range(func(_ string, e *entry) bool {
		if !e.expired(now) {
			n++
		}
		return true
	})
	return n
}

func (k *Keyspace) Flush() {
	k.entries.Clear()
}
