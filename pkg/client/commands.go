package client

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/pzhenzhou/respcli/pkg/respio"
	"github.com/samber/lo"
)

const (
	// TTLNoExpire is returned by TTL for a key without expiry.
	TTLNoExpire = time.Duration(-1)
	// TTLMissing is returned by TTL for a key that does not exist.
	TTLMissing = time.Duration(-2)
)

var (
	ErrUnexpectedReply = errors.New("respcli: unexpected reply type")
)

func (c *Conn) Ping(ctx context.Context) (string, error) {
	reply, err := c.Do(ctx, "PING")
	if err != nil {
		return "", fmt.Errorf("PING command failed: %w", err)
	}
	return replyText("PING", reply)
}

func (c *Conn) Echo(ctx context.Context, message string) (string, error) {
	reply, err := c.Do(ctx, "ECHO", message)
	if err != nil {
		return "", fmt.Errorf("ECHO command failed: %w", err)
	}
	return replyText("ECHO", reply)
}

// Set stores value under key. A positive expiration is sent with millisecond
// precision (PX).
func (c *Conn) Set(ctx context.Context, key string, value any, expiration time.Duration) error {
	args := []any{key, value}
	if expiration > 0 {
		args = append(args, "PX", expiration.Milliseconds())
	}
	reply, err := c.Do(ctx, "SET", args...)
	if err != nil {
		return fmt.Errorf("SET command failed: %w", err)
	}
	return expectOK("SET", reply)
}

// Get returns the value of key and whether the key exists.
func (c *Conn) Get(ctx context.Context, key string) (string, bool, error) {
	reply, err := c.Do(ctx, "GET", key)
	if err != nil {
		return "", false, fmt.Errorf("GET command failed: %w", err)
	}
	bulk, ok := reply.(respio.BulkString)
	if !ok {
		return "", false, unexpectedReply("GET", reply)
	}
	if bulk.Null {
		return "", false, nil
	}
	return string(bulk.Data), true, nil
}

func (c *Conn) Del(ctx context.Context, keys ...string) (int64, error) {
	reply, err := c.Do(ctx, "DEL", toArgs(keys)...)
	if err != nil {
		return 0, fmt.Errorf("DEL command failed: %w", err)
	}
	return replyInt("DEL", reply)
}

func (c *Conn) Exists(ctx context.Context, keys ...string) (int64, error) {
	reply, err := c.Do(ctx, "EXISTS", toArgs(keys)...)
	if err != nil {
		return 0, fmt.Errorf("EXISTS command failed: %w", err)
	}
	return replyInt("EXISTS", reply)
}

func (c *Conn) Incr(ctx context.Context, key string) (int64, error) {
	reply, err := c.Do(ctx, "INCR", key)
	if err != nil {
		return 0, fmt.Errorf("INCR command failed: %w", err)
	}
	return replyInt("INCR", reply)
}

// Expire sets a timeout on key with second precision. It reports whether the
// timeout was set.
func (c *Conn) Expire(ctx context.Context, key string, expiration time.Duration) (bool, error) {
	reply, err := c.Do(ctx, "EXPIRE", key, int64(expiration/time.Second))
	if err != nil {
		return false, fmt.Errorf("EXPIRE command failed: %w", err)
	}
	n, err := replyInt("EXPIRE", reply)
	return n == 1, err
}

// TTL returns the remaining time to live of key, or TTLNoExpire / TTLMissing.
func (c *Conn) TTL(ctx context.Context, key string) (time.Duration, error) {
	reply, err := c.Do(ctx, "TTL", key)
	if err != nil {
		return 0, fmt.Errorf("TTL command failed: %w", err)
	}
	ttl, err := replyInt("TTL", reply)
	if err != nil {
		return 0, err
	}
	if ttl < 0 {
		return time.Duration(ttl), nil
	}
	return time.Duration(ttl) * time.Second, nil
}

// MSet sets all pairs in one command. Keys are sent in sorted order.
func (c *Conn) MSet(ctx context.Context, pairs map[string]any) error {
	keys := lo.Keys(pairs)
	slices.Sort(keys)
	args := make([]any, 0, len(pairs)*2)
	for _, k := range keys {
		args = append(args, k, pairs[k])
	}
	reply, err := c.Do(ctx, "MSET", args...)
	if err != nil {
		return fmt.Errorf("MSET command failed: %w", err)
	}
	return expectOK("MSET", reply)
}

// MGet returns one entry per key, nil for keys that do not exist.
func (c *Conn) MGet(ctx context.Context, keys ...string) ([]*string, error) {
	reply, err := c.Do(ctx, "MGET", toArgs(keys)...)
	if err != nil {
		return nil, fmt.Errorf("MGET command failed: %w", err)
	}
	arr, ok := reply.(respio.Array)
	if !ok || arr.Null {
		return nil, unexpectedReply("MGET", reply)
	}
	values := make([]*string, len(arr.Elems))
	for i, elem := range arr.Elems {
		bulk, ok := elem.(respio.BulkString)
		if !ok {
			return nil, unexpectedReply("MGET", elem)
		}
		if !bulk.Null {
			values[i] = lo.ToPtr(string(bulk.Data))
		}
	}
	return values, nil
}

func toArgs(keys []string) []any {
	return lo.Map(keys, func(k string, _ int) any { return k })
}

func expectOK(cmd string, reply respio.Reply) error {
	if status, ok := reply.(respio.SimpleString); ok && status == "OK" {
		return nil
	}
	return unexpectedReply(cmd, reply)
}

func replyText(cmd string, reply respio.Reply) (string, error) {
	switch v := reply.(type) {
	case respio.SimpleString:
		return string(v), nil
	case respio.BulkString:
		if !v.Null {
			return string(v.Data), nil
		}
	}
	return "", unexpectedReply(cmd, reply)
}

func replyInt(cmd string, reply respio.Reply) (int64, error) {
	if n, ok := reply.(respio.Integer); ok {
		return int64(n), nil
	}
	return 0, unexpectedReply(cmd, reply)
}

func unexpectedReply(cmd string, reply respio.Reply) error {
	return fmt.Errorf("%w for %s: %T %s", ErrUnexpectedReply, cmd, reply, reply)
}
