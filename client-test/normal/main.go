package main

import (
	"context"
	"flag"
	"time"

	"github.com/pzhenzhou/respcli/client-test/testutils"
	"github.com/pzhenzhou/respcli/pkg/client"
	"github.com/pzhenzhou/respcli/pkg/respio"
	"github.com/redis/go-redis/v9"
)

// stringT writes with one client and reads with the other.
func stringT(ctx context.Context, conn *client.Conn, rdb *redis.Client) {
	key := testutils.GenerateKey("stringT")
	value := "héllo\r\nwörld"
	testutils.Must(conn.Set(ctx, key, value, 0), "Failed to SET")
	got, err := rdb.Get(ctx, key).Result()
	testutils.Must(err, "go-redis GET failed")
	testutils.Check(got == value, "Expected %q, got %q", value, got)

	testutils.Must(rdb.Set(ctx, key, "", 0).Err(), "go-redis SET failed")
	got, ok, err := conn.Get(ctx, key)
	testutils.Must(err, "Failed to GET")
	testutils.Check(ok && got == "", "Expected empty existing value, got %q ok=%v", got, ok)

	_, ok, err = conn.Get(ctx, key+"_missing")
	testutils.Must(err, "Failed to GET missing key")
	testutils.Check(!ok, "Expected missing key")
}

func counterT(ctx context.Context, conn *client.Conn, rdb *redis.Client) {
	key := testutils.GenerateKey("counterT")
	for i := int64(1); i <= 5; i++ {
		n, err := conn.Incr(ctx, key)
		testutils.Must(err, "Failed to INCR")
		testutils.Check(n == i, "Expected %d, got %d", i, n)
	}
	testutils.Check(rdb.Incr(ctx, key).Val() == 6, "Expected go-redis INCR to see 6")

	textKey := testutils.GenerateKey("counterT_text")
	testutils.Must(conn.Set(ctx, textKey, "abc", 0), "Failed to SET")
	_, err := conn.Incr(ctx, textKey)
	testutils.Check(respio.IsServerError(err), "Expected server error, got %v", err)
	testutils.Check(!conn.IsClosed(), "Server error must not close the connection")
}

func expiryT(ctx context.Context, conn *client.Conn, rdb *redis.Client) {
	key := testutils.GenerateKey("expiryT")
	testutils.Must(conn.Set(ctx, key, "v", 30*time.Second), "Failed to SET with ttl")
	ttl, err := conn.TTL(ctx, key)
	testutils.Must(err, "Failed to TTL")
	testutils.Check(ttl > 25*time.Second && ttl <= 30*time.Second, "Unexpected ttl %s", ttl)
	seen := rdb.TTL(ctx, key).Val()
	testutils.Check((ttl-seen).Abs() <= time.Second, "go-redis sees ttl %s, respcli %s", seen, ttl)

	ok, err := conn.Expire(ctx, key, 0)
	testutils.Must(err, "Failed to EXPIRE")
	testutils.Check(ok, "Expected EXPIRE to apply")
	ttl, err = conn.TTL(ctx, key)
	testutils.Must(err, "Failed to TTL")
	testutils.Check(ttl == client.TTLMissing, "Expected expired key, ttl %s", ttl)
}

func multiKeyT(ctx context.Context, conn *client.Conn, rdb *redis.Client) {
	keyFoo := testutils.GenerateKey("multiT_foo")
	keyBar := testutils.GenerateKey("multiT_bar")
	testutils.Must(conn.MSet(ctx, map[string]any{keyFoo: "foo", keyBar: 42}), "Failed to MSET")
	values, err := rdb.MGet(ctx, keyFoo, keyBar, keyFoo+"_missing").Result()
	testutils.Must(err, "go-redis MGET failed")
	testutils.Check(values[0] == "foo" && values[1] == "42" && values[2] == nil, "Unexpected MGET %v", values)

	n, err := conn.Exists(ctx, keyFoo, keyBar, keyFoo+"_missing")
	testutils.Must(err, "Failed to EXISTS")
	testutils.Check(n == 2, "Expected 2 keys, got %d", n)
	n, err = conn.Del(ctx, keyFoo, keyBar)
	testutils.Must(err, "Failed to DEL")
	testutils.Check(n == 2, "Expected 2 deleted, got %d", n)
}

func main() {
	flag.StringVar(&testutils.ServerAddr, "addr", "", "RESP server address, empty starts a mock server")
	flag.IntVar(&testutils.MockPort, "mock-port", 6390, "Port of the spawned mock server")
	flag.Parse()
	addr := testutils.ResolveAddr()
	testutils.Logger.Info("Running client test", "ServerAddr", addr)

	ctx := context.Background()
	conn, err := client.Dial(ctx, addr)
	testutils.Must(err, "Failed to connect")
	defer func() {
		_ = conn.Close()
	}()
	rdb := redis.NewClient(&redis.Options{Addr: addr, Protocol: 2})
	defer func() {
		_ = rdb.Close()
	}()

	pong, err := conn.Ping(ctx)
	testutils.Must(err, "Failed to PING")
	testutils.Check(pong == "PONG", "Expected PONG, got %q", pong)
	stringT(ctx, conn, rdb)
	counterT(ctx, conn, rdb)
	expiryT(ctx, conn, rdb)
	multiKeyT(ctx, conn, rdb)
	testutils.Logger.Info("All tests passed successfully")
}
