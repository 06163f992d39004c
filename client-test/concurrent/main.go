package main

import (
	"context"
	"flag"
	"strconv"
	"sync"

	"github.com/pzhenzhou/respcli/client-test/testutils"
	"github.com/pzhenzhou/respcli/pkg/client"
	"github.com/redis/go-redis/v9"
)

var (
	workers    = 8
	iterations = 500
)

func main() {
	flag.StringVar(&testutils.ServerAddr, "addr", "", "RESP server address, empty starts a mock server")
	flag.IntVar(&testutils.MockPort, "mock-port", 6391, "Port of the spawned mock server")
	flag.IntVar(&workers, "workers", workers, "Goroutines sharing one connection")
	flag.IntVar(&iterations, "iterations", iterations, "Commands per goroutine")
	flag.Parse()
	addr := testutils.ResolveAddr()
	ctx := context.Background()

	conn, err := client.Dial(ctx, addr)
	testutils.Must(err, "Failed to connect")
	defer conn.Close()
	counter := testutils.GenerateKey("concurrent_counter")

	var wg sync.WaitGroup
	wg.Add(workers + 1)
	// Start the shared connection workers
	for w := 0; w < workers; w++ {
		go runSharedConnWorker(ctx, &wg, conn, w, counter)
	}
	// Start an independent go-redis client
	go runRedisClient(ctx, &wg, addr, counter)
	wg.Wait()

	rdb := redis.NewClient(&redis.Options{Addr: addr, Protocol: 2})
	defer rdb.Close()
	expected := int64((workers + 1) * iterations)
	got, err := rdb.Get(ctx, counter).Int64()
	testutils.Must(err, "Failed to read counter")
	testutils.Check(got == expected, "Expected counter %d, got %d", expected, got)
	testutils.Logger.Info("Concurrent cmd test completed", "Counter", got)
}

// runSharedConnWorker checks that replies never cross between goroutines
// sharing one connection.
func runSharedConnWorker(ctx context.Context, wg *sync.WaitGroup, conn *client.Conn, id int, counter string) {
	defer wg.Done()
	for i := 0; i < iterations; i++ {
		msg := strconv.Itoa(id) + ":" + strconv.Itoa(i)
		echo, err := conn.Echo(ctx, msg)
		testutils.Must(err, "Failed to ECHO")
		testutils.Check(echo == msg, "Reply crossed: sent %q, got %q", msg, echo)
		_, err = conn.Incr(ctx, counter)
		testutils.Must(err, "Failed to INCR")
	}
}

func runRedisClient(ctx context.Context, wg *sync.WaitGroup, addr, counter string) {
	defer wg.Done()
	rdb := redis.NewClient(&redis.Options{Addr: addr, Protocol: 2})
	defer rdb.Close()
	for i := 0; i < iterations; i++ {
		testutils.Must(rdb.Incr(ctx, counter).Err(), "go-redis INCR failed")
	}
}
