package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/pzhenzhou/respcli/pkg/common"
)

var (
	logger = common.InitLogger().WithName("main")
)

type cli struct {
	Do    DoCmd    `cmd:"" help:"Send one command and print its reply."`
	Repl  ReplCmd  `cmd:"" help:"Interactive prompt, one command per line."`
	Bench BenchCmd `cmd:"" help:"Run SET/GET/INCR load against a server."`
	Serve ServeCmd `cmd:"" help:"Run the in-memory mock server with its admin endpoints."`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGQUIT, syscall.SIGTERM)
	defer stop()

	var root cli
	kongCtx := kong.Parse(&root,
		kong.Name("respcli"),
		kong.Description("A minimal RESP2 client, mock server and benchmark."),
		kong.UsageOnError(),
		kong.BindTo(ctx, (*context.Context)(nil)),
	)
	err := kongCtx.Run()
	stop()
	kongCtx.FatalIfErrorf(err)
}
