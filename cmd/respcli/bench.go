package main

import (
	"context"
	"os"

	"github.com/pzhenzhou/respcli/pkg/bench"
	"github.com/pzhenzhou/respcli/pkg/common"
	"github.com/pzhenzhou/respcli/pkg/mockserver"
)

type BenchCmd struct {
	common.ClientConfig `embed:""`
	common.BenchConfig  `embed:""`
	Local               bool `help:"Start an in-process mock server on a free port and bench against it." name:"local"`
}

func (b *BenchCmd) Validate() error {
	if err := b.ClientConfig.Validate(); err != nil {
		return err
	}
	return b.BenchConfig.Validate()
}

func (b *BenchCmd) Run(ctx context.Context) error {
	addr := b.Addr
	if b.Local {
		srv, err := mockserver.Serve(ctx, &common.ServerConfig{Host: "127.0.0.1", MultiCore: true})
		if err != nil {
			return err
		}
		defer func() {
			_ = srv.Shutdown(context.Background())
		}()
		addr = srv.Addr()
	}
	report, err := bench.Run(ctx, addr, &b.BenchConfig)
	if report != nil {
		report.Print(os.Stdout)
	}
	return err
}
