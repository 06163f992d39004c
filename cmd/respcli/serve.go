package main

import (
	"context"
	"fmt"
	"time"

	"github.com/pzhenzhou/respcli/pkg/common"
	"github.com/pzhenzhou/respcli/pkg/metrics"
	"github.com/pzhenzhou/respcli/pkg/mockserver"
	"github.com/pzhenzhou/respcli/pkg/web_service"
	cmux2 "github.com/soheilhy/cmux"
)

type ServeCmd struct {
	common.ServerConfig `embed:""`
}

func (s *ServeCmd) Validate() error {
	return s.ServerConfig.Validate()
}

func (s *ServeCmd) Run(ctx context.Context) error {
	fmt.Print(mockserver.Banner)
	logger.Info("MockServer ", "Config", s.ServerConfig)
	return SetupAllServer(ctx, &s.ServerConfig)
}

// SetupAllServer runs the mock server and, when a service port is set, the
// admin http and grpc health servers sharing that port. It returns when ctx
// is done or one of the servers fails.
func SetupAllServer(ctx context.Context, config *common.ServerConfig) error {
	mockSrv := mockserver.NewServer(config)
	var collector metrics.ClientMetricsCollector
	if config.Metrics.EnableMetrics {
		var err error
		collector, err = metrics.NewMetricsCollector(metrics.NewConfigFromCli("respcli-mock", &config.Metrics))
		if err != nil {
			return err
		}
		defer collector.Shutdown()
		mockSrv.SetMetricsMiddleware(metrics.NewClientMetricsMiddleware(collector))
	}

	errChan := make(chan error, 4)
	// start mock tcp server
	go func() {
		if err := mockSrv.Start(); err != nil {
			errChan <- err
		}
	}()

	var (
		m          cmux2.CMux
		httpSrv    *web_service.WebServer
		grpcHealth *web_service.GrpcHealth
	)
	if config.ServicePort > 0 {
		srvListener, err := config.ServiceListener()
		if err != nil {
			return err
		}
		m = cmux2.New(srvListener)
		httpSrv = web_service.NewWebServer(config, mockSrv, collector)
		grpcHealth = web_service.NewGrpcHealth()
		go func() {
			if err := grpcHealth.Start(m); err != nil {
				errChan <- err
			}
		}()
		go func() {
			if err := httpSrv.Start(m); err != nil {
				errChan <- err
			}
		}()
		go func() {
			logger.Info("Starting cmux server...", "ServiceAddr", srvListener.Addr())
			if err := m.Serve(); err != nil && !isClosedErr(err) {
				errChan <- err
			}
		}()
	}

	go func() {
		readyCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := mockserver.WaitReady(readyCtx, mockSrv.Addr()); err != nil {
			errChan <- fmt.Errorf("mock server not ready: %w", err)
			return
		}
		logger.Info("Mock server ready", "addr", mockSrv.Addr())
		if grpcHealth != nil {
			grpcHealth.SetServing(true)
		}
	}()

	var runErr error
	select {
	case runErr = <-errChan:
		logger.Error(runErr, "An error occurred when the servers started.")
	case <-ctx.Done():
		logger.Info("Received signal, shutting down...")
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if grpcHealth != nil {
		grpcHealth.SetServing(false)
		httpSrv.Shutdown(shutdownCtx)
		grpcHealth.Shutdown()
		m.Close()
	}
	if err := mockSrv.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func isClosedErr(err error) bool {
	return common.IsConnUnavailable(err)
}
