package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kstaniek/go-cansock/internal/hub"
	"github.com/kstaniek/go-cansock/internal/metrics"
	"github.com/kstaniek/go-cansock/internal/server"
	"github.com/kstaniek/go-cansock/internal/wire"
)

const shutdownTimeout = 5 * time.Second

func main() {
	cfg, showVersion, err := parseArgs(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if showVersion {
		fmt.Printf("cansockd %s (commit %s, built %s)\n", version, commit, date)
		return
	}
	if err := run(cfg); err != nil {
		os.Exit(1)
	}
}

func run(cfg *appConfig) error {
	l := setupLogger(cfg.logFormat, cfg.logLevel)
	l.Info("build_info", "version", version, "commit", commit, "date", date)

	h := hub.New()
	h.OutBufSize = cfg.hubBuffer
	h.Policy, _ = hub.ParsePolicy(cfg.hubPolicy)
	l.Info("hub_config", "policy", h.Policy.String(), "buffer", h.OutBufSize)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	send, rx, cleanup, err := initBackend(ctx, cfg, h, l)
	if err != nil {
		l.Error("backend_init_error", "error", err)
		return err
	}
	defer cleanup()

	srv := server.New(
		server.WithListenAddr(cfg.listenAddr),
		server.WithHub(h),
		server.WithCodec(&wire.Codec{}),
		server.WithSend(send),
		server.WithLogger(l),
		server.WithMaxClients(cfg.maxClients),
		server.WithHandshakeTimeout(cfg.handshakeTO),
		server.WithReadDeadline(cfg.clientReadTO),
	)

	metrics.SetReadinessFunc(func() bool {
		select {
		case <-srv.Ready():
		default:
			return false
		}
		return ctx.Err() == nil
	})
	if cfg.metricsAddr != "" {
		metrics.InitBuildInfo(version, commit, date)
		srvHTTP := metrics.StartHTTP(cfg.metricsAddr)
		defer func() { _ = srvHTTP.Shutdown(context.Background()) }()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return rx(gctx) })
	g.Go(func() error { return srv.Serve(gctx) })
	g.Go(func() error { return runMetricsLogger(gctx, cfg.logMetricsEvery, l) })
	g.Go(func() error {
		select {
		case <-srv.Ready():
		case <-gctx.Done():
			return nil
		}
		port := listenPort(srv.Addr())
		cleanupMDNS, err := startMDNS(gctx, cfg, port)
		if err != nil {
			l.Warn("mdns_start_failed", "error", err)
			return nil
		}
		if cfg.mdnsEnable {
			l.Info("mdns_started", "service", mdnsServiceType, "name", mdnsInstance(cfg), "port", port)
		}
		<-gctx.Done()
		cleanupMDNS()
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		l.Info("shutdown_signal")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	err = g.Wait()
	if err != nil {
		l.Error("run_error", "error", err)
	}
	return err
}
