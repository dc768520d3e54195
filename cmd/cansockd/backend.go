package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/avast/retry-go"

	"github.com/kstaniek/go-cansock/internal/can"
	"github.com/kstaniek/go-cansock/internal/hub"
	"github.com/kstaniek/go-cansock/internal/metrics"
	"github.com/kstaniek/go-cansock/internal/socketcan"
)

const (
	txQueueSize  = 1024
	rxBackoffMin = 20 * time.Millisecond
	rxBackoffMax = 500 * time.Millisecond
)

// Hooks for tests.
var (
	openDevice     = openSocketCAN
	sleepFn        = time.Sleep
	openRetryDelay = 250 * time.Millisecond
)

// openSocketCAN opens and configures the raw socket of cfg.canIf.
func openSocketCAN(cfg *appConfig, l *slog.Logger) (socketcan.Dev, error) {
	a := socketcan.New(socketcan.WithLogger(l))
	d, err := socketcan.Open(a, cfg.canIf)
	if err != nil {
		return nil, err
	}
	fd := d.FD()
	steps := []func() error{
		func() error { return a.SetReceiveTimeout(fd, cfg.rxTimeout) },
		func() error { return a.SetRawOption(fd, can.RawLoopback, boolOpt(cfg.loopback)) },
		func() error { return a.SetRawOption(fd, can.RawRecvOwnMsgs, boolOpt(cfg.recvOwn)) },
	}
	if len(cfg.filters) > 0 {
		steps = append(steps, func() error { return a.SetFilters(fd, cfg.filters) })
	}
	for _, step := range steps {
		if err := step(); err != nil {
			_ = d.Close()
			return nil, err
		}
	}
	return d, nil
}

func boolOpt(b bool) int32 {
	if b {
		return 1
	}
	return 0
}

// retryable reports whether opening may succeed later (interface not up yet).
func retryable(err error) bool {
	return !errors.Is(err, socketcan.ErrInvalidArgument) && !errors.Is(err, socketcan.ErrUnsupported)
}

func openWithRetry(ctx context.Context, cfg *appConfig, l *slog.Logger) (socketcan.Dev, error) {
	var dev socketcan.Dev
	err := retry.Do(func() error {
		d, err := openDevice(cfg, l)
		if err != nil {
			return err
		}
		dev = d
		return nil
	},
		retry.Context(ctx),
		retry.Attempts(uint(cfg.openAttempts)),
		retry.Delay(openRetryDelay),
		retry.RetryIf(retryable),
		retry.OnRetry(func(n uint, err error) {
			l.Warn("socketcan_open_retry", "if", cfg.canIf, "attempt", n+1, "error", err)
		}),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, fmt.Errorf("socketcan open %s: %w", cfg.canIf, err)
	}
	return dev, nil
}

// initBackend opens the CAN device and returns the frame sender, the RX loop
// to run until ctx is done, and a cleanup closing the device.
func initBackend(ctx context.Context, cfg *appConfig, h *hub.Hub, l *slog.Logger) (func(can.Frame) error, func(context.Context) error, func(), error) {
	dev, err := openWithRetry(ctx, cfg, l)
	if err != nil {
		return nil, nil, func() {}, err
	}
	l.Info("socketcan_open", "if", cfg.canIf, "rx_timeout", cfg.rxTimeout, "filters", len(cfg.filters))
	tw := socketcan.NewTXWriter(ctx, dev, txQueueSize)
	rx := func(ctx context.Context) error {
		rxLoop(ctx, dev, h, cfg.rxTimeout, l)
		return nil
	}
	cleanup := func() {
		tw.Close()
		st := tw.Stats()
		l.Info("socketcan_tx_summary", "written", st.Written, "failed", st.Failed, "dropped", st.Dropped)
		_ = dev.Close()
	}
	return tw.SendFrame, rx, cleanup, nil
}

// rxLoop broadcasts received frames until ctx is done. A read that fails
// well before the receive timeout is an error rather than an idle poll and
// backs off exponentially.
func rxLoop(ctx context.Context, dev socketcan.Dev, h *hub.Hub, rxTimeout time.Duration, l *slog.Logger) {
	defer l.Info("socketcan_rx_end")
	backoff := rxBackoffMin
	for ctx.Err() == nil {
		start := time.Now()
		fr, ok := dev.ReadFrame()
		if ok {
			metrics.IncSocketCANRx()
			h.Broadcast(fr)
			backoff = rxBackoffMin
			continue
		}
		if ctx.Err() != nil {
			return
		}
		if time.Since(start) >= rxTimeout/2 {
			continue
		}
		sleepFn(backoff)
		backoff *= 2
		if backoff > rxBackoffMax {
			backoff = rxBackoffMax
		}
	}
}
