package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/kstaniek/go-cansock/internal/metrics"
)

// runMetricsLogger periodically logs counters for setups without Prometheus.
func runMetricsLogger(ctx context.Context, interval time.Duration, l *slog.Logger) error {
	if interval <= 0 {
		return nil
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			snap := metrics.Snap()
			l.Info("metrics_snapshot",
				"socketcan_rx", snap.SocketCANRx,
				"socketcan_tx", snap.SocketCANTx,
				"socketcan_discarded", snap.Discarded,
				"tcp_rx", snap.TCPRx,
				"tcp_tx", snap.TCPTx,
				"hub_drops", snap.HubDrops,
				"hub_kicks", snap.HubKicks,
				"hub_rejects", snap.HubRejects,
				"clients", snap.HubClients,
				"errors", snap.Errors,
			)
		case <-ctx.Done():
			return nil
		}
	}
}
