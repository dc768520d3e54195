package socketcan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kstaniek/go-cansock/internal/can"
	"github.com/kstaniek/go-cansock/internal/logging"
	"github.com/kstaniek/go-cansock/internal/metrics"
	"github.com/kstaniek/go-cansock/internal/transport"
)

var ErrTxOverflow = errors.New("socketcan tx overflow")

// TXWriter funnels all writes to one device through a single goroutine so
// producers (TCP clients) never block on the socket. Frames are written in
// the order SendFrame accepted them.
type TXWriter struct {
	q *transport.TxQueue
	l *slog.Logger
}

// NewTXWriter creates a TXWriter with a queue of buf frames. Cancelling
// parent discards the backlog; Close flushes it.
func NewTXWriter(parent context.Context, dev Dev, buf int) *TXWriter {
	w := &TXWriter{l: logging.L()}
	w.q = transport.NewTxQueue(parent, buf, dev.WriteFrame, transport.TxHooks{
		OnWritten: func(can.Frame) { metrics.IncSocketCANTx() },
		OnError:   w.writeFailed,
		OnDrop:    w.dropped,
	})
	return w
}

func (w *TXWriter) writeFailed(fr can.Frame, err error) {
	label := metrics.ErrSocketCANWrite
	if errors.Is(err, ErrPartialFrame) {
		label = metrics.ErrSocketCANShort
	}
	metrics.IncError(label)
	w.l.Warn("socketcan_write_error", "can_id", fmt.Sprintf("0x%X", fr.CANID), "len", fr.Len, "error", err)
}

func (w *TXWriter) dropped(fr can.Frame) error {
	metrics.IncError(metrics.ErrSocketCANOver)
	w.l.Debug("socketcan_tx_drop", "can_id", fmt.Sprintf("0x%X", fr.CANID))
	return ErrTxOverflow
}

// SendFrame queues fr (ErrTxOverflow when the queue is full).
func (w *TXWriter) SendFrame(fr can.Frame) error { return w.q.SendFrame(fr) }

// Stats reports queue counters.
func (w *TXWriter) Stats() transport.TxStats { return w.q.Stats() }

// Close stops accepting frames and waits for queued ones to be written.
func (w *TXWriter) Close() { w.q.Close() }
