package transport

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/kstaniek/go-cansock/internal/can"
)

// ErrQueueClosed is returned by SendFrame once the queue is closed or its
// context is done.
var ErrQueueClosed = errors.New("tx queue closed")

// WriteFunc transmits one frame to the bus.
type WriteFunc func(can.Frame) error

// TxHooks observe the fate of each queued frame. All hooks run on the writer
// goroutine except OnDrop, which runs on the caller of SendFrame.
type TxHooks struct {
	// OnWritten is called after fr reached the device.
	OnWritten func(fr can.Frame)
	// OnError is called when writing fr failed. The frame is not retried.
	OnError func(fr can.Frame, err error)
	// OnDrop is called when fr did not fit in the queue. Its result is
	// returned from SendFrame; nil drops silently.
	OnDrop func(fr can.Frame) error
}

// TxStats is a snapshot of queue counters.
type TxStats struct {
	Queued  int
	Written uint64
	Failed  uint64
	Dropped uint64
}

// TxQueue is a bounded FIFO in front of a single frame writer. Frames from
// many producers reach the bus in the order they were accepted and a slow
// device never blocks a producer.
type TxQueue struct {
	mu      sync.Mutex
	ch      chan can.Frame
	ctx     context.Context
	done    chan struct{}
	write   WriteFunc
	hooks   TxHooks
	closed  bool
	written atomic.Uint64
	failed  atomic.Uint64
	dropped atomic.Uint64
}

// NewTxQueue starts the writer goroutine. It stops when Close is called or
// ctx is done; in the latter case frames still queued are discarded.
func NewTxQueue(ctx context.Context, size int, write WriteFunc, hooks TxHooks) *TxQueue {
	if size < 1 {
		size = 1
	}
	q := &TxQueue{
		ch:    make(chan can.Frame, size),
		ctx:   ctx,
		done:  make(chan struct{}),
		write: write,
		hooks: hooks,
	}
	go q.run()
	return q
}

func (q *TxQueue) run() {
	defer close(q.done)
	for q.ctx.Err() == nil {
		select {
		case fr, ok := <-q.ch:
			if !ok {
				return
			}
			q.writeOne(fr)
		case <-q.ctx.Done():
			return
		}
	}
}

func (q *TxQueue) writeOne(fr can.Frame) {
	if err := q.write(fr); err != nil {
		q.failed.Add(1)
		if q.hooks.OnError != nil {
			q.hooks.OnError(fr, err)
		}
		return
	}
	q.written.Add(1)
	if q.hooks.OnWritten != nil {
		q.hooks.OnWritten(fr)
	}
}

// SendFrame queues fr. It never blocks on the device.
func (q *TxQueue) SendFrame(fr can.Frame) error {
	q.mu.Lock()
	if q.closed || q.ctx.Err() != nil {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	select {
	case q.ch <- fr:
		q.mu.Unlock()
		return nil
	default:
	}
	q.mu.Unlock()
	q.dropped.Add(1)
	if q.hooks.OnDrop != nil {
		return q.hooks.OnDrop(fr)
	}
	return nil
}

// Stats returns the current counters.
func (q *TxQueue) Stats() TxStats {
	return TxStats{
		Queued:  len(q.ch),
		Written: q.written.Load(),
		Failed:  q.failed.Load(),
		Dropped: q.dropped.Load(),
	}
}

// Close stops accepting frames, lets the writer flush what is already queued
// and waits for it. If the queue's context is done the backlog is discarded.
func (q *TxQueue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
	q.mu.Unlock()
	<-q.done
}
