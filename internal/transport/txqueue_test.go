package transport

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kstaniek/go-cansock/internal/can"
)

var errBusOff = errors.New("bus off")

// recDev records written frames and can be stalled or made to fail per id.
type recDev struct {
	mu      sync.Mutex
	frames  []can.Frame
	gate    chan struct{}
	failIDs map[uint32]error
}

func (d *recDev) write(fr can.Frame) error {
	if d.gate != nil {
		<-d.gate
	}
	if err := d.failIDs[fr.CANID]; err != nil {
		return err
	}
	d.mu.Lock()
	d.frames = append(d.frames, fr)
	d.mu.Unlock()
	return nil
}

func (d *recDev) ids() []uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]uint32, len(d.frames))
	for i, f := range d.frames {
		out[i] = f.CANID
	}
	return out
}

func TestTxQueuePreservesOrder(t *testing.T) {
	dev := &recDev{}
	q := NewTxQueue(context.Background(), 64, dev.write, TxHooks{})
	for id := uint32(0x100); id < 0x120; id++ {
		if err := q.SendFrame(can.Frame{CANID: id}); err != nil {
			t.Fatalf("SendFrame(0x%X): %v", id, err)
		}
	}
	q.Close()
	got := dev.ids()
	if len(got) != 0x20 {
		t.Fatalf("written %d frames, want 32", len(got))
	}
	for i, id := range got {
		if id != 0x100+uint32(i) {
			t.Fatalf("frame %d has id 0x%X", i, id)
		}
	}
	if s := q.Stats(); s.Written != 0x20 || s.Failed != 0 || s.Dropped != 0 || s.Queued != 0 {
		t.Fatalf("stats %+v", s)
	}
}

func TestTxQueueErrorCarriesFrame(t *testing.T) {
	dev := &recDev{failIDs: map[uint32]error{can.SetEFF(0x1ABCDE): errBusOff}}
	var mu sync.Mutex
	var failed []can.Frame
	var written int
	q := NewTxQueue(context.Background(), 4, dev.write, TxHooks{
		OnError: func(fr can.Frame, err error) {
			if !errors.Is(err, errBusOff) {
				t.Errorf("OnError got %v", err)
			}
			mu.Lock()
			failed = append(failed, fr)
			mu.Unlock()
		},
		OnWritten: func(can.Frame) { mu.Lock(); written++; mu.Unlock() },
	})
	bad := can.Frame{CANID: can.SetEFF(0x1ABCDE), Len: 2, Data: [8]byte{0xDE, 0xAD}}
	_ = q.SendFrame(can.Frame{CANID: 0x10})
	_ = q.SendFrame(bad)
	_ = q.SendFrame(can.Frame{CANID: 0x11})
	q.Close()

	mu.Lock()
	defer mu.Unlock()
	if len(failed) != 1 || failed[0] != bad {
		t.Fatalf("failed frames %+v", failed)
	}
	if written != 2 {
		t.Fatalf("OnWritten called %d times, want 2", written)
	}
	if s := q.Stats(); s.Failed != 1 || s.Written != 2 {
		t.Fatalf("stats %+v", s)
	}
}

func TestTxQueueDropReportsFrame(t *testing.T) {
	dev := &recDev{gate: make(chan struct{})}
	var dropped []uint32
	errFull := errors.New("full")
	q := NewTxQueue(context.Background(), 1, dev.write, TxHooks{
		OnDrop: func(fr can.Frame) error { dropped = append(dropped, fr.CANID); return errFull },
	})
	// 0x1 is taken by the stalled writer, 0x2 fills the queue
	_ = q.SendFrame(can.Frame{CANID: 0x1})
	time.Sleep(20 * time.Millisecond)
	_ = q.SendFrame(can.Frame{CANID: 0x2})
	if err := q.SendFrame(can.Frame{CANID: 0x3}); !errors.Is(err, errFull) {
		t.Fatalf("want drop error, got %v", err)
	}
	if len(dropped) != 1 || dropped[0] != 0x3 {
		t.Fatalf("dropped %v", dropped)
	}
	close(dev.gate)
	q.Close()
	if got := dev.ids(); len(got) != 2 || got[0] != 0x1 || got[1] != 0x2 {
		t.Fatalf("written %v", got)
	}
	if s := q.Stats(); s.Dropped != 1 {
		t.Fatalf("stats %+v", s)
	}
}

func TestTxQueueSilentDropWithoutHook(t *testing.T) {
	dev := &recDev{gate: make(chan struct{})}
	q := NewTxQueue(context.Background(), 1, dev.write, TxHooks{})
	for i := 0; i < 4; i++ {
		if err := q.SendFrame(can.Frame{CANID: uint32(i)}); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	close(dev.gate)
	q.Close()
	if s := q.Stats(); s.Dropped == 0 {
		t.Fatalf("expected drops with a stalled device, stats %+v", s)
	}
}

func TestTxQueueCloseFlushesBacklog(t *testing.T) {
	dev := &recDev{gate: make(chan struct{})}
	q := NewTxQueue(context.Background(), 8, dev.write, TxHooks{})
	for i := uint32(0); i < 5; i++ {
		_ = q.SendFrame(can.Frame{CANID: i})
	}
	go func() {
		time.Sleep(10 * time.Millisecond)
		close(dev.gate)
	}()
	q.Close()
	if got := dev.ids(); len(got) != 5 {
		t.Fatalf("Close flushed %d of 5 frames", len(got))
	}
	if err := q.SendFrame(can.Frame{}); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("send after close: %v", err)
	}
	q.Close() // idempotent
}

func TestTxQueueContextCancelDiscards(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	dev := &recDev{gate: make(chan struct{})}
	q := NewTxQueue(ctx, 8, dev.write, TxHooks{})
	_ = q.SendFrame(can.Frame{CANID: 0x1})
	time.Sleep(10 * time.Millisecond)
	for i := uint32(2); i < 6; i++ {
		_ = q.SendFrame(can.Frame{CANID: i})
	}
	cancel()
	if err := q.SendFrame(can.Frame{CANID: 0x7}); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("send after cancel: %v", err)
	}
	close(dev.gate)
	done := make(chan struct{})
	go func() { q.Close(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close blocked after cancel")
	}
	if got := dev.ids(); len(got) > 2 {
		t.Fatalf("backlog not discarded: %v", got)
	}
}

func TestTxQueueConcurrentProducers(t *testing.T) {
	dev := &recDev{}
	q := NewTxQueue(context.Background(), 256, dev.write, TxHooks{})
	var wg sync.WaitGroup
	for p := uint32(0); p < 4; p++ {
		p := p
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := uint32(0); i < 32; i++ {
				_ = q.SendFrame(can.Frame{CANID: p<<8 | i})
			}
		}()
	}
	wg.Wait()
	q.Close()
	last := map[uint32]int{}
	for _, id := range dev.ids() {
		p, i := id>>8, int(id&0xFF)
		if prev, ok := last[p]; ok && i <= prev {
			t.Fatalf("producer %d reordered: %d after %d", p, i, prev)
		}
		last[p] = i
	}
	if s := q.Stats(); s.Written != 128 {
		t.Fatalf("stats %+v", s)
	}
}
