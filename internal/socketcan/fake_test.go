package socketcan

import (
	"errors"
	"sync"
	"time"

	"github.com/kstaniek/go-cansock/internal/can"
	"github.com/kstaniek/go-cansock/internal/logging"
)

var errFake = errors.New("fake errno")

// fakeSys records every call and returns canned results.
type fakeSys struct {
	mu    sync.Mutex
	calls []string
	open  map[int]bool
	next  int

	ifindexes map[string]int
	mtu       int

	sendN   int // -1 writes everything
	sendErr error
	sent    [][]byte
	sentTo  []int

	recv func(p []byte) (int, int, bool, error)

	opts      map[int]int32
	optSize   int
	optErr    error
	filters   []can.Filter
	timeout   time.Duration
	bindIndex int
}

func newFakeSys() *fakeSys {
	return &fakeSys{
		open:      map[int]bool{},
		next:      3,
		ifindexes: map[string]int{"vcan0": 7},
		mtu:       can.MTU,
		sendN:     -1,
		opts:      map[int]int32{},
		optSize:   optSize,
	}
}

func newTestAdapter(fs *fakeSys) *Adapter {
	return New(withSyscalls(fs), WithLogger(logging.Discard()))
}

func (f *fakeSys) record(c string) { f.mu.Lock(); f.calls = append(f.calls, c); f.mu.Unlock() }

func (f *fakeSys) ncalls() int { f.mu.Lock(); defer f.mu.Unlock(); return len(f.calls) }

func (f *fakeSys) socket(proto int) (int, error) {
	f.record("socket")
	fd := f.next
	f.next++
	f.open[fd] = true
	return fd, nil
}

func (f *fakeSys) close(fd int) error {
	f.record("close")
	if !f.open[fd] {
		return errFake
	}
	delete(f.open, fd)
	return nil
}

func (f *fakeSys) ifindex(fd int, name string) (int, error) {
	f.record("ifindex")
	idx, ok := f.ifindexes[name]
	if !ok {
		return 0, errFake
	}
	return idx, nil
}

func (f *fakeSys) ifname(fd, index int) (string, error) {
	f.record("ifname")
	for name, idx := range f.ifindexes {
		if idx == index {
			return name, nil
		}
	}
	return "", errFake
}

func (f *fakeSys) ifmtu(fd int, name string) (int, error) {
	f.record("ifmtu")
	if _, ok := f.ifindexes[name]; !ok {
		return 0, errFake
	}
	return f.mtu, nil
}

func (f *fakeSys) bind(fd, index int) error {
	f.record("bind")
	f.bindIndex = index
	return nil
}

func (f *fakeSys) sendto(fd int, p []byte, index int) (int, error) {
	f.record("sendto")
	if f.sendErr != nil {
		return 0, f.sendErr
	}
	f.sent = append(f.sent, append([]byte(nil), p...))
	f.sentTo = append(f.sentTo, index)
	if f.sendN >= 0 {
		return f.sendN, nil
	}
	return len(p), nil
}

func (f *fakeSys) recvfrom(fd int, p []byte) (int, int, bool, error) {
	f.record("recvfrom")
	return f.recv(p)
}

func (f *fakeSys) setsockoptInt(fd, level, opt int, v int32) error {
	f.record("setsockopt")
	if f.optErr != nil {
		return f.optErr
	}
	f.opts[opt] = v
	return nil
}

func (f *fakeSys) getsockoptInt(fd, level, opt int) (int32, int, error) {
	f.record("getsockopt")
	if f.optErr != nil {
		return 0, 0, f.optErr
	}
	return f.opts[opt], f.optSize, nil
}

func (f *fakeSys) setFilters(fd int, filters []can.Filter) error {
	f.record("setFilters")
	f.filters = filters
	return nil
}

func (f *fakeSys) setRecvTimeout(fd int, d time.Duration) error {
	f.record("setRecvTimeout")
	f.timeout = d
	return nil
}

type timeoutErr struct{}

func (timeoutErr) Error() string { return "resource temporarily unavailable" }
func (timeoutErr) Timeout() bool { return true }
