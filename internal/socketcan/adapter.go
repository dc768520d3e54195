package socketcan

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kstaniek/go-cansock/internal/can"
	"github.com/kstaniek/go-cansock/internal/logging"
	"github.com/kstaniek/go-cansock/internal/metrics"
)

const (
	// solCANRaw is SOL_CAN_BASE + CAN_RAW.
	solCANRaw = 101
	// maxIfNameLen is IFNAMSIZ minus the terminator.
	maxIfNameLen = 15
	optSize      = 4
)

// Adapter forwards calls to the SocketCAN syscalls of the AF_CAN family. It
// holds no descriptor state: the caller owns every fd and each call is
// revalidated by the kernel. Nothing is retried. Safe for concurrent use to
// the extent the kernel allows concurrent syscalls on one descriptor.
type Adapter struct {
	sys    syscalls
	logger *slog.Logger
}

type Option func(*Adapter)

// WithLogger sets the logger used for receive diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(a *Adapter) {
		if l != nil {
			a.logger = l
		}
	}
}

func withSyscalls(s syscalls) Option { return func(a *Adapter) { a.sys = s } }

func New(opts ...Option) *Adapter {
	a := &Adapter{sys: defaultSyscalls(), logger: logging.L()}
	for _, o := range opts {
		o(a)
	}
	return a
}

// OpenRaw opens a CAN_RAW socket (SOCK_RAW).
func (a *Adapter) OpenRaw() (int, error) {
	fd, err := a.sys.socket(can.ProtoRaw)
	if err != nil {
		return -1, opErr("socket(CAN_RAW)", err)
	}
	return fd, nil
}

// OpenBCM opens a broadcast manager socket (SOCK_DGRAM, CAN_BCM).
func (a *Adapter) OpenBCM() (int, error) {
	fd, err := a.sys.socket(can.ProtoBCM)
	if err != nil {
		return -1, opErr("socket(CAN_BCM)", err)
	}
	return fd, nil
}

// Close releases fd. Closing an already closed descriptor is an error.
func (a *Adapter) Close(fd int) error { return opErr("close", a.sys.close(fd)) }

func checkIfName(name string) error {
	if len(name) > maxIfNameLen {
		return fmt.Errorf("%w: illegal interface name %q (max %d bytes)", ErrInvalidArgument, name, maxIfNameLen)
	}
	return nil
}

// InterfaceIndex resolves an interface name to its kernel index.
func (a *Adapter) InterfaceIndex(fd int, name string) (int, error) {
	if err := checkIfName(name); err != nil {
		return -1, err
	}
	idx, err := a.sys.ifindex(fd, name)
	if err != nil {
		return -1, opErr("ioctl(SIOCGIFINDEX)", err)
	}
	return idx, nil
}

// InterfaceName resolves a kernel interface index to its name.
func (a *Adapter) InterfaceName(fd, index int) (string, error) {
	name, err := a.sys.ifname(fd, index)
	if err != nil {
		return "", opErr("ioctl(SIOCGIFNAME)", err)
	}
	return name, nil
}

// MTU returns the maximum transfer unit of the named interface: can.MTU for
// classic CAN devices, can.FDMTU for CAN FD capable ones.
func (a *Adapter) MTU(fd int, name string) (int, error) {
	if err := checkIfName(name); err != nil {
		return -1, err
	}
	mtu, err := a.sys.ifmtu(fd, name)
	if err != nil {
		return -1, opErr("ioctl(SIOCGIFMTU)", err)
	}
	return mtu, nil
}

// Bind associates fd with the interface index. Index 0 binds to all CAN
// interfaces.
func (a *Adapter) Bind(fd, index int) error { return opErr("bind", a.sys.bind(fd, index)) }

// SendFrame writes one classic frame record to the interface index.
//
// Index 0 sends without a destination address, so the frame goes out on the
// interface fd is bound to; on a socket bound to all interfaces (index 0) the
// kernel then fails the send with ENXIO. Any other index is passed as the
// sockaddr_can destination and may differ from the bound interface.
//
// Payloads longer than can.MaxDataLen are rejected rather than truncated. A
// short write is reported as ErrPartialFrame.
func (a *Adapter) SendFrame(fd, index int, id uint32, payload []byte) error {
	if len(payload) > can.MaxDataLen {
		return fmt.Errorf("%w: payload of %d bytes (max %d)", ErrInvalidArgument, len(payload), can.MaxDataLen)
	}
	var rec [can.MTU]byte
	putRecord(&rec, id, payload)
	n, err := a.sys.sendto(fd, rec[:], index)
	if err != nil {
		return opErr("sendto", err)
	}
	if n != can.MTU {
		return opErr("sendto", fmt.Errorf("%w (%d of %d bytes)", ErrPartialFrame, n, can.MTU))
	}
	return nil
}

// ReceiveFrame blocks for one frame record. It never returns an error: a
// failed read, a sender address that is not AF_CAN, or a short read yield
// ok == false and a diagnostic, so a polling loop can simply call again.
// Receive timeouts (SetReceiveTimeout) are logged at debug level only.
func (a *Adapter) ReceiveFrame(fd int) (fr can.Frame, ok bool) {
	var rec [can.MTU]byte
	n, index, isCAN, err := a.sys.recvfrom(fd, rec[:])
	if err != nil {
		var te interface{ Timeout() bool }
		if errors.As(err, &te) && te.Timeout() {
			a.logger.Debug("socketcan_recv_timeout", "fd", fd)
			return fr, false
		}
		metrics.IncDiscarded(metrics.DiscardRead)
		metrics.IncError(metrics.ErrSocketCANRead)
		a.logger.Warn("socketcan_recv_error", "fd", fd, "error", err)
		return fr, false
	}
	if !isCAN {
		metrics.IncDiscarded(metrics.DiscardAddress)
		a.logger.Warn("socketcan_recv_bad_address", "fd", fd)
		return fr, false
	}
	if n != can.MTU {
		metrics.IncDiscarded(metrics.DiscardShort)
		a.logger.Warn("socketcan_recv_short", "fd", fd, "bytes", n, "want", can.MTU)
		return fr, false
	}
	parseRecord(rec[:], n, &fr)
	fr.Ifindex = index
	return fr, true
}

// SetRawOption sets a 4-byte SOL_CAN_RAW option (can.RawLoopback, ...).
func (a *Adapter) SetRawOption(fd, opt int, v int32) error {
	return opErr("setsockopt", a.sys.setsockoptInt(fd, solCANRaw, opt, v))
}

// RawOption reads a 4-byte SOL_CAN_RAW option. A kernel reply of any other
// size (e.g. can.RawFilter) is reported as ErrInvalidArgument.
func (a *Adapter) RawOption(fd, opt int) (int32, error) {
	v, size, err := a.sys.getsockoptInt(fd, solCANRaw, opt)
	if err != nil {
		return 0, opErr("getsockopt", err)
	}
	if size != optSize {
		return 0, fmt.Errorf("%w: getsockopt(%d) returned %d bytes, want %d", ErrInvalidArgument, opt, size, optSize)
	}
	return v, nil
}

// SetFilters installs the CAN_RAW_FILTER list. An empty list receives nothing.
func (a *Adapter) SetFilters(fd int, filters []can.Filter) error {
	return opErr("setsockopt(CAN_RAW_FILTER)", a.sys.setFilters(fd, filters))
}

// SetReceiveTimeout bounds ReceiveFrame with SO_RCVTIMEO; 0 blocks forever.
func (a *Adapter) SetReceiveTimeout(fd int, d time.Duration) error {
	if d < 0 {
		return fmt.Errorf("%w: negative receive timeout %v", ErrInvalidArgument, d)
	}
	return opErr("setsockopt(SO_RCVTIMEO)", a.sys.setRecvTimeout(fd, d))
}
