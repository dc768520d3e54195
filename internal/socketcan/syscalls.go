package socketcan

import (
	"time"

	"github.com/kstaniek/go-cansock/internal/can"
)

// syscalls is the kernel surface the Adapter forwards to. Each method is a
// single syscall with no validation of its own. Implemented by unixSyscalls
// on linux and replaced by fakes in tests.
type syscalls interface {
	socket(proto int) (int, error)
	close(fd int) error
	ifindex(fd int, name string) (int, error)
	ifname(fd, index int) (string, error)
	ifmtu(fd int, name string) (int, error)
	bind(fd, index int) error
	// sendto sends p to the interface index; index 0 uses the bound interface.
	sendto(fd int, p []byte, index int) (int, error)
	// recvfrom reads one datagram. isCAN is false when the sender address is
	// not a CAN address of the expected size.
	recvfrom(fd int, p []byte) (n, index int, isCAN bool, err error)
	setsockoptInt(fd, level, opt int, v int32) error
	// getsockoptInt returns the value and the option length reported by the kernel.
	getsockoptInt(fd, level, opt int) (v int32, size int, err error)
	setFilters(fd int, filters []can.Filter) error
	setRecvTimeout(fd int, d time.Duration) error
}
