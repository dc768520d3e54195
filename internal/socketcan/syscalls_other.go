//go:build !linux

package socketcan

import (
	"time"

	"github.com/kstaniek/go-cansock/internal/can"
)

// Placeholder so non-linux builds compile; every syscall fails.
type unsupportedSyscalls struct{}

func defaultSyscalls() syscalls { return unsupportedSyscalls{} }

func (unsupportedSyscalls) socket(int) (int, error)                  { return -1, ErrUnsupported }
func (unsupportedSyscalls) close(int) error                          { return ErrUnsupported }
func (unsupportedSyscalls) ifindex(int, string) (int, error)         { return 0, ErrUnsupported }
func (unsupportedSyscalls) ifname(int, int) (string, error)          { return "", ErrUnsupported }
func (unsupportedSyscalls) ifmtu(int, string) (int, error)           { return 0, ErrUnsupported }
func (unsupportedSyscalls) bind(int, int) error                      { return ErrUnsupported }
func (unsupportedSyscalls) sendto(int, []byte, int) (int, error)     { return 0, ErrUnsupported }
func (unsupportedSyscalls) setsockoptInt(int, int, int, int32) error { return ErrUnsupported }
func (unsupportedSyscalls) setFilters(int, []can.Filter) error       { return ErrUnsupported }
func (unsupportedSyscalls) setRecvTimeout(int, time.Duration) error  { return ErrUnsupported }

func (unsupportedSyscalls) recvfrom(int, []byte) (int, int, bool, error) {
	return 0, 0, false, ErrUnsupported
}

func (unsupportedSyscalls) getsockoptInt(int, int, int) (int32, int, error) {
	return 0, 0, ErrUnsupported
}

func isNoProtoOpt(error) bool { return false }
