//go:build linux

package socketcan

import (
	"errors"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/kstaniek/go-cansock/internal/can"
)

// linux/sockios.h
const (
	siocgifname  = 0x8910
	siocgifmtu   = 0x8921
	siocgifindex = 0x8933
)

type unixSyscalls struct{}

func defaultSyscalls() syscalls { return unixSyscalls{} }

func (unixSyscalls) socket(proto int) (int, error) {
	typ := unix.SOCK_RAW
	if proto == can.ProtoBCM {
		typ = unix.SOCK_DGRAM
	}
	return unix.Socket(unix.AF_CAN, typ|unix.SOCK_CLOEXEC, proto)
}

func (unixSyscalls) close(fd int) error { return unix.Close(fd) }

func (unixSyscalls) ifindex(fd int, name string) (int, error) {
	ifr, err := unix.NewIfreq(name)
	if err != nil {
		return 0, err
	}
	if err := unix.IoctlIfreq(fd, siocgifindex, ifr); err != nil {
		return 0, err
	}
	return int(int32(ifr.Uint32())), nil
}

func (unixSyscalls) ifname(fd, index int) (string, error) {
	ifr, err := unix.NewIfreq("")
	if err != nil {
		return "", err
	}
	ifr.SetUint32(uint32(index))
	if err := unix.IoctlIfreq(fd, siocgifname, ifr); err != nil {
		return "", err
	}
	return ifr.Name(), nil
}

func (unixSyscalls) ifmtu(fd int, name string) (int, error) {
	ifr, err := unix.NewIfreq(name)
	if err != nil {
		return 0, err
	}
	if err := unix.IoctlIfreq(fd, siocgifmtu, ifr); err != nil {
		return 0, err
	}
	return int(int32(ifr.Uint32())), nil
}

func (unixSyscalls) bind(fd, index int) error {
	return unix.Bind(fd, &unix.SockaddrCAN{Ifindex: index})
}

func (unixSyscalls) sendto(fd int, p []byte, index int) (int, error) {
	// no address: use the interface from bind
	var to unix.Sockaddr
	if index != 0 {
		to = &unix.SockaddrCAN{Ifindex: index}
	}
	return unix.SendmsgN(fd, p, nil, to, 0)
}

func (unixSyscalls) recvfrom(fd int, p []byte) (int, int, bool, error) {
	n, from, err := unix.Recvfrom(fd, p, 0)
	if err != nil {
		return n, 0, false, err
	}
	sa, ok := from.(*unix.SockaddrCAN)
	if !ok {
		return n, 0, false, nil
	}
	return n, sa.Ifindex, true, nil
}

func (unixSyscalls) setsockoptInt(fd, level, opt int, v int32) error {
	return unix.SetsockoptInt(fd, level, opt, int(v))
}

// getsockoptInt issues getsockopt directly because unix.GetsockoptInt drops
// the returned option length.
func (unixSyscalls) getsockoptInt(fd, level, opt int) (int32, int, error) {
	var v int32
	l := uint32(unsafe.Sizeof(v))
	_, _, e := unix.Syscall6(unix.SYS_GETSOCKOPT, uintptr(fd), uintptr(level), uintptr(opt),
		uintptr(unsafe.Pointer(&v)), uintptr(unsafe.Pointer(&l)), 0)
	if e != 0 {
		return 0, int(l), e
	}
	return v, int(l), nil
}

func (unixSyscalls) setFilters(fd int, filters []can.Filter) error {
	cf := make([]unix.CanFilter, len(filters))
	for i, f := range filters {
		cf[i] = unix.CanFilter{Id: f.ID, Mask: f.Mask}
	}
	return unix.SetsockoptCanRawFilter(fd, unix.SOL_CAN_RAW, unix.CAN_RAW_FILTER, cf)
}

func (unixSyscalls) setRecvTimeout(fd int, d time.Duration) error {
	tv := unix.NsecToTimeval(d.Nanoseconds())
	return unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv)
}

// isNoProtoOpt reports ENOPROTOOPT, returned by kernels without CAN FD support.
func isNoProtoOpt(err error) bool { return errors.Is(err, unix.ENOPROTOOPT) }
