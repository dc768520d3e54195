package socketcan

import (
	"fmt"

	"github.com/kstaniek/go-cansock/internal/can"
)

// Device is a raw CAN socket bound to one interface.
type Device struct {
	a       *Adapter
	fd      int
	ifindex int
	name    string
}

// Dev is the minimal surface needed by the daemon and TXWriter.
// Implemented by *Device in production and by fakes in tests.
type Dev interface {
	ReadFrame() (can.Frame, bool)
	WriteFrame(can.Frame) error
	Close() error
}

// Open opens a raw socket on iface, turns off CAN FD frames and binds it.
func Open(a *Adapter, iface string) (*Device, error) {
	fd, err := a.OpenRaw()
	if err != nil {
		return nil, err
	}
	if err := a.SetRawOption(fd, can.RawFDFrames, 0); err != nil && !isNoProtoOpt(err) {
		_ = a.Close(fd)
		return nil, fmt.Errorf("disable CAN FD: %w", err)
	}
	idx, err := a.InterfaceIndex(fd, iface)
	if err != nil {
		_ = a.Close(fd)
		return nil, fmt.Errorf("if %q: %w", iface, err)
	}
	if err := a.Bind(fd, idx); err != nil {
		_ = a.Close(fd)
		return nil, fmt.Errorf("bind(can@%s): %w", iface, err)
	}
	return &Device{a: a, fd: fd, ifindex: idx, name: iface}, nil
}

func (d *Device) FD() int           { return d.fd }
func (d *Device) Ifindex() int      { return d.ifindex }
func (d *Device) Name() string      { return d.name }
func (d *Device) Adapter() *Adapter { return d.a }

// ReadFrame receives one frame; ok is false when nothing usable was read.
func (d *Device) ReadFrame() (can.Frame, bool) { return d.a.ReceiveFrame(d.fd) }

// WriteFrame sends fr on the bound interface.
func (d *Device) WriteFrame(fr can.Frame) error {
	return d.a.SendFrame(d.fd, d.ifindex, fr.CANID, fr.Payload())
}

func (d *Device) Close() error { return d.a.Close(d.fd) }
