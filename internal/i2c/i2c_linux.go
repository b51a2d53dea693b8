//go:build linux

package i2c

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Linux I2C backed by /dev/i2c-*.
//
// Every transfer goes through I2C_RDWR so a register read is a single
// write+read with repeated start, and a probe is a single 1-byte read.

const (
	i2cMrd  = 0x0001
	i2cRdwr = 0x0707
)

type msg struct {
	addr  uint16
	flags uint16
	len   uint16
	buf   uintptr
}

type rdwrData struct {
	msgs  uintptr
	nmsgs uint32
}

// Bus is an opened I2C adapter (e.g. /dev/i2c-1).
//
// The tester drives the bus from a single control loop. Bus does no locking:
// a multiplexer channel switch changes what every Dev on the bus talks to.
type Bus struct {
	f    *os.File
	path string
}

func Open(path string) (*Bus, error) {
	path = filepath.Clean(path)
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	return &Bus{f: f, path: path}, nil
}

// BusPath returns the device node for an adapter number.
func BusPath(n int) string { return fmt.Sprintf("/dev/i2c-%d", n) }

func (b *Bus) Path() string {
	if b == nil {
		return ""
	}
	return b.path
}

func (b *Bus) Close() error {
	if b == nil || b.f == nil {
		return nil
	}
	err := b.f.Close()
	b.f = nil
	return err
}

func (b *Bus) Dev(addr uint16) *Dev {
	if b == nil {
		return nil
	}
	return &Dev{bus: b, addr: addr}
}

// Probe reports whether a device acknowledges addr on the currently
// connected (sub-)bus. It reads a single byte and discards it.
func (b *Bus) Probe(addr uint16) bool {
	var one [1]byte
	return b.transfer(addr, nil, one[:]) == nil
}

// Tx performs one write+read transaction with addr. It lets drivers written
// against the tinygo drivers.I2C interface run on a Linux adapter.
func (b *Bus) Tx(addr uint16, w, r []byte) error {
	return b.transfer(addr, w, r)
}

// Dev is a device at a 7-bit address.
type Dev struct {
	bus  *Bus
	addr uint16
}

func (d *Dev) Addr() uint16 {
	if d == nil {
		return 0
	}
	return d.addr
}

func (d *Dev) Write(p []byte) error {
	if d == nil {
		return errors.New("i2c device is nil")
	}
	return d.bus.transfer(d.addr, p, nil)
}

func (d *Dev) Read(p []byte) error {
	if d == nil {
		return errors.New("i2c device is nil")
	}
	return d.bus.transfer(d.addr, nil, p)
}

func (d *Dev) WriteRead(w, r []byte) error {
	if d == nil {
		return errors.New("i2c device is nil")
	}
	return d.bus.transfer(d.addr, w, r)
}

func (d *Dev) ReadReg(reg byte, dst []byte) error {
	return d.WriteRead([]byte{reg}, dst)
}

func (d *Dev) ReadRegU8(reg byte) (byte, error) {
	var b [1]byte
	if err := d.ReadReg(reg, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *Dev) WriteReg(reg, value byte) error {
	return d.Write([]byte{reg, value})
}

func (b *Bus) transfer(addr uint16, w, r []byte) error {
	if b == nil || b.f == nil {
		return errors.New("i2c bus is not open")
	}
	if err := checkAddr(addr); err != nil {
		return err
	}

	msgs := make([]msg, 0, 2)
	if len(w) > 0 {
		msgs = append(msgs, msg{addr: addr, flags: 0, len: uint16(len(w)), buf: uintptr(unsafe.Pointer(&w[0]))})
	}
	if len(r) > 0 {
		msgs = append(msgs, msg{addr: addr, flags: i2cMrd, len: uint16(len(r)), buf: uintptr(unsafe.Pointer(&r[0]))})
	}
	if len(msgs) == 0 {
		return nil
	}

	data := rdwrData{msgs: uintptr(unsafe.Pointer(&msgs[0])), nmsgs: uint32(len(msgs))}
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, b.f.Fd(), uintptr(i2cRdwr), uintptr(unsafe.Pointer(&data)))
	if errno != 0 {
		return fmt.Errorf("i2c 0x%02X: %w", addr, errno)
	}
	return nil
}
