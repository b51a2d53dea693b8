// Package expander drives an MCP23017-class 16-bit I2C GPIO expander.
//
// The fixture wires the trigger button, the pass/fail indicators and the
// slots' IMU interrupt lines to the expander. Pins are numbered 0..15: 0..7
// are port A, 8..15 port B.
//
// Pin modes and output levels go through the tinygo mcp23017 driver. The
// interrupt registers and single-pin reads are accessed directly: the driver
// does not expose INTF/INTCAP, and its pin read fetches both GPIO registers,
// which would clear the interrupt latched on the other port.
package expander

import (
	"errors"
	"fmt"

	"tinygo.org/x/drivers"
	"tinygo.org/x/drivers/mcp23017"
)

const (
	addrDefault = 0x20

	// Pins is the number of GPIO pins on the expander.
	Pins = mcp23017.PinCount

	// Port A register addresses with IOCON.BANK=0. Port B is +1.
	regGPINTEN = 0x04
	regDEFVAL  = 0x06
	regINTCON  = 0x08
	regIOCON   = 0x0A
	regINTF    = 0x0E
	regINTCAP  = 0x10
	regGPIO    = 0x12

	// IOCON: MIRROR so INTA reports either port, BANK=0, sequential addressing.
	ioconMirror = 0x40
)

var (
	ErrInvalidPin     = errors.New("expander: invalid pin")
	ErrNotInitialized = errors.New("expander: not initialized")
)

type Mode int

const (
	Input Mode = iota
	InputPullUp
	Output
)

func (m Mode) String() string {
	switch m {
	case Input:
		return "input"
	case InputPullUp:
		return "input-pullup"
	case Output:
		return "output"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

func (m Mode) pinMode() (mcp23017.PinMode, bool) {
	switch m {
	case Input:
		return mcp23017.Input, true
	case InputPullUp:
		return mcp23017.Input | mcp23017.Pullup, true
	case Output:
		return mcp23017.Output, true
	default:
		return 0, false
	}
}

func DefaultAddress() uint16 { return addrDefault }

// Port returns the port (0 = A, 1 = B) of pin.
func Port(pin int) int { return pin / 8 }

type Device struct {
	bus  drivers.I2C
	addr uint16
	dev  *mcp23017.Device
}

// New binds an expander at addr on bus. Call Init before any pin operation.
func New(bus drivers.I2C, addr uint16) (*Device, error) {
	if bus == nil {
		return nil, fmt.Errorf("expander: bus is nil")
	}
	return &Device{bus: bus, addr: addr}, nil
}

// Init puts the expander into a known state: all pins inputs without
// pull-ups or inversion, outputs latched low, interrupts off, IOCON
// configured and read back. A failure here means the shared fixture bus is
// unusable.
func (d *Device) Init() error {
	if err := d.writeReg(regIOCON, ioconMirror); err != nil {
		return fmt.Errorf("expander: iocon write failed: %w", err)
	}
	got, err := d.readReg(regIOCON)
	if err != nil {
		return fmt.Errorf("expander: iocon read failed: %w", err)
	}
	if got != ioconMirror {
		return fmt.Errorf("expander: iocon=0x%02X want 0x%02X", got, ioconMirror)
	}

	dev, err := mcp23017.NewI2C(d.bus, uint8(d.addr))
	if err != nil {
		return fmt.Errorf("expander: %w", err)
	}
	if err := dev.SetModes([]mcp23017.PinMode{mcp23017.Input}); err != nil {
		return fmt.Errorf("expander: pin mode setup failed: %w", err)
	}
	// Every pin is an input here, so this only brings the driver's output
	// cache and OLAT to zero without driving anything.
	if err := dev.SetPins(^mcp23017.Pins(0), ^mcp23017.Pins(0)); err != nil {
		return fmt.Errorf("expander: latch reset failed: %w", err)
	}
	if err := dev.SetPins(0, ^mcp23017.Pins(0)); err != nil {
		return fmt.Errorf("expander: latch reset failed: %w", err)
	}
	for port := byte(0); port < 2; port++ {
		if err := d.writeReg(regGPINTEN+port, 0x00); err != nil {
			return fmt.Errorf("expander: gpinten write failed: %w", err)
		}
	}
	d.dev = dev
	return nil
}

func (d *Device) readReg(reg byte) (byte, error) {
	var b [1]byte
	if err := d.bus.Tx(d.addr, []byte{reg}, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *Device) writeReg(reg, value byte) error {
	return d.bus.Tx(d.addr, []byte{reg, value}, nil)
}

func split(pin int) (port byte, mask byte, err error) {
	if pin < 0 || pin >= Pins {
		return 0, 0, fmt.Errorf("%w %d", ErrInvalidPin, pin)
	}
	return byte(Port(pin)), 1 << uint(pin%8), nil
}

// update performs a read-modify-write of one bit of a port register.
func (d *Device) update(reg byte, pin int, set bool) error {
	port, mask, err := split(pin)
	if err != nil {
		return err
	}
	v, err := d.readReg(reg + port)
	if err != nil {
		return fmt.Errorf("expander: read 0x%02X failed: %w", reg+port, err)
	}
	if set {
		v |= mask
	} else {
		v &^= mask
	}
	if err := d.writeReg(reg+port, v); err != nil {
		return fmt.Errorf("expander: write 0x%02X failed: %w", reg+port, err)
	}
	return nil
}

func (d *Device) bit(reg byte, pin int) (bool, error) {
	port, mask, err := split(pin)
	if err != nil {
		return false, err
	}
	v, err := d.readReg(reg + port)
	if err != nil {
		return false, fmt.Errorf("expander: read 0x%02X failed: %w", reg+port, err)
	}
	return v&mask != 0, nil
}

// driverPin checks pin before handing it to the driver, which panics on an
// out-of-range pin.
func (d *Device) driverPin(pin int) (mcp23017.Pin, error) {
	if _, _, err := split(pin); err != nil {
		return mcp23017.Pin{}, err
	}
	if d.dev == nil {
		return mcp23017.Pin{}, ErrNotInitialized
	}
	return d.dev.Pin(pin), nil
}

func (d *Device) ConfigurePin(pin int, mode Mode) error {
	pm, ok := mode.pinMode()
	if !ok {
		return fmt.Errorf("expander: unknown pin mode %v", mode)
	}
	p, err := d.driverPin(pin)
	if err != nil {
		return err
	}
	if err := p.SetMode(pm); err != nil {
		return fmt.Errorf("expander: pin %d %s: %w", pin, mode, err)
	}
	return nil
}

// ReadPin returns the current level of pin (true = high). Only pin's own
// GPIO port is read, which clears that port's pending interrupt.
func (d *Device) ReadPin(pin int) (bool, error) {
	return d.bit(regGPIO, pin)
}

// WritePin drives an output pin.
func (d *Device) WritePin(pin int, high bool) error {
	p, err := d.driverPin(pin)
	if err != nil {
		return err
	}
	if err := p.Set(high); err != nil {
		return fmt.Errorf("expander: pin %d write failed: %w", pin, err)
	}
	return nil
}

// EnableInterrupt arms interrupt-on-change for pin (compared against the
// previous level, not DEFVAL).
func (d *Device) EnableInterrupt(pin int) error {
	if err := d.update(regINTCON, pin, false); err != nil {
		return err
	}
	if err := d.update(regDEFVAL, pin, false); err != nil {
		return err
	}
	return d.update(regGPINTEN, pin, true)
}

// InterruptPending reports the INTF flag for pin. The flag stays set until
// Capture (or a GPIO read of the port) clears it.
func (d *Device) InterruptPending(pin int) (bool, error) {
	return d.bit(regINTF, pin)
}

// Capture returns the pin level latched when the interrupt fired and clears
// the port's pending interrupt.
func (d *Device) Capture(pin int) (bool, error) {
	return d.bit(regINTCAP, pin)
}

// Pin returns a handle bound to a single expander pin.
func (d *Device) Pin(n int) Pin { return Pin{d: d, n: n} }

type Pin struct {
	d *Device
	n int
}

func (p Pin) Number() int { return p.n }

func (p Pin) Read() (bool, error) { return p.d.ReadPin(p.n) }

func (p Pin) Set(high bool) error { return p.d.WritePin(p.n, high) }
