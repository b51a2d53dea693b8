// Package imu is the capability every IMU family under test exposes to the
// harness: initialize, poll for data, liveness, orientation, and the
// secondary magnetometer if one is attached.
package imu

import (
	"fmt"
	"strings"

	"imu-tester/internal/i2c"
	"imu-tester/internal/sensors/bno08x"
	"imu-tester/internal/sensors/icm20948"
)

type Family string

const (
	FamilyBNO08x   Family = "bno08x"
	FamilyICM20948 Family = "icm20948"
)

func ParseFamily(s string) (Family, error) {
	f := Family(strings.ToLower(strings.TrimSpace(s)))
	if !f.Valid() {
		return "", fmt.Errorf("imu: unknown family %q", s)
	}
	return f, nil
}

func (f Family) Valid() bool {
	return f == FamilyBNO08x || f == FamilyICM20948
}

// Addresses returns the two strap-selectable addresses of a family.
func (f Family) Addresses() (primary, alt uint16) {
	switch f {
	case FamilyBNO08x:
		return bno08x.DefaultAddress(), bno08x.AltAddress()
	case FamilyICM20948:
		return icm20948.DefaultAddress(), icm20948.AltAddress()
	default:
		return 0, 0
	}
}

type Quaternion struct {
	W, X, Y, Z float64
}

func (q Quaternion) String() string {
	return fmt.Sprintf("%.3f %.3f %.3f %.3f", q.W, q.X, q.Y, q.Z)
}

// Identity is the orientation reported before any sample.
var Identity = Quaternion{W: 1}

type Sensor interface {
	// Name is the sensor type name used in diagnostics.
	Name() string
	// Initialize runs the family's setup sequence.
	Initialize() error
	// Poll services the device once and reports whether a new sample
	// arrived.
	Poll() bool
	// Alive reports whether the device is initialized and its last bus
	// transaction succeeded.
	Alive() bool
	Orientation() Quaternion
	// Magnetometer names the attached magnetometer, if one was detected.
	Magnetometer() (string, bool)
}

// Line is an interrupt line from the device under test. Active low.
type Line interface {
	Read() (bool, error)
}

// New binds a sensor of the given family to addr on bus. irq may be nil.
func New(family Family, bus *i2c.Bus, addr uint16, irq Line) (Sensor, error) {
	if bus == nil {
		return nil, fmt.Errorf("imu: bus is nil")
	}
	switch family {
	case FamilyBNO08x:
		return newBNO(func() (bnoDriver, error) { return bno08x.New(bus.Dev(addr)) }, irq), nil
	case FamilyICM20948:
		return newICM(func() (icmDriver, error) {
			d, err := icm20948.New(bus.Dev(addr))
			if err != nil {
				return nil, err
			}
			return icmDevice{Device: d, mag: bus.Dev(icm20948.MagnetometerAddress())}, nil
		}), nil
	default:
		return nil, fmt.Errorf("imu: unknown family %q", family)
	}
}
