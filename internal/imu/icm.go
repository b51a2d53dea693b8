package imu

import (
	"math"

	"imu-tester/internal/i2c"
	"imu-tester/internal/sensors/icm20948"
)

type icmDriver interface {
	Read() (icm20948.Sample, error)
	Magnetometer() (bool, error)
}

type icmDevice struct {
	*icm20948.Device
	mag *i2c.Dev
}

func (d icmDevice) Magnetometer() (bool, error) { return d.DetectMagnetometer(d.mag) }

type icmSensor struct {
	open func() (icmDriver, error)

	dev   icmDriver
	alive bool
	mag   bool
	orien Quaternion
}

func newICM(open func() (icmDriver, error)) *icmSensor {
	return &icmSensor{open: open, orien: Identity}
}

func (s *icmSensor) Name() string { return "ICM-20948" }

func (s *icmSensor) Initialize() error {
	s.alive = false
	dev, err := s.open()
	if err != nil {
		return err
	}
	s.dev = dev
	s.alive = true
	// A failed bypass probe is not an init failure; the slot's
	// magnetometer requirement decides what it means.
	if ok, err := dev.Magnetometer(); err == nil {
		s.mag = ok
	}
	return nil
}

func (s *icmSensor) Poll() bool {
	if s.dev == nil {
		return false
	}
	sample, err := s.dev.Read()
	if err != nil {
		s.alive = false
		return false
	}
	s.alive = true
	if sample.Zero() {
		return false
	}
	s.orien = fromGravity(sample.Ax, sample.Ay, sample.Az)
	return true
}

func (s *icmSensor) Alive() bool { return s.dev != nil && s.alive }

func (s *icmSensor) Orientation() Quaternion { return s.orien }

func (s *icmSensor) Magnetometer() (string, bool) {
	if s.mag {
		return "AK09916", true
	}
	return "", false
}

// fromGravity builds a yaw-free orientation from an accelerometer sample,
// using the same roll/pitch convention as accel-only attitude.
func fromGravity(ax, ay, az float64) Quaternion {
	roll := math.Atan2(ay, az)
	pitch := math.Atan2(-ax, math.Sqrt(ay*ay+az*az))

	cr, sr := math.Cos(roll/2), math.Sin(roll/2)
	cp, sp := math.Cos(pitch/2), math.Sin(pitch/2)
	return Quaternion{
		W: cr * cp,
		X: sr * cp,
		Y: cr * sp,
		Z: -sr * sp,
	}
}
