package imu

import (
	"log"
	"time"

	"imu-tester/internal/sensors/bno08x"
)

// ReportInterval is the rotation vector rate requested from BNO08x parts.
var ReportInterval = 10 * time.Millisecond

type bnoDriver interface {
	Configure(interval time.Duration) error
	Service() (bool, error)
	Quaternion() bno08x.Quaternion
	MagneticField() (bno08x.MagneticField, bool)
	ProductID() (bno08x.ProductID, bool)
}

type bnoSensor struct {
	open func() (bnoDriver, error)
	irq  Line

	dev     bnoDriver
	alive   bool
	hadQuat bool
}

func newBNO(open func() (bnoDriver, error), irq Line) *bnoSensor {
	return &bnoSensor{open: open, irq: irq}
}

func (s *bnoSensor) Name() string { return "BNO08x" }

func (s *bnoSensor) Initialize() error {
	s.alive = false
	dev, err := s.open()
	if err != nil {
		return err
	}
	if err := dev.Configure(ReportInterval); err != nil {
		return err
	}
	if id, ok := dev.ProductID(); ok {
		log.Printf("imu: BNO08x part %d version %d.%d.%d build %d",
			id.PartNumber, id.VersionMajor, id.VersionMinor, id.VersionPatch, id.BuildNumber)
	}
	s.dev = dev
	s.alive = true
	return nil
}

func (s *bnoSensor) Poll() bool {
	if s.dev == nil {
		return false
	}
	// The part pulls INT low while it has a packet queued; skip the bus
	// transaction otherwise.
	if s.irq != nil {
		if high, err := s.irq.Read(); err == nil && high {
			return false
		}
	}
	fresh, err := s.dev.Service()
	if err != nil {
		s.alive = false
		return false
	}
	s.alive = true
	if fresh {
		s.hadQuat = true
	}
	return fresh
}

func (s *bnoSensor) Alive() bool { return s.dev != nil && s.alive }

func (s *bnoSensor) Orientation() Quaternion {
	if s.dev == nil || !s.hadQuat {
		return Identity
	}
	q := s.dev.Quaternion()
	return Quaternion{W: q.Real, X: q.I, Y: q.J, Z: q.K}
}

func (s *bnoSensor) Magnetometer() (string, bool) {
	if s.dev == nil {
		return "", false
	}
	if _, ok := s.dev.MagneticField(); ok {
		return "integrated", true
	}
	return "", false
}
