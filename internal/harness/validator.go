package harness

import (
	"fmt"
	"io"
	"log"
	"time"

	"imu-tester/internal/imu"
)

// SensorFactory builds a fresh driver bound to one slot's address and
// interrupt line. The validator owns the returned sensor for the duration
// of that slot only.
type SensorFactory func(spec SlotSpec) (imu.Sensor, error)

// Timing holds the per-deployment tunables of a slot validation.
type Timing struct {
	// BootDelay is waited after the device is detected, before the driver
	// is initialized.
	BootDelay time.Duration
	// PollInterval spaces driver polls while awaiting data.
	PollInterval time.Duration
	// ResponseTimeout bounds the wait for the first data sample, measured
	// from a successful initialize.
	ResponseTimeout time.Duration
}

type Validator struct {
	Selector  ChannelSelector
	Prober    Prober
	NewSensor SensorFactory
	Timing    Timing

	// WrongAddresses are addresses a misassembled board answers on.
	WrongAddresses []uint16
}

type state int

const (
	selectingChannel state = iota
	probing
	initializing
	awaitingData
	done
)

// Validate runs one slot to a verdict. It never returns early: every path
// ends in a SlotResult.
func (v *Validator) Validate(spec SlotSpec) SlotResult {
	res := SlotResult{Slot: spec.Index, Spec: spec, Orientation: imu.Identity}

	var (
		sensor  imu.Sensor
		started time.Time
	)
	finish := func(o Outcome, format string, args ...any) state {
		res.Outcome = o
		res.Reason = fmt.Sprintf(format, args...)
		return done
	}

	for st := selectingChannel; st != done; {
		switch st {
		case selectingChannel:
			if err := connect(v.Selector, spec); err != nil {
				log.Printf("harness: %s: channel select failed: %v", spec, err)
			}
			st = probing

		case probing:
			det := v.Prober.Detect(spec.Address, v.WrongAddresses)
			switch det.Result {
			case Found:
				res.FoundAt = det.Address
				log.Printf("harness: %s: found device on 0x%02X", spec, det.Address)
				st = initializing
			case WrongAddress:
				res.FoundAt = det.Address
				st = finish(FailWrongAddress, "found device on wrong address 0x%02X", det.Address)
			default:
				st = finish(FailNotFound, "no device on 0x%02X", spec.Address)
			}

		case initializing:
			if v.Timing.BootDelay > 0 {
				sleep(v.Timing.BootDelay)
			}
			s, err := v.NewSensor(spec)
			if err != nil {
				st = finish(FailInitError, "driver: %v", err)
				break
			}
			sensor = s
			res.Sensor = s.Name()
			if err := s.Initialize(); err != nil {
				st = finish(FailInitError, "%v", err)
				break
			}
			started = now()
			log.Printf("harness: %s: waiting for response from the IMU", spec)
			st = awaitingData

		case awaitingData:
			if sensor.Poll() {
				res.HadData = true
			}
			res.Working = sensor.Alive()

			// Data is checked before the deadline so a sample arriving on
			// the last tick still passes.
			if res.Working && res.HadData {
				if !spec.RequireMagnetometer {
					st = finish(Pass, "")
					break
				}
				// A magnetometer report may trail the first sample, so keep
				// polling until one arrives or the deadline passes.
				if name, ok := sensor.Magnetometer(); ok {
					res.Magnetometer = name
					st = finish(Pass, "")
					break
				}
			}
			if elapsed := now().Sub(started); elapsed > v.Timing.ResponseTimeout {
				if res.Working && res.HadData {
					st = finish(FailNoSecondaryDevice, "no magnetometer reported within %s", elapsed.Round(time.Millisecond))
					break
				}
				st = finish(FailTimeout, "no data after %s", elapsed.Round(time.Millisecond))
				break
			}
			sleep(v.Timing.PollInterval)
		}
	}

	if !started.IsZero() {
		res.Elapsed = now().Sub(started)
	}
	if sensor != nil {
		res.Orientation = sensor.Orientation()
		res.Working = sensor.Alive()
		if c, ok := sensor.(io.Closer); ok {
			_ = c.Close()
		}
		log.Printf("harness: %s: sensor: %s (%s) is working: %t, had data: %t",
			spec, res.Sensor, res.Orientation, res.Working, res.HadData)
	}
	if res.Passed() {
		log.Printf("harness: %s: test passed", spec)
	} else {
		log.Printf("harness: %s: %s (%s)", spec, res.Outcome, res.Reason)
	}
	return res
}
