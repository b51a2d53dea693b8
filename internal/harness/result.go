package harness

import (
	"fmt"
	"time"

	"imu-tester/internal/imu"
)

type Outcome int

const (
	Pass Outcome = iota
	FailNotFound
	FailWrongAddress
	FailInitError
	FailTimeout
	FailNoSecondaryDevice
)

func (o Outcome) String() string {
	switch o {
	case Pass:
		return "PASS"
	case FailNotFound:
		return "FAIL: device not found"
	case FailWrongAddress:
		return "FAIL: device on wrong address"
	case FailInitError:
		return "FAIL: initialization failed"
	case FailTimeout:
		return "FAIL: timed out waiting for data"
	case FailNoSecondaryDevice:
		return "FAIL: magnetometer not detected"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// SlotResult is the verdict for one slot in one batch.
type SlotResult struct {
	Slot    int
	Spec    SlotSpec
	Outcome Outcome
	Reason  string

	// FoundAt is the address that answered, zero if none did.
	FoundAt uint16

	Sensor       string
	Magnetometer string
	Orientation  imu.Quaternion
	Working      bool
	HadData      bool

	// Elapsed is measured from a successful initialize to the verdict.
	Elapsed time.Duration
}

func (r SlotResult) Passed() bool { return r.Outcome == Pass }

type BatchVerdict struct {
	AllPassed bool
	Results   []SlotResult

	StartedAt time.Time
	EndedAt   time.Time
}

// Failed returns the failing slots in slot order.
func (v BatchVerdict) Failed() []SlotResult {
	var out []SlotResult
	for _, r := range v.Results {
		if !r.Passed() {
			out = append(out, r)
		}
	}
	return out
}

func verdictOf(results []SlotResult) bool {
	if len(results) == 0 {
		return false
	}
	for _, r := range results {
		if !r.Passed() {
			return false
		}
	}
	return true
}
