package harness

import (
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"imu-tester/internal/imu"
)

type fakeClock struct {
	t     time.Time
	slept time.Duration
}

// useFakeClock replaces the timing seams with a clock that only advances
// when the code under test sleeps.
func useFakeClock(t *testing.T) *fakeClock {
	t.Helper()
	c := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	oldSleep, oldNow, oldAfter := sleep, now, after
	sleep = func(d time.Duration) {
		c.t = c.t.Add(d)
		c.slept += d
	}
	now = func() time.Time { return c.t }
	after = func(d time.Duration) <-chan time.Time {
		c.t = c.t.Add(d)
		ch := make(chan time.Time, 1)
		ch <- c.t
		return ch
	}
	t.Cleanup(func() {
		sleep, now, after = oldSleep, oldNow, oldAfter
	})
	return c
}

func quietLog(t *testing.T) {
	t.Helper()
	old := log.Writer()
	log.SetOutput(io.Discard)
	t.Cleanup(func() { log.SetOutput(old) })
}

// fakeFixture is a multiplexed bus. Devices on channel -1 sit on the
// upstream side and answer whatever channel is selected.
type fakeFixture struct {
	channel  int
	present  map[slotKey]bool
	selects  []int
	disables int
	probes   []uint16

	selectErr error
}

func newFakeFixture() *fakeFixture {
	return &fakeFixture{channel: -1, present: map[slotKey]bool{}}
}

func (f *fakeFixture) plug(spec SlotSpec) { f.present[spec.key()] = true }

func (f *fakeFixture) Select(ch int) error {
	f.selects = append(f.selects, ch)
	if f.selectErr != nil {
		return f.selectErr
	}
	f.channel = ch
	return nil
}

func (f *fakeFixture) Disable() error {
	f.disables++
	f.channel = -1
	return nil
}

func (f *fakeFixture) Probe(addr uint16) bool {
	f.probes = append(f.probes, addr)
	if f.present[slotKey{addr: addr}] {
		return true
	}
	if f.channel < 0 {
		return false
	}
	return f.present[slotKey{mux: true, channel: f.channel, addr: addr}]
}

// fakeSensor produces its first sample once dataAfter has elapsed since
// Initialize. A negative dataAfter never produces data. mag is reported
// from poll magAfterPolls on.
type fakeSensor struct {
	initErr       error
	dataAfter     time.Duration
	mag           string
	magAfterPolls int
	closed        bool

	initAt time.Time
	inited bool
	polls  int
}

func (s *fakeSensor) Name() string { return "fake" }

func (s *fakeSensor) Initialize() error {
	if s.initErr != nil {
		return s.initErr
	}
	s.inited = true
	s.initAt = now()
	return nil
}

func (s *fakeSensor) Poll() bool {
	s.polls++
	return s.inited && s.dataAfter >= 0 && now().Sub(s.initAt) >= s.dataAfter
}

func (s *fakeSensor) Alive() bool { return s.inited }

func (s *fakeSensor) Orientation() imu.Quaternion { return imu.Quaternion{W: 0.5, X: 0.5, Y: 0.5, Z: 0.5} }

func (s *fakeSensor) Magnetometer() (string, bool) {
	if s.mag == "" || s.polls < s.magAfterPolls {
		return "", false
	}
	return s.mag, true
}

func (s *fakeSensor) Close() error {
	s.closed = true
	return nil
}

var errBadID = errors.New("bad chip id")

type fakeIndicators struct {
	calls []string
}

func (f *fakeIndicators) Clear() error {
	f.calls = append(f.calls, "clear")
	return nil
}

func (f *fakeIndicators) Show(pass bool) error {
	if pass {
		f.calls = append(f.calls, "pass")
	} else {
		f.calls = append(f.calls, "fail")
	}
	return nil
}

func testTiming() Timing {
	return Timing{PollInterval: 10 * time.Millisecond, ResponseTimeout: 300 * time.Millisecond}
}

// newTestValidator wires a validator to fix, building sensors with mk.
func newTestValidator(fix *fakeFixture, mk func(SlotSpec) *fakeSensor) *Validator {
	return &Validator{
		Selector: fix,
		Prober:   Prober{Bus: fix, Settle: 20 * time.Millisecond},
		NewSensor: func(spec SlotSpec) (imu.Sensor, error) {
			return mk(spec), nil
		},
		Timing: testTiming(),
	}
}

func defaultRegistry(t *testing.T) *Registry {
	t.Helper()
	reg, err := NewRegistry(DefaultSlots(imu.FamilyBNO08x, false))
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return reg
}
