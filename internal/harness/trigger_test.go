package harness

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type fakeCommands struct{ pending int }

func (c *fakeCommands) Take() bool {
	if c.pending == 0 {
		return false
	}
	c.pending--
	return true
}

type fakePresser struct{ presses []bool }

func (p *fakePresser) Pressed() bool {
	if len(p.presses) == 0 {
		return false
	}
	v := p.presses[0]
	p.presses = p.presses[1:]
	return v
}

type fakePresence struct {
	present bool
	calls   int
}

func (d *fakePresence) AnyPresent() bool {
	d.calls++
	return d.present
}

func newTestTrigger(t *testing.T, cfg TriggerConfig) (*Trigger, *fakeIndicators) {
	t.Helper()
	reg, err := NewRegistry([]SlotSpec{{Address: 0x4A, IntPin: -1, Family: "bno08x"}})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	fix := newFakeFixture()
	fix.plug(reg.Slots()[0])
	ind := &fakeIndicators{}
	r := NewRunner(reg, newTestValidator(fix, func(SlotSpec) *fakeSensor { return &fakeSensor{} }), ind)
	r.Banner = &bytes.Buffer{}
	cfg.Runner = r
	cfg.Indicators = ind
	return NewTrigger(cfg), ind
}

func TestTick_IdleDoesNothing(t *testing.T) {
	quietLog(t)
	useFakeClock(t)

	trig, ind := newTestTrigger(t, TriggerConfig{Button: &fakePresser{}, Commands: &fakeCommands{}})
	if _, ran := trig.Tick(); ran {
		t.Fatalf("ran=true with no trigger")
	}
	if len(ind.calls) != 0 {
		t.Fatalf("indicators touched: %v", ind.calls)
	}
}

func TestTick_ButtonRunsBatchAndClearsArmed(t *testing.T) {
	quietLog(t)
	useFakeClock(t)

	trig, ind := newTestTrigger(t, TriggerConfig{Button: &fakePresser{presses: []bool{true}}})
	v, ran := trig.Tick()
	if !ran || !v.AllPassed {
		t.Fatalf("ran=%t allPassed=%t", ran, v.AllPassed)
	}
	if got := strings.Join(ind.calls, ","); got != "clear,pass" {
		t.Fatalf("indicators=%s want clear,pass", got)
	}
	st := trig.State()
	if st.Armed || !st.JustStarted {
		t.Fatalf("state=%+v want armed=false justStarted=true", st)
	}
	if _, ran := trig.Tick(); ran {
		t.Fatalf("second tick ran without a new trigger")
	}
	if got := trig.Stats(); got.Batches != 1 || got.Passed != 1 {
		t.Fatalf("stats=%+v want one passed batch", got)
	}
}

func TestTick_AutoDetectGuard(t *testing.T) {
	quietLog(t)
	useFakeClock(t)

	det := &fakePresence{present: true}
	trig, _ := newTestTrigger(t, TriggerConfig{Detector: det, AutoDetect: true})

	if _, ran := trig.Tick(); !ran {
		t.Fatalf("board present: expected a batch")
	}
	// Board still connected: the guard holds.
	for i := 0; i < 5; i++ {
		if _, ran := trig.Tick(); ran {
			t.Fatalf("tick %d re-triggered while board stayed connected", i)
		}
	}
	// Removed for one tick, then connected again.
	det.present = false
	if _, ran := trig.Tick(); ran {
		t.Fatalf("ran with no board")
	}
	if trig.State().JustStarted {
		t.Fatalf("justStarted not cleared by an absent board")
	}
	det.present = true
	if _, ran := trig.Tick(); !ran {
		t.Fatalf("new board did not trigger")
	}
}

func TestTick_ButtonIgnoresGuard(t *testing.T) {
	quietLog(t)
	useFakeClock(t)

	det := &fakePresence{present: true}
	btn := &fakePresser{}
	trig, _ := newTestTrigger(t, TriggerConfig{Button: btn, Detector: det, AutoDetect: true})

	if _, ran := trig.Tick(); !ran {
		t.Fatalf("auto-detect did not trigger")
	}
	btn.presses = []bool{true}
	if _, ran := trig.Tick(); !ran {
		t.Fatalf("button press ignored while guard set")
	}
	if !trig.State().JustStarted {
		t.Fatalf("justStarted cleared by a button run")
	}
}

func TestTick_CommandTriggers(t *testing.T) {
	quietLog(t)
	useFakeClock(t)

	cmds := &fakeCommands{pending: 1}
	trig, _ := newTestTrigger(t, TriggerConfig{Commands: cmds})
	if _, ran := trig.Tick(); !ran {
		t.Fatalf("START did not trigger")
	}
	if cmds.pending != 0 {
		t.Fatalf("command not consumed")
	}
}

func TestTick_AutoDetectDisabledNeverProbes(t *testing.T) {
	quietLog(t)
	useFakeClock(t)

	det := &fakePresence{present: true}
	trig, _ := newTestTrigger(t, TriggerConfig{Detector: det})
	if _, ran := trig.Tick(); ran {
		t.Fatalf("ran with auto-detect off")
	}
	if det.calls != 0 {
		t.Fatalf("detector called %d times", det.calls)
	}
}

func TestLoop_StopsOnCancel(t *testing.T) {
	quietLog(t)
	useFakeClock(t)

	cmds := &fakeCommands{pending: 2}
	ctx, cancel := context.WithCancel(context.Background())
	trig, ind := newTestTrigger(t, TriggerConfig{Commands: cmds, Tick: 50 * time.Millisecond})

	// Cancel once both queued STARTs have produced a batch.
	old := after
	after = func(d time.Duration) <-chan time.Time {
		if cmds.pending == 0 {
			cancel()
		}
		return old(d)
	}
	t.Cleanup(func() { after = old })

	done := make(chan struct{})
	go func() {
		trig.Loop(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Loop did not return after cancel")
	}
	if got := strings.Count(strings.Join(ind.calls, ","), "pass"); got != 2 {
		t.Fatalf("batches=%d want 2 (%v)", got, ind.calls)
	}
}

func TestDetector_AnyPresent(t *testing.T) {
	quietLog(t)
	useFakeClock(t)

	reg := defaultRegistry(t)
	fix := newFakeFixture()
	d := &Detector{Registry: reg, Selector: fix, Bus: fix, Settle: 5 * time.Millisecond}

	if d.AnyPresent() {
		t.Fatalf("present with empty fixture")
	}
	if len(fix.probes) != MaxSlots {
		t.Fatalf("probes=%d want %d", len(fix.probes), MaxSlots)
	}
	if fix.channel != -1 {
		t.Fatalf("channel %d left selected", fix.channel)
	}

	fix.plug(reg.Slots()[9])
	if !d.AnyPresent() {
		t.Fatalf("slot 9 board not detected")
	}
	if fix.channel != -1 {
		t.Fatalf("channel %d left selected", fix.channel)
	}
}

func TestDetector_SkipsUnselectableChannel(t *testing.T) {
	quietLog(t)
	useFakeClock(t)

	reg := defaultRegistry(t)
	fix := newFakeFixture()
	fix.plug(reg.Slots()[4])
	fix.selectErr = errors.New("nack")
	d := &Detector{Registry: reg, Selector: fix, Bus: fix}

	if d.AnyPresent() {
		t.Fatalf("detected a board behind a channel that could not be selected")
	}
}
