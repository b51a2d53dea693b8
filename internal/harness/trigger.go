package harness

import (
	"context"
	"log"
	"time"
)

// TriggerState is owned by the Trigger and changed only by Tick.
type TriggerState struct {
	// Armed starts a batch at the end of the current tick.
	Armed bool
	// JustStarted suppresses auto-detect until the board is seen absent.
	JustStarted bool
}

type Presser interface {
	Pressed() bool
}

// Commands hands over a pending remote START.
type Commands interface {
	Take() bool
}

type PresenceDetector interface {
	AnyPresent() bool
}

type TriggerConfig struct {
	Runner     *Runner
	Indicators Indicators
	Button     Presser
	Commands   Commands
	Detector   PresenceDetector
	AutoDetect bool
	Tick       time.Duration
}

// Trigger decides when a batch runs.
type Trigger struct {
	cfg   TriggerConfig
	state TriggerState
}

func NewTrigger(cfg TriggerConfig) *Trigger {
	if cfg.Tick <= 0 {
		cfg.Tick = 100 * time.Millisecond
	}
	return &Trigger{cfg: cfg}
}

func (t *Trigger) State() TriggerState { return t.state }

// Stats returns the batch counters since start.
func (t *Trigger) Stats() Stats { return t.cfg.Runner.Stats() }

// Tick evaluates every trigger source once and, when armed, runs a whole
// batch before returning.
func (t *Trigger) Tick() (BatchVerdict, bool) {
	if t.cfg.Button != nil && t.cfg.Button.Pressed() {
		log.Printf("trigger: button pressed")
		t.state.Armed = true
	}
	if t.cfg.Commands != nil && t.cfg.Commands.Take() {
		log.Printf("trigger: START received")
		t.state.Armed = true
	}
	if t.cfg.AutoDetect && t.cfg.Detector != nil && !t.state.Armed {
		present := t.cfg.Detector.AnyPresent()
		switch {
		case present && !t.state.JustStarted:
			log.Printf("trigger: board detected")
			t.state.Armed = true
		case !present:
			t.state.JustStarted = false
		}
	}
	if !t.state.Armed {
		return BatchVerdict{}, false
	}

	if t.cfg.Indicators != nil {
		if err := t.cfg.Indicators.Clear(); err != nil {
			log.Printf("trigger: indicator clear failed: %v", err)
		}
	}
	v := t.cfg.Runner.Run()
	t.state.Armed = false
	t.state.JustStarted = true
	return v, true
}

// Loop ticks until ctx is done. A batch in progress always completes.
func (t *Trigger) Loop(ctx context.Context) {
	log.Printf("trigger: waiting for button, START or a board (tick %s, auto-detect %t)",
		t.cfg.Tick, t.cfg.AutoDetect)
	for {
		select {
		case <-ctx.Done():
			return
		case <-after(t.cfg.Tick):
		}
		t.Tick()
	}
}
