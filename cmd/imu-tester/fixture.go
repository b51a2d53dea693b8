package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"imu-tester/internal/config"
	"imu-tester/internal/expander"
	"imu-tester/internal/harness"
	"imu-tester/internal/i2c"
	"imu-tester/internal/imu"
	"imu-tester/internal/indicator"
	"imu-tester/internal/mux"
)

// fixture is the hardware a batch runs against.
type fixture struct {
	bus       harness.BusProber
	selector  harness.ChannelSelector
	button    harness.PinInterrupts
	newSensor harness.SensorFactory
	lamps     indicator.Pair
	commands  harness.Commands
}

func (f *fixture) Close() {
	if err := f.lamps.Close(); err != nil {
		log.Printf("indicator close failed: %v", err)
	}
	if f.selector != nil {
		_ = f.selector.Disable()
	}
}

type initer interface {
	Init() error
}

// initExpander retries until the expander comes up or ctx is done. Nothing
// can be tested without it.
func initExpander(ctx context.Context, dev initer, retry time.Duration) error {
	for attempt := 1; ; attempt++ {
		err := dev.Init()
		if err == nil {
			if attempt > 1 {
				log.Printf("expander: up after %d attempts", attempt)
			}
			return nil
		}
		log.Printf("expander: init failed (attempt %d): %v", attempt, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retry):
		}
	}
}

func openFixture(ctx context.Context, cfg config.Config, bus *i2c.Bus) (*fixture, error) {
	exp, err := expander.New(bus, cfg.Expander.Address)
	if err != nil {
		return nil, err
	}
	if err := initExpander(ctx, exp, cfg.Expander.InitRetry); err != nil {
		return nil, err
	}

	specs := cfg.SlotSpecs()
	for _, s := range specs {
		if s.IntPin < 0 {
			continue
		}
		if err := exp.ConfigurePin(s.IntPin, expander.InputPullUp); err != nil {
			return nil, fmt.Errorf("slot %d int pin: %w", s.Index, err)
		}
	}

	buttonPin := *cfg.Expander.ButtonPin
	mode := expander.Input
	if *cfg.Expander.ButtonActiveLow {
		mode = expander.InputPullUp
	}
	if err := exp.ConfigurePin(buttonPin, mode); err != nil {
		return nil, fmt.Errorf("button pin: %w", err)
	}
	if err := exp.EnableInterrupt(buttonPin); err != nil {
		return nil, fmt.Errorf("button interrupt: %w", err)
	}
	// Drop any edge latched before we were listening.
	_, _ = exp.Capture(buttonPin)

	lamps, err := openLamps(cfg.Indicators, exp)
	if err != nil {
		return nil, err
	}
	if err := lamps.Clear(); err != nil {
		log.Printf("indicator clear failed: %v", err)
	}

	sel, err := mux.New(bus.Dev(cfg.Mux.Address))
	if err != nil {
		_ = lamps.Close()
		return nil, err
	}
	if err := sel.Disable(); err != nil {
		log.Printf("mux: disable failed (is the multiplexer fitted?): %v", err)
	}

	return &fixture{
		bus:       bus,
		selector:  sel,
		button:    exp,
		newSensor: sensorFactory(bus, exp),
		lamps:     lamps,
	}, nil
}

func openLamps(cfg config.IndicatorsConfig, exp *expander.Device) (indicator.Pair, error) {
	switch cfg.Backend {
	case "gpio":
		pass, err := indicator.OpenGPIO(*cfg.PassPin, cfg.ActiveLow)
		if err != nil {
			return indicator.Pair{}, err
		}
		fail, err := indicator.OpenGPIO(*cfg.FailPin, cfg.ActiveLow)
		if err != nil {
			_ = pass.Close()
			return indicator.Pair{}, err
		}
		return indicator.Pair{Pass: pass, Fail: fail}, nil
	default:
		for _, p := range []int{*cfg.PassPin, *cfg.FailPin} {
			if err := exp.ConfigurePin(p, expander.Output); err != nil {
				return indicator.Pair{}, fmt.Errorf("indicator pin: %w", err)
			}
		}
		return indicator.Pair{
			Pass: indicator.FromPin(exp.Pin(*cfg.PassPin), cfg.ActiveLow),
			Fail: indicator.FromPin(exp.Pin(*cfg.FailPin), cfg.ActiveLow),
		}, nil
	}
}

// sensorFactory binds a fresh driver to each slot. A slot without an
// interrupt pin gets a nil line, not a nil-valued Pin.
func sensorFactory(bus *i2c.Bus, exp *expander.Device) harness.SensorFactory {
	return func(spec harness.SlotSpec) (imu.Sensor, error) {
		var irq imu.Line
		if spec.IntPin >= 0 && exp != nil {
			irq = exp.Pin(spec.IntPin)
		}
		return imu.New(spec.Family, bus, spec.Address, irq)
	}
}

// newTrigger assembles the harness on top of fx.
func newTrigger(cfg config.Config, fx *fixture) (*harness.Trigger, error) {
	reg, err := harness.NewRegistry(cfg.SlotSpecs())
	if err != nil {
		return nil, err
	}
	v := &harness.Validator{
		Selector:       fx.selector,
		Prober:         harness.Prober{Bus: fx.bus, Settle: *cfg.Test.SettleDelay},
		NewSensor:      fx.newSensor,
		Timing:         cfg.Timing(),
		WrongAddresses: cfg.Test.WrongAddresses,
	}
	runner := harness.NewRunner(reg, v, fx.lamps)

	tc := harness.TriggerConfig{
		Runner:     runner,
		Indicators: fx.lamps,
		Detector: &harness.Detector{
			Registry: reg,
			Selector: fx.selector,
			Bus:      fx.bus,
			Settle:   *cfg.Test.ScanSettleDelay,
		},
		AutoDetect: *cfg.Test.AutoDetect,
		Tick:       cfg.Test.TickInterval,
	}
	if fx.button != nil {
		tc.Button = harness.NewButton(fx.button, *cfg.Expander.ButtonPin, *cfg.Expander.ButtonActiveLow, cfg.Test.Debounce)
	}
	if fx.commands != nil {
		tc.Commands = fx.commands
	}
	log.Printf("harness: %d slots, settle=%s poll=%s boot=%s", reg.Len(), *cfg.Test.SettleDelay, cfg.Test.PollInterval, cfg.Test.BootDelay)
	return harness.NewTrigger(tc), nil
}
