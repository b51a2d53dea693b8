package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"imu-tester/internal/expander"
	"imu-tester/internal/harness"
	"imu-tester/internal/imu"
	"imu-tester/internal/mux"
)

type Config struct {
	I2C        I2CConfig        `yaml:"i2c"`
	Mux        MuxConfig        `yaml:"mux"`
	Expander   ExpanderConfig   `yaml:"expander"`
	Indicators IndicatorsConfig `yaml:"indicators"`
	Control    ControlConfig    `yaml:"control"`
	Test       TestConfig       `yaml:"test"`
	Slots      []SlotConfig     `yaml:"slots"`
}

type I2CConfig struct {
	// Bus is the N of /dev/i2c-N.
	Bus *int `yaml:"bus"`
}

type MuxConfig struct {
	Address uint16 `yaml:"address"`
}

type ExpanderConfig struct {
	Address         uint16        `yaml:"address"`
	ButtonPin       *int          `yaml:"button_pin"`
	ButtonActiveLow *bool         `yaml:"button_active_low"`
	InitRetry       time.Duration `yaml:"init_retry"`
}

type IndicatorsConfig struct {
	// Backend is "expander" (pins on the GPIO expander) or "gpio" (host
	// BCM lines).
	Backend   string `yaml:"backend"`
	PassPin   *int   `yaml:"pass_pin"`
	FailPin   *int   `yaml:"fail_pin"`
	ActiveLow bool   `yaml:"active_low"`
}

type ControlConfig struct {
	// Port is a serial device, "-" for stdin, or empty to disable.
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
	// EchoLog copies diagnostic output to the serial port.
	EchoLog bool `yaml:"echo_log"`
}

type TestConfig struct {
	Family string `yaml:"family"`
	// Addresses overrides the family's two addresses in the default slot
	// table.
	Addresses           []uint16 `yaml:"addresses"`
	WrongAddresses      []uint16 `yaml:"wrong_addresses"`
	RequireMagnetometer bool     `yaml:"require_magnetometer"`
	AutoDetect          *bool    `yaml:"auto_detect"`

	// SettleDelay and ScanSettleDelay may be set to 0s explicitly.
	SettleDelay     *time.Duration `yaml:"settle_delay"`
	ScanSettleDelay *time.Duration `yaml:"scan_settle_delay"`
	BootDelay       time.Duration  `yaml:"boot_delay"`
	PollInterval    time.Duration  `yaml:"poll_interval"`
	ResponseTimeout time.Duration  `yaml:"response_timeout"`
	Debounce        time.Duration  `yaml:"debounce"`
	TickInterval    time.Duration  `yaml:"tick_interval"`
}

// SlotConfig is one row of an explicit slot table. Without Mux the device
// sits on the upstream bus.
type SlotConfig struct {
	Mux                 bool   `yaml:"mux"`
	Channel             int    `yaml:"channel"`
	Address             uint16 `yaml:"address"`
	IntPin              *int   `yaml:"int_pin"`
	Family              string `yaml:"family"`
	RequireMagnetometer *bool  `yaml:"require_magnetometer"`
}

const (
	defaultButtonPin = 15
	defaultPassPin   = 13
	defaultFailPin   = 14
)

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}

	if cfg.I2C.Bus == nil {
		cfg.I2C.Bus = intPtr(1)
	}
	if *cfg.I2C.Bus < 0 {
		return Config{}, fmt.Errorf("i2c.bus must be >= 0")
	}

	if cfg.Mux.Address == 0 {
		cfg.Mux.Address = mux.DefaultAddress()
	}
	if cfg.Expander.Address == 0 {
		cfg.Expander.Address = expander.DefaultAddress()
	}
	if cfg.Mux.Address > 0x7F {
		return Config{}, fmt.Errorf("mux.address 0x%X is not a 7-bit address", cfg.Mux.Address)
	}
	if cfg.Expander.Address > 0x7F {
		return Config{}, fmt.Errorf("expander.address 0x%X is not a 7-bit address", cfg.Expander.Address)
	}
	if a := cfg.Expander.Address; a < 0x20 || a > 0x27 {
		return Config{}, fmt.Errorf("expander.address 0x%02X outside 0x20..0x27", a)
	}
	if cfg.Mux.Address == cfg.Expander.Address {
		return Config{}, fmt.Errorf("mux.address and expander.address must differ")
	}

	if cfg.Expander.ButtonPin == nil {
		cfg.Expander.ButtonPin = intPtr(defaultButtonPin)
	}
	if cfg.Expander.ButtonActiveLow == nil {
		cfg.Expander.ButtonActiveLow = boolPtr(true)
	}
	if p := *cfg.Expander.ButtonPin; p < 0 || p >= expander.Pins {
		return Config{}, fmt.Errorf("expander.button_pin %d out of range 0..%d", p, expander.Pins-1)
	}
	if cfg.Expander.InitRetry <= 0 {
		cfg.Expander.InitRetry = time.Second
	}

	// Test defaults.
	if cfg.Test.Family == "" {
		cfg.Test.Family = string(imu.FamilyBNO08x)
	}
	fam, err := imu.ParseFamily(cfg.Test.Family)
	if err != nil {
		return Config{}, fmt.Errorf("test.family %q must be 'bno08x' or 'icm20948'", cfg.Test.Family)
	}
	cfg.Test.Family = string(fam)
	if n := len(cfg.Test.Addresses); n != 0 && n != 2 {
		return Config{}, fmt.Errorf("test.addresses must list exactly two addresses")
	}
	if len(cfg.Test.Addresses) == 2 && cfg.Test.Addresses[0] == cfg.Test.Addresses[1] {
		return Config{}, fmt.Errorf("test.addresses must differ")
	}
	if cfg.Test.AutoDetect == nil {
		cfg.Test.AutoDetect = boolPtr(true)
	}
	if cfg.Test.SettleDelay == nil {
		cfg.Test.SettleDelay = durationPtr(20 * time.Millisecond)
	}
	if *cfg.Test.SettleDelay < 0 {
		return Config{}, fmt.Errorf("test.settle_delay must be >= 0")
	}
	if cfg.Test.ScanSettleDelay == nil {
		cfg.Test.ScanSettleDelay = durationPtr(5 * time.Millisecond)
	}
	if *cfg.Test.ScanSettleDelay < 0 {
		return Config{}, fmt.Errorf("test.scan_settle_delay must be >= 0")
	}
	if cfg.Test.BootDelay < 0 {
		return Config{}, fmt.Errorf("test.boot_delay must be >= 0")
	}
	if cfg.Test.PollInterval <= 0 {
		cfg.Test.PollInterval = 10 * time.Millisecond
	}
	if cfg.Test.ResponseTimeout <= 0 {
		cfg.Test.ResponseTimeout = 300 * time.Millisecond
	}
	if cfg.Test.PollInterval > cfg.Test.ResponseTimeout {
		return Config{}, fmt.Errorf("test.poll_interval must not exceed test.response_timeout")
	}
	if cfg.Test.Debounce <= 0 {
		cfg.Test.Debounce = 250 * time.Millisecond
	}
	if cfg.Test.TickInterval <= 0 {
		cfg.Test.TickInterval = 100 * time.Millisecond
	}

	// Control channel.
	cfg.Control.Port = strings.TrimSpace(cfg.Control.Port)
	if cfg.Control.Baud == 0 {
		cfg.Control.Baud = 115200
	}
	if cfg.Control.Baud < 0 {
		return Config{}, fmt.Errorf("control.baud must be > 0")
	}
	if cfg.Control.EchoLog && (cfg.Control.Port == "" || cfg.Control.Port == "-") {
		return Config{}, fmt.Errorf("control.echo_log requires control.port to be a serial device")
	}

	// Slot table; validated the same way the harness will see it.
	specs := cfg.SlotSpecs()
	if _, err := harness.NewRegistry(specs); err != nil {
		return Config{}, fmt.Errorf("slots: %w", err)
	}
	for _, sp := range specs {
		if sp.IntPin >= expander.Pins {
			return Config{}, fmt.Errorf("slots[%d].int_pin %d out of range 0..%d", sp.Index, sp.IntPin, expander.Pins-1)
		}
		if sp.IntPin == *cfg.Expander.ButtonPin {
			return Config{}, fmt.Errorf("slots[%d].int_pin %d is already used by expander.button_pin", sp.Index, sp.IntPin)
		}
		// Reading an interrupt line clears its port's latched edges.
		if sp.IntPin >= 0 && expander.Port(sp.IntPin) == expander.Port(*cfg.Expander.ButtonPin) {
			return Config{}, fmt.Errorf("slots[%d].int_pin %d shares a port with expander.button_pin %d", sp.Index, sp.IntPin, *cfg.Expander.ButtonPin)
		}
	}

	// Indicators.
	ind := &cfg.Indicators
	ind.Backend = strings.ToLower(strings.TrimSpace(ind.Backend))
	if ind.Backend == "" {
		ind.Backend = "expander"
	}
	switch ind.Backend {
	case "expander":
		if ind.PassPin == nil {
			ind.PassPin = intPtr(defaultPassPin)
		}
		if ind.FailPin == nil {
			ind.FailPin = intPtr(defaultFailPin)
		}
		used := map[int]string{*cfg.Expander.ButtonPin: "expander.button_pin"}
		for _, s := range specs {
			if s.IntPin >= 0 {
				used[s.IntPin] = fmt.Sprintf("slot %d int_pin", s.Index)
			}
		}
		for _, pin := range []struct {
			name string
			n    int
		}{{"indicators.pass_pin", *ind.PassPin}, {"indicators.fail_pin", *ind.FailPin}} {
			name, p := pin.name, pin.n
			if p < 0 || p >= expander.Pins {
				return Config{}, fmt.Errorf("%s %d out of range 0..%d", name, p, expander.Pins-1)
			}
			if other, ok := used[p]; ok {
				return Config{}, fmt.Errorf("%s %d is already used by %s", name, p, other)
			}
		}
	case "gpio":
		if ind.PassPin == nil || ind.FailPin == nil {
			return Config{}, fmt.Errorf("indicators.pass_pin and indicators.fail_pin are required when indicators.backend is 'gpio'")
		}
		if *ind.PassPin <= 0 || *ind.FailPin <= 0 {
			return Config{}, fmt.Errorf("indicators gpio pins must be > 0")
		}
	default:
		return Config{}, fmt.Errorf("indicators.backend must be 'expander' or 'gpio'")
	}
	if *ind.PassPin == *ind.FailPin {
		return Config{}, fmt.Errorf("indicators.pass_pin and indicators.fail_pin must differ")
	}

	return cfg, nil
}

// SlotSpecs turns the slot table into harness slots. Without an explicit
// table the standard ten-slot fixture for test.family is used.
func (c Config) SlotSpecs() []harness.SlotSpec {
	fam := imu.Family(c.Test.Family)
	if len(c.Slots) == 0 {
		specs := harness.DefaultSlots(fam, c.Test.RequireMagnetometer)
		if len(c.Test.Addresses) == 2 {
			a, b := fam.Addresses()
			x, y := c.Test.Addresses[0], c.Test.Addresses[1]
			up := harness.UpstreamAddress
			remap := map[uint16]uint16{a: x, b: y, up(a): up(x), up(b): up(y)}
			for i := range specs {
				specs[i].Address = remap[specs[i].Address]
			}
		}
		return specs
	}

	specs := make([]harness.SlotSpec, len(c.Slots))
	for i, s := range c.Slots {
		spec := harness.SlotSpec{
			Index:               i,
			MuxEnabled:          s.Mux,
			Channel:             s.Channel,
			Address:             s.Address,
			IntPin:              -1,
			Family:              fam,
			RequireMagnetometer: c.Test.RequireMagnetometer,
		}
		if s.IntPin != nil {
			spec.IntPin = *s.IntPin
		}
		if s.Family != "" {
			spec.Family = imu.Family(strings.ToLower(strings.TrimSpace(s.Family)))
		}
		if s.RequireMagnetometer != nil {
			spec.RequireMagnetometer = *s.RequireMagnetometer
		}
		specs[i] = spec
	}
	return specs
}

// Timing is the validator's per-slot timing.
func (c Config) Timing() harness.Timing {
	return harness.Timing{
		BootDelay:       c.Test.BootDelay,
		PollInterval:    c.Test.PollInterval,
		ResponseTimeout: c.Test.ResponseTimeout,
	}
}

func intPtr(v int) *int { return &v }

func boolPtr(v bool) *bool { return &v }

func durationPtr(v time.Duration) *time.Duration { return &v }
