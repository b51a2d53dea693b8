//go:build linux && (arm || arm64)

package indicator

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/warthog618/go-gpiocdev"
)

// OpenGPIO drives the given BCM GPIO as a lamp output through the Linux GPIO
// character device. The line starts unlit.
func OpenGPIO(pin int, activeLow bool) (*GPIOOutput, error) {
	if pin <= 0 {
		return nil, fmt.Errorf("indicator: invalid gpio pin %d", pin)
	}

	// On Pi, line names are commonly "GPIO18", etc.
	lineName := fmt.Sprintf("GPIO%d", pin)

	chipCandidates := []string{"/dev/gpiochip0", "/dev/gpiochip4"}
	entries, _ := os.ReadDir("/dev")
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, "gpiochip") {
			chipCandidates = append(chipCandidates, filepath.Join("/dev", name))
		}
	}

	off := 0
	if activeLow {
		off = 1
	}
	for _, chipPath := range chipCandidates {
		chip, err := gpiocdev.NewChip(chipPath)
		if err != nil {
			continue
		}
		offset, err := chip.FindLine(lineName)
		if err != nil {
			_ = chip.Close()
			continue
		}
		line, err := chip.RequestLine(offset, gpiocdev.AsOutput(off), gpiocdev.WithConsumer("imu-tester-lamp"))
		if err != nil {
			_ = chip.Close()
			continue
		}
		return &GPIOOutput{chip: chip, line: line, activeLow: activeLow}, nil
	}

	return nil, fmt.Errorf("indicator: gpio line %q not found (or busy)", lineName)
}

type GPIOOutput struct {
	chip      *gpiocdev.Chip
	line      *gpiocdev.Line
	activeLow bool
}

func (g *GPIOOutput) Set(on bool) error {
	if g == nil || g.line == nil {
		return fmt.Errorf("indicator: gpio line not open")
	}
	v := 0
	if on != g.activeLow {
		v = 1
	}
	return g.line.SetValue(v)
}

func (g *GPIOOutput) Close() error {
	if g == nil || g.line == nil {
		return nil
	}
	_ = g.Set(false)
	err := g.line.Close()
	g.line = nil
	if g.chip != nil {
		_ = g.chip.Close()
		g.chip = nil
	}
	return err
}
