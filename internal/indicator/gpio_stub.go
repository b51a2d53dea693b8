//go:build !linux || (!arm && !arm64)

package indicator

import "fmt"

// OpenGPIO is unavailable off the Pi; use the expander backend instead.
func OpenGPIO(pin int, activeLow bool) (*GPIOOutput, error) {
	return nil, fmt.Errorf("indicator: gpio unsupported on this platform")
}

type GPIOOutput struct{}

func (g *GPIOOutput) Set(on bool) error { return fmt.Errorf("indicator: gpio unsupported on this platform") }

func (g *GPIOOutput) Close() error { return nil }
