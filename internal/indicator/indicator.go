// Package indicator drives the fixture's pass and fail lamps.
package indicator

import (
	"errors"
	"io"
)

// Output is one discrete lamp output. true means lit.
type Output interface {
	Set(on bool) error
}

// PinSetter is an output pin on the GPIO expander.
type PinSetter interface {
	Set(high bool) error
}

type pinOutput struct {
	pin       PinSetter
	activeLow bool
}

// FromPin adapts a pin to an Output. With activeLow the lamp is lit by
// driving the pin low.
func FromPin(pin PinSetter, activeLow bool) Output {
	return pinOutput{pin: pin, activeLow: activeLow}
}

func (o pinOutput) Set(on bool) error { return o.pin.Set(on != o.activeLow) }

// Pair is the pass/fail lamp pair. After Show exactly one lamp is lit.
type Pair struct {
	Pass Output
	Fail Output
}

// Clear turns both lamps off.
func (p Pair) Clear() error {
	return errors.Join(p.set(p.Pass, false), p.set(p.Fail, false))
}

// Show lights the lamp for the verdict and turns the other one off.
func (p Pair) Show(pass bool) error {
	// Off first so both are never lit together.
	if pass {
		return errors.Join(p.set(p.Fail, false), p.set(p.Pass, true))
	}
	return errors.Join(p.set(p.Pass, false), p.set(p.Fail, true))
}

// Close turns both lamps off and releases outputs that hold a resource.
func (p Pair) Close() error {
	err := p.Clear()
	for _, o := range []Output{p.Pass, p.Fail} {
		if c, ok := o.(io.Closer); ok {
			err = errors.Join(err, c.Close())
		}
	}
	return err
}

func (p Pair) set(o Output, on bool) error {
	if o == nil {
		return nil
	}
	return o.Set(on)
}
