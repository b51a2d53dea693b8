// Package mux drives a TCA9546A-class 4-channel I2C multiplexer.
//
// The multiplexer has a single control register: each of the low four bits
// connects one downstream sub-bus. The tester only ever connects one
// channel at a time, or none.
package mux

import (
	"errors"
	"fmt"

	"imu-tester/internal/i2c"
)

const (
	addrDefault = 0x70

	// Channels is the number of selectable sub-buses.
	Channels = 4
)

// ErrInvalidChannel is returned for a channel outside 0..Channels-1. The bus
// is not touched.
var ErrInvalidChannel = errors.New("mux: invalid channel")

func DefaultAddress() uint16 { return addrDefault }

type writer interface {
	Write(p []byte) error
}

// Mux is the channel selector. It is not safe for concurrent use; the
// control loop is its only caller.
type Mux struct {
	dev writer

	// current is the last successfully written channel, -1 when disabled
	// or unknown.
	current int
}

func New(dev *i2c.Dev) (*Mux, error) {
	if dev == nil {
		return nil, fmt.Errorf("mux: dev is nil")
	}
	return newWithIO(dev), nil
}

func newWithIO(dev writer) *Mux {
	return &Mux{dev: dev, current: -1}
}

// Select connects channel ch and disconnects all others.
func (m *Mux) Select(ch int) error {
	if ch < 0 || ch >= Channels {
		return fmt.Errorf("%w %d", ErrInvalidChannel, ch)
	}
	if err := m.dev.Write([]byte{1 << uint(ch)}); err != nil {
		m.current = -1
		return fmt.Errorf("mux: select channel %d: %w", ch, err)
	}
	m.current = ch
	return nil
}

// Disable disconnects every channel so only devices on the upstream bus
// are reachable.
func (m *Mux) Disable() error {
	if err := m.dev.Write([]byte{0x00}); err != nil {
		m.current = -1
		return fmt.Errorf("mux: disable: %w", err)
	}
	m.current = -1
	return nil
}
