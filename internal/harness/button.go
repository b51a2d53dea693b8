package harness

import (
	"log"
	"time"
)

// PinInterrupts is the part of the GPIO expander the button needs.
type PinInterrupts interface {
	InterruptPending(pin int) (bool, error)
	Capture(pin int) (bool, error)
	ReadPin(pin int) (bool, error)
}

// Button is the operator's start button on an expander input with
// interrupt-on-change enabled.
type Button struct {
	dev       PinInterrupts
	pin       int
	activeLow bool
	debounce  time.Duration
}

func NewButton(dev PinInterrupts, pin int, activeLow bool, debounce time.Duration) *Button {
	return &Button{dev: dev, pin: pin, activeLow: activeLow, debounce: debounce}
}

func (b *Button) down(level bool) bool { return level != b.activeLow }

// Pressed consumes a pending interrupt and reports true only for a press
// edge that is still held after the debounce delay.
func (b *Button) Pressed() bool {
	pending, err := b.dev.InterruptPending(b.pin)
	if err != nil {
		log.Printf("harness: button: %v", err)
		return false
	}
	if !pending {
		return false
	}
	level, err := b.dev.Capture(b.pin)
	if err != nil {
		log.Printf("harness: button: %v", err)
		return false
	}
	if !b.down(level) {
		return false
	}
	if b.debounce > 0 {
		sleep(b.debounce)
	}
	level, err = b.dev.ReadPin(b.pin)
	if err != nil {
		log.Printf("harness: button: %v", err)
		return false
	}
	return b.down(level)
}
