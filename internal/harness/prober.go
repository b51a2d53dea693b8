package harness

import "time"

// BusProber is a single address probe on whatever sub-bus is connected.
type BusProber interface {
	Probe(addr uint16) bool
}

// ChannelSelector connects one multiplexer channel, or none.
type ChannelSelector interface {
	Select(ch int) error
	Disable() error
}

type DetectResult int

const (
	NotFound DetectResult = iota
	Found
	WrongAddress
)

type Detection struct {
	Result  DetectResult
	Address uint16
}

// Prober detects a slot's device after an optional settle delay.
type Prober struct {
	Bus    BusProber
	Settle time.Duration
}

func (p Prober) Probe(addr uint16) bool {
	return p.Bus.Probe(addr)
}

// Detect looks for expected first; if it is absent, any of wrong answering
// marks the board as strapped to the wrong address.
func (p Prober) Detect(expected uint16, wrong []uint16) Detection {
	if p.Settle > 0 {
		sleep(p.Settle)
	}
	if p.Bus.Probe(expected) {
		return Detection{Result: Found, Address: expected}
	}
	for _, a := range wrong {
		if a == expected {
			continue
		}
		if p.Bus.Probe(a) {
			return Detection{Result: WrongAddress, Address: a}
		}
	}
	return Detection{Result: NotFound}
}

// connect routes the bus to spec's device. A failed switch is reported but
// not fatal: the probe that follows will not find the device.
func connect(sel ChannelSelector, spec SlotSpec) error {
	if sel == nil {
		return nil
	}
	if spec.MuxEnabled {
		return sel.Select(spec.Channel)
	}
	return sel.Disable()
}
