package harness

import (
	"log"
	"time"
)

// Detector looks for a freshly connected board across every slot.
type Detector struct {
	Registry *Registry
	Selector ChannelSelector
	Bus      BusProber
	// Settle is waited after each channel switch before probing.
	Settle time.Duration
}

// AnyPresent cycles the multiplexer through the slots and reports whether
// any slot's expected address answers. The multiplexer is left disabled.
func (d *Detector) AnyPresent() bool {
	present := false
	for _, spec := range d.Registry.Slots() {
		if err := connect(d.Selector, spec); err != nil {
			continue
		}
		if d.Settle > 0 {
			sleep(d.Settle)
		}
		if d.Bus.Probe(spec.Address) {
			present = true
			break
		}
	}
	if d.Selector != nil {
		if err := d.Selector.Disable(); err != nil {
			log.Printf("harness: detect: channel disable failed: %v", err)
		}
	}
	return present
}
