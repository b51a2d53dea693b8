// Package harness validates a batch of IMU daughterboards, one fixture slot
// at a time: select the slot's multiplexer channel, probe for the device,
// initialize it, wait a bounded time for live data and classify the result.
package harness

import (
	"errors"
	"fmt"

	"imu-tester/internal/imu"
	"imu-tester/internal/mux"
)

// MaxSlots is the number of physical slots in the fixture.
const MaxSlots = 10

var ErrEmptyRegistry = errors.New("harness: registry has no slots")

// SlotSpec describes one fixture slot. It is fixed at startup.
type SlotSpec struct {
	Index int

	// MuxEnabled selects Channel before probing; otherwise every channel is
	// disabled and the device sits on the upstream bus.
	MuxEnabled bool
	Channel    int

	Address uint16
	// IntPin is the expander pin wired to the device interrupt, -1 if none.
	IntPin int

	Family              imu.Family
	RequireMagnetometer bool
}

func (s SlotSpec) String() string {
	if s.MuxEnabled {
		return fmt.Sprintf("slot %d (ch%d 0x%02X)", s.Index, s.Channel, s.Address)
	}
	return fmt.Sprintf("slot %d (main 0x%02X)", s.Index, s.Address)
}

type slotKey struct {
	mux     bool
	channel int
	addr    uint16
}

func (s SlotSpec) key() slotKey {
	if !s.MuxEnabled {
		return slotKey{addr: s.Address}
	}
	return slotKey{mux: true, channel: s.Channel, addr: s.Address}
}

// Registry is the immutable, ordered slot table.
type Registry struct {
	slots []SlotSpec
}

// NewRegistry validates slots and numbers them in order.
func NewRegistry(slots []SlotSpec) (*Registry, error) {
	if len(slots) == 0 {
		return nil, ErrEmptyRegistry
	}
	if len(slots) > MaxSlots {
		return nil, fmt.Errorf("harness: %d slots, fixture has %d", len(slots), MaxSlots)
	}

	out := make([]SlotSpec, len(slots))
	seen := make(map[slotKey]int, len(slots))
	pins := make(map[int]int, len(slots))
	for i, s := range slots {
		s.Index = i
		if s.MuxEnabled && (s.Channel < 0 || s.Channel >= mux.Channels) {
			return nil, fmt.Errorf("harness: slot %d: channel %d out of range 0..%d", i, s.Channel, mux.Channels-1)
		}
		if !s.MuxEnabled {
			s.Channel = 0
		}
		if s.Address == 0 || s.Address > 0x7F {
			return nil, fmt.Errorf("harness: slot %d: invalid address 0x%X", i, s.Address)
		}
		if !s.Family.Valid() {
			return nil, fmt.Errorf("harness: slot %d: unknown family %q", i, s.Family)
		}
		if prev, ok := seen[s.key()]; ok {
			return nil, fmt.Errorf("harness: slot %d duplicates slot %d (%s)", i, prev, s)
		}
		seen[s.key()] = i
		if s.IntPin >= 0 {
			if prev, ok := pins[s.IntPin]; ok {
				return nil, fmt.Errorf("harness: slot %d shares interrupt pin %d with slot %d", i, s.IntPin, prev)
			}
			pins[s.IntPin] = i
		}
		out[i] = s
	}
	// An upstream device answers on every channel, so it would also be
	// found in any channel slot at the same address.
	for i, s := range out {
		if !s.MuxEnabled {
			continue
		}
		if prev, ok := seen[slotKey{addr: s.Address}]; ok {
			return nil, fmt.Errorf("harness: slot %d at 0x%02X would also see upstream slot %d", i, s.Address, prev)
		}
	}
	return &Registry{slots: out}, nil
}

func (r *Registry) Len() int { return len(r.slots) }

// Slots returns a copy of the table in slot order.
func (r *Registry) Slots() []SlotSpec {
	out := make([]SlotSpec, len(r.slots))
	copy(out, r.slots)
	return out
}

// UpstreamAddress is the address an upstream slot uses for a board strapped
// to addr on a channel. The multiplexer never isolates the upstream bus, so
// an upstream board at a channel address would answer on every channel.
func UpstreamAddress(addr uint16) uint16 { return addr ^ 2 }

// InterruptSlots is how many slots have their interrupt wired to the
// expander: pins 0..7, all on port A. Port B carries the button and the
// indicators, and reading a slot's interrupt line must not clear the
// button's latched edge.
const InterruptSlots = 8

// DefaultSlots is the standard ten-slot fixture for one IMU family: slots 0
// and 1 on the upstream bus, then four multiplexer channels each carrying
// the family's two addresses. Slot i < InterruptSlots uses expander pin i
// for its interrupt; the remaining slots are polled without one.
func DefaultSlots(family imu.Family, requireMag bool) []SlotSpec {
	a, b := family.Addresses()
	slots := make([]SlotSpec, 0, MaxSlots)
	slots = append(slots,
		SlotSpec{Address: UpstreamAddress(a)},
		SlotSpec{Address: UpstreamAddress(b)},
	)
	for ch := 0; ch < mux.Channels; ch++ {
		slots = append(slots,
			SlotSpec{MuxEnabled: true, Channel: ch, Address: a},
			SlotSpec{MuxEnabled: true, Channel: ch, Address: b},
		)
	}
	for i := range slots {
		slots[i].Index = i
		slots[i].IntPin = -1
		if i < InterruptSlots {
			slots[i].IntPin = i
		}
		slots[i].Family = family
		slots[i].RequireMagnetometer = requireMag
	}
	return slots
}
