package harness

import (
	"fmt"
	"io"
	"log"
	"time"
)

// Indicators is the pass/fail indicator pair.
type Indicators interface {
	Clear() error
	Show(pass bool) error
}

// Stats counts batches and their verdicts.
type Stats struct {
	Batches uint64
	Passed  uint64
	Failed  uint64
}

// Runner validates every registered slot, strictly in registry order.
type Runner struct {
	registry   *Registry
	validator  *Validator
	indicators Indicators

	// Banner receives the PASS/FAIL banner. Defaults to the log output.
	Banner io.Writer

	stats Stats
}

func NewRunner(reg *Registry, v *Validator, ind Indicators) *Runner {
	return &Runner{registry: reg, validator: v, indicators: ind}
}

// Run validates one batch. Slots are never skipped or reordered: only one
// multiplexer channel can be connected at a time, and every slot is always
// attempted regardless of earlier failures.
func (r *Runner) Run() BatchVerdict {
	v := BatchVerdict{StartedAt: now()}
	slots := r.registry.Slots()
	v.Results = make([]SlotResult, 0, len(slots))
	for _, spec := range slots {
		v.Results = append(v.Results, r.validator.Validate(spec))
	}
	v.AllPassed = verdictOf(v.Results)
	v.EndedAt = now()

	// Leave only the upstream bus connected between batches.
	if r.validator.Selector != nil {
		if err := r.validator.Selector.Disable(); err != nil {
			log.Printf("harness: channel disable failed: %v", err)
		}
	}

	r.stats.Batches++
	if v.AllPassed {
		r.stats.Passed++
	} else {
		r.stats.Failed++
	}
	r.report(v)

	if r.indicators != nil {
		if err := r.indicators.Show(v.AllPassed); err != nil {
			log.Printf("harness: indicator update failed: %v", err)
		}
	}
	return v
}

func (r *Runner) Stats() Stats { return r.stats }

func (r *Runner) report(v BatchVerdict) {
	failed := v.Failed()
	log.Printf("harness: batch %d: %d/%d slots passed in %s",
		r.stats.Batches, len(v.Results)-len(failed), len(v.Results), v.EndedAt.Sub(v.StartedAt).Round(time.Millisecond))
	for _, f := range failed {
		log.Printf("harness: batch %d: slot %d: %s", r.stats.Batches, f.Slot, f.Outcome)
	}

	w := r.Banner
	if w == nil {
		w = log.Writer()
	}
	if v.AllPassed {
		fmt.Fprint(w, passBanner)
		log.Printf("harness: test passed")
	} else {
		fmt.Fprint(w, failBanner)
		log.Printf("harness: test failed")
	}
}
