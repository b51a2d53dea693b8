package harness

import "time"

// Timing seams, replaced in tests.
var (
	sleep = time.Sleep
	now   = time.Now
	after = time.After
)
