package rename

import "time"

// SetSleepForTests overrides the inter-batch delay during tests.
func SetSleepForTests(fn func(time.Duration)) func() {
	previous := sleepBetweenBatches
	sleepBetweenBatches = fn
	return func() {
		sleepBetweenBatches = previous
	}
}
