// Package intr models the interrupt-enable flag a handful of short,
// non-reentrant sections toggle around themselves instead of taking a
// mutex. Hosted Go has no real interrupt flag, so this is a
// process-wide atomic.Bool standing in for eflags.IF.
package intr

import "sync/atomic"

var enabled atomic.Bool

func init() { enabled.Store(true) }

// State is the saved interrupt-enable flag returned by Disable, to be
// passed back to Restore.
type State bool

// Disable clears the interrupt-enable flag and returns its prior value.
func Disable() State {
	return State(enabled.Swap(false))
}

// Restore sets the interrupt-enable flag back to a value saved by Disable.
func Restore(s State) {
	enabled.Store(bool(s))
}

// Enabled reports the current interrupt-enable flag.
func Enabled() bool {
	return enabled.Load()
}
