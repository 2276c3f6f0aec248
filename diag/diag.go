// Package diag provides boot and kernel diagnostic printing: a thin,
// switchable wrapper around fmt.Printf rather than a structured logging
// library, since nothing below this layer needs more than a line of
// text on the console.
package diag

import "fmt"

// Verbose gates Printf. It starts on; cmd/memdemo sets it from its -v
// flag.
var Verbose = true

// Printf writes a prefixed diagnostic line when Verbose is set.
func Printf(format string, args ...any) {
	if !Verbose {
		return
	}
	fmt.Printf("KERN: "+format, args...)
}
