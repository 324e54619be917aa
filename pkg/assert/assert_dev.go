//go:build !release

// Package assert checks internal invariants. Violations are programmer errors, so they panic
// instead of returning errors. Building with the release tag compiles the checks out.
package assert

import "fmt"

// That panics with the formatted message if cond is false.
func That(cond bool, format string, args ...any) { //nolint:goprintffuncname // it's ok
	if !cond {
		panic(fmt.Sprintf("assertion failed: "+format, args...))
	}
}

// Enabled reports whether assertions are compiled in.
const Enabled = true
