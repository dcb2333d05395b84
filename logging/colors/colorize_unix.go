//go:build !windows
// +build !windows

package colors

import "fmt"

// enabled tracks whether ANSI codes are emitted. Unix terminals support them by default.
var enabled = true

// EnableColor turns ANSI coloring on. Non-windows terminals need no further setup.
func EnableColor() {
	enabled = true
}

// DisableColor turns ANSI coloring off, e.g. for --no-color or when stdout is not a terminal.
func DisableColor() {
	enabled = false
}

// Colorize returns the string s wrapped in ANSI code c, or s unchanged if coloring is disabled.
// Source: https://github.com/rs/zerolog/blob/4fff5db29c3403bc26dee9895e12a108aacc0203/console.go
func Colorize(s any, c Color) string {
	if !enabled {
		return fmt.Sprintf("%v", s)
	}
	return fmt.Sprintf("\x1b[%dm%v\x1b[0m", c, s)
}
