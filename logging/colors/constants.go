package colors

// Color is an ANSI SGR code.
type Color int

// ANSI codes, mirroring zerolog's console writer.
// Source: https://github.com/rs/zerolog/blob/4fff5db29c3403bc26dee9895e12a108aacc0203/console.go
const (
	RED Color = iota + 31
	GREEN
	YELLOW
	BLUE
	MAGENTA
	CYAN
	BOLD      Color = 1
	DARK_GRAY Color = 90
)

// Glyphs used for console output.
const (
	// LEFT_ARROW prefixes info-level console lines.
	LEFT_ARROW = "⇾"
	// CHECK_MARK marks a successful verification.
	CHECK_MARK = "✔"
	// CROSS_MARK marks a failed verification.
	CROSS_MARK = "✘"
)
