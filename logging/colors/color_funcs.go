package colors

import "fmt"

// ColorFunc is an alias type for a coloring function that accepts anything and returns a colorized string
type ColorFunc = func(s any) string

// Reset returns the input as a plain string. It is used to reset the color context while building log messages.
func Reset(s any) string {
	return fmt.Sprintf("%v", s)
}

// plain and bold build ColorFunc values for a color.
func plain(c Color) ColorFunc {
	return func(s any) string { return Colorize(s, c) }
}

func bold(c Color) ColorFunc {
	return func(s any) string { return Colorize(Colorize(s, c), BOLD) }
}

var (
	Red        = plain(RED)
	RedBold    = bold(RED)
	Green      = plain(GREEN)
	GreenBold  = bold(GREEN)
	Yellow     = plain(YELLOW)
	YellowBold = bold(YELLOW)
	Blue       = plain(BLUE)
	BlueBold   = bold(BLUE)
	Magenta    = plain(MAGENTA)
	Cyan       = plain(CYAN)
	CyanBold   = bold(CYAN)
	Bold       = plain(BOLD)
	DarkGray   = plain(DARK_GRAY)
)
