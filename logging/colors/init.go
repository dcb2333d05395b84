package colors

// init enables ANSI coloring where the platform supports it.
func init() {
	EnableColor()
}
