package logger

import "github.com/mattn/go-isatty"

// isTerminal reports whether fd is attached to a terminal, in which case
// the text handler colours its output.
func isTerminal(fd uintptr) bool {
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
