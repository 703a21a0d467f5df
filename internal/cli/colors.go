// Package cli provides terminal color helpers.
package cli

import (
	"os"

	"github.com/fatih/color"
	"golang.org/x/term"
)

const (
	colorGreen   = "green"
	colorYellow  = "yellow"
	colorRed     = "red"
	colorCyan    = "cyan"
	colorMagenta = "magenta"
)

var colorFuncs = map[string]func(a ...interface{}) string{
	colorGreen:   color.New(color.FgGreen).SprintFunc(),
	colorYellow:  color.New(color.FgYellow).SprintFunc(),
	colorRed:     color.New(color.FgRed).SprintFunc(),
	colorCyan:    color.New(color.FgCyan).SprintFunc(),
	colorMagenta: color.New(color.FgMagenta).SprintFunc(),
}

func init() {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		color.NoColor = true
	}
}

func colorize(text, name string) string {
	if fn, ok := colorFuncs[name]; ok {
		return fn(text)
	}
	return text
}
