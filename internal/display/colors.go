package display

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
)

// ColorSystem applies theme colors to report text
type ColorSystem interface {
	Colorize(text string, color Color) string
	Sprintf(color Color, format string, args ...interface{}) string
	IsColorSupported() bool
	Theme() ColorTheme
}

var foregrounds = map[Color]color.Attribute{
	ColorRed:          color.FgRed,
	ColorGreen:        color.FgGreen,
	ColorYellow:       color.FgYellow,
	ColorBlue:         color.FgBlue,
	ColorMagenta:      color.FgMagenta,
	ColorCyan:         color.FgCyan,
	ColorWhite:        color.FgWhite,
	ColorBrightRed:    color.FgHiRed,
	ColorBrightGreen:  color.FgHiGreen,
	ColorBrightYellow: color.FgHiYellow,
	ColorBrightBlue:   color.FgHiBlue,
	ColorBrightCyan:   color.FgHiCyan,
	ColorBrightWhite:  color.FgHiWhite,
}

type colorSystem struct {
	theme   ColorTheme
	enabled bool
	palette map[Color]*color.Color
}

// NewColorSystem creates a color system for the given writer. Colors are
// only emitted when enabled is set and the writer is a color terminal.
func NewColorSystem(theme ColorTheme, enabled bool, writer io.Writer) ColorSystem {
	cs := &colorSystem{
		theme:   theme,
		enabled: enabled && supportsColor(writer),
		palette: make(map[Color]*color.Color, len(foregrounds)),
	}
	for c, attr := range foregrounds {
		painter := color.New(attr)
		// fatih/color decides from stdout on its own; follow our writer instead.
		if cs.enabled {
			painter.EnableColor()
		} else {
			painter.DisableColor()
		}
		cs.palette[c] = painter
	}
	return cs
}

// supportsColor reports whether writer is a terminal that renders ANSI colors
func supportsColor(writer io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" || os.Getenv("TERM") == "dumb" {
		return false
	}
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	if os.Getenv("FORCE_COLOR") != "" {
		return true
	}
	if !isatty.IsTerminal(file.Fd()) && !isatty.IsCygwinTerminal(file.Fd()) {
		return false
	}
	return termenv.NewOutput(file).ColorProfile() != termenv.Ascii
}

// Colorize applies color to text if color is supported
func (cs *colorSystem) Colorize(text string, clr Color) string {
	painter, ok := cs.palette[clr]
	if !cs.enabled || !ok {
		return text
	}
	return painter.Sprint(text)
}

// Sprintf formats text with color using format string
func (cs *colorSystem) Sprintf(clr Color, format string, args ...interface{}) string {
	return cs.Colorize(fmt.Sprintf(format, args...), clr)
}

func (cs *colorSystem) IsColorSupported() bool {
	return cs.enabled
}

func (cs *colorSystem) Theme() ColorTheme {
	return cs.theme
}
