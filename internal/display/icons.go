package display

import (
	"os"
)

// Icon represents a visual icon with Unicode and ASCII fallbacks
type Icon struct {
	Unicode string
	ASCII   string
	Color   Color
}

// IconSystem handles icon rendering with fallbacks
type IconSystem interface {
	GetIcon(name string) Icon
	RenderIcon(name string) string
	RenderIconWithColor(name string, colorSystem ColorSystem) string
	IsUnicodeSupported() bool
}

type iconSystem struct {
	unicodeSupported bool
	icons            map[string]Icon
}

// NewIconSystem creates an icon system. Unicode glyphs are used only when
// the terminal is expected to render them.
func NewIconSystem(unicode bool) IconSystem {
	return &iconSystem{
		unicodeSupported: unicode && detectUnicodeSupport(),
		icons:            defaultIcons(),
	}
}

// detectUnicodeSupport checks the locale environment for Unicode output
func detectUnicodeSupport() bool {
	if os.Getenv("FORCE_UNICODE") != "" {
		return true
	}
	if os.Getenv("NO_UNICODE") != "" {
		return false
	}
	if os.Getenv("LANG") == "C" || os.Getenv("LC_ALL") == "C" {
		return false
	}
	term := os.Getenv("TERM")
	return term != "dumb" && term != "vt100"
}

func defaultIcons() map[string]Icon {
	return map[string]Icon{
		"success":  {Unicode: "✓", ASCII: "[OK]", Color: ColorGreen},
		"error":    {Unicode: "✗", ASCII: "[ERR]", Color: ColorRed},
		"warning":  {Unicode: "⚠", ASCII: "[WARN]", Color: ColorYellow},
		"info":     {Unicode: "ℹ", ASCII: "[INFO]", Color: ColorBlue},
		"skipped":  {Unicode: "○", ASCII: "[SKIP]", Color: ColorWhite},
		"planned":  {Unicode: "◇", ASCII: "[PLAN]", Color: ColorCyan},
		"table":    {Unicode: "▤", ASCII: "[T]", Color: ColorBlue},
		"blob":     {Unicode: "◆", ASCII: "[B]", Color: ColorMagenta},
		"legacy":   {Unicode: "◇", ASCII: "[L]", Color: ColorYellow},
		"lock":     {Unicode: "🔒", ASCII: "[ENC]", Color: ColorCyan},
		"delete":   {Unicode: "✂", ASCII: "[DEL]", Color: ColorRed},
		"critical": {Unicode: "●", ASCII: "[CRIT]", Color: ColorBrightRed},
		"bullet":   {Unicode: "•", ASCII: "*", Color: ColorWhite},
		"arrow":    {Unicode: "→", ASCII: "->", Color: ColorBlue},
	}
}

// GetIcon returns the icon for the given name, or a placeholder
func (is *iconSystem) GetIcon(name string) Icon {
	if icon, ok := is.icons[name]; ok {
		return icon
	}
	return Icon{Unicode: "?", ASCII: "?", Color: ColorWhite}
}

// RenderIcon returns the Unicode or ASCII form of the icon
func (is *iconSystem) RenderIcon(name string) string {
	icon := is.GetIcon(name)
	if is.unicodeSupported {
		return icon.Unicode
	}
	return icon.ASCII
}

// RenderIconWithColor returns the icon with its color applied
func (is *iconSystem) RenderIconWithColor(name string, colorSystem ColorSystem) string {
	text := is.RenderIcon(name)
	if colorSystem == nil {
		return text
	}
	return colorSystem.Colorize(text, is.GetIcon(name).Color)
}

func (is *iconSystem) IsUnicodeSupported() bool {
	return is.unicodeSupported
}
