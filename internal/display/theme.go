package display

import "sort"

// OutputFormat selects how reports are written
type OutputFormat string

const (
	FormatText OutputFormat = "text"
	FormatJSON OutputFormat = "json"
)

// Color is a terminal foreground color. NoColor leaves text unchanged.
type Color int

const (
	NoColor Color = iota
	ColorRed
	ColorGreen
	ColorYellow
	ColorBlue
	ColorMagenta
	ColorCyan
	ColorWhite
	ColorBrightRed
	ColorBrightGreen
	ColorBrightYellow
	ColorBrightBlue
	ColorBrightCyan
	ColorBrightWhite
)

// ColorTheme assigns colors to the parts of a run or restore report
type ColorTheme struct {
	Title   Color // report headings
	Header  Color // table column headers
	Detail  Color // secondary text such as sizes and durations
	Success Color
	Warning Color
	Error   Color
	Info    Color
}

// ThemeName names a built-in color theme
type ThemeName string

const (
	ThemeDark         ThemeName = "dark"
	ThemeLight        ThemeName = "light"
	ThemeHighContrast ThemeName = "high-contrast"
	ThemePlain        ThemeName = "plain"
)

var themes = map[ThemeName]ColorTheme{
	ThemeDark: {
		Title: ColorBrightBlue, Header: ColorBrightBlue, Detail: ColorWhite,
		Success: ColorBrightGreen, Warning: ColorBrightYellow, Error: ColorBrightRed, Info: ColorCyan,
	},
	ThemeLight: {
		Title: ColorBlue, Header: ColorBlue, Detail: ColorMagenta,
		Success: ColorGreen, Warning: ColorYellow, Error: ColorRed, Info: ColorCyan,
	},
	ThemeHighContrast: {
		Title: ColorBrightWhite, Header: ColorBrightBlue, Detail: ColorWhite,
		Success: ColorBrightGreen, Warning: ColorBrightYellow, Error: ColorBrightRed, Info: ColorBrightCyan,
	},
	ThemePlain: {},
}

// ThemeFor returns the named theme, falling back to dark
func ThemeFor(name string) ColorTheme {
	if theme, ok := themes[ThemeName(name)]; ok {
		return theme
	}
	return themes[ThemeDark]
}

// ThemeNames lists the built-in themes in sorted order
func ThemeNames() []string {
	names := make([]string, 0, len(themes))
	for name := range themes {
		names = append(names, string(name))
	}
	sort.Strings(names)
	return names
}
