package display

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestColorSystem_DisabledForBuffers(t *testing.T) {
	cs := NewColorSystem(ThemeFor("dark"), true, &bytes.Buffer{})

	assert.False(t, cs.IsColorSupported())
	assert.Equal(t, "plain", cs.Colorize("plain", ColorRed))
	assert.Equal(t, "3 rows", cs.Sprintf(ColorGreen, "%d rows", 3))
	assert.Equal(t, ThemeFor("dark"), cs.Theme())
}

func TestColorSystem_ExplicitlyDisabled(t *testing.T) {
	t.Setenv("FORCE_COLOR", "1")
	t.Setenv("NO_COLOR", "")
	t.Setenv("TERM", "xterm-256color")

	cs := NewColorSystem(ThemeFor("dark"), false, os.Stdout)
	assert.False(t, cs.IsColorSupported())
	assert.Equal(t, "text", cs.Colorize("text", ColorRed))
}

func TestColorSystem_ForcedColor(t *testing.T) {
	t.Setenv("FORCE_COLOR", "1")
	t.Setenv("NO_COLOR", "")
	t.Setenv("TERM", "xterm-256color")

	cs := NewColorSystem(ThemeFor("dark"), true, os.Stdout)
	assert.True(t, cs.IsColorSupported())

	colored := cs.Colorize("failed", ColorRed)
	assert.Contains(t, colored, "\x1b[")
	assert.Contains(t, colored, "failed")
	assert.Equal(t, "reset", cs.Colorize("reset", NoColor))
}

func TestColorSystem_NoColorWins(t *testing.T) {
	t.Setenv("FORCE_COLOR", "1")
	t.Setenv("NO_COLOR", "1")

	cs := NewColorSystem(ThemeFor("dark"), true, os.Stdout)
	assert.False(t, cs.IsColorSupported())
}

func TestThemeFor(t *testing.T) {
	assert.Equal(t, themes[ThemeLight], ThemeFor("light"))
	assert.Equal(t, ColorTheme{}, ThemeFor("plain"))
	assert.Equal(t, themes[ThemeDark], ThemeFor("unknown"))
	assert.Equal(t, []string{"dark", "high-contrast", "light", "plain"}, ThemeNames())
}
