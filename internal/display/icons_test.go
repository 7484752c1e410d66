package display

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIconSystem_ASCIIFallback(t *testing.T) {
	icons := NewIconSystem(false)

	assert.False(t, icons.IsUnicodeSupported())
	assert.Equal(t, "[OK]", icons.RenderIcon("success"))
	assert.Equal(t, "[ERR]", icons.RenderIcon("error"))
	assert.Equal(t, "[SKIP]", icons.RenderIcon("skipped"))
	assert.Equal(t, "?", icons.RenderIcon("no-such-icon"))
}

func TestIconSystem_Unicode(t *testing.T) {
	t.Setenv("FORCE_UNICODE", "1")

	icons := NewIconSystem(true)
	assert.True(t, icons.IsUnicodeSupported())
	assert.Equal(t, "✓", icons.RenderIcon("success"))
}

func TestIconSystem_UnicodeDisabledByLocale(t *testing.T) {
	t.Setenv("FORCE_UNICODE", "")
	t.Setenv("NO_UNICODE", "")
	t.Setenv("LANG", "C")

	assert.False(t, NewIconSystem(true).IsUnicodeSupported())
}

func TestIconSystem_RenderIconWithColor(t *testing.T) {
	icons := NewIconSystem(false)
	colors := NewColorSystem(ThemeFor("dark"), true, &bytes.Buffer{})

	assert.Equal(t, "[WARN]", icons.RenderIconWithColor("warning", colors))
	assert.Equal(t, "[WARN]", icons.RenderIconWithColor("warning", nil))
	assert.Equal(t, ColorYellow, icons.GetIcon("warning").Color)
}
