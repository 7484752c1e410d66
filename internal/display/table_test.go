package display

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTable_Render(t *testing.T) {
	table := NewTable(nil, 0, "TABLE", "ROWS")
	table.AlignRight(1)
	table.AddRow("kunder", "12")
	table.AddRow("avtaler", "3")

	expected := strings.Join([]string{
		"+---------+------+",
		"| TABLE   | ROWS |",
		"+---------+------+",
		"| kunder  |   12 |",
		"| avtaler |    3 |",
		"+---------+------+",
		"",
	}, "\n")
	assert.Equal(t, expected, table.Render())
	assert.Equal(t, 2, table.Len())
}

func TestTable_NoBorder(t *testing.T) {
	table := NewTable(nil, 0, "A", "B")
	table.SetBorder(NoBorderStyle)
	table.AddRow("x", "yy")

	assert.Equal(t, " A  B\n x  yy\n", table.Render())
}

func TestTable_RaggedRows(t *testing.T) {
	table := NewTable(nil, 0, "A")
	table.AddRow("1", "extra")

	lines := strings.Split(strings.TrimSpace(table.Render()), "\n")
	assert.Equal(t, "| A |       |", lines[1])
	assert.Equal(t, "| 1 | extra |", lines[3])
}

func TestTable_TruncatesToMaxWidth(t *testing.T) {
	table := NewTable(nil, 20, "NAME", "N")
	table.AddRow("a-very-long-table-name", "1")

	for _, line := range strings.Split(strings.TrimSpace(table.Render()), "\n") {
		assert.LessOrEqual(t, len(line), 20, line)
	}
	assert.Contains(t, table.Render(), "...")
}

func TestTable_Empty(t *testing.T) {
	assert.Empty(t, NewTable(nil, 0).Render())
}

func TestTable_RenderTo(t *testing.T) {
	var buf bytes.Buffer
	table := NewTable(nil, 0, "A")
	table.AddRow("1")
	table.RenderTo(&buf)
	assert.Equal(t, table.Render(), buf.String())
}

func TestTerminalWidth_NonTerminal(t *testing.T) {
	assert.Zero(t, TerminalWidth(&bytes.Buffer{}))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab...", truncate("abcdefgh", 5))
	assert.Equal(t, "ab", truncate("abcdef", 2))
}
