package confirmation

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// maxAttempts bounds how often an unrecognised answer is asked again
const maxAttempts = 3

// Prompter asks the operator to approve a destructive step
type Prompter interface {
	Confirm(ctx context.Context, question string) (bool, error)
}

type prompter struct {
	reader *bufio.Reader
	writer io.Writer
}

// NewPrompter creates a prompter reading answers from in and writing
// questions to out
func NewPrompter(in io.Reader, out io.Writer) Prompter {
	return &prompter{
		reader: bufio.NewReader(in),
		writer: out,
	}
}

// IsInteractive reports whether in is a terminal an operator can answer on
func IsInteractive(in io.Reader) bool {
	file, ok := in.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(file.Fd()) || isatty.IsCygwinTerminal(file.Fd())
}

// Confirm prints question and waits for yes or no. An empty answer means no.
// Cancelling ctx aborts the prompt with ctx.Err().
func (p *prompter) Confirm(ctx context.Context, question string) (bool, error) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		fmt.Fprintf(p.writer, "%s [y/N]: ", question)

		input, err := p.readLine(ctx)
		if err != nil {
			return false, err
		}

		approved, ok := parseAnswer(input)
		if ok {
			return approved, nil
		}
		fmt.Fprintf(p.writer, "Invalid input '%s'. Please enter 'y' for yes or 'n' for no.\n", input)
	}
	return false, nil
}

// readLine reads one answer, giving up when ctx is cancelled
func (p *prompter) readLine(ctx context.Context) (string, error) {
	type result struct {
		line string
		err  error
	}
	lines := make(chan result, 1)

	go func() {
		line, err := p.reader.ReadString('\n')
		if err == io.EOF && line != "" {
			err = nil
		}
		lines <- result{line: strings.TrimSpace(line), err: err}
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(p.writer)
		return "", ctx.Err()
	case r := <-lines:
		if r.err != nil {
			return "", fmt.Errorf("failed to read input: %w", r.err)
		}
		return r.line, nil
	}
}

// parseAnswer maps an answer to approval; ok is false for anything else
func parseAnswer(input string) (approved bool, ok bool) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "y", "yes":
		return true, true
	case "n", "no", "":
		return false, true
	default:
		return false, false
	}
}
