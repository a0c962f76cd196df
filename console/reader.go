package console

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/c-bata/go-prompt"
	"golang.org/x/term"
)

// PlainReader reads newline-terminated lines, for pipes and tests.
type PlainReader struct {
	r *bufio.Reader
	w io.Writer
}

func NewPlainReader(r io.Reader, w io.Writer) *PlainReader {
	return &PlainReader{r: bufio.NewReader(r), w: w}
}

// ReadLine returns io.EOF once the input is exhausted. A final line without
// a newline is still returned.
func (p *PlainReader) ReadLine(prefix string) (string, error) {
	fmt.Fprint(p.w, prefix)
	line, err := p.r.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

var metaCommands = []prompt.Suggest{
	{Text: "/h", Description: "show help"},
	{Text: "/u", Description: "switch to human mode"},
	{Text: "/c", Description: "switch to confirm mode"},
	{Text: "/y", Description: "switch to yolo mode"},
	{Text: "/r", Description: "list snapshots, or /r N to roll back to step N"},
}

// TerminalReader edits lines in a raw terminal with history and completion
// of meta commands.
type TerminalReader struct {
	fd      int
	history *History
	eof     bool
}

func NewTerminalReader(fd int, history *History) *TerminalReader {
	return &TerminalReader{fd: fd, history: history}
}

// ReadLine returns io.EOF when Ctrl-D is pressed on an empty line.
func (t *TerminalReader) ReadLine(prefix string) (string, error) {
	// go-prompt leaves the terminal in raw mode on some exits.
	if state, err := term.GetState(t.fd); err == nil {
		defer term.Restore(t.fd, state)
	}

	t.eof = false
	line := prompt.Input(prefix, completeMeta,
		prompt.OptionHistory(t.history.Entries()),
		prompt.OptionPrefixTextColor(prompt.Yellow),
		// Ctrl-D on an empty line ends Input before key binds run, so the
		// key is read back from the document at the line break.
		prompt.OptionBreakLineCallback(func(d *prompt.Document) {
			t.eof = d.LastKeyStroke() == prompt.ControlD
		}),
	)
	if line == "" && t.eof {
		return "", io.EOF
	}
	// History is best effort.
	_ = t.history.Add(line)
	return line, nil
}

func completeMeta(d prompt.Document) []prompt.Suggest {
	text := d.TextBeforeCursor()
	if !strings.HasPrefix(text, "/") || strings.Contains(text, " ") {
		return nil
	}
	return prompt.FilterHasPrefix(metaCommands, text, false)
}
