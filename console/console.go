// Package console is the operator's terminal: styled output, markdown
// rendering and line input with history.
package console

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// LineReader reads one line of operator input. The prefix is shown on the
// input line itself.
type LineReader interface {
	ReadLine(prefix string) (string, error)
}

type styles struct {
	accent  lipgloss.Style
	success lipgloss.Style
	warning lipgloss.Style
	failure lipgloss.Style
	agent   lipgloss.Style
	rule    lipgloss.Style
}

// Console writes to out and reads from in. Styling follows the color
// support of out, so a non-terminal writer gets plain text.
type Console struct {
	out      io.Writer
	in       LineReader
	width    int
	markdown *glamour.TermRenderer
	styles   styles
}

type Option func(*Console)

// WithMarkdown renders assistant messages through r.
func WithMarkdown(r *glamour.TermRenderer) Option {
	return func(c *Console) { c.markdown = r }
}

// WithWidth sets the width of horizontal rules.
func WithWidth(width int) Option {
	return func(c *Console) {
		if width > 0 {
			c.width = width
		}
	}
}

func New(out io.Writer, in LineReader, opts ...Option) *Console {
	r := lipgloss.NewRenderer(out)
	c := &Console{
		out:   out,
		in:    in,
		width: 80,
		styles: styles{
			accent:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("3")),
			success: r.NewStyle().Bold(true).Foreground(lipgloss.Color("2")),
			warning: r.NewStyle().Foreground(lipgloss.Color("3")),
			failure: r.NewStyle().Foreground(lipgloss.Color("1")),
			agent:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("1")),
			rule:    r.NewStyle().Faint(true),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Open returns a console on the process's standard streams. When stdin is a
// terminal input gets line editing, completion and a history persisted in
// historyFile; otherwise lines are read as they come.
func Open(historyFile string) *Console {
	var in LineReader
	if fd := int(os.Stdin.Fd()); term.IsTerminal(fd) {
		in = NewTerminalReader(fd, LoadHistory(historyFile))
	} else {
		in = NewPlainReader(os.Stdin, os.Stdout)
	}

	var opts []Option
	if fd := int(os.Stdout.Fd()); term.IsTerminal(fd) {
		if width, _, err := term.GetSize(fd); err == nil {
			opts = append(opts, WithWidth(width))
		}
		if r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(0)); err == nil {
			opts = append(opts, WithMarkdown(r))
		}
	}
	return New(os.Stdout, in, opts...)
}

// Prompt shows text and reads one line. Everything up to the last newline is
// printed as is; the last line becomes the input prefix.
func (c *Console) Prompt(text string) (string, error) {
	prefix := text
	if i := strings.LastIndex(text, "\n"); i >= 0 {
		fmt.Fprint(c.out, text[:i+1])
		prefix = text[i+1:]
	}
	return c.in.ReadLine(prefix)
}

func (c *Console) Printf(format string, a ...any) {
	fmt.Fprintf(c.out, format, a...)
}

func (c *Console) Println(a ...any) {
	fmt.Fprintln(c.out, a...)
}

// Success, Warn and Fail print one styled line.
func (c *Console) Success(format string, a ...any) {
	fmt.Fprintln(c.out, c.styles.success.Render(fmt.Sprintf(format, a...)))
}

func (c *Console) Warn(format string, a ...any) {
	fmt.Fprintln(c.out, c.styles.warning.Render(fmt.Sprintf(format, a...)))
}

func (c *Console) Fail(format string, a ...any) {
	fmt.Fprintln(c.out, c.styles.failure.Render(fmt.Sprintf(format, a...)))
}

// Accent and Good style a fragment for use inside a larger line.
func (c *Console) Accent(s string) string { return c.styles.accent.Render(s) }

func (c *Console) Good(s string) string { return c.styles.success.Render(s) }

func (c *Console) Bad(s string) string { return c.styles.failure.Render(s) }

// Rule prints a horizontal separator.
func (c *Console) Rule() {
	fmt.Fprintln(c.out, c.styles.rule.Render(strings.Repeat("─", c.width)))
}

// AgentHeader prints the heading shown above every model message.
func (c *Console) AgentHeader(name string, step int, cost float64) {
	fmt.Fprintf(c.out, "\n%s\n", c.styles.agent.Render(fmt.Sprintf("%s (step %d, $%.2f):", name, step, cost)))
}

// RoleHeader prints the heading shown above any other message.
func (c *Console) RoleHeader(role string) {
	if role != "" {
		role = strings.ToUpper(role[:1]) + role[1:]
	}
	fmt.Fprintf(c.out, "\n%s\n", c.styles.success.Render(role+":"))
}

// Markdown prints content, rendered when a markdown renderer is configured.
func (c *Console) Markdown(content string) {
	if c.markdown != nil {
		if rendered, err := c.markdown.Render(content); err == nil {
			fmt.Fprint(c.out, rendered)
			return
		}
	}
	fmt.Fprintln(c.out, content)
}
