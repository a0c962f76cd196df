package console

import (
	"bytes"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/c-bata/go-prompt"
)

func TestPlainReader(t *testing.T) {
	var out bytes.Buffer
	r := NewPlainReader(strings.NewReader("first\r\n\nlast"), &out)

	for _, want := range []string{"first", "", "last"} {
		got, err := r.ReadLine("> ")
		if err != nil {
			t.Fatalf("ReadLine failed: %v", err)
		}
		if got != want {
			t.Errorf("Expected %q, got %q", want, got)
		}
	}
	if _, err := r.ReadLine("> "); err != io.EOF {
		t.Errorf("Expected io.EOF, got %v", err)
	}
	if out.String() != "> > > > " {
		t.Errorf("Expected prefixes to be echoed, got %q", out.String())
	}
}

func TestPromptSplitsPrefix(t *testing.T) {
	var out bytes.Buffer
	c := New(&out, NewPlainReader(strings.NewReader("yes\n"), &out))

	got, err := c.Prompt("Execute?\nPress enter\n> ")
	if err != nil {
		t.Fatalf("Prompt failed: %v", err)
	}
	if got != "yes" {
		t.Errorf("Expected %q, got %q", "yes", got)
	}
	if out.String() != "Execute?\nPress enter\n> " {
		t.Errorf("Unexpected output %q", out.String())
	}
}

func TestPlainOutputHasNoEscapes(t *testing.T) {
	var out bytes.Buffer
	c := New(&out, nil, WithWidth(10))
	c.Success("Rolled back to step %d", 1)
	c.Warn("No snapshots available")
	c.Rule()
	c.AgentHeader("steer", 2, 0.5)
	c.RoleHeader("user")
	c.Markdown("**plain**")

	got := out.String()
	if strings.Contains(got, "\x1b[") {
		t.Errorf("Expected no ANSI escapes for a buffer, got %q", got)
	}
	for _, want := range []string{
		"Rolled back to step 1\n",
		"No snapshots available\n",
		strings.Repeat("─", 10) + "\n",
		"steer (step 2, $0.50):",
		"User:",
		"**plain**\n",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("Output %q does not contain %q", got, want)
		}
	}
}

func TestHistoryPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "history.txt")
	h := LoadHistory(path)
	for _, line := range []string{"ls", "ls", "", "/r 1"} {
		if err := h.Add(line); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}
	if got := h.Entries(); len(got) != 2 {
		t.Errorf("Expected 2 entries, got %v", got)
	}

	reloaded := LoadHistory(path)
	got := reloaded.Entries()
	if len(got) != 2 || got[0] != "ls" || got[1] != "/r 1" {
		t.Errorf("Unexpected reloaded history %v", got)
	}
}

func TestCompleteMeta(t *testing.T) {
	if got := completeMeta(docFor("/")); len(got) != len(metaCommands) {
		t.Errorf("Expected all meta commands, got %d", len(got))
	}
	if got := completeMeta(docFor("/r")); len(got) != 1 || got[0].Text != "/r" {
		t.Errorf("Expected only /r, got %v", got)
	}
	if got := completeMeta(docFor("ls")); got != nil {
		t.Errorf("Expected no suggestions for a command, got %v", got)
	}
}

func docFor(text string) prompt.Document {
	buf := prompt.NewBuffer()
	buf.InsertText(text, false, true)
	return *buf.Document()
}
