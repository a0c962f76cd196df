package interactive

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/m4xw311/steer/console"
	"github.com/m4xw311/steer/errors"
	"github.com/m4xw311/steer/snapshot"
)

type fakeRollback struct {
	records []snapshot.Record
	err     error
	asked   []int
}

func (f *fakeRollback) Snapshots() []snapshot.Record { return f.records }

func (f *fakeRollback) RollbackTo(ctx context.Context, step int) (snapshot.Record, error) {
	f.asked = append(f.asked, step)
	return snapshot.Record{StepNumber: step}, f.err
}

func newTestPrompter(t *testing.T, mode Mode, input string, rb RollbackHandler) (*Prompter, *ModeController, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	con := console.New(&out, console.NewPlainReader(strings.NewReader(input), &out))
	modes, err := NewModeController(mode, nil)
	if err != nil {
		t.Fatalf("NewModeController failed: %v", err)
	}
	return NewPrompter(con, modes, rb), modes, &out
}

func TestAskReturnsPlainInput(t *testing.T) {
	testCases := []struct {
		name  string
		input string
		want  string
	}{
		{"Text", "do something else\n", "do something else"},
		{"Empty", "\n", ""},
		{"Spaces", "  padded  \n", "  padded  "},
		{"NotAToken", "/yolo\n", "/yolo"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p, _, _ := newTestPrompter(t, ModeConfirm, tc.input, &fakeRollback{})
			reply, err := p.Ask(context.Background(), "> ")
			if err != nil {
				t.Fatalf("Ask failed: %v", err)
			}
			if reply.Text != tc.want || reply.Switched() {
				t.Errorf("Expected plain %q, got %+v", tc.want, reply)
			}
		})
	}
}

func TestAskHelpReasksSamePrompt(t *testing.T) {
	p, _, out := newTestPrompter(t, ModeYolo, "/h\nok\n", &fakeRollback{})
	reply, err := p.Ask(context.Background(), "Question?\n> ")
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if reply.Text != "ok" {
		t.Errorf("Expected %q, got %q", "ok", reply.Text)
	}
	got := out.String()
	if !strings.Contains(got, "Current mode: yolo") || !strings.Contains(got, "/r N to rollback to step N") {
		t.Errorf("Help not printed: %q", got)
	}
	if strings.Count(got, "Question?") != 2 {
		t.Errorf("Expected the prompt to be shown twice, got %q", got)
	}
}

func TestAskModeSwitch(t *testing.T) {
	p, modes, out := newTestPrompter(t, ModeConfirm, "/c\n/c\n/y\n", &fakeRollback{})
	reply, err := p.Ask(context.Background(), "> ")
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if !reply.Switched() || reply.Token != "/y" || reply.Text != "/y" {
		t.Errorf("Expected switch to /y, got %+v", reply)
	}
	if modes.Mode() != ModeYolo {
		t.Errorf("Expected yolo mode, got %s", modes.Mode())
	}
	got := out.String()
	if strings.Count(got, "Already in confirm mode.") != 2 {
		t.Errorf("Expected two refusals, got %q", got)
	}
	if !strings.Contains(got, "Switched to yolo mode.") {
		t.Errorf("Expected switch notice, got %q", got)
	}
}

func TestAskRollbackCommands(t *testing.T) {
	records := []snapshot.Record{
		{Name: "step-0", MessageCount: 2, StepNumber: 0},
		{Name: "step-1", MessageCount: 5, StepNumber: 1},
	}
	testCases := []struct {
		name    string
		input   string
		rb      *fakeRollback
		want    string
		asked   []int
		unasked bool
	}{
		{"ListEmpty", "/r\n", &fakeRollback{}, "No snapshots available", nil, true},
		{"List", "/r\n", &fakeRollback{records: records}, "  Step 1: step-1 (5 messages)", nil, true},
		{"ListWithSuffix", "/rfoo\n", &fakeRollback{records: records}, "Available snapshots:", nil, true},
		{"Rollback", "/r 1\n", &fakeRollback{records: records}, "Rolled back to step 1", []int{1}, false},
		{"NotFound", "/r 9\n", &fakeRollback{err: snapshot.ErrNotFound}, "Snapshot for step 9 not found", []int{9}, false},
		{"Unsupported", "/r 0\n", &fakeRollback{err: snapshot.ErrUnsupported}, "Environment does not support rollback", []int{0}, false},
		{"Failed", "/r 0\n", &fakeRollback{err: errors.New("boom")}, "Rollback to step 0 failed", []int{0}, false},
		{"Malformed", "/r one\n", &fakeRollback{}, "Invalid rollback command", nil, true},
		{"ExtraArguments", "/r 0 2\n", &fakeRollback{records: records}, "Rolled back to step 0", []int{0}, false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p, _, out := newTestPrompter(t, ModeConfirm, tc.input+"after\n", tc.rb)
			reply, err := p.Ask(context.Background(), "Execute?\n> ")
			if err != nil {
				t.Fatalf("Ask failed: %v", err)
			}
			if reply.Text != "after" {
				t.Errorf("Expected the prompt to continue after %q, got %q", tc.input, reply.Text)
			}
			if !strings.Contains(out.String(), tc.want) {
				t.Errorf("Output %q does not contain %q", out.String(), tc.want)
			}
			if tc.unasked && len(tc.rb.asked) != 0 {
				t.Errorf("Expected no rollback, got %v", tc.rb.asked)
			}
			if !tc.unasked && (len(tc.rb.asked) != 1 || tc.rb.asked[0] != tc.asked[0]) {
				t.Errorf("Expected rollback to %v, got %v", tc.asked, tc.rb.asked)
			}
			// Re-asks with the plain prompt, not the original question.
			if strings.Count(out.String(), "Execute?") != 1 {
				t.Errorf("Expected the original prompt once, got %q", out.String())
			}
		})
	}
}

func TestAskPropagatesEOF(t *testing.T) {
	p, _, _ := newTestPrompter(t, ModeConfirm, "/h\n", &fakeRollback{})
	if _, err := p.Ask(context.Background(), "> "); err != io.EOF {
		t.Errorf("Expected io.EOF, got %v", err)
	}
}
