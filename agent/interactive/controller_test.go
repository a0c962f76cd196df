package interactive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/m4xw311/steer/agent"
	"github.com/m4xw311/steer/config"
	"github.com/m4xw311/steer/console"
	"github.com/m4xw311/steer/environment"
	"github.com/m4xw311/steer/errors"
	"github.com/m4xw311/steer/llm"
	"github.com/m4xw311/steer/session"
)

const submit = "echo COMPLETE_TASK_AND_SUBMIT_FINAL_OUTPUT"

// fakeEnv records commands and snapshot calls. Running "sleep" raises an
// interrupt and blocks until the step is cancelled.
type fakeEnv struct {
	ran          []string
	snapshots    []string
	restored     []string
	failSnapshot bool
	noRollback   bool
	interrupt    chan<- os.Signal
}

func (f *fakeEnv) Execute(ctx context.Context, command string) (environment.Output, error) {
	f.ran = append(f.ran, command)
	switch command {
	case "sleep":
		f.interrupt <- os.Interrupt
		<-ctx.Done()
		return environment.Output{}, ctx.Err()
	case submit:
		return environment.Output{Output: "COMPLETE_TASK_AND_SUBMIT_FINAL_OUTPUT\n"}, nil
	}
	return environment.Output{Output: "ran " + command + "\n"}, nil
}

func (f *fakeEnv) Capabilities() environment.Capabilities {
	caps := environment.Capabilities{
		Cwd: "/work",
		CreateSnapshot: func(ctx context.Context, name string) error {
			if f.failSnapshot {
				return fmt.Errorf("no space left on device")
			}
			f.snapshots = append(f.snapshots, name)
			return nil
		},
		RollbackSnapshot: func(ctx context.Context, name string) error {
			f.restored = append(f.restored, name)
			return nil
		},
	}
	if f.noRollback {
		caps.RollbackSnapshot = nil
	}
	return caps
}

func bash(cmd string) string {
	return "THOUGHT: step\n\n```bash\n" + cmd + "\n```"
}

type harness struct {
	c   *Controller
	env *fakeEnv
	out *bytes.Buffer
}

func newHarness(t *testing.T, opts Options, input string, env *fakeEnv, responses ...string) *harness {
	t.Helper()
	sess, err := session.New("", "test")
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	cfg := config.Default().Agent
	model := &llm.MockLLMClient{Responses: responses}
	a := agent.New(&cfg, sess, model, env, slog.New(slog.DiscardHandler))

	var out bytes.Buffer
	con := console.New(&out, console.NewPlainReader(strings.NewReader(input), &out))
	c, err := New(a, con, opts)
	if err != nil {
		t.Fatalf("Failed to create controller: %v", err)
	}
	return &harness{c: c, env: env, out: &out}
}

func (h *harness) run(t *testing.T) agent.ExitStatus {
	t.Helper()
	status, err := h.c.Run(context.Background(), "fix the bug")
	if err != nil {
		t.Fatalf("Run failed: %v\noutput:\n%s", err, h.out.String())
	}
	return status
}

func (h *harness) hasMessage(role, content string) bool {
	for _, msg := range h.c.Session.Messages {
		if msg.Role == role && msg.Content == content {
			return true
		}
	}
	return false
}

func TestYoloRunsWithoutAsking(t *testing.T) {
	h := newHarness(t, Options{Mode: ModeYolo}, "", &fakeEnv{}, bash("ls"), bash(submit))
	status := h.run(t)

	if status.Status != agent.StatusSubmitted {
		t.Errorf("Expected Submitted, got %q", status.Status)
	}
	if strings.Join(h.env.ran, ",") != "ls,"+submit {
		t.Errorf("Unexpected commands %v", h.env.ran)
	}
	if strings.Join(h.env.snapshots, ",") != "step-0,step-1" {
		t.Errorf("Unexpected snapshots %v", h.env.snapshots)
	}
	records := h.c.Ledger.Records()
	if len(records) != 2 || records[0].MessageCount != 3 || records[1].MessageCount != 5 {
		t.Errorf("Unexpected records %+v", records)
	}
	if !strings.Contains(h.out.String(), "steer (step 1, $0.00):") {
		t.Errorf("Expected assistant heading in output %q", h.out.String())
	}
}

func TestConfirmationPaths(t *testing.T) {
	env := &fakeEnv{}
	h := newHarness(t, Options{Mode: ModeConfirm, Whitelist: []string{"ls"}},
		"no way\n\n/y\n",
		env, bash("rm -rf x"), bash("ls"), bash("cat f"), bash(submit))
	h.run(t)

	if strings.Join(env.ran, ",") != "ls,cat f,"+submit {
		t.Errorf("Unexpected commands %v", env.ran)
	}
	if !h.hasMessage(session.RoleUser, "Command not executed. The user rejected your command with the following message: no way") {
		t.Errorf("Rejection not in transcript")
	}
	if h.c.Modes.Mode() != ModeYolo {
		t.Errorf("Expected /y at the confirmation to switch to yolo, mode is %s", h.c.Modes.Mode())
	}
	// The rejected command got no checkpoint.
	if strings.Join(env.snapshots, ",") != "step-0,step-1,step-2" {
		t.Errorf("Unexpected snapshots %v", env.snapshots)
	}
	if strings.Count(h.out.String(), "Execute?") != 3 {
		t.Errorf("Expected three confirmations, got output %q", h.out.String())
	}
}

func TestHumanMode(t *testing.T) {
	env := &fakeEnv{}
	h := newHarness(t, Options{Mode: ModeConfirm},
		"/u\necho hi\n/y\n",
		env, bash("rm x"), bash(submit))
	h.run(t)

	if !h.hasMessage(session.RoleUser, "Command not executed. Switching to human mode") {
		t.Errorf("Human mode switch not in transcript")
	}
	if !h.hasMessage(session.RoleAssistant, "\n```bash\necho hi\n```") {
		t.Errorf("Operator command not added as assistant message")
	}
	if strings.Join(env.ran, ",") != "echo hi,"+submit {
		t.Errorf("Unexpected commands %v", env.ran)
	}
	if h.c.Model.Stats().Calls != 2 {
		t.Errorf("Expected the operator's step to bypass the model, got %d calls", h.c.Model.Stats().Calls)
	}
}

func TestConfirmExit(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		runs     int
		task     string
		confirm  bool
		switched bool
	}{
		{"NewTask", "also add tests\n\n", 2, "also add tests", true, false},
		{"Enter", "\n", 1, "", true, false},
		// The token switches to confirm mode and is also the new task, so the
		// second submission is confirmed before the exit prompt.
		{"ModeToken", "/c\n\n\n", 2, "/c", true, true},
		{"Disabled", "", 1, "", false, false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			env := &fakeEnv{}
			h := newHarness(t, Options{Mode: ModeYolo, ConfirmExit: tc.confirm}, tc.input, env, bash(submit), bash(submit))
			status := h.run(t)
			if status.Status != agent.StatusSubmitted {
				t.Errorf("Expected Submitted, got %q", status.Status)
			}
			if len(env.ran) != tc.runs {
				t.Errorf("Expected %d submissions, got %d", tc.runs, len(env.ran))
			}
			if tc.task != "" && !h.hasMessage(session.RoleUser, "The user added a new task: "+tc.task) {
				t.Errorf("Expected new task %q in transcript", tc.task)
			}
			if tc.task == "" && strings.Contains(h.out.String(), "The user added a new task") {
				t.Errorf("Unexpected new task in output:\n%s", h.out.String())
			}
			if tc.switched && h.c.Modes.Mode() != ModeConfirm {
				t.Errorf("Expected mode switch to stick, got %s", h.c.Modes.Mode())
			}
		})
	}
}

func TestSnapshotFailureDoesNotBlockExecution(t *testing.T) {
	env := &fakeEnv{failSnapshot: true}
	h := newHarness(t, Options{Mode: ModeYolo}, "", env, bash("ls"), bash(submit))
	h.run(t)

	if len(env.ran) != 2 {
		t.Errorf("Expected both commands to run, got %v", env.ran)
	}
	if h.c.Ledger.Len() != 0 || h.c.Ledger.Step() != 0 {
		t.Errorf("Ledger changed: len=%d step=%d", h.c.Ledger.Len(), h.c.Ledger.Step())
	}
	if !strings.Contains(h.out.String(), "Warning: Failed to create snapshot") {
		t.Errorf("Expected a warning, got %q", h.out.String())
	}
}

func TestRollbackScenario(t *testing.T) {
	env := &fakeEnv{}
	h := newHarness(t, Options{Mode: ModeConfirm}, "/r 1\n/r\ndone\n", env)
	ctx := context.Background()
	sess := h.c.Session

	for _, count := range []int{2, 5, 9} {
		for sess.Len() < count {
			sess.AddMessage(session.Message{Role: session.RoleUser, Content: "m"})
		}
		h.c.createSnapshot(ctx)
	}
	for sess.Len() < 12 {
		sess.AddMessage(session.Message{Role: session.RoleUser, Content: "m"})
	}

	reply, err := h.c.Prompter.Ask(ctx, "> ")
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if reply.Text != "done" {
		t.Errorf("Expected the prompt to continue, got %q", reply.Text)
	}
	if sess.Len() != 5 {
		t.Errorf("Expected transcript length 5, got %d", sess.Len())
	}
	if _, ok := h.c.Ledger.Find(2); ok {
		t.Errorf("Expected step-2 to be dropped")
	}
	if h.c.Ledger.Len() != 2 || h.c.Ledger.Step() != 2 {
		t.Errorf("Expected 2 records and next step 2, got %d, %d", h.c.Ledger.Len(), h.c.Ledger.Step())
	}
	if strings.Join(env.restored, ",") != "step-1" {
		t.Errorf("Unexpected environment rollbacks %v", env.restored)
	}
	out := h.out.String()
	for _, want := range []string{"Rolled back to step 1", "  Step 0: step-0 (2 messages)", "  Step 1: step-1 (5 messages)"} {
		if !strings.Contains(out, want) {
			t.Errorf("Output %q does not contain %q", out, want)
		}
	}
	if strings.Contains(out, "step-2 (9 messages)") {
		t.Errorf("Dropped record still listed")
	}
}

func TestRollbackFailuresChangeNothing(t *testing.T) {
	testCases := []struct {
		name       string
		input      string
		noRollback bool
		want       string
	}{
		{"Missing", "/r 7\n", false, "Snapshot for step 7 not found"},
		{"Unsupported", "/r 0\n", true, "Environment does not support rollback"},
		{"Malformed", "/r x\n", false, "Invalid rollback command"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			env := &fakeEnv{noRollback: tc.noRollback}
			h := newHarness(t, Options{Mode: ModeConfirm}, tc.input+"ok\n", env)
			ctx := context.Background()
			h.c.Session.AddMessage(session.Message{Role: session.RoleUser, Content: "m"})
			h.c.createSnapshot(ctx)
			h.c.Session.AddMessage(session.Message{Role: session.RoleUser, Content: "m"})

			if _, err := h.c.Prompter.Ask(ctx, "> "); err != nil {
				t.Fatalf("Ask failed: %v", err)
			}
			if h.c.Session.Len() != 2 || h.c.Ledger.Len() != 1 || h.c.Ledger.Step() != 1 {
				t.Errorf("State changed: transcript=%d records=%d step=%d", h.c.Session.Len(), h.c.Ledger.Len(), h.c.Ledger.Step())
			}
			if len(env.restored) != 0 {
				t.Errorf("Unexpected environment rollbacks %v", env.restored)
			}
			if !strings.Contains(h.out.String(), tc.want) {
				t.Errorf("Output %q does not contain %q", h.out.String(), tc.want)
			}
		})
	}
}

func TestRollbackAtConfirmationAbortsAction(t *testing.T) {
	env := &fakeEnv{}
	h := newHarness(t, Options{Mode: ModeConfirm, Whitelist: []string{"ls"}},
		"/r 0\n\n/y\n",
		env, bash("ls"), bash("rm x"), bash(submit))
	h.run(t)

	if strings.Join(env.ran, ",") != "ls,"+submit {
		t.Errorf("Unexpected commands %v", env.ran)
	}
	if strings.Join(env.restored, ",") != "step-0" {
		t.Errorf("Unexpected environment rollbacks %v", env.restored)
	}
	// system, instance, ls proposal, abort notice, ...
	msgs := h.c.Session.Messages
	if msgs[2].Content != bash("ls") || !strings.HasPrefix(msgs[3].Content, "Command not executed. The user rolled back") {
		t.Errorf("Unexpected transcript after rollback: %q, %q", msgs[2].Content, msgs[3].Content)
	}
}

func TestInterruptionRestoresStep(t *testing.T) {
	interrupts := make(chan os.Signal, 1)
	env := &fakeEnv{interrupt: interrupts}
	h := newHarness(t, Options{Mode: ModeYolo, Interrupts: interrupts},
		"stop that\n",
		env, bash("ls"), bash("ls"), bash("ls"), bash("ls"), bash("sleep"), bash("pwd"), bash(submit))
	h.run(t)

	if strings.Join(env.restored, ",") != "step-4" {
		t.Errorf("Expected the interrupted step's checkpoint to be restored, got %v", env.restored)
	}
	wantSnapshots := "step-0,step-1,step-2,step-3,step-4,step-4,step-5"
	if strings.Join(env.snapshots, ",") != wantSnapshots {
		t.Errorf("Expected %s, got %v", wantSnapshots, env.snapshots)
	}

	msgs := h.c.Session.Messages
	// system + instance + 4 steps of (assistant, observation)
	if msgs[10].Content != "Interrupted by user: stop that" {
		t.Errorf("Expected interruption message at index 10, got %q", msgs[10].Content)
	}
	for _, msg := range msgs {
		if strings.Contains(msg.Content, "```bash\nsleep") {
			t.Errorf("Interrupted action left in transcript")
		}
	}
	rec, ok := h.c.Ledger.Find(4)
	if !ok || rec.MessageCount != 12 {
		t.Errorf("Expected step 4 to be retaken with 12 messages, got %+v, %v", rec, ok)
	}
	if h.c.Ledger.Len() != 6 {
		t.Errorf("Expected 6 records, got %d", h.c.Ledger.Len())
	}
}

func TestInterruptionDefaultMessage(t *testing.T) {
	for _, input := range []string{"\n", "/c\n\n"} {
		interrupts := make(chan os.Signal, 1)
		env := &fakeEnv{interrupt: interrupts}
		h := newHarness(t, Options{Mode: ModeYolo, Interrupts: interrupts}, input, env, bash("sleep"), bash(submit))
		h.run(t)
		if !h.hasMessage(session.RoleUser, "Interrupted by user: Temporary interruption caught.") {
			t.Errorf("Input %q: expected default interruption message", input)
		}
	}
}

func TestInterruptBetweenStepsIsDropped(t *testing.T) {
	interrupts := make(chan os.Signal, 1)
	interrupts <- os.Interrupt
	env := &fakeEnv{}
	h := newHarness(t, Options{Mode: ModeYolo, Interrupts: interrupts}, "", env, bash("ls"), bash(submit))
	var logs bytes.Buffer
	h.c.Logger = slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	h.run(t)
	if len(env.ran) != 2 {
		t.Errorf("Expected both actions to run, got %v", env.ran)
	}
	for _, msg := range h.c.Session.Messages {
		if strings.HasPrefix(msg.Content, "Interrupted by user") {
			t.Errorf("Pending interrupt interrupted a step: %q", msg.Content)
		}
	}
	if !strings.Contains(logs.String(), "interrupt between steps ignored") {
		t.Errorf("Expected the dropped interrupt to be logged, got %q", logs.String())
	}
}

func TestLimitsExceededAsksForNewLimits(t *testing.T) {
	env := &fakeEnv{}
	h := newHarness(t, Options{Mode: ModeYolo}, "many\n5\n1.5\n", env, bash("ls"), bash(submit))
	h.c.Config.StepLimit = 1

	status := h.run(t)
	if status.Status != agent.StatusSubmitted {
		t.Errorf("Expected Submitted, got %q", status.Status)
	}
	if h.c.Config.StepLimit != 5 || h.c.Config.CostLimit != 1.5 {
		t.Errorf("Limits not updated: %d, %v", h.c.Config.StepLimit, h.c.Config.CostLimit)
	}
	out := h.out.String()
	for _, want := range []string{"Limits exceeded. Limits: 1 steps, $3.", "Current spend: 1 steps, $0.00.", `Not a number: "many"`} {
		if !strings.Contains(out, want) {
			t.Errorf("Output %q does not contain %q", out, want)
		}
	}
}

func TestEndOfInputIsFatal(t *testing.T) {
	h := newHarness(t, Options{Mode: ModeHuman}, "", &fakeEnv{})
	_, err := h.c.Run(context.Background(), "task")
	if !errors.Is(err, io.EOF) {
		t.Errorf("Expected io.EOF, got %v", err)
	}
}
