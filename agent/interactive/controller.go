package interactive

import (
	"context"
	"os"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/m4xw311/steer/agent"
	"github.com/m4xw311/steer/console"
	"github.com/m4xw311/steer/environment"
	"github.com/m4xw311/steer/errors"
	"github.com/m4xw311/steer/session"
	"github.com/m4xw311/steer/snapshot"
)

// Options configure a Controller.
type Options struct {
	Mode        Mode
	Whitelist   []string
	ConfirmExit bool
	// Interrupts delivers operator interrupts, usually from signal.Notify.
	// A nil channel disables interruption.
	Interrupts <-chan os.Signal
	// Name is shown in the heading of model messages.
	Name string
}

// Controller puts an operator into the agent loop. It overrides the loop's
// stages and keeps the snapshot ledger in step with the transcript.
type Controller struct {
	*agent.Agent

	Console     *console.Console
	Modes       *ModeController
	Ledger      *snapshot.Ledger
	Prompter    *Prompter
	ConfirmExit bool
	Name        string

	interrupts <-chan os.Signal
	// rollbacks counts successful operator rollbacks, so a step can tell
	// whether one happened while it was running.
	rollbacks int
}

// New wraps a and installs the controller as its stages and callbacks.
func New(a *agent.Agent, con *console.Console, opts Options) (*Controller, error) {
	modes, err := NewModeController(opts.Mode, opts.Whitelist)
	if err != nil {
		return nil, err
	}
	name := opts.Name
	if name == "" {
		name = "steer"
	}
	c := &Controller{
		Agent:       a,
		Console:     con,
		Modes:       modes,
		Ledger:      &snapshot.Ledger{},
		ConfirmExit: opts.ConfirmExit,
		Name:        name,
		interrupts:  opts.Interrupts,
	}
	c.Prompter = NewPrompter(con, modes, c)
	a.SetStages(c)
	a.Callbacks.OnMessage = c.printMessage
	a.Callbacks.OnWarning = func(warning string) {
		con.Warn("Warning: %s", warning)
	}
	return c, nil
}

func (c *Controller) printMessage(msg session.Message) {
	if msg.Role == session.RoleAssistant {
		stats := c.Model.Stats()
		c.Console.AgentHeader(c.Name, stats.Calls, stats.Cost)
		c.Console.Markdown(msg.Content)
		return
	}
	c.Console.RoleHeader(msg.Role)
	c.Console.Println(msg.Content)
}

// Query lets the operator type the command in human mode, and offers to
// raise the limits when they have been reached.
func (c *Controller) Query(ctx context.Context) (session.Message, error) {
	if c.Modes.Mode() == ModeHuman {
		reply, err := c.Prompter.Ask(ctx, plainPrompt)
		if err != nil {
			return session.Message{}, err
		}
		// A switch to yolo or confirm hands the step back to the model.
		if !reply.Switched() {
			content := "\n```bash\n" + reply.Text + "\n```"
			c.AddMessage(session.RoleAssistant, content)
			return session.Message{Role: session.RoleAssistant, Content: content}, nil
		}
	}

	msg, err := c.Agent.Query(ctx)
	var limits *agent.LimitsExceededError
	if !errors.As(err, &limits) {
		return msg, err
	}
	c.Console.Printf("Limits exceeded. Limits: %d steps, $%s.\nCurrent spend: %d steps, $%.2f.\n",
		limits.StepLimit, strconv.FormatFloat(limits.CostLimit, 'f', -1, 64), limits.Calls, limits.Cost)
	stepLimit, err := askNumber(c.Console, "New step limit: ", strconv.Atoi)
	if err != nil {
		return session.Message{}, err
	}
	costLimit, err := askNumber(c.Console, "New cost limit: ", func(s string) (float64, error) {
		return strconv.ParseFloat(s, 64)
	})
	if err != nil {
		return session.Message{}, err
	}
	c.Config.StepLimit = stepLimit
	c.Config.CostLimit = costLimit
	c.Logger.Info("limits raised", "step_limit", stepLimit, "cost_limit", costLimit)
	return c.Agent.Query(ctx)
}

func askNumber[T any](con *console.Console, text string, parse func(string) (T, error)) (T, error) {
	for {
		input, err := con.Prompt(text)
		if err != nil {
			var zero T
			return zero, err
		}
		v, err := parse(strings.TrimSpace(input))
		if err == nil {
			return v, nil
		}
		con.Fail("Not a number: %q", input)
	}
}

// Step runs one step of the base loop. An interrupt during the step cancels
// it, puts the transcript, the ledger and the environment back where they
// were when the step began, and asks the operator for a comment.
func (c *Controller) Step(ctx context.Context) (environment.Output, error) {
	c.Console.Rule()
	c.drainInterrupts()

	messages, mark, rollbacks := c.Session.Len(), c.Ledger.Mark(), c.rollbacks

	stepCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	var interrupted atomic.Bool
	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		select {
		case <-c.interrupts:
			interrupted.Store(true)
			cancel()
		case <-done:
		}
	}()

	output, err := c.Agent.Step(stepCtx)
	close(done)
	<-stopped
	if !interrupted.Load() {
		return output, err
	}

	c.Logger.Info("step interrupted", "step", c.Ledger.Step(), "error", err)
	if c.rollbacks == rollbacks {
		c.restore(ctx, messages, mark)
	}

	reply, perr := c.Prompter.Ask(ctx, "\n\n"+c.Console.Accent("Interrupted.")+" "+
		c.Console.Good("Type a comment/command")+" (/h for available commands)\n"+plainPrompt)
	if perr != nil {
		return environment.Output{}, perr
	}
	comment := strings.TrimSpace(reply.Text)
	if comment == "" || reply.Switched() {
		comment = "Temporary interruption caught."
	}
	return environment.Output{}, agent.NonTerminating("Interrupted by user: %s", comment)
}

// restore undoes a step that was cut short. If the step took a checkpoint the
// environment goes back to it; a step without one ran no command.
func (c *Controller) restore(ctx context.Context, messages int, mark snapshot.Mark) {
	if taken := c.Ledger.Since(mark); len(taken) > 0 {
		if caps := c.Env.Capabilities(); caps.CanRollback() {
			if err := caps.RollbackSnapshot(ctx, taken[0].Name); err != nil {
				c.Logger.Warn("failed to restore interrupted step", "snapshot", taken[0].Name, "error", err)
				c.Console.Warn("Warning: Failed to restore snapshot %s: %v", taken[0].Name, err)
			}
		}
		c.Ledger.Reset(mark)
	}
	if c.Session.Len() > messages {
		// Cannot fail: messages is within the current length.
		_ = c.Session.Truncate(messages)
	}
}

// drainInterrupts discards interrupts that arrived between steps. There is
// no step to cancel, so they are only logged.
func (c *Controller) drainInterrupts() {
	for {
		select {
		case sig := <-c.interrupts:
			c.Logger.Debug("interrupt between steps ignored", "signal", sig)
		default:
			return
		}
	}
}

// ExecuteAction asks for confirmation when the mode requires it, takes a
// checkpoint and runs the action.
func (c *Controller) ExecuteAction(ctx context.Context, action string) (environment.Output, error) {
	if c.Modes.ShouldConfirm(action) {
		rollbacks := c.rollbacks
		if err := c.AskConfirmation(ctx); err != nil {
			return environment.Output{}, err
		}
		// The action belongs to a transcript the operator has just rolled back.
		if c.rollbacks != rollbacks {
			return environment.Output{}, agent.NonTerminating("Command not executed. The user rolled back to an earlier step.")
		}
	}
	c.createSnapshot(ctx)
	return c.Agent.ExecuteAction(ctx, action)
}

// AskConfirmation returns nil when the operator approves the pending action
// and a *agent.NonTerminatingError explaining the refusal otherwise.
func (c *Controller) AskConfirmation(ctx context.Context) error {
	reply, err := c.Prompter.Ask(ctx, c.Console.Accent("Execute?")+" "+
		c.Console.Good("Enter to confirm")+", or "+c.Console.Good("Type a comment/command")+
		" (/h for available commands)\n"+plainPrompt)
	if err != nil {
		return err
	}
	switch input := strings.TrimSpace(reply.Text); input {
	case "", "/y":
		return nil
	case "/u":
		return agent.NonTerminating("Command not executed. Switching to human mode")
	default:
		return agent.NonTerminating("Command not executed. The user rejected your command with the following message: %s", input)
	}
}

func (c *Controller) createSnapshot(ctx context.Context) {
	rec, ok, err := c.Ledger.Checkpoint(ctx, c.Env.Capabilities(), c.Session.Len())
	if err != nil {
		c.Logger.Warn("snapshot failed", "step", c.Ledger.Step(), "error", err)
		c.Console.Warn("Warning: Failed to create snapshot: %v", err)
		return
	}
	if ok {
		c.Logger.Debug("snapshot created", "name", rec.Name, "messages", rec.MessageCount)
	}
}

// HasFinished asks the operator before letting a submission end the
// episode. Any non-blank reply, a mode token included, gives the agent a new
// task instead.
func (c *Controller) HasFinished(ctx context.Context, output environment.Output) error {
	err := c.Agent.HasFinished(ctx, output)
	var submitted *agent.SubmittedError
	if !errors.As(err, &submitted) || !c.ConfirmExit {
		return err
	}
	reply, perr := c.Prompter.Ask(ctx, c.Console.Good("Agent wants to finish.")+" "+
		"Type a comment to give it a new task or press enter to quit.\n"+plainPrompt)
	if perr != nil {
		return perr
	}
	if task := strings.TrimSpace(reply.Text); task != "" {
		return agent.NonTerminating("The user added a new task: %s", task)
	}
	return err
}

// Snapshots returns the ledger's records.
func (c *Controller) Snapshots() []snapshot.Record {
	return c.Ledger.Records()
}

// RollbackTo reverts the environment and the transcript to the checkpoint
// taken at step.
func (c *Controller) RollbackTo(ctx context.Context, step int) (snapshot.Record, error) {
	rec, err := c.Ledger.Rollback(ctx, c.Env.Capabilities(), c.Session, step)
	if err != nil {
		c.Logger.Warn("rollback failed", "step", step, "error", err)
		return rec, err
	}
	c.rollbacks++
	c.Logger.Info("rolled back", "step", step, "messages", rec.MessageCount)
	return rec, nil
}
