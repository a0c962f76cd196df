package interactive

import (
	"context"
	"strconv"
	"strings"

	"github.com/m4xw311/steer/console"
	"github.com/m4xw311/steer/errors"
	"github.com/m4xw311/steer/snapshot"
)

// Reply is what the operator answered. Token is set when the answer was a
// mode switch that took effect; Text is then the token itself.
type Reply struct {
	Text  string
	Token string
}

// Switched reports whether the reply changed the mode.
func (r Reply) Switched() bool { return r.Token != "" }

// RollbackHandler serves the /r commands.
type RollbackHandler interface {
	Snapshots() []snapshot.Record
	RollbackTo(ctx context.Context, step int) (snapshot.Record, error)
}

// Prompter reads operator input and handles the meta commands, re-asking
// until the operator gives a plain line or switches mode.
type Prompter struct {
	console  *console.Console
	modes    *ModeController
	rollback RollbackHandler
}

func NewPrompter(con *console.Console, modes *ModeController, rollback RollbackHandler) *Prompter {
	return &Prompter{console: con, modes: modes, rollback: rollback}
}

const plainPrompt = "> "

// Ask shows text and returns the first reply that is not a meta command.
func (p *Prompter) Ask(ctx context.Context, text string) (Reply, error) {
	current := text
	for {
		input, err := p.console.Prompt(current)
		if err != nil {
			return Reply{}, err
		}
		switch {
		case input == "/h":
			p.printHelp()
			current = text
		case strings.HasPrefix(input, "/r"):
			p.handleRollback(ctx, input)
			current = plainPrompt
		default:
			mode, ok := ModeForToken(input)
			if !ok {
				return Reply{Text: input}, nil
			}
			if !p.modes.Set(mode) {
				current = p.console.Bad("Already in "+string(mode)+" mode.") + "\n" + text
				continue
			}
			p.console.Printf("Switched to %s mode.\n", p.console.Good(string(mode)))
			return Reply{Text: input, Token: input}, nil
		}
	}
}

func (p *Prompter) printHelp() {
	c := p.console
	c.Printf("Current mode: %s\n", c.Good(string(p.modes.Mode())))
	c.Printf("%s to switch to %s mode (execute LM commands without confirmation)\n", c.Good("/y"), c.Accent("yolo"))
	c.Printf("%s to switch to %s mode (ask for confirmation before executing LM commands)\n", c.Good("/c"), c.Accent("confirmation"))
	c.Printf("%s to switch to %s mode (execute commands issued by the user)\n", c.Good("/u"), c.Accent("human"))
	c.Printf("%s to list available snapshots\n", c.Good("/r"))
	c.Printf("%s to rollback to step N\n", c.Good("/r N"))
}

func (p *Prompter) handleRollback(ctx context.Context, input string) {
	parts := strings.Fields(input)
	if len(parts) == 1 {
		p.listSnapshots()
		return
	}

	step, err := strconv.Atoi(parts[1])
	if err != nil {
		p.console.Fail("Invalid rollback command. Use /r to list snapshots or /r N to rollback to step N")
		return
	}
	_, err = p.rollback.RollbackTo(ctx, step)
	switch {
	case err == nil:
		p.console.Success("Rolled back to step %d", step)
	case errors.Is(err, snapshot.ErrNotFound):
		p.console.Fail("Snapshot for step %d not found", step)
	case errors.Is(err, snapshot.ErrUnsupported):
		p.console.Fail("Environment does not support rollback")
	default:
		p.console.Fail("Rollback to step %d failed: %v", step, err)
	}
}

func (p *Prompter) listSnapshots() {
	records := p.rollback.Snapshots()
	if len(records) == 0 {
		p.console.Warn("No snapshots available")
		return
	}
	p.console.Success("Available snapshots:")
	for _, r := range records {
		p.console.Printf("  Step %d: %s (%d messages)\n", r.StepNumber, r.Name, r.MessageCount)
	}
}
