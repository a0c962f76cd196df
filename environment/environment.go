// Package environment runs agent actions and, where the backend allows it,
// captures and restores named snapshots of the working tree.
package environment

import (
	"context"
	"fmt"
)

// Output is the result of one executed command.
type Output struct {
	Output     string `json:"output"`
	ReturnCode int    `json:"returncode"`
}

// Environment executes shell commands on behalf of the agent.
type Environment interface {
	Execute(ctx context.Context, command string) (Output, error)
	Capabilities() Capabilities
}

// Capabilities describes the optional features of an Environment. A nil
// function means the feature is not supported.
type Capabilities struct {
	Cwd              string
	CreateSnapshot   func(ctx context.Context, name string) error
	RollbackSnapshot func(ctx context.Context, name string) error
}

// CanSnapshot reports whether checkpoints should be taken: the backend must
// support them and a working directory must be configured.
func (c Capabilities) CanSnapshot() bool {
	return c.CreateSnapshot != nil && c.Cwd != ""
}

// CanRollback reports whether named snapshots can be restored.
func (c Capabilities) CanRollback() bool {
	return c.RollbackSnapshot != nil
}

// TimeoutError is returned when a command exceeds the configured timeout.
// Output holds whatever the command printed before it was killed.
type TimeoutError struct {
	Command string
	Output  string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("command %q timed out", e.Command)
}
