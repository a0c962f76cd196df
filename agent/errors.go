package agent

import "fmt"

// NonTerminatingError ends the current step but not the episode. Run adds
// its message to the transcript as a user message and keeps looping.
type NonTerminatingError struct {
	Message string
}

func (e *NonTerminatingError) Error() string {
	return e.Message
}

// NonTerminating returns a *NonTerminatingError with a formatted message.
func NonTerminating(format string, args ...any) error {
	return &NonTerminatingError{Message: fmt.Sprintf(format, args...)}
}

// SubmittedError is returned by HasFinished when the agent hands in its
// final output. It ends the episode.
type SubmittedError struct {
	Output string
}

func (e *SubmittedError) Error() string {
	return e.Output
}

// LimitsExceededError is returned by Query when the step or cost limit has
// been reached. It ends the episode.
type LimitsExceededError struct {
	StepLimit int
	CostLimit float64
	Calls     int
	Cost      float64
}

func (e *LimitsExceededError) Error() string {
	return fmt.Sprintf("limits exceeded: %d/%d steps, $%.2f/$%.2f", e.Calls, e.StepLimit, e.Cost, e.CostLimit)
}

// ExitStatus is how an episode ended.
type ExitStatus struct {
	Status  string
	Message string
}

const (
	StatusSubmitted      = "Submitted"
	StatusLimitsExceeded = "LimitsExceeded"
)
