package agent

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/m4xw311/steer/config"
	"github.com/m4xw311/steer/environment"
	"github.com/m4xw311/steer/errors"
	"github.com/m4xw311/steer/llm"
	"github.com/m4xw311/steer/session"
)

// Stages are the steps of the loop a wrapper may replace. Agent dispatches
// through them, so an override of Query is also used by the base Step.
type Stages interface {
	Step(ctx context.Context) (environment.Output, error)
	Query(ctx context.Context) (session.Message, error)
	ExecuteAction(ctx context.Context, action string) (environment.Output, error)
	HasFinished(ctx context.Context, output environment.Output) error
}

// Callbacks let an interaction mode observe the loop.
type Callbacks struct {
	// OnMessage is called after a message has been added to the transcript.
	OnMessage func(msg session.Message)
	// OnWarning reports non-fatal problems such as a failed session save.
	OnWarning func(warning string)
}

type Agent struct {
	Config    *config.Agent
	Session   *session.Session
	Model     llm.Model
	Env       environment.Environment
	Callbacks Callbacks
	Logger    *slog.Logger

	stages Stages
}

var actionRegex = regexp.MustCompile("(?s)```bash\\s*\\n(.*?)\\n```")

// Output lines that mark the end of the task.
var submitMarkers = []string{"COMPLETE_TASK_AND_SUBMIT_FINAL_OUTPUT", "MINI_SWE_AGENT_FINAL_OUTPUT"}

func New(cfg *config.Agent, sess *session.Session, model llm.Model, env environment.Environment, logger *slog.Logger) *Agent {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Agent{
		Config:  cfg,
		Session: sess,
		Model:   model,
		Env:     env,
		Logger:  logger,
	}
	a.stages = a
	return a
}

// SetStages makes the loop dispatch to s. Passing nil restores the defaults.
func (a *Agent) SetStages(s Stages) {
	if s == nil {
		s = a
	}
	a.stages = s
}

// Run starts a new episode for task and loops until it terminates.
func (a *Agent) Run(ctx context.Context, task string) (ExitStatus, error) {
	a.Session.Reset()
	a.Session.Task = task

	system, err := render("system", a.Config.SystemTemplate, nil)
	if err != nil {
		return ExitStatus{}, err
	}
	instance, err := render("instance", a.Config.InstanceTemplate, struct{ Task string }{task})
	if err != nil {
		return ExitStatus{}, err
	}
	a.AddMessage(session.RoleSystem, system)
	a.AddMessage(session.RoleUser, instance)
	return a.Continue(ctx)
}

// Continue loops on the current transcript until the episode terminates.
// Recoverable errors are folded into the transcript, terminating ones end
// the loop with an exit status, and anything else is returned.
func (a *Agent) Continue(ctx context.Context) (ExitStatus, error) {
	for {
		_, err := a.stages.Step(ctx)
		status, done, err := a.handleStepError(err)
		a.save()
		if done || err != nil {
			return status, err
		}
	}
}

func (a *Agent) handleStepError(err error) (ExitStatus, bool, error) {
	if err == nil {
		return ExitStatus{}, false, nil
	}
	var nonTerminating *NonTerminatingError
	if errors.As(err, &nonTerminating) {
		a.AddMessage(session.RoleUser, nonTerminating.Message)
		return ExitStatus{}, false, nil
	}
	var submitted *SubmittedError
	if errors.As(err, &submitted) {
		a.AddMessage(session.RoleUser, submitted.Output)
		a.Session.Info.ExitStatus = StatusSubmitted
		a.Session.Info.Submission = submitted.Output
		return ExitStatus{Status: StatusSubmitted, Message: submitted.Output}, true, nil
	}
	var limits *LimitsExceededError
	if errors.As(err, &limits) {
		a.AddMessage(session.RoleUser, limits.Error())
		a.Session.Info.ExitStatus = StatusLimitsExceeded
		return ExitStatus{Status: StatusLimitsExceeded, Message: limits.Error()}, true, nil
	}
	return ExitStatus{}, true, err
}

func (a *Agent) save() {
	stats := a.Model.Stats()
	a.Session.Info.ModelCalls = stats.Calls
	a.Session.Info.ModelCost = stats.Cost
	if err := a.Session.Save(); err != nil {
		a.warn("failed to save session: " + err.Error())
	}
}

// Step queries the model, executes the action it proposes and adds the
// observation to the transcript.
func (a *Agent) Step(ctx context.Context) (environment.Output, error) {
	msg, err := a.stages.Query(ctx)
	if err != nil {
		return environment.Output{}, err
	}
	action, err := a.ParseAction(msg)
	if err != nil {
		return environment.Output{}, err
	}
	output, err := a.stages.ExecuteAction(ctx, action)
	if err != nil {
		return output, err
	}
	observation, err := render("action_observation", a.Config.ActionObservationTemplate, struct{ Output environment.Output }{output})
	if err != nil {
		return output, err
	}
	a.AddMessage(session.RoleUser, observation)
	return output, nil
}

// Query asks the model for the next message, unless a limit has been reached.
func (a *Agent) Query(ctx context.Context) (session.Message, error) {
	stats := a.Model.Stats()
	if (0 < a.Config.StepLimit && a.Config.StepLimit <= stats.Calls) ||
		(0 < a.Config.CostLimit && a.Config.CostLimit <= stats.Cost) {
		return session.Message{}, &LimitsExceededError{
			StepLimit: a.Config.StepLimit,
			CostLimit: a.Config.CostLimit,
			Calls:     stats.Calls,
			Cost:      stats.Cost,
		}
	}
	msg, err := a.Model.Query(ctx, a.Session.Messages)
	if err != nil {
		return session.Message{}, errors.Wrapf(err, "model query failed")
	}
	a.AddMessage(session.RoleAssistant, msg.Content)
	return msg, nil
}

// ParseAction extracts the single bash block from a model message.
func (a *Agent) ParseAction(msg session.Message) (string, error) {
	matches := actionRegex.FindAllStringSubmatch(msg.Content, -1)
	if len(matches) == 1 {
		return strings.TrimSpace(matches[0][1]), nil
	}
	actions := make([]string, len(matches))
	for i, m := range matches {
		actions[i] = m[1]
	}
	text, err := render("format_error", a.Config.FormatErrorTemplate, struct{ Actions []string }{actions})
	if err != nil {
		return "", err
	}
	return "", &NonTerminatingError{Message: text}
}

// ExecuteAction runs action in the environment and checks whether it ended
// the task.
func (a *Agent) ExecuteAction(ctx context.Context, action string) (environment.Output, error) {
	output, err := a.Env.Execute(ctx, action)
	if err != nil {
		var timeout *environment.TimeoutError
		if !errors.As(err, &timeout) {
			return output, err
		}
		text, rerr := render("timeout", a.Config.TimeoutTemplate, struct{ Action, Output string }{action, timeout.Output})
		if rerr != nil {
			return output, rerr
		}
		return output, &NonTerminatingError{Message: text}
	}
	if err := a.stages.HasFinished(ctx, output); err != nil {
		return output, err
	}
	return output, nil
}

// HasFinished returns a *SubmittedError when the first line of the output
// is a submit marker. The rest of the output is the submission.
func (a *Agent) HasFinished(ctx context.Context, output environment.Output) error {
	text := strings.TrimLeft(output.Output, " \t\r\n")
	if text == "" {
		return nil
	}
	first, rest, _ := strings.Cut(text, "\n")
	first = strings.TrimSpace(first)
	for _, marker := range submitMarkers {
		if first == marker {
			return &SubmittedError{Output: rest}
		}
	}
	return nil
}

// AddMessage appends a message to the transcript and notifies the callbacks.
func (a *Agent) AddMessage(role, content string) {
	msg := session.Message{Role: role, Content: content}
	a.Session.AddMessage(msg)
	if a.Callbacks.OnMessage != nil {
		a.Callbacks.OnMessage(msg)
	}
}

func (a *Agent) warn(warning string) {
	a.Logger.Warn(warning)
	if a.Callbacks.OnWarning != nil {
		a.Callbacks.OnWarning(warning)
	}
}
