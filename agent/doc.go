// Package agent provides the core agent loop for the Steer system.
//
// The loop asks a language model for exactly one bash command per step, runs
// it in an environment and feeds the output back as the next user message,
// until the command output starts with a submit marker or a limit is reached.
//
// # Architecture
//
// The agent package is organized into two components:
//
//   - Core agent (this package): the Agent type, the prompt templates and the
//     typed errors used as control signals
//   - Interactive subpackage (agent/interactive): puts a human operator into
//     the loop with confirmation modes and snapshot rollback
//
// # Stages
//
// Every step is dispatched through the Stages interface:
//
//   - Step: one query, parse, execute and observe cycle
//   - Query: limit check, then the model call
//   - ExecuteAction: the environment call, then HasFinished
//   - HasFinished: detects the submit marker
//
// By default an Agent dispatches to itself. A wrapper embeds *Agent, overrides
// the stages it needs and installs itself with SetStages. The overrides call
// the embedded methods for the base behavior:
//
//	type Wrapper struct {
//	    *agent.Agent
//	}
//
//	func (w *Wrapper) Query(ctx context.Context) (session.Message, error) {
//	    // do something first
//	    return w.Agent.Query(ctx)
//	}
//
//	a := agent.New(&cfg.Agent, sess, model, env, logger)
//	w := &Wrapper{Agent: a}
//	a.SetStages(w)
//	status, err := a.Run(ctx, task)
//
// # Control signals
//
// Stages end a step early by returning one of the typed errors:
//
//   - *NonTerminatingError: the message is added to the transcript and the
//     loop continues
//   - *SubmittedError, *LimitsExceededError: the episode ends with an
//     ExitStatus
//
// Any other error is returned from Run.
//
// # Callbacks
//
// The Callbacks structure lets an interaction mode observe the loop (print
// messages as they are added, surface warnings) without changing it.
package agent
