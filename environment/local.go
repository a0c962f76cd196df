package environment

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/m4xw311/steer/config"
	"github.com/m4xw311/steer/errors"
)

// Snapshotter captures and restores the working tree under a name.
type Snapshotter interface {
	Create(ctx context.Context, name string) error
	Restore(ctx context.Context, name string) error
}

// Local runs commands with bash on the host.
type Local struct {
	cwd       string
	env       []string
	timeout   time.Duration
	snapshots Snapshotter
}

// NewLocal creates a local environment. Snapshots for the session are kept
// under <store>/<sessionID> using the configured backend.
func NewLocal(cfg config.Environment, sessionID string) (*Local, error) {
	l := &Local{
		cwd:     cfg.Cwd,
		timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
	}
	for k, v := range cfg.Env {
		l.env = append(l.env, k+"="+v)
	}

	if cfg.Cwd == "" {
		return l, nil
	}
	store := filepath.Join(cfg.Snapshot.Store, sessionID)
	switch cfg.Snapshot.Backend {
	case "", "none":
	case "copy":
		l.snapshots = NewCopySnapshotter(cfg.Cwd, store, cfg.Snapshot.Exclude)
	case "git":
		l.snapshots = NewGitSnapshotter(cfg.Cwd, store, cfg.Snapshot.Exclude)
	default:
		return nil, errors.New("unknown snapshot backend '%s'", cfg.Snapshot.Backend)
	}
	return l, nil
}

// Execute runs command in a fresh bash process. A non-zero exit status is
// reported through Output.ReturnCode, not as an error.
func (l *Local) Execute(ctx context.Context, command string) (Output, error) {
	runCtx := ctx
	if l.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, "bash", "-c", command)
	cmd.Dir = l.cwd
	cmd.Env = append(os.Environ(), l.env...)
	cmd.WaitDelay = time.Second

	output, err := cmd.CombinedOutput()
	if ctx.Err() != nil {
		return Output{Output: string(output)}, errors.Wrapf(ctx.Err(), "command cancelled")
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return Output{}, &TimeoutError{Command: command, Output: string(output)}
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return Output{Output: string(output), ReturnCode: exitErr.ExitCode()}, nil
		}
		return Output{}, errors.Wrapf(err, "command execution failed")
	}
	return Output{Output: string(output)}, nil
}

func (l *Local) Capabilities() Capabilities {
	caps := Capabilities{Cwd: l.cwd}
	if l.snapshots != nil {
		caps.CreateSnapshot = l.snapshots.Create
		caps.RollbackSnapshot = l.snapshots.Restore
	}
	return caps
}
