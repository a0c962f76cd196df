package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/m4xw311/steer/agent"
	"github.com/m4xw311/steer/agent/interactive"
	"github.com/m4xw311/steer/config"
	"github.com/m4xw311/steer/console"
	"github.com/m4xw311/steer/environment"
	"github.com/m4xw311/steer/environment/mcp"
	"github.com/m4xw311/steer/errors"
	"github.com/m4xw311/steer/llm"
	"github.com/m4xw311/steer/session"
	"github.com/spf13/cobra"
)

type options struct {
	configFile      string
	mode            string
	model           string
	llmClient       string
	cwd             string
	yolo            bool
	exitImmediately bool
	costLimit       float64
	stepLimit       int
	sessionName     string
	resume          string
	logLevel        string

	// newConsole builds the operator console once the history file is known.
	newConsole func(historyFile string) *console.Console
	logOutput  io.Writer
}

func main() {
	opts := &options{newConsole: console.Open, logOutput: os.Stderr}
	if err := newRootCmd(opts).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %+v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "steer [task...]",
		Short: "Run a command-executing agent with a human in the loop",
		Long: `steer asks a language model for one shell command at a time and runs it
in your working directory. Depending on the mode you confirm each command
(confirm), let the model run freely (yolo) or type the commands yourself
(human). Before every command the working tree is checkpointed, and /r N
rolls both the files and the conversation back to step N.`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, args)
		},
	}

	f := cmd.Flags()
	cmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "additional config file applied after ~/.steer and ./.steer")
	f.StringVar(&opts.mode, "mode", "", "initial mode: 'human', 'confirm' or 'yolo'")
	f.BoolVarP(&opts.yolo, "yolo", "y", false, "start in yolo mode")
	f.StringVarP(&opts.model, "model", "m", "", "model name")
	f.StringVar(&opts.llmClient, "llm", "", "model provider: 'anthropic', 'openai', 'gemini', 'bedrock' or 'mock'")
	f.StringVar(&opts.cwd, "cwd", "", "working directory for commands (default: current directory)")
	f.BoolVar(&opts.exitImmediately, "exit-immediately", false, "end the episode as soon as the agent submits")
	f.Float64Var(&opts.costLimit, "cost-limit", 0, "cost limit in dollars (0 disables)")
	f.IntVar(&opts.stepLimit, "step-limit", 0, "step limit (0 disables)")
	f.StringVarP(&opts.sessionName, "session", "s", "", "name of the trajectory file to write")
	f.StringVarP(&opts.resume, "resume", "r", "", "continue a saved session by name")
	f.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn or error")

	cmd.AddCommand(newSessionsCmd(opts))
	return cmd
}

// loadConfig reads the config files and applies the flags the user set.
func loadConfig(cmd *cobra.Command, opts *options) (*config.Config, error) {
	cfg, err := config.LoadConfig(opts.configFile)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("mode") {
		cfg.Interactive.Mode = opts.mode
	}
	if opts.yolo {
		cfg.Interactive.Mode = string(interactive.ModeYolo)
	}
	if flags.Changed("model") {
		cfg.Model = opts.model
	}
	if flags.Changed("llm") {
		cfg.LLMClient = opts.llmClient
	}
	if flags.Changed("cwd") {
		cfg.Environment.Cwd = opts.cwd
	}
	if opts.exitImmediately {
		cfg.Interactive.ConfirmExit = false
	}
	if flags.Changed("cost-limit") {
		cfg.Agent.CostLimit = opts.costLimit
	}
	if flags.Changed("step-limit") {
		cfg.Agent.StepLimit = opts.stepLimit
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = opts.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Environment.Cwd == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, errors.Wrapf(err, "could not get working directory")
		}
		cfg.Environment.Cwd = wd
	}
	return cfg, nil
}

func run(cmd *cobra.Command, opts *options, args []string) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}
	logger, err := newLogger(opts.logOutput, cfg.LogLevel)
	if err != nil {
		return err
	}
	ctx := context.Background()
	con := opts.newConsole(cfg.HistoryFile)

	var sess *session.Session
	task := strings.Join(args, " ")
	if opts.resume != "" {
		sess, err = session.Load(cfg.SessionDir, opts.resume)
		if err != nil {
			return err
		}
		con.Printf("Resuming session: %s\n", sess.Name)
	} else {
		name := opts.sessionName
		if name == "" {
			name = defaultSessionName(cfg.Environment.Cwd)
		}
		sess, err = session.New(cfg.SessionDir, name)
		if err != nil {
			return errors.Wrapf(err, "error creating session '%s'", name)
		}
		if strings.TrimSpace(task) == "" {
			task, err = con.Prompt(con.Accent("What do you want to do?") + "\n> ")
			if err != nil {
				return err
			}
		}
	}
	logger = logger.With("session", sess.Name)

	env, closeEnv, err := newEnvironment(ctx, cfg, sess.ID, logger)
	if err != nil {
		return err
	}
	defer closeEnv()

	model, err := llm.New(ctx, cfg)
	if err != nil {
		return errors.Wrapf(err, "error initializing %s client", cfg.LLMClient)
	}

	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	defer signal.Stop(interrupts)

	a := agent.New(&cfg.Agent, sess, model, env, logger)
	ctrl, err := interactive.New(a, con, interactive.Options{
		Mode:        interactive.Mode(cfg.Interactive.Mode),
		Whitelist:   cfg.Interactive.WhitelistActions,
		ConfirmExit: cfg.Interactive.ConfirmExit,
		Interrupts:  interrupts,
	})
	if err != nil {
		return err
	}

	sess.Info.Model = cfg.Model
	logger.Info("starting", "mode", cfg.Interactive.Mode, "llm", cfg.LLMClient, "cwd", cfg.Environment.Cwd)

	var status agent.ExitStatus
	if opts.resume != "" {
		status, err = ctrl.Continue(ctx)
	} else {
		status, err = ctrl.Run(ctx, task)
	}

	sess.Info.Mode = string(ctrl.Modes.Mode())
	if serr := sess.Save(); serr != nil {
		logger.Warn("failed to save session", "error", serr)
	}
	if err != nil {
		if errors.Is(err, io.EOF) {
			con.Println("\nInput closed, stopping.")
			err = nil
		} else {
			return err
		}
	} else {
		con.Success("%s", status.Status)
	}
	if path := sess.Path(); path != "" {
		con.Printf("Saved trajectory to %s\n", path)
	}
	return err
}

// newEnvironment builds the configured environment and a function that
// releases it.
func newEnvironment(ctx context.Context, cfg *config.Config, sessionID string, logger *slog.Logger) (environment.Environment, func(), error) {
	switch cfg.Environment.Type {
	case "mcp":
		env, err := mcp.Start(ctx, cfg.Environment.MCP, cfg.Environment.Cwd, logger)
		if err != nil {
			return nil, nil, err
		}
		return env, func() {
			if err := env.Close(); err != nil {
				logger.Warn("failed to stop MCP server", "error", err)
			}
		}, nil
	default:
		env, err := environment.NewLocal(cfg.Environment, sessionID)
		if err != nil {
			return nil, nil, err
		}
		return env, func() {}, nil
	}
}

func defaultSessionName(cwd string) string {
	dirName := filepath.Base(cwd)
	if dirName == "." || dirName == string(filepath.Separator) {
		dirName = "steer"
	}
	timestamp := time.Now().Format("2006-01-02_15-04-05")
	return fmt.Sprintf("%s_%s", dirName, timestamp)
}
