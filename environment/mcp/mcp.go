// Package mcp runs agent actions through a shell tool exposed by an MCP
// server subprocess. It offers no snapshot capability.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/m4xw311/steer/config"
	"github.com/m4xw311/steer/environment"
	"github.com/m4xw311/steer/errors"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Caller is the part of an MCP client session the environment needs.
type Caller interface {
	CallTool(ctx context.Context, params *mcpsdk.CallToolParams) (*mcpsdk.CallToolResult, error)
}

// Environment manages the connection to a single MCP server subprocess.
type Environment struct {
	Name     string
	cmd      *exec.Cmd
	conn     *mcpsdk.ClientSession
	caller   Caller
	tool     string
	argument string
	cwd      string
}

// Start launches the MCP server and checks that it exposes the configured tool.
func Start(ctx context.Context, cfg config.MCPServer, cwd string, logger *slog.Logger) (*Environment, error) {
	if cfg.Command == "" {
		return nil, errors.New("no command configured for MCP server '%s'", cfg.Name)
	}
	cmd := exec.Command(cfg.Command, cfg.Args...)
	cmd.Stderr = os.Stderr
	cmd.Dir = cwd
	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "steer", Version: "v1.0.0"}, nil)
	conn, err := client.Connect(ctx, mcpsdk.NewCommandTransport(cmd))
	if err != nil {
		if cmd.Process != nil {
			cmd.Process.Kill()
		}
		return nil, errors.Wrapf(err, "failed to connect to MCP server '%s'", cfg.Name)
	}

	env := &Environment{
		Name:     cfg.Name,
		cmd:      cmd,
		conn:     conn,
		caller:   conn,
		tool:     cfg.Tool,
		argument: cfg.Argument,
		cwd:      cwd,
	}

	found := false
	params := &mcpsdk.ListToolsParams{}
	for !found {
		list, err := conn.ListTools(ctx, params)
		if err != nil {
			env.Close()
			return nil, errors.Wrapf(err, "failed to list tools from MCP server '%s'", cfg.Name)
		}
		for _, t := range list.Tools {
			if t.Name == cfg.Tool {
				found = true
				break
			}
		}
		if list.NextCursor == "" {
			break
		}
		params.Cursor = list.NextCursor
	}
	if !found {
		env.Close()
		return nil, errors.New("MCP server '%s' does not provide tool '%s'", cfg.Name, cfg.Tool)
	}

	logger.Info("connected to MCP server", "server", cfg.Name, "tool", cfg.Tool)
	return env, nil
}

// NewWithCaller builds an environment on an existing tool caller.
func NewWithCaller(caller Caller, tool, argument, cwd string) *Environment {
	return &Environment{caller: caller, tool: tool, argument: argument, cwd: cwd}
}

// Execute sends the command to the server tool. A tool-level error becomes a
// non-zero return code so the agent sees it as command output.
func (e *Environment) Execute(ctx context.Context, command string) (environment.Output, error) {
	result, err := e.caller.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      e.tool,
		Arguments: map[string]any{e.argument: command},
	})
	if err != nil {
		if ctx.Err() != nil {
			return environment.Output{}, errors.Wrapf(ctx.Err(), "command cancelled")
		}
		return environment.Output{}, errors.Wrapf(err, "failed to call tool '%s'", e.tool)
	}

	var sb strings.Builder
	for _, c := range result.Content {
		switch v := c.(type) {
		case *mcpsdk.TextContent:
			sb.WriteString(v.Text)
		default:
			fmt.Fprintf(&sb, "[%T content omitted]", v)
		}
	}
	out := environment.Output{Output: sb.String()}
	if result.IsError {
		out.ReturnCode = 1
	}
	return out, nil
}

func (e *Environment) Capabilities() environment.Capabilities {
	return environment.Capabilities{Cwd: e.cwd}
}

// Close terminates the MCP server subprocess.
func (e *Environment) Close() error {
	if e.conn != nil {
		e.conn.Close()
	}
	if e.cmd != nil && e.cmd.Process != nil {
		return e.cmd.Process.Kill()
	}
	return nil
}
