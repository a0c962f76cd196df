package mcp

import (
	"context"
	"fmt"
	"testing"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

type fakeCaller struct {
	params *mcpsdk.CallToolParams
	result *mcpsdk.CallToolResult
}

func (f *fakeCaller) CallTool(ctx context.Context, params *mcpsdk.CallToolParams) (*mcpsdk.CallToolResult, error) {
	f.params = params
	return f.result, nil
}

func TestExecuteCallsConfiguredTool(t *testing.T) {
	caller := &fakeCaller{result: &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: "hello"}, &mcpsdk.TextContent{Text: " world"}},
	}}
	env := NewWithCaller(caller, "bash", "command", "/work")

	out, err := env.Execute(context.Background(), "echo hello world")
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if out.Output != "hello world" || out.ReturnCode != 0 {
		t.Errorf("Unexpected output %+v", out)
	}
	if caller.params.Name != "bash" {
		t.Errorf("Expected tool bash, got %q", caller.params.Name)
	}
	if args := fmt.Sprint(caller.params.Arguments); args != "map[command:echo hello world]" {
		t.Errorf("Unexpected arguments %s", args)
	}
}

func TestExecuteToolError(t *testing.T) {
	caller := &fakeCaller{result: &mcpsdk.CallToolResult{
		IsError: true,
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: "permission denied"}},
	}}
	env := NewWithCaller(caller, "bash", "command", "")
	out, err := env.Execute(context.Background(), "rm -rf /")
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if out.ReturnCode != 1 {
		t.Errorf("Expected return code 1 for tool error, got %d", out.ReturnCode)
	}
}

func TestNoSnapshotCapability(t *testing.T) {
	env := NewWithCaller(&fakeCaller{}, "bash", "command", "/work")
	caps := env.Capabilities()
	if caps.CanSnapshot() || caps.CanRollback() {
		t.Errorf("Expected MCP environment to have no snapshot capability")
	}
	if caps.Cwd != "/work" {
		t.Errorf("Expected cwd /work, got %q", caps.Cwd)
	}
}
