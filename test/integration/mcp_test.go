package integration

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func connectMCP(t *testing.T) *mcp.ClientSession {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client := mcp.NewClient(&mcp.Implementation{Name: "integration", Version: "1.0.0"}, nil)
	cs, err := client.Connect(ctx, &mcp.StreamableClientTransport{Endpoint: testEnv.BaseURL() + "/mcp"}, nil)
	if err != nil {
		t.Fatalf("connecting to MCP endpoint: %v", err)
	}
	t.Cleanup(func() { cs.Close() })
	return cs
}

func TestMCPExecuteOverHTTP(t *testing.T) {
	cs := connectMCP(t)
	ctx := context.Background()

	tools, err := cs.ListTools(ctx, &mcp.ListToolsParams{})
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	var names []string
	for _, tool := range tools.Tools {
		names = append(names, tool.Name)
	}
	for _, want := range []string{"execute_code", "execute_bash_code", "submit_task"} {
		if !strings.Contains(strings.Join(names, ","), want) {
			t.Errorf("tool %s missing from %v", want, names)
		}
	}

	res, err := cs.CallTool(ctx, &mcp.CallToolParams{
		Name:      "execute_bash_code",
		Arguments: map[string]any{"code": "echo via mcp"},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if len(res.Content) != 1 {
		t.Fatalf("content = %+v", res.Content)
	}
	if tc, ok := res.Content[0].(*mcp.TextContent); !ok || strings.TrimSpace(tc.Text) != "via mcp" {
		t.Errorf("content = %+v", res.Content[0])
	}
}

func TestMCPWorkspaceResources(t *testing.T) {
	if err := os.WriteFile(filepath.Join(testEnv.Workspace, "mcp-note.txt"), []byte("from the workspace"), 0o644); err != nil {
		t.Fatal(err)
	}
	cs := connectMCP(t)
	ctx := context.Background()

	res, err := cs.ReadResource(ctx, &mcp.ReadResourceParams{URI: "workspace://files/mcp-note.txt"})
	if err != nil {
		t.Fatalf("ReadResource: %v", err)
	}
	if len(res.Contents) != 1 || res.Contents[0].Text != "from the workspace" {
		t.Errorf("contents = %+v", res.Contents)
	}

	res, err = cs.ReadResource(ctx, &mcp.ReadResourceParams{URI: "workspace://state"})
	if err != nil {
		t.Fatalf("ReadResource state: %v", err)
	}
	if !strings.Contains(res.Contents[0].Text, "mcp-note.txt") {
		t.Errorf("state = %q", res.Contents[0].Text)
	}
}
