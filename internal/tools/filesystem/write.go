package filesystem

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dkershaw/converge/internal/tools"
	"github.com/dkershaw/converge/internal/workspace"
)

// WriteTool writes a file inside the workspace, creating parent directories
// as needed.
type WriteTool struct {
	ws *workspace.Dir
}

// NewWriteTool returns the fs_write tool bound to ws.
func NewWriteTool(ws *workspace.Dir) *WriteTool {
	return &WriteTool{ws: ws}
}

func (t *WriteTool) Name() string { return "fs_write" }

func (t *WriteTool) Description() string {
	return "Writes content to a file in the workspace, creating parent directories as needed. Overwrites existing files."
}

func (t *WriteTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path":    map[string]any{"type": "string", "description": "File path relative to the workspace root"},
			"content": map[string]any{"type": "string", "description": "Full file content to write"},
		},
		"required": []any{"path", "content"},
	}
}

func (t *WriteTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	path, ok := stringArg(args, "path")
	if !ok {
		return "", tools.Errf(tools.ErrInvalidInput, t.Name(), "path must be a string")
	}
	content, ok := stringArg(args, "content")
	if !ok {
		return "", tools.Errf(tools.ErrInvalidInput, t.Name(), "content must be a string")
	}
	resolved, err := t.ws.ResolveForWrite(path)
	if err != nil {
		return "", classifyPathErr(t.Name(), err)
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return "", tools.WrapErr(tools.ErrIO, t.Name(), err)
	}
	if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
		return "", tools.WrapErr(tools.ErrIO, t.Name(), err)
	}
	return fmt.Sprintf("wrote %d bytes to %s", len(content), path), nil
}

var _ tools.Tool = (*WriteTool)(nil)
