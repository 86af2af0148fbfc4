package filesystem

import (
	"context"
	"os"
	"unicode/utf8"

	"github.com/dkershaw/converge/internal/tools"
	"github.com/dkershaw/converge/internal/workspace"
)

// ReadTool reads a UTF-8 file from the workspace.
type ReadTool struct {
	ws *workspace.Dir
}

// NewReadTool returns the fs_read tool bound to ws.
func NewReadTool(ws *workspace.Dir) *ReadTool {
	return &ReadTool{ws: ws}
}

func (t *ReadTool) Name() string { return "fs_read" }

func (t *ReadTool) Description() string {
	return "Reads a UTF-8 text file from the workspace and returns its contents. Paths are relative to the workspace root."
}

func (t *ReadTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{"type": "string", "description": "File path relative to the workspace root"},
		},
		"required": []any{"path"},
	}
}

func (t *ReadTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	path, ok := stringArg(args, "path")
	if !ok {
		return "", tools.Errf(tools.ErrInvalidInput, t.Name(), "path must be a string")
	}
	resolved, err := t.ws.Resolve(path)
	if err != nil {
		return "", classifyPathErr(t.Name(), err)
	}
	// Size is checked from metadata before reading so an oversized file is
	// never pulled into memory.
	info, err := os.Stat(resolved)
	if err != nil {
		return "", classifyPathErr(t.Name(), err)
	}
	if info.IsDir() {
		return "", tools.Errf(tools.ErrIO, t.Name(), "%s is a directory", path)
	}
	if info.Size() > MaxReadSize {
		return "", tools.Errf(tools.ErrTooLarge, t.Name(), "%s is %d bytes, cap is %d", path, info.Size(), MaxReadSize)
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return "", classifyPathErr(t.Name(), err)
	}
	if !utf8.Valid(data) {
		return "", tools.Errf(tools.ErrNotUTF8, t.Name(), "%s is not valid UTF-8", path)
	}
	return string(data), nil
}

var _ tools.Tool = (*ReadTool)(nil)
