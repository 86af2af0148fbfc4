package search

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/dkershaw/converge/internal/tools"
	"github.com/dkershaw/converge/internal/workspace"
)

// FindTool locates workspace files by name.
type FindTool struct {
	ws *workspace.Dir
}

// NewFindTool returns the find tool bound to ws.
func NewFindTool(ws *workspace.Dir) *FindTool {
	return &FindTool{ws: ws}
}

func (t *FindTool) Name() string { return "find" }

func (t *FindTool) Description() string {
	return "Finds workspace files whose name matches a glob pattern (e.g. \"*.go\") or contains the pattern as a substring. Returns workspace-relative paths."
}

func (t *FindTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"pattern": map[string]any{"type": "string", "description": "Glob or substring to match against file names"},
			"path":    map[string]any{"type": "string", "description": "Directory to search (default workspace root)"},
		},
		"required": []any{"pattern"},
	}
}

func (t *FindTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	pattern, ok := args["pattern"].(string)
	if !ok {
		return "", tools.Errf(tools.ErrInvalidInput, t.Name(), "pattern must be a string")
	}
	start := "."
	if p, ok := args["path"].(string); ok && p != "" {
		start = p
	}
	resolved, err := t.ws.Resolve(start)
	if err != nil {
		return "", classifyPathErr(t.Name(), err)
	}

	var found []string
	err = walkFiles(t.ws, resolved, func(rel, abs string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		name := filepath.Base(rel)
		matched, matchErr := filepath.Match(pattern, name)
		if matchErr != nil || !matched {
			// Not a valid glob, or no glob match; fall back to substring matching.
			matched = strings.Contains(name, pattern)
		}
		if matched {
			found = append(found, rel)
		}
		return nil
	})
	if err != nil {
		return "", tools.WrapErr(tools.ErrIO, t.Name(), err)
	}
	if len(found) == 0 {
		return "no files found", nil
	}
	return strings.Join(found, "\n"), nil
}

var _ tools.Tool = (*FindTool)(nil)

func classifyPathErr(tool string, err error) error {
	var esc *workspace.EscapeError
	switch {
	case errors.As(err, &esc):
		return tools.WrapErr(tools.ErrPathEscape, tool, err)
	case errors.Is(err, os.ErrNotExist):
		return tools.WrapErr(tools.ErrNotFound, tool, err)
	default:
		return tools.WrapErr(tools.ErrIO, tool, err)
	}
}
