package filesystem

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/dkershaw/converge/internal/tools"
	"github.com/dkershaw/converge/internal/workspace"
)

// ListTool lists a workspace directory.
type ListTool struct {
	ws *workspace.Dir
}

// NewListTool returns the fs_list tool bound to ws.
func NewListTool(ws *workspace.Dir) *ListTool {
	return &ListTool{ws: ws}
}

func (t *ListTool) Name() string { return "fs_list" }

func (t *ListTool) Description() string {
	return "Lists the entries of a workspace directory, one per line, tagged as file or dir. Defaults to the workspace root."
}

func (t *ListTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{"type": "string", "description": "Directory path relative to the workspace root (default \".\")"},
		},
		"required": []any{},
	}
}

func (t *ListTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	path := pathArg(args)
	resolved, err := t.ws.Resolve(path)
	if err != nil {
		return "", classifyPathErr(t.Name(), err)
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return "", classifyPathErr(t.Name(), err)
	}
	if !info.IsDir() {
		return "", tools.Errf(tools.ErrNotDirectory, t.Name(), "%s is not a directory", path)
	}
	entries, err := os.ReadDir(resolved)
	if err != nil {
		return "", tools.WrapErr(tools.ErrIO, t.Name(), err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		tag := "file"
		if e.IsDir() {
			tag = "dir"
		}
		lines = append(lines, fmt.Sprintf("%s\t%s", tag, e.Name()))
	}
	if len(lines) == 0 {
		return "(empty)", nil
	}
	return strings.Join(lines, "\n"), nil
}

var _ tools.Tool = (*ListTool)(nil)
