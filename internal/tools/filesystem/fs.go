// Package filesystem provides the workspace-confined file tools: fs_read,
// fs_write, and fs_list. Every path argument is resolved through the
// workspace so the tools cannot touch anything outside the configured root.
package filesystem

import (
	"errors"
	"os"

	"github.com/dkershaw/converge/internal/tools"
	"github.com/dkershaw/converge/internal/workspace"
)

// MaxReadSize is the fs_read cap. Files up to and including this size are
// readable; anything larger fails.
const MaxReadSize = 10 << 20 // 10 MiB

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

func stringArg(args map[string]any, key string) (string, bool) {
	v, ok := args[key].(string)
	return v, ok
}

func pathArg(args map[string]any) string {
	if p, ok := stringArg(args, "path"); ok && p != "" {
		return p
	}
	return "."
}
