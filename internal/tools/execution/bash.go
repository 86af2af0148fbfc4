package execution

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/dkershaw/converge/internal/tools"
	"github.com/dkershaw/converge/internal/workspace"
)

const (
	// DefaultTimeout bounds every command unless overridden at construction.
	DefaultTimeout = 30 * time.Second

	// MaxOutputSize caps combined stdout/stderr; overflow truncates.
	MaxOutputSize = 1 << 20 // 1 MiB
)

// shellMetaChars trigger execution through the platform shell. Anything
// simpler runs directly with an argv split.
const shellMetaChars = "|&;<>()`$*?[]{}'\"\\\n~"

// BashTool runs a command in the workspace with a kill timer and an output
// cap. Non-zero exits are reported in the result, not as failures; only a
// timeout or a spawn failure is a tool error.
type BashTool struct {
	ws      *workspace.Dir
	timeout time.Duration
}

// NewBashTool returns the execute_bash tool bound to ws with the default
// 30 second timeout.
func NewBashTool(ws *workspace.Dir) *BashTool {
	return &BashTool{ws: ws, timeout: DefaultTimeout}
}

// NewBashToolWithTimeout overrides the kill timer.
func NewBashToolWithTimeout(ws *workspace.Dir, timeout time.Duration) *BashTool {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &BashTool{ws: ws, timeout: timeout}
}

func (t *BashTool) Name() string { return "execute_bash" }

func (t *BashTool) Description() string {
	return "Runs a shell command in the workspace directory and returns combined stdout/stderr. Commands are killed after the timeout; output is truncated at 1 MiB."
}

func (t *BashTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{"type": "string", "description": "Command line to execute"},
		},
		"required": []any{"command"},
	}
}

func (t *BashTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	command, ok := args["command"].(string)
	if !ok {
		return "", tools.Errf(tools.ErrInvalidInput, t.Name(), "command must be a string")
	}
	if strings.TrimSpace(command) == "" {
		return "", tools.Errf(tools.ErrInvalidInput, t.Name(), "command is empty")
	}

	name, argv := splitCommand(command)
	res, err := run(ctx, t.ws.Root(), name, argv, t.timeout, MaxOutputSize)
	if err != nil {
		return "", tools.WrapErr(tools.ErrIO, t.Name(), err)
	}
	if res.TimedOut {
		return "", tools.Errf(tools.ErrTimeout, t.Name(), "timeout after %s", t.timeout)
	}

	out := res.Output
	if res.Truncated {
		out += fmt.Sprintf("\n[output truncated at %d bytes]", MaxOutputSize)
	}
	if res.Code != 0 {
		out += fmt.Sprintf("\n[exit status %d]", res.Code)
	}
	if out == "" {
		out = "(no output)"
	}
	return out, nil
}

// splitCommand decides between shell interpretation and a direct argv exec.
// Shell metacharacters (pipes, redirects, logical operators, globs, quotes)
// route through the platform default shell; plain commands are split on
// whitespace and executed directly.
func splitCommand(command string) (string, []string) {
	if strings.ContainsAny(command, shellMetaChars) {
		if runtime.GOOS == "windows" {
			return "cmd", []string{"/c", command}
		}
		return "sh", []string{"-c", command}
	}
	fields := strings.Fields(command)
	return fields[0], fields[1:]
}

var _ tools.Tool = (*BashTool)(nil)
