package search

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/dkershaw/converge/internal/tools"
	"github.com/dkershaw/converge/internal/workspace"
)

// MaxGrepResults caps grep output to keep tool results inside the model's
// context budget.
const MaxGrepResults = 100

// grep skips files larger than this; they are almost never text the model
// wants line matches from.
const maxGrepFileSize = 1 << 20

// GrepTool searches workspace files line by line with a compiled regex.
type GrepTool struct {
	ws *workspace.Dir
}

// NewGrepTool returns the grep tool bound to ws.
func NewGrepTool(ws *workspace.Dir) *GrepTool {
	return &GrepTool{ws: ws}
}

func (t *GrepTool) Name() string { return "grep" }

func (t *GrepTool) Description() string {
	return "Searches workspace files for a regular expression and returns matching lines as path:line:text. Results are capped at 100 matches."
}

func (t *GrepTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"pattern": map[string]any{"type": "string", "description": "Go regular expression to search for"},
			"path":    map[string]any{"type": "string", "description": "File or directory to search (default workspace root)"},
		},
		"required": []any{"pattern"},
	}
}

func (t *GrepTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	pattern, ok := args["pattern"].(string)
	if !ok {
		return "", tools.Errf(tools.ErrInvalidInput, t.Name(), "pattern must be a string")
	}
	// Compile before touching the filesystem so a bad regex emits no partial
	// output.
	re, err := regexp.Compile(pattern)
	if err != nil {
		return "", tools.Errf(tools.ErrBadRegex, t.Name(), "invalid pattern %q: %v", pattern, err)
	}
	start := "."
	if p, ok := args["path"].(string); ok && p != "" {
		start = p
	}
	resolved, err := t.ws.Resolve(start)
	if err != nil {
		return "", classifyPathErr(t.Name(), err)
	}

	var matches []string
	truncated := false
	appendMatch := func(rel string, line int, text string) bool {
		if len(matches) >= MaxGrepResults {
			truncated = true
			return false
		}
		matches = append(matches, fmt.Sprintf("%s:%d:%s", rel, line, text))
		return true
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return "", classifyPathErr(t.Name(), err)
	}
	if info.IsDir() {
		err = walkFiles(t.ws, resolved, func(rel, abs string) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if !grepFile(abs, rel, re, appendMatch) {
				return filepath.SkipAll
			}
			return nil
		})
		if err != nil && err != filepath.SkipAll {
			return "", tools.WrapErr(tools.ErrIO, t.Name(), err)
		}
	} else {
		rel, relErr := filepath.Rel(t.ws.Root(), resolved)
		if relErr != nil {
			rel = start
		}
		grepFile(resolved, rel, re, appendMatch)
	}

	if len(matches) == 0 {
		return "no matches", nil
	}
	out := strings.Join(matches, "\n")
	if truncated {
		out += fmt.Sprintf("\n(truncated at %d matches)", MaxGrepResults)
	}
	return out, nil
}

// grepFile scans one file. Returns false once the match cap is hit.
func grepFile(abs, rel string, re *regexp.Regexp, emit func(string, int, string) bool) bool {
	info, err := os.Stat(abs)
	if err != nil || info.Size() > maxGrepFileSize {
		return true
	}
	f, err := os.Open(abs)
	if err != nil {
		return true
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if strings.ContainsRune(line, 0) {
			// Binary file; stop scanning it.
			return true
		}
		if re.MatchString(line) {
			if !emit(rel, lineNo, line) {
				return false
			}
		}
	}
	return true
}

var _ tools.Tool = (*GrepTool)(nil)
