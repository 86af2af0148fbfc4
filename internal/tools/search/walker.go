// Package search provides the workspace search tools: grep and find. Both
// walk the workspace honoring the root .gitignore so generated and vendored
// trees don't drown out results.
package search

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"

	"github.com/dkershaw/converge/internal/workspace"
)

// defaultIgnorePatterns are skipped even without a .gitignore.
var defaultIgnorePatterns = []string{
	".git/",
	"node_modules/",
	".DS_Store",
}

func newIgnoreMatcher(root string) gitignore.IgnoreParser {
	patterns := append([]string(nil), defaultIgnorePatterns...)
	if data, err := os.ReadFile(filepath.Join(root, ".gitignore")); err == nil {
		for _, line := range strings.Split(string(data), "\n") {
			line = strings.TrimSpace(line)
			if line != "" && !strings.HasPrefix(line, "#") {
				patterns = append(patterns, line)
			}
		}
	}
	return gitignore.CompileIgnoreLines(patterns...)
}

// walkFiles visits every non-ignored regular file under start (a canonical
// path inside ws), calling fn with the workspace-relative path. fn returning
// filepath.SkipAll stops the walk.
func walkFiles(ws *workspace.Dir, start string, fn func(rel, abs string) error) error {
	matcher := newIgnoreMatcher(ws.Root())
	return filepath.WalkDir(start, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable entries are skipped, not fatal.
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		rel, relErr := filepath.Rel(ws.Root(), path)
		if relErr != nil {
			return nil
		}
		if rel == "." {
			return nil
		}
		ignorePath := rel
		if d.IsDir() {
			ignorePath += "/"
		}
		if matcher.MatchesPath(ignorePath) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		return fn(rel, path)
	})
}
