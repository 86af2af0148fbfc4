// Package workspace confines filesystem access to a single root directory.
// Every filesystem tool resolves its path arguments through a Dir so that no
// operation, however the argument is spelled, touches anything outside the
// configured root.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// EscapeError reports a path whose canonical form lies outside the workspace.
type EscapeError struct {
	Path string
}

func (e *EscapeError) Error() string {
	return fmt.Sprintf("path escapes workspace: %s", e.Path)
}

// Dir is a canonicalized workspace root.
type Dir struct {
	root string
}

// New canonicalizes root and returns the workspace. The root must exist, be a
// directory, and be given as an absolute path.
func New(root string) (*Dir, error) {
	if !filepath.IsAbs(root) {
		return nil, fmt.Errorf("workspace dir must be absolute, got %q", root)
	}
	canonical, err := filepath.EvalSymlinks(root)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace dir: %w", err)
	}
	info, err := os.Stat(canonical)
	if err != nil {
		return nil, fmt.Errorf("stat workspace dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace dir %s is not a directory", root)
	}
	return &Dir{root: canonical}, nil
}

// Root returns the canonical workspace root.
func (d *Dir) Root() string { return d.root }

// Resolve canonicalizes p (joined onto the root when relative) and verifies
// the result stays inside the workspace. The target must exist.
func (d *Dir) Resolve(p string) (string, error) {
	joined := d.join(p)
	canonical, err := filepath.EvalSymlinks(joined)
	if err != nil {
		if os.IsNotExist(err) {
			// Canonicalize what exists so `a/../../x` style arguments are
			// still judged on their real target before we report not-found.
			resolved, escErr := d.resolveAgainstAncestor(joined, p)
			if escErr != nil {
				return "", escErr
			}
			return "", &os.PathError{Op: "stat", Path: resolved, Err: os.ErrNotExist}
		}
		return "", err
	}
	if !d.contains(canonical) {
		return "", &EscapeError{Path: p}
	}
	return canonical, nil
}

// ResolveForWrite canonicalizes p for an operation that may create the leaf.
// The nearest existing ancestor is canonicalized and the remainder appended,
// so symlinked parents cannot smuggle a write outside the root.
func (d *Dir) ResolveForWrite(p string) (string, error) {
	joined := d.join(p)
	return d.resolveAgainstAncestor(joined, p)
}

func (d *Dir) join(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(d.root, p)
}

func (d *Dir) resolveAgainstAncestor(joined, orig string) (string, error) {
	ancestor := joined
	var remainder []string
	for {
		canonical, err := filepath.EvalSymlinks(ancestor)
		if err == nil {
			resolved := filepath.Join(append([]string{canonical}, remainder...)...)
			if !d.contains(resolved) {
				return "", &EscapeError{Path: orig}
			}
			return resolved, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(ancestor)
		if parent == ancestor {
			return "", &EscapeError{Path: orig}
		}
		remainder = append([]string{filepath.Base(ancestor)}, remainder...)
		ancestor = parent
	}
}

func (d *Dir) contains(canonical string) bool {
	if canonical == d.root {
		return true
	}
	return strings.HasPrefix(canonical, d.root+string(filepath.Separator))
}
