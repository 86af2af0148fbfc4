package workspace

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func newDir(t *testing.T) *Dir {
	t.Helper()
	d, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d
}

func TestNewRejectsRelativePath(t *testing.T) {
	if _, err := New("relative/path"); err == nil {
		t.Fatal("expected error for relative workspace dir")
	}
}

func TestNewRejectsFile(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := New(f); err == nil {
		t.Fatal("expected error for non-directory workspace")
	}
}

func TestResolveInside(t *testing.T) {
	d := newDir(t)
	target := filepath.Join(d.Root(), "sub", "file.txt")
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(target, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := d.Resolve("sub/file.txt")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != target {
		t.Errorf("Resolve = %q, want %q", got, target)
	}
}

func TestResolveEscapes(t *testing.T) {
	d := newDir(t)
	tests := []string{
		"../outside.txt",
		"a/../../outside.txt",
		"/etc/passwd",
	}
	for _, p := range tests {
		t.Run(p, func(t *testing.T) {
			_, err := d.Resolve(p)
			var esc *EscapeError
			if !errors.As(err, &esc) {
				t.Errorf("Resolve(%q) error = %v, want EscapeError", p, err)
			}
		})
	}
}

func TestResolveMissingInsideIsNotFound(t *testing.T) {
	d := newDir(t)
	_, err := d.Resolve("does/not/exist.txt")
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("error = %v, want not-exist", err)
	}
}

func TestResolveForWriteMissingLeaf(t *testing.T) {
	d := newDir(t)
	got, err := d.ResolveForWrite("new/dir/file.txt")
	if err != nil {
		t.Fatalf("ResolveForWrite: %v", err)
	}
	want := filepath.Join(d.Root(), "new", "dir", "file.txt")
	if got != want {
		t.Errorf("ResolveForWrite = %q, want %q", got, want)
	}
}

func TestResolveForWriteEscapes(t *testing.T) {
	d := newDir(t)
	for _, p := range []string{"../evil.txt", "ok/../../evil.txt"} {
		_, err := d.ResolveForWrite(p)
		var esc *EscapeError
		if !errors.As(err, &esc) {
			t.Errorf("ResolveForWrite(%q) error = %v, want EscapeError", p, err)
		}
	}
}

func TestSymlinkEscapeDetected(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	d := newDir(t)
	outside := t.TempDir()
	secret := filepath.Join(outside, "secret.txt")
	if err := os.WriteFile(secret, []byte("s"), 0o644); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(d.Root(), "link")
	if err := os.Symlink(outside, link); err != nil {
		t.Fatal(err)
	}

	_, err := d.Resolve("link/secret.txt")
	var esc *EscapeError
	if !errors.As(err, &esc) {
		t.Errorf("Resolve through symlink error = %v, want EscapeError", err)
	}

	_, err = d.ResolveForWrite("link/new.txt")
	if !errors.As(err, &esc) {
		t.Errorf("ResolveForWrite through symlink error = %v, want EscapeError", err)
	}
}
