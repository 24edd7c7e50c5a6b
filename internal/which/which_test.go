package which

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func writeExecutable(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatalf("WriteFile(%s): %v", path, err)
	}
	return path
}

func withPath(t *testing.T, dirs ...string) {
	t.Helper()
	old := os.Getenv("PATH")
	os.Setenv("PATH", dirs[0]+string(filepath.ListSeparator)+old)
	t.Cleanup(func() { os.Setenv("PATH", old) })
	pathOnce = sync.Once{}
	pathDirs = nil
	InvalidateAll()
}

func TestWhichFindsExecutableOnPath(t *testing.T) {
	dir := t.TempDir()
	writeExecutable(t, dir, "antimony-fixture")
	withPath(t, dir)

	got, err := Which("antimony-fixture")
	if err != nil {
		t.Fatalf("Which: %v", err)
	}
	want := filepath.Join(dir, "antimony-fixture")
	if got != want {
		t.Fatalf("Which() = %q, want %q", got, want)
	}
}

func TestWhichNotFound(t *testing.T) {
	dir := t.TempDir()
	withPath(t, dir)

	if _, err := Which("definitely-not-on-path-xyz"); err != ErrNotFound {
		t.Fatalf("Which() error = %v, want ErrNotFound", err)
	}
}

func TestWhichRejectsNonExecutableFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "not-executable")
	if err := os.WriteFile(path, []byte("data"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	withPath(t, dir)

	if _, err := Which("not-executable"); err != ErrNotFound {
		t.Fatalf("Which() error = %v, want ErrNotFound", err)
	}
}

func TestWhichWithSlashBypassesPath(t *testing.T) {
	dir := t.TempDir()
	path := writeExecutable(t, dir, "direct")

	got, err := Which(path)
	if err != nil {
		t.Fatalf("Which: %v", err)
	}
	if got != path {
		t.Fatalf("Which() = %q, want %q", got, path)
	}
}
