package sof

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func withCacheDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CACHE_HOME", dir)
	return dir
}

func TestBuildInstallsFilesAndMarksReady(t *testing.T) {
	withCacheDir(t)

	srcDir := t.TempDir()
	libPath := filepath.Join(srcDir, "libfoo.so")
	if err := os.WriteFile(libPath, []byte("so-bytes"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	manifest, err := Build("demo", "abc123", []Entry{{Source: libPath}}, time.Second)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(manifest.Files) != 1 {
		t.Fatalf("manifest.Files = %v, want 1 entry", manifest.Files)
	}
	if _, err := os.Stat(manifest.Files[0]); err != nil {
		t.Fatalf("installed file missing: %v", err)
	}
	if _, err := os.Stat(readyPath("demo", "abc123")); err != nil {
		t.Fatalf("ready marker missing: %v", err)
	}
}

func TestBuildIsIdempotentOnceReady(t *testing.T) {
	withCacheDir(t)

	srcDir := t.TempDir()
	libPath := filepath.Join(srcDir, "libbar.so")
	if err := os.WriteFile(libPath, []byte("so-bytes"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	first, err := Build("demo", "hash1", []Entry{{Source: libPath}}, time.Second)
	if err != nil {
		t.Fatalf("Build (first): %v", err)
	}
	second, err := Build("demo", "hash1", []Entry{{Source: libPath}}, time.Second)
	if err != nil {
		t.Fatalf("Build (second): %v", err)
	}
	if first.BuiltAt != second.BuiltAt {
		t.Fatalf("expected second Build to reuse the first manifest, got different BuiltAt")
	}
}

func TestBuildRecordsWholesaleDirectories(t *testing.T) {
	withCacheDir(t)

	manifest, err := Build("demo", "hash2", []Entry{{Source: "/usr/lib/qt6", Directory: true}}, time.Second)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(manifest.Directories) != 1 || manifest.Directories[0] != "/usr/lib/qt6" {
		t.Fatalf("manifest.Directories = %v", manifest.Directories)
	}
	if len(manifest.Files) != 0 {
		t.Fatalf("expected no enumerated files for a wholesale directory, got %v", manifest.Files)
	}
}

func TestRefreshRemovesCacheDir(t *testing.T) {
	withCacheDir(t)

	srcDir := t.TempDir()
	libPath := filepath.Join(srcDir, "libbaz.so")
	if err := os.WriteFile(libPath, []byte("so-bytes"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := Build("demo", "hash3", []Entry{{Source: libPath}}, time.Second); err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := Refresh("demo", "hash3"); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if _, err := os.Stat(Dir("demo", "hash3")); !os.IsNotExist(err) {
		t.Fatalf("expected cache dir removed, stat err = %v", err)
	}
}
