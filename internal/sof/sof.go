// Package sof materialises a per-profile "Sandbox-Only Filesystem": a
// directory of hard-links (falling back to copies) standing in for the host
// /usr/lib tree the sandboxed binary actually needs. It mirrors
// src/fab/lib.rs's add_sof/fabricate: build once per (profile, cache-hash)
// under an exclusive file lock, write a manifest, then flip a ready marker
// into place atomically so concurrent launchers can race the build and the
// losers just wait.
package sof

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"github.com/antimony-sandbox/antimony/internal/depresolve"
	"github.com/antimony-sandbox/antimony/internal/envconf"
)

// Entry is one source path destined for the SOF, or a directory to be bound
// wholesale rather than enumerated.
type Entry struct {
	Source    string
	Directory bool
}

// Manifest is the on-disk record of what a SOF build contains, so a later
// process can inspect or tear it down without re-deriving the dependency set.
type Manifest struct {
	Profile     string   `json:"profile"`
	Hash        string   `json:"hash"`
	Files       []string `json:"files"`
	Directories []string `json:"directories"`
	BuiltAt     string   `json:"built_at"`
}

// Dir is the cache directory for one (profile, hash) pair, e.g.
// <cache>/<profile>/<hash>/.
func Dir(profile, hash string) string {
	return filepath.Join(envconf.CacheDir(), profile, hash)
}

// LibDir is where Entry sources are installed, destined for a --ro-bind onto
// the sandboxed /usr/lib.
func LibDir(profile, hash string) string {
	return filepath.Join(Dir(profile, hash), "lib")
}

func manifestPath(profile, hash string) string {
	return filepath.Join(Dir(profile, hash), "manifest")
}

func readyPath(profile, hash string) string {
	return filepath.Join(Dir(profile, hash), "ready")
}

func lockPath(profile, hash string) string {
	return filepath.Join(envconf.CacheDir(), profile, hash+".lock")
}

// ErrBuildTimedOut is returned when Build gives up waiting for a concurrent
// builder to finish.
var ErrBuildTimedOut = errors.New("sof: timed out waiting for concurrent build")

// Build materialises the SOF for profile/hash from entries, or waits for a
// concurrent builder (another process racing the same lock) to finish and
// reuses its result. Idempotent: a directory already marked ready is
// returned without touching the filesystem again.
func Build(profile, hash string, entries []Entry, waitTimeout time.Duration) (*Manifest, error) {
	dir := Dir(profile, hash)
	if m, err := readManifestIfReady(profile, hash); err == nil {
		return m, nil
	}

	if err := os.MkdirAll(filepath.Dir(lockPath(profile, hash)), 0o755); err != nil {
		return nil, err
	}
	lock := flock.New(lockPath(profile, hash))

	locked, err := lock.TryLock()
	if err != nil {
		return nil, err
	}
	if !locked {
		return waitForReady(profile, hash, waitTimeout)
	}
	defer lock.Unlock()

	// Another builder may have finished and released the lock between our
	// ready-check above and acquiring the lock just now.
	if m, err := readManifestIfReady(profile, hash); err == nil {
		return m, nil
	}

	libDir := LibDir(profile, hash)
	if err := os.MkdirAll(libDir, 0o755); err != nil {
		return nil, err
	}

	manifest := &Manifest{Profile: profile, Hash: hash, BuiltAt: time.Now().UTC().Format(time.RFC3339)}
	for _, e := range entries {
		if e.Directory {
			manifest.Directories = append(manifest.Directories, e.Source)
			continue
		}
		dest, err := install(e.Source, libDir)
		if err != nil {
			return nil, fmt.Errorf("sof: install %s: %w", e.Source, err)
		}
		manifest.Files = append(manifest.Files, dest)
	}

	if err := writeManifest(dir, manifest); err != nil {
		return nil, err
	}
	if err := markReady(profile, hash); err != nil {
		return nil, err
	}
	return manifest, nil
}

// sofDestination maps a source path under a known library root to its
// SOF-relative destination, preserving the path suffix the way
// get_sof_path replaces a library root prefix with the SOF's lib dir.
func sofDestination(libDir, source string) string {
	for _, root := range append([]string(nil), depresolve.LibRoots...) {
		if strings.HasPrefix(source, root) {
			return filepath.Join(libDir, strings.TrimPrefix(source, root))
		}
	}
	return filepath.Join(libDir, filepath.Base(source))
}

func install(source, libDir string) (string, error) {
	dest := sofDestination(libDir, source)
	if _, err := os.Stat(dest); err == nil {
		return dest, nil
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", err
	}

	canon, err := filepath.EvalSymlinks(source)
	if err != nil {
		canon = source
	}

	if err := os.Link(canon, dest); err == nil {
		return dest, nil
	} else if !errors.Is(err, os.ErrExist) {
		log.Printf("sof: hardlink %s => %s failed (%v), falling back to copy", canon, dest, err)
	}
	if err := copyFile(canon, dest); err != nil {
		return "", err
	}
	return dest, nil
}

func copyFile(source, dest string) error {
	in, err := os.Open(source)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	tmp := dest + ".tmp"
	out, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode())
	if err != nil {
		return err
	}
	if _, err := out.ReadFrom(in); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dest)
}

func writeManifest(dir string, m *Manifest) error {
	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	tmp := manifestPath(m.Profile, m.Hash) + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	_ = dir
	return os.Rename(tmp, manifestPath(m.Profile, m.Hash))
}

func markReady(profile, hash string) error {
	path := readyPath(profile, hash)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte{}, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func readManifestIfReady(profile, hash string) (*Manifest, error) {
	if _, err := os.Stat(readyPath(profile, hash)); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(manifestPath(profile, hash))
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func waitForReady(profile, hash string, timeout time.Duration) (*Manifest, error) {
	deadline := time.Now().Add(timeout)
	for {
		if m, err := readManifestIfReady(profile, hash); err == nil {
			return m, nil
		}
		if time.Now().After(deadline) {
			return nil, ErrBuildTimedOut
		}
		time.Sleep(20 * time.Millisecond)
	}
}

// Refresh removes the cache directory for (profile, hash) once no live
// instance references it. The caller is responsible for knowing there are
// no live references; Refresh itself performs no reference tracking
// (left to the driver, which is the only component that knows about live
// sandbox instances).
func Refresh(profile, hash string) error {
	if err := os.RemoveAll(Dir(profile, hash)); err != nil {
		return err
	}
	_ = os.Remove(lockPath(profile, hash))
	return nil
}
