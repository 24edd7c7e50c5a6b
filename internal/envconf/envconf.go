// Package envconf resolves the handful of environment-derived paths every
// other package needs, once, the way crates/user and src/shared/env.rs cache
// their LazyLock statics: read the environment on first use, then reuse the
// snapshot for the life of the process.
package envconf

import (
	"os"
	"path/filepath"
	"sync"
)

var (
	homeOnce sync.Once
	homeDir  string

	runtimeOnce sync.Once
	runtimeDir  string

	dataOnce sync.Once
	dataDir  string
)

// AntimonyHome is the read-only tree of shared Antimony state: bundled
// profiles, feature definitions and the fabrication scratch area default.
// $AT_HOME overrides it, matching the original's env var of the same name.
func AntimonyHome() string {
	if v := os.Getenv("AT_HOME"); v != "" {
		return v
	}
	return "/usr/share/antimony"
}

// UserHome returns the invoking (real) user's home directory.
func UserHome() string {
	homeOnce.Do(func() {
		if v := os.Getenv("HOME"); v != "" {
			homeDir = v
			return
		}
		if u, err := os.UserHomeDir(); err == nil {
			homeDir = u
		}
	})
	return homeDir
}

// RuntimeDir returns $XDG_RUNTIME_DIR, falling back to a per-uid tmp
// directory when unset (e.g. a bare setuid invocation with a stripped
// environment).
func RuntimeDir() string {
	runtimeOnce.Do(func() {
		if v := os.Getenv("XDG_RUNTIME_DIR"); v != "" {
			runtimeDir = v
			return
		}
		runtimeDir = filepath.Join(os.TempDir(), "antimony-run")
	})
	return runtimeDir
}

// DataHome returns $XDG_DATA_HOME, defaulting to ~/.local/share.
func DataHome() string {
	dataOnce.Do(func() {
		if v := os.Getenv("XDG_DATA_HOME"); v != "" {
			dataDir = v
			return
		}
		dataDir = filepath.Join(UserHome(), ".local", "share")
	})
	return dataDir
}

// UserConfigDir returns the per-user Antimony state directory, where user
// profiles, per-app instance caches and the SECCOMP database's user tier
// live.
func UserConfigDir() string {
	return filepath.Join(DataHome(), "antimony")
}

// CacheDir returns the SOF and per-instance cache root.
func CacheDir() string {
	if v := os.Getenv("XDG_CACHE_HOME"); v != "" {
		return filepath.Join(v, "antimony")
	}
	return filepath.Join(UserHome(), ".cache", "antimony")
}
