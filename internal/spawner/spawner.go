// Package spawner builds argv/env/fd configurations for bwrap,
// xdg-dbus-proxy and hook processes and hands them to pkg/forkexec.Runner.
// It adds one feature the Runner itself doesn't model: an argv cache, so a
// caller that has already computed an expensive argv (e.g. the fully
// resolved bwrap invocation) can persist the slice added since a marked
// point and replay it verbatim on a future run instead of recomputing it.
// Mirrors crates/spawn/src/spawn.rs's cache_start/cache_write/cache_read.
package spawner

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"sync"
	"syscall"

	"github.com/antimony-sandbox/antimony/internal/privilege"
	"github.com/antimony-sandbox/antimony/pkg/forkexec"
	"github.com/antimony-sandbox/antimony/pkg/rlimit"
)

// ErrCacheAlreadyStarted is returned by CacheStart if called twice without
// an intervening CacheWrite.
var ErrCacheAlreadyStarted = errors.New("spawner: cache already started")

// ErrCacheNotStarted is returned by CacheWrite if CacheStart was never called.
var ErrCacheNotStarted = errors.New("spawner: cache not started")

// Builder accumulates a Runner's configuration incrementally, the way the
// original's Spawner accumulates argv/env calls before a single spawn.
type Builder struct {
	args       []string
	env        []string
	fds        []uintptr
	credential *syscall.Credential

	mu         sync.Mutex
	cacheIndex *int
}

// New starts a Builder for execPath.
func New(execPath string) *Builder {
	return &Builder{args: []string{execPath}}
}

// Arg appends one argument.
func (b *Builder) Arg(a string) *Builder {
	b.args = append(b.args, a)
	return b
}

// Args appends every argument in order.
func (b *Builder) Args(a ...string) *Builder {
	b.args = append(b.args, a...)
	return b
}

// Env appends one KEY=VALUE environment entry.
func (b *Builder) Env(kv string) *Builder {
	b.env = append(b.env, kv)
	return b
}

// FD passes fd to the child. The descriptor does not keep its own number:
// Runner puts stdin, stdout and stderr at 0-2 and the FD descriptors after
// them in call order (Runner.Files index i becomes child descriptor i), so
// the first FD call lands on descriptor 3 in the child, the second on 4.
func (b *Builder) FD(fd uintptr) *Builder {
	b.fds = append(b.fds, fd)
	return b
}

// User configures the identity the child assumes before execve, resolved
// through internal/privilege without the calling process switching to that
// identity itself (spec.md §4.2's "user-mode to drop to").
func (b *Builder) User(m privilege.Mode) error {
	uid, err := privilege.UID(m)
	if err != nil {
		return fmt.Errorf("spawner: resolve uid for %v: %w", m, err)
	}
	gid, err := privilege.GID(m)
	if err != nil {
		return fmt.Errorf("spawner: resolve gid for %v: %w", m, err)
	}
	b.credential = &syscall.Credential{Uid: uint32(uid), Gid: uint32(gid)}
	return nil
}

// CacheStart marks the current argument index; every Arg/Args call after
// this point is eligible to be persisted by CacheWrite.
func (b *Builder) CacheStart() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cacheIndex != nil {
		return ErrCacheAlreadyStarted
	}
	idx := len(b.args)
	b.cacheIndex = &idx
	return nil
}

// CacheWrite persists every argument added since CacheStart to path, one
// per line, and clears the cache marker.
func (b *Builder) CacheWrite(path string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cacheIndex == nil {
		return ErrCacheNotStarted
	}
	cached := b.args[*b.cacheIndex:]
	b.cacheIndex = nil

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	for _, a := range cached {
		if _, err := fmt.Fprintln(w, a); err != nil {
			return err
		}
	}
	return w.Flush()
}

// CacheRead appends every line of path as an argument, the way a future
// invocation replays a previously cached argv tail instead of recomputing
// it (e.g. the SOF-derived --ro-bind list, once the cache hash is known to
// be unchanged).
func (b *Builder) CacheRead(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		b.args = append(b.args, scanner.Text())
	}
	return scanner.Err()
}

// Runner builds the pkg/forkexec.Runner this Builder describes. env is
// appended after any inherited environment the caller passes in.
func (b *Builder) Runner(inheritedEnv []string, limits []rlimit.RLimit) *forkexec.Runner {
	env := append(append([]string(nil), inheritedEnv...), b.env...)
	files := append([]uintptr{0, 1, 2}, b.fds...)
	return &forkexec.Runner{
		Args:       b.args,
		Env:        env,
		Files:      files,
		RLimits:    limits,
		Credential: b.credential,
	}
}

// Spawn starts the configured process and returns its pid.
func (b *Builder) Spawn(inheritedEnv []string, limits []rlimit.RLimit) (int, error) {
	return b.Runner(inheritedEnv, limits).Start()
}
