// Package privilege gates the setuid boundary Antimony runs across: most of
// the fabrication pipeline should run as the invoking user, only the handful
// of steps that genuinely need root (writing the SECCOMP database's system
// tier, materializing another user's SOF cache) should briefly assume the
// effective (root) identity. The Mode/Set/Restore shape mirrors the original
// implementation's user::Mode and user::set/restore functions.
package privilege

import (
	"fmt"
	"log"
	"sync"

	"golang.org/x/sys/unix"
)

// Mode names one of the three identities tracked by getresuid(2): Real is
// the invoking user, Effective is whoever the process currently acts as,
// Original is the identity snapshotted at process start (equal to Real
// unless the binary was setuid-root, in which case Original is root).
type Mode int

const (
	Real Mode = iota
	Effective
	Original
)

func (m Mode) String() string {
	switch m {
	case Real:
		return "real"
	case Effective:
		return "effective"
	case Original:
		return "original"
	default:
		return "unknown"
	}
}

type ids struct {
	real, effective, saved int
}

var (
	userOnce  sync.Once
	userIDs   ids
	groupOnce sync.Once
	groupIDs  ids

	// mu serializes Set/Restore across goroutines: the process-wide
	// effective uid/gid is global state, so two goroutines racing to
	// change it independently corrupts whichever one restores last. Callers
	// needing exclusive access to Effective across a critical section should
	// use RunAs rather than calling Set/Restore directly.
	mu sync.Mutex
)

func snapshotUser() ids {
	userOnce.Do(func() {
		var real, effective, saved int
		if err := getresuid(&real, &effective, &saved); err == nil {
			userIDs = ids{real, effective, saved}
		}
	})
	return userIDs
}

func snapshotGroup() ids {
	groupOnce.Do(func() {
		var real, effective, saved int
		if err := getresgid(&real, &effective, &saved); err == nil {
			groupIDs = ids{real, effective, saved}
		}
	})
	return groupIDs
}

func getresuid(real, effective, saved *int) error {
	ruid, euid, suid := unix.Getresuid()
	*real, *effective, *saved = ruid, euid, suid
	return nil
}

func getresgid(real, effective, saved *int) error {
	rgid, egid, sgid := unix.Getresgid()
	*real, *effective, *saved = rgid, egid, sgid
	return nil
}

// idFor resolves which uid/gid a Mode names.
func idFor(m Mode, snap ids) (int, error) {
	switch m {
	case Real:
		return snap.real, nil
	case Effective:
		return snap.saved, nil // the setuid-installed identity, usually root
	case Original:
		return snap.effective, nil // the identity the process started with
	default:
		return 0, fmt.Errorf("privilege: unknown mode %v", m)
	}
}

// UID and GID resolve mode's identity without assuming it, so a caller like
// internal/spawner can configure a child's credential for a Mode without
// the calling process itself switching to that identity first.
func UID(m Mode) (int, error) {
	return idFor(m, snapshotUser())
}

func GID(m Mode) (int, error) {
	return idFor(m, snapshotGroup())
}

// currentMode reports which of the three tracked identities is presently
// active as the effective uid, so Set can hand a caller its prior mode to
// Restore. Setresuid/Setresgid here only ever touch the effective slot, so
// the real and saved ids stay pinned to their process-start snapshot and
// remain reliable landmarks for this comparison.
func currentMode() Mode {
	uid, _ := Current()
	snap := snapshotUser()
	switch uid {
	case snap.real:
		return Real
	case snap.saved:
		return Effective
	case snap.effective:
		return Original
	default:
		return Real
	}
}

// Set assumes mode's uid/gid as the process's effective identity, returning
// the Mode that was active immediately before the switch so the caller can
// Restore it later. It is not safe to call concurrently with itself; use
// RunAs to serialize. A setresgid that succeeds followed by a setresuid
// that fails leaves the process straddling two identities, which is never
// safe to continue from, so that specific failure aborts the process
// instead of returning to the caller.
func Set(m Mode) (Mode, error) {
	prior := currentMode()

	uid, err := idFor(m, snapshotUser())
	if err != nil {
		return prior, err
	}
	gid, err := idFor(m, snapshotGroup())
	if err != nil {
		return prior, err
	}
	// order matters: dropping uid before gid would strip the privilege
	// needed to change gid on some kernels.
	if err := unix.Setresgid(-1, gid, -1); err != nil {
		return prior, fmt.Errorf("privilege: setresgid(%v): %w", m, err)
	}
	if err := unix.Setresuid(-1, uid, -1); err != nil {
		log.Fatalf("privilege: setresuid(%v) failed after setresgid already succeeded, half-switched identity: %v", m, err)
	}
	return prior, nil
}

// Restore returns the process's effective identity to prior, as reported by
// an earlier Set.
func Restore(prior Mode) error {
	_, err := Set(prior)
	return err
}

// Revert switches the effective identity back to Original unconditionally,
// regardless of whatever Mode is currently active.
func Revert() error {
	_, err := Set(Original)
	return err
}

// Drop switches to mode and additionally overwrites the saved id with the
// same value, so a later spawned or exec'd child can never regain the
// identity Drop moved away from. Unlike Set, this is not reversible by
// Restore.
func Drop(m Mode) error {
	uid, err := idFor(m, snapshotUser())
	if err != nil {
		return err
	}
	gid, err := idFor(m, snapshotGroup())
	if err != nil {
		return err
	}
	if err := unix.Setresgid(gid, gid, gid); err != nil {
		return fmt.Errorf("privilege: drop setresgid(%v): %w", m, err)
	}
	if err := unix.Setresuid(uid, uid, uid); err != nil {
		log.Fatalf("privilege: drop setresuid(%v) failed after gid already dropped, half-switched identity: %v", m, err)
	}
	return nil
}

// Current reports the process's current effective uid/gid.
func Current() (uid, gid int) {
	return unix.Geteuid(), unix.Getegid()
}

// RunAs runs fn with the process's effective identity set to m, then
// restores the identity that was active before the call. Nested calls
// deadlock by design (mu is not reentrant) since a nested RunAs almost
// always means the caller meant to keep the outer identity, not stack a
// second privilege change on top of it.
func RunAs(m Mode, fn func() error) error {
	mu.Lock()
	defer mu.Unlock()

	prior, err := Set(m)
	if err != nil {
		return err
	}
	defer Restore(prior)
	return fn()
}
