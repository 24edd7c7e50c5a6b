package driver

import (
	"fmt"

	"github.com/antimony-sandbox/antimony/internal/profile"
	"github.com/antimony-sandbox/antimony/internal/seccompdb"
	"github.com/antimony-sandbox/antimony/pkg/seccomp"
	"github.com/antimony-sandbox/antimony/pkg/seccomp/libseccomp"
)

// seccompPlan is what the fabricate stage hands launchBwrap. OuterFilter is
// always the one installed directly on bwrap (and everything it forks): for
// Enforcing that's a kill-default filter loaded via forkexec.Runner.Seccomp
// with no listener, confining bwrap itself against its own escape bugs; for
// Permissive/Notifying it's a notify-default filter loaded the same way but
// with SECCOMP_FILTER_FLAG_NEW_LISTENER, so bwrap and its descendants are
// serviced by the monitor. ChildFilter is set only for Enforcing: a stricter
// profile-only kill-default filter piped to bwrap's own --seccomp <fd>,
// which bwrap applies to the sandboxed application alone.
type seccompPlan struct {
	Mode        monitorModeOrDisabled
	OuterFilter seccomp.Filter
	ChildFilter seccomp.Filter
	NeedsNotify bool
}

type monitorModeOrDisabled int

const (
	seccompOff monitorModeOrDisabled = iota
	seccompEnforcing
	seccompPermissive
	seccompNotifying
)

// bwrapExemptSyscalls covers what bwrap itself needs to set up the sandbox's
// namespaces, mounts and device nodes before it execs into the profile's own
// binary. A profile's own Allow list never includes these since the target
// application never issues them itself.
var bwrapExemptSyscalls = []string{
	"clone",
	"clone3",
	"unshare",
	"setns",

	"mount",
	"umount2",
	"pivot_root",
	"chroot",

	"mknod",
	"mknodat",
	"symlink",
	"symlinkat",

	"capget",
	"capset",
	"prctl",
	"seccomp",

	"wait4",
	"waitid",
	"kill",
	"tgkill",

	"pipe",
	"pipe2",
	"socketpair",
	"epoll_create1",
	"epoll_ctl",
	"epoll_wait",
}

// proxyExemptSyscalls covers what xdg-dbus-proxy needs to bridge the
// sandbox's private bus socket to the real session/system bus, folded into
// the outer filter only when a profile's IPC is on.
var proxyExemptSyscalls = []string{
	"socket",
	"connect",
	"bind",
	"listen",
	"accept4",
	"getsockopt",
	"setsockopt",
	"sendto",
	"recvfrom",
	"poll",
	"ppoll",
}

func modeOf(p *profile.Profile) monitorModeOrDisabled {
	if p.Seccomp == nil {
		return seccompOff
	}
	switch *p.Seccomp {
	case profile.SeccompEnforcing:
		return seccompEnforcing
	case profile.SeccompPermissive:
		return seccompPermissive
	case profile.SeccompNotifying:
		return seccompNotifying
	default:
		return seccompOff
	}
}

// allowedSyscallNames converts a policy's persisted (number, arch) pairs
// into syscall names libseccomp's Builder can consume, silently dropping any
// number that no longer resolves to a name on this kernel (e.g. it was
// persisted on a newer kernel than the one enforcing it now).
func allowedSyscallNames(entries []seccompdb.SyscallEntry) []string {
	var names []string
	for _, e := range entries {
		name, err := libseccomp.ToSyscallName(uint(e.Number))
		if err != nil {
			continue
		}
		names = append(names, name)
	}
	return names
}

// outerAllow builds the Allow set every outer filter needs regardless of
// mode: the profile's own syscalls, plus bwrap's own, plus the proxy's when
// IPC is on (spec.md §8.4's superset invariant).
func outerAllow(profileAllow []string, ipc bool) []string {
	allow := append([]string(nil), profileAllow...)
	allow = append(allow, bwrapExemptSyscalls...)
	if ipc {
		allow = append(allow, proxyExemptSyscalls...)
	}
	return allow
}

// notifierAllow extracts the subset of a Notifier's exempt syscalls that
// resolve in-kernel via Allow. libseccomp.Builder has no separate Log
// bucket; ActionAllow is what keeps an exempted syscall from ever reaching
// the filter's notify default, which is the behavior exempt syscalls need.
func notifierAllow(notifier seccomp.Notifier) []string {
	if notifier == nil {
		return nil
	}
	var names []string
	for _, e := range notifier.Exempt() {
		if e.Action == seccomp.ActionAllow {
			names = append(names, e.Syscall)
		}
	}
	return names
}

// buildSeccompPlan constructs the filter(s) for mode, given the binary's
// known syscalls, whether IPC is enabled for this launch, and the Notifier
// that will eventually carry the monitor handoff fd (nil when mode needs no
// notify). Enforcing builds a bare kill-on-unknown outer filter for bwrap to
// load on itself plus a stricter profile-only child filter for bwrap to
// apply to the application; Permissive/Notifying build a single notify-on-
// unknown outer filter, with the Notifier's own exempt syscalls folded in so
// the driver can still hand off the listener fd once the filter is live.
func buildSeccompPlan(mode monitorModeOrDisabled, ipc bool, known []seccompdb.SyscallEntry, notifier seccomp.Notifier) (*seccompPlan, error) {
	profileAllow := allowedSyscallNames(known)

	switch mode {
	case seccompOff:
		return &seccompPlan{Mode: seccompOff}, nil

	case seccompEnforcing:
		outer, err := (&libseccomp.Builder{Allow: outerAllow(profileAllow, ipc), Default: seccomp.ActionKill}).Build()
		if err != nil {
			return nil, fmt.Errorf("build enforcing outer filter: %w", err)
		}
		child, err := (&libseccomp.Builder{Allow: profileAllow, Default: seccomp.ActionKill}).Build()
		if err != nil {
			return nil, fmt.Errorf("build enforcing child filter: %w", err)
		}
		return &seccompPlan{Mode: seccompEnforcing, OuterFilter: outer, ChildFilter: child}, nil

	case seccompPermissive, seccompNotifying:
		allow := append(outerAllow(profileAllow, ipc), notifierAllow(notifier)...)
		b := &libseccomp.Builder{Allow: allow, Default: seccomp.ActionNotify}
		filter, err := b.Build()
		if err != nil {
			return nil, fmt.Errorf("build notify filter: %w", err)
		}
		return &seccompPlan{Mode: mode, OuterFilter: filter, NeedsNotify: true}, nil

	default:
		return &seccompPlan{Mode: seccompOff}, nil
	}
}
