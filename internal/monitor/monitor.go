// Package monitor services a SECCOMP_RET_USER_NOTIF listener fd handed over
// from the sandboxed parent, deciding what to do with syscalls the Notify
// filter could not resolve in-kernel. Its Handler interface is modeled
// directly on ptracer.Handler: both describe "decide what to do with an
// intercepted syscall", just over different kernel APIs (ptrace vs.
// Notify) — the most direct "keep the shape, change the mechanism"
// translation in this codebase. Context plays the same role ptracer.Context
// does: it's the handler's view of one intercepted call, independent of the
// transport (a *libseccomp.Pair here, a ptrace register set there).
package monitor

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/antimony-sandbox/antimony/pkg/seccomp/libseccomp"
)

// Action is what the monitor does with one notification.
type Action int

const (
	// Allow lets the syscall proceed as the kernel would have run it.
	Allow Action = iota
	// AllowAndRecord allows it and additionally records it to the database
	// for a future Enforcing-mode policy.
	AllowAndRecord
	// Deny fails the syscall with EPERM without recording it.
	Deny
	// Kill sends SIGKILL to the offending thread and SIGTERM to its group.
	Kill
	// SpoofSuccess returns 0 to the caller without asking the kernel to run
	// the syscall at all — used for seccomp/prctl(PR_SET_SECCOMP) so a
	// child installing its own nested filter sees success while Antimony's
	// own filter (and Notify visibility) stays in force.
	SpoofSuccess
)

// Mode mirrors the profile's SECCOMP policy; the monitor only ever runs for
// Permissive and Notifying (Enforcing needs no monitor: spec.md §4.11).
type Mode int

const (
	Permissive Mode = iota
	Notifying
)

// Context is one intercepted syscall, independent of whatever kernel API
// delivered it. Comm is the offending thread's command name, Antimony's
// substitute for full audit-subsystem syscall-to-process correlation when a
// sandbox runs more than one distinct binary (spec.md §4.11's last
// sentence).
type Context struct {
	Pid         int
	SyscallName string
	Comm        string
}

// commOf reads the command name of pid from procfs, returning "" if it has
// already exited or /proc is unavailable. Best-effort: attribution is a
// simplification over full CAP_AUDIT_READ correlation, not a hard guarantee.
func commOf(pid int) string {
	raw, err := os.ReadFile(fmt.Sprintf("/proc/%d/comm", pid))
	if err != nil {
		return ""
	}
	return strings.TrimSuffix(string(raw), "\n")
}

// Decision is a Policy's answer for one observed (syscall, known?) pair.
type Decision struct {
	Action Action
	// Errno is used only when Action == Deny.
	Errno int32
}

// Policy decides what to do with a notification, given whether the syscall
// is already known (has a persisted rule) for this binary.
type Policy interface {
	Decide(mode Mode, syscallName string, known bool) Decision
}

// Handler is the per-notification decision interface the monitor's main
// loop calls through, named and shaped the way ptracer.Handler names its
// own per-syscall decision interface.
type Handler interface {
	// Handle decides what happens to ctx and returns the reply value/errno
	// to send back to the kernel.
	Handle(ctx *Context) (val int64, errno int32, action Action)

	Debug(v ...interface{})
}

// DefaultHandler implements Handler using a Policy and records AllowAndRecord
// decisions through Recorder.
type DefaultHandler struct {
	Mode     Mode
	Policy   Policy
	Recorder Recorder
	Verbose  bool
}

// Recorder persists an observed syscall, attributed to the binary that made
// it, for a future Enforcing policy.
type Recorder interface {
	Record(pid int, syscallName, comm string) error
}

var spoofedSyscalls = map[string]struct{}{
	"seccomp": {},
	"prctl":   {}, // only PR_SET_SECCOMP args are special-cased by the caller
}

// Handle implements Handler.
func (h *DefaultHandler) Handle(ctx *Context) (int64, int32, Action) {
	if _, spoof := spoofedSyscalls[ctx.SyscallName]; spoof {
		h.Debug("monitor: spoofing success for", ctx.SyscallName)
		return 0, 0, SpoofSuccess
	}

	decision := h.Policy.Decide(h.Mode, ctx.SyscallName, false)
	switch decision.Action {
	case Allow, AllowAndRecord:
		if decision.Action == AllowAndRecord && h.Recorder != nil {
			if err := h.Recorder.Record(ctx.Pid, ctx.SyscallName, ctx.Comm); err != nil {
				h.Debug("monitor: record failed:", err)
			}
		}
		return 0, 0, Allow
	case Deny:
		return 0, decision.Errno, Deny
	case Kill:
		return 0, 0, Kill
	default:
		return 0, 0, Allow
	}
}

// Debug implements Handler.
func (h *DefaultHandler) Debug(v ...interface{}) {
	if h.Verbose {
		log.Println(v...)
	}
}

// ErrListenerClosed is returned by Serve once the kernel has torn the
// Notify listener down (the tracee exited or exec'd past the owning filter).
var ErrListenerClosed = errors.New("monitor: notify listener closed")

// Serve loops libseccomp.Recv/handler.Handle/Reply on fd until the listener
// closes. killFunc is called with the offending pid for Kill decisions;
// exempt syscalls never reach here, having been resolved in-kernel by the
// filter's own exempt rules before the notify fd was ever created.
func Serve(fd int, handler Handler, killFunc func(pid int)) error {
	for {
		pair, err := libseccomp.Recv(fd)
		if err != nil {
			return ErrListenerClosed
		}

		name, err := libseccomp.ToSyscallName(uint(pair.Req.Data.Syscall))
		if err != nil {
			handler.Debug("monitor: unresolved syscall number:", pair.Req.Data.Syscall)
			continue
		}

		pid := int(pair.Req.Pid)
		ctx := &Context{Pid: pid, SyscallName: name, Comm: commOf(pid)}
		val, errno, action := handler.Handle(ctx)
		if action == Kill {
			killFunc(ctx.Pid)
			continue
		}
		if err := pair.Reply(fd, val, errno); err != nil {
			handler.Debug("monitor: reply failed:", err)
		}
	}
}
