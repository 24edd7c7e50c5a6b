package driver

import (
	"github.com/antimony-sandbox/antimony/pkg/seccomp"
	"github.com/antimony-sandbox/antimony/pkg/unixsocket"
)

// handoffNotifier implements pkg/seccomp.Notifier for the driver side of the
// monitor handoff. Unlike the monitor, it never services a notify fd itself
// (the monitor does that, once it has the fd); it exists so the filter
// Antimony loads onto bwrap reserves sendmsg for the driver's own use,
// mirroring syscalls.rs's Notifier.
type handoffNotifier struct {
	sock *unixsocket.Socket
	err  error
}

func newHandoffNotifier() *handoffNotifier {
	return &handoffNotifier{}
}

// Exempt reserves sendmsg: without it, the driver's own handoff call would
// be caught by the filter it just loaded, deadlocking the sandboxed process
// before the monitor ever receives the listener fd.
func (n *handoffNotifier) Exempt() []seccomp.NotifyExemption {
	return []seccomp.NotifyExemption{{Action: seccomp.ActionAllow, Syscall: "sendmsg"}}
}

// Prepare is a no-op here: the handoff socketpair is created and both ends
// are already connected before the filter is ever built, unlike the
// original's path-based UnixStream which waits for the monitor to listen.
func (n *handoffNotifier) Prepare() error {
	return nil
}

// Handle sends fd to the monitor over the handoff socket. Any error is kept
// rather than returned, matching the Notifier interface's signature; Run
// checks n.err immediately after calling this.
func (n *handoffNotifier) Handle(fd int) {
	n.err = n.sock.SendMsg([]byte{0}, unixsocket.Msg{Fds: []int{fd}})
}
