package libseccomp

import (
	libseccomp "github.com/seccomp/libseccomp-golang"
)

// Pair wraps a single request/response round trip over a
// SECCOMP_RET_USER_NOTIF listener fd.
type Pair struct {
	Req  *libseccomp.ScmpNotifReq
	Resp *libseccomp.ScmpNotifResp
}

// Recv blocks until a notification arrives on fd, or returns an error once
// the kernel has torn the listener down (the traced process exited or
// exec'd past the filter that owned it).
func Recv(fd int) (*Pair, error) {
	req, err := libseccomp.NotifReceive(libseccomp.ScmpFd(fd))
	if err != nil {
		return nil, err
	}
	return &Pair{Req: req, Resp: &libseccomp.ScmpNotifResp{ID: req.ID}}, nil
}

// Reply sends val/errno back for the request received by Recv, having first
// confirmed the request is still valid: the kernel invalidates the id the
// moment the tracee races ahead (e.g. it was killed, or a signal interrupted
// the syscall) so a stale reply cannot be misapplied to an unrelated one.
// errno is a positive errno value (0 for success); it is negated here because
// the kernel takes the response's error field as the syscall's return value.
func (p *Pair) Reply(fd int, val int64, errno int32) error {
	if err := libseccomp.NotifIDValid(libseccomp.ScmpFd(fd), p.Req.ID); err != nil {
		return err
	}
	p.Resp.ID = p.Req.ID
	p.Resp.Val = val
	p.Resp.Error = -errno
	return libseccomp.NotifRespond(libseccomp.ScmpFd(fd), p.Resp)
}
