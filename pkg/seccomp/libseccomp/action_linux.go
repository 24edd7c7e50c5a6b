package libseccomp

import (
	"github.com/antimony-sandbox/antimony/pkg/seccomp"
	libseccomp "github.com/seccomp/libseccomp-golang"
)

// ToSeccompAction converts a portable seccomp.Action into the
// libseccomp-golang action used to build the actual filter.
func ToSeccompAction(a seccomp.Action) libseccomp.ScmpAction {
	var action libseccomp.ScmpAction
	switch a.Action() {
	case seccomp.ActionAllow:
		action = libseccomp.ActAllow
	case seccomp.ActionErrno:
		action = libseccomp.ActErrno
	case seccomp.ActionTrace:
		action = libseccomp.ActTrace
	case seccomp.ActionNotify:
		action = libseccomp.ActNotify
	default:
		action = libseccomp.ActKillProcess
	}
	// the least 16 bit of ret value is SECCOMP_RET_DATA
	return action.SetReturnCode(a.ReturnCode())
}
