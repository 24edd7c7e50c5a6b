package libseccomp

import (
	"io/ioutil"
	"os"

	"github.com/antimony-sandbox/antimony/pkg/seccomp"
	libseccomp "github.com/seccomp/libseccomp-golang"
)

// Builder is used to build the filter
type Builder struct {
	Allow, Trace []string
	// Notify lists the syscalls that should suspend the caller and be
	// delivered to a SECCOMP_RET_USER_NOTIF monitor instead of being
	// decided in-kernel. Requires BuildWithNotify.
	Notify  []string
	Default seccomp.Action
}

var actTrace = libseccomp.ActTrace.SetReturnCode(seccomp.MsgHandle)

// Build builds the filter and exports it to BPF, discarding the libseccomp
// context. Use BuildWithNotify when a notify fd must be retained.
func (b *Builder) Build() (seccomp.Filter, error) {
	filter, err := b.newFilter()
	if err != nil {
		return nil, err
	}
	defer filter.Release()
	return ExportBPF(filter)
}

// BuildWithNotify builds the filter, loads it into the kernel and returns the
// notify fd used to service ActionNotify syscalls. The caller owns the
// returned fd and must close it after it is done servicing notifications.
func (b *Builder) BuildWithNotify() (seccomp.Filter, int, error) {
	filter, err := b.newFilter()
	if err != nil {
		return nil, -1, err
	}
	defer filter.Release()

	prog, err := ExportBPF(filter)
	if err != nil {
		return nil, -1, err
	}
	if err = filter.Load(); err != nil {
		return nil, -1, err
	}
	fd, err := filter.GetNotifFd()
	if err != nil {
		return nil, -1, err
	}
	return prog, int(fd), nil
}

func (b *Builder) newFilter() (*libseccomp.ScmpFilter, error) {
	filter, err := libseccomp.NewFilter(ToSeccompAction(b.Default))
	if err != nil {
		return nil, err
	}
	if err = addFilterActions(filter, b.Allow, libseccomp.ActAllow); err != nil {
		filter.Release()
		return nil, err
	}
	if err = addFilterActions(filter, b.Trace, actTrace); err != nil {
		filter.Release()
		return nil, err
	}
	if err = addFilterActions(filter, b.Notify, libseccomp.ActNotify); err != nil {
		filter.Release()
		return nil, err
	}
	return filter, nil
}

// ExportBPF convert libseccomp filter to kernel readable BPF content
func ExportBPF(filter *libseccomp.ScmpFilter) (seccomp.Filter, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	defer r.Close()
	// export BPF to pipe
	go func() {
		filter.ExportBPF(w)
		w.Close()
	}()

	// get BPF binary
	bin, err := ioutil.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return seccomp.Filter(bin), nil
}

func addFilterActions(filter *libseccomp.ScmpFilter, names []string, action libseccomp.ScmpAction) error {
	for _, s := range names {
		if err := addFilterAction(filter, s, action); err != nil {
			return err
		}
	}
	return nil
}

func addFilterAction(filter *libseccomp.ScmpFilter, name string, action libseccomp.ScmpAction) error {
	syscallID, err := libseccomp.GetSyscallFromName(name)
	if err != nil {
		return err
	}
	if err = filter.AddRule(syscallID, action); err != nil {
		return err
	}
	return nil
}
