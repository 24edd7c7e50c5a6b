package driver

import (
	"path/filepath"

	scmp "github.com/seccomp/libseccomp-golang"

	"github.com/antimony-sandbox/antimony/internal/monitor"
	"github.com/antimony-sandbox/antimony/internal/seccompdb"
)

// DBRecorder implements monitor.Recorder by resolving a notified thread's
// comm back to one of the sandbox's known binaries (falling back to the
// bare comm name when no match is found, e.g. a re-exec'd helper process)
// and persisting the syscall against it. It is exported so cmd/antimony-monitor,
// a separate process from the driver, can construct one against its own
// seccompdb connection once the driver hands it the profile name and binary
// list on the command line.
type DBRecorder struct {
	db          *seccompdb.DB
	profileName string
	arch        string
	byComm      map[string]string
}

// NewDBRecorder builds a DBRecorder that persists to db under profileName,
// attributing notifications by matching a thread's /proc comm against the
// base name of each path in binaries.
func NewDBRecorder(db *seccompdb.DB, profileName string, binaries []string) *DBRecorder {
	byComm := make(map[string]string, len(binaries))
	for _, b := range binaries {
		byComm[filepath.Base(b)] = b
	}
	arch := "unknown"
	if native, err := scmp.GetNativeArch(); err == nil {
		arch = native.String()
	}
	return &DBRecorder{db: db, profileName: profileName, arch: arch, byComm: byComm}
}

// Record implements monitor.Recorder.
func (r *DBRecorder) Record(pid int, syscallName, comm string) error {
	path, ok := r.byComm[comm]
	if !ok {
		path = comm
	}
	sysno, err := scmp.GetSyscallFromName(syscallName)
	if err != nil {
		return err
	}
	return r.db.Insert(r.profileName, path, int(sysno), r.arch)
}

var _ monitor.Recorder = (*DBRecorder)(nil)
