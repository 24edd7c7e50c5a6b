// Package driver implements the top-level sandbox state machine: resolve a
// profile, fabricate its SOF/IPC-proxy/SECCOMP-policy dependencies in
// parallel, launch the notify monitor and bwrap, then wait and tear
// everything down in reverse. It mirrors spec.md §4.12's state machine
// (Init → Resolve → Fabricate ∥ → LaunchMonitor? → LaunchBwrap → DeliverFD? →
// Wait → Teardown), using golang.org/x/sync/errgroup the way the teacher's
// own packages use goroutines plus a WaitGroup for the fabricate stage's
// thread-pool-scheduled work (internal/which's parallel PATH search is the
// nearest precedent).
package driver

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/antimony-sandbox/antimony/internal/envconf"
	"github.com/antimony-sandbox/antimony/internal/privilege"
	"github.com/antimony-sandbox/antimony/internal/profile"
	"github.com/antimony-sandbox/antimony/internal/seccompdb"
	"github.com/antimony-sandbox/antimony/internal/sof"
	"github.com/antimony-sandbox/antimony/internal/spawner"
	"github.com/antimony-sandbox/antimony/internal/temp"
	"github.com/antimony-sandbox/antimony/internal/which"
	"github.com/antimony-sandbox/antimony/pkg/forkexec"
	"github.com/antimony-sandbox/antimony/pkg/unixsocket"
)

// Driver owns the resources shared across sandbox launches: the feature
// store profiles are expanded against, the SECCOMP database, and the paths
// to the external helper binaries it spawns.
type Driver struct {
	Features profile.FeatureStore
	DB       *seccompdb.DB

	// DBPath is the on-disk seccompdb the spawned antimony-monitor opens for
	// itself, since it runs as a separate process from this one and cannot
	// share DB's open handle. Defaults to envconf's per-user database.
	DBPath string

	// MonitorPath overrides where cmd/antimony-monitor's binary is found;
	// resolved through internal/which when empty.
	MonitorPath string

	// WaitTimeout bounds how long the fabricate stage's proxy/SOF waits
	// block before the launch fails (spec.md §5's "wait_timeout").
	WaitTimeout time.Duration

	Verbose bool
}

// New returns a Driver with the default wait timeout and database path.
func New(features profile.FeatureStore, db *seccompdb.DB) *Driver {
	return &Driver{
		Features:    features,
		DB:          db,
		DBPath:      filepath.Join(envconf.UserConfigDir(), "seccomp.db"),
		WaitTimeout: 10 * time.Second,
	}
}

// Handle is a running sandbox launch. Wait blocks for the target to exit;
// Teardown (called automatically by Wait, and safe to call again) unwinds
// every associated resource in reverse launch order.
type Handle struct {
	PID int

	monitorPid  int
	monitorSock *unixsocket.Socket
	proxy       *proxyHandle
	homeTemp    *temp.Instance
	stageTemp   *temp.Instance
	profileName string
	hash        string

	torndown bool
}

// Run executes Init through DeliverFD and returns a Handle for the caller
// to Wait on. targetPath is the resolved, absolute path to the binary bwrap
// will execve; targetArgs are appended after it.
func (d *Driver) Run(profileName, configuration string, targetPath string, targetArgs []string) (*Handle, error) {
	p, hash, err := profile.Resolve(profileName, configuration, d.Features)
	if err != nil {
		return nil, stageErr(StageResolve, err)
	}

	result, err := resolveDependencies(targetPath, p)
	if err != nil {
		return nil, stageErr(StageDependencies, err)
	}
	entries := sofEntries(result)
	mode := modeOf(p)

	var manifest *sof.Manifest
	var proxy *proxyHandle
	var known []seccompdb.SyscallEntry

	g := new(errgroup.Group)
	g.Go(func() error {
		m, err := sof.Build(profileName, hash, entries, d.WaitTimeout)
		if err != nil {
			return fmt.Errorf("fabricate SOF: %w", err)
		}
		manifest = m
		return nil
	})
	if ipcEnabled(p.Ipc) {
		g.Go(func() error {
			ph, err := launchProxy(p, profileName, hash, d.WaitTimeout)
			if err != nil {
				return fmt.Errorf("fabricate IPC proxy: %w", err)
			}
			proxy = ph
			return nil
		})
	}
	if mode != seccompOff && d.DB != nil {
		g.Go(func() error {
			entries, err := d.DB.Policy(profileName)
			if err != nil {
				return fmt.Errorf("query SECCOMP policy: %w", err)
			}
			known = entries
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		proxy.teardown()
		return nil, stageErr(StageFabricate, err)
	}

	notifier := newHandoffNotifier()
	plan, err := buildSeccompPlan(mode, ipcEnabled(p.Ipc), known, notifier)
	if err != nil {
		proxy.teardown()
		return nil, stageErr(StageSeccomp, err)
	}

	homeDir, homeInstance, err := d.prepareHome(p, profileName)
	if err != nil {
		proxy.teardown()
		return nil, stageErr(StageHome, err)
	}

	stageInstance, err := temp.NewBuilder().Owner(privilege.Real).Within(envconf.RuntimeDir()).Make(true).
		Build(temp.NewDirectory)
	if err != nil {
		teardownTemp(homeInstance)
		proxy.teardown()
		return nil, stageErr(StageStage, err)
	}
	staged, err := StageDirectFiles(p.Files, stageInstance.Full())
	if err != nil {
		stageInstance.Remove()
		teardownTemp(homeInstance)
		proxy.teardown()
		return nil, stageErr(StageStage, err)
	}

	var monitorPid int
	var driverEnd *unixsocket.Socket
	if plan.NeedsNotify {
		pid, sock, err := d.launchMonitor(mode, profileName, result.Binaries)
		if err != nil {
			stageInstance.Remove()
			teardownTemp(homeInstance)
			proxy.teardown()
			return nil, stageErr(StageMonitor, err)
		}
		monitorPid = pid
		driverEnd = sock
		notifier.sock = sock
	}

	targetArgv := append([]string{targetPath}, targetArgs...)
	pid, notifyFd, err := d.launchBwrap(p, manifest, homeDir, staged, plan, targetArgv)
	if err != nil {
		killIfSet(monitorPid)
		stageInstance.Remove()
		teardownTemp(homeInstance)
		proxy.teardown()
		return nil, stageErr(StageBwrap, err)
	}

	h := &Handle{
		PID:         pid,
		monitorPid:  monitorPid,
		monitorSock: driverEnd,
		proxy:       proxy,
		homeTemp:    homeInstance,
		stageTemp:   stageInstance,
		profileName: profileName,
		hash:        hash,
	}

	if plan.NeedsNotify {
		notifier.Handle(notifyFd)
		_ = syscall.Close(notifyFd)
		if notifier.err != nil {
			killIfSet(pid)
			h.Teardown()
			return nil, stageErr(StageHandoff, notifier.err)
		}
	}
	return h, nil
}

func killIfSet(pid int) {
	if pid > 0 {
		_ = syscall.Kill(pid, syscall.SIGKILL)
	}
}

// prepareHome materialises the profile's home directory if it has one,
// returning the on-disk path to bind and the temp.Instance owning its
// lifetime (always nil here: Home/Enabled/ReadOnly/Overlay all bind the same
// persisted directory, none of them need a scratch object of their own).
// Overlay's freezing behavior (writes discarded, reads see the configured
// state) is bwrap's own --overlay-src/--tmp-overlay job, see homeArgs; the
// driver itself does not need to fake it with an empty temp directory.
func (d *Driver) prepareHome(p *profile.Profile, profileName string) (string, *temp.Instance, error) {
	if p.Home == nil || p.Home.Policy == nil || *p.Home.Policy == profile.HomeNone {
		return "", nil, nil
	}

	dataPath := p.Home.DataPath(profileName)
	if err := privilege.RunAs(privilege.Real, func() error {
		return os.MkdirAll(dataPath, 0o755)
	}); err != nil {
		return "", nil, err
	}
	return dataPath, nil, nil
}

func teardownTemp(inst *temp.Instance) {
	if inst != nil {
		_ = inst.Remove()
	}
}

// launchMonitor creates a socketpair, hands one end to a freshly spawned
// cmd/antimony-monitor, and keeps the other end to deliver the notify fd
// once bwrap's filter is loaded (spec.md §4.11's handoff choreography).
func (d *Driver) launchMonitor(mode monitorModeOrDisabled, profileName string, binaries []string) (int, *unixsocket.Socket, error) {
	monitorPath := d.MonitorPath
	if monitorPath == "" {
		path, err := which.Which("antimony-monitor")
		if err != nil {
			return 0, nil, fmt.Errorf("locate antimony-monitor: %w", err)
		}
		monitorPath = path
	}

	driverEnd, monitorEnd, err := unixsocket.NewSocketPair()
	if err != nil {
		return 0, nil, fmt.Errorf("create handoff socketpair: %w", err)
	}

	monitorFile, err := monitorEnd.File()
	if err != nil {
		driverEnd.Close()
		monitorEnd.Close()
		return 0, nil, fmt.Errorf("dup handoff socket: %w", err)
	}

	modeFlag := "permissive"
	if mode == seccompNotifying {
		modeFlag = "notifying"
	}

	b := spawner.New(monitorPath).
		Arg("-mode=" + modeFlag).
		Arg("-db=" + d.DBPath).
		Arg("-profile=" + profileName).
		Arg("-binaries=" + strings.Join(binaries, ",")).
		FD(monitorFile.Fd())
	b.Arg("-socket-fd=3")
	if d.Verbose {
		b.Arg("-verbose=true")
	}

	pid, err := b.Spawn(os.Environ(), nil)
	_ = monitorFile.Close()
	_ = monitorEnd.Close()
	if err != nil {
		driverEnd.Close()
		return 0, nil, fmt.Errorf("spawn antimony-monitor: %w", err)
	}
	return pid, driverEnd, nil
}

// launchBwrap builds the bwrap argv and spawns it, installing the SECCOMP
// filter(s) the way the mode requires. Enforcing installs two: OuterFilter
// goes straight onto bwrap via forkexec.Runner.Seccomp (no listener; it
// confines bwrap itself, plus anything it forks, against its own
// sandbox-escape bugs), and ChildFilter is piped to bwrap through an fd for
// bwrap's own --seccomp <n> flag, which bwrap applies only to the
// sandboxed application (spec.md §9's Dual SECCOMP filter design). The
// Permissive/Notifying single filter goes on via the same Runner.Seccomp
// path, but with SECCOMP_FILTER_FLAG_NEW_LISTENER so bwrap (and everything
// it forks) runs under Antimony's filter with a live notify fd.
func (d *Driver) launchBwrap(p *profile.Profile, manifest *sof.Manifest, homeDir string, staged map[string]string, plan *seccompPlan, targetArgv []string) (int, int, error) {
	bwrapPath, err := which.Which("bwrap")
	if err != nil {
		return 0, 0, fmt.Errorf("locate bwrap: %w", err)
	}

	builder := spawner.New(bwrapPath)
	var extraFlags []string
	var filterFile *os.File

	if plan.Mode == seccompEnforcing {
		r, w, err := os.Pipe()
		if err != nil {
			return 0, 0, fmt.Errorf("create filter pipe: %w", err)
		}
		filterFile = r
		if _, err := w.Write(plan.ChildFilter); err != nil {
			w.Close()
			r.Close()
			return 0, 0, fmt.Errorf("write filter to pipe: %w", err)
		}
		w.Close()
		builder.FD(r.Fd())
		extraFlags = []string{"--seccomp", strconv.Itoa(3)}
	}

	argv := BuildArgs(p, manifest, homeDir, staged, extraFlags, targetArgv)
	builder.Args(argv...)

	runner := builder.Runner(os.Environ(), nil)
	var notifyFd int
	switch {
	case plan.NeedsNotify:
		runner.Seccomp = plan.OuterFilter.SockFprog()
		runner.SeccompFlags = forkexec.SECCOMP_FILTER_FLAG_NEW_LISTENER
		runner.NotifyFd = &notifyFd
	case plan.Mode == seccompEnforcing:
		runner.Seccomp = plan.OuterFilter.SockFprog()
	}

	pid, err := runner.Start()
	if filterFile != nil {
		filterFile.Close()
	}
	if err != nil {
		return 0, 0, err
	}
	if !plan.NeedsNotify {
		return pid, 0, nil
	}
	return pid, notifyFd, nil
}

// Wait blocks until the sandboxed target exits, then tears every associated
// resource down in reverse through Teardown. The notify fd, if any, has
// already been handed to the monitor by Run.
func (h *Handle) Wait() (int, error) {
	var ws syscall.WaitStatus
	_, err := syscall.Wait4(h.PID, &ws, 0, nil)
	h.Teardown()
	if err != nil {
		return -1, err
	}
	return ws.ExitStatus(), nil
}

// Teardown unwinds bwrap, the monitor, the proxy, and every temp object in
// reverse launch order (spec.md §4.12). Safe to call more than once.
func (h *Handle) Teardown() {
	if h.torndown {
		return
	}
	h.torndown = true

	_ = syscall.Kill(h.PID, syscall.SIGTERM)

	if h.monitorPid > 0 {
		_ = syscall.Kill(h.monitorPid, syscall.SIGTERM)
		var ws syscall.WaitStatus
		_, _ = syscall.Wait4(h.monitorPid, &ws, 0, nil)
	}
	if h.monitorSock != nil {
		h.monitorSock.Close()
	}

	h.proxy.teardown()

	if h.stageTemp != nil {
		_ = h.stageTemp.Remove()
	}
	if h.homeTemp != nil {
		_ = h.homeTemp.Remove()
	}
}
