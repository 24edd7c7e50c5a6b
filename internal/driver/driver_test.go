package driver

import (
	"testing"

	"github.com/antimony-sandbox/antimony/internal/depresolve"
	"github.com/antimony-sandbox/antimony/internal/profile"
	"github.com/antimony-sandbox/antimony/internal/seccompdb"
)

func TestModeOfMapsEachPolicy(t *testing.T) {
	cases := []struct {
		policy *profile.SeccompPolicy
		want   monitorModeOrDisabled
	}{
		{nil, seccompOff},
		{policyPtr(profile.SeccompEnforcing), seccompEnforcing},
		{policyPtr(profile.SeccompPermissive), seccompPermissive},
		{policyPtr(profile.SeccompNotifying), seccompNotifying},
	}
	for _, c := range cases {
		p := &profile.Profile{Seccomp: c.policy}
		if got := modeOf(p); got != c.want {
			t.Fatalf("modeOf(%v) = %v, want %v", c.policy, got, c.want)
		}
	}
}

func policyPtr(p profile.SeccompPolicy) *profile.SeccompPolicy { return &p }

func TestIpcEnabledDefaultsToEnabled(t *testing.T) {
	if ipcEnabled(nil) {
		t.Fatal("ipcEnabled(nil) = true, want false")
	}
	if !ipcEnabled(&profile.Ipc{}) {
		t.Fatal("ipcEnabled(&Ipc{}) = false, want true")
	}
	disabled := true
	if ipcEnabled(&profile.Ipc{Disable: &disabled}) {
		t.Fatal("ipcEnabled should be false when Disable is true")
	}
}

func TestAllowedSyscallNamesDropsUnknownNumbers(t *testing.T) {
	entries := []seccompdb.SyscallEntry{{Number: 1 << 30, Arch: "unknown"}}
	got := allowedSyscallNames(entries)
	if len(got) != 0 {
		t.Fatalf("allowedSyscallNames = %v, want none resolved for a bogus syscall number", got)
	}
}

func TestSofEntriesSeparatesFilesFromDirectories(t *testing.T) {
	r := depresolve.Result{
		Libraries:   []string{"/lib/libc.so.6"},
		Directories: []string{"/usr/share/fonts"},
	}
	entries := sofEntries(r)
	if len(entries) != 2 {
		t.Fatalf("entries = %v, want 2", entries)
	}
	var sawFile, sawDir bool
	for _, e := range entries {
		switch e.Source {
		case "/lib/libc.so.6":
			sawFile = true
			if e.Directory {
				t.Fatal("library entry marked as directory")
			}
		case "/usr/share/fonts":
			sawDir = true
			if !e.Directory {
				t.Fatal("directory entry not marked as directory")
			}
		}
	}
	if !sawFile || !sawDir {
		t.Fatalf("entries = %v, missing file or directory entry", entries)
	}
}

func TestBuildSeccompPlanOffWhenModeDisabled(t *testing.T) {
	plan, err := buildSeccompPlan(seccompOff, false, nil, nil)
	if err != nil {
		t.Fatalf("buildSeccompPlan: %v", err)
	}
	if plan.Mode != seccompOff || plan.NeedsNotify {
		t.Fatalf("plan = %+v, want disabled plan needing no notify", plan)
	}
}

func TestBuildSeccompPlanEnforcingNeedsNoNotify(t *testing.T) {
	plan, err := buildSeccompPlan(seccompEnforcing, false, nil, nil)
	if err != nil {
		t.Fatalf("buildSeccompPlan: %v", err)
	}
	if plan.NeedsNotify {
		t.Fatal("enforcing mode should not request a notify fd")
	}
	if len(plan.OuterFilter) == 0 {
		t.Fatal("enforcing mode should produce a non-empty outer filter")
	}
	if len(plan.ChildFilter) == 0 {
		t.Fatal("enforcing mode should produce a non-empty child filter")
	}
}

func TestBuildSeccompPlanEnforcingOuterFilterUnionsBwrapAndProxyExempt(t *testing.T) {
	known := []seccompdb.SyscallEntry{}
	withoutIPC, err := buildSeccompPlan(seccompEnforcing, false, known, nil)
	if err != nil {
		t.Fatalf("buildSeccompPlan: %v", err)
	}
	withIPC, err := buildSeccompPlan(seccompEnforcing, true, known, nil)
	if err != nil {
		t.Fatalf("buildSeccompPlan: %v", err)
	}
	if len(withIPC.OuterFilter) <= len(withoutIPC.OuterFilter) {
		t.Fatalf("outer filter with IPC on (%d bytes) should be a strict superset of IPC off (%d bytes)",
			len(withIPC.OuterFilter), len(withoutIPC.OuterFilter))
	}
}

func TestBuildSeccompPlanNotifyingNeedsNotify(t *testing.T) {
	plan, err := buildSeccompPlan(seccompNotifying, false, nil, newHandoffNotifier())
	if err != nil {
		t.Fatalf("buildSeccompPlan: %v", err)
	}
	if !plan.NeedsNotify {
		t.Fatal("notifying mode should request a notify fd")
	}
}

func TestNotifierAllowExtractsOnlyAllowActions(t *testing.T) {
	got := notifierAllow(newHandoffNotifier())
	if len(got) != 1 || got[0] != "sendmsg" {
		t.Fatalf("notifierAllow = %v, want [sendmsg]", got)
	}
}

func TestProxyTeardownIsNilSafe(t *testing.T) {
	var h *proxyHandle
	h.teardown()
}

func TestSessionBusAddressParsesUnixPath(t *testing.T) {
	t.Setenv("DBUS_SESSION_BUS_ADDRESS", "unix:path=/run/user/1000/bus,guid=deadbeef")
	if got := sessionBusAddress(); got != "/run/user/1000/bus" {
		t.Fatalf("sessionBusAddress() = %q, want /run/user/1000/bus", got)
	}
}

func TestSessionBusAddressFallsBackToRuntimeDir(t *testing.T) {
	t.Setenv("DBUS_SESSION_BUS_ADDRESS", "")
	if got := sessionBusAddress(); got == "" {
		t.Fatal("sessionBusAddress() = \"\", want a fallback path")
	}
}
