package ipcproxy

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/antimony-sandbox/antimony/internal/profile"
)

func boolPtr(b bool) *bool { return &b }

func TestArgsBuildsSeeTalkOwnCall(t *testing.T) {
	policy := profile.Ipc{
		See:  profile.StringSet{"org.example.Peer": {}},
		Talk: profile.StringSet{"org.freedesktop.Notifications": {}},
		Own:  profile.StringSet{"org.example.App": {}},
		Call: profile.StringSet{"org.example.Service=*": {}},
	}
	argv := Args(policy, "/run/user/1000/bus", "", "/tmp/proxy.sock")

	want := map[string]bool{
		"--see=org.example.Peer":               false,
		"--talk=org.freedesktop.Notifications": false,
		"--own=org.example.App":                false,
		"--call=org.example.Service=*":         false,
		"--filter":                             false,
	}
	for _, a := range argv {
		if _, ok := want[a]; ok {
			want[a] = true
		}
	}
	for flag, seen := range want {
		if !seen {
			t.Fatalf("expected %q in argv, got %v", flag, argv)
		}
	}
	if argv[0] != "/run/user/1000/bus" || argv[1] != "/tmp/proxy.sock" {
		t.Fatalf("expected session bus and out socket to lead argv, got %v", argv)
	}
}

func TestArgsIncludesSystemBusWhenEnabled(t *testing.T) {
	policy := profile.Ipc{SystemBus: boolPtr(true)}
	argv := Args(policy, "/run/user/1000/bus", "/run/dbus/system_bus_socket", "/tmp/proxy.sock")

	found := false
	for _, a := range argv {
		if a == "/run/dbus/system_bus_socket" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected system bus socket in argv, got %v", argv)
	}
}

func TestWaitReturnsImmediatelyIfSocketAlreadyExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "proxy.sock")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := Wait(path, 50*time.Millisecond); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}

func TestWaitObservesLateSocketCreation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "proxy.sock")

	done := make(chan error, 1)
	go func() { done <- Wait(path, time.Second) }()

	time.Sleep(30 * time.Millisecond)
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Wait: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not observe socket creation in time")
	}
}

func TestWaitTimesOut(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "never.sock")
	err := Wait(path, 30*time.Millisecond)
	if err != ErrTimeout {
		t.Fatalf("Wait err = %v, want ErrTimeout", err)
	}
}
