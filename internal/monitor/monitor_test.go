package monitor

import "testing"

type recordCall struct {
	pid  int
	name string
	comm string
}

type fakeRecorder struct {
	calls []recordCall
}

func (f *fakeRecorder) Record(pid int, syscallName, comm string) error {
	f.calls = append(f.calls, recordCall{pid, syscallName, comm})
	return nil
}

func TestHandleSpoofsSeccompInstall(t *testing.T) {
	h := &DefaultHandler{Mode: Permissive, Policy: &TablePolicy{}}
	val, errno, action := h.Handle(&Context{Pid: 123, SyscallName: "seccomp"})
	if action != SpoofSuccess || val != 0 || errno != 0 {
		t.Fatalf("Handle(seccomp) = (%d, %d, %v), want SpoofSuccess", val, errno, action)
	}
}

func TestHandlePermissiveAllowsAndRecordsUnknown(t *testing.T) {
	rec := &fakeRecorder{}
	h := &DefaultHandler{Mode: Permissive, Policy: &TablePolicy{}, Recorder: rec}

	_, _, action := h.Handle(&Context{Pid: 42, SyscallName: "openat"})
	if action != Allow {
		t.Fatalf("action = %v, want Allow", action)
	}
	if len(rec.calls) != 1 || rec.calls[0] != (recordCall{42, "openat", ""}) {
		t.Fatalf("recorder calls = %v", rec.calls)
	}
}

func TestHandleNotifyingAsksPolicy(t *testing.T) {
	asked := ""
	policy := &TablePolicy{Ask: func(name string) Decision {
		asked = name
		return Decision{Action: Kill}
	}}
	h := &DefaultHandler{Mode: Notifying, Policy: policy}

	_, _, action := h.Handle(&Context{Pid: 1, SyscallName: "ptrace"})
	if action != Kill {
		t.Fatalf("action = %v, want Kill", action)
	}
	if asked != "ptrace" {
		t.Fatalf("asked = %q, want ptrace", asked)
	}
}

func TestHandleNotifyingWithoutAskDeniesRatherThanAllowing(t *testing.T) {
	h := &DefaultHandler{Mode: Notifying, Policy: &TablePolicy{}}
	_, errno, action := h.Handle(&Context{Pid: 1, SyscallName: "mount"})
	if action != Deny || errno == 0 {
		t.Fatalf("action = %v, errno = %d, want Deny with non-zero errno", action, errno)
	}
}

func TestTablePolicyAllowsKnownRegardlessOfMode(t *testing.T) {
	p := &TablePolicy{}
	d := p.Decide(Notifying, "read", true)
	if d.Action != Allow {
		t.Fatalf("Decide(known) = %v, want Allow", d.Action)
	}
}
