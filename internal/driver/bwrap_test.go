package driver

import (
	"os"
	"strings"
	"testing"

	"github.com/antimony-sandbox/antimony/internal/profile"
	"github.com/antimony-sandbox/antimony/internal/sof"
)

func contains(argv []string, want ...string) bool {
	joined := " " + strings.Join(argv, " ") + " "
	target := " " + strings.Join(want, " ") + " "
	return strings.Contains(joined, target)
}

func TestBuildArgsUnsharesNamedNamespaces(t *testing.T) {
	p := &profile.Profile{Namespaces: profile.NamespaceSet{profile.NamespaceNet: {}, profile.NamespaceIPC: {}}}
	argv := BuildArgs(p, nil, "", nil, nil, []string{"/bin/true"})
	if !contains(argv, "--unshare-net") || !contains(argv, "--unshare-ipc") {
		t.Fatalf("argv = %v, want --unshare-net and --unshare-ipc", argv)
	}
	if contains(argv, "--unshare-all") {
		t.Fatalf("argv = %v, should not unshare-all for a partial namespace set", argv)
	}
}

func TestBuildArgsUnshareAllShortCircuits(t *testing.T) {
	p := &profile.Profile{Namespaces: profile.NamespaceSet{profile.NamespaceAll: {}, profile.NamespaceNet: {}}}
	argv := BuildArgs(p, nil, "", nil, nil, []string{"/bin/true"})
	if !contains(argv, "--unshare-all") {
		t.Fatalf("argv = %v, want --unshare-all", argv)
	}
	if contains(argv, "--unshare-net") {
		t.Fatalf("argv = %v, --unshare-all should short-circuit individual flags", argv)
	}
}

func TestBuildArgsBindsSOFAndWholesaleDirectories(t *testing.T) {
	p := &profile.Profile{}
	manifest := &sof.Manifest{Profile: "app", Hash: "deadbeef", Directories: []string{"/usr/share/fonts"}}
	argv := BuildArgs(p, manifest, "", nil, nil, []string{"/bin/true"})
	if !contains(argv, "--ro-bind", sof.LibDir("app", "deadbeef"), "/usr/lib") {
		t.Fatalf("argv = %v, want SOF lib bind", argv)
	}
	if !contains(argv, "--ro-bind", "/usr/share/fonts", "/usr/share/fonts") {
		t.Fatalf("argv = %v, want wholesale directory bind", argv)
	}
}

func TestBuildArgsAppendsNewSessionUnlessNewPrivileges(t *testing.T) {
	p := &profile.Profile{}
	argv := BuildArgs(p, nil, "", nil, nil, []string{"/bin/true"})
	if !contains(argv, "--new-session") {
		t.Fatalf("argv = %v, want --new-session by default", argv)
	}

	allow := true
	p2 := &profile.Profile{NewPrivileges: &allow}
	argv2 := BuildArgs(p2, nil, "", nil, nil, []string{"/bin/true"})
	if contains(argv2, "--new-session") {
		t.Fatalf("argv = %v, should omit --new-session when new_privileges is allowed", argv2)
	}
}

func TestBuildArgsHomePolicies(t *testing.T) {
	ro := profile.HomeReadOnly
	p := &profile.Profile{Home: &profile.Home{Policy: &ro}}
	argv := BuildArgs(p, nil, "/data/home", nil, nil, []string{"/bin/true"})
	if !contains(argv, "--ro-bind", "/data/home", "/home/antimony") {
		t.Fatalf("argv = %v, want read-only home bind", argv)
	}

	none := profile.HomeNone
	p2 := &profile.Profile{Home: &profile.Home{Policy: &none}}
	argv2 := BuildArgs(p2, nil, "", nil, nil, []string{"/bin/true"})
	if !contains(argv2, "--tmpfs", "/home") {
		t.Fatalf("argv = %v, want tmpfs /home when home is disabled", argv2)
	}

	overlay := profile.HomeOverlay
	p3 := &profile.Profile{Home: &profile.Home{Policy: &overlay}}
	argv3 := BuildArgs(p3, nil, "/data/home", nil, nil, []string{"/bin/true"})
	if !contains(argv3, "--overlay-src", "/data/home", "--tmp-overlay", "/home/antimony") {
		t.Fatalf("argv = %v, want overlay-src/tmp-overlay home overlay", argv3)
	}
}

func TestBuildArgsTargetArgvAlwaysLast(t *testing.T) {
	p := &profile.Profile{Arguments: []string{"--flag"}}
	argv := BuildArgs(p, nil, "", nil, nil, []string{"/usr/bin/app", "file.txt"})
	want := []string{"--", "--flag", "/usr/bin/app", "file.txt"}
	got := argv[len(argv)-len(want):]
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("tail = %v, want %v", got, want)
		}
	}
}

func TestBuildArgsIncludesExtraFlagsBeforeSeparator(t *testing.T) {
	p := &profile.Profile{}
	argv := BuildArgs(p, nil, "", nil, []string{"--seccomp", "3"}, []string{"/bin/true"})
	if !contains(argv, "--seccomp", "3") {
		t.Fatalf("argv = %v, want --seccomp 3", argv)
	}
	sepIdx, flagIdx := -1, -1
	for i, a := range argv {
		if a == "--" && sepIdx == -1 {
			sepIdx = i
		}
		if a == "--seccomp" {
			flagIdx = i
		}
	}
	if sepIdx == -1 || flagIdx == -1 || flagIdx > sepIdx {
		t.Fatalf("argv = %v, --seccomp must precede the -- separator", argv)
	}
}

func TestStageDirectFilesWritesContentAndMarksExecutable(t *testing.T) {
	dir := t.TempDir()
	files := &profile.Files{
		Direct: map[profile.FileMode]map[string]string{
			profile.FileExecutable: {"/usr/local/bin/run.sh": "#!/bin/sh\necho hi\n"},
		},
	}
	staged, err := StageDirectFiles(files, dir)
	if err != nil {
		t.Fatalf("StageDirectFiles: %v", err)
	}
	path, ok := staged["/usr/local/bin/run.sh"]
	if !ok {
		t.Fatalf("staged = %v, missing destination", staged)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat staged file: %v", err)
	}
	if info.Mode()&0o111 == 0 {
		t.Fatalf("mode = %v, want executable bit set", info.Mode())
	}
}
