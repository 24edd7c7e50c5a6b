package spawner

import (
	"path/filepath"
	"testing"
)

func TestBuilderAccumulatesArgsAndEnv(t *testing.T) {
	b := New("/usr/bin/bwrap").Args("--ro-bind", "/usr", "/usr").Env("HOME=/home/antimony")
	runner := b.Runner(nil, nil)
	want := []string{"/usr/bin/bwrap", "--ro-bind", "/usr", "/usr"}
	if len(runner.Args) != len(want) {
		t.Fatalf("Args = %v, want %v", runner.Args, want)
	}
	for i, a := range want {
		if runner.Args[i] != a {
			t.Fatalf("Args[%d] = %q, want %q", i, runner.Args[i], a)
		}
	}
	if len(runner.Env) != 1 || runner.Env[0] != "HOME=/home/antimony" {
		t.Fatalf("Env = %v", runner.Env)
	}
}

func TestCacheStartWriteReadRoundTrip(t *testing.T) {
	b := New("/usr/bin/bwrap").Arg("--unshare-all")
	if err := b.CacheStart(); err != nil {
		t.Fatalf("CacheStart: %v", err)
	}
	b.Args("--ro-bind", "/usr/lib", "/usr/lib", "--ro-bind", "/usr/lib64", "/usr/lib64")

	path := filepath.Join(t.TempDir(), "argv.cache")
	if err := b.CacheWrite(path); err != nil {
		t.Fatalf("CacheWrite: %v", err)
	}

	replay := New("/usr/bin/bwrap").Arg("--unshare-all")
	if err := replay.CacheRead(path); err != nil {
		t.Fatalf("CacheRead: %v", err)
	}
	if len(replay.args) != len(b.args) {
		t.Fatalf("replayed args = %v, want %v", replay.args, b.args)
	}
	for i := range b.args {
		if replay.args[i] != b.args[i] {
			t.Fatalf("replayed args[%d] = %q, want %q", i, replay.args[i], b.args[i])
		}
	}
}

func TestCacheStartTwiceErrors(t *testing.T) {
	b := New("/usr/bin/bwrap")
	if err := b.CacheStart(); err != nil {
		t.Fatalf("CacheStart: %v", err)
	}
	if err := b.CacheStart(); err != ErrCacheAlreadyStarted {
		t.Fatalf("second CacheStart err = %v, want ErrCacheAlreadyStarted", err)
	}
}

func TestCacheWriteWithoutStartErrors(t *testing.T) {
	b := New("/usr/bin/bwrap")
	if err := b.CacheWrite(filepath.Join(t.TempDir(), "out")); err != ErrCacheNotStarted {
		t.Fatalf("CacheWrite err = %v, want ErrCacheNotStarted", err)
	}
}

func TestFDPreservesOrderAfterStandardStreams(t *testing.T) {
	b := New("/usr/bin/bwrap").FD(7).FD(8)
	runner := b.Runner(nil, nil)
	want := []uintptr{0, 1, 2, 7, 8}
	if len(runner.Files) != len(want) {
		t.Fatalf("Files = %v, want %v", runner.Files, want)
	}
	for i, f := range want {
		if runner.Files[i] != f {
			t.Fatalf("Files[%d] = %v, want %v", i, runner.Files[i], f)
		}
	}
}
