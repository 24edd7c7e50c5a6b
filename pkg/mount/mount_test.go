package mount

import (
	"strings"
	"testing"
)

func TestBuilderWithBind(t *testing.T) {
	b := NewBuilder().WithBind("/src", "dst", true)
	if len(b.Mounts) != 1 {
		t.Fatalf("expected 1 mount, got %d", len(b.Mounts))
	}
	m := b.Mounts[0]
	if m.Source != "/src" || m.Target != "dst" {
		t.Errorf("unexpected mount: %+v", m)
	}
	const wantRoBind = bind | 1 // MS_RDONLY == 1
	if m.Flags&wantRoBind != wantRoBind {
		t.Errorf("expected read-only bind flags, got %x", m.Flags)
	}
}

func TestBuilderWithTmpfsAndProc(t *testing.T) {
	b := NewBuilder().WithTmpfs("tmp", "size=8m").WithProc()
	if len(b.Mounts) != 2 {
		t.Fatalf("expected 2 mounts, got %d", len(b.Mounts))
	}
	if b.Mounts[0].FsType != "tmpfs" || b.Mounts[0].Data != "size=8m" {
		t.Errorf("unexpected tmpfs mount: %+v", b.Mounts[0])
	}
	if b.Mounts[1].FsType != "proc" {
		t.Errorf("unexpected proc mount: %+v", b.Mounts[1])
	}
}

func TestBuilderBuildSkipsMissingSource(t *testing.T) {
	b := NewBuilder().WithBind("/does/not/exist/antimony", "dst", true)
	params, err := b.Build(true)
	if err != nil {
		t.Fatalf("Build with skipNotExists returned error: %v", err)
	}
	if len(params) != 0 {
		t.Errorf("expected missing source to be skipped, got %d params", len(params))
	}
}

func TestBuilderString(t *testing.T) {
	b := NewDefaultBuilder()
	s := b.String()
	if !strings.HasPrefix(s, "Mounts: ") {
		t.Errorf("unexpected prefix: %q", s)
	}
	if !strings.Contains(s, "usr") {
		t.Errorf("expected usr bind mount in %q", s)
	}
}
