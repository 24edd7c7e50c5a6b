package profile

import (
	"os"
	"path/filepath"
	"testing"
)

func strPtr(s string) *string { return &s }

func writeProfile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name+".toml"), []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestDecodeFileParsesSets(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "zed", `
path = "/usr/bin/zed"
binaries = ["git", "bash"]
namespaces = ["net", "ipc"]

[ipc]
talk = ["org.freedesktop.Notifications"]
`)
	p, err := decodeFile(filepath.Join(dir, "zed.toml"))
	if err != nil {
		t.Fatalf("decodeFile: %v", err)
	}
	if p.Path == nil || *p.Path != "/usr/bin/zed" {
		t.Fatalf("Path = %v, want /usr/bin/zed", p.Path)
	}
	if _, ok := p.Binaries["git"]; !ok {
		t.Fatalf("expected binaries to contain git, got %v", p.Binaries)
	}
	if _, ok := p.Namespaces[NamespaceNet]; !ok {
		t.Fatalf("expected namespaces to contain net, got %v", p.Namespaces)
	}
	if p.Ipc == nil {
		t.Fatalf("expected ipc to be set")
	}
	if _, ok := p.Ipc.Talk["org.freedesktop.Notifications"]; !ok {
		t.Fatalf("expected talk set to contain notifications bus, got %v", p.Ipc.Talk)
	}
}

func TestMergeFillsOnlyUnsetFields(t *testing.T) {
	child := &Profile{
		Path:      strPtr("/usr/bin/app"),
		Binaries:  StringSet{"app": {}},
		Libraries: StringSet{"libapp.so": {}},
	}
	parent := &Profile{
		Path:      strPtr("/usr/bin/other"),
		Binaries:  StringSet{"bash": {}},
		Libraries: StringSet{"libc.so": {}},
	}
	child.Merge(parent)

	if *child.Path != "/usr/bin/app" {
		t.Fatalf("Path should not be overwritten, got %v", *child.Path)
	}
	if _, ok := child.Binaries["bash"]; !ok {
		t.Fatalf("expected binaries to union in bash, got %v", child.Binaries)
	}
	if len(child.Binaries) != 2 {
		t.Fatalf("expected 2 binaries after union, got %d", len(child.Binaries))
	}
}

func TestBaseInvertsMergePrecedence(t *testing.T) {
	profileID := "zed-preview"
	base := &Profile{ID: strPtr("com.zed.Zed")}
	config := &Profile{Path: strPtr("/usr/bin/zed-preview")}

	result := base.Base(config)
	if result.ID == nil || *result.ID != "com.zed.Zed" {
		t.Fatalf("expected id to carry from caller, got %v", result.ID)
	}
	if result.Path == nil || *result.Path != "/usr/bin/zed-preview" {
		t.Fatalf("expected path from configuration source, got %v", result.Path)
	}
	_ = profileID
}

func TestHashIsStableAcrossMapOrder(t *testing.T) {
	a := &Profile{Binaries: StringSet{"a": {}, "b": {}, "c": {}}}
	b := &Profile{Binaries: StringSet{"c": {}, "b": {}, "a": {}}}

	ha, err := a.Hash()
	if err != nil {
		t.Fatalf("Hash a: %v", err)
	}
	hb, err := b.Hash()
	if err != nil {
		t.Fatalf("Hash b: %v", err)
	}
	if ha != hb {
		t.Fatalf("expected identical hash regardless of map build order, got %q and %q", ha, hb)
	}
}

func TestHashDiffersOnContentChange(t *testing.T) {
	a := &Profile{Binaries: StringSet{"a": {}}}
	b := &Profile{Binaries: StringSet{"a": {}, "b": {}}}

	ha, _ := a.Hash()
	hb, _ := b.Hash()
	if ha == hb {
		t.Fatalf("expected different hashes for different content")
	}
}

type memFeatureStore map[string]Feature

func (m memFeatureStore) Load(name string) (Feature, error) {
	f, ok := m[name]
	if !ok {
		return Feature{}, &ErrNotFound{Name: name, Reason: "not in store"}
	}
	return f, nil
}

func TestExpandFeaturesUnionsRequiredFeatures(t *testing.T) {
	store := memFeatureStore{
		"wayland": Feature{
			Name:      "wayland",
			Requires:  StringSet{"dri": {}},
			Binaries:  StringSet{"weston-terminal": {}},
		},
		"dri": Feature{
			Name:      "dri",
			Devices:   StringSet{"/dev/dri": {}},
		},
	}
	p := &Profile{Features: StringSet{"wayland": {}}}
	if err := ExpandFeatures(p, store); err != nil {
		t.Fatalf("ExpandFeatures: %v", err)
	}
	if _, ok := p.Binaries["weston-terminal"]; !ok {
		t.Fatalf("expected wayland's binary to be folded in, got %v", p.Binaries)
	}
	if _, ok := p.Devices["/dev/dri"]; !ok {
		t.Fatalf("expected transitively required dri feature's device, got %v", p.Devices)
	}
}

func TestExpandFeaturesHonorsConflicts(t *testing.T) {
	store := memFeatureStore{
		"pipewire": Feature{Name: "pipewire", Binaries: StringSet{"pipewire": {}}},
	}
	p := &Profile{
		Features:  StringSet{"pipewire": {}},
		Conflicts: StringSet{"pipewire": {}},
	}
	if err := ExpandFeatures(p, store); err != nil {
		t.Fatalf("ExpandFeatures: %v", err)
	}
	if _, ok := p.Binaries["pipewire"]; ok {
		t.Fatalf("expected conflicted feature to be skipped, got %v", p.Binaries)
	}
}
