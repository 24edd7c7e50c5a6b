package profile

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Feature is a reusable, named bundle of profile fragments. It has the same
// shape as a Profile stripped of identity fields (name/path), and several
// features can be unioned into one profile during resolution. Conflicts
// lets a profile or an already-included feature prune a feature that was
// pulled in transitively but should not apply here.
type Feature struct {
	Name        string            `toml:"-"`
	Description string            `toml:"description,omitempty"`
	Conditional *string           `toml:"conditional,omitempty"`
	Caveat      *string           `toml:"caveat,omitempty"`
	Requires    StringSet         `toml:"requires,omitempty"`
	Conflicts   StringSet         `toml:"conflicts,omitempty"`
	Ipc         *Ipc              `toml:"ipc,omitempty"`
	Namespaces  NamespaceSet      `toml:"namespaces,omitempty"`
	Files       *Files            `toml:"files,omitempty"`
	Binaries    StringSet         `toml:"binaries,omitempty"`
	Libraries   StringSet         `toml:"libraries,omitempty"`
	Devices     StringSet         `toml:"devices,omitempty"`
	Environment map[string]string `toml:"environment,omitempty"`
	SandboxArgs []string          `toml:"sandbox_args,omitempty"`
	Hooks       *Hooks            `toml:"hooks,omitempty"`
}

// applyTo folds the feature's fields into p. Namespaces, binaries, libraries
// and devices union, SandboxArgs appends, and Environment entries overwrite
// p's. Ipc, Files and Hooks go through those types' own Merge, which unions
// their sets and fills single-valued fields only where p left them unset.
func (f Feature) applyTo(p *Profile) {
	if f.Ipc != nil {
		if p.Ipc == nil {
			p.Ipc = &Ipc{}
		}
		p.Ipc.Merge(*f.Ipc)
	}
	for ns := range f.Namespaces {
		if p.Namespaces == nil {
			p.Namespaces = make(NamespaceSet)
		}
		p.Namespaces[ns] = struct{}{}
	}
	if f.Files != nil {
		if p.Files == nil {
			p.Files = &Files{}
		}
		p.Files.Merge(*f.Files)
	}
	for b := range f.Binaries {
		if p.Binaries == nil {
			p.Binaries = make(StringSet)
		}
		p.Binaries[b] = struct{}{}
	}
	for l := range f.Libraries {
		if p.Libraries == nil {
			p.Libraries = make(StringSet)
		}
		p.Libraries[l] = struct{}{}
	}
	for d := range f.Devices {
		if p.Devices == nil {
			p.Devices = make(StringSet)
		}
		p.Devices[d] = struct{}{}
	}
	for k, v := range f.Environment {
		if p.Environment == nil {
			p.Environment = make(map[string]string)
		}
		p.Environment[k] = v
	}
	p.SandboxArgs = append(p.SandboxArgs, f.SandboxArgs...)
	if f.Hooks != nil {
		if p.Hooks == nil {
			p.Hooks = &Hooks{}
		}
		p.Hooks.Merge(*f.Hooks)
	}
}

// FeatureStore loads named Feature definitions, e.g. from TOML files under
// the Antimony data directories.
type FeatureStore interface {
	Load(name string) (Feature, error)
}

// FileFeatureStore loads features from <dir>/<name>.toml, checking the
// user directory before the system one, the same precedence Load gives
// profiles.
type FileFeatureStore struct {
	UserDir   string
	SystemDir string
}

// Load implements FeatureStore.
func (s FileFeatureStore) Load(name string) (Feature, error) {
	for _, dir := range []string{s.UserDir, s.SystemDir} {
		if dir == "" {
			continue
		}
		raw, err := readFeatureFile(filepath.Join(dir, name+".toml"))
		if err == nil {
			raw.Name = name
			return raw, nil
		}
	}
	return Feature{}, &ErrNotFound{Name: name, Reason: "no feature file in user or system directory"}
}

func readFeatureFile(path string) (Feature, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Feature{}, err
	}
	var f Feature
	if _, err := toml.Decode(string(raw), &f); err != nil {
		return Feature{}, &Error{Op: "feature", Name: path, Err: err}
	}
	return f, nil
}

// ExpandFeatures unions every feature named in p.Features into p, following
// each feature's own Requires transitively, and skips any feature named in
// p.Conflicts or in the Conflicts of a feature already applied, even if it
// was pulled in transitively. Names are taken in sorted order (p.Features
// first, then each feature's Requires), so the end result does not depend
// on the order features are listed in; conflict pruning follows that order.
func ExpandFeatures(p *Profile, store FeatureStore) error {
	conflicts := make(map[string]struct{}, len(p.Conflicts))
	for c := range p.Conflicts {
		conflicts[c] = struct{}{}
	}

	seen := make(map[string]struct{})
	var queue []string
	for name := range p.Features {
		queue = append(queue, name)
	}
	sortStrings(queue)

	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		if _, done := seen[name]; done {
			continue
		}
		seen[name] = struct{}{}
		if _, blocked := conflicts[name]; blocked {
			continue
		}

		feature, err := store.Load(name)
		if err != nil {
			return &Error{Op: "feature", Name: name, Err: err}
		}
		for c := range feature.Conflicts {
			conflicts[c] = struct{}{}
		}
		feature.applyTo(p)
		for _, req := range sortedKeys(feature.Requires) {
			if _, done := seen[req]; !done {
				queue = append(queue, req)
			}
		}
	}
	return nil
}
