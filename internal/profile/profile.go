// Package profile loads, merges and hashes the declarative profiles that
// describe how to sandbox an application: what binaries/libraries/files it
// needs, which namespaces and IPC busses it can see, and what SECCOMP policy
// applies. It mirrors src/shared/profile/*.rs's resolution pipeline: load,
// apply a named configuration overlay, fill in missing fields from
// inherited profiles, expand features, then hash the result as the
// fabrication cache key.
package profile

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/antimony-sandbox/antimony/internal/envconf"
	"github.com/antimony-sandbox/antimony/internal/privilege"
)

// Profile is the fully-resolvable description of a sandboxed application.
type Profile struct {
	Path     *string `toml:"path,omitempty"`
	ID       *string `toml:"id,omitempty"`

	Features  StringSet `toml:"features,omitempty"`
	Conflicts StringSet `toml:"conflicts,omitempty"`

	// Inherits lists profiles used to fill in whatever this one leaves
	// unset, left to right: the first name's fields win, later names only
	// fill gaps the earlier ones left. nil means "use the implicit default
	// inherit"; an explicit empty list opts a profile out of inheriting
	// Default.
	Inherits []string `toml:"inherits,omitempty"`

	Home    *Home          `toml:"home,omitempty"`
	Seccomp *SeccompPolicy `toml:"seccomp,omitempty"`
	Ipc     *Ipc           `toml:"ipc,omitempty"`
	Files   *Files         `toml:"files,omitempty"`

	Binaries   StringSet    `toml:"binaries,omitempty"`
	Libraries  StringSet    `toml:"libraries,omitempty"`
	Devices    StringSet    `toml:"devices,omitempty"`
	Namespaces NamespaceSet `toml:"namespaces,omitempty"`

	Environment map[string]string `toml:"environment,omitempty"`
	Arguments   []string          `toml:"arguments,omitempty"`

	Configuration map[string]*Profile `toml:"configuration,omitempty"`

	Hooks *Hooks `toml:"hooks,omitempty"`

	NewPrivileges *bool    `toml:"new_privileges,omitempty"`
	SandboxArgs   []string `toml:"sandbox_args,omitempty"`
}

func userProfilePath(name string) string {
	return filepath.Join(envconf.UserConfigDir(), "profiles", name+".toml")
}

func systemProfilePath(name string) string {
	return filepath.Join(envconf.AntimonyHome(), "profiles", name+".toml")
}

// Load reads a single profile by name, without applying configurations,
// inherits or feature expansion. A user-directory copy takes precedence
// over the system one, except that the very first load of "default" seeds
// the user copy from the system default so later edits don't clobber it.
func Load(name string) (*Profile, error) {
	if name == "default" {
		return loadDefault()
	}

	if filepath.Ext(name) == ".toml" {
		if _, err := os.Stat(name); err == nil {
			return decodeFile(name)
		}
	}

	if p, err := decodeFile(userProfilePath(name)); err == nil {
		return p, nil
	}
	if p, err := decodeFile(systemProfilePath(name)); err == nil {
		return p, nil
	}
	return nil, &ErrNotFound{Name: name, Reason: "no profile file in user or system directory"}
}

func loadDefault() (*Profile, error) {
	userPath := userProfilePath("default")
	if p, err := decodeFile(userPath); err == nil {
		return p, nil
	}

	sysPath := systemProfilePath("default")
	raw, err := os.ReadFile(sysPath)
	if err != nil {
		return nil, &ErrNotFound{Name: "default", Reason: "no system default profile"}
	}

	if err := privilege.RunAs(privilege.Effective, func() error {
		if err := os.MkdirAll(filepath.Dir(userPath), 0o755); err != nil {
			return err
		}
		return os.WriteFile(userPath, raw, 0o644)
	}); err != nil {
		return nil, &Error{Op: "load", Name: "default", Err: err}
	}

	var p Profile
	if _, err := toml.Decode(string(raw), &p); err != nil {
		return nil, &Error{Op: "load", Name: "default", Err: err}
	}
	return &p, nil
}

func decodeFile(path string) (*Profile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var p Profile
	if _, err := toml.Decode(string(raw), &p); err != nil {
		return nil, &Error{Op: "load", Name: path, Err: err}
	}
	return &p, nil
}

// Merge fills every field p leaves unset with profile's value: single-value
// fields take p's value if set, otherwise profile's; set-valued fields
// union. This is fill-only, never overwrite, matching the teacher's inherit
// semantics (left-most already-loaded source wins).
func (p *Profile) Merge(other *Profile) {
	if p.Path == nil {
		p.Path = other.Path
	}
	if p.Seccomp == nil {
		p.Seccomp = other.Seccomp
	}
	if p.NewPrivileges == nil {
		p.NewPrivileges = other.NewPrivileges
	}

	if other.Home != nil {
		if p.Home == nil {
			p.Home = &Home{}
		}
		p.Home.Merge(*other.Home)
	}
	if other.Files != nil {
		if p.Files == nil {
			p.Files = &Files{}
		}
		p.Files.Merge(*other.Files)
	}
	if other.Ipc != nil {
		if p.Ipc == nil {
			p.Ipc = &Ipc{}
		}
		p.Ipc.Merge(*other.Ipc)
	}
	if other.Hooks != nil {
		if p.Hooks == nil {
			p.Hooks = &Hooks{}
		}
		p.Hooks.Merge(*other.Hooks)
	}

	for name, cfg := range other.Configuration {
		if p.Configuration == nil {
			p.Configuration = make(map[string]*Profile)
		}
		if _, exists := p.Configuration[name]; !exists {
			p.Configuration[name] = cfg
		}
	}
	for k, v := range other.Environment {
		if p.Environment == nil {
			p.Environment = make(map[string]string)
		}
		if _, exists := p.Environment[k]; !exists {
			p.Environment[k] = v
		}
	}

	unionNamespaces(&p.Namespaces, other.Namespaces)
	unionStrings(&p.Binaries, other.Binaries)
	unionStrings(&p.Libraries, other.Libraries)
	unionStrings(&p.Devices, other.Devices)
	unionStrings(&p.Features, other.Features)
	unionStrings(&p.Conflicts, other.Conflicts)
	p.Arguments = append(p.Arguments, other.Arguments...)
	p.SandboxArgs = append(p.SandboxArgs, other.SandboxArgs...)
}

func unionStrings(dst *StringSet, src StringSet) {
	if len(src) == 0 {
		return
	}
	if *dst == nil {
		*dst = make(StringSet, len(src))
	}
	for k := range src {
		(*dst)[k] = struct{}{}
	}
}

func unionNamespaces(dst *NamespaceSet, src NamespaceSet) {
	if len(src) == 0 {
		return
	}
	if *dst == nil {
		*dst = make(NamespaceSet, len(src))
	}
	for k := range src {
		(*dst)[k] = struct{}{}
	}
}

// Base inverts Merge: source's values take precedence, p's persist only
// where source left a field unset. Used when a named configuration is
// selected: the configuration is layered as the base, with the enclosing
// profile's own fields still filling any gaps. Inherits is the one
// exception: it is always taken from p.
func (p *Profile) Base(source *Profile) *Profile {
	if source.ID == nil {
		source.ID = p.ID
	}
	source.Inherits = p.Inherits
	source.Merge(p)
	return source
}

// Resolve runs the full pipeline described by the profile resolver: load,
// apply a configuration if named, fill in from inherits (explicit or the
// implicit Default), expand features, then return the canonical hash
// alongside the resolved profile.
func Resolve(name string, configuration string, features FeatureStore) (*Profile, string, error) {
	p, err := Load(name)
	if err != nil {
		return nil, "", err
	}
	if name == "default" {
		hash, herr := p.Hash()
		return p, hash, herr
	}

	if configuration != "" {
		cfg, ok := p.Configuration[configuration]
		if !ok {
			return nil, "", &ErrNotFound{Name: name, Reason: fmt.Sprintf("configuration %q does not exist", configuration)}
		}
		p = p.Base(cfg)
	}

	toInherit := p.Inherits
	if toInherit == nil {
		if _, err := os.Stat(userProfilePath("default")); err == nil {
			toInherit = []string{"default"}
		}
	}
	for _, inheritName := range toInherit {
		parent, _, err := Resolve(inheritName, "", features)
		if err != nil {
			return nil, "", &Error{Op: "inherit", Name: inheritName, Err: err}
		}
		p.Merge(parent)
	}

	if features != nil {
		if err := ExpandFeatures(p, features); err != nil {
			return nil, "", err
		}
	}

	hash, err := p.Hash()
	if err != nil {
		return nil, "", err
	}
	return p, hash, nil
}

// Hash returns the profile's canonical cache key: a stable struct hash, not
// affected by map iteration order, since Go's encoding/json sorts map keys.
func (p *Profile) Hash() (string, error) {
	canon, err := json.Marshal(p)
	if err != nil {
		return "", &Error{Op: "hash", Err: err}
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}
