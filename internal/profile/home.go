package profile

import (
	"path/filepath"

	"github.com/antimony-sandbox/antimony/internal/envconf"
)

// HomePolicy controls how (or whether) a persistent per-app home directory
// is mounted inside the sandbox.
type HomePolicy string

const (
	// HomeNone does not provide a home directory at all.
	HomeNone HomePolicy = "none"
	// HomeEnabled mounts the home directory read/write.
	HomeEnabled HomePolicy = "enabled"
	// HomeReadOnly mounts the home directory read-only.
	HomeReadOnly HomePolicy = "readonly"
	// HomeOverlay mounts a writable tmpfs overlay over the home directory,
	// discarding changes on exit while still letting multiple instances
	// run against the same frozen base.
	HomeOverlay HomePolicy = "overlay"
)

// Home configures a profile's persistent home directory under
// ~/.local/share/antimony.
type Home struct {
	Name   *string     `toml:"name,omitempty"`
	Policy *HomePolicy `toml:"policy,omitempty"`
	Path   *string     `toml:"path,omitempty"`
	Lock   *bool       `toml:"lock,omitempty"`
}

// Merge fills in any field left unset in h with other's value.
func (h *Home) Merge(other Home) {
	if h.Name == nil {
		h.Name = other.Name
	}
	if h.Policy == nil {
		h.Policy = other.Policy
	}
	if h.Path == nil {
		h.Path = other.Path
	}
	if h.Lock == nil {
		h.Lock = other.Lock
	}
}

// DataPath returns the on-disk location of the home directory, under the
// profile's own name unless Name overrides it.
func (h Home) DataPath(profileName string) string {
	name := profileName
	if h.Name != nil {
		name = *h.Name
	}
	return filepath.Join(envconf.DataHome(), "antimony", name)
}

// MountPath returns where the home directory is mounted inside the
// sandbox, defaulting to /home/antimony. bwrap never shell-expands its
// arguments, so the default must be the literal absolute path, not a
// display shorthand.
func (h Home) MountPath() string {
	if h.Path != nil {
		return *h.Path
	}
	return "/home/antimony"
}
