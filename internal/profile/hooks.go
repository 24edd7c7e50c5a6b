package profile

// Hooks holds the programs run in coordination with a profile. Pre-hooks run
// before the sandboxed program starts, post-hooks run on cleanup, and the
// optional parent hook is an attached pre-hook that owns the sandbox's
// lifetime: when it exits, the sandbox is torn down with it.
type Hooks struct {
	Pre    []Hook `toml:"pre,omitempty"`
	Post   []Hook `toml:"post,omitempty"`
	Parent *Hook  `toml:"parent,omitempty"`
}

// Merge appends other's pre/post hooks to h's and fills in Parent if h has
// none of its own.
func (h *Hooks) Merge(other Hooks) {
	h.Pre = append(h.Pre, other.Pre...)
	h.Post = append(h.Post, other.Post...)
	if h.Parent == nil {
		h.Parent = other.Parent
	}
}

// Hook is a program run alongside a profile, as the invoking user. A Hook is
// invoked with ANTIMONY_NAME, ANTIMONY_CACHE and ANTIMONY_INSTANCE set in its
// environment, plus ANTIMONY_HOME when the profile has a home directory.
type Hook struct {
	Name            *string  `toml:"name,omitempty"`
	Path            *string  `toml:"path,omitempty"`
	Content         *string  `toml:"content,omitempty"`
	Args            []string `toml:"args,omitempty"`
	Attach          *bool    `toml:"attach,omitempty"`
	Env             *bool    `toml:"env,omitempty"`
	CanFail         *bool    `toml:"can_fail,omitempty"`
	NewPrivileges   *bool    `toml:"new_privileges,omitempty"`
	CaptureOutput   *bool    `toml:"capture_output,omitempty"`
	CaptureError    *bool    `toml:"capture_error,omitempty"`
}

// Env captures the environment a Hook is launched with, carried separately
// from the Profile so a HookRunner doesn't need to know profile internals.
type Env struct {
	Name     string
	Cache    string
	Instance string
	Home     string
}

// HookRunner executes a Hook. No package in this module implements or calls
// it; running a hook (spawning a process, wiring its pipes, waiting on it) is
// an external concern, not something the profile resolver itself performs.
type HookRunner interface {
	Run(h Hook, env Env, parent bool) error
}
