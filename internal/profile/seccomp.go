package profile

// SeccompPolicy controls whether and how a profile's sandbox is constrained
// by SECCOMP.
type SeccompPolicy string

const (
	// SeccompDisabled applies no SECCOMP filter at all.
	SeccompDisabled SeccompPolicy = "disabled"
	// SeccompPermissive logs syscalls without blocking them, building up a
	// policy for the binary.
	SeccompPermissive SeccompPolicy = "permissive"
	// SeccompEnforcing blocks any syscall not already known for the binary
	// by killing the process that made it.
	SeccompEnforcing SeccompPolicy = "enforcing"
	// SeccompNotifying blocks any syscall not already known, but surfaces
	// the decision to the user via the Notify monitor instead of failing
	// outright.
	SeccompNotifying SeccompPolicy = "notifying"
)
