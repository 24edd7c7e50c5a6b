package profile

// Namespace names a Linux namespace the sandbox unshares from the host when
// a profile lists it: each listed namespace becomes its bwrap --unshare-*
// flag, and "all" becomes --unshare-all. An empty set adds no --unshare-*
// flag; most profiles get these transitively through features rather than
// listing them directly.
type Namespace string

const (
	NamespaceAll    Namespace = "all"
	NamespaceUser   Namespace = "user"
	NamespaceIPC    Namespace = "ipc"
	NamespacePID    Namespace = "pid"
	NamespaceNet    Namespace = "net"
	NamespaceUTS    Namespace = "uts"
	NamespaceCGroup Namespace = "cgroup"
)
