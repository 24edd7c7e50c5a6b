package privilege

import "sync"

// Guard is a reentrant, single-holder critical section for privilege
// changes made from more than one goroutine, mirroring the original
// implementation's user::sync::Sync (itself built on a Singleton semaphore).
// Plain RunAs is enough for a single call site; Guard exists for the few
// places multiple goroutines independently need to become Effective for a
// moment — Handle teardown racing a SECCOMP database commit, for instance —
// where serializing through one shared token is simpler than auditing every
// call site for interleaving.
type Guard struct {
	mu    sync.Mutex
	cond  *sync.Cond
	owner uint64
	depth int
	next  uint64
}

// NewGuard creates a ready-to-use Guard.
func NewGuard() *Guard {
	g := &Guard{}
	g.cond = sync.NewCond(&g.mu)
	return g
}

// token identifies the calling goroutine's outermost RunAs call. Since Go
// has no goroutine-local storage, callers thread it explicitly the way the
// original threads a Sync handle through the run_as!/sync_run_as! macros.
type token struct {
	id uint64
}

// Enter blocks until the guard is free (or already held by the same token)
// and returns a token to pass to subsequent nested calls and to Leave.
func (g *Guard) Enter(t *token) *token {
	g.mu.Lock()
	defer g.mu.Unlock()

	if t != nil && g.depth > 0 && g.owner == t.id {
		g.depth++
		return t
	}
	for g.depth > 0 {
		g.cond.Wait()
	}
	g.next++
	g.owner = g.next
	g.depth = 1
	return &token{id: g.owner}
}

// Leave releases one level of nesting acquired by Enter.
func (g *Guard) Leave(t *token) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.depth == 0 || t == nil || t.id != g.owner {
		return
	}
	g.depth--
	if g.depth == 0 {
		g.cond.Broadcast()
	}
}

// RunAsSync is RunAs serialized through a shared Guard so that concurrent
// callers cannot interleave their effective-identity windows.
func RunAsSync(g *Guard, m Mode, fn func() error) error {
	tok := g.Enter(nil)
	defer g.Leave(tok)
	return RunAs(m, fn)
}
