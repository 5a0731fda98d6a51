package apiexec

import "sync"

// DefaultLoginPath is where the navigator is sent on unrecoverable auth failure.
const DefaultLoginPath = "/login"

// Navigator is invoked with a target path when the application shell must
// leave the current screen, e.g. to the login page.
type Navigator func(path string)

// navigationGate collapses any number of concurrent redirect requests into
// a single Navigator call. It re-arms once a new session is established.
type navigationGate struct {
	mu    sync.Mutex
	fired bool
	nav   Navigator
}

func newNavigationGate(nav Navigator) *navigationGate {
	return &navigationGate{nav: nav}
}

// Redirect calls the navigator unless it already fired since the last Reset.
// It reports whether this call triggered navigation.
func (g *navigationGate) Redirect(path string) bool {
	g.mu.Lock()
	if g.fired || g.nav == nil {
		g.mu.Unlock()
		return false
	}
	g.fired = true
	nav := g.nav
	g.mu.Unlock()

	nav(path)
	return true
}

func (g *navigationGate) Reset() {
	g.mu.Lock()
	g.fired = false
	g.mu.Unlock()
}
