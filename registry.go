package tcpecho

import "sync"

// registry tracks the live server side connections for one binding.
// all methods are safe for concurrent use.
type registry struct {
	mu    sync.Mutex
	conns map[*serveconn]struct{}
	byID  map[string]*serveconn
}

func newRegistry() *registry {
	return &registry{conns: make(map[*serveconn]struct{}), byID: make(map[string]*serveconn)}
}

// add registers sc, it reports false when max > 0 and the registry
// already holds max connections.
func (r *registry) add(sc *serveconn, max int) bool {
	r.mu.Lock()
	if max > 0 && len(r.conns) >= max {
		r.mu.Unlock()
		return false
	}
	r.conns[sc] = struct{}{}
	r.byID[sc.id] = sc
	r.mu.Unlock()
	return true
}

// remove unregisters sc and returns the number of connections left.
// removing a connection that is not tracked is a no-op, removed
// reports whether sc was actually dropped.
func (r *registry) remove(sc *serveconn) (left int, removed bool) {
	r.mu.Lock()
	if _, ok := r.conns[sc]; ok {
		delete(r.conns, sc)
		delete(r.byID, sc.id)
		removed = true
	}
	left = len(r.conns)
	r.mu.Unlock()
	return
}

func (r *registry) size() int {
	r.mu.Lock()
	n := len(r.conns)
	r.mu.Unlock()
	return n
}

func (r *registry) connByID(id string) *serveconn {
	r.mu.Lock()
	sc := r.byID[id]
	r.mu.Unlock()
	return sc
}

// rangeConns calls f for each tracked connection until f returns false.
// the lock is held throughout so f must not call back into the registry.
func (r *registry) rangeConns(f func(sc *serveconn) bool) {
	r.mu.Lock()
	for sc := range r.conns {
		if !f(sc) {
			break
		}
	}
	r.mu.Unlock()
}
