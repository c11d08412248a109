package session

import "sync"

// Guard admits at most one holder per key. Sessions that are rebuilt per
// request, such as a draft confirmed from the review page, share a Guard so
// two requests for the same draft cannot dispatch at once.
type Guard struct {
	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewGuard returns an empty Guard.
func NewGuard() *Guard {
	return &Guard{inflight: make(map[string]struct{})}
}

// Acquire claims key. It returns false if key is already held; otherwise the
// returned release func must be called when the work is done.
func (g *Guard) Acquire(key string) (release func(), ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.inflight[key]; busy {
		return nil, false
	}
	g.inflight[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.inflight, key)
			g.mu.Unlock()
		})
	}, true
}

// InFlight reports whether key is currently held.
func (g *Guard) InFlight(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, busy := g.inflight[key]
	return busy
}
