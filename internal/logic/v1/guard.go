package v1

import "sync"

// submissionGuard tracks which sessions have a profile submission in flight.
type submissionGuard struct {
	mu       sync.Mutex
	inFlight map[string]struct{}
}

func newSubmissionGuard() *submissionGuard {
	return &submissionGuard{inFlight: make(map[string]struct{})}
}

// acquire marks token busy. It returns false if it already was.
func (g *submissionGuard) acquire(token string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.inFlight[token]; busy {
		return false
	}
	g.inFlight[token] = struct{}{}
	return true
}

func (g *submissionGuard) release(token string) {
	g.mu.Lock()
	delete(g.inFlight, token)
	g.mu.Unlock()
}

func (g *submissionGuard) busy(token string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, busy := g.inFlight[token]
	return busy
}
