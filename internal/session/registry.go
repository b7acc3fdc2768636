package session

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Registry holds the live runtime of every in-progress attempt on this
// instance, keyed by (student, exam). Runtimes evict themselves on
// terminal transitions via SetOnClose.
type Registry struct {
	mu       sync.Mutex
	runtimes map[string]*Runtime
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{runtimes: make(map[string]*Runtime)}
}

func runtimeKey(examID uuid.UUID, studentID int) string {
	return fmt.Sprintf("%d:%s", studentID, examID)
}

// Get returns the live runtime for the attempt, if any.
func (g *Registry) Get(examID uuid.UUID, studentID int) (*Runtime, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	rt, ok := g.runtimes[runtimeKey(examID, studentID)]
	return rt, ok
}

// Put registers a runtime and wires its eviction. If a runtime is
// already registered for the key it is returned unchanged and the new
// one discarded — one runtime per attempt, whoever started it first.
func (g *Registry) Put(examID uuid.UUID, studentID int, rt *Runtime) *Runtime {
	key := runtimeKey(examID, studentID)

	g.mu.Lock()
	if existing, ok := g.runtimes[key]; ok {
		g.mu.Unlock()
		return existing
	}
	g.runtimes[key] = rt
	g.mu.Unlock()

	rt.SetOnClose(func() { g.Remove(examID, studentID) })
	return rt
}

// Remove drops the runtime for the attempt, if registered.
func (g *Registry) Remove(examID uuid.UUID, studentID int) {
	g.mu.Lock()
	delete(g.runtimes, runtimeKey(examID, studentID))
	g.mu.Unlock()
}

// StopAll tears down every live runtime (server shutdown). Durable state
// is untouched; attempts resume on the next instance.
func (g *Registry) StopAll() {
	g.mu.Lock()
	all := make([]*Runtime, 0, len(g.runtimes))
	for _, rt := range g.runtimes {
		all = append(all, rt)
	}
	g.runtimes = make(map[string]*Runtime)
	g.mu.Unlock()

	for _, rt := range all {
		rt.Stop()
	}
}
