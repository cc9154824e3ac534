// Package registry tracks every live session by name, allocates default
// names, and reaps sessions whose child process has exited.
package registry

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/jlowzow/amux/internal/session"
)

// Registry is the daemon's single source of truth for which sessions
// exist.
type Registry struct {
	log *logrus.Logger

	mu       sync.Mutex
	sessions map[string]*session.Session

	counter atomic.Uint64
}

// New returns an empty Registry.
func New(log *logrus.Logger) *Registry {
	return &Registry{
		log:      log,
		sessions: make(map[string]*session.Session),
	}
}

// AllocateName returns name if non-empty, otherwise the smallest
// non-colliding decimal integer string, starting at "0".
func (r *Registry) AllocateName(name string) string {
	if name != "" {
		return name
	}
	for {
		n := r.counter.Add(1) - 1
		candidate := fmt.Sprintf("%d", n)
		r.mu.Lock()
		_, exists := r.sessions[candidate]
		r.mu.Unlock()
		if !exists {
			return candidate
		}
	}
}

// Create spawns a new session under name and argv and registers it. It
// returns an error if name is already taken.
func (r *Registry) Create(name string, argv []string, cols, rows uint16, env map[string]string) (*session.Session, error) {
	r.mu.Lock()
	if _, exists := r.sessions[name]; exists {
		r.mu.Unlock()
		return nil, fmt.Errorf("session '%s' already exists", name)
	}
	r.mu.Unlock()

	s, err := session.Spawn(name, argv, cols, rows, env, r.log)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if _, exists := r.sessions[name]; exists {
		// A concurrent Create claimed the name while this one was spawning.
		r.mu.Unlock()
		s.Kill()
		return nil, fmt.Errorf("session '%s' already exists", name)
	}
	r.sessions[name] = s
	r.mu.Unlock()

	return s, nil
}

// Get returns the session registered under name, if any.
func (r *Registry) Get(name string) (*session.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[name]
	return s, ok
}

// Has reports whether a session named name is registered, regardless of
// whether its process is still alive.
func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// List returns every registered session, sorted by name.
func (r *Registry) List() []*session.Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*session.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Kill signals the named session to terminate and removes it from the
// registry. It returns false if no session is registered under name.
func (r *Registry) Kill(name string) bool {
	r.mu.Lock()
	s, ok := r.sessions[name]
	if ok {
		delete(r.sessions, name)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	s.Kill()
	return true
}

// KillAll signals every registered session to terminate, clears the
// registry, and returns the number of sessions killed.
func (r *Registry) KillAll() int {
	r.mu.Lock()
	all := r.sessions
	r.sessions = make(map[string]*session.Session)
	r.mu.Unlock()

	for _, s := range all {
		s.Kill()
	}
	return len(all)
}

// ReapDead removes every registered session whose process has exited. It
// returns the names removed.
func (r *Registry) ReapDead() []string {
	r.mu.Lock()
	var dead []string
	for name, s := range r.sessions {
		if !s.IsAlive() {
			dead = append(dead, name)
		}
	}
	for _, name := range dead {
		delete(r.sessions, name)
	}
	r.mu.Unlock()

	if r.log != nil {
		for _, name := range dead {
			r.log.WithField("session", name).Info("reaped dead session")
		}
	}
	return dead
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
