package sched

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry maps handler names to callbacks. Hosts register handlers at
// startup, before Resume runs, so restored entries can find theirs.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

func NewRegistry() *Registry {
	return &Registry{handlers: map[string]HandlerFunc{}}
}

func (r *Registry) Register(name string, fn HandlerFunc) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("handler name required")
	}
	if fn == nil {
		return fmt.Errorf("handler %q is nil", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.handlers[name]; dup {
		return fmt.Errorf("handler %q already registered", name)
	}
	r.handlers[name] = fn
	return nil
}

func (r *Registry) lookup(name string) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.handlers[name]
	return fn, ok
}

// Handler returns the callback registered under name.
func (r *Registry) Handler(name string) (HandlerFunc, bool) {
	return r.lookup(name)
}

// Names lists registered handlers, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for n := range r.handlers {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
