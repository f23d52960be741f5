package hook

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Callable is one hook implementation. Arguments of type map[string]any and
// *[]any are treated as mutable references by alter dispatch.
type Callable = func(args ...any) (any, error)

// Callables is the explicit registration table mapping qualified names
// (<extension>_<hook>) to implementations. Extensions populate it as their
// files load; the dispatcher resolves every call through it, so no
// reflection happens at dispatch time.
//
// It implements extension.CallableBinder.
type Callables struct {
	mu  sync.RWMutex
	fns map[string]Callable
}

// NewCallables creates an empty callable table.
func NewCallables() *Callables {
	return &Callables{fns: make(map[string]Callable)}
}

// Register makes fn available under the qualified name. Later registrations
// replace earlier ones, which is what a file reload wants.
func (c *Callables) Register(name string, fn Callable) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fns[name] = fn
}

// UnregisterPrefix removes every callable whose name starts with prefix.
// Used when an extension unloads: prefix is "<extension>_".
func (c *Callables) UnregisterPrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for name := range c.fns {
		if strings.HasPrefix(name, prefix) {
			delete(c.fns, name)
		}
	}
}

// Exists reports whether a callable is registered under name.
func (c *Callables) Exists(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.fns[name]
	return ok
}

// Get returns the callable registered under name.
func (c *Callables) Get(name string) (Callable, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	fn, ok := c.fns[name]
	return fn, ok
}

// Invoke calls the named callable.
func (c *Callables) Invoke(name string, args ...any) (any, error) {
	fn, ok := c.Get(name)
	if !ok {
		return nil, fmt.Errorf("no callable registered as %q", name)
	}
	return fn(args...)
}

// Names returns all registered qualified names, sorted.
func (c *Callables) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.fns))
	for name := range c.fns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
