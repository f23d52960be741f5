// Package hookstorm wires the extension registry and the hook dispatcher
// into one embeddable runtime. A host creates a System, points it at one or
// more extension directories, boots it, and dispatches hooks through it for
// the rest of the execution context.
//
//	sys := hookstorm.New(hookstorm.WithSearchPaths("./extensions"))
//	if err := sys.Boot(); err != nil {
//		...
//	}
//	defer sys.Close()
//	results, err := sys.InvokeAll("render_item", item)
package hookstorm

import (
	"io"

	"github.com/dshills/hookstorm/cache"
	"github.com/dshills/hookstorm/extension"
	"github.com/dshills/hookstorm/hook"
	"github.com/dshills/hookstorm/log"
)

// System is the assembled runtime: a registry of extensions, the callable
// table their files populate, and the dispatcher that routes hooks through
// it. One System serves one execution context.
type System struct {
	registry   *extension.Registry
	callables  *hook.Callables
	dispatcher *hook.Dispatcher
	backend    cache.Backend
	logger     log.Logger
}

// Option configures a System.
type Option func(*systemConfig)

type systemConfig struct {
	paths   []string
	backend cache.Backend
	logger  log.Logger
}

// WithSearchPaths sets the directories scanned for extensions, earlier
// paths shadowing later ones.
func WithSearchPaths(paths ...string) Option {
	return func(c *systemConfig) {
		c.paths = paths
	}
}

// WithBackend sets the persistent hook cache backend, for example a
// cache.Bolt shared across process restarts. Defaults to in-memory.
func WithBackend(backend cache.Backend) Option {
	return func(c *systemConfig) {
		c.backend = backend
	}
}

// WithLogger sets the logger used by every component.
func WithLogger(logger log.Logger) Option {
	return func(c *systemConfig) {
		c.logger = logger
	}
}

// New assembles a System. Nothing touches the filesystem until Boot.
func New(opts ...Option) *System {
	cfg := &systemConfig{
		backend: cache.NewMemory(),
		logger:  log.Discard,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	callables := hook.NewCallables()
	registry := extension.NewRegistry(
		extension.WithSearchPaths(cfg.paths...),
		extension.WithLogger(cfg.logger),
		extension.WithBinder(callables),
	)
	dispatcher := hook.NewDispatcher(registry, callables,
		hook.WithBackend(cfg.backend),
		hook.WithLogger(cfg.logger),
	)

	return &System{
		registry:   registry,
		callables:  callables,
		dispatcher: dispatcher,
		backend:    cfg.backend,
		logger:     cfg.logger,
	}
}

// Registry returns the extension registry.
func (s *System) Registry() *extension.Registry {
	return s.registry
}

// Dispatcher returns the hook dispatcher.
func (s *System) Dispatcher() *hook.Dispatcher {
	return s.dispatcher
}

// Callables returns the shared callable table.
func (s *System) Callables() *hook.Callables {
	return s.callables
}

// Boot discovers extensions on the search paths and loads them all in
// dependency order. Load failures of individual extensions are joined into
// the returned error; the rest of the system stays usable.
func (s *System) Boot() error {
	if _, err := s.registry.Discover(); err != nil {
		return err
	}
	err := s.registry.LoadAll()

	// Records persisted by earlier contexts stay valid across a boot; the
	// verification pass repairs any drift. Only changes made after the
	// extension set is established (Add, Reload) invalidate the caches, so
	// the callback is installed only now.
	s.registry.SetOnChange(s.dispatcher.Invalidate)
	return err
}

// Reload re-executes every extension from disk in a fresh runtime and
// invalidates all hook caches.
func (s *System) Reload() error {
	return s.registry.Reload()
}

// Invoke calls one extension's implementation of a hook.
func (s *System) Invoke(ext, hookName string, args ...any) (any, bool, error) {
	return s.dispatcher.Invoke(ext, hookName, args...)
}

// InvokeAll invokes every implementation of a hook and merges the results.
func (s *System) InvokeAll(hookName string, args ...any) (*hook.Merged, error) {
	return s.dispatcher.InvokeAll(hookName, args...)
}

// Alter passes data through every matching "<kind>_alter" implementation.
func (s *System) Alter(kinds []string, data, context1, context2 any) error {
	return s.dispatcher.Alter(kinds, data, context1, context2)
}

// Flush persists the hook caches. Call it at the end of the execution
// context, before Close.
func (s *System) Flush() error {
	return s.dispatcher.Flush()
}

// Close flushes the caches, releases every extension runtime, and closes
// the backend if it is closable.
func (s *System) Close() error {
	if err := s.dispatcher.Flush(); err != nil {
		s.logger.Warnf("flush on close failed: %v", err)
	}
	err := s.registry.Close()
	if closer, ok := s.backend.(io.Closer); ok {
		if cerr := closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// ImplementsHook reports whether any extension implements the hook.
//
// Deprecated: use Dispatcher().HasImplementations.
func (s *System) ImplementsHook(hookName string, extensions ...string) (bool, error) {
	s.logger.Warnf("ImplementsHook is deprecated; use Dispatcher().HasImplementations")
	return s.dispatcher.HasImplementations(hookName, extensions...)
}

// InvokeHookAll invokes every implementation of a hook.
//
// Deprecated: use InvokeAll.
func (s *System) InvokeHookAll(hookName string, args ...any) (*hook.Merged, error) {
	s.logger.Warnf("InvokeHookAll is deprecated; use InvokeAll")
	return s.dispatcher.InvokeAll(hookName, args...)
}
