package extension

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/dshills/hookstorm/depgraph"
	plua "github.com/dshills/hookstorm/extension/lua"
	"github.com/dshills/hookstorm/log"
)

// CallableBinder receives the callables an extension file defines when it
// is loaded. It is implemented by the hook layer's callable table; the
// interface lives here to avoid a circular import.
type CallableBinder interface {
	// Register makes a callable available under its qualified name
	// (<extension>_<hook>).
	Register(name string, fn func(args ...any) (any, error))

	// UnregisterPrefix removes every callable whose name starts with prefix.
	UnregisterPrefix(prefix string)
}

// Registry holds the active extension set and its load lifecycle.
//
// A Registry belongs to one execution context and is not safe for
// concurrent mutation. The resolution pass keeps extensions ordered so
// dependencies always load before dependents.
type Registry struct {
	loader *Loader
	logger log.Logger
	binder CallableBinder

	extensions map[string]*Extension
	order      []string // registration order, the cycle tie-breaker
	sorted     []string // dependency order, rebuilt by resolve()

	epoch     int
	allLoaded bool

	subscribers []EventHandler
	onChange    func()
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithSearchPaths sets the filesystem paths scanned by Discover.
func WithSearchPaths(paths ...string) RegistryOption {
	return func(r *Registry) {
		r.loader = NewLoader(WithPaths(paths...))
	}
}

// WithLogger sets the registry logger.
func WithLogger(logger log.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithBinder sets the callable binder that receives loaded hook functions.
func WithBinder(binder CallableBinder) RegistryOption {
	return func(r *Registry) {
		r.binder = binder
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		loader:     NewLoader(),
		logger:     log.Discard,
		extensions: make(map[string]*Extension),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Loader returns the underlying discovery loader.
func (r *Registry) Loader() *Loader {
	return r.loader
}

// SetOnChange installs the callback fired whenever the active extension set
// changes (add, reload). The hook layer uses it to invalidate its caches.
func (r *Registry) SetOnChange(fn func()) {
	r.onChange = fn
}

// Discover scans the search paths and registers every valid extension
// found. Invalid extensions are logged and skipped. Returns the number of
// extensions registered.
func (r *Registry) Discover() (int, error) {
	infos, err := r.loader.Discover()
	if err != nil {
		return 0, err
	}

	added := 0
	for _, info := range infos {
		if info.Error != nil {
			r.logger.Warnf("skipping extension %q: %v", info.Name, info.Error)
			continue
		}
		if _, exists := r.extensions[info.Name]; exists {
			continue
		}
		r.register(info.Manifest)
		added++
	}

	if added > 0 {
		r.resolve()
		r.invalidate()
	}
	return added, nil
}

// Add registers a new extension descriptor by path. The manifest is read
// from the directory when present; otherwise a minimal one is synthesized.
// Whether the main file exists on disk is recorded, not required.
func (r *Registry) Add(kind Kind, name, path string) error {
	if _, exists := r.extensions[name]; exists {
		return fmt.Errorf("extension %q: %w", name, ErrAlreadyRegistered)
	}

	manifest, err := LoadManifestFromDir(path)
	if err != nil {
		manifest = NewManifestMinimal(name, path)
	}
	if kind != "" {
		manifest.Kind = kind
	}
	if err := manifest.Validate(); err != nil {
		return err
	}

	r.register(manifest)
	r.resolve()
	r.invalidate()
	r.emit(Event{Type: EventAdded, Extension: manifest.Name})
	return nil
}

// register creates the descriptor. Callers re-resolve afterwards.
func (r *Registry) register(m *Manifest) {
	ext := newExtension(m)
	if _, err := os.Stat(m.MainPath()); err == nil {
		ext.mainExists = true
	}
	r.extensions[ext.Name] = ext
	r.order = append(r.order, ext.Name)
	r.allLoaded = false
}

// Get returns an extension by name.
func (r *Registry) Get(name string) (*Extension, error) {
	ext, ok := r.extensions[name]
	if !ok {
		return nil, fmt.Errorf("extension %q: %w", name, ErrExtensionNotFound)
	}
	return ext, nil
}

// Exists reports whether an extension is registered. Never fails.
func (r *Registry) Exists(name string) bool {
	_, ok := r.extensions[name]
	return ok
}

// List returns all extensions in dependency order.
func (r *Registry) List() []*Extension {
	result := make([]*Extension, 0, len(r.sorted))
	for _, name := range r.sorted {
		result = append(result, r.extensions[name])
	}
	return result
}

// Names returns all extension names in dependency order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.sorted))
	copy(names, r.sorted)
	return names
}

// Loaded returns the loaded extensions in dependency order.
func (r *Registry) Loaded() []*Extension {
	result := make([]*Extension, 0, len(r.sorted))
	for _, name := range r.sorted {
		if ext := r.extensions[name]; ext.state == StateLoaded {
			result = append(result, ext)
		}
	}
	return result
}

// Load loads an extension's main file. Idempotent; a no-op when already
// loaded. The boolean reports whether the extension is known at all.
func (r *Registry) Load(name string) (bool, error) {
	ext, ok := r.extensions[name]
	if !ok {
		return false, nil
	}
	if ext.state == StateLoaded {
		return true, nil
	}

	if !ext.mainExists {
		// Registered without code on disk; nothing to execute.
		ext.state = StateLoaded
		return true, nil
	}

	host := r.ensureHost(ext)
	exports, err := host.LoadFile(ext.Manifest.MainPath())
	if err != nil {
		ext.state = StateError
		ext.err = err
		r.emit(Event{Type: EventError, Extension: name, Err: err})
		return true, fmt.Errorf("failed to load extension %q: %w", name, err)
	}
	r.bind(exports)

	ext.state = StateLoaded
	ext.err = nil
	r.emit(Event{Type: EventLoaded, Extension: name})
	return true, nil
}

// LoadAll loads every registered extension in dependency order, once per
// loaded epoch. Idempotent until the next Reload or Add.
func (r *Registry) LoadAll() error {
	if r.allLoaded {
		return nil
	}

	var loadErrors []error
	for _, name := range r.sorted {
		if _, err := r.Load(name); err != nil {
			loadErrors = append(loadErrors, err)
		}
	}
	r.allLoaded = true

	if len(loadErrors) > 0 {
		return fmt.Errorf("failed to load %d extensions: %w",
			len(loadErrors), errors.Join(loadErrors...))
	}
	return nil
}

// Reload resets the loaded epoch and loads everything again from disk.
func (r *Registry) Reload() error {
	for _, name := range r.order {
		ext := r.extensions[name]
		ext.resetRuntime()
		if r.binder != nil {
			r.binder.UnregisterPrefix(name + "_")
		}
	}
	r.epoch++
	r.allLoaded = false
	r.invalidate()

	err := r.LoadAll()
	r.emit(Event{Type: EventReloaded})
	return err
}

// Epoch returns the current loaded epoch, advanced by each Reload.
func (r *Registry) Epoch() int {
	return r.epoch
}

// LoadInclude loads a named companion file at most once per
// (extension, kind, label) triple, memoizing both the found path and a
// not-found result. The label defaults to the extension name; the file
// loaded is <label>.<kind> in the extension directory.
func (r *Registry) LoadInclude(name, kind, label string) (string, bool) {
	ext, ok := r.extensions[name]
	if !ok {
		return "", false
	}
	if label == "" {
		label = name
	}

	key := kind + ":" + label
	if result, done := ext.includes[key]; done {
		return result.path, result.ok
	}

	path := filepath.Join(ext.Path, label+"."+kind)
	if _, err := os.Stat(path); err != nil {
		ext.includes[key] = includeResult{}
		return "", false
	}

	host := r.ensureHost(ext)
	exports, err := host.LoadFile(path)
	if err != nil {
		r.logger.Errorf("failed to load include %s for %q: %v", path, name, err)
		ext.includes[key] = includeResult{}
		return "", false
	}
	r.bind(exports)

	ext.includes[key] = includeResult{path: path, ok: true}
	return path, true
}

// Subscribe adds an event handler and returns an unsubscribe function.
func (r *Registry) Subscribe(handler EventHandler) func() {
	if handler == nil {
		return func() {}
	}
	r.subscribers = append(r.subscribers, handler)
	index := len(r.subscribers) - 1
	return func() {
		if index < len(r.subscribers) {
			r.subscribers[index] = nil
		}
	}
}

// Close releases every extension's Lua host.
func (r *Registry) Close() error {
	for _, ext := range r.extensions {
		if ext.host != nil {
			ext.host.Close()
		}
	}
	return nil
}

// ensureHost lazily creates the extension's Lua host. Includes may load
// before the main file does.
func (r *Registry) ensureHost(ext *Extension) *plua.Host {
	if ext.host == nil {
		ext.host = plua.NewHost(ext.Name)
	}
	return ext.host
}

// bind hands newly exported callables to the hook layer.
func (r *Registry) bind(exports map[string]plua.Function) {
	if r.binder == nil {
		return
	}
	for name, fn := range exports {
		r.binder.Register(name, fn)
	}
}

// invalidate fires the on-change callback.
func (r *Registry) invalidate() {
	if r.onChange != nil {
		r.onChange()
	}
}

// emit sends an event to all subscribers, recovering panics.
func (r *Registry) emit(event Event) {
	for _, handler := range r.subscribers {
		if handler == nil {
			continue
		}
		func() {
			defer func() {
				recover() // subscriber panics must not break the registry
			}()
			handler(event)
		}()
	}
}

// resolve runs the dependency pass and rebuilds the load order.
func (r *Registry) resolve() {
	nodes := make(map[string][]depgraph.Edge, len(r.extensions))
	for name, ext := range r.extensions {
		edges := make([]depgraph.Edge, 0, len(ext.Dependencies))
		for _, raw := range ext.Dependencies {
			edges = append(edges, depgraph.ParseDependency(raw))
		}
		nodes[name] = edges
	}

	resolution := depgraph.Resolve(nodes, r.order)
	for name, node := range resolution {
		r.extensions[name].setResolution(node.Requires, node.RequiredBy, node.Weight)
	}

	index := make(map[string]int, len(r.order))
	for i, name := range r.order {
		index[name] = i
	}
	r.sorted = make([]string, len(r.order))
	copy(r.sorted, r.order)
	sort.SliceStable(r.sorted, func(i, j int) bool {
		wi := r.extensions[r.sorted[i]].weight
		wj := r.extensions[r.sorted[j]].weight
		if wi != wj {
			return wi < wj
		}
		return index[r.sorted[i]] < index[r.sorted[j]]
	})
}
