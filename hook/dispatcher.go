package hook

import (
	"strings"

	"github.com/dshills/hookstorm/cache"
	"github.com/dshills/hookstorm/extension"
	"github.com/dshills/hookstorm/log"
)

// Reserved names in the hook namespace.
const (
	// ImplementsAlterHook is the reserved meta-hook through which
	// extensions reorder or remove other hooks' implementation records.
	// It is the alter hook for the "implements" kind and is excluded from
	// altering its own discovery.
	ImplementsAlterHook = "implements_alter"

	// implementsAlterKind is the alter kind dispatched during a record
	// build.
	implementsAlterKind = "implements"

	// InfoHook is the discovery hook extensions implement to declare
	// include groups for hooks they define.
	InfoHook = "hook_info"

	// includeKind is the file extension of lazily-loaded include files.
	includeKind = "lua"
)

// ExtensionSource is the registry view the dispatcher needs. It is
// implemented by extension.Registry.
type ExtensionSource interface {
	// Loaded returns the loaded extensions in dependency order.
	Loaded() []*extension.Extension

	// Exists reports whether an extension is registered.
	Exists(name string) bool

	// LoadInclude loads a companion file at most once per triple.
	LoadInclude(name, kind, label string) (string, bool)
}

// Dispatcher finds and invokes hook implementations. It is the only way
// the host calls into extensions.
//
// A Dispatcher is scoped to one execution context. Its in-process caches
// assume single-threaded use; only the persistent backend may be shared
// with other contexts, and whatever another context wrote is re-verified
// here before being trusted.
type Dispatcher struct {
	source    ExtensionSource
	callables *Callables
	backend   cache.Backend
	logger    log.Logger

	// In-process cache tiers.
	impls    map[string]*record      // per hook, see implementations.go
	alterFns map[string][]alterEntry // per kind-combination id
	info     map[string]Info         // hook metadata, nil until built

	storeLoaded bool
	dirty       bool
}

// alterEntry is one resolved alter implementation.
type alterEntry struct {
	extension string
	qname     string
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithBackend sets the persistent cache backend. Defaults to an in-memory
// backend, which still exercises the verification path within a process.
func WithBackend(backend cache.Backend) DispatcherOption {
	return func(d *Dispatcher) {
		d.backend = backend
	}
}

// WithLogger sets the dispatcher logger.
func WithLogger(logger log.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// NewDispatcher creates a dispatcher over the given extension source and
// callable table.
func NewDispatcher(source ExtensionSource, callables *Callables, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		source:    source,
		callables: callables,
		backend:   cache.NewMemory(),
		logger:    log.Discard,
		impls:     make(map[string]*record),
		alterFns:  make(map[string][]alterEntry),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Callables returns the dispatcher's registration table.
func (d *Dispatcher) Callables() *Callables {
	return d.callables
}

// HasImplementations reports whether any extension implements the hook.
//
// When specific extension names are given, a fast path checks raw callable
// existence first, bypassing the cache entirely. Lifecycle hooks that are
// deliberately kept out of the persistent cache stay probeable this way.
func (d *Dispatcher) HasImplementations(hook string, extensions ...string) (bool, error) {
	if len(extensions) > 0 {
		for _, name := range extensions {
			if d.callables.Exists(name + "_" + hook) {
				return true, nil
			}
		}
		rec, err := d.implementations(hook)
		if err != nil {
			return false, err
		}
		for _, name := range extensions {
			if rec.contains(name) {
				return true, nil
			}
		}
		return false, nil
	}

	rec, err := d.implementations(hook)
	if err != nil {
		return false, err
	}
	return len(rec.impls) > 0, nil
}

// InvokeAllWith calls visitor once per implementing extension, in cache
// order. It performs no result aggregation; it is the building block the
// invocation modes share.
func (d *Dispatcher) InvokeAllWith(hook string, visitor func(call Callable, ext string) error) error {
	rec, err := d.implementations(hook)
	if err != nil {
		return err
	}
	for _, impl := range rec.impls {
		call, ok := d.callables.Get(impl.Extension + "_" + hook)
		if !ok {
			// Verified moments ago; a miss here means the callable was
			// unregistered mid-iteration. Skip it.
			continue
		}
		if err := visitor(call, impl.Extension); err != nil {
			return err
		}
	}
	return nil
}

// Invoke calls a single extension's implementation of a hook. The boolean
// reports whether the extension implements the hook at all; a false return
// is not an error.
func (d *Dispatcher) Invoke(ext, hook string, args ...any) (any, bool, error) {
	qname := ext + "_" + hook
	if !d.callables.Exists(qname) {
		// The implementation may live in an include the cache build
		// loads on demand.
		rec, err := d.implementations(hook)
		if err != nil {
			return nil, false, err
		}
		if !rec.contains(ext) {
			return nil, false, nil
		}
	}
	result, err := d.callables.Invoke(qname, args...)
	if err != nil {
		return nil, true, err
	}
	return result, true, nil
}

// InvokeAll invokes every implementation of a hook in order and merges the
// results: keyed mappings deep-merge (later extensions win on key
// conflicts, sibling keys survive), everything else appends in invocation
// order. Implementation errors propagate unmodified.
func (d *Dispatcher) InvokeAll(hook string, args ...any) (*Merged, error) {
	merged := NewMerged()
	err := d.InvokeAllWith(hook, func(call Callable, ext string) error {
		result, err := call(args...)
		if err != nil {
			return err
		}
		merged.add(result)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return merged, nil
}

// Alter mutates data in place by invoking every implementation of every
// "<kind>_alter" hook, in order, passing data, context1 and context2 by
// mutable reference. The resolved function list is memoized per distinct
// kind combination for the rest of the context.
func (d *Dispatcher) Alter(kinds []string, data, context1, context2 any) error {
	if len(kinds) == 0 {
		return nil
	}

	cid := strings.Join(kinds, ",")
	entries, ok := d.alterFns[cid]
	if !ok {
		seen := make(map[string]bool)
		for _, kind := range kinds {
			rec, err := d.implementations(kind + "_alter")
			if err != nil {
				return err
			}
			for _, impl := range rec.impls {
				qname := impl.Extension + "_" + kind + "_alter"
				if seen[qname] {
					continue
				}
				seen[qname] = true
				entries = append(entries, alterEntry{extension: impl.Extension, qname: qname})
			}
		}
		d.alterFns[cid] = entries
	}

	for _, entry := range entries {
		call, ok := d.callables.Get(entry.qname)
		if !ok {
			continue
		}
		if _, err := call(data, context1, context2); err != nil {
			return err
		}
	}
	return nil
}

// InvokeAllDeprecated is InvokeAll for hooks on their way out. It logs a
// deprecation notice naming every still-active implementing extension, then
// dispatches normally.
func (d *Dispatcher) InvokeAllDeprecated(description, hook string, args ...any) (*Merged, error) {
	d.deprecationNotice(description, hook)
	return d.InvokeAll(hook, args...)
}

// AlterDeprecated is Alter for alter kinds on their way out, with the same
// notice behavior as InvokeAllDeprecated.
func (d *Dispatcher) AlterDeprecated(description string, kinds []string, data, context1, context2 any) error {
	for _, kind := range kinds {
		d.deprecationNotice(description, kind+"_alter")
	}
	return d.Alter(kinds, data, context1, context2)
}

// deprecationNotice logs which extensions still implement a hook. It never
// blocks or alters dispatch.
func (d *Dispatcher) deprecationNotice(description, hook string) {
	names, err := d.Implementations(hook)
	if err != nil || len(names) == 0 {
		return
	}
	d.logger.Warnf("hook %q is deprecated (%s); still implemented by: %s",
		hook, description, strings.Join(names, ", "))
}
