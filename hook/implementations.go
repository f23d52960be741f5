package hook

import (
	"sort"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/dshills/hookstorm/cache"
)

// Implementation records that one extension implements a hook, and which
// include group (companion file) must be loaded first, if any.
type Implementation struct {
	// Extension is the implementing extension's name.
	Extension string

	// Group names the include file group the callable lives in, or "" when
	// the implementation is in the always-loaded main file.
	Group string
}

// record is the in-process cache entry for one hook. A record read back
// from the persistent store starts unverified; it must not be trusted until
// every entry has been checked against the live callable table.
type record struct {
	impls    []Implementation
	verified bool
}

// contains reports whether the record lists the extension.
func (r *record) contains(name string) bool {
	for _, impl := range r.impls {
		if impl.Extension == name {
			return true
		}
	}
	return false
}

// implementations returns the verified record for a hook, building or
// verifying it as needed. The only error it can return is a fatal
// FabricatedImplementationError from the implements-alter pass (or a callee
// failure inside one of the hooks that pass dispatches).
func (d *Dispatcher) implementations(hook string) (*record, error) {
	d.ensureStore()

	if rec, ok := d.impls[hook]; ok {
		if !rec.verified {
			d.verify(hook, rec)
		}
		return rec, nil
	}

	rec, err := d.build(hook)
	if err != nil {
		return nil, err
	}
	d.impls[hook] = rec
	d.dirty = true
	return rec, nil
}

// Implementations returns the names of the extensions implementing a hook,
// in invocation order.
func (d *Dispatcher) Implementations(hook string) ([]string, error) {
	rec, err := d.implementations(hook)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(rec.impls))
	for _, impl := range rec.impls {
		names = append(names, impl.Extension)
	}
	return names, nil
}

// ensureStore loads the persisted implementation table once per context.
// Every hook present in the blob becomes an unverified in-process record;
// verification happens lazily per hook on first use.
func (d *Dispatcher) ensureStore() {
	if d.storeLoaded {
		return
	}
	d.storeLoaded = true

	data, ok, err := d.backend.Get(cache.KeyHookImplements)
	if err != nil {
		d.logger.Warnf("failed to read implementation cache: %v", err)
		return
	}
	if !ok {
		return
	}

	parsed := gjson.ParseBytes(data)
	if !parsed.IsObject() {
		d.logger.Warnf("discarding malformed implementation cache")
		return
	}

	// gjson iterates in document order, which is the record's insertion
	// order. encoding/json maps would lose it.
	parsed.ForEach(func(hookKey, hookVal gjson.Result) bool {
		rec := &record{}
		hookVal.ForEach(func(extKey, extVal gjson.Result) bool {
			impl := Implementation{Extension: extKey.String()}
			if extVal.Type == gjson.String {
				impl.Group = extVal.String()
			}
			rec.impls = append(rec.impls, impl)
			return true
		})
		d.impls[hookKey.String()] = rec
		return true
	})
}

// verify checks a persisted record against the live registration state.
// Entries whose extension is gone or whose callable no longer exists are
// dropped silently and the store is marked for rewrite; this is drift
// repair, never an error.
func (d *Dispatcher) verify(hook string, rec *record) {
	kept := make([]Implementation, 0, len(rec.impls))
	for _, impl := range rec.impls {
		if !d.source.Exists(impl.Extension) {
			d.logger.Debugf("dropping implementation of %q by removed extension %q", hook, impl.Extension)
			d.dirty = true
			continue
		}
		if impl.Group != "" {
			d.source.LoadInclude(impl.Extension, includeKind, impl.Extension+"."+impl.Group)
		}
		if !d.callables.Exists(impl.Extension + "_" + hook) {
			d.logger.Debugf("dropping stale implementation %s_%s", impl.Extension, hook)
			d.dirty = true
			continue
		}
		kept = append(kept, impl)
	}
	rec.impls = kept
	rec.verified = true
}

// build runs the full scan for a hook: probe every loaded extension in
// registry order, loading the hook's include group when the main file does
// not already provide the callable, then let extensions adjust the result
// through the implements-alter pass.
func (d *Dispatcher) build(hook string) (*record, error) {
	info, err := d.hookInfo()
	if err != nil {
		return nil, err
	}
	group := info[hook].Group

	rec := &record{verified: true}
	for _, ext := range d.source.Loaded() {
		name := ext.Name
		qname := name + "_" + hook
		usedGroup := ""
		if !d.callables.Exists(qname) {
			if group == "" {
				continue
			}
			if _, ok := d.source.LoadInclude(name, includeKind, name+"."+group); !ok {
				continue
			}
			if !d.callables.Exists(qname) {
				continue
			}
			usedGroup = group
		}
		rec.impls = append(rec.impls, Implementation{Extension: name, Group: usedGroup})
	}

	// The reserved hook must not alter its own discovery, or the build
	// would recurse forever.
	if hook != ImplementsAlterHook {
		if err := d.applyImplementsAlter(hook, rec); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

// applyImplementsAlter gives every implementer of the reserved meta-hook a
// chance to reorder or remove this hook's entries. Entries it adds or
// regroups are re-validated: fabricating an implementation is fatal.
func (d *Dispatcher) applyImplementsAlter(hook string, rec *record) error {
	list := make([]any, 0, len(rec.impls))
	before := make(map[string]string, len(rec.impls))
	for _, impl := range rec.impls {
		entry := map[string]any{"extension": impl.Extension, "group": any(false)}
		if impl.Group != "" {
			entry["group"] = impl.Group
		}
		list = append(list, entry)
		before[impl.Extension] = impl.Group
	}

	if err := d.Alter([]string{implementsAlterKind}, &list, hook, nil); err != nil {
		return err
	}

	rebuilt := make([]Implementation, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		name, _ := m["extension"].(string)
		if name == "" {
			continue
		}
		group := ""
		if g, ok := m["group"].(string); ok {
			group = g
		}

		prevGroup, existed := before[name]
		if !existed || prevGroup != group {
			if group != "" {
				d.source.LoadInclude(name, includeKind, name+"."+group)
			}
			if !d.callables.Exists(name + "_" + hook) {
				return &FabricatedImplementationError{Hook: hook, Extension: name}
			}
		}
		rebuilt = append(rebuilt, Implementation{Extension: name, Group: group})
	}
	rec.impls = rebuilt
	return nil
}

// Flush writes the implementation table back to the persistent store if
// anything changed. Call it at the end of the execution context.
func (d *Dispatcher) Flush() error {
	if !d.dirty {
		return nil
	}

	hooks := make([]string, 0, len(d.impls))
	for hook := range d.impls {
		hooks = append(hooks, hook)
	}
	sort.Strings(hooks)

	blob := "{}"
	for _, hook := range hooks {
		// Hooks with no implementers are cached too; knowing there is
		// nothing to call saves the next context a full scan.
		blob, _ = sjson.SetRaw(blob, hook, "{}")
		for _, impl := range d.impls[hook].impls {
			if impl.Group != "" {
				blob, _ = sjson.Set(blob, hook+"."+impl.Extension, impl.Group)
			} else {
				blob, _ = sjson.Set(blob, hook+"."+impl.Extension, false)
			}
		}
	}

	if err := d.backend.Set(cache.KeyHookImplements, []byte(blob)); err != nil {
		d.logger.Warnf("failed to write implementation cache: %v", err)
		return err
	}
	d.dirty = false
	return nil
}

// Invalidate clears every in-process tier and eagerly clears the
// persistent store, so no other context can read data made stale by a
// registry change.
func (d *Dispatcher) Invalidate() {
	d.impls = make(map[string]*record)
	d.alterFns = make(map[string][]alterEntry)
	d.info = nil
	d.storeLoaded = false
	d.dirty = false

	if err := d.backend.Delete(cache.KeyHookImplements); err != nil {
		d.logger.Warnf("failed to clear implementation cache: %v", err)
	}
	if err := d.backend.Delete(cache.KeyHookInfo); err != nil {
		d.logger.Warnf("failed to clear hook info cache: %v", err)
	}
}
