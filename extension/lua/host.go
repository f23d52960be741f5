package lua

import (
	"fmt"
	"strings"

	lua "github.com/yuin/gopher-lua"
)

// Function is an extension callable exported to Go. Arguments of type
// map[string]any and *[]any are passed by mutable reference; mutations made
// by the Lua function are copied back before Function returns. The result is
// the function's first return value converted to Go, or nil.
type Function func(args ...any) (any, error)

// Host runs one extension's Lua code and exports its hook functions.
type Host struct {
	name   string
	state  *State
	bridge *Bridge

	// exported tracks globals already handed out, so repeated file loads
	// only surface newly defined functions.
	exported map[string]bool
}

// NewHost creates a Lua host for the named extension.
func NewHost(name string) *Host {
	state := NewState()
	return &Host{
		name:     name,
		state:    state,
		bridge:   NewBridge(state.L),
		exported: make(map[string]bool),
	}
}

// Name returns the extension name this host runs code for.
func (h *Host) Name() string {
	return h.name
}

// LoadFile executes a Lua file and returns the global functions it newly
// defined under the extension's <name>_ prefix, keyed by full global name.
func (h *Host) LoadFile(path string) (map[string]Function, error) {
	if err := h.state.DoFile(path); err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return h.collectExports(), nil
}

// LoadString is LoadFile for in-memory source. Used by tests.
func (h *Host) LoadString(code string) (map[string]Function, error) {
	if err := h.state.DoString(code); err != nil {
		return nil, fmt.Errorf("failed to load source: %w", err)
	}
	return h.collectExports(), nil
}

// HasFunction reports whether the named global is a function.
func (h *Host) HasFunction(name string) bool {
	found := false
	h.state.ForEachGlobal(func(global string, value lua.LValue) {
		if global == name && value.Type() == lua.LTFunction {
			found = true
		}
	})
	return found
}

// Close releases the Lua state. Previously exported Functions fail with
// ErrStateClosed afterwards.
func (h *Host) Close() error {
	return h.state.Close()
}

// collectExports scans globals for not-yet-exported prefixed functions.
func (h *Host) collectExports() map[string]Function {
	prefix := h.name + "_"
	exports := make(map[string]Function)
	h.state.ForEachGlobal(func(global string, value lua.LValue) {
		if h.exported[global] || value.Type() != lua.LTFunction {
			return
		}
		if !strings.HasPrefix(global, prefix) {
			return
		}
		h.exported[global] = true
		exports[global] = h.wrap(global)
	})
	return exports
}

// mutableArg pairs a caller-owned container with the Lua table standing in
// for it during a call.
type mutableArg struct {
	table    *lua.LTable
	mapRef   map[string]any
	slicePtr *[]any
}

// wrap builds the Go closure for one global function.
func (h *Host) wrap(global string) Function {
	return func(args ...any) (any, error) {
		luaArgs := make([]lua.LValue, len(args))
		var mutable []mutableArg

		for i, arg := range args {
			switch v := arg.(type) {
			case map[string]any:
				t := h.bridge.ToLua(v).(*lua.LTable)
				luaArgs[i] = t
				mutable = append(mutable, mutableArg{table: t, mapRef: v})
			case *[]any:
				var t *lua.LTable
				if v == nil {
					t = h.bridge.ToLua([]any(nil)).(*lua.LTable)
				} else {
					t = h.bridge.ToLua(*v).(*lua.LTable)
				}
				luaArgs[i] = t
				if v != nil {
					mutable = append(mutable, mutableArg{table: t, slicePtr: v})
				}
			default:
				luaArgs[i] = h.bridge.ToLua(arg)
			}
		}

		results, err := h.state.Call(global, luaArgs...)
		if err != nil {
			return nil, err
		}

		for _, m := range mutable {
			h.syncBack(m)
		}

		if len(results) == 0 {
			return nil, nil
		}
		return h.bridge.ToGo(results[0]), nil
	}
}

// syncBack copies a Lua table's contents into the caller's container.
func (h *Host) syncBack(m mutableArg) {
	converted := h.bridge.ToGo(m.table)

	switch {
	case m.mapRef != nil:
		updated, ok := converted.(map[string]any)
		if !ok {
			// The table lost its map shape; represent it under keys
			// "1".."n" rather than dropping the data.
			if arr, isArr := converted.([]any); isArr {
				updated = make(map[string]any, len(arr))
				for i, item := range arr {
					updated[fmt.Sprintf("%d", i+1)] = item
				}
			} else {
				return
			}
		}
		for k := range m.mapRef {
			delete(m.mapRef, k)
		}
		for k, v := range updated {
			m.mapRef[k] = v
		}

	case m.slicePtr != nil:
		switch updated := converted.(type) {
		case []any:
			*m.slicePtr = updated
		case map[string]any:
			if len(updated) == 0 {
				*m.slicePtr = []any{}
			}
			// Non-contiguous keys: leave the caller's slice untouched.
		}
	}
}
