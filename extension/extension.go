package extension

import (
	mapset "github.com/deckarep/golang-set/v2"

	plua "github.com/dshills/hookstorm/extension/lua"
)

// Extension is one registered unit of pluggable functionality. It is owned
// by the Registry; the derived dependency fields (Requires, RequiredBy,
// Weight) are either all unset or all set together by one resolution pass.
type Extension struct {
	// Identity
	Name     string
	Kind     Kind
	Path     string // extension directory
	Manifest *Manifest

	// Dependencies as declared, raw strings ("name" or "name (constraint)").
	Dependencies []string

	// Derived by dependency resolution.
	requires   mapset.Set[string]
	requiredBy mapset.Set[string]
	weight     int
	resolved   bool

	// Runtime
	mainExists bool
	state      State
	err        error
	host       *plua.Host
	includes   map[string]includeResult
}

// includeResult memoizes one LoadInclude outcome, success or failure.
type includeResult struct {
	path string
	ok   bool
}

// newExtension builds a descriptor from a manifest.
func newExtension(m *Manifest) *Extension {
	return &Extension{
		Name:         m.Name,
		Kind:         m.Kind,
		Path:         m.Path(),
		Manifest:     m,
		Dependencies: m.Dependencies,
		includes:     make(map[string]includeResult),
	}
}

// State returns the extension's lifecycle state.
func (e *Extension) State() State {
	return e.state
}

// Err returns the load error, if any.
func (e *Extension) Err() error {
	return e.err
}

// Resolved reports whether dependency resolution has run for this extension.
func (e *Extension) Resolved() bool {
	return e.resolved
}

// Requires returns the transitive set of extension names this one depends
// on. Nil until resolved.
func (e *Extension) Requires() mapset.Set[string] {
	return e.requires
}

// RequiredBy returns the transitive set of extensions depending on this
// one. Nil until resolved.
func (e *Extension) RequiredBy() mapset.Set[string] {
	return e.requiredBy
}

// Weight returns the extension's position in the total load order.
// Zero until resolved.
func (e *Extension) Weight() int {
	return e.weight
}

// setResolution stores the derived dependency data. All three fields change
// together so the descriptor is never partially ordered.
func (e *Extension) setResolution(requires, requiredBy mapset.Set[string], weight int) {
	e.requires = requires
	e.requiredBy = requiredBy
	e.weight = weight
	e.resolved = true
}

// resetRuntime drops the loaded state for a new epoch. The caller closes
// and replaces the host.
func (e *Extension) resetRuntime() {
	if e.host != nil {
		e.host.Close()
		e.host = nil
	}
	e.state = StateUnloaded
	e.err = nil
	e.includes = make(map[string]includeResult)
}
