// Package extension manages the set of active extensions: discovery from
// the filesystem, manifest parsing, dependency resolution, and the load
// lifecycle for main and companion Lua files.
//
// An extension is a directory with an optional extension.json manifest and
// a main Lua file (default init.lua), or a bare <name>.lua file. Its Lua
// code defines global functions named <extension>_<hook>; those are handed
// to a CallableBinder as each file loads, which is how the hook layer
// learns what exists without any reflection at dispatch time.
//
// The Registry orders extensions so dependencies load before dependents,
// using the depgraph package. Dependency cycles degrade to a deterministic
// best-effort order rather than failing.
//
// A Registry is scoped to one execution context and is not safe for
// concurrent mutation.
package extension
