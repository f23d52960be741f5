// Package lua provides the Lua runtime behind extension callables.
//
// Each extension owns one sandboxed Lua state. Loading an extension file
// (the main file or a lazily-loaded include) defines global functions named
// <extension>_<hook>; Host exports the newly defined ones as Go closures so
// the hook layer can place them in its callable table. Table arguments are
// passed by mutable reference: changes a Lua function makes to a
// map[string]any or *[]any argument are visible to the Go caller after the
// call returns.
package lua
