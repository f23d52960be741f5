// Package hook dispatches host events to extension-provided callables.
//
// An extension implements the hook "form" by registering a callable named
// "<extension>_form". The Dispatcher discovers implementations by probing
// the callable table across all loaded extensions, caches the result in a
// persistent backend, and verifies cached records against live state
// before trusting them, so a stale cache degrades to a rebuild rather than
// a wrong dispatch.
//
// Three invocation modes exist: Invoke calls one extension, InvokeAll
// calls every implementer and merges the results, and Alter passes data by
// mutable reference through every "<kind>_alter" implementation. The
// reserved meta-hook "implements_alter" lets extensions rewrite any other
// hook's implementation list as it is built.
package hook
