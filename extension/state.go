package extension

// Kind classifies an extension.
type Kind string

// Extension kinds.
const (
	KindModule  Kind = "module"
	KindProfile Kind = "profile"
	KindTheme   Kind = "theme"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindModule, KindProfile, KindTheme:
		return true
	}
	return false
}

// State represents the lifecycle state of an extension.
type State int

// Extension states.
const (
	// StateUnloaded - Extension is registered but its code is not loaded.
	StateUnloaded State = iota

	// StateLoaded - Extension's main file has been executed.
	StateLoaded

	// StateError - Extension failed to load.
	StateError
)

// String returns a string representation of the state.
func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateLoaded:
		return "loaded"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}
