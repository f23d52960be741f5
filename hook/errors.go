package hook

import "fmt"

// FabricatedImplementationError reports that an implements-alter hook added
// an entry for an extension that does not expose the expected callable.
// Unlike stale cache entries, which drift in over time and are silently
// repaired, a fabricated entry means a broken extension and is fatal.
type FabricatedImplementationError struct {
	Hook      string
	Extension string
}

func (e *FabricatedImplementationError) Error() string {
	return fmt.Sprintf("extension %q was declared an implementer of hook %q but defines no %s_%s callable",
		e.Extension, e.Hook, e.Extension, e.Hook)
}
