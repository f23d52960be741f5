// Package cache defines the persistent cache backend contract used by the
// hook dispatcher, with an in-memory implementation for single-process use
// and a bbolt-backed implementation for persistence across runs.
package cache

// Backend is a string-keyed byte store with at-least atomic single-key
// get/set semantics. It may be shared across concurrent contexts; the hook
// layer repairs stale reads at verification time rather than locking.
type Backend interface {
	// Get returns the stored data for key. The second result reports
	// whether the key was present.
	Get(key string) ([]byte, bool, error)

	// Set stores data under key, replacing any previous value.
	Set(key string, data []byte) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(key string) error
}

// Keys written by the hook layer.
const (
	// KeyHookImplements holds one JSON blob with every hook's
	// implementation record.
	KeyHookImplements = "hook_implements"

	// KeyHookInfo holds the hook metadata table.
	KeyHookInfo = "hook_info"
)
