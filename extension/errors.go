package extension

import "errors"

// Extension registry errors.
var (
	// ErrExtensionNotFound is returned when an extension cannot be located.
	ErrExtensionNotFound = errors.New("extension not found")

	// ErrNoEntryPoint is returned when an extension has no valid entry point.
	ErrNoEntryPoint = errors.New("extension has no entry point (extension.json or init.lua)")

	// ErrAlreadyRegistered is returned when adding a name that is taken.
	ErrAlreadyRegistered = errors.New("extension is already registered")

	// ErrNilManifest is returned when a nil manifest is provided.
	ErrNilManifest = errors.New("manifest is nil")
)
