package extension

// EventHandler handles registry events. Handlers must not call back into
// the Registry; panics in handlers are recovered.
type EventHandler func(event Event)

// Event represents a registry lifecycle event.
type Event struct {
	Type      EventType
	Extension string
	Err       error
}

// EventType is the type of registry event.
type EventType int

const (
	// EventAdded is emitted when an extension is registered.
	EventAdded EventType = iota
	// EventLoaded is emitted when an extension's main file is loaded.
	EventLoaded
	// EventReloaded is emitted after a registry-wide reload.
	EventReloaded
	// EventError is emitted when an extension fails to load.
	EventError
)

// String returns a string representation of the event type.
func (t EventType) String() string {
	switch t {
	case EventAdded:
		return "added"
	case EventLoaded:
		return "loaded"
	case EventReloaded:
		return "reloaded"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}
