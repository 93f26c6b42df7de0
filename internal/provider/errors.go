package provider

import "fmt"

// ErrNoAdapterForModel is returned by a Dispatcher when no registered
// adapter Supports the requested model descriptor.
type ErrNoAdapterForModel struct {
	Model string
}

func (e *ErrNoAdapterForModel) Error() string {
	return fmt.Sprintf("provider: no adapter registered for model %q", e.Model)
}
