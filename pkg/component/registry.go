package component

import (
	"errors"
	"fmt"
	"sort"
)

// Registry errors.
var (
	// ErrAlreadyRegistered indicates a duplicate component id.
	ErrAlreadyRegistered = errors.New("component id already registered")

	// ErrInvalidComponentID indicates an id outside [0, MaxComponents).
	ErrInvalidComponentID = errors.New("component id out of range")
)

// Registry holds the ordered set of registered components.
// Registration happens before the agent starts; afterwards the
// registry is only read, and only by the worker goroutine.
type Registry struct {
	components []Component
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{components: make([]Component, 0, MaxComponents)}
}

// Register adds a component. The id must be unique and within range.
// The registry is kept sorted ascending by id regardless of
// registration order.
func (r *Registry) Register(c Component) error {
	id := c.ID()
	if id >= MaxComponents {
		return fmt.Errorf("%w: %d", ErrInvalidComponentID, id)
	}
	for _, existing := range r.components {
		if existing.ID() == id {
			return fmt.Errorf("%w: %d", ErrAlreadyRegistered, id)
		}
	}
	r.components = append(r.components, c)
	sort.Slice(r.components, func(i, j int) bool {
		return r.components[i].ID() < r.components[j].ID()
	})
	return nil
}

// Components returns the registered components in ascending id order.
// The returned slice must not be mutated.
func (r *Registry) Components() []Component {
	return r.components
}

// Lookup returns the component with the given id.
func (r *Registry) Lookup(id uint8) (Component, bool) {
	for _, c := range r.components {
		if c.ID() == id {
			return c, true
		}
	}
	return nil, false
}

// Len returns the number of registered components.
func (r *Registry) Len() int {
	return len(r.components)
}
