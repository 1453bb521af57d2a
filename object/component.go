package object

import "fmt"

// Component specializes Object to identify a running controller or the
// communication manager itself. Its ObjectID is the sender identity
// placed in every topic this process publishes (spec §3).
type Component struct {
	Object
}

// NewComponent creates a Component with a fresh UUID v4 identity.
func NewComponent(objectType, name string) (Component, error) {
	obj, err := New(CoreComponent, objectType, name)
	if err != nil {
		return Component{}, err
	}
	return Component{Object: obj}, nil
}

// Validate checks the Object invariants and that CoreType is
// specifically Component.
func (c Component) Validate() error {
	if err := c.Object.Validate(); err != nil {
		return err
	}
	if c.CoreType != CoreComponent {
		return fmt.Errorf("component: coreType must be %q, got %q", CoreComponent, c.CoreType)
	}
	return nil
}
