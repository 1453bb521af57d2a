package comm

import "errors"

// Sentinel errors for the closed error-kind set of spec §7 that
// originate in the Communication Manager itself (InvalidTopic,
// InvalidPayload, and ResubscribeForbidden are returned directly by
// the topic, event, and correlate packages respectively).
var (
	// ErrInvalidState is returned by Start on an already-started
	// manager, by Stop on a manager that is not Starting or Online, and
	// by Request while the manager is not Online.
	ErrInvalidState = errors.New("comm: invalid state for this operation")

	// ErrShutDown is returned by Publish, PublishRaw, Observe, ObserveRaw
	// and Request once Shutdown has been called.
	ErrShutDown = errors.New("comm: manager is shut down")
)
