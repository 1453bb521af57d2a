package comm

// Controller is the lifecycle contract a controller implements to
// participate in a Manager's Starting/Stopping transitions
// (SPEC_FULL §4.6.1). OnInit takes the controller's own configuration
// and has no dependency on the core, so the container — not the
// Manager — is responsible for calling it before registration.
type Controller interface {
	// OnContainerResolved is called once, synchronously, when the
	// controller is registered with a Manager.
	OnContainerResolved(m *Manager)

	// OnCommunicationManagerStarting is called synchronously before the
	// Manager moves from Starting to Online, in registration order, so
	// controllers can (re-)register observers before traffic flows.
	OnCommunicationManagerStarting(m *Manager)

	// OnCommunicationManagerStopping is called synchronously while the
	// Manager is in the Stopping state, before it moves to Offline, in
	// registration order, so controllers can detach observers and
	// release resources cleanly.
	OnCommunicationManagerStopping(m *Manager)

	// OnDispose is called when the Manager is shut down, after
	// OnCommunicationManagerStopping if the manager was running.
	OnDispose()
}
