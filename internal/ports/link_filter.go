package ports

// LinkFilter defines the interface for the engine's front-end transport.
// Implementations receive link and navigation events from a host (such as a
// browser extension over native messaging) and feed them into the engine.
type LinkFilter interface {
	// Start begins serving the transport in the background and returns
	// immediately. Implementations may expose a Done channel reporting when
	// the transport closes.
	Start() error

	// Stop stops the transport.
	Stop() error
}
