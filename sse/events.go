package sse

// Event names written on the "event:" line.
const (
	// EventConnected is the first event on every stream.
	EventConnected = "connected"
	// EventSession carries a JSON session snapshot.
	EventSession = "session"
)
