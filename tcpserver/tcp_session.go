package tcpserver

// TCPServerSession is the interface that must be implemented by each connection
// session. The server creates a session per connection and runs Handle in a
// goroutine; the session is responsible for reading, processing and writing
// until the peer goes away or Close is called.
type TCPServerSession interface {
	// ID returns the session's unique identifier assigned by the server.
	//
	// Returns:
	//   - The session ID (uint32)
	ID() uint32

	// Handle runs the session until it ends. It must release the connection
	// before returning.
	Handle()

	// Close interrupts a running Handle. It should be safe to call multiple
	// times and concurrently with Handle.
	//
	// Returns:
	//   - An error if closing failed
	Close() error
}
