package stream

import "net"

// Pipe returns two connected in-memory Streams. Writes on one end are
// reads on the other. Used by tests and by anything that needs to
// drive the engine without a socket.
func Pipe() (Stream, Stream) {
	a, b := net.Pipe()
	return NewNetStream(a), NewNetStream(b)
}
