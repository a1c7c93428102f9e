// Package wire implements the byte-level HTTP reader and writer the
// server engine is built on. Both sides own fixed, pre-allocated
// buffers sized for tiny heaps, are bound to a connection with Attach
// and recycled with Detach, and carry a sticky Status: once a reader
// or writer has failed, every further call is a no-op until the next
// Attach, so error propagation rides on the status instead of
// threading an error through every parse step.
package wire

// Status describes where a reader or writer stands in the message it
// is processing. The two success states are ordered; every state
// beyond InContent is a failure.
type Status int

const (
	// StatusBeforeContent covers the request/status line and headers.
	StatusBeforeContent Status = iota
	// StatusInContent is entered once the header section ends.
	StatusInContent
	// StatusConnectionError reports EOF, reset or timeout on the
	// underlying stream.
	StatusConnectionError
	// StatusSyntaxError reports a malformed token or header line.
	StatusSyntaxError
	// StatusRequestURITooLong reports a request URI exceeding the
	// symbol buffer; the server answers it with 414.
	StatusRequestURITooLong
)

// Failed reports whether s is one of the error states.
func (s Status) Failed() bool { return s > StatusInContent }

func (s Status) String() string {
	switch s {
	case StatusBeforeContent:
		return "before-content"
	case StatusInContent:
		return "in-content"
	case StatusConnectionError:
		return "connection-error"
	case StatusSyntaxError:
		return "syntax-error"
	case StatusRequestURITooLong:
		return "request-uri-too-long"
	default:
		return "unknown"
	}
}
