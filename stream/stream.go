// Package stream provides the byte-oriented duplex connection
// abstraction the HTTP engine runs on: a Stream with blocking
// read/write and configurable timeouts, and a Provider that hands out
// accepted Streams. Providers exist for plain TCP listeners and, in
// package relay, for reverse-HTTP tunnels.
//
// Transport failures are reported as tagged sentinel errors
// (ErrTimeout, ErrClosed, ErrReset) so protocol state machines can
// branch on the kind without unwinding through exception-style
// control flow.
package stream

import (
	"errors"
	"time"
)

var (
	// ErrTimeout reports that a read or write missed its deadline.
	ErrTimeout = errors.New("stream: timeout")
	// ErrClosed reports an operation on a closed stream or provider.
	ErrClosed = errors.New("stream: closed")
	// ErrReset reports that the peer dropped the connection.
	ErrReset = errors.New("stream: connection reset")
)

// Stream is a bidirectional byte stream. Read blocks until at least
// one byte is available, the configured read timeout elapses, or the
// peer closes; it never returns (0, nil). Implementations are not
// safe for concurrent use of the same direction.
type Stream interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error

	// SetReadTimeout bounds every subsequent Read. Zero or negative
	// disables the bound.
	SetReadTimeout(d time.Duration) error
	// SetWriteTimeout bounds every subsequent Write. Zero or negative
	// disables the bound.
	SetWriteTimeout(d time.Duration) error
}

// Provider produces inbound connections. For a TCP provider Accept
// wraps a listening socket; for a relay provider it dials out and
// performs the reverse-HTTP upgrade before returning.
type Provider interface {
	// Accept blocks until a connection is available. After Close it
	// returns ErrClosed.
	Accept() (Stream, error)

	// LocalURL advertises the root under which the provider's
	// connections address this host, in the form
	// "http://<host>[:<port>][/<relayDomain>]".
	LocalURL() string

	Close() error
}

// Dialer opens an outbound Stream. The TCP implementation is Connect;
// tests substitute in-memory pipes.
type Dialer func(host string, port int) (Stream, error)

// IsTimeout reports whether err is a timeout, either the tagged
// sentinel or a timeout surfaced by the underlying transport.
func IsTimeout(err error) bool {
	if errors.Is(err, ErrTimeout) {
		return true
	}
	var t interface{ Timeout() bool }
	if errors.As(err, &t) {
		return t.Timeout()
	}
	return false
}
