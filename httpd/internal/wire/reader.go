package wire

import (
	"time"

	"github.com/embhttp/embhttp/stream"
)

const (
	// MaxSymbolLength bounds every token the reader accumulates:
	// methods, URIs, header names and header values.
	MaxSymbolLength = 128

	// DefaultReadTimeout applies when Attach is given a zero timeout.
	DefaultReadTimeout = 30 * time.Second
)

// Reader incrementally parses an HTTP message from a stream: line and
// header tokens byte by byte through a single-byte receive buffer,
// content through bulk reads. A Reader is constructed once and
// re-attached for every connection; it allocates nothing per request.
type Reader struct {
	conn   stream.Stream
	status Status
	rx     [1]byte
	symbol [MaxSymbolLength]byte
	n      int
}

// Attach binds r to s and resets its state. A zero timeout selects
// DefaultReadTimeout.
func (r *Reader) Attach(s stream.Stream, timeout time.Duration) {
	if timeout <= 0 {
		timeout = DefaultReadTimeout
	}
	_ = s.SetReadTimeout(timeout)
	r.conn = s
	r.status = StatusBeforeContent
	r.n = 0
}

// Detach unbinds the stream. The status survives so the caller can
// inspect how parsing ended.
func (r *Reader) Detach() { r.conn = nil }

func (r *Reader) Status() Status { return r.status }

func (r *Reader) readByte() (byte, bool) {
	n, err := r.conn.Read(r.rx[:])
	if err != nil || n == 0 {
		r.status = StatusConnectionError
		return 0, false
	}
	return r.rx[0], true
}

// consumes a CR's mandatory LF partner.
func (r *Reader) readLF() bool {
	b, ok := r.readByte()
	if !ok {
		return false
	}
	if b != '\n' {
		r.status = StatusSyntaxError
		return false
	}
	return true
}

// readToBlank accumulates bytes until a space or CR LF. Excess bytes
// beyond the symbol buffer are still consumed so the stream stays in
// sync; overflow is the given overflow status, an empty token is a
// syntax error.
func (r *Reader) readToBlank(overflow Status) (string, bool) {
	if r.status.Failed() {
		return "", false
	}
	r.n = 0
	over := false
	for {
		b, ok := r.readByte()
		if !ok {
			return "", false
		}
		if b == ' ' {
			break
		}
		if b == '\r' {
			if !r.readLF() {
				return "", false
			}
			break
		}
		if r.n == MaxSymbolLength {
			over = true
			continue
		}
		r.symbol[r.n] = b
		r.n++
	}
	if over {
		r.status = overflow
		return "", false
	}
	if r.n == 0 {
		r.status = StatusSyntaxError
		return "", false
	}
	return string(r.symbol[:r.n]), true
}

// ReadStringToBlank reads one token terminated by a space or CR LF.
func (r *Reader) ReadStringToBlank() (string, bool) {
	return r.readToBlank(StatusSyntaxError)
}

// ReadURI reads the request-URI token. It is ReadStringToBlank with
// the overflow mapped to StatusRequestURITooLong so the server can
// answer 414 instead of dropping the connection.
func (r *Reader) ReadURI() (string, bool) {
	return r.readToBlank(StatusRequestURITooLong)
}

// ReadFieldName reads a header field name up to its colon. At the end
// of the header section (a bare CR LF) it returns ok=false with the
// status advanced to StatusInContent; the next stream byte is the
// first content byte. Empty or oversized names are syntax errors.
func (r *Reader) ReadFieldName() (string, bool) {
	if r.status.Failed() {
		return "", false
	}
	r.n = 0
	over := false
	for {
		b, ok := r.readByte()
		if !ok {
			return "", false
		}
		if b == ':' {
			break
		}
		if b == '\r' {
			if !r.readLF() {
				return "", false
			}
			if r.n == 0 && !over {
				r.status = StatusInContent
				return "", false
			}
			r.status = StatusSyntaxError
			return "", false
		}
		if b == '\n' {
			r.status = StatusSyntaxError
			return "", false
		}
		if r.n == MaxSymbolLength {
			over = true
			continue
		}
		r.symbol[r.n] = b
		r.n++
	}
	if over || r.n == 0 {
		r.status = StatusSyntaxError
		return "", false
	}
	return string(r.symbol[:r.n]), true
}

// ReadFieldValue skips leading spaces and reads up to CR LF. Values
// longer than the symbol buffer are silently truncated, not failed:
// a header value beyond the bound is ignored, never fatal.
func (r *Reader) ReadFieldValue() (string, bool) {
	if r.status.Failed() {
		return "", false
	}
	r.n = 0
	skipping := true
	for {
		b, ok := r.readByte()
		if !ok {
			return "", false
		}
		if skipping && b == ' ' {
			continue
		}
		skipping = false
		if b == '\r' {
			if !r.readLF() {
				return "", false
			}
			break
		}
		if b == '\n' {
			r.status = StatusSyntaxError
			return "", false
		}
		if r.n < MaxSymbolLength {
			r.symbol[r.n] = b
			r.n++
		}
	}
	return string(r.symbol[:r.n]), true
}

// ReadContent fills p with one underlying read call. It is only valid
// once the reader is in content. The return value is the byte count,
// or -1 when the stream reports EOF or an error, after which the
// reader carries StatusConnectionError.
func (r *Reader) ReadContent(p []byte) int {
	if r.status != StatusInContent {
		return -1
	}
	n, err := r.conn.Read(p)
	if n > 0 {
		return n
	}
	if err != nil || n == 0 {
		r.status = StatusConnectionError
	}
	return -1
}
