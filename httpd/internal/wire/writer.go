package wire

import (
	"time"

	"github.com/embhttp/embhttp/stream"
)

const (
	// bufferLength is the header-side accumulation buffer. Status
	// lines and header fields are short; 100 bytes keeps the
	// per-connection footprint fixed and small.
	bufferLength = 100

	// ChunkLength is the largest slice handed to the stream in one
	// write call.
	ChunkLength = 1024

	// DefaultWriteTimeout applies when Attach is given a zero
	// timeout.
	DefaultWriteTimeout = 5 * time.Second
)

// Writer serializes an HTTP message to a stream: status/request line
// and headers through a small auto-flushing buffer, content bytes
// directly in bounded chunks. Same Attach/Detach lifecycle and sticky
// status discipline as Reader. All header-side text must be 7-bit
// ASCII; the writer does not validate this.
type Writer struct {
	conn   stream.Stream
	status Status
	buf    [bufferLength]byte
	n      int
}

// Attach binds w to s and resets its state. A zero timeout selects
// DefaultWriteTimeout; a negative timeout disables the write bound.
func (w *Writer) Attach(s stream.Stream, timeout time.Duration) {
	switch {
	case timeout == 0:
		timeout = DefaultWriteTimeout
	case timeout < 0:
		timeout = 0
	}
	_ = s.SetWriteTimeout(timeout)
	w.conn = s
	w.status = StatusBeforeContent
	w.n = 0
}

// Detach unbinds the stream, preserving the status.
func (w *Writer) Detach() { w.conn = nil }

func (w *Writer) Status() Status { return w.status }

// push writes p to the stream in chunks of at most ChunkLength.
func (w *Writer) push(p []byte) bool {
	for len(p) > 0 {
		n := len(p)
		if n > ChunkLength {
			n = ChunkLength
		}
		wrote, err := w.conn.Write(p[:n])
		if err != nil || wrote <= 0 {
			w.status = StatusConnectionError
			return false
		}
		p = p[wrote:]
	}
	return true
}

// Flush pushes the buffered header bytes and resets the buffer.
func (w *Writer) Flush() {
	if w.status.Failed() {
		return
	}
	if w.n == 0 {
		return
	}
	if w.push(w.buf[:w.n]) {
		w.n = 0
	}
}

// WriteChar buffers a single byte, flushing first when the buffer is
// full.
func (w *Writer) WriteChar(c byte) {
	if w.status.Failed() {
		return
	}
	if w.n == bufferLength {
		w.Flush()
		if w.status.Failed() {
			return
		}
	}
	w.buf[w.n] = c
	w.n++
}

func (w *Writer) WriteString(s string) {
	for i := 0; i < len(s); i++ {
		w.WriteChar(s[i])
	}
}

// WriteLine writes s followed by CR LF.
func (w *Writer) WriteLine(s string) {
	w.WriteString(s)
	w.WriteChar('\r')
	w.WriteChar('\n')
}

// WriteBeginOfContent terminates the header section with CR LF,
// flushes, and moves the writer into content. This is the single
// transition point between headers and body; header-writing calls
// after it are a caller bug.
func (w *Writer) WriteBeginOfContent() {
	if w.status.Failed() {
		return
	}
	w.WriteChar('\r')
	w.WriteChar('\n')
	w.Flush()
	if !w.status.Failed() {
		w.status = StatusInContent
	}
}

// WriteContent writes raw body bytes straight to the stream,
// bypassing the header buffer. Only valid in content.
func (w *Writer) WriteContent(p []byte) {
	if w.status != StatusInContent {
		return
	}
	w.push(p)
}
