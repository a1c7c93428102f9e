package relay

import (
	"bytes"
	"io"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embhttp/embhttp/stream"
)

// scriptDialer hands out one in-memory connection per dial, with the
// far end driven by the matching script function. It records the
// dialed targets.
type scriptDialer struct {
	mu      sync.Mutex
	scripts []func(s stream.Stream)
	dials   []string
}

func newScriptDialer(scripts ...func(s stream.Stream)) *scriptDialer {
	return &scriptDialer{scripts: scripts}
}

func (d *scriptDialer) Dial(host string, port int) (stream.Stream, error) {
	d.mu.Lock()
	i := len(d.dials)
	d.dials = append(d.dials, net.JoinHostPort(host, strconv.Itoa(port)))
	d.mu.Unlock()
	if i >= len(d.scripts) {
		return nil, errors.New("scriptDialer: no script for this dial")
	}
	client, server := stream.Pipe()
	go d.scripts[i](server)
	return client, nil
}

func (d *scriptDialer) Dials() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.dials...)
}

// readRegistration consumes one registration request up to its blank
// line and returns it verbatim.
func readRegistration(s stream.Stream) (string, error) {
	var buf []byte
	var rx [1]byte
	for !bytes.HasSuffix(buf, []byte("\r\n\r\n")) {
		n, err := s.Read(rx[:])
		if err != nil {
			return string(buf), err
		}
		if n == 0 {
			return string(buf), io.ErrUnexpectedEOF
		}
		buf = append(buf, rx[0])
	}
	return string(buf), nil
}

func answer(s stream.Stream, response string) {
	_, _ = s.Write([]byte(response))
}

func TestClient_RegistrationAndUpgrade(t *testing.T) {
	regCh := make(chan string, 1)
	d := newScriptDialer(func(s stream.Stream) {
		reg, err := readRegistration(s)
		if err != nil {
			return
		}
		regCh <- reg
		answer(s, "HTTP/1.1 101 Switching Protocols\r\nUpgrade: PTTH/1.0\r\n\r\n")
		answer(s, "hello")
	})

	c := NewClient("relay.example", 8080, "myDomain", WithDialer(d.Dial))
	assert.Equal(t, "http://relay.example:8080/myDomain", c.LocalURL())

	conn, err := c.Accept()
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t,
		"POST /myDomain HTTP/1.1\r\n"+
			"Upgrade: PTTH/1.0\r\n"+
			"Connection: Upgrade\r\n"+
			"Host: relay.example\r\n\r\n",
		<-regCh)

	// Bytes written by the relay after the upgrade belong to the
	// tunneled request.
	got := make([]byte, 5)
	_, err = io.ReadFull(connReader{conn}, got)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
}

func TestClient_SecretKeyIsSent(t *testing.T) {
	regCh := make(chan string, 1)
	d := newScriptDialer(func(s stream.Stream) {
		reg, _ := readRegistration(s)
		regCh <- reg
		answer(s, "HTTP/1.1 101 Switching Protocols\r\n\r\n")
	})

	c := NewClient("relay.example", 8080, "myDomain",
		WithDialer(d.Dial), WithSecretKey("s3cret"))
	conn, err := c.Accept()
	require.NoError(t, err)
	defer conn.Close()

	assert.Contains(t, <-regCh, "Authorization: Bearer s3cret\r\n")
}

func TestClient_PollThenUpgradeReusesConnection(t *testing.T) {
	reregistered := make(chan bool, 1)
	d := newScriptDialer(func(s stream.Stream) {
		if _, err := readRegistration(s); err != nil {
			return
		}
		answer(s, "HTTP/1.1 204 No Content\r\n\r\n")
		// A 204 poll must be followed by a re-registration on the
		// same connection, not a fresh dial.
		_, err := readRegistration(s)
		reregistered <- err == nil
		if err != nil {
			return
		}
		answer(s, "HTTP/1.1 101 Switching Protocols\r\n\r\n")
	})

	c := NewClient("relay.example", 8080, "myDomain", WithDialer(d.Dial))
	conn, err := c.Accept()
	require.NoError(t, err)
	defer conn.Close()
	assert.True(t, <-reregistered)
	assert.Equal(t, []string{"relay.example:8080"}, d.Dials())
}

func TestClient_RedirectMovesTarget(t *testing.T) {
	d := newScriptDialer(
		func(s stream.Stream) {
			if _, err := readRegistration(s); err != nil {
				return
			}
			answer(s, "HTTP/1.1 307 Temporary Redirect\r\n"+
				"Location: http://relay2.example:9090/myDomain\r\n\r\n")
		},
		func(s stream.Stream) {
			if _, err := readRegistration(s); err != nil {
				return
			}
			answer(s, "HTTP/1.1 101 Switching Protocols\r\n\r\n")
		},
	)

	c := NewClient("relay.example", 8080, "myDomain", WithDialer(d.Dial))
	conn, err := c.Accept()
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, []string{"relay.example:8080", "relay2.example:9090"}, d.Dials())
	// The advertised URL keeps the configured relay, not the redirect
	// target.
	assert.Equal(t, "http://relay.example:8080/myDomain", c.LocalURL())
}

func TestClient_UnexpectedStatusRestartsCycle(t *testing.T) {
	d := newScriptDialer(
		func(s stream.Stream) {
			if _, err := readRegistration(s); err != nil {
				return
			}
			answer(s, "HTTP/1.1 503 Service Unavailable\r\n\r\n")
		},
		func(s stream.Stream) {
			if _, err := readRegistration(s); err != nil {
				return
			}
			answer(s, "HTTP/1.1 101 Switching Protocols\r\n\r\n")
		},
	)

	c := NewClient("relay.example", 8080, "myDomain", WithDialer(d.Dial))
	conn, err := c.Accept()
	require.NoError(t, err)
	defer conn.Close()
	assert.Len(t, d.Dials(), 2)
}

func TestClient_DialErrorReachesCaller(t *testing.T) {
	c := NewClient("relay.example", 8080, "myDomain",
		WithDialer(func(host string, port int) (stream.Stream, error) {
			return nil, stream.ErrReset
		}))
	_, err := c.Accept()
	assert.ErrorIs(t, err, stream.ErrReset)
}

func TestClient_CloseAbortsAccept(t *testing.T) {
	dialed := false
	c := NewClient("relay.example", 8080, "myDomain",
		WithDialer(func(host string, port int) (stream.Stream, error) {
			dialed = true
			return nil, stream.ErrClosed
		}))
	require.NoError(t, c.Close())
	_, err := c.Accept()
	assert.ErrorIs(t, err, stream.ErrClosed)
	assert.False(t, dialed)
}

func TestClient_CloseUnblocksRegistration(t *testing.T) {
	d := newScriptDialer(func(s stream.Stream) {
		// Read the registration, then stall without answering until
		// the client gives up and closes its end.
		var rx [1]byte
		for {
			if n, err := s.Read(rx[:]); err != nil || n == 0 {
				return
			}
		}
	})

	c := NewClient("relay.example", 8080, "myDomain", WithDialer(d.Dial))
	errCh := make(chan error, 1)
	go func() {
		_, err := c.Accept()
		errCh <- err
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, c.Close())
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, stream.ErrClosed)
	case <-time.After(5 * time.Second):
		t.Fatal("accept did not unblock")
	}
}

// connReader adapts a Stream to io.Reader for io.ReadFull.
type connReader struct{ s stream.Stream }

func (r connReader) Read(p []byte) (int, error) { return r.s.Read(p) }
