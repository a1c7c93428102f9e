// Package relay implements the reverse-HTTP (PTTH/1.0) relay client.
// A device that cannot be dialed into directly connects out to a
// publicly reachable relay and registers its domain with an HTTP
// upgrade request; once the relay has a request pending for the
// domain, it answers 101 and the outbound connection carries the
// inbound request. Client implements stream.Provider, so the server
// engine treats the tunnel exactly like an accepted socket.
package relay

import (
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/embhttp/embhttp/internal/obs"
	"github.com/embhttp/embhttp/stream"
)

// maxLocationLength bounds the Location header value accepted on a
// redirect.
const maxLocationLength = 256

// Client tunnels "accept" through a relay. Construct with NewClient,
// hand to httpd.Server as its Provider, and Close to abort the
// accept loop.
type Client struct {
	domain string
	key    string
	dial   stream.Dialer
	logger obs.Logger

	// localURL advertises the initial relay target; redirects move
	// the live target but not the advertised root.
	localURL string

	mu      sync.Mutex
	host    string
	port    int
	aborted bool
	conn    stream.Stream
}

// Option configures a Client.
type Option func(*Client)

// WithDialer substitutes the outbound connection factory; the default
// dials TCP.
func WithDialer(d stream.Dialer) Option {
	return func(c *Client) { c.dial = d }
}

// WithSecretKey attaches a bearer key to every registration.
func WithSecretKey(key string) Option {
	return func(c *Client) { c.key = key }
}

func WithLogger(l obs.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient targets the relay at host:port, registering domain.
func NewClient(host string, port int, domain string, opts ...Option) *Client {
	c := &Client{
		domain:   domain,
		dial:     stream.Connect,
		host:     host,
		port:     port,
		localURL: "http://" + host + ":" + strconv.Itoa(port) + "/" + domain,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// LocalURL reports the root under which the relay exposes this
// device, "http://<relayhost>:<port>/<domain>".
func (c *Client) LocalURL() string { return c.localURL }

// Close aborts a blocked Accept and rejects further ones. Idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	c.aborted = true
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (c *Client) isAborted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.aborted
}

func (c *Client) target() (string, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.host, c.port
}

func (c *Client) setTarget(host string, port int) {
	c.mu.Lock()
	c.host = host
	c.port = port
	c.mu.Unlock()
}

// setConn publishes the live relay connection so Close can fail a
// blocked registration read.
func (c *Client) setConn(conn stream.Stream) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

// Accept emulates accepting an inbound connection: dial the relay,
// register, and hand back the upgraded connection once the relay
// switches protocols. Registration retries on the relay's terms —
// 204 polls re-register on the same connection, 307 moves to another
// relay node, anything else restarts the connect-register cycle —
// until Close aborts it. Dial errors are returned to the caller,
// whose accept loop owns backoff.
func (c *Client) Accept() (stream.Stream, error) {
	for {
		if c.isAborted() {
			return nil, errors.WithMessage(stream.ErrClosed, "relay: accept aborted")
		}
		host, port := c.target()
		conn, err := c.dial(host, port)
		if err != nil {
			return nil, errors.Wrap(err, "relay: connect")
		}
		c.setConn(conn)
		accepted := c.register(conn, host)
		c.setConn(nil)
		if accepted != nil {
			return accepted, nil
		}
	}
}

// register drives registration rounds on one relay connection. It
// returns the connection once upgraded, or nil when the cycle must
// restart from a fresh dial (the connection is already closed then).
func (c *Client) register(conn stream.Stream, host string) stream.Stream {
	for {
		if c.isAborted() {
			_ = conn.Close()
			return nil
		}
		if !c.writeRegistration(conn, host) {
			_ = conn.Close()
			return nil
		}
		code, ok := readStatusCode(conn)
		if !ok {
			_ = conn.Close()
			return nil
		}
		switch code {
		case 101:
			if !find(conn, "\r\n\r\n") {
				_ = conn.Close()
				return nil
			}
			c.logf(obs.Debug, "relay: upgraded, request pending")
			return conn
		case 204:
			// No request pending yet; the relay paces the poll.
			if !find(conn, "\r\n\r\n") {
				_ = conn.Close()
				return nil
			}
		case 307:
			newHost, newPort, ok := readLocation(conn)
			_ = conn.Close()
			if ok {
				c.logf(obs.Info, "relay: redirected to %s:%d", newHost, newPort)
				c.setTarget(newHost, newPort)
			}
			return nil
		default:
			c.logf(obs.Warn, "relay: unexpected registration status %d", code)
			_ = conn.Close()
			return nil
		}
	}
}

// writeRegistration sends the PTTH upgrade request for the domain.
func (c *Client) writeRegistration(conn stream.Stream, host string) bool {
	var b strings.Builder
	b.WriteString("POST /")
	b.WriteString(c.domain)
	b.WriteString(" HTTP/1.1\r\nUpgrade: PTTH/1.0\r\nConnection: Upgrade\r\n")
	if c.key != "" {
		b.WriteString("Authorization: Bearer ")
		b.WriteString(c.key)
		b.WriteString("\r\n")
	}
	b.WriteString("Host: ")
	b.WriteString(host)
	b.WriteString("\r\n\r\n")
	_, err := conn.Write([]byte(b.String()))
	return err == nil
}

// readStatusCode scans the response status line for its 3-digit code.
func readStatusCode(conn stream.Stream) (int, bool) {
	if !find(conn, " ") {
		return 0, false
	}
	var rx [1]byte
	code := 0
	for i := 0; i < 3; i++ {
		n, err := conn.Read(rx[:])
		if err != nil || n == 0 {
			return 0, false
		}
		if rx[0] < '0' || rx[0] > '9' {
			return 0, false
		}
		code = code*10 + int(rx[0]-'0')
	}
	return code, true
}

// readLocation scans the headers for Location and resolves its host
// and port.
func readLocation(conn stream.Stream) (string, int, bool) {
	if !find(conn, "Location:") {
		return "", 0, false
	}
	var rx [1]byte
	var val []byte
	for len(val) < maxLocationLength {
		n, err := conn.Read(rx[:])
		if err != nil || n == 0 {
			return "", 0, false
		}
		if rx[0] == '\r' {
			break
		}
		val = append(val, rx[0])
	}
	u, err := url.Parse(strings.TrimSpace(string(val)))
	if err != nil || u.Hostname() == "" {
		return "", 0, false
	}
	port := 80
	if p := u.Port(); p != "" {
		if port, err = strconv.Atoi(p); err != nil {
			return "", 0, false
		}
	}
	return u.Hostname(), port, true
}

func (c *Client) logf(level obs.Level, format string, args ...interface{}) {
	if c.logger != nil {
		c.logger.Logf(level, format, args...)
	}
}
