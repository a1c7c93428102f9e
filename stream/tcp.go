package stream

import (
	"net"
	"strconv"
	"syscall"
	"time"

	"github.com/pkg/errors"
)

// netStream adapts a net.Conn to Stream, applying the configured
// timeouts as per-call deadlines and mapping transport errors to the
// tagged kinds.
type netStream struct {
	c  net.Conn
	rt time.Duration
	wt time.Duration
}

// NewNetStream wraps an established net.Conn. The relay client uses
// this for its outbound connection; tests wrap net.Pipe ends.
func NewNetStream(c net.Conn) Stream {
	return &netStream{c: c}
}

func (s *netStream) Read(p []byte) (int, error) {
	if s.rt > 0 {
		if err := s.c.SetReadDeadline(time.Now().Add(s.rt)); err != nil {
			return 0, errors.Wrap(err, "stream: set read deadline")
		}
	} else {
		_ = s.c.SetReadDeadline(time.Time{})
	}
	n, err := s.c.Read(p)
	return n, mapNetErr(err)
}

func (s *netStream) Write(p []byte) (int, error) {
	if s.wt > 0 {
		if err := s.c.SetWriteDeadline(time.Now().Add(s.wt)); err != nil {
			return 0, errors.Wrap(err, "stream: set write deadline")
		}
	} else {
		_ = s.c.SetWriteDeadline(time.Time{})
	}
	n, err := s.c.Write(p)
	return n, mapNetErr(err)
}

func (s *netStream) Close() error { return s.c.Close() }

func (s *netStream) SetReadTimeout(d time.Duration) error {
	s.rt = d
	return nil
}

func (s *netStream) SetWriteTimeout(d time.Duration) error {
	s.wt = d
	return nil
}

func mapNetErr(err error) error {
	if err == nil {
		return nil
	}
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return errors.WithMessage(ErrTimeout, err.Error())
	}
	if errors.Is(err, net.ErrClosed) {
		return errors.WithMessage(ErrClosed, err.Error())
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return errors.WithMessage(ErrReset, err.Error())
	}
	return err
}

// Connect dials host:port over TCP. It is the default Dialer.
func Connect(host string, port int) (Stream, error) {
	c, err := net.DialTimeout("tcp", net.JoinHostPort(host, strconv.Itoa(port)), 10*time.Second)
	if err != nil {
		return nil, errors.Wrapf(err, "stream: connect %s:%d", host, port)
	}
	return NewNetStream(c), nil
}

// TCPProvider accepts connections from a TCP listener and advertises
// a plain http:// root URL (no relay domain segment).
type TCPProvider struct {
	ln  net.Listener
	url string
}

// Listen opens a TCP listener on addr. advertiseHost, when non-empty,
// overrides the host used in LocalURL (devices often listen on
// 0.0.0.0 but advertise a concrete address).
func Listen(addr, advertiseHost string) (*TCPProvider, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "stream: listen %s", addr)
	}
	host, port, err := net.SplitHostPort(ln.Addr().String())
	if err != nil {
		_ = ln.Close()
		return nil, errors.Wrap(err, "stream: listener address")
	}
	if advertiseHost != "" {
		host = advertiseHost
	}
	return &TCPProvider{
		ln:  ln,
		url: "http://" + net.JoinHostPort(host, port),
	}, nil
}

func (p *TCPProvider) Accept() (Stream, error) {
	c, err := p.ln.Accept()
	if err != nil {
		return nil, mapNetErr(err)
	}
	return NewNetStream(c), nil
}

func (p *TCPProvider) LocalURL() string { return p.url }

func (p *TCPProvider) Close() error { return p.ln.Close() }
