package httpd

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/embhttp/embhttp/httpd/internal/wire"
	"github.com/embhttp/embhttp/internal/obs"
	"github.com/embhttp/embhttp/internal/queue"
	"github.com/embhttp/embhttp/stream"
)

// acceptRetryDelay is slept after a failed accept. Accept failures
// never terminate the server loop; the device is expected to ride out
// flaky links indefinitely.
const acceptRetryDelay = 500 * time.Millisecond

// notFoundBody is the body of every synthesized 404 response.
const notFoundBody = "404 error - resource not found"

// Server drives the accept → parse → route → handle → serialize cycle
// over a stream.Provider. Configure the exported fields before the
// first Run call.
type Server struct {
	// Provider supplies inbound connections: a TCP listener or a
	// relay client. Required.
	Provider stream.Provider

	// Routes is the route table. Populate before Run; a nil table is
	// created empty on Open and answers everything with 404.
	Routes *Router

	// Workers selects the execution mode: 0 or 1 runs the whole cycle
	// on the Run caller's goroutine; N>1 runs one accepting producer
	// plus N consuming workers behind a bounded queue of size N.
	Workers int

	// CatchHandlerFailures recovers handler panics, logs them and
	// drops the connection. When false, a handler panic propagates
	// out of Run.
	CatchHandlerFailures bool

	// KeepConnectionOpenAfterResponse keeps a connection open for
	// further requests unless the client or the handler asked to
	// close. The default is one request per connection. Worker-pool
	// mode always closes, regardless of this setting.
	KeepConnectionOpenAfterResponse bool

	// RequestTimeout bounds each read while parsing a request. Zero
	// selects the wire default.
	RequestTimeout time.Duration

	Logger obs.Logger
	Meter  obs.Meter

	diag Diagnostics

	mu          sync.Mutex
	opened      bool
	serviceRoot string
	relayDomain string
}

// Open derives the service root and relay domain from the provider's
// advertised local URL and marks the server open. Run calls it
// implicitly; calling it again is a no-op.
func (s *Server) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.opened {
		return nil
	}
	if s.Provider == nil {
		return ErrNoProvider
	}
	root, domain, err := splitLocalURL(s.Provider.LocalURL())
	if err != nil {
		return err
	}
	if s.Routes == nil {
		s.Routes = NewRouter()
	}
	s.serviceRoot = root
	s.relayDomain = domain
	s.diag.started = time.Now()
	s.opened = true
	s.logf(obs.Info, "httpd: open, root=%s domain=%q", root, domain)
	return nil
}

// Close marks the server closed and releases the provider, failing
// the blocked accept so Run can return. In-flight requests finish on
// their own timeouts.
func (s *Server) Close() error {
	s.mu.Lock()
	if !s.opened {
		s.mu.Unlock()
		return nil
	}
	s.opened = false
	s.mu.Unlock()
	s.logf(obs.Info, "httpd: closing")
	return s.Provider.Close()
}

func (s *Server) isOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opened
}

// Diagnostics returns a snapshot of the server's counters.
func (s *Server) Diagnostics() DiagnosticsSnapshot { return s.diag.Snapshot() }

// RelayDomain returns the relay domain derived on Open, empty when
// serving directly.
func (s *Server) RelayDomain() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.relayDomain
}

// Run opens the server if needed and serves until Close. It returns
// nil after a clean Close.
func (s *Server) Run() error {
	if err := s.Open(); err != nil {
		return err
	}
	if s.Workers > 1 {
		return s.runPool()
	}
	var rd wire.Reader
	var wr wire.Writer
	for {
		conn, ok := s.acceptRetry()
		if !ok {
			return nil
		}
		s.serveConn(&rd, &wr, conn, !s.KeepConnectionOpenAfterResponse)
	}
}

// runPool is the multi-worker mode: this goroutine accepts and
// enqueues, Workers goroutines consume. Each worker owns one
// reader/writer pair for its lifetime.
func (s *Server) runPool() error {
	q := queue.New[stream.Stream](s.Workers)
	var wg sync.WaitGroup
	for i := 0; i < s.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var rd wire.Reader
			var wr wire.Writer
			for {
				conn, ok := q.Take()
				if !ok {
					return
				}
				// Pooled consumption serves a single request and
				// always closes, independent of keep-alive settings.
				s.serveConn(&rd, &wr, conn, true)
			}
		}()
	}
	for {
		conn, ok := s.acceptRetry()
		if !ok {
			break
		}
		if err := q.Put(conn); err != nil {
			_ = conn.Close()
			break
		}
	}
	q.Close()
	wg.Wait()
	return nil
}

// acceptRetry blocks until a connection arrives, retrying transient
// failures forever. ok is false once the server is closed.
func (s *Server) acceptRetry() (stream.Stream, bool) {
	for {
		if !s.isOpen() {
			return nil, false
		}
		conn, err := s.Provider.Accept()
		if err != nil {
			if !s.isOpen() {
				return nil, false
			}
			if stream.IsTimeout(err) {
				s.diag.acceptErrors.Add(1)
				s.metricCounter("httpd_accept_errors_total")
			} else {
				s.diag.acceptFailures.Add(1)
				s.metricCounter("httpd_accept_failures_total")
				s.logf(obs.Warn, "httpd: accept failed: %v", err)
			}
			time.Sleep(acceptRetryDelay)
			continue
		}
		return conn, true
	}
}

// serveConn consumes requests on conn until the protocol or the
// close policy ends the exchange.
func (s *Server) serveConn(rd *wire.Reader, wr *wire.Writer, conn stream.Stream, forceClose bool) {
	defer conn.Close()
	connID := uuid.NewString()
	s.logf(obs.Debug, "httpd: conn %s accepted", connID)
	for s.consumeRequest(rd, wr, conn, forceClose) {
	}
	s.logf(obs.Debug, "httpd: conn %s done", connID)
}

// consumeRequest runs the protocol state machine for one request and
// reports whether the connection may carry another.
func (s *Server) consumeRequest(rd *wire.Reader, wr *wire.Writer, conn stream.Stream, forceClose bool) bool {
	rd.Attach(conn, s.RequestTimeout)
	wr.Attach(conn, 0)
	defer rd.Detach()
	defer wr.Detach()

	started := time.Now()

	// Request line.
	method, ok := rd.ReadStringToBlank()
	if !ok {
		return false
	}
	uri, ok := rd.ReadURI()
	if !ok {
		if rd.Status() == wire.StatusRequestURITooLong {
			s.writeError(wr, 414, "414 error - request URI too long")
		}
		return false
	}
	version, ok := rd.ReadStringToBlank()
	if !ok || !strings.HasPrefix(version, "HTTP/1.") {
		return false
	}

	c := &Context{serviceRoot: s.serviceRoot, relayDomain: s.relayDomain}
	c.reset()
	c.Method = method
	c.SetRequestURI(uri)

	// Headers. Only the minimal subset is interpreted; everything
	// else is consumed and dropped.
	contentLength := 0
	clientClose := false
	for {
		name, ok := rd.ReadFieldName()
		if !ok {
			if rd.Status() == wire.StatusInContent {
				break
			}
			return false
		}
		value, ok := rd.ReadFieldValue()
		if !ok {
			return false
		}
		switch {
		case strings.EqualFold(name, "Connection"):
			if strings.EqualFold(value, "close") {
				clientClose = true
			}
		case strings.EqualFold(name, "Content-Type"):
			c.RequestContentType = value
		case strings.EqualFold(name, "Content-Length"):
			n, err := strconv.Atoi(value)
			if err != nil || n < 0 {
				return false
			}
			contentLength = n
		}
	}

	// Body: exactly Content-Length bytes, or drop the connection.
	if contentLength > 0 {
		body := make([]byte, contentLength)
		for got := 0; got < contentLength; {
			n := rd.ReadContent(body[got:])
			if n <= 0 {
				return false
			}
			got += n
		}
		c.RequestBody = body
	}

	s.diag.requests.Add(1)
	s.metricCounter("httpd_requests_total", obs.Label{Key: "method", Value: method})

	// Route and dispatch.
	h, found := s.Routes.match(method, c.RequestURI(), s.relayDomain)
	if !found {
		c.SetStatus(404)
		c.SetResponseBody([]byte(notFoundBody))
	} else if !s.dispatch(h, c) {
		return false
	}

	if c.Status() == StatusUndefined || c.ContentType() == "" {
		// Handler contract violation: a response must carry a valid
		// status and content type.
		s.diag.handlerFailures.Add(1)
		s.logf(obs.Error, "httpd: handler left response undefined for %s %s", method, uri)
		s.writeError(wr, 500, "500 error - internal server error")
		return false
	}

	closing := forceClose || clientClose || c.closeRequested()
	s.writeResponse(wr, c, closing)
	if wr.Status().Failed() {
		s.diag.handlerErrors.Add(1)
		s.metricCounter("httpd_response_errors_total")
		return false
	}

	elapsed := time.Since(started)
	s.logf(obs.Info, "httpd: %s %s -> %d (%s)", method, uri, c.Status(), elapsed)
	s.metricHistogram("httpd_request_duration_ms", float64(elapsed.Milliseconds()),
		obs.Label{Key: "method", Value: method},
		obs.Label{Key: "status", Value: strconv.Itoa(c.Status())})

	return !closing
}

// dispatch invokes the handler, recovering panics when configured.
// It reports false when the request must be aborted.
func (s *Server) dispatch(h Handler, c *Context) (delivered bool) {
	if s.CatchHandlerFailures {
		defer func() {
			if v := recover(); v != nil {
				s.diag.handlerFailures.Add(1)
				s.metricCounter("httpd_handler_failures_total")
				s.logf(obs.Error, "httpd: handler panic on %s %s: %v", c.Method, c.RequestURI(), v)
				delivered = false
			}
		}()
	}
	h.ServeHTTP(c)
	return true
}

// writeResponse serializes the context's response: status line, the
// fixed header set, blank line, body.
func (s *Server) writeResponse(wr *wire.Writer, c *Context, closing bool) {
	wr.WriteString("HTTP/1.1 ")
	wr.WriteString(strconv.Itoa(c.Status()))
	wr.WriteChar(' ')
	wr.WriteLine(reasonPhrase(c.Status()))
	if closing {
		wr.WriteLine("Connection: close")
	}
	if c.MaxAge() >= 0 {
		wr.WriteString("Cache-Control: max-age=")
		wr.WriteLine(strconv.Itoa(c.MaxAge()))
	}
	wr.WriteString("Content-Type: ")
	wr.WriteLine(c.ContentType())
	wr.WriteString("Content-Length: ")
	wr.WriteLine(strconv.Itoa(len(c.ResponseBody())))
	wr.WriteBeginOfContent()
	if body := c.ResponseBody(); len(body) > 0 {
		wr.WriteContent(body)
	}
}

// writeError emits a minimal text/plain error response that always
// closes the connection.
func (s *Server) writeError(wr *wire.Writer, code int, body string) {
	wr.WriteString("HTTP/1.1 ")
	wr.WriteString(strconv.Itoa(code))
	wr.WriteChar(' ')
	wr.WriteLine(reasonPhrase(code))
	wr.WriteLine("Connection: close")
	wr.WriteLine("Content-Type: text/plain")
	wr.WriteString("Content-Length: ")
	wr.WriteLine(strconv.Itoa(len(body)))
	wr.WriteBeginOfContent()
	wr.WriteContent([]byte(body))
}

// splitLocalURL splits "http://host[:port][/domain]" into the service
// root and the optional relay domain.
func splitLocalURL(u string) (root, domain string, err error) {
	parts := strings.Split(u, "/")
	if len(parts) < 3 || len(parts) > 4 || parts[0] != "http:" || parts[1] != "" || parts[2] == "" {
		return "", "", ErrBadLocalURL
	}
	root = "http://" + parts[2]
	if len(parts) == 4 {
		if parts[3] == "" {
			return "", "", ErrBadLocalURL
		}
		domain = parts[3]
	}
	return root, domain, nil
}

func (s *Server) logf(level obs.Level, format string, args ...interface{}) {
	if s.Logger != nil {
		s.Logger.Logf(level, format, args...)
	}
}

func (s *Server) metricCounter(name string, labels ...obs.Label) {
	if s.Meter != nil {
		s.Meter.Counter(name, 1, labels...)
	}
}

func (s *Server) metricHistogram(name string, v float64, labels ...obs.Label) {
	if s.Meter != nil {
		s.Meter.Histogram(name, v, labels...)
	}
}
