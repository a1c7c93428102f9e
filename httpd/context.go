package httpd

import (
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
	"golang.org/x/net/http/httpguts"
)

// StatusUndefined is the transient response status a Context carries
// between the reset before handler dispatch and the handler's first
// SetStatus/SetResponse call. The server treats a response left in
// this state as a broken handler contract.
const StatusUndefined = -1

// Context is the per-request state shared between the engine and a
// handler: the parsed request on one side, the response the handler
// builds on the other. A Context is created fresh for every request
// and must not be retained after the handler returns.
//
// Mutators enforce their contracts with panics, like net/http's
// ResponseWriter: an out-of-range status code or an empty content
// type is a programming error, not a runtime condition.
type Context struct {
	serviceRoot string
	relayDomain string

	// Method is the request method verbatim from the request line.
	Method string
	// RequestContentType is the Content-Type request header, if sent.
	RequestContentType string
	// RequestBody is the raw request content, nil when the request
	// carried none.
	RequestBody []byte

	requestURI string

	status      int
	contentType string
	maxAge      int
	body        []byte
	close       bool
}

// NewContext creates a Context rooted at serviceRoot (an absolute
// "http://" URI without trailing slash) with an optional relay
// domain. The server constructs one per request; tests construct them
// directly.
func NewContext(serviceRoot, relayDomain string) (*Context, error) {
	if !strings.HasPrefix(serviceRoot, "http://") || strings.HasSuffix(serviceRoot, "/") {
		return nil, errors.Wrapf(ErrBadLocalURL, "service root %q", serviceRoot)
	}
	c := &Context{serviceRoot: serviceRoot, relayDomain: relayDomain}
	c.reset()
	c.status = 200
	return c, nil
}

// reset puts the response side into the pre-dispatch state: status
// undefined, default content type, no caching, no body.
func (c *Context) reset() {
	c.status = StatusUndefined
	c.contentType = "text/plain"
	c.maxAge = -1
	c.body = nil
	c.close = false
}

// SetRequestURI records the request URI. A URI that is exactly the
// relay domain prefix gets a trailing slash appended, so prefix
// stripping during routing never produces an empty remainder.
func (c *Context) SetRequestURI(uri string) {
	if c.relayDomain != "" && uri == "/"+c.relayDomain {
		uri += "/"
	}
	c.requestURI = uri
}

func (c *Context) RequestURI() string { return c.requestURI }

// RelayDomain returns the relay domain prefix, empty when the server
// is directly reachable.
func (c *Context) RelayDomain() string { return c.relayDomain }

// ServiceRoot returns the absolute URI under which this server is
// reachable, without trailing slash.
func (c *Context) ServiceRoot() string { return c.serviceRoot }

// RequestString decodes RequestBody as UTF-8. The decode is fallible
// by contract: a handler receiving ok=false typically answers 400
// rather than failing the connection.
func (c *Context) RequestString() (string, bool) {
	if c.RequestBody == nil {
		return "", true
	}
	if !utf8.Valid(c.RequestBody) {
		return "", false
	}
	return string(c.RequestBody), true
}

// BuildRequestURI turns an un-prefixed absolute path into the path a
// client must request, accounting for the relay domain.
func (c *Context) BuildRequestURI(path string) string {
	if c.relayDomain != "" {
		return "/" + c.relayDomain + path
	}
	return path
}

// BuildAbsoluteRequestURI is BuildRequestURI with the service root
// prepended.
func (c *Context) BuildAbsoluteRequestURI(path string) string {
	return c.serviceRoot + c.BuildRequestURI(path)
}

// SetStatus sets the response status code. Codes outside [100,599]
// panic.
func (c *Context) SetStatus(code int) {
	if code < 100 || code > 599 {
		panic(errors.Errorf("httpd: invalid response status code %d", code))
	}
	c.status = code
}

// Status returns the response status code, possibly StatusUndefined
// before the handler has produced a response.
func (c *Context) Status() int { return c.status }

// SetContentType sets the response content type. The server always
// sends one; empty or non-token values panic.
func (c *Context) SetContentType(ct string) {
	if ct == "" || !httpguts.ValidHeaderFieldValue(ct) {
		panic(errors.Errorf("httpd: invalid response content type %q", ct))
	}
	c.contentType = ct
}

func (c *Context) ContentType() string { return c.contentType }

// SetMaxAge sets the Cache-Control max-age in seconds. Negative
// restores the default of sending no Cache-Control header.
func (c *Context) SetMaxAge(seconds int) {
	if seconds < 0 {
		seconds = -1
	}
	c.maxAge = seconds
}

func (c *Context) MaxAge() int { return c.maxAge }

// SetResponse sets a 200 response with the given body and content
// type in one call.
func (c *Context) SetResponse(body, contentType string) {
	c.SetResponseBytes([]byte(body), contentType)
}

// SetResponseBytes is SetResponse for raw content.
func (c *Context) SetResponseBytes(body []byte, contentType string) {
	c.SetStatus(200)
	c.SetContentType(contentType)
	c.body = body
}

// SetResponseBody replaces the body without touching status or
// content type.
func (c *Context) SetResponseBody(body []byte) { c.body = body }

func (c *Context) ResponseBody() []byte { return c.body }

// CloseConnection asks the engine to close the connection after this
// response even when keep-alive is configured.
func (c *Context) CloseConnection() { c.close = true }

func (c *Context) closeRequested() bool { return c.close }
