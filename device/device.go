// Package device adapts sensors and actuators to HTTP resources. A
// resource advertises what it can do through two capability
// interfaces: a Source can be read (GET), a Sink can be written
// (PUT). Expose inspects the capabilities at registration time, so a
// route can only be bound to an operation the resource supports.
package device

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/embhttp/embhttp/httpd"
)

// ErrNoCapability reports a resource that is neither Source nor Sink.
var ErrNoCapability = errors.New("device: resource has no capability")

// Source is the read capability. Get returns the current value and
// whether one is available yet.
type Source interface {
	Get() (string, bool)
}

// Sink is the write capability. Put may reject a value it cannot
// apply; the HTTP layer answers 400 then.
type Sink interface {
	Put(value string) error
}

// Exchange is the most-recent-value handoff between a sampling
// goroutine and the serving goroutine: a single slot with overwrite
// semantics. Writers never block on readers and a reader always sees
// either the previous or the newest value, never a partial one. It is
// both Source and Sink.
type Exchange struct {
	mu  sync.Mutex
	v   string
	set bool
}

func (x *Exchange) Get() (string, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.v, x.set
}

func (x *Exchange) Put(value string) error {
	x.mu.Lock()
	x.v = value
	x.set = true
	x.mu.Unlock()
	return nil
}

// Expose registers HTTP routes for res under path: GET when res is a
// Source, PUT when it is a Sink. contentType applies to GET
// responses. A resource with neither capability is a configuration
// error. The returned handles can remove the routes again.
func Expose(routes *httpd.Router, path string, res interface{}, contentType string) ([]httpd.RouteID, error) {
	if contentType == "" {
		contentType = "text/plain"
	}
	var ids []httpd.RouteID
	if src, ok := res.(Source); ok {
		id, err := routes.Add("GET "+path, GetHandler(src, contentType))
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if sink, ok := res.(Sink); ok {
		id, err := routes.Add("PUT "+path, PutHandler(sink))
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, errors.Wrapf(ErrNoCapability, "path %s", path)
	}
	return ids, nil
}

// GetHandler serves the source's current value, or 404 while nothing
// has been sampled yet.
func GetHandler(src Source, contentType string) httpd.Handler {
	return httpd.HandlerFunc(func(c *httpd.Context) {
		v, ok := src.Get()
		if !ok {
			c.SetStatus(404)
			c.SetResponseBody([]byte("404 error - no value sampled yet"))
			return
		}
		c.SetResponse(v, contentType)
	})
}

// PutHandler applies the request body to the sink. Undecodable or
// rejected values answer 400.
func PutHandler(sink Sink) httpd.Handler {
	return httpd.HandlerFunc(func(c *httpd.Context) {
		body, ok := c.RequestString()
		if !ok {
			c.SetStatus(400)
			c.SetResponseBody([]byte("400 error - request body is not valid UTF-8"))
			return
		}
		if err := sink.Put(body); err != nil {
			c.SetStatus(400)
			c.SetResponseBody([]byte("400 error - " + err.Error()))
			return
		}
		c.SetResponse("OK", "text/plain")
	})
}
