package httpd

import (
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/net/http/httpguts"
)

// Handler responds to one request through its Context.
type Handler interface {
	ServeHTTP(c *Context)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(c *Context)

func (f HandlerFunc) ServeHTTP(c *Context) { f(c) }

// RouteID is a stable, generation-checked handle to a registered
// route. A stale ID (already removed) fails Remove instead of
// touching another route.
type RouteID struct {
	index int
	gen   uint32
}

type routeEntry struct {
	method   string
	path     string
	wildcard bool
	handler  Handler
	gen      uint32
	active   bool
}

// Router is an ordered route table. Entries live in an arena indexed
// by RouteID; matching walks the insertion order and the first match
// wins, so broader wildcard routes registered earlier shadow later
// exact ones.
//
// Populate the table before the server starts; mutation while serving
// is not safe in multi-worker mode.
type Router struct {
	entries []routeEntry
	order   []int
	nextGen uint32
}

func NewRouter() *Router { return &Router{nextGen: 1} }

// Add registers a route from a "METHOD /path" pattern. A trailing '*'
// on the path makes the route match any URI with that prefix; a
// method of "*" matches any method. Malformed patterns return
// ErrBadPattern.
func (r *Router) Add(pattern string, h Handler) (RouteID, error) {
	parts := strings.Split(pattern, " ")
	if len(parts) != 2 {
		return RouteID{}, errors.Wrapf(ErrBadPattern, "pattern %q", pattern)
	}
	method, path := parts[0], parts[1]
	wildcard := false
	if strings.HasSuffix(path, "*") {
		wildcard = true
		path = path[:len(path)-1]
	}
	return r.AddRoute(method, path, wildcard, h)
}

// AddRoute registers a route from its parts. The path must start with
// '/' and contain no '*'; the method must be "*" or a valid token.
func (r *Router) AddRoute(method, path string, wildcard bool, h Handler) (RouteID, error) {
	if h == nil {
		return RouteID{}, errors.Wrap(ErrBadPattern, "nil handler")
	}
	if method == "" || (method != "*" && !httpguts.ValidHeaderFieldName(method)) {
		return RouteID{}, errors.Wrapf(ErrBadPattern, "method %q", method)
	}
	if !strings.HasPrefix(path, "/") || strings.IndexByte(path, '*') >= 0 {
		return RouteID{}, errors.Wrapf(ErrBadPattern, "path %q", path)
	}
	id := RouteID{index: len(r.entries), gen: r.nextGen}
	r.nextGen++
	r.entries = append(r.entries, routeEntry{
		method:   method,
		path:     path,
		wildcard: wildcard,
		handler:  h,
		gen:      id.gen,
		active:   true,
	})
	r.order = append(r.order, id.index)
	return id, nil
}

// Remove unregisters the route behind id. Removing a route that is
// not currently registered returns ErrUnknownRoute.
func (r *Router) Remove(id RouteID) error {
	if id.index < 0 || id.index >= len(r.entries) {
		return ErrUnknownRoute
	}
	e := &r.entries[id.index]
	if !e.active || e.gen != id.gen {
		return ErrUnknownRoute
	}
	e.active = false
	e.handler = nil
	for i, idx := range r.order {
		if idx == id.index {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// Len returns the number of registered routes.
func (r *Router) Len() int { return len(r.order) }

// match finds the first registered route matching method and uri,
// consuming the relay domain prefix when one is configured.
func (r *Router) match(method, uri, relayDomain string) (Handler, bool) {
	if uri == "" || uri[0] != '/' {
		return nil, false
	}
	rest := uri
	if relayDomain != "" {
		prefix := "/" + relayDomain
		if !strings.HasPrefix(rest, prefix) {
			return nil, false
		}
		rest = rest[len(prefix):]
		if rest == "" || rest[0] != '/' {
			return nil, false
		}
	}
	for _, idx := range r.order {
		e := &r.entries[idx]
		if e.method != "*" && e.method != method {
			continue
		}
		if e.wildcard {
			if strings.HasPrefix(rest, e.path) {
				return e.handler, true
			}
			continue
		}
		if rest == e.path {
			return e.handler, true
		}
	}
	return nil, false
}
