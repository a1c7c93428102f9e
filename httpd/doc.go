// Package httpd is a small HTTP/1.1 server engine for
// resource-constrained devices. It exposes sensors and actuators as
// HTTP resources over any stream.Provider — a plain TCP listener, or
// a reverse-HTTP relay when the device has no public address.
//
// The engine is deliberately narrow: one request per cycle, no
// pipelining, no chunked transfer, no TLS, and only the header subset
// a device needs (Connection, Content-Type, Content-Length). Parsing
// and serialization run on fixed, pre-allocated buffers
// (httpd/internal/wire), so a worker's memory footprint does not
// depend on traffic.
//
// Quick start:
//
//	provider, err := stream.Listen(":8080", "")
//	if err != nil { log.Fatal(err) }
//	routes := httpd.NewRouter()
//	routes.Add("GET /status", httpd.HandlerFunc(func(c *httpd.Context) {
//	    c.SetResponse("OK", "text/plain")
//	}))
//	s := &httpd.Server{Provider: provider, Routes: routes}
//	if err := s.Run(); err != nil { log.Fatal(err) }
//
// Routing patterns are "METHOD /path" with an optional trailing '*'
// for prefix matches and "*" as a match-any method. Routes are tried
// in registration order; the first match wins.
package httpd
