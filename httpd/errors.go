package httpd

import "errors"

var (
	ErrBadPattern   = errors.New("httpd: malformed route pattern")
	ErrUnknownRoute = errors.New("httpd: route not registered")
	ErrNoProvider   = errors.New("httpd: server has no stream provider")
	ErrBadLocalURL  = errors.New("httpd: malformed provider local URL")
	ErrClosed       = errors.New("httpd: server closed")
)
