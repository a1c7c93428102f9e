package relay

import (
	"strings"
	"testing"
	"time"
)

// stringStream feeds a fixed payload; Write is discarded.
type stringStream struct{ r *strings.Reader }

func newStringStream(s string) *stringStream {
	return &stringStream{r: strings.NewReader(s)}
}

func (s *stringStream) Read(p []byte) (int, error)             { return s.r.Read(p) }
func (s *stringStream) Write(p []byte) (int, error)            { return len(p), nil }
func (s *stringStream) Close() error                           { return nil }
func (s *stringStream) SetReadTimeout(d time.Duration) error   { return nil }
func (s *stringStream) SetWriteTimeout(d time.Duration) error  { return nil }

func TestFind(t *testing.T) {
	cases := []struct {
		input   string
		pattern string
		want    bool
		rest    string // bytes left unconsumed after a hit
	}{
		{"HTTP/1.1 101 Switching\r\n\r\nGET /", "\r\n\r\n", true, "GET /"},
		{"abcdef", "cd", true, "ef"},
		{"aaab", "aab", true, ""},
		{"abcdef", "xy", false, ""},
		{"ab", "abc", false, ""},
		{"abc", "", true, "abc"},
	}
	for _, tc := range cases {
		s := newStringStream(tc.input)
		if got := find(s, tc.pattern); got != tc.want {
			t.Errorf("find(%q, %q) = %v, want %v", tc.input, tc.pattern, got, tc.want)
			continue
		}
		if tc.want {
			rest := make([]byte, len(tc.input))
			n, _ := s.r.Read(rest)
			if string(rest[:n]) != tc.rest {
				t.Errorf("find(%q, %q) left %q unconsumed, want %q", tc.input, tc.pattern, rest[:n], tc.rest)
			}
		}
	}
}
