package relay

import "github.com/embhttp/embhttp/stream"

// find consumes bytes from s until pattern has passed through, using
// a ring of len(pattern) bytes so the response is never buffered as a
// whole. It reports false when the stream fails first.
func find(s stream.Stream, pattern string) bool {
	n := len(pattern)
	if n == 0 {
		return true
	}
	ring := make([]byte, n)
	var rx [1]byte
	pos, filled := 0, 0
	for {
		r, err := s.Read(rx[:])
		if err != nil || r == 0 {
			return false
		}
		ring[pos] = rx[0]
		pos = (pos + 1) % n
		if filled < n {
			filled++
		}
		if filled < n {
			continue
		}
		match := true
		for i := 0; i < n; i++ {
			if ring[(pos+i)%n] != pattern[i] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
}
