package httpd

import (
	"sync/atomic"
	"time"
)

// Diagnostics holds the server's best-effort operating counters. The
// server loop increments them; everything else reads them through
// Snapshot. Counters are atomic because multi-worker mode increments
// them from several goroutines.
type Diagnostics struct {
	started time.Time

	// acceptErrors counts transient accept problems (timeouts,
	// resets); acceptFailures counts unexpected ones.
	acceptErrors   atomic.Int64
	acceptFailures atomic.Int64

	// requests counts every request that reached routing.
	requests atomic.Int64

	// handlerErrors counts requests whose response could not be
	// delivered; handlerFailures counts handler panics and broken
	// response contracts.
	handlerErrors   atomic.Int64
	handlerFailures atomic.Int64
}

// DiagnosticsSnapshot is a point-in-time copy of the counters.
type DiagnosticsSnapshot struct {
	StartTime       time.Time
	Uptime          time.Duration
	AcceptErrors    int64
	AcceptFailures  int64
	Requests        int64
	HandlerErrors   int64
	HandlerFailures int64
}

func (d *Diagnostics) Snapshot() DiagnosticsSnapshot {
	var uptime time.Duration
	if !d.started.IsZero() {
		uptime = time.Since(d.started)
	}
	return DiagnosticsSnapshot{
		StartTime:       d.started,
		Uptime:          uptime,
		AcceptErrors:    d.acceptErrors.Load(),
		AcceptFailures:  d.acceptFailures.Load(),
		Requests:        d.requests.Load(),
		HandlerErrors:   d.handlerErrors.Load(),
		HandlerFailures: d.handlerFailures.Load(),
	}
}
