// Package traffic thins periodic telemetry before it reaches the
// communicator.
package traffic

import (
	"sync"

	"golang.org/x/time/rate"

	"github.com/HefnySco/droneengage-mavlink/internal/protocol"
)

// TelemetryTypes are the message types subject to throttling.
var TelemetryTypes = []int{
	protocol.TypeLightTelemetry,
	protocol.TypeGPS,
	protocol.TypeNavInfo,
	protocol.TypePower,
}

// Optimizer keeps one token bucket per telemetry message type. Excess
// messages are skipped, never queued.
type Optimizer struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[int]*rate.Limiter
	types    map[int]bool
}

// New creates an Optimizer allowing hz messages per second per type. A
// non-positive hz disables throttling.
func New(hz float64) *Optimizer {
	o := &Optimizer{
		limit:    rate.Limit(hz),
		burst:    max(1, int(hz)),
		limiters: make(map[int]*rate.Limiter),
		types:    make(map[int]bool, len(TelemetryTypes)),
	}
	if hz <= 0 {
		o.limit = rate.Inf
	}
	for _, t := range TelemetryTypes {
		o.types[t] = true
	}
	return o
}

// Throttles reports whether msgType is rate limited at all.
func (o *Optimizer) Throttles(msgType int) bool {
	return o.types[msgType]
}

// Allow reports whether a message of msgType may be sent now.
func (o *Optimizer) Allow(msgType int) bool {
	if !o.types[msgType] || o.limit == rate.Inf {
		return true
	}

	o.mu.Lock()
	l, ok := o.limiters[msgType]
	if !ok {
		l = rate.NewLimiter(o.limit, o.burst)
		o.limiters[msgType] = l
	}
	o.mu.Unlock()

	return l.Allow()
}
