// Package dispatch classifies inbound envelopes and routes each one to
// exactly one handler.
package dispatch

import (
	"fmt"

	"github.com/HefnySco/droneengage-mavlink/internal/logging"
	"github.com/HefnySco/droneengage-mavlink/internal/metrics"
	"github.com/HefnySco/droneengage-mavlink/internal/protocol"
)

// Handler processes one envelope.
type Handler interface {
	Handle(env *protocol.Envelope) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(env *protocol.Envelope) error

func (f HandlerFunc) Handle(env *protocol.Envelope) error { return f(env) }

// Rule is one (predicate, handler) pair of the classification chain.
type Rule struct {
	Name   string
	Match  func(env *protocol.Envelope) bool
	Handle HandlerFunc
}

// FallbackRule names the fallback handler in logs and metrics.
const FallbackRule = "fallback"

// maxLoggedPayload bounds how much of a bad datagram is logged.
const maxLoggedPayload = 512

// Dispatcher evaluates rules top to bottom; the first match handles the
// envelope and everything unmatched goes to the fallback. It is not safe
// for concurrent HandleDatagram calls; the transport delivers one
// datagram at a time.
type Dispatcher struct {
	logger   *logging.Logger
	rules    []Rule
	fallback Handler
	metrics  *metrics.Metrics
	tap      func(rule string, env *protocol.Envelope)
}

// New creates a Dispatcher.
func New(logger *logging.Logger, fallback Handler, rules ...Rule) *Dispatcher {
	return &Dispatcher{
		logger:   logger,
		rules:    append([]Rule(nil), rules...),
		fallback: fallback,
	}
}

// WithMetrics records dispatch results in m. Call before the first datagram.
func (d *Dispatcher) WithMetrics(m *metrics.Metrics) *Dispatcher {
	d.metrics = m
	return d
}

// WithTap calls fn with every envelope that was handled without error.
// Call before the first datagram.
func (d *Dispatcher) WithTap(fn func(rule string, env *protocol.Envelope)) *Dispatcher {
	d.tap = fn
	return d
}

// HandleDatagram decodes and dispatches one datagram. Failures are logged
// with the payload and never returned.
func (d *Dispatcher) HandleDatagram(data []byte) {
	env, err := protocol.Decode(data)
	if err != nil {
		d.metrics.Dispatched(FallbackRule, metrics.ResultMalformed)
		d.logger.Errorf("[dispatch] drop datagram: %v payload=%q", err, truncate(data))
		return
	}
	d.Dispatch(env)
}

// Dispatch routes an already decoded envelope. A panicking handler is
// recovered and logged like an error.
func (d *Dispatcher) Dispatch(env *protocol.Envelope) {
	name, h := d.route(env)

	defer func() {
		if r := recover(); r != nil {
			d.metrics.Dispatched(name, metrics.ResultPanic)
			d.logger.Errorf("[dispatch] %s panic on type %d: %v payload=%q", name, env.MessageType, r, truncate(env.Raw))
		}
	}()

	if h == nil {
		d.metrics.Dispatched(name, metrics.ResultError)
		d.logger.Errorf("[dispatch] no handler for type %d", env.MessageType)
		return
	}

	if err := h.Handle(env); err != nil {
		d.metrics.Dispatched(name, metrics.ResultError)
		d.logger.Errorf("[dispatch] %s type %d: %v payload=%q", name, env.MessageType, err, truncate(env.Raw))
		return
	}

	d.metrics.Dispatched(name, metrics.ResultHandled)
	if d.tap != nil {
		d.tap(name, env)
	}
}

func (d *Dispatcher) route(env *protocol.Envelope) (string, Handler) {
	for _, r := range d.rules {
		if r.Match(env) {
			return r.Name, r.Handle
		}
	}
	return FallbackRule, d.fallback
}

func truncate(data []byte) string {
	if len(data) <= maxLoggedPayload {
		return string(data)
	}
	return fmt.Sprintf("%s...(%d bytes)", data[:maxLoggedPayload], len(data))
}
