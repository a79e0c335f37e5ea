package main

import (
	"sync/atomic"

	"github.com/HefnySco/droneengage-mavlink/internal/logging"
	"github.com/HefnySco/droneengage-mavlink/internal/protocol"
)

// flightControl stands in for the MAVLink link to the autopilot, which
// runs outside this module. It counts and logs what it is handed.
type flightControl struct {
	logger   *logging.Logger
	frames   atomic.Uint64
	commands atomic.Uint64
}

func (f *flightControl) WriteFrame(frame []byte) error {
	f.frames.Add(1)
	f.logger.Debugf("[fcb] frame %d bytes", len(frame))
	return nil
}

func (f *flightControl) ExecuteCommand(env *protocol.Envelope) error {
	f.commands.Add(1)
	f.logger.Debugf("[fcb] command type %d from %q", env.MessageType, env.Sender)
	return nil
}
