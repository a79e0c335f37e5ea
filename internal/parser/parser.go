// Package parser is the generic handler for inbound envelopes that no
// dispatch rule claimed.
package parser

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/HefnySco/droneengage-mavlink/internal/facade"
	"github.com/HefnySco/droneengage-mavlink/internal/logging"
	"github.com/HefnySco/droneengage-mavlink/internal/protocol"
	"github.com/HefnySco/droneengage-mavlink/internal/vehicle"
)

var (
	ErrMissingField = errors.New("missing command field")
	ErrNoFrame      = errors.New("mavlink message carries no frame")
)

// FlightController is the flight-control side this module feeds. Frames
// are raw MAVLink; commands are envelopes the flight logic acts on.
type FlightController interface {
	WriteFrame(frame []byte) error
	ExecuteCommand(env *protocol.Envelope) error
}

// Follower is the swarm follower state.
type Follower interface {
	Follow(leader string)
	Unfollow() string
	Leader() string
}

// Self is this unit's party.
type Self interface {
	PartyID() string
}

// EventChannels pairs the sync event this unit fires with the one it
// waits for. Zero value disables event handling.
type EventChannels struct {
	Fire    int
	Wait    int
	Enabled bool
}

// Parser handles party-addressed envelopes.
type Parser struct {
	logger   *logging.Logger
	facade   *facade.Facade
	vehicle  *vehicle.State
	follower Follower
	fc       FlightController
	self     Self
	events   EventChannels

	mu    sync.Mutex
	fired map[int]bool
}

// New creates a Parser.
func New(logger *logging.Logger, f *facade.Facade, v *vehicle.State, follower Follower, fc FlightController, self Self, events EventChannels) *Parser {
	return &Parser{
		logger:   logger,
		facade:   f,
		vehicle:  v,
		follower: follower,
		fc:       fc,
		self:     self,
		events:   events,
		fired:    make(map[int]bool),
	}
}

// Handle implements dispatch.Handler.
func (p *Parser) Handle(env *protocol.Envelope) error {
	switch env.MessageType {
	case protocol.TypeRemoteExecute:
		return p.remoteExecute(env)
	case protocol.TypeGeoFence, protocol.TypeExternalGeoFence:
		return p.geoFence(env)
	case protocol.TypeSyncEventFire:
		return p.syncEvent(env)
	case protocol.TypeFollowHimRequest:
		return p.followRequest(env)
	case protocol.TypeMavlink:
		if !env.HasBinary() {
			return ErrNoFrame
		}
		return p.fc.WriteFrame(env.Binary)
	}

	if !protocol.Filtered(env.MessageType) {
		p.logger.Debugf("[parser] ignoring unsubscribed type %d from %q", env.MessageType, env.Sender)
		return nil
	}
	p.logger.Debugf("[parser] type %d from %q to flight control", env.MessageType, env.Sender)
	return p.fc.ExecuteCommand(env)
}

// EventChannels returns the configured sync event channels.
func (p *Parser) EventChannels() EventChannels {
	return p.events
}

// EventFired reports whether sync event id has been received on the wait
// channel.
func (p *Parser) EventFired(id int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fired[id]
}

// FireEvent sends this unit's fire channel event to the group.
func (p *Parser) FireEvent() error {
	if !p.events.Enabled {
		return nil
	}
	return p.facade.SendSyncEvent("", p.events.Fire)
}

func (p *Parser) remoteExecute(env *protocol.Envelope) error {
	c, ok := intField(env.Command, "C")
	if !ok {
		return fmt.Errorf("remote execute: %w %q", ErrMissingField, "C")
	}
	to := env.Sender

	switch c {
	case protocol.RemoteRequestID:
		return p.facade.SendID(to)
	case protocol.RemoteRequestGPS:
		return p.facade.SendGPSInfo(to)
	case protocol.RemoteRequestPower:
		return p.facade.SendPowerInfo(to)
	case protocol.RemoteRequestNavInfo:
		return p.facade.SendNavInfo(to)
	case protocol.RemoteRequestWayPoints:
		return p.facade.SendWayPoints(to)
	case protocol.RemoteRequestHome:
		return p.facade.SendHomeLocation(to)
	case protocol.RemoteRequestServo:
		return p.facade.SendServoReadings(to)
	case protocol.RemoteRequestParameters:
		return p.facade.SendParameterList(to)
	case protocol.RemoteRequestGeoFences:
		return p.sendFences(to, env.Command)
	case protocol.RemoteReloadSavedTasks:
		return p.facade.ReloadSavedTasks(c)
	}
	return p.fc.ExecuteCommand(env)
}

// sendFences sends the fence named in "n", or every stored fence.
func (p *Parser) sendFences(to string, cmd map[string]any) error {
	names := p.vehicle.FenceNames()
	if n, ok := cmd["n"].(string); ok && n != "" {
		names = []string{n}
	}
	var errs []error
	for _, n := range names {
		if err := p.facade.SendGeoFence(to, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *Parser) geoFence(env *protocol.Envelope) error {
	name, _ := env.Command["n"].(string)
	if name == "" {
		return fmt.Errorf("geofence: %w %q", ErrMissingField, "n")
	}

	fence := vehicle.GeoFence{Name: name}
	fence.Type, _ = intField(env.Command, "t")
	fence.ShouldKeepOutside, _ = env.Command["o"].(bool)
	fence.MaxDistance, _ = env.Command["r"].(float64)

	points, _ := env.Command["p"].([]any)
	for i, raw := range points {
		pt, ok := raw.(map[string]any)
		if !ok {
			return fmt.Errorf("geofence %q point %d: not an object", name, i)
		}
		lat, _ := pt["a"].(float64)
		lon, _ := pt["g"].(float64)
		alt, _ := pt["l"].(float64)
		fence.Points = append(fence.Points, vehicle.Location{Latitude: lat, Longitude: lon, Altitude: alt})
	}

	p.vehicle.PutFence(fence)
	p.logger.Infof("[parser] geofence %q stored with %d points", name, len(fence.Points))
	return p.facade.SendGeoFenceAttachedStatus(env.Sender, name)
}

func (p *Parser) syncEvent(env *protocol.Envelope) error {
	id, ok := intField(env.Command, "a")
	if !ok {
		return fmt.Errorf("sync event: %w %q", ErrMissingField, "a")
	}
	if !p.events.Enabled || id != p.events.Wait {
		p.logger.Debugf("[parser] sync event %d ignored", id)
		return nil
	}

	p.mu.Lock()
	p.fired[id] = true
	p.mu.Unlock()
	p.logger.Infof("[parser] sync event %d fired by %q", id, env.Sender)
	return nil
}

// followRequest handles a request addressed to this unit. A request
// naming this unit as leader belongs to the flight logic.
func (p *Parser) followRequest(env *protocol.Envelope) error {
	leader, _ := env.Command["a"].(string)
	action, ok := intField(env.Command, "f")
	if !ok {
		return fmt.Errorf("follow request: %w %q", ErrMissingField, "f")
	}

	if p.self != nil && leader != "" && leader == p.self.PartyID() {
		return p.fc.ExecuteCommand(env)
	}

	switch action {
	case facade.FollowActionFollow:
		if leader == "" {
			return fmt.Errorf("follow request: %w %q", ErrMissingField, "a")
		}
		slave, _ := intField(env.Command, "b")
		p.follower.Follow(leader)
		return p.facade.RequestToFollowLeader(leader, slave)
	case facade.FollowActionUnfollow:
		if prev := p.follower.Unfollow(); prev != "" {
			return p.facade.RequestUnfollowLeader(prev)
		}
		return nil
	}
	return fmt.Errorf("follow request: unknown action %d", action)
}

func intField(cmd map[string]any, key string) (int, bool) {
	switch v := cmd[key].(type) {
	case float64:
		if v != math.Trunc(v) || v < math.MinInt || v >= math.MaxInt {
			return 0, false
		}
		return int(v), true
	case int:
		return v, true
	}
	return 0, false
}
