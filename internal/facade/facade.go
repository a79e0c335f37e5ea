// Package facade is the single construction surface for every message
// this module sends. Each operation builds one envelope command and hands
// it to the Sender immediately.
package facade

import (
	"errors"
	"fmt"

	"github.com/HefnySco/droneengage-mavlink/internal/identity"
	"github.com/HefnySco/droneengage-mavlink/internal/protocol"
	"github.com/HefnySco/droneengage-mavlink/internal/vehicle"
)

// Errors returned by the facade itself.
var (
	ErrNoSender     = errors.New("facade: sender is required")
	ErrNoVehicle    = errors.New("facade: vehicle state is required")
	ErrUnknownFence = errors.New("unknown geofence")
	ErrEmptyFrame   = errors.New("empty frame")
)

// Sender transmits encoded messages. Implementations must tolerate
// concurrent calls.
type Sender interface {
	// SendJSON sends a header-only envelope.
	SendJSON(target string, msgType int, internal bool, cmd map[string]any) error
	// SendBinary sends a header followed by a raw binary tail.
	SendBinary(target string, msgType int, internal bool, cmd map[string]any, binary []byte) error
	// SendRemoteExecute asks the other local modules to run command.
	SendRemoteExecute(command int) error
}

// Notification types, in MAV_SEVERITY order.
const (
	NotifyEmergency = 0
	NotifyAlert     = 1
	NotifyCritical  = 2
	NotifyError     = 3
	NotifyWarning   = 4
	NotifyNotice    = 5
	NotifyInfo      = 6
	NotifyDebug     = 7
)

// Error numbers and info types carried by TypeError messages.
const (
	ErrorFlightController = 5
	ErrorGeoFence         = 100

	InfoTypeTelemetry = 1
	InfoTypeProtocol  = 7
	InfoTypeGeoFence  = 9
)

// Follow request actions.
const (
	FollowActionFollow   = 1
	FollowActionUnfollow = 2
)

// Destination location kinds.
const (
	DestinationGuided = 0
	DestinationHome   = 1
)

// paramChunk is how many parameters one parameter list message carries.
const paramChunk = 20

// Facade builds outbound messages. Its fields are set in New and never
// reassigned, so operations may be called from any goroutine.
type Facade struct {
	sender  Sender
	vehicle *vehicle.State
	self    *identity.Identity
}

// New creates a Facade. sender and v are required; self may be nil when
// follow requests are not used.
func New(sender Sender, v *vehicle.State, self *identity.Identity) (*Facade, error) {
	if sender == nil {
		return nil, ErrNoSender
	}
	if v == nil {
		return nil, ErrNoVehicle
	}
	return &Facade{sender: sender, vehicle: v, self: self}, nil
}

func (f *Facade) sendJSON(op, target string, msgType int, cmd map[string]any) error {
	if err := f.sender.SendJSON(target, msgType, false, cmd); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (f *Facade) sendBinary(op, target string, msgType int, cmd map[string]any, binary []byte) error {
	if err := f.sender.SendBinary(target, msgType, false, cmd, binary); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// SendID sends this unit's identity block.
func (f *Facade) SendID(target string) error {
	info := f.vehicle.Info()
	return f.sendJSON("send id", target, protocol.TypeID, map[string]any{
		"VT": info.VehicleType,
		"FM": info.FlightMode,
		"AR": info.Armed,
		"FL": info.Flying,
		"AP": info.Autopilot,
		"TP": info.Telemetry,
	})
}

// RequestID asks target to send its identity.
func (f *Facade) RequestID(target string) error {
	return f.sendJSON("request id", target, protocol.TypeRemoteExecute, map[string]any{
		"C": protocol.RemoteRequestID,
	})
}

// SendTelemetryPanic reports loss of the flight-controller link.
func (f *Facade) SendTelemetryPanic(target string) error {
	return f.SendErrorMessage(target, ErrorFlightController, InfoTypeTelemetry, NotifyEmergency,
		"flight controller telemetry lost")
}

// SendErrorMessage sends a structured error report.
func (f *Facade) SendErrorMessage(target string, code, infoType, notificationType int, description string) error {
	return f.sendJSON("send error", target, protocol.TypeError, map[string]any{
		"EN": code,
		"IT": infoType,
		"NT": notificationType,
		"DS": description,
	})
}

func (f *Facade) SendGPSInfo(target string) error {
	g := f.vehicle.GPS()
	return f.sendJSON("send gps info", target, protocol.TypeGPS, map[string]any{
		"3D": g.FixType,
		"SA": g.Satellites,
		"la": g.Latitude,
		"ln": g.Longitude,
		"a":  g.AltitudeMSL,
		"r":  g.AltitudeRel,
		"s":  g.GroundSpeed,
		"c":  g.Heading,
		"H":  g.HDOP,
	})
}

func (f *Facade) SendNavInfo(target string) error {
	n := f.vehicle.Nav()
	return f.sendJSON("send nav info", target, protocol.TypeNavInfo, map[string]any{
		"a": n.Roll,
		"b": n.Pitch,
		"y": n.Yaw,
		"d": n.NavRoll,
		"e": n.NavPitch,
		"f": n.TargetBearing,
		"g": n.WaypointDistance,
		"h": n.AltitudeError,
	})
}

func paramEntry(p vehicle.Param) map[string]any {
	return map[string]any{"n": p.Name, "v": p.Value, "t": p.Type, "i": p.Index}
}

// SendParameterList sends every known parameter in chunks; the last chunk
// carries "L": true. An empty list is sent as a single empty last chunk.
func (f *Facade) SendParameterList(target string) error {
	params := f.vehicle.Params()
	for start := 0; ; start += paramChunk {
		end := min(start+paramChunk, len(params))
		entries := make([]any, 0, end-start)
		for _, p := range params[start:end] {
			entries = append(entries, paramEntry(p))
		}
		last := end == len(params)
		err := f.sendJSON("send parameter list", target, protocol.TypeParameterValue, map[string]any{
			"P": entries,
			"L": last,
		})
		if err != nil || last {
			return err
		}
	}
}

// SendParameterValue sends a single parameter update.
func (f *Facade) SendParameterValue(target string, p vehicle.Param) error {
	return f.sendJSON("send parameter value", target, protocol.TypeParameterValue, map[string]any{
		"P": []any{paramEntry(p)},
		"L": true,
	})
}

func (f *Facade) SendPowerInfo(target string) error {
	p := f.vehicle.Power()
	return f.sendJSON("send power info", target, protocol.TypePower, map[string]any{
		"BV": p.Voltage,
		"BC": p.Current,
		"BR": p.Remaining,
		"BX": p.Consumed,
	})
}

func (f *Facade) SendHomeLocation(target string) error {
	h := f.vehicle.Home()
	return f.sendJSON("send home location", target, protocol.TypeHomeLocation, map[string]any{
		"T": DestinationHome,
		"a": h.Latitude,
		"g": h.Longitude,
		"l": h.Altitude,
	})
}

// SendFCBTargetLocation reports the guided target the flight controller
// is flying to.
func (f *Facade) SendFCBTargetLocation(target string, lat, lon, alt float64) error {
	return f.sendJSON("send target location", target, protocol.TypeDestinationLocation, map[string]any{
		"T": DestinationGuided,
		"a": lat,
		"g": lon,
		"l": alt,
	})
}

func (f *Facade) SendWayPoints(target string) error {
	wps := f.vehicle.Waypoints()
	items := make([]any, 0, len(wps))
	for _, w := range wps {
		items = append(items, map[string]any{
			"s": w.Seq,
			"c": w.Command,
			"f": w.Frame,
			"a": w.Latitude,
			"g": w.Longitude,
			"l": w.Altitude,
			"p": w.Params[:],
		})
	}
	return f.sendJSON("send waypoints", target, protocol.TypeWayPoints, map[string]any{
		"n": len(items),
		"W": items,
	})
}

// SendTelemetryData forwards one raw telemetry frame.
func (f *Facade) SendTelemetryData(target string, frame []byte) error {
	if len(frame) == 0 {
		return fmt.Errorf("send telemetry data: %w", ErrEmptyFrame)
	}
	return f.sendBinary("send telemetry data", target, protocol.TypeLightTelemetry, nil, frame)
}

// SendMavlinkData forwards one raw MAVLink frame.
func (f *Facade) SendMavlinkData(target string, frame []byte) error {
	if len(frame) == 0 {
		return fmt.Errorf("send mavlink data: %w", ErrEmptyFrame)
	}
	return f.sendBinary("send mavlink data", target, protocol.TypeMavlink, nil, frame)
}

// SendMavlinkData2 forwards two raw MAVLink frames in one envelope.
func (f *Facade) SendMavlinkData2(target string, frame1, frame2 []byte) error {
	if len(frame1) == 0 || len(frame2) == 0 {
		return fmt.Errorf("send mavlink data: %w", ErrEmptyFrame)
	}
	buf := make([]byte, 0, len(frame1)+len(frame2))
	buf = append(buf, frame1...)
	buf = append(buf, frame2...)
	return f.sendBinary("send mavlink data", target, protocol.TypeMavlink, nil, buf)
}

func (f *Facade) SendServoReadings(target string) error {
	servos := f.vehicle.Servos()
	values := make([]any, len(servos))
	for i, v := range servos {
		values[i] = v
	}
	return f.sendJSON("send servo readings", target, protocol.TypeServoChannel, map[string]any{
		"S": values,
	})
}

func (f *Facade) SendWayPointReached(target string, seq int) error {
	return f.sendJSON("send waypoint reached", target, protocol.TypeWayPointReached, map[string]any{
		"s": seq,
	})
}

// SendGeoFenceAttachedStatus tells target whether fenceName is attached
// to this unit.
func (f *Facade) SendGeoFenceAttachedStatus(target, fenceName string) error {
	_, attached := f.vehicle.Fence(fenceName)
	return f.sendJSON("send geofence status", target, protocol.TypeGeoFenceAttachStatus, map[string]any{
		"n": fenceName,
		"a": attached,
	})
}

// SendGeoFence transfers the full definition of a stored fence.
func (f *Facade) SendGeoFence(target, fenceName string) error {
	fence, ok := f.vehicle.Fence(fenceName)
	if !ok {
		return fmt.Errorf("send geofence %q: %w", fenceName, ErrUnknownFence)
	}
	points := make([]any, 0, len(fence.Points))
	for _, p := range fence.Points {
		points = append(points, map[string]any{"a": p.Latitude, "g": p.Longitude})
	}
	return f.sendJSON("send geofence", target, protocol.TypeGeoFence, map[string]any{
		"n": fence.Name,
		"t": fence.Type,
		"o": fence.ShouldKeepOutside,
		"r": fence.MaxDistance,
		"p": points,
	})
}

// SendGeoFenceHit reports a fence violation state change.
func (f *Facade) SendGeoFenceHit(target, fenceName string, distance float64, inZone, shouldKeepOutside bool) error {
	return f.sendJSON("send geofence hit", target, protocol.TypeGeoFenceHit, map[string]any{
		"n": fenceName,
		"d": distance,
		"z": inZone,
		"o": shouldKeepOutside,
	})
}

func (f *Facade) SendSyncEvent(target string, eventID int) error {
	return f.sendJSON("send sync event", target, protocol.TypeSyncEventFire, map[string]any{
		"a": eventID,
	})
}

func (f *Facade) ownParty() string {
	if f.self == nil {
		return ""
	}
	return f.self.PartyID()
}

// RequestToFollowLeader asks leader to accept this unit at slaveIndex.
func (f *Facade) RequestToFollowLeader(leader string, slaveIndex int) error {
	return f.sendJSON("request follow", leader, protocol.TypeFollowHimRequest, map[string]any{
		"a": leader,
		"b": slaveIndex,
		"c": f.ownParty(),
		"f": FollowActionFollow,
	})
}

func (f *Facade) RequestUnfollowLeader(leader string) error {
	return f.sendJSON("request unfollow", leader, protocol.TypeFollowHimRequest, map[string]any{
		"a": leader,
		"c": f.ownParty(),
		"f": FollowActionUnfollow,
	})
}

// ReloadSavedTasks asks the other local modules to run command.
func (f *Facade) ReloadSavedTasks(command int) error {
	if err := f.sender.SendRemoteExecute(command); err != nil {
		return fmt.Errorf("reload saved tasks: %w", err)
	}
	return nil
}
