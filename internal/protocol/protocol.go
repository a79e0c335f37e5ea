// Package protocol implements the envelope wire format exchanged with the
// local communicator: a JSON header, optionally followed by a single 0x00
// byte and a raw binary tail.
//
// Message type codes follow the Andruav protocol table shared by every
// Drone-Engage module.
package protocol

// Routing types carried in the envelope header.
const (
	RoutingIntermodule = "intermodule"
	RoutingIndividual  = "individual"
	RoutingGroup       = "group"
	RoutingSystem      = "system"
)

// Party-addressed message types.
const (
	TypeGPS                    = 1002
	TypePower                  = 1003
	TypeID                     = 1004
	TypeRemoteExecute          = 1005
	TypeError                  = 1008
	TypeFlightControl          = 1010
	TypeGeoFenceAttachStatus   = 1015
	TypeGeoFenceHit            = 1016
	TypeGeoFence               = 1017
	TypeExternalGeoFence       = 1018
	TypeArm                    = 1020
	TypeChangeAltitude         = 1021
	TypeLand                   = 1022
	TypeGuidedPoint            = 1023
	TypeCirclePoint            = 1024
	TypeDoYAW                  = 1025
	TypeWayPoints              = 1027
	TypeNavInfo                = 1036
	TypeDestinationLocation    = 1037
	TypeChangeSpeed            = 1040
	TypeTrackingTarget         = 1042
	TypeTrackingTargetLocation = 1043
	TypeTargetLost             = 1044
	TypeRemoteControlSettings  = 1047
	TypeHomeLocation           = 1048
	TypeSetHomeLocation        = 1049
	TypeUploadWayPoints        = 1050
	TypeRemoteControl2         = 1052
	TypeServoChannel           = 1061
	TypeSyncEventFire          = 1062
	TypeWayPointReached        = 1067
	TypeParameterValue         = 1069
	TypeUDPProxyInfo           = 1071
	TypeP2PAction              = 1072
	TypeP2PStatus              = 1073
	TypeLightTelemetry         = 2022
	TypeMavlink                = 6502
	TypeSwarmMavlink           = 6503
	TypeMakeSwarm              = 6504
	TypeFollowHimRequest       = 6505
	TypeFollowMeGuided         = 6506
	TypeUpdateSwarm            = 6507
)

// Intermodule and system message types.
const (
	TypeModuleID            = 9100
	TypeModuleRemoteExecute = 9101
	TypeSystemUDPProxy      = 9200
)

// Remote execute sub-commands carried in the "C" field of a
// TypeRemoteExecute command.
const (
	RemoteRequestID          = TypeID
	RemoteRequestGPS         = TypeGPS
	RemoteRequestPower       = TypePower
	RemoteRequestNavInfo     = TypeNavInfo
	RemoteRequestWayPoints   = TypeWayPoints
	RemoteRequestHome        = TypeHomeLocation
	RemoteRequestGeoFences   = TypeGeoFence
	RemoteRequestServo       = TypeServoChannel
	RemoteRequestParameters  = TypeParameterValue
	RemoteReloadSavedTasks   = 9600
	RemoteRequestUDPProxy    = TypeUDPProxyInfo
	RemoteRequestTelemetryOn = 9601
)

// MessageFilter lists the message types this module asks the communicator
// to deliver.
var MessageFilter = []int{
	TypeRemoteExecute,
	TypeFlightControl,
	TypeGeoFence,
	TypeExternalGeoFence,
	TypeArm,
	TypeChangeAltitude,
	TypeLand,
	TypeGuidedPoint,
	TypeCirclePoint,
	TypeDoYAW,
	TypeDestinationLocation,
	TypeChangeSpeed,
	TypeTrackingTarget,
	TypeTrackingTargetLocation,
	TypeTargetLost,
	TypeUploadWayPoints,
	TypeRemoteControlSettings,
	TypeSetHomeLocation,
	TypeRemoteControl2,
	TypeLightTelemetry,
	TypeServoChannel,
	TypeSyncEventFire,
	TypeMavlink,
	TypeSwarmMavlink,
	TypeMakeSwarm,
	TypeFollowHimRequest,
	TypeFollowMeGuided,
	TypeUpdateSwarm,
	TypeUDPProxyInfo,
	TypeSystemUDPProxy,
	TypeP2PAction,
	TypeP2PStatus,
}

// Filtered reports whether msgType is in MessageFilter.
func Filtered(msgType int) bool {
	for _, t := range MessageFilter {
		if t == msgType {
			return true
		}
	}
	return false
}
