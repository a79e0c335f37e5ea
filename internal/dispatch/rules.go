package dispatch

import (
	"errors"
	"fmt"
	"math"

	"github.com/HefnySco/droneengage-mavlink/internal/protocol"
)

// Rule names.
const (
	RuleIdentity = "identity"
	RuleSwarm    = "swarm"
)

// Command keys of the module identity announcement.
const (
	keyPartyID = "partyId"
	keyGroupID = "groupId"
	keyStatus  = "g"
)

// ErrBadAnnouncement is returned for identity announcements without a
// usable integer status.
var ErrBadAnnouncement = errors.New("bad identity announcement")

// PartySetter receives the party and group assigned by the server.
type PartySetter interface {
	PartyID() string
	GroupID() string
	SetParty(partyID, groupID string) bool
}

// StatusUpdater receives the connection status.
type StatusUpdater interface {
	Update(status int) bool
}

// LeaderRelay receives swarm leader traffic.
type LeaderRelay interface {
	HandleLeaderTraffic(sender string, raw []byte, length int) error
}

// StandardRules returns the identity announcement and swarm relay rules,
// in that order.
func StandardRules(party PartySetter, status StatusUpdater, relay LeaderRelay) []Rule {
	return []Rule{
		{
			Name: RuleIdentity,
			Match: func(env *protocol.Envelope) bool {
				return env.IsIntermodule() && env.MessageType == protocol.TypeModuleID
			},
			Handle: func(env *protocol.Envelope) error {
				return handleAnnouncement(env, party, status)
			},
		},
		{
			Name: RuleSwarm,
			Match: func(env *protocol.Envelope) bool {
				return env.MessageType == protocol.TypeSwarmMavlink
			},
			Handle: func(env *protocol.Envelope) error {
				return relay.HandleLeaderTraffic(env.Sender, env.Raw, len(env.Raw))
			},
		},
	}
}

func handleAnnouncement(env *protocol.Envelope, party PartySetter, status StatusUpdater) error {
	g, ok := intValue(env.Command[keyStatus])
	if !ok {
		return fmt.Errorf("%w: status %q is %v", ErrBadAnnouncement, keyStatus, env.Command[keyStatus])
	}

	partyID, hasParty := env.Command[keyPartyID].(string)
	groupID, hasGroup := env.Command[keyGroupID].(string)
	if hasParty || hasGroup {
		if !hasParty {
			partyID = party.PartyID()
		}
		if !hasGroup {
			groupID = party.GroupID()
		}
		party.SetParty(partyID, groupID)
	}

	status.Update(g)
	return nil
}

// intValue accepts JSON numbers that hold an integer.
func intValue(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		if n != math.Trunc(n) || n < math.MinInt || n >= math.MaxInt {
			return 0, false
		}
		return int(n), true
	case int:
		return n, true
	}
	return 0, false
}
