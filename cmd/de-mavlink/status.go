package main

import (
	"context"

	"github.com/HefnySco/droneengage-mavlink/internal/connstate"
	"github.com/HefnySco/droneengage-mavlink/internal/facade"
	"github.com/HefnySco/droneengage-mavlink/internal/identity"
	"github.com/HefnySco/droneengage-mavlink/internal/logging"
	"github.com/HefnySco/droneengage-mavlink/internal/metrics"
	"github.com/HefnySco/droneengage-mavlink/internal/monitor"
	"github.com/HefnySco/droneengage-mavlink/internal/protocol"
	"github.com/HefnySco/droneengage-mavlink/internal/registry"
	"github.com/HefnySco/droneengage-mavlink/internal/store"
	"github.com/HefnySco/droneengage-mavlink/internal/transport"
)

type registrar interface {
	Register(ctx context.Context, e registry.Entry) error
}

// statusNotifier runs the side effects of a connection status change and
// of a new party identity. Both are called from the dispatch goroutine
// only; store and registry writes go through effects.
type statusNotifier struct {
	logger   *logging.Logger
	store    *store.Store
	metrics  *metrics.Metrics
	hub      *monitor.Hub
	facade   *facade.Facade
	ident    *identity.Identity
	registry registrar
	module   transport.Module
	effects  *effectWorker

	prev      int
	lastParty string
	lastGroup string
}

func (n *statusNotifier) onChange(status int) {
	prev := n.prev
	n.prev = status

	n.logger.Infof("[main] connection status %s -> %s", connstate.StatusName(prev), connstate.StatusName(status))
	n.metrics.StatusChanged(status)

	n.effects.submit("record status change", func(ctx context.Context) error {
		_, err := n.store.RecordStatusChange(ctx, prev, status)
		return err
	})

	if n.hub != nil {
		n.hub.Broadcast(monitor.NewEvent(monitor.KindStatus, map[string]any{
			"previous": prev,
			"status":   status,
			"name":     connstate.StatusName(status),
		}))
	}

	if status == connstate.StatusRegistered {
		if err := n.facade.SendID(""); err != nil {
			n.logger.Warnf("[main] announce id: %v", err)
		}
	}

	n.register(status)
}

// onDispatched persists and publishes a party change after an identity
// announcement, and mirrors every handled envelope to monitor clients.
func (n *statusNotifier) onDispatched(rule string, env *protocol.Envelope) {
	if n.hub != nil {
		n.hub.Broadcast(monitor.NewEvent(monitor.KindInbound, map[string]any{
			"rule":    rule,
			"type":    env.MessageType,
			"routing": env.RoutingType,
			"sender":  env.Sender,
			"binary":  len(env.Binary),
		}))
	}

	party, group := n.ident.PartyID(), n.ident.GroupID()
	if party == n.lastParty && group == n.lastGroup {
		return
	}
	n.lastParty, n.lastGroup = party, group
	n.logger.Infof("[main] party %q group %q", party, group)

	n.effects.submit("save party", func(ctx context.Context) error {
		return n.store.SaveParty(ctx, party, group)
	})
	if n.hub != nil {
		snap := n.ident.Snapshot()
		n.hub.Broadcast(monitor.NewEvent(monitor.KindIdentity, map[string]any{
			"partyId":   snap.PartyID,
			"groupId":   snap.GroupID,
			"moduleId":  snap.ModuleID,
			"moduleKey": snap.ModuleKey,
		}))
	}
	n.register(n.prev)
}

// register queues a fleet registration carrying the identity as it is now.
func (n *statusNotifier) register(status int) {
	if n.registry == nil {
		return
	}
	e := registry.Entry{
		Module:  n.module,
		PartyID: n.ident.PartyID(),
		GroupID: n.ident.GroupID(),
		Status:  status,
	}
	n.effects.submit("registry", func(ctx context.Context) error {
		return n.registry.Register(ctx, e)
	})
}
