package main

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/HefnySco/droneengage-mavlink/internal/connstate"
	"github.com/HefnySco/droneengage-mavlink/internal/dispatch"
	"github.com/HefnySco/droneengage-mavlink/internal/facade"
	"github.com/HefnySco/droneengage-mavlink/internal/identity"
	"github.com/HefnySco/droneengage-mavlink/internal/logging"
	"github.com/HefnySco/droneengage-mavlink/internal/metrics"
	"github.com/HefnySco/droneengage-mavlink/internal/protocol"
	"github.com/HefnySco/droneengage-mavlink/internal/registry"
	"github.com/HefnySco/droneengage-mavlink/internal/store"
	"github.com/HefnySco/droneengage-mavlink/internal/swarm"
	"github.com/HefnySco/droneengage-mavlink/internal/vehicle"
)

type countingSender struct {
	types   []int
	targets []string
}

func (s *countingSender) SendJSON(target string, msgType int, internal bool, cmd map[string]any) error {
	s.types = append(s.types, msgType)
	s.targets = append(s.targets, target)
	return nil
}

func (s *countingSender) SendBinary(target string, msgType int, internal bool, cmd map[string]any, binary []byte) error {
	return s.SendJSON(target, msgType, internal, cmd)
}

func (s *countingSender) SendRemoteExecute(int) error { return nil }

type recordingRegistrar struct {
	entries []registry.Entry
	err     error
}

func (r *recordingRegistrar) Register(ctx context.Context, e registry.Entry) error {
	r.entries = append(r.entries, e)
	return r.err
}

func newTestNotifier(t *testing.T) (*statusNotifier, *countingSender, *recordingRegistrar) {
	t.Helper()
	st, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	sender := &countingSender{}
	ident := identity.New("FCB_Main", "key", time.Now())
	fac, err := facade.New(sender, vehicle.NewState(), ident)
	if err != nil {
		t.Fatalf("facade.New: %v", err)
	}
	reg := &recordingRegistrar{}
	effects := newEffectWorker(logging.Discard(), effectQueueSize, time.Second)
	t.Cleanup(effects.close)

	return &statusNotifier{
		logger:   logging.Discard(),
		store:    st,
		metrics:  metrics.New(prometheus.NewRegistry()),
		facade:   fac,
		ident:    ident,
		registry: reg,
		effects:  effects,
	}, sender, reg
}

func TestStatusChangeSideEffects(t *testing.T) {
	n, sender, reg := newTestNotifier(t)
	tracker := connstate.New(n.onChange)

	tracker.Update(connstate.StatusConnected)
	tracker.Update(connstate.StatusRegistered)
	tracker.Update(connstate.StatusRegistered)
	n.effects.close()

	history, err := n.store.ListStatusChanges(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListStatusChanges: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history = %d entries, want 2", len(history))
	}
	if history[0].Previous != connstate.StatusConnected || history[0].Status != connstate.StatusRegistered {
		t.Errorf("latest change = %+v", history[0])
	}

	if len(sender.types) != 1 || sender.types[0] != protocol.TypeID || sender.targets[0] != "" {
		t.Errorf("sent = %v to %v, want one broadcast ID", sender.types, sender.targets)
	}
	if len(reg.entries) != 2 || reg.entries[1].Status != connstate.StatusRegistered {
		t.Errorf("registry entries = %+v", reg.entries)
	}
}

func TestRegistryErrorsAreLogged(t *testing.T) {
	n, _, reg := newTestNotifier(t)
	reg.err = errors.New("etcd unavailable")

	n.onChange(connstate.StatusConnecting)
	n.effects.close()

	if got := len(reg.entries); got != 1 {
		t.Errorf("register attempts = %d, want 1", got)
	}
}

func TestPartyChangePersisted(t *testing.T) {
	n, _, reg := newTestNotifier(t)
	env := &protocol.Envelope{MessageType: protocol.TypeModuleID, RoutingType: protocol.RoutingIntermodule}

	n.onDispatched("identity", env)
	n.ident.SetParty("drone-1", "g1")
	n.onDispatched("identity", env)
	n.onDispatched("identity", env)
	n.effects.close()

	party, err := n.store.LoadParty(context.Background())
	if err != nil {
		t.Fatalf("LoadParty: %v", err)
	}
	if party.PartyID != "drone-1" || party.GroupID != "g1" {
		t.Errorf("stored party = %+v", party)
	}
	if len(reg.entries) != 1 || reg.entries[0].PartyID != "drone-1" {
		t.Errorf("registry entries = %+v, want one for drone-1", reg.entries)
	}
}

// blockingRegistrar holds every registration until released or timed out.
type blockingRegistrar struct {
	release chan struct{}
	calls   atomic.Int32
}

func (r *blockingRegistrar) Register(ctx context.Context, e registry.Entry) error {
	r.calls.Add(1)
	select {
	case <-r.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestStalledRegistryDoesNotBlockInbound(t *testing.T) {
	n, _, _ := newTestNotifier(t)
	reg := &blockingRegistrar{release: make(chan struct{})}
	n.registry = reg

	tracker := connstate.New(n.onChange)
	follower := swarm.NewFollower(nil, logging.Discard())
	fallback := dispatch.HandlerFunc(func(*protocol.Envelope) error { return nil })
	d := dispatch.New(logging.Discard(), fallback, dispatch.StandardRules(n.ident, tracker, follower)...).
		WithTap(n.onDispatched)

	datagram := []byte(`{"messageType":9100,"routingType":"intermodule","command":{"g":5,"partyId":"drone-1","groupId":"g1"}}`)

	start := time.Now()
	d.HandleDatagram(datagram)
	if elapsed := time.Since(start); elapsed > 250*time.Millisecond {
		t.Errorf("HandleDatagram took %v with a stalled registry", elapsed)
	}
	if got := tracker.Status(); got != connstate.StatusRegistered {
		t.Errorf("status = %d, want %d", got, connstate.StatusRegistered)
	}

	close(reg.release)
	n.effects.close()

	if got := reg.calls.Load(); got != 2 {
		t.Errorf("register calls = %d, want 2", got)
	}
	party, err := n.store.LoadParty(context.Background())
	if err != nil {
		t.Fatalf("LoadParty: %v", err)
	}
	if party.PartyID != "drone-1" {
		t.Errorf("stored party = %+v", party)
	}
}

func TestEffectQueueDropsWhenFull(t *testing.T) {
	w := newEffectWorker(logging.Discard(), 1, time.Second)
	started := make(chan struct{})
	release := make(chan struct{})

	if !w.submit("hold", func(context.Context) error {
		close(started)
		<-release
		return nil
	}) {
		t.Fatal("first submit dropped")
	}
	<-started

	var ran atomic.Int32
	count := func(context.Context) error {
		ran.Add(1)
		return nil
	}
	if !w.submit("queued", count) {
		t.Fatal("submit into empty queue dropped")
	}
	if w.submit("overflow", count) {
		t.Error("submit into full queue was accepted")
	}

	close(release)
	w.close()
	if got := ran.Load(); got != 1 {
		t.Errorf("ran = %d, want 1", got)
	}
}
