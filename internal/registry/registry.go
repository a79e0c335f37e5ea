// Package registry publishes the module descriptor to an etcd cluster so
// fleet tooling can discover running modules. Entries are bound to a lease
// and disappear when the process stops renewing it.
//
//	Key:   /droneengage/modules/{partyId or "unassigned"}/{moduleKey}
//	Value: JSON-encoded Entry
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/HefnySco/droneengage-mavlink/internal/transport"
)

// Prefix is the root of every registry key.
const Prefix = "/droneengage/modules/"

// DefaultTTL is the lease TTL in seconds.
const DefaultTTL = 10

var ErrNotRegistered = errors.New("registry: not registered")

// Entry is the value stored for a module.
type Entry struct {
	Module  transport.Module `json:"module"`
	PartyID string           `json:"partyId"`
	GroupID string           `json:"groupId"`
	Status  int              `json:"status"`
}

// Key returns the etcd key for e.
func (e Entry) Key() string {
	party := e.PartyID
	if party == "" {
		party = "unassigned"
	}
	return Prefix + party + "/" + e.Module.Key
}

// Registry keeps one module entry alive in etcd.
type Registry struct {
	client *clientv3.Client
	ttl    int64

	mu     sync.Mutex
	key    string
	lease  clientv3.LeaseID
	cancel context.CancelFunc
}

// New connects to the given etcd endpoints.
func New(endpoints []string) (*Registry, error) {
	c, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("etcd client: %w", err)
	}
	return &Registry{client: c, ttl: DefaultTTL}, nil
}

// Register stores e under a fresh lease and keeps the lease alive until
// Deregister or Close. Registering again replaces the previous entry.
func (r *Registry) Register(ctx context.Context, e Entry) error {
	val, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}

	lease, err := r.client.Grant(ctx, r.ttl)
	if err != nil {
		return fmt.Errorf("grant lease: %w", err)
	}
	if _, err := r.client.Put(ctx, e.Key(), string(val), clientv3.WithLease(lease.ID)); err != nil {
		return fmt.Errorf("put %s: %w", e.Key(), err)
	}

	kaCtx, cancel := context.WithCancel(context.Background())
	ch, err := r.client.KeepAlive(kaCtx, lease.ID)
	if err != nil {
		cancel()
		return fmt.Errorf("keep alive: %w", err)
	}
	go func() {
		for range ch {
		}
	}()

	r.mu.Lock()
	prevKey, prevLease, prevCancel := r.key, r.lease, r.cancel
	r.key, r.lease, r.cancel = e.Key(), lease.ID, cancel
	r.mu.Unlock()

	if prevCancel != nil {
		prevCancel()
		if prevKey != e.Key() {
			r.client.Delete(ctx, prevKey)
		}
		r.client.Revoke(ctx, prevLease)
	}
	return nil
}

// Deregister removes the current entry and revokes its lease.
func (r *Registry) Deregister(ctx context.Context) error {
	r.mu.Lock()
	key, lease, cancel := r.key, r.lease, r.cancel
	r.key, r.lease, r.cancel = "", 0, nil
	r.mu.Unlock()

	if cancel == nil {
		return ErrNotRegistered
	}
	cancel()

	if _, err := r.client.Delete(ctx, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	if _, err := r.client.Revoke(ctx, lease); err != nil {
		return fmt.Errorf("revoke lease: %w", err)
	}
	return nil
}

// Discover lists every registered module.
func (r *Registry) Discover(ctx context.Context) ([]Entry, error) {
	resp, err := r.client.Get(ctx, Prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", Prefix, err)
	}

	entries := make([]Entry, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var e Entry
		if err := json.Unmarshal(kv.Value, &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Close stops lease renewal and closes the etcd client.
func (r *Registry) Close() error {
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	r.mu.Unlock()
	return r.client.Close()
}
