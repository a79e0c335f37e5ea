// Package identity holds who this module is: the party and group assigned
// by the server, and the module id/key it registers with.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/HefnySco/droneengage-mavlink/internal/store"
)

// Identity is safe for concurrent use. Only the party and group change
// after construction.
type Identity struct {
	mu      sync.RWMutex
	partyID string
	groupID string

	moduleID          string
	moduleKey         string
	instanceTimestamp int64
}

// New creates an Identity. instance is the process start time.
func New(moduleID, moduleKey string, instance time.Time) *Identity {
	return &Identity{
		moduleID:          moduleID,
		moduleKey:         moduleKey,
		instanceTimestamp: instance.Unix(),
	}
}

func (id *Identity) PartyID() string {
	id.mu.RLock()
	defer id.mu.RUnlock()
	return id.partyID
}

func (id *Identity) GroupID() string {
	id.mu.RLock()
	defer id.mu.RUnlock()
	return id.groupID
}

func (id *Identity) ModuleID() string         { return id.moduleID }
func (id *Identity) ModuleKey() string        { return id.moduleKey }
func (id *Identity) InstanceTimestamp() int64 { return id.instanceTimestamp }

// SetParty records the party and group announced by the communicator and
// reports whether either changed.
func (id *Identity) SetParty(partyID, groupID string) bool {
	id.mu.Lock()
	defer id.mu.Unlock()
	if id.partyID == partyID && id.groupID == groupID {
		return false
	}
	id.partyID = partyID
	id.groupID = groupID
	return true
}

// Snapshot is a point-in-time copy of an Identity.
type Snapshot struct {
	PartyID           string `json:"partyId"`
	GroupID           string `json:"groupId"`
	ModuleID          string `json:"moduleId"`
	ModuleKey         string `json:"moduleKey"`
	InstanceTimestamp int64  `json:"instanceTimestamp"`
}

// Snapshot returns a copy of the current identity.
func (id *Identity) Snapshot() Snapshot {
	id.mu.RLock()
	defer id.mu.RUnlock()
	return Snapshot{
		PartyID:           id.partyID,
		GroupID:           id.groupID,
		ModuleID:          id.moduleID,
		ModuleKey:         id.moduleKey,
		InstanceTimestamp: id.instanceTimestamp,
	}
}

// FieldStore is the subset of the local store used for the module key.
type FieldStore interface {
	GetField(ctx context.Context, name string) (string, error)
	SetFieldIfAbsent(ctx context.Context, name, value string) (string, error)
}

// EnsureModuleKey returns the persisted module key, generating and storing
// one from the current time in microseconds when none exists.
func EnsureModuleKey(ctx context.Context, fs FieldStore, now func() time.Time) (string, error) {
	key, err := fs.GetField(ctx, store.FieldModuleKey)
	if err == nil && key != "" {
		return key, nil
	}
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("read module key: %w", err)
	}

	key, err = fs.SetFieldIfAbsent(ctx, store.FieldModuleKey, strconv.FormatInt(now().UnixMicro(), 10))
	if err != nil {
		return "", fmt.Errorf("store module key: %w", err)
	}
	return key, nil
}
