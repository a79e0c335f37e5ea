// Package swarm relays a followed leader's MAVLink traffic to the local
// flight controller.
package swarm

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/HefnySco/droneengage-mavlink/internal/logging"
	"github.com/HefnySco/droneengage-mavlink/internal/protocol"
)

// ErrNoFrame is returned for leader traffic with no binary tail.
var ErrNoFrame = errors.New("swarm: leader message carries no frame")

// FrameSink accepts raw MAVLink frames bound for the flight controller.
type FrameSink interface {
	WriteFrame(frame []byte) error
}

// Follower tracks the leader this unit follows.
type Follower struct {
	mu     sync.RWMutex
	leader string

	sink    FrameSink
	logger  *logging.Logger
	relayed atomic.Uint64
	dropped atomic.Uint64
}

// NewFollower creates a Follower that follows nobody.
func NewFollower(sink FrameSink, logger *logging.Logger) *Follower {
	return &Follower{sink: sink, logger: logger}
}

// Follow starts accepting traffic from leader.
func (f *Follower) Follow(leader string) {
	f.mu.Lock()
	prev := f.leader
	f.leader = leader
	f.mu.Unlock()
	if prev != leader {
		f.logger.Infof("[swarm] following %q (was %q)", leader, prev)
	}
}

// Unfollow stops following and returns the previous leader.
func (f *Follower) Unfollow() string {
	f.mu.Lock()
	prev := f.leader
	f.leader = ""
	f.mu.Unlock()
	if prev != "" {
		f.logger.Infof("[swarm] unfollowed %q", prev)
	}
	return prev
}

// Leader returns the party being followed, empty when none.
func (f *Follower) Leader() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.leader
}

// HandleLeaderTraffic forwards the frame in raw[:length] when sender is
// the current leader. Traffic from anyone else is counted and dropped.
func (f *Follower) HandleLeaderTraffic(sender string, raw []byte, length int) error {
	leader := f.Leader()
	if leader == "" || sender != leader {
		f.dropped.Add(1)
		f.logger.Debugf("[swarm] dropped traffic from %q, leader %q", sender, leader)
		return nil
	}

	if length < 0 || length > len(raw) {
		length = len(raw)
	}
	frame, err := protocol.Tail(raw[:length])
	if err != nil {
		return fmt.Errorf("leader traffic from %q: %w", sender, err)
	}
	if len(frame) == 0 {
		return ErrNoFrame
	}

	if err := f.sink.WriteFrame(frame); err != nil {
		return fmt.Errorf("relay leader frame: %w", err)
	}
	f.relayed.Add(1)
	return nil
}

// Relayed is the number of frames handed to the sink.
func (f *Follower) Relayed() uint64 { return f.relayed.Load() }

// Dropped is the number of messages ignored because the sender was not
// the leader.
func (f *Follower) Dropped() uint64 { return f.dropped.Load() }
