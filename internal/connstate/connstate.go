// Package connstate tracks the session status reported by the upstream
// server through the communicator.
package connstate

import (
	"strconv"
	"sync"
)

// Status values reported by the communicator.
const (
	StatusFresh         = 0
	StatusConnecting    = 1
	StatusDisconnecting = 2
	StatusDisconnected  = 3
	StatusConnected     = 4
	StatusRegistered    = 5
	StatusUnregistered  = 6
	StatusError         = 7
	StatusBanned        = 8
)

var statusNames = map[int]string{
	StatusFresh:         "fresh",
	StatusConnecting:    "connecting",
	StatusDisconnecting: "disconnecting",
	StatusDisconnected:  "disconnected",
	StatusConnected:     "connected",
	StatusRegistered:    "registered",
	StatusUnregistered:  "unregistered",
	StatusError:         "error",
	StatusBanned:        "banned",
}

// StatusName returns a readable name for logs.
func StatusName(status int) string {
	if n, ok := statusNames[status]; ok {
		return n
	}
	return "status(" + strconv.Itoa(status) + ")"
}

// Tracker holds the current status and calls notify once per change.
type Tracker struct {
	mu     sync.RWMutex
	status int
	notify func(int)
}

// New creates a Tracker in StatusFresh. notify may be nil.
func New(notify func(int)) *Tracker {
	return &Tracker{status: StatusFresh, notify: notify}
}

// Update stores status and synchronously invokes notify if it differs from
// the current value. It reports whether a change happened.
func (t *Tracker) Update(status int) bool {
	t.mu.Lock()
	if status == t.status {
		t.mu.Unlock()
		return false
	}
	t.status = status
	t.mu.Unlock()

	if t.notify != nil {
		t.notify(status)
	}
	return true
}

// Status returns the current status.
func (t *Tracker) Status() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}
