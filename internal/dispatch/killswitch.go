package dispatch

import (
	"sync"
	"time"
)

// KillSwitchStatus is a point-in-time view of the kill-switch.
type KillSwitchStatus struct {
	Active      bool      `json:"active"`
	Reason      string    `json:"reason,omitempty"`
	ActivatedAt time.Time `json:"activated_at,omitempty"`
}

// killSwitch is the process-wide stop flag. It starts inactive and only
// changes through activate and deactivate.
type killSwitch struct {
	mu     sync.RWMutex
	status KillSwitchStatus
}

// activate sets the flag. A second activation keeps the first reason and time.
func (k *killSwitch) activate(reason string, now time.Time) KillSwitchStatus {
	k.mu.Lock()
	defer k.mu.Unlock()
	if !k.status.Active {
		k.status = KillSwitchStatus{Active: true, Reason: reason, ActivatedAt: now}
	}
	return k.status
}

func (k *killSwitch) deactivate() {
	k.mu.Lock()
	k.status = KillSwitchStatus{}
	k.mu.Unlock()
}

func (k *killSwitch) load() KillSwitchStatus {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.status
}
