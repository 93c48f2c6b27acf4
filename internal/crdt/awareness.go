package crdt

import (
	"encoding/json"
	"sync"
)

// Presence is one peer's ephemeral session metadata. It is broadcast to the
// other peers of the document and never persisted.
type Presence struct {
	UserID string          `json:"userId"`
	Name   string          `json:"name"`
	Color  string          `json:"color"`
	Cursor json.RawMessage `json:"cursor,omitempty"`
}

// Awareness tracks the presence state of every connected peer of one
// document, keyed by connection id.
type Awareness struct {
	mu     sync.RWMutex
	states map[string]Presence
}

func NewAwareness() *Awareness {
	return &Awareness{states: make(map[string]Presence)}
}

func (a *Awareness) Set(clientID string, p Presence) {
	a.mu.Lock()
	a.states[clientID] = p
	a.mu.Unlock()
}

func (a *Awareness) Remove(clientID string) {
	a.mu.Lock()
	delete(a.states, clientID)
	a.mu.Unlock()
}

// Snapshot returns a copy of all presence states, used to bring late
// joiners up to date.
func (a *Awareness) Snapshot() map[string]Presence {
	a.mu.RLock()
	defer a.mu.RUnlock()
	snapshot := make(map[string]Presence, len(a.states))
	for id, p := range a.states {
		snapshot[id] = p
	}
	return snapshot
}
