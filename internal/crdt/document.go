// Package crdt implements the shared document model used by live
// collaboration sessions: a state-based last-writer-wins map plus the
// ephemeral awareness (presence) state broadcast alongside it.
//
// Updates commute and re-apply harmlessly, so peers converge regardless of
// arrival order and the transport never has to sequence them.
package crdt

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Entry is a single field of the document together with the metadata that
// orders concurrent writes: a Lamport clock and the writing actor's id as a
// tiebreak.
type Entry struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
	Clock uint64          `json:"clock"`
	Actor string          `json:"actor"`
}

// Update is the wire and storage form of a batch of entries. A full document
// state is itself just an update containing every entry, which is what makes
// load-time merging and full-snapshot persistence the same operation.
type Update struct {
	Entries []Entry `json:"entries"`
}

// Document is one in-memory collaborative document, shared by every peer of
// a live session. All mutation goes through update application.
type Document struct {
	mu      sync.RWMutex
	entries map[string]Entry
	clock   uint64
}

func NewDocument() *Document {
	return &Document{entries: make(map[string]Entry)}
}

// ApplyUpdate merges an encoded update into the document. Later clocks win;
// equal clocks fall back to the lexically larger actor id so that every
// replica picks the same winner.
func (d *Document) ApplyUpdate(data []byte) error {
	var update Update
	if err := json.Unmarshal(data, &update); err != nil {
		return fmt.Errorf("decode update: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, incoming := range update.Entries {
		if incoming.Key == "" {
			continue
		}
		if incoming.Clock > d.clock {
			d.clock = incoming.Clock
		}
		current, exists := d.entries[incoming.Key]
		if !exists || wins(incoming, current) {
			d.entries[incoming.Key] = incoming
		}
	}
	return nil
}

// Set records a local write and returns it encoded as an update, ready to
// broadcast to peers.
func (d *Document) Set(key string, value json.RawMessage, actor string) ([]byte, error) {
	d.mu.Lock()
	d.clock++
	entry := Entry{Key: key, Value: value, Clock: d.clock, Actor: actor}
	d.entries[key] = entry
	d.mu.Unlock()

	data, err := json.Marshal(Update{Entries: []Entry{entry}})
	if err != nil {
		return nil, fmt.Errorf("encode update: %w", err)
	}
	return data, nil
}

// EncodeState serializes the entire current document as one update blob.
func (d *Document) EncodeState() ([]byte, error) {
	d.mu.RLock()
	entries := make([]Entry, 0, len(d.entries))
	for _, entry := range d.entries {
		entries = append(entries, entry)
	}
	d.mu.RUnlock()

	data, err := json.Marshal(Update{Entries: entries})
	if err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}
	return data, nil
}

// Get returns the current value for a key, if any.
func (d *Document) Get(key string) (json.RawMessage, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	entry, ok := d.entries[key]
	if !ok {
		return nil, false
	}
	return entry.Value, true
}

// Len reports the number of live entries.
func (d *Document) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries)
}

func wins(incoming, current Entry) bool {
	if incoming.Clock != current.Clock {
		return incoming.Clock > current.Clock
	}
	return incoming.Actor > current.Actor
}
