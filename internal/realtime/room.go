package realtime

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"inkwell/api/internal/collab"
	"inkwell/api/internal/crdt"
	"inkwell/api/internal/docaddr"
)

// Room is one live document session. It owns the shared document instance
// and the awareness state, tracks connected peers, and schedules persistence
// after bursts of edits settle.
type Room struct {
	name      string
	addr      docaddr.Address
	engine    *Engine
	doc       *crdt.Document
	awareness *crdt.Awareness

	mu        sync.Mutex
	clients   map[*Client]struct{}
	saveTimer *time.Timer
	lastActor string
	closed    bool

	unsubscribe func()
}

func newRoom(name string, addr docaddr.Address, engine *Engine, doc *crdt.Document) *Room {
	return &Room{
		name:      name,
		addr:      addr,
		engine:    engine,
		doc:       doc,
		awareness: crdt.NewAwareness(),
		clients:   make(map[*Client]struct{}),
	}
}

// join registers a peer, publishes its presence and sends it the full
// document state plus everyone's awareness. It reports false when the room
// was retired between the caller's lookup and this call; a peer attached to
// a retired room would edit a document nothing persists, so the caller must
// retry against a fresh instance.
func (r *Room) join(c *Client) bool {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return false
	}
	r.clients[c] = struct{}{}
	r.mu.Unlock()

	r.awareness.Set(c.id, c.session.Presence())

	state, err := r.doc.EncodeState()
	if err != nil {
		log.Printf("realtime: encode sync state for %s: %v", r.name, err)
		state = nil
	}
	if frame, err := encodeMessage(Message{Type: MessageSync, Update: state, States: r.awareness.Snapshot()}); err == nil {
		c.enqueue(frame)
	}

	r.broadcastAwareness(c)
	return true
}

// leave removes a peer. The last peer out flushes a final snapshot and
// retires the room.
func (r *Room) leave(c *Client) {
	r.mu.Lock()
	if _, ok := r.clients[c]; !ok {
		r.mu.Unlock()
		return
	}
	delete(r.clients, c)
	empty := len(r.clients) == 0
	if empty {
		r.closed = true
		if r.saveTimer != nil {
			r.saveTimer.Stop()
			r.saveTimer = nil
		}
	}
	actor := r.lastActor
	r.mu.Unlock()

	r.awareness.Remove(c.id)

	if empty {
		if r.unsubscribe != nil {
			r.unsubscribe()
		}
		if actor != "" {
			r.engine.hooks.StoreDocument(context.Background(), r.addr, r.doc, actor)
		}
		r.engine.dropRoom(r.name, r)
	} else {
		r.broadcastAwareness(nil)
	}

	r.engine.hooks.ConnectionClosed(context.Background(), r.addr, collab.Identity{UserID: c.session.UserID, Name: c.session.UserName})
}

// applyUpdate merges a peer's update into the shared document, relays it to
// the other peers (and the bridge), and schedules a persist cycle.
func (r *Room) applyUpdate(from *Client, update []byte) {
	if len(update) == 0 {
		return
	}
	if err := r.doc.ApplyUpdate(update); err != nil {
		log.Printf("realtime: bad update from client %s: %v", from.id, err)
		return
	}

	frame, err := encodeMessage(Message{Type: MessageUpdate, ClientID: from.id, Update: update})
	if err != nil {
		log.Printf("realtime: encode update frame: %v", err)
		return
	}
	r.broadcast(frame, from)

	if r.engine.bridge != nil {
		r.engine.bridge.Publish(context.Background(), r.name, update)
	}

	r.schedulePersist(from.session.UserID)
}

// applyRemoteUpdate merges an update relayed from another instance through
// the bridge. The originating instance owns persistence for that edit.
func (r *Room) applyRemoteUpdate(update []byte) {
	if err := r.doc.ApplyUpdate(update); err != nil {
		log.Printf("realtime: bad bridged update for %s: %v", r.name, err)
		return
	}
	frame, err := encodeMessage(Message{Type: MessageUpdate, Update: update})
	if err != nil {
		return
	}
	r.broadcast(frame, nil)
}

func (r *Room) updateCursor(from *Client, cursor json.RawMessage) {
	presence := from.session.Presence()
	presence.Cursor = cursor
	r.awareness.Set(from.id, presence)
	r.broadcastAwareness(from)
}

// broadcastAwareness sends the full awareness snapshot to every peer except
// the one that caused the change.
func (r *Room) broadcastAwareness(except *Client) {
	frame, err := encodeMessage(Message{Type: MessageAwareness, States: r.awareness.Snapshot()})
	if err != nil {
		return
	}
	r.broadcast(frame, except)
}

func (r *Room) broadcast(frame []byte, except *Client) {
	r.mu.Lock()
	targets := make([]*Client, 0, len(r.clients))
	for c := range r.clients {
		if c != except {
			targets = append(targets, c)
		}
	}
	r.mu.Unlock()

	for _, c := range targets {
		c.enqueue(frame)
	}
}

// schedulePersist arms (or re-arms) the debounced save. The actor of the
// most recent edit tags the eventual write.
func (r *Room) schedulePersist(actorID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.lastActor = actorID
	if r.saveTimer != nil {
		r.saveTimer.Reset(r.engine.persistDebounce)
		return
	}
	r.saveTimer = time.AfterFunc(r.engine.persistDebounce, r.persist)
}

func (r *Room) persist() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	actor := r.lastActor
	r.mu.Unlock()

	r.engine.hooks.StoreDocument(context.Background(), r.addr, r.doc, actor)
}

func (r *Room) peerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}
