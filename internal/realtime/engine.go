package realtime

import (
	"context"
	"log"
	"sync"
	"time"

	"inkwell/api/internal/collab"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Engine multiplexes live document sessions. It is constructed explicitly
// and owned by whoever wires the process together; nothing in this package
// keeps shared state at module level.
type Engine struct {
	hooks           collab.Hooks
	persistDebounce time.Duration
	bridge          *Bridge

	mu    sync.RWMutex
	rooms map[string]*Room
}

type EngineConfig struct {
	Hooks           collab.Hooks
	PersistDebounce time.Duration
	// Bridge fans updates out across instances. May be nil.
	Bridge *Bridge
}

func NewEngine(cfg EngineConfig) *Engine {
	debounce := cfg.PersistDebounce
	if debounce == 0 {
		debounce = 2 * time.Second
	}
	return &Engine{
		hooks:           cfg.Hooks,
		persistDebounce: debounce,
		bridge:          cfg.Bridge,
		rooms:           make(map[string]*Room),
	}
}

// Authenticate gates a connection attempt. It runs before the websocket
// upgrade so a rejected peer never receives document bytes.
func (e *Engine) Authenticate(ctx context.Context, documentName string, bundle collab.CredentialBundle) (*collab.SessionContext, error) {
	return e.hooks.Authenticate(ctx, documentName, bundle)
}

// Join attaches an upgraded connection to its document's room, loading the
// document if this is the first peer, and starts the connection's pumps.
// A room can be retired by its last peer leaving between the map lookup and
// join, so Join retries until it lands in a live room.
func (e *Engine) Join(ctx context.Context, session *collab.SessionContext, conn *websocket.Conn) {
	for {
		room := e.getOrCreateRoom(ctx, session)
		client := newClient(uuid.NewString(), *session, room, conn)
		if room.join(client) {
			go client.writePump()
			go client.readPump()
			return
		}
	}
}

func (e *Engine) getOrCreateRoom(ctx context.Context, session *collab.SessionContext) *Room {
	name := session.Address().String()

	e.mu.RLock()
	room, exists := e.rooms[name]
	e.mu.RUnlock()
	if exists {
		return room
	}

	// Load outside the lock; a racing second join falls back to the
	// instance that won.
	doc, outcome := e.hooks.LoadDocument(ctx, session.Address())
	if outcome == collab.LoadFailed {
		log.Printf("realtime: document %s starting from empty state after load failure", name)
	}

	e.mu.Lock()
	if existing, ok := e.rooms[name]; ok {
		e.mu.Unlock()
		return existing
	}
	room = newRoom(name, session.Address(), e, doc)
	e.rooms[name] = room
	e.mu.Unlock()

	if e.bridge != nil {
		room.unsubscribe = e.bridge.Subscribe(name, room.applyRemoteUpdate)
	}
	return room
}

// dropRoom retires an empty room. The room pointer is compared so a room
// recreated under the same name is left alone.
func (e *Engine) dropRoom(name string, room *Room) {
	e.mu.Lock()
	if current, ok := e.rooms[name]; ok && current == room {
		delete(e.rooms, name)
	}
	e.mu.Unlock()
}

// RoomCount reports the number of live document sessions.
func (e *Engine) RoomCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.rooms)
}
