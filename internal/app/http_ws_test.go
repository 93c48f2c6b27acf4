package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"inkwell/api/internal/auth"
	"inkwell/api/internal/crdt"
	"inkwell/api/internal/realtime"
	"inkwell/api/internal/session"
	"inkwell/api/internal/store"

	"github.com/gorilla/websocket"
)

func wsURL(server *httptest.Server, document, token string) string {
	url := strings.Replace(server.URL, "http://", "ws://", 1) + "/ws?document=" + document
	if token != "" {
		url += "&token=" + token
	}
	return url
}

func dialWS(t *testing.T, url string, header http.Header) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) realtime.Message {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read message: %v", err)
	}
	var msg realtime.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("decode message: %v", err)
	}
	return msg
}

func sessionStoreWith(userName, email string) *fakeSessions {
	return &fakeSessions{
		lookupFn: func(_ context.Context, token string) (*session.Session, error) {
			if token != "valid-token" {
				return nil, nil
			}
			return &session.Session{UserID: "u1", User: session.User{Name: userName, Email: email}}, nil
		},
	}
}

func TestWebsocketCookieSessionJoins(t *testing.T) {
	httpServer := newTestServer(serverDeps{sessions: sessionStoreWith("Test User", "test@example.com")})
	ts := httptest.NewServer(httpServer.Handler())
	defer ts.Close()

	header := http.Header{}
	header.Set("Cookie", "inkwell_session=valid-token")
	conn := dialWS(t, wsURL(ts, "org-123/page-456", ""), header)

	sync := readMessage(t, conn)
	if sync.Type != realtime.MessageSync {
		t.Fatalf("expected sync frame, got %q", sync.Type)
	}
	var found bool
	for _, presence := range sync.States {
		if presence.UserID == "u1" && presence.Name == "Test User" {
			found = true
			if presence.Color == "" {
				t.Error("presence should carry a derived color")
			}
		}
	}
	if !found {
		t.Fatalf("joiner's presence missing from sync: %+v", sync.States)
	}
}

func TestWebsocketCollabTokenJoins(t *testing.T) {
	httpServer := newTestServer(serverDeps{})
	ts := httptest.NewServer(httpServer.Handler())
	defer ts.Close()

	token, err := auth.IssueToken(testSecret, "user-7", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	conn := dialWS(t, wsURL(ts, "org-123/page-456", token), nil)

	sync := readMessage(t, conn)
	if sync.Type != realtime.MessageSync {
		t.Fatalf("expected sync frame, got %q", sync.Type)
	}
	// The collab token carries no profile, so presence falls back to the id.
	var found bool
	for _, presence := range sync.States {
		if presence.UserID == "user-7" && presence.Name == "user-7" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected user-7 presence, got %+v", sync.States)
	}
}

func TestWebsocketRejectsMalformedDocumentName(t *testing.T) {
	httpServer := newTestServer(serverDeps{sessions: sessionStoreWith("Test User", "")})
	ts := httptest.NewServer(httpServer.Handler())
	defer ts.Close()

	header := http.Header{}
	header.Set("Cookie", "inkwell_session=valid-token")
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts, "invalid", ""), header)
	if err == nil {
		t.Fatal("expected handshake to be refused")
	}
	if resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %+v", resp)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("rejection should be JSON like the rest of the API, got %q", ct)
	}
}

func TestWebsocketRejectsWithoutCredentials(t *testing.T) {
	httpServer := newTestServer(serverDeps{})
	ts := httptest.NewServer(httpServer.Handler())
	defer ts.Close()

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts, "org-123/page-456", ""), nil)
	if err == nil {
		t.Fatal("expected handshake to be refused")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %+v", resp)
	}
}

func TestWebsocketRejectsWithoutAccess(t *testing.T) {
	access := &fakeAccess{
		checkFn: func(_ context.Context, pageID, userID string) (store.AccessDecision, error) {
			return store.AccessDecision{HasAccess: false, PageID: pageID}, nil
		},
	}
	httpServer := newTestServer(serverDeps{sessions: sessionStoreWith("Test User", ""), access: access})
	ts := httptest.NewServer(httpServer.Handler())
	defer ts.Close()

	header := http.Header{}
	header.Set("Cookie", "inkwell_session=valid-token")
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts, "org-123/page-456", ""), header)
	if err == nil {
		t.Fatal("expected handshake to be refused")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %+v", resp)
	}
}

func TestWebsocketUpdateFlowsBetweenPeersAndPersists(t *testing.T) {
	states := newMemStates()
	httpServer := newTestServer(serverDeps{sessions: sessionStoreWith("Test User", ""), states: states})
	ts := httptest.NewServer(httpServer.Handler())
	defer ts.Close()

	header := http.Header{}
	header.Set("Cookie", "inkwell_session=valid-token")
	alice := dialWS(t, wsURL(ts, "org-123/page-456", ""), header)
	readMessage(t, alice) // sync

	bob := dialWS(t, wsURL(ts, "org-123/page-456", ""), header)
	readMessage(t, bob) // sync

	update, err := crdt.NewDocument().Set("title", json.RawMessage(`"hello"`), "u1")
	if err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	frame, _ := json.Marshal(realtime.Message{Type: realtime.MessageUpdate, Update: update})
	if err := alice.WriteMessage(websocket.TextMessage, frame); err != nil {
		t.Fatalf("write update: %v", err)
	}

	// Bob sees alice's join awareness and then the update; scan for it.
	var got realtime.Message
	for i := 0; i < 5; i++ {
		got = readMessage(t, bob)
		if got.Type == realtime.MessageUpdate {
			break
		}
	}
	if got.Type != realtime.MessageUpdate {
		t.Fatalf("update never reached the other peer, last frame %q", got.Type)
	}

	restored := crdt.NewDocument()
	if err := restored.ApplyUpdate(got.Update); err != nil {
		t.Fatalf("relayed update should decode: %v", err)
	}
	if value, _ := restored.Get("title"); string(value) != `"hello"` {
		t.Fatalf("unexpected relayed value: %s", value)
	}

	// The debounced cycle persists the full state, tagged with the editor.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		states.mu.Lock()
		_, saved := states.data["org-123/page-456"]
		states.mu.Unlock()
		if saved {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	states.mu.Lock()
	saved := states.data["org-123/page-456"]
	actor := states.actors["org-123/page-456"]
	states.mu.Unlock()
	if saved == nil {
		t.Fatal("document state was never persisted")
	}
	if actor != "u1" {
		t.Fatalf("persist should be tagged with the editing peer, got %q", actor)
	}
}

func TestWebsocketLoadFailureStillAdmitsPeer(t *testing.T) {
	states := newMemStates()
	states.loadErr = contextDeadlineError{}
	httpServer := newTestServer(serverDeps{sessions: sessionStoreWith("Test User", ""), states: states})
	ts := httptest.NewServer(httpServer.Handler())
	defer ts.Close()

	header := http.Header{}
	header.Set("Cookie", "inkwell_session=valid-token")
	conn := dialWS(t, wsURL(ts, "org-123/page-456", ""), header)

	sync := readMessage(t, conn)
	if sync.Type != realtime.MessageSync {
		t.Fatalf("expected sync frame despite load failure, got %q", sync.Type)
	}
}

type contextDeadlineError struct{}

func (contextDeadlineError) Error() string { return "storage unavailable" }
