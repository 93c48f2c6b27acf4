package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"inkwell/api/internal/auth"
	"inkwell/api/internal/collab"
	"inkwell/api/internal/realtime"

	"github.com/gorilla/websocket"
)

// HTTPServer exposes the collaboration service: health probes, collab token
// minting and the websocket endpoint that feeds the realtime engine.
type HTTPServer struct {
	engine         *realtime.Engine
	sessions       collab.SessionStore
	collabSecret   []byte
	collabTokenTTL time.Duration
	sessionCookie  string
	corsOrigin     string
	pingDB         func(context.Context) error
	pingRedis      func(context.Context) error
	upgrader       websocket.Upgrader
}

type HTTPServerConfig struct {
	Engine         *realtime.Engine
	Sessions       collab.SessionStore
	CollabSecret   []byte
	CollabTokenTTL time.Duration
	SessionCookie  string
	CORSOrigin     string
	PingDB         func(context.Context) error
	PingRedis      func(context.Context) error
}

func NewHTTPServer(cfg HTTPServerConfig) *HTTPServer {
	return &HTTPServer{
		engine:         cfg.Engine,
		sessions:       cfg.Sessions,
		collabSecret:   cfg.CollabSecret,
		collabTokenTTL: cfg.CollabTokenTTL,
		sessionCookie:  cfg.SessionCookie,
		corsOrigin:     cfg.CORSOrigin,
		pingDB:         cfg.PingDB,
		pingRedis:      cfg.PingRedis,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (s *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()
	// The websocket route bypasses the logging middleware: the status
	// recorder does not implement http.Hijacker, which the upgrade needs.
	mux.HandleFunc("/ws", s.handleWebsocket)
	mux.Handle("/", s.withMiddleware(http.HandlerFunc(s.handle)))
	return mux
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		s.handleReady(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/collab/token" {
		s.handleCollabToken(w, r)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{}

	for name, ping := range map[string]func(context.Context) error{
		"database": s.pingDB,
		"redis":    s.pingRedis,
	} {
		if ping == nil {
			continue
		}
		if err := ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks[name] = map[string]any{"status": "error", "error": err.Error()}
		} else {
			checks[name] = map[string]any{"status": "ok"}
		}
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

// handleCollabToken exchanges a live session credential for a short-lived
// token scoped to realtime handshakes.
func (s *HTTPServer) handleCollabToken(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		if cookie, err := r.Cookie(s.sessionCookie); err == nil {
			token = cookie.Value
		}
	}
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required", nil)
		return
	}

	sess, err := s.sessions.LookupByToken(r.Context(), token)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "SESSION_LOOKUP_FAILED", "Session lookup failed", nil)
		return
	}
	if sess == nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required", nil)
		return
	}

	collabToken, err := auth.IssueToken(s.collabSecret, sess.UserID, s.collabTokenTTL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "TOKEN_ISSUE_FAILED", "Could not issue collab token", nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"token":     collabToken,
		"expiresAt": time.Now().Add(s.collabTokenTTL).Unix(),
	})
}

// handleWebsocket authenticates and authorizes the connection attempt, then
// upgrades and hands the connection to the engine. Rejections happen before
// the upgrade so a refused peer never sees document bytes.
func (s *HTTPServer) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	documentName := r.URL.Query().Get("document")

	// A single supplied token is tried on both non-cookie surfaces: first
	// as a collab token, then as a plain session token, so programmatic
	// clients do not have to declare which kind they hold.
	token := r.URL.Query().Get("token")
	bundle := collab.CredentialBundle{CollabToken: token, ClientToken: token}
	if cookie, err := r.Cookie(s.sessionCookie); err == nil {
		bundle.CookieToken = cookie.Value
	}

	sessionCtx, err := s.engine.Authenticate(r.Context(), documentName, bundle)
	if err != nil {
		status, code := handshakeRejection(err)
		log.Printf("app: websocket handshake rejected for %q: %v", documentName, err)
		writeError(w, status, code, err.Error(), nil)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("app: websocket upgrade failed: %v", err)
		return
	}

	s.engine.Join(context.Background(), sessionCtx, conn)
}

func handshakeRejection(err error) (status int, code string) {
	switch {
	case errors.Is(err, collab.ErrInvalidDocumentName):
		return http.StatusBadRequest, "INVALID_DOCUMENT_NAME"
	case errors.Is(err, collab.ErrAuthenticationRequired):
		return http.StatusUnauthorized, "UNAUTHORIZED"
	case errors.Is(err, collab.ErrAccessDenied):
		return http.StatusForbidden, "FORBIDDEN"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}
