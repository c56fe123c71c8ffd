// Package chat exposes conversation sessions over WebSocket. Each
// connected client owns one session; turns stream back as text_delta
// events and the backend selector rides along on every message event.
package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"modelbridge/internal/backend"
	"modelbridge/internal/session"
)

// remoteSession tracks one WebSocket chat session.
type remoteSession struct {
	ID           string
	Conversation *session.Session
	EventBuf     []WireEvent
	NextSeq      int64
	LastActiveAt time.Time

	mu           sync.Mutex
	conn         *websocket.Conn
	cancelStream context.CancelFunc

	// writeMu serializes writes to conn; the websocket library allows
	// only one concurrent writer.
	writeMu sync.Mutex
}

// SessionManager manages active remote chat sessions.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*remoteSession

	dispatcher     *backend.Dispatcher
	defaultBackend backend.ID
	samples        []string
	token          string
}

// NewSessionManager creates a session manager routing turns through the
// supplied dispatcher. token, when non-empty, is required as a bearer
// token on every request.
func NewSessionManager(dispatcher *backend.Dispatcher, defaultBackend backend.ID, samples []string, token string) *SessionManager {
	return &SessionManager{
		sessions:       make(map[string]*remoteSession),
		dispatcher:     dispatcher,
		defaultBackend: defaultBackend,
		samples:        samples,
		token:          token,
	}
}

// HTTPHandler returns an http.Handler for the chat endpoints.
func (m *SessionManager) HTTPHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/chat/sessions", m.auth(m.handleListSessions))
	mux.HandleFunc("/chat/sessions/new", m.auth(m.handleNewSession))
	mux.HandleFunc("/chat/sessions/", m.auth(m.handleResumeSession))
	return mux
}

// StartGC starts background GC for inactive sessions.
func (m *SessionManager) StartGC(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.gcSessions()
		case <-ctx.Done():
			return
		}
	}
}

func (m *SessionManager) gcSessions() {
	cutoff := time.Now().Add(-30 * time.Minute)

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, sess := range m.sessions {
		sess.mu.Lock()
		inactive := sess.LastActiveAt.Before(cutoff)
		streaming := sess.cancelStream != nil
		connected := sess.conn != nil
		sess.mu.Unlock()
		if inactive && !streaming && !connected {
			delete(m.sessions, id)
			slog.Info("collected inactive session", "session", id)
		}
	}
}

func (m *SessionManager) handleListSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	items := make([]map[string]any, 0, len(m.sessions))
	for _, sess := range m.sessions {
		sess.mu.Lock()
		items = append(items, map[string]any{
			"id":          sess.ID,
			"turns":       sess.Conversation.Len(),
			"last_active": sess.LastActiveAt.Format(time.RFC3339Nano),
		})
		sess.mu.Unlock()
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": items})
}

func (m *SessionManager) handleNewSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	conn, err := m.upgrade(w, r)
	if err != nil {
		return
	}

	sess := m.newSession()
	m.attachConn(sess, conn)
	m.sendSessionReady(sess, nil)
	m.runSessionLoop(sess)
}

func (m *SessionManager) handleResumeSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/chat/sessions/")
	id = strings.Trim(id, "/")
	if id == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	m.mu.RLock()
	sess := m.sessions[id]
	m.mu.RUnlock()
	if sess == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	conn, err := m.upgrade(w, r)
	if err != nil {
		return
	}

	m.attachConn(sess, conn)

	since := int64(0)
	if sinceStr := r.URL.Query().Get("since"); sinceStr != "" {
		if parsed, err := strconv.ParseInt(sinceStr, 10, 64); err == nil {
			since = parsed
		}
	}

	m.sendSessionReady(sess, func() *WireEvent {
		if since <= 0 {
			return nil
		}
		sess.mu.Lock()
		defer sess.mu.Unlock()
		var events []WireEvent
		for _, evt := range sess.EventBuf {
			if evt.Seq > since {
				events = append(events, evt)
			}
		}
		if len(events) == 0 {
			return nil
		}
		return &WireEvent{Seq: 0, Type: "catchup", Events: events}
	})

	m.runSessionLoop(sess)
}

func (m *SessionManager) runSessionLoop(sess *remoteSession) {
	sess.mu.Lock()
	conn := sess.conn
	sess.mu.Unlock()

	readCh := make(chan ClientEvent)
	go func() {
		defer close(readCh)
		for {
			var ev ClientEvent
			if err := conn.ReadJSON(&ev); err != nil {
				return
			}
			readCh <- ev
		}
	}()

	for ev := range readCh {
		sess.mu.Lock()
		sess.LastActiveAt = time.Now()
		sess.mu.Unlock()

		switch ev.Type {
		case "message":
			if strings.TrimSpace(ev.Text) == "" {
				continue
			}
			go m.startStream(sess, ev.Text, ev.Backend)
		case "interrupt":
			m.interruptStream(sess)
		case "reset":
			m.resetSession(sess)
		}
	}

	m.detachConn(sess, conn)
}

func (m *SessionManager) interruptStream(sess *remoteSession) {
	sess.mu.Lock()
	cancel := sess.cancelStream
	sess.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (m *SessionManager) resetSession(sess *remoteSession) {
	m.interruptStream(sess)
	sess.Conversation.Reset()
	sess.mu.Lock()
	sess.EventBuf = nil
	sess.NextSeq = 1
	sess.mu.Unlock()
}

// startStream runs one conversation turn. Errors never kill the
// session: they become the assistant turn so the history keeps
// alternating and the client can send the next message.
func (m *SessionManager) startStream(sess *remoteSession, text, backendName string) {
	sess.mu.Lock()
	if sess.cancelStream != nil {
		sess.mu.Unlock()
		m.writeError(sess, "a turn is already in progress")
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	sess.cancelStream = cancel
	sess.mu.Unlock()

	defer func() {
		cancel()
		sess.mu.Lock()
		sess.cancelStream = nil
		sess.mu.Unlock()
	}()

	id := m.defaultBackend
	if backendName != "" {
		id = backend.ID(backendName)
	}

	if err := sess.Conversation.AppendUser(text); err != nil {
		m.writeError(sess, err.Error())
		return
	}

	stream, err := m.dispatcher.Send(ctx, id, sess.Conversation.History())
	if err != nil {
		slog.Warn("dispatch failed", "session", sess.ID, "backend", id, "err", err)
		msg := sess.Conversation.FailTurn(err)
		m.writeStreamEvent(sess, WireEvent{Type: "text_delta", Text: msg.Content})
		m.writeStreamEvent(sess, WireEvent{Type: "message_done", Backend: string(id)})
		return
	}
	defer stream.Close()

	_, consumeErr := sess.Conversation.ConsumeAssistant(stream, func(frag backend.Fragment) {
		if frag.Text != "" {
			m.writeStreamEvent(sess, WireEvent{Type: "text_delta", Text: frag.Text})
		}
	})
	if consumeErr != nil {
		slog.Warn("turn failed mid-stream", "session", sess.ID, "backend", id, "err", consumeErr)
	}
	m.writeStreamEvent(sess, WireEvent{Type: "message_done", Backend: string(id)})
}

func (m *SessionManager) newSession() *remoteSession {
	sess := &remoteSession{
		ID:           uuid.NewString(),
		Conversation: session.New(),
		NextSeq:      1,
		LastActiveAt: time.Now(),
	}

	m.mu.Lock()
	m.sessions[sess.ID] = sess
	m.mu.Unlock()
	return sess
}

func (m *SessionManager) attachConn(sess *remoteSession, conn *websocket.Conn) {
	sess.mu.Lock()
	sess.conn = conn
	sess.LastActiveAt = time.Now()
	sess.mu.Unlock()
}

// detachConn releases conn and clears it from the session only if the
// session has not already been re-attached to a newer connection.
func (m *SessionManager) detachConn(sess *remoteSession, conn *websocket.Conn) {
	_ = conn.Close()
	sess.mu.Lock()
	if sess.conn == conn {
		sess.conn = nil
	}
	sess.mu.Unlock()
}

func (m *SessionManager) sendSessionReady(sess *remoteSession, catchup func() *WireEvent) {
	history := historyItems(sess.Conversation.History())

	sess.mu.Lock()
	conn := sess.conn
	sess.mu.Unlock()

	sess.writeMu.Lock()
	defer sess.writeMu.Unlock()
	_ = writeEvent(conn, WireEvent{
		Seq:       0,
		Type:      "session_ready",
		SessionID: sess.ID,
		Backends:  m.dispatcher.Backends(),
		Samples:   m.samples,
		History:   history,
	})
	if catchup != nil {
		if ev := catchup(); ev != nil {
			_ = writeEvent(conn, *ev)
		}
	}
}

func (m *SessionManager) writeStreamEvent(sess *remoteSession, ev WireEvent) {
	sess.mu.Lock()
	seq := sess.NextSeq
	sess.NextSeq++
	ev.Seq = seq
	sess.EventBuf = append(sess.EventBuf, ev)
	conn := sess.conn
	sess.mu.Unlock()

	if conn != nil {
		sess.writeMu.Lock()
		_ = writeEvent(conn, ev)
		sess.writeMu.Unlock()
	}
}

func (m *SessionManager) writeError(sess *remoteSession, message string) {
	m.writeStreamEvent(sess, WireEvent{Type: "error", Message: message})
}

func (m *SessionManager) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !m.authorized(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (m *SessionManager) authorized(r *http.Request) bool {
	token := strings.TrimSpace(m.token)
	if token == "" {
		return true
	}
	value := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(value, prefix) {
		return false
	}
	return strings.TrimSpace(strings.TrimPrefix(value, prefix)) == token
}

func (m *SessionManager) upgrade(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	return upgrader.Upgrade(w, r, nil)
}

func writeEvent(conn *websocket.Conn, e WireEvent) error {
	if conn == nil {
		return nil
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
