package chat

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"modelbridge/internal/backend"
)

func newTestServer(t *testing.T, token string) (*SessionManager, *httptest.Server) {
	t.Helper()
	dispatcher := backend.NewDispatcher()
	dispatcher.Register(backend.NewMockAdapter(backend.SelfHosted).
		AddReply("Hello from the mock backend."))

	manager := NewSessionManager(dispatcher, backend.SelfHosted, []string{"What is 2+2?"}, token)
	srv := httptest.NewServer(manager.HTTPHandler())
	t.Cleanup(srv.Close)
	return manager, srv
}

func dial(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", path, err)
	}
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) WireEvent {
	t.Helper()
	var ev WireEvent
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	return ev
}

// readTurn collects text_delta events until message_done and returns
// the concatenated text plus the done event.
func readTurn(t *testing.T, conn *websocket.Conn) (string, WireEvent) {
	t.Helper()
	var text strings.Builder
	for {
		ev := readEvent(t, conn)
		switch ev.Type {
		case "text_delta":
			text.WriteString(ev.Text)
		case "message_done":
			return text.String(), ev
		case "error":
			t.Fatalf("unexpected error event: %s", ev.Message)
		}
	}
}

func TestChatTurnStreamsDeltas(t *testing.T) {
	_, srv := newTestServer(t, "")
	conn := dial(t, srv, "/chat/sessions/new")

	ready := readEvent(t, conn)
	if ready.Type != "session_ready" {
		t.Fatalf("expected session_ready, got %q", ready.Type)
	}
	if ready.SessionID == "" {
		t.Error("session_ready missing session id")
	}
	if len(ready.Backends) != 1 || ready.Backends[0].ID != backend.SelfHosted {
		t.Errorf("unexpected backends: %+v", ready.Backends)
	}
	if len(ready.Samples) != 1 {
		t.Errorf("expected 1 sample question, got %d", len(ready.Samples))
	}

	if err := conn.WriteJSON(ClientEvent{Type: "message", Text: "hi"}); err != nil {
		t.Fatalf("write message: %v", err)
	}

	text, done := readTurn(t, conn)
	if text != "Hello from the mock backend." {
		t.Errorf("unexpected turn text: %q", text)
	}
	if done.Backend != string(backend.SelfHosted) {
		t.Errorf("message_done backend = %q", done.Backend)
	}
}

func TestUnknownBackendBecomesAssistantTurn(t *testing.T) {
	manager, srv := newTestServer(t, "")
	conn := dial(t, srv, "/chat/sessions/new")
	readEvent(t, conn)

	if err := conn.WriteJSON(ClientEvent{Type: "message", Text: "hi", Backend: "bogus"}); err != nil {
		t.Fatalf("write message: %v", err)
	}

	text, _ := readTurn(t, conn)
	if !strings.Contains(text, "An error occurred") {
		t.Errorf("expected error text in assistant turn, got %q", text)
	}
	if !strings.Contains(text, "configuration") {
		t.Errorf("expected configuration stage in %q", text)
	}

	// The failed turn still counts as a complete exchange, so the next
	// message must be accepted.
	manager.mu.RLock()
	var sess *remoteSession
	for _, s := range manager.sessions {
		sess = s
	}
	manager.mu.RUnlock()
	if sess.Conversation.Len() != 2 {
		t.Fatalf("expected 2 history turns, got %d", sess.Conversation.Len())
	}

	if err := conn.WriteJSON(ClientEvent{Type: "message", Text: "again"}); err != nil {
		t.Fatalf("write second message: %v", err)
	}
	text, _ = readTurn(t, conn)
	if text != "Hello from the mock backend." {
		t.Errorf("second turn text = %q", text)
	}
}

func TestResumeReplaysHistoryAndCatchup(t *testing.T) {
	_, srv := newTestServer(t, "")
	conn := dial(t, srv, "/chat/sessions/new")
	ready := readEvent(t, conn)

	if err := conn.WriteJSON(ClientEvent{Type: "message", Text: "hi"}); err != nil {
		t.Fatalf("write message: %v", err)
	}
	readTurn(t, conn)
	conn.Close()

	resumed := dial(t, srv, "/chat/sessions/"+ready.SessionID+"?since=1")
	ev := readEvent(t, resumed)
	if ev.Type != "session_ready" {
		t.Fatalf("expected session_ready, got %q", ev.Type)
	}
	if len(ev.History) != 2 {
		t.Fatalf("expected 2 history items, got %d", len(ev.History))
	}
	if ev.History[0].Role != "user" || ev.History[1].Role != "assistant" {
		t.Errorf("history roles out of order: %+v", ev.History)
	}

	catchup := readEvent(t, resumed)
	if catchup.Type != "catchup" {
		t.Fatalf("expected catchup, got %q", catchup.Type)
	}
	for _, buffered := range catchup.Events {
		if buffered.Seq <= 1 {
			t.Errorf("catchup replayed seq %d at or below since", buffered.Seq)
		}
	}
}

func TestResetClearsHistory(t *testing.T) {
	manager, srv := newTestServer(t, "")
	conn := dial(t, srv, "/chat/sessions/new")
	readEvent(t, conn)

	if err := conn.WriteJSON(ClientEvent{Type: "message", Text: "hi"}); err != nil {
		t.Fatalf("write message: %v", err)
	}
	readTurn(t, conn)

	if err := conn.WriteJSON(ClientEvent{Type: "reset"}); err != nil {
		t.Fatalf("write reset: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		manager.mu.RLock()
		var n int
		for _, s := range manager.sessions {
			n = s.Conversation.Len()
		}
		manager.mu.RUnlock()
		if n == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("history not cleared after reset, %d turns remain", n)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestConcurrentStreamWritesStayFramed(t *testing.T) {
	manager, srv := newTestServer(t, "")
	conn := dial(t, srv, "/chat/sessions/new")
	readEvent(t, conn)

	manager.mu.RLock()
	var sess *remoteSession
	for _, s := range manager.sessions {
		sess = s
	}
	manager.mu.RUnlock()

	const writers, perWriter = 4, 25
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				manager.writeStreamEvent(sess, WireEvent{Type: "text_delta", Text: "x"})
			}
		}()
	}
	wg.Wait()

	// Every frame must arrive intact with a unique sequence number.
	seen := make(map[int64]bool)
	for i := 0; i < writers*perWriter; i++ {
		ev := readEvent(t, conn)
		if ev.Type != "text_delta" {
			t.Fatalf("event %d type = %q", i, ev.Type)
		}
		if seen[ev.Seq] {
			t.Fatalf("duplicate seq %d", ev.Seq)
		}
		seen[ev.Seq] = true
	}
}

func TestBearerAuth(t *testing.T) {
	_, srv := newTestServer(t, "sekrit")

	resp, err := http.Get(srv.URL + "/chat/sessions")
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/chat/sessions", nil)
	req.Header.Set("Authorization", "Bearer sekrit")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("list sessions with token: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 with token, got %d", resp.StatusCode)
	}
}
