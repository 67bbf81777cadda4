package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"pingup/internal/app/chat"
	"pingup/internal/app/graph"
	"pingup/internal/app/memstore"
	"pingup/internal/app/push"
	"pingup/internal/app/user"
	"pingup/internal/configs"
	"pingup/internal/pkg/auth/jwt"
	"pingup/internal/pkg/errs"
)

const testSecret = "handler-test-secret"

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	*httptest.Server
	registry *push.Registry
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	s := memstore.New()
	registry := push.NewRegistry()
	deps := &AppDeps{
		Config:   &configs.AppConfig{Environment: "development", JWTSecret: testSecret},
		Registry: registry,
		Users:    user.NewService(s, nil),
		Chat:     chat.NewService(s, nil, registry, chat.Config{}),
		Graph:    graph.NewEngine(s, registry, graph.Config{}),
		Store:    s,
	}

	srv := httptest.NewServer(Router(ctx, deps))
	t.Cleanup(func() {
		registry.Shutdown()
		srv.Close()
	})
	return &testServer{Server: srv, registry: registry}
}

func token(t *testing.T, id string) string {
	t.Helper()
	tok, err := jwt.GenerateToken(&jwt.Payload{ID: id, Username: id, FullName: "User " + id}, testSecret, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	return tok
}

func (s *testServer) do(t *testing.T, method, path, userID string, body any) (int, envelope) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	r, err := http.NewRequest(method, s.URL+path, reader)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if body != nil {
		r.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		r.Header.Set("Authorization", "Bearer "+token(t, userID))
	}

	res, err := http.DefaultClient.Do(r)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer res.Body.Close()

	var env envelope
	if err := json.NewDecoder(res.Body).Decode(&env); err != nil {
		t.Fatalf("decode %s %s: %v", method, path, err)
	}
	return res.StatusCode, env
}

func (s *testServer) sync(t *testing.T, ids ...string) {
	t.Helper()
	for _, id := range ids {
		if status, env := s.do(t, http.MethodPost, "/api/user/sync", id, nil); status != http.StatusOK {
			t.Fatalf("sync %s: %d %+v", id, status, env)
		}
	}
}

func (s *testServer) dial(t *testing.T, userID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.URL, "http") + "/ws?token=" + token(t, userID)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev map[string]any
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	return ev
}

func waitOnline(t *testing.T, r *push.Registry, userID string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := r.Lookup(userID); ok {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("%s never came online", userID)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	status, env := s.do(t, http.MethodGet, "/health", "", nil)
	if status != http.StatusOK || env.Code != 0 {
		t.Fatalf("health = %d %+v", status, env)
	}
}

func TestAPIRequiresIdentity(t *testing.T) {
	s := newTestServer(t)

	status, env := s.do(t, http.MethodGet, "/api/user/network", "", nil)
	if status != http.StatusUnauthorized || env.Code != errs.ErrUnauthorized {
		t.Fatalf("anonymous network = %d %+v", status, env)
	}
}

func TestRelationshipEndpoints(t *testing.T) {
	s := newTestServer(t)
	s.sync(t, "alice", "bob")

	if status, env := s.do(t, http.MethodPost, "/api/user/follow", "alice", map[string]string{"id": "alice"}); status != http.StatusBadRequest || env.Code != errs.ErrSelfTarget {
		t.Fatalf("self follow = %d %+v", status, env)
	}

	if status, env := s.do(t, http.MethodPost, "/api/user/connect", "alice", map[string]string{"id": "bob"}); status != http.StatusOK {
		t.Fatalf("connect = %d %+v", status, env)
	}
	if status, env := s.do(t, http.MethodPost, "/api/user/connect", "alice", map[string]string{"id": "bob"}); status != http.StatusConflict || env.Code != errs.ErrAlreadyRequested {
		t.Fatalf("repeated connect = %d %+v", status, env)
	}

	_, env := s.do(t, http.MethodGet, "/api/user/status/alice", "bob", nil)
	var st struct {
		Status graph.PairState `json:"status"`
	}
	json.Unmarshal(env.Data, &st)
	if st.Status != graph.StateReceived {
		t.Fatalf("bob's status = %q, want received", st.Status)
	}

	if status, env := s.do(t, http.MethodPost, "/api/user/accept", "bob", map[string]string{"id": "alice"}); status != http.StatusOK {
		t.Fatalf("accept = %d %+v", status, env)
	}

	_, env = s.do(t, http.MethodGet, "/api/user/network", "alice", nil)
	var network graph.Network
	if err := json.Unmarshal(env.Data, &network); err != nil {
		t.Fatalf("decode network: %v", err)
	}
	if len(network.Connections) != 1 || network.Connections[0].ID != "bob" {
		t.Fatalf("network = %+v", network)
	}
}

func TestUnknownFieldRejected(t *testing.T) {
	s := newTestServer(t)
	s.sync(t, "alice")

	status, env := s.do(t, http.MethodPost, "/api/user/follow", "alice", map[string]string{"id": "bob", "extra": "x"})
	if status != http.StatusBadRequest || env.Code != errs.ErrInvalidJSONFormat {
		t.Fatalf("unknown field = %d %+v", status, env)
	}
}

func TestSendMessagePushesOverWebSocket(t *testing.T) {
	s := newTestServer(t)
	s.sync(t, "alice", "bob")

	conn := s.dial(t, "bob")
	if ev := readEvent(t, conn); ev["type"] != push.TypeConnection || ev["userId"] != "bob" {
		t.Fatalf("first frame = %v", ev)
	}
	waitOnline(t, s.registry, "bob")

	status, env := s.do(t, http.MethodPost, "/api/message/send", "alice", map[string]string{"to_user_id": "bob", "text": "hi bob"})
	if status != http.StatusOK {
		t.Fatalf("send = %d %+v", status, env)
	}

	ev := readEvent(t, conn)
	if ev["type"] != push.TypeNewMessage {
		t.Fatalf("pushed event = %v", ev)
	}
	msg, _ := ev["message"].(map[string]any)
	if msg["text"] != "hi bob" || msg["from_user_id"] != "alice" {
		t.Fatalf("pushed message = %v", msg)
	}
	if from, _ := msg["from_user"].(map[string]any); from["username"] != "alice" {
		t.Fatalf("sender profile missing: %v", msg)
	}

	_, env = s.do(t, http.MethodPost, "/api/message/get", "bob", map[string]string{"to_user_id": "alice"})
	var conv struct {
		Messages []chat.Message `json:"messages"`
	}
	json.Unmarshal(env.Data, &conv)
	if len(conv.Messages) != 1 || !conv.Messages[0].Seen {
		t.Fatalf("conversation = %+v", conv.Messages)
	}
}

func TestSendToOfflineUserSucceeds(t *testing.T) {
	s := newTestServer(t)
	s.sync(t, "alice", "bob")

	status, env := s.do(t, http.MethodPost, "/api/message/send", "alice", map[string]string{"to_user_id": "bob", "text": "later"})
	if status != http.StatusOK {
		t.Fatalf("send = %d %+v", status, env)
	}

	_, env = s.do(t, http.MethodGet, "/api/message/recent", "bob", nil)
	var recent struct {
		Messages []chat.MessageView `json:"messages"`
	}
	json.Unmarshal(env.Data, &recent)
	if len(recent.Messages) != 1 || recent.Messages[0].FromUser == nil {
		t.Fatalf("recent = %+v", recent.Messages)
	}
}

func TestSecondSubscriptionKicksFirst(t *testing.T) {
	s := newTestServer(t)
	s.sync(t, "bob")

	first := s.dial(t, "bob")
	readEvent(t, first)
	waitOnline(t, s.registry, "bob")

	second := s.dial(t, "bob")
	readEvent(t, second)

	first.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := first.ReadMessage()
	if !websocket.IsCloseError(err, push.WsCloseCodeSessionKicked) {
		t.Fatalf("first connection err = %v, want close %d", err, push.WsCloseCodeSessionKicked)
	}

	if s.registry.Len() != 1 {
		t.Fatalf("registry has %d sessions, want 1", s.registry.Len())
	}
}

func TestMediaDisabled(t *testing.T) {
	s := newTestServer(t)
	s.sync(t, "alice")

	status, env := s.do(t, http.MethodPost, "/api/media/presign", "alice", map[string]any{"file_name": "a.png", "mime_type": "image/png", "file_size": 10})
	if env.Code != errs.ErrMediaUnavailable {
		t.Fatalf("presign = %d %+v", status, env)
	}
}
