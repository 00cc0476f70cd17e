package hub

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/weiawesome/wes-io-sync/internal/domain"
	"github.com/weiawesome/wes-io-sync/pkg/jwt"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	*httptest.Server
	hub    *Hub
	tokens *jwt.Manager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	tokens, err := jwt.NewManager(testSecret, time.Hour, "syncplay-test")
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	h := New(DefaultConfig())
	srv := httptest.NewServer(NewRouter(NewHandler(h, tokens)))
	t.Cleanup(func() {
		srv.Close()
		h.Close()
	})
	return &testServer{Server: srv, hub: h, tokens: tokens}
}

func (s *testServer) token(t *testing.T, user string) string {
	t.Helper()
	tok, _, err := s.tokens.GenerateAccessToken(user+"-id", user)
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}
	return tok
}

func (s *testServer) wsURL(room, role string) string {
	return "ws" + strings.TrimPrefix(s.URL, "http") + "/ws?room=" + room + "&role=" + role
}

func (s *testServer) dial(t *testing.T, user, room, role string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	header := http.Header{}
	if user != "" {
		header.Set("Authorization", "Bearer "+s.token(t, user))
	}
	conn, resp, err := websocket.DefaultDialer.Dial(s.wsURL(room, role), header)
	if conn != nil {
		t.Cleanup(func() { conn.Close() })
	}
	return conn, resp, err
}

func readEvent(t *testing.T, conn *websocket.Conn, event string) *domain.Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read %s: %v", event, err)
	}
	env, err := domain.ParseEnvelope(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if env.Event != event {
		t.Fatalf("Expected %s, got %s", event, env.Event)
	}
	return env
}

func writeEvent(t *testing.T, conn *websocket.Conn, event string, args ...interface{}) {
	t.Helper()
	env, err := domain.NewEnvelope(event, args...)
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	data, _ := env.Marshal()
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("write %s: %v", event, err)
	}
}

func TestUpgradeRejections(t *testing.T) {
	srv := newTestServer(t)
	host, _, err := srv.dial(t, "alice", "r1", "host")
	if err != nil {
		t.Fatalf("host dial: %v", err)
	}
	// The first frame is queued by admission, so the room is open now.
	readEvent(t, host, domain.EventUserConnected)

	tests := []struct {
		name   string
		user   string
		room   string
		role   string
		status int
	}{
		{"no token", "", "r1", "peer", http.StatusUnauthorized},
		{"missing room", "bob", "", "peer", http.StatusBadRequest},
		{"bad role", "bob", "r1", "admin", http.StatusBadRequest},
		{"second host", "bob", "r1", "host", http.StatusConflict},
		{"unknown room", "bob", "nope", "peer", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, resp, err := srv.dial(t, tt.user, tt.room, tt.role)
			if err == nil {
				t.Fatal("Expected dial to fail")
			}
			if resp == nil || resp.StatusCode != tt.status {
				t.Errorf("Expected status %d, got %v", tt.status, resp)
			}
		})
	}
}

func TestQueryTokenAccepted(t *testing.T) {
	srv := newTestServer(t)
	u := srv.wsURL("r1", "host") + "&access_token=" + srv.token(t, "alice")
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	var name string
	readEvent(t, conn, domain.EventUserConnected).Arg(0, &name)
	if name != "alice" {
		t.Errorf("Expected name from token claims, got %q", name)
	}
}

func TestWebsocketRoomFlow(t *testing.T) {
	srv := newTestServer(t)

	host, _, err := srv.dial(t, "alice", "r1", "host")
	if err != nil {
		t.Fatalf("host dial: %v", err)
	}
	readEvent(t, host, domain.EventUserConnected)
	readEvent(t, host, domain.EventReadyToPlay)

	peer, _, err := srv.dial(t, "bob", "r1", "peer")
	if err != nil {
		t.Fatalf("peer dial: %v", err)
	}
	readEvent(t, peer, domain.EventUserConnected)
	readEvent(t, peer, domain.EventUserConnected)
	readEvent(t, host, domain.EventUserConnected)

	writeEvent(t, peer, domain.EventCheckMedia, domain.Playlist{})
	env := readEvent(t, host, domain.EventCheckMedia)
	var peerID string
	env.Arg(1, &peerID)
	if peerID == "" {
		t.Fatal("Expected a peer id")
	}

	writeEvent(t, host, domain.EventRequireMedia, domain.Playlist{}, peerID)
	readEvent(t, host, domain.EventRequireMedia)
	readEvent(t, host, domain.EventReadyToPlay)
	readEvent(t, peer, domain.EventReadyToPlay)

	writeEvent(t, peer, domain.EventMessage, "hi")
	for _, c := range []*websocket.Conn{host, peer} {
		var user, text string
		env := readEvent(t, c, domain.EventReceive)
		env.Arg(0, &user)
		env.Arg(1, &text)
		if user != "bob" || text != "hi" {
			t.Errorf("Expected Receive(bob, hi), got (%s, %s)", user, text)
		}
	}

	host.Close()
	readEvent(t, peer, domain.EventRoomClosed)
}

func TestGetRoom(t *testing.T) {
	srv := newTestServer(t)
	host, _, err := srv.dial(t, "alice", "r1", "host")
	if err != nil {
		t.Fatalf("host dial: %v", err)
	}
	readEvent(t, host, domain.EventUserConnected)
	readEvent(t, host, domain.EventReadyToPlay)

	resp, err := http.Get(srv.URL + "/api/v1/rooms/r1")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	var body struct {
		Success bool     `json:"success"`
		Data    RoomInfo `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Success || body.Data.Host != "alice" || len(body.Data.Members) != 1 || !body.Data.Ready {
		t.Errorf("Unexpected room info %+v", body)
	}

	resp, err = http.Get(srv.URL + "/api/v1/rooms/missing")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", resp.StatusCode)
	}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}
}
