package push

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/net/websocket"

	"github.com/crewsite/notifications/internal/notifications/domain"
)

type fakeAuthorizer struct {
	userID  string
	authErr error
}

func (f fakeAuthorizer) Authenticate(_ context.Context, _ string) (string, error) {
	if f.authErr != nil {
		return "", f.authErr
	}
	return f.userID, nil
}

func dialHub(t *testing.T, srv *httptest.Server, path string, header http.Header) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	cfg, err := websocket.NewConfig(wsURL, srv.URL)
	if err != nil {
		t.Fatalf("websocket config: %v", err)
	}
	if header != nil {
		cfg.Header = header
	}
	conn, err := websocket.DialConfig(cfg)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	t.Cleanup(func() {
		_ = conn.Close()
	})
	return conn
}

func waitForConnection(t *testing.T, hub *Hub, userID string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.Connected(userID) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("user %s never attached", userID)
}

func readHubFrame(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()
	_ = conn.SetDeadline(time.Now().Add(2 * time.Second))
	var got Frame
	if err := json.NewDecoder(conn).Decode(&got); err != nil {
		t.Fatalf("decode server frame: %v", err)
	}
	return got
}

func hubTestNotification(t *testing.T, userID string) domain.Notification {
	t.Helper()
	notification, err := domain.NewNotification(domain.NewNotificationInput{
		UserID:   userID,
		Type:     domain.TypeMaterialLowStock,
		Category: domain.CategoryMaterials,
		Priority: domain.PriorityHigh,
		Content:  domain.Content{Title: "Rebar running low", Body: "Below threshold at site A."},
	}, time.Date(2026, 8, 13, 9, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("build notification: %v", err)
	}
	notification.ID = 7
	return notification
}

func TestSendNotificationReachesEverySocket(t *testing.T) {
	hub := NewInsecureHub()
	srv := httptest.NewServer(hub.Handler())
	t.Cleanup(srv.Close)

	first := dialHub(t, srv, "/?user_id=user-1", nil)
	second := dialHub(t, srv, "/?user_id=user-1", nil)
	waitForConnection(t, hub, "user-1")

	notification := hubTestNotification(t, "user-1")
	if err := hub.SendNotification(context.Background(), "user-1", notification); err != nil {
		t.Fatalf("send notification: %v", err)
	}

	for _, conn := range []*websocket.Conn{first, second} {
		frame := readHubFrame(t, conn)
		if frame.Type != "notification.new" {
			t.Fatalf("frame type = %q, want %q", frame.Type, "notification.new")
		}
		var payload notificationPayload
		if err := json.Unmarshal(frame.Payload, &payload); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		if payload.ID != 7 || payload.Title != "Rebar running low" {
			t.Fatalf("unexpected payload: %+v", payload)
		}
		if payload.Priority != "high" {
			t.Fatalf("priority = %q, want %q", payload.Priority, "high")
		}
	}
}

func TestSendNotificationToOfflineUserFails(t *testing.T) {
	t.Parallel()

	hub := NewInsecureHub()
	notification := hubTestNotification(t, "user-offline")
	err := hub.SendNotification(context.Background(), "user-offline", notification)
	if !errors.Is(err, ErrNoActiveConnection) {
		t.Fatalf("expected ErrNoActiveConnection, got %v", err)
	}
}

func TestSendUnreadCountAndReadEventsAreBestEffort(t *testing.T) {
	hub := NewInsecureHub()
	srv := httptest.NewServer(hub.Handler())
	t.Cleanup(srv.Close)

	if err := hub.SendUnreadCount(context.Background(), "user-offline", 3); err != nil {
		t.Fatalf("offline unread count must be silent, got %v", err)
	}
	if err := hub.SendReadEvent(context.Background(), "user-offline", []int64{1, 2}); err != nil {
		t.Fatalf("offline read event must be silent, got %v", err)
	}

	conn := dialHub(t, srv, "/?user_id=user-1", nil)
	waitForConnection(t, hub, "user-1")

	if err := hub.SendUnreadCount(context.Background(), "user-1", 4); err != nil {
		t.Fatalf("send unread count: %v", err)
	}
	frame := readHubFrame(t, conn)
	if frame.Type != "notification.unread_count" {
		t.Fatalf("frame type = %q, want %q", frame.Type, "notification.unread_count")
	}
	var payload unreadCountPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Count != 4 {
		t.Fatalf("count = %d, want 4", payload.Count)
	}
}

func TestDetachOnDisconnect(t *testing.T) {
	hub := NewInsecureHub()
	srv := httptest.NewServer(hub.Handler())
	t.Cleanup(srv.Close)

	conn := dialHub(t, srv, "/?user_id=user-1", nil)
	waitForConnection(t, hub, "user-1")
	_ = conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if !hub.Connected("user-1") {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("user remained attached after disconnect")
}

func TestHandlerRequiresAuthentication(t *testing.T) {
	t.Parallel()

	hub := NewHub(fakeAuthorizer{authErr: errors.New("bad token")})
	srv := httptest.NewServer(hub.Handler())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/?user_id=user-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}
}

func TestHandlerResolvesUserFromBearerToken(t *testing.T) {
	hub := NewHub(fakeAuthorizer{userID: "user-77"})
	srv := httptest.NewServer(hub.Handler())
	t.Cleanup(srv.Close)

	header := make(http.Header)
	header.Set("Authorization", "Bearer token-abc")
	dialHub(t, srv, "/", header)
	waitForConnection(t, hub, "user-77")
}

type deadlineRecordingConn struct {
	bytes.Buffer
	deadlines []time.Time
}

func (c *deadlineRecordingConn) SetWriteDeadline(t time.Time) error {
	c.deadlines = append(c.deadlines, t)
	return nil
}

func TestWriteFrameSetsWriteDeadline(t *testing.T) {
	t.Parallel()

	conn := &deadlineRecordingConn{}
	p := newPeer(conn)

	before := time.Now()
	if err := p.writeFrame(Frame{Type: "pong"}); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	if len(conn.deadlines) != 1 {
		t.Fatalf("deadlines set = %d, want 1", len(conn.deadlines))
	}
	if !conn.deadlines[0].After(before) {
		t.Fatalf("deadline %v is not in the future", conn.deadlines[0])
	}
	if !strings.Contains(conn.String(), `"pong"`) {
		t.Fatalf("frame not written: %q", conn.String())
	}
}

func TestPingGetsPong(t *testing.T) {
	hub := NewInsecureHub()
	srv := httptest.NewServer(hub.Handler())
	t.Cleanup(srv.Close)

	conn := dialHub(t, srv, "/?user_id=user-1", nil)
	waitForConnection(t, hub, "user-1")

	if err := json.NewEncoder(conn).Encode(Frame{Type: "ping"}); err != nil {
		t.Fatalf("encode ping: %v", err)
	}
	frame := readHubFrame(t, conn)
	if frame.Type != "pong" {
		t.Fatalf("frame type = %q, want %q", frame.Type, "pong")
	}
}
