// Package push delivers realtime notification events over websockets.
package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/websocket"

	"github.com/crewsite/notifications/internal/notifications/domain"
	"github.com/crewsite/notifications/internal/platform/timeouts"
)

// ErrNoActiveConnection is returned when a user has no open socket.
var ErrNoActiveConnection = errors.New("push: user has no active connection")

const (
	tokenCookieName        = "cs_token"
	maxDecodeErrorsPerConn = 5
)

// Authorizer resolves an access token into a user id.
type Authorizer interface {
	Authenticate(ctx context.Context, accessToken string) (string, error)
}

// Frame is one websocket event envelope.
type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type notificationPayload struct {
	ID        int64             `json:"id"`
	Type      string            `json:"type"`
	Category  string            `json:"category"`
	Priority  string            `json:"priority"`
	Title     string            `json:"title"`
	Body      string            `json:"body,omitempty"`
	ActionURL string            `json:"action_url,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt string            `json:"created_at"`
}

type readPayload struct {
	NotificationIDs []int64 `json:"notification_ids"`
}

type unreadCountPayload struct {
	Count int `json:"count"`
}

// frameConn is the slice of a websocket connection the peer writes
// frames through.
type frameConn interface {
	io.Writer
	SetWriteDeadline(t time.Time) error
}

type peer struct {
	mu      sync.Mutex
	conn    frameConn
	encoder *json.Encoder
}

func newPeer(conn frameConn) *peer {
	return &peer{conn: conn, encoder: json.NewEncoder(conn)}
}

// writeFrame encodes one frame under a write deadline. A socket whose
// client stopped reading fails the write instead of blocking the hub.
func (p *peer) writeFrame(frame Frame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.conn.SetWriteDeadline(time.Now().Add(timeouts.ChannelSend)); err != nil {
		return err
	}
	return p.encoder.Encode(frame)
}

// Hub tracks open sockets per user and pushes notification events to
// every socket a user holds.
type Hub struct {
	mu    sync.Mutex
	users map[string]map[*peer]struct{}

	authorizer  Authorizer
	requireAuth bool
}

// NewHub builds a hub with enforced socket identity checks.
func NewHub(authorizer Authorizer) *Hub {
	return &Hub{
		users:       make(map[string]map[*peer]struct{}),
		authorizer:  authorizer,
		requireAuth: authorizer != nil,
	}
}

// NewInsecureHub builds a hub that trusts the user id query parameter.
// Intended for tests and offline paths.
func NewInsecureHub() *Hub {
	return &Hub{users: make(map[string]map[*peer]struct{})}
}

// Handler serves the websocket endpoint.
func (h *Hub) Handler() http.Handler {
	wsHandler := websocket.Handler(func(conn *websocket.Conn) {
		h.handleConn(conn)
	})

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
		if h.requireAuth {
			accessToken := accessTokenFromRequest(r)
			if accessToken == "" {
				log.Printf("push: websocket unauthorized: missing credentials for remote=%s", r.RemoteAddr)
				http.Error(w, "authentication required", http.StatusUnauthorized)
				return
			}
			resolved, err := h.authorizer.Authenticate(r.Context(), accessToken)
			if err != nil || strings.TrimSpace(resolved) == "" {
				log.Printf("push: websocket unauthorized: auth failed for remote=%s err=%v", r.RemoteAddr, err)
				http.Error(w, "authentication required", http.StatusUnauthorized)
				return
			}
			userID = strings.TrimSpace(resolved)
		}
		if userID == "" {
			http.Error(w, "user_id is required", http.StatusBadRequest)
			return
		}

		ctx := context.WithValue(r.Context(), wsUserIDContextKey{}, userID)
		wsHandler.ServeHTTP(w, r.WithContext(ctx))
	})
}

type wsUserIDContextKey struct{}

func accessTokenFromRequest(r *http.Request) string {
	if r == nil {
		return ""
	}
	if header := strings.TrimSpace(r.Header.Get("Authorization")); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	cookie, err := r.Cookie(tokenCookieName)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(cookie.Value)
}

func (h *Hub) handleConn(conn *websocket.Conn) {
	defer func() {
		_ = conn.Close()
	}()

	userID := ""
	if request := conn.Request(); request != nil {
		if resolved, ok := request.Context().Value(wsUserIDContextKey{}).(string); ok {
			userID = strings.TrimSpace(resolved)
		}
	}
	if userID == "" {
		return
	}

	p := newPeer(conn)
	h.attach(userID, p)
	defer h.detach(userID, p)

	// Drain inbound frames so the connection stays readable. Clients
	// only send pings; anything else is ignored.
	decoder := json.NewDecoder(conn)
	decodeErrors := 0
	for {
		var frame Frame
		if err := decoder.Decode(&frame); err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			decodeErrors++
			if decodeErrors >= maxDecodeErrorsPerConn {
				return
			}
			continue
		}
		decodeErrors = 0

		if frame.Type == "ping" {
			_ = p.writeFrame(Frame{Type: "pong"})
		}
	}
}

func (h *Hub) attach(userID string, p *peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	peers := h.users[userID]
	if peers == nil {
		peers = make(map[*peer]struct{})
		h.users[userID] = peers
	}
	peers[p] = struct{}{}
}

func (h *Hub) detach(userID string, p *peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	peers := h.users[userID]
	delete(peers, p)
	if len(peers) == 0 {
		delete(h.users, userID)
	}
}

// Connected reports whether the user holds at least one open socket.
func (h *Hub) Connected(userID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.users[userID]) > 0
}

// ConnectedUsers returns the number of users with at least one socket.
func (h *Hub) ConnectedUsers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.users)
}

// SendNotification pushes one notification event to every socket the
// user holds. Returns ErrNoActiveConnection when the user is offline.
func (h *Hub) SendNotification(ctx context.Context, userID string, notification domain.Notification) error {
	payload := notificationPayload{
		ID:        notification.ID,
		Type:      string(notification.Type),
		Category:  string(notification.Category),
		Priority:  string(notification.Priority),
		Title:     notification.Content.Title,
		Body:      notification.Content.Body,
		ActionURL: notification.Content.ActionURL,
		Metadata:  notification.Metadata,
		CreatedAt: notification.CreatedAt.UTC().Format(time.RFC3339),
	}
	return h.broadcast(ctx, userID, Frame{Type: "notification.new", Payload: mustJSON(payload)})
}

// SendReadEvent tells the user's other sockets which notifications were
// just marked read.
func (h *Hub) SendReadEvent(ctx context.Context, userID string, notificationIDs []int64) error {
	if len(notificationIDs) == 0 {
		return nil
	}
	frame := Frame{Type: "notification.read", Payload: mustJSON(readPayload{NotificationIDs: notificationIDs})}
	if err := h.broadcast(ctx, userID, frame); errors.Is(err, ErrNoActiveConnection) {
		return nil
	} else if err != nil {
		return err
	}
	return nil
}

// SendUnreadCount pushes the current unread badge count.
func (h *Hub) SendUnreadCount(ctx context.Context, userID string, count int) error {
	frame := Frame{Type: "notification.unread_count", Payload: mustJSON(unreadCountPayload{Count: count})}
	if err := h.broadcast(ctx, userID, frame); errors.Is(err, ErrNoActiveConnection) {
		return nil
	} else if err != nil {
		return err
	}
	return nil
}

func (h *Hub) broadcast(ctx context.Context, userID string, frame Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	h.mu.Lock()
	peers := make([]*peer, 0, len(h.users[userID]))
	for p := range h.users[userID] {
		peers = append(peers, p)
	}
	h.mu.Unlock()

	if len(peers) == 0 {
		return ErrNoActiveConnection
	}

	delivered := 0
	for _, p := range peers {
		if err := p.writeFrame(frame); err != nil {
			continue
		}
		delivered++
	}
	if delivered == 0 {
		return fmt.Errorf("push: all %d sockets failed for user %s", len(peers), userID)
	}
	return nil
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		log.Printf("push: failed to marshal frame payload: %v", err)
		return nil
	}
	return b
}
