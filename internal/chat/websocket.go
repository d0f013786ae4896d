package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// ErrNotConnected is returned when a WebSocket user has no open connection.
var ErrNotConnected = errors.New("chat: user not connected")

const defaultWSReadLimit = 16 << 20

// wsInbound is a frame sent by a WebSocket client. Document data is base64.
type wsInbound struct {
	Text     string      `json:"text"`
	Caption  string      `json:"caption,omitempty"`
	Document *wsDocument `json:"document,omitempty"`
}

type wsDocument struct {
	Name     string `json:"name"`
	MIMEType string `json:"mime_type"`
	Data     []byte `json:"data"`
}

// wsOutbound is a frame sent to a WebSocket client.
type wsOutbound struct {
	Type    string   `json:"type"` // "message" or "typing"
	Text    string   `json:"text,omitempty"`
	Options []string `json:"options,omitempty"`
}

// WebSocketOption configures a WebSocketChannel.
type WebSocketOption func(*WebSocketChannel)

// WithOriginPatterns allows cross-origin browser clients matching patterns.
func WithOriginPatterns(patterns ...string) WebSocketOption {
	return func(c *WebSocketChannel) { c.originPatterns = patterns }
}

// WithReadLimit caps the size of one inbound frame.
func WithReadLimit(n int64) WebSocketOption {
	return func(c *WebSocketChannel) { c.readLimit = n }
}

// WebSocketChannel serves study sessions over WebSocket. Each user holds at
// most one connection; a new connection replaces the old one.
type WebSocketChannel struct {
	originPatterns []string
	readLimit      int64

	mu      sync.Mutex
	conns   map[string]*websocket.Conn
	handler func(InboundMessage)
}

// NewWebSocketChannel creates a WebSocket channel adapter. Mount it as an
// http.Handler; clients connect with ?user_id=<id>.
func NewWebSocketChannel(opts ...WebSocketOption) *WebSocketChannel {
	c := &WebSocketChannel{
		readLimit: defaultWSReadLimit,
		conns:     make(map[string]*websocket.Conn),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *WebSocketChannel) Start(_ context.Context, handler func(InboundMessage)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = handler
	return nil
}

func (c *WebSocketChannel) Stop() error {
	c.mu.Lock()
	conns := c.conns
	c.conns = make(map[string]*websocket.Conn)
	c.mu.Unlock()

	for _, conn := range conns {
		go func() { _ = conn.Close(websocket.StatusGoingAway, "server shutting down") }()
	}
	return nil
}

func (c *WebSocketChannel) SendMessage(ctx context.Context, userID string, msg OutboundMessage) error {
	return c.write(ctx, userID, wsOutbound{Type: "message", Text: msg.Text, Options: msg.Options})
}

func (c *WebSocketChannel) SendTyping(ctx context.Context, userID string) error {
	return c.write(ctx, userID, wsOutbound{Type: "typing"})
}

func (c *WebSocketChannel) write(ctx context.Context, userID string, frame wsOutbound) error {
	c.mu.Lock()
	conn, ok := c.conns[userID]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotConnected, userID)
	}
	if err := wsjson.Write(ctx, conn, frame); err != nil {
		return fmt.Errorf("writing websocket frame: %w", err)
	}
	return nil
}

// ServeHTTP upgrades the request and reads frames until the client leaves.
func (c *WebSocketChannel) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	c.mu.Lock()
	handler := c.handler
	c.mu.Unlock()
	if handler == nil {
		http.Error(w, "channel not started", http.StatusServiceUnavailable)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: c.originPatterns})
	if err != nil {
		slog.Warn("websocket accept failed", "user_id", userID, "error", err)
		return
	}
	conn.SetReadLimit(c.readLimit)

	c.register(userID, conn)
	defer c.unregister(userID, conn)

	slog.Info("websocket connected", "user_id", userID)
	ctx := r.Context()
	for {
		var frame wsInbound
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway {
				slog.Debug("websocket read ended", "user_id", userID, "error", err)
			}
			return
		}
		handler(mapWebSocketInbound(userID, frame))
	}
}

func (c *WebSocketChannel) register(userID string, conn *websocket.Conn) {
	c.mu.Lock()
	old := c.conns[userID]
	c.conns[userID] = conn
	c.mu.Unlock()

	if old != nil {
		go func() { _ = old.Close(websocket.StatusPolicyViolation, "replaced by a newer connection") }()
	}
}

func (c *WebSocketChannel) unregister(userID string, conn *websocket.Conn) {
	c.mu.Lock()
	if c.conns[userID] == conn {
		delete(c.conns, userID)
	}
	c.mu.Unlock()
	_ = conn.CloseNow()
}

// Connected reports whether userID has an open connection.
func (c *WebSocketChannel) Connected(userID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.conns[userID]
	return ok
}

func mapWebSocketInbound(userID string, frame wsInbound) InboundMessage {
	msg := InboundMessage{
		Channel:    "websocket",
		UserID:     userID,
		ExternalID: userID,
		Text:       frame.Text,
		Caption:    frame.Caption,
	}
	if d := frame.Document; d != nil {
		if len(d.Data) == 0 {
			msg.DocumentErr = errors.New("websocket document has no data")
		} else {
			msg.Document = &Attachment{Name: d.Name, MIMEType: d.MIMEType, Data: d.Data}
		}
	}
	return msg
}
