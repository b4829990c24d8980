// Package whatsapp talks to a WhatsApp bridge process over WebSocket. The
// bridge owns the WhatsApp session; this side only exchanges JSON frames.
package whatsapp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/groupclaw/internal/bus"
	"github.com/nextlevelbuilder/groupclaw/internal/channels"
	"github.com/nextlevelbuilder/groupclaw/internal/config"
)

const (
	groupSuffix    = "@g.us"
	maxBackoff     = 30 * time.Second
	handshakeLimit = 10 * time.Second
)

// ErrNotConnected is returned by Send while the bridge is down.
var ErrNotConnected = errors.New("whatsapp bridge not connected")

// frame is the bridge's wire format in both directions.
type frame struct {
	Type     string `json:"type"`
	ID       string `json:"id,omitempty"`
	From     string `json:"from,omitempty"`
	FromName string `json:"from_name,omitempty"`
	Chat     string `json:"chat,omitempty"`
	ChatName string `json:"chat_name,omitempty"`
	To       string `json:"to,omitempty"`
	Content  string `json:"content,omitempty"`
}

// Channel connects to a WhatsApp bridge via WebSocket.
type Channel struct {
	*channels.BaseChannel
	config config.WhatsAppConfig
	dialer *websocket.Dialer

	mu   sync.Mutex // guards conn and serializes writes
	conn *websocket.Conn

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a new WhatsApp channel from config.
func New(cfg config.WhatsAppConfig, msgBus *bus.MessageBus, pairing channels.PairingService) (*Channel, error) {
	if cfg.BridgeURL == "" {
		return nil, fmt.Errorf("whatsapp bridge_url is required")
	}

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = handshakeLimit

	return &Channel{
		BaseChannel: channels.NewBaseChannel(bus.ChannelWhatsApp, msgBus, cfg.AllowFrom, pairing),
		config:      cfg,
		dialer:      &dialer,
	}, nil
}

// Start connects to the bridge and begins listening. A failed first dial is
// not fatal; the listen loop keeps retrying.
func (c *Channel) Start(ctx context.Context) error {
	slog.Info("starting whatsapp channel", "bridge_url", c.config.BridgeURL)

	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})

	if err := c.connect(ctx); err != nil {
		slog.Warn("initial whatsapp bridge connection failed, will retry", "error", err)
	}

	go c.listenLoop(ctx)

	c.SetRunning(true)
	return nil
}

// Stop closes the bridge connection and waits for the listen loop.
func (c *Channel) Stop(_ context.Context) error {
	slog.Info("stopping whatsapp channel")

	if c.cancel != nil {
		c.cancel()
	}
	c.dropConn()
	if c.done != nil {
		<-c.done
	}
	c.SetRunning(false)
	return nil
}

// Send delivers an outbound message to the bridge.
func (c *Channel) Send(_ context.Context, msg bus.OutboundMessage) error {
	return c.write(frame{Type: "message", To: msg.ChatID, Content: msg.Content})
}

func (c *Channel) write(f frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal whatsapp frame: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return ErrNotConnected
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("send whatsapp message: %w", err)
	}
	return nil
}

func (c *Channel) connect(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.config.BridgeURL, nil)
	if err != nil {
		return fmt.Errorf("dial whatsapp bridge %s: %w", c.config.BridgeURL, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	slog.Info("whatsapp bridge connected", "url", c.config.BridgeURL)
	return nil
}

func (c *Channel) dropConn() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

// listenLoop reads frames from the bridge, reconnecting with exponential
// backoff whenever the connection drops.
func (c *Channel) listenLoop(ctx context.Context) {
	defer close(c.done)
	backoff := time.Second

	for ctx.Err() == nil {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()

		if conn == nil {
			slog.Info("attempting whatsapp bridge reconnect", "backoff", backoff)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if err := c.connect(ctx); err != nil {
				slog.Warn("whatsapp bridge reconnect failed", "error", err)
				backoff = min(backoff*2, maxBackoff)
				continue
			}
			backoff = time.Second
			continue
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				slog.Warn("whatsapp read error, will reconnect", "error", err)
			}
			c.dropConn()
			continue
		}

		in, ok, err := parseInbound(data)
		if err != nil {
			slog.Warn("invalid whatsapp frame", "error", err)
			continue
		}
		if ok {
			c.handleIncoming(ctx, in)
		}
	}
}

// inbound is a chat message received from the bridge.
type inbound struct {
	SenderID   string
	SenderName string
	ChatID     string
	ChatName   string
	MessageID  string
	Content    string
	PeerKind   string
}

// parseInbound decodes one bridge frame. ok is false for frames that are not
// chat messages or carry no sender.
func parseInbound(data []byte) (inbound, bool, error) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return inbound{}, false, err
	}
	if f.Type != "message" || f.From == "" {
		return inbound{}, false, nil
	}

	in := inbound{
		SenderID:   f.From,
		SenderName: f.FromName,
		ChatID:     f.Chat,
		ChatName:   f.ChatName,
		MessageID:  f.ID,
		Content:    f.Content,
		PeerKind:   channels.PeerDirect,
	}
	if in.ChatID == "" {
		in.ChatID = in.SenderID
	}
	if strings.HasSuffix(in.ChatID, groupSuffix) {
		in.PeerKind = channels.PeerGroup
	}
	if in.Content == "" {
		in.Content = "[empty message]"
	}
	return in, true, nil
}

func (c *Channel) handleIncoming(ctx context.Context, in inbound) {
	switch c.Admit(ctx, in.PeerKind, c.config.DMPolicy, c.config.GroupPolicy, in.SenderID, in.ChatID, in.Content) {
	case channels.Reject:
		slog.Debug("whatsapp message rejected by policy", "sender_id", in.SenderID, "peer_kind", in.PeerKind)
		return
	case channels.PairingRequested:
		if err := c.write(frame{Type: "message", To: in.ChatID, Content: channels.PairingMessage("WhatsApp", in.SenderID)}); err != nil {
			slog.Warn("failed to send whatsapp pairing reply", "error", err)
		}
		return
	}

	content := in.Content
	if in.PeerKind == channels.PeerGroup {
		name := in.SenderName
		if name == "" {
			name = in.SenderID
		}
		content = fmt.Sprintf("%s\n[From: %s]", content, name)
	}

	metadata := map[string]string{}
	if in.MessageID != "" {
		metadata["message_id"] = in.MessageID
	}
	if in.SenderName != "" {
		metadata["user_name"] = in.SenderName
	}
	if in.ChatName != "" {
		metadata["chat_title"] = in.ChatName
	}

	slog.Debug("whatsapp message received",
		"sender_id", in.SenderID,
		"chat_id", in.ChatID,
		"preview", channels.Truncate(in.Content, 50),
	)

	c.HandleMessage(in.SenderID, in.ChatID, content, metadata, in.PeerKind)
}
