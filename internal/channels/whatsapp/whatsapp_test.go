package whatsapp

import (
	"context"
	"testing"
	"time"

	"github.com/nextlevelbuilder/groupclaw/internal/bus"
	"github.com/nextlevelbuilder/groupclaw/internal/channels"
	"github.com/nextlevelbuilder/groupclaw/internal/config"
)

func TestParseInbound(t *testing.T) {
	tests := []struct {
		name     string
		data     string
		wantOK   bool
		wantErr  bool
		wantChat string
		wantKind string
		wantText string
	}{
		{"direct", `{"type":"message","from":"123@s.whatsapp.net","content":"hi"}`, true, false, "123@s.whatsapp.net", channels.PeerDirect, "hi"},
		{"group", `{"type":"message","from":"123@s.whatsapp.net","chat":"999@g.us","content":"hi"}`, true, false, "999@g.us", channels.PeerGroup, "hi"},
		{"empty content", `{"type":"message","from":"1","chat":"1"}`, true, false, "1", channels.PeerDirect, "[empty message]"},
		{"status frame", `{"type":"status","from":"1"}`, false, false, "", "", ""},
		{"no sender", `{"type":"message","content":"x"}`, false, false, "", "", ""},
		{"bad json", `{"type":`, false, true, "", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, ok, err := parseInbound([]byte(tt.data))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if in.ChatID != tt.wantChat || in.PeerKind != tt.wantKind || in.Content != tt.wantText {
				t.Errorf("got chat=%q kind=%q text=%q", in.ChatID, in.PeerKind, in.Content)
			}
		})
	}
}

func TestNewRequiresBridgeURL(t *testing.T) {
	if _, err := New(config.WhatsAppConfig{}, bus.New(), nil); err == nil {
		t.Fatal("expected error without bridge_url")
	}
}

func TestHandleIncomingGroup(t *testing.T) {
	mb := bus.New()
	ch, err := New(config.WhatsAppConfig{BridgeURL: "ws://127.0.0.1:1"}, mb, nil)
	if err != nil {
		t.Fatal(err)
	}

	ch.handleIncoming(context.Background(), inbound{
		SenderID:   "5@s.whatsapp.net",
		SenderName: "Bea",
		ChatID:     "999@g.us",
		ChatName:   "Family",
		Content:    "@Andy hello",
		PeerKind:   channels.PeerGroup,
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, ok := mb.ConsumeInbound(ctx)
	if !ok {
		t.Fatal("no inbound message published")
	}
	if msg.Address() != "wa:999@g.us" {
		t.Errorf("address = %q", msg.Address())
	}
	if msg.Content != "@Andy hello\n[From: Bea]" {
		t.Errorf("content = %q", msg.Content)
	}
	if msg.Metadata["chat_title"] != "Family" {
		t.Errorf("chat_title = %q", msg.Metadata["chat_title"])
	}
}

func TestSendWithoutConnection(t *testing.T) {
	ch, err := New(config.WhatsAppConfig{BridgeURL: "ws://127.0.0.1:1"}, bus.New(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := ch.Send(context.Background(), bus.OutboundMessage{ChatID: "1", Content: "x"}); err != ErrNotConnected {
		t.Errorf("err = %v, want ErrNotConnected", err)
	}
}
