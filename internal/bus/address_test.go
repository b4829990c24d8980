package bus

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestParseAddress(t *testing.T) {
	tests := []struct {
		in      string
		channel string
		chat    string
		wantErr bool
	}{
		{"tg:42", ChannelTelegram, "42", false},
		{"tg:-1001234", ChannelTelegram, "-1001234", false},
		{"dc:998877", ChannelDiscord, "998877", false},
		{"wa:4915112345@s.whatsapp.net", ChannelWhatsApp, "4915112345@s.whatsapp.net", false},
		{"xx:42", "", "", true},
		{"tg:", "", "", true},
		{"42", "", "", true},
		{"", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			a, err := ParseAddress(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrBadAddress) {
					t.Fatalf("ParseAddress(%q) err = %v, want ErrBadAddress", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAddress(%q): %v", tt.in, err)
			}
			if a.Channel != tt.channel || a.ChatID != tt.chat {
				t.Errorf("ParseAddress(%q) = %+v", tt.in, a)
			}
			if a.String() != tt.in {
				t.Errorf("String() = %q, want %q", a.String(), tt.in)
			}
		})
	}
}

func TestInboundAddress(t *testing.T) {
	m := InboundMessage{Channel: ChannelDiscord, ChatID: "7"}
	if got := m.Address(); got != "dc:7" {
		t.Errorf("Address() = %q, want dc:7", got)
	}
}

func TestBusSend(t *testing.T) {
	b := New()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := b.Send(ctx, "tg:42", "hello"); err != nil {
		t.Fatal(err)
	}
	msg, ok := b.SubscribeOutbound(ctx)
	if !ok {
		t.Fatal("no outbound message")
	}
	if msg.Channel != ChannelTelegram || msg.ChatID != "42" || msg.Content != "hello" {
		t.Errorf("unexpected outbound %+v", msg)
	}
	if err := b.Send(ctx, "nope", "x"); !errors.Is(err, ErrBadAddress) {
		t.Errorf("Send bad address err = %v", err)
	}
}
