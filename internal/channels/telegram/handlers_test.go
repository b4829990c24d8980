package telegram

import (
	"testing"

	"github.com/mymmrac/telego"
)

func TestDetectMention(t *testing.T) {
	tests := []struct {
		name string
		msg  telego.Message
		want bool
	}{
		{"entity", telego.Message{Text: "@AndyBot hi", Entities: []telego.MessageEntity{{Type: "mention", Offset: 0, Length: 8}}}, true},
		{"plain text", telego.Message{Text: "hey @andybot"}, true},
		{"caption", telego.Message{Caption: "look @AndyBot"}, true},
		{"reply to bot", telego.Message{Text: "yes", ReplyToMessage: &telego.Message{From: &telego.User{Username: "AndyBot"}}}, true},
		{"other user", telego.Message{Text: "@bob hi", Entities: []telego.MessageEntity{{Type: "mention", Offset: 0, Length: 4}}}, false},
		{"bad entity bounds", telego.Message{Text: "hi", Entities: []telego.MessageEntity{{Type: "mention", Offset: 0, Length: 40}}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := detectMention(&tt.msg, "AndyBot"); got != tt.want {
				t.Errorf("detectMention = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsServiceMessage(t *testing.T) {
	if !isServiceMessage(&telego.Message{NewChatMembers: []telego.User{{ID: 1}}}) {
		t.Error("member join not treated as service message")
	}
	if isServiceMessage(&telego.Message{Text: "hi"}) {
		t.Error("text treated as service message")
	}
	if isServiceMessage(&telego.Message{Sticker: &telego.Sticker{}}) {
		t.Error("sticker treated as service message")
	}
}

func TestParseRawChatID(t *testing.T) {
	tests := []struct {
		key  string
		want int64
		err  bool
	}{
		{"-100123", -100123, false},
		{"42:topic:7", 42, false},
		{"abc", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, err := parseRawChatID(tt.key)
			if (err != nil) != tt.err || got != tt.want {
				t.Errorf("parseRawChatID(%q) = %d, %v", tt.key, got, err)
			}
		})
	}
}

func TestMessageContent(t *testing.T) {
	if got := messageContent(&telego.Message{Text: " hi ", Caption: "pic"}); got != "hi\npic" {
		t.Errorf("content = %q", got)
	}
}
