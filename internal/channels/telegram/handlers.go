package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/nextlevelbuilder/groupclaw/internal/channels"
)

// handleMessage processes an incoming Telegram message.
func (c *Channel) handleMessage(ctx context.Context, message *telego.Message) {
	if isServiceMessage(message) {
		slog.Debug("telegram service message skipped", "chat_id", message.Chat.ID)
		return
	}

	user := message.From
	if user == nil || user.IsBot {
		return
	}

	userID := fmt.Sprintf("%d", user.ID)
	senderID := userID
	if user.Username != "" {
		senderID = fmt.Sprintf("%s|%s", userID, user.Username)
	}

	isGroup := message.Chat.Type == "group" || message.Chat.Type == "supergroup"
	peerKind := channels.PeerDirect
	if isGroup {
		peerKind = channels.PeerGroup
	}
	chatIDStr := fmt.Sprintf("%d", message.Chat.ID)
	content := messageContent(message)

	slog.Debug("telegram message received",
		"chat_type", message.Chat.Type,
		"chat_id", message.Chat.ID,
		"user_id", user.ID,
		"username", user.Username,
		"text_preview", channels.Truncate(content, 60),
	)

	switch c.Admit(ctx, peerKind, c.config.DMPolicy, c.config.GroupPolicy, senderID, chatIDStr, content) {
	case channels.Reject:
		slog.Debug("telegram message rejected by policy", "user_id", userID, "chat_id", chatIDStr)
		return
	case channels.PairingRequested:
		c.reply(ctx, message.Chat.ID, channels.PairingMessage("Telegram", userID))
		slog.Info("telegram pairing requested", "user_id", userID, "username", user.Username)
		return
	}

	if c.handleBotCommand(ctx, message, content) {
		return
	}

	if isGroup && c.requireMention && !detectMention(message, c.bot.Username()) {
		slog.Debug("telegram group message without mention skipped", "chat_id", chatIDStr)
		return
	}
	if content == "" {
		return
	}

	_ = c.bot.SendChatAction(ctx, tu.ChatAction(tu.ID(message.Chat.ID), telego.ChatActionTyping))

	metadata := map[string]string{
		"message_id": fmt.Sprintf("%d", message.MessageID),
		"user_id":    userID,
		"username":   user.Username,
		"first_name": user.FirstName,
	}
	if isGroup {
		metadata["chat_title"] = message.Chat.Title
		content = fmt.Sprintf("%s [From: %s]", content, senderLabel(user))
	}
	c.HandleMessage(senderID, chatIDStr, content, metadata, peerKind)
}

func (c *Channel) reply(ctx context.Context, chatID int64, text string) {
	if _, err := c.bot.SendMessage(ctx, tu.Message(tu.ID(chatID), text)); err != nil {
		slog.Warn("telegram reply failed", "chat_id", chatID, "error", err)
	}
}

// messageContent joins text and caption.
func messageContent(msg *telego.Message) string {
	parts := make([]string, 0, 2)
	if t := strings.TrimSpace(msg.Text); t != "" {
		parts = append(parts, t)
	}
	if t := strings.TrimSpace(msg.Caption); t != "" {
		parts = append(parts, t)
	}
	return strings.Join(parts, "\n")
}

func senderLabel(u *telego.User) string {
	if u.Username != "" {
		return "@" + u.Username
	}
	return u.FirstName
}

// detectMention checks if a Telegram message mentions the bot, either with
// an @mention entity, in plain text or by replying to the bot.
func detectMention(msg *telego.Message, botUsername string) bool {
	if botUsername == "" {
		return false
	}
	lowerBot := strings.ToLower(botUsername)

	for _, pair := range []struct {
		entities []telego.MessageEntity
		text     string
	}{
		{msg.Entities, msg.Text},
		{msg.CaptionEntities, msg.Caption},
	} {
		for _, entity := range pair.entities {
			if entity.Type != "mention" || entity.Offset+entity.Length > len(pair.text) {
				continue
			}
			if strings.EqualFold(pair.text[entity.Offset:entity.Offset+entity.Length], "@"+botUsername) {
				return true
			}
		}
	}

	if strings.Contains(strings.ToLower(msg.Text), "@"+lowerBot) ||
		strings.Contains(strings.ToLower(msg.Caption), "@"+lowerBot) {
		return true
	}

	if msg.ReplyToMessage != nil && msg.ReplyToMessage.From != nil {
		return strings.EqualFold(msg.ReplyToMessage.From.Username, botUsername)
	}
	return false
}

// isServiceMessage returns true for member joins, title changes and other
// system messages that carry no user content.
func isServiceMessage(msg *telego.Message) bool {
	if msg.Text != "" || msg.Caption != "" {
		return false
	}
	if msg.Photo != nil || msg.Audio != nil || msg.Video != nil ||
		msg.Document != nil || msg.Voice != nil || msg.VideoNote != nil ||
		msg.Sticker != nil || msg.Animation != nil || msg.Contact != nil ||
		msg.Location != nil || msg.Venue != nil || msg.Poll != nil {
		return false
	}
	return true
}
