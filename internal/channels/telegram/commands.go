package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mymmrac/telego"
)

// handleBotCommand answers /start, /help and /id locally. Returns true if
// the message was handled.
func (c *Channel) handleBotCommand(ctx context.Context, message *telego.Message, text string) bool {
	if len(text) == 0 || text[0] != '/' {
		return false
	}

	cmd := strings.SplitN(text, " ", 2)[0]
	cmd = strings.ToLower(strings.SplitN(cmd, "@", 2)[0])

	switch cmd {
	case "/start":
		c.reply(ctx, message.Chat.ID, "Hi! Send a message to start chatting.")
	case "/help":
		c.reply(ctx, message.Chat.ID, "Send a message to chat. In groups, start your message with the group trigger.\n\n/id shows this chat's address.")
	case "/id":
		c.reply(ctx, message.Chat.ID, fmt.Sprintf("Chat address: tg:%d", message.Chat.ID))
	default:
		return false
	}
	slog.Debug("telegram command handled", "command", cmd, "chat_id", message.Chat.ID)
	return true
}

// SyncMenuCommands registers bot commands with Telegram via setMyCommands.
func (c *Channel) SyncMenuCommands(ctx context.Context, commands []telego.BotCommand) error {
	if err := c.bot.DeleteMyCommands(ctx, nil); err != nil {
		slog.Debug("deleteMyCommands failed (may not exist)", "error", err)
	}
	if len(commands) == 0 {
		return nil
	}
	return c.bot.SetMyCommands(ctx, &telego.SetMyCommandsParams{Commands: commands})
}

// DefaultMenuCommands returns the bot menu commands.
func DefaultMenuCommands() []telego.BotCommand {
	return []telego.BotCommand{
		{Command: "start", Description: "Start chatting with the bot"},
		{Command: "help", Description: "Show available commands"},
		{Command: "id", Description: "Show this chat's address"},
	}
}
