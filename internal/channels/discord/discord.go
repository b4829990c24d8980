package discord

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/nextlevelbuilder/groupclaw/internal/bus"
	"github.com/nextlevelbuilder/groupclaw/internal/channels"
	"github.com/nextlevelbuilder/groupclaw/internal/config"
)

// maxMessageLen is Discord's limit for one message.
const maxMessageLen = 2000

// Channel connects to Discord via the Bot API using gateway events.
type Channel struct {
	*channels.BaseChannel
	session        *discordgo.Session
	config         config.DiscordConfig
	botUserID      string // populated on start
	botUsername    string
	requireMention bool
}

// New creates a new Discord channel from config.
func New(cfg config.DiscordConfig, msgBus *bus.MessageBus, pairing channels.PairingService) (*Channel, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	requireMention := false
	if cfg.RequireMention != nil {
		requireMention = *cfg.RequireMention
	}

	return &Channel{
		BaseChannel:    channels.NewBaseChannel(bus.ChannelDiscord, msgBus, cfg.AllowFrom, pairing),
		session:        session,
		config:         cfg,
		requireMention: requireMention,
	}, nil
}

// Start opens the Discord gateway connection and begins receiving events.
func (c *Channel) Start(ctx context.Context) error {
	slog.Info("starting discord bot")

	c.session.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		c.handleMessage(ctx, m)
	})

	if err := c.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}

	user, err := c.session.User("@me")
	if err != nil {
		c.session.Close()
		return fmt.Errorf("fetch discord bot identity: %w", err)
	}
	c.botUserID = user.ID
	c.botUsername = user.Username

	c.SetRunning(true)
	slog.Info("discord bot connected", "username", user.Username, "id", user.ID)
	return nil
}

// Stop closes the Discord gateway connection.
func (c *Channel) Stop(_ context.Context) error {
	slog.Info("stopping discord bot")
	c.SetRunning(false)
	return c.session.Close()
}

// Send delivers an outbound message to a Discord channel, split at the
// message length limit.
func (c *Channel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if !c.IsRunning() {
		return fmt.Errorf("discord bot not running")
	}
	if msg.ChatID == "" {
		return fmt.Errorf("empty chat ID for discord send")
	}
	for _, chunk := range channels.SplitMessage(msg.Content, maxMessageLen) {
		if _, err := c.session.ChannelMessageSend(msg.ChatID, chunk, discordgo.WithContext(ctx)); err != nil {
			return fmt.Errorf("send discord message: %w", err)
		}
	}
	return nil
}

// handleMessage processes incoming Discord messages.
func (c *Channel) handleMessage(ctx context.Context, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.ID == c.botUserID || m.Author.Bot {
		return
	}

	senderID := m.Author.ID
	senderName := resolveDisplayName(m)
	channelID := m.ChannelID
	isDM := m.GuildID == ""

	peerKind := channels.PeerGroup
	if isDM {
		peerKind = channels.PeerDirect
	}

	content := m.Content
	for _, att := range m.Attachments {
		if content != "" {
			content += "\n"
		}
		content += fmt.Sprintf("[attachment: %s]", att.URL)
	}

	switch c.Admit(ctx, peerKind, c.config.DMPolicy, c.config.GroupPolicy, senderID, channelID, content) {
	case channels.Reject:
		slog.Debug("discord message rejected by policy", "user_id", senderID, "username", senderName)
		return
	case channels.PairingRequested:
		if _, err := c.session.ChannelMessageSend(channelID, channels.PairingMessage("Discord", senderID)); err != nil {
			slog.Warn("failed to send discord pairing reply", "error", err)
		}
		slog.Info("discord pairing requested", "user_id", senderID)
		return
	}

	mentioned := isMentioned(m.Mentions, c.botUserID)
	if !isDM && c.requireMention && !mentioned {
		slog.Debug("discord group message without mention skipped", "channel_id", channelID)
		return
	}
	content = replaceMention(content, c.botUserID, c.botUsername)
	if strings.TrimSpace(content) == "" {
		return
	}

	slog.Debug("discord message received",
		"sender_id", senderID,
		"channel_id", channelID,
		"is_dm", isDM,
		"preview", channels.Truncate(content, 50),
	)
	_ = c.session.ChannelTyping(channelID)

	metadata := map[string]string{
		"message_id":   m.ID,
		"user_id":      senderID,
		"username":     m.Author.Username,
		"display_name": senderName,
		"guild_id":     m.GuildID,
	}
	if !isDM {
		if ch, err := c.session.State.Channel(channelID); err == nil && ch.Name != "" {
			metadata["chat_title"] = ch.Name
		}
		content = fmt.Sprintf("%s\n[From: %s]", content, senderName)
	}
	c.HandleMessage(senderID, channelID, content, metadata, peerKind)
}

func isMentioned(mentions []*discordgo.User, botID string) bool {
	for _, u := range mentions {
		if u != nil && u.ID == botID {
			return true
		}
	}
	return false
}

// replaceMention rewrites "<@id>" and "<@!id>" tags for the bot into
// "@username" so trigger phrases match.
func replaceMention(content, botID, botUsername string) string {
	if botID == "" || botUsername == "" {
		return content
	}
	content = strings.ReplaceAll(content, "<@!"+botID+">", "@"+botUsername)
	return strings.ReplaceAll(content, "<@"+botID+">", "@"+botUsername)
}

// resolveDisplayName returns the best available display name for a Discord message author.
// Priority: server nickname > global display name > username.
func resolveDisplayName(m *discordgo.MessageCreate) string {
	if m.Member != nil && m.Member.Nick != "" {
		return m.Member.Nick
	}
	if m.Author.GlobalName != "" {
		return m.Author.GlobalName
	}
	return m.Author.Username
}
