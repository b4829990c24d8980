// Package channels connects chat platforms (Telegram, Discord, WhatsApp) to
// the host via the message bus.
//
// Access control per channel:
//   - DM policy: pairing (default), allowlist, open, disabled
//   - Group policy: open (default), allowlist, disabled
package channels

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/nextlevelbuilder/groupclaw/internal/bus"
)

// DMPolicy controls how DMs from unknown senders are handled.
type DMPolicy string

const (
	DMPolicyPairing   DMPolicy = "pairing"   // unknown senders get a pending approval
	DMPolicyAllowlist DMPolicy = "allowlist" // only allow_from senders
	DMPolicyOpen      DMPolicy = "open"
	DMPolicyDisabled  DMPolicy = "disabled"
)

// GroupPolicy controls how group messages are handled.
type GroupPolicy string

const (
	GroupPolicyOpen      GroupPolicy = "open"
	GroupPolicyAllowlist GroupPolicy = "allowlist"
	GroupPolicyDisabled  GroupPolicy = "disabled"
)

// Peer kinds carried on bus.InboundMessage.PeerKind.
const (
	PeerDirect = "direct"
	PeerGroup  = "group"
)

// Channel defines the interface that all channel implementations must satisfy.
type Channel interface {
	// Name returns the channel identifier ("telegram", "discord", "whatsapp").
	Name() string

	// Start begins listening for messages. Non-blocking after setup.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the channel.
	Stop(ctx context.Context) error

	// Send delivers an outbound message to the channel.
	Send(ctx context.Context, msg bus.OutboundMessage) error

	IsRunning() bool

	// IsAllowed checks if a sender is permitted by the channel's allowlist.
	IsAllowed(senderID string) bool
}

// Notifier is implemented by channels that word the approval notice
// themselves. Others get ApprovedMessage through Send.
type Notifier interface {
	NotifyApproved(ctx context.Context, chatID string) error
}

// PairingService is the access-control store as seen by channels.
type PairingService interface {
	IsPaired(userID, channel string) bool
	RequestPairing(ctx context.Context, userID, channel, chatID, sample string) (bool, error)
}

// Decision is the outcome of an access check.
type Decision int

const (
	Reject Decision = iota
	Accept
	// PairingRequested means a new pending approval was just created; the
	// channel should tell the sender once.
	PairingRequested
)

// ApprovedMessage is sent to a user whose pairing request was approved.
const ApprovedMessage = "Access approved. Send a message to start chatting."

// PairingMessage is the reply to a sender's first unapproved DM.
func PairingMessage(channel, userID string) string {
	return fmt.Sprintf("Access not configured yet.\n\nYour %s user id: %s\n\nAsk the bot owner to approve your request.", channel, userID)
}

// BaseChannel provides shared functionality for all channel implementations.
// Channel implementations should embed this struct.
type BaseChannel struct {
	name      string
	bus       *bus.MessageBus
	running   atomic.Bool
	allowList []string
	pairing   PairingService
	limiter   *SenderLimiter
}

// NewBaseChannel creates a new BaseChannel. pairing may be nil, in which case
// the pairing DM policy falls back to the allowlist.
func NewBaseChannel(name string, msgBus *bus.MessageBus, allowList []string, pairing PairingService) *BaseChannel {
	return &BaseChannel{
		name:      name,
		bus:       msgBus,
		allowList: allowList,
		pairing:   pairing,
		limiter:   NewSenderLimiter(),
	}
}

func (c *BaseChannel) Name() string { return c.name }

func (c *BaseChannel) IsRunning() bool { return c.running.Load() }

func (c *BaseChannel) SetRunning(running bool) { c.running.Store(running) }

// Bus returns the message bus reference.
func (c *BaseChannel) Bus() *bus.MessageBus { return c.bus }

// HasAllowList returns true if an allowlist is configured (non-empty).
func (c *BaseChannel) HasAllowList() bool { return len(c.allowList) > 0 }

// IsAllowed checks if a sender is permitted by the allowlist.
// Supports compound senderID format: "123456|username".
// Empty allowlist means all senders are allowed.
func (c *BaseChannel) IsAllowed(senderID string) bool {
	if len(c.allowList) == 0 {
		return true
	}

	idPart, userPart := senderID, ""
	if idx := strings.Index(senderID, "|"); idx > 0 {
		idPart = senderID[:idx]
		userPart = senderID[idx+1:]
	}

	for _, allowed := range c.allowList {
		trimmed := strings.TrimPrefix(allowed, "@")
		allowedID, allowedUser := trimmed, ""
		if idx := strings.Index(trimmed, "|"); idx > 0 {
			allowedID = trimmed[:idx]
			allowedUser = trimmed[idx+1:]
		}

		if senderID == allowed ||
			idPart == trimmed ||
			idPart == allowedID ||
			(allowedUser != "" && senderID == allowedUser) ||
			(userPart != "" && (userPart == trimmed || userPart == allowedUser)) {
			return true
		}
	}
	return false
}

// Admit evaluates the DM or group policy for one message. Under the pairing
// policy an unknown sender gets a pending approval recorded with sample as
// the first message.
func (c *BaseChannel) Admit(ctx context.Context, peerKind string, dmPolicy, groupPolicy string, senderID, chatID, sample string) Decision {
	userID := UserID(senderID)

	if peerKind == PeerGroup {
		switch GroupPolicy(groupPolicy) {
		case GroupPolicyDisabled:
			return Reject
		case GroupPolicyAllowlist:
			if c.IsAllowed(senderID) {
				return Accept
			}
			return Reject
		default:
			return Accept
		}
	}

	switch DMPolicy(dmPolicy) {
	case DMPolicyDisabled:
		return Reject
	case DMPolicyOpen:
		return Accept
	case DMPolicyAllowlist:
		if c.IsAllowed(senderID) {
			return Accept
		}
		return Reject
	default: // pairing, or unknown: secure default
		if c.HasAllowList() && c.IsAllowed(senderID) {
			return Accept
		}
		if c.pairing == nil {
			return Reject
		}
		if c.pairing.IsPaired(userID, c.name) {
			return Accept
		}
		created, err := c.pairing.RequestPairing(ctx, userID, c.name, chatID, sample)
		if err != nil {
			slog.Warn("pairing request failed", "channel", c.name, "user_id", userID, "error", err)
			return Reject
		}
		if created {
			return PairingRequested
		}
		return Reject
	}
}

// HandleMessage publishes an accepted message to the bus. Senders exceeding
// the inbound rate are dropped.
func (c *BaseChannel) HandleMessage(senderID, chatID, content string, metadata map[string]string, peerKind string) {
	if !c.limiter.Allow(c.name + ":" + UserID(senderID)) {
		slog.Warn("inbound rate limit exceeded, dropping message", "channel", c.name, "sender_id", senderID)
		return
	}
	c.bus.PublishInbound(bus.InboundMessage{
		Channel:  c.name,
		SenderID: senderID,
		ChatID:   chatID,
		Content:  content,
		PeerKind: peerKind,
		Metadata: metadata,
	})
}

// UserID strips the "|username" suffix of a compound sender id.
func UserID(senderID string) string {
	if idx := strings.IndexByte(senderID, '|'); idx > 0 {
		return senderID[:idx]
	}
	return senderID
}

// Truncate shortens a string to maxLen bytes, appending "..." if truncated.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// SplitMessage breaks text into chunks of at most limit runes, preferring
// newline boundaries.
func SplitMessage(text string, limit int) []string {
	var out []string
	r := []rune(text)
	for len(r) > limit {
		cut := limit
		for i := limit; i > limit/2; i-- {
			if r[i-1] == '\n' {
				cut = i
				break
			}
		}
		out = append(out, string(r[:cut]))
		r = r[cut:]
	}
	if len(r) > 0 {
		out = append(out, string(r))
	}
	return out
}
