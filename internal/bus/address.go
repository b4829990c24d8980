package bus

import (
	"errors"
	"fmt"
	"strings"
)

// Channel names and their destination address prefixes.
const (
	ChannelTelegram = "telegram"
	ChannelDiscord  = "discord"
	ChannelWhatsApp = "whatsapp"

	PrefixTelegram = "tg"
	PrefixDiscord  = "dc"
	PrefixWhatsApp = "wa"
)

var prefixToChannel = map[string]string{
	PrefixTelegram: ChannelTelegram,
	PrefixDiscord:  ChannelDiscord,
	PrefixWhatsApp: ChannelWhatsApp,
}

// ErrBadAddress is returned for destinations that are not "<prefix>:<chat>"
// with a known prefix.
var ErrBadAddress = errors.New("malformed destination address")

// Address is a parsed destination.
type Address struct {
	Prefix  string
	Channel string
	ChatID  string
}

func (a Address) String() string { return FormatAddress(a.Prefix, a.ChatID) }

// ParseAddress parses "tg:42", "dc:1234", "wa:4915...@s.whatsapp.net".
// The chat part may itself contain colons.
func ParseAddress(s string) (Address, error) {
	prefix, chat, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || chat == "" {
		return Address{}, fmt.Errorf("%w: %q", ErrBadAddress, s)
	}
	ch, known := prefixToChannel[prefix]
	if !known {
		return Address{}, fmt.Errorf("%w: unknown prefix %q", ErrBadAddress, prefix)
	}
	return Address{Prefix: prefix, Channel: ch, ChatID: chat}, nil
}

// FormatAddress joins a prefix and chat id.
func FormatAddress(prefix, chatID string) string {
	return prefix + ":" + chatID
}

// PrefixFor returns the address prefix of a channel name. Unknown channels use
// their own name so addresses stay unique.
func PrefixFor(channel string) string {
	for p, c := range prefixToChannel {
		if c == channel {
			return p
		}
	}
	return channel
}
