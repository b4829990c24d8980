package cmd

import (
	"log/slog"

	"github.com/nextlevelbuilder/groupclaw/internal/bus"
	"github.com/nextlevelbuilder/groupclaw/internal/channels"
	"github.com/nextlevelbuilder/groupclaw/internal/channels/discord"
	"github.com/nextlevelbuilder/groupclaw/internal/channels/telegram"
	"github.com/nextlevelbuilder/groupclaw/internal/channels/whatsapp"
	"github.com/nextlevelbuilder/groupclaw/internal/config"
)

// registerChannels creates every enabled chat adapter. A channel that fails
// to initialize is logged and skipped; the host keeps running without it.
func registerChannels(mgr *channels.Manager, cfg *config.Config, msgBus *bus.MessageBus, pairing channels.PairingService) {
	if tc := cfg.Channels.Telegram; tc.Enabled && tc.Token != "" {
		if ch, err := telegram.New(tc, msgBus, pairing); err != nil {
			slog.Error("failed to initialize telegram channel", "error", err)
		} else {
			mgr.RegisterChannel(bus.ChannelTelegram, ch, tc.RateLimitRPS)
			slog.Info("telegram channel enabled")
		}
	}

	if dc := cfg.Channels.Discord; dc.Enabled && dc.Token != "" {
		if ch, err := discord.New(dc, msgBus, pairing); err != nil {
			slog.Error("failed to initialize discord channel", "error", err)
		} else {
			mgr.RegisterChannel(bus.ChannelDiscord, ch, dc.RateLimitRPS)
			slog.Info("discord channel enabled")
		}
	}

	if wc := cfg.Channels.WhatsApp; wc.Enabled && wc.BridgeURL != "" {
		if ch, err := whatsapp.New(wc, msgBus, pairing); err != nil {
			slog.Error("failed to initialize whatsapp channel", "error", err)
		} else {
			mgr.RegisterChannel(bus.ChannelWhatsApp, ch, wc.RateLimitRPS)
			slog.Info("whatsapp channel enabled")
		}
	}
}
