package config

// ChannelsConfig contains per-channel configuration.
type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram"`
	Discord  DiscordConfig  `json:"discord"`
	WhatsApp WhatsAppConfig `json:"whatsapp"`
}

type TelegramConfig struct {
	Enabled        bool                `json:"enabled"`
	Token          string              `json:"-"` // from env GROUPCLAW_TELEGRAM_TOKEN only
	Proxy          string              `json:"proxy,omitempty"`
	AllowFrom      FlexibleStringSlice `json:"allow_from"`
	DMPolicy       string              `json:"dm_policy,omitempty"`       // "pairing" (default), "allowlist", "open", "disabled"
	GroupPolicy    string              `json:"group_policy,omitempty"`    // "open" (default), "allowlist", "disabled"
	RequireMention *bool               `json:"require_mention,omitempty"` // require @bot mention in groups (default false)
	RateLimitRPS   float64             `json:"rate_limit_rps,omitempty"`  // outbound messages per second (default 1)
}

type DiscordConfig struct {
	Enabled        bool                `json:"enabled"`
	Token          string              `json:"-"` // from env GROUPCLAW_DISCORD_TOKEN only
	AllowFrom      FlexibleStringSlice `json:"allow_from"`
	DMPolicy       string              `json:"dm_policy,omitempty"`       // "pairing" (default), "allowlist", "open", "disabled"
	GroupPolicy    string              `json:"group_policy,omitempty"`    // "open" (default), "allowlist", "disabled"
	RequireMention *bool               `json:"require_mention,omitempty"` // require @bot mention in guilds (default false)
	RateLimitRPS   float64             `json:"rate_limit_rps,omitempty"`
}

type WhatsAppConfig struct {
	Enabled      bool                `json:"enabled"`
	BridgeURL    string              `json:"bridge_url"`
	AllowFrom    FlexibleStringSlice `json:"allow_from"`
	DMPolicy     string              `json:"dm_policy,omitempty"`    // "pairing" (default), "allowlist", "open", "disabled"
	GroupPolicy  string              `json:"group_policy,omitempty"` // "open" (default), "allowlist", "disabled"
	RateLimitRPS float64             `json:"rate_limit_rps,omitempty"`
}
