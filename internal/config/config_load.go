package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/titanous/json5"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		DataDir:       "~/.groupclaw",
		AssistantName: "Andy",
		IPC: IPCConfig{
			PollInterval: "1s",
		},
		Scheduler: SchedulerConfig{
			PollInterval: "60s",
		},
		Runner: RunnerConfig{
			Command: "docker",
			Args:    []string{"run", "-i", "--rm"},
			Image:   "groupclaw-agent:latest",
			Timeout: "5m",
		},
		Gateway: GatewayConfig{
			MainTenant:      "main",
			MaxMessageChars: 32000,
		},
		Database: DatabaseConfig{
			Mode: "sqlite",
		},
	}
}

// Load reads config from a JSON5 file, then overlays env vars.
// A missing file yields defaults plus env.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			*dst = v == "true" || v == "1"
		}
	}

	envStr("GROUPCLAW_DATA_DIR", &c.DataDir)
	envStr("GROUPCLAW_ASSISTANT_NAME", &c.AssistantName)
	envStr("GROUPCLAW_TIMEZONE", &c.Timezone)
	envStr("GROUPCLAW_IPC_POLL_INTERVAL", &c.IPC.PollInterval)
	envStr("GROUPCLAW_SCHEDULER_POLL_INTERVAL", &c.Scheduler.PollInterval)

	// Runner
	envStr("GROUPCLAW_RUNNER_COMMAND", &c.Runner.Command)
	envStr("GROUPCLAW_RUNNER_IMAGE", &c.Runner.Image)
	envStr("GROUPCLAW_RUNNER_TIMEOUT", &c.Runner.Timeout)
	envStr("GROUPCLAW_PROJECT_ROOT", &c.Runner.ProjectRoot)

	// Gateway
	envStr("GROUPCLAW_MAIN_TENANT", &c.Gateway.MainTenant)
	envStr("GROUPCLAW_MAIN_DESTINATION", &c.Gateway.MainDestination)
	envBool("GROUPCLAW_AUTO_REGISTER", &c.Gateway.AutoRegister)

	// Channel secrets
	envStr("GROUPCLAW_TELEGRAM_TOKEN", &c.Channels.Telegram.Token)
	envStr("GROUPCLAW_DISCORD_TOKEN", &c.Channels.Discord.Token)
	envStr("GROUPCLAW_WHATSAPP_BRIDGE_URL", &c.Channels.WhatsApp.BridgeURL)

	// Auto-enable channels if credentials are provided via env
	if c.Channels.Telegram.Token != "" {
		c.Channels.Telegram.Enabled = true
	}
	if c.Channels.Discord.Token != "" {
		c.Channels.Discord.Enabled = true
	}

	// Database
	envStr("GROUPCLAW_POSTGRES_DSN", &c.Database.PostgresDSN)
	envStr("GROUPCLAW_MODE", &c.Database.Mode)
	envStr("GROUPCLAW_SQLITE_PATH", &c.Database.SQLitePath)

	// Telemetry
	envStr("GROUPCLAW_TELEMETRY_ENDPOINT", &c.Telemetry.Endpoint)
	envStr("GROUPCLAW_TELEMETRY_PROTOCOL", &c.Telemetry.Protocol)
	envStr("GROUPCLAW_TELEMETRY_SERVICE_NAME", &c.Telemetry.ServiceName)
	envBool("GROUPCLAW_TELEMETRY_ENABLED", &c.Telemetry.Enabled)
	envBool("GROUPCLAW_TELEMETRY_INSECURE", &c.Telemetry.Insecure)
}

// Save writes the config to a JSON file. Secrets carry `json:"-"` and are
// never written.
func Save(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// ExpandHome replaces leading ~ with the user home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, _ := os.UserHomeDir()
	if len(path) > 1 && path[1] == '/' {
		return home + path[1:]
	}
	return home
}
