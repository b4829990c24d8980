package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"time"
)

// FlexibleStringSlice accepts both ["str"] and [123] in JSON.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

// Config is the root configuration for the groupclaw host.
type Config struct {
	DataDir       string          `json:"data_dir"`
	AssistantName string          `json:"assistant_name"`
	Timezone      string          `json:"timezone,omitempty"` // IANA name; empty = host local time
	IPC           IPCConfig       `json:"ipc"`
	Scheduler     SchedulerConfig `json:"scheduler"`
	Runner        RunnerConfig    `json:"runner"`
	Gateway       GatewayConfig   `json:"gateway"`
	Channels      ChannelsConfig  `json:"channels"`
	Database      DatabaseConfig  `json:"database,omitempty"`
	Telemetry     TelemetryConfig `json:"telemetry,omitempty"`
	mu            sync.RWMutex
}

// IPCConfig configures the mailbox drainer.
type IPCConfig struct {
	PollInterval string `json:"poll_interval,omitempty"` // Go duration (default "1s")
	Watch        *bool  `json:"watch,omitempty"`         // fsnotify nudges (default true)
}

// SchedulerConfig configures the task scheduler loop.
type SchedulerConfig struct {
	PollInterval string `json:"poll_interval,omitempty"` // Go duration (default "60s")
}

// RunnerConfig configures how agent workers are launched.
type RunnerConfig struct {
	Command           string              `json:"command,omitempty"`             // default "docker"
	Args              []string            `json:"args,omitempty"`                // default ["run", "-i", "--rm"]
	Image             string              `json:"image,omitempty"`               // default "groupclaw-agent:latest"
	Timeout           string              `json:"timeout,omitempty"`             // Go duration (default "5m")
	ProjectRoot       string              `json:"project_root,omitempty"`        // mounted read-only for the main tenant
	AllowedMountRoots FlexibleStringSlice `json:"allowed_mount_roots,omitempty"` // host roots extra mounts must live under
	Env               map[string]string   `json:"env,omitempty"`                 // extra environment passed to the worker
}

// GatewayConfig configures conversation routing and the main tenant.
type GatewayConfig struct {
	MainTenant      string `json:"main_tenant,omitempty"`      // folder name of the main tenant (default "main")
	MainDestination string `json:"main_destination,omitempty"` // chat address bound to the main tenant, e.g. "tg:42"
	AutoRegister    bool   `json:"auto_register,omitempty"`    // register unknown chats on first contact
	MaxMessageChars int    `json:"max_message_chars,omitempty"`
}

// DatabaseConfig selects the task/tenant store backend.
// PostgresDSN is NEVER read from config.json (secret), only from env GROUPCLAW_POSTGRES_DSN.
type DatabaseConfig struct {
	PostgresDSN string `json:"-"`                     // from env GROUPCLAW_POSTGRES_DSN only
	Mode        string `json:"mode,omitempty"`        // "sqlite" (default) or "managed"
	SQLitePath  string `json:"sqlite_path,omitempty"` // default <data_dir>/groupclaw.db
}

// IsManagedMode returns true if the host keeps its state in Postgres.
func (c *Config) IsManagedMode() bool {
	return c.Database.Mode == "managed" && c.Database.PostgresDSN != ""
}

// TelemetryConfig configures OpenTelemetry export for traces and spans.
type TelemetryConfig struct {
	Enabled     bool              `json:"enabled,omitempty"`      // enable OTLP export (default false)
	Endpoint    string            `json:"endpoint,omitempty"`     // OTLP endpoint (e.g. "localhost:4317")
	Protocol    string            `json:"protocol,omitempty"`     // "grpc" (default) or "http"
	Insecure    bool              `json:"insecure,omitempty"`     // plaintext connection (local dev)
	ServiceName string            `json:"service_name,omitempty"` // default "groupclaw"
	Headers     map[string]string `json:"headers,omitempty"`      // extra headers (e.g. auth tokens for cloud backends)
}

// DataPath returns the expanded data directory.
func (c *Config) DataPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ExpandHome(c.DataDir)
}

// IPCDir returns the mailbox root: <data>/ipc.
func (c *Config) IPCDir() string { return filepath.Join(c.DataPath(), "ipc") }

// TenantsDir returns the root of tenant working folders: <data>/groups.
func (c *Config) TenantsDir() string { return filepath.Join(c.DataPath(), "groups") }

// SQLitePath returns the expanded SQLite database path.
func (c *Config) SQLitePath() string {
	c.mu.RLock()
	p := c.Database.SQLitePath
	c.mu.RUnlock()
	if p == "" {
		return filepath.Join(c.DataPath(), "groupclaw.db")
	}
	return ExpandHome(p)
}

// Location resolves the configured timezone. Unknown names fall back to
// time.Local with an error so callers can log it.
func (c *Config) Location() (*time.Location, error) {
	c.mu.RLock()
	tz := c.Timezone
	c.mu.RUnlock()
	if tz == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.Local, fmt.Errorf("load timezone %q: %w", tz, err)
	}
	return loc, nil
}

// IPCPollInterval returns the parsed drainer interval.
func (c *Config) IPCPollInterval() time.Duration {
	return parseDuration(c.IPC.PollInterval, time.Second)
}

// IPCWatch reports whether fsnotify nudges are enabled.
func (c *Config) IPCWatch() bool {
	return c.IPC.Watch == nil || *c.IPC.Watch
}

// SchedulerPollInterval returns the parsed scheduler interval.
func (c *Config) SchedulerPollInterval() time.Duration {
	return parseDuration(c.Scheduler.PollInterval, 60*time.Second)
}

// RunnerTimeout returns the parsed per-invocation timeout.
func (c *Config) RunnerTimeout() time.Duration {
	return parseDuration(c.Runner.Timeout, 5*time.Minute)
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
