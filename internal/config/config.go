package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"modwarden/internal/handler"
	"modwarden/internal/welcome"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DiscordToken string         `yaml:"discord_token" toml:"discord_token"`
	DataDir      string         `yaml:"data_dir" toml:"data_dir"`
	LogLevel     string         `yaml:"log_level" toml:"log_level"`
	GuildID      string         `yaml:"guild_id" toml:"guild_id"`
	SyncCommands bool           `yaml:"sync_commands" toml:"sync_commands"`
	LogChannelID string         `yaml:"log_channel_id" toml:"log_channel_id"`
	Handlers     HandlersConfig `yaml:"handlers" toml:"handlers"`
	Health       HealthConfig   `yaml:"health" toml:"health"`
	AntiLink     AntiLinkConfig `yaml:"anti_link" toml:"anti_link"`
	AntiRaid     AntiRaidConfig `yaml:"anti_raid" toml:"anti_raid"`
	Welcome      WelcomeConfig  `yaml:"welcome" toml:"welcome"`
	Session      SessionConfig  `yaml:"session" toml:"session"`
	EmbedColors  EmbedColors    `yaml:"embed_colors" toml:"embed_colors"`
}

// HandlersConfig names the definition file directory of each handler kind.
type HandlersConfig struct {
	Commands string `yaml:"commands" toml:"commands"`
	Buttons  string `yaml:"buttons" toml:"buttons"`
	Menus    string `yaml:"menus" toml:"menus"`
	Modals   string `yaml:"modals" toml:"modals"`
	Events   string `yaml:"events" toml:"events"`
}

type HealthConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Addr    string `yaml:"addr" toml:"addr"`
}

type AntiLinkConfig struct {
	Enabled             bool     `yaml:"enabled" toml:"enabled"`
	AllowedDomains      []string `yaml:"allowed_domains" toml:"allowed_domains"`
	WarnCooldownSeconds int      `yaml:"warn_cooldown_seconds" toml:"warn_cooldown_seconds"`
}

type AntiRaidConfig struct {
	Enabled         bool `yaml:"enabled" toml:"enabled"`
	Joins           int  `yaml:"joins" toml:"joins"`
	WindowSeconds   int  `yaml:"window_seconds" toml:"window_seconds"`
	LockdownMinutes int  `yaml:"lockdown_minutes" toml:"lockdown_minutes"`
}

type WelcomeConfig struct {
	Enabled    bool   `yaml:"enabled" toml:"enabled"`
	ChannelID  string `yaml:"channel_id" toml:"channel_id"`
	Width      int    `yaml:"width" toml:"width"`
	Height     int    `yaml:"height" toml:"height"`
	Background string `yaml:"background" toml:"background"`
}

type SessionConfig struct {
	TTLMinutes int `yaml:"ttl_minutes" toml:"ttl_minutes"`
}

type EmbedColors struct {
	Info    int `yaml:"info" toml:"info"`
	Success int `yaml:"success" toml:"success"`
	Warning int `yaml:"warning" toml:"warning"`
	Error   int `yaml:"error" toml:"error"`
}

func DefaultConfig() Config {
	return Config{
		DataDir:      "data",
		LogLevel:     "info",
		SyncCommands: true,
		Handlers: HandlersConfig{
			Commands: "handlers/commands",
			Buttons:  "handlers/buttons",
			Menus:    "handlers/menus",
			Modals:   "handlers/modals",
			Events:   "handlers/events",
		},
		Health: HealthConfig{Enabled: false, Addr: ":8080"},
		AntiLink: AntiLinkConfig{
			Enabled:             true,
			AllowedDomains:      []string{"discord.com", "discord.gg", "tenor.com"},
			WarnCooldownSeconds: 10,
		},
		AntiRaid: AntiRaidConfig{Enabled: true, Joins: 8, WindowSeconds: 10, LockdownMinutes: 10},
		Welcome:  WelcomeConfig{Enabled: true, Width: 800, Height: 250, Background: "#1E1F22"},
		Session:  SessionConfig{TTLMinutes: 15},
		EmbedColors: EmbedColors{
			Info:    0x5865F2,
			Success: 0x22C55E,
			Warning: 0xF59E0B,
			Error:   0xEF4444,
		},
	}
}

// Path returns the configured file location, CONFIG_PATH or config.yaml.
func Path() string {
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		return path
	}
	return "config.yaml"
}

// Read applies the file at path and the environment over the defaults. A
// missing file is not an error.
func Read(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := decode(path, data, &cfg); err != nil {
			return Config{}, err
		}
	case !errors.Is(err, os.ErrNotExist):
		return Config{}, err
	}

	applyEnv(&cfg)
	normalize(&cfg)
	return cfg, nil
}

// Load is Read plus the checks needed to connect to Discord.
func Load(path string) (Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return Config{}, err
	}
	if cfg.DiscordToken == "" {
		return Config{}, errors.New("DISCORD_TOKEN is required")
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		return nil
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.DiscordToken = envString("DISCORD_TOKEN", cfg.DiscordToken)
	cfg.DataDir = envString("DATA_DIR", cfg.DataDir)
	cfg.LogLevel = envString("LOG_LEVEL", cfg.LogLevel)
	cfg.GuildID = envString("GUILD_ID", cfg.GuildID)
	cfg.SyncCommands = envBool("SYNC_COMMANDS", cfg.SyncCommands)
	cfg.LogChannelID = envString("LOG_CHANNEL_ID", cfg.LogChannelID)
	cfg.Health.Enabled = envBool("HEALTH_ENABLED", cfg.Health.Enabled)
	cfg.Health.Addr = envString("HEALTH_ADDR", cfg.Health.Addr)
	cfg.AntiLink.Enabled = envBool("ANTI_LINK_ENABLED", cfg.AntiLink.Enabled)
	cfg.AntiRaid.Enabled = envBool("ANTI_RAID_ENABLED", cfg.AntiRaid.Enabled)
	cfg.AntiRaid.Joins = envInt("RAID_JOINS", cfg.AntiRaid.Joins)
	cfg.AntiRaid.WindowSeconds = envInt("RAID_WINDOW_SECONDS", cfg.AntiRaid.WindowSeconds)
	cfg.AntiRaid.LockdownMinutes = envInt("LOCKDOWN_MINUTES", cfg.AntiRaid.LockdownMinutes)
	cfg.Welcome.Enabled = envBool("WELCOME_ENABLED", cfg.Welcome.Enabled)
	cfg.Welcome.ChannelID = envString("WELCOME_CHANNEL_ID", cfg.Welcome.ChannelID)
	cfg.Session.TTLMinutes = envInt("SESSION_TTL_MINUTES", cfg.Session.TTLMinutes)
}

func normalize(cfg *Config) {
	defaults := DefaultConfig()
	if cfg.AntiRaid.Joins <= 0 {
		cfg.AntiRaid.Joins = defaults.AntiRaid.Joins
	}
	if cfg.AntiRaid.WindowSeconds <= 0 {
		cfg.AntiRaid.WindowSeconds = defaults.AntiRaid.WindowSeconds
	}
	if cfg.AntiRaid.LockdownMinutes <= 0 {
		cfg.AntiRaid.LockdownMinutes = defaults.AntiRaid.LockdownMinutes
	}
	if cfg.Welcome.Width <= 0 || cfg.Welcome.Height <= 0 {
		cfg.Welcome.Width, cfg.Welcome.Height = defaults.Welcome.Width, defaults.Welcome.Height
	}
	if _, err := welcome.ParseColor(cfg.Welcome.Background); err != nil {
		cfg.Welcome.Background = defaults.Welcome.Background
	}
	if cfg.Session.TTLMinutes <= 0 {
		cfg.Session.TTLMinutes = defaults.Session.TTLMinutes
	}
	for i, domain := range cfg.AntiLink.AllowedDomains {
		cfg.AntiLink.AllowedDomains[i] = strings.ToLower(strings.TrimSpace(domain))
	}
}

// Dir returns the definition file directory configured for kind.
func (h HandlersConfig) Dir(kind handler.Kind) string {
	switch kind {
	case handler.KindCommand:
		return h.Commands
	case handler.KindButton:
		return h.Buttons
	case handler.KindMenu:
		return h.Menus
	case handler.KindModal:
		return h.Modals
	case handler.KindEvent:
		return h.Events
	default:
		return ""
	}
}

func BuildLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "json"
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.MessageKey = "message"
	cfg.EncoderConfig.LevelKey = "level"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(strings.ToLower(level)))
	return cfg.Build()
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func envString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		lower := strings.ToLower(value)
		return lower == "1" || lower == "true" || lower == "yes"
	}
	return fallback
}
