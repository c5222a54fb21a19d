package config

import (
	"os"
	"path/filepath"
	"testing"

	"modwarden/internal/handler"

	"github.com/google/go-cmp/cmp"
)

func TestReadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "")
	t.Setenv("LOG_LEVEL", "")
	cfg, err := Read(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if diff := cmp.Diff(DefaultConfig(), cfg); diff != "" {
		t.Fatalf("defaults mismatch (-want +got):\n%s", diff)
	}
}

func TestReadYAMLAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
data_dir: /srv/modwarden
guild_id: "123"
handlers:
  commands: cmds
anti_link:
  allowed_domains: [" Example.COM "]
anti_raid:
  joins: 0
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("HEALTH_ENABLED", "yes")

	cfg, err := Read(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if cfg.DataDir != "/srv/modwarden" || cfg.GuildID != "123" {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.Handlers.Dir(handler.KindCommand) != "cmds" || cfg.Handlers.Dir(handler.KindEvent) != "handlers/events" {
		t.Fatalf("unexpected handler dirs %+v", cfg.Handlers)
	}
	if cfg.LogLevel != "debug" || !cfg.Health.Enabled {
		t.Fatalf("env overrides not applied")
	}
	if cfg.AntiRaid.Joins != DefaultConfig().AntiRaid.Joins {
		t.Fatalf("invalid joins should fall back, got %d", cfg.AntiRaid.Joins)
	}
	if diff := cmp.Diff([]string{"example.com"}, cfg.AntiLink.AllowedDomains); diff != "" {
		t.Fatalf("domains mismatch (-want +got):\n%s", diff)
	}
}

func TestReadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
log_level = "warn"

[welcome]
channel_id = "42"
width = 640
height = 200
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Read(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if cfg.LogLevel != "warn" || cfg.Welcome.ChannelID != "42" || cfg.Welcome.Width != 640 {
		t.Fatalf("toml values not applied: %+v", cfg.Welcome)
	}
}

func TestReadReplacesBadWelcomeBackground(t *testing.T) {
	dir := t.TempDir()
	for _, tc := range []struct {
		background string
		want       string
	}{
		{"#zz0000", "#1E1F22"},
		{"#12345", "#1E1F22"},
		{"#336699", "#336699"},
	} {
		path := filepath.Join(dir, "config.yaml")
		body := "welcome:\n  background: \"" + tc.background + "\"\n"
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		cfg, err := Read(path)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if cfg.Welcome.Background != tc.want {
			t.Fatalf("background %q: got %q, want %q", tc.background, cfg.Welcome.Background, tc.want)
		}
	}
}

func TestReadRejectsMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("health: [oops"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Read(path); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestLoadRequiresToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "none.yaml")
	t.Setenv("DISCORD_TOKEN", "")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected missing token error")
	}
	t.Setenv("DISCORD_TOKEN", "abc")
	cfg, err := Load(path)
	if err != nil || cfg.DiscordToken != "abc" {
		t.Fatalf("unexpected load result %v", err)
	}
}

func TestPathFromEnv(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	if Path() != "config.yaml" {
		t.Fatalf("unexpected default path %q", Path())
	}
	t.Setenv("CONFIG_PATH", "/etc/modwarden.toml")
	if Path() != "/etc/modwarden.toml" {
		t.Fatalf("unexpected path %q", Path())
	}
}

func TestBuildLogger(t *testing.T) {
	logger, err := BuildLogger("nonsense")
	if err != nil {
		t.Fatalf("build logger: %v", err)
	}
	if logger.Core().Enabled(-1) {
		t.Fatalf("unknown level should default to info")
	}
}
