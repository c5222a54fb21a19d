package bot

import (
	"strings"
	"testing"
	"time"

	"modwarden/internal/handler"
	"modwarden/internal/interaction"
	"modwarden/internal/storage"

	"github.com/bwmarrin/discordgo"
)

func settingsContext(subcommand string, options ...*discordgo.ApplicationCommandInteractionDataOption) *interaction.Context {
	return interaction.NewWithResponder(&discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type:    discordgo.InteractionApplicationCommand,
		GuildID: "g1",
		Data: discordgo.ApplicationCommandInteractionData{
			Name: "settings",
			Options: []*discordgo.ApplicationCommandInteractionDataOption{{
				Name:    subcommand,
				Type:    discordgo.ApplicationCommandOptionSubCommand,
				Options: options,
			}},
		},
	}}, nil)
}

func TestApplySetting(t *testing.T) {
	settings := storage.GuildSettings{GuildID: "g1", AntiLink: true}

	opts := settingsContext("anti-link", &discordgo.ApplicationCommandInteractionDataOption{
		Name: "enabled", Type: discordgo.ApplicationCommandOptionBoolean, Value: false,
	}).Options()
	if !applySetting(&settings, opts.Subcommand, opts) || settings.AntiLink {
		t.Fatalf("anti-link not disabled: %+v", settings)
	}

	opts = settingsContext("log-channel", &discordgo.ApplicationCommandInteractionDataOption{
		Name: "channel", Type: discordgo.ApplicationCommandOptionChannel, Value: "c9",
	}).Options()
	if !applySetting(&settings, opts.Subcommand, opts) || settings.LogChannelID != "c9" {
		t.Fatalf("log channel not set: %+v", settings)
	}

	opts = settingsContext("bogus").Options()
	if applySetting(&settings, opts.Subcommand, opts) {
		t.Fatalf("unknown subcommand must be rejected")
	}
}

func TestVoiceStatus(t *testing.T) {
	cases := []struct {
		action  string
		enabled bool
		want    string
	}{
		{"mute", true, "muted"},
		{"mute", false, "unmuted"},
		{"deafen", true, "deafened"},
		{"deafen", false, "undeafened"},
	}
	for _, tc := range cases {
		if got := voiceStatus(tc.action, tc.enabled); got != tc.want {
			t.Fatalf("voiceStatus(%q, %t) = %q, want %q", tc.action, tc.enabled, got, tc.want)
		}
	}
}

func TestFormatWarnings(t *testing.T) {
	if got := formatWarnings("u1", nil); got != "<@u1> has no warnings." {
		t.Fatalf("unexpected empty rendering %q", got)
	}
	got := formatWarnings("u1", []storage.Warning{
		{ID: 3, ModeratorID: "m1", Reason: "spam", CreatedAt: time.Unix(1700000000, 0)},
	})
	if !strings.Contains(got, "has 1 warnings") || !strings.Contains(got, "**#3** <t:1700000000:d> by <@m1>: spam") {
		t.Fatalf("unexpected rendering %q", got)
	}
}

func TestFormatReports(t *testing.T) {
	got := formatReports([]handler.LoadReport{
		{Kind: handler.KindCommand, LoadedCount: 2, FailedCount: 1, Failures: []handler.Failure{{File: "bad.yaml", Reason: "missing invoke"}}},
		{Kind: handler.KindEvent, LoadedCount: 7},
	})
	want := "**command**: 2 loaded, 1 failed\n- `bad.yaml`: missing invoke\n**event**: 7 loaded, 0 failed"
	if got != want {
		t.Fatalf("unexpected report:\n%s", got)
	}
}

func TestDescribeChange(t *testing.T) {
	if got := describeChange(storage.PermissionChange{}); got != "No named permissions changed." {
		t.Fatalf("unexpected %q", got)
	}
	got := describeChange(storage.PermissionChange{Granted: []string{"Kick Members"}, Revoked: []string{"Connect"}})
	if got != "Granted: Kick Members\nRevoked: Connect" {
		t.Fatalf("unexpected %q", got)
	}
}

func TestTruncate(t *testing.T) {
	if truncate("short", 10) != "short" {
		t.Fatalf("short values stay intact")
	}
	if got := truncate("abcdefghij", 6); got != "abc..." {
		t.Fatalf("unexpected %q", got)
	}
}
