package antiraid

import (
	"context"
	"testing"
	"time"

	"modwarden/internal/config"
	"modwarden/internal/modules/audit"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

func join(guildID, userID string) *discordgo.GuildMemberAdd {
	return &discordgo.GuildMemberAdd{Member: &discordgo.Member{GuildID: guildID, User: &discordgo.User{ID: userID}}}
}

func TestRaidJoinCounter(t *testing.T) {
	module := New(config.AntiRaidConfig{Enabled: true, Joins: 3, WindowSeconds: 5}, audit.NewLogger(zap.NewNop()))
	now := time.Unix(1000, 0)
	module.WithClock(func() time.Time { return now })

	ctx := context.Background()
	if module.HandleJoin(ctx, join("g1", "u1")) || module.HandleJoin(ctx, join("g1", "u2")) {
		t.Fatalf("raid flagged below threshold")
	}
	if module.HandleJoin(ctx, join("g2", "u3")) {
		t.Fatalf("guilds must be counted separately")
	}
	if !module.HandleJoin(ctx, join("g1", "u3")) {
		t.Fatalf("expected raid on third join")
	}
	if module.HandleJoin(ctx, join("g1", "u4")) {
		t.Fatalf("counter should reset after a raid is reported")
	}
}

func TestRaidWindowExpires(t *testing.T) {
	module := New(config.AntiRaidConfig{Enabled: true, Joins: 2, WindowSeconds: 5}, nil)
	now := time.Unix(1000, 0)
	module.WithClock(func() time.Time { return now })

	ctx := context.Background()
	module.HandleJoin(ctx, join("g1", "u1"))
	now = now.Add(6 * time.Second)
	if module.HandleJoin(ctx, join("g1", "u2")) {
		t.Fatalf("joins outside the window must not count")
	}
}

func TestRaidCountsWhenConfigDefaultOff(t *testing.T) {
	module := New(config.AntiRaidConfig{Enabled: false, Joins: 1, WindowSeconds: 5}, nil)
	if !module.HandleJoin(context.Background(), join("g1", "u1")) {
		t.Fatalf("config default must not suppress detection for a guild that opted in")
	}
	if module.HandleJoin(context.Background(), &discordgo.GuildMemberAdd{}) {
		t.Fatalf("join without a member must be ignored")
	}
}
