package antiraid

import (
	"context"
	"fmt"
	"time"

	"modwarden/internal/config"
	"modwarden/internal/modules/audit"
	"modwarden/internal/utils"

	"github.com/bwmarrin/discordgo"
)

// Module detects join floods. It only reports them; the caller decides
// whether to lock the guild down.
type Module struct {
	joins  *utils.KeyedWindows
	config config.AntiRaidConfig
	audit  *audit.Logger
	now    func() time.Time
}

func New(cfg config.AntiRaidConfig, auditLogger *audit.Logger) *Module {
	return &Module{
		joins:  utils.NewKeyedWindows(time.Duration(cfg.WindowSeconds) * time.Second),
		config: cfg,
		audit:  auditLogger,
		now:    time.Now,
	}
}

func (m *Module) WithClock(now func() time.Time) {
	m.now = now
}

// HandleJoin records a member join and reports whether the guild crossed the
// join threshold within the window. Whether a guild is protected at all is
// the caller's per-guild setting; config.Enabled only seeds its default.
func (m *Module) HandleJoin(ctx context.Context, event *discordgo.GuildMemberAdd) bool {
	if event == nil || event.Member == nil {
		return false
	}
	guildID := event.GuildID
	if guildID == "" {
		return false
	}

	count := m.joins.Add(guildID, m.now())
	if count < m.config.Joins {
		return false
	}
	m.joins.Reset(guildID)

	userID := ""
	if event.User != nil {
		userID = event.User.ID
	}
	detail := fmt.Sprintf("rule=%djoins/%ds value=%djoins", m.config.Joins, m.config.WindowSeconds, count)
	m.audit.Log(ctx, audit.LevelWarn, guildID, userID, "anti_raid", detail)
	return true
}
