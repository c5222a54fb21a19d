package bot

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"modwarden/internal/modules/antilink"
	"modwarden/internal/modules/audit"
	"modwarden/internal/storage"
	"modwarden/internal/welcome"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

func (b *Bot) onReady(_ context.Context, s *discordgo.Session, r *discordgo.Ready) error {
	if r.User != nil {
		b.logger.Info("bot ready", zap.String("user", r.User.Username), zap.Int("guilds", len(r.Guilds)))
	}
	if s == nil {
		return nil
	}
	return s.UpdateGameStatus(0, "keeping the server safe")
}

// onGuildCreate picks up a lockdown left over from a previous run and
// records the permission bits of every role so later role updates can be
// diffed.
func (b *Bot) onGuildCreate(ctx context.Context, _ *discordgo.Session, g *discordgo.GuildCreate) error {
	if g.Guild == nil {
		return nil
	}
	b.resumeLockdown(ctx, g.ID)
	for _, role := range g.Roles {
		if role == nil {
			continue
		}
		if _, known, err := b.store.RolePermissions(ctx, g.ID, role.ID); err != nil {
			return err
		} else if known {
			continue
		}
		if err := b.store.SetRolePermissions(ctx, g.ID, role.ID, role.Permissions); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bot) onMemberAdd(ctx context.Context, s *discordgo.Session, m *discordgo.GuildMemberAdd) error {
	if m.Member == nil || m.User == nil || m.User.Bot {
		return nil
	}
	settings := b.guildSettings(ctx, m.GuildID)

	if settings.AntiRaid && b.antiraid.HandleJoin(ctx, m) {
		b.metrics.Action("raid_detected")
		b.playbook.TriggerLockdown(ctx, m.GuildID, "anti_raid")
	}

	if !settings.Welcome || settings.WelcomeChannelID == "" || s == nil {
		return nil
	}
	return b.sendWelcome(s, m, settings.WelcomeChannelID)
}

func (b *Bot) sendWelcome(s *discordgo.Session, m *discordgo.GuildMemberAdd, channelID string) error {
	card := welcome.Card{
		Width:      b.cfg.Welcome.Width,
		Height:     b.cfg.Welcome.Height,
		Background: b.cfg.Welcome.Background,
		Username:   m.User.Username,
	}
	if guild, err := s.State.Guild(m.GuildID); err == nil {
		card.GuildName = guild.Name
		card.MemberCount = guild.MemberCount
	}
	if avatar, err := s.UserAvatarDecode(m.User); err == nil {
		card.Avatar = avatar
	} else {
		b.logger.Debug("avatar unavailable", zap.String("user_id", m.User.ID), zap.Error(err))
	}

	png, err := welcome.Render(card)
	if err != nil {
		return fmt.Errorf("render welcome card: %w", err)
	}
	_, err = s.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content: fmt.Sprintf("Welcome <@%s>!", m.User.ID),
		Files: []*discordgo.File{
			{Name: "welcome.png", ContentType: "image/png", Reader: bytes.NewReader(png)},
		},
	})
	if err != nil {
		return fmt.Errorf("send welcome card: %w", err)
	}
	return nil
}

func (b *Bot) onVoiceStateUpdate(ctx context.Context, _ *discordgo.Session, v *discordgo.VoiceStateUpdate) error {
	if v.VoiceState == nil {
		return nil
	}
	before := ""
	if v.BeforeUpdate != nil {
		before = v.BeforeUpdate.ChannelID
	}
	details := voiceTransition(before, v.ChannelID)
	if details == "" {
		return nil
	}
	b.audit.Log(ctx, audit.LevelInfo, v.GuildID, v.UserID, "voice", details)
	return nil
}

// voiceTransition describes a move between voice channels. Mute and deafen
// changes keep the channel and describe as empty.
func voiceTransition(before, after string) string {
	switch {
	case before == after:
		return ""
	case before == "":
		return fmt.Sprintf("joined <#%s>", after)
	case after == "":
		return fmt.Sprintf("left <#%s>", before)
	default:
		return fmt.Sprintf("moved from <#%s> to <#%s>", before, after)
	}
}

func (b *Bot) onMessageCreate(ctx context.Context, s *discordgo.Session, m *discordgo.MessageCreate) error {
	if m.Message == nil || m.GuildID == "" || m.Author == nil || m.Author.Bot || s == nil {
		return nil
	}
	settings := b.guildSettings(ctx, m.GuildID)
	if !settings.AntiLink {
		return nil
	}
	if perms, err := s.State.UserChannelPermissions(m.Author.ID, m.ChannelID); err == nil && perms&discordgo.PermissionManageMessages != 0 {
		return nil
	}
	verdict := b.antilink.HandleMessage(ctx, m, b.allowlist(settings), antilink.Actions{
		Delete: func(channelID, messageID string) error {
			return s.ChannelMessageDelete(channelID, messageID)
		},
		Warn: func(channelID, content string) error {
			_, err := s.ChannelMessageSend(channelID, content)
			return err
		},
	})
	if verdict.Flagged {
		b.metrics.Action("link_removed")
	}
	return nil
}

// onMessageDelete keeps the content of deleted messages that were still in
// the state cache.
func (b *Bot) onMessageDelete(ctx context.Context, _ *discordgo.Session, m *discordgo.MessageDelete) error {
	if m.Message == nil || m.GuildID == "" {
		return nil
	}
	if prev := m.BeforeDelete; prev != nil && prev.Author != nil && prev.Author.Bot {
		return nil
	}
	return b.store.AddDeletedMessage(ctx, deletedMessage(m, time.Now().UTC()))
}

func deletedMessage(m *discordgo.MessageDelete, now time.Time) storage.DeletedMessage {
	deleted := storage.DeletedMessage{
		GuildID:   m.GuildID,
		ChannelID: m.ChannelID,
		MessageID: m.ID,
		DeletedAt: now,
	}
	if prev := m.BeforeDelete; prev != nil {
		deleted.Content = prev.Content
		if prev.Author != nil {
			deleted.AuthorID = prev.Author.ID
			deleted.AuthorName = prev.Author.Username
		}
		for _, attachment := range prev.Attachments {
			if attachment != nil {
				deleted.Attachments = append(deleted.Attachments, attachment.URL)
			}
		}
	}
	return deleted
}

// onRoleUpdate reports permission changes against the last snapshot.
// Granting a dangerous permission is logged as a warning.
func (b *Bot) onRoleUpdate(ctx context.Context, _ *discordgo.Session, r *discordgo.GuildRoleUpdate) error {
	if r.GuildRole == nil || r.Role == nil {
		return nil
	}
	role := r.Role
	before, known, err := b.store.RolePermissions(ctx, r.GuildID, role.ID)
	if err != nil {
		return err
	}
	if !known || before == role.Permissions {
		return b.store.SetRolePermissions(ctx, r.GuildID, role.ID, role.Permissions)
	}

	granted, revoked := diffPermissions(before, role.Permissions)
	change := storage.PermissionChange{
		GuildID:   r.GuildID,
		RoleID:    role.ID,
		RoleName:  role.Name,
		Before:    before,
		After:     role.Permissions,
		Granted:   granted,
		Revoked:   revoked,
		ChangedAt: time.Now().UTC(),
	}
	if err := b.store.AddPermissionChange(ctx, change); err != nil {
		return err
	}
	if err := b.store.SetRolePermissions(ctx, r.GuildID, role.ID, role.Permissions); err != nil {
		return err
	}

	level := audit.LevelInfo
	if (role.Permissions&^before)&dangerousPermissions != 0 {
		level = audit.LevelWarn
	}
	b.audit.Log(ctx, level, r.GuildID, "", "permission_change", "role "+role.Name+"\n"+describeChange(change))
	return nil
}
