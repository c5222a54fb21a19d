package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"modwarden/internal/handler"
	"modwarden/internal/interaction"
	"modwarden/internal/modules/audit"
	"modwarden/internal/storage"
	"modwarden/internal/utils"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const guildOnlyMessage = "This command only works in a server."

func (b *Bot) cmdPing(ctx context.Context, c *interaction.Context) error {
	latency := time.Duration(0)
	if c.Session != nil {
		latency = c.Session.HeartbeatLatency()
	}
	return c.Reply(ctx, fmt.Sprintf("Pong! Gateway latency %dms.", latency.Milliseconds()), true)
}

func (b *Bot) cmdRole(ctx context.Context, c *interaction.Context) error {
	guildID := c.GuildID()
	if guildID == "" {
		return c.Reply(ctx, guildOnlyMessage, true)
	}
	opts := c.Options()
	userID, roleID := opts.ID("user"), opts.ID("role")

	var err error
	var verb string
	switch opts.Subcommand {
	case "add":
		err = c.Session.GuildMemberRoleAdd(guildID, userID, roleID)
		verb = "Added"
	case "remove":
		err = c.Session.GuildMemberRoleRemove(guildID, userID, roleID)
		verb = "Removed"
	default:
		return c.Reply(ctx, "Unknown subcommand.", true)
	}
	if err != nil {
		return fmt.Errorf("role %s: %w", opts.Subcommand, err)
	}
	b.audit.Log(ctx, audit.LevelInfo, guildID, userID, "moderation",
		fmt.Sprintf("%s role <@&%s> by <@%s>", strings.ToLower(verb), roleID, c.UserID()))
	return c.Reply(ctx, fmt.Sprintf("%s <@&%s> for <@%s>.", verb, roleID, userID), true)
}

// voiceState finds the cached voice state of a member.
func voiceState(s *discordgo.Session, guildID, userID string) *discordgo.VoiceState {
	if s == nil || s.State == nil {
		return nil
	}
	guild, err := s.State.Guild(guildID)
	if err != nil || guild == nil {
		return nil
	}
	for _, state := range guild.VoiceStates {
		if state != nil && state.UserID == userID && state.ChannelID != "" {
			return state
		}
	}
	return nil
}

func (b *Bot) cmdMute(ctx context.Context, c *interaction.Context) error {
	return b.toggleVoice(ctx, c, "mute")
}

func (b *Bot) cmdDeafen(ctx context.Context, c *interaction.Context) error {
	return b.toggleVoice(ctx, c, "deafen")
}

func (b *Bot) toggleVoice(ctx context.Context, c *interaction.Context, action string) error {
	guildID := c.GuildID()
	if guildID == "" {
		return c.Reply(ctx, guildOnlyMessage, true)
	}
	userID := c.Options().ID("user")
	state := voiceState(c.Session, guildID, userID)
	if state == nil {
		return c.Reply(ctx, fmt.Sprintf("<@%s> is not in a voice channel.", userID), true)
	}

	var enabled bool
	var err error
	if action == "mute" {
		enabled = !state.Mute
		err = c.Session.GuildMemberMute(guildID, userID, enabled)
	} else {
		enabled = !state.Deaf
		err = c.Session.GuildMemberDeafen(guildID, userID, enabled)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}

	status := voiceStatus(action, enabled)
	b.audit.Log(ctx, audit.LevelInfo, guildID, userID, "moderation", fmt.Sprintf("%s by <@%s>", status, c.UserID()))
	return c.Reply(ctx, fmt.Sprintf("<@%s> is now %s.", userID, status), true)
}

func voiceStatus(action string, enabled bool) string {
	switch {
	case action == "mute" && enabled:
		return "muted"
	case action == "mute":
		return "unmuted"
	case enabled:
		return "deafened"
	default:
		return "undeafened"
	}
}

func (b *Bot) targetChannel(c *interaction.Context) (*discordgo.Channel, error) {
	channelID := c.Options().ID("channel")
	if channelID == "" {
		channelID = c.ChannelID()
	}
	channel, err := c.Session.State.Channel(channelID)
	if err != nil || channel == nil {
		channel, err = c.Session.Channel(channelID)
		if err != nil {
			return nil, fmt.Errorf("fetch channel %s: %w", channelID, err)
		}
	}
	if channel.GuildID == "" {
		channel.GuildID = c.GuildID()
	}
	return channel, nil
}

func (b *Bot) cmdLock(ctx context.Context, c *interaction.Context) error {
	if c.GuildID() == "" {
		return c.Reply(ctx, guildOnlyMessage, true)
	}
	channel, err := b.targetChannel(c)
	if err != nil {
		return err
	}
	reason := c.Options().String("reason")
	if reason == "" {
		reason = "manual"
	}
	switch err := b.lockChannel(ctx, channel, reason, c.UserID()); {
	case errors.Is(err, errAlreadyLocked):
		return c.Reply(ctx, fmt.Sprintf("<#%s> is already locked.", channel.ID), true)
	case err != nil:
		return err
	}
	b.audit.Log(ctx, audit.LevelInfo, c.GuildID(), c.UserID(), "moderation", fmt.Sprintf("locked <#%s>: %s", channel.ID, reason))
	return c.Reply(ctx, fmt.Sprintf("Locked <#%s>.", channel.ID), false)
}

func (b *Bot) cmdUnlock(ctx context.Context, c *interaction.Context) error {
	if c.GuildID() == "" {
		return c.Reply(ctx, guildOnlyMessage, true)
	}
	channelID := c.Options().ID("channel")
	if channelID == "" {
		channelID = c.ChannelID()
	}
	switch err := b.unlockChannel(ctx, c.GuildID(), channelID); {
	case errors.Is(err, errNotLocked):
		return c.Reply(ctx, fmt.Sprintf("<#%s> is not locked.", channelID), true)
	case err != nil:
		return err
	}
	b.audit.Log(ctx, audit.LevelInfo, c.GuildID(), c.UserID(), "moderation", fmt.Sprintf("unlocked <#%s>", channelID))
	return c.Reply(ctx, fmt.Sprintf("Unlocked <#%s>.", channelID), false)
}

func (b *Bot) cmdPurge(ctx context.Context, c *interaction.Context) error {
	if c.GuildID() == "" {
		return c.Reply(ctx, guildOnlyMessage, true)
	}
	opts := c.Options()
	amount := int(opts.Int("amount", 0))
	if amount < 1 || amount > maxPurge {
		return c.Reply(ctx, fmt.Sprintf("Amount must be between 1 and %d.", maxPurge), true)
	}
	if err := c.Defer(ctx, true); err != nil {
		return err
	}

	authorID := opts.ID("user")
	fetch := amount
	if authorID != "" {
		fetch = maxPurge
	}
	messages, err := c.Session.ChannelMessages(c.ChannelID(), fetch, "", "", "")
	if err != nil {
		return fmt.Errorf("fetch messages: %w", err)
	}
	ids := purgeable(messages, authorID, amount, time.Now())
	switch len(ids) {
	case 0:
		return c.FollowUp(ctx, "Nothing to delete. Messages older than 14 days cannot be bulk deleted.", true)
	case 1:
		err = c.Session.ChannelMessageDelete(c.ChannelID(), ids[0])
	default:
		err = c.Session.ChannelMessagesBulkDelete(c.ChannelID(), ids)
	}
	if err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	b.metrics.Action("purge")
	b.audit.Log(ctx, audit.LevelInfo, c.GuildID(), c.UserID(), "moderation", fmt.Sprintf("purged %d messages in <#%s>", len(ids), c.ChannelID()))
	return c.FollowUp(ctx, fmt.Sprintf("Deleted %d messages.", len(ids)), true)
}

func (b *Bot) cmdAuditLog(ctx context.Context, c *interaction.Context) error {
	if c.GuildID() == "" {
		return c.Reply(ctx, guildOnlyMessage, true)
	}
	opts := c.Options()
	action := 0
	if name := opts.String("action"); name != "" {
		a, ok := auditActionByName(name)
		if !ok {
			return c.Reply(ctx, "Unknown action type.", true)
		}
		action = int(a)
	}
	limit := int(opts.Int("limit", 10))
	logs, err := c.Session.GuildAuditLog(c.GuildID(), "", "", action, limit)
	if err != nil {
		return fmt.Errorf("fetch audit log: %w", err)
	}
	var entries []*discordgo.AuditLogEntry
	if logs != nil {
		entries = logs.AuditLogEntries
	}
	return c.ReplyEmbed(ctx, b.embed("Audit log", formatAuditEntries(entries), b.cfg.EmbedColors.Info), true)
}

func (b *Bot) cmdWarn(ctx context.Context, c *interaction.Context) error {
	if c.GuildID() == "" {
		return c.Reply(ctx, guildOnlyMessage, true)
	}
	opts := c.Options()
	userID := opts.ID("user")
	reason := strings.TrimSpace(opts.String("reason"))
	if reason == "" {
		return c.Reply(ctx, "A reason is required.", true)
	}
	warning, err := b.store.AddWarning(ctx, storage.Warning{
		GuildID:     c.GuildID(),
		UserID:      userID,
		ModeratorID: c.UserID(),
		Reason:      reason,
	})
	if err != nil {
		return err
	}
	warnings, err := b.store.ListWarnings(ctx, c.GuildID(), userID)
	if err != nil {
		return err
	}

	b.audit.Log(ctx, audit.LevelWarn, c.GuildID(), userID, "warning", fmt.Sprintf("#%d by <@%s>: %s", warning.ID, c.UserID(), reason))
	if dm, err := c.Session.UserChannelCreate(userID); err == nil {
		_, _ = c.Session.ChannelMessageSend(dm.ID, "You received a warning: "+reason)
	}
	embed := b.embed("Member warned", fmt.Sprintf("<@%s> has been warned.", userID), b.cfg.EmbedColors.Warning,
		&discordgo.MessageEmbedField{Name: "Reason", Value: truncate(reason, 1000)},
		&discordgo.MessageEmbedField{Name: "Warning", Value: fmt.Sprintf("#%d", warning.ID), Inline: true},
		&discordgo.MessageEmbedField{Name: "Total", Value: fmt.Sprintf("%d", len(warnings)), Inline: true},
	)
	return c.ReplyEmbed(ctx, embed, false)
}

func (b *Bot) cmdWarnings(ctx context.Context, c *interaction.Context) error {
	guildID := c.GuildID()
	if guildID == "" {
		return c.Reply(ctx, guildOnlyMessage, true)
	}
	opts := c.Options()
	switch opts.Subcommand {
	case "list":
		userID := opts.ID("user")
		warnings, err := b.store.ListWarnings(ctx, guildID, userID)
		if err != nil {
			return err
		}
		return c.ReplyEmbed(ctx, b.embed("Warnings", formatWarnings(userID, warnings), b.cfg.EmbedColors.Info), true)
	case "clear":
		userID := opts.ID("user")
		removed, err := b.store.ClearWarnings(ctx, guildID, userID)
		if err != nil {
			return err
		}
		b.audit.Log(ctx, audit.LevelInfo, guildID, userID, "warning", fmt.Sprintf("%d warnings cleared by <@%s>", removed, c.UserID()))
		return c.Reply(ctx, fmt.Sprintf("Cleared %d warnings for <@%s>.", removed, userID), true)
	case "remove":
		id := int(opts.Int("id", 0))
		err := b.store.RemoveWarning(ctx, guildID, id)
		if errors.Is(err, storage.ErrNotFound) {
			return c.Reply(ctx, fmt.Sprintf("Warning #%d does not exist.", id), true)
		}
		if err != nil {
			return err
		}
		return c.Reply(ctx, fmt.Sprintf("Removed warning #%d.", id), true)
	default:
		return c.Reply(ctx, "Unknown subcommand.", true)
	}
}

func formatWarnings(userID string, warnings []storage.Warning) string {
	if len(warnings) == 0 {
		return fmt.Sprintf("<@%s> has no warnings.", userID)
	}
	lines := make([]string, 0, len(warnings)+1)
	lines = append(lines, fmt.Sprintf("<@%s> has %d warnings:", userID, len(warnings)))
	for _, w := range warnings {
		lines = append(lines, fmt.Sprintf("**#%d** <t:%d:d> by <@%s>: %s", w.ID, w.CreatedAt.Unix(), w.ModeratorID, w.Reason))
	}
	return truncate(strings.Join(lines, "\n"), 4000)
}

func (b *Bot) cmdSettings(ctx context.Context, c *interaction.Context) error {
	guildID := c.GuildID()
	if guildID == "" {
		return c.Reply(ctx, guildOnlyMessage, true)
	}
	opts := c.Options()
	if opts.Subcommand == "view" || opts.Subcommand == "" {
		return c.ReplyEmbed(ctx, b.settingsEmbed(b.guildSettings(ctx, guildID)), true)
	}

	switch opts.Subcommand {
	case "allow-domain", "disallow-domain":
		_, domain, err := utils.NormalizeURL("https://" + strings.TrimSpace(opts.String("domain")))
		if err != nil || domain == "" {
			return c.Reply(ctx, "That is not a valid domain.", true)
		}
		defaults, err := b.storedSettings(ctx, guildID)
		if err != nil {
			return err
		}
		if opts.Subcommand == "allow-domain" {
			err = b.store.AddDomainAllow(ctx, guildID, domain, defaults)
		} else {
			err = b.store.RemoveDomainAllow(ctx, guildID, domain)
		}
		if err != nil {
			return err
		}
	case "lockdown-release":
		resumed := b.resumeLockdown(ctx, guildID)
		if !b.playbook.Release(ctx, guildID) && !resumed {
			return c.Reply(ctx, "No lockdown is active.", true)
		}
	default:
		settings, err := b.storedSettings(ctx, guildID)
		if err != nil {
			return err
		}
		if !applySetting(&settings, opts.Subcommand, opts) {
			return c.Reply(ctx, "Unknown subcommand.", true)
		}
		if err := b.store.UpsertGuildSettings(ctx, settings); err != nil {
			return err
		}
	}
	b.audit.Log(ctx, audit.LevelInfo, guildID, c.UserID(), "settings", "changed "+opts.Subcommand)
	return c.ReplyEmbed(ctx, b.settingsEmbed(b.guildSettings(ctx, guildID)), true)
}

// applySetting writes one settings subcommand into settings.
func applySetting(settings *storage.GuildSettings, subcommand string, opts interaction.Options) bool {
	switch subcommand {
	case "log-channel":
		settings.LogChannelID = opts.ID("channel")
	case "welcome-channel":
		settings.WelcomeChannelID = opts.ID("channel")
	case "anti-link":
		settings.AntiLink = opts.Bool("enabled", settings.AntiLink)
	case "anti-raid":
		settings.AntiRaid = opts.Bool("enabled", settings.AntiRaid)
	case "welcome":
		settings.Welcome = opts.Bool("enabled", settings.Welcome)
	default:
		return false
	}
	return true
}

func (b *Bot) settingsEmbed(settings storage.GuildSettings) *discordgo.MessageEmbed {
	channel := func(id string) string {
		if id == "" {
			return "not set"
		}
		return "<#" + id + ">"
	}
	onOff := func(v bool) string {
		if v {
			return "on"
		}
		return "off"
	}
	domains := "none"
	if len(settings.AllowedDomains) > 0 {
		domains = strings.Join(settings.AllowedDomains, ", ")
	}
	lockdown := onOff(b.playbook.IsLockdown(settings.GuildID).Lockdown)
	return b.embed("Settings", "", b.cfg.EmbedColors.Info,
		&discordgo.MessageEmbedField{Name: "Log channel", Value: channel(settings.LogChannelID), Inline: true},
		&discordgo.MessageEmbedField{Name: "Welcome channel", Value: channel(settings.WelcomeChannelID), Inline: true},
		&discordgo.MessageEmbedField{Name: "Welcome images", Value: onOff(settings.Welcome), Inline: true},
		&discordgo.MessageEmbedField{Name: "Anti-link", Value: onOff(settings.AntiLink), Inline: true},
		&discordgo.MessageEmbedField{Name: "Anti-raid", Value: onOff(settings.AntiRaid), Inline: true},
		&discordgo.MessageEmbedField{Name: "Lockdown", Value: lockdown, Inline: true},
		&discordgo.MessageEmbedField{Name: "Allowed domains", Value: truncate(domains, 1000)},
	)
}

func (b *Bot) cmdSetup(ctx context.Context, c *interaction.Context) error {
	guildID := c.GuildID()
	if guildID == "" {
		return c.Reply(ctx, guildOnlyMessage, true)
	}
	if err := c.Defer(ctx, true); err != nil {
		return err
	}
	guild, err := c.Session.State.Guild(guildID)
	if err != nil || guild == nil {
		if guild, err = c.Session.Guild(guildID); err != nil {
			return fmt.Errorf("fetch guild: %w", err)
		}
	}
	channels, err := c.Session.GuildChannels(guildID)
	if err != nil {
		return fmt.Errorf("fetch channels: %w", err)
	}

	var created []string
	modRole := findRole(guild.Roles, "Moderator")
	if modRole == nil {
		perms := permManageMessages | permModerateMembers | permMuteMembers | permViewAuditLog
		hoist := true
		modRole, err = c.Session.GuildRoleCreate(guildID, &discordgo.RoleParams{Name: "Moderator", Permissions: &perms, Hoist: &hoist})
		if err != nil {
			return fmt.Errorf("create moderator role: %w", err)
		}
		created = append(created, "role Moderator")
	}

	category := findChannel(channels, "Moderation", discordgo.ChannelTypeGuildCategory)
	if category == nil {
		category, err = c.Session.GuildChannelCreateComplex(guildID, discordgo.GuildChannelCreateData{
			Name: "Moderation",
			Type: discordgo.ChannelTypeGuildCategory,
			PermissionOverwrites: []*discordgo.PermissionOverwrite{
				{ID: guildID, Type: discordgo.PermissionOverwriteTypeRole, Deny: discordgo.PermissionViewChannel},
				{ID: modRole.ID, Type: discordgo.PermissionOverwriteTypeRole, Allow: discordgo.PermissionViewChannel},
			},
		})
		if err != nil {
			return fmt.Errorf("create category: %w", err)
		}
		created = append(created, "category Moderation")
	}

	logChannel := findChannel(channels, "mod-log", discordgo.ChannelTypeGuildText)
	if logChannel == nil {
		logChannel, err = c.Session.GuildChannelCreateComplex(guildID, discordgo.GuildChannelCreateData{
			Name:     "mod-log",
			Type:     discordgo.ChannelTypeGuildText,
			ParentID: category.ID,
		})
		if err != nil {
			return fmt.Errorf("create log channel: %w", err)
		}
		created = append(created, "channel #mod-log")
	}
	welcomeChannel := findChannel(channels, "welcome", discordgo.ChannelTypeGuildText)
	if welcomeChannel == nil {
		welcomeChannel, err = c.Session.GuildChannelCreateComplex(guildID, discordgo.GuildChannelCreateData{
			Name: "welcome",
			Type: discordgo.ChannelTypeGuildText,
		})
		if err != nil {
			return fmt.Errorf("create welcome channel: %w", err)
		}
		created = append(created, "channel #welcome")
	}

	settings, err := b.storedSettings(ctx, guildID)
	if err != nil {
		return err
	}
	settings.LogChannelID = logChannel.ID
	settings.WelcomeChannelID = welcomeChannel.ID
	if err := b.store.UpsertGuildSettings(ctx, settings); err != nil {
		return err
	}

	summary := "Everything was already in place."
	if len(created) > 0 {
		summary = "Created " + strings.Join(created, ", ") + "."
	}
	b.audit.Log(ctx, audit.LevelInfo, guildID, c.UserID(), "settings", "setup: "+summary)
	return c.FollowUpEmbed(ctx, b.embed("Setup complete", summary, b.cfg.EmbedColors.Success), true)
}

func findRole(roles []*discordgo.Role, name string) *discordgo.Role {
	for _, role := range roles {
		if role != nil && strings.EqualFold(role.Name, name) {
			return role
		}
	}
	return nil
}

func findChannel(channels []*discordgo.Channel, name string, kind discordgo.ChannelType) *discordgo.Channel {
	for _, channel := range channels {
		if channel != nil && channel.Type == kind && strings.EqualFold(channel.Name, name) {
			return channel
		}
	}
	return nil
}

func (b *Bot) cmdDeleted(ctx context.Context, c *interaction.Context) error {
	if c.GuildID() == "" {
		return c.Reply(ctx, guildOnlyMessage, true)
	}
	opts := c.Options()
	messages, err := b.store.ListDeletedMessages(ctx, c.GuildID(), opts.ID("channel"), int(opts.Int("limit", 5)))
	if err != nil {
		return err
	}
	if len(messages) == 0 {
		return c.Reply(ctx, "No deleted messages recorded.", true)
	}
	fields := make([]*discordgo.MessageEmbedField, 0, len(messages))
	for _, msg := range messages {
		author := "unknown author"
		if msg.AuthorID != "" {
			author = "<@" + msg.AuthorID + ">"
		}
		content := msg.Content
		if content == "" {
			content = "*no text*"
		}
		if len(msg.Attachments) > 0 {
			content += "\n" + strings.Join(msg.Attachments, "\n")
		}
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:  fmt.Sprintf("#%s", msg.ChannelID),
			Value: truncate(fmt.Sprintf("%s in <#%s> <t:%d:R>\n%s", author, msg.ChannelID, msg.DeletedAt.Unix(), content), 1000),
		})
	}
	return c.ReplyEmbed(ctx, b.embed("Deleted messages", "", b.cfg.EmbedColors.Info, fields...), true)
}

func (b *Bot) cmdPermissions(ctx context.Context, c *interaction.Context) error {
	if c.GuildID() == "" {
		return c.Reply(ctx, guildOnlyMessage, true)
	}
	changes, err := b.store.ListPermissionChanges(ctx, c.GuildID(), int(c.Options().Int("limit", 5)))
	if err != nil {
		return err
	}
	if len(changes) == 0 {
		return c.Reply(ctx, "No permission changes recorded.", true)
	}
	fields := make([]*discordgo.MessageEmbedField, 0, len(changes))
	for _, change := range changes {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:  fmt.Sprintf("%s (%s)", change.RoleName, change.ChangedAt.Format(time.DateTime)),
			Value: truncate(describeChange(change), 1000),
		})
	}
	return c.ReplyEmbed(ctx, b.embed("Permission changes", "", b.cfg.EmbedColors.Info, fields...), true)
}

func describeChange(change storage.PermissionChange) string {
	var parts []string
	if len(change.Granted) > 0 {
		parts = append(parts, "Granted: "+strings.Join(change.Granted, ", "))
	}
	if len(change.Revoked) > 0 {
		parts = append(parts, "Revoked: "+strings.Join(change.Revoked, ", "))
	}
	if len(parts) == 0 {
		return "No named permissions changed."
	}
	return strings.Join(parts, "\n")
}

func (b *Bot) cmdReload(ctx context.Context, c *interaction.Context) error {
	if err := c.Defer(ctx, true); err != nil {
		return err
	}
	reports, err := b.LoadHandlers()
	if err != nil {
		b.logger.Error("reload left a mandatory kind empty", zap.Error(err))
	}
	if b.cfg.SyncCommands {
		if err := b.registerCommands(); err != nil {
			b.logger.Warn("command sync after reload failed", zap.Error(err))
		}
	}
	b.audit.Log(ctx, audit.LevelInfo, c.GuildID(), c.UserID(), "settings", "handlers reloaded")
	return c.FollowUpEmbed(ctx, b.embed("Handlers reloaded", formatReports(reports), b.cfg.EmbedColors.Success), true)
}

func formatReports(reports []handler.LoadReport) string {
	lines := make([]string, 0, len(reports))
	for _, report := range reports {
		line := fmt.Sprintf("**%s**: %d loaded, %d failed", report.Kind, report.LoadedCount, report.FailedCount)
		for _, failure := range report.Failures {
			line += fmt.Sprintf("\n- `%s`: %s", failure.File, failure.Reason)
		}
		lines = append(lines, line)
	}
	return truncate(strings.Join(lines, "\n"), 4000)
}
