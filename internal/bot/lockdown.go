package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"modwarden/internal/modules/audit"
	"modwarden/internal/storage"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const lockdownReason = "lockdown"

var (
	errAlreadyLocked = errors.New("channel is already locked")
	errNotLocked     = errors.New("channel is not locked")
)

// everyoneOverwrite returns the @everyone overwrite of a channel. The
// @everyone role shares the guild's id.
func everyoneOverwrite(channel *discordgo.Channel) (allow, deny int64, ok bool) {
	for _, overwrite := range channel.PermissionOverwrites {
		if overwrite.Type == discordgo.PermissionOverwriteTypeRole && overwrite.ID == channel.GuildID {
			return overwrite.Allow, overwrite.Deny, true
		}
	}
	return 0, 0, false
}

// lockChannel denies Send Messages to @everyone and remembers the previous
// overwrite so unlockChannel can restore it.
func (b *Bot) lockChannel(ctx context.Context, channel *discordgo.Channel, reason, lockedBy string) error {
	if _, locked, err := b.store.ChannelLock(ctx, channel.GuildID, channel.ID); err != nil {
		return err
	} else if locked {
		return errAlreadyLocked
	}

	allow, deny, had := everyoneOverwrite(channel)
	lock := storage.ChannelLock{
		GuildID:      channel.GuildID,
		ChannelID:    channel.ID,
		Allow:        allow,
		Deny:         deny,
		HadOverwrite: had,
		Reason:       reason,
		LockedBy:     lockedBy,
		LockedAt:     time.Now().UTC(),
	}
	if err := b.store.SetChannelLock(ctx, lock); err != nil {
		return err
	}
	err := b.session.ChannelPermissionSet(channel.ID, channel.GuildID, discordgo.PermissionOverwriteTypeRole,
		allow&^discordgo.PermissionSendMessages, deny|discordgo.PermissionSendMessages)
	if err != nil {
		_ = b.store.DeleteChannelLock(ctx, channel.GuildID, channel.ID)
		return fmt.Errorf("lock channel %s: %w", channel.ID, err)
	}
	return nil
}

func (b *Bot) unlockChannel(ctx context.Context, guildID, channelID string) error {
	lock, ok, err := b.store.ChannelLock(ctx, guildID, channelID)
	if err != nil {
		return err
	}
	if !ok {
		return errNotLocked
	}
	if lock.HadOverwrite {
		err = b.session.ChannelPermissionSet(channelID, guildID, discordgo.PermissionOverwriteTypeRole, lock.Allow, lock.Deny)
	} else {
		err = b.session.ChannelPermissionDelete(channelID, guildID)
	}
	if err != nil {
		return fmt.Errorf("unlock channel %s: %w", channelID, err)
	}
	return b.store.DeleteChannelLock(ctx, guildID, channelID)
}

// lockGuild runs when a lockdown starts and locks every text channel that is
// not locked already.
func (b *Bot) lockGuild(ctx context.Context, guildID, reason string) {
	channels, err := b.session.GuildChannels(guildID)
	if err != nil {
		b.logger.Warn("lockdown channel list failed", zap.String("guild_id", guildID), zap.Error(err))
		return
	}
	locked := 0
	for _, channel := range channels {
		if channel == nil || (channel.Type != discordgo.ChannelTypeGuildText && channel.Type != discordgo.ChannelTypeGuildNews) {
			continue
		}
		if channel.GuildID == "" {
			channel.GuildID = guildID
		}
		switch err := b.lockChannel(ctx, channel, lockdownReason, reason); {
		case err == nil:
			locked++
		case errors.Is(err, errAlreadyLocked):
		default:
			b.logger.Warn("lockdown lock failed", zap.String("channel_id", channel.ID), zap.Error(err))
		}
	}
	b.setLockdownFlag(ctx, guildID, true, b.playbook.IsLockdown(guildID).Until)
	b.metrics.Action("lockdown")
	b.audit.Log(ctx, audit.LevelCrit, guildID, "", "raid_lockdown", fmt.Sprintf("locked %d channels", locked))
}

// unlockGuild restores the channels locked by lockGuild. Channels locked by
// hand stay locked.
func (b *Bot) unlockGuild(ctx context.Context, guildID, _ string) {
	locks, err := b.store.ListChannelLocks(ctx, guildID, lockdownReason)
	if err != nil {
		b.logger.Warn("lockdown restore failed", zap.String("guild_id", guildID), zap.Error(err))
		return
	}
	for _, lock := range locks {
		if err := b.unlockChannel(ctx, guildID, lock.ChannelID); err != nil {
			b.logger.Warn("lockdown unlock failed", zap.String("channel_id", lock.ChannelID), zap.Error(err))
		}
	}
	b.setLockdownFlag(ctx, guildID, false, time.Time{})
}

// resumeLockdown hands a lockdown left over from a previous run back to the
// playbook, which ends it when its stored deadline passes. A lockdown
// stored without a deadline ends at once.
func (b *Bot) resumeLockdown(ctx context.Context, guildID string) bool {
	if b.playbook.IsLockdown(guildID).Lockdown {
		return false
	}
	settings, err := b.storedSettings(ctx, guildID)
	if err != nil {
		b.logger.Warn("lockdown resume skipped", zap.String("guild_id", guildID), zap.Error(err))
		return false
	}
	locks, err := b.store.ListChannelLocks(ctx, guildID, lockdownReason)
	if err != nil {
		b.logger.Warn("lockdown resume skipped", zap.String("guild_id", guildID), zap.Error(err))
		return false
	}
	if !settings.LockdownEnabled && len(locks) == 0 {
		return false
	}
	until := settings.LockdownUntil
	if until.IsZero() {
		until = time.Now()
	}
	return b.playbook.Resume(ctx, guildID, lockdownReason, until)
}

func (b *Bot) setLockdownFlag(ctx context.Context, guildID string, enabled bool, until time.Time) {
	settings, err := b.storedSettings(ctx, guildID)
	if err != nil || (settings.LockdownEnabled == enabled && settings.LockdownUntil.Equal(until)) {
		return
	}
	settings.LockdownEnabled = enabled
	settings.LockdownUntil = until
	if err := b.store.UpsertGuildSettings(ctx, settings); err != nil {
		b.logger.Warn("lockdown flag update failed", zap.String("guild_id", guildID), zap.Error(err))
	}
}
