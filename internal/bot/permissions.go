package bot

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
)

// permissionNames labels the permission bits shown in change reports.
var permissionNames = []struct {
	bit  int64
	name string
}{
	{1 << 0, "Create Invite"},
	{1 << 1, "Kick Members"},
	{1 << 2, "Ban Members"},
	{1 << 3, "Administrator"},
	{1 << 4, "Manage Channels"},
	{1 << 5, "Manage Server"},
	{1 << 6, "Add Reactions"},
	{1 << 7, "View Audit Log"},
	{1 << 10, "View Channels"},
	{1 << 11, "Send Messages"},
	{1 << 13, "Manage Messages"},
	{1 << 14, "Embed Links"},
	{1 << 15, "Attach Files"},
	{1 << 16, "Read Message History"},
	{1 << 17, "Mention Everyone"},
	{1 << 20, "Connect"},
	{1 << 21, "Speak"},
	{1 << 22, "Mute Members"},
	{1 << 23, "Deafen Members"},
	{1 << 24, "Move Members"},
	{1 << 27, "Manage Nicknames"},
	{1 << 28, "Manage Roles"},
	{1 << 29, "Manage Webhooks"},
	{1 << 30, "Manage Expressions"},
	{1 << 33, "Manage Events"},
	{1 << 34, "Manage Threads"},
	{1 << 40, "Timeout Members"},
}

// dangerousPermissions are reported at warning level when granted.
const dangerousPermissions int64 = 1<<3 | 1<<5 | 1<<28 | 1<<29 | 1<<2 | 1<<1

func permissionList(bits int64) []string {
	var names []string
	for _, p := range permissionNames {
		if bits&p.bit != 0 {
			names = append(names, p.name)
		}
	}
	return names
}

// diffPermissions returns the names of the bits granted and revoked going
// from before to after.
func diffPermissions(before, after int64) (granted, revoked []string) {
	return permissionList(after &^ before), permissionList(before &^ after)
}

// maxPurge is the Discord bulk delete limit.
const maxPurge = 100

// bulkDeleteMaxAge is how old a message may be for bulk deletion.
const bulkDeleteMaxAge = 14 * 24 * time.Hour

// purgeable picks up to limit message ids, newest first, skipping pinned
// messages, messages too old to bulk delete and, when authorID is set,
// messages from other authors.
func purgeable(messages []*discordgo.Message, authorID string, limit int, now time.Time) []string {
	ids := make([]string, 0, limit)
	for _, msg := range messages {
		if len(ids) >= limit {
			break
		}
		if msg == nil || msg.Pinned {
			continue
		}
		if authorID != "" && (msg.Author == nil || msg.Author.ID != authorID) {
			continue
		}
		created, err := discordgo.SnowflakeTimestamp(msg.ID)
		if err != nil || now.Sub(created) >= bulkDeleteMaxAge {
			continue
		}
		ids = append(ids, msg.ID)
	}
	return ids
}

// roleToggles splits the selected roles into those to add and those to
// remove given the member's current roles.
func roleToggles(current, selected []string) (add, remove []string) {
	for _, roleID := range selected {
		if slices.Contains(current, roleID) {
			remove = append(remove, roleID)
		} else {
			add = append(add, roleID)
		}
	}
	return add, remove
}

var auditActions = []struct {
	name   string
	action discordgo.AuditLogAction
}{
	{"channel_create", discordgo.AuditLogActionChannelCreate},
	{"channel_update", discordgo.AuditLogActionChannelUpdate},
	{"channel_delete", discordgo.AuditLogActionChannelDelete},
	{"member_kick", discordgo.AuditLogActionMemberKick},
	{"member_ban", discordgo.AuditLogActionMemberBanAdd},
	{"member_unban", discordgo.AuditLogActionMemberBanRemove},
	{"member_update", discordgo.AuditLogActionMemberUpdate},
	{"member_role_update", discordgo.AuditLogActionMemberRoleUpdate},
	{"role_create", discordgo.AuditLogActionRoleCreate},
	{"role_update", discordgo.AuditLogActionRoleUpdate},
	{"role_delete", discordgo.AuditLogActionRoleDelete},
	{"message_delete", discordgo.AuditLogActionMessageDelete},
}

func auditActionOption() *discordgo.ApplicationCommandOption {
	opt := stringOption("action", "Only entries of this type", false)
	for _, a := range auditActions {
		opt.Choices = append(opt.Choices, &discordgo.ApplicationCommandOptionChoice{Name: a.name, Value: a.name})
	}
	return opt
}

func auditActionByName(name string) (discordgo.AuditLogAction, bool) {
	for _, a := range auditActions {
		if a.name == name {
			return a.action, true
		}
	}
	return 0, false
}

func auditActionName(action *discordgo.AuditLogAction) string {
	if action == nil {
		return "unknown"
	}
	for _, a := range auditActions {
		if a.action == *action {
			return a.name
		}
	}
	return fmt.Sprintf("action_%d", int(*action))
}

// formatAuditEntries renders audit log entries one per line.
func formatAuditEntries(entries []*discordgo.AuditLogEntry) string {
	lines := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry == nil {
			continue
		}
		line := fmt.Sprintf("`%s` by <@%s>", auditActionName(entry.ActionType), entry.UserID)
		if ts, err := discordgo.SnowflakeTimestamp(entry.ID); err == nil {
			line = fmt.Sprintf("<t:%d:R> %s", ts.Unix(), line)
		}
		if entry.TargetID != "" {
			line += " target `" + entry.TargetID + "`"
		}
		if entry.Reason != "" {
			line += ": " + entry.Reason
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return "No entries."
	}
	return truncate(strings.Join(lines, "\n"), 4000)
}
