package bot

import (
	"context"
	"fmt"
	"strings"

	"modwarden/internal/interaction"
	"modwarden/internal/modules/audit"

	"github.com/bwmarrin/discordgo"
)

const roleMenuID = "rolemenu"

func (b *Bot) cmdRoleMenu(ctx context.Context, c *interaction.Context) error {
	guildID := c.GuildID()
	if guildID == "" {
		return c.Reply(ctx, guildOnlyMessage, true)
	}
	opts := c.Options()

	var options []discordgo.SelectMenuOption
	seen := make(map[string]struct{})
	for i := 1; i <= 5; i++ {
		roleID := opts.ID(fmt.Sprintf("role%d", i))
		if roleID == "" {
			continue
		}
		if _, dup := seen[roleID]; dup {
			continue
		}
		seen[roleID] = struct{}{}
		label := roleID
		if role, err := c.Session.State.Role(guildID, roleID); err == nil && role != nil {
			label = role.Name
		}
		options = append(options, discordgo.SelectMenuOption{Label: label, Value: roleID})
	}
	if len(options) == 0 {
		return c.Reply(ctx, "Pick at least one role.", true)
	}

	minValues := 0
	_, err := c.Session.ChannelMessageSendComplex(c.ChannelID(), &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{b.embed(opts.String("title"), "Pick roles below to add or remove them.", b.cfg.EmbedColors.Info)},
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				discordgo.SelectMenu{
					CustomID:    roleMenuID,
					Placeholder: "Choose roles",
					MinValues:   &minValues,
					MaxValues:   len(options),
					Options:     options,
				},
			}},
		},
	})
	if err != nil {
		return fmt.Errorf("post role menu: %w", err)
	}
	return c.Reply(ctx, "Role menu posted.", true)
}

// onRoleMenu toggles every selected role on the member who used the menu.
func (b *Bot) onRoleMenu(ctx context.Context, c *interaction.Context) error {
	guildID := c.GuildID()
	if guildID == "" || c.Event.Member == nil {
		return c.Reply(ctx, guildOnlyMessage, true)
	}
	userID := c.UserID()
	add, remove := roleToggles(c.Event.Member.Roles, c.Values())
	if len(add)+len(remove) == 0 {
		return c.Reply(ctx, "No roles changed.", true)
	}
	for _, roleID := range add {
		if err := c.Session.GuildMemberRoleAdd(guildID, userID, roleID); err != nil {
			return fmt.Errorf("add role %s: %w", roleID, err)
		}
	}
	for _, roleID := range remove {
		if err := c.Session.GuildMemberRoleRemove(guildID, userID, roleID); err != nil {
			return fmt.Errorf("remove role %s: %w", roleID, err)
		}
	}

	var lines []string
	if len(add) > 0 {
		lines = append(lines, "Added "+mentionRoles(add))
	}
	if len(remove) > 0 {
		lines = append(lines, "Removed "+mentionRoles(remove))
	}
	summary := strings.Join(lines, "\n")
	b.audit.Log(ctx, audit.LevelInfo, guildID, userID, "moderation", "role menu: "+strings.ReplaceAll(summary, "\n", "; "))
	return c.Reply(ctx, summary, true)
}

func mentionRoles(ids []string) string {
	mentions := make([]string, len(ids))
	for i, id := range ids {
		mentions[i] = "<@&" + id + ">"
	}
	return strings.Join(mentions, ", ")
}
