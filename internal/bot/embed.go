package bot

import (
	"context"
	"fmt"
	"strings"

	"modwarden/internal/interaction"
	"modwarden/internal/session"
	"modwarden/internal/welcome"

	"github.com/bwmarrin/discordgo"
)

const (
	embedButtonID = "embed"
	embedModalID  = "embedmodal"
	embedKind     = "embed"

	embedExpired = "This embed builder has expired. Run /embed again."
)

// embedDraft is the work in progress of one user's embed builder.
type embedDraft struct {
	ChannelID   string
	Title       string
	Description string
	Color       int
}

func (d embedDraft) embed() *discordgo.MessageEmbed {
	title := d.Title
	description := d.Description
	if title == "" && description == "" {
		description = "*Empty embed. Use Edit to add a title and text.*"
	}
	return &discordgo.MessageEmbed{Title: title, Description: description, Color: d.Color}
}

func (d embedDraft) ready() bool {
	return strings.TrimSpace(d.Title) != "" || strings.TrimSpace(d.Description) != ""
}

func embedControls(ready bool) []discordgo.MessageComponent {
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{Label: "Edit", Style: discordgo.PrimaryButton, CustomID: embedButtonID + ":edit"},
			discordgo.Button{Label: "Send", Style: discordgo.SuccessButton, CustomID: embedButtonID + ":send", Disabled: !ready},
			discordgo.Button{Label: "Cancel", Style: discordgo.DangerButton, CustomID: embedButtonID + ":cancel"},
		}},
	}
}

// parseEmbedColor accepts #RRGGBB. An empty value keeps fallback.
func parseEmbedColor(value string, fallback int) (int, error) {
	if strings.TrimSpace(value) == "" {
		return fallback, nil
	}
	c, err := welcome.ParseColor(value)
	if err != nil {
		return 0, err
	}
	return int(c.R)<<16 | int(c.G)<<8 | int(c.B), nil
}

func draftKey(userID string) session.Key {
	return session.Key{UserID: userID, Kind: embedKind}
}

func (b *Bot) cmdEmbed(ctx context.Context, c *interaction.Context) error {
	if c.GuildID() == "" {
		return c.Reply(ctx, guildOnlyMessage, true)
	}
	channelID := c.Options().ID("channel")
	if channelID == "" {
		channelID = c.ChannelID()
	}
	draft := embedDraft{ChannelID: channelID, Color: b.cfg.EmbedColors.Info}
	b.drafts.Put(draftKey(c.UserID()), draft)
	return c.ReplyEmbed(ctx, draft.embed(), true, embedControls(draft.ready())...)
}

// onEmbedButton serves embed:edit, embed:send and embed:cancel.
func (b *Bot) onEmbedButton(ctx context.Context, c *interaction.Context) error {
	args := c.RouteArgs()
	if len(args) == 0 {
		return fmt.Errorf("embed button without action")
	}
	key := draftKey(c.UserID())
	draft, ok := b.drafts.Get(key)
	if !ok {
		return c.Update(ctx, &discordgo.InteractionResponseData{Content: embedExpired, Embeds: []*discordgo.MessageEmbed{}, Components: []discordgo.MessageComponent{}})
	}

	switch args[0] {
	case "edit":
		return c.ShowModal(ctx, embedModalID, "Edit embed", embedFields(draft)...)
	case "send":
		if !draft.ready() {
			return c.Reply(ctx, "Add a title or description first.", true)
		}
		if _, err := c.Session.ChannelMessageSendEmbed(draft.ChannelID, draft.embed()); err != nil {
			return fmt.Errorf("send embed: %w", err)
		}
		b.drafts.Delete(key)
		return c.Update(ctx, &discordgo.InteractionResponseData{
			Content:    fmt.Sprintf("Embed sent to <#%s>.", draft.ChannelID),
			Embeds:     []*discordgo.MessageEmbed{},
			Components: []discordgo.MessageComponent{},
		})
	case "cancel":
		b.drafts.Delete(key)
		return c.Update(ctx, &discordgo.InteractionResponseData{
			Content:    "Embed builder closed.",
			Embeds:     []*discordgo.MessageEmbed{},
			Components: []discordgo.MessageComponent{},
		})
	default:
		return fmt.Errorf("unknown embed action %q", args[0])
	}
}

func embedFields(draft embedDraft) []discordgo.MessageComponent {
	color := ""
	if draft.Color != 0 {
		color = fmt.Sprintf("#%06X", draft.Color)
	}
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.TextInput{CustomID: "title", Label: "Title", Style: discordgo.TextInputShort, Value: draft.Title, MaxLength: 256},
		}},
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.TextInput{CustomID: "description", Label: "Description", Style: discordgo.TextInputParagraph, Value: draft.Description, MaxLength: 4000},
		}},
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.TextInput{CustomID: "color", Label: "Color (#RRGGBB)", Style: discordgo.TextInputShort, Value: color, MaxLength: 7},
		}},
	}
}

func (b *Bot) onEmbedModal(ctx context.Context, c *interaction.Context) error {
	key := draftKey(c.UserID())
	draft, ok := b.drafts.Get(key)
	if !ok {
		return c.Reply(ctx, embedExpired, true)
	}
	color, err := parseEmbedColor(c.ModalValue("color"), draft.Color)
	if err != nil {
		return c.Reply(ctx, "Colors look like #5865F2.", true)
	}
	draft, ok = b.drafts.Update(key, func(d embedDraft) embedDraft {
		d.Title = strings.TrimSpace(c.ModalValue("title"))
		d.Description = strings.TrimSpace(c.ModalValue("description"))
		d.Color = color
		return d
	})
	if !ok {
		return c.Reply(ctx, embedExpired, true)
	}
	return c.Update(ctx, &discordgo.InteractionResponseData{
		Embeds:     []*discordgo.MessageEmbed{draft.embed()},
		Components: embedControls(draft.ready()),
	})
}
