// Package interaction wraps one Discord interaction with the reply state
// discordgo does not track.
package interaction

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"
)

var ErrAlreadyReplied = errors.New("interaction already acknowledged")

// Responder is the subset of the Discord REST API used to answer an
// interaction.
type Responder interface {
	Respond(i *discordgo.Interaction, resp *discordgo.InteractionResponse) error
	FollowUp(i *discordgo.Interaction, params *discordgo.WebhookParams) (*discordgo.Message, error)
}

type sessionResponder struct {
	session *discordgo.Session
}

func (r sessionResponder) Respond(i *discordgo.Interaction, resp *discordgo.InteractionResponse) error {
	return r.session.InteractionRespond(i, resp)
}

func (r sessionResponder) FollowUp(i *discordgo.Interaction, params *discordgo.WebhookParams) (*discordgo.Message, error) {
	return r.session.FollowupMessageCreate(i, true, params)
}

type Context struct {
	Session *discordgo.Session
	Event   *discordgo.InteractionCreate

	responder Responder

	mu       sync.Mutex
	replied  bool
	deferred bool
}

func New(session *discordgo.Session, event *discordgo.InteractionCreate) *Context {
	return &Context{Session: session, Event: event, responder: sessionResponder{session: session}}
}

// NewWithResponder builds a context that answers through responder instead
// of a live session.
func NewWithResponder(event *discordgo.InteractionCreate, responder Responder) *Context {
	return &Context{Event: event, responder: responder}
}

// Identifier returns the command name for application commands and the
// custom id for components and modals.
func (c *Context) Identifier() string {
	if c.Event == nil || c.Event.Interaction == nil {
		return ""
	}
	switch c.Event.Type {
	case discordgo.InteractionApplicationCommand, discordgo.InteractionApplicationCommandAutocomplete:
		return c.Event.ApplicationCommandData().Name
	case discordgo.InteractionMessageComponent:
		return c.Event.MessageComponentData().CustomID
	case discordgo.InteractionModalSubmit:
		return c.Event.ModalSubmitData().CustomID
	default:
		return ""
	}
}

// RouteArgs returns the colon separated state after the routing key, so
// "embed:send:42" yields ["send", "42"].
func (c *Context) RouteArgs() []string {
	_, rest, ok := strings.Cut(c.Identifier(), ":")
	if !ok || rest == "" {
		return nil
	}
	return strings.Split(rest, ":")
}

func (c *Context) GuildID() string {
	if c.Event == nil || c.Event.Interaction == nil {
		return ""
	}
	return c.Event.GuildID
}

func (c *Context) ChannelID() string {
	if c.Event == nil || c.Event.Interaction == nil {
		return ""
	}
	return c.Event.ChannelID
}

// User returns the invoking user in guilds and DMs alike.
func (c *Context) User() *discordgo.User {
	if c.Event == nil || c.Event.Interaction == nil {
		return nil
	}
	if c.Event.Member != nil && c.Event.Member.User != nil {
		return c.Event.Member.User
	}
	return c.Event.User
}

func (c *Context) UserID() string {
	if user := c.User(); user != nil {
		return user.ID
	}
	return ""
}

func (c *Context) Replied() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.replied
}

func (c *Context) Deferred() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deferred
}

// Respond sends the initial interaction response. Only one initial response
// is allowed.
func (c *Context) Respond(ctx context.Context, resp *discordgo.InteractionResponse) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	if c.replied || c.deferred {
		c.mu.Unlock()
		return ErrAlreadyReplied
	}
	c.mu.Unlock()

	if err := c.responder.Respond(c.Event.Interaction, resp); err != nil {
		return err
	}

	c.mu.Lock()
	switch resp.Type {
	case discordgo.InteractionResponseDeferredChannelMessageWithSource, discordgo.InteractionResponseDeferredMessageUpdate:
		c.deferred = true
	default:
		c.replied = true
	}
	c.mu.Unlock()
	return nil
}

func (c *Context) Reply(ctx context.Context, content string, ephemeral bool) error {
	return c.Respond(ctx, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   flags(ephemeral),
		},
	})
}

func (c *Context) ReplyEmbed(ctx context.Context, embed *discordgo.MessageEmbed, ephemeral bool, components ...discordgo.MessageComponent) error {
	if embed == nil {
		return c.Reply(ctx, "No response available.", ephemeral)
	}
	return c.Respond(ctx, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds:     []*discordgo.MessageEmbed{embed},
			Components: components,
			Flags:      flags(ephemeral),
		},
	})
}

// Defer acknowledges the interaction so the handler can answer later with
// FollowUp.
func (c *Context) Defer(ctx context.Context, ephemeral bool) error {
	return c.Respond(ctx, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: flags(ephemeral)},
	})
}

// Update edits the message a component is attached to.
func (c *Context) Update(ctx context.Context, data *discordgo.InteractionResponseData) error {
	return c.Respond(ctx, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: data,
	})
}

func (c *Context) ShowModal(ctx context.Context, customID, title string, components ...discordgo.MessageComponent) error {
	return c.Respond(ctx, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID:   customID,
			Title:      title,
			Components: components,
		},
	})
}

func (c *Context) FollowUp(ctx context.Context, content string, ephemeral bool) error {
	return c.followUp(ctx, &discordgo.WebhookParams{Content: content, Flags: flags(ephemeral)})
}

func (c *Context) FollowUpEmbed(ctx context.Context, embed *discordgo.MessageEmbed, ephemeral bool) error {
	return c.followUp(ctx, &discordgo.WebhookParams{Embeds: []*discordgo.MessageEmbed{embed}, Flags: flags(ephemeral)})
}

func (c *Context) followUp(ctx context.Context, params *discordgo.WebhookParams) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := c.responder.FollowUp(c.Event.Interaction, params); err != nil {
		return err
	}
	c.mu.Lock()
	c.replied = true
	c.mu.Unlock()
	return nil
}

func flags(ephemeral bool) discordgo.MessageFlags {
	if ephemeral {
		return discordgo.MessageFlagsEphemeral
	}
	return 0
}
