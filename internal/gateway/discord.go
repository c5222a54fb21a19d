package gateway

import (
	"context"

	"modwarden/internal/handler"
	"modwarden/internal/interaction"

	"github.com/bwmarrin/discordgo"
)

// EventNotification is published for every raw gateway event under its
// dispatch name, for example GUILD_MEMBER_ADD.
type EventNotification struct {
	Name    string
	Session *discordgo.Session
}

func (e EventNotification) Identifier() string {
	return e.Name
}

// Attach bridges session's handlers onto the bus. Gateway events are
// published with their typed payload as the only argument. The returned func
// removes both handlers.
func (b *Bus) Attach(ctx context.Context, session *discordgo.Session) func() {
	removeEvents := session.AddHandler(func(s *discordgo.Session, e *discordgo.Event) {
		if e == nil || e.Type == "" {
			return
		}
		b.Publish(ctx, e.Type, EventNotification{Name: e.Type, Session: s}, e.Struct)
	})
	removeInteractions := session.AddHandler(func(s *discordgo.Session, e *discordgo.InteractionCreate) {
		kind, ok := Classify(e)
		if !ok {
			return
		}
		b.Publish(ctx, kind.Category(), interaction.New(s, e))
	})
	return func() {
		removeEvents()
		removeInteractions()
	}
}

// Classify maps an interaction onto the handler kind that serves it.
// Autocomplete and ping interactions have none.
func Classify(e *discordgo.InteractionCreate) (handler.Kind, bool) {
	if e == nil || e.Interaction == nil {
		return "", false
	}
	switch e.Type {
	case discordgo.InteractionApplicationCommand:
		return handler.KindCommand, true
	case discordgo.InteractionMessageComponent:
		if e.MessageComponentData().ComponentType == discordgo.ButtonComponent {
			return handler.KindButton, true
		}
		return handler.KindMenu, true
	case discordgo.InteractionModalSubmit:
		return handler.KindModal, true
	default:
		return "", false
	}
}
