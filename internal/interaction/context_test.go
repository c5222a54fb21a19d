package interaction

import (
	"context"
	"errors"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/google/go-cmp/cmp"
)

type recordingResponder struct {
	responses []*discordgo.InteractionResponse
	followUps []*discordgo.WebhookParams
	err       error
}

func (r *recordingResponder) Respond(_ *discordgo.Interaction, resp *discordgo.InteractionResponse) error {
	if r.err != nil {
		return r.err
	}
	r.responses = append(r.responses, resp)
	return nil
}

func (r *recordingResponder) FollowUp(_ *discordgo.Interaction, params *discordgo.WebhookParams) (*discordgo.Message, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.followUps = append(r.followUps, params)
	return &discordgo.Message{}, nil
}

func commandEvent(name string, options ...*discordgo.ApplicationCommandInteractionDataOption) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type:    discordgo.InteractionApplicationCommand,
		GuildID: "g1",
		Member:  &discordgo.Member{User: &discordgo.User{ID: "u1"}},
		Data:    discordgo.ApplicationCommandInteractionData{Name: name, Options: options},
	}}
}

func componentEvent(customID string, values ...string) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type: discordgo.InteractionMessageComponent,
		User: &discordgo.User{ID: "u2"},
		Data: discordgo.MessageComponentInteractionData{CustomID: customID, Values: values},
	}}
}

func TestIdentifierAndRouteArgs(t *testing.T) {
	c := NewWithResponder(componentEvent("embed:send:42"), &recordingResponder{})
	if c.Identifier() != "embed:send:42" {
		t.Fatalf("unexpected identifier %q", c.Identifier())
	}
	if diff := cmp.Diff([]string{"send", "42"}, c.RouteArgs()); diff != "" {
		t.Fatalf("route args mismatch (-want +got):\n%s", diff)
	}
	if c.UserID() != "u2" {
		t.Fatalf("expected DM user, got %q", c.UserID())
	}

	cmd := NewWithResponder(commandEvent("ping"), &recordingResponder{})
	if cmd.Identifier() != "ping" || cmd.RouteArgs() != nil || cmd.UserID() != "u1" {
		t.Fatalf("unexpected command context")
	}
}

func TestReplyStateTracking(t *testing.T) {
	responder := &recordingResponder{}
	c := NewWithResponder(commandEvent("ping"), responder)
	ctx := context.Background()

	if c.Replied() || c.Deferred() {
		t.Fatalf("fresh context must be unanswered")
	}
	if err := c.Reply(ctx, "pong", true); err != nil {
		t.Fatalf("reply: %v", err)
	}
	if !c.Replied() {
		t.Fatalf("expected replied")
	}
	if err := c.Reply(ctx, "again", false); !errors.Is(err, ErrAlreadyReplied) {
		t.Fatalf("expected ErrAlreadyReplied, got %v", err)
	}
	if err := c.FollowUp(ctx, "more", true); err != nil {
		t.Fatalf("follow-up: %v", err)
	}
	if len(responder.responses) != 1 || len(responder.followUps) != 1 {
		t.Fatalf("unexpected calls: %d responses %d follow-ups", len(responder.responses), len(responder.followUps))
	}
	if responder.responses[0].Data.Flags != discordgo.MessageFlagsEphemeral {
		t.Fatalf("expected ephemeral reply")
	}
}

func TestDeferMarksDeferred(t *testing.T) {
	c := NewWithResponder(commandEvent("purge"), &recordingResponder{})
	if err := c.Defer(context.Background(), true); err != nil {
		t.Fatalf("defer: %v", err)
	}
	if !c.Deferred() || c.Replied() {
		t.Fatalf("expected deferred only")
	}
}

func TestFailedRespondLeavesStateUntouched(t *testing.T) {
	c := NewWithResponder(commandEvent("ping"), &recordingResponder{err: errors.New("unknown interaction")})
	if err := c.Reply(context.Background(), "pong", false); err == nil {
		t.Fatalf("expected error")
	}
	if c.Replied() {
		t.Fatalf("failed reply must not mark replied")
	}
}

func TestOptions(t *testing.T) {
	event := commandEvent("role", &discordgo.ApplicationCommandInteractionDataOption{
		Name: "add",
		Type: discordgo.ApplicationCommandOptionSubCommand,
		Options: []*discordgo.ApplicationCommandInteractionDataOption{
			{Name: "user", Type: discordgo.ApplicationCommandOptionUser, Value: "123"},
			{Name: "count", Type: discordgo.ApplicationCommandOptionInteger, Value: float64(7)},
			{Name: "silent", Type: discordgo.ApplicationCommandOptionBoolean, Value: true},
		},
	})
	opts := NewWithResponder(event, &recordingResponder{}).Options()
	if opts.Subcommand != "add" {
		t.Fatalf("expected subcommand add, got %q", opts.Subcommand)
	}
	if opts.ID("user") != "123" || opts.Int("count", 0) != 7 || !opts.Bool("silent", false) {
		t.Fatalf("unexpected option values")
	}
	if opts.Has("missing") || opts.Int("missing", 5) != 5 {
		t.Fatalf("missing option should fall back")
	}
}

func TestModalValueAndMenuValues(t *testing.T) {
	modal := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type: discordgo.InteractionModalSubmit,
		Data: discordgo.ModalSubmitInteractionData{
			CustomID: "embedmodal",
			Components: []discordgo.MessageComponent{
				&discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					&discordgo.TextInput{CustomID: "title", Value: "Hello"},
				}},
			},
		},
	}}
	c := NewWithResponder(modal, &recordingResponder{})
	if c.ModalValue("title") != "Hello" || c.ModalValue("other") != "" {
		t.Fatalf("unexpected modal values")
	}

	menu := NewWithResponder(componentEvent("rolemenu", "r1", "r2"), &recordingResponder{})
	if diff := cmp.Diff([]string{"r1", "r2"}, menu.Values()); diff != "" {
		t.Fatalf("values mismatch (-want +got):\n%s", diff)
	}
}
