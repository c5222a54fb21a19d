package interaction

import (
	"github.com/bwmarrin/discordgo"
)

// Options indexes the command options by name. For a command invoked through
// a subcommand the subcommand's own options are returned.
type Options struct {
	Subcommand string
	values     map[string]*discordgo.ApplicationCommandInteractionDataOption
}

func (c *Context) Options() Options {
	opts := Options{values: make(map[string]*discordgo.ApplicationCommandInteractionDataOption)}
	if c.Event == nil || c.Event.Interaction == nil || c.Event.Type != discordgo.InteractionApplicationCommand {
		return opts
	}
	list := c.Event.ApplicationCommandData().Options
	if len(list) == 1 && list[0].Type == discordgo.ApplicationCommandOptionSubCommand {
		opts.Subcommand = list[0].Name
		list = list[0].Options
	}
	for _, opt := range list {
		opts.values[opt.Name] = opt
	}
	return opts
}

func (o Options) Has(name string) bool {
	_, ok := o.values[name]
	return ok
}

func (o Options) String(name string) string {
	opt, ok := o.values[name]
	if !ok {
		return ""
	}
	value, _ := opt.Value.(string)
	return value
}

// Int accepts both the float64 JSON decodes into and native ints.
func (o Options) Int(name string, fallback int64) int64 {
	opt, ok := o.values[name]
	if !ok {
		return fallback
	}
	switch value := opt.Value.(type) {
	case float64:
		return int64(value)
	case int64:
		return value
	case int:
		return int64(value)
	default:
		return fallback
	}
}

func (o Options) Bool(name string, fallback bool) bool {
	opt, ok := o.values[name]
	if !ok {
		return fallback
	}
	value, ok := opt.Value.(bool)
	if !ok {
		return fallback
	}
	return value
}

// ID returns the snowflake carried by user, channel, role and mentionable
// options.
func (o Options) ID(name string) string {
	return o.String(name)
}

// ModalValue returns the text input with the given custom id from a modal
// submission.
func (c *Context) ModalValue(customID string) string {
	if c.Event == nil || c.Event.Interaction == nil || c.Event.Type != discordgo.InteractionModalSubmit {
		return ""
	}
	for _, row := range c.Event.ModalSubmitData().Components {
		actions, ok := row.(*discordgo.ActionsRow)
		if !ok {
			continue
		}
		for _, component := range actions.Components {
			if input, ok := component.(*discordgo.TextInput); ok && input.CustomID == customID {
				return input.Value
			}
		}
	}
	return ""
}

// Values returns the selections of a select menu interaction.
func (c *Context) Values() []string {
	if c.Event == nil || c.Event.Interaction == nil || c.Event.Type != discordgo.InteractionMessageComponent {
		return nil
	}
	return c.Event.MessageComponentData().Values
}
