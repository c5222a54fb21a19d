package bot

import (
	"context"
	"fmt"

	"modwarden/internal/gateway"
	"modwarden/internal/handler"
	"modwarden/internal/interaction"

	"github.com/bwmarrin/discordgo"
)

var (
	permAdministrator   int64 = discordgo.PermissionAdministrator
	permManageRoles     int64 = discordgo.PermissionManageRoles
	permManageChannels  int64 = discordgo.PermissionManageChannels
	permManageMessages  int64 = discordgo.PermissionManageMessages
	permModerateMembers int64 = discordgo.PermissionModerateMembers
	permMuteMembers     int64 = discordgo.PermissionVoiceMuteMembers
	permViewAuditLog    int64 = discordgo.PermissionViewAuditLogs
)

// interactionFunc adapts a handler body that needs the interaction context.
func interactionFunc(run func(ctx context.Context, c *interaction.Context) error) handler.Invoke {
	return func(ctx context.Context, n handler.Notification, _ ...any) error {
		c, ok := n.(*interaction.Context)
		if !ok {
			return fmt.Errorf("unexpected notification %T", n)
		}
		return run(ctx, c)
	}
}

// eventFunc adapts a gateway event body to its typed payload.
func eventFunc[T any](run func(ctx context.Context, s *discordgo.Session, payload T) error) handler.Invoke {
	return func(ctx context.Context, n handler.Notification, args ...any) error {
		if len(args) == 0 {
			return fmt.Errorf("%s: missing payload", n.Identifier())
		}
		payload, ok := args[0].(T)
		if !ok {
			return fmt.Errorf("%s: unexpected payload %T", n.Identifier(), args[0])
		}
		var s *discordgo.Session
		if e, ok := n.(gateway.EventNotification); ok {
			s = e.Session
		}
		return run(ctx, s, payload)
	}
}

func command(id, description string, perms *int64, options []*discordgo.ApplicationCommandOption, run func(context.Context, *interaction.Context) error) *handler.Definition {
	return &handler.Definition{
		Kind:       handler.KindCommand,
		Identifier: id,
		Descriptor: handler.Descriptor{
			Description:        description,
			Options:            options,
			DefaultPermissions: perms,
		},
		Invoke: interactionFunc(run),
	}
}

func component(kind handler.Kind, id string, run func(context.Context, *interaction.Context) error) *handler.Definition {
	return &handler.Definition{Kind: kind, Identifier: id, Invoke: interactionFunc(run)}
}

func event(name string, once bool, invoke handler.Invoke) *handler.Definition {
	return &handler.Definition{
		Kind:       handler.KindEvent,
		Identifier: name,
		Descriptor: handler.Descriptor{Once: once},
		Invoke:     invoke,
	}
}

func userOption(name, description string, required bool) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{Type: discordgo.ApplicationCommandOptionUser, Name: name, Description: description, Required: required}
}

func roleOption(name, description string, required bool) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{Type: discordgo.ApplicationCommandOptionRole, Name: name, Description: description, Required: required}
}

func channelOption(name, description string, required bool) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:         discordgo.ApplicationCommandOptionChannel,
		Name:         name,
		Description:  description,
		Required:     required,
		ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildText, discordgo.ChannelTypeGuildNews},
	}
}

func stringOption(name, description string, required bool) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{Type: discordgo.ApplicationCommandOptionString, Name: name, Description: description, Required: required}
}

func boolOption(name, description string) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{Type: discordgo.ApplicationCommandOptionBoolean, Name: name, Description: description, Required: true}
}

func intOption(name, description string, required bool, min, max float64) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionInteger,
		Name:        name,
		Description: description,
		Required:    required,
		MinValue:    &min,
		MaxValue:    max,
	}
}

func subcommand(name, description string, options ...*discordgo.ApplicationCommandOption) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{Type: discordgo.ApplicationCommandOptionSubCommand, Name: name, Description: description, Options: options}
}

// registerBuiltins queues the bot's own definitions on every loader. They
// load before any definition file.
func (b *Bot) registerBuiltins() {
	b.dispatchers[handler.KindCommand].Loader().Register(
		command("ping", "Check that the bot is responsive", nil, nil, b.cmdPing),
		command("role", "Add or remove a role from a member", &permManageRoles, []*discordgo.ApplicationCommandOption{
			subcommand("add", "Give a member a role", userOption("user", "Member", true), roleOption("role", "Role", true)),
			subcommand("remove", "Take a role from a member", userOption("user", "Member", true), roleOption("role", "Role", true)),
		}, b.cmdRole),
		command("mute", "Toggle server mute for a member in voice", &permMuteMembers, []*discordgo.ApplicationCommandOption{
			userOption("user", "Member in a voice channel", true),
		}, b.cmdMute),
		command("deafen", "Toggle server deafen for a member in voice", &permMuteMembers, []*discordgo.ApplicationCommandOption{
			userOption("user", "Member in a voice channel", true),
		}, b.cmdDeafen),
		command("lock", "Stop @everyone from sending messages in a channel", &permManageChannels, []*discordgo.ApplicationCommandOption{
			channelOption("channel", "Channel to lock, defaults to this one", false),
			stringOption("reason", "Reason shown in the audit log", false),
		}, b.cmdLock),
		command("unlock", "Restore a locked channel", &permManageChannels, []*discordgo.ApplicationCommandOption{
			channelOption("channel", "Channel to unlock, defaults to this one", false),
		}, b.cmdUnlock),
		command("purge", "Bulk delete recent messages", &permManageMessages, []*discordgo.ApplicationCommandOption{
			intOption("amount", "Number of messages (1-100)", true, 1, maxPurge),
			userOption("user", "Only delete messages from this member", false),
		}, b.cmdPurge),
		command("auditlog", "Show recent server audit log entries", &permViewAuditLog, []*discordgo.ApplicationCommandOption{
			auditActionOption(),
			intOption("limit", "Number of entries (1-25)", false, 1, 25),
		}, b.cmdAuditLog),
		command("warn", "Warn a member", &permModerateMembers, []*discordgo.ApplicationCommandOption{
			userOption("user", "Member to warn", true),
			stringOption("reason", "Reason for the warning", true),
		}, b.cmdWarn),
		command("warnings", "List or clear a member's warnings", &permModerateMembers, []*discordgo.ApplicationCommandOption{
			subcommand("list", "List warnings", userOption("user", "Member", true)),
			subcommand("clear", "Clear all warnings", userOption("user", "Member", true)),
			subcommand("remove", "Remove one warning", intOption("id", "Warning id", true, 1, 1<<31-1)),
		}, b.cmdWarnings),
		command("embed", "Build and send an embed", &permManageMessages, []*discordgo.ApplicationCommandOption{
			channelOption("channel", "Target channel, defaults to this one", false),
		}, b.cmdEmbed),
		command("setup", "Create the moderation roles and channels", &permAdministrator, nil, b.cmdSetup),
		command("settings", "View or change the bot settings for this server", &permAdministrator, []*discordgo.ApplicationCommandOption{
			subcommand("view", "Show current settings"),
			subcommand("log-channel", "Set the moderation log channel", channelOption("channel", "Log channel", true)),
			subcommand("welcome-channel", "Set the welcome channel", channelOption("channel", "Welcome channel", true)),
			subcommand("anti-link", "Enable or disable link filtering", boolOption("enabled", "Enabled")),
			subcommand("anti-raid", "Enable or disable raid protection", boolOption("enabled", "Enabled")),
			subcommand("welcome", "Enable or disable welcome images", boolOption("enabled", "Enabled")),
			subcommand("allow-domain", "Allow links to a domain", stringOption("domain", "Domain such as example.com", true)),
			subcommand("disallow-domain", "Stop allowing a domain", stringOption("domain", "Domain", true)),
			subcommand("lockdown-release", "End an active raid lockdown"),
		}, b.cmdSettings),
		command("deleted", "Show recently deleted messages", &permManageMessages, []*discordgo.ApplicationCommandOption{
			channelOption("channel", "Only this channel", false),
			intOption("limit", "Number of messages (1-10)", false, 1, 10),
		}, b.cmdDeleted),
		command("permissions", "Show recent role permission changes", &permManageRoles, []*discordgo.ApplicationCommandOption{
			intOption("limit", "Number of changes (1-10)", false, 1, 10),
		}, b.cmdPermissions),
		command("rolemenu", "Post a self-assignable role menu", &permManageRoles, []*discordgo.ApplicationCommandOption{
			stringOption("title", "Menu title", true),
			roleOption("role1", "Role", true),
			roleOption("role2", "Role", false),
			roleOption("role3", "Role", false),
			roleOption("role4", "Role", false),
			roleOption("role5", "Role", false),
		}, b.cmdRoleMenu),
		command("reload", "Reload every handler", &permAdministrator, nil, b.cmdReload),
	)

	b.dispatchers[handler.KindButton].Loader().Register(component(handler.KindButton, embedButtonID, b.onEmbedButton))
	b.dispatchers[handler.KindMenu].Loader().Register(component(handler.KindMenu, roleMenuID, b.onRoleMenu))
	b.dispatchers[handler.KindModal].Loader().Register(component(handler.KindModal, embedModalID, b.onEmbedModal))

	b.dispatchers[handler.KindEvent].Loader().Register(
		event("READY", true, eventFunc(b.onReady)),
		event("GUILD_CREATE", false, eventFunc(b.onGuildCreate)),
		event("GUILD_MEMBER_ADD", false, eventFunc(b.onMemberAdd)),
		event("VOICE_STATE_UPDATE", false, eventFunc(b.onVoiceStateUpdate)),
		event("MESSAGE_CREATE", false, eventFunc(b.onMessageCreate)),
		event("MESSAGE_DELETE", false, eventFunc(b.onMessageDelete)),
		event("GUILD_ROLE_UPDATE", false, eventFunc(b.onRoleUpdate)),
	)
}

// registerCommands makes Discord's command list match the command registry:
// existing commands are edited, new ones created and stale ones deleted.
func (b *Bot) registerCommands() error {
	if b.session.State == nil || b.session.State.User == nil {
		return fmt.Errorf("session not ready")
	}
	appID := b.session.State.User.ID
	guildID := b.cfg.GuildID

	defs := b.Registry(handler.KindCommand).All()
	existing, err := b.session.ApplicationCommands(appID, guildID)
	if err != nil {
		for _, def := range defs {
			if _, err := b.session.ApplicationCommandCreate(appID, guildID, def.ApplicationCommand()); err != nil {
				return err
			}
		}
		return nil
	}

	existingByName := make(map[string]*discordgo.ApplicationCommand)
	for _, cmd := range existing {
		existingByName[cmd.Name] = cmd
	}

	desired := make(map[string]struct{})
	for _, def := range defs {
		cmd := def.ApplicationCommand()
		desired[cmd.Name] = struct{}{}
		if current, ok := existingByName[cmd.Name]; ok {
			if _, err := b.session.ApplicationCommandEdit(appID, guildID, current.ID, cmd); err != nil {
				return err
			}
			continue
		}
		if _, err := b.session.ApplicationCommandCreate(appID, guildID, cmd); err != nil {
			return err
		}
	}

	for _, cmd := range existing {
		if _, ok := desired[cmd.Name]; ok {
			continue
		}
		_ = b.session.ApplicationCommandDelete(appID, guildID, cmd.ID)
	}
	return nil
}
