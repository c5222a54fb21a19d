package handler

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// Notification is one routed event from the gateway.
type Notification interface {
	// Identifier is the routing key: command name, component custom id or
	// gateway event name.
	Identifier() string
}

// Invoke runs a handler. Event handlers receive the emitted payloads in args.
type Invoke func(ctx context.Context, n Notification, args ...any) error

type Descriptor struct {
	Description        string
	Options            []*discordgo.ApplicationCommandOption
	DefaultPermissions *int64
	// Once unsubscribes an event handler after its first delivery.
	Once bool
}

type Definition struct {
	Kind       Kind
	Identifier string
	Descriptor Descriptor
	Invoke     Invoke
	// Source is "builtin:<id>" or the definition file path.
	Source string
}

var commandName = regexp.MustCompile(`^[-_\p{Ll}\p{N}]{1,32}$`)

// Validate checks the definition against the schema shared by every kind.
func (d *Definition) Validate(kind Kind) error {
	if d == nil {
		return fmt.Errorf("%w: no definition", ErrValidation)
	}
	if d.Kind != "" && d.Kind != kind {
		return fmt.Errorf("%w: kind %q does not match %q", ErrValidation, d.Kind, kind)
	}
	if strings.TrimSpace(d.Identifier) == "" {
		return fmt.Errorf("%w: missing identifier", ErrValidation)
	}
	if d.Invoke == nil {
		return fmt.Errorf("%w: %s: missing invoke", ErrValidation, d.Identifier)
	}
	if kind != KindCommand {
		return nil
	}
	if !commandName.MatchString(d.Identifier) {
		return fmt.Errorf("%w: %s: command names must be 1-32 lowercase characters", ErrValidation, d.Identifier)
	}
	if strings.TrimSpace(d.Descriptor.Description) == "" {
		return fmt.Errorf("%w: %s: missing description", ErrValidation, d.Identifier)
	}
	if len(d.Descriptor.Description) > 100 {
		return fmt.Errorf("%w: %s: description longer than 100 characters", ErrValidation, d.Identifier)
	}
	return nil
}

// ApplicationCommand renders a command definition for registration with Discord.
func (d *Definition) ApplicationCommand() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:                     d.Identifier,
		Description:              d.Descriptor.Description,
		Options:                  d.Descriptor.Options,
		DefaultMemberPermissions: d.Descriptor.DefaultPermissions,
	}
}

// RouteKey extracts the registry key from a notification identifier. Component
// custom ids may carry state after the first colon, as in "embed:send".
func RouteKey(identifier string) string {
	key, _, _ := strings.Cut(identifier, ":")
	return key
}
