package handler

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/bwmarrin/discordgo"
	"gopkg.in/yaml.v3"
)

// manifestExtensions are the definition file formats the loader picks up.
var manifestExtensions = map[string]struct{}{
	".yaml": {},
	".yml":  {},
	".toml": {},
}

// manifest is the on-disk form of a definition. It names a compiled action
// instead of carrying code.
type manifest struct {
	Identifier         string           `yaml:"identifier" toml:"identifier"`
	Name               string           `yaml:"name" toml:"name"`
	Kind               string           `yaml:"kind" toml:"kind"`
	Description        string           `yaml:"description" toml:"description"`
	Action             string           `yaml:"action" toml:"action"`
	Once               bool             `yaml:"once" toml:"once"`
	DefaultPermissions *int64           `yaml:"default_permissions" toml:"default_permissions"`
	Options            []optionManifest `yaml:"options" toml:"options"`
}

type optionManifest struct {
	Name        string           `yaml:"name" toml:"name"`
	Description string           `yaml:"description" toml:"description"`
	Type        string           `yaml:"type" toml:"type"`
	Required    bool             `yaml:"required" toml:"required"`
	Choices     []choiceManifest `yaml:"choices" toml:"choices"`
}

type choiceManifest struct {
	Name  string `yaml:"name" toml:"name"`
	Value any    `yaml:"value" toml:"value"`
}

var optionTypes = map[string]discordgo.ApplicationCommandOptionType{
	"string":      discordgo.ApplicationCommandOptionString,
	"integer":     discordgo.ApplicationCommandOptionInteger,
	"boolean":     discordgo.ApplicationCommandOptionBoolean,
	"user":        discordgo.ApplicationCommandOptionUser,
	"channel":     discordgo.ApplicationCommandOptionChannel,
	"role":        discordgo.ApplicationCommandOptionRole,
	"mentionable": discordgo.ApplicationCommandOptionMentionable,
	"number":      discordgo.ApplicationCommandOptionNumber,
	"attachment":  discordgo.ApplicationCommandOptionAttachment,
}

func isManifest(name string) bool {
	_, ok := manifestExtensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

func readManifest(path string) (manifest, error) {
	var m manifest
	data, err := os.ReadFile(path)
	if err != nil {
		return m, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return m, nil
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), &m); err != nil {
			return m, fmt.Errorf("decode toml: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &m); err != nil {
			return m, fmt.Errorf("decode yaml: %w", err)
		}
	}
	return m, nil
}

func (m manifest) empty() bool {
	return m.Identifier == "" && m.Name == "" && m.Action == ""
}

// definition resolves the manifest against the loader's action catalog.
func (m manifest) definition(kind Kind, actions map[string]Invoke, source string) (*Definition, error) {
	if m.empty() {
		return nil, fmt.Errorf("%w: file declares no definition", ErrValidation)
	}
	identifier := m.Identifier
	if identifier == "" {
		identifier = m.Name
	}
	def := &Definition{
		Kind:       kind,
		Identifier: strings.TrimSpace(identifier),
		Source:     source,
		Descriptor: Descriptor{
			Description:        m.Description,
			DefaultPermissions: m.DefaultPermissions,
			Once:               m.Once,
		},
	}
	if m.Kind != "" {
		declared, err := ParseKind(m.Kind)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		def.Kind = declared
	}

	switch invoke, ok := actions[m.Action]; {
	case m.Action == "":
		return nil, fmt.Errorf("%w: %s: missing invoke: no action named", ErrValidation, def.Identifier)
	case !ok:
		return nil, fmt.Errorf("%w: %s: missing invoke: unknown action %q", ErrValidation, def.Identifier, m.Action)
	default:
		def.Invoke = invoke
	}

	for _, opt := range m.Options {
		option, err := opt.option()
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrValidation, def.Identifier, err)
		}
		def.Descriptor.Options = append(def.Descriptor.Options, option)
	}
	return def, nil
}

func (o optionManifest) option() (*discordgo.ApplicationCommandOption, error) {
	if o.Name == "" || o.Description == "" {
		return nil, fmt.Errorf("option needs a name and description")
	}
	optType, ok := optionTypes[strings.ToLower(o.Type)]
	if !ok {
		return nil, fmt.Errorf("option %s: unknown type %q", o.Name, o.Type)
	}
	option := &discordgo.ApplicationCommandOption{
		Type:        optType,
		Name:        o.Name,
		Description: o.Description,
		Required:    o.Required,
	}
	for _, choice := range o.Choices {
		option.Choices = append(option.Choices, &discordgo.ApplicationCommandOptionChoice{Name: choice.Name, Value: choice.Value})
	}
	return option, nil
}
