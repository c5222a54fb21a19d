package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"modwarden/internal/config"
	"modwarden/internal/gateway"
	"modwarden/internal/handler"
	"modwarden/internal/metrics"
	"modwarden/internal/modules/antilink"
	"modwarden/internal/modules/antiraid"
	"modwarden/internal/modules/audit"
	"modwarden/internal/playbook"
	"modwarden/internal/session"
	"modwarden/internal/storage"
	"modwarden/internal/utils"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// stateMessageCount is how many messages per channel discordgo keeps so
// deletions can be captured with their content.
const stateMessageCount = 200

type Bot struct {
	cfg      config.Config
	logger   *zap.Logger
	store    *storage.Store
	audit    *audit.Logger
	metrics  *metrics.Metrics
	session  *discordgo.Session
	bus      *gateway.Bus
	playbook *playbook.Engine

	antilink *antilink.Module
	antiraid *antiraid.Module
	drafts   *session.Store[embedDraft]

	dispatchers map[handler.Kind]*handler.Dispatcher

	mu     sync.Mutex
	detach func()
}

func New(cfg config.Config, logger *zap.Logger, store *storage.Store, m *metrics.Metrics) (*Bot, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	dg, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, err
	}
	dg.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsMessageContent |
		discordgo.IntentsGuildVoiceStates
	dg.State.MaxMessageCount = stateMessageCount

	auditLogger := audit.NewLogger(logger)
	b := &Bot{
		cfg:         cfg,
		logger:      logger,
		store:       store,
		audit:       auditLogger,
		metrics:     m,
		session:     dg,
		bus:         gateway.NewBus(),
		antilink:    antilink.New(auditLogger, time.Duration(cfg.AntiLink.WarnCooldownSeconds)*time.Second),
		antiraid:    antiraid.New(cfg.AntiRaid, auditLogger),
		drafts:      session.New[embedDraft](time.Duration(cfg.Session.TTLMinutes) * time.Minute),
		dispatchers: make(map[handler.Kind]*handler.Dispatcher),
	}
	b.playbook = playbook.New(playbook.Config{LockdownMinutes: cfg.AntiRaid.LockdownMinutes}, auditLogger)
	b.playbook.OnEngage(b.lockGuild)
	b.playbook.OnRelease(b.unlockGuild)
	auditLogger.SetNotifier(b.notifyAudit)

	guard := handler.NewGuard(logger)
	for _, kind := range handler.Kinds {
		loader := handler.NewLoader(kind, handler.NewRegistry(kind), logger)
		dispatcher := handler.NewDispatcher(loader, b.bus, guard, logger)
		dispatcher.SetObserver(m)
		b.dispatchers[kind] = dispatcher
	}
	b.registerBuiltins()
	return b, nil
}

// Registry returns the live registry of kind.
func (b *Bot) Registry(kind handler.Kind) *handler.Registry {
	return b.dispatchers[kind].Loader().Registry()
}

// LoadHandlers runs a load cycle for every kind and attaches the dispatchers
// to the bus. It fails when a mandatory kind ends up empty.
func (b *Bot) LoadHandlers() ([]handler.LoadReport, error) {
	reports := make([]handler.LoadReport, 0, len(handler.Kinds))
	var errs []error
	for _, kind := range handler.Kinds {
		report, err := b.dispatchers[kind].Reload(b.cfg.Handlers.Dir(kind))
		reports = append(reports, report)
		for _, failure := range report.Failures {
			b.logger.Warn("handler not loaded",
				zap.String("kind", kind.String()),
				zap.String("file", failure.File),
				zap.String("reason", failure.Reason),
			)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return reports, errors.Join(errs...)
}

func (b *Bot) Start(ctx context.Context) error {
	if _, err := b.LoadHandlers(); err != nil {
		return err
	}

	b.mu.Lock()
	b.detach = b.bus.Attach(ctx, b.session)
	b.mu.Unlock()

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}
	if b.cfg.SyncCommands {
		if err := b.registerCommands(); err != nil {
			return fmt.Errorf("sync commands: %w", err)
		}
	}
	go b.sweepDrafts(ctx)
	return nil
}

func (b *Bot) Close() {
	b.mu.Lock()
	detach := b.detach
	b.detach = nil
	b.mu.Unlock()
	if detach != nil {
		detach()
	}
	for _, dispatcher := range b.dispatchers {
		dispatcher.Stop()
	}
	if b.session != nil {
		_ = b.session.Close()
	}
}

func (b *Bot) sweepDrafts(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.drafts.Sweep()
		}
	}
}

// storedSettings returns what the guild has saved, with config defaults for
// a guild that saved nothing. Use it for read-modify-write.
func (b *Bot) storedSettings(ctx context.Context, guildID string) (storage.GuildSettings, error) {
	return b.store.GetGuildSettings(ctx, guildID, storage.GuildSettings{
		GuildID:  guildID,
		AntiLink: b.cfg.AntiLink.Enabled,
		AntiRaid: b.cfg.AntiRaid.Enabled,
		Welcome:  b.cfg.Welcome.Enabled,
	})
}

// guildSettings is storedSettings with the configured channels filled in
// where the guild has none.
func (b *Bot) guildSettings(ctx context.Context, guildID string) storage.GuildSettings {
	settings, err := b.storedSettings(ctx, guildID)
	if err != nil {
		b.logger.Warn("guild settings unavailable", zap.String("guild_id", guildID), zap.Error(err))
	}
	if settings.LogChannelID == "" {
		settings.LogChannelID = b.cfg.LogChannelID
	}
	if settings.WelcomeChannelID == "" {
		settings.WelcomeChannelID = b.cfg.Welcome.ChannelID
	}
	return settings
}

// allowlist merges the configured domains with the guild's own.
func (b *Bot) allowlist(settings storage.GuildSettings) map[string]struct{} {
	return utils.DomainSet(b.cfg.AntiLink.AllowedDomains, settings.AllowedDomains)
}

func (b *Bot) notifyAudit(ctx context.Context, entry audit.Entry) {
	if entry.GuildID == "" || b.session == nil {
		return
	}
	channelID := b.guildSettings(ctx, entry.GuildID).LogChannelID
	if channelID == "" {
		return
	}
	if _, err := b.session.ChannelMessageSendEmbed(channelID, b.auditEmbed(entry)); err != nil {
		b.logger.Debug("audit notification failed", zap.String("guild_id", entry.GuildID), zap.Error(err))
	}
}

func (b *Bot) auditEmbed(entry audit.Entry) *discordgo.MessageEmbed {
	color := b.cfg.EmbedColors.Info
	switch entry.Level {
	case audit.LevelWarn:
		color = b.cfg.EmbedColors.Warning
	case audit.LevelCrit:
		color = b.cfg.EmbedColors.Error
	}
	fields := []*discordgo.MessageEmbedField{
		{Name: "Level", Value: entry.Level, Inline: true},
	}
	if entry.UserID != "" {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "User", Value: "<@" + entry.UserID + ">", Inline: true})
	}
	return &discordgo.MessageEmbed{
		Title:       eventTitle(entry.Event),
		Description: truncate(entry.Details, 4000),
		Color:       color,
		Fields:      fields,
		Timestamp:   entry.CreatedAt.Format(time.RFC3339),
	}
}

func (b *Bot) embed(title, description string, color int, fields ...*discordgo.MessageEmbedField) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       title,
		Description: description,
		Color:       color,
		Fields:      fields,
		Timestamp:   time.Now().Format(time.RFC3339),
	}
}

func eventTitle(event string) string {
	switch event {
	case "anti_link":
		return "Link removed"
	case "anti_raid":
		return "Raid detected"
	case "raid_lockdown":
		return "Lockdown"
	case "voice":
		return "Voice activity"
	case "permission_change":
		return "Role permissions changed"
	case "warning":
		return "Member warned"
	case "moderation":
		return "Moderation action"
	default:
		return event
	}
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit-3]) + "..."
}
