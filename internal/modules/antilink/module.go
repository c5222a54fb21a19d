package antilink

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"modwarden/internal/modules/audit"
	"modwarden/internal/utils"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/time/rate"
)

var keywordSignals = []string{"nitro", "free", "claim", "gift", "steam", "giveaway"}

// Verdict is the result of inspecting one message.
type Verdict struct {
	Flagged bool
	URL     string
	Domain  string
	// Scam is set when the message also carries typical scam wording.
	Scam bool
}

// Actions performs the side effects of a flagged message.
type Actions struct {
	Delete func(channelID, messageID string) error
	Warn   func(channelID, content string) error
}

type Module struct {
	audit    *audit.Logger
	cooldown time.Duration

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func New(auditLogger *audit.Logger, warnCooldown time.Duration) *Module {
	if warnCooldown <= 0 {
		warnCooldown = 10 * time.Second
	}
	return &Module{audit: auditLogger, cooldown: warnCooldown, limiters: make(map[string]*rate.Limiter)}
}

// Inspect flags the first link whose host is not covered by allowlist.
func Inspect(content string, allowlist map[string]struct{}) Verdict {
	for _, raw := range utils.ExtractURLs(content) {
		normalized, domain, err := utils.NormalizeURL(raw)
		if err != nil || domain == "" {
			continue
		}
		if utils.DomainMatch(domain, allowlist) {
			continue
		}
		return Verdict{Flagged: true, URL: normalized, Domain: domain, Scam: hasKeywords(content)}
	}
	return Verdict{}
}

// HandleMessage removes a message carrying a disallowed link and warns the
// channel, at most once per cooldown per channel.
func (m *Module) HandleMessage(ctx context.Context, msg *discordgo.MessageCreate, allowlist map[string]struct{}, actions Actions) Verdict {
	if msg == nil || msg.Message == nil || msg.Author == nil || msg.Author.Bot {
		return Verdict{}
	}
	verdict := Inspect(msg.Content, allowlist)
	if !verdict.Flagged {
		return verdict
	}

	level := audit.LevelInfo
	if verdict.Scam {
		level = audit.LevelWarn
	}
	m.audit.Log(ctx, level, msg.GuildID, msg.Author.ID, "anti_link",
		fmt.Sprintf("channel=%s domain=%s url=%s scam=%t", msg.ChannelID, verdict.Domain, verdict.URL, verdict.Scam))

	if actions.Delete != nil {
		if err := actions.Delete(msg.ChannelID, msg.ID); err != nil {
			m.audit.Log(ctx, audit.LevelWarn, msg.GuildID, msg.Author.ID, "action_failed", "link removal failed: "+err.Error())
		}
	}
	if actions.Warn != nil && m.allowWarning(msg.ChannelID) {
		_ = actions.Warn(msg.ChannelID, fmt.Sprintf("<@%s>, links to %s are not allowed here.", msg.Author.ID, verdict.Domain))
	}
	return verdict
}

func (m *Module) allowWarning(channelID string) bool {
	m.mu.Lock()
	limiter := m.limiters[channelID]
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Every(m.cooldown), 1)
		m.limiters[channelID] = limiter
	}
	m.mu.Unlock()
	return limiter.Allow()
}

func hasKeywords(content string) bool {
	lower := strings.ToLower(content)
	for _, keyword := range keywordSignals {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}
