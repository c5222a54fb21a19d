package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"
)

var ErrNotFound = errors.New("not found")

// MaxDeletedPerGuild bounds the deleted message history kept per guild.
const MaxDeletedPerGuild = 100

// MaxPermissionChangesPerGuild bounds the permission change history.
const MaxPermissionChangesPerGuild = 200

// Store persists each feature in its own JSON file under one directory.
type Store struct {
	dir         string
	settings    *file[map[string]GuildSettings]
	warnings    *file[map[string][]Warning]
	deleted     *file[map[string][]DeletedMessage]
	permissions *file[permissionsDoc]
	locks       *file[map[string]map[string]ChannelLock]
}

type GuildSettings struct {
	GuildID          string   `json:"guild_id"`
	LogChannelID     string   `json:"log_channel_id,omitempty"`
	WelcomeChannelID string   `json:"welcome_channel_id,omitempty"`
	AntiLink         bool     `json:"anti_link"`
	AntiRaid         bool     `json:"anti_raid"`
	Welcome          bool     `json:"welcome"`
	AllowedDomains   []string `json:"allowed_domains,omitempty"`
	LockdownEnabled  bool     `json:"lockdown_enabled"`
	// LockdownUntil is when an active lockdown ends, so one can be resumed
	// after a restart.
	LockdownUntil time.Time `json:"lockdown_until,omitzero"`
}

type Warning struct {
	ID          int       `json:"id"`
	GuildID     string    `json:"guild_id"`
	UserID      string    `json:"user_id"`
	ModeratorID string    `json:"moderator_id"`
	Reason      string    `json:"reason"`
	CreatedAt   time.Time `json:"created_at"`
}

type DeletedMessage struct {
	GuildID     string    `json:"guild_id"`
	ChannelID   string    `json:"channel_id"`
	MessageID   string    `json:"message_id"`
	AuthorID    string    `json:"author_id,omitempty"`
	AuthorName  string    `json:"author_name,omitempty"`
	Content     string    `json:"content,omitempty"`
	Attachments []string  `json:"attachments,omitempty"`
	DeletedAt   time.Time `json:"deleted_at"`
}

type PermissionChange struct {
	GuildID   string    `json:"guild_id"`
	RoleID    string    `json:"role_id"`
	RoleName  string    `json:"role_name"`
	Before    int64     `json:"before"`
	After     int64     `json:"after"`
	Granted   []string  `json:"granted,omitempty"`
	Revoked   []string  `json:"revoked,omitempty"`
	ChangedAt time.Time `json:"changed_at"`
}

// ChannelLock remembers the @everyone overwrite a channel had before it was
// locked so unlocking can restore it.
type ChannelLock struct {
	GuildID      string    `json:"guild_id"`
	ChannelID    string    `json:"channel_id"`
	Allow        int64     `json:"allow"`
	Deny         int64     `json:"deny"`
	HadOverwrite bool      `json:"had_overwrite"`
	Reason       string    `json:"reason"`
	LockedBy     string    `json:"locked_by,omitempty"`
	LockedAt     time.Time `json:"locked_at"`
}

type permissionsDoc struct {
	// Snapshots holds the last known permission bits per guild and role.
	Snapshots map[string]map[string]int64     `json:"snapshots"`
	Changes   map[string][]PermissionChange `json:"changes"`
}

func New(dir string) (*Store, error) {
	if dir == "" {
		dir = "data"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &Store{
		dir:      dir,
		settings: newFile(dir, "settings.json", func() map[string]GuildSettings { return make(map[string]GuildSettings) }),
		warnings: newFile(dir, "warnings.json", func() map[string][]Warning { return make(map[string][]Warning) }),
		deleted:  newFile(dir, "deleted_messages.json", func() map[string][]DeletedMessage { return make(map[string][]DeletedMessage) }),
		permissions: newFile(dir, "permission_changes.json", func() permissionsDoc {
			return permissionsDoc{Snapshots: make(map[string]map[string]int64), Changes: make(map[string][]PermissionChange)}
		}),
		locks: newFile(dir, "locks.json", func() map[string]map[string]ChannelLock { return make(map[string]map[string]ChannelLock) }),
	}, nil
}

func (s *Store) Dir() string {
	return s.dir
}

// GetGuildSettings returns the stored settings for guildID, or defaults when
// the guild has none.
func (s *Store) GetGuildSettings(ctx context.Context, guildID string, defaults GuildSettings) (GuildSettings, error) {
	all, err := s.settings.read(ctx)
	if err != nil {
		return defaults, err
	}
	settings, ok := all[guildID]
	if !ok {
		defaults.GuildID = guildID
		return defaults, nil
	}
	return settings, nil
}

func (s *Store) UpsertGuildSettings(ctx context.Context, settings GuildSettings) error {
	if settings.GuildID == "" {
		return fmt.Errorf("upsert guild settings: missing guild id")
	}
	return s.settings.update(ctx, func(all *map[string]GuildSettings) error {
		(*all)[settings.GuildID] = settings
		return nil
	})
}

func (s *Store) AddDomainAllow(ctx context.Context, guildID, domain string, defaults GuildSettings) error {
	domain = strings.ToLower(strings.TrimSpace(domain))
	return s.settings.update(ctx, func(all *map[string]GuildSettings) error {
		settings, ok := (*all)[guildID]
		if !ok {
			settings = defaults
			settings.GuildID = guildID
		}
		if !slices.Contains(settings.AllowedDomains, domain) {
			settings.AllowedDomains = append(settings.AllowedDomains, domain)
			slices.Sort(settings.AllowedDomains)
		}
		(*all)[guildID] = settings
		return nil
	})
}

func (s *Store) RemoveDomainAllow(ctx context.Context, guildID, domain string) error {
	domain = strings.ToLower(strings.TrimSpace(domain))
	return s.settings.update(ctx, func(all *map[string]GuildSettings) error {
		settings, ok := (*all)[guildID]
		if !ok {
			return nil
		}
		settings.AllowedDomains = slices.DeleteFunc(settings.AllowedDomains, func(d string) bool { return d == domain })
		(*all)[guildID] = settings
		return nil
	})
}

// AddWarning stores w with the next free id for its guild and returns it.
func (s *Store) AddWarning(ctx context.Context, w Warning) (Warning, error) {
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now().UTC()
	}
	err := s.warnings.update(ctx, func(all *map[string][]Warning) error {
		list := (*all)[w.GuildID]
		w.ID = 1
		for _, existing := range list {
			if existing.ID >= w.ID {
				w.ID = existing.ID + 1
			}
		}
		(*all)[w.GuildID] = append(list, w)
		return nil
	})
	return w, err
}

// ListWarnings returns a user's warnings oldest first.
func (s *Store) ListWarnings(ctx context.Context, guildID, userID string) ([]Warning, error) {
	all, err := s.warnings.read(ctx)
	if err != nil {
		return nil, err
	}
	var out []Warning
	for _, w := range all[guildID] {
		if w.UserID == userID {
			out = append(out, w)
		}
	}
	return out, nil
}

// ClearWarnings removes every warning of a user and returns how many there were.
func (s *Store) ClearWarnings(ctx context.Context, guildID, userID string) (int, error) {
	removed := 0
	err := s.warnings.update(ctx, func(all *map[string][]Warning) error {
		list := (*all)[guildID]
		kept := list[:0]
		for _, w := range list {
			if w.UserID == userID {
				removed++
				continue
			}
			kept = append(kept, w)
		}
		(*all)[guildID] = kept
		return nil
	})
	return removed, err
}

func (s *Store) RemoveWarning(ctx context.Context, guildID string, id int) error {
	return s.warnings.update(ctx, func(all *map[string][]Warning) error {
		list := (*all)[guildID]
		idx := slices.IndexFunc(list, func(w Warning) bool { return w.ID == id })
		if idx < 0 {
			return fmt.Errorf("warning %d: %w", id, ErrNotFound)
		}
		(*all)[guildID] = slices.Delete(list, idx, idx+1)
		return nil
	})
}

// AddDeletedMessage records msg and drops the oldest entries beyond
// MaxDeletedPerGuild.
func (s *Store) AddDeletedMessage(ctx context.Context, msg DeletedMessage) error {
	if msg.DeletedAt.IsZero() {
		msg.DeletedAt = time.Now().UTC()
	}
	return s.deleted.update(ctx, func(all *map[string][]DeletedMessage) error {
		list := append((*all)[msg.GuildID], msg)
		if len(list) > MaxDeletedPerGuild {
			list = list[len(list)-MaxDeletedPerGuild:]
		}
		(*all)[msg.GuildID] = list
		return nil
	})
}

// ListDeletedMessages returns up to limit messages newest first. An empty
// channelID matches every channel.
func (s *Store) ListDeletedMessages(ctx context.Context, guildID, channelID string, limit int) ([]DeletedMessage, error) {
	all, err := s.deleted.read(ctx)
	if err != nil {
		return nil, err
	}
	list := all[guildID]
	var out []DeletedMessage
	for i := len(list) - 1; i >= 0; i-- {
		if channelID != "" && list[i].ChannelID != channelID {
			continue
		}
		out = append(out, list[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *Store) AddPermissionChange(ctx context.Context, change PermissionChange) error {
	if change.ChangedAt.IsZero() {
		change.ChangedAt = time.Now().UTC()
	}
	return s.permissions.update(ctx, func(doc *permissionsDoc) error {
		list := append(doc.Changes[change.GuildID], change)
		if len(list) > MaxPermissionChangesPerGuild {
			list = list[len(list)-MaxPermissionChangesPerGuild:]
		}
		doc.Changes[change.GuildID] = list
		return nil
	})
}

// ListPermissionChanges returns up to limit changes newest first.
func (s *Store) ListPermissionChanges(ctx context.Context, guildID string, limit int) ([]PermissionChange, error) {
	doc, err := s.permissions.read(ctx)
	if err != nil {
		return nil, err
	}
	list := doc.Changes[guildID]
	var out []PermissionChange
	for i := len(list) - 1; i >= 0; i-- {
		out = append(out, list[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// RolePermissions returns the last recorded permission bits of a role.
func (s *Store) RolePermissions(ctx context.Context, guildID, roleID string) (int64, bool, error) {
	doc, err := s.permissions.read(ctx)
	if err != nil {
		return 0, false, err
	}
	perms, ok := doc.Snapshots[guildID][roleID]
	return perms, ok, nil
}

func (s *Store) SetRolePermissions(ctx context.Context, guildID, roleID string, perms int64) error {
	return s.permissions.update(ctx, func(doc *permissionsDoc) error {
		if doc.Snapshots[guildID] == nil {
			doc.Snapshots[guildID] = make(map[string]int64)
		}
		doc.Snapshots[guildID][roleID] = perms
		return nil
	})
}

func (s *Store) SetChannelLock(ctx context.Context, lock ChannelLock) error {
	if lock.LockedAt.IsZero() {
		lock.LockedAt = time.Now().UTC()
	}
	return s.locks.update(ctx, func(all *map[string]map[string]ChannelLock) error {
		if (*all)[lock.GuildID] == nil {
			(*all)[lock.GuildID] = make(map[string]ChannelLock)
		}
		(*all)[lock.GuildID][lock.ChannelID] = lock
		return nil
	})
}

func (s *Store) ChannelLock(ctx context.Context, guildID, channelID string) (ChannelLock, bool, error) {
	all, err := s.locks.read(ctx)
	if err != nil {
		return ChannelLock{}, false, err
	}
	lock, ok := all[guildID][channelID]
	return lock, ok, nil
}

// ListChannelLocks returns the guild's locks with the given reason, or all of
// them when reason is empty.
func (s *Store) ListChannelLocks(ctx context.Context, guildID, reason string) ([]ChannelLock, error) {
	all, err := s.locks.read(ctx)
	if err != nil {
		return nil, err
	}
	var out []ChannelLock
	for _, lock := range all[guildID] {
		if reason != "" && lock.Reason != reason {
			continue
		}
		out = append(out, lock)
	}
	slices.SortFunc(out, func(a, b ChannelLock) int { return strings.Compare(a.ChannelID, b.ChannelID) })
	return out, nil
}

func (s *Store) DeleteChannelLock(ctx context.Context, guildID, channelID string) error {
	return s.locks.update(ctx, func(all *map[string]map[string]ChannelLock) error {
		delete((*all)[guildID], channelID)
		if len((*all)[guildID]) == 0 {
			delete(*all, guildID)
		}
		return nil
	})
}
