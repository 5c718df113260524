// Package indexing implements the IndexManager described in spec §4.2:
// per-guild User/Channel indexes and per-channel pin indexes, maintained
// incrementally as messages, members, and channel metadata are observed.
package indexing

import (
	"log/slog"
	"sync"
	"time"

	"github.com/nextlevelbuilder/discordctx/internal/model"
	"github.com/nextlevelbuilder/discordctx/internal/paths"
	"github.com/nextlevelbuilder/discordctx/internal/storage"
)

// DefaultCleanupHorizon is the default staleness horizon for cleanup_stale_users (§4.2).
const DefaultCleanupHorizon = 168 * time.Hour

// ValidateFn reports whether a candidate pin/history message should be retained.
type ValidateFn func(msg model.ConversationMessage) bool

// ExtractFn converts a platform-native pin candidate into a ConversationMessage
// (reusing the same §4.3.1 extraction the conversation store performs).
type ExtractFn func() (model.ConversationMessage, bool)

// Manager owns the user, channel, and pin indexes for all guilds.
type Manager struct {
	store  *storage.Store
	layout paths.Layout

	mu sync.Mutex // guards per-guild in-process merges against lost updates
}

// New creates an IndexManager backed by store under layout.
func New(store *storage.Store, layout paths.Layout) *Manager {
	return &Manager{store: store, layout: layout}
}

func (m *Manager) loadUserIndex(guildID string) map[string]*model.UserIndexEntry {
	var f model.UserIndexFile
	m.store.Read(m.layout.UserIndex(guildID), &f)
	if f.Users == nil {
		f.Users = make(map[string]*model.UserIndexEntry)
	}
	return f.Users
}

func (m *Manager) saveUserIndex(guildID string, users map[string]*model.UserIndexEntry) error {
	return m.store.Write(m.layout.UserIndex(guildID), model.UserIndexFile{Users: users})
}

// UpdateUser merges new facts into the existing entry (or creates it), bumps
// last_seen, and increments message_count iff isAuthor (§4.2).
func (m *Manager) UpdateUser(guildID string, u model.DiscordUserLike, isAuthor bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	users := m.loadUserIndex(guildID)
	mergeUser(users, u, isAuthor, guildID, "")
	if err := m.saveUserIndex(guildID, users); err != nil {
		slog.Error("indexing: failed to save user index", "guild_id", guildID, "error", err)
	}
}

// BulkUpdateUsers is the batched variant used during bulk ingest: a single
// write per guild instead of one write per user (§4.2, §5 write-amplification note).
func (m *Manager) BulkUpdateUsers(guildID string, us []model.DiscordUserLike, isAuthor bool) {
	if len(us) == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	users := m.loadUserIndex(guildID)
	for _, u := range us {
		mergeUser(users, u, isAuthor, guildID, "")
	}
	if err := m.saveUserIndex(guildID, users); err != nil {
		slog.Error("indexing: failed bulk user index save", "guild_id", guildID, "error", err)
	}
}

func mergeUser(users map[string]*model.UserIndexEntry, u model.DiscordUserLike, isAuthor bool, guildID, guildName string) {
	now := time.Now().Unix()
	e, ok := users[u.UserID]
	if !ok {
		e = &model.UserIndexEntry{
			UserID:    u.UserID,
			GuildID:   guildID,
			FirstSeen: now,
		}
		users[u.UserID] = e
	}

	e.Username = u.Username
	if u.DisplayName != "" {
		e.DisplayName = u.DisplayName
	} else if e.DisplayName == "" {
		e.DisplayName = u.Username
	}
	if u.AvatarURL != "" {
		e.AvatarURL = u.AvatarURL
	}
	if u.Status != "" {
		e.Status = u.Status
	}
	if u.Roles != nil {
		e.Roles = filterEveryone(u.Roles)
	}
	if guildName != "" {
		e.GuildName = guildName
	}
	e.IsBot = u.IsBot
	e.LastSeen = now
	if isAuthor {
		e.MessageCount++
	}
}

func filterEveryone(roles []string) []string {
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		if r == "@everyone" {
			continue
		}
		out = append(out, r)
	}
	return out
}

// UpdateChannel derives topic, category, and NSFW flag with thread-parent
// fallback, and persists the channel index entry (§4.2, §3).
func (m *Manager) UpdateChannel(c model.DiscordChannelLike) {
	var f model.ChannelIndexFile
	m.store.Read(m.layout.ChannelIndex(c.GuildID), &f)
	if f.Channels == nil {
		f.Channels = make(map[string]*model.ChannelIndexEntry)
	}

	topic := c.Topic
	category := c.CategoryName
	nsfw := c.IsNSFW
	name := c.ChannelName
	if c.IsThread {
		if topic == "" {
			if c.ThreadName != "" {
				topic = c.ThreadName
			} else {
				topic = c.ParentTopic
			}
		}
		if category == "" {
			category = c.ParentCategoryName
		}
		nsfw = nsfw || c.ParentIsNSFW
		if name == "" {
			name = c.ThreadName
		}
	}

	e, ok := f.Channels[c.ChannelID]
	if !ok {
		e = &model.ChannelIndexEntry{ChannelID: c.ChannelID, GuildID: c.GuildID}
		f.Channels[c.ChannelID] = e
	}
	e.ChannelName = name
	e.ChannelType = c.ChannelType
	e.Topic = topic
	e.CategoryName = category
	e.IsNSFW = nsfw
	if c.GuildName != "" {
		e.GuildName = c.GuildName
	}
	if c.GuildDescription != "" {
		e.GuildDescription = c.GuildDescription
	}
	e.LastIndexed = time.Now().Unix()

	if err := m.store.Write(m.layout.ChannelIndex(c.GuildID), f); err != nil {
		slog.Error("indexing: failed to save channel index", "guild_id", c.GuildID, "error", err)
	}
}

// IncrementChannelMessageCount bumps the message_count tracked for a channel.
func (m *Manager) IncrementChannelMessageCount(guildID, channelID string) {
	var f model.ChannelIndexFile
	m.store.Read(m.layout.ChannelIndex(guildID), &f)
	if f.Channels == nil {
		return
	}
	if e, ok := f.Channels[channelID]; ok {
		e.MessageCount++
		if err := m.store.Write(m.layout.ChannelIndex(guildID), f); err != nil {
			slog.Error("indexing: failed to persist channel message count", "guild_id", guildID, "error", err)
		}
	}
}

// IndexPinnedMessages truncates the pin file for channelID and writes the
// freshly fetched pin set — pins are authoritative, not appended (§4.2).
// candidates are run through validateFn (the same validity gate used for
// conversation history) and authors are merged into the user index.
func (m *Manager) IndexPinnedMessages(guildID, channelID string, candidates []model.ConversationMessage, validateFn ValidateFn, authors []model.DiscordUserLike) {
	kept := make([]model.PinnedMessage, 0, len(candidates))
	for _, c := range candidates {
		if validateFn != nil && !validateFn(c) {
			continue
		}
		kept = append(kept, model.PinnedMessage{
			UserID:         c.UserID,
			Username:       c.Username,
			Content:        c.Content,
			Timestamp:      c.Timestamp,
			MessageID:      c.MessageID,
			AttachmentURLs: c.AttachmentURLs,
			EmbedURLs:      c.EmbedURLs,
		})
	}

	if err := m.store.Write(m.layout.Pins(guildID, channelID), model.PinFile{Messages: kept}); err != nil {
		slog.Error("indexing: failed to write pin file", "guild_id", guildID, "channel_id", channelID, "error", err)
	}

	if len(authors) > 0 {
		m.BulkUpdateUsers(guildID, authors, false)
	}
}

// LoadPins returns the currently indexed pins for a channel.
func (m *Manager) LoadPins(guildID, channelID string) []model.PinnedMessage {
	var f model.PinFile
	m.store.Read(m.layout.Pins(guildID, channelID), &f)
	return f.Messages
}

// LoadUserIndex returns the current user index for a guild (read-only snapshot).
func (m *Manager) LoadUserIndex(guildID string) map[string]*model.UserIndexEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadUserIndex(guildID)
}

// LoadChannelIndex returns the current channel index entry for a channel, if any.
func (m *Manager) LoadChannelIndex(guildID, channelID string) (*model.ChannelIndexEntry, bool) {
	var f model.ChannelIndexFile
	m.store.Read(m.layout.ChannelIndex(guildID), &f)
	e, ok := f.Channels[channelID]
	return e, ok
}

// CleanupStaleUsers removes users whose last_seen predates horizon, returning
// the removed count (§4.2).
func (m *Manager) CleanupStaleUsers(guildID string, horizon time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	users := m.loadUserIndex(guildID)
	cutoff := time.Now().Add(-horizon).Unix()
	removed := 0
	for id, e := range users {
		if e.LastSeen < cutoff {
			delete(users, id)
			removed++
		}
	}
	if removed > 0 {
		if err := m.saveUserIndex(guildID, users); err != nil {
			slog.Error("indexing: failed to persist cleanup", "guild_id", guildID, "error", err)
		}
	}
	return removed
}

// ReferencedUserIDs is supplied by ContextualCleanup's caller: the set of user
// IDs referenced as author, reply target, mention, or pin author within the
// current window (§4.2). ConversationStore/ContextFormatter compute this set;
// IndexManager only applies the resulting reduction.
func (m *Manager) ContextualCleanup(guildID string, referenced map[string]struct{}) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	users := m.loadUserIndex(guildID)
	removed := 0
	for id := range users {
		if _, keep := referenced[id]; !keep {
			delete(users, id)
			removed++
		}
	}
	if removed > 0 {
		if err := m.saveUserIndex(guildID, users); err != nil {
			slog.Error("indexing: failed to persist contextual cleanup", "guild_id", guildID, "error", err)
		}
	}
	return removed
}
