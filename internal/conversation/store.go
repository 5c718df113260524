// Package conversation implements the ConversationStore described in spec
// §4.3: per-channel append/filter/prune/edit/delete over an ordered message
// list, plus the Discord-message extraction pipeline in §4.3.1.
//
// Grounded on the teacher's internal/sessions.Manager for the load/save shape
// (_examples/vanducng-goclaw/internal/sessions/manager.go) and on
// _examples/original_source/utils/chatbot/conversation.py for the exact
// validity-gate and extraction semantics.
package conversation

import (
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/discordctx/internal/indexing"
	"github.com/nextlevelbuilder/discordctx/internal/model"
	"github.com/nextlevelbuilder/discordctx/internal/paths"
	"github.com/nextlevelbuilder/discordctx/internal/storage"
)

// DiscordMessageLike is the minimal platform-native message shape Store needs.
type DiscordMessageLike struct {
	MessageID           string
	UserID               string
	Username             string
	Content              string
	Timestamp            int64
	IsBotResponse        bool
	IsSelfBotResponse    bool
	ReferencedMessageID  string
	Attachments          []AttachmentLike
	Embeds               []EmbedLike
}

// Store is the ConversationStore (§4.3).
type Store struct {
	store  *storage.Store
	layout paths.Layout
	index  *indexing.Manager
}

// New creates a ConversationStore backed by store/layout, updating idx for
// message authors as conversations are ingested.
func New(store *storage.Store, layout paths.Layout, idx *indexing.Manager) *Store {
	return &Store{store: store, layout: layout, index: idx}
}

func (s *Store) load(guildID, channelID string) model.ConversationFile {
	var f model.ConversationFile
	s.store.Read(s.layout.Conversation(guildID, channelID), &f)
	return f
}

func (s *Store) save(guildID, channelID string, f model.ConversationFile) error {
	f.LastUpdated = time.Now().Unix()
	return s.store.Write(s.layout.Conversation(guildID, channelID), f)
}

// LoadHistory reads the channel file, drops messages older than
// windowHours, and runs each survivor through the validity gate, returning
// the chronologically ordered survivors (§4.3).
func (s *Store) LoadHistory(guildID, channelID string, windowHours int) []model.ConversationMessage {
	f := s.load(guildID, channelID)
	cutoff := time.Now().Add(-time.Duration(windowHours) * time.Hour).Unix()

	out := make([]model.ConversationMessage, 0, len(f.Messages))
	for _, m := range f.Messages {
		if m.Timestamp < cutoff {
			continue
		}
		if !IsValidContextMessage(m) {
			continue
		}
		out = append(out, m)
	}
	return out
}

func buildParts(cleanedContent string, imageURLs []string) []model.ContentPart {
	var parts []model.ContentPart
	if cleanedContent != "" {
		parts = append(parts, model.TextPart(cleanedContent))
	}
	for _, u := range imageURLs {
		parts = append(parts, model.ImagePart(u))
	}
	return parts
}

func messageExists(f model.ConversationFile, messageID string) bool {
	for _, m := range f.Messages {
		if m.MessageID == messageID {
			return true
		}
	}
	return false
}

// ToConversationMessage converts a platform-native message into a
// ConversationMessage, running the same extraction and validity-window gate
// Add/BulkAdd use before persisting. Exported for callers that need an
// ephemeral, non-persisted conversion (e.g. the inline response engine's
// ad-hoc context builder, §4.8).
func ToConversationMessage(guildID string, dm DiscordMessageLike, windowHours int) (model.ConversationMessage, bool) {
	return toConversationMessage(guildID, dm, windowHours)
}

func toConversationMessage(guildID string, dm DiscordMessageLike, windowHours int) (model.ConversationMessage, bool) {
	ex := Extract(dm.Content, dm.Attachments, dm.Embeds)
	if ex.CleanedContent == "" && len(ex.ImageURLs) == 0 && len(ex.DocumentURLs) == 0 {
		return model.ConversationMessage{}, false
	}

	cutoff := time.Now().Add(-time.Duration(windowHours) * time.Hour).Unix()
	if dm.Timestamp < cutoff {
		return model.ConversationMessage{}, false
	}

	msg := model.ConversationMessage{
		UserID:              dm.UserID,
		Username:            dm.Username,
		Content:             ex.CleanedContent,
		Timestamp:           dm.Timestamp,
		MessageID:           dm.MessageID,
		IsBotResponse:       dm.IsBotResponse,
		IsSelfBotResponse:   dm.IsSelfBotResponse,
		ReferencedMessageID: dm.ReferencedMessageID,
		AttachmentURLs:      append(append([]string{}, ex.ImageURLs...), ex.DocumentURLs...),
		EmbedURLs:           ex.OtherEmbedURLs,
		MultimodalContent:   buildParts(ex.CleanedContent, ex.ImageURLs),
	}
	return msg, true
}

// Add deduplicates by message_id (via a file scan), extracts and validates
// dm, appends it, truncates to maxContextMessages, and persists. It merges
// the author into the user index itself (when the store has one), and returns
// whether the message was added and that author.
func (s *Store) Add(guildID, channelID string, dm DiscordMessageLike, maxContextMessages, windowHours int) (added bool, usersToIndex []model.DiscordUserLike) {
	f := s.load(guildID, channelID)
	if messageExists(f, dm.MessageID) {
		return false, nil
	}

	msg, ok := toConversationMessage(guildID, dm, windowHours)
	if !ok {
		return false, nil
	}

	f.Messages = append(f.Messages, msg)
	if len(f.Messages) > maxContextMessages {
		f.Messages = f.Messages[len(f.Messages)-maxContextMessages:]
	}

	if err := s.save(guildID, channelID, f); err != nil {
		slog.Error("conversation: failed to save after add", "guild_id", guildID, "channel_id", channelID, "error", err)
		return false, nil
	}

	author := model.DiscordUserLike{UserID: dm.UserID, Username: dm.Username}
	if s.index != nil {
		s.index.UpdateUser(guildID, author, true)
	}
	return true, []model.DiscordUserLike{author}
}

// BulkAdd runs a batch of messages through Add's logic with a single final
// write, returning the deduped additions and a merged author list.
func (s *Store) BulkAdd(guildID, channelID string, msgs []DiscordMessageLike, maxContextMessages, windowHours int) (added []model.ConversationMessage, usersToIndex []model.DiscordUserLike) {
	f := s.load(guildID, channelID)
	seenAuthors := make(map[string]model.DiscordUserLike)

	for _, dm := range msgs {
		if messageExists(f, dm.MessageID) {
			continue
		}
		msg, ok := toConversationMessage(guildID, dm, windowHours)
		if !ok {
			continue
		}
		f.Messages = append(f.Messages, msg)
		added = append(added, msg)
		seenAuthors[dm.UserID] = model.DiscordUserLike{UserID: dm.UserID, Username: dm.Username}
	}

	if len(added) == 0 {
		return nil, nil
	}

	if len(f.Messages) > maxContextMessages {
		f.Messages = f.Messages[len(f.Messages)-maxContextMessages:]
	}

	if err := s.save(guildID, channelID, f); err != nil {
		slog.Error("conversation: failed to save after bulk add", "guild_id", guildID, "channel_id", channelID, "error", err)
		return nil, nil
	}

	for _, u := range seenAuthors {
		usersToIndex = append(usersToIndex, u)
	}
	if s.index != nil && len(usersToIndex) > 0 {
		s.index.BulkUpdateUsers(guildID, usersToIndex, true)
	}
	return added, usersToIndex
}

// Edit replaces only the text content field of an existing message; edit
// payloads carry no attachment/embed data, so those fields are untouched (§4.3).
func (s *Store) Edit(guildID, channelID, messageID, newContent string) bool {
	f := s.load(guildID, channelID)
	found := false
	for i := range f.Messages {
		if f.Messages[i].MessageID == messageID {
			f.Messages[i].Content = newContent
			found = true
			break
		}
	}
	if !found {
		return false
	}
	if err := s.save(guildID, channelID, f); err != nil {
		slog.Error("conversation: failed to save after edit", "guild_id", guildID, "channel_id", channelID, "error", err)
		return false
	}
	return true
}

// Delete removes a message by id.
func (s *Store) Delete(guildID, channelID, messageID string) bool {
	f := s.load(guildID, channelID)
	out := f.Messages[:0]
	removed := false
	for _, m := range f.Messages {
		if m.MessageID == messageID {
			removed = true
			continue
		}
		out = append(out, m)
	}
	if !removed {
		return false
	}
	f.Messages = out
	if err := s.save(guildID, channelID, f); err != nil {
		slog.Error("conversation: failed to save after delete", "guild_id", guildID, "channel_id", channelID, "error", err)
		return false
	}
	return true
}

// ChannelPruneSpec names a configured channel and the limits prune_all
// enforces for it.
type ChannelPruneSpec struct {
	GuildID            string
	ChannelID          string
	WindowHours        int
	MaxContextMessages int
}

// PruneAll walks every channel in specs, drops out-of-window and
// over-count messages, and removes the file entirely if it ends up empty
// (§4.3). It does not read prune_interval_hours: every channel passed in is
// pruned on each call, so how often a channel is pruned depends only on how
// often the caller invokes PruneAll.
func (s *Store) PruneAll(specs []ChannelPruneSpec) {
	for _, spec := range specs {
		f := s.load(spec.GuildID, spec.ChannelID)
		cutoff := time.Now().Add(-time.Duration(spec.WindowHours) * time.Hour).Unix()

		kept := f.Messages[:0]
		for _, m := range f.Messages {
			if m.Timestamp >= cutoff {
				kept = append(kept, m)
			}
		}
		if len(kept) > spec.MaxContextMessages {
			kept = kept[len(kept)-spec.MaxContextMessages:]
		}

		if len(kept) == 0 {
			if err := s.store.Delete(s.layout.Conversation(spec.GuildID, spec.ChannelID)); err != nil {
				slog.Error("conversation: failed to remove empty channel file", "guild_id", spec.GuildID, "channel_id", spec.ChannelID, "error", err)
			}
			continue
		}

		f.Messages = kept
		if err := s.save(spec.GuildID, spec.ChannelID, f); err != nil {
			slog.Error("conversation: failed to save during prune", "guild_id", spec.GuildID, "channel_id", spec.ChannelID, "error", err)
		}
	}
}
