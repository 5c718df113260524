// Package config is the ambient configuration layer (§7): a root Config
// struct loaded from a JSON file with environment-variable overrides for
// process-wide settings, plus a
// Store that loads, merges, and persists the per-guild/per-channel
// override files (inline_response_config.json, chatbot_config.json).
//
// Grounded on the teacher's internal/config package for the root-struct
// shape and on the store/manager load-mutate-save idiom shared by
// internal/indexing and internal/conversation.
package config

import (
	"sort"
	"sync"

	"github.com/nextlevelbuilder/discordctx/internal/conversation"
	"github.com/nextlevelbuilder/discordctx/internal/model"
	"github.com/nextlevelbuilder/discordctx/internal/paths"
	"github.com/nextlevelbuilder/discordctx/internal/storage"
)

// Store loads and merges the InlineResponseConfig and ChannelChatbotConfig
// override files, and persists writes back to disk.
type Store struct {
	store  *storage.Store
	layout paths.Layout

	mu     sync.RWMutex
	inline model.InlineResponseFile
	chat   model.ChatbotConfigFile
}

// NewStore creates a Store and loads both override files.
func NewStore(store *storage.Store, layout paths.Layout) (*Store, error) {
	s := &Store{store: store, layout: layout}

	var inline model.InlineResponseFile
	if _, err := store.Read(layout.InlineResponseConfig(), &inline); err != nil {
		return nil, err
	}
	if inline.Servers == nil {
		inline.Servers = make(map[string]*model.InlineResponseServerConfig)
	}
	s.inline = inline

	var chat model.ChatbotConfigFile
	if _, err := store.Read(layout.ChatbotConfig(), &chat); err != nil {
		return nil, err
	}
	if chat.Channels == nil {
		chat.Channels = make(map[string]map[string]*model.ChannelChatbotConfig)
	}
	s.chat = chat

	return s, nil
}

// InlineConfig resolves the effective inline-response configuration for a
// guild/channel by merging defaults ◁ server ◁ channel (§3).
func (s *Store) InlineConfig(guildID, channelID string) model.InlineResponseConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()

	server := s.inline.Servers[guildID]
	if server == nil {
		return model.EffectiveInlineResponseConfig(nil, nil)
	}

	var channelCfg *model.InlineResponseConfig
	if c, ok := server.Channels[channelID]; ok {
		channelCfg = &c
	}
	return model.EffectiveInlineResponseConfig(&server.ServerSettings, channelCfg)
}

// SetInlineServerConfig replaces the server-level settings for a guild.
func (s *Store) SetInlineServerConfig(guildID string, cfg model.InlineResponseConfig) error {
	s.mu.Lock()
	server, ok := s.inline.Servers[guildID]
	if !ok {
		server = &model.InlineResponseServerConfig{}
		s.inline.Servers[guildID] = server
	}
	server.ServerSettings = cfg
	snapshot := s.inline
	s.mu.Unlock()
	return s.store.Write(s.layout.InlineResponseConfig(), snapshot)
}

// SetInlineChannelConfig replaces the channel-level override for a guild/channel.
func (s *Store) SetInlineChannelConfig(guildID, channelID string, cfg model.InlineResponseConfig) error {
	s.mu.Lock()
	server, ok := s.inline.Servers[guildID]
	if !ok {
		server = &model.InlineResponseServerConfig{}
		s.inline.Servers[guildID] = server
	}
	if server.Channels == nil {
		server.Channels = make(map[string]model.InlineResponseConfig)
	}
	server.Channels[channelID] = cfg
	snapshot := s.inline
	s.mu.Unlock()
	return s.store.Write(s.layout.InlineResponseConfig(), snapshot)
}

// ChatbotConfig resolves the effective chatbot-mode configuration for a
// guild/channel, falling back to the global override then the documented
// defaults, clamped to their ranges (§7).
func (s *Store) ChatbotConfig(guildID, channelID string) model.ChannelChatbotConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if guildChannels, ok := s.chat.Channels[guildID]; ok {
		if cfg, ok := guildChannels[channelID]; ok && cfg != nil {
			out := *cfg
			return *out.Clamp()
		}
	}
	if s.chat.Global != nil {
		out := *s.chat.Global
		return *out.Clamp()
	}
	cfg := model.DefaultChannelChatbotConfig()
	return *cfg.Clamp()
}

// PruneSpecs lists every configured channel with auto-prune enabled, for
// the periodic conversation.Store.PruneAll sweep (§4.3).
func (s *Store) PruneSpecs() []conversation.ChannelPruneSpec {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var specs []conversation.ChannelPruneSpec
	for guildID, channels := range s.chat.Channels {
		for channelID, cfg := range channels {
			if cfg == nil || !cfg.AutoPruneEnabled {
				continue
			}
			out := *cfg
			out.Clamp()
			specs = append(specs, conversation.ChannelPruneSpec{
				GuildID:            guildID,
				ChannelID:          channelID,
				WindowHours:        out.ContextWindowHours,
				MaxContextMessages: out.MaxContextMessages,
			})
		}
	}
	return specs
}

// ChatbotChannelIDs lists every channel in guildID with chatbot mode enabled,
// for the periodic index-maintenance sweep (§4.2) to know which channels'
// pins and metadata to keep fresh.
func (s *Store) ChatbotChannelIDs(guildID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for channelID, cfg := range s.chat.Channels[guildID] {
		if cfg != nil && cfg.Enabled {
			ids = append(ids, channelID)
		}
	}
	sort.Strings(ids)
	return ids
}

// SetChatbotConfig persists a per-channel chatbot-mode override.
func (s *Store) SetChatbotConfig(guildID, channelID string, cfg model.ChannelChatbotConfig) error {
	cfg.Clamp()

	s.mu.Lock()
	if s.chat.Channels[guildID] == nil {
		s.chat.Channels[guildID] = make(map[string]*model.ChannelChatbotConfig)
	}
	s.chat.Channels[guildID][channelID] = &cfg
	snapshot := s.chat
	s.mu.Unlock()
	return s.store.Write(s.layout.ChatbotConfig(), snapshot)
}
