// Package ocr implements the OCRPipeline described in spec §4.7: a bounded
// FIFO queue of image candidates drained by N workers, each running OCR,
// matching the result against the PatternMatcher, and routing a response
// per §4.7.1.
//
// Grounded on _examples/original_source/core/ocr.py (process_pics,
// get_ocr_language, respond_to_ocr) and on the teacher's worker-pool idioms
// (vanducng-goclaw's internal/channels/zalo fan-out via errgroup).
package ocr

import (
	"sort"
	"sync"

	"github.com/nextlevelbuilder/discordctx/internal/model"
	"github.com/nextlevelbuilder/discordctx/internal/paths"
	"github.com/nextlevelbuilder/discordctx/internal/storage"
)

// ConfigStore holds the per-guild OCR channel configuration (§4.7, §4.7.1).
type ConfigStore struct {
	store  *storage.Store
	layout paths.Layout

	mu     sync.RWMutex
	guilds map[string]*model.OCRGuildConfig
}

// NewConfigStore creates a ConfigStore and loads the persisted configuration.
func NewConfigStore(store *storage.Store, layout paths.Layout) *ConfigStore {
	c := &ConfigStore{store: store, layout: layout, guilds: make(map[string]*model.OCRGuildConfig)}
	var f model.OCRConfigFile
	store.Read(layout.OCRConfig(), &f)
	if f.Guilds != nil {
		c.guilds = f.Guilds
	}
	return c
}

// ChannelConfig returns the configuration for a channel, defaulting to
// English and no special role if unconfigured.
func (c *ConfigStore) ChannelConfig(guildID, channelID string) model.OCRChannelConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if g, ok := c.guilds[guildID]; ok {
		if ch, ok := g.Channels[channelID]; ok {
			cfg := *ch
			if cfg.Language == "" {
				cfg.Language = model.DefaultOCRLanguage
			}
			return cfg
		}
	}
	return model.OCRChannelConfig{Language: model.DefaultOCRLanguage}
}

// ResponseChannels returns channel ids configured as response channels for a
// guild, sorted for deterministic iteration order.
func (c *ConfigStore) ResponseChannels(guildID string) []string {
	return c.filterChannels(guildID, func(cc *model.OCRChannelConfig) bool { return cc.IsResponseChannel })
}

// ReadChannels returns channel ids configured as read channels for a guild.
func (c *ConfigStore) ReadChannels(guildID string) []string {
	return c.filterChannels(guildID, func(cc *model.OCRChannelConfig) bool { return cc.IsReadChannel })
}

// FallbackChannels returns channel ids configured as fallback channels for a
// guild, sorted for deterministic iteration order (first entry wins, §4.7.1).
func (c *ConfigStore) FallbackChannels(guildID string) []string {
	return c.filterChannels(guildID, func(cc *model.OCRChannelConfig) bool { return cc.IsFallbackChannel })
}

func (c *ConfigStore) filterChannels(guildID string, pred func(*model.OCRChannelConfig) bool) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	g, ok := c.guilds[guildID]
	if !ok {
		return nil
	}
	var out []string
	for id, cc := range g.Channels {
		if pred(cc) {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// SetChannelConfig sets (and persists) the OCR configuration for a channel.
func (c *ConfigStore) SetChannelConfig(guildID, channelID string, cfg model.OCRChannelConfig) error {
	c.mu.Lock()
	g, ok := c.guilds[guildID]
	if !ok {
		g = &model.OCRGuildConfig{Channels: make(map[string]*model.OCRChannelConfig)}
		c.guilds[guildID] = g
	}
	if g.Channels == nil {
		g.Channels = make(map[string]*model.OCRChannelConfig)
	}
	g.Channels[channelID] = &cfg
	snapshot := model.OCRConfigFile{Guilds: c.guilds}
	c.mu.Unlock()

	return c.store.Write(c.layout.OCRConfig(), snapshot)
}
