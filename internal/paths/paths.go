// Package paths centralises the on-disk persistence layout described in
// spec §6 so every store builds paths the same way.
package paths

import (
	"fmt"
	"path/filepath"
)

// Layout resolves file paths under a configured data root.
type Layout struct {
	Root string
}

// NewLayout creates a Layout rooted at dataRoot (typically "data").
func NewLayout(dataRoot string) Layout {
	return Layout{Root: dataRoot}
}

func (l Layout) ChatbotConfig() string {
	return filepath.Join(l.Root, "chatbot_config.json")
}

func (l Layout) InlineResponseConfig() string {
	return filepath.Join(l.Root, "inline_response_config.json")
}

func (l Layout) MediaCache() string {
	return filepath.Join(l.Root, "media_cache.json")
}

func (l Layout) Patterns() string {
	return filepath.Join(filepath.Dir(l.Root), "patterns.json")
}

func (l Layout) OCRConfig() string {
	return filepath.Join(l.Root, "ocr_config.json")
}

func (l Layout) Conversation(guildID, channelID string) string {
	return filepath.Join(l.Root, "conversations", fmt.Sprintf("guild_%s", guildID), fmt.Sprintf("channel_%s.json", channelID))
}

func (l Layout) ConversationsDir(guildID string) string {
	return filepath.Join(l.Root, "conversations", fmt.Sprintf("guild_%s", guildID))
}

func (l Layout) UserIndex(guildID string) string {
	return filepath.Join(l.Root, "user_index", fmt.Sprintf("guild_%s_users.json", guildID))
}

func (l Layout) ChannelIndex(guildID string) string {
	return filepath.Join(l.Root, "channel_index", fmt.Sprintf("guild_%s_channels.json", guildID))
}

func (l Layout) Pins(guildID, channelID string) string {
	return filepath.Join(l.Root, "pins", fmt.Sprintf("guild_%s_channel_%s_pins.json", guildID, channelID))
}
