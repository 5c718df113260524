package model

// InlineResponseConfig configures the mention-triggered inline reply path (§3),
// with per-channel values overriding per-server values over hardcoded defaults.
// The four permission lists are combined by set union across levels rather
// than override — see EffectiveInlineResponseConfig.
type InlineResponseConfig struct {
	Enabled            bool     `json:"enabled"`
	TriggerOnStartOnly bool     `json:"trigger_on_start_only"`
	ModelType          string   `json:"model_type"` // "ask", "think", "chat"
	ContextMessages    int      `json:"context_messages"`
	UserContextMessages int     `json:"user_context_messages"`
	UseStreaming       bool     `json:"use_streaming"`
	RoleWhitelist      []string `json:"role_whitelist,omitempty"`
	MemberWhitelist    []string `json:"member_whitelist,omitempty"`
	RoleBlacklist      []string `json:"role_blacklist,omitempty"`
	MemberBlacklist    []string `json:"member_blacklist,omitempty"`
}

// DefaultInlineResponseConfig returns the hardcoded base defaults (§3).
func DefaultInlineResponseConfig() InlineResponseConfig {
	return InlineResponseConfig{
		Enabled:             false,
		TriggerOnStartOnly:  false,
		ModelType:           "ask",
		ContextMessages:     20,
		UserContextMessages: 10,
		UseStreaming:        true,
	}
}

// InlineResponseServerConfig is the per-server record with optional per-channel
// overrides, as persisted in data/inline_response_config.json.
type InlineResponseServerConfig struct {
	ServerSettings InlineResponseConfig            `json:"server_settings"`
	Channels       map[string]InlineResponseConfig `json:"channels,omitempty"`
}

// InlineResponseFile is the on-disk shape of data/inline_response_config.json.
type InlineResponseFile struct {
	Servers map[string]*InlineResponseServerConfig `json:"servers"`
}

// EffectiveInlineResponseConfig computes defaults ◁ server ◁ channel, with the
// four permission lists combined by set union across all three levels.
func EffectiveInlineResponseConfig(server, channel *InlineResponseConfig) InlineResponseConfig {
	eff := DefaultInlineResponseConfig()
	var lists [4][]string // whitelist-role, whitelist-member, blacklist-role, blacklist-member

	apply := func(c *InlineResponseConfig) {
		if c == nil {
			return
		}
		eff.Enabled = c.Enabled
		eff.TriggerOnStartOnly = c.TriggerOnStartOnly
		if c.ModelType != "" {
			eff.ModelType = c.ModelType
		}
		if c.ContextMessages != 0 {
			eff.ContextMessages = c.ContextMessages
		}
		if c.UserContextMessages != 0 {
			eff.UserContextMessages = c.UserContextMessages
		}
		eff.UseStreaming = c.UseStreaming
		lists[0] = append(lists[0], c.RoleWhitelist...)
		lists[1] = append(lists[1], c.MemberWhitelist...)
		lists[2] = append(lists[2], c.RoleBlacklist...)
		lists[3] = append(lists[3], c.MemberBlacklist...)
	}

	apply(server)
	apply(channel)

	eff.RoleWhitelist = dedupStrings(lists[0])
	eff.MemberWhitelist = dedupStrings(lists[1])
	eff.RoleBlacklist = dedupStrings(lists[2])
	eff.MemberBlacklist = dedupStrings(lists[3])
	return eff
}

func dedupStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// SafetySetting is a single per-harm-category threshold for a chatbot channel.
type SafetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

// ChannelChatbotConfig configures persistent chatbot mode for a guild/channel (§3).
// Ranged fields are clamped to their documented bounds on load (§7).
type ChannelChatbotConfig struct {
	Enabled                  bool            `json:"enabled"`
	MaxContextMessages       int             `json:"max_context_messages"`       // 10-1000
	MaxUserContextMessages   int             `json:"max_user_context_messages"`  // 5-500
	ContextWindowHours       int             `json:"context_window_hours"`       // 1-168
	ResponseDelaySeconds     int             `json:"response_delay_seconds"`     // 0-10
	MaxResponseLength        int             `json:"max_response_length"`        // 100-4000
	AutoPruneEnabled         bool            `json:"auto_prune_enabled"`
	PruneIntervalHours       int             `json:"prune_interval_hours"`       // 1-48
	AutoRespondToMentions    bool            `json:"auto_respond_to_mentions"`
	AutoRespondToReplies     bool            `json:"auto_respond_to_replies"`
	SafetySettings           []SafetySetting `json:"safety_settings,omitempty"`
	LastClearedTimestamp     int64           `json:"last_cleared_timestamp,omitempty"`
}

// DefaultChannelChatbotConfig returns documented defaults for a new channel.
func DefaultChannelChatbotConfig() ChannelChatbotConfig {
	return ChannelChatbotConfig{
		Enabled:                false,
		MaxContextMessages:     50,
		MaxUserContextMessages: 20,
		ContextWindowHours:     24,
		ResponseDelaySeconds:   0,
		MaxResponseLength:      2000,
		AutoPruneEnabled:       true,
		PruneIntervalHours:     6,
		AutoRespondToMentions:  true,
		AutoRespondToReplies:   true,
	}
}

// Clamp enforces the documented ranges in place, returning itself for chaining.
func (c *ChannelChatbotConfig) Clamp() *ChannelChatbotConfig {
	c.MaxContextMessages = clampInt(c.MaxContextMessages, 10, 1000)
	c.MaxUserContextMessages = clampInt(c.MaxUserContextMessages, 5, 500)
	c.ContextWindowHours = clampInt(c.ContextWindowHours, 1, 168)
	c.ResponseDelaySeconds = clampInt(c.ResponseDelaySeconds, 0, 10)
	c.MaxResponseLength = clampInt(c.MaxResponseLength, 100, 4000)
	c.PruneIntervalHours = clampInt(c.PruneIntervalHours, 1, 48)
	return c
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ChatbotConfigFile is the on-disk shape of data/chatbot_config.json.
type ChatbotConfigFile struct {
	Channels map[string]map[string]*ChannelChatbotConfig `json:"channels"` // guild -> channel -> config
	Global   *ChannelChatbotConfig                       `json:"global,omitempty"`
}
