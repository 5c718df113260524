package model

// UserIndexEntry is a per-guild record of a known Discord user (§3).
type UserIndexEntry struct {
	UserID      string   `json:"user_id"`
	Username    string   `json:"username"`
	DisplayName string   `json:"display_name"`
	GuildID     string   `json:"guild_id"`
	GuildName   string   `json:"guild_name,omitempty"`
	Roles       []string `json:"roles,omitempty"`
	AvatarURL   string   `json:"avatar_url,omitempty"`
	Status      string   `json:"status,omitempty"`
	FirstSeen   int64    `json:"first_seen"`
	LastSeen    int64    `json:"last_seen"`
	MessageCount int64   `json:"message_count"`
	IsBot       bool     `json:"is_bot"`
}

// UserIndexFile is the on-disk shape of a per-guild user index file.
type UserIndexFile struct {
	Users map[string]*UserIndexEntry `json:"users"`
}

// ChannelIndexEntry is a per-guild record of a channel's metadata (§3).
type ChannelIndexEntry struct {
	ChannelID         string `json:"channel_id"`
	GuildID           string `json:"guild_id"`
	ChannelName       string `json:"channel_name"`
	ChannelType       string `json:"channel_type"` // text/public_thread/private_thread/...
	Topic             string `json:"topic,omitempty"`
	CategoryName      string `json:"category_name,omitempty"`
	IsNSFW            bool   `json:"is_nsfw"`
	GuildName         string `json:"guild_name,omitempty"`
	GuildDescription  string `json:"guild_description,omitempty"`
	LastIndexed       int64  `json:"last_indexed"`
	MessageCount      int64  `json:"message_count"`
}

// ChannelIndexFile is the on-disk shape of a per-guild channel index file.
type ChannelIndexFile struct {
	Channels map[string]*ChannelIndexEntry `json:"channels"`
}

// DiscordUserLike is the minimal user-shaped data IndexManager needs to
// merge into a UserIndexEntry; satisfied by both live gateway members and
// cached authors recovered from history.
type DiscordUserLike struct {
	UserID      string
	Username    string
	DisplayName string
	AvatarURL   string
	Status      string
	Roles       []string
	IsBot       bool
}

// DiscordChannelLike is the minimal channel-shaped data IndexManager needs.
type DiscordChannelLike struct {
	ChannelID        string
	GuildID          string
	ChannelName      string
	ChannelType      string
	Topic            string
	CategoryName     string
	IsNSFW           bool
	GuildName        string
	GuildDescription string
	// Thread fallback fields: populated only when ChannelType is a thread kind.
	IsThread           bool
	ParentTopic        string
	ParentCategoryName string
	ParentIsNSFW       bool
	ThreadName         string
}

const (
	ChannelTypeText          = "text"
	ChannelTypePublicThread  = "public_thread"
	ChannelTypePrivateThread = "private_thread"
)

// IsThreadType reports whether t denotes one of the thread channel types.
func IsThreadType(t string) bool {
	return t == ChannelTypePublicThread || t == ChannelTypePrivateThread
}
