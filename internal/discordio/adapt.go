package discordio

import (
	"strings"

	"github.com/bwmarrin/discordgo"
)

// FromMessage converts a discordgo.Message into the normalized Message
// shape. displayName is resolved by the caller (server nickname > global
// display name > username), matching the teacher's resolveDisplayName.
func FromMessage(m *discordgo.Message, displayName string) Message {
	if m == nil {
		return Message{}
	}

	out := Message{
		MessageID:      m.ID,
		ChannelID:      m.ChannelID,
		GuildID:        m.GuildID,
		Content:        m.Content,
		Timestamp:      m.Timestamp.Unix(),
	}

	if m.Author != nil {
		out.AuthorID = m.Author.ID
		out.AuthorUsername = m.Author.Username
		out.AuthorIsBot = m.Author.Bot
	}
	out.AuthorDisplayName = displayName
	if out.AuthorDisplayName == "" {
		out.AuthorDisplayName = out.AuthorUsername
	}

	if m.MessageReference != nil {
		out.ReferencedMessageID = m.MessageReference.MessageID
	}

	for _, u := range m.Mentions {
		if u != nil {
			out.MentionedUserIDs = append(out.MentionedUserIDs, u.ID)
		}
	}

	for _, a := range m.Attachments {
		out.Attachments = append(out.Attachments, Attachment{
			URL:         a.URL,
			ContentType: a.ContentType,
			SizeBytes:   int64(a.Size),
			Width:       a.Width,
			Height:      a.Height,
		})
	}

	for _, e := range m.Embeds {
		if e == nil {
			continue
		}
		url := e.URL
		if e.Image != nil && e.Image.URL != "" {
			url = e.Image.URL
		} else if e.Video != nil && e.Video.URL != "" {
			url = e.Video.URL
		}
		out.Embeds = append(out.Embeds, Embed{Type: strings.ToLower(string(e.Type)), URL: url})
	}

	return out
}

// ResolveDisplayName picks the best available display name for a message
// author, mirroring the teacher's discord.go resolveDisplayName: server
// nickname, then global display name, then username.
func ResolveDisplayName(member *discordgo.Member, author *discordgo.User) string {
	if member != nil && member.Nick != "" {
		return member.Nick
	}
	if author != nil && author.GlobalName != "" {
		return author.GlobalName
	}
	if author != nil {
		return author.Username
	}
	return ""
}

// FromMember converts a discordgo.Member into the normalized Member shape.
func FromMember(m *discordgo.Member) Member {
	if m == nil {
		return Member{}
	}
	out := Member{Roles: append([]string(nil), m.Roles...)}
	if m.User != nil {
		out.UserID = m.User.ID
		out.Username = m.User.Username
		out.AvatarURL = m.User.AvatarURL("")
		out.IsBot = m.User.Bot
	}
	out.DisplayName = ResolveDisplayName(m, m.User)
	return out
}

// FromChannel converts a discordgo.Channel into the normalized Channel
// shape. guildName/guildDescription are resolved by the caller since a bare
// discordgo.Channel doesn't carry its parent guild's metadata.
func FromChannel(c *discordgo.Channel, categoryName, guildName, guildDescription string) Channel {
	if c == nil {
		return Channel{}
	}
	return Channel{
		ChannelID:        c.ID,
		GuildID:          c.GuildID,
		Name:             c.Name,
		Type:             channelTypeName(c.Type),
		Topic:            c.Topic,
		CategoryName:     categoryName,
		IsNSFW:           c.NSFW,
		GuildName:        guildName,
		GuildDescription: guildDescription,
		ParentID:         c.ParentID,
	}
}

func channelTypeName(t discordgo.ChannelType) string {
	switch t {
	case discordgo.ChannelTypeGuildText:
		return "text"
	case discordgo.ChannelTypeGuildVoice:
		return "voice"
	case discordgo.ChannelTypeGuildCategory:
		return "category"
	case discordgo.ChannelTypeGuildNews:
		return "news"
	case discordgo.ChannelTypeGuildNewsThread:
		return "news_thread"
	case discordgo.ChannelTypeGuildPublicThread:
		return "public_thread"
	case discordgo.ChannelTypeGuildPrivateThread:
		return "private_thread"
	case discordgo.ChannelTypeDM:
		return "dm"
	default:
		return "unknown"
	}
}
