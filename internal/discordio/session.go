package discordio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/bwmarrin/discordgo"
)

// wrapRateLimit tags err with ErrRateLimited when it is a discordgo REST 429,
// so streaming.throttle can detect and back off (§4.9 step 4, §5).
func wrapRateLimit(err error) error {
	if err == nil {
		return nil
	}
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil && restErr.Response.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	}
	return err
}

// Session is a Client backed by a real bwmarrin/discordgo gateway
// connection. Grounded on the teacher's internal/channels/discord/discord.go
// Channel type (session lifecycle, chunked sending idiom).
type Session struct {
	session        *discordgo.Session
	botUserID      string
	botDisplayName string
}

// NewSession creates a Session from a bot token. The gateway connection is
// not opened until Connect is called.
func NewSession(token string) (*Session, error) {
	sess, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discordio: create session: %w", err)
	}
	sess.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent |
		discordgo.IntentsGuildMembers

	return &Session{session: sess}, nil
}

func (s *Session) Connect(ctx context.Context, handlers EventHandlers) error {
	if handlers.OnMessageCreate != nil {
		s.session.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
			if m.Author != nil && m.Author.ID == s.botUserID {
				return
			}
			displayName := ResolveDisplayName(m.Member, m.Author)
			handlers.OnMessageCreate(FromMessage(m.Message, displayName))
		})
	}
	if handlers.OnMessageUpdate != nil {
		s.session.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageUpdate) {
			displayName := ResolveDisplayName(m.Member, m.Author)
			handlers.OnMessageUpdate(FromMessage(m.Message, displayName))
		})
	}
	if handlers.OnMessageDelete != nil {
		s.session.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageDelete) {
			handlers.OnMessageDelete(m.GuildID, m.ChannelID, m.ID)
		})
	}

	if err := s.session.Open(); err != nil {
		return fmt.Errorf("discordio: open session: %w", err)
	}

	me, err := s.session.User("@me")
	if err != nil {
		s.session.Close()
		return fmt.Errorf("discordio: fetch bot identity: %w", err)
	}
	s.botUserID = me.ID
	s.botDisplayName = me.GlobalName
	if s.botDisplayName == "" {
		s.botDisplayName = me.Username
	}
	slog.Info("discordio: connected", "username", me.Username, "id", me.ID)
	return nil
}

func (s *Session) Close() error {
	return s.session.Close()
}

func (s *Session) BotUserID() string {
	return s.botUserID
}

func (s *Session) BotDisplayName() string {
	return s.botDisplayName
}

// maxMessageLen is Discord's hard per-message character ceiling.
const maxMessageLen = 2000

func (s *Session) SendMessage(ctx context.Context, channelID, text string) (string, error) {
	msg, err := s.session.ChannelMessageSend(channelID, truncateHard(text, maxMessageLen))
	if err != nil {
		return "", fmt.Errorf("discordio: send message: %w", err)
	}
	return msg.ID, nil
}

func (s *Session) ReplyToMessage(ctx context.Context, channelID, messageID, text string) error {
	ref := &discordgo.MessageReference{MessageID: messageID, ChannelID: channelID}
	_, err := s.session.ChannelMessageSendReply(channelID, truncateHard(text, maxMessageLen), ref)
	if err != nil {
		return fmt.Errorf("discordio: reply to message: %w", err)
	}
	return nil
}

func (s *Session) EditMessage(ctx context.Context, channelID, messageID, text string) error {
	_, err := s.session.ChannelMessageEdit(channelID, messageID, truncateHard(text, maxMessageLen))
	if err != nil {
		if wrapped := wrapRateLimit(err); errors.Is(wrapped, ErrRateLimited) {
			return wrapped
		}
		return fmt.Errorf("discordio: edit message: %w", err)
	}
	return nil
}

func (s *Session) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	if err := s.session.ChannelMessageDelete(channelID, messageID); err != nil {
		return fmt.Errorf("discordio: delete message: %w", err)
	}
	return nil
}

func (s *Session) AddReaction(ctx context.Context, channelID, messageID, emoji string) error {
	if err := s.session.MessageReactionAdd(channelID, messageID, emoji); err != nil {
		return fmt.Errorf("discordio: add reaction: %w", err)
	}
	return nil
}

func (s *Session) SendTyping(ctx context.Context, channelID string) error {
	if err := s.session.ChannelTyping(channelID); err != nil {
		return fmt.Errorf("discordio: send typing: %w", err)
	}
	return nil
}

func (s *Session) FetchHistory(ctx context.Context, channelID string, limit int, beforeMessageID string) (HistoryPage, error) {
	msgs, err := s.session.ChannelMessages(channelID, limit, beforeMessageID, "", "")
	if err != nil {
		return HistoryPage{}, fmt.Errorf("discordio: fetch history: %w", err)
	}

	page := HistoryPage{HasMore: len(msgs) == limit}
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		displayName := ResolveDisplayName(m.Member, m.Author)
		page.Messages = append(page.Messages, FromMessage(m, displayName))
	}
	return page, nil
}

func (s *Session) FetchMessage(ctx context.Context, channelID, messageID string) (Message, bool, error) {
	m, err := s.session.ChannelMessage(channelID, messageID)
	if err != nil {
		return Message{}, false, nil
	}
	displayName := ResolveDisplayName(m.Member, m.Author)
	return FromMessage(m, displayName), true, nil
}

func (s *Session) FetchPins(ctx context.Context, channelID string) ([]Message, error) {
	msgs, err := s.session.ChannelMessagesPinned(channelID)
	if err != nil {
		return nil, fmt.Errorf("discordio: fetch pins: %w", err)
	}
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		displayName := ResolveDisplayName(m.Member, m.Author)
		out = append(out, FromMessage(m, displayName))
	}
	return out, nil
}

func (s *Session) FetchMember(ctx context.Context, guildID, userID string) (Member, error) {
	m, err := s.session.GuildMember(guildID, userID)
	if err != nil {
		return Member{}, fmt.Errorf("discordio: fetch member: %w", err)
	}
	return FromMember(m), nil
}

func (s *Session) FetchChannel(ctx context.Context, channelID string) (Channel, error) {
	c, err := s.session.Channel(channelID)
	if err != nil {
		return Channel{}, fmt.Errorf("discordio: fetch channel: %w", err)
	}

	var categoryName, guildName, guildDescription string
	if c.ParentID != "" {
		if parent, err := s.session.Channel(c.ParentID); err == nil {
			categoryName = parent.Name
		}
	}
	if c.GuildID != "" {
		if guild, err := s.session.Guild(c.GuildID); err == nil {
			guildName = guild.Name
			guildDescription = guild.Description
		}
	}

	return FromChannel(c, categoryName, guildName, guildDescription), nil
}

func truncateHard(text string, max int) string {
	r := []rune(text)
	if len(r) <= max {
		return text
	}
	return string(r[:max])
}
