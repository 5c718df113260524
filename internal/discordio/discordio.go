// Package discordio is the §6 chat-platform boundary: it isolates every
// OCR/inline/streaming component from the bwmarrin/discordgo wire types,
// exposing only the plain-struct shapes those components actually need.
//
// Grounded on the teacher's internal/channels/discord/discord.go (session
// lifecycle, chunked sending, mention gating, typing indicator) adapted
// from goclaw's single fixed agent loop to this system's three independent
// consumers (OCR pipeline, inline response engine, streaming relay).
package discordio

import (
	"context"
	"errors"
)

// ErrRateLimited is wrapped into the error returned by EditMessage when
// Discord answers with HTTP 429 (SendMessage does not wrap it), so callers (the streaming relay's
// backoff, §4.9 step 4) can detect it with errors.Is without depending on
// bwmarrin/discordgo's own error types.
var ErrRateLimited = errors.New("discordio: rate limited")

// Attachment is the minimal attachment shape surfaced from a gateway event.
type Attachment struct {
	URL         string
	ContentType string
	SizeBytes   int64
	Width       int
	Height      int
}

// Embed is the minimal embed shape surfaced from a gateway event.
type Embed struct {
	Type string
	URL  string
}

// Message is the normalized shape of an inbound Discord message, built from
// a discordgo.Message by adapt.go's FromMessage.
type Message struct {
	MessageID           string
	ChannelID           string
	GuildID             string
	AuthorID            string
	AuthorUsername      string
	AuthorDisplayName    string
	AuthorIsBot         bool
	Content             string
	Timestamp           int64
	ReferencedMessageID string
	MentionedUserIDs    []string
	Attachments         []Attachment
	Embeds              []Embed
}

// Member is the normalized shape of a guild member, used for index backfill.
type Member struct {
	UserID      string
	Username    string
	DisplayName string
	AvatarURL   string
	Roles       []string
	IsBot       bool
}

// Channel is the normalized shape of a guild channel/thread.
type Channel struct {
	ChannelID        string
	GuildID          string
	Name             string
	Type             string
	Topic            string
	CategoryName     string
	IsNSFW           bool
	GuildName        string
	GuildDescription string
	ParentID         string
}

// HistoryPage is one page of channel history, oldest-first within the page.
type HistoryPage struct {
	Messages []Message
	HasMore  bool
}

// EventHandlers is the set of callbacks a consumer registers to observe the
// gateway. Any of these may be nil.
type EventHandlers struct {
	OnMessageCreate func(Message)
	OnMessageUpdate func(Message)
	OnMessageDelete func(guildID, channelID, messageID string)
}

// Client is the full surface internal/ocr, internal/inline, and
// internal/streaming depend on. A single *discordgo.Session-backed
// implementation (session.go) serves all three.
type Client interface {
	// Connect opens the gateway connection and begins dispatching events to
	// the registered handlers.
	Connect(ctx context.Context, handlers EventHandlers) error
	// Close closes the gateway connection.
	Close() error

	// SendMessage posts a new standalone message, returning its id.
	SendMessage(ctx context.Context, channelID, text string) (messageID string, err error)
	// ReplyToMessage posts a message as an in-reply-to the given message id.
	ReplyToMessage(ctx context.Context, channelID, messageID, text string) error
	// EditMessage replaces the content of a previously sent message.
	EditMessage(ctx context.Context, channelID, messageID, text string) error
	// DeleteMessage deletes a previously sent message.
	DeleteMessage(ctx context.Context, channelID, messageID string) error
	// AddReaction reacts to a message with the given emoji.
	AddReaction(ctx context.Context, channelID, messageID, emoji string) error
	// SendTyping triggers the typing indicator in a channel.
	SendTyping(ctx context.Context, channelID string) error

	// FetchHistory returns up to limit messages before beforeMessageID
	// (empty = most recent), oldest-first within the returned page.
	FetchHistory(ctx context.Context, channelID string, limit int, beforeMessageID string) (HistoryPage, error)
	// FetchMessage resolves a single message by id, used by the
	// "fetch until found" reply-chain resolution (§4.8).
	FetchMessage(ctx context.Context, channelID, messageID string) (Message, bool, error)
	// FetchPins returns the pinned messages in a channel.
	FetchPins(ctx context.Context, channelID string) ([]Message, error)
	// FetchMember resolves guild member metadata for index backfill.
	FetchMember(ctx context.Context, guildID, userID string) (Member, error)
	// FetchChannel resolves channel/thread metadata for index backfill.
	FetchChannel(ctx context.Context, channelID string) (Channel, error)

	// BotUserID returns the bot's own user id, valid after Connect.
	BotUserID() string
	// BotDisplayName returns the bot's display name, valid after Connect.
	BotDisplayName() string
}
