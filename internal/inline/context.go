package inline

import (
	"context"
	"sort"

	"github.com/nextlevelbuilder/discordctx/internal/conversation"
	"github.com/nextlevelbuilder/discordctx/internal/discordio"
	"github.com/nextlevelbuilder/discordctx/internal/model"
)

const (
	// InitialHistoryBatch is the size of the first history page fetched
	// before the triggering message (§4.8).
	InitialHistoryBatch = 100

	// MaxFetchAttempts bounds the "fetch until found" loop that resolves
	// reply-chain messages not present in the initial batch (§4.8).
	MaxFetchAttempts = 10

	// BotStitchGapSeconds is the maximum gap between consecutive
	// same-author messages that still counts as one logical reply when
	// stitching a bot's chunked output back together (§4.8).
	BotStitchGapSeconds = 10
)

// BuildContext assembles the ephemeral message pool for one inline-response
// turn: an initial history batch, reply-chain resolution for any messages
// referenced but missing from that batch, same-author bot-message stitching,
// and conversion into ConversationMessage via the validity gate (§4.8).
//
// Grounded on original_source/utils/inline_response.py's build_context.
func BuildContext(ctx context.Context, client discordio.Client, guildID, channelID string, trigger discordio.Message, windowHours int) ([]model.ConversationMessage, []model.DiscordUserLike, error) {
	page, err := client.FetchHistory(ctx, channelID, InitialHistoryBatch, trigger.MessageID)
	if err != nil {
		return nil, nil, err
	}

	pool := make(map[string]discordio.Message, len(page.Messages)+1)
	for _, m := range page.Messages {
		pool[m.MessageID] = m
	}
	pool[trigger.MessageID] = trigger

	resolveReplyChain(ctx, client, channelID, pool)

	ordered := stitchBotMessages(pool)

	var out []model.ConversationMessage
	seenUsers := make(map[string]model.DiscordUserLike)
	for _, m := range ordered {
		dm := conversation.DiscordMessageLike{
			MessageID:           m.MessageID,
			UserID:              m.AuthorID,
			Username:            m.AuthorDisplayName,
			Content:             m.Content,
			Timestamp:           m.Timestamp,
			IsBotResponse:       m.AuthorIsBot,
			ReferencedMessageID: m.ReferencedMessageID,
			Attachments:         toAttachmentLikes(m.Attachments),
			Embeds:              toEmbedLikes(m.Embeds),
		}
		msg, ok := conversation.ToConversationMessage(guildID, dm, windowHours)
		if !ok {
			continue
		}
		if !conversation.IsValidContextMessage(msg) {
			continue
		}
		out = append(out, msg)

		if !m.AuthorIsBot && m.AuthorID != "" {
			seenUsers[m.AuthorID] = model.DiscordUserLike{
				UserID:      m.AuthorID,
				Username:    m.AuthorUsername,
				DisplayName: m.AuthorDisplayName,
			}
		}
	}

	users := make([]model.DiscordUserLike, 0, len(seenUsers))
	for _, u := range seenUsers {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].UserID < users[j].UserID })

	return out, users, nil
}

// resolveReplyChain fetches messages referenced-but-missing from pool, up to
// MaxFetchAttempts rounds, mutating pool in place.
func resolveReplyChain(ctx context.Context, client discordio.Client, channelID string, pool map[string]discordio.Message) {
	for attempt := 0; attempt < MaxFetchAttempts; attempt++ {
		var missing string
		for _, m := range pool {
			if m.ReferencedMessageID == "" {
				continue
			}
			if _, ok := pool[m.ReferencedMessageID]; !ok {
				missing = m.ReferencedMessageID
				break
			}
		}
		if missing == "" {
			return
		}
		resolved, found, err := client.FetchMessage(ctx, channelID, missing)
		if err != nil || !found {
			// Mark as attempted by inserting a placeholder so the loop doesn't
			// retry the same unresolvable id forever within its budget.
			pool[missing] = discordio.Message{MessageID: missing}
			continue
		}
		pool[missing] = resolved
	}
}

// stitchBotMessages returns pool's messages in timestamp order, merging a
// bot message's content with any immediately-following same-author message
// within BotStitchGapSeconds into the earlier message (Discord's 2000-char
// limit means a single logical bot reply often arrives as several sent
// messages).
func stitchBotMessages(pool map[string]discordio.Message) []discordio.Message {
	sorted := make([]discordio.Message, 0, len(pool))
	for _, m := range pool {
		sorted = append(sorted, m)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Timestamp < sorted[j].Timestamp })

	var out []discordio.Message
	for i := 0; i < len(sorted); i++ {
		m := sorted[i]
		if m.AuthorIsBot {
			for i+1 < len(sorted) &&
				sorted[i+1].AuthorIsBot &&
				sorted[i+1].AuthorID == m.AuthorID &&
				sorted[i+1].Timestamp-sorted[i].Timestamp <= BotStitchGapSeconds {
				i++
				if m.Content != "" && sorted[i].Content != "" {
					m.Content += "\n" + sorted[i].Content
				} else if sorted[i].Content != "" {
					m.Content = sorted[i].Content
				}
			}
		}
		out = append(out, m)
	}
	return out
}

func toAttachmentLikes(in []discordio.Attachment) []conversation.AttachmentLike {
	out := make([]conversation.AttachmentLike, len(in))
	for i, a := range in {
		out[i] = conversation.AttachmentLike{URL: a.URL, ContentType: a.ContentType}
	}
	return out
}

func toEmbedLikes(in []discordio.Embed) []conversation.EmbedLike {
	out := make([]conversation.EmbedLike, len(in))
	for i, e := range in {
		out[i] = conversation.EmbedLike{Type: e.Type, URL: e.URL}
	}
	return out
}
