package ocr

import (
	"context"
	"fmt"
)

// MaxReplyChunk is the naive chunk size used when a response exceeds a
// single message (grounded on original_source/core/ocr.py's msg_reply,
// which hard-splits at 2000 characters without regard to word boundaries).
const MaxReplyChunk = 2000

// Route implements §4.7.1's response routing policy:
//
//  1. If the candidate's own channel is configured as both a read channel
//     and a response channel, reply in place.
//  2. Otherwise, pick the first response channel (in sorted order) that is
//     not also a read channel and whose configured language matches the
//     candidate channel's language.
//  3. Otherwise, pick the first fallback channel (in sorted order).
//  4. Otherwise, log and drop (the candidate's text is never lost — it was
//     already logged by the caller — but no message is sent).
func Route(ctx context.Context, responder Responder, configs *ConfigStore, c Candidate, text string) error {
	srcCfg := configs.ChannelConfig(c.GuildID, c.ChannelID)

	if srcCfg.IsReadChannel && srcCfg.IsResponseChannel {
		return sendChunked(ctx, responder, c.ChannelID, c.MessageID, text, true)
	}

	readChannels := make(map[string]bool)
	for _, id := range configs.ReadChannels(c.GuildID) {
		readChannels[id] = true
	}

	for _, channelID := range configs.ResponseChannels(c.GuildID) {
		if readChannels[channelID] {
			continue
		}
		cfg := configs.ChannelConfig(c.GuildID, channelID)
		if cfg.Language != srcCfg.Language {
			continue
		}
		return postLinkThenReply(ctx, responder, channelID, c, text)
	}

	fallbacks := configs.FallbackChannels(c.GuildID)
	if len(fallbacks) > 0 {
		return postLinkThenReply(ctx, responder, fallbacks[0], c, text)
	}

	return fmt.Errorf("ocr: no read+response, language-matched, or fallback channel configured for guild %s", c.GuildID)
}

// postLinkThenReply implements §4.7.1 steps 2/3: post a link back to the
// original message in the target channel, then reply to that posted link
// with the recognised/matched text, grounded on original_source/core/ocr.py's
// respond_to_ocr (which sends original_message_link before msg_reply-ing the
// response to the message it just sent).
func postLinkThenReply(ctx context.Context, responder Responder, channelID string, c Candidate, text string) error {
	link := fmt.Sprintf("https://discord.com/channels/%s/%s/%s", c.GuildID, c.ChannelID, c.MessageID)
	linkMessageID, err := responder.SendMessage(ctx, channelID, link)
	if err != nil {
		return err
	}
	return sendChunked(ctx, responder, channelID, linkMessageID, text, true)
}

func sendChunked(ctx context.Context, responder Responder, channelID, replyToMessageID, text string, reply bool) error {
	chunks := chunkText(text, MaxReplyChunk)
	for i, chunk := range chunks {
		if reply && i == 0 {
			if err := responder.ReplyToMessage(ctx, channelID, replyToMessageID, chunk); err != nil {
				return err
			}
			continue
		}
		if _, err := responder.SendMessage(ctx, channelID, chunk); err != nil {
			return err
		}
	}
	return nil
}

func chunkText(text string, size int) []string {
	if len(text) <= size {
		return []string{text}
	}
	var chunks []string
	runes := []rune(text)
	for len(runes) > 0 {
		n := size
		if n > len(runes) {
			n = len(runes)
		}
		chunks = append(chunks, string(runes[:n]))
		runes = runes[n:]
	}
	return chunks
}
