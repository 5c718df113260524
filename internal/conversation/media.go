package conversation

import (
	"context"
	"log/slog"

	"github.com/nextlevelbuilder/discordctx/internal/model"
)

// MediaValidator is the slice of internal/media.Cache the store needs to
// keep persisted attachment URLs servable (§4.4's validate_and_update_url):
// Discord CDN URLs are re-cached on demand, anything else is checked against
// its stored expiry. An empty expiredFilename means validURL is usable.
type MediaValidator interface {
	ValidateAndUpdateURL(ctx context.Context, url string) (validURL string, expiredFilename string)
}

// RefreshMediaURLs runs every attachment URL in msgs through the validator
// before the messages are handed to the context formatter. Rewritten URLs
// are persisted back into the channel file; expired URLs are removed from
// the owning message's attachment_urls and the message re-persisted (§4.4).
// The returned slice carries the formatting view: rewritten image parts
// point at the fresh URL, and expired image parts are replaced with an
// "Image <name> expired" text placeholder so the LLM sees that an image
// used to be there.
func (s *Store) RefreshMediaURLs(ctx context.Context, guildID, channelID string, msgs []model.ConversationMessage, v MediaValidator) []model.ConversationMessage {
	if v == nil {
		return msgs
	}

	f := s.load(guildID, channelID)
	byID := make(map[string]int, len(f.Messages))
	for i, m := range f.Messages {
		byID[m.MessageID] = i
	}

	out := make([]model.ConversationMessage, len(msgs))
	fileChanged := false

	for i, m := range msgs {
		out[i] = copyMessage(m)
		if len(m.AttachmentURLs) == 0 {
			continue
		}

		for _, u := range m.AttachmentURLs {
			validURL, expiredName := v.ValidateAndUpdateURL(ctx, u)
			switch {
			case expiredName != "":
				expireMessageMedia(&out[i], u, expiredName)
				if idx, ok := byID[m.MessageID]; ok {
					removeMessageMedia(&f.Messages[idx], u)
					fileChanged = true
				}
			case validURL != "" && validURL != u:
				rewriteMessageMedia(&out[i], u, validURL)
				if idx, ok := byID[m.MessageID]; ok {
					rewriteMessageMedia(&f.Messages[idx], u, validURL)
					fileChanged = true
				}
			}
		}
	}

	if fileChanged {
		if err := s.save(guildID, channelID, f); err != nil {
			slog.Error("conversation: failed to persist refreshed media urls", "guild_id", guildID, "channel_id", channelID, "error", err)
		}
	}
	return out
}

func copyMessage(m model.ConversationMessage) model.ConversationMessage {
	out := m
	out.AttachmentURLs = append([]string(nil), m.AttachmentURLs...)
	out.EmbedURLs = append([]string(nil), m.EmbedURLs...)
	out.MultimodalContent = make([]model.ContentPart, len(m.MultimodalContent))
	for i, p := range m.MultimodalContent {
		out.MultimodalContent[i] = p
		if p.ImageURL != nil {
			urlCopy := *p.ImageURL
			out.MultimodalContent[i].ImageURL = &urlCopy
		}
	}
	return out
}

func rewriteMessageMedia(m *model.ConversationMessage, oldURL, newURL string) {
	for i, u := range m.AttachmentURLs {
		if u == oldURL {
			m.AttachmentURLs[i] = newURL
		}
	}
	for i, p := range m.MultimodalContent {
		if p.Type == "image_url" && p.ImageURL != nil && p.ImageURL.URL == oldURL {
			m.MultimodalContent[i] = model.ImagePart(newURL)
		}
	}
}

// removeMessageMedia drops an expired URL from the persisted record entirely.
func removeMessageMedia(m *model.ConversationMessage, oldURL string) {
	kept := m.AttachmentURLs[:0]
	for _, u := range m.AttachmentURLs {
		if u != oldURL {
			kept = append(kept, u)
		}
	}
	m.AttachmentURLs = kept

	parts := m.MultimodalContent[:0]
	for _, p := range m.MultimodalContent {
		if p.Type == "image_url" && p.ImageURL != nil && p.ImageURL.URL == oldURL {
			continue
		}
		parts = append(parts, p)
	}
	m.MultimodalContent = parts
}

// expireMessageMedia swaps an expired image part for a text placeholder in
// the formatting view handed to the LLM.
func expireMessageMedia(m *model.ConversationMessage, oldURL, filename string) {
	kept := m.AttachmentURLs[:0]
	for _, u := range m.AttachmentURLs {
		if u != oldURL {
			kept = append(kept, u)
		}
	}
	m.AttachmentURLs = kept

	for i, p := range m.MultimodalContent {
		if p.Type == "image_url" && p.ImageURL != nil && p.ImageURL.URL == oldURL {
			m.MultimodalContent[i] = model.TextPart("[Image " + filename + " expired]")
		}
	}
}
