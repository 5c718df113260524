// Package model defines the persistent data types shared across the
// conversation, indexing, media, and formatting subsystems.
package model

// ContentPart is the tagged sum type backing ConversationMessage.MultimodalContent
// (see design note: multimodal content as a sum type, serialised only at the
// wire boundary as {type, text|image_url}).
type ContentPart struct {
	Type     string        `json:"type"` // "text" or "image_url"
	Text     string        `json:"text,omitempty"`
	ImageURL *ImageURLPart `json:"image_url,omitempty"`
}

// ImageURLPart is the wire form of an image content part.
type ImageURLPart struct {
	URL string `json:"url"`
}

// TextPart constructs a text content part.
func TextPart(text string) ContentPart {
	return ContentPart{Type: "text", Text: text}
}

// ImagePart constructs an image_url content part.
func ImagePart(url string) ContentPart {
	return ContentPart{Type: "image_url", ImageURL: &ImageURLPart{URL: url}}
}

// ConversationMessage is an append-only record in a per-channel history (§3).
type ConversationMessage struct {
	UserID              string        `json:"user_id"`
	Username            string        `json:"username"`
	Content             string        `json:"content"`
	Timestamp           int64         `json:"timestamp"` // seconds since epoch
	MessageID           string        `json:"message_id"`
	IsBotResponse       bool          `json:"is_bot_response"`
	IsSelfBotResponse   bool          `json:"is_self_bot_response"`
	ReferencedMessageID string        `json:"referenced_message_id,omitempty"`
	AttachmentURLs      []string      `json:"attachment_urls,omitempty"`
	EmbedURLs           []string      `json:"embed_urls,omitempty"`
	MultimodalContent   []ContentPart `json:"multimodal_content,omitempty"`
}

// PinnedMessage is the subset of ConversationMessage retained for pins (§3):
// no reply field, no bot-echo distinction.
type PinnedMessage struct {
	UserID         string   `json:"user_id"`
	Username       string   `json:"username"`
	Content        string   `json:"content"`
	Timestamp      int64    `json:"timestamp"`
	MessageID      string   `json:"message_id"`
	AttachmentURLs []string `json:"attachment_urls,omitempty"`
	EmbedURLs      []string `json:"embed_urls,omitempty"`
}

// ConversationFile is the on-disk shape of a per-channel history file.
type ConversationFile struct {
	Messages    []ConversationMessage `json:"messages"`
	LastUpdated int64                 `json:"last_updated"`
}

// PinFile is the on-disk shape of a per-channel pin file.
type PinFile struct {
	Messages []PinnedMessage `json:"messages"`
}
