package contextformatter

import (
	"fmt"
	"sort"
	"strings"

	"github.com/nextlevelbuilder/discordctx/internal/model"
)

// ChannelInfo is the static channel metadata placed at the top of the
// formatted context bundle.
type ChannelInfo struct {
	ChannelName      string
	Topic            string
	CategoryName     string
	IsNSFW           bool
	GuildName        string
	GuildDescription string
}

// ReferencedMessageInfo supplies the author/snippet for a reply target that
// has fallen out of the current context window (§4.5 reply annotation rule).
type ReferencedMessageInfo struct {
	Author  string
	Content string
}

// FormattedMessage is one entry in the history[] list handed to the LLM.
type FormattedMessage struct {
	Role  string // "user" or "assistant"
	Text  string // set when the message has only text content
	Parts []model.ContentPart
}

// GetPrioritisedContext implements §4.5's get_prioritised_context.
func GetPrioritisedContext(history []model.ConversationMessage, requestingUserID string, maxContextMessages, maxUserContextMessages int) []model.ConversationMessage {
	sorted := append([]model.ConversationMessage(nil), history...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp < sorted[j].Timestamp })

	tail := lastN(sorted, maxContextMessages)

	var userMsgs, otherMsgs []model.ConversationMessage
	for _, m := range tail {
		if m.UserID == requestingUserID {
			userMsgs = append(userMsgs, m)
		} else {
			otherMsgs = append(otherMsgs, m)
		}
	}

	keptUser := lastN(userMsgs, maxUserContextMessages)
	remaining := maxContextMessages - len(keptUser)
	if remaining < 0 {
		remaining = 0
	}
	keptOther := lastN(otherMsgs, remaining)

	combined := append(append([]model.ConversationMessage{}, keptUser...), keptOther...)
	sort.SliceStable(combined, func(i, j int) bool { return combined[i].Timestamp < combined[j].Timestamp })
	return lastN(combined, maxContextMessages)
}

func lastN(msgs []model.ConversationMessage, n int) []model.ConversationMessage {
	if n < 0 {
		n = 0
	}
	if len(msgs) <= n {
		return append([]model.ConversationMessage(nil), msgs...)
	}
	return append([]model.ConversationMessage(nil), msgs[len(msgs)-n:]...)
}

func channelInfoBlock(ch ChannelInfo) string {
	var b strings.Builder
	b.WriteString("Channel: " + ch.ChannelName)
	if ch.Topic != "" {
		b.WriteString(" | Topic: " + ch.Topic)
	}
	if ch.CategoryName != "" {
		b.WriteString(" | Category: " + ch.CategoryName)
	}
	if ch.IsNSFW {
		b.WriteString(" | NSFW")
	}
	if ch.GuildName != "" {
		b.WriteString(" | Server: " + ch.GuildName)
	}
	if ch.GuildDescription != "" {
		b.WriteString(" | About: " + ch.GuildDescription)
	}
	return b.String()
}

func knownUsersBlock(messages []model.ConversationMessage, selfBotID, selfBotDisplayName string) string {
	seen := make(map[string]struct{})
	var lines []string
	for _, m := range messages {
		if _, ok := seen[m.UserID]; ok {
			continue
		}
		seen[m.UserID] = struct{}{}
		label := m.Username
		if m.IsSelfBotResponse {
			label = selfBotDisplayName
		}
		lines = append(lines, fmt.Sprintf("[id:%s] %s", m.UserID, label))
	}
	if _, ok := seen[selfBotID]; !ok && selfBotID != "" {
		lines = append(lines, fmt.Sprintf("[id:%s] %s", selfBotID, selfBotDisplayName))
	}
	if len(lines) == 0 {
		return ""
	}
	return "Known users:\n" + strings.Join(lines, "\n")
}

func pinnedMessagesBlock(pins []model.PinnedMessage) string {
	if len(pins) == 0 {
		return ""
	}
	lines := make([]string, 0, len(pins))
	for _, p := range pins {
		lines = append(lines, fmt.Sprintf("[id:%s] %s: %s", p.UserID, p.Username, p.Content))
	}
	return "Pinned messages:\n" + strings.Join(lines, "\n")
}

// FormatContextForLLM implements §4.5's format_context_for_llm.
func FormatContextForLLM(messages []model.ConversationMessage, ch ChannelInfo, pins []model.PinnedMessage, selfBotID, selfBotDisplayName string, dir Directory, referenced map[string]ReferencedMessageInfo) (string, []FormattedMessage) {
	blocks := []string{channelInfoBlock(ch)}
	if b := knownUsersBlock(messages, selfBotID, selfBotDisplayName); b != "" {
		blocks = append(blocks, b)
	}
	if b := pinnedMessagesBlock(pins); b != "" {
		blocks = append(blocks, b)
	}
	static := strings.Join(blocks, "\n\n")

	byID := make(map[string]int, len(messages))
	for i, m := range messages {
		byID[m.MessageID] = i + 1
	}

	history := make([]FormattedMessage, 0, len(messages))
	for i, m := range messages {
		localIndex := i + 1
		label := m.Username
		if m.IsSelfBotResponse {
			label = selfBotDisplayName
		}

		replyPrefix := ""
		if m.ReferencedMessageID != "" {
			if refIdx, ok := byID[m.ReferencedMessageID]; ok {
				replyPrefix = fmt.Sprintf("[Replying to #%d] ", refIdx)
			} else if ref, ok := referenced[m.ReferencedMessageID]; ok {
				replyPrefix = fmt.Sprintf("[Replying to @%s: %q] ", ref.Author, SmartSnippet(ref.Content))
			}
		}

		prefix := fmt.Sprintf("[%d] [id:%s] %s: %s", localIndex, m.UserID, label, replyPrefix)
		readable := DiscordToLLMReadable(m.Content, dir)

		role := "user"
		if m.IsSelfBotResponse {
			role = "assistant"
		}

		if len(m.MultimodalContent) == 0 {
			history = append(history, FormattedMessage{Role: role, Text: prefix + readable})
			continue
		}

		parts := make([]model.ContentPart, 0, len(m.MultimodalContent))
		textWritten := false
		for _, p := range m.MultimodalContent {
			if p.Type == "text" {
				parts = append(parts, model.TextPart(prefix+DiscordToLLMReadable(p.Text, dir)))
				textWritten = true
			} else {
				parts = append(parts, p)
			}
		}
		if !textWritten {
			parts = append([]model.ContentPart{model.TextPart(strings.TrimSpace(prefix))}, parts...)
		}
		history = append(history, FormattedMessage{Role: role, Parts: parts})
	}

	return static, history
}
