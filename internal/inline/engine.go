package inline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/nextlevelbuilder/discordctx/internal/config"
	"github.com/nextlevelbuilder/discordctx/internal/contextformatter"
	"github.com/nextlevelbuilder/discordctx/internal/conversation"
	"github.com/nextlevelbuilder/discordctx/internal/discordio"
	"github.com/nextlevelbuilder/discordctx/internal/indexing"
	"github.com/nextlevelbuilder/discordctx/internal/llm"
	"github.com/nextlevelbuilder/discordctx/internal/model"
	"github.com/nextlevelbuilder/discordctx/internal/streaming"
	"github.com/nextlevelbuilder/discordctx/internal/telemetry"
)

// pinWindowHours bypasses ConversationStore's normal history window when
// converting pinned messages: a pin can predate the conversation window by
// months and must still be retained (§4.2's pin index is authoritative, not
// windowed).
const pinWindowHours = 24 * 365 * 50

// QueueSize bounds the per-channel inbox; inline triggers are rare enough
// (they require an explicit mention) that a small buffer is sufficient.
const QueueSize = 32

// IdleTimeout is how long a per-channel worker waits for the next message
// before exiting (§4.8); a fresh worker is lazily spawned on the next trigger.
const IdleTimeout = 60 * time.Second

// Streamer is implemented by internal/streaming.Relay (§4.9). Engine calls it
// when a channel's effective config has UseStreaming enabled.
type Streamer interface {
	Stream(ctx context.Context, req llm.CompletionRequest, channelID, placeholderMessageID string, dir contextformatter.Directory) (finalText string, err error)
}

// Engine is the InlineResponseEngine (§4.8): a per-channel FIFO queue with a
// lazily spawned, idle-evicted worker, mention-gated admission, ephemeral
// context building, and LLM dispatch.
type Engine struct {
	client    discordio.Client
	convStore *conversation.Store
	idx       *indexing.Manager
	configs   *config.Store
	models    *llm.Registry
	streamer  Streamer

	mu      sync.Mutex
	queues  map[string]chan discordio.Message
	running map[string]bool
}

// New creates an Engine. streamer may be nil; engines without a configured
// streamer always use non-streaming completions.
func New(client discordio.Client, convStore *conversation.Store, idx *indexing.Manager, configs *config.Store, models *llm.Registry, streamer Streamer) *Engine {
	return &Engine{
		client:    client,
		convStore: convStore,
		idx:       idx,
		configs:   configs,
		models:    models,
		streamer:  streamer,
		queues:    make(map[string]chan discordio.Message),
		running:   make(map[string]bool),
	}
}

// HandleMessage is the on_message gateway admission pre-filter (§4.8):
// self/chatbot-mode/mention/enabled/permission checks, then enqueue.
func (e *Engine) HandleMessage(ctx context.Context, guildID string, chatbotModeEnabled bool, everyoneRoleID string, authorRoleIDs []string, msg discordio.Message) {
	if msg.AuthorID == "" || msg.AuthorID == e.client.BotUserID() || msg.AuthorIsBot {
		return
	}
	if chatbotModeEnabled {
		return
	}

	cfg := e.configs.InlineConfig(guildID, msg.ChannelID)
	if !cfg.Enabled {
		return
	}
	if !IsMentionTriggered(msg.Content, e.client.BotUserID(), msg.MentionedUserIDs, cfg.TriggerOnStartOnly) {
		return
	}
	if !IsAdmitted(cfg, everyoneRoleID, msg.AuthorID, authorRoleIDs) {
		return
	}

	e.enqueue(ctx, guildID, msg)
}

func (e *Engine) enqueue(ctx context.Context, guildID string, msg discordio.Message) {
	e.mu.Lock()
	q, ok := e.queues[msg.ChannelID]
	if !ok {
		q = make(chan discordio.Message, QueueSize)
		e.queues[msg.ChannelID] = q
	}
	needsWorker := !e.running[msg.ChannelID]
	if needsWorker {
		e.running[msg.ChannelID] = true
	}
	e.mu.Unlock()

	select {
	case q <- msg:
	default:
		slog.Warn("inline: channel queue full, dropping message", "channel_id", msg.ChannelID, "message_id", msg.MessageID)
		return
	}

	if needsWorker {
		go e.runWorker(ctx, guildID, msg.ChannelID, q)
	}
}

func (e *Engine) runWorker(ctx context.Context, guildID, channelID string, q chan discordio.Message) {
	slog.Debug("inline: worker started", "channel_id", channelID)
	defer func() {
		e.mu.Lock()
		e.running[channelID] = false
		e.mu.Unlock()
		slog.Debug("inline: worker exiting on idle timeout", "channel_id", channelID)
	}()

	for {
		select {
		case msg := <-q:
			e.process(ctx, guildID, channelID, msg)
		case <-time.After(IdleTimeout):
			return
		case <-ctx.Done():
			return
		}
	}
}

func (e *Engine) process(ctx context.Context, guildID, channelID string, trigger discordio.Message) {
	ctx, span := telemetry.StartSpan(ctx, "inline.process",
		attribute.String("channel_id", channelID),
		attribute.String("message_id", trigger.MessageID),
	)
	defer span.End()

	cfg := e.configs.InlineConfig(guildID, channelID)

	placeholderID, err := e.client.SendMessage(ctx, channelID, "Thinking of a response...")
	if err != nil {
		telemetry.RecordError(span, err)
		slog.Error("inline: failed to send placeholder", "channel_id", channelID, "error", err)
		return
	}
	_ = e.client.SendTyping(ctx, channelID)

	history, users, err := BuildContext(ctx, e.client, guildID, channelID, trigger, 24)
	if err != nil {
		telemetry.RecordError(span, err)
		slog.Error("inline: failed to build context", "message_id", trigger.MessageID, "error", err)
		_ = e.client.EditMessage(ctx, channelID, placeholderID, "Sorry, I had trouble gathering context to respond.")
		return
	}
	if len(history) == 0 {
		slog.Error("inline: empty context, cannot respond", "message_id", trigger.MessageID)
		_ = e.client.EditMessage(ctx, channelID, placeholderID, "Sorry, I couldn't find anything to respond to.")
		return
	}

	if len(users) > 0 {
		e.idx.BulkUpdateUsers(guildID, users, true)
	}

	chInfo := e.channelInfo(ctx, guildID, channelID)
	pins := e.pinnedMessages(ctx, guildID, channelID)
	dir := e.directory(guildID)

	prioritised := contextformatter.GetPrioritisedContext(history, trigger.AuthorID, cfg.ContextMessages, cfg.UserContextMessages)
	static, formatted := contextformatter.FormatContextForLLM(prioritised, chInfo, pins, e.client.BotUserID(), e.client.BotDisplayName(), dir, nil)

	req := llm.CompletionRequest{
		Model:    modelForType(cfg.ModelType),
		Messages: toLLMMessages(static, formatted),
	}

	var responseText string
	if cfg.UseStreaming && e.streamer != nil {
		responseText, err = e.streamer.Stream(ctx, req, channelID, placeholderID, dir)
	} else {
		var resp *llm.CompletionResponse
		resp, err = e.models.Complete(ctx, req)
		if err == nil {
			responseText = contextformatter.LlmToDiscord(resp.Content, dir)
			err = e.sendChunked(ctx, channelID, placeholderID, responseText)
		}
	}
	if err != nil {
		telemetry.RecordError(span, err)
		slog.Error("inline: LLM dispatch failed", "channel_id", channelID, "error", err)
		_ = e.client.EditMessage(ctx, channelID, placeholderID, "Sorry, something went wrong generating a response.")
		return
	}

	e.convStore.Add(guildID, channelID, conversation.DiscordMessageLike{
		MessageID:         placeholderID,
		UserID:            e.client.BotUserID(),
		Username:          e.client.BotDisplayName(),
		Content:           responseText,
		Timestamp:         time.Now().Unix(),
		IsBotResponse:     true,
		IsSelfBotResponse: true,
	}, cfg.ContextMessages, 24)
}

// sendChunked is the non-streaming delivery path (§4.8 step 7): edit the
// placeholder with the first chunk and post the rest as follow-up messages
// when the sanitised response exceeds Discord's length ceiling.
func (e *Engine) sendChunked(ctx context.Context, channelID, placeholderID, text string) error {
	chunks := streaming.SplitMessage(text, streaming.MaxMessageLen)
	if len(chunks) == 0 {
		chunks = []string{"..."}
	}
	if err := e.client.EditMessage(ctx, channelID, placeholderID, chunks[0]); err != nil {
		return err
	}
	for _, chunk := range chunks[1:] {
		if _, err := e.client.SendMessage(ctx, channelID, chunk); err != nil {
			return err
		}
	}
	return nil
}

// channelInfo returns the indexed channel metadata for the §4.5 static block,
// lazily fetching and indexing it on a miss so the first trigger in a channel
// still gets a populated header instead of a blank one.
func (e *Engine) channelInfo(ctx context.Context, guildID, channelID string) contextformatter.ChannelInfo {
	entry, ok := e.idx.LoadChannelIndex(guildID, channelID)
	if !ok {
		ch, err := e.client.FetchChannel(ctx, channelID)
		if err != nil {
			slog.Warn("inline: failed to fetch channel metadata", "channel_id", channelID, "error", err)
			return contextformatter.ChannelInfo{}
		}
		e.idx.UpdateChannel(model.DiscordChannelLike{
			ChannelID:        ch.ChannelID,
			GuildID:          guildID,
			ChannelName:      ch.Name,
			ChannelType:      ch.Type,
			Topic:            ch.Topic,
			CategoryName:     ch.CategoryName,
			IsNSFW:           ch.IsNSFW,
			GuildName:        ch.GuildName,
			GuildDescription: ch.GuildDescription,
		})
		entry, ok = e.idx.LoadChannelIndex(guildID, channelID)
		if !ok {
			return contextformatter.ChannelInfo{}
		}
	}
	return contextformatter.ChannelInfo{
		ChannelName:      entry.ChannelName,
		Topic:            entry.Topic,
		CategoryName:     entry.CategoryName,
		IsNSFW:           entry.IsNSFW,
		GuildName:        entry.GuildName,
		GuildDescription: entry.GuildDescription,
	}
}

// pinnedMessages returns the indexed pins for channelID, lazily fetching and
// indexing them on the first trigger so §4.5's pinned-messages block isn't
// permanently empty until the periodic maintenance sweep runs.
func (e *Engine) pinnedMessages(ctx context.Context, guildID, channelID string) []model.PinnedMessage {
	if pins := e.idx.LoadPins(guildID, channelID); len(pins) > 0 {
		return pins
	}

	raw, err := e.client.FetchPins(ctx, channelID)
	if err != nil {
		slog.Warn("inline: failed to fetch pins", "channel_id", channelID, "error", err)
		return nil
	}
	if len(raw) == 0 {
		return nil
	}

	var candidates []model.ConversationMessage
	var authors []model.DiscordUserLike
	for _, m := range raw {
		dm := conversation.DiscordMessageLike{
			MessageID:   m.MessageID,
			UserID:      m.AuthorID,
			Username:    m.AuthorDisplayName,
			Content:     m.Content,
			Timestamp:   m.Timestamp,
			Attachments: toAttachmentLikes(m.Attachments),
			Embeds:      toEmbedLikes(m.Embeds),
		}
		if msg, ok := conversation.ToConversationMessage(guildID, dm, pinWindowHours); ok {
			candidates = append(candidates, msg)
		}
		if !m.AuthorIsBot && m.AuthorID != "" {
			authors = append(authors, model.DiscordUserLike{
				UserID:      m.AuthorID,
				Username:    m.AuthorUsername,
				DisplayName: m.AuthorDisplayName,
			})
		}
	}

	e.idx.IndexPinnedMessages(guildID, channelID, candidates, conversation.IsValidContextMessage, authors)
	return e.idx.LoadPins(guildID, channelID)
}

// directory builds a Directory from the guild's user index so mention
// rewriting (§4.5 discord_to_llm_readable/llm_to_discord) resolves real
// usernames and display names instead of leaving every mention unresolved.
func (e *Engine) directory(guildID string) contextformatter.Directory {
	users := e.idx.LoadUserIndex(guildID)
	dir := contextformatter.Directory{
		UsernameByID:    make(map[string]string, len(users)),
		DisplayNameByID: make(map[string]string, len(users)),
	}
	for id, u := range users {
		dir.UsernameByID[id] = u.Username
		dir.DisplayNameByID[id] = u.DisplayName
	}
	return dir
}

// modelForType maps the documented chat-mode names onto a default model-id;
// deployments override this via per-guild config in a fuller build, but the
// engine needs a concrete fallback for each configured mode.
func modelForType(modelType string) string {
	switch modelType {
	case "think":
		return "anthropic/claude-sonnet-4-5"
	case "chat":
		return "openai/gpt-4o-mini"
	default: // "ask"
		return "openai/gpt-4o"
	}
}

func toLLMMessages(static string, formatted []contextformatter.FormattedMessage) []llm.Message {
	msgs := make([]llm.Message, 0, len(formatted)+1)
	if static != "" {
		msgs = append(msgs, llm.Message{Role: "system", Content: static})
	}
	for _, f := range formatted {
		msgs = append(msgs, llm.Message{Role: f.Role, Content: f.Text, Parts: f.Parts})
	}
	return msgs
}
