// Package chatbot implements the persistent per-channel chatbot mode: the
// dispatch half of the data flow in which a recorded chatbot-channel message
// that mentions the bot (or replies to it) enters a per-channel FIFO queue,
// and a worker builds context from the persisted conversation history,
// user/channel/pin indexes, and media cache before handing it to the LLM.
//
// The inline response engine (internal/inline) serves non-chatbot channels
// from an ephemeral, freshly fetched window; this dispatcher serves chatbot
// channels from the indexed, persisted history the conversation store has
// been accumulating, which is the whole point of enabling chatbot mode.
package chatbot

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

// QueueSize bounds the per-channel inbox, same sizing rationale as the
// inline engine's: triggers require an explicit mention or reply.
const QueueSize = 32

// IdleTimeout evicts a channel worker after a quiet minute; the next trigger
// lazily spawns a fresh one.
const IdleTimeout = 60 * time.Second

// Streamer is implemented by internal/streaming.Relay. Declared at the
// consumer, like internal/inline.Streamer, so the relay never needs to know
// this package exists.
type Streamer interface {
	Stream(ctx context.Context, req llm.CompletionRequest, channelID, placeholderMessageID string, dir contextformatter.Directory) (finalText string, err error)
}

// Dispatcher routes chatbot-channel triggers through per-channel serialised
// workers. One instance serves every guild.
type Dispatcher struct {
	client    discordio.Client
	convStore *conversation.Store
	idx       *indexing.Manager
	configs   *config.Store
	models    *llm.Registry
	streamer  Streamer
	media     conversation.MediaValidator
	model     string

	mu      sync.Mutex
	queues  map[string]chan discordio.Message
	running map[string]bool
}

// New creates a Dispatcher. streamer and media may be nil; without a
// streamer every response is a single non-streaming completion, and without
// a media validator attachment URLs are passed through as stored.
func New(client discordio.Client, convStore *conversation.Store, idx *indexing.Manager, configs *config.Store, models *llm.Registry, streamer Streamer, media conversation.MediaValidator, defaultModel string) *Dispatcher {
	return &Dispatcher{
		client:    client,
		convStore: convStore,
		idx:       idx,
		configs:   configs,
		models:    models,
		streamer:  streamer,
		media:     media,
		model:     defaultModel,
		queues:    make(map[string]chan discordio.Message),
		running:   make(map[string]bool),
	}
}

// HandleMessage decides whether an already-recorded chatbot-channel message
// should trigger a response, and enqueues it if so. The caller has already
// confirmed the channel has chatbot mode enabled and persisted the message.
func (d *Dispatcher) HandleMessage(ctx context.Context, msg discordio.Message, cfg model.ChannelChatbotConfig) {
	if msg.AuthorID == "" || msg.AuthorID == d.client.BotUserID() || msg.AuthorIsBot {
		return
	}
	if !d.shouldTrigger(ctx, msg, cfg) {
		return
	}
	d.enqueue(ctx, msg)
}

func (d *Dispatcher) shouldTrigger(ctx context.Context, msg discordio.Message, cfg model.ChannelChatbotConfig) bool {
	if cfg.AutoRespondToMentions && mentionsBot(msg.MentionedUserIDs, d.client.BotUserID()) {
		return true
	}
	if cfg.AutoRespondToReplies && msg.ReferencedMessageID != "" {
		return d.isReplyToSelf(ctx, msg, cfg)
	}
	return false
}

func mentionsBot(mentionedIDs []string, botID string) bool {
	for _, id := range mentionedIDs {
		if id == botID {
			return true
		}
	}
	return false
}

// isReplyToSelf resolves the reply target against persisted history first
// (no API call when the target is a tracked bot response), falling back to
// a message fetch when it predates the window.
func (d *Dispatcher) isReplyToSelf(ctx context.Context, msg discordio.Message, cfg model.ChannelChatbotConfig) bool {
	for _, m := range d.convStore.LoadHistory(msg.GuildID, msg.ChannelID, cfg.ContextWindowHours) {
		if m.MessageID == msg.ReferencedMessageID {
			return m.IsSelfBotResponse
		}
	}
	ref, ok, err := d.client.FetchMessage(ctx, msg.ChannelID, msg.ReferencedMessageID)
	if err != nil || !ok {
		return false
	}
	return ref.AuthorID == d.client.BotUserID()
}

func (d *Dispatcher) enqueue(ctx context.Context, msg discordio.Message) {
	d.mu.Lock()
	q, ok := d.queues[msg.ChannelID]
	if !ok {
		q = make(chan discordio.Message, QueueSize)
		d.queues[msg.ChannelID] = q
	}
	needsWorker := !d.running[msg.ChannelID]
	if needsWorker {
		d.running[msg.ChannelID] = true
	}
	d.mu.Unlock()

	select {
	case q <- msg:
	default:
		slog.Warn("chatbot: channel queue full, dropping trigger", "channel_id", msg.ChannelID, "message_id", msg.MessageID)
		return
	}

	if needsWorker {
		go d.runWorker(ctx, msg.ChannelID, q)
	}
}

func (d *Dispatcher) runWorker(ctx context.Context, channelID string, q chan discordio.Message) {
	slog.Debug("chatbot: worker started", "channel_id", channelID)
	defer func() {
		d.mu.Lock()
		d.running[channelID] = false
		d.mu.Unlock()
		slog.Debug("chatbot: worker exiting on idle timeout", "channel_id", channelID)
	}()

	for {
		select {
		case msg := <-q:
			d.process(ctx, msg)
		case <-time.After(IdleTimeout):
			return
		case <-ctx.Done():
			return
		}
	}
}

func (d *Dispatcher) process(ctx context.Context, trigger discordio.Message) {
	ctx, span := telemetry.StartSpan(ctx, "chatbot.process",
		attribute.String("channel_id", trigger.ChannelID),
		attribute.String("message_id", trigger.MessageID),
	)
	defer span.End()

	guildID, channelID := trigger.GuildID, trigger.ChannelID
	cfg := d.configs.ChatbotConfig(guildID, channelID)
	if !cfg.Enabled {
		return
	}

	if cfg.ResponseDelaySeconds > 0 {
		select {
		case <-time.After(time.Duration(cfg.ResponseDelaySeconds) * time.Second):
		case <-ctx.Done():
			return
		}
	}

	_ = d.client.SendTyping(ctx, channelID)
	placeholderID, err := d.client.SendMessage(ctx, channelID, "Thinking of a response...")
	if err != nil {
		telemetry.RecordError(span, err)
		slog.Error("chatbot: failed to send placeholder", "channel_id", channelID, "error", err)
		return
	}

	history := d.loadWindow(guildID, channelID, cfg)
	history = d.convStore.RefreshMediaURLs(ctx, guildID, channelID, history, d.media)

	prioritised := contextformatter.GetPrioritisedContext(history, trigger.AuthorID, cfg.MaxContextMessages, cfg.MaxUserContextMessages)
	referenced := d.resolveReplyTargets(ctx, channelID, history, prioritised)

	chInfo := d.channelInfo(ctx, guildID, channelID)
	pins := d.idx.LoadPins(guildID, channelID)
	dir := d.directory(guildID)

	static, formatted := contextformatter.FormatContextForLLM(
		prioritised, chInfo, pins,
		d.client.BotUserID(), d.client.BotDisplayName(),
		dir, referenced,
	)

	req := llm.CompletionRequest{
		Model:          d.model,
		Messages:       toLLMMessages(static, formatted),
		SafetySettings: cfg.SafetySettings,
	}

	var responseText string
	if d.streamer != nil {
		responseText, err = d.streamer.Stream(ctx, req, channelID, placeholderID, dir)
	} else {
		var resp *llm.CompletionResponse
		resp, err = d.models.Complete(ctx, req)
		if err == nil {
			responseText = contextformatter.LlmToDiscord(resp.Content, dir)
			if len([]rune(responseText)) > cfg.MaxResponseLength {
				responseText = streaming.TruncateToLastSentence(responseText, cfg.MaxResponseLength)
			}
			err = d.sendChunked(ctx, channelID, placeholderID, responseText)
		}
	}
	if err != nil {
		telemetry.RecordError(span, err)
		slog.Error("chatbot: LLM dispatch failed", "channel_id", channelID, "error", err)
		_ = d.client.EditMessage(ctx, channelID, placeholderID, "Sorry, something went wrong generating a response.")
		return
	}

	persisted := responseText
	if len([]rune(persisted)) > cfg.MaxResponseLength {
		persisted = streaming.TruncateToLastSentence(persisted, cfg.MaxResponseLength)
	}
	d.convStore.Add(guildID, channelID, conversation.DiscordMessageLike{
		MessageID:         placeholderID,
		UserID:            d.client.BotUserID(),
		Username:          d.client.BotDisplayName(),
		Content:           persisted,
		Timestamp:         time.Now().Unix(),
		IsBotResponse:     true,
		IsSelfBotResponse: true,
	}, cfg.MaxContextMessages, cfg.ContextWindowHours)
}

// loadWindow reads the persisted, validity-filtered history and applies the
// last_cleared_timestamp checkpoint: a /clear leaves the file intact but
// fences everything at or before the checkpoint out of future context.
func (d *Dispatcher) loadWindow(guildID, channelID string, cfg model.ChannelChatbotConfig) []model.ConversationMessage {
	history := d.convStore.LoadHistory(guildID, channelID, cfg.ContextWindowHours)
	if cfg.LastClearedTimestamp == 0 {
		return history
	}
	kept := history[:0]
	for _, m := range history {
		if m.Timestamp > cfg.LastClearedTimestamp {
			kept = append(kept, m)
		}
	}
	return kept
}

// resolveReplyTargets builds the out-of-window reply annotations (§4.5):
// for each prioritised message replying to something not in the prioritised
// set, find the target's author and content — in the wider loaded window
// first, then by message fetch — so the formatter can render the
// quoted-snippet form instead of a dangling reference.
func (d *Dispatcher) resolveReplyTargets(ctx context.Context, channelID string, window, prioritised []model.ConversationMessage) map[string]contextformatter.ReferencedMessageInfo {
	inContext := make(map[string]struct{}, len(prioritised))
	for _, m := range prioritised {
		inContext[m.MessageID] = struct{}{}
	}
	byID := make(map[string]model.ConversationMessage, len(window))
	for _, m := range window {
		byID[m.MessageID] = m
	}

	referenced := make(map[string]contextformatter.ReferencedMessageInfo)
	for _, m := range prioritised {
		refID := m.ReferencedMessageID
		if refID == "" {
			continue
		}
		if _, ok := inContext[refID]; ok {
			continue
		}
		if _, ok := referenced[refID]; ok {
			continue
		}
		if target, ok := byID[refID]; ok {
			referenced[refID] = contextformatter.ReferencedMessageInfo{Author: target.Username, Content: target.Content}
			continue
		}
		target, ok, err := d.client.FetchMessage(ctx, channelID, refID)
		if err != nil || !ok {
			// Deleted mid-workflow: treated as not found, the annotation is
			// simply omitted and the workflow continues (§7).
			continue
		}
		referenced[refID] = contextformatter.ReferencedMessageInfo{Author: target.AuthorDisplayName, Content: target.Content}
	}
	return referenced
}

// channelInfo reads the channel index, lazily fetching and indexing the
// channel on a miss so the first trigger after enable still gets a header.
// Pins are not lazily fetched here: the pin index is refreshed wholesale on
// enable and by the periodic maintenance sweep (§4.2), and is read as-is.
func (d *Dispatcher) channelInfo(ctx context.Context, guildID, channelID string) contextformatter.ChannelInfo {
	entry, ok := d.idx.LoadChannelIndex(guildID, channelID)
	if !ok {
		ch, err := d.client.FetchChannel(ctx, channelID)
		if err != nil {
			slog.Warn("chatbot: failed to fetch channel metadata", "channel_id", channelID, "error", err)
			return contextformatter.ChannelInfo{}
		}
		d.idx.UpdateChannel(model.DiscordChannelLike{
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
		entry, ok = d.idx.LoadChannelIndex(guildID, channelID)
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

func (d *Dispatcher) directory(guildID string) contextformatter.Directory {
	users := d.idx.LoadUserIndex(guildID)
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

// sendChunked edits the placeholder with the first chunk and posts the rest
// as follow-up messages when the response exceeds Discord's length ceiling.
func (d *Dispatcher) sendChunked(ctx context.Context, channelID, placeholderID, text string) error {
	chunks := streaming.SplitMessage(text, streaming.MaxMessageLen)
	if len(chunks) == 0 {
		chunks = []string{"..."}
	}
	if err := d.client.EditMessage(ctx, channelID, placeholderID, chunks[0]); err != nil {
		return err
	}
	for _, chunk := range chunks[1:] {
		if _, err := d.client.SendMessage(ctx, channelID, chunk); err != nil {
			return err
		}
	}
	return nil
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
