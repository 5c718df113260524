// Package streaming implements the StreamingRelay (§4.9): it turns a stream
// of provider-agnostic JSON chunks into a sequence of Discord messages that
// grow in place via edits.
//
// Grounded on original_source/cogs/llm_commands.py's
// handle_streaming_embed_response/strip_thinking_tokens and
// original_source/utils/discord_utils.py's handle_streaming_text_response,
// adapted into the teacher's throttled-edit idiom
// (internal/channels/discord/discord.go's chunked-send loop).
package streaming

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/nextlevelbuilder/discordctx/internal/contextformatter"
	"github.com/nextlevelbuilder/discordctx/internal/discordio"
	"github.com/nextlevelbuilder/discordctx/internal/llm"
)

// UpdateInterval is the minimum spacing between in-place edits (§4.9 step 3).
const UpdateInterval = 1200 * time.Millisecond

// RateLimitBackoff is added to the throttle whenever Discord returns a 429
// (§4.9 step 4 / §5 "Discord rate limits back off the streaming throttle by
// 2s").
const RateLimitBackoff = 2 * time.Second

// MaxMessagesPerTrigger bounds how many plain-text messages one inline
// response may grow to (§4.9's "per-trigger message-count ceiling").
const MaxMessagesPerTrigger = 5

// ErrRateLimited matches discordio.ErrRateLimited: the concrete Client
// implementation wraps its own 429 responses so handleEditErr can detect
// them with errors.Is and back off (§4.9 step 4, §5).
var ErrRateLimited = discordio.ErrRateLimited

// Relay is the StreamingRelay (§4.9): one instance is reused across many
// independent streams (it carries no per-stream state).
type Relay struct {
	client   discordio.Client
	registry *llm.Registry
}

// NewRelay builds a Relay bound to a Discord client and LLM registry. Stream
// and StreamEmbed each take a Directory built fresh for the guild they're
// serving — a Relay instance is shared across every guild/channel for the
// life of the process, so it cannot cache one directory itself without
// going stale the moment a second guild streams concurrently.
func NewRelay(client discordio.Client, registry *llm.Registry) *Relay {
	return &Relay{client: client, registry: registry}
}

// throttle gates edit frequency to UpdateInterval and accepts an extra delay
// after a 429 (§4.9 step 4, §5). A fresh throttle is created per stream so
// concurrent streams (different channels) never contend on one limiter.
type throttle struct {
	limiter      *rate.Limiter
	backoffUntil time.Time
}

func newThrottle() *throttle {
	return &throttle{limiter: rate.NewLimiter(rate.Every(UpdateInterval), 1)}
}

func (t *throttle) allow(force bool) bool {
	if force {
		return true
	}
	if time.Now().Before(t.backoffUntil) {
		return false
	}
	return t.limiter.Allow()
}

func (t *throttle) backoff() {
	t.backoffUntil = time.Now().Add(RateLimitBackoff)
}

// streamState accumulates a single in-flight completion's text (§4.9
// "State:"). dir is captured once per stream so llm_to_discord sanitisation
// resolves mentions against the guild actually being served.
type streamState struct {
	answer    strings.Builder
	reasoning strings.Builder
	rawChunks []llm.StreamChunk
	summaries []string
	dir       contextformatter.Directory
}

func (s *streamState) apply(chunk llm.StreamChunk) {
	s.rawChunks = append(s.rawChunks, chunk)
	if chunk.Thinking != "" {
		s.reasoning.WriteString(chunk.Thinking)
	}
	if chunk.Content != "" {
		s.answer.WriteString(chunk.Content)
	}
}

func (s *streamState) tick() (cleaned, thinkingContent string, isThinkingOnly bool) {
	full := WrapThinking(s.reasoning.String(), s.answer.String())
	cleaned, thinkingContent, isThinkingOnly = StripThinking(full)
	if thinkingContent != "" {
		s.summaries = ExtractSummaries(thinkingContent)
	}
	return cleaned, thinkingContent, isThinkingOnly
}

// Stream implements internal/inline.Streamer: the non-embedded plain-text
// path (§4.9's closing paragraph). It edits a chain of plain Discord
// messages, applies llm_to_discord sanitisation (resolved against dir, the
// requesting guild's directory), splits with SplitMessage, enforces
// MaxMessagesPerTrigger, and truncates the last chunk at a sentence/phrase/
// word boundary. It returns the full sanitised response text so the caller
// can persist it into conversation history.
func (r *Relay) Stream(ctx context.Context, req llm.CompletionRequest, channelID, placeholderMessageID string, dir contextformatter.Directory) (string, error) {
	state := &streamState{dir: dir}
	th := newThrottle()
	messageIDs := []string{placeholderMessageID}

	onChunk := func(chunk llm.StreamChunk) {
		state.apply(chunk)
		if chunk.Done {
			return
		}
		if !th.allow(false) {
			return
		}
		r.renderPlain(ctx, channelID, state, &messageIDs, th, false)
	}

	resp, err := r.registry.CompleteStream(ctx, req, onChunk)
	if err != nil {
		_ = r.client.EditMessage(ctx, channelID, placeholderMessageID, "Sorry, something went wrong generating a response.")
		return "", err
	}
	if resp != nil && resp.Content != "" && state.answer.Len() == 0 {
		// Some providers only populate the accumulated response, not
		// incremental deltas; fall back to it for the final render.
		state.answer.WriteString(resp.Content)
	}

	final := r.renderPlain(ctx, channelID, state, &messageIDs, th, true)
	return final, nil
}

// renderPlain performs one throttled tick of the plain-text path: strip
// thinking tags, sanitise with llm_to_discord, split to fit Discord's 2000
// char limit, and reconcile the held message chain (edit existing, send new,
// delete surplus). Returns the sanitised full text.
func (r *Relay) renderPlain(ctx context.Context, channelID string, state *streamState, messageIDs *[]string, th *throttle, final bool) string {
	cleaned, _, isThinkingOnly := state.tick()
	if isThinkingOnly && !final {
		latest := LatestSummary(state.summaries)
		text := "**Thinking...**"
		if latest != "" {
			text = fmt.Sprintf("**Thinking...** (%s)", latest)
		}
		if err := r.client.EditMessage(ctx, channelID, (*messageIDs)[0], text); err != nil {
			r.handleEditErr(ctx, channelID, messageIDs, 0, text, err, th)
		}
		return ""
	}

	sanitised := contextformatter.LlmToDiscord(cleaned, state.dir)
	chunks := splitForTrigger(sanitised, MaxMessagesPerTrigger, final)

	for i, chunk := range chunks {
		if i < len(*messageIDs) {
			if err := r.client.EditMessage(ctx, channelID, (*messageIDs)[i], chunk); err != nil {
				r.handleEditErr(ctx, channelID, messageIDs, i, chunk, err, th)
			}
			continue
		}
		id, err := r.client.SendMessage(ctx, channelID, chunk)
		if err != nil {
			slog.Error("streaming: failed to send continuation message", "channel_id", channelID, "error", err)
			continue
		}
		*messageIDs = append(*messageIDs, id)
	}

	// Delete any surplus messages left over from a larger earlier draft
	// (the answer can shrink in apparent length once thinking tags close).
	for len(*messageIDs) > len(chunks) {
		last := len(*messageIDs) - 1
		if err := r.client.DeleteMessage(ctx, channelID, (*messageIDs)[last]); err != nil {
			slog.Warn("streaming: failed to delete surplus message", "channel_id", channelID, "error", err)
		}
		*messageIDs = (*messageIDs)[:last]
	}

	return sanitised
}

func (r *Relay) handleEditErr(ctx context.Context, channelID string, messageIDs *[]string, idx int, text string, err error, th *throttle) {
	if errors.Is(err, ErrRateLimited) {
		th.backoff()
		slog.Debug("streaming: rate limited on edit, backing off", "channel_id", channelID)
		return
	}
	// Discord 10008 "Unknown Message": the edit target was deleted mid-stream
	// (§7). Recreate it in place so the chain keeps growing correctly.
	slog.Warn("streaming: edit target missing, recreating", "channel_id", channelID, "error", err)
	id, sendErr := r.client.SendMessage(ctx, channelID, text)
	if sendErr != nil {
		slog.Error("streaming: failed to recreate missing message", "channel_id", channelID, "error", sendErr)
		return
	}
	(*messageIDs)[idx] = id
}

// splitForTrigger caps the chunk count at limit, truncating the final chunk
// at the last sentence/phrase/word boundary (§4.9) so the ceiling is never
// silently exceeded. When !final, chunks past the limit are simply dropped
// (no boundary truncation) until the final render.
func splitForTrigger(text string, limit int, final bool) []string {
	chunks := SplitMessage(text, MaxMessageLen)
	if len(chunks) <= limit {
		return chunks
	}
	if !final {
		return chunks[:limit]
	}
	kept := chunks[:limit]
	remainder := strings.Join(chunks[limit-1:], "")
	kept[limit-1] = TruncateToLastSentence(remainder, MaxMessageLen)
	return kept
}

// StreamEmbed is the embed-rendering path used by ask/think commands
// (§4.9's main loop, steps 2-5). internal/discordio's boundary only exposes
// plain-text send/edit (§6), so the "embed" here is rendered as a single
// formatted message; a host wiring a richer Discord client can swap in a
// real embed builder behind the same discordio.Client surface without
// changing this relay's control flow.
func (r *Relay) StreamEmbed(ctx context.Context, req llm.CompletionRequest, channelID, placeholderMessageID string, showThinking bool, dir contextformatter.Directory) (string, error) {
	state := &streamState{dir: dir}
	th := newThrottle()
	start := time.Now()

	onChunk := func(chunk llm.StreamChunk) {
		state.apply(chunk)
		if chunk.Done {
			return
		}
		if !th.allow(false) {
			return
		}
		r.renderEmbedTick(ctx, channelID, placeholderMessageID, state, showThinking, false)
	}

	resp, err := r.registry.CompleteStream(ctx, req, onChunk)
	if err != nil {
		_ = r.client.EditMessage(ctx, channelID, placeholderMessageID, "**Error**\n"+err.Error())
		return "", err
	}
	if resp != nil && resp.Content != "" && state.answer.Len() == 0 {
		state.answer.WriteString(resp.Content)
	}

	final := r.renderEmbedTick(ctx, channelID, placeholderMessageID, state, showThinking, true)
	elapsed := time.Since(start)
	slog.Info("streaming: embed stream completed", "channel_id", channelID, "elapsed_ms", elapsed.Milliseconds())
	return final, nil
}

func (r *Relay) renderEmbedTick(ctx context.Context, channelID, messageID string, state *streamState, showThinking, final bool) string {
	cleaned, thinkingContent, isThinkingOnly := state.tick()
	if isThinkingOnly && !final {
		latest := LatestSummary(state.summaries)
		text := "**Thinking...**"
		if latest != "" {
			text = fmt.Sprintf("**Thinking...** (%s)", latest)
		}
		_ = r.client.EditMessage(ctx, channelID, messageID, text)
		return ""
	}

	sanitised := contextformatter.LlmToDiscord(cleaned, state.dir)
	var b strings.Builder
	if showThinking && thinkingContent != "" {
		b.WriteString("> ")
		b.WriteString(strings.ReplaceAll(strings.TrimSpace(thinkingContent), "\n", "\n> "))
		b.WriteString("\n\n")
	}
	b.WriteString(sanitised)

	body := b.String()
	if len(body) > MaxMessageLen {
		body = TruncateToLastSentence(body, MaxMessageLen)
	}
	if err := r.client.EditMessage(ctx, channelID, messageID, body); err != nil {
		slog.Warn("streaming: embed edit failed", "channel_id", channelID, "error", err)
	}
	return sanitised
}
