package streaming

import (
	"context"
	"strings"
	"testing"

	"github.com/nextlevelbuilder/discordctx/internal/contextformatter"
	"github.com/nextlevelbuilder/discordctx/internal/discordio"
	"github.com/nextlevelbuilder/discordctx/internal/llm"
)

type fakeRelayClient struct {
	edits []string
	sends []string
	dels  int
	nextID int
}

func (f *fakeRelayClient) Connect(ctx context.Context, handlers discordio.EventHandlers) error { return nil }
func (f *fakeRelayClient) Close() error                                                        { return nil }
func (f *fakeRelayClient) SendMessage(ctx context.Context, channelID, text string) (string, error) {
	f.sends = append(f.sends, text)
	f.nextID++
	return strings.Repeat("m", f.nextID), nil
}
func (f *fakeRelayClient) ReplyToMessage(ctx context.Context, channelID, messageID, text string) error {
	return nil
}
func (f *fakeRelayClient) EditMessage(ctx context.Context, channelID, messageID, text string) error {
	f.edits = append(f.edits, text)
	return nil
}
func (f *fakeRelayClient) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	f.dels++
	return nil
}
func (f *fakeRelayClient) AddReaction(ctx context.Context, channelID, messageID, emoji string) error {
	return nil
}
func (f *fakeRelayClient) SendTyping(ctx context.Context, channelID string) error { return nil }
func (f *fakeRelayClient) FetchHistory(ctx context.Context, channelID string, limit int, beforeMessageID string) (discordio.HistoryPage, error) {
	return discordio.HistoryPage{}, nil
}
func (f *fakeRelayClient) FetchMessage(ctx context.Context, channelID, messageID string) (discordio.Message, bool, error) {
	return discordio.Message{}, false, nil
}
func (f *fakeRelayClient) FetchPins(ctx context.Context, channelID string) ([]discordio.Message, error) {
	return nil, nil
}
func (f *fakeRelayClient) FetchMember(ctx context.Context, guildID, userID string) (discordio.Member, error) {
	return discordio.Member{}, nil
}
func (f *fakeRelayClient) FetchChannel(ctx context.Context, channelID string) (discordio.Channel, error) {
	return discordio.Channel{}, nil
}
func (f *fakeRelayClient) BotUserID() string      { return "bot" }
func (f *fakeRelayClient) BotDisplayName() string { return "Bot" }

type fakeProvider struct {
	chunks []llm.StreamChunk
	final  *llm.CompletionResponse
}

func (p *fakeProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return p.final, nil
}

func (p *fakeProvider) CompleteStream(ctx context.Context, req llm.CompletionRequest, onChunk func(llm.StreamChunk)) (*llm.CompletionResponse, error) {
	for _, c := range p.chunks {
		onChunk(c)
	}
	return p.final, nil
}

func newTestRegistry(p llm.Provider) *llm.Registry {
	r := llm.NewRegistry()
	r.Register("test", p)
	return r
}

func TestStream_PlainTextFinalEdit(t *testing.T) {
	provider := &fakeProvider{
		chunks: []llm.StreamChunk{
			{Content: "Hello "},
			{Content: "world."},
			{Done: true},
		},
		final: &llm.CompletionResponse{Content: "Hello world."},
	}
	client := &fakeRelayClient{}
	relay := NewRelay(client, newTestRegistry(provider))

	final, err := relay.Stream(context.Background(), llm.CompletionRequest{Model: "test/model"}, "chan1", "placeholder", contextformatter.Directory{})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if final != "Hello world." {
		t.Fatalf("final = %q, want %q", final, "Hello world.")
	}
	if len(client.edits) == 0 {
		t.Fatal("expected at least one edit")
	}
	if got := client.edits[len(client.edits)-1]; got != "Hello world." {
		t.Fatalf("last edit = %q, want %q", got, "Hello world.")
	}
}

func TestStream_SplitsOverLongMessageAcrossMultipleSends(t *testing.T) {
	long := strings.Repeat("word ", 1000) // far over 2000 chars
	provider := &fakeProvider{
		chunks: []llm.StreamChunk{{Content: long}, {Done: true}},
		final:  &llm.CompletionResponse{Content: long},
	}
	client := &fakeRelayClient{}
	relay := NewRelay(client, newTestRegistry(provider))

	_, err := relay.Stream(context.Background(), llm.CompletionRequest{Model: "test/model"}, "chan1", "placeholder", contextformatter.Directory{})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	totalMessages := 1 + len(client.sends) // placeholder + any sent continuations
	if totalMessages < 2 {
		t.Fatalf("expected the long response to span multiple messages, got %d", totalMessages)
	}
	if totalMessages > MaxMessagesPerTrigger {
		t.Fatalf("message count %d exceeds ceiling %d", totalMessages, MaxMessagesPerTrigger)
	}
}

func TestStripThinking_ClosedTag(t *testing.T) {
	full := "<thinking>pondering the problem</thinking>The answer is 42."
	cleaned, thinking, only := StripThinking(full)
	if cleaned != "The answer is 42." {
		t.Fatalf("cleaned = %q", cleaned)
	}
	if thinking != "pondering the problem" {
		t.Fatalf("thinking = %q", thinking)
	}
	if only {
		t.Fatal("isThinkingOnly should be false once answer text exists")
	}
}

func TestStripThinking_UnclosedTagIsThinkingOnly(t *testing.T) {
	full := "<thinking>still pondering, no answer yet"
	cleaned, thinking, only := StripThinking(full)
	if cleaned != "" {
		t.Fatalf("cleaned = %q, want empty", cleaned)
	}
	if thinking != "still pondering, no answer yet" {
		t.Fatalf("thinking = %q", thinking)
	}
	if !only {
		t.Fatal("isThinkingOnly should be true while no answer text has arrived")
	}
}

func TestStripThinking_BracketVariant(t *testing.T) {
	full := "[thinking]weighing options[/thinking]Final answer."
	cleaned, thinking, _ := StripThinking(full)
	if cleaned != "Final answer." || thinking != "weighing options" {
		t.Fatalf("cleaned=%q thinking=%q", cleaned, thinking)
	}
}

func TestExtractSummaries_FindsBoldHeaderLines(t *testing.T) {
	reasoning := "**Exploring the config schema**\n\nSome prose that isn't a header.\n\n**Checking edge cases**\n"
	summaries := ExtractSummaries(reasoning)
	if len(summaries) != 2 {
		t.Fatalf("summaries = %v, want 2 entries", summaries)
	}
	if summaries[0] != "Exploring the config schema" || summaries[1] != "Checking edge cases" {
		t.Fatalf("summaries = %v", summaries)
	}
	if LatestSummary(summaries) != "Checking edge cases" {
		t.Fatalf("LatestSummary = %q", LatestSummary(summaries))
	}
}

func TestSplitForTrigger_CapsAtCeilingAndTruncatesLast(t *testing.T) {
	text := strings.Repeat("a", MaxMessageLen*7) // would split into 7 chunks unbounded
	chunks := splitForTrigger(text, MaxMessagesPerTrigger, true)
	if len(chunks) != MaxMessagesPerTrigger {
		t.Fatalf("len(chunks) = %d, want %d", len(chunks), MaxMessagesPerTrigger)
	}
	for _, c := range chunks {
		if len(c) > MaxMessageLen {
			t.Fatalf("chunk exceeds MaxMessageLen: %d", len(c))
		}
		if strings.TrimSpace(c) == "" {
			t.Fatal("chunk must not be empty")
		}
	}
}
