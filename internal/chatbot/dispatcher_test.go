package chatbot

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nextlevelbuilder/discordctx/internal/config"
	"github.com/nextlevelbuilder/discordctx/internal/conversation"
	"github.com/nextlevelbuilder/discordctx/internal/discordio"
	"github.com/nextlevelbuilder/discordctx/internal/indexing"
	"github.com/nextlevelbuilder/discordctx/internal/llm"
	"github.com/nextlevelbuilder/discordctx/internal/model"
	"github.com/nextlevelbuilder/discordctx/internal/paths"
	"github.com/nextlevelbuilder/discordctx/internal/storage"
)

type sentRecord struct {
	kind string // "send", "edit", "reply"
	text string
}

type fakeClient struct {
	mu      sync.Mutex
	records []sentRecord
	byID    map[string]discordio.Message
	nextID  int
}

func newFakeClient() *fakeClient {
	return &fakeClient{byID: make(map[string]discordio.Message)}
}

func (f *fakeClient) Connect(ctx context.Context, handlers discordio.EventHandlers) error { return nil }
func (f *fakeClient) Close() error                                                        { return nil }
func (f *fakeClient) SendMessage(ctx context.Context, channelID, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.records = append(f.records, sentRecord{kind: "send", text: text})
	return "sent-" + strings.Repeat("x", f.nextID), nil
}
func (f *fakeClient) ReplyToMessage(ctx context.Context, channelID, messageID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, sentRecord{kind: "reply", text: text})
	return nil
}
func (f *fakeClient) EditMessage(ctx context.Context, channelID, messageID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, sentRecord{kind: "edit", text: text})
	return nil
}
func (f *fakeClient) DeleteMessage(ctx context.Context, channelID, messageID string) error { return nil }
func (f *fakeClient) AddReaction(ctx context.Context, channelID, messageID, emoji string) error {
	return nil
}
func (f *fakeClient) SendTyping(ctx context.Context, channelID string) error { return nil }
func (f *fakeClient) FetchHistory(ctx context.Context, channelID string, limit int, beforeMessageID string) (discordio.HistoryPage, error) {
	return discordio.HistoryPage{}, nil
}
func (f *fakeClient) FetchMessage(ctx context.Context, channelID, messageID string) (discordio.Message, bool, error) {
	m, ok := f.byID[messageID]
	return m, ok, nil
}
func (f *fakeClient) FetchPins(ctx context.Context, channelID string) ([]discordio.Message, error) {
	return nil, nil
}
func (f *fakeClient) FetchMember(ctx context.Context, guildID, userID string) (discordio.Member, error) {
	return discordio.Member{}, nil
}
func (f *fakeClient) FetchChannel(ctx context.Context, channelID string) (discordio.Channel, error) {
	return discordio.Channel{ChannelID: channelID, Name: "general"}, nil
}
func (f *fakeClient) BotUserID() string      { return "bot-id" }
func (f *fakeClient) BotDisplayName() string { return "Helper" }

func (f *fakeClient) recorded() []sentRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentRecord(nil), f.records...)
}

type fakeProvider struct {
	response string
}

func (p *fakeProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return &llm.CompletionResponse{Content: p.response}, nil
}

func (p *fakeProvider) CompleteStream(ctx context.Context, req llm.CompletionRequest, onChunk func(llm.StreamChunk)) (*llm.CompletionResponse, error) {
	onChunk(llm.StreamChunk{Content: p.response})
	onChunk(llm.StreamChunk{Done: true})
	return &llm.CompletionResponse{Content: p.response}, nil
}

func newTestDispatcher(t *testing.T, client *fakeClient, response string) (*Dispatcher, *conversation.Store, *config.Store) {
	t.Helper()
	layout := paths.NewLayout(t.TempDir())
	st := storage.New()
	idx := indexing.New(st, layout)
	convStore := conversation.New(st, layout, idx)

	configStore, err := config.NewStore(st, layout)
	if err != nil {
		t.Fatalf("config store: %v", err)
	}

	models := llm.NewRegistry()
	models.Register("test", &fakeProvider{response: response})

	d := New(client, convStore, idx, configStore, models, nil, nil, "test/m")
	return d, convStore, configStore
}

func enabledConfig() model.ChannelChatbotConfig {
	cfg := model.DefaultChannelChatbotConfig()
	cfg.Enabled = true
	return cfg
}

func TestShouldTrigger_MentionAndReplyRules(t *testing.T) {
	client := newFakeClient()
	d, convStore, _ := newTestDispatcher(t, client, "ok")
	cfg := enabledConfig()

	mention := discordio.Message{GuildID: "g1", ChannelID: "c1", AuthorID: "u1", MentionedUserIDs: []string{"bot-id"}}
	if !d.shouldTrigger(context.Background(), mention, cfg) {
		t.Errorf("mention of the bot should trigger")
	}

	otherMention := discordio.Message{GuildID: "g1", ChannelID: "c1", AuthorID: "u1", MentionedUserIDs: []string{"someone-else"}}
	if d.shouldTrigger(context.Background(), otherMention, cfg) {
		t.Errorf("mention of another user should not trigger")
	}

	// Reply to a tracked self-bot message triggers.
	convStore.Add("g1", "c1", conversation.DiscordMessageLike{
		MessageID: "bot-msg", UserID: "bot-id", Username: "Helper",
		Content: "earlier answer", Timestamp: time.Now().Unix(),
		IsBotResponse: true, IsSelfBotResponse: true,
	}, 50, 24)
	reply := discordio.Message{GuildID: "g1", ChannelID: "c1", AuthorID: "u1", ReferencedMessageID: "bot-msg"}
	if !d.shouldTrigger(context.Background(), reply, cfg) {
		t.Errorf("reply to a self-bot message should trigger")
	}

	// Reply to a human message does not.
	convStore.Add("g1", "c1", conversation.DiscordMessageLike{
		MessageID: "human-msg", UserID: "u9", Username: "carol",
		Content: "just chatting here", Timestamp: time.Now().Unix(),
	}, 50, 24)
	humanReply := discordio.Message{GuildID: "g1", ChannelID: "c1", AuthorID: "u1", ReferencedMessageID: "human-msg"}
	if d.shouldTrigger(context.Background(), humanReply, cfg) {
		t.Errorf("reply to a human message should not trigger")
	}

	// Flags off: nothing triggers.
	cfg.AutoRespondToMentions = false
	cfg.AutoRespondToReplies = false
	if d.shouldTrigger(context.Background(), mention, cfg) || d.shouldTrigger(context.Background(), reply, cfg) {
		t.Errorf("disabled auto-respond flags must suppress triggers")
	}
}

func TestShouldTrigger_ReplyFallsBackToFetch(t *testing.T) {
	client := newFakeClient()
	client.byID["old-bot-msg"] = discordio.Message{MessageID: "old-bot-msg", AuthorID: "bot-id"}
	d, _, _ := newTestDispatcher(t, client, "ok")

	reply := discordio.Message{GuildID: "g1", ChannelID: "c1", AuthorID: "u1", ReferencedMessageID: "old-bot-msg"}
	if !d.shouldTrigger(context.Background(), reply, enabledConfig()) {
		t.Errorf("reply to an out-of-window bot message should trigger via fetch")
	}

	missing := discordio.Message{GuildID: "g1", ChannelID: "c1", AuthorID: "u1", ReferencedMessageID: "gone"}
	if d.shouldTrigger(context.Background(), missing, enabledConfig()) {
		t.Errorf("reply to a deleted message should not trigger")
	}
}

func TestLoadWindow_RespectsClearedCheckpoint(t *testing.T) {
	client := newFakeClient()
	d, convStore, _ := newTestDispatcher(t, client, "ok")

	base := time.Now().Unix()
	for i, id := range []string{"m1", "m2", "m3"} {
		convStore.Add("g1", "c1", conversation.DiscordMessageLike{
			MessageID: id, UserID: "u1", Username: "alice",
			Content: "message number " + id, Timestamp: base - int64(30-i*10),
		}, 50, 24)
	}

	cfg := enabledConfig()
	all := d.loadWindow("g1", "c1", cfg)
	if len(all) != 3 {
		t.Fatalf("expected 3 messages without checkpoint, got %d", len(all))
	}

	cfg.LastClearedTimestamp = base - 25 // fences out m1 only
	after := d.loadWindow("g1", "c1", cfg)
	if len(after) != 2 {
		t.Fatalf("expected checkpoint to fence out older messages, got %d", len(after))
	}
	for _, m := range after {
		if m.MessageID == "m1" {
			t.Errorf("m1 predates the checkpoint and must be excluded")
		}
	}
}

func TestProcess_RespondsAndPersistsSelfBotMessage(t *testing.T) {
	client := newFakeClient()
	d, convStore, configStore := newTestDispatcher(t, client, "The answer is 42.")

	cfg := enabledConfig()
	cfg.ResponseDelaySeconds = 0
	if err := configStore.SetChatbotConfig("g1", "c1", cfg); err != nil {
		t.Fatalf("set config: %v", err)
	}

	convStore.Add("g1", "c1", conversation.DiscordMessageLike{
		MessageID: "m1", UserID: "u2", Username: "bob",
		Content: "what is the answer", Timestamp: time.Now().Unix(),
	}, 50, 24)

	trigger := discordio.Message{
		GuildID: "g1", ChannelID: "c1", MessageID: "m2",
		AuthorID: "u2", AuthorUsername: "bob", AuthorDisplayName: "Bob",
		Content: "<@bot-id> well?", Timestamp: time.Now().Unix(),
		MentionedUserIDs: []string{"bot-id"},
	}
	d.process(context.Background(), trigger)

	records := client.recorded()
	if len(records) < 2 {
		t.Fatalf("expected placeholder send plus final edit, got %+v", records)
	}
	if records[0].kind != "send" || !strings.Contains(records[0].text, "Thinking") {
		t.Errorf("expected a placeholder first, got %+v", records[0])
	}
	final := records[len(records)-1]
	if final.kind != "edit" || !strings.Contains(final.text, "The answer is 42.") {
		t.Errorf("expected final edit carrying the response, got %+v", final)
	}

	hist := convStore.LoadHistory("g1", "c1", 24)
	var botMsg bool
	for _, m := range hist {
		if m.IsSelfBotResponse && strings.Contains(m.Content, "The answer is 42.") {
			botMsg = true
		}
	}
	if !botMsg {
		t.Errorf("bot response should be persisted as a self-bot message, got %+v", hist)
	}
}

func TestProcess_SkipsWhenDisabled(t *testing.T) {
	client := newFakeClient()
	d, _, configStore := newTestDispatcher(t, client, "ok")

	cfg := model.DefaultChannelChatbotConfig() // Enabled: false
	if err := configStore.SetChatbotConfig("g1", "c1", cfg); err != nil {
		t.Fatalf("set config: %v", err)
	}

	trigger := discordio.Message{GuildID: "g1", ChannelID: "c1", MessageID: "m1", AuthorID: "u1", MentionedUserIDs: []string{"bot-id"}}
	d.process(context.Background(), trigger)

	if len(client.recorded()) != 0 {
		t.Errorf("disabled channel must produce no sends, got %+v", client.recorded())
	}
}
