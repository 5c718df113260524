package inline

import (
	"context"
	"testing"
	"time"

	"github.com/nextlevelbuilder/discordctx/internal/discordio"
)

type fakeClient struct {
	botUserID string
	history   []discordio.Message
	byID      map[string]discordio.Message
}

func (f *fakeClient) Connect(ctx context.Context, handlers discordio.EventHandlers) error { return nil }
func (f *fakeClient) Close() error                                                        { return nil }
func (f *fakeClient) SendMessage(ctx context.Context, channelID, text string) (string, error) {
	return "sent", nil
}
func (f *fakeClient) ReplyToMessage(ctx context.Context, channelID, messageID, text string) error {
	return nil
}
func (f *fakeClient) EditMessage(ctx context.Context, channelID, messageID, text string) error {
	return nil
}
func (f *fakeClient) DeleteMessage(ctx context.Context, channelID, messageID string) error { return nil }
func (f *fakeClient) AddReaction(ctx context.Context, channelID, messageID, emoji string) error {
	return nil
}
func (f *fakeClient) SendTyping(ctx context.Context, channelID string) error { return nil }
func (f *fakeClient) FetchHistory(ctx context.Context, channelID string, limit int, beforeMessageID string) (discordio.HistoryPage, error) {
	return discordio.HistoryPage{Messages: f.history}, nil
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
	return discordio.Channel{}, nil
}
func (f *fakeClient) BotUserID() string      { return f.botUserID }
func (f *fakeClient) BotDisplayName() string { return "Bot" }

func TestBuildContext_BasicHistoryPlusTrigger(t *testing.T) {
	now := time.Now().Unix()
	history := []discordio.Message{
		{MessageID: "m1", ChannelID: "c1", AuthorID: "u1", AuthorUsername: "alice", AuthorDisplayName: "Alice", Content: "hi there", Timestamp: now - 10},
	}
	trigger := discordio.Message{MessageID: "m2", ChannelID: "c1", AuthorID: "u2", AuthorUsername: "bob", AuthorDisplayName: "Bob", Content: "<@999> hello", Timestamp: now, MentionedUserIDs: []string{"999"}}

	client := &fakeClient{botUserID: "999", history: history, byID: map[string]discordio.Message{}}

	msgs, users, err := BuildContext(context.Background(), client, "g1", "c1", trigger, 24)
	if err != nil {
		t.Fatalf("BuildContext: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d: %+v", len(msgs), msgs)
	}
	if msgs[0].MessageID != "m1" || msgs[1].MessageID != "m2" {
		t.Errorf("expected chronological order, got %+v", msgs)
	}
	if len(users) != 2 {
		t.Errorf("expected 2 distinct non-bot users indexed, got %+v", users)
	}
}

func TestBuildContext_ResolvesMissingReplyTarget(t *testing.T) {
	now := time.Now().Unix()
	trigger := discordio.Message{MessageID: "m2", ChannelID: "c1", AuthorID: "u2", AuthorDisplayName: "Bob", Content: "<@999> yes", Timestamp: now, ReferencedMessageID: "m-missing"}

	client := &fakeClient{
		botUserID: "999",
		history:   nil,
		byID: map[string]discordio.Message{
			"m-missing": {MessageID: "m-missing", ChannelID: "c1", AuthorID: "u1", AuthorDisplayName: "Alice", Content: "original question", Timestamp: now - 110},
		},
	}

	msgs, _, err := BuildContext(context.Background(), client, "g1", "c1", trigger, 24)
	if err != nil {
		t.Fatalf("BuildContext: %v", err)
	}
	found := false
	for _, m := range msgs {
		if m.MessageID == "m-missing" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected the resolved reply target to be included, got %+v", msgs)
	}
}

func TestStitchBotMessages_MergesCloseSameAuthorChunks(t *testing.T) {
	pool := map[string]discordio.Message{
		"a": {MessageID: "a", AuthorID: "999", AuthorIsBot: true, Content: "first part", Timestamp: 100},
		"b": {MessageID: "b", AuthorID: "999", AuthorIsBot: true, Content: "second part", Timestamp: 105},
		"c": {MessageID: "c", AuthorID: "u1", AuthorIsBot: false, Content: "unrelated", Timestamp: 200},
	}
	out := stitchBotMessages(pool)
	if len(out) != 2 {
		t.Fatalf("expected 2 stitched entries, got %d: %+v", len(out), out)
	}
	if out[0].Content != "first part\nsecond part" {
		t.Errorf("expected stitched content, got %q", out[0].Content)
	}
}

func TestStitchBotMessages_DoesNotMergeAcrossGap(t *testing.T) {
	pool := map[string]discordio.Message{
		"a": {MessageID: "a", AuthorID: "999", AuthorIsBot: true, Content: "first", Timestamp: 100},
		"b": {MessageID: "b", AuthorID: "999", AuthorIsBot: true, Content: "much later", Timestamp: 200},
	}
	out := stitchBotMessages(pool)
	if len(out) != 2 {
		t.Fatalf("expected no merge across a large gap, got %d: %+v", len(out), out)
	}
}
