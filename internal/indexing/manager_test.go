package indexing

import (
	"testing"
	"time"

	"github.com/nextlevelbuilder/discordctx/internal/model"
	"github.com/nextlevelbuilder/discordctx/internal/paths"
	"github.com/nextlevelbuilder/discordctx/internal/storage"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	layout := paths.NewLayout(t.TempDir())
	return New(storage.New(), layout)
}

func TestManager_UpdateUser_CreatesThenMerges(t *testing.T) {
	m := newTestManager(t)

	m.UpdateUser("g1", model.DiscordUserLike{UserID: "u1", Username: "alice", Roles: []string{"@everyone", "mod"}}, true)
	users := m.LoadUserIndex("g1")
	e, ok := users["u1"]
	if !ok {
		t.Fatalf("expected user u1 to be indexed")
	}
	if e.MessageCount != 1 {
		t.Fatalf("expected message_count=1, got %d", e.MessageCount)
	}
	if len(e.Roles) != 1 || e.Roles[0] != "mod" {
		t.Fatalf("expected @everyone filtered out, got %v", e.Roles)
	}

	m.UpdateUser("g1", model.DiscordUserLike{UserID: "u1", Username: "alice2"}, false)
	users = m.LoadUserIndex("g1")
	e = users["u1"]
	if e.MessageCount != 1 {
		t.Fatalf("expected message_count unchanged on non-author update, got %d", e.MessageCount)
	}
	if e.Username != "alice2" {
		t.Fatalf("expected username refreshed, got %s", e.Username)
	}
}

func TestManager_BulkUpdateUsers_SingleWrite(t *testing.T) {
	m := newTestManager(t)
	m.BulkUpdateUsers("g1", []model.DiscordUserLike{
		{UserID: "u1", Username: "a"},
		{UserID: "u2", Username: "b"},
	}, false)

	users := m.LoadUserIndex("g1")
	if len(users) != 2 {
		t.Fatalf("expected 2 users indexed, got %d", len(users))
	}
}

func TestManager_UpdateChannel_ThreadFallsBackToParent(t *testing.T) {
	m := newTestManager(t)
	m.UpdateChannel(model.DiscordChannelLike{
		ChannelID:          "c1",
		GuildID:            "g1",
		ChannelType:        model.ChannelTypePublicThread,
		IsThread:           true,
		ThreadName:         "bug-report-42",
		ParentTopic:        "general chat",
		ParentCategoryName: "support",
		ParentIsNSFW:       false,
	})

	e, ok := m.LoadChannelIndex("g1", "c1")
	if !ok {
		t.Fatalf("expected channel c1 indexed")
	}
	if e.Topic != "bug-report-42" {
		t.Fatalf("expected thread name used as topic when own topic empty, got %q", e.Topic)
	}
	if e.CategoryName != "support" {
		t.Fatalf("expected category fallback to parent, got %q", e.CategoryName)
	}
}

func TestManager_UpdateChannel_ParentTopicUsedWhenNoThreadName(t *testing.T) {
	m := newTestManager(t)
	m.UpdateChannel(model.DiscordChannelLike{
		ChannelID:    "c2",
		GuildID:      "g1",
		ChannelType:  model.ChannelTypePrivateThread,
		IsThread:     true,
		ParentTopic:  "general chat",
		ParentIsNSFW: true,
	})

	e, _ := m.LoadChannelIndex("g1", "c2")
	if e.Topic != "general chat" {
		t.Fatalf("expected parent topic fallback, got %q", e.Topic)
	}
	if !e.IsNSFW {
		t.Fatalf("expected nsfw inherited from parent")
	}
}

func TestManager_IndexPinnedMessages_TruncatesAndFilters(t *testing.T) {
	m := newTestManager(t)

	m.IndexPinnedMessages("g1", "c1", []model.ConversationMessage{
		{UserID: "u1", Content: "keep me", MessageID: "m1"},
	}, nil, nil)
	if pins := m.LoadPins("g1", "c1"); len(pins) != 1 {
		t.Fatalf("expected 1 pin after first index, got %d", len(pins))
	}

	keep := func(msg model.ConversationMessage) bool { return msg.Content != "drop me" }
	m.IndexPinnedMessages("g1", "c1", []model.ConversationMessage{
		{UserID: "u1", Content: "drop me", MessageID: "m2"},
		{UserID: "u2", Content: "keep this", MessageID: "m3"},
	}, keep, nil)

	pins := m.LoadPins("g1", "c1")
	if len(pins) != 1 {
		t.Fatalf("expected index to be replaced (truncate-then-write), got %d pins", len(pins))
	}
	if pins[0].MessageID != "m3" {
		t.Fatalf("expected only the validated pin retained, got %+v", pins[0])
	}
}

func TestManager_CleanupStaleUsers(t *testing.T) {
	m := newTestManager(t)
	m.UpdateUser("g1", model.DiscordUserLike{UserID: "fresh"}, false)

	users := m.LoadUserIndex("g1")
	users["stale"] = &model.UserIndexEntry{UserID: "stale", LastSeen: time.Now().Add(-1000 * time.Hour).Unix()}
	if err := m.saveUserIndex("g1", users); err != nil {
		t.Fatalf("setup save failed: %v", err)
	}

	removed := m.CleanupStaleUsers("g1", DefaultCleanupHorizon)
	if removed != 1 {
		t.Fatalf("expected 1 stale user removed, got %d", removed)
	}
	remaining := m.LoadUserIndex("g1")
	if _, ok := remaining["stale"]; ok {
		t.Fatalf("expected stale user gone")
	}
	if _, ok := remaining["fresh"]; !ok {
		t.Fatalf("expected fresh user kept")
	}
}

func TestManager_ContextualCleanup_KeepsOnlyReferenced(t *testing.T) {
	m := newTestManager(t)
	m.BulkUpdateUsers("g1", []model.DiscordUserLike{
		{UserID: "u1"}, {UserID: "u2"}, {UserID: "u3"},
	}, false)

	removed := m.ContextualCleanup("g1", map[string]struct{}{"u1": {}})
	if removed != 2 {
		t.Fatalf("expected 2 removed, got %d", removed)
	}
	remaining := m.LoadUserIndex("g1")
	if len(remaining) != 1 {
		t.Fatalf("expected 1 user left, got %d", len(remaining))
	}
	if _, ok := remaining["u1"]; !ok {
		t.Fatalf("expected u1 retained")
	}
}
