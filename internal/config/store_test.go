package config

import (
	"testing"

	"github.com/nextlevelbuilder/discordctx/internal/model"
	"github.com/nextlevelbuilder/discordctx/internal/paths"
	"github.com/nextlevelbuilder/discordctx/internal/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	layout := paths.NewLayout(t.TempDir())
	s, err := NewStore(storage.New(), layout)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func TestStore_InlineConfig_DefaultsWhenUnconfigured(t *testing.T) {
	s := newTestStore(t)
	cfg := s.InlineConfig("g1", "c1")
	if cfg.Enabled {
		t.Error("expected disabled by default")
	}
	if cfg.ContextMessages != 20 {
		t.Errorf("ContextMessages = %d, want 20", cfg.ContextMessages)
	}
}

func TestStore_InlineConfig_ServerThenChannelOverride(t *testing.T) {
	s := newTestStore(t)
	if err := s.SetInlineServerConfig("g1", model.InlineResponseConfig{
		Enabled:         true,
		ModelType:       "chat",
		ContextMessages: 30,
		RoleWhitelist:   []string{"r1"},
	}); err != nil {
		t.Fatalf("SetInlineServerConfig: %v", err)
	}
	if err := s.SetInlineChannelConfig("g1", "c1", model.InlineResponseConfig{
		Enabled:       true,
		RoleWhitelist: []string{"r2"},
	}); err != nil {
		t.Fatalf("SetInlineChannelConfig: %v", err)
	}

	cfg := s.InlineConfig("g1", "c1")
	if cfg.ModelType != "chat" {
		t.Errorf("ModelType = %q, want chat (inherited from server)", cfg.ModelType)
	}
	if len(cfg.RoleWhitelist) != 2 {
		t.Errorf("RoleWhitelist = %v, want union of server+channel", cfg.RoleWhitelist)
	}

	other := s.InlineConfig("g1", "c2")
	if !other.Enabled {
		t.Error("expected channel c2 (no explicit override) to inherit the server-level Enabled setting")
	}
	if len(other.RoleWhitelist) != 1 || other.RoleWhitelist[0] != "r1" {
		t.Errorf("expected channel c2 to see only the server's whitelist, got %v", other.RoleWhitelist)
	}
}

func TestStore_ChatbotConfig_ClampsOutOfRangeValues(t *testing.T) {
	s := newTestStore(t)
	if err := s.SetChatbotConfig("g1", "c1", model.ChannelChatbotConfig{
		Enabled:            true,
		MaxContextMessages: 5000,
		ResponseDelaySeconds: -1,
	}); err != nil {
		t.Fatalf("SetChatbotConfig: %v", err)
	}

	cfg := s.ChatbotConfig("g1", "c1")
	if cfg.MaxContextMessages != 1000 {
		t.Errorf("MaxContextMessages = %d, want clamped to 1000", cfg.MaxContextMessages)
	}
	if cfg.ResponseDelaySeconds != 0 {
		t.Errorf("ResponseDelaySeconds = %d, want clamped to 0", cfg.ResponseDelaySeconds)
	}
}

func TestStore_ChatbotConfig_DefaultsWhenUnconfigured(t *testing.T) {
	s := newTestStore(t)
	cfg := s.ChatbotConfig("g1", "c1")
	if cfg.Enabled {
		t.Error("expected disabled by default")
	}
	if cfg.MaxContextMessages != 50 {
		t.Errorf("MaxContextMessages = %d, want 50", cfg.MaxContextMessages)
	}
}
