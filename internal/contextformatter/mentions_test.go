package contextformatter

import (
	"strings"
	"testing"
)

func TestDiscordToLLMReadable_RewritesMention(t *testing.T) {
	dir := Directory{UsernameByID: map[string]string{"42": "alice"}}
	got := DiscordToLLMReadable("hey <@42> check this", dir)
	if got != "hey @alice check this" {
		t.Fatalf("unexpected rewrite: %q", got)
	}
}

func TestDiscordToLLMReadable_UnknownMentionFallsBack(t *testing.T) {
	dir := Directory{}
	got := DiscordToLLMReadable("hey <@999>", dir)
	if !strings.Contains(got, "@Unknown User") {
		t.Fatalf("expected fallback to @Unknown User, got %q", got)
	}
}

func TestDiscordToLLMReadable_PlainUsernameRewritten(t *testing.T) {
	dir := Directory{UsernameByID: map[string]string{"42": "alice"}}
	got := DiscordToLLMReadable("thanks alice for the help", dir)
	if !strings.Contains(got, "@alice") {
		t.Fatalf("expected bare username rewritten to @alice, got %q", got)
	}
}

func TestDiscordToLLMReadable_PreservesEmotes(t *testing.T) {
	dir := Directory{}
	got := DiscordToLLMReadable("nice <:pepe:123> work", dir)
	if !strings.Contains(got, "<:pepe:123>") {
		t.Fatalf("expected emote preserved, got %q", got)
	}
}

func TestLlmToDiscord_RewritesMentionToDisplayName(t *testing.T) {
	dir := Directory{DisplayNameByID: map[string]string{"42": "Alice"}}
	got := LlmToDiscord("hey <@42> how are you", dir)
	if !strings.Contains(got, "Alice") {
		t.Fatalf("expected display name substituted, got %q", got)
	}
	if strings.Contains(got, "<@42>") {
		t.Fatalf("expected raw mention removed, got %q", got)
	}
}

func TestLlmToDiscord_CreatorGetsDecoratedRendering(t *testing.T) {
	dir := Directory{CreatorID: "7", CreatorDecoration: "**The Creator**"}
	got := LlmToDiscord("hi <@7>", dir)
	if !strings.Contains(got, "**The Creator**") {
		t.Fatalf("expected creator decoration, got %q", got)
	}
}

func TestLlmToDiscord_StripsEveryoneAndHere(t *testing.T) {
	got := LlmToDiscord("@everyone please see @here", Directory{})
	if strings.Contains(got, "@everyone") || strings.Contains(got, "@here") {
		t.Fatalf("expected mass mentions stripped, got %q", got)
	}
}

func TestLlmToDiscord_RemovesEchoedPrefix(t *testing.T) {
	got := LlmToDiscord("[3] [id:42] Alice: actual reply text", Directory{})
	if strings.Contains(got, "[3]") || strings.Contains(got, "[id:42]") {
		t.Fatalf("expected echoed prefix stripped, got %q", got)
	}
	if !strings.Contains(got, "actual reply text") {
		t.Fatalf("expected real content preserved, got %q", got)
	}
}

func TestLlmToDiscord_RoleMentionCodeWrapped(t *testing.T) {
	dir := Directory{RoleNameByID: map[string]string{"5": "moderators"}}
	got := LlmToDiscord("ping <@&5>", dir)
	if !strings.Contains(got, "`@moderators`") {
		t.Fatalf("expected code-wrapped role mention, got %q", got)
	}
}
