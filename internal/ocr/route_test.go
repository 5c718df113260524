package ocr

import (
	"context"
	"testing"

	"github.com/nextlevelbuilder/discordctx/internal/model"
)

func TestRoute_SameChannelWhenReadAndResponse(t *testing.T) {
	configs, _ := newTestConfigStore(t)
	configs.SetChannelConfig("g1", "c1", model.OCRChannelConfig{Language: "eng", IsReadChannel: true, IsResponseChannel: true})

	responder := &stubResponder{}
	c := Candidate{GuildID: "g1", ChannelID: "c1", MessageID: "m1"}
	if err := Route(context.Background(), responder, configs, c, "answer"); err != nil {
		t.Fatalf("Route: %v", err)
	}
	if len(responder.replies) != 1 || responder.replies[0] != "answer" {
		t.Errorf("expected in-place reply, got replies=%v sends=%v", responder.replies, responder.sends)
	}
}

func TestRoute_LanguageMatchedResponseChannel(t *testing.T) {
	configs, _ := newTestConfigStore(t)
	configs.SetChannelConfig("g1", "read1", model.OCRChannelConfig{Language: "eng", IsReadChannel: true})
	configs.SetChannelConfig("g1", "resp-eng", model.OCRChannelConfig{Language: "eng", IsResponseChannel: true})
	configs.SetChannelConfig("g1", "resp-rus", model.OCRChannelConfig{Language: "rus", IsResponseChannel: true})

	responder := &stubResponder{}
	c := Candidate{GuildID: "g1", ChannelID: "read1", MessageID: "m1"}
	if err := Route(context.Background(), responder, configs, c, "answer"); err != nil {
		t.Fatalf("Route: %v", err)
	}
	if len(responder.sends) != 1 || len(responder.replies) != 1 || responder.replies[0] != "answer" {
		t.Errorf("expected a link send plus a reply to the language-matched response channel, got sends=%+v replies=%+v", responder.sends, responder.replies)
	}
}

func TestRoute_FallsBackToFallbackChannel(t *testing.T) {
	configs, _ := newTestConfigStore(t)
	configs.SetChannelConfig("g1", "read1", model.OCRChannelConfig{Language: "eng", IsReadChannel: true})
	configs.SetChannelConfig("g1", "fallback1", model.OCRChannelConfig{IsFallbackChannel: true})

	responder := &stubResponder{}
	c := Candidate{GuildID: "g1", ChannelID: "read1", MessageID: "m1"}
	if err := Route(context.Background(), responder, configs, c, "answer"); err != nil {
		t.Fatalf("Route: %v", err)
	}
	if len(responder.sends) != 1 || len(responder.replies) != 1 {
		t.Errorf("expected a link send plus a reply to the fallback channel, got sends=%+v replies=%+v", responder.sends, responder.replies)
	}
}

func TestRoute_DropsWhenNoChannelConfigured(t *testing.T) {
	configs, _ := newTestConfigStore(t)
	responder := &stubResponder{}
	c := Candidate{GuildID: "g1", ChannelID: "read1", MessageID: "m1"}
	if err := Route(context.Background(), responder, configs, c, "answer"); err == nil {
		t.Fatal("expected an error when no channel is configured to receive the response")
	}
	if len(responder.sends) != 0 || len(responder.replies) != 0 {
		t.Errorf("expected no message sent, got sends=%v replies=%v", responder.sends, responder.replies)
	}
}

func TestRoute_ChunksLongResponses(t *testing.T) {
	configs, _ := newTestConfigStore(t)
	configs.SetChannelConfig("g1", "c1", model.OCRChannelConfig{Language: "eng", IsReadChannel: true, IsResponseChannel: true})

	responder := &stubResponder{}
	long := make([]byte, MaxReplyChunk*2+10)
	for i := range long {
		long[i] = 'a'
	}
	c := Candidate{GuildID: "g1", ChannelID: "c1", MessageID: "m1"}
	if err := Route(context.Background(), responder, configs, c, string(long)); err != nil {
		t.Fatalf("Route: %v", err)
	}
	if len(responder.replies) != 1 || len(responder.sends) != 2 {
		t.Fatalf("expected 1 reply chunk + 2 send chunks, got replies=%d sends=%d", len(responder.replies), len(responder.sends))
	}
}
