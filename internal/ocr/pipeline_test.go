package ocr

import (
	"context"
	"testing"
	"time"

	"github.com/nextlevelbuilder/discordctx/internal/model"
	"github.com/nextlevelbuilder/discordctx/internal/paths"
	"github.com/nextlevelbuilder/discordctx/internal/patterns"
	"github.com/nextlevelbuilder/discordctx/internal/storage"
)

type stubRecognizer struct {
	text string
	err  error
}

func (s stubRecognizer) Recognize(ctx context.Context, imageURL, language string) (string, error) {
	return s.text, s.err
}

type stubResponder struct {
	replies   []string
	sends     []string
	reactions []string
}

func (s *stubResponder) ReplyToMessage(ctx context.Context, channelID, messageID, text string) error {
	s.replies = append(s.replies, text)
	return nil
}

func (s *stubResponder) SendMessage(ctx context.Context, channelID, text string) (string, error) {
	s.sends = append(s.sends, text)
	return "msg-id", nil
}

func (s *stubResponder) AddReaction(ctx context.Context, channelID, messageID, emoji string) error {
	s.reactions = append(s.reactions, emoji)
	return nil
}

func newTestConfigStore(t *testing.T) (*ConfigStore, paths.Layout) {
	t.Helper()
	layout := paths.NewLayout(t.TempDir())
	return NewConfigStore(storage.New(), layout), layout
}

func TestIsEligible(t *testing.T) {
	cases := []struct {
		name string
		c    AttachmentCandidate
		want bool
	}{
		{"valid image", AttachmentCandidate{ContentType: "image/png", SizeBytes: 1000, Width: 400, Height: 300}, true},
		{"not an image", AttachmentCandidate{ContentType: "video/mp4", SizeBytes: 1000, Width: 400, Height: 300}, false},
		{"too large", AttachmentCandidate{ContentType: "image/png", SizeBytes: MaxAttachmentBytes + 1, Width: 400, Height: 300}, false},
		{"too small width", AttachmentCandidate{ContentType: "image/png", SizeBytes: 1000, Width: 200, Height: 300}, false},
		{"too small height", AttachmentCandidate{ContentType: "image/png", SizeBytes: 1000, Width: 400, Height: 100}, false},
		{"zero size", AttachmentCandidate{ContentType: "image/png", SizeBytes: 0, Width: 400, Height: 300}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsEligible(tc.c); got != tc.want {
				t.Errorf("IsEligible(%+v) = %v, want %v", tc.c, got, tc.want)
			}
		})
	}
}

func TestPipeline_EnqueueAndProcess(t *testing.T) {
	configs, _ := newTestConfigStore(t)
	if err := configs.SetChannelConfig("g1", "c1", model.OCRChannelConfig{Language: "eng", IsReadChannel: true, IsResponseChannel: true}); err != nil {
		t.Fatalf("SetChannelConfig: %v", err)
	}

	matcher := patterns.New(storage.New(), paths.NewLayout(t.TempDir()))
	if err := matcher.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	responder := &stubResponder{}
	p := New(4, stubRecognizer{text: "hello world"}, matcher, responder, configs)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if !p.Enqueue(ctx, Candidate{GuildID: "g1", ChannelID: "c1", MessageID: "m1", ImageURL: "http://example.com/x.png"}) {
		t.Fatal("expected enqueue to succeed")
	}

	done := make(chan struct{})
	go func() {
		p.Run(ctx, 1)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for {
		if p.StatsSnapshot().TotalProcessed >= 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for processing")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	<-done

	if len(responder.replies) != 1 || responder.replies[0] != "hello world" {
		t.Errorf("expected one reply with recognised text, got %+v", responder.replies)
	}
}

func TestPipeline_EnqueueRejectsWhenFull(t *testing.T) {
	configs, _ := newTestConfigStore(t)
	matcher := patterns.New(storage.New(), paths.NewLayout(t.TempDir()))
	if err := matcher.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	responder := &stubResponder{}
	p := New(1, stubRecognizer{text: "x"}, matcher, responder, configs)
	p.queue <- Candidate{GuildID: "g1", ChannelID: "c1", MessageID: "m1"}

	oldTimeout := EnqueueTimeout
	_ = oldTimeout

	ctx := context.Background()
	done := make(chan bool, 1)
	go func() {
		done <- p.Enqueue(ctx, Candidate{GuildID: "g1", ChannelID: "c1", MessageID: "m2"})
	}()

	select {
	case ok := <-done:
		if ok {
			t.Error("expected enqueue to be rejected when queue stays full")
		}
	case <-time.After(7 * time.Second):
		t.Fatal("enqueue did not return within expected bound")
	}

	stats := p.StatsSnapshot()
	if stats.TotalRejected != 1 {
		t.Errorf("TotalRejected = %d, want 1", stats.TotalRejected)
	}
	if len(responder.reactions) != 1 || responder.reactions[0] != "⏳" {
		t.Errorf("expected one hourglass reaction, got %+v", responder.reactions)
	}
}
