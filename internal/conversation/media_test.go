package conversation

import (
	"context"
	"strings"
	"testing"
	"time"
)

// fakeValidator maps source URLs to fixed validation outcomes.
type fakeValidator struct {
	rewrites map[string]string // source -> fresh URL
	expired  map[string]string // source -> expired filename
	calls    []string
}

func (f *fakeValidator) ValidateAndUpdateURL(_ context.Context, url string) (string, string) {
	f.calls = append(f.calls, url)
	if name, ok := f.expired[url]; ok {
		return "", name
	}
	if fresh, ok := f.rewrites[url]; ok {
		return fresh, ""
	}
	return url, ""
}

func addImageMessage(t *testing.T, s *Store, msgID, url string) {
	t.Helper()
	dm := DiscordMessageLike{
		MessageID:   msgID,
		UserID:      "u1",
		Username:    "alice",
		Content:     "look at this",
		Timestamp:   time.Now().Unix(),
		Attachments: []AttachmentLike{{URL: url, ContentType: "image/png"}},
	}
	if added, _ := s.Add("g1", "c1", dm, 50, 24); !added {
		t.Fatalf("failed to seed message %s", msgID)
	}
}

func TestRefreshMediaURLs_RewritesAndPersists(t *testing.T) {
	s := newTestStore(t)
	addImageMessage(t, s, "m1", "https://cdn.discordapp.com/attachments/1/2/shot.png")

	v := &fakeValidator{rewrites: map[string]string{
		"https://cdn.discordapp.com/attachments/1/2/shot.png": "https://files.catbox.moe/abc.png",
	}}

	hist := s.LoadHistory("g1", "c1", 24)
	out := s.RefreshMediaURLs(context.Background(), "g1", "c1", hist, v)

	if len(out) != 1 {
		t.Fatalf("expected 1 message, got %d", len(out))
	}
	if out[0].AttachmentURLs[0] != "https://files.catbox.moe/abc.png" {
		t.Errorf("returned view not rewritten: %v", out[0].AttachmentURLs)
	}
	foundImage := false
	for _, p := range out[0].MultimodalContent {
		if p.Type == "image_url" {
			foundImage = true
			if p.ImageURL.URL != "https://files.catbox.moe/abc.png" {
				t.Errorf("image part not rewritten: %v", p.ImageURL.URL)
			}
		}
	}
	if !foundImage {
		t.Fatalf("expected an image part in returned view")
	}

	// The rewrite must survive a reload.
	reloaded := s.LoadHistory("g1", "c1", 24)
	if reloaded[0].AttachmentURLs[0] != "https://files.catbox.moe/abc.png" {
		t.Errorf("persisted record not rewritten: %v", reloaded[0].AttachmentURLs)
	}
}

func TestRefreshMediaURLs_ExpiredBecomesPlaceholder(t *testing.T) {
	s := newTestStore(t)
	addImageMessage(t, s, "m1", "https://files.example.net/old/shot.png")

	v := &fakeValidator{expired: map[string]string{
		"https://files.example.net/old/shot.png": "shot.png",
	}}

	hist := s.LoadHistory("g1", "c1", 24)
	out := s.RefreshMediaURLs(context.Background(), "g1", "c1", hist, v)

	if len(out[0].AttachmentURLs) != 0 {
		t.Errorf("expired URL should be dropped from returned view, got %v", out[0].AttachmentURLs)
	}
	placeholder := false
	for _, p := range out[0].MultimodalContent {
		if p.Type == "text" && strings.Contains(p.Text, "shot.png expired") {
			placeholder = true
		}
	}
	if !placeholder {
		t.Errorf("expected expired-image placeholder part, got %+v", out[0].MultimodalContent)
	}

	// The persisted record drops the URL and the image part, no placeholder.
	reloaded := s.LoadHistory("g1", "c1", 24)
	if len(reloaded[0].AttachmentURLs) != 0 {
		t.Errorf("persisted attachment_urls should be empty, got %v", reloaded[0].AttachmentURLs)
	}
	for _, p := range reloaded[0].MultimodalContent {
		if p.Type == "image_url" {
			t.Errorf("persisted record should not retain the expired image part")
		}
	}
}

func TestRefreshMediaURLs_NilValidatorPassesThrough(t *testing.T) {
	s := newTestStore(t)
	addImageMessage(t, s, "m1", "https://cdn.discordapp.com/attachments/1/2/shot.png")

	hist := s.LoadHistory("g1", "c1", 24)
	out := s.RefreshMediaURLs(context.Background(), "g1", "c1", hist, nil)
	if len(out) != 1 || out[0].AttachmentURLs[0] != hist[0].AttachmentURLs[0] {
		t.Fatalf("nil validator must pass messages through unchanged")
	}
}
