package conversation

import (
	"reflect"
	"testing"
)

func TestExtract_ImageURLInContentIsPulledOut(t *testing.T) {
	ex := Extract("check this out https://cdn.example.com/pic.png! cool right?", nil, nil)
	if len(ex.ImageURLs) != 1 || ex.ImageURLs[0] != "https://cdn.example.com/pic.png" {
		t.Fatalf("expected trailing punctuation stripped from image url, got %v", ex.ImageURLs)
	}
	if want := "check this out cool right?"; ex.CleanedContent != want {
		t.Fatalf("cleaned content = %q, want %q", ex.CleanedContent, want)
	}
}

func TestExtract_DocumentURLClassifiedSeparately(t *testing.T) {
	ex := Extract("see https://files.example.com/report.pdf", nil, nil)
	if len(ex.DocumentURLs) != 1 {
		t.Fatalf("expected 1 document url, got %v", ex.DocumentURLs)
	}
	if len(ex.ImageURLs) != 0 {
		t.Fatalf("expected no image urls, got %v", ex.ImageURLs)
	}
}

func TestExtract_PlainURLWithUnknownExtensionIsLeftInContent(t *testing.T) {
	ex := Extract("see https://example.com/page", nil, nil)
	if len(ex.ImageURLs) != 0 || len(ex.DocumentURLs) != 0 {
		t.Fatalf("expected no media urls extracted, got %+v", ex)
	}
	if ex.CleanedContent != "see https://example.com/page" {
		t.Fatalf("expected content left untouched, got %q", ex.CleanedContent)
	}
}

func TestExtract_VideoAttachmentDroppedEntirely(t *testing.T) {
	ex := Extract("look", []AttachmentLike{{URL: "https://cdn/x.mp4", ContentType: "video/mp4"}}, nil)
	if len(ex.ImageURLs) != 0 || len(ex.DocumentURLs) != 0 {
		t.Fatalf("expected video attachment dropped, got %+v", ex)
	}
}

func TestExtract_ImageAttachmentCaptured(t *testing.T) {
	ex := Extract("look", []AttachmentLike{{URL: "https://cdn/x.png", ContentType: "image/png"}}, nil)
	if !reflect.DeepEqual(ex.ImageURLs, []string{"https://cdn/x.png"}) {
		t.Fatalf("expected image attachment captured, got %v", ex.ImageURLs)
	}
}

func TestExtract_Embeds(t *testing.T) {
	ex := Extract("", nil, []EmbedLike{
		{Type: "image", URL: "https://cdn/e.png"},
		{Type: "video", URL: "https://cdn/e.mp4"},
		{Type: "article", URL: "https://example.com/article"},
	})
	if !reflect.DeepEqual(ex.ImageURLs, []string{"https://cdn/e.png"}) {
		t.Fatalf("expected image embed captured, got %v", ex.ImageURLs)
	}
	if !reflect.DeepEqual(ex.OtherEmbedURLs, []string{"https://example.com/article"}) {
		t.Fatalf("expected other embed recorded, got %v", ex.OtherEmbedURLs)
	}
}

func TestExtract_CollapsesWhitespace(t *testing.T) {
	ex := Extract("hello   \n\n  world", nil, nil)
	if ex.CleanedContent != "hello world" {
		t.Fatalf("expected collapsed whitespace, got %q", ex.CleanedContent)
	}
}
