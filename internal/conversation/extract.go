package conversation

import (
	"regexp"
	"strings"
)

// imageExtensions and documentExtensions mirror the original triage lists
// (_examples/original_source/utils/chatbot/conversation.py).
var imageExtensions = []string{".png", ".jpg", ".jpeg", ".gif", ".webp"}
var documentExtensions = []string{".pdf", ".txt", ".log", ".ini", ".json", ".xml", ".csv", ".md"}

var urlRE = regexp.MustCompile(`https?://\S+`)
var whitespaceRE = regexp.MustCompile(`\s+`)

// AttachmentLike is the minimal attachment shape the extractor needs.
type AttachmentLike struct {
	URL         string
	ContentType string // e.g. "image/png", "video/mp4"
}

// EmbedLike is the minimal embed shape the extractor needs.
type EmbedLike struct {
	Type string // "image", "video", "gifv", or other
	URL  string
}

// Extracted is the result of running a raw Discord message body through the
// §4.3.1 extraction pipeline.
type Extracted struct {
	CleanedContent string
	ImageURLs      []string
	DocumentURLs   []string
	OtherEmbedURLs []string
}

func isImageContentType(ct string) bool { return strings.HasPrefix(ct, "image/") }
func isVideoContentType(ct string) bool {
	return strings.HasPrefix(ct, "video/") || ct == "image/gif"
}

func hasExtension(url string, exts []string) bool {
	clean := strings.Split(url, "?")[0]
	lower := strings.ToLower(clean)
	for _, ext := range exts {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

func trimTrailingPunctuation(url string) string {
	return strings.TrimRight(url, ".,!?")
}

// Extract converts a raw message body, its attachments, and its embeds into
// an Extracted bundle per spec §4.3.1.
func Extract(content string, attachments []AttachmentLike, embeds []EmbedLike) Extracted {
	out := Extracted{CleanedContent: content}

	// Step 1: scan content for URLs, classify and strip media/doc links.
	for _, raw := range urlRE.FindAllString(content, -1) {
		url := trimTrailingPunctuation(raw)
		switch {
		case hasExtension(url, imageExtensions):
			out.ImageURLs = append(out.ImageURLs, url)
			out.CleanedContent = strings.Replace(out.CleanedContent, raw, "", 1)
		case hasExtension(url, documentExtensions):
			out.DocumentURLs = append(out.DocumentURLs, url)
			out.CleanedContent = strings.Replace(out.CleanedContent, raw, "", 1)
		}
	}

	// Step 2: attachments.
	for _, a := range attachments {
		switch {
		case isVideoContentType(a.ContentType):
			out.CleanedContent = strings.Replace(out.CleanedContent, a.URL, "", 1)
		case isImageContentType(a.ContentType):
			out.ImageURLs = append(out.ImageURLs, a.URL)
		case hasExtension(a.URL, documentExtensions):
			out.DocumentURLs = append(out.DocumentURLs, a.URL)
		}
	}

	// Step 3: embeds.
	for _, e := range embeds {
		switch e.Type {
		case "video", "gifv":
			if e.URL != "" {
				out.CleanedContent = strings.Replace(out.CleanedContent, e.URL, "", 1)
			}
		case "image":
			if e.URL != "" {
				out.ImageURLs = append(out.ImageURLs, e.URL)
			}
		default:
			if e.URL != "" {
				out.OtherEmbedURLs = append(out.OtherEmbedURLs, e.URL)
			}
		}
	}

	// Step 4: collapse whitespace.
	out.CleanedContent = strings.TrimSpace(whitespaceRE.ReplaceAllString(out.CleanedContent, " "))

	return out
}
