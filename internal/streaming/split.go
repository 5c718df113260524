// Package streaming implements the StreamingRelay (§4.9): it turns a stream
// of provider-agnostic JSON chunks into a sequence of Discord messages that
// grow in place via edits.
//
// Grounded on original_source/cogs/llm_commands.py's
// handle_streaming_embed_response/strip_thinking_tokens and
// original_source/utils/discord_utils.py's handle_streaming_text_response,
// adapted into the teacher's throttled-edit idiom.
package streaming

import "strings"

// MaxMessageLen is Discord's single-message character limit.
const MaxMessageLen = 2000

// SplitMessage breaks text into chunks no longer than limit, preferring to
// split on paragraph breaks, then line breaks, then words, and finally
// hard-cutting a single oversized word. It never returns an empty or
// whitespace-only chunk.
func SplitMessage(text string, limit int) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if len(text) <= limit {
		return []string{text}
	}

	var chunks []string
	var current strings.Builder

	paragraphs := strings.Split(text, "\n\n")
	for _, paragraph := range paragraphs {
		if len(paragraph) > limit {
			for _, line := range strings.Split(paragraph, "\n") {
				if current.Len()+len(line)+1 > limit {
					chunks = append(chunks, strings.TrimSpace(current.String()))
					current.Reset()
					current.WriteString(line)
				} else {
					current.WriteString("\n")
					current.WriteString(line)
				}
			}
			continue
		}

		if current.Len()+len(paragraph)+2 > limit {
			chunks = append(chunks, strings.TrimSpace(current.String()))
			current.Reset()
			current.WriteString(paragraph)
		} else if current.Len() > 0 {
			current.WriteString("\n\n")
			current.WriteString(paragraph)
		} else {
			current.WriteString(paragraph)
		}
	}
	if current.Len() > 0 {
		chunks = append(chunks, strings.TrimSpace(current.String()))
	}

	return splitOversizedByWords(chunks, limit)
}

// splitOversizedByWords force-splits any chunk still over limit (a single
// line or paragraph longer than the limit) by words, and hard-cuts any
// single word that alone exceeds the limit.
func splitOversizedByWords(chunks []string, limit int) []string {
	final := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		if len(chunk) <= limit {
			if chunk != "" && strings.TrimSpace(chunk) != "" {
				final = append(final, chunk)
			}
			continue
		}

		var word strings.Builder
		words := strings.Split(chunk, " ")
		for _, w := range words {
			if len(w) > limit {
				if word.Len() > 0 {
					final = append(final, strings.TrimSpace(word.String()))
					word.Reset()
				}
				for i := 0; i < len(w); i += limit {
					end := i + limit
					if end > len(w) {
						end = len(w)
					}
					final = append(final, w[i:end])
				}
				continue
			}
			if word.Len()+len(w)+1 > limit {
				if word.Len() > 0 {
					final = append(final, strings.TrimSpace(word.String()))
				}
				word.Reset()
				word.WriteString(w)
			} else if word.Len() > 0 {
				word.WriteString(" ")
				word.WriteString(w)
			} else {
				word.WriteString(w)
			}
		}
		if word.Len() > 0 {
			final = append(final, strings.TrimSpace(word.String()))
		}
	}

	out := final[:0]
	for _, c := range final {
		if c != "" && strings.TrimSpace(c) != "" {
			out = append(out, c)
		}
	}
	return out
}

// TruncateToLastSentence truncates text to the last full sentence at or
// before maxLength, falling back to the last phrase boundary (',', ';', ':'),
// then the last word boundary, then a hard cut.
func TruncateToLastSentence(text string, maxLength int) string {
	if len(text) <= maxLength {
		return text
	}
	truncated := text[:maxLength]

	lastEnd := -1
	for _, p := range []byte{'.', '!', '?'} {
		if idx := strings.LastIndexByte(truncated, p); idx > lastEnd {
			lastEnd = idx
		}
	}
	if lastEnd != -1 {
		return truncated[:lastEnd+1] + "..."
	}

	lastPhrase := -1
	for _, p := range []byte{',', ';', ':'} {
		if idx := strings.LastIndexByte(truncated, p); idx > lastPhrase {
			lastPhrase = idx
		}
	}
	if lastPhrase != -1 {
		return truncated[:lastPhrase+1] + "..."
	}

	if idx := strings.LastIndexByte(truncated, ' '); idx != -1 {
		return truncated[:idx] + "..."
	}

	if maxLength <= 3 {
		return truncated
	}
	return text[:maxLength-3] + "..."
}
