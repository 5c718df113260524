package streaming

import "strings"

// thinkingTags pairs every opening/closing spelling the relay must
// recognise (§4.9 step 3b, §9 design note on unclosed tags), including the
// bracket and star variants some reasoning models emit.
var thinkingTags = []struct {
	open  string
	close string
}{
	{"<thinking>", "</thinking>"},
	{"<think>", "</think>"},
	{"<thought>", "</thought>"},
	{"[thinking]", "[/thinking]"},
	{"*thinking*", "*/thinking*"},
}

// StripThinking is the one-pass state machine the spec calls for instead of
// a regex replace (§9): it scans full once, removing any "thinking" tagged
// spans (closed or not) and returning the visible text, the concatenated
// thinking-tag contents, and whether the entire visible text is thinking
// content (i.e. no answer text exists outside of a tag yet).
func StripThinking(full string) (cleaned, thinkingContent string, isThinkingOnly bool) {
	var out strings.Builder
	var thinking strings.Builder
	pos := 0
	sawThinkingSpan := false

	for pos < len(full) {
		openIdx := -1
		tagIdx := -1
		for i, tag := range thinkingTags {
			if idx := strings.Index(full[pos:], tag.open); idx != -1 {
				abs := pos + idx
				if openIdx == -1 || abs < openIdx {
					openIdx = abs
					tagIdx = i
				}
			}
		}
		if openIdx == -1 {
			out.WriteString(full[pos:])
			break
		}

		out.WriteString(full[pos:openIdx])
		sawThinkingSpan = true
		contentStart := openIdx + len(thinkingTags[tagIdx].open)
		closer := thinkingTags[tagIdx].close
		if closeIdx := strings.Index(full[contentStart:], closer); closeIdx != -1 {
			abs := contentStart + closeIdx
			thinking.WriteString(full[contentStart:abs])
			pos = abs + len(closer)
		} else {
			// Unclosed tag: a truncated stream. Everything after the opener
			// is thinking content until the stream produces a closer (or
			// ends) on a later tick.
			thinking.WriteString(full[contentStart:])
			pos = len(full)
		}
	}

	cleaned = out.String()
	isThinkingOnly = sawThinkingSpan && strings.TrimSpace(cleaned) == ""
	return cleaned, thinking.String(), isThinkingOnly
}

// WrapThinking reproduces the §4.9 "form full" step:
// full = <thinking>{reasoningBuffer}</thinking>{answerBuffer}.
func WrapThinking(reasoning, answer string) string {
	if reasoning == "" {
		return answer
	}
	return "<thinking>" + reasoning + "</thinking>" + answer
}
