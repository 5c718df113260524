// Package contextformatter implements the ContextFormatter described in
// spec §4.5: context prioritisation, multimodal assembly, reply-chain
// stitching, and Discord<->LLM mention rewriting.
//
// Grounded on _examples/original_source/utils/chatbot/formatting.py for the
// exact smart-snippet and mention-rewrite algorithms, and on the teacher's
// internal/agent/sanitize.go for the "scan with explicit state" idiom used
// in the anti-parrot filter.
package contextformatter

import "strings"

// Thresholds match _create_smart_snippet in the original implementation.
const (
	snippetTargetPercentage = 0.3
	snippetMinLength        = 30
	snippetMaxLength        = 150
	longMessageThreshold     = 500
	longMessageHalfLength    = 75
)

var sentenceEndPunctuation = ".!?"
var phraseEndPunctuation = ",;:"

// intelligentTruncate cuts text to at most maxLen runes, preferring a
// sentence-ending boundary, then a phrase-ending boundary, then a word
// boundary, and finally a hard cut. The last three cases append "..." after
// the cut, so their result can be up to three runes longer than maxLen.
func intelligentTruncate(text string, maxLen int) string {
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}
	window := runes[:maxLen]

	if i := lastIndexOfAny(window, sentenceEndPunctuation); i >= 0 && i >= maxLen/2 {
		return strings.TrimSpace(string(window[:i+1]))
	}
	if i := lastIndexOfAny(window, phraseEndPunctuation); i >= 0 && i >= maxLen/2 {
		return strings.TrimSpace(string(window[:i+1])) + "..."
	}
	if i := lastIndexOfRune(window, ' '); i >= 0 && i >= maxLen/2 {
		return strings.TrimSpace(string(window[:i])) + "..."
	}
	return strings.TrimSpace(string(window)) + "..."
}

func lastIndexOfAny(runes []rune, chars string) int {
	for i := len(runes) - 1; i >= 0; i-- {
		if strings.ContainsRune(chars, runes[i]) {
			return i
		}
	}
	return -1
}

func lastIndexOfRune(runes []rune, r rune) int {
	for i := len(runes) - 1; i >= 0; i-- {
		if runes[i] == r {
			return i
		}
	}
	return -1
}

// SmartSnippet implements §4.5's smart_snippet:
//   - <= 150 chars: original text, unchanged.
//   - > 500 chars: a head snippet + " ... " + tail snippet, ~75 chars each.
//   - otherwise: one snippet of max(30, min(30%*len, 150)) chars.
func SmartSnippet(text string) string {
	runes := []rune(text)
	n := len(runes)

	if n <= snippetMaxLength {
		return text
	}

	if n > longMessageThreshold {
		headSource := runes[:min(n, longMessageHalfLength*2)]
		tailSource := runes[max(0, n-longMessageHalfLength*2):]
		head := intelligentTruncate(string(headSource), longMessageHalfLength)
		tail := intelligentTruncate(string(tailSource), longMessageHalfLength)
		return head + " ... " + tail
	}

	target := int(float64(n) * snippetTargetPercentage)
	if target < snippetMinLength {
		target = snippetMinLength
	}
	if target > snippetMaxLength {
		target = snippetMaxLength
	}
	return intelligentTruncate(text, target)
}
