package conversation

import (
	"regexp"
	"strings"

	"github.com/nextlevelbuilder/discordctx/internal/model"
)

// mentionOrEmoteRE strips user mentions (<@id>, <@!id>) and custom emotes
// (<:name:id>, <a:name:id>) so the validity gate can judge the text residue
// on its own (§4.3 step 2).
var mentionOrEmoteRE = regexp.MustCompile(`<@!?\d+>|<a?:\w+:\d+>`)

// alnumRE finds any alphanumeric rune in the residue.
var alnumRE = regexp.MustCompile(`[A-Za-z0-9]`)

// commandPrefixes are the leading characters that mark a message as a bot
// command rather than conversation (§4.3 step 3).
const commandPrefixes = "!/$?.-+><=~`"

// toolPrefixRE matches a short alphanumeric tool invocation prefix like
// "p!" or "ocr!" (§4.3 step 4).
var toolPrefixRE = regexp.MustCompile(`^[A-Za-z0-9]{1,5}!`)

// TraceStep records one validity-gate decision for the diagnostic command.
type TraceStep struct {
	Rule   string
	Reject bool
	Detail string
}

// IsValidContextMessage applies the §4.3 validity gate.
func IsValidContextMessage(msg model.ConversationMessage) bool {
	ok, _ := IsValidContextMessageTrace(msg)
	return ok
}

// IsValidContextMessageTrace applies the gate and also returns a step-by-step
// trace, used by the diagnostic command.
func IsValidContextMessageTrace(msg model.ConversationMessage) (bool, []TraceStep) {
	var trace []TraceStep

	hasAttachments := len(msg.AttachmentURLs) > 0
	if msg.Content == "" && !hasAttachments {
		trace = append(trace, TraceStep{Rule: "empty_content_and_no_attachments", Reject: true})
		return false, trace
	}
	trace = append(trace, TraceStep{Rule: "empty_content_and_no_attachments", Reject: false})

	hadMentionsOrEmotes := mentionOrEmoteRE.MatchString(msg.Content)
	residue := mentionOrEmoteRE.ReplaceAllString(msg.Content, "")
	if !alnumRE.MatchString(residue) && !hadMentionsOrEmotes && !hasAttachments {
		trace = append(trace, TraceStep{Rule: "no_alphanumeric_residue", Reject: true})
		return false, trace
	}
	trace = append(trace, TraceStep{Rule: "no_alphanumeric_residue", Reject: false})

	trimmed := strings.TrimLeft(residue, " \t\n")
	if trimmed != "" && strings.ContainsRune(commandPrefixes, rune(trimmed[0])) {
		trace = append(trace, TraceStep{Rule: "command_prefix", Reject: true, Detail: string(trimmed[0])})
		return false, trace
	}
	trace = append(trace, TraceStep{Rule: "command_prefix", Reject: false})

	if toolPrefixRE.MatchString(trimmed) {
		trace = append(trace, TraceStep{Rule: "tool_prefix", Reject: true})
		return false, trace
	}
	trace = append(trace, TraceStep{Rule: "tool_prefix", Reject: false})

	return true, trace
}
