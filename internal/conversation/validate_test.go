package conversation

import (
	"testing"

	"github.com/nextlevelbuilder/discordctx/internal/model"
)

func TestIsValidContextMessage(t *testing.T) {
	cases := []struct {
		name string
		msg  model.ConversationMessage
		want bool
	}{
		{"empty content no attachments", model.ConversationMessage{Content: ""}, false},
		{"empty content with attachment", model.ConversationMessage{Content: "", AttachmentURLs: []string{"http://x/a.png"}}, true},
		{"plain text", model.ConversationMessage{Content: "hello there"}, true},
		{"only mention no residue", model.ConversationMessage{Content: "<@12345>"}, true},
		{"only emote no residue", model.ConversationMessage{Content: "<:pepe:9999>"}, true},
		{"punctuation only residue no mentions", model.ConversationMessage{Content: "..."}, false},
		{"command prefix bang", model.ConversationMessage{Content: "!help me"}, false},
		{"command prefix leading space", model.ConversationMessage{Content: "  !help"}, false},
		{"tool prefix", model.ConversationMessage{Content: "p!roll 1d20"}, false},
		{"tool prefix ocr", model.ConversationMessage{Content: "ocr!translate"}, false},
		{"not a tool prefix too long", model.ConversationMessage{Content: "abcdef!notatool"}, true},
		{"mixed mention and text", model.ConversationMessage{Content: "<@123> hey check this out"}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := IsValidContextMessage(tc.msg)
			if got != tc.want {
				t.Fatalf("IsValidContextMessage(%q) = %v, want %v", tc.msg.Content, got, tc.want)
			}
		})
	}
}

func TestIsValidContextMessageTrace_StopsAtFirstRejection(t *testing.T) {
	_, trace := IsValidContextMessageTrace(model.ConversationMessage{Content: "!ban someone"})
	if len(trace) != 3 {
		t.Fatalf("expected trace to stop after the command_prefix rule fires, got %d steps: %+v", len(trace), trace)
	}
	last := trace[len(trace)-1]
	if last.Rule != "command_prefix" || !last.Reject {
		t.Fatalf("expected final step to be a command_prefix rejection, got %+v", last)
	}
}
