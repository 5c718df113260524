package contextformatter

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Directory resolves Discord IDs to display data for mention rewriting (§4.5
// steps discord_to_llm_readable / llm_to_discord).
type Directory struct {
	// UsernameByID and DisplayNameByID are keyed by Discord user id.
	UsernameByID    map[string]string
	DisplayNameByID map[string]string
	RoleNameByID    map[string]string

	// CreatorID, when non-empty, receives the decorated rendering in
	// llm_to_discord instead of a plain display name.
	CreatorID        string
	CreatorDecoration string
}

func (d Directory) username(id string) (string, bool) {
	if d.UsernameByID == nil {
		return "", false
	}
	u, ok := d.UsernameByID[id]
	return u, ok
}

func (d Directory) displayName(id string) (string, bool) {
	if d.DisplayNameByID != nil {
		if n, ok := d.DisplayNameByID[id]; ok && n != "" {
			return n, true
		}
	}
	return d.username(id)
}

var emoteRE = regexp.MustCompile(`<a?:\w+:\d+>`)
var userMentionRE = regexp.MustCompile(`<@!?(\d+)>`)
var roleMentionRE = regexp.MustCompile(`<@&(\d+)>`)

func protectEmotes(text string) (string, []string) {
	var emotes []string
	out := emoteRE.ReplaceAllStringFunc(text, func(m string) string {
		emotes = append(emotes, m)
		return fmt.Sprintf("\x00EMOTE%d\x00", len(emotes)-1)
	})
	return out, emotes
}

func restoreEmotes(text string, emotes []string) string {
	for i, e := range emotes {
		text = strings.ReplaceAll(text, fmt.Sprintf("\x00EMOTE%d\x00", i), e)
	}
	return text
}

var strayNumericMarkerRE = regexp.MustCompile(`\[id:\d+\]`)
var prePunctuationSpaceRE = regexp.MustCompile(`\s+([.,!?;:])`)
var multiSpaceRE = regexp.MustCompile(`[ \t]+`)

func finalCleanup(text string) string {
	text = strayNumericMarkerRE.ReplaceAllString(text, "")
	text = prePunctuationSpaceRE.ReplaceAllString(text, "$1")
	text = multiSpaceRE.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// nameEntry is one known name and the user id it resolves to.
// buildNameMatcher turns a list of them into a case-insensitive regex
// alternation of the names, longest first, wrapped with optional markdown
// decoration and word-boundary guards, matching §4.5 step 3 / step 6.
type nameEntry struct {
	name string
	id   string
}

// nfc normalises a display name to NFC before it participates in
// length comparison or matching, so a name with combining-mark characters
// (whichever form a given Discord client sent it in) compares equal to the
// same name captured elsewhere in precomposed form.
func nfc(s string) string {
	return norm.NFC.String(s)
}

func buildNameMatcher(names []nameEntry) (*regexp.Regexp, map[string]string) {
	// Only names of length >= 3 participate, per spec.
	filtered := make([]nameEntry, 0, len(names))
	for _, n := range names {
		normalised := nfc(n.name)
		if len([]rune(normalised)) >= 3 {
			filtered = append(filtered, nameEntry{name: normalised, id: n.id})
		}
	}
	sort.Slice(filtered, func(i, j int) bool {
		return len(filtered[i].name) > len(filtered[j].name)
	})

	lookup := make(map[string]string, len(filtered))
	parts := make([]string, 0, len(filtered))
	for _, n := range filtered {
		lookup[strings.ToLower(n.name)] = n.id
		parts = append(parts, regexp.QuoteMeta(n.name))
	}
	if len(parts) == 0 {
		return nil, lookup
	}
	// Groups: (1) a preceding @ or word char — if present, this occurrence is
	// already a mention or part of a longer token and must be left alone;
	// (2)/(4) markdown decoration immediately wrapping the name; (3) the
	// name itself; (5) a following word char, same boundary-guard purpose as (1).
	decor := `*_~` + "`" + `⭐`
	pattern := `(?i)([@\w]?)([` + decor + `]*)(` + strings.Join(parts, "|") + `)([` + decor + `]*)(\w?)`
	return regexp.MustCompile(pattern), lookup
}

// replaceBareNames scans text for occurrences of any known name (guarded so
// a name already part of a mention, a longer word, or another name is left
// untouched) and rewrites each with render(id, matchedName).
func replaceBareNames(text string, names []nameEntry, render func(id, matchedName string) string) string {
	matcher, lookup := buildNameMatcher(names)
	if matcher == nil {
		return text
	}
	text = nfc(text)
	return matcher.ReplaceAllStringFunc(text, func(m string) string {
		sub := matcher.FindStringSubmatch(m)
		if sub == nil {
			return m
		}
		precedingBoundary, name, followingBoundary := sub[1], sub[3], sub[5]
		if precedingBoundary != "" || followingBoundary != "" {
			return m
		}
		id, ok := lookup[strings.ToLower(name)]
		if !ok {
			return m
		}
		return render(id, name)
	})
}

// DiscordToLLMReadable implements §4.5's discord_to_llm_readable: rewrite
// Discord-native mentions/emotes into a plain-text form an LLM can reason
// about and echo back.
func DiscordToLLMReadable(content string, dir Directory) string {
	protected, emotes := protectEmotes(content)

	protected = userMentionRE.ReplaceAllStringFunc(protected, func(m string) string {
		groups := userMentionRE.FindStringSubmatch(m)
		id := groups[1]
		if name, ok := dir.username(id); ok {
			return "@" + name
		}
		return "@Unknown User"
	})

	var names []nameEntry
	for id, name := range dir.UsernameByID {
		names = append(names, nameEntry{name: name, id: id})
	}
	for id, name := range dir.DisplayNameByID {
		names = append(names, nameEntry{name: name, id: id})
	}
	protected = replaceBareNames(protected, names, func(id, matchedName string) string {
		return "@" + matchedName
	})

	protected = restoreEmotes(protected, emotes)
	return finalCleanup(protected)
}

var antiParrotPrefixRE = regexp.MustCompile(`^\[\d+\]\s*\[id:\d+\]\s*[^:]{1,60}:\s*`)
var replyingToHashRE = regexp.MustCompile(`\[Replying to #\d+\]\s*`)
var looseIndexTokenRE = regexp.MustCompile(`\[\d+\]\s*`)
var leadingUsernamePrefixRE = regexp.MustCompile(`^[^.!?]{1,60}:\s*`)

// LlmToDiscord implements §4.5's llm_to_discord: the defensive pass applied
// to every LLM output before it reaches Discord.
func LlmToDiscord(text string, dir Directory) string {
	protected, emotes := protectEmotes(text)
	protected = strings.ReplaceAll(protected, "@everyone", "everyone")
	protected = strings.ReplaceAll(protected, "@here", "here")

	protected = antiParrotPrefixRE.ReplaceAllString(protected, "")
	protected = replyingToHashRE.ReplaceAllString(protected, "")
	protected = strayNumericMarkerRE.ReplaceAllString(protected, "")
	protected = looseIndexTokenRE.ReplaceAllString(protected, "")
	protected = leadingUsernamePrefixRE.ReplaceAllString(protected, "")

	protected = userMentionRE.ReplaceAllStringFunc(protected, func(m string) string {
		groups := userMentionRE.FindStringSubmatch(m)
		id := groups[1]
		if dir.CreatorID != "" && id == dir.CreatorID {
			return dir.CreatorDecoration
		}
		if name, ok := dir.displayName(id); ok {
			return name
		}
		return "Unknown User"
	})

	protected = roleMentionRE.ReplaceAllStringFunc(protected, func(m string) string {
		groups := roleMentionRE.FindStringSubmatch(m)
		id := groups[1]
		if name, ok := dir.RoleNameByID[id]; ok {
			return "`@" + name + "`"
		}
		return m
	})

	var names []nameEntry
	for id, name := range dir.UsernameByID {
		names = append(names, nameEntry{name: name, id: id})
	}
	for id, name := range dir.DisplayNameByID {
		names = append(names, nameEntry{name: name, id: id})
	}
	protected = replaceBareNames(protected, names, func(id, matchedName string) string {
		if dir.CreatorID != "" && id == dir.CreatorID {
			return dir.CreatorDecoration
		}
		if name, ok := dir.displayName(id); ok {
			return name
		}
		return matchedName
	})

	protected = restoreEmotes(protected, emotes)

	// Final pass: neutralise any surviving raw mention tokens.
	protected = userMentionRE.ReplaceAllString(protected, "`$0`")
	protected = roleMentionRE.ReplaceAllString(protected, "`$0`")

	return finalCleanup(protected)
}
