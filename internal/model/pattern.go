package model

import "strings"

// RegexFlags is a bitset abstraction over the pipe-joined flag strings used
// on disk (IGNORECASE|DOTALL|MULTILINE|ASCII|VERBOSE|UNICODE), per the design
// note preferring a bitset over re-parsing the string at every call site.
type RegexFlags uint8

const (
	FlagIgnoreCase RegexFlags = 1 << iota
	FlagDotAll
	FlagMultiline
	FlagASCII
	FlagVerbose
	FlagUnicode
)

var flagNames = []struct {
	bit  RegexFlags
	name string
}{
	{FlagIgnoreCase, "IGNORECASE"},
	{FlagDotAll, "DOTALL"},
	{FlagMultiline, "MULTILINE"},
	{FlagASCII, "ASCII"},
	{FlagVerbose, "VERBOSE"},
	{FlagUnicode, "UNICODE"},
}

// ParseRegexFlags decodes a pipe-joined flag string into a RegexFlags bitset.
// Unknown tokens are ignored.
func ParseRegexFlags(s string) RegexFlags {
	var f RegexFlags
	for _, tok := range strings.Split(s, "|") {
		tok = strings.TrimSpace(strings.ToUpper(tok))
		if tok == "" {
			continue
		}
		for _, fn := range flagNames {
			if fn.name == tok {
				f |= fn.bit
			}
		}
	}
	return f
}

// String serialises the bitset back to its pipe-joined on-disk form.
func (f RegexFlags) String() string {
	var parts []string
	for _, fn := range flagNames {
		if f&fn.bit != 0 {
			parts = append(parts, fn.name)
		}
	}
	return strings.Join(parts, "|")
}

// Has reports whether all bits in want are set.
func (f RegexFlags) Has(want RegexFlags) bool { return f&want == want }

// PatternDef is the on-disk definition of a single regex pattern (§3).
type PatternDef struct {
	ID            int    `json:"id"`
	Name          string `json:"name"`
	Regex         string `json:"regex"`
	Flags         string `json:"flags,omitempty"` // pipe-joined on disk, decoded via ParseRegexFlags
	ScreenshotURL string `json:"screenshot_url,omitempty"`
}

// ResponseDef is the on-disk definition of a canned Response with its patterns.
type ResponseDef struct {
	ResponseID int          `json:"response_id"`
	Response   string       `json:"response"`
	Name       string       `json:"name,omitempty"`
	Note       string       `json:"note,omitempty"`
	Patterns   []PatternDef `json:"patterns"`
}

// RulebookFile is the on-disk shape of patterns.json: serverID (or "default")
// to an ordered list of Responses.
type RulebookFile map[string][]ResponseDef

// DefaultServerKey is the fallback key consulted when no server-specific
// rulebook matches (§4.6).
const DefaultServerKey = "default"
