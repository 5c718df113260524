// Package patterns implements the PatternMatcher described in spec §4.6: an
// in-memory index of compiled server-scoped regex rulebooks, hot-reloaded
// from patterns.json.
//
// Grounded on _examples/original_source/core/pattern_manager.py's
// load_patterns/save_patterns/match_patterns (flag parsing, the
// drop-responses-with-no-valid-patterns rule, server-then-"default" fallback)
// and on the teacher's internal/sessions.Manager for the load-mutate-save
// idiom under a single mutex (vanducng-goclaw).
package patterns

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/nextlevelbuilder/discordctx/internal/model"
	"github.com/nextlevelbuilder/discordctx/internal/paths"
	"github.com/nextlevelbuilder/discordctx/internal/storage"
)

// CompiledPattern pairs a pattern definition with its compiled regex.
type CompiledPattern struct {
	Def   model.PatternDef
	Regex *regexp.Regexp
}

// CompiledResponse pairs a response definition with its successfully
// compiled patterns. A response with zero compiled patterns is dropped
// entirely at load time (§4.6).
type CompiledResponse struct {
	Def      model.ResponseDef
	Patterns []CompiledPattern
}

// Matcher is the PatternMatcher (§4.6): {serverID -> []CompiledResponse},
// with "default" as the fallback rulebook.
type Matcher struct {
	store  *storage.Store
	layout paths.Layout

	mu       sync.RWMutex
	rulebook map[string][]CompiledResponse
}

// New creates an empty Matcher backed by store/layout. Call Load to populate it.
func New(store *storage.Store, layout paths.Layout) *Matcher {
	return &Matcher{store: store, layout: layout, rulebook: make(map[string][]CompiledResponse)}
}

// Load reads patterns.json and (re)compiles the entire rulebook, replacing
// any previously loaded state in one swap — never a partial merge, so a
// hot-reload never leaves a server half-updated (§4.6, SPEC_FULL.md hot-reload note).
func (m *Matcher) Load() error {
	var file model.RulebookFile
	if _, err := m.store.Read(m.layout.Patterns(), &file); err != nil {
		return fmt.Errorf("patterns: read rulebook: %w", err)
	}

	compiled := make(map[string][]CompiledResponse, len(file))
	for serverID, responses := range file {
		compiled[serverID] = compileResponses(serverID, responses)
	}

	m.mu.Lock()
	m.rulebook = compiled
	m.mu.Unlock()

	slog.Info("patterns: loaded rulebook", "servers", len(compiled))
	return nil
}

func compileResponses(serverID string, responses []model.ResponseDef) []CompiledResponse {
	out := make([]CompiledResponse, 0, len(responses))
	for _, resp := range responses {
		cr := CompiledResponse{Def: resp}
		for _, pd := range resp.Patterns {
			re, err := compilePattern(pd)
			if err != nil {
				slog.Error("patterns: failed to compile pattern", "server_id", serverID, "response_id", resp.ResponseID, "pattern_name", pd.Name, "error", err)
				continue
			}
			cr.Patterns = append(cr.Patterns, CompiledPattern{Def: pd, Regex: re})
		}
		if len(cr.Patterns) > 0 {
			out = append(out, cr)
		}
	}
	return out
}

// compilePattern translates the pipe-joined flag string into Go regexp
// inline flags and compiles the pattern. ASCII is a no-op: Go's \w/\d/\s
// are already ASCII-only by default, matching Python's ASCII-flag behaviour.
// UNICODE is likewise a no-op: literal pattern characters already match the
// full Unicode range in RE2. VERBOSE has no native Go equivalent, so it is
// emulated by stripping unescaped whitespace and '#'-comments before compiling.
func compilePattern(pd model.PatternDef) (*regexp.Regexp, error) {
	flags := model.ParseRegexFlags(pd.Flags)
	pattern := pd.Regex
	if flags.Has(model.FlagVerbose) {
		pattern = stripVerbose(pattern)
	}

	var inline string
	if flags.Has(model.FlagIgnoreCase) {
		inline += "i"
	}
	if flags.Has(model.FlagDotAll) {
		inline += "s"
	}
	if flags.Has(model.FlagMultiline) {
		inline += "m"
	}
	if inline != "" {
		pattern = "(?" + inline + ")" + pattern
	}

	return regexp.Compile(pattern)
}

// stripVerbose emulates re.VERBOSE: whitespace outside a character class is
// insignificant and a '#' outside a character class (and not escaped)
// starts a comment running to end of line.
func stripVerbose(pattern string) string {
	var b strings.Builder
	inClass := false
	escaped := false
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		if escaped {
			b.WriteByte(c)
			escaped = false
			continue
		}
		switch c {
		case '\\':
			b.WriteByte(c)
			escaped = true
		case '[':
			inClass = true
			b.WriteByte(c)
		case ']':
			inClass = false
			b.WriteByte(c)
		case '#':
			if inClass {
				b.WriteByte(c)
				continue
			}
			for i < len(pattern) && pattern[i] != '\n' {
				i++
			}
		case ' ', '\t', '\n', '\r':
			if inClass {
				b.WriteByte(c)
			}
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// Match implements §4.6's match: try serverID's rulebook first, falling
// back to "default"; return the first Response whose any Pattern matches,
// respecting definition order within each rulebook.
func (m *Matcher) Match(serverID, text string) (model.ResponseDef, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, key := range []string{serverID, model.DefaultServerKey} {
		responses, ok := m.rulebook[key]
		if !ok {
			continue
		}
		for _, cr := range responses {
			for _, cp := range cr.Patterns {
				if cp.Regex.MatchString(text) {
					return cr.Def, true
				}
			}
		}
		if key == serverID && ok {
			// A server-specific rulebook exists but matched nothing; per spec
			// we still fall through to "default" rather than stopping here.
			continue
		}
	}
	return model.ResponseDef{}, false
}

// ServerResponses returns the effective rulebook for serverID, falling back
// to "default" if the server has no rulebook of its own.
func (m *Matcher) ServerResponses(serverID string) []model.ResponseDef {
	m.mu.RLock()
	defer m.mu.RUnlock()

	key := serverID
	if _, ok := m.rulebook[serverID]; !ok {
		key = model.DefaultServerKey
	}
	responses := m.rulebook[key]
	out := make([]model.ResponseDef, len(responses))
	for i, cr := range responses {
		out[i] = cr.Def
	}
	return out
}

// FindResponse locates a response by numeric id or by case-insensitive name
// within serverID's own rulebook (no "default" fallback — this is a mutation
// lookup, not a match lookup).
func (m *Matcher) FindResponse(serverID, idOrName string) (model.ResponseDef, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	responses := m.rulebook[serverID]
	var id int
	_, err := fmt.Sscanf(idOrName, "%d", &id)
	if err == nil {
		for _, cr := range responses {
			if cr.Def.ResponseID == id {
				return cr.Def, true
			}
		}
	}
	lower := strings.ToLower(idOrName)
	for _, cr := range responses {
		if strings.ToLower(cr.Def.Name) == lower {
			return cr.Def, true
		}
	}
	return model.ResponseDef{}, false
}

// NextResponseID returns the next available response id for serverID.
func (m *Matcher) NextResponseID(serverID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	max := 0
	for _, cr := range m.rulebook[serverID] {
		if cr.Def.ResponseID > max {
			max = cr.Def.ResponseID
		}
	}
	return max + 1
}

// AddResponse appends a new response to serverID's rulebook and persists it.
func (m *Matcher) AddResponse(serverID string, resp model.ResponseDef) error {
	m.mu.Lock()
	m.rulebook[serverID] = append(m.rulebook[serverID], compileResponses(serverID, []model.ResponseDef{resp})...)
	m.mu.Unlock()
	return m.Save()
}

// RemoveResponse removes a response by id from serverID's rulebook.
func (m *Matcher) RemoveResponse(serverID string, responseID int) (bool, error) {
	m.mu.Lock()
	responses := m.rulebook[serverID]
	out := responses[:0]
	removed := false
	for _, cr := range responses {
		if cr.Def.ResponseID == responseID {
			removed = true
			continue
		}
		out = append(out, cr)
	}
	m.rulebook[serverID] = out
	m.mu.Unlock()
	if !removed {
		return false, nil
	}
	return true, m.Save()
}

// AddPattern appends a new pattern to an existing response, recompiling it.
func (m *Matcher) AddPattern(serverID string, responseID int, pd model.PatternDef) (bool, error) {
	re, err := compilePattern(pd)
	if err != nil {
		return false, fmt.Errorf("patterns: compile new pattern: %w", err)
	}

	m.mu.Lock()
	found := false
	for i, cr := range m.rulebook[serverID] {
		if cr.Def.ResponseID == responseID {
			cr.Def.Patterns = append(cr.Def.Patterns, pd)
			cr.Patterns = append(cr.Patterns, CompiledPattern{Def: pd, Regex: re})
			m.rulebook[serverID][i] = cr
			found = true
			break
		}
	}
	m.mu.Unlock()
	if !found {
		return false, nil
	}
	return true, m.Save()
}

// RemovePattern removes a pattern by id from a response; if the response is
// left with no patterns, it is dropped entirely (§4.6 load-time rule applied
// symmetrically on mutation).
func (m *Matcher) RemovePattern(serverID string, responseID, patternID int) (bool, error) {
	m.mu.Lock()
	found := false
	responses := m.rulebook[serverID]
	out := responses[:0]
	for _, cr := range responses {
		if cr.Def.ResponseID == responseID {
			keptDefs := cr.Def.Patterns[:0]
			keptCompiled := cr.Patterns[:0]
			for i, pd := range cr.Def.Patterns {
				if pd.ID == patternID {
					found = true
					continue
				}
				keptDefs = append(keptDefs, pd)
				keptCompiled = append(keptCompiled, cr.Patterns[i])
			}
			cr.Def.Patterns = keptDefs
			cr.Patterns = keptCompiled
			if len(cr.Patterns) == 0 {
				continue // drop response with no remaining patterns
			}
		}
		out = append(out, cr)
	}
	m.rulebook[serverID] = out
	m.mu.Unlock()
	if !found {
		return false, nil
	}
	return true, m.Save()
}

// NextPatternID returns the next available pattern id within a response.
func (m *Matcher) NextPatternID(serverID string, responseID int) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	max := 0
	for _, cr := range m.rulebook[serverID] {
		if cr.Def.ResponseID != responseID {
			continue
		}
		for _, pd := range cr.Def.Patterns {
			if pd.ID > max {
				max = pd.ID
			}
		}
	}
	return max + 1
}

// Save serialises the in-memory rulebook back to patterns.json, with flags
// re-joined in pipe-separated form (§4.6 mutation-ops note).
func (m *Matcher) Save() error {
	m.mu.RLock()
	file := make(model.RulebookFile, len(m.rulebook))
	serverIDs := make([]string, 0, len(m.rulebook))
	for serverID := range m.rulebook {
		serverIDs = append(serverIDs, serverID)
	}
	sort.Strings(serverIDs)
	for _, serverID := range serverIDs {
		responses := m.rulebook[serverID]
		defs := make([]model.ResponseDef, len(responses))
		for i, cr := range responses {
			defs[i] = cr.Def
		}
		file[serverID] = defs
	}
	m.mu.RUnlock()

	if err := m.store.Write(m.layout.Patterns(), file); err != nil {
		return fmt.Errorf("patterns: save rulebook: %w", err)
	}
	return nil
}
