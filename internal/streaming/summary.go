package streaming

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// ExtractSummaries walks reasoning markdown for bold "header" lines such as
// "**Exploring the config schema**" (§4.9 step 5b's "summaries" list used by
// the thinking-only placeholder update). Grounded on nevindra-oasis's
// goldmark AST-walk renderer rather than a hand-rolled regex, since an AST
// walk correctly ignores bold spans that are only part of a longer sentence.
func ExtractSummaries(reasoning string) []string {
	if strings.TrimSpace(reasoning) == "" {
		return nil
	}

	source := []byte(reasoning)
	md := goldmark.New()
	root := md.Parser().Parse(text.NewReader(source))

	var summaries []string
	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		para, ok := n.(*ast.Paragraph)
		if !ok {
			return ast.WalkContinue, nil
		}
		if para.ChildCount() != 1 {
			return ast.WalkContinue, nil
		}
		emph, ok := para.FirstChild().(*ast.Emphasis)
		if !ok || emph.Level != 2 {
			return ast.WalkContinue, nil
		}
		heading := extractText(emph, source)
		heading = strings.TrimSpace(heading)
		if heading != "" {
			summaries = append(summaries, heading)
		}
		return ast.WalkContinue, nil
	})
	return summaries
}

// LatestSummary returns the most recently observed summary, or "" if none.
func LatestSummary(summaries []string) string {
	if len(summaries) == 0 {
		return ""
	}
	return summaries[len(summaries)-1]
}

func extractText(n ast.Node, source []byte) string {
	var b strings.Builder
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch t := c.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(source))
		default:
			b.WriteString(extractText(c, source))
		}
	}
	return b.String()
}
