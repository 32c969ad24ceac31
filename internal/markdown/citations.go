// Package markdown analyzes and rewrites Markdown for the sync post-process.
//
// Externally authored docs use reference-style citations ([text][ref]) whose
// targets only resolve inside the origin repository; they are stripped before
// the docs are installed locally.
package markdown

import (
	"regexp"
	"sort"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
)

// citationPattern matches inline reference-style citations: [text][ref].
// Deliberately blunt, matching the origin repository's own rewrite rule;
// single-bracket literal text is never touched.
var citationPattern = regexp.MustCompile(`\[[^\]\[]*\]\[[^\]\[]*\]`)

// StripResult reports what a strip pass removed.
type StripResult struct {
	Citations   int
	Definitions int
}

// Changed reports whether the pass removed anything.
func (r StripResult) Changed() bool { return r.Citations > 0 || r.Definitions > 0 }

// StripCitations removes reference-style citations and their definition lines
// from a Markdown body. Surrounding text is preserved byte for byte.
func StripCitations(body []byte) ([]byte, StripResult) {
	var res StripResult

	out := citationPattern.ReplaceAllFunc(body, func([]byte) []byte {
		res.Citations++
		return nil
	})

	for _, label := range ReferenceLabels(body) {
		// CommonMark allows up to three leading spaces and case-insensitive labels.
		defPattern, err := regexp.Compile(`(?im)^ {0,3}\[` + regexp.QuoteMeta(label) + `\]:[^\n]*\n?`)
		if err != nil {
			continue
		}
		out = defPattern.ReplaceAllFunc(out, func([]byte) []byte {
			res.Definitions++
			return nil
		})
	}

	return out, res
}

// ReferenceLabels parses the body and returns the labels of all link
// reference definitions, sorted for determinism. Goldmark stores definitions
// in the parse context rather than the AST.
func ReferenceLabels(body []byte) []string {
	md := goldmark.New()
	ctx := parser.NewContext()
	md.Parser().Parse(text.NewReader(body), parser.WithContext(ctx))

	refs := ctx.References()
	labels := make([]string, 0, len(refs))
	for _, ref := range refs {
		labels = append(labels, string(ref.Label()))
	}
	sort.Strings(labels)
	return labels
}
