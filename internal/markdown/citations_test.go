package markdown

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripInlineCitation(t *testing.T) {
	out, res := StripCitations([]byte("See [docs][ref1] for more."))
	assert.Equal(t, "See  for more.", string(out))
	assert.Equal(t, 1, res.Citations)
	assert.True(t, res.Changed())
}

func TestStripMultipleCitations(t *testing.T) {
	in := "Both [a][x] and [b][y] are cited."
	out, res := StripCitations([]byte(in))
	assert.Equal(t, "Both  and  are cited.", string(out))
	assert.Equal(t, 2, res.Citations)
}

func TestLiteralBracketsPreserved(t *testing.T) {
	in := "Array access a[0] and [single brackets] survive."
	out, res := StripCitations([]byte(in))
	assert.Equal(t, in, string(out))
	assert.False(t, res.Changed())
}

func TestInlineLinksPreserved(t *testing.T) {
	in := "An [inline link](https://example.test) stays."
	out, _ := StripCitations([]byte(in))
	assert.Equal(t, in, string(out))
}

func TestDefinitionLinesRemoved(t *testing.T) {
	in := "Read [the guide][guide].\n\n[guide]: https://origin.example/guide.md\n"
	out, res := StripCitations([]byte(in))
	assert.Equal(t, "Read .\n\n", string(out))
	assert.Equal(t, 1, res.Citations)
	assert.Equal(t, 1, res.Definitions)
}

func TestDefinitionLabelCaseInsensitive(t *testing.T) {
	in := "See [x][Guide].\n\n[guide]: https://origin.example/guide.md\n"
	out, res := StripCitations([]byte(in))
	assert.NotContains(t, string(out), "origin.example")
	assert.Equal(t, 1, res.Definitions)
}

func TestReferenceLabels(t *testing.T) {
	body := []byte("[b]: https://example.test/b\n[a]: https://example.test/a\n")
	labels := ReferenceLabels(body)
	require.Len(t, labels, 2)
	assert.Equal(t, []string{"a", "b"}, labels, "labels are sorted for determinism")
}

func TestStripIsIdempotent(t *testing.T) {
	in := []byte("See [docs][ref1] for more.\n\n[ref1]: https://origin.example/doc\n")
	once, _ := StripCitations(in)
	twice, res := StripCitations(once)
	assert.Equal(t, string(once), string(twice))
	assert.False(t, res.Changed())
}
