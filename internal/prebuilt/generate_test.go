package prebuilt

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/docsmith/internal/catalog"
	"git.home.luguber.info/inful/docsmith/internal/stats"
)

func record(name, ecosystem string, count *int64, stale bool) stats.Record {
	return stats.Record{
		Package: catalog.Package{
			Name:      name,
			Ecosystem: ecosystem,
			Registry:  "pypi:" + name,
			Repo:      "https://example.test/" + name,
		},
		Downloads: count,
		AsOf:      time.Now().UTC(),
		Stale:     stale,
	}
}

func n(v int64) *int64 { return &v }

func tableRows(t *testing.T, page string) []string {
	t.Helper()
	var rows []string
	for _, line := range strings.Split(page, "\n") {
		if strings.HasPrefix(line, "| [") {
			rows = append(rows, line)
		}
	}
	return rows
}

func TestGenerateFiltersByEcosystem(t *testing.T) {
	recs := []stats.Record{
		record("py-pkg", "Python", n(10), false),
		record("rs-pkg", "Rust", n(1000), false),
	}
	page := Generate(recs, "Python")
	assert.Contains(t, page, "py-pkg")
	assert.NotContains(t, page, "rs-pkg")
}

func TestGenerateListsEachPackageExactlyOnce(t *testing.T) {
	recs := []stats.Record{
		record("a", "Python", n(1), false),
		record("b", "Python", n(2), false),
		record("c", "Python", nil, false),
	}
	page := Generate(recs, "Python")
	for _, name := range []string{"a", "b", "c"} {
		assert.Equal(t, 1, strings.Count(page, "| ["+name+"]("), "package %s must appear exactly once", name)
	}
}

func TestGenerateOrdering(t *testing.T) {
	// {A:50, B:50, C:10} -> A, B, C: descending count, ties alphabetical.
	recs := []stats.Record{
		record("B", "Python", n(50), false),
		record("C", "Python", n(10), false),
		record("A", "Python", n(50), false),
	}
	rows := tableRows(t, Generate(recs, "Python"))
	require.Len(t, rows, 3)
	assert.Contains(t, rows[0], "[A]")
	assert.Contains(t, rows[1], "[B]")
	assert.Contains(t, rows[2], "[C]")
}

func TestGenerateAbsentCountsSortLast(t *testing.T) {
	recs := []stats.Record{
		record("aardvark", "Python", nil, false),
		record("zebra", "Python", n(1), false),
	}
	rows := tableRows(t, Generate(recs, "Python"))
	require.Len(t, rows, 2)
	assert.Contains(t, rows[0], "[zebra]", "numeric counts sort before absent regardless of name")
	assert.Contains(t, rows[1], "[aardvark]")
	assert.Contains(t, rows[1], absentPlaceholder)
}

func TestGenerateTieBreakIsCaseInsensitive(t *testing.T) {
	recs := []stats.Record{
		record("beta", "Python", n(5), false),
		record("Alpha", "Python", n(5), false),
	}
	rows := tableRows(t, Generate(recs, "Python"))
	require.Len(t, rows, 2)
	assert.Contains(t, rows[0], "[Alpha]")
}

func TestGenerateCountFormatting(t *testing.T) {
	page := Generate([]stats.Record{record("big", "Python", n(1234567), false)}, "Python")
	assert.Contains(t, page, "1,234,567")
}

func TestGenerateZeroIsRenderedAsZero(t *testing.T) {
	page := Generate([]stats.Record{record("dormant", "Python", n(0), false)}, "Python")
	assert.Contains(t, page, "| 0 |")
}

func TestGenerateAbsentIsNeverZero(t *testing.T) {
	page := Generate([]stats.Record{record("unknown", "Python", nil, false)}, "Python")
	assert.NotContains(t, page, "| 0 |")
	assert.Contains(t, page, absentPlaceholder)
}

func TestGenerateStaleMarkerAndFootnote(t *testing.T) {
	page := Generate([]stats.Record{
		record("stale-pkg", "Python", n(120), true),
		record("fresh-pkg", "Python", n(10), false),
	}, "Python")
	assert.Contains(t, page, "120\\*")
	assert.Contains(t, page, staleFootnote)

	fresh := Generate([]stats.Record{record("fresh-pkg", "Python", n(10), false)}, "Python")
	assert.NotContains(t, fresh, staleFootnote)
}

func TestGenerateLinksNameToRepo(t *testing.T) {
	page := Generate([]stats.Record{record("linked", "Python", n(3), false)}, "Python")
	assert.Contains(t, page, "[linked](https://example.test/linked)")
}
