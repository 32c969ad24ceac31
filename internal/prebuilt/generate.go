// Package prebuilt renders the ranked prebuilt-packages reference table and
// substitutes it into the marked region of the destination page.
package prebuilt

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"git.home.luguber.info/inful/docsmith/internal/stats"
)

// absentPlaceholder is shown when no download count is available. It is never
// "0": zero is only rendered when the registry genuinely reported zero.
const absentPlaceholder = "–"

const staleFootnote = "\\* count carried over from a previous run; the registry could not be reached."

var printer = message.NewPrinter(language.English)

// Generate renders the table for packages whose ecosystem matches
// targetEcosystem. Rows are ordered by download count descending (absent
// counts last), ties broken by case-insensitive name, so output is
// deterministic for a given stats mapping.
func Generate(records []stats.Record, targetEcosystem string) string {
	rows := make([]stats.Record, 0, len(records))
	for _, rec := range records {
		if rec.Package.Ecosystem == targetEcosystem {
			rows = append(rows, rec)
		}
	}

	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		switch {
		case a.HasCount() && !b.HasCount():
			return true
		case !a.HasCount() && b.HasCount():
			return false
		case a.HasCount() && b.HasCount() && a.Count() != b.Count():
			return a.Count() > b.Count()
		}
		return strings.ToLower(a.Package.Name) < strings.ToLower(b.Package.Name)
	})

	var sb strings.Builder
	sb.WriteString("| Package | Downloads/month |\n")
	sb.WriteString("| --- | --- |\n")
	anyStale := false
	for _, rec := range rows {
		count := absentPlaceholder
		if rec.HasCount() {
			count = printer.Sprintf("%d", rec.Count())
		}
		if rec.Stale {
			count += "\\*"
			anyStale = true
		}
		fmt.Fprintf(&sb, "| [%s](%s) | %s |\n", rec.Package.Name, rec.Package.Repo, count)
	}
	if anyStale {
		sb.WriteString("\n")
		sb.WriteString(staleFootnote)
		sb.WriteString("\n")
	}
	return sb.String()
}
