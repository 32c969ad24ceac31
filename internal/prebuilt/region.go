package prebuilt

import (
	"os"
	"strings"

	apperrors "git.home.luguber.info/inful/docsmith/internal/errors"
	"git.home.luguber.info/inful/docsmith/internal/fsutil"
)

// ReplaceRegion substitutes the generated content between the begin/end
// marker lines of the destination page, leaving everything outside the
// bounded region untouched. The marker lines themselves are preserved.
// Missing or misordered markers fail rather than appending or truncating.
func ReplaceRegion(path, beginMarker, endMarker, generated string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CategoryTemplate, apperrors.SeverityFatal, "destination page unreadable").
			WithContext("path", path)
	}
	content := string(raw)

	regionStart, regionEnd, ok := findMarkedRegion(content, beginMarker, endMarker)
	if !ok {
		return apperrors.TemplateMarkersNotFound(path, beginMarker, endMarker)
	}

	body := generated
	if body != "" && !strings.HasSuffix(body, "\n") {
		body += "\n"
	}
	updated := content[:regionStart] + body + content[regionEnd:]

	if err := fsutil.WriteFileAtomic(path, []byte(updated), 0o644); err != nil {
		return apperrors.FileWriteError(path, err)
	}
	return nil
}

// findMarkedRegion locates the bounded region: regionStart is the offset just
// past the begin-marker line, regionEnd the offset of the end-marker line
// start. Markers match whole lines only, so markers embedded mid-line do not
// count; the end marker must follow the begin marker.
func findMarkedRegion(content, beginMarker, endMarker string) (regionStart, regionEnd int, ok bool) {
	regionStart, regionEnd = -1, -1
	offset := 0
	for _, line := range strings.SplitAfter(content, "\n") {
		trimmed := strings.TrimRight(line, "\r\n")
		switch {
		case regionStart < 0 && trimmed == beginMarker:
			regionStart = offset + len(line)
		case regionStart >= 0 && regionEnd < 0 && trimmed == endMarker:
			regionEnd = offset
		}
		offset += len(line)
	}
	if regionStart < 0 || regionEnd < 0 {
		return 0, 0, false
	}
	return regionStart, regionEnd, true
}
