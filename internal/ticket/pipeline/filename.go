// Package pipeline orchestrates the per-page flow of spec §4.9: OCR text
// in, a canonical ticket row or a review-queue entry out.
package pipeline

import (
	"path/filepath"
	"regexp"
	"strings"
)

// FilenameHints is the set of metadata components recoverable from the
// input filename convention of spec §6:
// JOB__YYYY-MM-DD__SOURCE__TYPE[__MATERIAL[__VENDOR]][__NNN].ext
// Any missing component is the empty string; a missing component is not
// an error per spec §6.
type FilenameHints struct {
	Job      string
	Date     string // YYYY-MM-DD, as written in the filename
	Source   string
	Type     string
	Material string
	Vendor   string
}

var trailingLoadCount = regexp.MustCompile(`^\d+$`)

// ParseFilename splits a file's base name (no directory, no extension) on
// the "__" convention and maps components positionally. A trailing "_NNN"
// load-count segment — legacy page-count metadata — is detected and
// stripped before mapping, per spec §6: "Trailing _NNN is a legacy page
// count and ignored for metadata."
func ParseFilename(base string) FilenameHints {
	parts := strings.Split(base, "__")
	if n := len(parts); n > 0 && trailingLoadCount.MatchString(parts[n-1]) {
		parts = parts[:n-1]
	}

	var h FilenameHints
	fields := []*string{&h.Job, &h.Date, &h.Source, &h.Type, &h.Material, &h.Vendor}
	for i, field := range fields {
		if i < len(parts) {
			*field = strings.TrimSpace(parts[i])
		}
	}
	return h
}

// ParseFilePath is ParseFilename over a full path: it strips the
// directory and extension before splitting on "__".
func ParseFilePath(path string) FilenameHints {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return ParseFilename(base)
}
