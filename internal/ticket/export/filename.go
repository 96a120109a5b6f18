package export

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

var trailingPageCount = regexp.MustCompile(`_(\d+)$`)

// BaseName strips path/extension and any trailing "_NNN" page-count
// segment, matching parse_input_filename_fuzzy's base_name extraction —
// that count reflects the source scan's page total, which an exported
// file should not propagate since it has its own page count.
func BaseName(path string) string {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return trailingPageCount.ReplaceAllString(stem, "")
}

var jobIDDatePrefix = regexp.MustCompile(`^([^_]+_[^_]+)_(.*)$`)
var trailingWMSegment = regexp.MustCompile(`(?i)^(.*)_([^_]+_WM)$`)

// insertVendor inserts vendor into base following the
// JobID_Date_material_source_destination naming convention: after the
// first two underscore-delimited segments when that shape matches, else
// before a trailing "*_WM" segment, else appended. Exact port of
// _insert_vendor.
func insertVendor(base, vendor string) string {
	if m := jobIDDatePrefix.FindStringSubmatch(base); m != nil {
		return fmt.Sprintf("%s_%s_%s", m[1], vendor, m[2])
	}
	if m := trailingWMSegment.FindStringSubmatch(base); m != nil {
		return fmt.Sprintf("%s_%s_%s", m[1], vendor, m[2])
	}
	return joinNonEmpty(base, vendor)
}

func joinNonEmpty(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "_")
}

// OutputFilename builds an exported file's name from the source path's
// base name, the vendor, the page count, and the output format extension
// ("csv", "xlsx", ...) — exact port of format_output_filename.
func OutputFilename(sourcePath, vendor string, pageCount int, outputFormat string) string {
	base := BaseName(sourcePath)
	name := insertVendor(base, strings.ToUpper(vendor))
	name = joinNonEmpty(name, strconv.Itoa(pageCount))
	return name + "." + outputFormat
}
