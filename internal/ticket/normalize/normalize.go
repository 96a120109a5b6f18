// Package normalize maps free-text surface forms extracted from OCR text
// to canonical vendor/material/source/destination identifiers using a
// static, YAML-loaded synonym dictionary.
package normalize

import (
	"log/slog"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Category is one of the four synonym dictionary sections.
type Category string

const (
	CategoryVendors      Category = "vendors"
	CategoryMaterials    Category = "materials"
	CategorySources      Category = "sources"
	CategoryDestinations Category = "destinations"
)

// Dictionary is the {category: {surface: canonical}} synonym map.
type Dictionary map[Category]map[string]string

// Normalizer maps free text to canonical identifiers. The zero value is
// usable and behaves as if every category map were empty.
type Normalizer struct {
	dict Dictionary
	log  *slog.Logger
}

// New returns a Normalizer over dict. A nil dict is treated as empty.
func New(dict Dictionary, log *slog.Logger) *Normalizer {
	if log == nil {
		log = slog.Default()
	}
	if dict == nil {
		dict = Dictionary{}
	}
	return &Normalizer{dict: dict, log: log}
}

// Load reads a synonym dictionary from a YAML file. If the file is missing
// or malformed, Load logs the failure and returns a Normalizer backed by an
// empty dictionary — per spec §4.2's failure mode, downstream consumers
// must tolerate unmapped values rather than the pipeline erroring out.
func Load(path string, log *slog.Logger) *Normalizer {
	if log == nil {
		log = slog.Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		log.Warn("synonym dictionary unavailable, normalizing as passthrough", "path", path, "error", err)
		return New(nil, log)
	}
	var dict Dictionary
	if err := yaml.Unmarshal(data, &dict); err != nil {
		log.Warn("synonym dictionary malformed, normalizing as passthrough", "path", path, "error", err)
		return New(nil, log)
	}
	return New(dict, log)
}

// Normalize maps surface to its canonical identifier within category,
// following the resolution order of spec §4.2:
//  1. trim whitespace
//  2. case-insensitive exact match
//  3. for vendors only, bidirectional substring match after lower-casing
//  4. otherwise return the trimmed input unchanged
func (n *Normalizer) Normalize(category Category, surface string) string {
	trimmed := strings.TrimSpace(surface)
	if trimmed == "" {
		return trimmed
	}

	table := n.dict[category]
	keys := make([]string, 0, len(table))
	for key := range table {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	lowerTrimmed := strings.ToLower(trimmed)
	for _, key := range keys {
		if strings.ToLower(key) == lowerTrimmed {
			return table[key]
		}
	}

	if category == CategoryVendors {
		for _, key := range keys {
			lowerKey := strings.ToLower(key)
			if strings.Contains(lowerTrimmed, lowerKey) || strings.Contains(lowerKey, lowerTrimmed) {
				return table[key]
			}
		}
	}

	return trimmed
}

// Vendor normalizes a vendor surface form.
func (n *Normalizer) Vendor(surface string) string { return n.Normalize(CategoryVendors, surface) }

// Material normalizes a material surface form.
func (n *Normalizer) Material(surface string) string { return n.Normalize(CategoryMaterials, surface) }

// Source normalizes a source surface form.
func (n *Normalizer) Source(surface string) string { return n.Normalize(CategorySources, surface) }

// Destination normalizes a destination surface form.
func (n *Normalizer) Destination(surface string) string {
	return n.Normalize(CategoryDestinations, surface)
}
