// Package record maps manifest entries onto the transport records sent to the
// remote importer.
package record

import (
	"strings"

	"github.com/BadgerOps/pimsync/internal/manifest"
)

// DefaultSeparator is the path separator used by the remote importer host.
const DefaultSeparator = `\`

// Record is one resource in an ImportResources request. The JSON layout is
// part of the wire contract and must stay stable.
type Record struct {
	Action             string      `json:"action"`
	ResourceID         int         `json:"resourceId"`
	EntityCodes        []string    `json:"codes"`
	ParentAssociations []EntryCode `json:"entryCodes"`
	Path               string      `json:"path"`
	MetaFields         []MetaField `json:"metaFields"`
}

// EntryCode is a parent association with its sort order.
type EntryCode struct {
	Code      string `json:"code"`
	SortOrder int    `json:"sortOrder"`
}

// MetaField is a flattened metadata field.
type MetaField struct {
	ID     string  `json:"id"`
	Values []Value `json:"values"`
}

// Value is a single-language field value.
type Value struct {
	Language string `json:"languageCode"`
	Data     string `json:"data"`
}

// Builder converts manifest entries into records.
type Builder struct {
	separator string
}

// NewBuilder returns a Builder that rewrites manifest paths with separator.
// An empty separator selects DefaultSeparator.
func NewBuilder(separator string) *Builder {
	if separator == "" {
		separator = DefaultSeparator
	}
	return &Builder{separator: separator}
}

// Build converts a single entry.
func (b *Builder) Build(e manifest.Entry) Record {
	rec := Record{
		Action:             string(e.Action),
		ResourceID:         e.ID,
		EntityCodes:        []string{},
		ParentAssociations: []EntryCode{},
		MetaFields:         []MetaField{},
	}

	for _, a := range e.ParentAssociations {
		if a.EntityCode == "" {
			continue
		}
		rec.EntityCodes = append(rec.EntityCodes, a.EntityCode)
		rec.ParentAssociations = append(rec.ParentAssociations, EntryCode{Code: a.EntityCode, SortOrder: a.SortOrder})
	}

	if e.Action == manifest.ActionDeleted {
		return rec
	}

	rec.Path = b.NormalizePath(e.FilePath)
	for _, f := range e.MetadataFields {
		rec.MetaFields = append(rec.MetaFields, flattenField(f))
	}
	return rec
}

// BuildAll converts every entry of m, preserving manifest order.
func (b *Builder) BuildAll(m *manifest.Manifest) []Record {
	if m == nil {
		return nil
	}
	out := make([]Record, 0, len(m.Entries))
	for _, e := range m.Entries {
		out = append(out, b.Build(e))
	}
	return out
}

// NormalizePath strips the leading "." marker the export writes in front of
// every path and swaps forward slashes for the importer's separator.
func (b *Builder) NormalizePath(p string) string {
	if p == "" {
		return ""
	}
	p = strings.TrimPrefix(p, ".")
	return strings.ReplaceAll(p, "/", b.separator)
}

func flattenField(f manifest.MetaField) MetaField {
	out := MetaField{ID: f.ID, Values: make([]Value, 0, len(f.Values))}
	for _, v := range f.Values {
		out.Values = append(out.Values, Value{Language: v.Language, Data: flattenValue(v)})
	}
	return out
}

// flattenValue joins multi-item values with ";" and drops trailing separators.
func flattenValue(v manifest.LocalizedValue) string {
	if len(v.Items) == 0 {
		return v.Value
	}
	return strings.TrimRight(strings.Join(v.Items, ";"), ";")
}
