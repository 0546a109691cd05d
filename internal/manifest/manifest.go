// Package manifest decodes the resource manifest produced by the PIM export.
package manifest

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// Action describes what happened to a resource upstream.
type Action string

const (
	ActionAdded    Action = "added"
	ActionEdited   Action = "edited"
	ActionDeleted  Action = "deleted"
	ActionUnlinked Action = "unlinked"
)

// Valid reports whether a is one of the known, case-sensitive actions.
func (a Action) Valid() bool {
	switch a {
	case ActionAdded, ActionEdited, ActionDeleted, ActionUnlinked:
		return true
	}
	return false
}

// Manifest is the decoded, ordered list of resource entries.
type Manifest struct {
	Entries []Entry
}

// Entry is one resource in the manifest.
type Entry struct {
	ID                 int
	Action             Action
	MetadataFields     []MetaField
	FilePath           string // "/"-separated, as written upstream
	ParentAssociations []Association
}

// MetaField is one metadata field with its localized values in document order.
type MetaField struct {
	ID     string
	Values []LocalizedValue
}

// LocalizedValue is a field value for one language. Either Value is set, or the
// value is split into Items.
type LocalizedValue struct {
	Language string
	Value    string
	Items    []string
}

// Association links a resource to a catalog entity.
type Association struct {
	EntityCode string
	SortOrder  int
}

// MalformedManifestError is returned when the manifest cannot be decoded.
type MalformedManifestError struct {
	Reason string
	Cause  error
}

func (e *MalformedManifestError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("malformed manifest: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("malformed manifest: %s", e.Reason)
}

func (e *MalformedManifestError) Unwrap() error {
	return e.Cause
}

// wire layout

type xmlResources struct {
	XMLName xml.Name      `xml:"Resources"`
	Files   []xmlResource `xml:"ResourceFiles>Resource"`
}

type xmlResource struct {
	ID      int            `xml:"id,attr"`
	Action  string         `xml:"action,attr"`
	Fields  []xmlMetaField `xml:"ResourceFields>MetaField"`
	Paths   []string       `xml:"Paths>Path"`
	Parents []xmlEntryCode `xml:"ParentEntries>EntryCode"`
}

type xmlMetaField struct {
	Name string    `xml:"Name"`
	Data []xmlData `xml:"Data"`
}

type xmlData struct {
	Language string    `xml:"language,attr"`
	Value    string    `xml:"value,attr"`
	Items    []xmlItem `xml:"Item"`
}

type xmlItem struct {
	Value string `xml:"value,attr"`
}

type xmlEntryCode struct {
	SortOrder int    `xml:"SortOrder,attr"`
	Code      string `xml:",chardata"`
}

// Decode parses a manifest document. Missing ResourceFields, Paths and
// ParentEntries sections yield empty slices; unknown elements are ignored.
func Decode(r io.Reader) (*Manifest, error) {
	var doc xmlResources
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		if err == io.EOF {
			return nil, &MalformedManifestError{Reason: "document is empty"}
		}
		return nil, &MalformedManifestError{Reason: "decoding xml", Cause: err}
	}

	m := &Manifest{Entries: make([]Entry, 0, len(doc.Files))}
	for i, res := range doc.Files {
		action := Action(res.Action)
		if !action.Valid() {
			return nil, &MalformedManifestError{
				Reason: fmt.Sprintf("resource %d (position %d) has unknown action %q", res.ID, i, res.Action),
			}
		}

		entry := Entry{
			ID:                 res.ID,
			Action:             action,
			MetadataFields:     []MetaField{},
			ParentAssociations: make([]Association, 0, len(res.Parents)),
		}
		for _, p := range res.Parents {
			entry.ParentAssociations = append(entry.ParentAssociations, Association{
				EntityCode: strings.TrimSpace(p.Code),
				SortOrder:  p.SortOrder,
			})
		}

		// Deleted resources only carry identity and parents.
		if action != ActionDeleted {
			for _, f := range res.Fields {
				entry.MetadataFields = append(entry.MetadataFields, convertField(f))
			}
			for _, p := range res.Paths {
				if p = strings.TrimSpace(p); p != "" {
					entry.FilePath = p
					break
				}
			}
		}

		m.Entries = append(m.Entries, entry)
	}
	return m, nil
}

func convertField(f xmlMetaField) MetaField {
	field := MetaField{
		ID:     strings.TrimSpace(f.Name),
		Values: make([]LocalizedValue, 0, len(f.Data)),
	}
	for _, d := range f.Data {
		v := LocalizedValue{Language: d.Language, Value: d.Value}
		for _, item := range d.Items {
			v.Items = append(v.Items, item.Value)
		}
		field.Values = append(field.Values, v)
	}
	return field
}
