// Package intent turns free-text file requests into structured actions.
package intent

import (
	"encoding/json"

	"github.com/Harshal1803/Raspberry-NAS-Server/internal/listing"
)

// Kind identifies an Action variant. It is also the "action" tag in JSON.
type Kind string

const (
	KindMessage         Kind = "message"
	KindList            Kind = "list"
	KindCountFiles      Kind = "count_files"
	KindCreateFolder    Kind = "create_folder"
	KindDeleteFile      Kind = "delete_file"
	KindDeleteFolder    Kind = "delete_folder"
	KindMove            Kind = "move"
	KindSearchFiles     Kind = "search_files"
	KindListByType      Kind = "list_by_type"
	KindListByDateRange Kind = "list_by_date_range"
	KindFindImages      Kind = "find_images"
)

// Action is a parsed request. Every variant other than Message carries
// enough to be dispatched without looking at the original text again.
type Action interface {
	Kind() Kind
	isAction()
}

// Message is a direct conversational reply with no filesystem effect.
type Message struct {
	Text string `json:"text"`
}

// List lists a directory.
type List struct {
	Path string `json:"path"`
}

// CountFiles counts the files (not directories) in a directory.
type CountFiles struct {
	Path string `json:"path"`
}

// CreateFolder creates a directory.
type CreateFolder struct {
	Path string `json:"path"`
}

// DeleteFile deletes a file. Requires confirmation.
type DeleteFile struct {
	Path string `json:"path"`
}

// DeleteFolder deletes a directory recursively. Requires confirmation.
type DeleteFolder struct {
	Path string `json:"path"`
}

// Move moves or renames a file or directory.
type Move struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
}

// SearchFiles finds files whose name contains Query, below Path.
type SearchFiles struct {
	Query string `json:"query"`
	Path  string `json:"path"`
}

// ListByType lists the files of one media category.
type ListByType struct {
	Path string           `json:"path"`
	Type listing.Category `json:"type"`
}

// ListByDateRange lists files modified within [StartDate, EndDate]
// (YYYY-MM-DD, inclusive), optionally restricted to one category.
type ListByDateRange struct {
	Path      string           `json:"path"`
	StartDate string           `json:"start_date"`
	EndDate   string           `json:"end_date"`
	Type      listing.Category `json:"type,omitempty"`
}

// FindImages lists images in the share root, optionally on one exact date.
type FindImages struct {
	Date string `json:"date,omitempty"`
}

func (Message) Kind() Kind         { return KindMessage }
func (List) Kind() Kind            { return KindList }
func (CountFiles) Kind() Kind      { return KindCountFiles }
func (CreateFolder) Kind() Kind    { return KindCreateFolder }
func (DeleteFile) Kind() Kind      { return KindDeleteFile }
func (DeleteFolder) Kind() Kind    { return KindDeleteFolder }
func (Move) Kind() Kind            { return KindMove }
func (SearchFiles) Kind() Kind     { return KindSearchFiles }
func (ListByType) Kind() Kind      { return KindListByType }
func (ListByDateRange) Kind() Kind { return KindListByDateRange }
func (FindImages) Kind() Kind      { return KindFindImages }

func (Message) isAction()         {}
func (List) isAction()            {}
func (CountFiles) isAction()      {}
func (CreateFolder) isAction()    {}
func (DeleteFile) isAction()      {}
func (DeleteFolder) isAction()    {}
func (Move) isAction()            {}
func (SearchFiles) isAction()     {}
func (ListByType) isAction()      {}
func (ListByDateRange) isAction() {}
func (FindImages) isAction()      {}

// IsDestructive reports whether a must pass the confirmation gate.
func IsDestructive(a Action) bool {
	switch a.(type) {
	case DeleteFile, DeleteFolder:
		return true
	}
	return false
}

// Marshal encodes a as a flat object tagged with its kind, e.g.
// {"action":"move","source":"a","destination":"b"}.
func Marshal(a Action) ([]byte, error) {
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	fields := map[string]any{}
	if err := json.Unmarshal(b, &fields); err != nil {
		return nil, err
	}
	fields["action"] = a.Kind()
	return json.Marshal(fields)
}

// Envelope wraps an Action so it serialises with its "action" tag when
// embedded in a larger response.
type Envelope struct {
	Action
}

// MarshalJSON implements json.Marshaler.
func (e Envelope) MarshalJSON() ([]byte, error) {
	if e.Action == nil {
		return []byte("null"), nil
	}
	return Marshal(e.Action)
}
