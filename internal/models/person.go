package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ID is an identifier that may be written as a JSON number or string.
type ID string

// UnmarshalJSON accepts both 7 and "7".
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(strings.TrimSpace(s))
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a number or string: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// RecordingDescriptor points at one raw recording file of a person.
type RecordingDescriptor struct {
	ID         ID     `json:"id"`
	Date       string `json:"date"`
	ResultLink string `json:"result_link"`
}

// Person is one entry of the person database.
type Person struct {
	ID          ID                    `json:"id"`
	DateOfBirth int                   `json:"date_of_birth"`
	Firstname   string                `json:"firstname"`
	Lastname    string                `json:"lastname"`
	PicturePath string                `json:"picture_path,omitempty"`
	Recordings  []RecordingDescriptor `json:"ekg_tests"`
}

// FullName returns "Lastname, Firstname", the form used for selection lists.
func (p Person) FullName() string {
	return p.Lastname + ", " + p.Firstname
}

// Age returns the age in whole years at now, counting from the birth year.
func (p Person) Age(now time.Time) int {
	if p.DateOfBirth <= 0 {
		return 0
	}
	return now.Year() - p.DateOfBirth
}

// Validate checks the fields every consumer relies on.
func (p Person) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("person %q has no id", p.FullName())
	}
	seen := make(map[ID]struct{}, len(p.Recordings))
	for _, rec := range p.Recordings {
		if rec.ID == "" {
			return fmt.Errorf("person %s: recording without id", p.ID)
		}
		if strings.TrimSpace(rec.ResultLink) == "" {
			return fmt.Errorf("person %s: recording %s has no result_link", p.ID, rec.ID)
		}
		if _, dup := seen[rec.ID]; dup {
			return fmt.Errorf("person %s: duplicate recording id %s", p.ID, rec.ID)
		}
		seen[rec.ID] = struct{}{}
	}
	return nil
}

// Recording returns the descriptor with the given id.
func (p Person) Recording(id ID) (RecordingDescriptor, bool) {
	for _, rec := range p.Recordings {
		if rec.ID == id {
			return rec, true
		}
	}
	return RecordingDescriptor{}, false
}

// Clone returns a deep copy.
func (p Person) Clone() Person {
	out := p
	out.Recordings = append([]RecordingDescriptor(nil), p.Recordings...)
	return out
}
