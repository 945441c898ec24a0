package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestPersonDecodesDatabaseEntry(t *testing.T) {
	raw := `{
		"id": 1,
		"date_of_birth": 1989,
		"firstname": "Julian",
		"lastname": "Huber",
		"picture_path": "data/pictures/tb.jpg",
		"ekg_tests": [
			{"id": 1, "date": "10.2.2023", "result_link": "data/ekg_data/01_Ruhe.txt"},
			{"id": "b-2", "date": "11.2.2023", "result_link": "data/ekg_data/04_Belastung.txt"}
		]
	}`

	var p Person
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if p.ID != "1" {
		t.Fatalf("expected numeric id to decode as \"1\", got %q", p.ID)
	}
	if p.FullName() != "Huber, Julian" {
		t.Fatalf("unexpected full name %q", p.FullName())
	}
	if len(p.Recordings) != 2 || p.Recordings[1].ID != "b-2" {
		t.Fatalf("unexpected recordings %+v", p.Recordings)
	}
	if err := p.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	rec, ok := p.Recording("1")
	if !ok || rec.ResultLink != "data/ekg_data/01_Ruhe.txt" {
		t.Fatalf("expected recording 1, got %+v %v", rec, ok)
	}
	if _, ok := p.Recording("9"); ok {
		t.Fatalf("expected unknown recording to be absent")
	}
}

func TestIDRejectsObjects(t *testing.T) {
	var id ID
	if err := json.Unmarshal([]byte(`{"x":1}`), &id); err == nil {
		t.Fatalf("expected object id to be rejected")
	}
}

func TestPersonAge(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	if age := (Person{DateOfBirth: 1989}).Age(now); age != 35 {
		t.Fatalf("expected age 35, got %d", age)
	}
	if age := (Person{}).Age(now); age != 0 {
		t.Fatalf("expected unknown birth year to yield 0, got %d", age)
	}
}

func TestPersonValidate(t *testing.T) {
	cases := map[string]Person{
		"missing id":        {Firstname: "A", Lastname: "B"},
		"recording no id":   {ID: "1", Recordings: []RecordingDescriptor{{ResultLink: "x.txt"}}},
		"recording no link": {ID: "1", Recordings: []RecordingDescriptor{{ID: "1"}}},
		"duplicate":         {ID: "1", Recordings: []RecordingDescriptor{{ID: "1", ResultLink: "a"}, {ID: "1", ResultLink: "b"}}},
	}
	for name, p := range cases {
		if err := p.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestPersonClone(t *testing.T) {
	p := Person{ID: "1", Recordings: []RecordingDescriptor{{ID: "1", ResultLink: "a"}}}
	c := p.Clone()
	c.Recordings[0].ResultLink = "mutated"
	if p.Recordings[0].ResultLink != "a" {
		t.Fatalf("expected clone to be independent")
	}
}
