package domain

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func sampleSnapshot() RosterSnapshot {
	at := time.Date(2024, 5, 2, 8, 0, 0, 0, time.UTC)
	return RosterSnapshot{
		Patients: []PatientRecord{
			{ID: "p1", Room: "101", Details: Details{Name: "Rossi", Age: 80, Priority: PriorityAlert, Notes: "NPO"}, AdmissionDate: at, LastUpdated: at.Add(time.Hour), OriginComputerID: "PC_a"},
			{ID: "p2", Room: "102", Details: Details{Name: "Bianchi", Age: 65, Priority: PriorityDimissione}, AdmissionDate: at, LastUpdated: at, OriginComputerID: "PC_b"},
		},
		LastUpdated: at.Add(time.Hour),
		Version:     MintVersion(at.Add(time.Hour)),
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	in := sampleSnapshot()
	b, err := EncodeRoster(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !strings.Contains(string(b), `"schemaVersion": 1`) {
		t.Fatalf("missing schema version: %s", b)
	}
	out, err := DecodeRoster("test", b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !in.ContentEqual(out) || out.Version != in.Version {
		t.Fatalf("round trip mismatch:\n%+v\n%+v", in, out)
	}
}

func TestDecodeLegacyBareArray(t *testing.T) {
	payload := `[
	  {"id":"17","name":"Verdi","age":70,"room":" 3A ","priority":"gestione","notes":"x","lastUpdate":"2024-01-02T03:04:05.000Z","computerId":"PC_old"},
	  {"id":"18","name":"Neri","age":50,"room":"4","priority":"alert","lastUpdate":"2024-01-03T00:00:00.000Z","computerId":"PC_old"}
	]`
	snap, err := DecodeRoster("legacy", []byte(payload))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(snap.Patients) != 2 {
		t.Fatalf("expected 2 patients, got %d", len(snap.Patients))
	}
	p, _ := snap.Find("17")
	if p.Room != "3A" || p.OriginComputerID != "PC_old" || p.Notes != "x" {
		t.Fatalf("legacy fields not migrated: %+v", p)
	}
	want := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	if !p.LastUpdated.Equal(want) || !p.AdmissionDate.Equal(want) {
		t.Fatalf("expected admission date backfilled from last update: %+v", p)
	}
	if !snap.LastUpdated.Equal(time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected newest record time, got %v", snap.LastUpdated)
	}
	if !snap.Version.IsZero() {
		t.Fatalf("legacy payload carries no version")
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	cases := map[string]string{
		"empty":        "  ",
		"not json":     "{patients",
		"missing id":   `{"patients":[{"name":"x"}]}`,
		"future":       `{"schemaVersion":9,"patients":[]}`,
		"wrong shape":  `{"patients":"nope"}`,
		"null":         "null",
		"empty object": `{}`,
		"null list":    `{"patients":null,"version":""}`,
		"error body":   `{"error":{"code":403,"message":"quota"}}`,
		"scalar":       `42`,
	}
	for name, payload := range cases {
		_, err := DecodeRoster("remote", []byte(payload))
		var serr SerializationError
		if !errors.As(err, &serr) {
			t.Fatalf("%s: expected SerializationError, got %v", name, err)
		}
		if serr.Source != "remote" {
			t.Fatalf("%s: unexpected source %q", name, serr.Source)
		}
	}
}

func TestDecodeEmptyDocument(t *testing.T) {
	snap, err := DecodeRoster("x", []byte(`{"patients":[],"version":""}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.Patients == nil || len(snap.Patients) != 0 {
		t.Fatalf("expected empty, non-nil patients")
	}
}
