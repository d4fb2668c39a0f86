package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SchemaVersion is the roster document schema written by EncodeRoster.
const SchemaVersion = 1

type rosterDocument struct {
	SchemaVersion int           `json:"schemaVersion"`
	Patients      []wirePatient `json:"patients"`
	LastUpdated   *time.Time    `json:"lastUpdated,omitempty"`
	Version       VersionToken  `json:"version"`
}

// wirePatient accepts both the current field names and the schema 0 names
// (lastUpdate, computerId) written before admission dates existed.
type wirePatient struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Age              int        `json:"age"`
	Room             string     `json:"room"`
	Priority         Priority   `json:"priority"`
	RecentHistory    string     `json:"recentHistory,omitempty"`
	PastHistory      string     `json:"pastHistory,omitempty"`
	Management       string     `json:"management,omitempty"`
	Notes            string     `json:"notes,omitempty"`
	AdmissionDate    *time.Time `json:"admissionDate,omitempty"`
	LastUpdated      *time.Time `json:"lastUpdated,omitempty"`
	OriginComputerID string     `json:"originComputerId,omitempty"`

	LegacyLastUpdate *time.Time `json:"lastUpdate,omitempty"`
	LegacyComputerID string     `json:"computerId,omitempty"`
}

// EncodeRoster serializes a snapshot as a schema 1 document.
func EncodeRoster(s RosterSnapshot) ([]byte, error) {
	doc := rosterDocument{
		SchemaVersion: SchemaVersion,
		Patients:      make([]wirePatient, 0, len(s.Patients)),
		Version:       s.Version,
	}
	if !s.LastUpdated.IsZero() {
		lu := s.LastUpdated.UTC()
		doc.LastUpdated = &lu
	}
	for _, p := range s.Patients {
		doc.Patients = append(doc.Patients, toWire(p))
	}
	return json.MarshalIndent(doc, "", "  ")
}

// decodedDocument distinguishes a missing or null patients key from an
// empty list.
type decodedDocument struct {
	SchemaVersion int            `json:"schemaVersion"`
	Patients      *[]wirePatient `json:"patients"`
	LastUpdated   *time.Time     `json:"lastUpdated,omitempty"`
	Version       VersionToken   `json:"version"`
}

// DecodeRoster parses a roster document of any known schema and migrates it
// to the current model. Failures are SerializationError values; a document
// without a patients list is one of them.
func DecodeRoster(source string, b []byte) (RosterSnapshot, error) {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 {
		return RosterSnapshot{}, SerializationError{Source: source, Err: errors.New("empty payload")}
	}
	var doc decodedDocument
	switch trimmed[0] {
	case '[':
		var patients []wirePatient
		if err := json.Unmarshal(trimmed, &patients); err != nil {
			return RosterSnapshot{}, SerializationError{Source: source, Err: err}
		}
		doc.Patients = &patients
	case '{':
		if err := json.Unmarshal(trimmed, &doc); err != nil {
			return RosterSnapshot{}, SerializationError{Source: source, Err: err}
		}
	default:
		return RosterSnapshot{}, SerializationError{Source: source, Err: errors.New("payload is not a roster document")}
	}
	if doc.Patients == nil {
		return RosterSnapshot{}, SerializationError{Source: source, Err: errors.New("missing patients list")}
	}
	if doc.SchemaVersion > SchemaVersion {
		return RosterSnapshot{}, SerializationError{Source: source, Err: fmt.Errorf("unsupported schema version %d", doc.SchemaVersion)}
	}
	return migrateDocument(source, doc)
}

func migrateDocument(source string, doc decodedDocument) (RosterSnapshot, error) {
	patients := *doc.Patients
	out := RosterSnapshot{Patients: make([]PatientRecord, 0, len(patients)), Version: doc.Version}
	var newest time.Time
	for i, wp := range patients {
		if wp.ID == "" {
			return RosterSnapshot{}, SerializationError{Source: source, Err: fmt.Errorf("patient %d has no id", i)}
		}
		p := fromWire(wp)
		if p.LastUpdated.After(newest) {
			newest = p.LastUpdated
		}
		out.Patients = append(out.Patients, p)
	}
	if doc.LastUpdated != nil {
		out.LastUpdated = doc.LastUpdated.UTC()
	} else {
		out.LastUpdated = newest
	}
	return out, nil
}

func toWire(p PatientRecord) wirePatient {
	wp := wirePatient{
		ID:               p.ID,
		Name:             p.Name,
		Age:              p.Age,
		Room:             p.Room,
		Priority:         p.Priority,
		RecentHistory:    p.RecentHistory,
		PastHistory:      p.PastHistory,
		Management:       p.Management,
		Notes:            p.Notes,
		OriginComputerID: p.OriginComputerID,
	}
	if !p.AdmissionDate.IsZero() {
		ad := p.AdmissionDate.UTC()
		wp.AdmissionDate = &ad
	}
	if !p.LastUpdated.IsZero() {
		lu := p.LastUpdated.UTC()
		wp.LastUpdated = &lu
	}
	return wp
}

func fromWire(wp wirePatient) PatientRecord {
	p := PatientRecord{
		ID:   wp.ID,
		Room: NormalizeRoom(wp.Room),
		Details: Details{
			Name:          wp.Name,
			Age:           wp.Age,
			Priority:      wp.Priority,
			RecentHistory: wp.RecentHistory,
			PastHistory:   wp.PastHistory,
			Management:    wp.Management,
			Notes:         wp.Notes,
		},
		OriginComputerID: wp.OriginComputerID,
	}
	if p.OriginComputerID == "" {
		p.OriginComputerID = wp.LegacyComputerID
	}
	switch {
	case wp.LastUpdated != nil:
		p.LastUpdated = wp.LastUpdated.UTC()
	case wp.LegacyLastUpdate != nil:
		p.LastUpdated = wp.LegacyLastUpdate.UTC()
	}
	if wp.AdmissionDate != nil {
		p.AdmissionDate = wp.AdmissionDate.UTC()
	} else {
		p.AdmissionDate = p.LastUpdated
	}
	return p
}
