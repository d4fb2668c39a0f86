package domain

import (
	"context"
	"sort"
	"time"
)

// RosterSnapshot is a complete, versioned copy of the roster.
type RosterSnapshot struct {
	Patients    []PatientRecord `json:"patients"`
	LastUpdated time.Time       `json:"lastUpdated"`
	Version     VersionToken    `json:"version"`
}

// Clone returns a deep copy of the snapshot.
func (s RosterSnapshot) Clone() RosterSnapshot {
	cp := s
	cp.Patients = append([]PatientRecord(nil), s.Patients...)
	if cp.Patients == nil {
		cp.Patients = []PatientRecord{}
	}
	return cp
}

// Find returns the record with the given id.
func (s RosterSnapshot) Find(id string) (PatientRecord, bool) {
	if i := s.index(id); i >= 0 {
		return s.Patients[i], true
	}
	return PatientRecord{}, false
}

func (s RosterSnapshot) index(id string) int {
	for i := range s.Patients {
		if s.Patients[i].ID == id {
			return i
		}
	}
	return -1
}

// Occupant returns the record in room other than excludeID, if any.
func (s RosterSnapshot) Occupant(room, excludeID string) (PatientRecord, bool) {
	key := RoomKey(room)
	for _, p := range s.Patients {
		if p.ID != excludeID && RoomKey(p.Room) == key {
			return p, true
		}
	}
	return PatientRecord{}, false
}

// ValidateRooms returns a ValidationError naming the first room shared by two
// records.
func (s RosterSnapshot) ValidateRooms() error {
	res, _ := roomUniqueRule{}.Evaluate(context.Background(), s, nil)
	return res.Err()
}

// ContentEqual compares two snapshots ignoring version tokens and patient order.
func (s RosterSnapshot) ContentEqual(other RosterSnapshot) bool {
	if !s.LastUpdated.Equal(other.LastUpdated) || len(s.Patients) != len(other.Patients) {
		return false
	}
	a, b := s.sorted(), other.sorted()
	for i := range a {
		if !recordEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}

func (s RosterSnapshot) sorted() []PatientRecord {
	out := append([]PatientRecord(nil), s.Patients...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func recordEqual(a, b PatientRecord) bool {
	return a.ID == b.ID &&
		a.Room == b.Room &&
		a.Details == b.Details &&
		a.AdmissionDate.Equal(b.AdmissionDate) &&
		a.LastUpdated.Equal(b.LastUpdated) &&
		a.OriginComputerID == b.OriginComputerID
}

// Put inserts or replaces a record by id.
func (s *RosterSnapshot) Put(p PatientRecord) {
	if i := s.index(p.ID); i >= 0 {
		s.Patients[i] = p
		return
	}
	s.Patients = append(s.Patients, p)
}

// Delete removes the record with id, reporting whether it existed.
func (s *RosterSnapshot) Delete(id string) bool {
	i := s.index(id)
	if i < 0 {
		return false
	}
	s.Patients = append(s.Patients[:i], s.Patients[i+1:]...)
	return true
}
