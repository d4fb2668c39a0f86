// Package domain defines the ward roster entity model shared by the local
// store, the bed-assignment manager and the sync engine.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// Priority classifies a patient for display ordering.
type Priority string

const (
	// PriorityAlert marks patients that need immediate attention.
	PriorityAlert Priority = "alert"
	// PriorityGestione marks patients under active management.
	PriorityGestione Priority = "gestione"
	// PriorityDimissione marks patients pending discharge.
	PriorityDimissione Priority = "dimissione"
	// PriorityTrasferimento marks patients pending transfer.
	PriorityTrasferimento Priority = "trasferimento"
)

var priorityRank = map[Priority]int{
	PriorityAlert:         0,
	PriorityGestione:      1,
	PriorityDimissione:    2,
	PriorityTrasferimento: 3,
}

// Priorities lists every valid priority in display order.
func Priorities() []Priority {
	return []Priority{PriorityAlert, PriorityGestione, PriorityDimissione, PriorityTrasferimento}
}

// Valid reports whether p is one of the enumerated priorities.
func (p Priority) Valid() bool {
	_, ok := priorityRank[p]
	return ok
}

// Rank returns the display order of p; unknown priorities sort last.
func (p Priority) Rank() int {
	if r, ok := priorityRank[p]; ok {
		return r
	}
	return len(priorityRank)
}

// MaxAge bounds the accepted patient age.
const MaxAge = 150

// Details holds the mutable descriptive and clinical fields of a patient.
// Room changes go through move or swap.
type Details struct {
	Name          string   `json:"name"`
	Age           int      `json:"age"`
	Priority      Priority `json:"priority"`
	RecentHistory string   `json:"recentHistory,omitempty"`
	PastHistory   string   `json:"pastHistory,omitempty"`
	Management    string   `json:"management,omitempty"`
	Notes         string   `json:"notes,omitempty"`
}

// Validate checks descriptive fields.
func (d Details) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return ValidationError{Field: "name", Message: "name is required"}
	}
	if d.Age < 0 || d.Age > MaxAge {
		return ValidationError{Field: "age", Message: fmt.Sprintf("age must be between 0 and %d", MaxAge)}
	}
	if !d.Priority.Valid() {
		return ValidationError{Field: "priority", Message: fmt.Sprintf("unknown priority %q", d.Priority)}
	}
	return nil
}

// PatientRecord is one bed assignment on the roster.
type PatientRecord struct {
	ID   string `json:"id"`
	Room string `json:"room"`
	Details
	AdmissionDate    time.Time `json:"admissionDate"`
	LastUpdated      time.Time `json:"lastUpdated"`
	OriginComputerID string    `json:"originComputerId,omitempty"`
}

// NormalizeRoom trims surrounding whitespace from a bed label.
func NormalizeRoom(room string) string {
	return strings.TrimSpace(room)
}

// RoomKey returns the comparison key for a bed label. Rooms compare
// case-insensitively.
func RoomKey(room string) string {
	return strings.ToLower(NormalizeRoom(room))
}

// SameRoom reports whether two bed labels denote the same bed.
func SameRoom(a, b string) bool {
	return RoomKey(a) == RoomKey(b)
}

// ValidateRoom rejects blank bed labels.
func ValidateRoom(room string) error {
	if NormalizeRoom(room) == "" {
		return ValidationError{Field: "room", Message: "room is required"}
	}
	return nil
}

// Touch stamps the record as written by computerID at now.
func (p *PatientRecord) Touch(now time.Time, computerID string) {
	p.LastUpdated = now
	if computerID != "" {
		p.OriginComputerID = computerID
	}
}
