package domain

import (
	"sort"
	"strings"
)

// SortField selects the list ordering.
type SortField string

const (
	// SortNone keeps the stored order.
	SortNone SortField = ""
	// SortRoom orders lexically by bed label.
	SortRoom SortField = "room"
	// SortPriority orders alert, gestione, dimissione, trasferimento.
	SortPriority SortField = "priority"
)

// PriorityAll disables priority filtering.
const PriorityAll Priority = "all"

// RosterQuery filters and orders patients for display.
type RosterQuery struct {
	SortBy   SortField
	Priority Priority
	Search   string
}

// Apply returns the matching patients in display order. The input slice is
// not modified.
func (q RosterQuery) Apply(patients []PatientRecord) []PatientRecord {
	term := strings.ToLower(strings.TrimSpace(q.Search))
	out := make([]PatientRecord, 0, len(patients))
	for _, p := range patients {
		if q.Priority != "" && q.Priority != PriorityAll && p.Priority != q.Priority {
			continue
		}
		if term != "" && !strings.Contains(strings.ToLower(p.Name), term) && !strings.Contains(strings.ToLower(p.Room), term) {
			continue
		}
		out = append(out, p)
	}
	switch q.SortBy {
	case SortRoom:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Room < out[j].Room })
	case SortPriority:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Priority.Rank() < out[j].Priority.Rank() })
	}
	return out
}
