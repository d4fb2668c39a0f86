package domain

import "testing"

func TestRosterQueryFilterAndSort(t *testing.T) {
	patients := []PatientRecord{
		{ID: "1", Room: "12", Details: Details{Name: "Rossi", Priority: PriorityTrasferimento}},
		{ID: "2", Room: "03", Details: Details{Name: "Bianchi", Priority: PriorityAlert}},
		{ID: "3", Room: "07", Details: Details{Name: "Rossetti", Priority: PriorityAlert}},
		{ID: "4", Room: "01", Details: Details{Name: "Verdi", Priority: PriorityGestione}},
	}

	byRoom := RosterQuery{SortBy: SortRoom}.Apply(patients)
	if got := ids(byRoom); got != "4231" {
		t.Fatalf("room order: %s", got)
	}

	byPriority := RosterQuery{SortBy: SortPriority}.Apply(patients)
	if got := ids(byPriority); got != "2341" {
		t.Fatalf("priority order: %s", got)
	}

	search := RosterQuery{Search: "ross"}.Apply(patients)
	if got := ids(search); got != "13" {
		t.Fatalf("search: %s", got)
	}

	roomSearch := RosterQuery{Search: "0"}.Apply(patients)
	if got := ids(roomSearch); got != "234" {
		t.Fatalf("room search: %s", got)
	}

	alerts := RosterQuery{Priority: PriorityAlert, SortBy: SortRoom}.Apply(patients)
	if got := ids(alerts); got != "23" {
		t.Fatalf("priority filter: %s", got)
	}

	all := RosterQuery{Priority: PriorityAll}.Apply(patients)
	if got := ids(all); got != "1234" {
		t.Fatalf("all: %s", got)
	}
	if patients[0].ID != "1" {
		t.Fatalf("input mutated")
	}
}

func ids(ps []PatientRecord) string {
	var out string
	for _, p := range ps {
		out += p.ID
	}
	return out
}
