package domain

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestResultMergeAndBlocking(t *testing.T) {
	var result Result
	result.Merge(Result{Violations: []Violation{{Rule: "warn", Severity: SeverityWarn}}})
	if result.HasBlocking() {
		t.Fatalf("expected no blocking violations")
	}
	if err := result.Err(); err != nil {
		t.Fatalf("warnings should not produce an error, got %v", err)
	}
	result.Merge(Result{Violations: []Violation{{Rule: "block", Severity: SeverityBlock, Message: "nope"}}})
	if !result.HasBlocking() {
		t.Fatalf("expected blocking violation")
	}
	var verr ValidationError
	if err := result.Err(); !errors.As(err, &verr) || verr.Field != "block" {
		t.Fatalf("expected ValidationError keyed by rule name, got %v", err)
	}
}

func TestResultMergeEmptyInput(t *testing.T) {
	original := Result{Violations: []Violation{{Rule: "existing", Severity: SeverityWarn}}}
	original.Merge(Result{})
	if len(original.Violations) != 1 || original.HasBlocking() || original.Err() != nil {
		t.Fatalf("unexpected result %+v", original)
	}
}

type staticRule struct {
	name string
	err  error
}

func (r staticRule) Name() string { return r.name }

func (r staticRule) Evaluate(context.Context, RosterSnapshot, []Change) (Result, error) {
	if r.err != nil {
		return Result{}, r.err
	}
	return Result{Violations: []Violation{{Rule: r.name, Severity: SeverityWarn}}}, nil
}

func TestRulesEngineAggregatesAndStopsOnError(t *testing.T) {
	engine := NewRulesEngine()
	engine.Register(staticRule{name: "a"})
	engine.Register(staticRule{name: "b"})
	res, err := engine.Evaluate(context.Background(), RosterSnapshot{}, nil)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(res.Violations) != 2 {
		t.Fatalf("expected 2 violations, got %d", len(res.Violations))
	}

	boom := errors.New("boom")
	engine.Register(staticRule{name: "c", err: boom})
	if _, err := engine.Evaluate(context.Background(), RosterSnapshot{}, nil); !errors.Is(err, boom) {
		t.Fatalf("expected rule error, got %v", err)
	}
}

func TestRoomUniqueRuleReportsOccupant(t *testing.T) {
	snap := RosterSnapshot{Patients: []PatientRecord{
		{ID: "a", Room: "12", Details: Details{Name: "Rossi"}},
		{ID: "b", Room: " 12 ", Details: Details{Name: "Bianchi"}},
		{ID: "c", Room: "3B", Details: Details{Name: "Verdi"}},
	}}
	res, err := RoomUniqueRule().Evaluate(context.Background(), snap, nil)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(res.Violations) != 1 {
		t.Fatalf("expected one violation, got %+v", res.Violations)
	}
	v := res.Violations[0]
	if v.Rule != "room_unique" || v.Field != "room" || v.Severity != SeverityBlock {
		t.Fatalf("unexpected violation %+v", v)
	}
	if v.Conflict == nil || v.PatientID == v.Conflict.ID {
		t.Fatalf("expected the other occupant as conflict, got %+v", v)
	}
	var verr ValidationError
	if !errors.As(res.Err(), &verr) || verr.Field != "room" || verr.Conflict == nil {
		t.Fatalf("expected room ValidationError, got %v", res.Err())
	}
}

func TestRoomUniqueRuleIsCaseInsensitive(t *testing.T) {
	snap := RosterSnapshot{Patients: []PatientRecord{
		{ID: "a", Room: "3b"},
		{ID: "b", Room: "3B"},
	}}
	res, _ := RoomUniqueRule().Evaluate(context.Background(), snap, nil)
	if !res.HasBlocking() {
		t.Fatalf("rooms differing only by case should collide")
	}
}

func TestAdmissionDateImmutableRule(t *testing.T) {
	admitted := time.Date(2024, 5, 6, 7, 0, 0, 0, time.UTC)
	before := PatientRecord{ID: "a", AdmissionDate: admitted}
	edited := before
	edited.Notes = "stable"
	rewritten := before
	rewritten.AdmissionDate = admitted.Add(time.Hour)

	rule := AdmissionDateImmutableRule()
	res, _ := rule.Evaluate(context.Background(), RosterSnapshot{}, []Change{
		{Action: ActionCreate, After: &edited},
		{Action: ActionUpdate, Before: &before, After: &edited},
		{Action: ActionDelete, Before: &before},
	})
	if res.HasBlocking() {
		t.Fatalf("unexpected violations %+v", res.Violations)
	}

	res, _ = rule.Evaluate(context.Background(), RosterSnapshot{}, []Change{{Action: ActionUpdate, Before: &before, After: &rewritten}})
	if !res.HasBlocking() || res.Violations[0].Field != "admissionDate" {
		t.Fatalf("expected admission date violation, got %+v", res.Violations)
	}
}

func TestDefaultRulesEngine(t *testing.T) {
	engine := NewDefaultRulesEngine()
	at := time.Now().UTC()
	before := PatientRecord{ID: "a", Room: "1", AdmissionDate: at}
	after := before
	after.AdmissionDate = at.Add(time.Hour)
	next := RosterSnapshot{Patients: []PatientRecord{after, {ID: "b", Room: "1"}}}
	res, err := engine.Evaluate(context.Background(), next, []Change{{Action: ActionUpdate, Before: &before, After: &after}})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(res.Violations) != 2 || !res.HasBlocking() {
		t.Fatalf("expected room and admission violations, got %+v", res.Violations)
	}
	if res.Err() == nil {
		t.Fatalf("expected error from blocking result")
	}
}
