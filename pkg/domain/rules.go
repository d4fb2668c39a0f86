package domain

import (
	"context"
	"fmt"
)

// Action enumerates the roster mutations captured in a change set.
type Action string

const (
	// ActionCreate indicates a patient was admitted.
	ActionCreate Action = "create"
	// ActionUpdate indicates descriptive fields were edited.
	ActionUpdate Action = "update"
	// ActionMove indicates a patient changed bed.
	ActionMove Action = "move"
	// ActionSwap indicates two patients exchanged beds.
	ActionSwap Action = "swap"
	// ActionDelete indicates a patient was removed.
	ActionDelete Action = "delete"
)

// Change records a single record mutation inside a transaction.
type Change struct {
	Action Action
	Before *PatientRecord
	After  *PatientRecord
}

// Severity captures rule outcomes.
type Severity string

const (
	// SeverityBlock blocks the commit.
	SeverityBlock Severity = "block"
	// SeverityWarn is reported but allows the commit.
	SeverityWarn Severity = "warn"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule      string
	Field     string
	Severity  Severity
	Message   string
	PatientID string
	Conflict  *PatientRecord
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// Err converts the first blocking violation into a ValidationError.
func (r Result) Err() error {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			field := v.Field
			if field == "" {
				field = v.Rule
			}
			return ValidationError{Field: field, Message: v.Message, Conflict: v.Conflict}
		}
	}
	return nil
}

// Rule defines an evaluation executed before a roster snapshot is committed.
type Rule interface {
	Name() string
	Evaluate(ctx context.Context, next RosterSnapshot, changes []Change) (Result, error)
}

// RulesEngine orchestrates rule evaluation.
type RulesEngine struct {
	rules []Rule
}

// NewRulesEngine constructs an engine instance.
func NewRulesEngine() *RulesEngine {
	return &RulesEngine{}
}

// NewDefaultRulesEngine builds an engine with the built-in roster invariants.
func NewDefaultRulesEngine() *RulesEngine {
	engine := NewRulesEngine()
	engine.Register(RoomUniqueRule())
	engine.Register(AdmissionDateImmutableRule())
	return engine
}

// Register appends a rule to the engine.
func (e *RulesEngine) Register(rule Rule) {
	e.rules = append(e.rules, rule)
}

// Evaluate executes all registered rules and aggregates their results.
func (e *RulesEngine) Evaluate(ctx context.Context, next RosterSnapshot, changes []Change) (Result, error) {
	var combined Result
	for _, rule := range e.rules {
		res, err := rule.Evaluate(ctx, next, changes)
		if err != nil {
			return Result{}, err
		}
		combined.Merge(res)
	}
	return combined, nil
}

// RoomUniqueRule blocks any snapshot in which two records share a bed.
func RoomUniqueRule() Rule { return roomUniqueRule{} }

type roomUniqueRule struct{}

func (roomUniqueRule) Name() string { return "room_unique" }

func (roomUniqueRule) Evaluate(_ context.Context, next RosterSnapshot, _ []Change) (Result, error) {
	occupants := make(map[string]PatientRecord, len(next.Patients))
	var res Result
	for _, p := range next.sorted() {
		key := RoomKey(p.Room)
		if other, taken := occupants[key]; taken {
			occupant := other
			res.Violations = append(res.Violations, Violation{
				Rule:      "room_unique",
				Field:     "room",
				Severity:  SeverityBlock,
				Message:   fmt.Sprintf("room %s already occupied by %s", p.Room, other.Name),
				PatientID: p.ID,
				Conflict:  &occupant,
			})
			continue
		}
		occupants[key] = p
	}
	return res, nil
}

// AdmissionDateImmutableRule blocks changes that rewrite an admission date.
func AdmissionDateImmutableRule() Rule { return admissionDateRule{} }

type admissionDateRule struct{}

func (admissionDateRule) Name() string { return "admission_date_immutable" }

func (admissionDateRule) Evaluate(_ context.Context, _ RosterSnapshot, changes []Change) (Result, error) {
	var res Result
	for _, c := range changes {
		if c.Before == nil || c.After == nil {
			continue
		}
		if !c.Before.AdmissionDate.Equal(c.After.AdmissionDate) {
			res.Violations = append(res.Violations, Violation{
				Rule:      "admission_date_immutable",
				Field:     "admissionDate",
				Severity:  SeverityBlock,
				Message:   fmt.Sprintf("admission date of %s is immutable", c.Before.ID),
				PatientID: c.Before.ID,
			})
		}
	}
	return res, nil
}
