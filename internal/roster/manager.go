// Package roster implements bed assignment: admitting, editing, moving,
// swapping and discharging patients on the local roster.
package roster

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"wardroster/internal/localstore"
	"wardroster/pkg/domain"
)

// NewPatient is the input to Create.
type NewPatient struct {
	Room string
	domain.Details
}

// MoveResult describes the outcome of a Move. Exactly one of Moved or
// Conflict is set unless the patient already occupied the target room.
type MoveResult struct {
	Moved    bool
	Patient  domain.PatientRecord
	Conflict *domain.PatientRecord
	FromRoom string
	ToRoom   string
}

// Manager applies bed-assignment operations through the LocalStore. It holds
// no roster state of its own.
type Manager struct {
	store  *localstore.Store
	logger *zap.Logger
	newID  func() string
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithIDGenerator overrides patient id generation.
func WithIDGenerator(fn func() string) Option {
	return func(m *Manager) {
		if fn != nil {
			m.newID = fn
		}
	}
}

// NewManager constructs a Manager over store.
func NewManager(store *localstore.Store, opts ...Option) *Manager {
	m := &Manager{store: store, logger: zap.NewNop(), newID: uuid.NewString}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create admits a new patient into an unoccupied room.
func (m *Manager) Create(ctx context.Context, in NewPatient) (domain.PatientRecord, error) {
	if err := in.Details.Validate(); err != nil {
		return domain.PatientRecord{}, err
	}
	room := domain.NormalizeRoom(in.Room)
	if err := domain.ValidateRoom(room); err != nil {
		return domain.PatientRecord{}, err
	}
	in.Details.Name = strings.TrimSpace(in.Details.Name)
	var created domain.PatientRecord
	_, err := m.store.Mutate(ctx, func(tx *localstore.Tx) error {
		if occupant, taken := tx.Occupant(room, ""); taken {
			return roomTaken(room, occupant)
		}
		rec, err := tx.Insert(domain.PatientRecord{
			ID:            m.newID(),
			Room:          room,
			Details:       in.Details,
			AdmissionDate: tx.Now(),
		})
		created = rec
		return err
	})
	if err != nil {
		return domain.PatientRecord{}, err
	}
	m.logger.Info("patient admitted", zap.String("patient_id", created.ID), zap.String("room", created.Room))
	return created, nil
}

// Update replaces the descriptive and clinical fields of the patient with id.
// Room and admission date are untouched.
func (m *Manager) Update(ctx context.Context, id string, details domain.Details) (domain.PatientRecord, error) {
	if err := details.Validate(); err != nil {
		return domain.PatientRecord{}, err
	}
	details.Name = strings.TrimSpace(details.Name)
	var updated domain.PatientRecord
	_, err := m.store.Mutate(ctx, func(tx *localstore.Tx) error {
		rec, err := tx.Modify(domain.ActionUpdate, id, func(p *domain.PatientRecord) error {
			p.Details = details
			return nil
		})
		updated = rec
		return err
	})
	if err != nil {
		return domain.PatientRecord{}, err
	}
	m.logger.Debug("patient updated", zap.String("patient_id", id))
	return updated, nil
}

// Remove discharges the patient with id.
func (m *Manager) Remove(ctx context.Context, id string) error {
	_, err := m.store.Mutate(ctx, func(tx *localstore.Tx) error {
		_, err := tx.Remove(id)
		return err
	})
	if err != nil {
		return err
	}
	m.logger.Info("patient removed", zap.String("patient_id", id))
	return nil
}

// Move relocates the patient with id to newRoom. An occupied target is
// reported through MoveResult.Conflict and leaves the roster unchanged.
func (m *Manager) Move(ctx context.Context, id, newRoom string) (MoveResult, error) {
	room := domain.NormalizeRoom(newRoom)
	if err := domain.ValidateRoom(room); err != nil {
		return MoveResult{}, err
	}
	var res MoveResult
	_, err := m.store.Mutate(ctx, func(tx *localstore.Tx) error {
		current, ok := tx.Find(id)
		if !ok {
			return domain.NotFoundError{ID: id}
		}
		res = MoveResult{Patient: current, FromRoom: current.Room, ToRoom: room}
		if domain.SameRoom(current.Room, room) {
			res.ToRoom = current.Room
			return nil
		}
		if occupant, taken := tx.Occupant(room, id); taken {
			res.Conflict = &occupant
			return nil
		}
		moved, err := tx.Modify(domain.ActionMove, id, func(p *domain.PatientRecord) error {
			p.Room = room
			return nil
		})
		if err != nil {
			return err
		}
		res.Moved = true
		res.Patient = moved
		return nil
	})
	if err != nil {
		return MoveResult{}, err
	}
	if res.Moved {
		m.logger.Info("patient moved", zap.String("patient_id", id), zap.String("from", res.FromRoom), zap.String("to", res.ToRoom))
	}
	return res, nil
}

// Swap exchanges the rooms of two patients in one commit.
func (m *Manager) Swap(ctx context.Context, id, otherID string) (domain.PatientRecord, domain.PatientRecord, error) {
	if id == otherID {
		return domain.PatientRecord{}, domain.PatientRecord{}, domain.InvalidOperationError{Op: "swap", Reason: "a patient cannot swap with itself"}
	}
	var first, second domain.PatientRecord
	_, err := m.store.Mutate(ctx, func(tx *localstore.Tx) error {
		a, ok := tx.Find(id)
		if !ok {
			return domain.NotFoundError{ID: id}
		}
		b, ok := tx.Find(otherID)
		if !ok {
			return domain.NotFoundError{ID: otherID}
		}
		var err error
		if first, err = tx.Modify(domain.ActionSwap, id, func(p *domain.PatientRecord) error {
			p.Room = b.Room
			return nil
		}); err != nil {
			return err
		}
		second, err = tx.Modify(domain.ActionSwap, otherID, func(p *domain.PatientRecord) error {
			p.Room = a.Room
			return nil
		})
		return err
	})
	if err != nil {
		return domain.PatientRecord{}, domain.PatientRecord{}, err
	}
	m.logger.Info("patients swapped", zap.String("patient_id", id), zap.String("other_id", otherID))
	return first, second, nil
}

// Get returns the patient with id.
func (m *Manager) Get(_ context.Context, id string) (domain.PatientRecord, error) {
	rec, ok := m.store.Snapshot().Find(id)
	if !ok {
		return domain.PatientRecord{}, domain.NotFoundError{ID: id}
	}
	return rec, nil
}

// List returns the patients matching q in q's order.
func (m *Manager) List(_ context.Context, q domain.RosterQuery) []domain.PatientRecord {
	return q.Apply(m.store.Snapshot().Patients)
}

func roomTaken(room string, occupant domain.PatientRecord) error {
	return domain.ValidationError{Field: "room", Message: "room " + room + " already occupied by " + occupant.Name, Conflict: &occupant}
}
