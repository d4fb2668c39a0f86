package localstore

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"wardroster/pkg/domain"
)

// Tx is the working copy handed to Mutate callbacks. Changes are staged on the
// copy and only committed if the callback succeeds and no blocking rule fires.
type Tx struct {
	roster   domain.RosterSnapshot
	changes  []domain.Change
	now      time.Time
	deviceID string
}

// Now is the commit timestamp shared by every change in the transaction.
func (tx *Tx) Now() time.Time { return tx.now }

// DeviceID identifies the writing device.
func (tx *Tx) DeviceID() string { return tx.deviceID }

// Roster returns the staged snapshot. Callers must not modify it directly.
func (tx *Tx) Roster() domain.RosterSnapshot { return tx.roster }

// Find returns the staged record with id.
func (tx *Tx) Find(id string) (domain.PatientRecord, bool) { return tx.roster.Find(id) }

// Occupant returns the staged record in room other than excludeID.
func (tx *Tx) Occupant(room, excludeID string) (domain.PatientRecord, bool) {
	return tx.roster.Occupant(room, excludeID)
}

// Changes returns the staged change set.
func (tx *Tx) Changes() []domain.Change { return append([]domain.Change(nil), tx.changes...) }

// Insert stages a new record, stamping it with the commit time and device.
func (tx *Tx) Insert(p domain.PatientRecord) (domain.PatientRecord, error) {
	if _, exists := tx.roster.Find(p.ID); exists {
		return domain.PatientRecord{}, domain.InvalidOperationError{Op: "create", Reason: fmt.Sprintf("patient %s already exists", p.ID)}
	}
	p.Touch(tx.now, tx.deviceID)
	tx.roster.Put(p)
	after := p
	tx.changes = append(tx.changes, domain.Change{Action: domain.ActionCreate, After: &after})
	return p, nil
}

// Modify stages an edit of the record with id. The record's identity is
// preserved regardless of what mutate does.
func (tx *Tx) Modify(action domain.Action, id string, mutate func(*domain.PatientRecord) error) (domain.PatientRecord, error) {
	before, ok := tx.roster.Find(id)
	if !ok {
		return domain.PatientRecord{}, domain.NotFoundError{ID: id}
	}
	next := before
	if err := mutate(&next); err != nil {
		return domain.PatientRecord{}, err
	}
	next.ID = before.ID
	next.Touch(tx.now, tx.deviceID)
	tx.roster.Put(next)
	after := next
	tx.changes = append(tx.changes, domain.Change{Action: action, Before: &before, After: &after})
	return next, nil
}

// Remove stages deletion of the record with id.
func (tx *Tx) Remove(id string) (domain.PatientRecord, error) {
	before, ok := tx.roster.Find(id)
	if !ok {
		return domain.PatientRecord{}, domain.NotFoundError{ID: id}
	}
	tx.roster.Delete(id)
	tx.changes = append(tx.changes, domain.Change{Action: domain.ActionDelete, Before: &before})
	return before, nil
}

// Mutate runs fn against a working copy of the roster. When fn stages at
// least one change, the rules engine checks the result, a fresh version token
// is minted and the snapshot is persisted before listeners are notified. A
// callback that stages nothing commits nothing.
func (s *Store) Mutate(ctx context.Context, fn func(*Tx) error) (State, error) {
	s.mu.Lock()
	tx := &Tx{roster: s.state.Snapshot.Clone(), now: s.nowFn(), deviceID: s.deviceID}
	if err := fn(tx); err != nil {
		s.mu.Unlock()
		return State{}, err
	}
	if len(tx.changes) == 0 {
		st := s.state.clone()
		s.mu.Unlock()
		return st, nil
	}
	res, err := s.engine.Evaluate(ctx, tx.roster, tx.changes)
	if err != nil {
		s.mu.Unlock()
		return State{}, fmt.Errorf("evaluate rules: %w", err)
	}
	if res.HasBlocking() {
		s.mu.Unlock()
		return State{}, res.Err()
	}
	for _, v := range res.Violations {
		s.logger.Warn("roster rule warning", zap.String("rule", v.Rule), zap.String("patient_id", v.PatientID), zap.String("message", v.Message))
	}
	next := State{Snapshot: tx.roster, BaseVersion: s.state.BaseVersion}
	next.Snapshot.LastUpdated = tx.now
	next.Snapshot.Version = domain.MintVersion(tx.now)
	if err := s.saveLocked(ctx, next); err != nil {
		s.mu.Unlock()
		return State{}, err
	}
	committed := s.state.clone()
	s.mu.Unlock()
	s.logger.Debug("local roster committed", zap.Int("changes", len(tx.changes)), zap.String("version", committed.Snapshot.Version.String()))
	s.listeners.notify(committed.Snapshot)
	return committed, nil
}

// Adopt replaces the local roster with a snapshot pulled from the remote and
// records version as both the snapshot version and the reconciliation base.
// When expect is non-nil the replacement only happens if the local version
// still equals *expect; otherwise ErrStale is returned and nothing changes.
func (s *Store) Adopt(ctx context.Context, snap domain.RosterSnapshot, version domain.VersionToken, expect *domain.VersionToken) (State, error) {
	if err := snap.ValidateRooms(); err != nil {
		return State{}, err
	}
	s.mu.Lock()
	if expect != nil && s.state.Snapshot.Version != *expect {
		s.mu.Unlock()
		return State{}, ErrStale
	}
	next := State{Snapshot: snap.Clone(), BaseVersion: version}
	next.Snapshot.Version = version
	if err := s.saveLocked(ctx, next); err != nil {
		s.mu.Unlock()
		return State{}, err
	}
	adopted := s.state.clone()
	s.mu.Unlock()
	s.logger.Info("adopted remote roster", zap.Int("patients", len(adopted.Snapshot.Patients)), zap.String("version", version.String()))
	s.listeners.notify(adopted.Snapshot)
	return adopted, nil
}

// MarkSynced records a successful upload of the snapshot whose version was
// pushed. If the roster has not changed since, it takes on version and is no
// longer pending; otherwise only the reconciliation base moves so the newer
// edits stay pending.
func (s *Store) MarkSynced(ctx context.Context, pushed, version domain.VersionToken) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.state.clone()
	next.BaseVersion = version
	if next.Snapshot.Version == pushed {
		next.Snapshot.Version = version
	}
	if err := s.saveLocked(ctx, next); err != nil {
		return State{}, err
	}
	return s.state.clone(), nil
}
