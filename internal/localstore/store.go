// Package localstore owns the durable on-device copy of the roster. It is the
// single writer: every local edit, remote adoption and sync bookkeeping step
// goes through Store, and readers only ever receive copies.
package localstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"wardroster/pkg/domain"
)

// Backend is a durable bucket/payload store. Put must replace the bucket
// atomically: a failed Put leaves the previous payload readable.
type Backend interface {
	Get(ctx context.Context, bucket string) ([]byte, bool, error)
	Put(ctx context.Context, bucket string, payload []byte) error
	Close() error
}

const (
	deviceBucket       = "computerId"
	rosterBucketPrefix = "patients_"
)

// ErrStale is returned by Adopt when the local roster changed after the
// caller observed it.
var ErrStale = errors.New("local roster changed since it was read")

// State is the persisted device state: the current snapshot plus the version
// recorded at the last successful reconciliation.
type State struct {
	Snapshot    domain.RosterSnapshot
	BaseVersion domain.VersionToken
}

// Pending reports whether local edits have not been committed to the remote.
func (s State) Pending() bool {
	return s.Snapshot.Version != s.BaseVersion
}

func (s State) clone() State {
	return State{Snapshot: s.Snapshot.Clone(), BaseVersion: s.BaseVersion}
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.nowFn = now
		}
	}
}

// WithRulesEngine overrides the invariant checks run before each commit.
func WithRulesEngine(engine *domain.RulesEngine) Option {
	return func(s *Store) {
		if engine != nil {
			s.engine = engine
		}
	}
}

// Store is the LocalStore.
type Store struct {
	mu        sync.Mutex
	backend   Backend
	deviceID  string
	state     State
	engine    *domain.RulesEngine
	nowFn     func() time.Time
	logger    *zap.Logger
	listeners listenerSet
}

// Open loads the device identity and the device's roster from backend,
// generating the identity on first use.
func Open(ctx context.Context, backend Backend, opts ...Option) (*Store, error) {
	s := &Store{
		backend: backend,
		engine:  domain.NewDefaultRulesEngine(),
		nowFn:   func() time.Time { return time.Now().UTC() },
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	id, err := s.loadDeviceID(ctx)
	if err != nil {
		return nil, err
	}
	s.deviceID = id
	raw, ok, err := backend.Get(ctx, s.rosterBucket())
	if err != nil {
		return nil, fmt.Errorf("read roster bucket: %w", err)
	}
	s.state = emptyState()
	if ok {
		st, err := decodeState(raw)
		if err != nil {
			s.logger.Warn("discarding unreadable local roster", zap.String("device_id", id), zap.Error(err))
		} else {
			s.state = st
		}
	}
	s.logger.Info("local store opened",
		zap.String("device_id", id),
		zap.Int("patients", len(s.state.Snapshot.Patients)),
		zap.String("version", s.state.Snapshot.Version.String()),
		zap.Bool("pending", s.state.Pending()),
	)
	return s, nil
}

func emptyState() State {
	return State{Snapshot: domain.RosterSnapshot{Patients: []domain.PatientRecord{}}}
}

// DeviceID returns the stable identifier of this device.
func (s *Store) DeviceID() string { return s.deviceID }

func (s *Store) rosterBucket() string { return rosterBucketPrefix + s.deviceID }

// Load returns a copy of the most recently committed state.
func (s *Store) Load() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Snapshot returns a copy of the current roster snapshot.
func (s *Store) Snapshot() domain.RosterSnapshot {
	return s.Load().Snapshot
}

// Save persists st as-is. The cached state only changes when the write
// succeeds.
func (s *Store) Save(ctx context.Context, st State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(ctx, st)
}

func (s *Store) saveLocked(ctx context.Context, st State) error {
	payload, err := encodeState(st)
	if err != nil {
		return err
	}
	if err := s.backend.Put(ctx, s.rosterBucket(), payload); err != nil {
		return fmt.Errorf("write roster bucket: %w", err)
	}
	s.state = st.clone()
	return nil
}

// Close releases the backend.
func (s *Store) Close() error { return s.backend.Close() }

// Subscribe registers fn to receive the new snapshot after every local
// mutation or remote adoption. The returned func removes the listener.
func (s *Store) Subscribe(fn func(domain.RosterSnapshot)) func() {
	return s.listeners.add(fn)
}

type stateDocument struct {
	SchemaVersion int                 `json:"schemaVersion"`
	Roster        json.RawMessage     `json:"roster"`
	BaseVersion   domain.VersionToken `json:"baseVersion,omitempty"`
}

func encodeState(st State) ([]byte, error) {
	roster, err := domain.EncodeRoster(st.Snapshot)
	if err != nil {
		return nil, fmt.Errorf("encode roster: %w", err)
	}
	return json.Marshal(stateDocument{SchemaVersion: domain.SchemaVersion, Roster: roster, BaseVersion: st.BaseVersion})
}

// decodeState accepts the state envelope and, for devices upgraded from the
// legacy layout, a bare roster document stored directly in the bucket.
func decodeState(raw []byte) (State, error) {
	var doc stateDocument
	if err := json.Unmarshal(raw, &doc); err != nil || len(doc.Roster) == 0 {
		snap, derr := domain.DecodeRoster("local", raw)
		if derr != nil {
			return State{}, derr
		}
		return State{Snapshot: snap, BaseVersion: snap.Version}, nil
	}
	snap, err := domain.DecodeRoster("local", doc.Roster)
	if err != nil {
		return State{}, err
	}
	return State{Snapshot: snap, BaseVersion: doc.BaseVersion}, nil
}

type listenerSet struct {
	mu   sync.Mutex
	next int
	fns  map[int]func(domain.RosterSnapshot)
}

func (l *listenerSet) add(fn func(domain.RosterSnapshot)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fns == nil {
		l.fns = make(map[int]func(domain.RosterSnapshot))
	}
	id := l.next
	l.next++
	l.fns[id] = fn
	return func() {
		l.mu.Lock()
		delete(l.fns, id)
		l.mu.Unlock()
	}
}

func (l *listenerSet) notify(snap domain.RosterSnapshot) {
	l.mu.Lock()
	fns := make([]func(domain.RosterSnapshot), 0, len(l.fns))
	for _, fn := range l.fns {
		fns = append(fns, fn)
	}
	l.mu.Unlock()
	for _, fn := range fns {
		fn(snap.Clone())
	}
}
