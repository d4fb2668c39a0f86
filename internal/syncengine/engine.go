// Package syncengine reconciles the local roster with the shared remote copy:
// it classifies divergence, pushes and pulls whole snapshots, and holds true
// conflicts for arbitration.
package syncengine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"wardroster/internal/auth"
	"wardroster/internal/localstore"
	"wardroster/internal/remote"
	"wardroster/pkg/domain"
)

// DefaultInterval is the auto-sync period.
const DefaultInterval = 30 * time.Second

// ErrCycleInFlight is returned by SyncNow when another cycle holds the slot.
var ErrCycleInFlight = errors.New("reconciliation cycle already in flight")

// Outcome summarises one reconciliation cycle.
type Outcome string

const (
	OutcomeLocalOnly           Outcome = "local-only"
	OutcomeAwaitingArbitration Outcome = "awaiting-arbitration"
	OutcomeUpToDate            Outcome = "up-to-date"
	OutcomeCreated             Outcome = "created"
	OutcomePushed              Outcome = "pushed"
	OutcomePulled              Outcome = "pulled"
	OutcomeConflict            Outcome = "conflict"
	OutcomeStale               Outcome = "stale"
	OutcomeFailed              Outcome = "failed"
)

// CycleReport describes a finished cycle.
type CycleReport struct {
	Outcome        Outcome
	Classification Classification
	StartedAt      time.Time
	Duration       time.Duration
	AutoResolved   Choice
	Err            error
}

// Status is the externally visible sync state.
type Status struct {
	Authenticated       bool      `json:"authenticated"`
	AutoSync            bool      `json:"autoSync"`
	LastCycleAt         time.Time `json:"lastCycleAt,omitempty"`
	LastOutcome         Outcome   `json:"lastOutcome,omitempty"`
	LastError           string    `json:"lastError,omitempty"`
	Pending             bool      `json:"pending"`
	ConflictOutstanding bool      `json:"conflictOutstanding"`
	DeviceID            string    `json:"deviceId"`
	ResourceName        string    `json:"resourceName"`
}

// Option configures an Engine.
type Option func(*Engine)

// WithInterval sets the auto-sync period.
func WithInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.interval = d
		}
	}
}

// WithPolicy sets the automatic conflict policy.
func WithPolicy(p Policy) Option {
	return func(e *Engine) {
		if p != "" {
			e.policy = p
		}
	}
}

// WithResourceName overrides the shared remote resource name.
func WithResourceName(name string) Option {
	return func(e *Engine) {
		if name != "" {
			e.resourceName = name
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) {
		if r != nil {
			e.metrics = r
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.nowFn = now
		}
	}
}

// WithAutoSync sets the initial auto-sync state (default on).
func WithAutoSync(enabled bool) Option {
	return func(e *Engine) { e.autoSync.Store(enabled) }
}

// Engine is the SyncEngine.
type Engine struct {
	store        *localstore.Store
	remote       remote.Resources
	auth         auth.Authenticator
	resolver     *Resolver
	policy       Policy
	interval     time.Duration
	resourceName string
	metrics      Recorder
	logger       *zap.Logger
	nowFn        func() time.Time

	slot     *semaphore.Weighted
	autoSync atomic.Bool
	inflight sync.WaitGroup

	mu        sync.Mutex
	last      CycleReport
	listeners []func(Conflict)
}

// New constructs an Engine reconciling store against res.
func New(store *localstore.Store, res remote.Resources, authn auth.Authenticator, opts ...Option) *Engine {
	e := &Engine{
		store:        store,
		remote:       res,
		auth:         authn,
		resolver:     NewResolver(),
		policy:       PolicyManual,
		interval:     DefaultInterval,
		resourceName: remote.DefaultResourceName,
		metrics:      NoopRecorder{},
		logger:       zap.NewNop(),
		nowFn:        func() time.Time { return time.Now().UTC() },
		slot:         semaphore.NewWeighted(1),
	}
	e.autoSync.Store(true)
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run ticks until ctx is done, starting a cycle per tick when auto-sync is on
// and the slot is free. It waits for an in-flight cycle before returning.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	e.logger.Info("sync engine started", zap.Duration("interval", e.interval), zap.String("policy", string(e.policy)))
	e.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			e.inflight.Wait()
			e.logger.Info("sync engine stopped")
			return ctx.Err()
		case <-ticker.C:
			e.tick(ctx)
		}
	}
}

func (e *Engine) tick(ctx context.Context) {
	if !e.autoSync.Load() {
		e.metrics.CycleSkipped("disabled")
		return
	}
	if !e.slot.TryAcquire(1) {
		e.metrics.CycleSkipped("busy")
		e.logger.Debug("skipping tick, cycle in flight")
		return
	}
	e.inflight.Add(1)
	go func() {
		defer e.inflight.Done()
		defer e.slot.Release(1)
		e.cycle(ctx)
	}()
}

// SyncNow runs one cycle synchronously.
func (e *Engine) SyncNow(ctx context.Context) (CycleReport, error) {
	if !e.slot.TryAcquire(1) {
		return CycleReport{}, ErrCycleInFlight
	}
	defer e.slot.Release(1)
	report := e.cycle(ctx)
	return report, report.Err
}

// SetAutoSync enables or disables periodic cycles.
func (e *Engine) SetAutoSync(enabled bool) {
	e.autoSync.Store(enabled)
	e.logger.Info("auto-sync toggled", zap.Bool("enabled", enabled))
}

// AutoSync reports whether periodic cycles are enabled.
func (e *Engine) AutoSync() bool { return e.autoSync.Load() }

// OnConflictDetected registers fn to be called when a conflict awaits
// arbitration.
func (e *Engine) OnConflictDetected(fn func(Conflict)) {
	e.mu.Lock()
	e.listeners = append(e.listeners, fn)
	e.mu.Unlock()
}

// PendingConflict returns the conflict awaiting arbitration.
func (e *Engine) PendingConflict() (Conflict, bool) { return e.resolver.Pending() }

// Status reports the current sync state.
func (e *Engine) Status() Status {
	e.mu.Lock()
	last := e.last
	e.mu.Unlock()
	st := Status{
		Authenticated:       e.auth.IsAuthenticated(),
		AutoSync:            e.autoSync.Load(),
		LastCycleAt:         last.StartedAt,
		LastOutcome:         last.Outcome,
		Pending:             e.store.Load().Pending(),
		ConflictOutstanding: e.resolver.State() == StateDetected,
		DeviceID:            e.store.DeviceID(),
		ResourceName:        e.resourceName,
	}
	if last.Err != nil {
		st.LastError = last.Err.Error()
	}
	return st
}

// ResolveConflict applies the user's choice to the outstanding conflict. It
// waits for any in-flight cycle. On failure the conflict stays outstanding.
func (e *Engine) ResolveConflict(ctx context.Context, choice Choice) error {
	if err := e.slot.Acquire(ctx, 1); err != nil {
		return err
	}
	defer e.slot.Release(1)
	err := e.resolver.Resolve(choice, func(c Conflict, choice Choice) error {
		return e.apply(ctx, choice)
	})
	if err != nil {
		e.logger.Warn("conflict resolution failed", zap.String("choice", string(choice)), zap.Error(err))
		return err
	}
	e.metrics.ConflictOutstanding(false)
	e.logger.Info("conflict resolved", zap.String("choice", string(choice)))
	return nil
}

func (e *Engine) apply(ctx context.Context, choice Choice) error {
	res, found, err := e.remote.Find(ctx, e.resourceName)
	if err != nil {
		return err
	}
	switch choice {
	case KeepLocal:
		var target *remote.Resource
		if found {
			target = &res
		}
		return e.push(ctx, target)
	case KeepRemote:
		if !found {
			return domain.InvalidOperationError{Op: "keep-remote", Reason: "remote copy no longer exists"}
		}
		return e.pull(ctx, res, nil)
	}
	return domain.InvalidOperationError{Op: "resolve", Reason: fmt.Sprintf("unknown choice %q", choice)}
}

// cycle must be called with the slot held.
func (e *Engine) cycle(ctx context.Context) CycleReport {
	report := CycleReport{StartedAt: e.nowFn()}
	report.Outcome, report.Classification, report.AutoResolved, report.Err = e.reconcile(ctx)
	report.Duration = e.nowFn().Sub(report.StartedAt)

	e.mu.Lock()
	e.last = report
	e.mu.Unlock()
	e.metrics.CycleFinished(report.Outcome, report.Duration)

	fields := []zap.Field{
		zap.String("outcome", string(report.Outcome)),
		zap.String("classification", string(report.Classification)),
		zap.Duration("duration", report.Duration),
	}
	if report.Err != nil {
		e.logger.Warn("reconciliation cycle failed", append(fields, zap.Error(report.Err))...)
	} else {
		e.logger.Debug("reconciliation cycle finished", fields...)
	}
	return report
}

func (e *Engine) reconcile(ctx context.Context) (Outcome, Classification, Choice, error) {
	if !e.auth.IsAuthenticated() {
		return OutcomeLocalOnly, "", "", nil
	}
	if e.resolver.State() == StateDetected {
		return OutcomeAwaitingArbitration, "", "", nil
	}
	res, found, err := e.remote.Find(ctx, e.resourceName)
	if err != nil {
		return OutcomeFailed, "", "", err
	}
	if !found {
		if err := e.push(ctx, nil); err != nil {
			return OutcomeFailed, RemoteMissing, "", err
		}
		return OutcomeCreated, RemoteMissing, "", nil
	}

	state := e.store.Load()
	class := Classify(state.BaseVersion, res.ModifiedTime, state.Pending())
	switch class {
	case InSync:
		if !state.Pending() {
			return OutcomeUpToDate, class, "", nil
		}
		if err := e.push(ctx, &res); err != nil {
			return OutcomeFailed, class, "", err
		}
		return OutcomePushed, class, "", nil
	case RemoteAhead:
		expect := state.Snapshot.Version
		if err := e.pull(ctx, res, &expect); err != nil {
			if errors.Is(err, localstore.ErrStale) {
				return OutcomeStale, class, "", nil
			}
			return OutcomeFailed, class, "", err
		}
		return OutcomePulled, class, "", nil
	default:
		return e.escalate(ctx, res, state)
	}
}

func (e *Engine) escalate(ctx context.Context, res remote.Resource, state localstore.State) (Outcome, Classification, Choice, error) {
	switch e.policy {
	case PolicyKeepLocal:
		if err := e.push(ctx, &res); err != nil {
			return OutcomeFailed, Conflicting, "", err
		}
		e.logger.Info("conflict resolved by policy", zap.String("policy", string(e.policy)))
		return OutcomePushed, Conflicting, KeepLocal, nil
	case PolicyKeepRemote:
		if err := e.pull(ctx, res, nil); err != nil {
			return OutcomeFailed, Conflicting, "", err
		}
		e.logger.Info("conflict resolved by policy", zap.String("policy", string(e.policy)))
		return OutcomePulled, Conflicting, KeepRemote, nil
	}

	remoteSnap, err := e.readRemote(ctx, res)
	if err != nil {
		return OutcomeFailed, Conflicting, "", err
	}
	c := Conflict{Local: state.Snapshot, Remote: remoteSnap, Resource: res, DetectedAt: e.nowFn()}
	if e.resolver.Detect(c) {
		e.metrics.ConflictOutstanding(true)
		e.logger.Warn("conflict detected",
			zap.String("local_version", state.Snapshot.Version.String()),
			zap.String("base_version", state.BaseVersion.String()),
			zap.Time("remote_modified", res.ModifiedTime),
		)
		e.mu.Lock()
		listeners := append([]func(Conflict){}, e.listeners...)
		e.mu.Unlock()
		for _, fn := range listeners {
			fn(c)
		}
	}
	return OutcomeConflict, Conflicting, "", nil
}

// push uploads the current local snapshot, re-read right before the upload.
// A nil target creates the remote resource.
func (e *Engine) push(ctx context.Context, target *remote.Resource) error {
	state := e.store.Load()
	payload, err := domain.EncodeRoster(state.Snapshot)
	if err != nil {
		return domain.SerializationError{Source: "local", Err: err}
	}
	var uploaded remote.Resource
	if target == nil {
		uploaded, err = e.remote.Create(ctx, e.resourceName, payload)
	} else {
		uploaded, err = e.remote.Update(ctx, target.ID, payload)
	}
	if err != nil {
		return err
	}
	token := domain.MintVersion(reconciledAt(e.nowFn(), uploaded.ModifiedTime))
	if _, err := e.store.MarkSynced(ctx, state.Snapshot.Version, token); err != nil {
		return fmt.Errorf("record push: %w", err)
	}
	e.metrics.Pushed()
	e.logger.Info("pushed local roster",
		zap.Int("patients", len(state.Snapshot.Patients)),
		zap.String("resource_id", uploaded.ID),
		zap.String("version", token.String()),
	)
	return nil
}

// pull adopts the remote snapshot. A non-nil expect makes adoption
// conditional on the local version being unchanged.
func (e *Engine) pull(ctx context.Context, res remote.Resource, expect *domain.VersionToken) error {
	snap, err := e.readRemote(ctx, res)
	if err != nil {
		return err
	}
	token := domain.MintVersion(reconciledAt(res.ModifiedTime, res.ModifiedTime))
	if _, err := e.store.Adopt(ctx, snap, token, expect); err != nil {
		return err
	}
	e.metrics.Pulled()
	e.logger.Info("pulled remote roster", zap.Int("patients", len(snap.Patients)), zap.String("version", token.String()))
	return nil
}

func (e *Engine) readRemote(ctx context.Context, res remote.Resource) (domain.RosterSnapshot, error) {
	content, err := e.remote.Read(ctx, res.ID)
	if err != nil {
		return domain.RosterSnapshot{}, err
	}
	return domain.DecodeRoster("remote", content)
}
