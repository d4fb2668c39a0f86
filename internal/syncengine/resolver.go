package syncengine

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"wardroster/internal/remote"
	"wardroster/pkg/domain"
)

// Choice is the user's arbitration of a conflict.
type Choice string

const (
	// KeepLocal force-pushes the local roster over the remote copy.
	KeepLocal Choice = "keep-local"
	// KeepRemote discards local edits and adopts the remote copy.
	KeepRemote Choice = "keep-remote"
)

// ParseChoice validates a choice string.
func ParseChoice(s string) (Choice, error) {
	switch c := Choice(strings.ToLower(strings.TrimSpace(s))); c {
	case KeepLocal, KeepRemote:
		return c, nil
	}
	return "", domain.ValidationError{Field: "choice", Message: fmt.Sprintf("unknown choice %q", s)}
}

// Policy decides how detected conflicts are handled.
type Policy string

const (
	// PolicyManual waits for ResolveConflict.
	PolicyManual Policy = "manual"
	// PolicyKeepLocal resolves every conflict in favour of the local copy.
	PolicyKeepLocal Policy = "keep-local"
	// PolicyKeepRemote resolves every conflict in favour of the remote copy.
	PolicyKeepRemote Policy = "keep-remote"
)

// ParsePolicy validates a policy string; empty means manual.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PolicyManual, nil
	case PolicyManual, PolicyKeepLocal, PolicyKeepRemote:
		return p, nil
	}
	return "", fmt.Errorf("unknown conflict policy %q", s)
}

// ConflictState is the resolver lifecycle.
type ConflictState string

const (
	StateIdle     ConflictState = "idle"
	StateDetected ConflictState = "detected"
	StateResolved ConflictState = "resolved"
)

// Conflict captures both sides of a divergence for presentation.
type Conflict struct {
	Local      domain.RosterSnapshot `json:"local"`
	Remote     domain.RosterSnapshot `json:"remote"`
	Resource   remote.Resource       `json:"-"`
	DetectedAt time.Time             `json:"detectedAt"`
}

// ErrNoConflict is returned when resolving with nothing outstanding.
var ErrNoConflict = errors.New("no conflict outstanding")

// Resolver holds at most one outstanding conflict.
type Resolver struct {
	mu       sync.Mutex
	state    ConflictState
	current  *Conflict
	resolved Choice
}

// NewResolver returns an idle resolver.
func NewResolver() *Resolver { return &Resolver{state: StateIdle} }

// State returns the lifecycle state.
func (r *Resolver) State() ConflictState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Detect records c. It reports false, leaving the outstanding conflict in
// place, when one is already Detected.
func (r *Resolver) Detect(c Conflict) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateDetected {
		return false
	}
	cp := c
	cp.Local = c.Local.Clone()
	cp.Remote = c.Remote.Clone()
	r.current = &cp
	r.state = StateDetected
	r.resolved = ""
	return true
}

// Pending returns the outstanding conflict.
func (r *Resolver) Pending() (Conflict, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateDetected || r.current == nil {
		return Conflict{}, false
	}
	c := *r.current
	c.Local = c.Local.Clone()
	c.Remote = c.Remote.Clone()
	return c, true
}

// LastChoice returns the choice that resolved the most recent conflict.
func (r *Resolver) LastChoice() Choice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolved
}

// Resolve runs apply for the outstanding conflict. apply runs without the
// resolver lock held. On failure the conflict stays Detected.
func (r *Resolver) Resolve(choice Choice, apply func(Conflict, Choice) error) error {
	if _, err := ParseChoice(string(choice)); err != nil {
		return err
	}
	c, ok := r.Pending()
	if !ok {
		return ErrNoConflict
	}
	if err := apply(c, choice); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = StateResolved
	r.current = nil
	r.resolved = choice
	return nil
}
