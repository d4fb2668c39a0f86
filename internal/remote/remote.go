// Package remote defines the shared remote store the sync engine reconciles
// against, plus an adapter over blob.Store.
package remote

import (
	"context"
	"time"
)

// DefaultResourceName is the fixed name of the shared roster resource.
const DefaultResourceName = "consegne.json"

// Resource identifies a stored roster document and when it last changed.
type Resource struct {
	ID           string
	Name         string
	ModifiedTime time.Time
}

// Resources is the remote-store collaborator. Failures are reported as
// domain.TransportError values.
type Resources interface {
	// Find reports the resource with name, or false if none exists.
	Find(ctx context.Context, name string) (Resource, bool, error)
	Create(ctx context.Context, name string, content []byte) (Resource, error)
	Update(ctx context.Context, id string, content []byte) (Resource, error)
	Read(ctx context.Context, id string) ([]byte, error)
}
