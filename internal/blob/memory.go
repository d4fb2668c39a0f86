package blob

import (
	"time"

	memorystore "wardroster/internal/infra/blob/memory"
)

// NewMemory returns an in-memory blob.Store.
func NewMemory() Store { return memorystore.New() }

// NewMemoryWithClock returns an in-memory blob.Store stamping writes with now.
func NewMemoryWithClock(now func() time.Time) Store { return memorystore.NewWithClock(now) }
