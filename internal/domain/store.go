package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// SimulationStore persists simulation records.
type SimulationStore interface {
	Insert(ctx context.Context, rec SimulationRecord) error
	GetByID(ctx context.Context, id string) (SimulationRecord, error)
	List(ctx context.Context, opts ListOpts) ([]SimulationRecord, error)
}
