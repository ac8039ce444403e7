// Package store persists observations and answers region-of-interest lookups.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"p9e.in/lakewatch/models"
)

// ErrNotFound is returned when no observation matches the id and filter.
var ErrNotFound = errors.New("store: observation not found")

// Filter narrows reads. The zero value matches everything.
type Filter struct {
	ExcludeDeleted   bool
	ExcludeOutOfRois bool
	Limit            int
	Offset           int
}

// ObservationStore is the document store behind the pipeline.
type ObservationStore interface {
	Find(ctx context.Context, f Filter) ([]models.Observation, error)
	FindByID(ctx context.Context, id uuid.UUID, f Filter) (*models.Observation, error)
	Insert(ctx context.Context, o *models.Observation) error
	MarkForDeletion(ctx context.Context, id uuid.UUID) error
}

// RoiRef identifies the region an observation falls in.
type RoiRef struct {
	ID       uuid.UUID
	AreaCode int
}

// RoiLookup finds the region containing a canonical point. A nil ref with a
// nil error means the point is outside every region.
type RoiLookup interface {
	FindContaining(ctx context.Context, lon, lat float64) (*RoiRef, error)
}
