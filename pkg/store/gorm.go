package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"p9e.in/lakewatch/models"
)

// GormStore keeps observations and rois in a SQL database.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore wraps an open connection. Migrations are run by the caller.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) scoped(ctx context.Context, f Filter) *gorm.DB {
	q := s.db.WithContext(ctx).Model(&models.Observation{})
	if f.ExcludeDeleted {
		q = q.Where("marked_for_deletion = ?", false)
	}
	if f.ExcludeOutOfRois {
		q = q.Where("position_region_id IS NOT NULL")
	}
	return q
}

// Find returns matching observations, newest first.
func (s *GormStore) Find(ctx context.Context, f Filter) ([]models.Observation, error) {
	q := s.scoped(ctx, f).Order("created_at DESC")
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if f.Offset > 0 {
		q = q.Offset(f.Offset)
	}
	var out []models.Observation
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("find observations: %w", err)
	}
	return out, nil
}

// FindByID returns ErrNotFound when the id is unknown or filtered out.
func (s *GormStore) FindByID(ctx context.Context, id uuid.UUID, f Filter) (*models.Observation, error) {
	var o models.Observation
	err := s.scoped(ctx, f).Where("id = ?", id).First(&o).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find observation %s: %w", id, err)
	}
	return &o, nil
}

// Insert writes the observation once.
func (s *GormStore) Insert(ctx context.Context, o *models.Observation) error {
	if err := s.db.WithContext(ctx).Create(o).Error; err != nil {
		return fmt.Errorf("insert observation: %w", err)
	}
	return nil
}

// MarkForDeletion flags the observation as soft-deleted.
func (s *GormStore) MarkForDeletion(ctx context.Context, id uuid.UUID) error {
	res := s.db.WithContext(ctx).Model(&models.Observation{}).
		Where("id = ?", id).
		Update("marked_for_deletion", true)
	if res.Error != nil {
		return fmt.Errorf("mark observation %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GormRoiLookup answers containment queries from the rois table.
type GormRoiLookup struct {
	db *gorm.DB
}

func NewGormRoiLookup(db *gorm.DB) *GormRoiLookup {
	return &GormRoiLookup{db: db}
}

// FindContaining prefilters candidates on their bounding box, then tests the
// exact geometry. The first containing roi in name order wins.
func (l *GormRoiLookup) FindContaining(ctx context.Context, lon, lat float64) (*RoiRef, error) {
	var candidates []models.Roi
	err := l.db.WithContext(ctx).
		Where("min_lon <= ? AND max_lon >= ? AND min_lat <= ? AND max_lat >= ?", lon, lon, lat, lat).
		Order("name").
		Find(&candidates).Error
	if err != nil {
		return nil, fmt.Errorf("find rois: %w", err)
	}
	for i := range candidates {
		in, err := candidates[i].Contains(lon, lat)
		if err != nil {
			return nil, err
		}
		if in {
			return &RoiRef{ID: candidates[i].ID, AreaCode: candidates[i].AreaCode}, nil
		}
	}
	return nil, nil
}

// SaveRoi inserts the region or replaces the one with the same name.
func (l *GormRoiLookup) SaveRoi(ctx context.Context, r *models.Roi) error {
	var existing models.Roi
	err := l.db.WithContext(ctx).Where("name = ?", r.Name).First(&existing).Error
	switch {
	case err == nil:
		r.ID = existing.ID
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("find roi %s: %w", r.Name, err)
	}
	if err := l.db.WithContext(ctx).Save(r).Error; err != nil {
		return fmt.Errorf("save roi %s: %w", r.Name, err)
	}
	return nil
}
