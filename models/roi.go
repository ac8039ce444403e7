package models

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Roi is a region of interest. Observations falling inside its polygon are
// stamped with its id and area code.
type Roi struct {
	ID       uuid.UUID      `gorm:"type:uuid;primaryKey"          json:"id"`
	Name     string         `gorm:"column:name;not null"          json:"name"`
	AreaCode int            `gorm:"column:area_code;not null"     json:"areaCode"`
	Geometry datatypes.JSON `gorm:"column:geometry;type:jsonb;not null" json:"geometry"`

	// bounding box, kept in sync with Geometry for a cheap prefilter
	MinLon float64 `gorm:"column:min_lon;index:idx_roi_bbox" json:"-"`
	MinLat float64 `gorm:"column:min_lat;index:idx_roi_bbox" json:"-"`
	MaxLon float64 `gorm:"column:max_lon;index:idx_roi_bbox" json:"-"`
	MaxLat float64 `gorm:"column:max_lat;index:idx_roi_bbox" json:"-"`
}

// BeforeSave assigns the id and refreshes the bounding box.
func (r *Roi) BeforeSave(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	g, err := r.Shape()
	if err != nil {
		return err
	}
	b := g.Bound()
	r.MinLon, r.MinLat = b.Min.Lon(), b.Min.Lat()
	r.MaxLon, r.MaxLat = b.Max.Lon(), b.Max.Lat()
	return nil
}

// Shape decodes the stored GeoJSON geometry. Only Polygon and MultiPolygon
// are accepted.
func (r *Roi) Shape() (orb.Geometry, error) {
	g, err := geojson.UnmarshalGeometry(r.Geometry)
	if err != nil {
		return nil, fmt.Errorf("roi %s: geometry: %w", r.Name, err)
	}
	switch g.Geometry().(type) {
	case orb.Polygon, orb.MultiPolygon:
		return g.Geometry(), nil
	default:
		return nil, fmt.Errorf("roi %s: unsupported geometry %s", r.Name, g.Geometry().GeoJSONType())
	}
}

// Contains reports whether the point lies inside the region.
func (r *Roi) Contains(lon, lat float64) (bool, error) {
	g, err := r.Shape()
	if err != nil {
		return false, err
	}
	p := orb.Point{lon, lat}
	switch shape := g.(type) {
	case orb.Polygon:
		return planar.PolygonContains(shape, p), nil
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(shape, p), nil
	}
	return false, nil
}
