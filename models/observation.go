package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Coordinates is a [lon, lat] pair stored as a JSON array.
type Coordinates [2]float64

// Lon returns the first element.
func (c Coordinates) Lon() float64 { return c[0] }

// Lat returns the second element.
func (c Coordinates) Lat() float64 { return c[1] }

// Value implements driver.Valuer.
func (c Coordinates) Value() (driver.Value, error) {
	b, err := json.Marshal([2]float64(c))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (c *Coordinates) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*c = Coordinates{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("Coordinates.Scan: unsupported type %T", src)
	}
	var pair [2]float64
	if err := json.Unmarshal(raw, &pair); err != nil {
		return fmt.Errorf("Coordinates.Scan: %w", err)
	}
	*c = Coordinates(pair)
	return nil
}

// Code is a classification code, e.g. {"code": 3}.
type Code struct {
	Code int `json:"code"`
}

// Position is where the observation was made. RegionID and AreaCode are
// stamped by the server from the containing Roi.
type Position struct {
	Coordinates Coordinates `gorm:"column:coordinates;type:jsonb;not null" json:"coordinates"`
	CRS         Code        `gorm:"embedded;embeddedPrefix:crs_"          json:"crs"`
	Accuracy    *float64    `gorm:"column:accuracy"                       json:"accuracy,omitempty"`
	RegionID    *uuid.UUID  `gorm:"column:region_id;type:uuid;index"      json:"regionId,omitempty"`
	AreaCode    *int        `gorm:"column:area_code"                      json:"areaCode,omitempty"`
}

// Weather at observation time.
type Weather struct {
	Temperature *float64 `json:"temperature,omitempty"`
	Sky         *Code    `json:"sky,omitempty"`
	Wind        *float64 `json:"wind,omitempty"`
}

// Observation is one citizen-science report. Details and Measures are kept
// schema-less; their shape is enforced by validation before insert.
type Observation struct {
	ID                uuid.UUID                   `gorm:"type:uuid;primaryKey"                         json:"id"`
	SubmitterID       *uuid.UUID                  `gorm:"column:submitter_id;type:uuid;index"          json:"submitterId,omitempty"`
	CallID            *int                        `gorm:"column:call_id"                               json:"callId,omitempty"`
	Position          Position                    `gorm:"embedded;embeddedPrefix:position_"            json:"position"`
	Weather           *Weather                    `gorm:"column:weather;type:jsonb;serializer:json"    json:"weather,omitempty"`
	Details           datatypes.JSON              `gorm:"column:details;type:jsonb"                    json:"details,omitempty"`
	Measures          datatypes.JSON              `gorm:"column:measures;type:jsonb"                   json:"measures,omitempty"`
	Other             *string                     `gorm:"column:other"                                 json:"other,omitempty"`
	Photos            datatypes.JSONSlice[string] `gorm:"column:photos"                                json:"photos,omitempty"`
	MarkedForDeletion bool                        `gorm:"column:marked_for_deletion;not null;default:false;index" json:"markedForDeletion"`

	CreatedAt time.Time `gorm:"index"          json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// BeforeCreate assigns the id when the caller left it empty.
func (o *Observation) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

// Document renders the observation as a generic JSON tree, the shape the
// enrichment steps operate on.
func (o *Observation) Document() (map[string]any, error) {
	b, err := json.Marshal(o)
	if err != nil {
		return nil, fmt.Errorf("encode observation %s: %w", o.ID, err)
	}
	doc := map[string]any{}
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("decode observation %s: %w", o.ID, err)
	}
	// NULL json columns come back as null
	for k, v := range doc {
		if v == nil {
			delete(doc, k)
		}
	}
	return doc, nil
}

// ObservationFromDocument decodes a validated, normalized submission tree.
func ObservationFromDocument(doc map[string]any) (*Observation, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var o Observation
	if err := json.Unmarshal(b, &o); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return &o, nil
}
