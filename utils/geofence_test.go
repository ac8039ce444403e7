package utils

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
)

func TestValidateRegion(t *testing.T) {
	square := orb.Ring{{9, 45}, {10, 45}, {10, 46}, {9, 46}, {9, 45}}

	tests := []struct {
		name    string
		geom    orb.Geometry
		wantErr bool
	}{
		{"polygon", orb.Polygon{square}, false},
		{"multipolygon", orb.MultiPolygon{{square}, {square}}, false},
		{"empty multipolygon", orb.MultiPolygon{}, true},
		{"no rings", orb.Polygon{}, true},
		{"open ring", orb.Polygon{{{9, 45}, {10, 45}, {10, 46}, {9, 46}}}, true},
		{"too few points", orb.Polygon{{{9, 45}, {10, 45}, {9, 45}}}, true},
		{"latitude out of range", orb.Polygon{{{9, 45}, {10, 95}, {10, 46}, {9, 45}}}, true},
		{"longitude out of range", orb.Polygon{{{9, 45}, {190, 45}, {10, 46}, {9, 45}}}, true},
		{"point", orb.Point{9, 45}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRegion(tt.geom)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateCoordinate(t *testing.T) {
	assert.NoError(t, ValidateCoordinate(orb.Point{-180, 90}))
	assert.Error(t, ValidateCoordinate(orb.Point{0, -90.1}))
	assert.Error(t, ValidateCoordinate(orb.Point{180.1, 0}))
}
