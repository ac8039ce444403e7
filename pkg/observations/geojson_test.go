package observations

import (
	"encoding/json"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDoc() map[string]any {
	return map[string]any{
		"id": "a1",
		"position": map[string]any{
			"coordinates": []any{9.18, 45.46},
			"crs":         map[string]any{"code": 1.0},
			"areaCode":    4.0,
		},
		"weather": map[string]any{"sky": map[string]any{"code": 1.0}},
	}
}

func TestToFeatureShape(t *testing.T) {
	doc := sampleDoc()
	f, err := ToFeature(doc)
	require.NoError(t, err)

	assert.Equal(t, orb.Point{9.18, 45.46}, f.Geometry)
	pos := f.Properties["position"].(map[string]any)
	assert.NotContains(t, pos, "coordinates")
	assert.Equal(t, 4.0, pos["areaCode"])
	assert.Equal(t, "a1", f.Properties["id"])

	// the record keeps its coordinates
	assert.Contains(t, doc["position"].(map[string]any), "coordinates")

	raw, err := json.Marshal(f)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"type": "Feature",
		"geometry": {"type": "Point", "coordinates": [9.18, 45.46]},
		"properties": {
			"id": "a1",
			"position": {"crs": {"code": 1}, "areaCode": 4},
			"weather": {"sky": {"code": 1}}
		}
	}`, string(raw))
}

func TestToFeatureWithoutCoordinates(t *testing.T) {
	_, err := ToFeature(map[string]any{"id": "x"})
	assert.ErrorIs(t, err, ErrNoCoordinates)

	_, err = ToFeature(map[string]any{"position": map[string]any{"coordinates": []any{"a", 1.0}}})
	assert.ErrorIs(t, err, ErrNoCoordinates)
}

func TestToFeatureCollection(t *testing.T) {
	second := sampleDoc()
	second["position"].(map[string]any)["coordinates"] = []any{9.5, 45.9}
	fc, err := ToFeatureCollection([]map[string]any{sampleDoc(), second})
	require.NoError(t, err)
	require.Len(t, fc.Features, 2)
	assert.Equal(t, orb.Point{9.5, 45.9}, fc.Features[1].Geometry)

	empty, err := ToFeatureCollection(nil)
	require.NoError(t, err)
	raw, err := json.Marshal(empty)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"FeatureCollection","features":[]}`, string(raw))
}
