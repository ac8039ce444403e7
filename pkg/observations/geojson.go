package observations

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// ErrNoCoordinates is returned for a record without a [lon, lat] pair.
var ErrNoCoordinates = errors.New("record has no position coordinates")

func coordinates(doc map[string]any) (lon, lat float64, err error) {
	pos, _ := doc["position"].(map[string]any)
	pair, ok := pos["coordinates"].([]any)
	if !ok || len(pair) != 2 {
		return 0, 0, ErrNoCoordinates
	}
	lon, okLon := toFloat(pair[0])
	lat, okLat := toFloat(pair[1])
	if !okLon || !okLat {
		return 0, 0, ErrNoCoordinates
	}
	return lon, lat, nil
}

// ToFeature turns a record into a Point feature whose properties are the
// record minus position.coordinates. doc is not modified.
func ToFeature(doc map[string]any) (*geojson.Feature, error) {
	lon, lat, err := coordinates(doc)
	if err != nil {
		return nil, fmt.Errorf("to feature %v: %w", doc["id"], err)
	}

	props := make(geojson.Properties, len(doc))
	for k, v := range doc {
		props[k] = v
	}
	pos := doc["position"].(map[string]any)
	rest := make(map[string]any, len(pos))
	for k, v := range pos {
		if k != "coordinates" {
			rest[k] = v
		}
	}
	props["position"] = rest

	f := geojson.NewFeature(orb.Point{lon, lat})
	f.Properties = props
	return f, nil
}

// ToFeatureCollection converts every record.
func ToFeatureCollection(docs []map[string]any) (*geojson.FeatureCollection, error) {
	fc := geojson.NewFeatureCollection()
	for _, d := range docs {
		f, err := ToFeature(d)
		if err != nil {
			return nil, err
		}
		fc.Append(f)
	}
	return fc, nil
}
