package config

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/paulmach/orb/geojson"

	"p9e.in/lakewatch/models"
	"p9e.in/lakewatch/utils"
)

// RoiSaver persists a region, replacing one with the same name.
type RoiSaver interface {
	SaveRoi(ctx context.Context, r *models.Roi) error
}

// LoadRois reads regions from a GeoJSON FeatureCollection, or from a KML or
// KMZ file when the extension says so. Every region needs a Polygon or
// MultiPolygon geometry and "name" and "areaCode" properties.
func LoadRois(path string) ([]models.Roi, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read roi seed %s: %w", path, err)
	}

	var fc *geojson.FeatureCollection
	switch strings.ToLower(filepath.Ext(path)) {
	case ".kmz":
		if data, err = extractKML(data); err == nil {
			fc, err = kmlRegions(data)
		}
	case ".kml":
		fc, err = kmlRegions(data)
	default:
		fc, err = geojson.UnmarshalFeatureCollection(data)
	}
	if err != nil {
		return nil, fmt.Errorf("parse roi seed %s: %w", path, err)
	}

	rois := make([]models.Roi, 0, len(fc.Features))
	for i, f := range fc.Features {
		if err := utils.ValidateRegion(f.Geometry); err != nil {
			return nil, fmt.Errorf("roi seed feature %d: %w", i, err)
		}
		name, _ := f.Properties["name"].(string)
		if name == "" {
			return nil, fmt.Errorf("roi seed feature %d: missing name", i)
		}
		area, ok := areaCode(f.Properties["areaCode"])
		if !ok {
			return nil, fmt.Errorf("roi seed feature %d (%s): areaCode must be an integer", i, name)
		}
		geometry, err := json.Marshal(geojson.NewGeometry(f.Geometry))
		if err != nil {
			return nil, fmt.Errorf("roi seed feature %d (%s): %w", i, name, err)
		}
		rois = append(rois, models.Roi{Name: name, AreaCode: area, Geometry: geometry})
	}
	return rois, nil
}

// areaCode accepts JSON numbers and, for KML ExtendedData, numerals.
func areaCode(v any) (int, bool) {
	switch t := v.(type) {
	case float64:
		return int(t), t == float64(int(t))
	case string:
		n, err := strconv.Atoi(t)
		return n, err == nil
	}
	return 0, false
}

// SeedRois loads path and saves every region. An empty path is a no-op.
func SeedRois(ctx context.Context, saver RoiSaver, path string, log *slog.Logger) (int, error) {
	if path == "" {
		return 0, nil
	}
	rois, err := LoadRois(path)
	if err != nil {
		return 0, err
	}
	for i := range rois {
		if err := saver.SaveRoi(ctx, &rois[i]); err != nil {
			return i, err
		}
	}
	log.Info("seeded regions of interest", "count", len(rois), "file", path)
	return len(rois), nil
}
