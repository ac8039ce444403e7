package config

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// KML geometry, reduced to what a region boundary can be.
type kmlRing struct {
	Coordinates string `xml:"coordinates"`
}

type kmlPolygon struct {
	OuterBoundary struct {
		LinearRing kmlRing `xml:"LinearRing"`
	} `xml:"outerBoundaryIs"`
	InnerBoundaries []struct {
		LinearRing kmlRing `xml:"LinearRing"`
	} `xml:"innerBoundaryIs"`
}

type kmlExtendedData struct {
	Data []struct {
		Name  string `xml:"name,attr"`
		Value string `xml:"value"`
	} `xml:"Data"`
	SchemaData []struct {
		SimpleData []struct {
			Name  string `xml:"name,attr"`
			Value string `xml:",chardata"`
		} `xml:"SimpleData"`
	} `xml:"SchemaData"`
}

type kmlPlacemark struct {
	Name          string           `xml:"name"`
	ExtendedData  *kmlExtendedData `xml:"ExtendedData"`
	Polygon       *kmlPolygon      `xml:"Polygon"`
	MultiGeometry *struct {
		Polygons []kmlPolygon `xml:"Polygon"`
	} `xml:"MultiGeometry"`
}

type kmlFolder struct {
	Placemarks []kmlPlacemark `xml:"Placemark"`
	Folders    []kmlFolder    `xml:"Folder"`
}

type kmlDocument struct {
	XMLName  xml.Name  `xml:"kml"`
	Document kmlFolder `xml:"Document"`
}

// extractKML returns the first .kml entry of a KMZ archive.
func extractKML(kmz []byte) ([]byte, error) {
	reader, err := zip.NewReader(bytes.NewReader(kmz), int64(len(kmz)))
	if err != nil {
		return nil, fmt.Errorf("failed to open KMZ archive: %w", err)
	}
	for _, f := range reader.File {
		if !strings.HasSuffix(strings.ToLower(f.Name), ".kml") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open KML file: %w", err)
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, fmt.Errorf("no KML file found in KMZ archive")
}

// kmlRegions converts every polygonal placemark into a feature. A
// MultiGeometry becomes one MultiPolygon; ExtendedData becomes properties.
func kmlRegions(data []byte) (*geojson.FeatureCollection, error) {
	var doc kmlDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse KML: %w", err)
	}
	fc := geojson.NewFeatureCollection()
	var walk func(f *kmlFolder) error
	walk = func(f *kmlFolder) error {
		for i := range f.Placemarks {
			feature, err := kmlFeature(&f.Placemarks[i])
			if err != nil {
				return err
			}
			if feature != nil {
				fc.Append(feature)
			}
		}
		for i := range f.Folders {
			if err := walk(&f.Folders[i]); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(&doc.Document); err != nil {
		return nil, err
	}
	return fc, nil
}

func kmlFeature(pm *kmlPlacemark) (*geojson.Feature, error) {
	var geometry orb.Geometry
	switch {
	case pm.Polygon != nil:
		p, err := pm.Polygon.polygon()
		if err != nil {
			return nil, fmt.Errorf("placemark %q: %w", pm.Name, err)
		}
		geometry = p
	case pm.MultiGeometry != nil && len(pm.MultiGeometry.Polygons) > 0:
		mp := make(orb.MultiPolygon, 0, len(pm.MultiGeometry.Polygons))
		for i := range pm.MultiGeometry.Polygons {
			p, err := pm.MultiGeometry.Polygons[i].polygon()
			if err != nil {
				return nil, fmt.Errorf("placemark %q: %w", pm.Name, err)
			}
			mp = append(mp, p)
		}
		geometry = mp
	default:
		// points and lines are labels, not regions
		return nil, nil
	}

	feature := geojson.NewFeature(geometry)
	feature.Properties["name"] = strings.TrimSpace(pm.Name)
	if pm.ExtendedData != nil {
		for _, d := range pm.ExtendedData.Data {
			feature.Properties[d.Name] = strings.TrimSpace(d.Value)
		}
		for _, sd := range pm.ExtendedData.SchemaData {
			for _, d := range sd.SimpleData {
				feature.Properties[d.Name] = strings.TrimSpace(d.Value)
			}
		}
	}
	return feature, nil
}

func (p *kmlPolygon) polygon() (orb.Polygon, error) {
	outer, err := parseKMLRing(p.OuterBoundary.LinearRing.Coordinates)
	if err != nil {
		return nil, err
	}
	polygon := orb.Polygon{outer}
	for _, inner := range p.InnerBoundaries {
		ring, err := parseKMLRing(inner.LinearRing.Coordinates)
		if err != nil {
			return nil, err
		}
		polygon = append(polygon, ring)
	}
	return polygon, nil
}

// parseKMLRing reads "lon,lat[,ele] lon,lat[,ele] ..." and drops elevation.
func parseKMLRing(s string) (orb.Ring, error) {
	var ring orb.Ring
	for _, tuple := range strings.Fields(s) {
		parts := strings.Split(tuple, ",")
		if len(parts) < 2 {
			return nil, fmt.Errorf("invalid coordinate %q", tuple)
		}
		lon, err := strconv.ParseFloat(parts[0], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid longitude %q", parts[0])
		}
		lat, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid latitude %q", parts[1])
		}
		ring = append(ring, orb.Point{lon, lat})
	}
	return ring, nil
}
