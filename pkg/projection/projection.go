// Package projection converts coordinates between the canonical WGS84
// geographic system and the projected systems an observation can be served in.
package projection

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
	"gopkg.in/yaml.v3"
)

// Canonical is the code of WGS84 geographic coordinates.
const Canonical = 1

//go:embed projections.yaml
var defaultTable []byte

// ErrUnsupportedCode is returned for a reference system code missing from the table.
var ErrUnsupportedCode = errors.New("client provided unsupported code")

// Coord is a coordinate pair. For projected systems Lon holds the easting and
// Lat the northing.
type Coord struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Definition is the static description of one reference system.
// Kind "webmerc" is served by orb; "tmerc" is resolved by EPSG code.
type Definition struct {
	Code int    `yaml:"code"`
	Name string `yaml:"name"`
	EPSG int    `yaml:"epsg"`
	Kind string `yaml:"kind"`
}

type projector interface {
	forward(lon, lat float64) (x, y float64)
	inverse(x, y float64) (lon, lat float64)
}

type webMercator struct{}

func (webMercator) forward(lon, lat float64) (float64, float64) {
	p := project.WGS84.ToMercator(orb.Point{lon, lat})
	return p.X(), p.Y()
}

func (webMercator) inverse(x, y float64) (float64, float64) {
	p := project.Mercator.ToWGS84(orb.Point{x, y})
	return p.Lon(), p.Lat()
}

// Table holds the configured systems. It is immutable once built.
type Table struct {
	defs       map[int]Definition
	projectors map[int]projector
}

// Default parses the embedded table.
func Default() (*Table, error) {
	return Parse(defaultTable)
}

// Load reads a table from path, or the embedded one when path is empty.
func Load(path string) (*Table, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read projections %s: %w", path, err)
	}
	return Parse(data)
}

// Parse builds a Table from its YAML description.
func Parse(data []byte) (*Table, error) {
	var doc struct {
		Systems []Definition `yaml:"systems"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse projections: %w", err)
	}

	t := &Table{
		defs:       map[int]Definition{Canonical: {Code: Canonical, Name: "WGS 84", EPSG: 4326, Kind: "longlat"}},
		projectors: map[int]projector{},
	}
	for _, def := range doc.Systems {
		if _, dup := t.defs[def.Code]; dup {
			return nil, fmt.Errorf("parse projections: duplicate code %d", def.Code)
		}
		p, err := newProjector(def)
		if err != nil {
			return nil, fmt.Errorf("parse projections: code %d: %w", def.Code, err)
		}
		t.defs[def.Code] = def
		t.projectors[def.Code] = p
	}
	return t, nil
}

func newProjector(def Definition) (projector, error) {
	switch def.Kind {
	case "webmerc":
		return webMercator{}, nil
	case "tmerc":
		if def.EPSG <= 0 {
			return nil, errors.New("tmerc needs an epsg code")
		}
		return newEPSGProjector(def.EPSG)
	default:
		return nil, fmt.Errorf("unknown kind %q", def.Kind)
	}
}

// Supports reports whether code is canonical or configured.
func (t *Table) Supports(code int) bool {
	_, ok := t.defs[code]
	return ok
}

// Codes lists every supported code in ascending order.
func (t *Table) Codes() []int {
	codes := make([]int, 0, len(t.defs))
	for c := range t.defs {
		codes = append(codes, c)
	}
	sort.Ints(codes)
	return codes
}

// Definition returns the configured description of code.
func (t *Table) Definition(code int) (Definition, error) {
	def, ok := t.defs[code]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %d", ErrUnsupportedCode, code)
	}
	return def, nil
}

// Reproject converts a canonical WGS84 coordinate into the target system.
func (t *Table) Reproject(target int, lat, lon float64) (Coord, error) {
	if target == Canonical {
		return Coord{Lat: lat, Lon: lon}, nil
	}
	p, ok := t.projectors[target]
	if !ok {
		return Coord{}, fmt.Errorf("%w: %d", ErrUnsupportedCode, target)
	}
	x, y := p.forward(lon, lat)
	return Coord{Lat: y, Lon: x}, nil
}

// Unproject converts a coordinate expressed in source back to canonical WGS84.
func (t *Table) Unproject(source int, lat, lon float64) (Coord, error) {
	if source == Canonical {
		return Coord{Lat: lat, Lon: lon}, nil
	}
	p, ok := t.projectors[source]
	if !ok {
		return Coord{}, fmt.Errorf("%w: %d", ErrUnsupportedCode, source)
	}
	outLon, outLat := p.inverse(lon, lat)
	return Coord{Lat: outLat, Lon: outLon}, nil
}
