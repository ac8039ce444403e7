// Package taxonomy holds the closed integer ranges of every classification
// code, keyed by entity and dotted field path.
package taxonomy

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed taxonomy.yaml
var defaultTable []byte

// ErrUnknownPath is returned when no bounds are configured for a path.
var ErrUnknownPath = errors.New("taxonomy: unknown path")

// Bounds is an inclusive integer range.
type Bounds struct {
	Min int `yaml:"min" json:"min"`
	Max int `yaml:"max" json:"max"`
}

// Contains reports whether code lies inside the range.
func (b Bounds) Contains(code int) bool {
	return code >= b.Min && code <= b.Max
}

// Taxonomy is read-only after construction and safe for concurrent use.
type Taxonomy struct {
	entities map[string]map[string]Bounds
}

// Default parses the embedded table.
func Default() (*Taxonomy, error) {
	return Parse(defaultTable)
}

// Load reads the table from path, or the embedded one when path is empty.
func Load(path string) (*Taxonomy, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read taxonomy %s: %w", path, err)
	}
	return Parse(data)
}

// Parse builds a Taxonomy from a YAML document of the form
// entity -> dotted path -> {min, max}.
func Parse(data []byte) (*Taxonomy, error) {
	raw := map[string]map[string]Bounds{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse taxonomy: %w", err)
	}
	if len(raw) == 0 {
		return nil, errors.New("parse taxonomy: no entities defined")
	}
	for entity, paths := range raw {
		for path, b := range paths {
			if b.Min > b.Max {
				return nil, fmt.Errorf("parse taxonomy: %s.%s: min %d greater than max %d", entity, path, b.Min, b.Max)
			}
		}
	}
	return &Taxonomy{entities: raw}, nil
}

// Bounds returns the range configured for entity and path.
func (t *Taxonomy) Bounds(entity, path string) (Bounds, error) {
	b, ok := t.entities[entity][path]
	if !ok {
		return Bounds{}, fmt.Errorf("%w: %s.%s", ErrUnknownPath, entity, path)
	}
	return b, nil
}

// Paths lists the configured paths of an entity in lexical order.
func (t *Taxonomy) Paths(entity string) []string {
	paths := make([]string, 0, len(t.entities[entity]))
	for p := range t.entities[entity] {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
