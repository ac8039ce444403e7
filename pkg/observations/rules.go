package observations

import (
	"errors"
	"fmt"
	"strings"

	"p9e.in/lakewatch/pkg/projection"
	"p9e.in/lakewatch/pkg/taxonomy"
)

// Entity is the taxonomy and translation namespace of observations.
const Entity = "observations"

var (
	detailGroups = []string{"algae", "foams", "oils", "litters", "odours", "outlets", "fauna"}
	faunaGroups  = []string{"fish", "birds", "molluscs", "crustaceans", "turtles"}

	// flags every detail group may carry besides its codes
	detailFlags = map[string][]string{
		"algae":   {"checked", "iridescent", "fish", "birds"},
		"foams":   {"checked"},
		"oils":    {"checked"},
		"litters": {"checked"},
		"odours":  {"checked"},
		"outlets": {"checked", "inPlace", "vapour", "signage", "prodActivity"},
		"fauna":   {"checked"},
	}

	// taxonomy paths whose value is an array of codes
	codeArrays = map[string]bool{
		"details.litters.type":  true,
		"details.odours.origin": true,
	}

	measureGroups = []string{"transparency", "temperature", "ph", "oxygen", "bacteria"}
)

func init() {
	for _, g := range faunaGroups {
		codeArrays["details.fauna."+g+".alien.species"] = true
	}
}

type ruleBuilder struct {
	tax   *taxonomy.Taxonomy
	proj  *projection.Table
	rules []Rule
	err   error
}

func (b *ruleBuilder) add(r ...Rule) {
	b.rules = append(b.rules, r...)
}

func (b *ruleBuilder) bounds(path string) taxonomy.Bounds {
	bounds, err := b.tax.Bounds(Entity, path)
	if err != nil && b.err == nil {
		b.err = err
	}
	return bounds
}

// code adds the rule of a classification code configured at taxonomy path
// and stored at field, required once group exists.
func (b *ruleBuilder) code(path, field, group string) {
	check := CodeIn(b.bounds(path))
	if codeArrays[path] {
		b.add(Rule{
			Field:  field,
			When:   Exists(group),
			Checks: []Check{NonEmptyArray},
			Each:   []Rule{{Field: "code", Checks: []Check{check}}},
		})
		return
	}
	b.add(Rule{Field: field + ".code", When: Exists(group), Checks: []Check{check}})
}

// BuildRules assembles the submission rules. Every classification path the
// rules need must be present in tax.
func BuildRules(tax *taxonomy.Taxonomy, proj *projection.Table) ([]Rule, error) {
	if tax == nil || proj == nil {
		return nil, errors.New("build rules: taxonomy and projections are required")
	}
	b := &ruleBuilder{tax: tax, proj: proj}

	b.serverOwned()
	b.position()
	b.weather()
	b.details()
	b.measures()
	b.freeText()

	if b.err != nil {
		return nil, fmt.Errorf("build rules: %w", b.err)
	}
	return b.rules, nil
}

func (b *ruleBuilder) serverOwned() {
	for _, f := range []string{"id", "submitterId", "callId", "markedForDeletion", "updatedAt"} {
		b.add(Rule{Field: f, Optional: true, Checks: []Check{Forbidden}})
	}
	b.add(Rule{Field: "createdAt", Optional: true, Checks: []Check{IsDate}})
}

func (b *ruleBuilder) position() {
	hasPosition := Exists("position")
	hasCoords := Exists("position.coordinates")
	canonical := func(root map[string]any) bool {
		v, ok := lookup(root, []string{"position", "crs", "code"})
		if !ok || v == nil {
			return true
		}
		c, ok := toCode(v)
		return ok && c == projection.Canonical
	}

	b.add(
		Rule{Field: "position", Checks: []Check{IsObject}},
		Rule{Field: "position.coordinates", When: hasPosition, Checks: []Check{ArrayLen(2)}},
		Rule{Field: "position.coordinates.0", When: hasCoords, Optional: true, Checks: []Check{IsNumber}},
		Rule{Field: "position.coordinates.1", When: hasCoords, Optional: true, Checks: []Check{IsNumber}},
		Rule{Field: "position.coordinates.0", When: All(hasCoords, canonical), Optional: true, Checks: []Check{Between(-180, 180)}},
		Rule{Field: "position.coordinates.1", When: All(hasCoords, canonical), Optional: true, Checks: []Check{Between(-90, 90)}},
	)
	for _, f := range []string{"type", "area", "areaCode", "regionId"} {
		b.add(Rule{Field: "position." + f, When: hasPosition, Optional: true, Checks: []Check{Forbidden}})
	}
	b.add(
		Rule{Field: "position.accuracy", When: hasPosition, Optional: true, Checks: []Check{IsNumber, Min(0)}},
		Rule{Field: "position.roi", When: hasPosition, Optional: true, Checks: []Check{IsUUID}},
		Rule{Field: "position.crs.code", When: Exists("position.crs"), Checks: []Check{
			CodeIn(b.bounds("position.crs")),
			b.supported,
		}},
	)
}

func (b *ruleBuilder) supported(v any) error {
	if c, ok := toCode(v); !ok || !b.proj.Supports(c) {
		return projection.ErrUnsupportedCode
	}
	return nil
}

func (b *ruleBuilder) weather() {
	has := Exists("weather")
	b.add(
		Rule{Field: "weather", Optional: true, Checks: []Check{IsObject}},
		Rule{Field: "weather.sky.code", When: has, Checks: []Check{CodeIn(b.bounds("weather.sky"))}},
		Rule{Field: "weather.temperature", When: has, Optional: true, Checks: []Check{IsNumber}},
		Rule{Field: "weather.wind", When: has, Optional: true, Checks: []Check{IsNumber, Min(0)}},
	)
}

func (b *ruleBuilder) details() {
	b.add(Rule{Field: "details", Optional: true, Checks: []Check{IsObject}})
	for _, g := range detailGroups {
		group := "details." + g
		b.add(Rule{Field: group, Optional: true, Checks: []Check{IsObject}})
		for _, flag := range detailFlags[g] {
			b.add(Rule{Field: group + "." + flag, When: Exists(group), Optional: true, Checks: []Check{IsBool}})
		}
		if g == "fauna" {
			b.fauna()
			continue
		}
		for _, path := range b.tax.Paths(Entity) {
			if strings.HasPrefix(path, group+".") {
				b.code(path, path, group)
			}
		}
	}
}

func (b *ruleBuilder) fauna() {
	for _, g := range faunaGroups {
		group := "details.fauna." + g
		alien := group + ".alien"
		b.add(
			Rule{Field: group, Optional: true, Checks: []Check{IsObject}},
			Rule{Field: group + ".checked", When: Exists(group), Optional: true, Checks: []Check{IsBool}},
			Rule{Field: group + ".number", When: Exists(group), Optional: true, Checks: []Check{IsNumber, Min(0)}},
			Rule{Field: group + ".deceased", When: Exists(group), Optional: true, Checks: []Check{IsBool}},
			Rule{Field: group + ".abnormal", When: Exists(group), Optional: true, Checks: []Check{IsBool}},
			Rule{Field: alien, When: Exists(group), Optional: true, Checks: []Check{IsObject}},
			Rule{Field: alien + ".checked", When: Exists(alien), Optional: true, Checks: []Check{IsBool}},
		)
		b.code(alien+".species", alien+".species", alien)
	}
}

func (b *ruleBuilder) measures() {
	b.add(Rule{Field: "measures", Optional: true, Checks: []Check{IsObject}})
	for _, g := range measureGroups {
		group := "measures." + g
		has := Exists(group)
		instrument := group + ".instrument"
		b.add(
			Rule{Field: group, Optional: true, Checks: []Check{IsObject}},
			Rule{Field: instrument, When: has, Checks: []Check{IsObject}},
		)
		b.code(group+".type", instrument+".type", group)
		b.add(
			Rule{Field: instrument + ".precision", When: has, Optional: true, Checks: []Check{IsNumber, Min(0)}},
			Rule{Field: instrument + ".details", When: has, Optional: true, Sanitize: TrimEscape, Checks: []Check{IsString}},
		)

		switch g {
		case "transparency":
			b.add(Rule{Field: group + ".val", When: has, Optional: true, Checks: []Check{IsNumber, Min(0)}})
		case "temperature":
			b.depthSeries(group, IsNumber)
		case "ph":
			b.depthSeries(group, IsNumber, Between(0, 14))
		case "oxygen":
			b.depthSeries(group, IsNumber, Min(0))
		case "bacteria":
			b.add(
				Rule{Field: group, When: has, Checks: []Check{AnyNumber("escherichiaColi", "enterococci")}},
				Rule{Field: group + ".escherichiaColi", When: has, Optional: true, Checks: []Check{IsNumber, Min(0)}},
				Rule{Field: group + ".enterococci", When: has, Optional: true, Checks: []Check{IsNumber, Min(0)}},
			)
		}
	}
}

// depthSeries covers measurements taken at one or more depths.
func (b *ruleBuilder) depthSeries(group string, val ...Check) {
	has := Exists(group)
	b.add(
		Rule{Field: group + ".multiple", When: has, Optional: true, Checks: []Check{IsBool}},
		Rule{Field: group + ".val", When: has, Optional: true, Checks: []Check{NonEmptyArray}, Each: []Rule{
			{Field: "depth", Checks: []Check{IsNumber, Min(0)}},
			{Field: "val", Checks: val},
		}},
	)
}

func (b *ruleBuilder) freeText() {
	b.add(
		Rule{Field: "other", Optional: true, Sanitize: TrimEscape, Checks: []Check{IsString}},
		Rule{Field: "photos", Optional: true, Checks: []Check{IsArray}, Each: []Rule{
			{Field: "", Checks: []Check{IsString}},
		}},
	)
}
