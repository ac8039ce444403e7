// Package observations validates, normalizes, enriches and serves
// citizen-science lake observations.
package observations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strconv"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"p9e.in/lakewatch/models"
	"p9e.in/lakewatch/pkg/metrics"
	"p9e.in/lakewatch/pkg/projection"
	"p9e.in/lakewatch/pkg/store"
	"p9e.in/lakewatch/pkg/taxonomy"
)

// Caller is who issued the request.
type Caller struct {
	ID         *uuid.UUID
	Privileged bool
}

// CreateOptions tune the create response.
type CreateOptions struct {
	Minimal        bool
	GenerateCallID bool
}

// ReadOptions tune list and get responses. CRS 0 means canonical.
type ReadOptions struct {
	CRS              int
	GeoJSON          bool
	Minimal          bool
	ExcludeOutOfRois bool
	Locale           string
	Limit            int
	Offset           int
}

// Config carries the pipeline collaborators. Clock, Logger, Metrics and
// RandIntN default when nil.
type Config struct {
	Store       store.ObservationStore
	Rois        store.RoiLookup
	Taxonomy    *taxonomy.Taxonomy
	Projections *projection.Table
	Translate   TranslateFunc
	Clock       clockwork.Clock
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
	RandIntN    func(n int) int
}

// Pipeline holds only read-only state and is safe for concurrent use.
type Pipeline struct {
	store     store.ObservationStore
	rois      store.RoiLookup
	proj      *projection.Table
	translate TranslateFunc
	rules     []Rule
	clock     clockwork.Clock
	log       *slog.Logger
	metrics   *metrics.Metrics
	randIntN  func(n int) int
}

func New(cfg Config) (*Pipeline, error) {
	if cfg.Store == nil || cfg.Rois == nil || cfg.Translate == nil {
		return nil, errors.New("observations: store, roi lookup and translate are required")
	}
	rules, err := BuildRules(cfg.Taxonomy, cfg.Projections)
	if err != nil {
		return nil, err
	}
	p := &Pipeline{
		store:     cfg.Store,
		rois:      cfg.Rois,
		proj:      cfg.Projections,
		translate: cfg.Translate,
		rules:     rules,
		clock:     cfg.Clock,
		log:       cfg.Logger,
		metrics:   cfg.Metrics,
		randIntN:  cfg.RandIntN,
	}
	if p.clock == nil {
		p.clock = clockwork.NewRealClock()
	}
	if p.log == nil {
		p.log = slog.Default()
	}
	if p.metrics == nil {
		p.metrics = metrics.NewMetricsForTesting()
	}
	if p.randIntN == nil {
		p.randIntN = rand.IntN
	}
	return p, nil
}

// Create validates, normalizes, locates and stores a submission. The result
// is the stored record, or its minimal projection.
func (p *Pipeline) Create(ctx context.Context, caller Caller, body map[string]any, opts CreateOptions) (map[string]any, error) {
	doc := cloneTree(body).(map[string]any)
	if errs := Validate(doc, p.rules); len(errs) > 0 {
		for _, e := range errs {
			p.metrics.ValidationFailures.WithLabelValues(e.Field).Inc()
		}
		return nil, errs
	}
	doc = NormalizeCodes(doc).(map[string]any)

	createdAt := p.clock.Now().UTC()
	if s, ok := doc["createdAt"].(string); ok && caller.Privileged {
		t, err := models.ParseJSONTime(s)
		if err == nil {
			createdAt = t.UTC()
		}
	}
	delete(doc, "createdAt")

	obs, err := models.ObservationFromDocument(doc)
	if err != nil {
		return nil, fmt.Errorf("create observation: %w", err)
	}
	if err := p.toCanonical(obs); err != nil {
		return nil, err
	}
	if err := p.locate(ctx, obs); err != nil {
		return nil, err
	}

	obs.ID = uuid.New()
	obs.SubmitterID = caller.ID
	obs.CreatedAt = createdAt
	obs.UpdatedAt = createdAt
	obs.MarkedForDeletion = false
	if obs.Photos == nil {
		obs.Photos = []string{}
	}
	if opts.GenerateCallID {
		callID := p.randIntN(90000) + 10000
		obs.CallID = &callID
	}

	if err := p.store.Insert(ctx, obs); err != nil {
		p.metrics.StoreErrors.WithLabelValues("insert").Inc()
		p.log.Error("insert observation failed", "error", err, "coordinates", obs.Position.Coordinates)
		return nil, fmt.Errorf("create observation: %w", err)
	}
	p.metrics.ObservationsCreated.Inc()
	p.log.Info("observation created", "id", obs.ID, "regionId", obs.Position.RegionID, "callId", obs.CallID)

	out, err := obs.Document()
	if err != nil {
		return nil, err
	}
	if opts.Minimal {
		return minimalCreated(out), nil
	}
	return out, nil
}

// toCanonical converts coordinates submitted in a projected system.
func (p *Pipeline) toCanonical(obs *models.Observation) error {
	code := obs.Position.CRS.Code
	if code == 0 || code == projection.Canonical {
		obs.Position.CRS.Code = projection.Canonical
		return nil
	}
	c := obs.Position.Coordinates
	canon, err := p.proj.Unproject(code, c.Lat(), c.Lon())
	if err != nil {
		return ValidationErrors{{Field: "position.crs.code", Message: err.Error(), RejectedValue: code}}
	}
	if canon.Lon < -180 || canon.Lon > 180 || canon.Lat < -90 || canon.Lat > 90 {
		return ValidationErrors{{
			Field:         "position.coordinates",
			Message:       "must convert to a valid WGS84 position",
			RejectedValue: []float64{c.Lon(), c.Lat()},
		}}
	}
	p.metrics.Reprojections.WithLabelValues(strconv.Itoa(code)).Inc()
	obs.Position.Coordinates = models.Coordinates{canon.Lon, canon.Lat}
	obs.Position.CRS.Code = projection.Canonical
	return nil
}

// locate stamps the containing region, if any.
func (p *Pipeline) locate(ctx context.Context, obs *models.Observation) error {
	c := obs.Position.Coordinates
	ref, err := p.rois.FindContaining(ctx, c.Lon(), c.Lat())
	if err != nil {
		p.metrics.RoiLookups.WithLabelValues("error").Inc()
		p.log.Error("roi lookup failed", "error", err, "lon", c.Lon(), "lat", c.Lat())
		return fmt.Errorf("locate observation: %w", err)
	}
	if ref == nil {
		p.metrics.RoiLookups.WithLabelValues("miss").Inc()
		return nil
	}
	p.metrics.RoiLookups.WithLabelValues("hit").Inc()
	id, area := ref.ID, ref.AreaCode
	obs.Position.RegionID = &id
	obs.Position.AreaCode = &area
	return nil
}

func (p *Pipeline) checkCRS(code int) error {
	if code != 0 && !p.proj.Supports(code) {
		return ValidationErrors{{Field: "crs", Message: projection.ErrUnsupportedCode.Error(), RejectedValue: code}}
	}
	return nil
}

func (p *Pipeline) filter(caller Caller, opts ReadOptions) store.Filter {
	return store.Filter{
		ExcludeDeleted:   !caller.Privileged,
		ExcludeOutOfRois: opts.ExcludeOutOfRois,
		Limit:            opts.Limit,
		Offset:           opts.Offset,
	}
}

// Documents returns enriched response copies of the matching records.
func (p *Pipeline) Documents(ctx context.Context, caller Caller, opts ReadOptions) ([]map[string]any, error) {
	if err := p.checkCRS(opts.CRS); err != nil {
		return nil, err
	}
	f := p.filter(caller, opts)
	found, err := p.store.Find(ctx, f)
	if err != nil {
		p.metrics.StoreErrors.WithLabelValues("find").Inc()
		p.log.Error("find observations failed", "error", err, "filter", f)
		return nil, fmt.Errorf("list observations: %w", err)
	}

	docs := make([]map[string]any, 0, len(found))
	for i := range found {
		doc, err := p.enrich(&found[i], opts)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// List serves the collection as a JSON array or a GeoJSON FeatureCollection.
func (p *Pipeline) List(ctx context.Context, caller Caller, opts ReadOptions) (any, error) {
	docs, err := p.Documents(ctx, caller, opts)
	if err != nil {
		return nil, err
	}
	p.metrics.ObservationsServed.WithLabelValues(mode(opts)).Add(float64(len(docs)))
	if opts.Minimal {
		for i, d := range docs {
			docs[i] = minimalListed(d)
		}
	}
	if opts.GeoJSON {
		return ToFeatureCollection(docs)
	}
	return docs, nil
}

// Get serves one record. Soft-deleted records are hidden from
// non-privileged callers.
func (p *Pipeline) Get(ctx context.Context, caller Caller, id uuid.UUID, opts ReadOptions) (any, error) {
	if err := p.checkCRS(opts.CRS); err != nil {
		return nil, err
	}
	obs, err := p.store.FindByID(ctx, id, p.filter(caller, opts))
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		p.metrics.StoreErrors.WithLabelValues("find_by_id").Inc()
		p.log.Error("find observation failed", "error", err, "id", id)
		return nil, fmt.Errorf("get observation: %w", err)
	}

	doc, err := p.enrich(obs, opts)
	if err != nil {
		return nil, err
	}
	p.metrics.ObservationsServed.WithLabelValues(mode(opts)).Inc()
	if opts.GeoJSON {
		return ToFeature(doc)
	}
	return doc, nil
}

// MarkForDeletion soft-deletes a record.
func (p *Pipeline) MarkForDeletion(ctx context.Context, caller Caller, id uuid.UUID) error {
	if !caller.Privileged {
		return ErrForbidden
	}
	err := p.store.MarkForDeletion(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		p.metrics.StoreErrors.WithLabelValues("mark_for_deletion").Inc()
		p.log.Error("mark observation failed", "error", err, "id", id)
		return fmt.Errorf("delete observation: %w", err)
	}
	p.log.Info("observation marked for deletion", "id", id)
	return nil
}

// enrich builds the response copy: reprojection first, then descriptions.
func (p *Pipeline) enrich(obs *models.Observation, opts ReadOptions) (map[string]any, error) {
	doc, err := obs.Document()
	if err != nil {
		return nil, err
	}
	if opts.CRS != 0 && opts.CRS != projection.Canonical {
		if err := p.reproject(doc, opts.CRS); err != nil {
			return nil, fmt.Errorf("observation %s: %w", obs.ID, err)
		}
	}
	ResolveDescriptions(doc, Entity, opts.Locale, p.translate)
	return doc, nil
}

// reproject rewrites position.coordinates and position.crs of a response
// copy. Stored order is [lon, lat].
func (p *Pipeline) reproject(doc map[string]any, code int) error {
	lon, lat, err := coordinates(doc)
	if err != nil {
		return err
	}
	c, err := p.proj.Reproject(code, lat, lon)
	if err != nil {
		return err
	}
	pos := doc["position"].(map[string]any)
	pos["coordinates"] = []any{c.Lon, c.Lat}
	pos["crs"] = map[string]any{"code": code}
	p.metrics.Reprojections.WithLabelValues(strconv.Itoa(code)).Inc()
	return nil
}

func mode(opts ReadOptions) string {
	switch {
	case opts.GeoJSON:
		return "geojson"
	case opts.Minimal:
		return "minimal"
	default:
		return "json"
	}
}

func minimalCreated(doc map[string]any) map[string]any {
	out := map[string]any{"id": doc["id"]}
	pos, _ := doc["position"].(map[string]any)
	minPos := map[string]any{}
	for _, k := range []string{"regionId", "areaCode"} {
		if v, ok := pos[k]; ok {
			minPos[k] = v
		}
	}
	out["position"] = minPos
	if v, ok := doc["callId"]; ok {
		out["callId"] = v
	}
	return out
}

func minimalListed(doc map[string]any) map[string]any {
	return map[string]any{
		"id":        doc["id"],
		"createdAt": doc["createdAt"],
		"position":  doc["position"],
	}
}
