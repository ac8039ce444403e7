package observations

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"p9e.in/lakewatch/models"
)

var (
	anonymous = Caller{}
	admin     = Caller{Privileged: true}
)

func TestCreateStoresNormalizedRecord(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	submitter := uuid.New()

	out, err := h.pipeline.Create(ctx, Caller{ID: &submitter}, fullSubmission(), CreateOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, h.store.inserts)

	id, err := uuid.Parse(out["id"].(string))
	require.NoError(t, err)
	stored := h.store.items[id]

	assert.Equal(t, &submitter, stored.SubmitterID)
	assert.True(t, testNow.Equal(stored.CreatedAt))
	assert.Equal(t, 1, stored.Weather.Sky.Code)
	assert.Equal(t, models.Coordinates{9.18, 45.46}, stored.Position.Coordinates)
	assert.Equal(t, 1, stored.Position.CRS.Code)
	require.NotNil(t, stored.Position.RegionID)
	assert.Equal(t, h.rois.ref.ID, *stored.Position.RegionID)
	assert.Equal(t, 4, *stored.Position.AreaCode)
	assert.Nil(t, stored.CallID)
	assert.Contains(t, string(stored.Details), `"look":{"code":3}`)
	assert.Contains(t, string(stored.Measures), `"type":{"code":2}`)
	assert.Equal(t, "algae near &lt;b&gt;pier&lt;/b&gt;", *stored.Other)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.pipeline.metrics.ObservationsCreated))
}

func TestCreateMinimalWithCallID(t *testing.T) {
	h := newHarness(t)

	out, err := h.pipeline.Create(context.Background(), anonymous, validBase(), CreateOptions{Minimal: true, GenerateCallID: true})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"id", "position", "callId"}, keys(out))
	assert.Equal(t, 99999.0, out["callId"])
	pos := out["position"].(map[string]any)
	assert.Equal(t, h.rois.ref.ID.String(), pos["regionId"])
	assert.Equal(t, 4.0, pos["areaCode"])
}

func TestCreateOutsideEveryRoi(t *testing.T) {
	h := newHarness(t)
	body := validBase()
	body["position"] = map[string]any{"coordinates": []any{12.0, 44.0}}

	out, err := h.pipeline.Create(context.Background(), anonymous, body, CreateOptions{Minimal: true})
	require.NoError(t, err)
	assert.Empty(t, out["position"])
	assert.NotContains(t, out, "callId")
}

func TestCreateRejectsInvalidWithoutWriting(t *testing.T) {
	h := newHarness(t)
	body := validBase()
	body["weather"] = map[string]any{"sky": map[string]any{"code": 7.0}}
	body["details"] = map[string]any{"litters": map[string]any{"quantity": map[string]any{"code": 1.0}, "type": []any{}}}

	_, err := h.pipeline.Create(context.Background(), anonymous, body, CreateOptions{})
	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, []string{"weather.sky.code", "details.litters.type"}, fieldsOf(verrs))
	assert.Zero(t, h.store.inserts)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.pipeline.metrics.ValidationFailures.WithLabelValues("weather.sky.code")))
}

func TestCreateDoesNotMutateBody(t *testing.T) {
	h := newHarness(t)
	body := fullSubmission()
	_, err := h.pipeline.Create(context.Background(), anonymous, body, CreateOptions{})
	require.NoError(t, err)
	assert.Equal(t, fullSubmission(), body)
}

func TestCreateFromProjectedCoordinates(t *testing.T) {
	h := newHarness(t)
	utm, err := h.pipeline.proj.Reproject(2, 45.46, 9.18)
	require.NoError(t, err)

	body := validBase()
	body["position"] = map[string]any{
		"coordinates": []any{utm.Lon, utm.Lat},
		"crs":         map[string]any{"code": "2"},
	}
	out, err := h.pipeline.Create(context.Background(), anonymous, body, CreateOptions{})
	require.NoError(t, err)

	pos := out["position"].(map[string]any)
	coords := pos["coordinates"].([]any)
	assert.InDelta(t, 9.18, coords[0], 1e-7)
	assert.InDelta(t, 45.46, coords[1], 1e-7)
	assert.Equal(t, map[string]any{"code": 1.0}, pos["crs"])
	// the canonical point falls inside the fake region
	assert.Equal(t, 4.0, pos["areaCode"])
}

func TestCreateCreatedAt(t *testing.T) {
	h := newHarness(t)
	body := validBase()
	body["createdAt"] = "2020-03-01T08:00:00"

	out, err := h.pipeline.Create(context.Background(), anonymous, body, CreateOptions{})
	require.NoError(t, err)
	assert.Equal(t, testNow.Format(time.RFC3339Nano), out["createdAt"])

	out, err = h.pipeline.Create(context.Background(), admin, body, CreateOptions{})
	require.NoError(t, err)
	assert.Equal(t, "2020-03-01T08:00:00Z", out["createdAt"])
}

func TestCreateCollaboratorFailures(t *testing.T) {
	t.Run("roi lookup", func(t *testing.T) {
		h := newHarness(t)
		h.rois.err = errBoom
		_, err := h.pipeline.Create(context.Background(), anonymous, validBase(), CreateOptions{})
		assert.ErrorIs(t, err, errBoom)
		assert.Zero(t, h.store.inserts)
	})

	t.Run("insert is attempted once", func(t *testing.T) {
		h := newHarness(t)
		h.store.insertErr = errBoom
		_, err := h.pipeline.Create(context.Background(), anonymous, validBase(), CreateOptions{})
		assert.ErrorIs(t, err, errBoom)
		assert.Equal(t, 1, h.store.inserts)
	})
}

func TestRoundTripDescribesEveryCode(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	in := fullSubmission()
	created, err := h.pipeline.Create(ctx, anonymous, in, CreateOptions{})
	require.NoError(t, err)
	id := uuid.MustParse(created["id"].(string))

	got, err := h.pipeline.Get(ctx, anonymous, id, ReadOptions{Locale: "en"})
	require.NoError(t, err)
	doc := got.(map[string]any)

	want := map[string]any{}
	codeSites(NormalizeCodes(in), "", want)
	have := map[string]any{}
	codeSites(doc, "", have)
	require.Len(t, have, len(want))
	for site, code := range want {
		c, ok := toCode(code)
		require.True(t, ok, site)
		assert.Equal(t, float64(c), have[site], site)
	}

	var check func(v any)
	check = func(v any) {
		switch t2 := v.(type) {
		case map[string]any:
			if code, ok := t2["code"]; ok {
				desc, _ := t2["description"].(string)
				assert.NotEmpty(t, desc)
				assert.NotContains(t, desc, "models:", "untranslated code %v", code)
			}
			for _, e := range t2 {
				check(e)
			}
		case []any:
			for _, e := range t2 {
				check(e)
			}
		}
	}
	check(doc)
}

func TestListReprojectsResponseOnly(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.pipeline.Create(ctx, anonymous, validBase(), CreateOptions{})
	require.NoError(t, err)

	got, err := h.pipeline.List(ctx, anonymous, ReadOptions{CRS: 2, Locale: "en"})
	require.NoError(t, err)
	docs := got.([]map[string]any)
	require.Len(t, docs, 1)

	pos := docs[0]["position"].(map[string]any)
	assert.Equal(t, 2, pos["crs"].(map[string]any)["code"])
	assert.Equal(t, "WGS 84 / UTM zone 32N", pos["crs"].(map[string]any)["description"])
	coords := pos["coordinates"].([]any)
	assert.InDelta(t, 514000, coords[0], 500)
	assert.Greater(t, coords[1], 5_000_000.0)

	for _, stored := range h.store.items {
		assert.Equal(t, models.Coordinates{9.18, 45.46}, stored.Position.Coordinates)
		assert.Equal(t, 1, stored.Position.CRS.Code)
	}
}

func TestListFiltersAndModes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	inside, err := h.pipeline.Create(ctx, anonymous, validBase(), CreateOptions{})
	require.NoError(t, err)
	h.clock.Advance(time.Minute)
	outsideBody := validBase()
	outsideBody["position"] = map[string]any{"coordinates": []any{12.0, 44.0}}
	_, err = h.pipeline.Create(ctx, anonymous, outsideBody, CreateOptions{})
	require.NoError(t, err)
	h.clock.Advance(time.Minute)
	deleted, err := h.pipeline.Create(ctx, anonymous, validBase(), CreateOptions{})
	require.NoError(t, err)
	require.NoError(t, h.pipeline.MarkForDeletion(ctx, admin, uuid.MustParse(deleted["id"].(string))))

	public, err := h.pipeline.List(ctx, anonymous, ReadOptions{})
	require.NoError(t, err)
	assert.Len(t, public, 2)

	all, err := h.pipeline.List(ctx, admin, ReadOptions{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	inRois, err := h.pipeline.List(ctx, anonymous, ReadOptions{ExcludeOutOfRois: true, Minimal: true})
	require.NoError(t, err)
	docs := inRois.([]map[string]any)
	require.Len(t, docs, 1)
	assert.Equal(t, inside["id"], docs[0]["id"])
	assert.ElementsMatch(t, []string{"id", "createdAt", "position"}, keys(docs[0]))

	geo, err := h.pipeline.List(ctx, anonymous, ReadOptions{GeoJSON: true})
	require.NoError(t, err)
	fc := geo.(*geojson.FeatureCollection)
	require.Len(t, fc.Features, 2)
	// newest first
	assert.Equal(t, orb.Point{12, 44}, fc.Features[0].Geometry)
	assert.NotContains(t, fc.Features[0].Properties["position"], "coordinates")
}

func TestReadRejectsUnsupportedCRS(t *testing.T) {
	h := newHarness(t)
	_, err := h.pipeline.List(context.Background(), anonymous, ReadOptions{CRS: 42})
	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, FieldError{Field: "crs", Message: "client provided unsupported code", RejectedValue: 42}, verrs[0])

	_, err = h.pipeline.Get(context.Background(), anonymous, uuid.New(), ReadOptions{CRS: 42})
	require.ErrorAs(t, err, &verrs)
}

func TestGet(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	created, err := h.pipeline.Create(ctx, anonymous, validBase(), CreateOptions{})
	require.NoError(t, err)
	id := uuid.MustParse(created["id"].(string))

	got, err := h.pipeline.Get(ctx, anonymous, id, ReadOptions{GeoJSON: true, CRS: 3, Locale: "it"})
	require.NoError(t, err)
	f := got.(*geojson.Feature)
	p := f.Geometry.(orb.Point)
	assert.InDelta(t, 1021910, p.X(), 1000)
	sky := f.Properties["weather"].(map[string]any)["sky"].(map[string]any)
	assert.Equal(t, "Sereno", sky["description"])

	_, err = h.pipeline.Get(ctx, anonymous, uuid.New(), ReadOptions{})
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, h.pipeline.MarkForDeletion(ctx, admin, id))
	_, err = h.pipeline.Get(ctx, anonymous, id, ReadOptions{})
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = h.pipeline.Get(ctx, admin, id, ReadOptions{})
	assert.NoError(t, err)

	h.store.findErr = errBoom
	_, err = h.pipeline.Get(ctx, admin, id, ReadOptions{})
	assert.ErrorIs(t, err, errBoom)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestMarkForDeletion(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	assert.ErrorIs(t, h.pipeline.MarkForDeletion(ctx, anonymous, uuid.New()), ErrForbidden)
	assert.ErrorIs(t, h.pipeline.MarkForDeletion(ctx, admin, uuid.New()), ErrNotFound)
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
