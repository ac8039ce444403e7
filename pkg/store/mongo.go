package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"p9e.in/lakewatch/models"
)

const (
	observationsCollection = "observations"
	roisCollection         = "rois"
)

// MongoStore keeps observations as documents, ids in _id.
type MongoStore struct {
	coll  *mongo.Collection
	clock clockwork.Clock
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{coll: db.Collection(observationsCollection), clock: clockwork.NewRealClock()}
}

// WithClock replaces the clock stamping updatedAt on soft delete.
func (s *MongoStore) WithClock(c clockwork.Clock) *MongoStore {
	s.clock = c
	return s
}

// EnsureIndexes creates the indexes reads rely on.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "markedForDeletion", Value: 1}}},
		{Keys: bson.D{{Key: "position.regionId", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create observation indexes: %w", err)
	}
	return nil
}

func mongoFilter(f Filter) bson.M {
	q := bson.M{}
	if f.ExcludeDeleted {
		q["markedForDeletion"] = false
	}
	if f.ExcludeOutOfRois {
		q["position.regionId"] = bson.M{"$exists": true}
	}
	return q
}

func (s *MongoStore) Find(ctx context.Context, f Filter) ([]models.Observation, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	if f.Limit > 0 {
		opts.SetLimit(int64(f.Limit))
	}
	if f.Offset > 0 {
		opts.SetSkip(int64(f.Offset))
	}
	cur, err := s.coll.Find(ctx, mongoFilter(f), opts)
	if err != nil {
		return nil, fmt.Errorf("find observations: %w", err)
	}
	var raw []bson.M
	if err := cur.All(ctx, &raw); err != nil {
		return nil, fmt.Errorf("read observations: %w", err)
	}
	out := make([]models.Observation, 0, len(raw))
	for _, doc := range raw {
		o, err := fromMongo(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, nil
}

func (s *MongoStore) FindByID(ctx context.Context, id uuid.UUID, f Filter) (*models.Observation, error) {
	q := mongoFilter(f)
	q["_id"] = id.String()
	var doc bson.M
	err := s.coll.FindOne(ctx, q).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find observation %s: %w", id, err)
	}
	return fromMongo(doc)
}

func (s *MongoStore) Insert(ctx context.Context, o *models.Observation) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	if o.UpdatedAt.IsZero() {
		o.UpdatedAt = o.CreatedAt
	}
	doc, err := toMongo(o)
	if err != nil {
		return err
	}
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert observation: %w", err)
	}
	return nil
}

func (s *MongoStore) MarkForDeletion(ctx context.Context, id uuid.UUID) error {
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": id.String()},
		bson.M{"$set": bson.M{"markedForDeletion": true, "updatedAt": s.clock.Now().UTC()}},
	)
	if err != nil {
		return fmt.Errorf("mark observation %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// toMongo stores timestamps as BSON dates so they sort natively.
func toMongo(o *models.Observation) (bson.M, error) {
	doc, err := o.Document()
	if err != nil {
		return nil, err
	}
	doc["_id"] = o.ID.String()
	delete(doc, "id")
	doc["createdAt"] = o.CreatedAt.UTC()
	doc["updatedAt"] = o.UpdatedAt.UTC()
	return bson.M(doc), nil
}

func fromMongo(doc bson.M) (*models.Observation, error) {
	plain, _ := plainValue(map[string]any(doc)).(map[string]any)
	plain["id"] = plain["_id"]
	delete(plain, "_id")

	b, err := json.Marshal(plain)
	if err != nil {
		return nil, fmt.Errorf("encode mongo document: %w", err)
	}
	var o models.Observation
	if err := json.Unmarshal(b, &o); err != nil {
		return nil, fmt.Errorf("decode mongo document %v: %w", plain["id"], err)
	}
	return &o, nil
}

// plainValue rewrites driver types into what encoding/json understands.
func plainValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = plainValue(e)
		}
		return out
	case primitive.M:
		return plainValue(map[string]any(t))
	case primitive.D:
		return plainValue(map[string]any(t.Map()))
	case primitive.A:
		return plainValue([]any(t))
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = plainValue(e)
		}
		return out
	case primitive.DateTime:
		return t.Time().UTC().Format(time.RFC3339Nano)
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	default:
		return v
	}
}

// MongoRoiLookup relies on a 2dsphere index over rois.geometry.
type MongoRoiLookup struct {
	coll *mongo.Collection
}

func NewMongoRoiLookup(db *mongo.Database) *MongoRoiLookup {
	return &MongoRoiLookup{coll: db.Collection(roisCollection)}
}

func (l *MongoRoiLookup) EnsureIndexes(ctx context.Context) error {
	_, err := l.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "geometry", Value: "2dsphere"}},
	})
	if err != nil {
		return fmt.Errorf("create roi index: %w", err)
	}
	return nil
}

func (l *MongoRoiLookup) FindContaining(ctx context.Context, lon, lat float64) (*RoiRef, error) {
	q := bson.M{"geometry": bson.M{"$geoIntersects": bson.M{
		"$geometry": bson.M{"type": "Point", "coordinates": bson.A{lon, lat}},
	}}}
	var doc struct {
		ID       string `bson:"_id"`
		AreaCode int    `bson:"areaCode"`
	}
	err := l.coll.FindOne(ctx, q, options.FindOne().SetSort(bson.D{{Key: "name", Value: 1}})).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find roi: %w", err)
	}
	id, err := uuid.Parse(doc.ID)
	if err != nil {
		return nil, fmt.Errorf("roi id %q: %w", doc.ID, err)
	}
	return &RoiRef{ID: id, AreaCode: doc.AreaCode}, nil
}

// SaveRoi upserts a region keyed by id.
func (l *MongoRoiLookup) SaveRoi(ctx context.Context, r *models.Roi) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	var geometry bson.M
	if err := bson.UnmarshalExtJSON(r.Geometry, false, &geometry); err != nil {
		return fmt.Errorf("roi %s geometry: %w", r.Name, err)
	}
	_, err := l.coll.ReplaceOne(ctx,
		bson.M{"_id": r.ID.String()},
		bson.M{"_id": r.ID.String(), "name": r.Name, "areaCode": r.AreaCode, "geometry": geometry},
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("save roi %s: %w", r.Name, err)
	}
	return nil
}
