// Package apistats stores per-route request counts and latencies in fixed
// time buckets.
package apistats

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CollectionName is the MongoDB collection for API statistics.
const CollectionName = "api_stats"

// StatType names the route group a request belongs to.
type StatType string

const (
	StatAuth    StatType = "auth"
	StatFolders StatType = "folders"
	StatFiles   StatType = "files"
	StatItems   StatType = "items" // starred and trash listings
)

// Valid reports whether t is one of the known stat types.
func (t StatType) Valid() bool {
	switch t {
	case StatAuth, StatFolders, StatFiles, StatItems:
		return true
	}
	return false
}

// Bucket aggregates the requests of one stat type within one time bucket.
type Bucket struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	Bucket    time.Time          `bson:"bucket" json:"bucket"`
	StatType  StatType           `bson:"stat_type" json:"stat_type"`
	Requests  int64              `bson:"requests" json:"requests"`
	Errors    int64              `bson:"errors" json:"errors"` // status >= 400
	TotalMs   int64              `bson:"total_ms" json:"total_ms"`
	MinMs     int64              `bson:"min_ms" json:"min_ms"`
	MaxMs     int64              `bson:"max_ms" json:"max_ms"`
	UpdatedAt time.Time          `bson:"updated_at" json:"updated_at"`
}

// AvgMs returns the mean latency of the bucket.
func (b Bucket) AvgMs() float64 {
	if b.Requests == 0 {
		return 0
	}
	return float64(b.TotalMs) / float64(b.Requests)
}

// Summary totals one stat type over a range of buckets.
type Summary struct {
	StatType StatType `bson:"_id" json:"stat_type"`
	Requests int64    `bson:"requests" json:"requests"`
	Errors   int64    `bson:"errors" json:"errors"`
	TotalMs  int64    `bson:"total_ms" json:"-"`
	AvgMs    float64  `bson:"-" json:"avg_ms"`
	MinMs    int64    `bson:"min_ms" json:"min_ms"`
	MaxMs    int64    `bson:"max_ms" json:"max_ms"`
}

// Store provides API statistics persistence. Its indexes are created by
// system/indexes.
type Store struct {
	c *mongo.Collection
}

// New creates a new API stats store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection(CollectionName)}
}

// Record folds one request into the bucket containing now. Concurrent
// calls for the same bucket are safe; the upsert races are resolved by the
// unique (bucket, stat_type) index.
func (s *Store) Record(ctx context.Context, statType StatType, bucketSize time.Duration, durationMs int64, isError bool) error {
	now := time.Now().UTC()
	inc := bson.M{"requests": 1, "total_ms": durationMs}
	if isError {
		inc["errors"] = 1
	}

	filter := bson.M{"bucket": now.Truncate(bucketSize), "stat_type": statType}
	update := bson.M{
		"$inc":         inc,
		"$min":         bson.M{"min_ms": durationMs},
		"$max":         bson.M{"max_ms": durationMs},
		"$set":         bson.M{"updated_at": now},
		"$setOnInsert": bson.M{"_id": primitive.NewObjectID()},
	}
	opts := options.Update().SetUpsert(true)

	_, err := s.c.UpdateOne(ctx, filter, update, opts)
	if mongo.IsDuplicateKeyError(err) {
		// Lost the insert race; the bucket exists now, so this updates it.
		_, err = s.c.UpdateOne(ctx, filter, update, opts)
	}
	return err
}

// GetRange returns the buckets of statType in [start, end], oldest first.
func (s *Store) GetRange(ctx context.Context, statType StatType, start, end time.Time) ([]Bucket, error) {
	cur, err := s.c.Find(ctx,
		bson.M{
			"stat_type": statType,
			"bucket":    bson.M{"$gte": start.UTC(), "$lte": end.UTC()},
		},
		options.Find().SetSort(bson.D{{Key: "bucket", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []Bucket{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetSummary totals every stat type with buckets in [start, end].
func (s *Store) GetSummary(ctx context.Context, start, end time.Time) ([]Summary, error) {
	cur, err := s.c.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"bucket": bson.M{"$gte": start.UTC(), "$lte": end.UTC()}}}},
		{{Key: "$group", Value: bson.M{
			"_id":      "$stat_type",
			"requests": bson.M{"$sum": "$requests"},
			"errors":   bson.M{"$sum": "$errors"},
			"total_ms": bson.M{"$sum": "$total_ms"},
			"min_ms":   bson.M{"$min": "$min_ms"},
			"max_ms":   bson.M{"$max": "$max_ms"},
		}}},
		{{Key: "$sort", Value: bson.M{"_id": 1}}},
	})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []Summary{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	for i := range out {
		if out[i].Requests > 0 {
			out[i].AvgMs = float64(out[i].TotalMs) / float64(out[i].Requests)
		}
	}
	return out, nil
}

// DeleteOlderThan removes buckets that start before cutoff.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.c.DeleteMany(ctx, bson.M{"bucket": bson.M{"$lt": cutoff.UTC()}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
