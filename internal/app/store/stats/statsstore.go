// internal/app/store/stats/statsstore.go
// Package statsstore keeps one document of counters per day and stat type.
package statsstore

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// TypeDrive is the stat type written by the daily drive snapshot.
const TypeDrive = "drive"

// DailyStats holds one day's counters for a stat type.
type DailyStats struct {
	ID        primitive.ObjectID `bson:"_id" json:"-"`
	Date      time.Time          `bson:"date" json:"date"` // UTC midnight
	StatType  string             `bson:"stat_type" json:"stat_type"`
	Counters  map[string]int64   `bson:"counters" json:"counters"`
	UpdatedAt time.Time          `bson:"updated_at" json:"updated_at"`
}

// Store provides daily stats persistence. Its indexes are created by
// system/indexes.
type Store struct {
	c *mongo.Collection
}

// New creates a new stats store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("daily_stats")}
}

// Day truncates t to midnight UTC.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// SetCounters overwrites the named counters for date's day, creating the
// document if needed. Counters not named are left alone.
func (s *Store) SetCounters(ctx context.Context, date time.Time, statType string, counters map[string]int64) error {
	set := bson.M{"updated_at": time.Now()}
	for k, v := range counters {
		set["counters."+k] = v
	}
	_, err := s.c.UpdateOne(ctx,
		bson.M{"date": Day(date), "stat_type": statType},
		bson.M{
			"$set":         set,
			"$setOnInsert": bson.M{"_id": primitive.NewObjectID()},
		},
		options.Update().SetUpsert(true))
	return err
}

// GetRange returns the days in [start, end] for statType, oldest first.
func (s *Store) GetRange(ctx context.Context, statType string, start, end time.Time) ([]DailyStats, error) {
	cur, err := s.c.Find(ctx,
		bson.M{
			"stat_type": statType,
			"date":      bson.M{"$gte": Day(start), "$lte": Day(end)},
		},
		options.Find().SetSort(bson.D{{Key: "date", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []DailyStats{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteOlderThan removes days before cutoff.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.c.DeleteMany(ctx, bson.M{"date": bson.M{"$lt": Day(cutoff)}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
