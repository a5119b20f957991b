// Package quota keeps the per-user storage ledger on the users collection.
//
// Every change to storage_used is a single atomic update, so concurrent
// uploads and deletes for the same user never lose an increment.
package quota

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrExceeded is returned by Reserve when used + size would pass the limit.
var ErrExceeded = errors.New("storage quota exceeded")

// ErrInvalidSize is returned for negative sizes.
var ErrInvalidSize = errors.New("size must not be negative")

// Usage is a user's current storage position.
type Usage struct {
	Used  int64 `bson:"storage_used" json:"storage_used"`
	Limit int64 `bson:"storage_limit" json:"storage_limit"`
}

// Available returns the bytes still free under the limit.
func (u Usage) Available() int64 {
	if u.Used >= u.Limit {
		return 0
	}
	return u.Limit - u.Used
}

// Store provides access to the storage fields of the users collection.
type Store struct {
	c *mongo.Collection
}

// New creates a new quota store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("users")}
}

// Usage returns the user's used and limit bytes.
// Returns mongo.ErrNoDocuments if the user does not exist.
func (s *Store) Usage(ctx context.Context, userID primitive.ObjectID) (Usage, error) {
	var u Usage
	err := s.c.FindOne(ctx, bson.M{"_id": userID},
		options.FindOne().SetProjection(bson.M{"storage_used": 1, "storage_limit": 1}),
	).Decode(&u)
	return u, err
}

// Reserve checks that size more bytes fit under the user's limit.
// The check is advisory: it does not hold the space. Exactly reaching the
// limit is allowed.
func (s *Store) Reserve(ctx context.Context, userID primitive.ObjectID, size int64) error {
	if size < 0 {
		return ErrInvalidSize
	}
	u, err := s.Usage(ctx, userID)
	if err != nil {
		return err
	}
	if u.Used+size > u.Limit {
		return ErrExceeded
	}
	return nil
}

// Commit adds size to the user's usage.
func (s *Store) Commit(ctx context.Context, userID primitive.ObjectID, size int64) error {
	if size < 0 {
		return ErrInvalidSize
	}
	res, err := s.c.UpdateOne(ctx, bson.M{"_id": userID}, bson.M{
		"$inc": bson.M{"storage_used": size},
		"$set": bson.M{"updated_at": time.Now()},
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

// Release subtracts size from the user's usage, clamping at zero.
func (s *Store) Release(ctx context.Context, userID primitive.ObjectID, size int64) error {
	if size < 0 {
		return ErrInvalidSize
	}
	// Pipeline update keeps the clamp inside one server-side operation.
	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"storage_used": bson.M{"$max": bson.A{
				int64(0),
				bson.M{"$subtract": bson.A{bson.M{"$ifNull": bson.A{"$storage_used", int64(0)}}, size}},
			}},
			"updated_at": "$$NOW",
		}}},
	}
	res, err := s.c.UpdateOne(ctx, bson.M{"_id": userID}, pipeline)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

// Adjust moves the user's usage from expected to actual in one
// compare-and-set. It reports false, changing nothing, when the usage no
// longer reads expected because an upload or delete got there first.
func (s *Store) Adjust(ctx context.Context, userID primitive.ObjectID, expected, actual int64) (bool, error) {
	if actual < 0 {
		actual = 0
	}
	res, err := s.c.UpdateOne(ctx, bson.M{"_id": userID, "storage_used": expected}, bson.M{
		"$inc": bson.M{"storage_used": actual - expected},
		"$set": bson.M{"updated_at": time.Now()},
	})
	if err != nil {
		return false, err
	}
	return res.MatchedCount == 1, nil
}
