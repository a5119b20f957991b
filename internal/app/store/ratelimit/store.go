// internal/app/store/ratelimit/store.go
// Package ratelimit throttles password logins per account email.
package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/stratadrive/internal/app/system/normalize"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Attempt tracks failed logins for one email.
type Attempt struct {
	Email        string     `bson:"_id"`
	AttemptCount int        `bson:"attempt_count"` // failures in the current window
	WindowStart  time.Time  `bson:"window_start"`
	LockedUntil  *time.Time `bson:"locked_until"`
	LastAttempt  time.Time  `bson:"last_attempt"` // TTL anchor
}

// Store manages login attempt counters in the login_attempts collection.
// The normalized email is the document id, so every update is a single
// atomic upsert.
type Store struct {
	c               *mongo.Collection
	maxAttempts     int
	windowDuration  time.Duration
	lockoutDuration time.Duration
	now             func() time.Time
}

// New creates a Store that locks an email for lockout after maxAttempts
// failures within window.
func New(db *mongo.Database, maxAttempts int, window, lockout time.Duration) *Store {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Store{
		c:               db.Collection("login_attempts"),
		maxAttempts:     maxAttempts,
		windowDuration:  window,
		lockoutDuration: lockout,
		now:             time.Now,
	}
}

// EnsureIndexes adds a TTL index so idle counters disappear after a day.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.c.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "last_attempt", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(86400).SetName("idx_login_attempts_ttl"),
	})
	return err
}

// CheckAllowed reports whether a login for email may be attempted.
//   - remaining: failures left before lockout (-1 while locked)
//   - lockedUntil: lockout expiry, nil when not locked
//
// Lookup errors fail open so a database hiccup cannot lock everyone out.
func (s *Store) CheckAllowed(ctx context.Context, email string) (allowed bool, remaining int, lockedUntil *time.Time) {
	now := s.now()

	var a Attempt
	err := s.c.FindOne(ctx, bson.M{"_id": normalize.Email(email)}).Decode(&a)
	if err != nil {
		return true, s.maxAttempts, nil
	}

	if a.LockedUntil != nil && now.Before(*a.LockedUntil) {
		return false, -1, a.LockedUntil
	}
	if now.After(a.WindowStart.Add(s.windowDuration)) {
		return true, s.maxAttempts, nil
	}

	remaining = s.maxAttempts - a.AttemptCount
	if remaining <= 0 {
		return false, 0, nil
	}
	return true, remaining, nil
}

// RecordFailure counts a failed login for email and starts a lockout when
// the limit is reached. Returns whether this failure caused the lockout.
func (s *Store) RecordFailure(ctx context.Context, email string) (lockedOut bool, lockedUntil *time.Time) {
	id := normalize.Email(email)
	now := s.now()

	// Restart the window when the previous one (or a lockout) has lapsed.
	_, _ = s.c.UpdateOne(ctx, bson.M{
		"_id":          id,
		"window_start": bson.M{"$lt": now.Add(-s.windowDuration)},
		"$or": bson.A{
			bson.M{"locked_until": nil},
			bson.M{"locked_until": bson.M{"$lte": now}},
		},
	}, bson.M{"$set": bson.M{
		"attempt_count": 0,
		"window_start":  now,
		"locked_until":  nil,
	}})

	var a Attempt
	err := s.c.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{
			"$inc":         bson.M{"attempt_count": 1},
			"$set":         bson.M{"last_attempt": now},
			"$setOnInsert": bson.M{"window_start": now, "locked_until": nil},
		},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&a)
	if err != nil {
		return false, nil
	}

	if a.AttemptCount < s.maxAttempts || (a.LockedUntil != nil && now.Before(*a.LockedUntil)) {
		return false, nil
	}

	until := now.Add(s.lockoutDuration)
	_, _ = s.c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"locked_until": until}})
	return true, &until
}

// ClearOnSuccess forgets the failures for email after a successful login.
func (s *Store) ClearOnSuccess(ctx context.Context, email string) error {
	_, err := s.c.DeleteOne(ctx, bson.M{"_id": normalize.Email(email)})
	return err
}

// GetAttempt returns the counter for email, or nil when none exists.
func (s *Store) GetAttempt(ctx context.Context, email string) (*Attempt, error) {
	var a Attempt
	err := s.c.FindOne(ctx, bson.M{"_id": normalize.Email(email)}).Decode(&a)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}
