// internal/app/store/ledger/ledgerstore.go
// Package ledgerstore persists failed API requests for troubleshooting.
package ledgerstore

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Entry is one recorded request.
type Entry struct {
	ID primitive.ObjectID `bson:"_id" json:"id"`

	RequestID string `bson:"request_id" json:"request_id"` // echoed in X-Request-ID

	Method   string `bson:"method" json:"method"`
	Path     string `bson:"path" json:"path"`
	Query    string `bson:"query,omitempty" json:"query,omitempty"`
	RemoteIP string `bson:"remote_ip" json:"remote_ip"`
	UserID   string `bson:"user_id,omitempty" json:"user_id,omitempty"` // hex id of the authenticated caller

	StatusCode   int    `bson:"status_code" json:"status_code"`
	ResponseSize int64  `bson:"response_size" json:"response_size"`
	Operation    string `bson:"operation,omitempty" json:"operation,omitempty"`         // handler operation, e.g. "move folder"
	ErrorClass   string `bson:"error_class,omitempty" json:"error_class,omitempty"`     // drive error kind or a status class
	ErrorMessage string `bson:"error_message,omitempty" json:"error_message,omitempty"` // the message sent to the client

	DurationMs float64   `bson:"duration_ms" json:"duration_ms"`
	StartedAt  time.Time `bson:"started_at" json:"started_at"`
}

// Store provides ledger entry persistence. Its indexes are created by
// system/indexes.
type Store struct {
	c *mongo.Collection
}

// New creates a new ledger store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("ledger_entries")}
}

// Create inserts a new ledger entry.
func (s *Store) Create(ctx context.Context, entry Entry) error {
	if entry.ID.IsZero() {
		entry.ID = primitive.NewObjectID()
	}
	_, err := s.c.InsertOne(ctx, entry)
	return err
}

// GetByRequestID retrieves a ledger entry by request ID.
func (s *Store) GetByRequestID(ctx context.Context, requestID string) (*Entry, error) {
	var entry Entry
	if err := s.c.FindOne(ctx, bson.M{"request_id": requestID}).Decode(&entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// RecentErrors returns the most recent entries with status >= 400.
// limit is clamped to [1, 100], defaulting to 10.
func (s *Store) RecentErrors(ctx context.Context, limit int) ([]Entry, error) {
	if limit < 1 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "started_at", Value: -1}}).
		SetLimit(int64(limit))

	cur, err := s.c.Find(ctx, bson.M{"status_code": bson.M{"$gte": 400}}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	entries := []Entry{}
	if err := cur.All(ctx, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// CountByErrorClass returns the number of entries per error class since
// the given time.
func (s *Store) CountByErrorClass(ctx context.Context, since time.Time) (map[string]int64, error) {
	cur, err := s.c.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"started_at": bson.M{"$gte": since}}}},
		{{Key: "$group", Value: bson.M{"_id": "$error_class", "count": bson.M{"$sum": 1}}}},
	})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var rows []struct {
		Class string `bson:"_id"`
		Count int64  `bson:"count"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Class] = row.Count
	}
	return counts, nil
}

// DeleteOlderThan deletes entries started before cutoff.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.c.DeleteMany(ctx, bson.M{"started_at": bson.M{"$lt": cutoff}})
	if err != nil {
		return 0, err
	}
	return result.DeletedCount, nil
}
