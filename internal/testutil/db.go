// Package testutil provides a per-test MongoDB database, fixtures and HTTP
// helpers for the drive's package tests.
package testutil

import (
	"context"
	"fmt"
	"hash/fnv"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dalemusser/stratadrive/internal/app/system/indexes"
	"github.com/dalemusser/stratadrive/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DefaultMongoURI is used unless STRATADRIVE_TEST_MONGO_URI is set.
const DefaultMongoURI = "mongodb://localhost:27017"

const dbPrefix = "sdtest_"

var shared struct {
	once   sync.Once
	client *mongo.Client
	err    error
}

func mongoURI() string {
	if uri := os.Getenv("STRATADRIVE_TEST_MONGO_URI"); uri != "" {
		return uri
	}
	return DefaultMongoURI
}

func sharedClient() (*mongo.Client, error) {
	shared.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		opts := options.Client().
			ApplyURI(mongoURI()).
			SetMaxPoolSize(100).
			SetServerSelectionTimeout(10 * time.Second)
		c, err := mongo.Connect(ctx, opts)
		if err == nil {
			err = c.Ping(ctx, nil)
		}
		shared.client, shared.err = c, err
	})
	return shared.client, shared.err
}

// SetupTestDB returns an empty database private to t, with every
// production index in place. It is dropped when t finishes.
func SetupTestDB(t *testing.T) *mongo.Database {
	t.Helper()
	client, err := sharedClient()
	if err != nil {
		t.Fatalf("connect to test MongoDB at %s: %v", mongoURI(), err)
	}

	db := client.Database(DBName(t.Name()))
	ctx, cancel := TestContext()
	defer cancel()
	if err := db.Drop(ctx); err != nil {
		t.Fatalf("drop %s: %v", db.Name(), err)
	}
	if err := indexes.EnsureAll(ctx, db); err != nil {
		t.Fatalf("ensure indexes: %v", err)
	}

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := db.Drop(ctx); err != nil {
			t.Logf("drop %s on cleanup: %v", db.Name(), err)
		}
	})
	return db
}

// DBName maps a test name to a database name. MongoDB caps names at 63
// bytes; long test names are cut and suffixed with a hash of the full
// name so subtests never share a database.
func DBName(testName string) string {
	clean := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		}
		return '_'
	}, testName)

	const max = 63 - len(dbPrefix)
	if len(clean) <= max {
		return dbPrefix + clean
	}
	h := fnv.New32a()
	h.Write([]byte(testName))
	sum := fmt.Sprintf("%08x", h.Sum32())
	return dbPrefix + clean[:max-len(sum)-1] + "_" + sum
}

// TestContext returns a context that bounds one test's database calls.
func TestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

// InsertUser stores a user with the given email and storage limit and
// returns it. A limit of 0 uses models.DefaultStorageLimit.
func InsertUser(t *testing.T, db *mongo.Database, email string, limit int64) models.User {
	t.Helper()
	if limit == 0 {
		limit = models.DefaultStorageLimit
	}
	now := time.Now()
	u := models.User{
		ID:           primitive.NewObjectID(),
		Email:        email,
		FullName:     "Test User",
		FullNameCI:   "test user",
		StorageLimit: limit,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	ctx, cancel := TestContext()
	defer cancel()
	if _, err := db.Collection("users").InsertOne(ctx, u); err != nil {
		t.Fatalf("failed to insert test user: %v", err)
	}
	return u
}
