// Package indexes declares every MongoDB index the drive relies on and
// reconciles them at startup.
package indexes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// Index is one desired index. Keys pairs field names with 1 or -1.
type Index struct {
	Name   string
	Keys   bson.D
	Unique bool
}

// Collection groups the indexes of one collection.
type Collection struct {
	Name    string
	Indexes []Index
}

func asc(fields ...string) bson.D {
	d := make(bson.D, 0, len(fields))
	for _, f := range fields {
		if strings.HasPrefix(f, "-") {
			d = append(d, bson.E{Key: f[1:], Value: -1})
			continue
		}
		d = append(d, bson.E{Key: f, Value: 1})
	}
	return d
}

// Declared is the full index set. Folder names carry no unique index: a
// trashed folder may share its name with an active sibling, and the drive
// service checks active siblings itself. Ledger, API stats and daily stats
// are pruned by jobs rather than TTL indexes so retention stays a config
// value.
var Declared = []Collection{
	{"users", []Index{
		{Name: "uniq_users_email", Keys: asc("email"), Unique: true},
	}},
	{"folders", []Index{
		{Name: "idx_folders_owner_parent_name", Keys: asc("owner_id", "parent_id", "name")},
		{Name: "idx_folders_parent_deleted_nameci", Keys: asc("parent_id", "is_deleted", "name_ci")},
		{Name: "idx_folders_owner_deleted_accessed", Keys: asc("owner_id", "is_deleted", "-last_accessed")},
		{Name: "idx_folders_shared_with", Keys: asc("shared_with")},
		{Name: "idx_folders_deleted_at", Keys: asc("is_deleted", "deleted_at")},
	}},
	{"files", []Index{
		{Name: "idx_files_folder_deleted_nameci", Keys: asc("folder_id", "is_deleted", "name_ci")},
		{Name: "idx_files_owner_created", Keys: asc("owner_id", "-created_at")},
		{Name: "idx_files_shared_with", Keys: asc("shared_with")},
		{Name: "idx_files_deleted_at", Keys: asc("is_deleted", "deleted_at")},
		{Name: "idx_files_content_type", Keys: asc("content_type")},
	}},
	{"audit_logs", []Index{
		{Name: "idx_audit_user", Keys: asc("user_id", "-created_at")},
		{Name: "idx_audit_category", Keys: asc("category", "-created_at")},
		{Name: "idx_audit_event_type", Keys: asc("event_type", "-created_at")},
		{Name: "idx_audit_created", Keys: asc("-created_at")},
	}},
	{"ledger_entries", []Index{
		{Name: "idx_ledger_request_id", Keys: asc("request_id")},
		{Name: "idx_ledger_status_started", Keys: asc("status_code", "-started_at")},
		{Name: "idx_ledger_started", Keys: asc("-started_at")},
	}},
	{"api_stats", []Index{
		{Name: "uniq_apistats_bucket_type", Keys: asc("bucket", "stat_type"), Unique: true},
		{Name: "idx_apistats_type_bucket", Keys: asc("stat_type", "bucket")},
	}},
	{"daily_stats", []Index{
		{Name: "uniq_dailystats_type_date", Keys: asc("stat_type", "date"), Unique: true},
	}},
}

// EnsureAll reconciles Declared against db. It is idempotent and keeps going
// past a failing collection so startup reports every problem at once.
func EnsureAll(ctx context.Context, db *mongo.Database) error {
	var errs []error
	for _, c := range Declared {
		if err := ensure(ctx, db.Collection(c.Name), c.Indexes); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c.Name, err))
		}
	}
	return errors.Join(errs...)
}

type existing struct {
	Name   string `bson:"name"`
	Key    bson.D `bson:"key"`
	Unique bool   `bson:"unique"`
}

func signature(keys bson.D) string {
	var b strings.Builder
	for i, e := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%s:%v", e.Key, e.Value)
	}
	return b.String()
}

func listExisting(ctx context.Context, coll *mongo.Collection) (map[string]existing, error) {
	cur, err := coll.Indexes().List(ctx)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	bySig := make(map[string]existing)
	for cur.Next(ctx) {
		var ex existing
		if err := cur.Decode(&ex); err != nil {
			return nil, err
		}
		bySig[signature(ex.Key)] = ex
	}
	return bySig, cur.Err()
}

// ensure creates missing indexes. An index whose keys already exist is
// reused whatever its name; one whose uniqueness differs is rebuilt.
func ensure(ctx context.Context, coll *mongo.Collection, want []Index) error {
	log := zap.L().With(zap.String("collection", coll.Name()))

	have, err := listExisting(ctx, coll)
	if err != nil {
		// a collection that does not exist yet has no indexes
		log.Debug("list indexes", zap.Error(err))
		have = map[string]existing{}
	}

	var errs []error
	for _, ix := range want {
		sig := signature(ix.Keys)
		start := time.Now()

		if ex, ok := have[sig]; ok {
			if ex.Unique == ix.Unique {
				log.Debug("index present", zap.String("name", ex.Name), zap.String("keys", sig))
				continue
			}
			log.Warn("rebuilding index with changed uniqueness",
				zap.String("name", ex.Name), zap.Bool("unique", ix.Unique))
			if _, err := coll.Indexes().DropOne(ctx, ex.Name); err != nil {
				errs = append(errs, fmt.Errorf("%s: drop: %w", ix.Name, err))
				continue
			}
		}

		model := mongo.IndexModel{Keys: ix.Keys, Options: options.Index().SetName(ix.Name)}
		if ix.Unique {
			model.Options.SetUnique(true)
		}
		if _, err := coll.Indexes().CreateOne(ctx, model); err != nil {
			if ix.Unique && wafflemongo.IsDup(err) {
				err = errors.New("duplicate values prevent a unique index")
			}
			log.Warn("index ensure failed", zap.String("name", ix.Name), zap.String("keys", sig), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", ix.Name, err))
			continue
		}
		log.Info("index created",
			zap.String("name", ix.Name),
			zap.String("keys", sig),
			zap.Bool("unique", ix.Unique),
			zap.Duration("took", time.Since(start)))
	}
	return errors.Join(errs...)
}
