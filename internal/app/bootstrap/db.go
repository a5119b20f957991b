// internal/app/bootstrap/db.go
package bootstrap

import (
	"context"
	"fmt"

	ratelimitstore "github.com/dalemusser/stratadrive/internal/app/store/ratelimit"
	"github.com/dalemusser/stratadrive/internal/app/system/blobstore"
	"github.com/dalemusser/stratadrive/internal/app/system/indexes"
	"github.com/dalemusser/stratadrive/internal/app/system/validators"
	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.uber.org/zap"
)

// ConnectDB connects to MongoDB and initializes the blob backend.
//
// WAFFLE calls this after configuration is loaded but before EnsureSchema and
// Startup.
func ConnectDB(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) (DBDeps, error) {
	// Configure MongoDB connection pool
	poolCfg := wafflemongo.DefaultPoolConfig()
	if appCfg.MongoMaxPoolSize > 0 {
		poolCfg.MaxPoolSize = appCfg.MongoMaxPoolSize
	}
	if appCfg.MongoMinPoolSize > 0 {
		poolCfg.MinPoolSize = appCfg.MongoMinPoolSize
	}

	client, err := wafflemongo.ConnectWithPool(ctx, appCfg.MongoURI, appCfg.MongoDatabase, poolCfg)
	if err != nil {
		return DBDeps{}, err
	}

	db := client.Database(appCfg.MongoDatabase)

	logger.Info("connected to MongoDB",
		zap.String("database", appCfg.MongoDatabase),
		zap.Uint64("max_pool_size", poolCfg.MaxPoolSize),
		zap.Uint64("min_pool_size", poolCfg.MinPoolSize),
	)

	deps := DBDeps{MongoClient: client, MongoDatabase: db}

	switch appCfg.StorageType {
	case "s3":
		s3, err := blobstore.NewS3(ctx, blobstore.S3Config{
			Region:    appCfg.StorageS3Region,
			Bucket:    appCfg.StorageS3Bucket,
			Prefix:    appCfg.StorageS3Prefix,
			Endpoint:  appCfg.StorageS3Endpoint,
			AccessKey: appCfg.StorageS3AccessKey,
			SecretKey: appCfg.StorageS3SecretKey,
		}, logger)
		if err != nil {
			return DBDeps{}, fmt.Errorf("failed to initialize S3 blob storage: %w", err)
		}
		deps.Blobs = s3
		logger.Info("initialized S3 blob storage",
			zap.String("bucket", appCfg.StorageS3Bucket),
			zap.String("prefix", appCfg.StorageS3Prefix),
			zap.String("endpoint", appCfg.StorageS3Endpoint),
		)
	case "local", "":
		local, err := blobstore.NewLocal(blobstore.LocalConfig{
			BasePath:    appCfg.StorageLocalPath,
			DownloadURL: appCfg.StorageLocalURL,
			SigningKey:  []byte(appCfg.StorageSigningKey),
		}, logger)
		if err != nil {
			return DBDeps{}, fmt.Errorf("failed to initialize local blob storage: %w", err)
		}
		deps.Blobs = local
		deps.Local = local
		logger.Info("initialized local blob storage",
			zap.String("path", appCfg.StorageLocalPath),
			zap.String("url", appCfg.StorageLocalURL),
		)
	case "memory":
		deps.Blobs = blobstore.NewMemory()
		logger.Warn("using in-memory blob storage; content is lost on restart")
	default:
		return DBDeps{}, fmt.Errorf("unknown storage type: %s", appCfg.StorageType)
	}

	return deps, nil
}

// EnsureSchema creates the collections, validators and indexes the drive and its supporting stores rely
// on. The context has a timeout based on coreCfg.IndexBootTimeout.
func EnsureSchema(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	db := deps.MongoDatabase

	// Collections and validators first so indexes land on existing collections.
	logger.Info("ensuring collections and validators")
	if err := validators.EnsureAll(ctx, db, logger); err != nil {
		logger.Error("failed to ensure validators", zap.Error(err))
		return err
	}

	logger.Info("ensuring database indexes")
	if err := indexes.EnsureAll(ctx, db); err != nil {
		logger.Error("failed to ensure indexes", zap.Error(err))
		return err
	}

	// The login rate limiter owns its TTL index.
	if appCfg.RateLimitEnabled {
		rl := ratelimitstore.New(db, appCfg.RateLimitLoginAttempts, appCfg.RateLimitLoginWindow, appCfg.RateLimitLoginLockout)
		if err := rl.EnsureIndexes(ctx); err != nil {
			logger.Error("failed to ensure rate limit indexes", zap.Error(err))
			return err
		}
	}

	logger.Info("database schema ensured successfully")
	return nil
}
