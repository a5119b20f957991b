// internal/app/bootstrap/config.go
package bootstrap

import (
	"errors"
	"fmt"
	"time"

	"github.com/dalemusser/stratadrive/internal/app/system/auditlog"
	"github.com/dalemusser/stratadrive/internal/app/system/timeouts"
	"github.com/dalemusser/stratadrive/internal/domain/models"
	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.uber.org/zap"
)

// EnvVarPrefix is the prefix for environment variables.
const EnvVarPrefix = "STRATADRIVE"

// appConfigKeys defines the configuration keys for this application.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: mongo_uri, jwt_secret, etc.
//   - Environment variables: STRATADRIVE_MONGO_URI, STRATADRIVE_JWT_SECRET, etc.
//   - Command-line flags: --mongo_uri, --jwt_secret, etc.
var appConfigKeys = []config.AppKey{
	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection URI"},
	{Name: "mongo_database", Default: "stratadrive", Desc: "MongoDB database name"},
	{Name: "mongo_max_pool_size", Default: 100, Desc: "MongoDB max connection pool size (default: 100)"},
	{Name: "mongo_min_pool_size", Default: 10, Desc: "MongoDB min connection pool size (default: 10)"},
	{Name: "db_timeout_short", Default: "5s", Desc: "Deadline for single-document queries"},
	{Name: "db_timeout_medium", Default: "10s", Desc: "Deadline for listings, cascades and aggregates"},

	// Identity tokens
	{Name: "jwt_secret", Default: "dev-only-change-me-please-0123456789ABCDEF", Desc: "HMAC secret for identity tokens (32+ chars in production)"},
	{Name: "jwt_ttl", Default: "168h", Desc: "Identity token lifetime (e.g., 24h, 168h)"},

	// Rate limiting configuration
	{Name: "rate_limit_enabled", Default: true, Desc: "Enable rate limiting for login attempts"},
	{Name: "rate_limit_login_attempts", Default: 5, Desc: "Max failed login attempts before lockout"},
	{Name: "rate_limit_login_window", Default: "15m", Desc: "Time window for counting failed attempts"},
	{Name: "rate_limit_login_lockout", Default: "15m", Desc: "Lockout duration after exceeding limit"},

	// Blob storage configuration
	{Name: "storage_type", Default: "local", Desc: "Blob backend: 'local', 's3' or 'memory' (tests/dev only)"},
	{Name: "storage_local_path", Default: "./blobs", Desc: "Directory for local blobs"},
	{Name: "storage_local_url", Default: "/blobs", Desc: "URL of the signed local download endpoint"},
	{Name: "storage_signing_key", Default: "dev-only-blob-signing-key-0123456789ABCDEF", Desc: "Signing key for local download URLs (32+ chars in production)"},

	// S3-compatible configuration (AWS, Backblaze B2, MinIO)
	{Name: "storage_s3_region", Default: "us-east-1", Desc: "S3 region"},
	{Name: "storage_s3_bucket", Default: "", Desc: "S3 bucket name"},
	{Name: "storage_s3_prefix", Default: "", Desc: "S3 key prefix"},
	{Name: "storage_s3_endpoint", Default: "", Desc: "S3 endpoint override (blank for AWS)"},
	{Name: "storage_s3_access_key", Default: "", Desc: "S3 access key (blank uses the default credential chain)"},
	{Name: "storage_s3_secret_key", Default: "", Desc: "S3 secret key"},

	// Drive behaviour
	{Name: "download_url_ttl", Default: "1h", Desc: "Lifetime of signed download URLs"},
	{Name: "default_storage_limit", Default: models.DefaultStorageLimit, Desc: "Quota in bytes given to new accounts"},
	{Name: "max_upload_size", Default: 100 << 20, Desc: "Maximum upload size in bytes"},
	{Name: "trash_retention", Default: "720h", Desc: "How long trashed items are kept before automatic purge"},
	{Name: "trash_purge_interval", Default: "24h", Desc: "How often the trash purge job runs"},
	{Name: "quota_reconcile_interval", Default: "24h", Desc: "How often storage usage is recomputed from files (0 disables)"},

	// Share notifications (blank smtp_host disables email)
	{Name: "smtp_host", Default: "", Desc: "SMTP server host (blank disables share notifications)"},
	{Name: "smtp_port", Default: 587, Desc: "SMTP server port"},
	{Name: "smtp_user", Default: "", Desc: "SMTP username"},
	{Name: "smtp_pass", Default: "", Desc: "SMTP password"},
	{Name: "mail_from", Default: "noreply@localhost", Desc: "Sender address for notifications"},
	{Name: "mail_from_name", Default: "Strata Drive", Desc: "Sender display name, also used as the app name in messages"},
	{Name: "app_url", Default: "", Desc: "Public URL of the drive client, linked from notifications"},

	// Statistics
	{Name: "api_stats_bucket", Default: "1h", Desc: "Bucket size for per-route request stats (0 disables recording)"},
	{Name: "api_stats_retention", Default: "720h", Desc: "How long request stat buckets are kept"},
	{Name: "drive_stats_interval", Default: "24h", Desc: "How often drive totals are snapshotted to daily stats (0 disables)"},
	{Name: "daily_stats_retention", Default: "8760h", Desc: "How long daily stats are kept"},

	// Request ledger
	{Name: "ledger_retention", Default: "168h", Desc: "How long failed-request ledger entries are kept"},

	// Audit logging settings
	{Name: "audit_log_auth", Default: "all", Desc: "Auth event logging: 'all' (db+log), 'db', 'log', or 'off'"},
	{Name: "audit_log_drive", Default: "all", Desc: "Drive event logging (shares, permanent deletes): 'all', 'db', 'log', or 'off'"},

	// Operations
	{Name: "metrics_token", Default: "", Desc: "Bearer token guarding /metrics (blank leaves it open)"},
	{Name: "api_allowed_origins", Default: "", Desc: "Comma-separated origins allowed to call /api (blank allows any)"},
	{Name: "ops_token", Default: "", Desc: "Bearer token for /ops (ledger, audit, status); blank disables /ops"},
}

// LoadConfig loads WAFFLE core config and app-specific config.
//
// WAFFLE's config.LoadWithAppConfig handles .env files, config files,
// environment variables (WAFFLE_* for core, STRATADRIVE_* for app) and
// command-line flags, merged with precedence flags > env > files > defaults.
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, EnvVarPrefix, appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	appCfg := AppConfig{
		MongoURI:         appValues.String("mongo_uri"),
		MongoDatabase:    appValues.String("mongo_database"),
		MongoMaxPoolSize: uint64(appValues.Int("mongo_max_pool_size")),
		MongoMinPoolSize: uint64(appValues.Int("mongo_min_pool_size")),
		DBTimeoutShort:   appValues.Duration("db_timeout_short", timeouts.DefaultShort),
		DBTimeoutMedium:  appValues.Duration("db_timeout_medium", timeouts.DefaultMedium),

		JWTSecret: appValues.String("jwt_secret"),
		JWTTTL:    appValues.Duration("jwt_ttl", 7*24*time.Hour),

		// Rate limiting
		RateLimitEnabled:       appValues.Bool("rate_limit_enabled"),
		RateLimitLoginAttempts: appValues.Int("rate_limit_login_attempts"),
		RateLimitLoginWindow:   appValues.Duration("rate_limit_login_window", 15*time.Minute),
		RateLimitLoginLockout:  appValues.Duration("rate_limit_login_lockout", 15*time.Minute),

		// Blob storage
		StorageType:       appValues.String("storage_type"),
		StorageLocalPath:  appValues.String("storage_local_path"),
		StorageLocalURL:   appValues.String("storage_local_url"),
		StorageSigningKey: appValues.String("storage_signing_key"),

		StorageS3Region:    appValues.String("storage_s3_region"),
		StorageS3Bucket:    appValues.String("storage_s3_bucket"),
		StorageS3Prefix:    appValues.String("storage_s3_prefix"),
		StorageS3Endpoint:  appValues.String("storage_s3_endpoint"),
		StorageS3AccessKey: appValues.String("storage_s3_access_key"),
		StorageS3SecretKey: appValues.String("storage_s3_secret_key"),

		// Drive
		DownloadURLTTL:         appValues.Duration("download_url_ttl", time.Hour),
		DefaultStorageLimit:    int64(appValues.Int("default_storage_limit")),
		MaxUploadSize:          int64(appValues.Int("max_upload_size")),
		TrashRetention:         appValues.Duration("trash_retention", 30*24*time.Hour),
		TrashPurgeInterval:     appValues.Duration("trash_purge_interval", 24*time.Hour),
		QuotaReconcileInterval: appValues.Duration("quota_reconcile_interval", 24*time.Hour),

		SMTPHost:     appValues.String("smtp_host"),
		SMTPPort:     appValues.Int("smtp_port"),
		SMTPUser:     appValues.String("smtp_user"),
		SMTPPass:     appValues.String("smtp_pass"),
		MailFrom:     appValues.String("mail_from"),
		MailFromName: appValues.String("mail_from_name"),
		AppURL:       appValues.String("app_url"),

		APIStatsBucket:      appValues.Duration("api_stats_bucket", time.Hour),
		APIStatsRetention:   appValues.Duration("api_stats_retention", 30*24*time.Hour),
		DriveStatsInterval:  appValues.Duration("drive_stats_interval", 24*time.Hour),
		DailyStatsRetention: appValues.Duration("daily_stats_retention", 365*24*time.Hour),

		LedgerRetention: appValues.Duration("ledger_retention", 7*24*time.Hour),

		// Audit logging
		AuditLogAuth:  appValues.String("audit_log_auth"),
		AuditLogDrive: appValues.String("audit_log_drive"),

		MetricsToken:      appValues.String("metrics_token"),
		APIAllowedOrigins: splitList(appValues.String("api_allowed_origins")),
		OpsToken:          appValues.String("ops_token"),
	}

	return coreCfg, appCfg, nil
}

// ValidateConfig performs app-specific config validation.
//
// Return nil to accept the loaded config, or an error to abort startup.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
		logger.Error("invalid MongoDB URI", zap.Error(err))
		return fmt.Errorf("invalid MongoDB URI: %w", err)
	}

	var problems []error
	switch appCfg.StorageType {
	case "local", "":
		if len(appCfg.StorageSigningKey) < 32 {
			problems = append(problems, errors.New("storage_signing_key must be at least 32 characters"))
		}
	case "s3":
		if appCfg.StorageS3Bucket == "" {
			problems = append(problems, errors.New("storage_s3_bucket is required for s3 storage"))
		}
	case "memory":
		if coreCfg.Env == "prod" {
			problems = append(problems, errors.New("memory storage is not allowed in prod"))
		}
	default:
		problems = append(problems, fmt.Errorf("unknown storage_type %q", appCfg.StorageType))
	}

	if appCfg.MaxUploadSize <= 0 {
		problems = append(problems, errors.New("max_upload_size must be positive"))
	}
	if appCfg.DefaultStorageLimit <= 0 {
		problems = append(problems, errors.New("default_storage_limit must be positive"))
	}
	if appCfg.TrashRetention <= 0 || appCfg.TrashPurgeInterval <= 0 {
		problems = append(problems, errors.New("trash_retention and trash_purge_interval must be positive"))
	}
	if appCfg.SMTPHost != "" && appCfg.MailFrom == "" {
		problems = append(problems, errors.New("mail_from is required when smtp_host is set"))
	}
	if appCfg.APIStatsBucket < 0 || appCfg.DriveStatsInterval < 0 {
		problems = append(problems, errors.New("api_stats_bucket and drive_stats_interval must not be negative"))
	}
	if appCfg.RateLimitEnabled && appCfg.RateLimitLoginAttempts < 1 {
		problems = append(problems, errors.New("rate_limit_login_attempts must be at least 1"))
	}
	for name, mode := range map[string]string{"audit_log_auth": appCfg.AuditLogAuth, "audit_log_drive": appCfg.AuditLogDrive} {
		switch mode {
		case "", auditlog.ModeAll, auditlog.ModeDB, auditlog.ModeLog, auditlog.ModeOff:
		default:
			problems = append(problems, fmt.Errorf("%s: unknown mode %q", name, mode))
		}
	}

	if err := errors.Join(problems...); err != nil {
		logger.Error("invalid configuration", zap.Error(err))
		return err
	}
	return nil
}
